// Package extract produces delimited call-list files from processed
// sample tables: optional landline/cell splitting, batch
// stratification, householding, and CSV serialization.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fieldstone/samplehub/internal/sample"
	"github.com/fieldstone/samplehub/internal/schema"
)

// Mode selects whether a table is extracted whole or split into
// landline and cell files.
type Mode string

const (
	ModeAll   Mode = "all"
	ModeSplit Mode = "split"
)

// NumBatches is the fixed number of stratified delivery batches.
const NumBatches = 7

// Request describes one extraction run against a processed table.
type Request struct {
	TableName           string            `json:"tableName"`
	SelectedHeaders     []string          `json:"selectedHeaders"`
	SplitMode           Mode              `json:"splitMode"`
	SelectedAgeRange    int               `json:"selectedAgeRange"`
	HouseholdingEnabled bool              `json:"householdingEnabled"`
	FileType            string            `json:"fileType"`
	FileNames           map[string]string `json:"fileNames"`
	ClientID            int               `json:"clientId"`

	// Renames maps a selected output name to the table column it reads
	// from, for excluded columns re-admitted under a new name by a
	// project inclusion override. The table still carries the original
	// column; the output file carries the override name.
	Renames map[string]string `json:"renames,omitempty"`
}

// FileOutput describes one written extract file.
type FileOutput struct {
	Kind     string   `json:"kind"`
	Filename string   `json:"filename"`
	URL      string   `json:"url"`
	Records  int      `json:"records"`
	Headers  []string `json:"headers"`
}

// Engine runs extraction requests. Output goes to a per-identity
// directory under the configured root, wiped at the start of each run;
// runs for the same identity are serialized so two requests cannot race
// on that directory.
type Engine struct {
	db     sample.DBTX
	outDir string
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates an extraction engine writing under outDir.
func NewEngine(db sample.DBTX, outDir string, logger *slog.Logger) *Engine {
	return &Engine{
		db:     db,
		outDir: outDir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Run executes one extraction request and returns descriptors for every
// file written. Any failure aborts the whole request; files written to
// other identities' directories are unaffected.
func (e *Engine) Run(ctx context.Context, identity sample.Identity, req Request) ([]FileOutput, error) {
	if req.TableName == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if req.SplitMode == "" {
		req.SplitMode = ModeAll
	}

	unlock := e.lockIdentity(identity.Username)
	defer unlock()

	dir, err := e.prepareDir(identity.Username)
	if err != nil {
		return nil, err
	}

	available, err := tableColumns(ctx, e.db, req.TableName)
	if err != nil {
		return nil, err
	}
	if len(available) == 0 {
		return nil, fmt.Errorf("table %s not found", req.TableName)
	}

	var dupTables []dupTable
	if req.HouseholdingEnabled {
		dupTables, err = e.household(ctx, req.TableName, available)
		if err != nil {
			return nil, fmt.Errorf("householding: %w", err)
		}
	}

	var outputs []FileOutput
	switch req.SplitMode {
	case ModeSplit:
		outputs, err = e.runSplit(ctx, dir, req, available)
	case ModeAll:
		outputs, err = e.runWhole(ctx, dir, req, available)
	default:
		return nil, fmt.Errorf("unknown split mode %q", req.SplitMode)
	}
	if err != nil {
		return nil, err
	}

	for _, dup := range dupTables {
		out, err := e.extractDup(ctx, dir, req, dup)
		if err != nil {
			return nil, fmt.Errorf("extract rank-%d table: %w", dup.rank, err)
		}
		outputs = append(outputs, out)
	}

	e.logger.Info("extraction complete",
		slog.String("table", req.TableName),
		slog.String("mode", string(req.SplitMode)),
		slog.Int("files", len(outputs)))
	return outputs, nil
}

// runWhole stratifies the table in place and extracts a single file.
func (e *Engine) runWhole(ctx context.Context, dir string, req Request, available map[string]bool) ([]FileOutput, error) {
	if err := e.stratify(ctx, req.TableName, available); err != nil {
		return nil, fmt.Errorf("stratify: %w", err)
	}

	selection := buildSelection(req.SelectedHeaders, available, false, req.Renames)
	out, err := e.extractTable(ctx, dir, req, req.TableName, "all", selection, available)
	if err != nil {
		return nil, err
	}
	return []FileOutput{out}, nil
}

// runSplit classifies every row as landline or cell type, materializes
// the two derived tables, stratifies each, and extracts each to its own
// file.
func (e *Engine) runSplit(ctx context.Context, dir string, req Request, available map[string]bool) ([]FileOutput, error) {
	if err := e.classify(ctx, req.TableName, req, available); err != nil {
		return nil, fmt.Errorf("classify rows: %w", err)
	}

	derived := []struct {
		kind  string
		vtype string
	}{
		{"land", "L"},
		{"cell", "C"},
	}

	var outputs []FileOutput
	for _, d := range derived {
		table := req.TableName + "_" + strings.ToUpper(d.kind)
		if err := e.createTyped(ctx, req.TableName, table, d.vtype); err != nil {
			return nil, fmt.Errorf("create %s table: %w", d.kind, err)
		}

		cols, err := tableColumns(ctx, e.db, table)
		if err != nil {
			return nil, err
		}
		if err := e.stratify(ctx, table, cols); err != nil {
			return nil, fmt.Errorf("stratify %s table: %w", d.kind, err)
		}

		selection := buildSelection(req.SelectedHeaders, cols, true, req.Renames)
		out, err := e.extractTable(ctx, dir, req, table, d.kind, selection, cols)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// classify writes the landline/cell type column. Tarrance rows carry an
// explicit cell indicator; for everyone else a record is dialed on cell
// when it has a cell number and either lacks a landline or falls at or
// below the requested age-range cutoff.
func (e *Engine) classify(ctx context.Context, table string, req Request, available map[string]bool) error {
	if err := ensureColumn(ctx, e.db, table, sample.ColVType, available); err != nil {
		return err
	}

	var expr string
	if req.ClientID == sample.ClientTarrance && available[sample.ColIsCell] {
		expr = fmt.Sprintf(
			`CASE WHEN UPPER(COALESCE(%s, '')) IN ('1', 'Y', 'T', 'TRUE') THEN 'C' ELSE 'L' END`,
			schema.QuoteIdentifier(sample.ColIsCell),
		)
	} else {
		cellCond := "FALSE"
		if available[sample.ColCell] {
			cellCond = notBlank(sample.ColCell)
		}
		landCond := "FALSE"
		if available[sample.ColLand] {
			landCond = notBlank(sample.ColLand)
		}
		ageCond := "FALSE"
		if available[sample.ColAgeRange] && req.SelectedAgeRange > 0 {
			r := schema.QuoteIdentifier(sample.ColAgeRange)
			ageCond = fmt.Sprintf(`(%s ~ '^[0-9]+$' AND (%s)::int <= %d)`, r, r, req.SelectedAgeRange)
		}
		expr = fmt.Sprintf(
			`CASE WHEN %s AND (NOT (%s) OR %s) THEN 'C' ELSE 'L' END`,
			cellCond, landCond, ageCond,
		)
	}

	_, err := e.db.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET %s = %s`,
		schema.QuoteIdentifier(table), schema.QuoteIdentifier(sample.ColVType), expr,
	))
	return err
}

// createTyped materializes the rows of one landline/cell type into a
// derived table, replacing any leftover from a prior run.
func (e *Engine) createTyped(ctx context.Context, source, target, vtype string) error {
	if _, err := e.db.Exec(ctx, fmt.Sprintf(
		`DROP TABLE IF EXISTS %s`, schema.QuoteIdentifier(target),
	)); err != nil {
		return err
	}
	_, err := e.db.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE %s AS SELECT * FROM %s WHERE %s = $1`,
		schema.QuoteIdentifier(target), schema.QuoteIdentifier(source),
		schema.QuoteIdentifier(sample.ColVType),
	), vtype)
	return err
}

// stratify assigns every row to one of the fixed delivery batches,
// round-robin over a row ordering built from whichever demographic
// columns the table carries.
func (e *Engine) stratify(ctx context.Context, table string, available map[string]bool) error {
	if err := ensureColumn(ctx, e.db, table, sample.ColBatch, available); err != nil {
		return err
	}

	t := schema.QuoteIdentifier(table)
	sql := fmt.Sprintf(
		`UPDATE %s SET %s = b.batch::text
		 FROM (SELECT ctid AS rid, ((ROW_NUMBER() OVER (ORDER BY %s) - 1) %% %d + 1) AS batch FROM %s) b
		 WHERE %s.ctid = b.rid`,
		t, schema.QuoteIdentifier(sample.ColBatch),
		stratifyOrder(available), NumBatches, t, t,
	)
	_, err := e.db.Exec(ctx, sql)
	return err
}

// stratifyOrder builds the ORDER BY clause for batch assignment from
// the demographic columns present, falling back to physical order when
// none exist.
func stratifyOrder(available map[string]bool) string {
	var cols []string
	for _, name := range []string{sample.ColAgeRange, sample.ColGender, sample.ColParty, sample.ColRegion} {
		if available[name] {
			cols = append(cols, schema.QuoteIdentifier(name))
		}
	}
	if len(cols) == 0 {
		return "ctid"
	}
	return strings.Join(cols, ", ")
}

// buildSelection orders the output columns: the caller's selection
// (restricted to columns that exist on the table, directly or through a
// rename), then the bookkeeping columns. The computed contact column is
// appended at query time.
func buildSelection(selected []string, available map[string]bool, split bool, renames map[string]string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		if available[name] || available[renames[name]] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, h := range selected {
		add(strings.ToUpper(strings.TrimSpace(h)))
	}
	add(sample.ColSource)
	add(sample.ColBatch)
	if split {
		add(sample.ColVType)
	}
	return out
}

// selectExpr renders one selected column for the query. A re-included
// column reads its original table column aliased to the override name,
// the same way the contact column is aliased.
func selectExpr(name string, renames map[string]string, available map[string]bool) string {
	if src, ok := renames[name]; ok && !available[name] && available[src] {
		return schema.QuoteIdentifier(src) + " AS " + schema.QuoteIdentifier(name)
	}
	return schema.QuoteIdentifier(name)
}

// contactExpr resolves the computed contact-number column per row.
// Tarrance uses the boolean cell indicator; other clients use the row's
// type code when present, otherwise the request's fixed file type.
func contactExpr(req Request, available map[string]bool) string {
	land := "NULL"
	if available[sample.ColLand] {
		land = schema.QuoteIdentifier(sample.ColLand)
	}
	cell := "NULL"
	if available[sample.ColCell] {
		cell = schema.QuoteIdentifier(sample.ColCell)
	}

	switch {
	case req.ClientID == sample.ClientTarrance && available[sample.ColIsCell]:
		return fmt.Sprintf(
			`CASE WHEN UPPER(COALESCE(%s, '')) IN ('1', 'Y', 'T', 'TRUE') THEN %s ELSE %s END`,
			schema.QuoteIdentifier(sample.ColIsCell), cell, land,
		)
	case available[sample.ColVType]:
		return fmt.Sprintf(
			`CASE WHEN %s = 'C' THEN %s ELSE %s END`,
			schema.QuoteIdentifier(sample.ColVType), cell, land,
		)
	case strings.EqualFold(req.FileType, "C"):
		return cell
	default:
		return land
	}
}

// extractTable writes one table to a CSV file in the identity's
// directory and returns its descriptor.
func (e *Engine) extractTable(ctx context.Context, dir string, req Request, table, kind string, selection []string, available map[string]bool) (FileOutput, error) {
	filename := req.outputName(kind)
	path := filepath.Join(dir, filename)

	cols := make([]string, len(selection))
	for i, name := range selection {
		cols[i] = selectExpr(name, req.Renames, available)
	}
	headers := append(append([]string(nil), selection...), sample.ColContactNum)
	cols = append(cols, contactExpr(req, available)+" AS "+schema.QuoteIdentifier(sample.ColContactNum))

	query := fmt.Sprintf(`SELECT %s FROM %s`, strings.Join(cols, ", "), schema.QuoteIdentifier(table))
	records, err := e.writeQuery(ctx, query, headers, path)
	if err != nil {
		return FileOutput{}, fmt.Errorf("write %s: %w", filename, err)
	}

	return FileOutput{
		Kind:     kind,
		Filename: filename,
		URL:      "/api/extract/files/" + url.PathEscape(filename),
		Records:  records,
		Headers:  headers,
	}, nil
}

// writeQuery streams a query's rows into a BOM-prefixed CSV file.
func (e *Engine) writeQuery(ctx context.Context, query string, headers []string, path string) (int, error) {
	rows, err := e.db.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	w, err := NewWriter(f)
	if err != nil {
		return 0, err
	}
	if err := w.Write(headers); err != nil {
		return 0, err
	}

	records := 0
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return records, err
		}
		record := make([]string, len(values))
		for i, v := range values {
			record[i] = formatValue(v)
		}
		if err := w.Write(record); err != nil {
			return records, err
		}
		records++
	}
	if err := rows.Err(); err != nil {
		return records, err
	}
	if err := w.Flush(); err != nil {
		return records, err
	}
	return records, f.Close()
}

// outputName resolves the file name for an output kind, falling back to
// a table-derived default.
func (r Request) outputName(kind string) string {
	if name := r.FileNames[kind]; name != "" {
		return sanitizeFilename(name)
	}
	switch {
	case kind == "land":
		return r.TableName + "_LAND.csv"
	case kind == "cell":
		return r.TableName + "_CELL.csv"
	case strings.HasPrefix(kind, "dup"):
		base := strings.TrimSuffix(r.outputName("all"), ".csv")
		return base + "_DUP" + strings.TrimPrefix(kind, "dup") + ".csv"
	default:
		return r.TableName + ".csv"
	}
}

// sanitizeFilename strips path separators so a caller-supplied name can
// never escape the identity directory.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == ".." || name == "/" {
		return "extract.csv"
	}
	return name
}

// lockIdentity serializes extraction runs per identity.
func (e *Engine) lockIdentity(username string) func() {
	key := identityKey(username)

	e.mu.Lock()
	lock, ok := e.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[key] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// prepareDir wipes and recreates the identity's output directory.
func (e *Engine) prepareDir(username string) (string, error) {
	dir := filepath.Join(e.outDir, identityKey(username))
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear output directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	return dir, nil
}

// Dir returns the output directory for an identity without touching it.
// The download handler uses this to constrain file access.
func (e *Engine) Dir(username string) string {
	return filepath.Join(e.outDir, identityKey(username))
}

// identityKey reduces a username to a safe directory name.
func identityKey(username string) string {
	var b strings.Builder
	for _, r := range username {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "anonymous"
	}
	return b.String()
}

// ensureColumn adds a text column if missing and records it in the
// availability map.
func ensureColumn(ctx context.Context, db sample.DBTX, table, name string, available map[string]bool) error {
	if available[name] {
		return nil
	}
	sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s VARCHAR(500)",
		schema.QuoteIdentifier(table), schema.QuoteIdentifier(name))
	if _, err := db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("add column %s: %w", name, err)
	}
	available[name] = true
	return nil
}

// tableColumns returns the set of column names a table carries.
func tableColumns(ctx context.Context, db sample.DBTX, table string) (map[string]bool, error) {
	rows, err := db.Query(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_name = $1`, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

// notBlank builds a predicate testing that a text column holds a value.
func notBlank(col string) string {
	q := schema.QuoteIdentifier(col)
	return fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", q, q)
}

// formatValue renders a scanned value for CSV output; NULL becomes an
// empty field.
func formatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
