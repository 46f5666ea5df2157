// Package schema materializes normalized headers and rows into a stored
// sample table.
//
// Materialization is the one stage of the upload flow whose failure is
// fatal: a table that cannot be created and fully loaded is dropped so no
// partially usable table is left behind.
package schema

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fieldstone/samplehub/internal/sample"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MaxBaseNameLength bounds the sanitized base portion of a table name.
// PostgreSQL silently truncates identifiers to 63 bytes even when
// quoted, so base + timestamp qualifier + the longest derived-table
// suffix (_LAND, _CELL, _DUPn) must all fit within that limit or a
// derived name would fold onto the base table's.
const MaxBaseNameLength = 42

// tableTimestampLayout qualifies every table name with its creation time,
// which also keeps concurrent uploads from colliding on a name.
const tableTimestampLayout = "20060102150405"

// Result reports what a materialization produced, for caller bookkeeping
// (file registration, UI reporting).
type Result struct {
	TableName      string
	Columns        []sample.Column
	RowsInserted   int64
	ConstantsAdded []string
}

// Materializer creates and bulk-loads sample tables.
type Materializer struct {
	pool *pgxpool.Pool
}

// NewMaterializer returns a Materializer backed by the given pool.
func NewMaterializer(pool *pgxpool.Pool) *Materializer {
	return &Materializer{pool: pool}
}

// TableName generates a globally unique table name from a base
// identifier: sanitized to alphanumerics and underscores, capped at
// MaxBaseNameLength runes, prefixed when it would start with a digit, and
// qualified with a UTC timestamp.
func TableName(base string, now time.Time) string {
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	name := b.String()
	if name == "" {
		name = "SAMPLE"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "T" + name
	}
	if len(name) > MaxBaseNameLength {
		name = name[:MaxBaseNameLength]
	}
	return name + "_" + now.UTC().Format(tableTimestampLayout)
}

// Materialize creates the table for the merged header set, appends the
// six system constant columns, and bulk-loads all rows.
//
// Any failure drops the partially created table and propagates as a
// fatal error.
func (m *Materializer) Materialize(ctx context.Context, baseName string, columns []sample.Column, rows []sample.Row) (*Result, error) {
	if err := validateColumns(columns); err != nil {
		return nil, err
	}

	tableName := TableName(baseName, time.Now())

	// Append the system constants after the source columns. They are
	// always added, regardless of what the source files carried.
	final := make([]sample.Column, 0, len(columns)+6)
	final = append(final, columns...)
	constants := sample.ConstantColumns()
	constantNames := make([]string, 0, len(constants))
	for _, c := range constants {
		final = append(final, sample.Column{
			Name:           c.Name,
			Type:           sample.TypeText,
			SystemConstant: true,
		})
		constantNames = append(constantNames, c.Name)
	}

	if err := m.createTable(ctx, tableName, final); err != nil {
		return nil, fmt.Errorf("create table %s: %w", tableName, err)
	}

	inserted, err := m.bulkLoad(ctx, tableName, final, constants, rows)
	if err != nil {
		// Best effort cleanup; the load failure is what the caller needs.
		_, _ = m.pool.Exec(ctx, "DROP TABLE IF EXISTS "+QuoteIdentifier(tableName))
		return nil, fmt.Errorf("bulk load %s: %w", tableName, err)
	}

	return &Result{
		TableName:      tableName,
		Columns:        final,
		RowsInserted:   inserted,
		ConstantsAdded: constantNames,
	}, nil
}

func validateColumns(columns []sample.Column) error {
	if len(columns) == 0 {
		return fmt.Errorf("no columns to materialize")
	}
	seen := make(map[string]bool, len(columns))
	for _, col := range columns {
		if col.Name == "" {
			return fmt.Errorf("empty column name")
		}
		if seen[col.Name] {
			return fmt.Errorf("duplicate column %q", col.Name)
		}
		seen[col.Name] = true
	}
	return nil
}

func (m *Materializer) createTable(ctx context.Context, tableName string, columns []sample.Column) error {
	defs := make([]string, 0, len(columns))
	for _, col := range columns {
		defs = append(defs, QuoteIdentifier(col.Name)+" "+StorageType(col.Type))
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", QuoteIdentifier(tableName), strings.Join(defs, ", "))
	_, err := m.pool.Exec(ctx, ddl)
	return err
}

// bulkLoad inserts all rows via the COPY protocol. Constant columns get
// their fixed defaults on every row; all other values are coerced by
// declared type, with unparsable values loading as NULL.
func (m *Materializer) bulkLoad(ctx context.Context, tableName string, columns []sample.Column, constants []sample.ConstantColumn, rows []sample.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	defaults := make(map[string]string, len(constants))
	for _, c := range constants {
		defaults[c.Name] = c.Default
	}

	colNames := make([]string, len(columns))
	for i, col := range columns {
		colNames[i] = col.Name
	}

	source := pgx.CopyFromSlice(len(rows), func(i int) ([]interface{}, error) {
		row := rows[i]
		values := make([]interface{}, len(columns))
		for j, col := range columns {
			if def, ok := defaults[col.Name]; ok {
				values[j] = def
				continue
			}
			values[j] = Coerce(row[col.Name], col.Type)
		}
		return values, nil
	})

	return m.pool.CopyFrom(ctx, pgx.Identifier{tableName}, colNames, source)
}

// QuoteIdentifier safely quotes a SQL identifier by doubling embedded
// quotes. Table and column names here are derived from user uploads, so
// every dynamic statement must go through this.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
