// Package ingest orchestrates the upload flow: parse, normalize,
// materialize, post-process, and bind caller IDs, publishing progress
// along the way.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/fieldstone/samplehub/internal/callid"
	"github.com/fieldstone/samplehub/internal/fileproc"
	"github.com/fieldstone/samplehub/internal/header"
	"github.com/fieldstone/samplehub/internal/pipeline"
	"github.com/fieldstone/samplehub/internal/progress"
	"github.com/fieldstone/samplehub/internal/sample"
	"github.com/fieldstone/samplehub/internal/schema"
	"github.com/fieldstone/samplehub/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// totalSteps is the number of progress steps an upload publishes.
const totalSteps = 6

// typeSampleRows caps how many rows are scanned when inferring a
// column's type.
const typeSampleRows = 200

// textPinned lists the columns the SQL stages manipulate as character
// data (regex phone cleanup, zero-padding, code comparisons). They
// always materialize as text no matter what their values parse as.
var textPinned = func() map[string]bool {
	pinned := map[string]bool{
		sample.ColIsCell:   true,
		sample.ColIAge:     true,
		sample.ColAgeRange: true,
		sample.ColRegDate:  true,
	}
	for _, col := range sample.PhoneColumns() {
		pinned[col] = true
	}
	for col := range pipeline.PaddedColumns {
		pinned[col] = true
	}
	for _, col := range sample.VoterHistoryColumns() {
		pinned[col] = true
	}
	return pinned
}()

// ValidationError marks failures rejected before any side effect: bad
// form fields, unsupported files, malformed headers.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// Validationf builds a ValidationError.
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// UploadFile is one physical file in an upload request.
type UploadFile struct {
	Name string
	Data []byte
}

// UploadRequest carries everything the upload flow needs.
type UploadRequest struct {
	ProjectID       string
	RequestedFileID int
	VendorID        int
	ClientID        int
	AgeMode         sample.AgeCalculationMode
	SessionID       string

	// CustomHeaders positionally renames detected headers, keyed by
	// 0-based file index.
	CustomHeaders map[int][]string

	Files []UploadFile
}

// UploadResult is the upload endpoint's response payload.
type UploadResult struct {
	UploadID       string                    `json:"uploadId"`
	TableName      string                    `json:"tableName"`
	Columns        []sample.Column           `json:"columns"`
	RowsInserted   int64                     `json:"rowsInserted"`
	ConstantsAdded []string                  `json:"constantsAdded"`
	Registrations  []sample.FileRegistration `json:"registrations"`
	AgeRanges      []string                  `json:"ageRanges"`
	Pipeline       *pipeline.Report          `json:"pipeline"`
	Assignment     *callid.Assignment        `json:"assignment"`
}

// Service runs upload processing end to end.
type Service struct {
	pool     *pgxpool.Pool
	store    *store.Store
	files    *fileproc.Registry
	mat      *schema.Materializer
	runner   *pipeline.Runner
	assigner *callid.Client
	notifier *progress.Notifier
	logger   *slog.Logger
}

// NewService wires the upload flow. assigner may be nil when no
// assignment service is configured; CallID binding is then skipped.
func NewService(pool *pgxpool.Pool, st *store.Store, assigner *callid.Client, notifier *progress.Notifier, logger *slog.Logger) *Service {
	return &Service{
		pool:     pool,
		store:    st,
		files:    fileproc.NewRegistry(),
		mat:      schema.NewMaterializer(pool),
		runner:   pipeline.NewRunner(pool),
		assigner: assigner,
		notifier: notifier,
		logger:   logger,
	}
}

// DetectHeaders parses a single file and returns its sanitized header
// names with types inferred from the data. Nothing is persisted.
func (s *Service) DetectHeaders(name string, data []byte) ([]sample.Column, error) {
	proc, err := s.files.ForFile(name)
	if err != nil {
		return nil, Validationf("%v", err)
	}
	parsed, err := proc.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, Validationf("parse %s: %v", name, err)
	}

	out := make([]sample.Column, len(parsed.Headers))
	for i, h := range parsed.Headers {
		out[i] = sample.Column{Name: header.Sanitize(h), Type: sample.TypeText}
	}
	inferColumnTypes(out, parsed.Rows)
	return out, nil
}

// inferColumnTypes promotes columns from text to the type every sampled
// value parses as, skipping the pinned character-data columns.
func inferColumnTypes(cols []sample.Column, rows [][]string) {
	limit := len(rows)
	if limit > typeSampleRows {
		limit = typeSampleRows
	}
	for j := range cols {
		if textPinned[cols[j].Name] {
			continue
		}
		values := make([]string, 0, limit)
		for _, row := range rows[:limit] {
			if j < len(row) {
				values = append(values, row[j])
			}
		}
		cols[j].Type = schema.InferType(values)
	}
}

// Upload runs the full ingestion flow for one batch of files.
//
// Validation failures surface as ValidationError before any table is
// created. Materialization and critical pipeline failures abort with
// the partial pipeline report discarded. Non-critical pipeline stages
// and CallID binding never fail the upload.
func (s *Service) Upload(ctx context.Context, identity sample.Identity, req UploadRequest) (*UploadResult, error) {
	if req.ProjectID == "" {
		return nil, Validationf("project id is required")
	}
	if len(req.Files) == 0 {
		return nil, Validationf("no files uploaded")
	}
	if req.AgeMode == "" {
		req.AgeMode = sample.AgeModeCalendar
	}

	uploadID := uuid.NewString()
	logger := s.logger.With(
		slog.String("upload_id", uploadID),
		slog.String("project_id", req.ProjectID),
		slog.Int("vendor_id", req.VendorID),
		slog.Int("client_id", req.ClientID),
	)

	s.notifier.Step(req.SessionID, 1, totalSteps, "Parsing uploaded files")
	normalized, err := s.parseAndNormalize(ctx, req)
	if err != nil {
		s.notifier.Error(req.SessionID, err.Error())
		return nil, err
	}

	s.notifier.Step(req.SessionID, 2, totalSteps, "Merging headers")
	merged := header.Merge(normalized)

	s.notifier.Step(req.SessionID, 3, totalSteps, "Creating sample table")
	matResult, err := s.mat.Materialize(ctx, req.ProjectID, merged.Columns, merged.Rows)
	if err != nil {
		s.notifier.Error(req.SessionID, err.Error())
		return nil, fmt.Errorf("materialize: %w", err)
	}
	logger = logger.With(slog.String("table", matResult.TableName))
	logger.Info("sample table created", slog.Int64("rows", matResult.RowsInserted))

	s.notifier.Step(req.SessionID, 4, totalSteps, "Registering files")
	registrations, err := s.registerFiles(ctx, req, normalized, matResult.TableName)
	if err != nil {
		s.notifier.Error(req.SessionID, err.Error())
		return nil, err
	}

	s.notifier.Step(req.SessionID, 5, totalSteps, "Running post-processing")
	pc := pipelineContext(req, matResult.Columns)
	report, err := s.runner.Run(ctx, matResult.TableName, pc)
	if err != nil {
		s.notifier.Error(req.SessionID, err.Error())
		return nil, fmt.Errorf("post-processing: %w", err)
	}

	s.notifier.Step(req.SessionID, 6, totalSteps, "Binding caller IDs")
	var assignment *callid.Assignment
	if s.assigner != nil {
		assignment = s.assigner.Bind(ctx, matResult.TableName, req.ProjectID, req.ClientID, identity)
	}

	ageRanges, err := s.distinctAgeRanges(ctx, matResult.TableName, pc)
	if err != nil {
		// Informational only; the upload itself succeeded.
		logger.Warn("age range summary failed", slog.String("error", err.Error()))
	}

	s.notifier.Complete(req.SessionID, "Upload complete")
	logger.Info("upload complete", slog.Int("files", len(req.Files)))

	return &UploadResult{
		UploadID:       uploadID,
		TableName:      matResult.TableName,
		Columns:        matResult.Columns,
		RowsInserted:   matResult.RowsInserted,
		ConstantsAdded: matResult.ConstantsAdded,
		Registrations:  registrations,
		AgeRanges:      ageRanges,
		Pipeline:       report,
		Assignment:     assignment,
	}, nil
}

// parseAndNormalize turns every uploaded file into a normalized file
// with its registered id, applying mapping rules and per-file custom
// headers. Validation failures name the offending file.
func (s *Service) parseAndNormalize(ctx context.Context, req UploadRequest) ([]header.NormalizedFile, error) {
	out := make([]header.NormalizedFile, 0, len(req.Files))
	nextID := req.RequestedFileID

	for i, f := range req.Files {
		proc, err := s.files.ForFile(f.Name)
		if err != nil {
			return nil, Validationf("%s: %v", f.Name, err)
		}
		parsed, err := proc.Parse(bytes.NewReader(f.Data))
		if err != nil {
			return nil, Validationf("parse %s: %v", f.Name, err)
		}

		var cols []sample.Column
		if custom, ok := req.CustomHeaders[i]; ok {
			cols, err = header.ApplyCustomHeaders(parsed.Headers, custom)
			if err != nil {
				return nil, Validationf("%s: %v", f.Name, err)
			}
		} else {
			sanitized := make([]string, len(parsed.Headers))
			for j, h := range parsed.Headers {
				sanitized[j] = header.Sanitize(h)
			}
			rules, err := s.store.GetMappings(ctx, req.VendorID, req.ClientID, sanitized)
			if err != nil {
				return nil, fmt.Errorf("load mappings: %w", err)
			}
			cols = header.ApplyMappings(parsed.Headers, rules, req.VendorID, req.ClientID)
		}

		if err := header.Validate(cols); err != nil {
			return nil, Validationf("%s: %v", f.Name, err)
		}
		inferColumnTypes(cols, parsed.Rows)

		fileID, err := s.store.NextFileID(ctx, req.ProjectID, nextID)
		if err != nil {
			return nil, err
		}
		nextID = fileID + 1

		out = append(out, header.NormalizedFile{
			Name:    f.Name,
			FileID:  fileID,
			Columns: cols,
			Rows:    parsed.Rows,
		})
	}
	return out, nil
}

// registerFiles records where each physical file landed.
func (s *Service) registerFiles(ctx context.Context, req UploadRequest, files []header.NormalizedFile, tableName string) ([]sample.FileRegistration, error) {
	regs := make([]sample.FileRegistration, 0, len(files))
	for _, f := range files {
		reg := sample.FileRegistration{
			ProjectID:        req.ProjectID,
			FileID:           f.FileID,
			OriginalFilename: f.Name,
			TableName:        tableName,
		}
		if err := s.store.RegisterFile(ctx, reg); err != nil {
			return regs, err
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

// pipelineContext seeds the stage gating context with the table's
// materialized columns.
func pipelineContext(req UploadRequest, columns []sample.Column) *pipeline.Context {
	pc := &pipeline.Context{
		VendorID: req.VendorID,
		ClientID: req.ClientID,
		AgeMode:  req.AgeMode,
		Columns:  make(map[string]bool, len(columns)),
	}
	for _, col := range columns {
		pc.Columns[col.Name] = true
	}
	return pc
}

// distinctAgeRanges collects the distinct bracket codes present after
// post-processing, for the upload response.
func (s *Service) distinctAgeRanges(ctx context.Context, table string, pc *pipeline.Context) ([]string, error) {
	if !pc.Has(sample.ColAgeRange) {
		return nil, nil
	}

	col := schema.QuoteIdentifier(sample.ColAgeRange)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL AND %s <> '' ORDER BY %s`,
		col, schema.QuoteIdentifier(table), col, col, col,
	))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ranges []string
	for rows.Next() {
		var r string
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		ranges = append(ranges, r)
	}
	return ranges, rows.Err()
}
