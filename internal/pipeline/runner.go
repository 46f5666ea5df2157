// Package pipeline runs the ordered enrichment stages against a
// materialized sample table.
//
// Stage applicability is data-driven: each stage declares a gate over the
// vendor/client context and the table's columns, and the runner walks the
// canonical stage list in order. Stage failures are non-fatal except for
// the stages marked critical, whose failure aborts the remainder of the
// run for that upload.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fieldstone/samplehub/internal/sample"
)

// Context carries the per-upload facts that gate and parameterize stages.
type Context struct {
	VendorID int
	ClientID int
	AgeMode  sample.AgeCalculationMode

	// Columns is the live set of column names on the table. Stages that
	// add columns record them here so later stages see them.
	Columns map[string]bool
}

// Has reports whether the table currently carries the named column.
func (c *Context) Has(name string) bool {
	return c.Columns[name]
}

// AddColumn records a column added by a stage.
func (c *Context) AddColumn(name string) {
	c.Columns[name] = true
}

// Stage is one enrichment operation against a sample table.
type Stage struct {
	Name     string
	Critical bool

	// Applies gates the stage on vendor/client identity and column
	// presence. A stage that does not apply is recorded as skipped.
	Applies func(*Context) bool

	// Run mutates the table in place and returns the rows it touched.
	Run func(ctx context.Context, db sample.DBTX, table string, pc *Context) (int64, error)
}

// StageResult reports the outcome of one stage.
type StageResult struct {
	Stage        string `json:"stage"`
	Applied      bool   `json:"applied"`
	Skipped      bool   `json:"skipped"`
	RowsAffected int64  `json:"rowsAffected"`
	Error        string `json:"error,omitempty"`
}

// Report aggregates the outcomes of a pipeline run.
type Report struct {
	Table   string        `json:"table"`
	Results []StageResult `json:"results"`

	// AbortedAt names the critical stage whose failure stopped the run,
	// empty if the run completed.
	AbortedAt string `json:"abortedAt,omitempty"`
}

// Runner executes the canonical stage sequence.
type Runner struct {
	db     sample.DBTX
	stages []Stage
}

// NewRunner returns a Runner over the canonical stage list.
func NewRunner(db sample.DBTX) *Runner {
	return &Runner{db: db, stages: Stages()}
}

// Run executes all applicable stages in order against the table.
//
// Best-effort stages log their failure and the run continues; a critical
// stage failure aborts the remaining stages and is returned as the error
// alongside the partial report.
func (r *Runner) Run(ctx context.Context, table string, pc *Context) (*Report, error) {
	report := &Report{Table: table}
	logger := slog.With("table", table, "vendor_id", pc.VendorID, "client_id", pc.ClientID)

	for _, stage := range r.stages {
		if !stage.Applies(pc) {
			report.Results = append(report.Results, StageResult{Stage: stage.Name, Skipped: true})
			continue
		}

		rows, err := stage.Run(ctx, r.db, table, pc)
		result := StageResult{Stage: stage.Name, Applied: true, RowsAffected: rows}
		if err != nil {
			result.Error = err.Error()
			result.Applied = false
		}
		report.Results = append(report.Results, result)

		if err == nil {
			logger.Debug("stage complete", "stage", stage.Name, "rows", rows)
			continue
		}

		if stage.Critical {
			report.AbortedAt = stage.Name
			logger.Error("critical stage failed, aborting pipeline", "stage", stage.Name, "error", err)
			return report, fmt.Errorf("stage %s: %w", stage.Name, err)
		}

		logger.Warn("stage failed, continuing", "stage", stage.Name, "error", err)
	}

	return report, nil
}
