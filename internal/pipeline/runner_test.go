package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/fieldstone/samplehub/internal/sample"
)

func always(*Context) bool { return true }
func never(*Context) bool  { return false }

func okStage(name string, rows int64) Stage {
	return Stage{
		Name:    name,
		Applies: always,
		Run: func(context.Context, sample.DBTX, string, *Context) (int64, error) {
			return rows, nil
		},
	}
}

func failStage(name string, critical bool) Stage {
	return Stage{
		Name:     name,
		Critical: critical,
		Applies:  always,
		Run: func(context.Context, sample.DBTX, string, *Context) (int64, error) {
			return 0, errors.New("boom")
		},
	}
}

func TestRunner_BestEffortContinues(t *testing.T) {
	ran := false
	r := &Runner{stages: []Stage{
		failStage("flaky", false),
		{
			Name:    "after",
			Applies: always,
			Run: func(context.Context, sample.DBTX, string, *Context) (int64, error) {
				ran = true
				return 1, nil
			},
		},
	}}

	report, err := r.Run(context.Background(), "t", newContext(1, 1))
	if err != nil {
		t.Fatalf("best-effort failure should not abort the run: %v", err)
	}
	if !ran {
		t.Error("stage after a best-effort failure did not run")
	}
	if report.AbortedAt != "" {
		t.Errorf("report aborted at %q, want empty", report.AbortedAt)
	}
	if report.Results[0].Error == "" {
		t.Error("failed stage result should carry the error")
	}
}

func TestRunner_CriticalAborts(t *testing.T) {
	ran := false
	r := &Runner{stages: []Stage{
		failStage("critical", true),
		{
			Name:    "after",
			Applies: always,
			Run: func(context.Context, sample.DBTX, string, *Context) (int64, error) {
				ran = true
				return 1, nil
			},
		},
	}}

	report, err := r.Run(context.Background(), "t", newContext(1, 1))
	if err == nil {
		t.Fatal("critical failure should surface as an error")
	}
	if ran {
		t.Error("stage after a critical failure must not run")
	}
	if report.AbortedAt != "critical" {
		t.Errorf("report aborted at %q, want critical", report.AbortedAt)
	}
}

func TestRunner_SkippedStagesRecorded(t *testing.T) {
	r := &Runner{stages: []Stage{
		{Name: "gated", Applies: never},
		okStage("applied", 3),
	}}

	report, err := r.Run(context.Background(), "t", newContext(1, 1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(report.Results))
	}
	if !report.Results[0].Skipped {
		t.Error("gated stage should be recorded as skipped")
	}
	if !report.Results[1].Applied || report.Results[1].RowsAffected != 3 {
		t.Errorf("applied stage result = %+v", report.Results[1])
	}
}
