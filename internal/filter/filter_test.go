package filter

import (
	"testing"

	"github.com/fieldstone/samplehub/internal/sample"
)

func cols(names ...string) []sample.Column {
	out := make([]sample.Column, len(names))
	for i, n := range names {
		out[i] = sample.Column{Name: n, Type: sample.TypeText}
	}
	return out
}

func names(columns []sample.Column) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.Name
	}
	return out
}

func TestApply_DropsExcluded(t *testing.T) {
	result := Apply(
		cols("FIRSTNAME", "SSN", "LAND"),
		[]sample.Row{{"FIRSTNAME": "Ann", "SSN": "123", "LAND": "2025551234"}},
		map[string]bool{"SSN": true},
		nil,
	)

	got := names(result.Columns)
	if len(got) != 2 || got[0] != "FIRSTNAME" || got[1] != "LAND" {
		t.Errorf("kept columns = %v, want [FIRSTNAME LAND]", got)
	}
	if result.ExcludedCount != 1 {
		t.Errorf("excluded count = %d, want 1", result.ExcludedCount)
	}
	if len(result.ExcludedNames) != 1 || result.ExcludedNames[0] != "SSN" {
		t.Errorf("excluded names = %v, want [SSN]", result.ExcludedNames)
	}
	if _, present := result.Rows[0]["SSN"]; present {
		t.Error("dropped column value still present in projected row")
	}
}

func TestApply_InclusionOverrideRenames(t *testing.T) {
	result := Apply(
		cols("INCOME"),
		[]sample.Row{{"INCOME": "50000"}},
		map[string]bool{"INCOME": true},
		map[string]string{"INCOME": "HH_INCOME"},
	)

	if result.ExcludedCount != 0 {
		t.Errorf("inclusion override should rename, not drop: excluded = %d", result.ExcludedCount)
	}
	if len(result.Columns) != 1 || result.Columns[0].Name != "HH_INCOME" {
		t.Fatalf("columns = %v, want [HH_INCOME]", names(result.Columns))
	}
	if result.Columns[0].OriginalName != "INCOME" {
		t.Errorf("renamed column should keep original name, got %q", result.Columns[0].OriginalName)
	}
	if result.Rows[0]["HH_INCOME"] != "50000" {
		t.Errorf("row not re-projected through rename: %v", result.Rows[0])
	}
}

func TestApply_ProtectedColumnsImmune(t *testing.T) {
	protected := []string{sample.ColFile, sample.ColSourceFile, sample.ColFileIndex}

	exclusions := make(map[string]bool)
	for _, name := range protected {
		exclusions[name] = true
	}

	result := Apply(cols(protected...), nil, exclusions, nil)

	if len(result.Columns) != len(protected) {
		t.Fatalf("protected columns dropped: kept %v", names(result.Columns))
	}
	if result.ExcludedCount != 0 {
		t.Errorf("excluded count = %d, want 0", result.ExcludedCount)
	}
}

func TestApply_SystemConstantsImmune(t *testing.T) {
	columns := []sample.Column{{Name: sample.ColCIDL1, Type: sample.TypeText, SystemConstant: true}}

	result := Apply(columns, nil, map[string]bool{sample.ColCIDL1: true}, nil)

	if len(result.Columns) != 1 {
		t.Fatal("system constant column was dropped by exclusion rule")
	}
}

func TestApply_PassThroughUnchanged(t *testing.T) {
	result := Apply(
		cols("A", "B"),
		[]sample.Row{{"A": "1", "B": "2"}},
		map[string]bool{"C": true},
		nil,
	)

	if len(result.Columns) != 2 {
		t.Fatalf("unexcluded columns altered: %v", names(result.Columns))
	}
	if result.Rows[0]["A"] != "1" || result.Rows[0]["B"] != "2" {
		t.Errorf("row values altered: %v", result.Rows[0])
	}
}
