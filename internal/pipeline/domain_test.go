package pipeline

import (
	"testing"

	"github.com/fieldstone/samplehub/internal/sample"
)

// ============================================================================
// Party Mapper Tests
// ============================================================================

func TestMapParty(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"Modeled Republican", "R", true},
		{"Democrat", "D", true},
		{"Independent/Other", "I", true},
		{"N/A", "U", true},
		{"  democrat  ", "D", true},
		{"STRONG GOP", "R", true},
		{"Whig", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := MapParty(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("MapParty(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("MapParty(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// ============================================================================
// Age Code Tests
// ============================================================================

func TestFormatAgeCode(t *testing.T) {
	tests := []struct {
		age  int
		want string
	}{
		{-1, "00"},
		{0, "00"},
		{9, "09"},
		{25, "25"},
		{99, "99"},
		{150, "99"},
	}

	for _, tt := range tests {
		if got := FormatAgeCode(tt.age); got != tt.want {
			t.Errorf("FormatAgeCode(%d) = %q, want %q", tt.age, got, tt.want)
		}
	}
}

func TestAgeRangeFor(t *testing.T) {
	tests := []struct {
		age  int
		want string
	}{
		{17, "0"},
		{18, "1"},
		{24, "1"},
		{25, "2"},
		{44, "3"},
		{54, "4"},
		{64, "5"},
		{65, "6"},
		{99, "6"},
		{0, "0"},
	}

	for _, tt := range tests {
		if got := AgeRangeFor(tt.age); got != tt.want {
			t.Errorf("AgeRangeFor(%d) = %q, want %q", tt.age, got, tt.want)
		}
	}
}

// ============================================================================
// Stage Gating Tests
// ============================================================================

func newContext(vendorID, clientID int, columns ...string) *Context {
	pc := &Context{
		VendorID: vendorID,
		ClientID: clientID,
		AgeMode:  sample.AgeModeCalendar,
		Columns:  make(map[string]bool),
	}
	for _, c := range columns {
		pc.Columns[c] = true
	}
	return pc
}

func stageByName(t *testing.T, name string) Stage {
	t.Helper()
	for _, s := range Stages() {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("stage %s not found", name)
	return Stage{}
}

func TestStageGating(t *testing.T) {
	tests := []struct {
		name    string
		stage   string
		pc      *Context
		applies bool
	}{
		{"phone format with land", "phone_format", newContext(1, 1, sample.ColLand), true},
		{"phone format without phones", "phone_format", newContext(1, 1, "NAME"), false},
		{"tarrance routing for tarrance", "tarrance_routing", newContext(1, sample.ClientTarrance, sample.ColPhone), true},
		{"tarrance routing other client", "tarrance_routing", newContext(1, 99, sample.ColPhone), false},
		{"party derivation for rnc", "party_derivation", newContext(sample.VendorRNC, 1, sample.ColCalcParty), true},
		{"party derivation other vendor", "party_derivation", newContext(99, 1, sample.ColCalcParty), false},
		{"date normalization for l2", "date_normalization", newContext(sample.VendorL2, 1, sample.ColRegDate), true},
		{"date normalization absent column skips silently", "date_normalization", newContext(sample.VendorL2, 1), false},
		{"voter frequency needs history columns", "voter_frequency", newContext(sample.VendorRNC, 1), false},
		{"voter frequency with history", "voter_frequency", newContext(sample.VendorRNC, 1, "VH22G"), true},
		{"source classification always", "source_classification", newContext(1, 1), true},
		{"age derivation with birth year", "age_derivation", newContext(1, 1, sample.ColBirthYear), true},
		{"age derivation without age data", "age_derivation", newContext(1, 1), false},
		{"age range pre-populated for tarrance", "age_range", newContext(1, sample.ClientTarrance, sample.ColIAge, sample.ColAgeRange), false},
		{"age range pre-populated other client", "age_range", newContext(1, 1, sample.ColIAge, sample.ColAgeRange), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := stageByName(t, tt.stage)
			if got := stage.Applies(tt.pc); got != tt.applies {
				t.Errorf("%s.Applies() = %v, want %v", tt.stage, got, tt.applies)
			}
		})
	}
}

func TestStageOrder(t *testing.T) {
	want := []string{
		"phone_format",
		"tarrance_routing",
		"party_derivation",
		"date_normalization",
		"voter_frequency",
		"source_classification",
		"dnc_scrub",
		"age_derivation",
		"age_sentinel_rewrite",
		"age_range",
		"column_padding",
	}

	stages := Stages()
	if len(stages) != len(want) {
		t.Fatalf("expected %d stages, got %d", len(want), len(stages))
	}
	for i, name := range want {
		if stages[i].Name != name {
			t.Errorf("stage %d = %s, want %s", i, stages[i].Name, name)
		}
	}
}

func TestCriticalStages(t *testing.T) {
	critical := map[string]bool{
		"phone_format":          true,
		"source_classification": true,
		"dnc_scrub":             true,
	}

	for _, stage := range Stages() {
		if stage.Critical != critical[stage.Name] {
			t.Errorf("stage %s critical = %v, want %v", stage.Name, stage.Critical, critical[stage.Name])
		}
	}
}
