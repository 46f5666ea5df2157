package schema

import (
	"strings"
	"testing"
	"time"

	"github.com/fieldstone/samplehub/internal/sample"
)

// ============================================================================
// TableName Tests
// ============================================================================

func TestTableName(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		name string
		base string
		want string
	}{
		{"plain", "voters", "voters_20260314092653"},
		{"strips punctuation", "my sample! (final)", "mysamplefinal_20260314092653"},
		{"leading digit prefixed", "2026list", "T2026list_20260314092653"},
		{"empty falls back", "!!!", "SAMPLE_20260314092653"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TableName(tt.base, now)
			if got != tt.want {
				t.Errorf("TableName(%q) = %q, want %q", tt.base, got, tt.want)
			}
		})
	}
}

func TestTableName_CapsBaseLength(t *testing.T) {
	base := strings.Repeat("a", 80)
	got := TableName(base, time.Now())

	idx := strings.LastIndex(got, "_")
	if idx != MaxBaseNameLength {
		t.Errorf("base portion length = %d, want %d", idx, MaxBaseNameLength)
	}
}

func TestTableName_DerivedNamesFitIdentifierLimit(t *testing.T) {
	// The split and householding tables append suffixes to the table
	// name. If the suffixed name passed 63 bytes PostgreSQL would fold
	// it back onto the base table's identifier, and the derived table's
	// DROP/CREATE would hit the base table instead.
	name := TableName(strings.Repeat("A", 80), time.Now())

	for _, suffix := range []string{"_LAND", "_CELL", "_DUP2", "_DUP3", "_DUP4"} {
		if n := len(name + suffix); n > 63 {
			t.Errorf("%s%s is %d bytes, exceeds the 63-byte identifier limit", name, suffix, n)
		}
	}
}

func TestTableName_UniquePerTimestamp(t *testing.T) {
	a := TableName("voters", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := TableName("voters", time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	if a == b {
		t.Errorf("expected distinct names for distinct timestamps, both %q", a)
	}
}

// ============================================================================
// StorageType Tests
// ============================================================================

func TestStorageType(t *testing.T) {
	tests := []struct {
		colType sample.ColumnType
		want    string
	}{
		{sample.TypeInteger, "BIGINT"},
		{sample.TypeReal, "DOUBLE PRECISION"},
		{sample.TypeBoolean, "BOOLEAN"},
		{sample.TypeDate, "TIMESTAMP"},
		{sample.TypeText, "VARCHAR(500)"},
		{sample.ColumnType("UNKNOWN"), "VARCHAR(500)"},
	}

	for _, tt := range tests {
		if got := StorageType(tt.colType); got != tt.want {
			t.Errorf("StorageType(%s) = %q, want %q", tt.colType, got, tt.want)
		}
	}
}

// ============================================================================
// Coerce Tests
// ============================================================================

func TestCoerce_Integer(t *testing.T) {
	tests := []struct {
		input string
		want  interface{}
	}{
		{"42", int64(42)},
		{"1,234", int64(1234)},
		{"42.0", int64(42)},
		{"(5)", int64(-5)},
		{"", nil},
		{"abc", nil},
		{"4.5", nil},
	}

	for _, tt := range tests {
		got := Coerce(tt.input, sample.TypeInteger)
		if got != tt.want {
			t.Errorf("Coerce(%q, INTEGER) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestCoerce_Real(t *testing.T) {
	tests := []struct {
		input string
		want  interface{}
	}{
		{"4.5", 4.5},
		{"$1,234.50", 1234.5},
		{"(2.5)", -2.5},
		{"not a number", nil},
		{"", nil},
	}

	for _, tt := range tests {
		got := Coerce(tt.input, sample.TypeReal)
		if got != tt.want {
			t.Errorf("Coerce(%q, REAL) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestCoerce_Boolean(t *testing.T) {
	trues := []string{"true", "T", "yes", "Y", "1"}
	for _, in := range trues {
		if got := Coerce(in, sample.TypeBoolean); got != true {
			t.Errorf("Coerce(%q, BOOLEAN) = %v, want true", in, got)
		}
	}
	falses := []string{"false", "F", "no", "N", "0"}
	for _, in := range falses {
		if got := Coerce(in, sample.TypeBoolean); got != false {
			t.Errorf("Coerce(%q, BOOLEAN) = %v, want false", in, got)
		}
	}
	if got := Coerce("maybe", sample.TypeBoolean); got != nil {
		t.Errorf("Coerce(maybe, BOOLEAN) = %v, want nil", got)
	}
}

func TestCoerce_Date(t *testing.T) {
	got := Coerce("2026-03-14", sample.TypeDate)
	d, ok := got.(time.Time)
	if !ok {
		t.Fatalf("Coerce date returned %T, want time.Time", got)
	}
	if d.Year() != 2026 || d.Month() != time.March || d.Day() != 14 {
		t.Errorf("parsed date = %v, want 2026-03-14", d)
	}

	if got := Coerce("13/45/2020", sample.TypeDate); got != nil {
		t.Errorf("invalid date should coerce to nil, got %v", got)
	}
}

func TestCoerce_TwoDigitYearPivot(t *testing.T) {
	got := Coerce("1/2/46", sample.TypeDate)
	d, ok := got.(time.Time)
	if !ok {
		t.Fatalf("Coerce date returned %T, want time.Time", got)
	}
	if d.Year() != 1946 {
		t.Errorf("pivot year = %d, want 1946", d.Year())
	}
}

// ============================================================================
// InferType Tests
// ============================================================================

func TestInferType(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   sample.ColumnType
	}{
		{"integers", []string{"1", "42", ""}, sample.TypeInteger},
		{"reals", []string{"1.5", "2.25"}, sample.TypeReal},
		{"booleans", []string{"yes", "no"}, sample.TypeBoolean},
		{"dates", []string{"2026-01-02", "3/4/2025"}, sample.TypeDate},
		{"mixed falls back to text", []string{"42", "apple"}, sample.TypeText},
		{"all empty", []string{"", " "}, sample.TypeText},
		{"none", nil, sample.TypeText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InferType(tt.values)
			if got != tt.want {
				t.Errorf("InferType(%v) = %s, want %s", tt.values, got, tt.want)
			}
		})
	}
}
