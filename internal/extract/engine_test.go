package extract

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/fieldstone/samplehub/internal/sample"
)

func avail(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// ============================================================================
// CSV Serialization Tests
// ============================================================================

func TestWriter_QuoteEscapingRoundTrip(t *testing.T) {
	original := `O'Brien, Pat "PJ"`

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write([]string{original, "plain"}); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	out := buf.Bytes()
	if !bytes.HasPrefix(out, utf8BOM) {
		t.Error("output missing UTF-8 byte-order marker")
	}

	body := bytes.TrimPrefix(out, utf8BOM)
	if !strings.Contains(string(body), `""PJ""`) {
		t.Errorf("embedded quotes not doubled: %q", body)
	}

	records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if records[0][0] != original {
		t.Errorf("round trip = %q, want %q", records[0][0], original)
	}
}

func TestWriter_EmptyFieldStaysEmpty(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	w.Write([]string{"a", "", "c"})
	w.Flush()

	body := string(bytes.TrimPrefix(buf.Bytes(), utf8BOM))
	if strings.TrimSpace(body) != "a,,c" {
		t.Errorf("serialized = %q, want a,,c", strings.TrimSpace(body))
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{[]byte("y"), "y"},
		{int64(42), "42"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ============================================================================
// Selection Tests
// ============================================================================

func TestBuildSelection_AugmentsBookkeeping(t *testing.T) {
	available := avail("FIRSTNAME", "LASTNAME", sample.ColSource, sample.ColBatch, sample.ColVType)

	got := buildSelection([]string{"firstname", "LASTNAME", "MISSING"}, available, true, nil)

	want := []string{"FIRSTNAME", "LASTNAME", sample.ColSource, sample.ColBatch, sample.ColVType}
	if len(got) != len(want) {
		t.Fatalf("selection = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("selection[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBuildSelection_NoTypeColumnOutsideSplit(t *testing.T) {
	available := avail("A", sample.ColSource, sample.ColBatch, sample.ColVType)
	for _, col := range buildSelection([]string{"A"}, available, false, nil) {
		if col == sample.ColVType {
			t.Error("type column selected outside split mode")
		}
	}
}

func TestBuildSelection_KeepsReincludedColumn(t *testing.T) {
	// HHINCOME is the override name for the table's INCOME column; the
	// table itself only carries INCOME.
	available := avail("INCOME", sample.ColSource, sample.ColBatch)
	renames := map[string]string{"HHINCOME": "INCOME"}

	got := buildSelection([]string{"HHINCOME"}, available, false, renames)

	want := []string{"HHINCOME", sample.ColSource, sample.ColBatch}
	if len(got) != len(want) {
		t.Fatalf("selection = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("selection[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestSelectExpr_AliasesReincludedColumn(t *testing.T) {
	available := avail("INCOME", sample.ColSource)
	renames := map[string]string{"HHINCOME": "INCOME"}

	if got := selectExpr("HHINCOME", renames, available); got != `"INCOME" AS "HHINCOME"` {
		t.Errorf("renamed expr = %s", got)
	}
	if got := selectExpr(sample.ColSource, renames, available); got != `"SOURCE"` {
		t.Errorf("plain expr = %s", got)
	}
	// A rename whose target column already exists directly is left alone.
	direct := avail("HHINCOME", "INCOME")
	if got := selectExpr("HHINCOME", renames, direct); got != `"HHINCOME"` {
		t.Errorf("direct column expr = %s", got)
	}
}

func TestDupSelection_DropsBatchAddsRankColumns(t *testing.T) {
	available := avail(
		"FIRSTNAME", sample.ColSource, sample.ColBatch,
		"FIRSTNAME2", "IAGE2", "PARTY2",
	)

	got := dupSelection([]string{"FIRSTNAME"}, available, 2, nil)

	for _, col := range got {
		if col == sample.ColBatch {
			t.Error("batch id must not appear in duplicate-rank output")
		}
	}
	joined := strings.Join(got, ",")
	for _, want := range []string{"FIRSTNAME2", "IAGE2", "PARTY2"} {
		if !strings.Contains(joined, want) {
			t.Errorf("selection %v missing rank column %s", got, want)
		}
	}
	if strings.Contains(joined, "GENDER2") {
		t.Errorf("selection %v contains rank column absent from table", got)
	}
}

// ============================================================================
// Naming Tests
// ============================================================================

func TestOutputName(t *testing.T) {
	req := Request{
		TableName: "VOTERS_20260314092653",
		FileNames: map[string]string{"all": "delivery.csv"},
	}

	tests := []struct {
		kind string
		want string
	}{
		{"all", "delivery.csv"},
		{"land", "VOTERS_20260314092653_LAND.csv"},
		{"cell", "VOTERS_20260314092653_CELL.csv"},
		{"dup2", "delivery_DUP2.csv"},
		{"dup3", "delivery_DUP3.csv"},
	}
	for _, tt := range tests {
		if got := req.outputName(tt.kind); got != tt.want {
			t.Errorf("outputName(%s) = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"list.csv", "list.csv"},
		{"../../etc/passwd", "passwd"},
		{`..\..\secret.csv`, "secret.csv"},
		{"..", "extract.csv"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"jdoe", "jdoe"},
		{"j.doe@example.com", "jdoeexamplecom"},
		{"", "anonymous"},
		{"../..", "anonymous"},
	}
	for _, tt := range tests {
		if got := identityKey(tt.in); got != tt.want {
			t.Errorf("identityKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ============================================================================
// SQL Fragment Tests
// ============================================================================

func TestStratifyOrder(t *testing.T) {
	got := stratifyOrder(avail(sample.ColGender, sample.ColRegion))
	if got != `"GENDER", "REGION"` {
		t.Errorf("order = %q", got)
	}
	if got := stratifyOrder(avail()); got != "ctid" {
		t.Errorf("fallback order = %q, want ctid", got)
	}
}

func TestContactExpr(t *testing.T) {
	both := avail(sample.ColLand, sample.ColCell)

	tarrance := avail(sample.ColLand, sample.ColCell, sample.ColIsCell)
	expr := contactExpr(Request{ClientID: sample.ClientTarrance}, tarrance)
	if !strings.Contains(expr, `"ISCELL"`) {
		t.Errorf("tarrance contact expr should use the cell indicator: %s", expr)
	}

	typed := avail(sample.ColLand, sample.ColCell, sample.ColVType)
	expr = contactExpr(Request{ClientID: 1}, typed)
	if !strings.Contains(expr, `"VTYPE"`) {
		t.Errorf("typed contact expr should use the type code: %s", expr)
	}

	if got := contactExpr(Request{ClientID: 1, FileType: "c"}, both); got != `"CELL"` {
		t.Errorf("cell file type expr = %s", got)
	}
	if got := contactExpr(Request{ClientID: 1, FileType: "L"}, both); got != `"LAND"` {
		t.Errorf("landline file type expr = %s", got)
	}
}

func TestHouseholdRank(t *testing.T) {
	expr := householdRank(avail(sample.ColLand, sample.ColCell, sample.ColIAge))
	if !strings.Contains(expr, "COALESCE") || !strings.Contains(expr, "DESC NULLS LAST") {
		t.Errorf("rank expr = %s", expr)
	}

	expr = householdRank(avail(sample.ColCell))
	if !strings.Contains(expr, `PARTITION BY "CELL"`) || !strings.Contains(expr, "ctid") {
		t.Errorf("cell-only rank expr = %s", expr)
	}
}
