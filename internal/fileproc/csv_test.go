package fileproc

import (
	"strings"
	"testing"
)

func TestCSVProcessor_Parse(t *testing.T) {
	input := "first name,Last Name,Phone Number\nAnn,Smith,(202) 555-1234\nBob,Jones,301.555.9876\n"

	parsed, err := NewCSVProcessor().Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantHeaders := []string{"first name", "Last Name", "Phone Number"}
	if len(parsed.Headers) != len(wantHeaders) {
		t.Fatalf("expected %d headers, got %d", len(wantHeaders), len(parsed.Headers))
	}
	for i, h := range wantHeaders {
		if parsed.Headers[i] != h {
			t.Errorf("header %d = %q, want %q", i, parsed.Headers[i], h)
		}
	}
	if len(parsed.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(parsed.Rows))
	}
}

func TestCSVProcessor_Parse_BOM(t *testing.T) {
	input := "\xEF\xBB\xBFname,phone\nAnn,2025551234\n"

	parsed, err := NewCSVProcessor().Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Headers[0] != "name" {
		t.Errorf("BOM not stripped: first header = %q", parsed.Headers[0])
	}
}

func TestCSVProcessor_Parse_Windows1252Fallback(t *testing.T) {
	// 0xE9 is "é" in Windows-1252 and invalid as a standalone UTF-8 byte.
	input := "name\nRen\xE9\n"

	parsed, err := NewCSVProcessor().Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(parsed.Rows))
	}
	if parsed.Rows[0][0] != "René" {
		t.Errorf("expected decoded René, got %q", parsed.Rows[0][0])
	}
}

func TestCSVProcessor_Parse_SkipsEmptyRows(t *testing.T) {
	input := "\n\nname,phone\nAnn,2025551234\n ,\n"

	parsed, err := NewCSVProcessor().Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Headers[0] != "name" {
		t.Errorf("leading empty rows not skipped: header = %q", parsed.Headers[0])
	}
	if len(parsed.Rows) != 1 {
		t.Errorf("expected trailing empty row dropped, got %d rows", len(parsed.Rows))
	}
}

func TestRegistry_ForFile(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		file    string
		wantErr bool
	}{
		{"sample.csv", false},
		{"sample.CSV", false},
		{"sample.xlsx", false},
		{"list.txt", false},
		{"sample.pdf", true},
		{"noext", true},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			_, err := reg.ForFile(tt.file)
			if (err != nil) != tt.wantErr {
				t.Errorf("ForFile(%q) error = %v, wantErr %v", tt.file, err, tt.wantErr)
			}
		})
	}
}
