package extract

import (
	"encoding/csv"
	"io"
)

// utf8BOM is prefixed to every extract file so spreadsheet tools open
// them with the right encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Writer serializes records as RFC 4180 CSV behind a UTF-8 byte-order
// marker. Fields containing separators, quotes, or line breaks are
// quoted with embedded quotes doubled; empty strings become empty
// fields.
type Writer struct {
	csv *csv.Writer
}

// NewWriter writes the BOM immediately and wraps w for record output.
func NewWriter(w io.Writer) (*Writer, error) {
	if _, err := w.Write(utf8BOM); err != nil {
		return nil, err
	}
	return &Writer{csv: csv.NewWriter(w)}, nil
}

// Write appends one record.
func (w *Writer) Write(record []string) error {
	return w.csv.Write(record)
}

// Flush drains buffered output and reports any deferred write error.
func (w *Writer) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}
