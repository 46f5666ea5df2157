package fileproc

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// utf8BOM is the byte-order mark Windows tools prepend to UTF-8 files.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVProcessor parses comma-separated sample files.
//
// Survey vendors deliver files in a mix of encodings: UTF-8 (with or
// without BOM) and Windows-1252 legacy exports. The processor strips a
// leading BOM and falls back to a Windows-1252 decode when the content is
// not valid UTF-8.
type CSVProcessor struct{}

// NewCSVProcessor returns a CSV processor.
func NewCSVProcessor() *CSVProcessor {
	return &CSVProcessor{}
}

// Extensions implements Processor.
func (p *CSVProcessor) Extensions() []string {
	return []string{".csv", ".txt"}
}

// Parse implements Processor. The first non-empty record is the header
// row; remaining records are data rows. Ragged rows are tolerated and
// padded or truncated later by name-based projection.
func (p *CSVProcessor) Parse(r io.Reader) (*Parsed, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	data = bytes.TrimPrefix(data, utf8BOM)

	if !utf8.Valid(data) {
		decoded, decErr := charmap.Windows1252.NewDecoder().Bytes(data)
		if decErr != nil {
			return nil, fmt.Errorf("decode windows-1252: %w", decErr)
		}
		data = decoded
	}

	reader := csv.NewReader(bufio.NewReader(bytes.NewReader(data)))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	return splitHeaderRows(records), nil
}

// splitHeaderRows separates the first non-empty record from the data rows
// and drops fully empty data rows.
func splitHeaderRows(records [][]string) *Parsed {
	parsed := &Parsed{}
	for _, rec := range records {
		if isEmptyRecord(rec) {
			continue
		}
		if parsed.Headers == nil {
			parsed.Headers = rec
			continue
		}
		parsed.Rows = append(parsed.Rows, rec)
	}
	return parsed
}

func isEmptyRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
