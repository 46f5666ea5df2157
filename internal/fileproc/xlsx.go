package fileproc

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// XLSXProcessor parses Excel workbooks. Only the first sheet is read;
// vendors that deliver multi-sheet workbooks put the sample on sheet one.
type XLSXProcessor struct{}

// NewXLSXProcessor returns an XLSX processor.
func NewXLSXProcessor() *XLSXProcessor {
	return &XLSXProcessor{}
}

// Extensions implements Processor.
func (p *XLSXProcessor) Extensions() []string {
	return []string{".xlsx"}
}

// Parse implements Processor.
func (p *XLSXProcessor) Parse(r io.Reader) (*Parsed, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	return splitHeaderRows(rows), nil
}
