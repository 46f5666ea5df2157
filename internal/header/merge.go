package header

import (
	"strconv"

	"github.com/fieldstone/samplehub/internal/sample"
)

// NormalizedFile is one parsed file after header normalization, ready to
// be merged with its siblings.
type NormalizedFile struct {
	Name    string
	FileID  int
	Columns []sample.Column
	Rows    [][]string
}

// MergeResult is the combined header set and row set of an upload batch.
type MergeResult struct {
	Columns []sample.Column
	Rows    []sample.Row
}

// Merge combines one or more normalized files into a single header set
// and row set. When headers collide across files the first occurrence
// wins. Every row is stamped with its registered FILE id; once more than
// one file participates, rows additionally receive the source file name
// and a 1-based file index.
func Merge(files []NormalizedFile) MergeResult {
	multi := len(files) > 1

	var columns []sample.Column
	seen := make(map[string]bool)
	appendColumn := func(col sample.Column) {
		if seen[col.Name] {
			return
		}
		seen[col.Name] = true
		columns = append(columns, col)
	}

	for _, f := range files {
		for _, col := range f.Columns {
			appendColumn(col)
		}
	}
	appendColumn(sample.Column{Name: sample.ColFile, Type: sample.TypeInteger, SystemConstant: true})
	if multi {
		appendColumn(sample.Column{Name: sample.ColSourceFile, Type: sample.TypeText, SystemConstant: true})
		appendColumn(sample.Column{Name: sample.ColFileIndex, Type: sample.TypeInteger, SystemConstant: true})
	}

	var rows []sample.Row
	for idx, f := range files {
		for _, raw := range f.Rows {
			row := make(sample.Row, len(f.Columns)+3)
			for i, col := range f.Columns {
				if i < len(raw) {
					row[col.Name] = raw[i]
				}
			}
			row[sample.ColFile] = strconv.Itoa(f.FileID)
			if multi {
				row[sample.ColSourceFile] = f.Name
				row[sample.ColFileIndex] = strconv.Itoa(idx + 1)
			}
			rows = append(rows, row)
		}
	}

	return MergeResult{Columns: columns, Rows: rows}
}
