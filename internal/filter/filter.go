// Package filter applies variable exclusion and inclusion rules to a
// header list and row set before extraction.
//
// A global exclusion set (by uppercase name) drops columns unless a
// per-project inclusion override re-admits them under a new name.
// Protected system columns are never dropped no matter what the
// exclusion set says.
package filter

import (
	"github.com/fieldstone/samplehub/internal/sample"
)

// Result reports what the filter kept and dropped. Callers must be able
// to show the user exactly which columns were removed and why.
type Result struct {
	Columns       []sample.Column
	Rows          []sample.Row
	ExcludedCount int
	ExcludedNames []string

	// Renamed maps original name to the inclusion-override name applied.
	Renamed map[string]string
}

// Apply filters the columns and re-projects the rows.
//
// Decision per column: protected system columns are kept unconditionally;
// excluded columns with an inclusion override are kept renamed; excluded
// columns without one are dropped and counted; everything else passes
// through unchanged.
func Apply(columns []sample.Column, rows []sample.Row, exclusions map[string]bool, inclusions map[string]string) *Result {
	protected := sample.ProtectedColumns()

	result := &Result{
		Renamed: make(map[string]string),
	}

	for _, col := range columns {
		switch {
		case protected[col.Name] || col.SystemConstant:
			result.Columns = append(result.Columns, col)
		case exclusions[col.Name]:
			if newName, ok := inclusions[col.Name]; ok {
				renamed := col
				renamed.OriginalName = col.Name
				renamed.Name = newName
				result.Columns = append(result.Columns, renamed)
				result.Renamed[col.Name] = newName
				continue
			}
			result.ExcludedCount++
			result.ExcludedNames = append(result.ExcludedNames, col.Name)
		default:
			result.Columns = append(result.Columns, col)
		}
	}

	keep := make(map[string]bool, len(result.Columns))
	for _, col := range result.Columns {
		keep[col.Name] = true
	}

	result.Rows = make([]sample.Row, len(rows))
	for i, row := range rows {
		projected := make(sample.Row, len(result.Columns))
		for name, value := range row {
			if newName, ok := result.Renamed[name]; ok {
				name = newName
			}
			if keep[name] {
				projected[name] = value
			}
		}
		result.Rows[i] = projected
	}

	return result
}
