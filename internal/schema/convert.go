package schema

// convert.go coerces raw string cells into typed values for bulk loading.
//
// Sample files are messy: numbers arrive with currency symbols and
// thousands separators, dates in half a dozen layouts, booleans as
// yes/no/1/0. Coercion is forgiving; a value that cannot be parsed for
// its declared type loads as NULL rather than failing the row.

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fieldstone/samplehub/internal/sample"
)

// numericRegex validates a numeric string after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would land more than this many years in the future are
// assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling.
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// StorageType maps a declared column type to its PostgreSQL storage type.
func StorageType(t sample.ColumnType) string {
	switch t {
	case sample.TypeInteger:
		return "BIGINT"
	case sample.TypeReal:
		return "DOUBLE PRECISION"
	case sample.TypeBoolean:
		return "BOOLEAN"
	case sample.TypeDate:
		return "TIMESTAMP"
	default:
		return "VARCHAR(500)"
	}
}

// Coerce converts a raw cell to the Go value inserted for the declared
// column type. Returns nil (NULL) for empty or unparsable input.
func Coerce(raw string, t sample.ColumnType) interface{} {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	switch t {
	case sample.TypeInteger:
		if n, ok := parseInteger(raw); ok {
			return n
		}
		return nil
	case sample.TypeReal:
		if f, ok := parseReal(raw); ok {
			return f
		}
		return nil
	case sample.TypeBoolean:
		if b, ok := parseBool(raw); ok {
			return b
		}
		return nil
	case sample.TypeDate:
		if d, ok := parseDate(raw); ok {
			return d
		}
		return nil
	default:
		return raw
	}
}

func parseInteger(s string) (int64, bool) {
	s = cleanNumeric(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Integer columns commonly carry "42.0" from spreadsheet exports.
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil && f == float64(int64(f)) {
			return int64(f), true
		}
		return 0, false
	}
	return n, true
}

func parseReal(s string) (float64, bool) {
	s = cleanNumeric(s)
	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// cleanNumeric strips currency symbols, thousands separators, and
// accounting-style parentheses for negatives.
func cleanNumeric(s string) string {
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if neg {
		s = "-" + s
	}
	return s
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

func parseDate(s string) (time.Time, bool) {
	// 4-digit year layouts first: unambiguous.
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// InferType guesses the column type from sampled values. A column is only
// promoted away from TEXT when every non-empty sample parses as the
// candidate type.
func InferType(values []string) sample.ColumnType {
	candidates := []sample.ColumnType{
		sample.TypeInteger,
		sample.TypeReal,
		sample.TypeBoolean,
		sample.TypeDate,
	}

	for _, candidate := range candidates {
		sampled := 0
		ok := true
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			sampled++
			if Coerce(v, candidate) == nil {
				ok = false
				break
			}
		}
		if ok && sampled > 0 {
			return candidate
		}
	}
	return sample.TypeText
}
