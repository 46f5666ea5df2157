package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/fieldstone/samplehub/internal/sample"
)

// partyKeywords maps rollup keywords to one-letter party codes, checked
// in order so "Modeled Republican" resolves before any broader match.
var partyKeywords = []struct {
	keyword string
	code    string
}{
	{"REPUBLICAN", "R"},
	{"GOP", "R"},
	{"DEMOCRAT", "D"},
	{"INDEPENDENT", "I"},
	{"OTHER", "I"},
	{"UNAFFILIATED", "I"},
	{"N/A", "U"},
	{"UNKNOWN", "U"},
}

// MapParty maps a free-text party-rollup value to one of R, D, I, U.
// Matching is case and whitespace insensitive. Unrecognized values
// return ok=false and load as NULL.
func MapParty(rollup string) (string, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(rollup))
	if normalized == "" {
		return "", false
	}
	for _, entry := range partyKeywords {
		if strings.Contains(normalized, entry.keyword) {
			return entry.code, true
		}
	}
	return "", false
}

// FormatAgeCode renders an age as the zero-padded 2-digit code:
// negative ages and zero collapse to "00", ages above 99 cap at "99".
func FormatAgeCode(age int) string {
	switch {
	case age <= 0:
		return "00"
	case age > 99:
		return "99"
	default:
		return fmt.Sprintf("%02d", age)
	}
}

// ReferenceDate returns the date ages are computed against for the given
// calculation mode: the current date, or the fixed January 1st of the
// current year.
func ReferenceDate(mode sample.AgeCalculationMode) time.Time {
	now := time.Now()
	if mode == sample.AgeModeJanuary1 {
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return now
}

// ReferenceYear is the year component of ReferenceDate; birth-year data
// only supports year-granularity age derivation.
func ReferenceYear(mode sample.AgeCalculationMode) int {
	return ReferenceDate(mode).Year()
}

// AgeBracket is one row of the age-range lookup table. Max of -1 means
// open-ended.
type AgeBracket struct {
	Min  int
	Max  int
	Code string
}

// AgeBrackets returns the fixed age-range lookup table.
func AgeBrackets() []AgeBracket {
	return []AgeBracket{
		{Min: 18, Max: 24, Code: "1"},
		{Min: 25, Max: 34, Code: "2"},
		{Min: 35, Max: 44, Code: "3"},
		{Min: 45, Max: 54, Code: "4"},
		{Min: 55, Max: 64, Code: "5"},
		{Min: 65, Max: -1, Code: "6"},
	}
}

// AgeRangeFor maps an age to its bracket code, "0" when outside every
// bracket.
func AgeRangeFor(age int) string {
	for _, br := range AgeBrackets() {
		if age < br.Min {
			continue
		}
		if br.Max < 0 || age <= br.Max {
			return br.Code
		}
	}
	return "0"
}
