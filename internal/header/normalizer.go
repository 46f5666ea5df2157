// Package header normalizes raw column names from uploaded sample files.
//
// Normalization happens before any storage is touched: headers are
// sanitized, rewritten through persisted vendor/client mapping rules, and
// optionally overridden positionally by caller-supplied custom names.
package header

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/fieldstone/samplehub/internal/sample"
)

// Sanitize strips all whitespace from a header name and uppercases it.
// Empty input sanitizes to the empty string. Sanitize is idempotent.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// ApplyMappings rewrites each sanitized header through the highest
// precedence mapping rule matching the given vendor/client pair.
// Headers with no applicable rule pass through sanitized but unmapped.
func ApplyMappings(headers []string, rules []sample.MappingRule, vendorID, clientID int) []sample.Column {
	// Index the best applicable rule per sanitized original name.
	best := make(map[string]sample.MappingRule, len(rules))
	for _, rule := range rules {
		if rule.VendorID != 0 && rule.VendorID != vendorID {
			continue
		}
		if rule.ClientID != 0 && rule.ClientID != clientID {
			continue
		}
		key := Sanitize(rule.Original)
		if existing, ok := best[key]; !ok || rule.Specificity() > existing.Specificity() {
			best[key] = rule
		}
	}

	out := make([]sample.Column, 0, len(headers))
	for _, raw := range headers {
		name := Sanitize(raw)
		col := sample.Column{Name: name, Type: sample.TypeText}
		if rule, ok := best[name]; ok {
			col.Name = Sanitize(rule.Mapped)
			col.OriginalName = name
		}
		out = append(out, col)
	}
	return out
}

// ApplyCustomHeaders positionally renames the first len(custom) detected
// headers to the sanitized custom names. Detected headers beyond the
// custom list are kept, sanitized, and tagged with their original name so
// the source column remains traceable. The output never drops a detected
// column.
//
// Returns a validation error if any custom name sanitizes to the empty
// string.
func ApplyCustomHeaders(detected []string, custom []string) ([]sample.Column, error) {
	out := make([]sample.Column, 0, len(detected))
	for i, raw := range detected {
		sanitized := Sanitize(raw)
		if i < len(custom) {
			name := Sanitize(custom[i])
			if name == "" {
				return nil, fmt.Errorf("custom header %d is empty after sanitization", i+1)
			}
			out = append(out, sample.Column{
				Name:         name,
				Type:         sample.TypeText,
				OriginalName: sanitized,
			})
			continue
		}
		out = append(out, sample.Column{
			Name:         sanitized,
			Type:         sample.TypeText,
			OriginalName: sanitized,
		})
	}
	return out, nil
}

// Validate rejects header sets containing empty or duplicate names.
// The reported error names the offending position so callers can point
// the user at the exact file and column.
func Validate(cols []sample.Column) error {
	seen := make(map[string]int, len(cols))
	for i, col := range cols {
		if col.Name == "" {
			return fmt.Errorf("column %d sanitizes to an empty name", i+1)
		}
		if prev, dup := seen[col.Name]; dup {
			return fmt.Errorf("duplicate column %q at positions %d and %d", col.Name, prev+1, i+1)
		}
		seen[col.Name] = i
	}
	return nil
}
