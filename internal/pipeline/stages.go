package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fieldstone/samplehub/internal/sample"
	"github.com/fieldstone/samplehub/internal/schema"
)

// PaddedColumns maps the numeric-as-text columns the padding stage
// zero-pads to their fixed widths.
var PaddedColumns = map[string]int{
	sample.ColRegion: 2,
	"CD":             2,
	"SD":             2,
	"HD":             3,
}

// Stages returns the canonical stage sequence. Order matters: later
// stages depend on columns written by earlier ones.
func Stages() []Stage {
	return []Stage{
		{
			Name:     "phone_format",
			Critical: true,
			Applies:  func(pc *Context) bool { return hasAnyPhoneColumn(pc) },
			Run:      runPhoneFormat,
		},
		{
			Name: "tarrance_routing",
			Applies: func(pc *Context) bool {
				return pc.ClientID == sample.ClientTarrance && pc.Has(sample.ColPhone)
			},
			Run: runTarranceRouting,
		},
		{
			Name: "party_derivation",
			Applies: func(pc *Context) bool {
				return pc.VendorID == sample.VendorRNC && pc.Has(sample.ColCalcParty)
			},
			Run: runPartyDerivation,
		},
		{
			Name: "date_normalization",
			Applies: func(pc *Context) bool {
				// Skipped silently when the source column is absent.
				return pc.VendorID == sample.VendorL2 && pc.Has(sample.ColRegDate)
			},
			Run: runDateNormalization,
		},
		{
			Name: "voter_frequency",
			Applies: func(pc *Context) bool {
				return pc.VendorID == sample.VendorRNC && len(presentHistoryColumns(pc)) > 0
			},
			Run: runVoterFrequency,
		},
		{
			Name:     "source_classification",
			Critical: true,
			Applies:  func(pc *Context) bool { return true },
			Run:      runSourceClassification,
		},
		{
			Name:     "dnc_scrub",
			Critical: true,
			Applies:  func(pc *Context) bool { return pc.Has(sample.ColLand) },
			Run:      runDNCScrub,
		},
		{
			Name: "age_derivation",
			Applies: func(pc *Context) bool {
				return pc.Has(sample.ColIAge) || pc.Has(sample.ColBirthYear)
			},
			Run: runAgeDerivation,
		},
		{
			Name:    "age_sentinel_rewrite",
			Applies: func(pc *Context) bool { return pc.Has(sample.ColIAge) },
			Run:     runAgeSentinelRewrite,
		},
		{
			Name: "age_range",
			Applies: func(pc *Context) bool {
				if !pc.Has(sample.ColIAge) {
					return false
				}
				// Tarrance deliveries may arrive with the range already
				// populated; leave it alone.
				if pc.Has(sample.ColAgeRange) && pc.ClientID == sample.ClientTarrance {
					return false
				}
				return true
			},
			Run: runAgeRange,
		},
		{
			Name:    "column_padding",
			Applies: func(pc *Context) bool { return len(presentPaddedColumns(pc)) > 0 },
			Run:     runColumnPadding,
		},
	}
}

func hasAnyPhoneColumn(pc *Context) bool {
	for _, col := range sample.PhoneColumns() {
		if pc.Has(col) {
			return true
		}
	}
	return false
}

func presentHistoryColumns(pc *Context) []string {
	var present []string
	for _, col := range sample.VoterHistoryColumns() {
		if pc.Has(col) {
			present = append(present, col)
		}
	}
	return present
}

func presentPaddedColumns(pc *Context) []string {
	var present []string
	for col := range PaddedColumns {
		if pc.Has(col) {
			present = append(present, col)
		}
	}
	return present
}

// ensureColumn adds a text column if the table does not already carry it
// and records it in the context.
func ensureColumn(ctx context.Context, db sample.DBTX, table, name string, pc *Context) error {
	if pc.Has(name) {
		return nil
	}
	sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s VARCHAR(500)",
		schema.QuoteIdentifier(table), schema.QuoteIdentifier(name))
	if _, err := db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("add column %s: %w", name, err)
	}
	pc.AddColumn(name)
	return nil
}

// notBlank builds a predicate testing that a text column holds a value.
func notBlank(col string) string {
	q := schema.QuoteIdentifier(col)
	return fmt.Sprintf("(%s IS NOT NULL AND %s <> '')", q, q)
}

// runPhoneFormat strips non-digits from every phone-bearing column and
// keeps the last 10 digits; values with no digits become NULL.
func runPhoneFormat(ctx context.Context, db sample.DBTX, table string, pc *Context) (int64, error) {
	var total int64
	for _, col := range sample.PhoneColumns() {
		if !pc.Has(col) {
			continue
		}
		q := schema.QuoteIdentifier(col)
		sql := fmt.Sprintf(
			`UPDATE %s SET %s = NULLIF(RIGHT(REGEXP_REPLACE(%s, '[^0-9]', '', 'g'), 10), '') WHERE %s IS NOT NULL`,
			schema.QuoteIdentifier(table), q, q, q,
		)
		tag, err := db.Exec(ctx, sql)
		if err != nil {
			return total, fmt.Errorf("format %s: %w", col, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// runTarranceRouting routes the single PHONE field into the landline or
// cell slot based on the boolean indicator column, then zero-pads the
// region code.
func runTarranceRouting(ctx context.Context, db sample.DBTX, table string, pc *Context) (int64, error) {
	for _, col := range []string{sample.ColLand, sample.ColCell} {
		if err := ensureColumn(ctx, db, table, col, pc); err != nil {
			return 0, err
		}
	}

	t := schema.QuoteIdentifier(table)
	phone := schema.QuoteIdentifier(sample.ColPhone)
	var total int64

	cellCond := "FALSE"
	if pc.Has(sample.ColIsCell) {
		cellCond = fmt.Sprintf("UPPER(COALESCE(%s, '')) IN ('1', 'Y', 'T', 'TRUE')",
			schema.QuoteIdentifier(sample.ColIsCell))
	}

	tag, err := db.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET %s = %s WHERE %s AND %s`,
		t, schema.QuoteIdentifier(sample.ColCell), phone, notBlank(sample.ColPhone), cellCond,
	))
	if err != nil {
		return total, fmt.Errorf("route cell: %w", err)
	}
	total += tag.RowsAffected()

	tag, err = db.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET %s = %s WHERE %s AND NOT (%s)`,
		t, schema.QuoteIdentifier(sample.ColLand), phone, notBlank(sample.ColPhone), cellCond,
	))
	if err != nil {
		return total, fmt.Errorf("route landline: %w", err)
	}
	total += tag.RowsAffected()

	if pc.Has(sample.ColRegion) {
		region := schema.QuoteIdentifier(sample.ColRegion)
		tag, err = db.Exec(ctx, fmt.Sprintf(
			`UPDATE %s SET %s = LPAD(%s, 2, '0') WHERE %s AND LENGTH(%s) < 2`,
			t, region, region, notBlank(sample.ColRegion), region,
		))
		if err != nil {
			return total, fmt.Errorf("pad region: %w", err)
		}
		total += tag.RowsAffected()
	}

	return total, nil
}

// runPartyDerivation maps the free-text party rollup onto the one-letter
// party column via the fixed keyword table.
func runPartyDerivation(ctx context.Context, db sample.DBTX, table string, pc *Context) (int64, error) {
	if err := ensureColumn(ctx, db, table, sample.ColParty, pc); err != nil {
		return 0, err
	}
	return DeriveParty(ctx, db, table)
}

// DeriveParty rewrites the party column from the rollup column, which
// must both exist. Distinct rollup values are mapped in Go, then written
// back per value; rollups are low-cardinality so this stays cheap.
// Extraction calls this directly when householding needs party codes on
// a table the vendor-gated stage never touched.
func DeriveParty(ctx context.Context, db sample.DBTX, table string) (int64, error) {
	t := schema.QuoteIdentifier(table)
	rollup := schema.QuoteIdentifier(sample.ColCalcParty)

	rows, err := db.Query(ctx, fmt.Sprintf(
		`SELECT DISTINCT %s FROM %s WHERE %s`, rollup, t, notBlank(sample.ColCalcParty),
	))
	if err != nil {
		return 0, fmt.Errorf("distinct rollups: %w", err)
	}
	values := make([]string, 0, 16)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan rollup: %w", err)
		}
		values = append(values, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var total int64
	party := schema.QuoteIdentifier(sample.ColParty)
	for _, v := range values {
		code, ok := MapParty(v)
		var arg interface{}
		if ok {
			arg = code
		}
		tag, err := db.Exec(ctx, fmt.Sprintf(
			`UPDATE %s SET %s = $1 WHERE %s = $2`, t, party, rollup,
		), arg, v)
		if err != nil {
			return total, fmt.Errorf("map party %q: %w", v, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// runDateNormalization rewrites L2's compact YYYYMMDD registration dates
// into MM/DD/YYYY. Values in any other shape are left untouched.
func runDateNormalization(ctx context.Context, db sample.DBTX, table string, pc *Context) (int64, error) {
	col := schema.QuoteIdentifier(sample.ColRegDate)
	tag, err := db.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET %s = TO_CHAR(TO_DATE(%s, 'YYYYMMDD'), 'MM/DD/YYYY') WHERE %s ~ '^\d{8}$'`,
		schema.QuoteIdentifier(table), col, col, col,
	))
	if err != nil {
		return 0, fmt.Errorf("normalize dates: %w", err)
	}
	return tag.RowsAffected(), nil
}

// runVoterFrequency derives the vote-count and most-recent-vote summary
// columns from whichever biennial history columns are present.
func runVoterFrequency(ctx context.Context, db sample.DBTX, table string, pc *Context) (int64, error) {
	present := presentHistoryColumns(pc)

	for _, col := range []string{sample.ColVFreq, sample.ColVRecent} {
		if err := ensureColumn(ctx, db, table, col, pc); err != nil {
			return 0, err
		}
	}

	terms := make([]string, len(present))
	recentCases := make([]string, len(present))
	for i, col := range present {
		terms[i] = fmt.Sprintf("(CASE WHEN %s THEN 1 ELSE 0 END)", notBlank(col))
		// History columns are named VH<yy>G; the year is the middle two
		// digits.
		year := "20" + strings.TrimSuffix(strings.TrimPrefix(col, "VH"), "G")
		recentCases[i] = fmt.Sprintf("WHEN %s THEN '%s'", notBlank(col), year)
	}

	sql := fmt.Sprintf(
		`UPDATE %s SET %s = (%s)::text, %s = CASE %s ELSE NULL END`,
		schema.QuoteIdentifier(table),
		schema.QuoteIdentifier(sample.ColVFreq), strings.Join(terms, " + "),
		schema.QuoteIdentifier(sample.ColVRecent), strings.Join(recentCases, " "),
	)
	tag, err := db.Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("derive voter frequency: %w", err)
	}
	return tag.RowsAffected(), nil
}

// runSourceClassification derives the tri-state contact-source column:
// L (landline only), C (cell only), B (both).
func runSourceClassification(ctx context.Context, db sample.DBTX, table string, pc *Context) (int64, error) {
	if err := ensureColumn(ctx, db, table, sample.ColSource, pc); err != nil {
		return 0, err
	}

	landCond := "FALSE"
	if pc.Has(sample.ColLand) {
		landCond = notBlank(sample.ColLand)
	}
	cellCond := "FALSE"
	if pc.Has(sample.ColCell) {
		cellCond = notBlank(sample.ColCell)
	}

	sql := fmt.Sprintf(
		`UPDATE %s SET %s = CASE
			WHEN %s AND %s THEN 'B'
			WHEN %s THEN 'L'
			WHEN %s THEN 'C'
			ELSE NULL
		END`,
		schema.QuoteIdentifier(table), schema.QuoteIdentifier(sample.ColSource),
		landCond, cellCond, landCond, cellCond,
	)
	tag, err := db.Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("classify source: %w", err)
	}
	return tag.RowsAffected(), nil
}

// runDNCScrub removes records whose only contact method is a listed
// landline and redacts the landline from records that also carry a cell,
// reclassifying them as cell-only.
func runDNCScrub(ctx context.Context, db sample.DBTX, table string, pc *Context) (int64, error) {
	t := schema.QuoteIdentifier(table)
	land := schema.QuoteIdentifier(sample.ColLand)
	source := schema.QuoteIdentifier(sample.ColSource)

	var total int64
	tag, err := db.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE %s = 'L' AND %s IN (SELECT phone_number FROM dnc_numbers)`,
		t, source, land,
	))
	if err != nil {
		return 0, fmt.Errorf("remove listed landline-only records: %w", err)
	}
	total += tag.RowsAffected()

	tag, err = db.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET %s = NULL, %s = 'C' WHERE %s = 'B' AND %s IN (SELECT phone_number FROM dnc_numbers)`,
		t, land, source, source, land,
	))
	if err != nil {
		return total, fmt.Errorf("redact listed landlines: %w", err)
	}
	total += tag.RowsAffected()

	return total, nil
}

// runAgeDerivation normalizes an existing age code column, or derives one
// from birth years when the table has no age code.
func runAgeDerivation(ctx context.Context, db sample.DBTX, table string, pc *Context) (int64, error) {
	if pc.Has(sample.ColIAge) {
		return normalizeAgeCodes(ctx, db, table)
	}
	return deriveAgeFromBirthYear(ctx, db, table, pc)
}

// normalizeAgeCodes rewrites every distinct age value through the
// two-digit code formatter. Values that do not parse as integers become
// NULL.
func normalizeAgeCodes(ctx context.Context, db sample.DBTX, table string) (int64, error) {
	t := schema.QuoteIdentifier(table)
	iage := schema.QuoteIdentifier(sample.ColIAge)

	rows, err := db.Query(ctx, fmt.Sprintf(
		`SELECT DISTINCT %s FROM %s WHERE %s`, iage, t, notBlank(sample.ColIAge),
	))
	if err != nil {
		return 0, fmt.Errorf("distinct ages: %w", err)
	}
	values := make([]string, 0, 128)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan age: %w", err)
		}
		values = append(values, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var total int64
	for _, v := range values {
		n, convErr := strconv.Atoi(strings.TrimSpace(v))
		var sql string
		args := []interface{}{}
		if convErr != nil {
			sql = fmt.Sprintf(`UPDATE %s SET %s = NULL WHERE %s = $1`, t, iage, iage)
			args = append(args, v)
		} else {
			formatted := FormatAgeCode(n)
			if formatted == v {
				continue
			}
			sql = fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE %s = $2`, t, iage, iage)
			args = append(args, formatted, v)
		}
		tag, err := db.Exec(ctx, sql, args...)
		if err != nil {
			return total, fmt.Errorf("normalize age %q: %w", v, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// deriveAgeFromBirthYear computes the age code from a birth year against
// the mode's reference year, capped at 99.
func deriveAgeFromBirthYear(ctx context.Context, db sample.DBTX, table string, pc *Context) (int64, error) {
	if err := ensureColumn(ctx, db, table, sample.ColIAge, pc); err != nil {
		return 0, err
	}

	refYear := ReferenceYear(pc.AgeMode)
	by := schema.QuoteIdentifier(sample.ColBirthYear)
	yearExpr := fmt.Sprintf(`NULLIF(REGEXP_REPLACE(%s::text, '[^0-9]', '', 'g'), '')`, by)

	sql := fmt.Sprintf(
		`UPDATE %s SET %s = LPAD(LEAST(GREATEST(%d - (%s)::int, 0), 99)::text, 2, '0')
		 WHERE %s ~ '^[0-9]{4}$'`,
		schema.QuoteIdentifier(table), schema.QuoteIdentifier(sample.ColIAge),
		refYear, yearExpr, yearExpr,
	)
	tag, err := db.Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("derive age from birth year: %w", err)
	}
	return tag.RowsAffected(), nil
}

// runAgeSentinelRewrite maps the legacy "-1" unknown-age sentinel to the
// "00" code.
func runAgeSentinelRewrite(ctx context.Context, db sample.DBTX, table string, pc *Context) (int64, error) {
	iage := schema.QuoteIdentifier(sample.ColIAge)
	tag, err := db.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET %s = '00' WHERE %s = '-1'`,
		schema.QuoteIdentifier(table), iage, iage,
	))
	if err != nil {
		return 0, fmt.Errorf("rewrite age sentinel: %w", err)
	}
	return tag.RowsAffected(), nil
}

// runAgeRange populates the bracket column from the two-digit age code.
func runAgeRange(ctx context.Context, db sample.DBTX, table string, pc *Context) (int64, error) {
	if err := ensureColumn(ctx, db, table, sample.ColAgeRange, pc); err != nil {
		return 0, err
	}

	iage := schema.QuoteIdentifier(sample.ColIAge)
	ageExpr := fmt.Sprintf(`NULLIF(REGEXP_REPLACE(COALESCE(%s, ''), '[^0-9]', '', 'g'), '')::int`, iage)

	var cases []string
	for _, br := range AgeBrackets() {
		if br.Max >= 0 {
			cases = append(cases, fmt.Sprintf("WHEN %s BETWEEN %d AND %d THEN '%s'", ageExpr, br.Min, br.Max, br.Code))
		} else {
			cases = append(cases, fmt.Sprintf("WHEN %s >= %d THEN '%s'", ageExpr, br.Min, br.Code))
		}
	}

	sql := fmt.Sprintf(
		`UPDATE %s SET %s = CASE %s ELSE '0' END`,
		schema.QuoteIdentifier(table), schema.QuoteIdentifier(sample.ColAgeRange),
		strings.Join(cases, " "),
	)
	tag, err := db.Exec(ctx, sql)
	if err != nil {
		return 0, fmt.Errorf("populate age range: %w", err)
	}
	return tag.RowsAffected(), nil
}

// runColumnPadding zero-pads the designated numeric-as-text columns to
// their fixed widths.
func runColumnPadding(ctx context.Context, db sample.DBTX, table string, pc *Context) (int64, error) {
	var total int64
	for _, col := range presentPaddedColumns(pc) {
		width := PaddedColumns[col]
		q := schema.QuoteIdentifier(col)
		tag, err := db.Exec(ctx, fmt.Sprintf(
			`UPDATE %s SET %s = LPAD(%s, %d, '0') WHERE %s AND LENGTH(%s) < %d`,
			schema.QuoteIdentifier(table), q, q, width, notBlank(col), q, width,
		))
		if err != nil {
			return total, fmt.Errorf("pad %s: %w", col, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
