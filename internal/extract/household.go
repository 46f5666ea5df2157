package extract

import (
	"context"
	"fmt"
	"strconv"

	"github.com/fieldstone/samplehub/internal/pipeline"
	"github.com/fieldstone/samplehub/internal/sample"
	"github.com/fieldstone/samplehub/internal/schema"
)

// Duplicate-rank tables hold the second through fourth member of each
// household; anything beyond rank 4 is dropped with the delete below.
const maxHouseholdRank = 4

type dupTable struct {
	name string
	rank int
}

// household ranks co-resident individuals by shared phone number, moves
// ranks 2 through 4 into their own duplicate tables, and removes them
// from the base table. Empty rank tables are not kept.
//
// Party codes must exist before ranking; they are derived from the raw
// rollup column when only that is present.
func (e *Engine) household(ctx context.Context, table string, available map[string]bool) ([]dupTable, error) {
	if err := e.ensureParty(ctx, table, available); err != nil {
		return nil, err
	}
	if !available[sample.ColLand] && !available[sample.ColCell] {
		return nil, fmt.Errorf("table %s has no phone columns to household by", table)
	}

	rankExpr := householdRank(available)
	t := schema.QuoteIdentifier(table)

	var dups []dupTable
	for rank := 2; rank <= maxHouseholdRank; rank++ {
		name := table + "_DUP" + strconv.Itoa(rank)
		q := schema.QuoteIdentifier(name)

		if _, err := e.db.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, q)); err != nil {
			return nil, err
		}
		if _, err := e.db.Exec(ctx, fmt.Sprintf(
			`CREATE TABLE %s AS SELECT * FROM (SELECT *, %s AS hh_rank FROM %s) ranked WHERE hh_rank = %d`,
			q, rankExpr, t, rank,
		)); err != nil {
			return nil, fmt.Errorf("create rank-%d table: %w", rank, err)
		}

		var count int
		if err := e.db.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, q)).Scan(&count); err != nil {
			return nil, err
		}
		if count == 0 {
			if _, err := e.db.Exec(ctx, fmt.Sprintf(`DROP TABLE %s`, q)); err != nil {
				return nil, err
			}
			continue
		}

		// The rank marker is an implementation detail; keep the derived
		// table's schema identical to the base plus rank columns.
		if _, err := e.db.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s DROP COLUMN hh_rank`, q)); err != nil {
			return nil, err
		}
		dups = append(dups, dupTable{name: name, rank: rank})
	}

	// Secondary members now live in the duplicate tables; the base table
	// keeps one row per household.
	if _, err := e.db.Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE ctid IN (SELECT rid FROM (SELECT ctid AS rid, %s AS hh_rank FROM %s) ranked WHERE hh_rank >= 2)`,
		t, rankExpr, t,
	)); err != nil {
		return nil, fmt.Errorf("remove secondary household members: %w", err)
	}

	return dups, nil
}

// ensureParty guarantees a party column exists, deriving it from the
// rollup column when necessary.
func (e *Engine) ensureParty(ctx context.Context, table string, available map[string]bool) error {
	if available[sample.ColParty] {
		return nil
	}
	if !available[sample.ColCalcParty] {
		return fmt.Errorf("table %s has no party or party-rollup column", table)
	}
	if err := ensureColumn(ctx, e.db, table, sample.ColParty, available); err != nil {
		return err
	}
	if _, err := pipeline.DeriveParty(ctx, e.db, table); err != nil {
		return fmt.Errorf("derive party codes: %w", err)
	}
	return nil
}

// householdRank builds the ranking window: members sharing a phone
// number are ordered oldest first.
func householdRank(available map[string]bool) string {
	var key string
	switch {
	case available[sample.ColLand] && available[sample.ColCell]:
		key = fmt.Sprintf("COALESCE(NULLIF(%s, ''), %s)",
			schema.QuoteIdentifier(sample.ColLand), schema.QuoteIdentifier(sample.ColCell))
	case available[sample.ColLand]:
		key = schema.QuoteIdentifier(sample.ColLand)
	default:
		key = schema.QuoteIdentifier(sample.ColCell)
	}

	order := "ctid"
	if available[sample.ColIAge] {
		order = schema.QuoteIdentifier(sample.ColIAge) + " DESC NULLS LAST"
	}
	return fmt.Sprintf("ROW_NUMBER() OVER (PARTITION BY %s ORDER BY %s)", key, order)
}

// extractDup writes one duplicate-rank table using the request's column
// selection minus the batch id, plus whichever rank-specific name, age,
// gender, party, and frequency columns exist for that rank.
func (e *Engine) extractDup(ctx context.Context, dir string, req Request, dup dupTable) (FileOutput, error) {
	cols, err := tableColumns(ctx, e.db, dup.name)
	if err != nil {
		return FileOutput{}, err
	}
	selection := dupSelection(req.SelectedHeaders, cols, dup.rank, req.Renames)
	return e.extractTable(ctx, dir, req, dup.name, "dup"+strconv.Itoa(dup.rank), selection, cols)
}

func dupSelection(selected []string, available map[string]bool, rank int, renames map[string]string) []string {
	base := buildSelection(selected, available, false, renames)

	seen := make(map[string]bool, len(base))
	out := make([]string, 0, len(base))
	for _, c := range base {
		if c == sample.ColBatch {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}

	suffix := strconv.Itoa(rank)
	for _, name := range []string{
		sample.ColFirstName, sample.ColLastName, sample.ColIAge,
		sample.ColGender, sample.ColParty, sample.ColVFreq,
	} {
		col := name + suffix
		if available[col] && !seen[col] {
			seen[col] = true
			out = append(out, col)
		}
	}
	return out
}
