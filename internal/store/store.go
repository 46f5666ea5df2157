// Package store persists the bookkeeping that surrounds sample tables:
// file registrations, header mapping rules, variable exclusion and
// inclusion rules, and the do-not-call list.
//
// The sample tables themselves are dynamic and owned by the schema and
// pipeline packages; everything here is fixed-schema.
package store

import (
	"context"
	"fmt"

	"github.com/fieldstone/samplehub/internal/sample"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides access to the fixed bookkeeping tables.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the bookkeeping tables if they do not exist.
// Called once at startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS file_registrations (
			id BIGSERIAL PRIMARY KEY,
			project_id TEXT NOT NULL,
			file_id BIGINT NOT NULL,
			original_filename TEXT NOT NULL,
			table_name TEXT NOT NULL,
			registered_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (project_id, file_id)
		)`,
		`CREATE TABLE IF NOT EXISTS header_mappings (
			id BIGSERIAL PRIMARY KEY,
			original TEXT NOT NULL,
			mapped TEXT NOT NULL,
			vendor_id BIGINT NOT NULL DEFAULT 0,
			client_id BIGINT NOT NULL DEFAULT 0,
			UNIQUE (original, vendor_id, client_id)
		)`,
		`CREATE TABLE IF NOT EXISTS variable_exclusions (
			name TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS project_inclusions (
			project_id TEXT NOT NULL,
			excluded_name TEXT NOT NULL,
			new_name TEXT NOT NULL,
			PRIMARY KEY (project_id, excluded_name)
		)`,
		`CREATE TABLE IF NOT EXISTS dnc_numbers (
			phone_number TEXT PRIMARY KEY
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// RegisterFile records which table an uploaded physical file landed in.
func (s *Store) RegisterFile(ctx context.Context, reg sample.FileRegistration) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO file_registrations (project_id, file_id, original_filename, table_name)
		 VALUES ($1, $2, $3, $4)`,
		reg.ProjectID, reg.FileID, reg.OriginalFilename, reg.TableName,
	)
	if err != nil {
		return fmt.Errorf("register file %s: %w", reg.OriginalFilename, err)
	}
	return nil
}

// NextFileID returns the requested file id if it is free for the project,
// otherwise the next id above the project's current maximum.
func (s *Store) NextFileID(ctx context.Context, projectID string, requested int) (int, error) {
	if requested > 0 {
		var taken bool
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM file_registrations WHERE project_id = $1 AND file_id = $2)`,
			projectID, requested,
		).Scan(&taken)
		if err != nil {
			return 0, fmt.Errorf("check file id: %w", err)
		}
		if !taken {
			return requested, nil
		}
	}

	var max int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(file_id), 0) FROM file_registrations WHERE project_id = $1`,
		projectID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("next file id: %w", err)
	}
	return max + 1, nil
}

// ListRegistrations returns all file registrations for a project, newest
// first.
func (s *Store) ListRegistrations(ctx context.Context, projectID string) ([]sample.FileRegistration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT project_id, file_id, original_filename, table_name
		 FROM file_registrations
		 WHERE project_id = $1
		 ORDER BY registered_at DESC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []sample.FileRegistration
	for rows.Next() {
		var reg sample.FileRegistration
		if err := rows.Scan(&reg.ProjectID, &reg.FileID, &reg.OriginalFilename, &reg.TableName); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// GetMappings returns every mapping rule applicable to any of the given
// original header names for the vendor/client pair, including broader
// rules. Precedence is resolved by the header normalizer.
func (s *Store) GetMappings(ctx context.Context, vendorID, clientID int, originals []string) ([]sample.MappingRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT original, mapped, vendor_id, client_id
		 FROM header_mappings
		 WHERE original = ANY($1)
		   AND (vendor_id = 0 OR vendor_id = $2)
		   AND (client_id = 0 OR client_id = $3)`,
		originals, vendorID, clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("get mappings: %w", err)
	}
	defer rows.Close()

	var rules []sample.MappingRule
	for rows.Next() {
		var rule sample.MappingRule
		if err := rows.Scan(&rule.Original, &rule.Mapped, &rule.VendorID, &rule.ClientID); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// UpsertMappings writes mapping rules, replacing existing rules with the
// same (original, vendor, client) key. Returns the number written.
func (s *Store) UpsertMappings(ctx context.Context, rules []sample.MappingRule) (int, error) {
	count := 0
	for _, rule := range rules {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO header_mappings (original, mapped, vendor_id, client_id)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (original, vendor_id, client_id)
			 DO UPDATE SET mapped = EXCLUDED.mapped`,
			rule.Original, rule.Mapped, rule.VendorID, rule.ClientID,
		)
		if err != nil {
			return count, fmt.Errorf("upsert mapping %q: %w", rule.Original, err)
		}
		count++
	}
	return count, nil
}

// Exclusions returns the global variable exclusion set, keyed by
// uppercase name.
func (s *Store) Exclusions(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM variable_exclusions`)
	if err != nil {
		return nil, fmt.Errorf("load exclusions: %w", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan exclusion: %w", err)
		}
		set[name] = true
	}
	return set, rows.Err()
}

// Inclusions returns the per-project inclusion overrides as a map from
// excluded name to the replacement name used on re-inclusion.
func (s *Store) Inclusions(ctx context.Context, projectID string) (map[string]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT excluded_name, new_name FROM project_inclusions WHERE project_id = $1`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("load inclusions: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]string)
	for rows.Next() {
		var excluded, renamed string
		if err := rows.Scan(&excluded, &renamed); err != nil {
			return nil, fmt.Errorf("scan inclusion: %w", err)
		}
		overrides[excluded] = renamed
	}
	return overrides, rows.Err()
}

// AddDNCNumbers loads phone numbers onto the do-not-call list.
func (s *Store) AddDNCNumbers(ctx context.Context, numbers []string) error {
	for _, n := range numbers {
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO dnc_numbers (phone_number) VALUES ($1) ON CONFLICT DO NOTHING`, n,
		); err != nil {
			return fmt.Errorf("add dnc number: %w", err)
		}
	}
	return nil
}
