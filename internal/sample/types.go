// Package sample defines the shared data model for ingested sample tables.
// This package has no storage or HTTP dependencies and can be imported by
// every layer of the pipeline.
package sample

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// ColumnType represents the declared data type of a sample column.
type ColumnType string

const (
	TypeInteger ColumnType = "INTEGER"
	TypeReal    ColumnType = "REAL"
	TypeBoolean ColumnType = "BOOLEAN"
	TypeDate    ColumnType = "DATE"
	TypeText    ColumnType = "TEXT"
)

// Column describes a single column of a sample table.
//
// Name is always the sanitized, uppercase form. OriginalName preserves the
// raw header as it appeared in the uploaded file for traceability; it is
// empty when the name was not rewritten.
type Column struct {
	Name           string     `json:"name"`
	Type           ColumnType `json:"type"`
	OriginalName   string     `json:"originalName,omitempty"`
	SystemConstant bool       `json:"systemConstant,omitempty"`
}

// Row is one record of a sample table keyed by column name.
// A missing key or empty string value materializes as NULL.
type Row map[string]string

// FileRegistration traces which table an uploaded physical file landed in.
type FileRegistration struct {
	ProjectID        string `json:"projectId"`
	FileID           int    `json:"fileId"`
	OriginalFilename string `json:"originalFilename"`
	TableName        string `json:"tableName"`
}

// MappingRule is a persisted header rewrite rule.
// VendorID/ClientID of zero mean the rule is not scoped to that dimension.
type MappingRule struct {
	Original string `json:"original"`
	Mapped   string `json:"mapped"`
	VendorID int    `json:"vendorId,omitempty"`
	ClientID int    `json:"clientId,omitempty"`
}

// Specificity orders mapping rules for precedence resolution:
// (vendor and client) > vendor only > client only > unscoped.
func (r MappingRule) Specificity() int {
	switch {
	case r.VendorID != 0 && r.ClientID != 0:
		return 3
	case r.VendorID != 0:
		return 2
	case r.ClientID != 0:
		return 1
	default:
		return 0
	}
}

// AgeCalculationMode selects the reference date for deriving ages from
// birth years.
type AgeCalculationMode string

const (
	// AgeModeCalendar derives ages relative to the current date.
	AgeModeCalendar AgeCalculationMode = "calendar"
	// AgeModeJanuary1 derives ages relative to January 1st of the
	// current year, so every record in a study ages consistently.
	AgeModeJanuary1 AgeCalculationMode = "january1"
)

// Identity carries the forwarded caller identity headers. The pipeline
// forwards these to the assignment service; it never re-validates them.
type Identity struct {
	Authenticated bool
	Username      string
	Roles         []string
}
