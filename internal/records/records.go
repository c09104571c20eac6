// Package records is the boundary to the system of record that owns the
// tracked job rows. The pipeline only ever reads a field by logical name,
// writes a field by logical name, or appends an audit token; everything
// else about the backing store stays on the other side of this interface.
package records

import (
	"context"

	"github.com/joblink/joblink-etl/internal/audit"
)

// Logical field names on a tracked row.
const (
	FieldLink      = "link"
	FieldCanonical = "canonical"
	FieldCompany   = "company"
	FieldRole      = "role"
	FieldStatus    = "status"
	FieldSource    = "source"
	FieldInvite    = "invite"
	FieldFollowup  = "followup"
)

// Row statuses written to FieldStatus.
const (
	StatusQueued = "queued"
	StatusOK     = "ok"
	StatusError  = "error"
)

// Key identifies one tracked row: the owning sheet/board/document plus its
// logical row id within it.
type Key struct {
	Owner string
	Row   string
}

// Store reads and writes tracked rows.
type Store interface {
	// Field returns the current value of a logical field, "" when unset.
	Field(ctx context.Context, key Key, field string) (string, error)

	// SetField writes one logical field, leaving all others untouched.
	SetField(ctx context.Context, key Key, field, value string) error

	// AppendAudit upserts one token into the row's audit ledger.
	AppendAudit(ctx context.Context, key Key, token audit.Token) error

	// Profile returns the free-form key/value profile used to personalize
	// outreach notes.
	Profile(ctx context.Context) (map[string]string, error)
}
