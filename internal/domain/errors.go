package domain

import "errors"

// Typed failures surfaced by transitions and the repository. Callers
// branch with errors.Is rather than matching message text.
var (
	// ErrNotFound reports a mutation against a record id that was never
	// created.
	ErrNotFound = errors.New("record not found")

	// ErrDeleted reports an update against a currently soft-deleted
	// record. The record must be restored first.
	ErrDeleted = errors.New("record is deleted")

	// ErrAlreadyExists reports a create with a caller-supplied id that
	// is already in use. Re-creating an id would reset its version and
	// corrupt the ledger sequence.
	ErrAlreadyExists = errors.New("record already exists")
)
