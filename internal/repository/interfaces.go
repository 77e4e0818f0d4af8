package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/agriffard/SoftTrack/internal/domain"
)

// RecordRepository defines the explicit API for versioned records. Every
// mutation bumps the record's version by exactly one and appends exactly
// one history entry, committed together in one storage transaction.
//
// Concurrency: there is no optimistic lock. Two writers that both load
// version N each commit N+1 in turn; versions stay monotonic and the
// ledger stays complete, but the later commit's field values win. Callers
// needing stronger isolation must serialize their own writes.
type RecordRepository interface {
	// Create starts a record at version 1, assigning an id if absent.
	// Fails with domain.ErrAlreadyExists when a caller-supplied id is
	// already in use; re-creating an id would reset its version and
	// duplicate ledger entries.
	Create(ctx context.Context, rec domain.Record, actor string) (domain.Record, error)

	// Update applies rec.Fields to the stored record. Fails with
	// domain.ErrNotFound when the id was never created and with
	// domain.ErrDeleted when the record is currently soft-deleted.
	Update(ctx context.Context, rec domain.Record, actor string) (domain.Record, error)

	// SoftDelete marks the record deleted. Deleting an already-deleted
	// record is a successful no-op.
	SoftDelete(ctx context.Context, id uuid.UUID, actor string) error

	// Restore clears a soft delete. Restoring an active record is a
	// successful no-op.
	Restore(ctx context.Context, id uuid.UUID, actor string) error

	// RestoreToVersion rebuilds the record from the ledger snapshot at
	// the given version, committing it as version current+1. Returns
	// found=false when the record, the ledger entry, or a decodable
	// snapshot is missing.
	RestoreToVersion(ctx context.Context, id uuid.UUID, version int64, actor string) (domain.Record, bool, error)

	// Get returns the record, excluding soft-deleted rows unless
	// includeDeleted is set.
	Get(ctx context.Context, id uuid.UUID, includeDeleted bool) (domain.Record, bool, error)

	// List returns all records, excluding soft-deleted rows unless
	// includeDeleted is set.
	List(ctx context.Context, includeDeleted bool) ([]domain.Record, error)

	// History returns the full ledger for the record, ascending by
	// version, regardless of deletion state.
	History(ctx context.Context, id uuid.UUID) ([]domain.HistoryEntry, error)
}
