// Package storage defines the persistence contract the repository and
// session run against. Implementations must give identical semantics so
// the memory and Postgres backends are interchangeable in tests.
package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/agriffard/SoftTrack/internal/domain"
)

// RecordStore persists live record state. Read paths exclude soft-deleted
// rows unless includeDeleted is set, so callers never repeat the filter.
type RecordStore interface {
	Get(ctx context.Context, id uuid.UUID, includeDeleted bool) (domain.Record, bool, error)
	List(ctx context.Context, includeDeleted bool) ([]domain.Record, error)
	Insert(ctx context.Context, rec domain.Record) error
	Update(ctx context.Context, rec domain.Record) error
}

// HistoryStore persists the append-only ledger. Entries are never updated
// or deleted once appended.
type HistoryStore interface {
	Append(ctx context.Context, entry domain.HistoryEntry) error
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]domain.HistoryEntry, error)
	GetByVersion(ctx context.Context, recordID uuid.UUID, version int64) (domain.HistoryEntry, bool, error)
}

// Store bundles both stores with a unit-of-work primitive. History may
// return nil when no ledger collaborator is configured; the repository
// checks that capability once at construction.
type Store interface {
	Records() RecordStore
	History() HistoryStore

	// WithinTx runs fn against a transaction-scoped view of the store.
	// The record write and ledger append of one mutation commit together
	// or not at all.
	WithinTx(ctx context.Context, fn func(Store) error) error
}
