package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agriffard/SoftTrack/internal/domain"
	"github.com/agriffard/SoftTrack/internal/storage"
)

// recordRepository implements RecordRepository over a storage.Store.
type recordRepository struct {
	store  storage.Store
	ledger bool
	clock  func() time.Time
	log    zerolog.Logger
}

// Option configures the repository.
type Option func(*recordRepository)

// WithClock overrides the time source, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(r *recordRepository) { r.clock = clock }
}

// NewRecordRepository creates a record repository. Whether a ledger
// collaborator is present is decided here, once: when the store exposes
// no history store, mutations proceed without audit coverage and a
// warning is logged so the misconfiguration is visible.
func NewRecordRepository(store storage.Store, log zerolog.Logger, opts ...Option) RecordRepository {
	r := &recordRepository{
		store:  store,
		ledger: store.History() != nil,
		clock:  time.Now,
		log:    log,
	}
	for _, opt := range opts {
		opt(r)
	}
	if !r.ledger {
		r.log.Warn().Msg("no history store configured; mutations will not be recorded in the ledger")
	}
	return r
}

// Create creates a new record at version 1.
func (r *recordRepository) Create(ctx context.Context, rec domain.Record, actor string) (domain.Record, error) {
	tr, err := domain.Create(rec, actor, r.clock())
	if err != nil {
		return domain.Record{}, err
	}

	err = r.store.WithinTx(ctx, func(s storage.Store) error {
		if err := s.Records().Insert(ctx, tr.Next); err != nil {
			return fmt.Errorf("failed to insert record: %w", err)
		}
		return r.appendEntry(ctx, s, tr.Entry)
	})
	if err != nil {
		return domain.Record{}, err
	}

	r.log.Debug().Stringer("record_id", tr.Next.ID).Msg("record created")
	return tr.Next, nil
}

// Update applies caller fields to an existing, non-deleted record.
func (r *recordRepository) Update(ctx context.Context, rec domain.Record, actor string) (domain.Record, error) {
	var out domain.Record
	err := r.store.WithinTx(ctx, func(s storage.Store) error {
		current, found, err := s.Records().Get(ctx, rec.ID, true)
		if err != nil {
			return fmt.Errorf("failed to load record: %w", err)
		}
		if !found {
			return fmt.Errorf("update record %s: %w", rec.ID, domain.ErrNotFound)
		}

		tr, err := domain.Update(current, rec, actor, r.clock())
		if err != nil {
			return err
		}

		if err := s.Records().Update(ctx, tr.Next); err != nil {
			return fmt.Errorf("failed to persist record: %w", err)
		}
		if err := r.appendEntry(ctx, s, tr.Entry); err != nil {
			return err
		}
		out = tr.Next
		return nil
	})
	if err != nil {
		return domain.Record{}, err
	}
	return out, nil
}

// SoftDelete marks a record deleted; already-deleted records are left
// untouched.
func (r *recordRepository) SoftDelete(ctx context.Context, id uuid.UUID, actor string) error {
	return r.mutate(ctx, id, func(current domain.Record) (domain.Transition, error) {
		return domain.SoftDelete(current, actor, r.clock())
	})
}

// Restore clears a soft delete; active records are left untouched.
func (r *recordRepository) Restore(ctx context.Context, id uuid.UUID, actor string) error {
	return r.mutate(ctx, id, func(current domain.Record) (domain.Transition, error) {
		return domain.Restore(current, actor, r.clock())
	})
}

// mutate runs a load-transition-persist cycle for operations keyed by id.
func (r *recordRepository) mutate(ctx context.Context, id uuid.UUID, transition func(domain.Record) (domain.Transition, error)) error {
	return r.store.WithinTx(ctx, func(s storage.Store) error {
		current, found, err := s.Records().Get(ctx, id, true)
		if err != nil {
			return fmt.Errorf("failed to load record: %w", err)
		}
		if !found {
			return fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
		}

		tr, err := transition(current)
		if err != nil {
			return err
		}
		if tr.NoOp {
			return nil
		}

		if err := s.Records().Update(ctx, tr.Next); err != nil {
			return fmt.Errorf("failed to persist record: %w", err)
		}
		return r.appendEntry(ctx, s, tr.Entry)
	})
}

// RestoreToVersion rebuilds a record from a past snapshot. A missing
// record, missing ledger entry, or undecodable snapshot all yield
// found=false rather than an error.
func (r *recordRepository) RestoreToVersion(ctx context.Context, id uuid.UUID, version int64, actor string) (domain.Record, bool, error) {
	if !r.ledger {
		r.log.Warn().Stringer("record_id", id).Msg("restore to version requested without a history store")
		return domain.Record{}, false, nil
	}

	var out domain.Record
	restored := false
	err := r.store.WithinTx(ctx, func(s storage.Store) error {
		current, found, err := s.Records().Get(ctx, id, true)
		if err != nil {
			return fmt.Errorf("failed to load record: %w", err)
		}
		if !found {
			return nil
		}

		entry, found, err := s.History().GetByVersion(ctx, id, version)
		if err != nil {
			return fmt.Errorf("failed to load history entry: %w", err)
		}
		if !found {
			return nil
		}

		tr, err := domain.RestoreToVersion(current, entry, actor, r.clock())
		if err != nil {
			r.log.Warn().Err(err).Stringer("record_id", id).Int64("version", version).
				Msg("snapshot could not be restored")
			return nil
		}

		if err := s.Records().Update(ctx, tr.Next); err != nil {
			return fmt.Errorf("failed to persist record: %w", err)
		}
		if err := r.appendEntry(ctx, s, tr.Entry); err != nil {
			return err
		}
		out = tr.Next
		restored = true
		return nil
	})
	if err != nil {
		return domain.Record{}, false, err
	}
	return out, restored, nil
}

// Get retrieves a record by id. Deleted-row filtering happens in the
// store, not here.
func (r *recordRepository) Get(ctx context.Context, id uuid.UUID, includeDeleted bool) (domain.Record, bool, error) {
	return r.store.Records().Get(ctx, id, includeDeleted)
}

// List retrieves all records.
func (r *recordRepository) List(ctx context.Context, includeDeleted bool) ([]domain.Record, error) {
	return r.store.Records().List(ctx, includeDeleted)
}

// History returns the full ledger for a record, ascending by version.
func (r *recordRepository) History(ctx context.Context, id uuid.UUID) ([]domain.HistoryEntry, error) {
	if !r.ledger {
		return nil, nil
	}
	return r.store.History().ListByRecord(ctx, id)
}

func (r *recordRepository) appendEntry(ctx context.Context, s storage.Store, entry *domain.HistoryEntry) error {
	if !r.ledger || entry == nil {
		return nil
	}
	if err := s.History().Append(ctx, *entry); err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}
