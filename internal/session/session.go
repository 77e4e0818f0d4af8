// Package session provides a unit of work for callers that mutate records
// through generic persistence calls instead of the repository. Pending
// changes are rewritten at commit time through the same transition
// functions the repository uses, so version numbers, audit stamps, and
// ledger entries cannot diverge between the two entry points. Physical
// deletes are converted to soft deletes before anything reaches storage.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agriffard/SoftTrack/internal/domain"
	"github.com/agriffard/SoftTrack/internal/storage"
)

type changeKind int

const (
	changeSave changeKind = iota
	changeDelete
)

type change struct {
	kind   changeKind
	record domain.Record
	id     uuid.UUID
}

// Session stages record changes and flushes them in one storage
// transaction on Commit. Not safe for concurrent use; open one session
// per logical unit of work.
type Session struct {
	store   storage.Store
	ledger  bool
	clock   func() time.Time
	log     zerolog.Logger
	actor   string
	pending []change
}

// Option configures a Session.
type Option func(*Session)

// WithActor stamps every change flushed by this session with the given
// actor identifier.
func WithActor(actor string) Option {
	return func(s *Session) { s.actor = actor }
}

// WithClock overrides the time source, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) { s.clock = clock }
}

// New opens a session on the given store.
func New(store storage.Store, log zerolog.Logger, opts ...Option) *Session {
	s := &Session{
		store:  store,
		ledger: store.History() != nil,
		clock:  time.Now,
		log:    log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stages a write for any versioned value. At commit it is
// classified as a create when no record with that id exists, otherwise
// as an update.
func (s *Session) Save(v domain.Versioned) {
	s.pending = append(s.pending, change{kind: changeSave, record: v.VersionedRecord()})
}

// Delete stages a removal. At commit it is rewritten into a soft delete;
// no physical row removal ever reaches storage.
func (s *Session) Delete(id uuid.UUID) {
	s.pending = append(s.pending, change{kind: changeDelete, id: id})
}

// Rollback discards all staged changes.
func (s *Session) Rollback() {
	s.pending = nil
}

// Commit flushes the staged changes in order inside one transaction. On
// error nothing is persisted and the staged changes are kept so the
// caller can inspect or retry. On success the session is empty again.
func (s *Session) Commit(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}

	err := s.store.WithinTx(ctx, func(st storage.Store) error {
		for _, c := range s.pending {
			if err := s.flush(ctx, st, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Debug().Int("changes", len(s.pending)).Msg("session committed")
	s.pending = nil
	return nil
}

func (s *Session) flush(ctx context.Context, st storage.Store, c change) error {
	now := s.clock()

	switch c.kind {
	case changeSave:
		current, found, err := st.Records().Get(ctx, c.record.ID, true)
		if err != nil {
			return fmt.Errorf("failed to load record: %w", err)
		}

		if !found {
			tr, err := domain.Create(c.record, s.actor, now)
			if err != nil {
				return err
			}
			if err := st.Records().Insert(ctx, tr.Next); err != nil {
				return fmt.Errorf("failed to insert record: %w", err)
			}
			return s.appendEntry(ctx, st, tr.Entry)
		}

		tr, err := domain.Update(current, c.record, s.actor, now)
		if err != nil {
			return err
		}
		if err := st.Records().Update(ctx, tr.Next); err != nil {
			return fmt.Errorf("failed to persist record: %w", err)
		}
		return s.appendEntry(ctx, st, tr.Entry)

	case changeDelete:
		current, found, err := st.Records().Get(ctx, c.id, true)
		if err != nil {
			return fmt.Errorf("failed to load record: %w", err)
		}
		if !found {
			return fmt.Errorf("delete record %s: %w", c.id, domain.ErrNotFound)
		}

		tr, err := domain.SoftDelete(current, s.actor, now)
		if err != nil {
			return err
		}
		if tr.NoOp {
			return nil
		}
		if err := st.Records().Update(ctx, tr.Next); err != nil {
			return fmt.Errorf("failed to persist record: %w", err)
		}
		return s.appendEntry(ctx, st, tr.Entry)
	}

	return nil
}

func (s *Session) appendEntry(ctx context.Context, st storage.Store, entry *domain.HistoryEntry) error {
	if !s.ledger || entry == nil {
		return nil
	}
	if err := st.History().Append(ctx, *entry); err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}
