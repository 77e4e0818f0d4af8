// Package memory provides an in-memory transactional store. It backs the
// test suites and small deployments; the Postgres store is the production
// backend. Transactions stage a copy of the state and swap it in on
// success, so a failed unit of work leaves nothing behind.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/agriffard/SoftTrack/internal/domain"
	"github.com/agriffard/SoftTrack/internal/storage"
)

type state struct {
	records map[uuid.UUID]domain.Record
	history map[uuid.UUID][]domain.HistoryEntry
}

func newState() *state {
	return &state{
		records: map[uuid.UUID]domain.Record{},
		history: map[uuid.UUID][]domain.HistoryEntry{},
	}
}

func (s *state) clone() *state {
	next := &state{
		records: make(map[uuid.UUID]domain.Record, len(s.records)),
		history: make(map[uuid.UUID][]domain.HistoryEntry, len(s.history)),
	}
	for id, rec := range s.records {
		next.records[id] = rec.WithFields(rec.Fields)
	}
	for id, entries := range s.history {
		copied := make([]domain.HistoryEntry, len(entries))
		copy(copied, entries)
		next.history[id] = copied
	}
	return next
}

// Store is a mutex-guarded in-memory implementation of storage.Store.
type Store struct {
	mu     sync.RWMutex
	state  *state
	ledger bool
}

// New creates an empty store with a ledger.
func New() *Store {
	return &Store{state: newState(), ledger: true}
}

// NewWithoutLedger creates a store whose History() is nil, mimicking a
// deployment with no ledger collaborator configured.
func NewWithoutLedger() *Store {
	return &Store{state: newState()}
}

func (s *Store) Records() storage.RecordStore { return lockedRecords{s} }

func (s *Store) History() storage.HistoryStore {
	if !s.ledger {
		return nil
	}
	return lockedHistory{s}
}

// WithinTx clones the state, applies fn to the clone and swaps it in on
// success. The store lock is held for the duration, which serializes
// units of work; acceptable for a test backend.
func (s *Store) WithinTx(ctx context.Context, fn func(storage.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := &txStore{state: s.state.clone(), ledger: s.ledger}
	if err := fn(staged); err != nil {
		return err
	}

	s.state = staged.state
	return nil
}

// txStore operates on the staged clone without locking; the outer store
// lock is already held.
type txStore struct {
	state  *state
	ledger bool
}

func (t *txStore) Records() storage.RecordStore { return stateRecords{t.state} }

func (t *txStore) History() storage.HistoryStore {
	if !t.ledger {
		return nil
	}
	return stateHistory{t.state}
}

func (t *txStore) WithinTx(ctx context.Context, fn func(storage.Store) error) error {
	// Already inside a unit of work.
	return fn(t)
}

// stateRecords implements RecordStore directly against a state.
type stateRecords struct{ s *state }

func (r stateRecords) Get(ctx context.Context, id uuid.UUID, includeDeleted bool) (domain.Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Record{}, false, err
	}
	rec, ok := r.s.records[id]
	if !ok || (rec.IsDeleted && !includeDeleted) {
		return domain.Record{}, false, nil
	}
	return rec.WithFields(rec.Fields), true, nil
}

func (r stateRecords) List(ctx context.Context, includeDeleted bool) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records := make([]domain.Record, 0, len(r.s.records))
	for _, rec := range r.s.records {
		if rec.IsDeleted && !includeDeleted {
			continue
		}
		records = append(records, rec.WithFields(rec.Fields))
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID.String() < records[j].ID.String()
	})
	return records, nil
}

func (r stateRecords) Insert(ctx context.Context, rec domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := r.s.records[rec.ID]; ok {
		return fmt.Errorf("insert record %s: %w", rec.ID, domain.ErrAlreadyExists)
	}
	r.s.records[rec.ID] = rec.WithFields(rec.Fields)
	return nil
}

func (r stateRecords) Update(ctx context.Context, rec domain.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := r.s.records[rec.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.records[rec.ID] = rec.WithFields(rec.Fields)
	return nil
}

// stateHistory implements HistoryStore directly against a state.
type stateHistory struct{ s *state }

func (h stateHistory) Append(ctx context.Context, entry domain.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.s.history[entry.RecordID] = append(h.s.history[entry.RecordID], entry)
	return nil
}

func (h stateHistory) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]domain.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries := make([]domain.HistoryEntry, len(h.s.history[recordID]))
	copy(entries, h.s.history[recordID])
	sort.Slice(entries, func(i, j int) bool { return entries[i].Version < entries[j].Version })
	return entries, nil
}

func (h stateHistory) GetByVersion(ctx context.Context, recordID uuid.UUID, version int64) (domain.HistoryEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.HistoryEntry{}, false, err
	}
	for _, entry := range h.s.history[recordID] {
		if entry.Version == version {
			return entry, true, nil
		}
	}
	return domain.HistoryEntry{}, false, nil
}

// lockedRecords wraps stateRecords with the store lock for use outside a
// transaction.
type lockedRecords struct{ store *Store }

func (r lockedRecords) Get(ctx context.Context, id uuid.UUID, includeDeleted bool) (domain.Record, bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return stateRecords{r.store.state}.Get(ctx, id, includeDeleted)
}

func (r lockedRecords) List(ctx context.Context, includeDeleted bool) ([]domain.Record, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return stateRecords{r.store.state}.List(ctx, includeDeleted)
}

func (r lockedRecords) Insert(ctx context.Context, rec domain.Record) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return stateRecords{r.store.state}.Insert(ctx, rec)
}

func (r lockedRecords) Update(ctx context.Context, rec domain.Record) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return stateRecords{r.store.state}.Update(ctx, rec)
}

type lockedHistory struct{ store *Store }

func (h lockedHistory) Append(ctx context.Context, entry domain.HistoryEntry) error {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return stateHistory{h.store.state}.Append(ctx, entry)
}

func (h lockedHistory) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]domain.HistoryEntry, error) {
	h.store.mu.RLock()
	defer h.store.mu.RUnlock()
	return stateHistory{h.store.state}.ListByRecord(ctx, recordID)
}

func (h lockedHistory) GetByVersion(ctx context.Context, recordID uuid.UUID, version int64) (domain.HistoryEntry, bool, error) {
	h.store.mu.RLock()
	defer h.store.mu.RUnlock()
	return stateHistory{h.store.state}.GetByVersion(ctx, recordID, version)
}
