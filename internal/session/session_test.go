package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agriffard/SoftTrack/internal/domain"
	"github.com/agriffard/SoftTrack/internal/repository"
	"github.com/agriffard/SoftTrack/internal/storage/memory"
)

func newTestSession(store *memory.Store) *Session {
	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return New(store, zerolog.Nop(), WithActor("alice"), WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))
}

func TestCommitClassifiesSaves(t *testing.T) {
	store := memory.New()
	sess := newTestSession(store)
	ctx := context.Background()

	id := uuid.New()
	rec := domain.NewRecord(map[string]any{"name": "A"})
	rec.ID = id
	sess.Save(rec)
	require.NoError(t, sess.Commit(ctx))

	stored, found, err := store.Records().Get(ctx, id, false)
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 1, stored.Version)
	assert.Equal(t, "alice", stored.CreatedBy)

	// Saving the same id again is an update.
	sess.Save(rec.WithFields(map[string]any{"name": "B"}))
	require.NoError(t, sess.Commit(ctx))

	stored, _, err = store.Records().Get(ctx, id, false)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stored.Version)
	assert.Equal(t, "B", stored.Fields["name"])
}

func TestCommitConvertsDeleteToSoftDelete(t *testing.T) {
	store := memory.New()
	sess := newTestSession(store)
	ctx := context.Background()

	id := uuid.New()
	rec := domain.NewRecord(map[string]any{"name": "A"})
	rec.ID = id
	sess.Save(rec)
	sess.Delete(id)
	require.NoError(t, sess.Commit(ctx))

	// The row still exists; it is soft-deleted, never removed.
	stored, found, err := store.Records().Get(ctx, id, true)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, stored.IsDeleted)
	require.NotNil(t, stored.DeletedAt)
	assert.EqualValues(t, 2, stored.Version)
}

func TestCommitEmitsSameLedgerAsRepository(t *testing.T) {
	store := memory.New()
	sess := newTestSession(store)
	ctx := context.Background()

	id := uuid.New()
	rec := domain.NewRecord(map[string]any{"name": "A"})
	rec.ID = id
	sess.Save(rec)
	require.NoError(t, sess.Commit(ctx))
	sess.Save(rec.WithFields(map[string]any{"name": "B"}))
	sess.Delete(id)
	require.NoError(t, sess.Commit(ctx))

	repo := repository.NewRecordRepository(store, zerolog.Nop())
	entries, err := repo.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	ops := []domain.Operation{}
	for i, entry := range entries {
		assert.EqualValues(t, i+1, entry.Version)
		ops = append(ops, entry.Operation)
	}
	assert.Equal(t, []domain.Operation{domain.OpCreate, domain.OpUpdate, domain.OpSoftDelete}, ops)
}

func TestCommitIsAtomic(t *testing.T) {
	store := memory.New()
	sess := newTestSession(store)
	ctx := context.Background()

	// Seed a soft-deleted record through the repository.
	repo := repository.NewRecordRepository(store, zerolog.Nop())
	created, err := repo.Create(ctx, domain.NewRecord(map[string]any{"name": "A"}), "alice")
	require.NoError(t, err)
	require.NoError(t, repo.SoftDelete(ctx, created.ID, "alice"))

	// One good change and one that fails (update of a deleted record).
	fresh := domain.NewRecord(map[string]any{"name": "new"})
	fresh.ID = uuid.New()
	sess.Save(fresh)
	sess.Save(created.WithFields(map[string]any{"name": "B"}))

	require.ErrorIs(t, sess.Commit(ctx), domain.ErrDeleted)

	// Nothing from the failed commit may be visible.
	_, found, err := store.Records().Get(ctx, fresh.ID, true)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDeleteUnknownRecordFailsCommit(t *testing.T) {
	store := memory.New()
	sess := newTestSession(store)

	sess.Delete(uuid.New())
	require.ErrorIs(t, sess.Commit(context.Background()), domain.ErrNotFound)
}

func TestDeleteAlreadyDeletedIsNoOp(t *testing.T) {
	store := memory.New()
	sess := newTestSession(store)
	ctx := context.Background()

	id := uuid.New()
	rec := domain.NewRecord(map[string]any{"name": "A"})
	rec.ID = id
	sess.Save(rec)
	sess.Delete(id)
	sess.Delete(id)
	require.NoError(t, sess.Commit(ctx))

	stored, _, err := store.Records().Get(ctx, id, true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stored.Version)
}

// orderAggregate is a caller-owned type carrying a record; Save accepts
// anything that can surface its record.
type orderAggregate struct {
	rec   domain.Record
	total int
}

func (o orderAggregate) VersionedRecord() domain.Record {
	return o.rec.WithField("total", o.total)
}

func TestSaveAcceptsVersionedValues(t *testing.T) {
	store := memory.New()
	sess := newTestSession(store)
	ctx := context.Background()

	rec := domain.NewRecord(map[string]any{"name": "order"})
	rec.ID = uuid.New()
	sess.Save(orderAggregate{rec: rec, total: 42})
	require.NoError(t, sess.Commit(ctx))

	stored, found, err := store.Records().Get(ctx, rec.ID, false)
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 1, stored.Version)
	assert.Equal(t, "order", stored.Fields["name"])
	assert.EqualValues(t, 42, stored.Fields["total"])
}

func TestRollbackDiscardsPendingChanges(t *testing.T) {
	store := memory.New()
	sess := newTestSession(store)
	ctx := context.Background()

	id := uuid.New()
	rec := domain.NewRecord(map[string]any{"name": "A"})
	rec.ID = id
	sess.Save(rec)
	sess.Rollback()
	require.NoError(t, sess.Commit(ctx))

	_, found, err := store.Records().Get(ctx, id, true)
	require.NoError(t, err)
	assert.False(t, found)
}
