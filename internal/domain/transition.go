package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transition is the outcome of applying one operation to a record. It is
// computed without I/O; the repository and the session both persist the
// next state and append the ledger entry from the same Transition, so the
// two entry points cannot apply divergent rules.
type Transition struct {
	// Next is the record state after the operation.
	Next Record

	// Entry is the ledger row to append alongside Next. Nil when NoOp.
	Entry *HistoryEntry

	// NoOp reports that the operation required no change (soft-deleting
	// an already-deleted record, restoring an active one). Next equals
	// the input state and Entry is nil.
	NoOp bool
}

// Create starts a record's lifecycle at version 1. An id is assigned when
// the input carries none. Caller-supplied audit or deletion values are
// discarded; only Fields survive from the input.
func Create(input Record, actor string, now time.Time) (Transition, error) {
	id := input.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	next := Record{
		ID:        id,
		Fields:    copyFields(input.Fields),
		Version:   1,
		IsDeleted: false,
		CreatedAt: now,
		CreatedBy: actor,
	}

	return withEntry(next, OpCreate, actor, now)
}

// Update applies the input's Fields on top of an existing record. The
// protected system fields (id, creation stamps, version base, deletion
// state) come from current regardless of what the caller passed in.
func Update(current, input Record, actor string, now time.Time) (Transition, error) {
	if current.IsDeleted {
		return Transition{}, fmt.Errorf("update record %s: %w", current.ID, ErrDeleted)
	}

	next := current
	next.Fields = copyFields(input.Fields)
	next.Version = current.Version + 1
	next.UpdatedAt = &now
	next.UpdatedBy = actor

	return withEntry(next, OpUpdate, actor, now)
}

// SoftDelete marks a record as logically removed. Deleting an
// already-deleted record is a no-op, not an error.
func SoftDelete(current Record, actor string, now time.Time) (Transition, error) {
	if current.IsDeleted {
		return Transition{Next: current, NoOp: true}, nil
	}

	next := current
	next.IsDeleted = true
	next.DeletedAt = &now
	next.DeletedBy = actor
	next.Version = current.Version + 1
	next.UpdatedAt = &now
	next.UpdatedBy = actor

	return withEntry(next, OpSoftDelete, actor, now)
}

// Restore clears a soft delete. Restoring an active record is a no-op.
func Restore(current Record, actor string, now time.Time) (Transition, error) {
	if !current.IsDeleted {
		return Transition{Next: current, NoOp: true}, nil
	}

	next := current
	next.IsDeleted = false
	next.DeletedAt = nil
	next.DeletedBy = ""
	next.Version = current.Version + 1
	next.UpdatedAt = &now
	next.UpdatedBy = actor

	return withEntry(next, OpRestore, actor, now)
}

// RestoreToVersion overwrites the live record with the field values held
// in a past ledger entry. The restore is itself a new mutation: the next
// version is current+1, never the snapshot's own version. Deletion flags
// are cleared unconditionally and the live record's creation stamps are
// preserved.
func RestoreToVersion(current Record, entry HistoryEntry, actor string, now time.Time) (Transition, error) {
	snap, err := DecodeSnapshot(entry.Snapshot)
	if err != nil {
		return Transition{}, fmt.Errorf("decode snapshot for record %s version %d: %w", current.ID, entry.Version, err)
	}

	next := Record{
		ID:        current.ID,
		Fields:    copyFields(snap.Fields),
		Version:   current.Version + 1,
		IsDeleted: false,
		CreatedAt: current.CreatedAt,
		CreatedBy: current.CreatedBy,
		UpdatedAt: &now,
		UpdatedBy: actor,
	}

	return withEntry(next, OpRestore, actor, now)
}

func withEntry(next Record, op Operation, actor string, now time.Time) (Transition, error) {
	snapshot, err := EncodeSnapshot(next)
	if err != nil {
		return Transition{}, fmt.Errorf("encode snapshot for record %s: %w", next.ID, err)
	}

	return Transition{
		Next: next,
		Entry: &HistoryEntry{
			ID:          uuid.New(),
			RecordID:    next.ID,
			Version:     next.Version,
			Snapshot:    snapshot,
			Operation:   op,
			PerformedAt: now,
			PerformedBy: actor,
		},
	}, nil
}
