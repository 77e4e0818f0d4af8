package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCreate_AssignsIDAndVersionOne(t *testing.T) {
	tr, err := Create(NewRecord(map[string]any{"name": "A"}), "alice", t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := tr.Next
	if rec.ID == uuid.Nil {
		t.Fatal("expected an id to be assigned")
	}
	if rec.Version != 1 {
		t.Fatalf("expected version 1, got %d", rec.Version)
	}
	if rec.IsDeleted {
		t.Fatal("new record must not be deleted")
	}
	if !rec.CreatedAt.Equal(t0) || rec.CreatedBy != "alice" {
		t.Fatalf("creation stamps not applied: %v %q", rec.CreatedAt, rec.CreatedBy)
	}
	if rec.UpdatedAt != nil {
		t.Fatal("updated_at must be absent before the first mutation")
	}

	if tr.Entry == nil {
		t.Fatal("expected a history entry")
	}
	if tr.Entry.Operation != OpCreate || tr.Entry.Version != 1 {
		t.Fatalf("expected CREATE entry at version 1, got %s at %d", tr.Entry.Operation, tr.Entry.Version)
	}
}

func TestCreate_DiscardsCallerSystemFields(t *testing.T) {
	input := NewRecord(map[string]any{"name": "A"})
	input.Version = 42
	input.IsDeleted = true
	input.CreatedBy = "mallory"
	deleted := t0.Add(-time.Hour)
	input.DeletedAt = &deleted

	tr, err := Create(input, "alice", t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Next.Version != 1 || tr.Next.IsDeleted || tr.Next.DeletedAt != nil {
		t.Fatalf("caller-supplied system fields leaked into the new record: %+v", tr.Next)
	}
	if tr.Next.CreatedBy != "alice" {
		t.Fatalf("expected created_by alice, got %q", tr.Next.CreatedBy)
	}
}

func TestUpdate_ProtectsCreationStamps(t *testing.T) {
	created, err := Create(NewRecord(map[string]any{"name": "A"}), "alice", t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input := NewRecord(map[string]any{"name": "B"})
	input.CreatedAt = t0.Add(time.Hour)
	input.CreatedBy = "mallory"
	input.ID = uuid.New()

	tr, err := Update(created.Next, input, "bob", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := tr.Next
	if rec.ID != created.Next.ID {
		t.Fatal("id must never change on update")
	}
	if !rec.CreatedAt.Equal(t0) || rec.CreatedBy != "alice" {
		t.Fatalf("creation stamps changed on update: %v %q", rec.CreatedAt, rec.CreatedBy)
	}
	if rec.Version != 2 {
		t.Fatalf("expected version 2, got %d", rec.Version)
	}
	if rec.Fields["name"] != "B" {
		t.Fatalf("expected updated fields, got %v", rec.Fields)
	}
	if rec.UpdatedAt == nil || rec.UpdatedBy != "bob" {
		t.Fatalf("update stamps not applied: %v %q", rec.UpdatedAt, rec.UpdatedBy)
	}
	if tr.Entry.Operation != OpUpdate || tr.Entry.Version != 2 {
		t.Fatalf("expected UPDATE entry at version 2, got %s at %d", tr.Entry.Operation, tr.Entry.Version)
	}
}

func TestUpdate_DeletedRecordFails(t *testing.T) {
	created, _ := Create(NewRecord(map[string]any{"name": "A"}), "alice", t0)
	deleted, _ := SoftDelete(created.Next, "alice", t0.Add(time.Minute))

	_, err := Update(deleted.Next, NewRecord(map[string]any{"name": "B"}), "bob", t0.Add(time.Hour))
	if !errors.Is(err, ErrDeleted) {
		t.Fatalf("expected ErrDeleted, got %v", err)
	}
}

func TestSoftDelete_StampsAndIncrements(t *testing.T) {
	created, _ := Create(NewRecord(map[string]any{"name": "A"}), "alice", t0)

	tr, err := SoftDelete(created.Next, "bob", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := tr.Next
	if !rec.IsDeleted || rec.DeletedAt == nil || rec.DeletedBy != "bob" {
		t.Fatalf("deletion fields not stamped: %+v", rec)
	}
	if rec.Version != 2 {
		t.Fatalf("expected version 2, got %d", rec.Version)
	}
	if tr.Entry.Operation != OpSoftDelete {
		t.Fatalf("expected SOFT_DELETE entry, got %s", tr.Entry.Operation)
	}
}

func TestSoftDelete_AlreadyDeletedIsNoOp(t *testing.T) {
	created, _ := Create(NewRecord(map[string]any{"name": "A"}), "alice", t0)
	first, _ := SoftDelete(created.Next, "bob", t0.Add(time.Minute))

	second, err := SoftDelete(first.Next, "carol", t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !second.NoOp || second.Entry != nil {
		t.Fatal("second soft delete must be a no-op with no entry")
	}
	if second.Next.Version != first.Next.Version {
		t.Fatalf("version changed on no-op: %d -> %d", first.Next.Version, second.Next.Version)
	}
	if second.Next.DeletedBy != "bob" {
		t.Fatalf("no-op must not restamp deletion fields, got %q", second.Next.DeletedBy)
	}
}

func TestRestore_ClearsDeletionFields(t *testing.T) {
	created, _ := Create(NewRecord(map[string]any{"name": "A"}), "alice", t0)
	deleted, _ := SoftDelete(created.Next, "bob", t0.Add(time.Minute))

	tr, err := Restore(deleted.Next, "carol", t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := tr.Next
	if rec.IsDeleted || rec.DeletedAt != nil || rec.DeletedBy != "" {
		t.Fatalf("deletion fields not cleared: %+v", rec)
	}
	if rec.Version != 3 {
		t.Fatalf("expected version 3, got %d", rec.Version)
	}
	if tr.Entry.Operation != OpRestore {
		t.Fatalf("expected RESTORE entry, got %s", tr.Entry.Operation)
	}
}

func TestRestore_ActiveRecordIsNoOp(t *testing.T) {
	created, _ := Create(NewRecord(map[string]any{"name": "A"}), "alice", t0)

	tr, err := Restore(created.Next, "bob", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tr.NoOp || tr.Entry != nil {
		t.Fatal("restore of an active record must be a no-op")
	}
}

func TestRestoreToVersion_NewVersionAndPreservedCreation(t *testing.T) {
	created, _ := Create(NewRecord(map[string]any{"name": "A"}), "alice", t0)
	updated, _ := Update(created.Next, NewRecord(map[string]any{"name": "B"}), "bob", t0.Add(time.Minute))
	deleted, _ := SoftDelete(updated.Next, "bob", t0.Add(2*time.Minute))

	// Restore the version-1 snapshot on top of the deleted version-3 state.
	tr, err := RestoreToVersion(deleted.Next, *created.Entry, "carol", t0.Add(time.Hour))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := tr.Next
	if rec.Fields["name"] != "A" {
		t.Fatalf("expected snapshot fields, got %v", rec.Fields)
	}
	if rec.Version != 4 {
		t.Fatalf("restore must assign current+1, got %d", rec.Version)
	}
	if rec.IsDeleted || rec.DeletedAt != nil {
		t.Fatal("restore to version must clear deletion flags")
	}
	if !rec.CreatedAt.Equal(t0) || rec.CreatedBy != "alice" {
		t.Fatalf("live creation stamps must be preserved: %v %q", rec.CreatedAt, rec.CreatedBy)
	}
	if tr.Entry.Operation != OpRestore || tr.Entry.Version != 4 {
		t.Fatalf("expected RESTORE entry at version 4, got %s at %d", tr.Entry.Operation, tr.Entry.Version)
	}
}

func TestRestoreToVersion_BadSnapshotFails(t *testing.T) {
	created, _ := Create(NewRecord(map[string]any{"name": "A"}), "alice", t0)

	entry := *created.Entry
	entry.Snapshot = []byte("{not json")

	if _, err := RestoreToVersion(created.Next, entry, "bob", t0.Add(time.Minute)); err == nil {
		t.Fatal("expected an error for an undecodable snapshot")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	created, _ := Create(NewRecord(map[string]any{"name": "A", "count": float64(3)}), "alice", t0)

	decoded, err := DecodeSnapshot(created.Entry.Snapshot)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.ID != created.Next.ID || decoded.Version != 1 {
		t.Fatalf("snapshot does not reproduce the record: %+v", decoded)
	}
	if decoded.Fields["name"] != "A" || decoded.Fields["count"] != float64(3) {
		t.Fatalf("snapshot fields differ: %v", decoded.Fields)
	}
}

func TestUpdate_DoesNotAliasCallerFields(t *testing.T) {
	created, _ := Create(NewRecord(map[string]any{"name": "A"}), "alice", t0)

	input := map[string]any{"name": "B"}
	tr, _ := Update(created.Next, NewRecord(input), "bob", t0.Add(time.Minute))

	input["name"] = "C"
	if tr.Next.Fields["name"] != "B" {
		t.Fatalf("transition state aliases caller map: %v", tr.Next.Fields)
	}
}
