package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Operation classifies a history entry.
type Operation string

const (
	OpCreate     Operation = "CREATE"
	OpUpdate     Operation = "UPDATE"
	OpSoftDelete Operation = "SOFT_DELETE"
	OpRestore    Operation = "RESTORE"
)

// HistoryEntry is one immutable row of the audit ledger. Entries for a
// record, ordered by Version, form a gap-free sequence starting at 1.
type HistoryEntry struct {
	ID          uuid.UUID       `json:"id"`
	RecordID    uuid.UUID       `json:"record_id"`
	Version     int64           `json:"version"`
	Snapshot    json.RawMessage `json:"snapshot"`
	Operation   Operation       `json:"operation"`
	PerformedAt time.Time       `json:"performed_at"`
	PerformedBy string          `json:"performed_by,omitempty"`
}

// EncodeSnapshot serializes the full record state for the ledger. The
// encoding is reversible; DecodeSnapshot restores an identical record.
func EncodeSnapshot(r Record) (json.RawMessage, error) {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	return json.Marshal(r)
}

// DecodeSnapshot reverses EncodeSnapshot.
func DecodeSnapshot(snapshot json.RawMessage) (Record, error) {
	var r Record
	if err := json.Unmarshal(snapshot, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}
