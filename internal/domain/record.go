package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Record is a soft-deletable, versioned entity instance. System fields
// (ID, Version, audit stamps, deletion flags) are managed exclusively by
// the transition functions in this package; callers supply Fields.
type Record struct {
	ID        uuid.UUID      `json:"id"`
	Fields    map[string]any `json:"fields"`
	Version   int64          `json:"version"`
	IsDeleted bool           `json:"is_deleted"`
	CreatedAt time.Time      `json:"created_at"`
	CreatedBy string         `json:"created_by,omitempty"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
	UpdatedBy string         `json:"updated_by,omitempty"`
	DeletedAt *time.Time     `json:"deleted_at,omitempty"`
	DeletedBy string         `json:"deleted_by,omitempty"`
}

// Versioned is the capability a type must provide to flow through the
// versioning rules: it exposes the Record the transitions operate on.
// Record satisfies it directly; aggregates carrying a Record forward to
// it, which lets the session accept caller-owned types without
// reflection.
type Versioned interface {
	VersionedRecord() Record
}

func (r Record) VersionedRecord() Record { return r }

// NewRecord builds an unsaved record carrying caller fields only.
// Version and audit stamps are assigned when the record is created
// through the repository or a session.
func NewRecord(fields map[string]any) Record {
	return Record{Fields: copyFields(fields)}
}

// WithField returns a copy of the record with one field added or replaced.
func (r Record) WithField(key string, value any) Record {
	fields := copyFields(r.Fields)
	fields[key] = value
	r.Fields = fields
	return r
}

// WithFields returns a copy of the record with the full field set replaced.
func (r Record) WithFields(fields map[string]any) Record {
	r.Fields = copyFields(fields)
	return r
}

// GetFieldsAsJSONB marshals the caller fields for JSONB storage.
func (r *Record) GetFieldsAsJSONB() (json.RawMessage, error) {
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	return json.Marshal(r.Fields)
}

// FromJSONBFields decodes a JSONB payload back into a fields map.
func FromJSONBFields(fieldsJSON json.RawMessage) (map[string]any, error) {
	var fields map[string]any
	err := json.Unmarshal(fieldsJSON, &fields)
	return fields, err
}

// copyFields creates a shallow copy of the fields map so transitions never
// alias caller-owned maps.
func copyFields(fields map[string]any) map[string]any {
	newFields := make(map[string]any, len(fields))
	for k, v := range fields {
		newFields[k] = v
	}
	return newFields
}
