// Package postgres implements storage.Store on a pgx connection pool.
// Soft-deleted rows are filtered in SQL so no read path has to repeat the
// exclusion rule.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/agriffard/SoftTrack/internal/db"
	"github.com/agriffard/SoftTrack/internal/domain"
	"github.com/agriffard/SoftTrack/internal/storage"
)

// dbtx is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// letting the same queries run pooled or transaction-scoped.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements storage.Store against Postgres.
type Store struct {
	conn   *db.Connection
	db     dbtx
	ledger bool
}

// Option configures a Store.
type Option func(*Store)

// WithoutLedger disables the history store, mimicking a deployment where
// the ledger collaborator is not configured.
func WithoutLedger() Option {
	return func(s *Store) { s.ledger = false }
}

// New creates a Postgres-backed store on the given connection.
func New(conn *db.Connection, opts ...Option) *Store {
	s := &Store{conn: conn, db: conn.Pool, ledger: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Records() storage.RecordStore { return records{s.db} }

func (s *Store) History() storage.HistoryStore {
	if !s.ledger {
		return nil
	}
	return history{s.db}
}

// WithinTx runs fn against a transaction-scoped store, delegating
// transaction lifecycle (including panic rollback) to db.Connection.
// Nested calls reuse the open transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(storage.Store) error) error {
	if s.conn == nil {
		return fn(s)
	}

	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(&Store{db: tx, ledger: s.ledger})
	})
}

const recordColumns = "id, fields, version, is_deleted, created_at, created_by, updated_at, updated_by, deleted_at, deleted_by"

type records struct{ db dbtx }

func (r records) Get(ctx context.Context, id uuid.UUID, includeDeleted bool) (domain.Record, bool, error) {
	query := "SELECT " + recordColumns + " FROM records WHERE id = $1"
	if !includeDeleted {
		query += " AND NOT is_deleted"
	}

	rec, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, false, nil
		}
		return domain.Record{}, false, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, true, nil
}

func (r records) List(ctx context.Context, includeDeleted bool) ([]domain.Record, error) {
	query := "SELECT " + recordColumns + " FROM records"
	if !includeDeleted {
		query += " WHERE NOT is_deleted"
	}
	query += " ORDER BY created_at, id"

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}
	return out, nil
}

func (r records) Insert(ctx context.Context, rec domain.Record) error {
	fieldsJSON, err := rec.GetFieldsAsJSONB()
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, fieldsJSON, rec.Version, rec.IsDeleted,
		rec.CreatedAt, rec.CreatedBy, rec.UpdatedAt, rec.UpdatedBy,
		rec.DeletedAt, rec.DeletedBy,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return fmt.Errorf("insert record %s: %w", rec.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func (r records) Update(ctx context.Context, rec domain.Record) error {
	fieldsJSON, err := rec.GetFieldsAsJSONB()
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE records
		SET fields = $2, version = $3, is_deleted = $4,
		    updated_at = $5, updated_by = $6, deleted_at = $7, deleted_by = $8
		WHERE id = $1`,
		rec.ID, fieldsJSON, rec.Version, rec.IsDeleted,
		rec.UpdatedAt, rec.UpdatedBy, rec.DeletedAt, rec.DeletedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanRecord(row pgx.Row) (domain.Record, error) {
	var rec domain.Record
	var fieldsJSON json.RawMessage
	err := row.Scan(
		&rec.ID, &fieldsJSON, &rec.Version, &rec.IsDeleted,
		&rec.CreatedAt, &rec.CreatedBy, &rec.UpdatedAt, &rec.UpdatedBy,
		&rec.DeletedAt, &rec.DeletedBy,
	)
	if err != nil {
		return domain.Record{}, err
	}

	rec.Fields, err = domain.FromJSONBFields(fieldsJSON)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to decode fields for record %s: %w", rec.ID, err)
	}
	return rec, nil
}

const historyColumns = "id, record_id, version, snapshot, operation, performed_at, performed_by"

type history struct{ db dbtx }

func (h history) Append(ctx context.Context, entry domain.HistoryEntry) error {
	_, err := h.db.Exec(ctx, `
		INSERT INTO record_history (`+historyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, entry.RecordID, entry.Version, entry.Snapshot,
		string(entry.Operation), entry.PerformedAt, entry.PerformedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

func (h history) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]domain.HistoryEntry, error) {
	rows, err := h.db.Query(ctx,
		"SELECT "+historyColumns+" FROM record_history WHERE record_id = $1 ORDER BY version ASC",
		recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return out, nil
}

func (h history) GetByVersion(ctx context.Context, recordID uuid.UUID, version int64) (domain.HistoryEntry, bool, error) {
	entry, err := scanHistoryEntry(h.db.QueryRow(ctx,
		"SELECT "+historyColumns+" FROM record_history WHERE record_id = $1 AND version = $2",
		recordID, version,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.HistoryEntry{}, false, nil
		}
		return domain.HistoryEntry{}, false, fmt.Errorf("failed to get history entry: %w", err)
	}
	return entry, true, nil
}

func scanHistoryEntry(row pgx.Row) (domain.HistoryEntry, error) {
	var entry domain.HistoryEntry
	var operation string
	err := row.Scan(
		&entry.ID, &entry.RecordID, &entry.Version, &entry.Snapshot,
		&operation, &entry.PerformedAt, &entry.PerformedBy,
	)
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	entry.Operation = domain.Operation(operation)
	return entry, nil
}
