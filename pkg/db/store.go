package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/japaniel/contractsort/pkg/metadata"
	"github.com/japaniel/contractsort/pkg/registry"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store is a registry.Store backed by SQLite. Each commit upserts the
// changed records inside one transaction.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ registry.Store = (*Store)(nil)

// NewStore wraps an already migrated connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// OpenStore opens the database at path and returns a migrated Store.
func OpenStore(path string) (*Store, error) {
	conn, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	return NewStore(conn), nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads every record.
func (s *Store) Load(ctx context.Context) ([]metadata.Record, error) {
	return queryRecords(ctx, s.db, `SELECT tracking_id, payload FROM records ORDER BY tracking_id`)
}

// Commit upserts c.Changed atomically.
func (s *Store) Commit(ctx context.Context, c registry.Commit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	now := s.now().UTC()
	for _, rec := range c.Changed {
		if err := UpsertRecord(ctx, tx, rec, now); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpsertRecord inserts rec or replaces the row with the same tracking id.
func UpsertRecord(ctx context.Context, db DBExecutor, rec metadata.Record, now time.Time) error {
	if rec.TrackingID == "" {
		return registry.ErrInvalidRecord
	}
	row, err := rowFromRecord(rec, now)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.TrackingID, err)
	}
	_, err = db.ExecContext(ctx, `INSERT INTO records
	(tracking_id, source_name, document_type, retention_category, status, expiration_date, payload, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(tracking_id) DO UPDATE SET
	  source_name = excluded.source_name,
	  document_type = excluded.document_type,
	  retention_category = excluded.retention_category,
	  status = excluded.status,
	  expiration_date = excluded.expiration_date,
	  payload = excluded.payload,
	  updated_at = excluded.updated_at`,
		row.TrackingID, row.SourceName, row.DocumentType, row.RetentionCategory,
		row.Status, row.ExpirationDate, row.Payload, row.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert record %s: %w", rec.TrackingID, err)
	}
	return nil
}

func queryRecords(ctx context.Context, db DBExecutor, query string, args ...interface{}) ([]metadata.Record, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []metadata.Record
	for rows.Next() {
		var row RecordRow
		if err := rows.Scan(&row.TrackingID, &row.Payload); err != nil {
			return nil, err
		}
		rec, err := row.record()
		if err != nil {
			return nil, fmt.Errorf("%w: row %s: %v", registry.ErrCorrupt, row.TrackingID, err)
		}
		if rec.TrackingID != row.TrackingID {
			return nil, fmt.Errorf("%w: row %s holds record %q", registry.ErrCorrupt, row.TrackingID, rec.TrackingID)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
