package dispute

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/certen/dgc-protocol/pkg/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS disputes (
	dispute_id TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_disputes_status ON disputes(status, updated_at DESC);
`

// Store persists dispute records.
type Store struct {
	db *database.Client
}

// NewStore opens/creates path and applies the schema.
func NewStore(path string, logger *log.Logger) (*Store, error) {
	var opts []database.ClientOption
	if logger != nil {
		opts = append(opts, database.WithLogger(logger))
	}
	db, err := database.NewClient(path, opts...)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.ApplySchema(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Health reports the underlying database connection's health.
func (s *Store) Health(ctx context.Context) (*database.HealthStatus, error) {
	return s.db.Health(ctx)
}

// Put upserts a dispute record.
func (s *Store) Put(ctx context.Context, d DisputeRecord) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	updatedAt := d.OpenedAt
	if d.ResolvedAt != nil {
		updatedAt = *d.ResolvedAt
	} else if d.AssignedAt != nil {
		updatedAt = *d.AssignedAt
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO disputes (dispute_id, status, updated_at, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(dispute_id) DO UPDATE SET status=excluded.status, updated_at=excluded.updated_at, payload=excluded.payload
	`, d.DisputeID, d.Status, updatedAt.Format(time.RFC3339Nano), raw)
	return err
}

// Get returns the dispute record for disputeID, or ErrDisputeNotFound.
func (s *Store) Get(ctx context.Context, disputeID string) (DisputeRecord, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM disputes WHERE dispute_id = ?`, disputeID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return DisputeRecord{}, ErrDisputeNotFound
	}
	if err != nil {
		return DisputeRecord{}, err
	}
	var d DisputeRecord
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return DisputeRecord{}, err
	}
	return d, nil
}

// List returns disputes, optionally filtered by status, newest-updated
// first.
func (s *Store) List(ctx context.Context, status string) ([]DisputeRecord, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT payload FROM disputes ORDER BY updated_at DESC`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT payload FROM disputes WHERE status = ? ORDER BY updated_at DESC`, status)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	disputes := make([]DisputeRecord, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var d DisputeRecord
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, err
		}
		disputes = append(disputes, d)
	}
	return disputes, rows.Err()
}
