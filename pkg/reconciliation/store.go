package reconciliation

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
CREATE TABLE IF NOT EXISTS reconciliation_runs (
	run_id     TEXT PRIMARY KEY,
	created_at TEXT NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recon_runs_created ON reconciliation_runs(created_at DESC);

CREATE TABLE IF NOT EXISTS freeze_state (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	payload    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS freeze_overrides (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	override_id TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	payload     TEXT NOT NULL
);
`

// Store persists reconciliation runs, the freeze singleton, and freeze
// overrides.
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

// PutRun persists a completed reconciliation run.
func (s *Store) PutRun(ctx context.Context, run ReconciliationRun) error {
	raw, err := json.Marshal(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_runs (run_id, created_at, payload) VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET payload=excluded.payload
	`, run.RunID, run.CreatedAt.Format(time.RFC3339Nano), raw)
	return err
}

// LatestRun returns the most recently created run, or (nil, nil) if
// none exists.
func (s *Store) LatestRun(ctx context.Context) (*ReconciliationRun, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM reconciliation_runs ORDER BY created_at DESC LIMIT 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var run ReconciliationRun
	if err := json.Unmarshal([]byte(raw), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// HistoryRuns returns up to limit runs, newest first.
func (s *Store) HistoryRuns(ctx context.Context, limit int) ([]ReconciliationRun, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM reconciliation_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]ReconciliationRun, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var run ReconciliationRun
		if err := json.Unmarshal([]byte(raw), &run); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetFreezeState returns the current freeze state, defaulting to
// inactive if never set.
func (s *Store) GetFreezeState(ctx context.Context) (FreezeState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM freeze_state WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return FreezeState{Active: false}, nil
	}
	if err != nil {
		return FreezeState{}, err
	}
	var state FreezeState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return FreezeState{}, err
	}
	return state, nil
}

// PutFreezeState upserts the freeze singleton.
func (s *Store) PutFreezeState(ctx context.Context, state FreezeState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO freeze_state (id, payload) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET payload=excluded.payload
	`, raw)
	return err
}

// AppendOverride appends a governance-audited freeze override record.
func (s *Store) AppendOverride(ctx context.Context, override FreezeOverride) error {
	raw, err := json.Marshal(override)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO freeze_overrides (override_id, created_at, payload) VALUES (?, ?, ?)`,
		override.OverrideID, override.CreatedAt.Format(time.RFC3339Nano), raw)
	return err
}

// Overrides returns up to limit overrides, newest first.
func (s *Store) Overrides(ctx context.Context, limit int) ([]FreezeOverride, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM freeze_overrides ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overrides := make([]FreezeOverride, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var o FreezeOverride
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	return overrides, rows.Err()
}
