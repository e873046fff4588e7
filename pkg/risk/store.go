package risk

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
CREATE TABLE IF NOT EXISTS ledger_events (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	cert_id     TEXT NOT NULL,
	occurred_at TEXT NOT NULL,
	payload     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_risk_ledger_cert ON ledger_events(cert_id, occurred_at DESC);

CREATE TABLE IF NOT EXISTS listing_audit_events (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	listing_id  TEXT NOT NULL,
	cert_id     TEXT NOT NULL,
	actor       TEXT NOT NULL DEFAULT '',
	occurred_at TEXT NOT NULL,
	payload     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_risk_audit_listing ON listing_audit_events(listing_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_risk_audit_cert ON listing_audit_events(cert_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_risk_audit_actor ON listing_audit_events(actor, occurred_at DESC);

CREATE TABLE IF NOT EXISTS profiles (
	target     TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	score      INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	alert_id    TEXT NOT NULL,
	target_type TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	payload     TEXT NOT NULL
);
`

// Store persists the risk engine's event logs, profiles, and alerts.
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

// AppendLedgerEvent appends event to the append-only ledger-event log.
func (s *Store) AppendLedgerEvent(ctx context.Context, event LedgerEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO ledger_events (cert_id, occurred_at, payload) VALUES (?, ?, ?)`,
		event.CertID, event.OccurredAt.Format(time.RFC3339Nano), raw)
	return err
}

// LedgerEventsForCert returns every ledger event recorded for certID.
func (s *Store) LedgerEventsForCert(ctx context.Context, certID string) ([]LedgerEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM ledger_events WHERE cert_id = ? ORDER BY seq ASC`, certID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLedgerEvents(rows)
}

// AppendListingAudit appends event to the append-only listing-audit log.
func (s *Store) AppendListingAudit(ctx context.Context, event ListingAuditEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO listing_audit_events (listing_id, cert_id, actor, occurred_at, payload) VALUES (?, ?, ?, ?, ?)`,
		event.ListingID, event.CertID, event.Actor, event.OccurredAt.Format(time.RFC3339Nano), raw)
	return err
}

// ListingAuditForListing returns every audit event recorded for listingID.
func (s *Store) ListingAuditForListing(ctx context.Context, listingID string) ([]ListingAuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM listing_audit_events WHERE listing_id = ? ORDER BY seq ASC`, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListingAudit(rows)
}

// ListingAuditForCert returns every audit event touching certID, across
// all listings.
func (s *Store) ListingAuditForCert(ctx context.Context, certID string) ([]ListingAuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM listing_audit_events WHERE cert_id = ? ORDER BY seq ASC`, certID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListingAudit(rows)
}

func scanLedgerEvents(rows *sql.Rows) ([]LedgerEvent, error) {
	events := make([]LedgerEvent, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e LedgerEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanListingAudit(rows *sql.Rows) ([]ListingAuditEvent, error) {
	events := make([]ListingAuditEvent, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e ListingAuditEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ErrProfileNotFound is returned when no profile exists for a target.
var ErrProfileNotFound = errors.New("profile not found")

// UpsertProfile stores profile, keyed by its Target.
func (s *Store) UpsertProfile(ctx context.Context, profile Profile) error {
	raw, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (target, payload, score, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(target) DO UPDATE SET payload=excluded.payload, score=excluded.score, updated_at=excluded.updated_at
	`, profile.Target, raw, profile.Score, profile.UpdatedAt.Format(time.RFC3339Nano))
	return err
}

// GetProfile returns the stored profile for target, or ErrProfileNotFound.
func (s *Store) GetProfile(ctx context.Context, target string) (Profile, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM profiles WHERE target = ?`, target).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// TopProfiles returns up to limit profiles ordered by score descending.
func (s *Store) TopProfiles(ctx context.Context, limit int) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM profiles ORDER BY score DESC, updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := make([]Profile, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var p Profile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// AppendAlert appends alert to the append-only alert log.
func (s *Store) AppendAlert(ctx context.Context, alert Alert) error {
	raw, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO alerts (alert_id, target_type, target_id, created_at, payload) VALUES (?, ?, ?, ?, ?)`,
		alert.AlertID, alert.TargetType, alert.TargetID, alert.CreatedAt.Format(time.RFC3339Nano), raw)
	return err
}

// RecentAlerts returns up to limit alerts, newest first.
func (s *Store) RecentAlerts(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM alerts ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]Alert, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var a Alert
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
