package marketplace

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
CREATE TABLE IF NOT EXISTS listings (
	listing_id TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status, updated_at DESC);

CREATE TABLE IF NOT EXISTS listing_audit (
	event_id    TEXT PRIMARY KEY,
	listing_id  TEXT NOT NULL,
	occurred_at TEXT NOT NULL,
	payload     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listing_audit_listing ON listing_audit(listing_id, occurred_at ASC);

CREATE TABLE IF NOT EXISTS idempotency (
	action  TEXT NOT NULL,
	key     TEXT NOT NULL,
	payload TEXT NOT NULL,
	PRIMARY KEY (action, key)
);
`

// Store persists marketplace listings, their audit trail, and the
// idempotency ledger.
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

// PutListing upserts a listing.
func (s *Store) PutListing(ctx context.Context, l MarketplaceListing) error {
	raw, err := json.Marshal(l)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO listings (listing_id, status, updated_at, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(listing_id) DO UPDATE SET status=excluded.status, updated_at=excluded.updated_at, payload=excluded.payload
	`, l.ListingID, l.Status, l.UpdatedAt.Format(time.RFC3339Nano), raw)
	return err
}

// GetListing returns the listing for listingID, or ErrListingNotFound.
func (s *Store) GetListing(ctx context.Context, listingID string) (MarketplaceListing, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM listings WHERE listing_id = ?`, listingID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return MarketplaceListing{}, ErrListingNotFound
	}
	if err != nil {
		return MarketplaceListing{}, err
	}
	var l MarketplaceListing
	if err := json.Unmarshal([]byte(raw), &l); err != nil {
		return MarketplaceListing{}, err
	}
	return l, nil
}

// ListListings returns listings, optionally filtered by status, newest
// updated first.
func (s *Store) ListListings(ctx context.Context, status string) ([]MarketplaceListing, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT payload FROM listings ORDER BY updated_at DESC`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT payload FROM listings WHERE status = ? ORDER BY updated_at DESC`, status)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	listings := make([]MarketplaceListing, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var l MarketplaceListing
		if err := json.Unmarshal([]byte(raw), &l); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

// AppendAudit appends an audit event for a listing.
func (s *Store) AppendAudit(ctx context.Context, event ListingAuditEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO listing_audit (event_id, listing_id, occurred_at, payload) VALUES (?, ?, ?, ?)`,
		event.EventID, event.ListingID, event.OccurredAt.Format(time.RFC3339Nano), raw)
	return err
}

// Audit returns the audit trail for a listing in append order.
func (s *Store) Audit(ctx context.Context, listingID string) ([]ListingAuditEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM listing_audit WHERE listing_id = ? ORDER BY occurred_at ASC`, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

// PutListingAndAudit persists a listing update and its audit event in a
// single serialized transaction, per the protocol's multi-statement
// write discipline.
func (s *Store) PutListingAndAudit(ctx context.Context, l MarketplaceListing, event ListingAuditEvent) error {
	listingRaw, err := json.Marshal(l)
	if err != nil {
		return err
	}
	auditRaw, err := json.Marshal(event)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Tx().ExecContext(ctx, `
		INSERT INTO listings (listing_id, status, updated_at, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(listing_id) DO UPDATE SET status=excluded.status, updated_at=excluded.updated_at, payload=excluded.payload
	`, l.ListingID, l.Status, l.UpdatedAt.Format(time.RFC3339Nano), listingRaw); err != nil {
		return err
	}
	if _, err := tx.Tx().ExecContext(ctx, `INSERT INTO listing_audit (event_id, listing_id, occurred_at, payload) VALUES (?, ?, ?, ?)`,
		event.EventID, event.ListingID, event.OccurredAt.Format(time.RFC3339Nano), auditRaw); err != nil {
		return err
	}
	return tx.Commit()
}

// CommitMutation persists a listing update, its audit event, and the
// idempotency record that guards it as one serialized transaction, so
// the idempotency key is never observable before the state it guards.
func (s *Store) CommitMutation(ctx context.Context, l MarketplaceListing, event ListingAuditEvent, idem IdempotencyRecord) error {
	listingRaw, err := json.Marshal(l)
	if err != nil {
		return err
	}
	auditRaw, err := json.Marshal(event)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Tx().ExecContext(ctx, `
		INSERT INTO listings (listing_id, status, updated_at, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(listing_id) DO UPDATE SET status=excluded.status, updated_at=excluded.updated_at, payload=excluded.payload
	`, l.ListingID, l.Status, l.UpdatedAt.Format(time.RFC3339Nano), listingRaw); err != nil {
		return err
	}
	if _, err := tx.Tx().ExecContext(ctx, `INSERT INTO listing_audit (event_id, listing_id, occurred_at, payload) VALUES (?, ?, ?, ?)`,
		event.EventID, event.ListingID, event.OccurredAt.Format(time.RFC3339Nano), auditRaw); err != nil {
		return err
	}
	if idem.Action != "" {
		idemRaw, err := json.Marshal(idem)
		if err != nil {
			return err
		}
		if _, err := tx.Tx().ExecContext(ctx, `
			INSERT INTO idempotency (action, key, payload) VALUES (?, ?, ?)
			ON CONFLICT(action, key) DO NOTHING
		`, idem.Action, idem.Key, idemRaw); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ErrIdempotencyNotFound is returned when no record exists for
// (action, key).
var ErrIdempotencyNotFound = errors.New("idempotency record not found")

// GetIdempotency returns the stored record for (action, key), if any.
func (s *Store) GetIdempotency(ctx context.Context, action, key string) (IdempotencyRecord, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM idempotency WHERE action = ? AND key = ?`, action, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return IdempotencyRecord{}, ErrIdempotencyNotFound
	}
	if err != nil {
		return IdempotencyRecord{}, err
	}
	var rec IdempotencyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return IdempotencyRecord{}, err
	}
	return rec, nil
}

// PutIdempotency stores the first successful response for (action, key).
func (s *Store) PutIdempotency(ctx context.Context, rec IdempotencyRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO idempotency (action, key, payload) VALUES (?, ?, ?)
		ON CONFLICT(action, key) DO NOTHING
	`, rec.Action, rec.Key, raw)
	return err
}
