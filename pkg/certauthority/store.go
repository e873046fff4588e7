package certauthority

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
CREATE TABLE IF NOT EXISTS certificates (
	cert_id  TEXT PRIMARY KEY,
	status   TEXT NOT NULL,
	payload  TEXT NOT NULL
);
`

// Store persists SignedCertificates keyed by certId.
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

// Put inserts or replaces cert.
func (s *Store) Put(ctx context.Context, cert SignedCertificate) error {
	raw, err := json.Marshal(cert)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO certificates (cert_id, status, payload) VALUES (?, ?, ?)
		ON CONFLICT(cert_id) DO UPDATE SET status=excluded.status, payload=excluded.payload
	`, cert.Payload.CertID, cert.Payload.Status, raw)
	return err
}

// Get returns the certificate for certID, or ErrCertificateNotFound.
func (s *Store) Get(ctx context.Context, certID string) (SignedCertificate, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM certificates WHERE cert_id = ?`, certID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return SignedCertificate{}, ErrCertificateNotFound
	}
	if err != nil {
		return SignedCertificate{}, err
	}
	var cert SignedCertificate
	if err := json.Unmarshal([]byte(raw), &cert); err != nil {
		return SignedCertificate{}, err
	}
	return cert, nil
}

// List returns every certificate in ascending certId order.
func (s *Store) List(ctx context.Context) ([]SignedCertificate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM certificates ORDER BY cert_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	certs := make([]SignedCertificate, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var cert SignedCertificate
		if err := json.Unmarshal([]byte(raw), &cert); err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, rows.Err()
}
