package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/certen/dgc-protocol/pkg/chainwriter"
	"github.com/certen/dgc-protocol/pkg/crypto"
	"github.com/certen/dgc-protocol/pkg/database"
	"github.com/certen/dgc-protocol/pkg/httpx"
)

const schema = `
CREATE TABLE IF NOT EXISTS proof_anchors (
	cert_id      TEXT PRIMARY KEY,
	payload_hash TEXT NOT NULL,
	proof_hash   TEXT NOT NULL,
	anchored_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS ledger_events (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	cert_id     TEXT NOT NULL,
	kind        TEXT NOT NULL,
	occurred_at TEXT NOT NULL,
	payload     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_events_cert ON ledger_events(cert_id, seq);
`

// Store is the ledger adapter's durable backing: a latest-proof-anchor
// table keyed by certId and an append-ordered event timeline per certId.
// This addresses the adapter's only formally open question by giving the
// in-memory-in-the-original design a local SQLite store, matching every
// other service's storage style.
type Store struct {
	db         *database.Client
	chain      chainwriter.ChainWriter
	riskClient *httpx.Client
	riskURL    string
	logger     *log.Logger
}

// NewStore opens/creates path and applies the schema.
func NewStore(path string, chain chainwriter.ChainWriter, riskClient *httpx.Client, riskURL string, logger *log.Logger) (*Store, error) {
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
	if chain == nil {
		chain = chainwriter.Unconfigured{}
	}
	return &Store{db: db, chain: chain, riskClient: riskClient, riskURL: riskURL, logger: logger}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Health reports the underlying database connection's health.
func (s *Store) Health(ctx context.Context) (*database.HealthStatus, error) {
	return s.db.Health(ctx)
}

// Anchor computes and stores the latest proof anchor for certId,
// overwriting any prior anchor.
func (s *Store) Anchor(ctx context.Context, certID, payloadHash string, occurredAt time.Time) (ProofAnchor, error) {
	anchoredAt := time.Now().UTC()
	proofHash, err := crypto.HashCanonical(proofAnchorSource{
		CertID:      certID,
		PayloadHash: payloadHash,
		OccurredAt:  occurredAt,
		AnchoredAt:  anchoredAt,
	})
	if err != nil {
		return ProofAnchor{}, fmt.Errorf("compute proof hash: %w", err)
	}
	anchor := ProofAnchor{CertID: certID, PayloadHash: payloadHash, ProofHash: proofHash, AnchoredAt: anchoredAt}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO proof_anchors (cert_id, payload_hash, proof_hash, anchored_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(cert_id) DO UPDATE SET payload_hash=excluded.payload_hash, proof_hash=excluded.proof_hash, anchored_at=excluded.anchored_at
	`, certID, payloadHash, proofHash, anchoredAt.Format(time.RFC3339Nano))
	if err != nil {
		return ProofAnchor{}, fmt.Errorf("persist proof anchor: %w", err)
	}
	return anchor, nil
}

// GetProof returns the latest proof anchor for certId, or
// ErrProofNotFound.
func (s *Store) GetProof(ctx context.Context, certID string) (ProofAnchor, error) {
	var anchor ProofAnchor
	var anchoredAt string
	err := s.db.QueryRowContext(ctx, `SELECT cert_id, payload_hash, proof_hash, anchored_at FROM proof_anchors WHERE cert_id = ?`, certID).
		Scan(&anchor.CertID, &anchor.PayloadHash, &anchor.ProofHash, &anchoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ProofAnchor{}, ErrProofNotFound
	}
	if err != nil {
		return ProofAnchor{}, err
	}
	anchor.AnchoredAt, _ = time.Parse(time.RFC3339Nano, anchoredAt)
	return anchor, nil
}

// Record validates event, optionally submits it to the chain sink, and
// appends it to certId's timeline (and, for SPLIT, to childCertId's
// timeline too). If a chain sink is configured and rejects the write,
// the event is not persisted locally: the chain write is the
// authoritative side effect.
func (s *Store) Record(ctx context.Context, event Event) (RecordResult, error) {
	if !event.Valid() {
		return RecordResult{}, ErrInvalidEvent
	}

	var txRef string
	if s.chain.Configured() {
		ref, err := s.chain.Write(ctx, toChainEvent(event))
		if err != nil {
			return RecordResult{}, fmt.Errorf("%w: %v", ErrChainWriteFailed, err)
		}
		txRef = ref
	}

	eventHash, err := crypto.HashCanonical(event)
	if err != nil {
		return RecordResult{}, fmt.Errorf("compute event hash: %w", err)
	}
	event.ProofHash = eventHash

	raw, err := json.Marshal(event)
	if err != nil {
		return RecordResult{}, fmt.Errorf("marshal event: %w", err)
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return RecordResult{}, err
	}
	defer tx.Rollback()

	if _, err := tx.Tx().ExecContext(ctx, `INSERT INTO ledger_events (cert_id, kind, occurred_at, payload) VALUES (?, ?, ?, ?)`,
		event.CertID, string(event.Kind), event.OccurredAt.Format(time.RFC3339Nano), raw); err != nil {
		return RecordResult{}, fmt.Errorf("append event: %w", err)
	}
	if event.Kind == EventSplit {
		if _, err := tx.Tx().ExecContext(ctx, `INSERT INTO ledger_events (cert_id, kind, occurred_at, payload) VALUES (?, ?, ?, ?)`,
			event.ChildCertID, string(event.Kind), event.OccurredAt.Format(time.RFC3339Nano), raw); err != nil {
			return RecordResult{}, fmt.Errorf("append split event to child timeline: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return RecordResult{}, err
	}

	s.fanOutToRisk(event)

	return RecordResult{Event: event, EventHash: eventHash, LedgerTxRef: txRef}, nil
}

// Timeline returns certId's events in arrival order, empty if unknown.
func (s *Store) Timeline(ctx context.Context, certID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM ledger_events WHERE cert_id = ? ORDER BY seq ASC`, certID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ChainStatus reports the chain sink's configuration and connectivity.
func (s *Store) ChainStatus(ctx context.Context) ChainStatus {
	st := s.chain.Status(ctx)
	return ChainStatus{
		Configured:      st.Configured,
		RPCURL:          st.RPCURL,
		RegistryAddress: st.RegistryAddress,
		SignerAddress:   st.SignerAddress,
		LatestBlock:     st.LatestBlock,
		Error:           st.Error,
	}
}

// fanOutToRisk best-effort posts a ledger event to the risk engine with
// a short deadline; failure is silent per the protocol's propagation
// policy for best-effort fan-out.
func (s *Store) fanOutToRisk(event Event) {
	if s.riskClient == nil || s.riskURL == "" {
		return
	}
	res := s.riskClient.PostJSON(context.Background(), httpx.FanoutDeadline, s.riskURL+"/ingest/ledger-event", event, nil)
	if !res.OK() && s.logger != nil {
		s.logger.Printf("risk fan-out for %s failed: %v", event.CertID, res.Err)
	}
}

func toChainEvent(event Event) chainwriter.Event {
	return chainwriter.Event{
		CertID:          event.CertID,
		PayloadHash:     event.ProofHash,
		OccurredAt:      event.OccurredAt,
		Kind:            string(event.Kind),
		Owner:           event.Owner,
		From:            event.From,
		To:              event.To,
		AmountGram:      event.AmountGram,
		Purity:          event.Purity,
		Status:          event.Status,
		ParentCertID:    event.ParentCertID,
		ChildCertID:     event.ChildCertID,
		ChildAmountGram: event.AmountChildGram,
	}
}
