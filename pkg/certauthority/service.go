package certauthority

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/certen/dgc-protocol/pkg/amount"
	"github.com/certen/dgc-protocol/pkg/crypto"
	"github.com/certen/dgc-protocol/pkg/database"
	"github.com/certen/dgc-protocol/pkg/httpx"
)

var purityPattern = regexp.MustCompile(`^\d{3}\.\d$`)

// Service implements the certificate authority's operation contracts.
type Service struct {
	store      *Store
	issuerSk   string
	issuerPk   string
	ledger     *httpx.Client
	ledgerURL  string
}

// NewService constructs a Service. ledgerURL may be empty, in which case
// every outbound proof/event call is reported SKIPPED.
func NewService(store *Store, issuerSkHex string, ledger *httpx.Client, ledgerURL string) (*Service, error) {
	issuerPk, err := crypto.DerivePublicKey(issuerSkHex)
	if err != nil {
		return nil, fmt.Errorf("derive issuer public key: %w", err)
	}
	return &Service{store: store, issuerSk: issuerSkHex, issuerPk: issuerPk, ledger: ledger, ledgerURL: ledgerURL}, nil
}

// Health reports the service's storage health.
func (s *Service) Health(ctx context.Context) (*database.HealthStatus, error) {
	return s.store.Health(ctx)
}

func newCertID() string {
	return "DGC-" + time.Now().UTC().Format("20060102T150405.000000Z") + "-" + uuid.New().String()[:8]
}

func (s *Service) sign(payload GoldCertificate) (SignedCertificate, error) {
	hash, err := crypto.HashCanonical(payload)
	if err != nil {
		return SignedCertificate{}, err
	}
	sig, err := crypto.Sign(hash, s.issuerSk)
	if err != nil {
		return SignedCertificate{}, err
	}
	return SignedCertificate{Payload: payload, PayloadHash: hash, Signature: sig}, nil
}

// Issue validates amountGram/purity, mints a fresh certificate, signs
// and persists it, then best-effort anchors a proof and records an
// ISSUED event.
func (s *Service) Issue(ctx context.Context, owner, amountGram, purity string, metadata map[string]interface{}) (IssueResult, error) {
	if _, err := amount.Parse(amountGram); err != nil {
		return IssueResult{}, ErrInvalidAmount
	}
	if !purityPattern.MatchString(purity) {
		return IssueResult{}, ErrInvalidPurity
	}

	payload := GoldCertificate{
		CertID:     newCertID(),
		Issuer:     s.issuerPk,
		Owner:      owner,
		AmountGram: amountGram,
		Purity:     purity,
		IssuedAt:   time.Now().UTC(),
		Status:     StatusActive,
		Metadata:   metadata,
	}
	signed, err := s.sign(payload)
	if err != nil {
		return IssueResult{}, err
	}
	if err := s.store.Put(ctx, signed); err != nil {
		return IssueResult{}, err
	}

	anchorOutcome := s.anchorProof(ctx, signed.Payload.CertID, signed.PayloadHash, payload.IssuedAt)
	eventOutcome := s.recordEvent(ctx, eventPayload{
		Kind:       "ISSUED",
		CertID:     payload.CertID,
		OccurredAt: payload.IssuedAt,
		Owner:      owner,
		AmountGram: amountGram,
		Purity:     purity,
	})

	return IssueResult{Certificate: signed, AnchorStatus: anchorOutcome, EventStatus: eventOutcome}, nil
}

// Get returns the certificate for certID, or ErrCertificateNotFound.
func (s *Service) Get(ctx context.Context, certID string) (SignedCertificate, error) {
	return s.store.Get(ctx, certID)
}

// List returns every certificate in ascending certId order.
func (s *Service) List(ctx context.Context) ([]SignedCertificate, error) {
	return s.store.List(ctx)
}

// Verify recomputes the payload hash and signature validity for a
// stored certificate.
func (s *Service) Verify(ctx context.Context, certID string) (VerifyResult, error) {
	cert, err := s.store.Get(ctx, certID)
	if err != nil {
		return VerifyResult{}, err
	}
	return s.verifyCertificate(cert), nil
}

// VerifyCertificate checks an arbitrary (possibly tampered) certificate
// object rather than one fetched by id, per the verify(certificate)
// overload.
func (s *Service) VerifyCertificate(cert SignedCertificate) VerifyResult {
	return s.verifyCertificate(cert)
}

func (s *Service) verifyCertificate(cert SignedCertificate) VerifyResult {
	recomputed, err := crypto.HashCanonical(cert.Payload)
	if err != nil {
		return VerifyResult{Valid: false, HashMatches: false, SignatureValid: false, Status: cert.Payload.Status}
	}
	hashMatches := recomputed == cert.PayloadHash
	signatureValid := false
	if hashMatches {
		signatureValid = crypto.Verify(cert.PayloadHash, cert.Signature, cert.Payload.Issuer)
	}
	return VerifyResult{
		Valid:          hashMatches && signatureValid,
		HashMatches:    hashMatches,
		SignatureValid: signatureValid,
		Status:         cert.Payload.Status,
	}
}

// Transfer moves ownership of an ACTIVE certificate to a new owner.
func (s *Service) Transfer(ctx context.Context, certID, toOwner, price string) (IssueResult, error) {
	cert, err := s.store.Get(ctx, certID)
	if err != nil {
		return IssueResult{}, err
	}
	if cert.Payload.Status != StatusActive {
		return IssueResult{}, &StateConflictError{From: cert.Payload.Status, To: cert.Payload.Status}
	}

	fromOwner := cert.Payload.Owner
	now := time.Now().UTC()
	payload := cert.Payload
	payload.Owner = toOwner
	if payload.Metadata == nil {
		payload.Metadata = map[string]interface{}{}
	}
	payload.Metadata["lastTransferAt"] = now.Format(time.RFC3339)
	if price != "" {
		payload.Metadata["lastTransferPrice"] = price
	}

	signed, err := s.sign(payload)
	if err != nil {
		return IssueResult{}, err
	}
	if err := s.store.Put(ctx, signed); err != nil {
		return IssueResult{}, err
	}

	anchorOutcome := s.anchorProof(ctx, certID, signed.PayloadHash, now)
	eventOutcome := s.recordEvent(ctx, eventPayload{
		Kind:       "TRANSFER",
		CertID:     certID,
		OccurredAt: now,
		From:       fromOwner,
		To:         toOwner,
		AmountGram: payload.AmountGram,
		Price:      price,
	})

	return IssueResult{Certificate: signed, AnchorStatus: anchorOutcome, EventStatus: eventOutcome}, nil
}

// SplitResult bundles the parent/child certificates after a conserving
// split.
type SplitResult struct {
	Parent       SignedCertificate `json:"parent"`
	Child        SignedCertificate `json:"child"`
	AnchorStatus OutboundOutcome   `json:"anchorStatus"`
	EventStatus  OutboundOutcome   `json:"eventStatus"`
}

// Split carves a child certificate of amountChildGram off parentCertID,
// preserving parent ownership and conserving the total scaled amount
// exactly.
func (s *Service) Split(ctx context.Context, parentCertID, toOwner, amountChildGram, price string) (SplitResult, error) {
	parent, err := s.store.Get(ctx, parentCertID)
	if err != nil {
		return SplitResult{}, err
	}
	if parent.Payload.Status != StatusActive {
		return SplitResult{}, &StateConflictError{From: parent.Payload.Status, To: parent.Payload.Status}
	}

	parentScaled, err := amount.Parse(parent.Payload.AmountGram)
	if err != nil {
		return SplitResult{}, ErrInvalidAmount
	}
	childScaled, err := amount.Parse(amountChildGram)
	if err != nil || childScaled <= 0 || childScaled >= parentScaled {
		return SplitResult{}, ErrInvalidAmount
	}

	now := time.Now().UTC()
	parentRemaining := parentScaled - childScaled

	childPayload := GoldCertificate{
		CertID:     newCertID(),
		Issuer:     parent.Payload.Issuer,
		Owner:      toOwner,
		AmountGram: amount.Format(childScaled),
		Purity:     parent.Payload.Purity,
		IssuedAt:   now,
		Status:     StatusActive,
		Metadata:   map[string]interface{}{"splitFromCertId": parentCertID},
	}
	childSigned, err := s.sign(childPayload)
	if err != nil {
		return SplitResult{}, err
	}

	parentPayload := parent.Payload
	parentPayload.AmountGram = amount.Format(parentRemaining)
	if parentPayload.Metadata == nil {
		parentPayload.Metadata = map[string]interface{}{}
	}
	parentPayload.Metadata["lastSplitAt"] = now.Format(time.RFC3339)
	parentSigned, err := s.sign(parentPayload)
	if err != nil {
		return SplitResult{}, err
	}

	if err := s.store.Put(ctx, parentSigned); err != nil {
		return SplitResult{}, err
	}
	if err := s.store.Put(ctx, childSigned); err != nil {
		return SplitResult{}, err
	}

	parentAnchor := s.anchorProof(ctx, parentCertID, parentSigned.PayloadHash, now)
	childAnchor := s.anchorProof(ctx, childPayload.CertID, childSigned.PayloadHash, now)
	eventOutcome := s.recordEvent(ctx, eventPayload{
		Kind:            "SPLIT",
		CertID:          parentCertID,
		OccurredAt:      now,
		ParentCertID:    parentCertID,
		ChildCertID:     childPayload.CertID,
		From:            parent.Payload.Owner,
		To:              toOwner,
		AmountChildGram: amountChildGram,
	})

	return SplitResult{
		Parent:       parentSigned,
		Child:        childSigned,
		AnchorStatus: combineOutcomes(parentAnchor, childAnchor),
		EventStatus:  eventOutcome,
	}, nil
}

func combineOutcomes(a, b OutboundOutcome) OutboundOutcome {
	if a == OutcomeFailed || b == OutcomeFailed {
		return OutcomeFailed
	}
	if a == OutcomeAnchored || b == OutcomeAnchored {
		return OutcomeAnchored
	}
	return OutcomeSkipped
}

// Status transitions certID to next, enforcing the status machine.
func (s *Service) Status(ctx context.Context, certID, next string) (SignedCertificate, error) {
	cert, err := s.store.Get(ctx, certID)
	if err != nil {
		return SignedCertificate{}, err
	}
	current := cert.Payload.Status
	if !CanTransition(current, next) {
		return SignedCertificate{}, &StateConflictError{From: current, To: next}
	}

	now := time.Now().UTC()
	payload := cert.Payload
	payload.Status = next
	if payload.Metadata == nil {
		payload.Metadata = map[string]interface{}{}
	}
	payload.Metadata["lastStatusChangeAt"] = now.Format(time.RFC3339)

	signed, err := s.sign(payload)
	if err != nil {
		return SignedCertificate{}, err
	}
	if err := s.store.Put(ctx, signed); err != nil {
		return SignedCertificate{}, err
	}

	s.anchorProof(ctx, certID, signed.PayloadHash, now)
	s.recordEvent(ctx, eventPayload{Kind: "STATUS_CHANGED", CertID: certID, OccurredAt: now, Status: next})

	return signed, nil
}

// eventPayload mirrors the ledger adapter's Event shape; kept local to
// avoid a dependency on the ledger package from the certificate
// authority, per the protocol's no-cyclic-back-reference design note.
type eventPayload struct {
	Kind            string    `json:"kind"`
	CertID          string    `json:"certId"`
	OccurredAt      time.Time `json:"occurredAt"`
	Owner           string    `json:"owner,omitempty"`
	AmountGram      string    `json:"amountGram,omitempty"`
	Purity          string    `json:"purity,omitempty"`
	From            string    `json:"from,omitempty"`
	To              string    `json:"to,omitempty"`
	Price           string    `json:"price,omitempty"`
	ParentCertID    string    `json:"parentCertId,omitempty"`
	ChildCertID     string    `json:"childCertId,omitempty"`
	AmountChildGram string    `json:"amountChildGram,omitempty"`
	Status          string    `json:"status,omitempty"`
}

func (s *Service) anchorProof(ctx context.Context, certID, payloadHash string, occurredAt time.Time) OutboundOutcome {
	if s.ledger == nil || s.ledgerURL == "" {
		return OutcomeSkipped
	}
	res := s.ledger.PostJSON(ctx, httpx.PrimaryDeadline, s.ledgerURL+"/proofs/anchor", map[string]interface{}{
		"certId":      certID,
		"payloadHash": payloadHash,
		"occurredAt":  occurredAt,
	}, nil)
	if res.OK() {
		return OutcomeAnchored
	}
	return OutcomeFailed
}

func (s *Service) recordEvent(ctx context.Context, event eventPayload) OutboundOutcome {
	if s.ledger == nil || s.ledgerURL == "" {
		return OutcomeSkipped
	}
	res := s.ledger.PostJSON(ctx, httpx.PrimaryDeadline, s.ledgerURL+"/events/record", event, nil)
	if res.OK() {
		return OutcomeRecorded
	}
	return OutcomeFailed
}

// Timeline proxies to the ledger adapter's /events/:certId endpoint.
func (s *Service) Timeline(ctx context.Context, certID string) ([]interface{}, int, error) {
	if s.ledger == nil || s.ledgerURL == "" {
		return nil, 503, fmt.Errorf("ledger_adapter_not_configured")
	}
	res := s.ledger.GetJSON(ctx, httpx.PrimaryDeadline, s.ledgerURL+"/events/"+certID, nil)
	if res.Unreachable {
		return nil, 502, fmt.Errorf("ledger_adapter_unreachable")
	}
	if res.StatusCode == 404 {
		return []interface{}{}, 200, nil
	}
	if !res.OK() {
		return nil, 502, fmt.Errorf("ledger_adapter_error")
	}
	var events []interface{}
	if err := res.DecodeInto(&events); err != nil {
		return nil, 502, fmt.Errorf("ledger_adapter_invalid_response")
	}
	return events, 200, nil
}
