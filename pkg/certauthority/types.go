// Package certauthority implements the DGC protocol's certificate
// authority (component D): canonical hashing, issuer signing, the
// certificate lifecycle state machine, and amount-conserving split.
package certauthority

import (
	"errors"
	"time"
)

// Status values for GoldCertificate.Status.
const (
	StatusActive   = "ACTIVE"
	StatusLocked   = "LOCKED"
	StatusRedeemed = "REDEEMED"
	StatusRevoked  = "REVOKED"
)

// allowedTransitions encodes §4.D's status machine.
var allowedTransitions = map[string]map[string]bool{
	StatusActive: {StatusLocked: true, StatusRedeemed: true, StatusRevoked: true},
	StatusLocked: {StatusActive: true, StatusRedeemed: true, StatusRevoked: true},
}

// CanTransition reports whether from->to is an allowed status
// transition.
func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// GoldCertificate is the certificate payload: everything the signature
// covers.
type GoldCertificate struct {
	CertID     string                 `json:"certId"`
	Issuer     string                 `json:"issuer"`
	Owner      string                 `json:"owner"`
	AmountGram string                 `json:"amountGram"`
	Purity     string                 `json:"purity"`
	IssuedAt   time.Time              `json:"issuedAt"`
	Status     string                 `json:"status"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// SignedCertificate is a payload plus its canonical hash and issuer
// signature.
type SignedCertificate struct {
	Payload     GoldCertificate `json:"payload"`
	PayloadHash string          `json:"payloadHash"`
	Signature   string          `json:"signature"`
}

// VerifyResult is the response shape of the verify operation.
type VerifyResult struct {
	Valid           bool   `json:"valid"`
	HashMatches     bool   `json:"hashMatches"`
	SignatureValid  bool   `json:"signatureValid"`
	Status          string `json:"status,omitempty"`
}

// OutboundOutcome classifies a best-effort outbound call per the
// protocol's message-exchange design note.
type OutboundOutcome string

const (
	OutcomeAnchored OutboundOutcome = "ANCHORED"
	OutcomeRecorded OutboundOutcome = "RECORDED"
	OutcomeSkipped  OutboundOutcome = "SKIPPED"
	OutcomeFailed   OutboundOutcome = "FAILED"
)

// IssueResult bundles the signed certificate with the outcome of its
// proof anchor and event record calls.
type IssueResult struct {
	Certificate  SignedCertificate `json:"certificate"`
	AnchorStatus OutboundOutcome   `json:"anchorStatus"`
	EventStatus  OutboundOutcome   `json:"eventStatus"`
}

// ErrCertificateNotFound is returned when a certId has no certificate.
var ErrCertificateNotFound = errors.New("certificate_not_found")

// ErrInvalidAmount is returned for malformed or out-of-range amounts.
var ErrInvalidAmount = errors.New("invalid_amount")

// ErrInvalidPurity is returned for malformed purity strings.
var ErrInvalidPurity = errors.New("invalid_purity")

// StateConflictError carries the exact transition-violation message the
// protocol requires.
type StateConflictError struct {
	From, To string
}

func (e *StateConflictError) Error() string {
	return "Transition " + e.From + " -> " + e.To + " is not allowed"
}
