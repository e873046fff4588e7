// Package marketplace implements the DGC protocol's marketplace escrow
// engine (component H): a persistent listing state machine, idempotent
// escrow operations, two-phase settlement with compensating rollback,
// freeze gating, and coordination with the certificate authority, risk
// engine, reconciliation controller, and dispute orchestrator.
package marketplace

import "time"

// Status values for MarketplaceListing.Status.
const (
	StatusOpen      = "OPEN"
	StatusLocked    = "LOCKED"
	StatusSettled   = "SETTLED"
	StatusCancelled = "CANCELLED"
)

// MarketplaceListing is the durable state of one escrow listing.
type MarketplaceListing struct {
	ListingID string    `json:"listingId"`
	CertID    string    `json:"certId"`
	Seller    string    `json:"seller"`
	AskPrice  string    `json:"askPrice"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	LockedBy string     `json:"lockedBy,omitempty"`
	LockedAt *time.Time `json:"lockedAt,omitempty"`

	SettledAt     *time.Time `json:"settledAt,omitempty"`
	SettledPrice  string     `json:"settledPrice,omitempty"`

	CancelledAt  *time.Time `json:"cancelledAt,omitempty"`
	CancelReason string     `json:"cancelReason,omitempty"`

	UnderDispute      bool       `json:"underDispute,omitempty"`
	DisputeID         string     `json:"disputeId,omitempty"`
	DisputeStatus     string     `json:"disputeStatus,omitempty"`
	DisputeOpenedAt   *time.Time `json:"disputeOpenedAt,omitempty"`
	DisputeResolvedAt *time.Time `json:"disputeResolvedAt,omitempty"`
}

// ListingAuditEvent is one append-only audit entry for a listing.
type ListingAuditEvent struct {
	EventID    string                 `json:"eventId"`
	ListingID  string                 `json:"listingId"`
	CertID     string                 `json:"certId"`
	Type       string                 `json:"type"`
	Actor      string                 `json:"actor,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// IdempotencyRecord captures a replayable mutating response, keyed by
// (action, key).
type IdempotencyRecord struct {
	Action       string    `json:"action"`
	Key          string    `json:"key"`
	RequestHash  string    `json:"requestHash"`
	StatusCode   int       `json:"statusCode"`
	ResponseBody []byte    `json:"responseBody"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DomainError is a machine-coded, HTTP-status-carrying error for every
// expected marketplace rejection (state conflicts, owner/buyer
// mismatches, idempotency violations, freeze gating).
type DomainError struct {
	Status      int
	Code        string
	Message     string
	FreezeState interface{}
}

func (e *DomainError) Error() string { return e.Message }

// ErrListingNotFound is returned when a listingId has no listing.
var ErrListingNotFound = &DomainError{Status: 404, Code: "listing_not_found", Message: "listing not found"}

// ErrMissingIdempotencyKey is returned when a mutating operation that
// requires idempotency-key does not carry one.
var ErrMissingIdempotencyKey = &DomainError{Status: 400, Code: "missing_idempotency_key", Message: "idempotency-key header is required"}

// ErrIdempotencyKeyReuseConflict is returned when the same (action,key)
// is replayed with a different request body.
var ErrIdempotencyKeyReuseConflict = &DomainError{Status: 409, Code: "idempotency_key_reuse_conflict", Message: "idempotency key reused with a different request body"}

func ownerMismatch() *DomainError {
	return &DomainError{Status: 409, Code: "owner_mismatch", Message: "seller does not match current certificate owner"}
}

func stateConflict(message string) *DomainError {
	return &DomainError{Status: 409, Code: "state_conflict", Message: message}
}

func buyerMismatch() *DomainError {
	return &DomainError{Status: 409, Code: "buyer_mismatch", Message: "buyer does not match the listing's lockedBy"}
}

func certificateServiceError(status int, message string) *DomainError {
	if status == 404 {
		return &DomainError{Status: 404, Code: "certificate_not_found", Message: message}
	}
	if status == 409 {
		return &DomainError{Status: 409, Code: "state_conflict", Message: message}
	}
	return &DomainError{Status: 502, Code: "collaborator_error", Message: message}
}
