// Package dispute implements the DGC protocol's dispute orchestrator
// (component F): a persistent OPEN->ASSIGNED->RESOLVED state machine
// with governance RBAC on assign/resolve.
package dispute

import (
	"errors"
	"time"
)

// Status values for DisputeRecord.Status.
const (
	StatusOpen     = "OPEN"
	StatusAssigned = "ASSIGNED"
	StatusResolved = "RESOLVED"
)

// Resolution values for DisputeRecord.Resolution.
const (
	ResolutionRefundBuyer  = "REFUND_BUYER"
	ResolutionReleaseSeller = "RELEASE_SELLER"
	ResolutionManualReview = "MANUAL_REVIEW"
)

// DisputeRecord is a single dispute over a settled marketplace listing.
type DisputeRecord struct {
	DisputeID      string     `json:"disputeId"`
	ListingID      string     `json:"listingId"`
	CertID         string     `json:"certId"`
	Status         string     `json:"status"`
	OpenedBy       string     `json:"openedBy"`
	Reason         string     `json:"reason"`
	Evidence       string     `json:"evidence,omitempty"`
	OpenedAt       time.Time  `json:"openedAt"`
	AssignedTo     string     `json:"assignedTo,omitempty"`
	AssignedAt     *time.Time `json:"assignedAt,omitempty"`
	ResolvedBy     string     `json:"resolvedBy,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
	Resolution     string     `json:"resolution,omitempty"`
	ResolutionNotes string    `json:"resolutionNotes,omitempty"`
}

// ErrDisputeNotFound is returned when a disputeId has no record.
var ErrDisputeNotFound = errors.New("dispute_not_found")

// ErrAlreadyResolved is returned when assign/resolve is attempted on a
// RESOLVED dispute.
var ErrAlreadyResolved = errors.New("dispute already resolved")
