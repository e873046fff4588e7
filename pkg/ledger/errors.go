// Copyright 2025 Certen Protocol
//
// Package ledger provides sentinel errors for ledger operations.
// Explicit errors instead of nil, nil returns.

package ledger

import "errors"

// Sentinel errors for ledger operations.
var (
	// ErrProofNotFound is returned when no proof anchor exists for a certId.
	ErrProofNotFound = errors.New("proof not found")

	// ErrInvalidEvent is returned when an event fails Valid() for its Kind.
	ErrInvalidEvent = errors.New("invalid ledger event")

	// ErrChainWriteFailed is returned when a configured chain sink rejects
	// an event write; the event is not persisted locally in that case.
	ErrChainWriteFailed = errors.New("chain write failed")
)
