// Package reconciliation implements the DGC protocol's reconciliation
// and freeze controller (component G): periodic custody-vs-claims
// checks, auto-freeze on threshold breach, and governance-audited
// manual override.
package reconciliation

import (
	"errors"
	"time"
)

// ReconciliationRun is one completed reconciliation pass.
type ReconciliationRun struct {
	RunID                string    `json:"runId"`
	CreatedAt            time.Time `json:"createdAt"`
	CustodyTotalGram     string    `json:"custodyTotalGram"`
	OutstandingTotalGram string    `json:"outstandingTotalGram"`
	MismatchGram         string    `json:"mismatchGram"`
	AbsMismatchGram      string    `json:"absMismatchGram"`
	ThresholdGram        string    `json:"thresholdGram"`
	FreezeTriggered      bool      `json:"freezeTriggered"`
	CertificatesEvaluated int      `json:"certificatesEvaluated"`
	ActiveCertificates   int       `json:"activeCertificates"`
	LockedCertificates   int       `json:"lockedCertificates"`
}

// FreezeState is the singleton freeze flag marketplace writes consult.
type FreezeState struct {
	Active    bool      `json:"active"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
	LastRunID string    `json:"lastRunId,omitempty"`
}

// FreezeOverride is an append-only governance-audited manual override
// record.
type FreezeOverride struct {
	OverrideID     string    `json:"overrideId"`
	Action         string    `json:"action"`
	Actor          string    `json:"actor"`
	Reason         string    `json:"reason"`
	PreviousActive bool      `json:"previousActive"`
	NextActive     bool      `json:"nextActive"`
	CreatedAt      time.Time `json:"createdAt"`
	RunID          string    `json:"runId,omitempty"`
}

// LatestResult bundles the latest run with the current freeze state.
type LatestResult struct {
	Run         *ReconciliationRun `json:"run"`
	FreezeState FreezeState        `json:"freezeState"`
}

// ErrFreezeNotActive is returned when unfreeze is called while the
// freeze state is already inactive.
var ErrFreezeNotActive = errors.New("freeze state is not active")

// ErrCertificateServiceUnavailable is returned when the certificate
// authority returns a non-2xx response.
var ErrCertificateServiceUnavailable = errors.New("certificate_service_unavailable")
