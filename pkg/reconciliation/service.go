package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/certen/dgc-protocol/pkg/amount"
	"github.com/certen/dgc-protocol/pkg/database"
	"github.com/certen/dgc-protocol/pkg/httpx"
)

// certificateView is the subset of the certificate authority's
// SignedCertificate shape this service needs.
type certificateView struct {
	Payload struct {
		AmountGram string `json:"amountGram"`
		Status     string `json:"status"`
	} `json:"payload"`
}

// Service implements the reconciliation controller's run/latest/
// history/unfreeze operations.
type Service struct {
	store              *Store
	certClient         *httpx.Client
	certServiceURL     string
	riskClient         *httpx.Client
	riskURL            string
	defaultCustodyGram string
	thresholdGram      string
}

// NewService constructs a Service. defaultCustodyGram and thresholdGram
// are canonical decimal amount strings (e.g. "0.5000") per §4.G's
// env-configured defaults.
func NewService(store *Store, certClient *httpx.Client, certServiceURL string, riskClient *httpx.Client, riskURL string, defaultCustodyGram, thresholdGram string) *Service {
	return &Service{
		store:              store,
		certClient:         certClient,
		certServiceURL:     certServiceURL,
		riskClient:         riskClient,
		riskURL:            riskURL,
		defaultCustodyGram: defaultCustodyGram,
		thresholdGram:      thresholdGram,
	}
}

// Health reports the service's storage health.
func (s *Service) Health(ctx context.Context) (*database.HealthStatus, error) {
	return s.store.Health(ctx)
}

// Run executes one reconciliation pass: pull the certificate inventory
// from the certificate authority, total outstanding claims against
// custody, and flip the freeze singleton on threshold breach.
func (s *Service) Run(ctx context.Context, inventoryTotalGram string) (ReconciliationRun, error) {
	certs, err := s.fetchCertificates(ctx)
	if err != nil {
		return ReconciliationRun{}, err
	}

	var outstandingScaled int64
	activeCount, lockedCount := 0, 0
	for _, c := range certs {
		switch c.Payload.Status {
		case "ACTIVE":
			activeCount++
		case "LOCKED":
			lockedCount++
		default:
			continue
		}
		scaled, err := amount.Parse(c.Payload.AmountGram)
		if err != nil {
			continue
		}
		outstandingScaled += scaled
	}

	custodyStr := inventoryTotalGram
	if custodyStr == "" {
		custodyStr = s.defaultCustodyGram
	}
	custodyScaled, err := amount.Parse(custodyStr)
	if err != nil {
		custodyScaled = 0
	}
	thresholdScaled, err := amount.Parse(s.thresholdGram)
	if err != nil {
		thresholdScaled = 0
	}

	mismatchScaled := outstandingScaled - custodyScaled
	absScaled := mismatchScaled
	if absScaled < 0 {
		absScaled = -absScaled
	}
	triggered := absScaled >= thresholdScaled

	run := ReconciliationRun{
		RunID:                 "RUN-" + uuid.New().String(),
		CreatedAt:             time.Now().UTC(),
		CustodyTotalGram:      amount.Format(custodyScaled),
		OutstandingTotalGram:  amount.Format(outstandingScaled),
		MismatchGram:          amount.Format(mismatchScaled),
		AbsMismatchGram:       amount.Format(absScaled),
		ThresholdGram:         amount.Format(thresholdScaled),
		FreezeTriggered:       triggered,
		CertificatesEvaluated: len(certs),
		ActiveCertificates:    activeCount,
		LockedCertificates:    lockedCount,
	}

	if err := s.store.PutRun(ctx, run); err != nil {
		return ReconciliationRun{}, err
	}

	state := FreezeState{UpdatedAt: run.CreatedAt, LastRunID: run.RunID}
	if triggered {
		state.Active = true
		state.Reason = fmt.Sprintf("Mismatch %sg exceeded threshold %sg", run.AbsMismatchGram, run.ThresholdGram)
	} else {
		state.Active = false
	}
	if err := s.store.PutFreezeState(ctx, state); err != nil {
		return ReconciliationRun{}, err
	}

	if triggered {
		s.notifyRisk(run)
	}

	return run, nil
}

func (s *Service) fetchCertificates(ctx context.Context) ([]certificateView, error) {
	if s.certClient == nil || s.certServiceURL == "" {
		return nil, ErrCertificateServiceUnavailable
	}
	result := s.certClient.GetJSON(ctx, httpx.PrimaryDeadline, s.certServiceURL+"/certificates", nil)
	if !result.OK() {
		return nil, ErrCertificateServiceUnavailable
	}
	var certs []certificateView
	if err := result.DecodeInto(&certs); err != nil {
		return nil, ErrCertificateServiceUnavailable
	}
	return certs, nil
}

func (s *Service) notifyRisk(run ReconciliationRun) {
	if s.riskClient == nil || s.riskURL == "" {
		return
	}
	absGram, _ := amount.Parse(run.AbsMismatchGram)
	thresholdGram, _ := amount.Parse(run.ThresholdGram)
	payload := map[string]interface{}{
		"runId":           run.RunID,
		"absMismatchGram": float64(absGram) / float64(amount.Scale),
		"thresholdGram":   float64(thresholdGram) / float64(amount.Scale),
	}
	s.riskClient.PostJSON(context.Background(), httpx.FanoutDeadline, s.riskURL+"/ingest/reconciliation-alert", payload, nil)
}

// Latest returns the most recent run (nil if none) plus the current
// freeze state.
func (s *Service) Latest(ctx context.Context) (LatestResult, error) {
	run, err := s.store.LatestRun(ctx)
	if err != nil {
		return LatestResult{}, err
	}
	state, err := s.store.GetFreezeState(ctx)
	if err != nil {
		return LatestResult{}, err
	}
	return LatestResult{Run: run, FreezeState: state}, nil
}

// History returns up to limit runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]ReconciliationRun, error) {
	return s.store.HistoryRuns(ctx, limit)
}

// Unfreeze flips an active freeze state to inactive, recording a
// governance-audited override.
func (s *Service) Unfreeze(ctx context.Context, actor, reason string) (FreezeState, error) {
	state, err := s.store.GetFreezeState(ctx)
	if err != nil {
		return FreezeState{}, err
	}
	if !state.Active {
		return FreezeState{}, ErrFreezeNotActive
	}

	next := FreezeState{
		Active:    false,
		Reason:    fmt.Sprintf("Manual unfreeze by %s: %s", actor, reason),
		UpdatedAt: time.Now().UTC(),
		LastRunID: state.LastRunID,
	}
	if err := s.store.PutFreezeState(ctx, next); err != nil {
		return FreezeState{}, err
	}

	override := FreezeOverride{
		OverrideID:     "OVERRIDE-" + uuid.New().String(),
		Action:         "UNFREEZE",
		Actor:          actor,
		Reason:         reason,
		PreviousActive: true,
		NextActive:     false,
		CreatedAt:      next.UpdatedAt,
		RunID:          state.LastRunID,
	}
	if err := s.store.AppendOverride(ctx, override); err != nil {
		return FreezeState{}, err
	}
	return next, nil
}

// Overrides returns up to limit override records, newest first.
func (s *Service) Overrides(ctx context.Context, limit int) ([]FreezeOverride, error) {
	return s.store.Overrides(ctx, limit)
}
