package risk

import (
	"context"
	"errors"
	"time"

	"github.com/certen/dgc-protocol/pkg/database"
	"github.com/certen/dgc-protocol/pkg/httpx"
)

// ErrInvalidEvent is returned when an ingested event is missing
// required fields for its kind.
var ErrInvalidEvent = errors.New("invalid_request")

// Service implements the risk engine's ingestion, recomputation, and
// alerting operations.
type Service struct {
	store       *Store
	threshold   int
	webhook     *httpx.Client
	webhookURL  string
}

// NewService constructs a Service. threshold defaults to 60 when <= 0,
// per §4.E.
func NewService(store *Store, threshold int, webhook *httpx.Client, webhookURL string) *Service {
	if threshold <= 0 {
		threshold = 60
	}
	return &Service{store: store, threshold: threshold, webhook: webhook, webhookURL: webhookURL}
}

// Health reports the service's storage health.
func (s *Service) Health(ctx context.Context) (*database.HealthStatus, error) {
	return s.store.Health(ctx)
}

func validLedgerEvent(e LedgerEvent) bool {
	if e.CertID == "" {
		return false
	}
	switch e.Kind {
	case "ISSUED", "TRANSFER", "SPLIT", "STATUS_CHANGED":
		return true
	default:
		return false
	}
}

// IngestLedgerEvent appends a ledger event, then recomputes and
// re-alerts the affected certificate's profile.
func (s *Service) IngestLedgerEvent(ctx context.Context, event LedgerEvent) error {
	if !validLedgerEvent(event) {
		return ErrInvalidEvent
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := s.store.AppendLedgerEvent(ctx, event); err != nil {
		return err
	}
	return s.recomputeCertificateProfile(ctx, event.CertID)
}

// IngestListingAuditEvent appends a listing-audit event, recomputes the
// listing's profile, then also recomputes the owning certificate's
// profile (listing cancellations contribute to certificate heuristics).
func (s *Service) IngestListingAuditEvent(ctx context.Context, event ListingAuditEvent) error {
	if event.ListingID == "" || event.Type == "" {
		return ErrInvalidEvent
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := s.store.AppendListingAudit(ctx, event); err != nil {
		return err
	}
	if err := s.recomputeListingProfile(ctx, event.ListingID); err != nil {
		return err
	}
	if event.CertID != "" {
		return s.recomputeCertificateProfile(ctx, event.CertID)
	}
	return nil
}

func (s *Service) recomputeCertificateProfile(ctx context.Context, certID string) error {
	events, err := s.store.LedgerEventsForCert(ctx, certID)
	if err != nil {
		return err
	}
	audit, err := s.store.ListingAuditForCert(ctx, certID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	profile := CertificateProfile(certID, events, audit, now)
	return s.applyProfile(ctx, "CERTIFICATE", certID, profile)
}

func (s *Service) recomputeListingProfile(ctx context.Context, listingID string) error {
	audit, err := s.store.ListingAuditForListing(ctx, listingID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	profile := ListingProfile(listingID, audit, now)
	return s.applyProfile(ctx, "LISTING", listingID, profile)
}

// applyProfile stores the recomputed profile and, if it edge-triggers
// past the alert threshold, persists an alert and best-effort notifies
// the configured webhook.
func (s *Service) applyProfile(ctx context.Context, targetType, targetID string, profile Profile) error {
	previous, err := s.store.GetProfile(ctx, targetID)
	hadPrevious := err == nil
	if err != nil && err != ErrProfileNotFound {
		return err
	}

	if err := s.store.UpsertProfile(ctx, profile); err != nil {
		return err
	}

	crossedUp := profile.Score >= s.threshold && (!hadPrevious || previous.Score < s.threshold)
	if !crossedUp {
		return nil
	}

	alert := Alert{
		AlertID:    "ALERT-" + targetType + "-" + targetID + "-" + profile.UpdatedAt.Format("20060102T150405.000000000Z"),
		TargetType: targetType,
		TargetID:   targetID,
		Score:      profile.Score,
		Level:      profile.Level,
		Reasons:    profile.Reasons,
		CreatedAt:  profile.UpdatedAt,
	}
	if err := s.store.AppendAlert(ctx, alert); err != nil {
		return err
	}
	s.notifyWebhook(alert)
	return nil
}

func (s *Service) notifyWebhook(alert Alert) {
	if s.webhook == nil || s.webhookURL == "" {
		return
	}
	s.webhook.PostJSON(context.Background(), httpx.FanoutDeadline, s.webhookURL, alert, nil)
}

// IngestReconciliationAlert stores a reconciliation-triggered alert.
func (s *Service) IngestReconciliationAlert(ctx context.Context, runID string, absMismatchGram, thresholdGram float64) error {
	if runID == "" {
		return ErrInvalidEvent
	}
	score := ReconciliationAlertScore(absMismatchGram, thresholdGram)
	alert := Alert{
		AlertID:    "ALERT-RECON-" + runID,
		TargetType: "RECONCILIATION",
		TargetID:   runID,
		Score:      score,
		Level:      Level(score),
		CreatedAt:  time.Now().UTC(),
	}
	return s.store.AppendAlert(ctx, alert)
}

// CertificateRiskProfile returns the stored profile for certID.
func (s *Service) CertificateRiskProfile(ctx context.Context, certID string) (Profile, error) {
	return s.store.GetProfile(ctx, certID)
}

// ListingRiskProfile returns the stored profile for listingID.
func (s *Service) ListingRiskProfile(ctx context.Context, listingID string) (Profile, error) {
	return s.store.GetProfile(ctx, listingID)
}

// Summary returns the top-N profiles by score.
func (s *Service) Summary(ctx context.Context, limit int) ([]Profile, error) {
	return s.store.TopProfiles(ctx, limit)
}

// Alerts returns the newest-first alert list.
func (s *Service) Alerts(ctx context.Context, limit int) ([]Alert, error) {
	return s.store.RecentAlerts(ctx, limit)
}
