package risk

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "risk.db"), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(store, 60, nil, "")
}

func TestIngestLedgerEventWashLoopAlerts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	events := []LedgerEvent{
		{Kind: "TRANSFER", CertID: "DGC-1", From: "0xA", To: "0xB", OccurredAt: now.Add(-30 * time.Minute)},
		{Kind: "TRANSFER", CertID: "DGC-1", From: "0xB", To: "0xA", OccurredAt: now.Add(-20 * time.Minute)},
		{Kind: "TRANSFER", CertID: "DGC-1", From: "0xA", To: "0xC", OccurredAt: now.Add(-10 * time.Minute)},
	}
	for _, e := range events {
		if err := svc.IngestLedgerEvent(ctx, e); err != nil {
			t.Fatalf("IngestLedgerEvent: %v", err)
		}
	}

	profile, err := svc.CertificateRiskProfile(ctx, "DGC-1")
	if err != nil {
		t.Fatalf("CertificateRiskProfile: %v", err)
	}
	if profile.Score < 50 {
		t.Errorf("expected score >= 50, got %d", profile.Score)
	}

	alerts, err := svc.Alerts(ctx, 10)
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("score %d below default threshold 60 should not alert, got %d alerts", profile.Score, len(alerts))
	}
}

func TestIngestLedgerEventEdgeTriggeredAlert(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// 4 same-direction transfers in 24h -> ELEVATED (+25), below 60 threshold, no alert yet.
	for i := 0; i < 4; i++ {
		err := svc.IngestLedgerEvent(ctx, LedgerEvent{
			Kind: "TRANSFER", CertID: "DGC-3", From: "0xA", To: "0xB",
			OccurredAt: now.Add(-time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("IngestLedgerEvent: %v", err)
		}
	}
	alerts, _ := svc.Alerts(ctx, 10)
	if len(alerts) != 0 {
		t.Fatalf("expected no alert yet, got %d", len(alerts))
	}

	// The 5th transfer both crosses the velocity count into CRITICAL (+40)
	// and closes a wash loop (+30): score jumps to 70, crossing the
	// threshold from below, so exactly one alert should fire.
	err := svc.IngestLedgerEvent(ctx, LedgerEvent{
		Kind: "TRANSFER", CertID: "DGC-3", From: "0xB", To: "0xA",
		OccurredAt: now,
	})
	if err != nil {
		t.Fatalf("IngestLedgerEvent: %v", err)
	}
	alerts, err = svc.Alerts(ctx, 10)
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 alert on threshold crossing, got %d", len(alerts))
	}

	// Re-ingesting further events that keep the score >= threshold must
	// not re-alert (no duplicate edge trigger while staying above).
	err = svc.IngestLedgerEvent(ctx, LedgerEvent{
		Kind: "TRANSFER", CertID: "DGC-3", From: "0xA", To: "0xC",
		OccurredAt: now,
	})
	if err != nil {
		t.Fatalf("IngestLedgerEvent: %v", err)
	}
	alerts, _ = svc.Alerts(ctx, 10)
	if len(alerts) != 1 {
		t.Errorf("expected alert count to stay at 1 while score remains above threshold, got %d", len(alerts))
	}
}

func TestIngestListingAuditEventUpdatesCertificateProfile(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 2; i++ {
		err := svc.IngestListingAuditEvent(ctx, ListingAuditEvent{
			ListingID: "L1", CertID: "DGC-9", Type: "CANCELLED",
			OccurredAt: now.Add(-time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("IngestListingAuditEvent: %v", err)
		}
	}

	certProfile, err := svc.CertificateRiskProfile(ctx, "DGC-9")
	if err != nil {
		t.Fatalf("CertificateRiskProfile: %v", err)
	}
	if certProfile.Score < 20 {
		t.Errorf("expected CANCELLATION_PRESSURE_ELEVATED to contribute, got score %d", certProfile.Score)
	}

	listingProfile, err := svc.ListingRiskProfile(ctx, "L1")
	if err != nil {
		t.Fatalf("ListingRiskProfile: %v", err)
	}
	_ = listingProfile
}

func TestIngestRejectsInvalidEvent(t *testing.T) {
	svc := newTestService(t)
	err := svc.IngestLedgerEvent(context.Background(), LedgerEvent{Kind: "TRANSFER"})
	if err != ErrInvalidEvent {
		t.Errorf("expected ErrInvalidEvent for missing certId, got %v", err)
	}
}

func TestIngestReconciliationAlert(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if err := svc.IngestReconciliationAlert(ctx, "run-1", 1.0, 0.5); err != nil {
		t.Fatalf("IngestReconciliationAlert: %v", err)
	}
	alerts, err := svc.Alerts(ctx, 10)
	if err != nil {
		t.Fatalf("Alerts: %v", err)
	}
	if len(alerts) != 1 || alerts[0].AlertID != "ALERT-RECON-run-1" {
		t.Errorf("expected one ALERT-RECON-run-1 alert, got %+v", alerts)
	}
}
