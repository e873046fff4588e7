package risk

import (
	"testing"
	"time"
)

func TestCertificateProfileWashLoop(t *testing.T) {
	now := time.Now().UTC()
	events := []LedgerEvent{
		{Kind: "TRANSFER", CertID: "DGC-1", From: "0xA", To: "0xB", OccurredAt: now.Add(-30 * time.Minute)},
		{Kind: "TRANSFER", CertID: "DGC-1", From: "0xB", To: "0xA", OccurredAt: now.Add(-20 * time.Minute)},
		{Kind: "TRANSFER", CertID: "DGC-1", From: "0xA", To: "0xC", OccurredAt: now.Add(-10 * time.Minute)},
	}

	profile := CertificateProfile("DGC-1", events, nil, now)

	if profile.Score < 50 {
		t.Fatalf("expected score >= 50, got %d", profile.Score)
	}
	var codes []string
	for _, r := range profile.Reasons {
		codes = append(codes, r.Code)
	}
	if !containsCode(codes, "TRANSFER_VELOCITY_ELEVATED") {
		t.Errorf("expected TRANSFER_VELOCITY_ELEVATED reason, got %v", codes)
	}
	if !containsCode(codes, "WASH_LOOP_PATTERN") {
		t.Errorf("expected WASH_LOOP_PATTERN reason, got %v", codes)
	}
}

func containsCode(codes []string, want string) bool {
	for _, c := range codes {
		if c == want {
			return true
		}
	}
	return false
}

func TestCertificateProfileVelocityCritical(t *testing.T) {
	now := time.Now().UTC()
	var events []LedgerEvent
	for i := 0; i < 5; i++ {
		events = append(events, LedgerEvent{
			Kind: "TRANSFER", CertID: "DGC-2",
			From: "0xA", To: "0xB",
			OccurredAt: now.Add(-time.Duration(i) * time.Hour),
		})
	}
	profile := CertificateProfile("DGC-2", events, nil, now)
	found := false
	for _, r := range profile.Reasons {
		if r.Code == "TRANSFER_VELOCITY_CRITICAL" {
			found = true
		}
		if r.Code == "TRANSFER_VELOCITY_ELEVATED" {
			t.Errorf("critical should replace elevated, got both")
		}
	}
	if !found {
		t.Errorf("expected TRANSFER_VELOCITY_CRITICAL")
	}
}

func TestListingProfileLockCancelPattern(t *testing.T) {
	now := time.Now().UTC()
	audit := []ListingAuditEvent{
		{ListingID: "L1", Type: "LOCKED", OccurredAt: now.Add(-2 * time.Hour)},
		{ListingID: "L1", Type: "CANCELLED", Actor: "0xA", OccurredAt: now.Add(-1 * time.Hour),
			Details: map[string]interface{}{"reason": "buyer_timeout"}},
	}
	profile := ListingProfile("L1", audit, now)
	if profile.Score < 35 {
		t.Errorf("expected score >= 35, got %d", profile.Score)
	}
}

func TestReconciliationAlertScore(t *testing.T) {
	if got := ReconciliationAlertScore(1.0, 0.5); got != 100 {
		t.Errorf("expected clamp to 100, got %d", got)
	}
	if got := ReconciliationAlertScore(0, 0.5); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	if got := ReconciliationAlertScore(1, 0); got != 100 {
		t.Errorf("expected 100 for zero threshold, got %d", got)
	}
}
