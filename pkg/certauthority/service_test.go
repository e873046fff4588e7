package certauthority

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/certen/dgc-protocol/pkg/crypto"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "certs.db"), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	skHex, _, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	svc, err := NewService(store, skHex, nil, "")
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestIssueAndVerify(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	result, err := svc.Issue(ctx, "0xA", "1.2500", "999.9", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if result.Certificate.Payload.Status != StatusActive {
		t.Errorf("expected ACTIVE status, got %q", result.Certificate.Payload.Status)
	}

	verify, err := svc.Verify(ctx, result.Certificate.Payload.CertID)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !verify.Valid || !verify.HashMatches || !verify.SignatureValid {
		t.Errorf("expected fully valid certificate, got %+v", verify)
	}

	tampered := result.Certificate
	tampered.Payload.AmountGram = "3.0000"
	tamperedResult := svc.VerifyCertificate(tampered)
	if tamperedResult.Valid || tamperedResult.HashMatches || tamperedResult.SignatureValid {
		t.Errorf("expected tampered certificate to fail verification, got %+v", tamperedResult)
	}
}

func TestSplitConservation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "0xA", "3.0000", "999.9", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parentID := issued.Certificate.Payload.CertID

	split, err := svc.Split(ctx, parentID, "0xB", "1.2500", "")
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if split.Parent.Payload.AmountGram != "1.7500" {
		t.Errorf("expected parent remaining 1.7500, got %q", split.Parent.Payload.AmountGram)
	}
	if split.Child.Payload.AmountGram != "1.2500" {
		t.Errorf("expected child amount 1.2500, got %q", split.Child.Payload.AmountGram)
	}
	if split.Parent.Payload.Owner != "0xA" {
		t.Errorf("expected parent owner unchanged, got %q", split.Parent.Payload.Owner)
	}
	if split.Child.Payload.Owner != "0xB" {
		t.Errorf("expected child owner 0xB, got %q", split.Child.Payload.Owner)
	}
}

func TestIllegalTransition(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "0xA", "1.0000", "999.9", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	certID := issued.Certificate.Payload.CertID

	if _, err := svc.Status(ctx, certID, StatusRedeemed); err != nil {
		t.Fatalf("Status to REDEEMED: %v", err)
	}

	_, err = svc.Status(ctx, certID, StatusActive)
	conflict, ok := err.(*StateConflictError)
	if !ok {
		t.Fatalf("expected StateConflictError, got %v", err)
	}
	want := "Transition REDEEMED -> ACTIVE is not allowed"
	if conflict.Error() != want {
		t.Errorf("expected message %q, got %q", want, conflict.Error())
	}
}

func TestIssueRejectsInvalidAmount(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Issue(context.Background(), "0xA", "not-an-amount", "999.9", nil)
	if err != ErrInvalidAmount {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestGetUnknownCertificate(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Get(context.Background(), "unknown")
	if err != ErrCertificateNotFound {
		t.Errorf("expected ErrCertificateNotFound, got %v", err)
	}
}
