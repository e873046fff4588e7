package reconciliation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/certen/dgc-protocol/pkg/httpx"
)

func newTestService(t *testing.T, certs []certificateView, defaultCustody, threshold string) (*Service, *httptest.Server) {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "recon.db"), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(certs)
	}))
	t.Cleanup(server.Close)

	certClient := httpx.NewClient("")
	svc := NewService(store, certClient, server.URL, nil, "", defaultCustody, threshold)
	return svc, server
}

func TestRunComputesMismatchAndTriggersFreeze(t *testing.T) {
	certs := []certificateView{}
	certs = append(certs, mkCert("1.5000", "ACTIVE"), mkCert("0.5000", "LOCKED"), mkCert("4.0000", "REDEEMED"))

	svc, _ := newTestService(t, certs, "1.0000", "0.5000")
	ctx := context.Background()

	run, err := svc.Run(ctx, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.OutstandingTotalGram != "2.0000" {
		t.Errorf("expected outstanding 2.0000, got %q", run.OutstandingTotalGram)
	}
	if run.MismatchGram != "1.0000" {
		t.Errorf("expected mismatch 1.0000, got %q", run.MismatchGram)
	}
	if !run.FreezeTriggered {
		t.Errorf("expected freezeTriggered true")
	}
	if run.ActiveCertificates != 1 || run.LockedCertificates != 1 || run.CertificatesEvaluated != 3 {
		t.Errorf("unexpected counts: %+v", run)
	}

	latest, err := svc.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !latest.FreezeState.Active {
		t.Errorf("expected freeze state active after trigger")
	}
}

func TestRunNoMismatchDoesNotFreeze(t *testing.T) {
	certs := []certificateView{mkCert("1.0000", "ACTIVE")}
	svc, _ := newTestService(t, certs, "1.0000", "0.5000")
	ctx := context.Background()

	run, err := svc.Run(ctx, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.FreezeTriggered {
		t.Errorf("expected no freeze trigger")
	}
	latest, err := svc.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.FreezeState.Active {
		t.Errorf("expected freeze state inactive")
	}
}

func TestUnfreezeRequiresActiveState(t *testing.T) {
	certs := []certificateView{mkCert("1.0000", "ACTIVE")}
	svc, _ := newTestService(t, certs, "1.0000", "0.5000")
	ctx := context.Background()

	if _, err := svc.Run(ctx, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, err := svc.Unfreeze(ctx, "ops1", "false positive")
	if err != ErrFreezeNotActive {
		t.Errorf("expected ErrFreezeNotActive, got %v", err)
	}
}

func TestUnfreezeFlipsStateAndAppendsOverride(t *testing.T) {
	certs := []certificateView{mkCert("1.5000", "ACTIVE"), mkCert("0.5000", "LOCKED")}
	svc, _ := newTestService(t, certs, "0", "0.5000")
	ctx := context.Background()

	if _, err := svc.Run(ctx, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
	state, err := svc.Unfreeze(ctx, "ops1", "manual review cleared")
	if err != nil {
		t.Fatalf("Unfreeze: %v", err)
	}
	if state.Active {
		t.Errorf("expected freeze state inactive after unfreeze")
	}

	overrides, err := svc.Overrides(ctx, 10)
	if err != nil {
		t.Fatalf("Overrides: %v", err)
	}
	if len(overrides) != 1 || !overrides[0].PreviousActive || overrides[0].NextActive {
		t.Errorf("unexpected override record: %+v", overrides)
	}
}

func mkCert(amountGram, status string) certificateView {
	var c certificateView
	c.Payload.AmountGram = amountGram
	c.Payload.Status = status
	return c
}
