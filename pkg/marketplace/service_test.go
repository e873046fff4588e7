package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/certen/dgc-protocol/pkg/httpx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "marketplace.db"), nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// fakeCertServer stands in for the certificate authority: GET returns the
// certificate with its current status, POST /certificates/status and
// /certificates/transfer always succeed and update that status.
func fakeCertServer(t *testing.T, certID, owner, status string) *httptest.Server {
	t.Helper()
	current := status
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/certificates/"+certID:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"payload": map[string]interface{}{"certId": certID, "owner": owner, "status": current},
			})
		case r.URL.Path == "/certificates/status":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			current = body["status"]
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{"payload": map[string]interface{}{"certId": certID, "status": current}})
		case r.URL.Path == "/certificates/transfer":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			current = "ACTIVE"
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{"certificate": map[string]interface{}{"payload": map[string]interface{}{"certId": certID, "owner": body["toOwner"], "status": current}}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func fakeFreezeServer(t *testing.T, active bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"run": nil,
			"freezeState": map[string]interface{}{
				"active":    active,
				"updatedAt": time.Now().UTC(),
			},
		})
	}))
}

func newTestService(t *testing.T, certSrv *httptest.Server, reconSrv *httptest.Server) *Service {
	t.Helper()
	store := newTestStore(t)
	client := httpx.NewClient("")

	var certClient *httpx.Client
	var certURL string
	if certSrv != nil {
		certClient = client
		certURL = certSrv.URL
	}
	var reconClient *httpx.Client
	var reconURL string
	if reconSrv != nil {
		reconClient = client
		reconURL = reconSrv.URL
	}
	return NewService(store, certClient, certURL, nil, "", reconClient, reconURL, nil, "")
}

func TestCreateListingRejectsOwnerMismatch(t *testing.T) {
	certSrv := fakeCertServer(t, "DGC-1", "alice", "ACTIVE")
	defer certSrv.Close()
	svc := newTestService(t, certSrv, nil)

	_, derr := svc.CreateListing(context.Background(), "DGC-1", "bob", "10.0000")
	if derr == nil || derr.Code != "owner_mismatch" {
		t.Fatalf("expected owner_mismatch, got %+v", derr)
	}
}

func TestIdempotentLockReplaysResponse(t *testing.T) {
	certSrv := fakeCertServer(t, "DGC-1", "alice", "ACTIVE")
	defer certSrv.Close()
	svc := newTestService(t, certSrv, nil)
	ctx := context.Background()

	listing, derr := svc.CreateListing(ctx, "DGC-1", "alice", "10.0000")
	if derr != nil {
		t.Fatalf("CreateListing: %v", derr)
	}

	body := map[string]string{"listingId": listing.ListingID, "buyer": "bob"}

	first, status1, respBody1, derr := svc.LockEscrow(ctx, listing.ListingID, "bob", "lock-4", body)
	if derr != nil {
		t.Fatalf("first LockEscrow: %v", derr)
	}
	if first.Status != StatusLocked {
		t.Fatalf("expected LOCKED after first lock, got %q", first.Status)
	}

	second, status2, respBody2, derr := svc.LockEscrow(ctx, listing.ListingID, "bob", "lock-4", body)
	if derr != nil {
		t.Fatalf("second LockEscrow: %v", derr)
	}
	if status1 != status2 || string(respBody1) != string(respBody2) {
		t.Fatalf("expected identical replayed response, got status %d/%d bodies %q/%q", status1, status2, respBody1, respBody2)
	}
	_ = second

	conflictBody := map[string]string{"listingId": listing.ListingID, "buyer": "carol"}
	_, _, _, derr = svc.LockEscrow(ctx, listing.ListingID, "carol", "lock-4", conflictBody)
	if derr == nil || derr.Code != "idempotency_key_reuse_conflict" {
		t.Fatalf("expected idempotency_key_reuse_conflict, got %+v", derr)
	}
}

func TestLockRequiresIdempotencyKey(t *testing.T) {
	svc := newTestService(t, nil, nil)
	_, _, _, derr := svc.LockEscrow(context.Background(), "LISTING-1", "bob", "", map[string]string{})
	if derr != ErrMissingIdempotencyKey {
		t.Fatalf("expected ErrMissingIdempotencyKey, got %+v", derr)
	}
}

func TestFreezeBlocksCreateButCancelStillSucceeds(t *testing.T) {
	certSrv := fakeCertServer(t, "DGC-1", "alice", "ACTIVE")
	defer certSrv.Close()

	reconSrv := fakeFreezeServer(t, false)
	svc := newTestService(t, certSrv, reconSrv)
	ctx := context.Background()

	listing, derr := svc.CreateListing(ctx, "DGC-1", "alice", "10.0000")
	if derr != nil {
		t.Fatalf("CreateListing before freeze: %v", derr)
	}
	lockBody := map[string]string{"listingId": listing.ListingID, "buyer": "bob"}
	locked, _, _, derr := svc.LockEscrow(ctx, listing.ListingID, "bob", "lock-5", lockBody)
	if derr != nil {
		t.Fatalf("LockEscrow before freeze: %v", derr)
	}
	if locked.Status != StatusLocked {
		t.Fatalf("expected LOCKED, got %q", locked.Status)
	}
	reconSrv.Close()

	frozenReconSrv := fakeFreezeServer(t, true)
	defer frozenReconSrv.Close()
	svc.reconClient = httpx.NewClient("")
	svc.reconURL = frozenReconSrv.URL

	_, derr = svc.CreateListing(ctx, "DGC-1", "alice", "10.0000")
	if derr == nil || derr.Code != "marketplace_frozen" {
		t.Fatalf("expected marketplace_frozen on create, got %+v", derr)
	}

	cancelBody := map[string]string{"listingId": locked.ListingID, "reason": "frozen unwind"}
	cancelled, _, _, derr := svc.CancelEscrow(ctx, locked.ListingID, "frozen unwind", "cancel-5", cancelBody)
	if derr != nil {
		t.Fatalf("expected cancel to succeed while frozen, got %+v", derr)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected CANCELLED, got %q", cancelled.Status)
	}
}

func TestSettleTwoPhaseTransitionsToSettled(t *testing.T) {
	certSrv := fakeCertServer(t, "DGC-1", "alice", "ACTIVE")
	defer certSrv.Close()
	svc := newTestService(t, certSrv, nil)
	ctx := context.Background()

	listing, derr := svc.CreateListing(ctx, "DGC-1", "alice", "10.0000")
	if derr != nil {
		t.Fatalf("CreateListing: %v", derr)
	}
	lockBody := map[string]string{"listingId": listing.ListingID, "buyer": "bob"}
	locked, _, _, derr := svc.LockEscrow(ctx, listing.ListingID, "bob", "lock-6", lockBody)
	if derr != nil {
		t.Fatalf("LockEscrow: %v", derr)
	}

	settleBody := map[string]string{"listingId": locked.ListingID, "buyer": "bob", "settledPrice": "10.0000"}
	response, _, _, derr := svc.SettleEscrow(ctx, locked.ListingID, "bob", "10.0000", "settle-6", settleBody)
	if derr != nil {
		t.Fatalf("SettleEscrow: %v", derr)
	}
	settled, ok := response["listing"].(MarketplaceListing)
	if !ok {
		t.Fatalf("expected listing in response, got %+v", response)
	}
	if settled.Status != StatusSettled {
		t.Fatalf("expected SETTLED, got %q", settled.Status)
	}

	other, err := svc.GetListing(ctx, locked.ListingID)
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if other.Status != StatusSettled {
		t.Fatalf("expected persisted SETTLED, got %q", other.Status)
	}
}

func TestSettleRejectsBuyerMismatch(t *testing.T) {
	certSrv := fakeCertServer(t, "DGC-1", "alice", "ACTIVE")
	defer certSrv.Close()
	svc := newTestService(t, certSrv, nil)
	ctx := context.Background()

	listing, _ := svc.CreateListing(ctx, "DGC-1", "alice", "10.0000")
	lockBody := map[string]string{"listingId": listing.ListingID, "buyer": "bob"}
	locked, _, _, derr := svc.LockEscrow(ctx, listing.ListingID, "bob", "lock-7", lockBody)
	if derr != nil {
		t.Fatalf("LockEscrow: %v", derr)
	}

	settleBody := map[string]string{"listingId": locked.ListingID, "buyer": "carol"}
	_, _, _, derr = svc.SettleEscrow(ctx, locked.ListingID, "carol", "", "settle-7", settleBody)
	if derr == nil || derr.Code != "buyer_mismatch" {
		t.Fatalf("expected buyer_mismatch, got %+v", derr)
	}
}
