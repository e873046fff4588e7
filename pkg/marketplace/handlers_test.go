package marketplace

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/certen/dgc-protocol/pkg/trust"
)

func newTestHandlers(t *testing.T, certSrv *httptest.Server) *Handlers {
	t.Helper()
	svc := newTestService(t, certSrv, nil)
	return NewHandlers(svc, trust.NewServiceGate(""), nil)
}

func TestHandleLockRejectsMissingIdempotencyKey(t *testing.T) {
	certSrv := fakeCertServer(t, "DGC-1", "alice", "ACTIVE")
	defer certSrv.Close()
	h := newTestHandlers(t, certSrv)
	mux := http.NewServeMux()
	h.Register(mux)

	body := bytes.NewBufferString(`{"listingId":"LISTING-1","buyer":"bob"}`)
	req := httptest.NewRequest(http.MethodPost, "/escrow/lock", body)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var errBody map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["error"] != "missing_idempotency_key" {
		t.Fatalf("expected missing_idempotency_key, got %+v", errBody)
	}
}

func TestHandleCreateThenGetListing(t *testing.T) {
	certSrv := fakeCertServer(t, "DGC-1", "alice", "ACTIVE")
	defer certSrv.Close()
	h := newTestHandlers(t, certSrv)
	mux := http.NewServeMux()
	h.Register(mux)

	createBody := bytes.NewBufferString(`{"certId":"DGC-1","seller":"alice","askPrice":"10.0000"}`)
	req := httptest.NewRequest(http.MethodPost, "/listings/create", createBody)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var listing MarketplaceListing
	if err := json.Unmarshal(rec.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if listing.Status != StatusOpen {
		t.Fatalf("expected OPEN, got %q", listing.Status)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/listings/"+listing.ListingID, nil)
	getRec := httptest.NewRecorder()
	mux.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", getRec.Code, getRec.Body.String())
	}
}

func TestHandleLockIdempotentReplay(t *testing.T) {
	certSrv := fakeCertServer(t, "DGC-1", "alice", "ACTIVE")
	defer certSrv.Close()
	h := newTestHandlers(t, certSrv)
	mux := http.NewServeMux()
	h.Register(mux)

	createBody := bytes.NewBufferString(`{"certId":"DGC-1","seller":"alice","askPrice":"10.0000"}`)
	createReq := httptest.NewRequest(http.MethodPost, "/listings/create", createBody)
	createRec := httptest.NewRecorder()
	mux.ServeHTTP(createRec, createReq)
	var listing MarketplaceListing
	json.Unmarshal(createRec.Body.Bytes(), &listing)

	lockPayload := []byte(`{"listingId":"` + listing.ListingID + `","buyer":"bob"}`)

	req1 := httptest.NewRequest(http.MethodPost, "/escrow/lock", bytes.NewReader(lockPayload))
	req1.Header.Set("idempotency-key", "lock-http-1")
	rec1 := httptest.NewRecorder()
	mux.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected 200 on first lock, got %d: %s", rec1.Code, rec1.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodPost, "/escrow/lock", bytes.NewReader(lockPayload))
	req2.Header.Set("idempotency-key", "lock-http-1")
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req2)
	if rec2.Code != rec1.Code || rec2.Body.String() != rec1.Body.String() {
		t.Fatalf("expected identical replay, got %d/%q vs %d/%q", rec2.Code, rec2.Body.String(), rec1.Code, rec1.Body.String())
	}
}
