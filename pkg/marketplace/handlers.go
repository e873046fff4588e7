package marketplace

import (
	"log"
	"net/http"
	"strings"

	"github.com/certen/dgc-protocol/pkg/httpx"
	"github.com/certen/dgc-protocol/pkg/trust"
)

// Handlers exposes the marketplace escrow engine's HTTP surface.
type Handlers struct {
	service *Service
	gate    trust.ServiceGate
	logger  *log.Logger
}

// NewHandlers constructs Handlers.
func NewHandlers(service *Service, gate trust.ServiceGate, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[marketplace] ", log.LstdFlags)
	}
	return &Handlers{service: service, gate: gate, logger: logger}
}

// Register wires every endpoint onto mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/listings/create", h.guarded(h.handleCreate))
	mux.HandleFunc("/listings", h.handleList)
	mux.HandleFunc("/listings/", h.guarded(h.handleListingIDRoutes))
	mux.HandleFunc("/escrow/lock", h.guarded(h.handleLock))
	mux.HandleFunc("/escrow/settle", h.guarded(h.handleSettle))
	mux.HandleFunc("/escrow/cancel", h.guarded(h.handleCancel))
	mux.HandleFunc("/health", h.handleHealth)
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Health(r.Context())
	if err != nil || !status.Healthy {
		httpx.WriteJSON(w, h.logger, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) guarded(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.gate.Check(r) {
			httpx.WriteError(w, h.logger, http.StatusUnauthorized, "unauthorized_service", "missing or invalid service token")
			return
		}
		next(w, r)
	}
}

// writeDomainError dispatches a *DomainError to the wire, using the
// dedicated frozen-response shape when the code is marketplace_frozen.
func (h *Handlers) writeDomainError(w http.ResponseWriter, derr *DomainError) {
	if derr.Code == "marketplace_frozen" {
		httpx.WriteFrozen(w, h.logger, derr.FreezeState)
		return
	}
	httpx.WriteError(w, h.logger, derr.Status, derr.Code, derr.Message)
}

type createRequest struct {
	CertID   string `json:"certId"`
	Seller   string `json:"seller"`
	AskPrice string `json:"askPrice"`
}

func (h *Handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	var req createRequest
	if !httpx.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	listing, derr := h.service.CreateListing(r.Context(), req.CertID, req.Seller, req.AskPrice)
	if derr != nil {
		h.writeDomainError(w, derr)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusCreated, listing)
}

func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	listings, err := h.service.ListListings(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "marketplace_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]interface{}{"listings": listings})
}

func (h *Handlers) handleListingIDRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/listings/")

	if strings.HasSuffix(rest, "/dispute/open") {
		listingID := strings.TrimSuffix(rest, "/dispute/open")
		h.handleOpenDispute(w, r, listingID)
		return
	}

	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}

	if strings.HasSuffix(rest, "/audit") {
		listingID := strings.TrimSuffix(rest, "/audit")
		events, err := h.service.Audit(r.Context(), listingID)
		if err != nil {
			httpx.WriteError(w, h.logger, http.StatusInternalServerError, "marketplace_error", err.Error())
			return
		}
		httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]interface{}{"audit": events})
		return
	}

	listing, err := h.service.GetListing(r.Context(), rest)
	if err == ErrListingNotFound {
		httpx.WriteError(w, h.logger, http.StatusNotFound, "listing_not_found", err.Error())
		return
	}
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "marketplace_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, listing)
}

type disputeOpenRequest struct {
	OpenedBy string `json:"openedBy"`
	Reason   string `json:"reason"`
	Evidence string `json:"evidence"`
}

func (h *Handlers) handleOpenDispute(w http.ResponseWriter, r *http.Request, listingID string) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	var req disputeOpenRequest
	if !httpx.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	listing, derr := h.service.OpenDispute(r.Context(), listingID, req.OpenedBy, req.Reason, req.Evidence)
	if derr != nil {
		h.writeDomainError(w, derr)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, listing)
}

type lockRequest struct {
	ListingID string `json:"listingId"`
	Buyer     string `json:"buyer"`
}

func (h *Handlers) handleLock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	idempotencyKey := r.Header.Get("idempotency-key")
	if idempotencyKey == "" {
		h.writeDomainError(w, ErrMissingIdempotencyKey)
		return
	}
	var req lockRequest
	if !httpx.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	listing, status, body, derr := h.service.LockEscrow(r.Context(), req.ListingID, req.Buyer, idempotencyKey, req)
	if derr != nil {
		h.writeDomainError(w, derr)
		return
	}
	if body != nil {
		writeRawJSON(w, status, body)
		return
	}
	httpx.WriteJSON(w, h.logger, status, listing)
}

type settleRequest struct {
	ListingID    string `json:"listingId"`
	Buyer        string `json:"buyer"`
	SettledPrice string `json:"settledPrice"`
}

func (h *Handlers) handleSettle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	idempotencyKey := r.Header.Get("idempotency-key")
	if idempotencyKey == "" {
		h.writeDomainError(w, ErrMissingIdempotencyKey)
		return
	}
	var req settleRequest
	if !httpx.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	response, status, body, derr := h.service.SettleEscrow(r.Context(), req.ListingID, req.Buyer, req.SettledPrice, idempotencyKey, req)
	if derr != nil {
		h.writeDomainError(w, derr)
		return
	}
	if body != nil {
		writeRawJSON(w, status, body)
		return
	}
	httpx.WriteJSON(w, h.logger, status, response)
}

type cancelRequest struct {
	ListingID string `json:"listingId"`
	Reason    string `json:"reason"`
}

func (h *Handlers) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	idempotencyKey := r.Header.Get("idempotency-key")
	if idempotencyKey == "" {
		h.writeDomainError(w, ErrMissingIdempotencyKey)
		return
	}
	var req cancelRequest
	if !httpx.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	listing, status, body, derr := h.service.CancelEscrow(r.Context(), req.ListingID, req.Reason, idempotencyKey, req)
	if derr != nil {
		h.writeDomainError(w, derr)
		return
	}
	if body != nil {
		writeRawJSON(w, status, body)
		return
	}
	httpx.WriteJSON(w, h.logger, status, listing)
}

// writeRawJSON writes an already-canonicalized response body verbatim,
// used to replay a stored idempotent response byte-for-byte.
func writeRawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
