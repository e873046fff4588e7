package ledger

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/certen/dgc-protocol/pkg/httpx"
	"github.com/certen/dgc-protocol/pkg/trust"
)

// Handlers exposes the ledger adapter's HTTP surface.
type Handlers struct {
	store  *Store
	gate   trust.ServiceGate
	logger *log.Logger
}

// NewHandlers constructs Handlers, defaulting logger if nil.
func NewHandlers(store *Store, gate trust.ServiceGate, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[ledger] ", log.LstdFlags)
	}
	return &Handlers{store: store, gate: gate, logger: logger}
}

// Register wires every endpoint onto mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/proofs/anchor", h.guarded(h.handleAnchor))
	mux.HandleFunc("/proofs/", h.handleGetProof)
	mux.HandleFunc("/events/record", h.guarded(h.handleRecordEvent))
	mux.HandleFunc("/events/", h.handleTimeline)
	mux.HandleFunc("/chain/status", h.handleChainStatus)
	mux.HandleFunc("/health", h.handleHealth)
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

type anchorRequest struct {
	CertID      string    `json:"certId"`
	PayloadHash string    `json:"payloadHash"`
	OccurredAt  time.Time `json:"occurredAt"`
}

func (h *Handlers) handleAnchor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	var req anchorRequest
	if !httpx.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	if req.CertID == "" || req.PayloadHash == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid_request", "certId and payloadHash are required")
		return
	}
	occurredAt := req.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	anchor, err := h.store.Anchor(r.Context(), req.CertID, req.PayloadHash, occurredAt)
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "ledger_adapter_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusCreated, anchor)
}

func (h *Handlers) handleGetProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	certID := strings.TrimPrefix(r.URL.Path, "/proofs/")
	if certID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid_cert_id", "certId is required")
		return
	}
	anchor, err := h.store.GetProof(r.Context(), certID)
	if err == ErrProofNotFound {
		httpx.WriteError(w, h.logger, http.StatusNotFound, "proof_not_found", "no proof anchor for this certId")
		return
	}
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "ledger_adapter_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, anchor)
}

func (h *Handlers) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	var event Event
	if !httpx.DecodeJSON(w, r, h.logger, &event) {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	result, err := h.store.Record(r.Context(), event)
	switch err {
	case nil:
		httpx.WriteJSON(w, h.logger, http.StatusCreated, result)
	case ErrInvalidEvent:
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid_request", "event shape invalid for its kind")
	default:
		httpx.WriteError(w, h.logger, http.StatusBadGateway, "chain_write_failed", err.Error())
	}
}

func (h *Handlers) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	certID := strings.TrimPrefix(r.URL.Path, "/events/")
	if certID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid_cert_id", "certId is required")
		return
	}
	events, err := h.store.Timeline(r.Context(), certID)
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "ledger_adapter_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, events)
}

func (h *Handlers) handleChainStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, h.store.ChainStatus(r.Context()))
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := h.store.Health(r.Context())
	if err != nil || !status.Healthy {
		httpx.WriteJSON(w, h.logger, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}
