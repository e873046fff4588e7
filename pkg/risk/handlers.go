package risk

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/certen/dgc-protocol/pkg/httpx"
	"github.com/certen/dgc-protocol/pkg/trust"
)

// Handlers exposes the risk engine's HTTP surface.
type Handlers struct {
	service *Service
	gate    trust.ServiceGate
	logger  *log.Logger
}

// NewHandlers constructs Handlers, defaulting logger if nil.
func NewHandlers(service *Service, gate trust.ServiceGate, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[risk] ", log.LstdFlags)
	}
	return &Handlers{service: service, gate: gate, logger: logger}
}

// Register wires every risk-engine endpoint onto mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ingest/ledger-event", h.guarded(h.handleIngestLedgerEvent))
	mux.HandleFunc("/ingest/listing-audit-event", h.guarded(h.handleIngestListingAudit))
	mux.HandleFunc("/ingest/reconciliation-alert", h.guarded(h.handleIngestReconciliationAlert))
	mux.HandleFunc("/risk/certificates/", h.handleCertificateProfile)
	mux.HandleFunc("/risk/listings/", h.handleListingProfile)
	mux.HandleFunc("/risk/summary", h.handleSummary)
	mux.HandleFunc("/risk/alerts", h.handleAlerts)
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

func (h *Handlers) handleIngestLedgerEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	var event LedgerEvent
	if !httpx.DecodeJSON(w, r, h.logger, &event) {
		return
	}
	if err := h.service.IngestLedgerEvent(r.Context(), event); err != nil {
		if err == ErrInvalidEvent {
			httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handlers) handleIngestListingAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	var event ListingAuditEvent
	if !httpx.DecodeJSON(w, r, h.logger, &event) {
		return
	}
	if err := h.service.IngestListingAuditEvent(r.Context(), event); err != nil {
		if err == ErrInvalidEvent {
			httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type reconciliationAlertRequest struct {
	RunID           string  `json:"runId"`
	AbsMismatchGram float64 `json:"absMismatchGram"`
	ThresholdGram   float64 `json:"thresholdGram"`
}

func (h *Handlers) handleIngestReconciliationAlert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	var req reconciliationAlertRequest
	if !httpx.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	if err := h.service.IngestReconciliationAlert(r.Context(), req.RunID, req.AbsMismatchGram, req.ThresholdGram); err != nil {
		if err == ErrInvalidEvent {
			httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handlers) handleCertificateProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	certID := strings.TrimPrefix(r.URL.Path, "/risk/certificates/")
	profile, err := h.service.CertificateRiskProfile(r.Context(), certID)
	if err == ErrProfileNotFound {
		httpx.WriteError(w, h.logger, http.StatusNotFound, "not_found", "no risk profile for this certificate")
		return
	}
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, profile)
}

func (h *Handlers) handleListingProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	listingID := strings.TrimPrefix(r.URL.Path, "/risk/listings/")
	profile, err := h.service.ListingRiskProfile(r.Context(), listingID)
	if err == ErrProfileNotFound {
		httpx.WriteError(w, h.logger, http.StatusNotFound, "not_found", "no risk profile for this listing")
		return
	}
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, profile)
}

func limitParam(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (h *Handlers) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	profiles, err := h.service.Summary(r.Context(), limitParam(r, 20))
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]interface{}{"profiles": profiles})
}

func (h *Handlers) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "method_not_allowed", "")
		return
	}
	alerts, err := h.service.Alerts(r.Context(), limitParam(r, 50))
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]interface{}{"alerts": alerts})
}
