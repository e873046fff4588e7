package reconciliation

import (
	"log"
	"net/http"
	"strconv"

	"github.com/certen/dgc-protocol/pkg/httpx"
	"github.com/certen/dgc-protocol/pkg/trust"
)

// Handlers exposes the reconciliation controller's HTTP surface.
type Handlers struct {
	service        *Service
	gate           trust.ServiceGate
	unfreezeRoles  trust.RoleSet
	logger         *log.Logger
}

// NewHandlers constructs Handlers.
func NewHandlers(service *Service, gate trust.ServiceGate, unfreezeRoles trust.RoleSet, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[reconciliation] ", log.LstdFlags)
	}
	return &Handlers{service: service, gate: gate, unfreezeRoles: unfreezeRoles, logger: logger}
}

// Register wires every endpoint onto mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/reconcile/run", h.guarded(h.handleRun))
	mux.HandleFunc("/reconcile/latest", h.handleLatest)
	mux.HandleFunc("/reconcile/history", h.handleHistory)
	mux.HandleFunc("/freeze/unfreeze", h.guarded(h.handleUnfreeze))
	mux.HandleFunc("/freeze/overrides", h.handleOverrides)
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

type runRequest struct {
	InventoryTotalGram string `json:"inventoryTotalGram"`
}

func (h *Handlers) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	var req runRequest
	_ = httpx.DecodeJSON(w, r, h.logger, &req)

	run, err := h.service.Run(r.Context(), req.InventoryTotalGram)
	if err != nil {
		if err == ErrCertificateServiceUnavailable {
			httpx.WriteError(w, h.logger, http.StatusBadGateway, "certificate_service_unavailable", err.Error())
			return
		}
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "reconciliation_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusCreated, run)
}

func (h *Handlers) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	result, err := h.service.Latest(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "reconciliation_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, result)
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

func (h *Handlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	runs, err := h.service.History(r.Context(), limitParam(r, 20))
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "reconciliation_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]interface{}{"runs": runs})
}

type unfreezeRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

func (h *Handlers) handleUnfreeze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	var req unfreezeRequest
	if !httpx.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	if code, ok := trust.GovernanceCheck(r, h.unfreezeRoles, req.Actor); !ok {
		httpx.WriteError(w, h.logger, http.StatusForbidden, code, "governance role not permitted")
		return
	}
	state, err := h.service.Unfreeze(r.Context(), req.Actor, req.Reason)
	if err != nil {
		if err == ErrFreezeNotActive {
			httpx.WriteError(w, h.logger, http.StatusConflict, "state_conflict", err.Error())
			return
		}
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "reconciliation_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, state)
}

func (h *Handlers) handleOverrides(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	overrides, err := h.service.Overrides(r.Context(), limitParam(r, 50))
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "reconciliation_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]interface{}{"overrides": overrides})
}
