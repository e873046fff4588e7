package dispute

import (
	"log"
	"net/http"
	"strings"

	"github.com/certen/dgc-protocol/pkg/httpx"
	"github.com/certen/dgc-protocol/pkg/trust"
)

// Handlers exposes the dispute orchestrator's HTTP surface.
type Handlers struct {
	service       *Service
	gate          trust.ServiceGate
	assignRoles   trust.RoleSet
	resolveRoles  trust.RoleSet
	logger        *log.Logger
}

// NewHandlers constructs Handlers.
func NewHandlers(service *Service, gate trust.ServiceGate, assignRoles, resolveRoles trust.RoleSet, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[dispute] ", log.LstdFlags)
	}
	return &Handlers{service: service, gate: gate, assignRoles: assignRoles, resolveRoles: resolveRoles, logger: logger}
}

// Register wires every endpoint onto mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/disputes/open", h.guarded(h.handleOpen))
	mux.HandleFunc("/disputes", h.handleList)
	mux.HandleFunc("/disputes/", h.guarded(h.handleDisputeIDRoutes))
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

type openRequest struct {
	ListingID string `json:"listingId"`
	CertID    string `json:"certId"`
	OpenedBy  string `json:"openedBy"`
	Reason    string `json:"reason"`
	Evidence  string `json:"evidence"`
}

func (h *Handlers) handleOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	var req openRequest
	if !httpx.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	d, err := h.service.Open(r.Context(), req.ListingID, req.CertID, req.OpenedBy, req.Reason, req.Evidence)
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "dispute_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusCreated, d)
}

type assignRequest struct {
	AssignedBy string `json:"assignedBy"`
	Assignee   string `json:"assignee"`
}

type resolveRequest struct {
	ResolvedBy      string `json:"resolvedBy"`
	Resolution      string `json:"resolution"`
	ResolutionNotes string `json:"resolutionNotes"`
}

func (h *Handlers) handleDisputeIDRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/disputes/")

	if strings.HasSuffix(rest, "/assign") {
		disputeID := strings.TrimSuffix(rest, "/assign")
		h.handleAssign(w, r, disputeID)
		return
	}
	if strings.HasSuffix(rest, "/resolve") {
		disputeID := strings.TrimSuffix(rest, "/resolve")
		h.handleResolve(w, r, disputeID)
		return
	}

	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	d, err := h.service.Get(r.Context(), rest)
	if err == ErrDisputeNotFound {
		httpx.WriteError(w, h.logger, http.StatusNotFound, "dispute_not_found", err.Error())
		return
	}
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "dispute_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, d)
}

func (h *Handlers) handleAssign(w http.ResponseWriter, r *http.Request, disputeID string) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	var req assignRequest
	if !httpx.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	if code, ok := trust.GovernanceCheck(r, h.assignRoles, req.AssignedBy); !ok {
		httpx.WriteError(w, h.logger, http.StatusForbidden, code, "governance role not permitted")
		return
	}
	d, err := h.service.Assign(r.Context(), disputeID, req.Assignee)
	h.writeResult(w, d, err)
}

func (h *Handlers) handleResolve(w http.ResponseWriter, r *http.Request, disputeID string) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	var req resolveRequest
	if !httpx.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	if code, ok := trust.GovernanceCheck(r, h.resolveRoles, req.ResolvedBy); !ok {
		httpx.WriteError(w, h.logger, http.StatusForbidden, code, "governance role not permitted")
		return
	}
	d, err := h.service.Resolve(r.Context(), disputeID, req.ResolvedBy, req.Resolution, req.ResolutionNotes)
	h.writeResult(w, d, err)
}

func (h *Handlers) writeResult(w http.ResponseWriter, d DisputeRecord, err error) {
	switch err {
	case nil:
		httpx.WriteJSON(w, h.logger, http.StatusOK, d)
	case ErrDisputeNotFound:
		httpx.WriteError(w, h.logger, http.StatusNotFound, "dispute_not_found", err.Error())
	case ErrAlreadyResolved:
		httpx.WriteError(w, h.logger, http.StatusConflict, "state_conflict", err.Error())
	default:
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "dispute_error", err.Error())
	}
}

func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	disputes, err := h.service.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "dispute_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]interface{}{"disputes": disputes})
}
