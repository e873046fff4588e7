package certauthority

import (
	"log"
	"net/http"
	"strings"

	"github.com/certen/dgc-protocol/pkg/httpx"
	"github.com/certen/dgc-protocol/pkg/trust"
)

// Handlers exposes the certificate authority's HTTP surface.
type Handlers struct {
	service *Service
	gate    trust.ServiceGate
	logger  *log.Logger
}

// NewHandlers constructs Handlers, defaulting logger if nil.
func NewHandlers(service *Service, gate trust.ServiceGate, logger *log.Logger) *Handlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[cert-authority] ", log.LstdFlags)
	}
	return &Handlers{service: service, gate: gate, logger: logger}
}

// Register wires every endpoint onto mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/certificates/issue", h.guarded(h.handleIssue))
	mux.HandleFunc("/certificates/verify", h.guarded(h.handleVerify))
	mux.HandleFunc("/certificates/transfer", h.guarded(h.handleTransfer))
	mux.HandleFunc("/certificates/split", h.guarded(h.handleSplit))
	mux.HandleFunc("/certificates/status", h.guarded(h.handleStatus))
	mux.HandleFunc("/certificates", h.handleList)
	mux.HandleFunc("/certificates/", h.handleCertIDRoutes)
	mux.HandleFunc("/openapi.json", h.handleOpenAPI)
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

func (h *Handlers) handleIssue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	var req struct {
		Owner      string                 `json:"owner"`
		AmountGram string                 `json:"amountGram"`
		Purity     string                 `json:"purity"`
		Metadata   map[string]interface{} `json:"metadata"`
	}
	if !httpx.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	result, err := h.service.Issue(r.Context(), req.Owner, req.AmountGram, req.Purity, req.Metadata)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusCreated, result)
}

func (h *Handlers) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	var req struct {
		CertID      string           `json:"certId"`
		Certificate *SignedCertificate `json:"certificate"`
	}
	if !httpx.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	if req.Certificate != nil {
		httpx.WriteJSON(w, h.logger, http.StatusOK, h.service.VerifyCertificate(*req.Certificate))
		return
	}
	result, err := h.service.Verify(r.Context(), req.CertID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, result)
}

func (h *Handlers) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	var req struct {
		CertID  string `json:"certId"`
		ToOwner string `json:"toOwner"`
		Price   string `json:"price"`
	}
	if !httpx.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	result, err := h.service.Transfer(r.Context(), req.CertID, req.ToOwner, req.Price)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, result)
}

func (h *Handlers) handleSplit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	var req struct {
		ParentCertID    string `json:"parentCertId"`
		ToOwner         string `json:"toOwner"`
		AmountChildGram string `json:"amountChildGram"`
		Price           string `json:"price"`
	}
	if !httpx.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	result, err := h.service.Split(r.Context(), req.ParentCertID, req.ToOwner, req.AmountChildGram, req.Price)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, result)
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	var req struct {
		CertID string `json:"certId"`
		Next   string `json:"status"`
	}
	if !httpx.DecodeJSON(w, r, h.logger, &req) {
		return
	}
	cert, err := h.service.Status(r.Context(), req.CertID, req.Next)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, cert)
}

func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	certs, err := h.service.List(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "certificate_authority_error", err.Error())
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, certs)
}

func (h *Handlers) handleCertIDRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, h.logger, http.StatusMethodNotAllowed, "invalid_request", "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/certificates/")
	if strings.HasSuffix(rest, "/timeline") {
		certID := strings.TrimSuffix(rest, "/timeline")
		events, status, err := h.service.Timeline(r.Context(), certID)
		if err != nil {
			httpx.WriteError(w, h.logger, status, err.Error(), err.Error())
			return
		}
		httpx.WriteJSON(w, h.logger, status, events)
		return
	}
	certID := rest
	if certID == "" {
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid_cert_id", "certId is required")
		return
	}
	cert, err := h.service.Get(r.Context(), certID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, cert)
}

func (h *Handlers) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, h.logger, http.StatusOK, openAPIDocument())
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Health(r.Context())
	if err != nil || !status.Healthy {
		httpx.WriteJSON(w, h.logger, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) writeDomainError(w http.ResponseWriter, err error) {
	switch err {
	case ErrCertificateNotFound:
		httpx.WriteError(w, h.logger, http.StatusNotFound, "certificate_not_found", err.Error())
	case ErrInvalidAmount:
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid_amount", err.Error())
	case ErrInvalidPurity:
		httpx.WriteError(w, h.logger, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		if sc, ok := err.(*StateConflictError); ok {
			httpx.WriteError(w, h.logger, http.StatusConflict, "state_conflict", sc.Error())
			return
		}
		httpx.WriteError(w, h.logger, http.StatusInternalServerError, "certificate_authority_error", err.Error())
	}
}

func openAPIDocument() map[string]interface{} {
	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   "DGC Certificate Authority",
			"version": "1.0.0",
		},
		"paths": map[string]interface{}{
			"/certificates/issue":    map[string]interface{}{"post": map[string]string{"summary": "Issue a new certificate"}},
			"/certificates/verify":   map[string]interface{}{"post": map[string]string{"summary": "Verify a certificate"}},
			"/certificates/transfer": map[string]interface{}{"post": map[string]string{"summary": "Transfer ownership"}},
			"/certificates/split":    map[string]interface{}{"post": map[string]string{"summary": "Split a certificate"}},
			"/certificates/status":   map[string]interface{}{"post": map[string]string{"summary": "Transition status"}},
			"/certificates/{id}":     map[string]interface{}{"get": map[string]string{"summary": "Get a certificate"}},
			"/certificates":          map[string]interface{}{"get": map[string]string{"summary": "List certificates"}},
		},
	}
}
