// Package httpx provides the JSON response helpers and outbound HTTP
// client conventions shared by every DGC service: a uniform success
// envelope, a uniform error envelope matching the protocol's error
// contract, and a deadline-bound JSON client for inter-service calls.
package httpx

import (
	"encoding/json"
	"log"
	"net/http"
)

// WriteJSON encodes data as the response body with status and a JSON
// content type. Encoding failures are logged, not returned, since the
// status line has already been written.
func WriteJSON(w http.ResponseWriter, logger *log.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil && logger != nil {
		logger.Printf("error encoding response: %v", err)
	}
}

// ErrorBody is the wire shape of every error response in the protocol:
// a machine-readable code, an optional human message, an optional echoed
// downstream status code, and an optional freeze-state snapshot.
type ErrorBody struct {
	Error       string      `json:"error"`
	Message     string      `json:"message,omitempty"`
	StatusCode  int         `json:"statusCode,omitempty"`
	FreezeState interface{} `json:"freezeState,omitempty"`
}

// WriteError writes an ErrorBody with the given status and code.
func WriteError(w http.ResponseWriter, logger *log.Logger, status int, code, message string) {
	WriteJSON(w, logger, status, ErrorBody{Error: code, Message: message})
}

// WriteErrorWithStatusCode is WriteError plus an echoed downstream status
// code, used when a collaborator call failed and its status is relevant.
func WriteErrorWithStatusCode(w http.ResponseWriter, logger *log.Logger, status int, code, message string, downstream int) {
	WriteJSON(w, logger, status, ErrorBody{Error: code, Message: message, StatusCode: downstream})
}

// WriteFrozen writes the 423 marketplace_frozen response with the full
// freeze-state snapshot attached, per the protocol's freeze-gating
// contract.
func WriteFrozen(w http.ResponseWriter, logger *log.Logger, freezeState interface{}) {
	WriteJSON(w, logger, http.StatusLocked, ErrorBody{
		Error:       "marketplace_frozen",
		Message:     "marketplace is frozen",
		FreezeState: freezeState,
	})
}

// DecodeJSON decodes the request body into dst, returning false and
// writing a 400 invalid_request response on failure.
func DecodeJSON(w http.ResponseWriter, r *http.Request, logger *log.Logger, dst interface{}) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteError(w, logger, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}
