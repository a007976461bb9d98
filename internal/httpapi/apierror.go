package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"kiosk-orchestrator-service/internal/orchestrator"
	"kiosk-orchestrator-service/internal/staff"
)

// Error codes returned in the response envelope.
const (
	CodeInvalidJSON      = "invalid_json"
	CodeInvalidRequest   = "invalid_request"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeNotFound         = "not_found"
	CodePayloadTooLarge  = "payload_too_large"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeUnavailable      = "unavailable"
	CodeMisconfigured    = "misconfigured"
	CodeInternal         = "internal"
)

// Envelope is the JSON error body: {"error":{"code","message"}}.
type Envelope struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the machine-readable code and a human message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusFromCode(code string) int {
	switch code {
	case CodeInvalidJSON, CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeNotFound:
		return http.StatusNotFound
	case CodePayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFromCode(code))
	_ = json.NewEncoder(w).Encode(Envelope{Error: ErrorBody{Code: code, Message: message}})
}

// writeDomainError maps known sentinel errors onto taxonomy codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidEvent):
		writeError(w, CodeInvalidRequest, "unknown or unsupported event type")
	case errors.Is(err, orchestrator.ErrUploadMismatch):
		writeError(w, CodeInvalidRequest, "upload does not match the pending stt_request_id")
	case errors.Is(err, staff.ErrUnauthorized):
		writeError(w, CodeUnauthorized, "missing or expired staff session")
	case errors.Is(err, staff.ErrMisconfigured):
		writeError(w, CodeMisconfigured, "staff passcode is not configured")
	default:
		writeError(w, CodeInternal, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
