package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/campusmart/campusmart-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success   bool          `json:"success"`
	Data      any           `json:"data,omitempty"`
	Error     *APIError     `json:"error,omitempty"`
	Meta      *ResponseMeta `json:"meta,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// WriteJSON writes a successful JSON response.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeResponse(w, status, JSONResponse{
		Success:   status >= 200 && status < 300,
		Data:      data,
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// WriteError maps err to a status code and writes it. Internal error text is
// not exposed for unclassified errors.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	message := err.Error()
	var de *shared.DomainError
	if errors.As(err, &de) && de.Message != "" {
		message = de.Message
	}
	if status == http.StatusInternalServerError && code == "internal_error" {
		message = "An unexpected error occurred"
	}
	writeJSONError(w, r, status, code, message)
}

// WriteErrorWithData writes an error response that still carries a payload,
// for partially applied operations.
func WriteErrorWithData(w http.ResponseWriter, r *http.Request, err error, data any) {
	status, code := StatusFor(err)
	writeResponse(w, status, JSONResponse{
		Success:   false,
		Data:      data,
		Error:     &APIError{Code: code, Message: err.Error()},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC(), Version: "v1"},
		RequestID: RequestIDFromContext(r.Context()),
	})
}

// StatusFor maps an error kind to an HTTP status and an error code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, shared.ErrAlreadyClaimed):
		return http.StatusConflict, "already_claimed"
	case errors.Is(err, shared.ErrSweepInProgress):
		return http.StatusConflict, "sweep_in_progress"
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, shared.ErrPartialFailure):
		return http.StatusInternalServerError, "partial_failure"
	case errors.Is(err, shared.ErrTransientStore):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return http.StatusRequestEntityTooLarge, "request_too_large"
		}
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeResponse(w, status, JSONResponse{
		Success:   false,
		Error:     &APIError{Code: code, Message: message},
		Meta:      &ResponseMeta{Timestamp: time.Now().UTC()},
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func writeResponse(w http.ResponseWriter, status int, body JSONResponse) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
