package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/diegolsarmond/jus-connect/internal/financial"
	"github.com/diegolsarmond/jus-connect/internal/store"
)

// Error code constants for structured API error responses.
const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeInternal         = "internal_error"
	ErrCodeUnauthorized     = "unauthorized"
	ErrCodeForbidden        = "forbidden"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeConflict         = "conflict"
	ErrCodeValidation       = "validation_failed"
	ErrCodeSignupDisabled   = "signup_disabled"
	ErrCodeUnsupportedModel = "unsupported_schema"
)

// APIError represents a structured error returned by the API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError for JSON serialization.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// writeError writes a JSON error response with the given HTTP status code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error: APIError{Code: code, Message: message},
	}); err != nil {
		slog.Error("write error response", "err", err)
	}
}

// writeJSON writes a JSON response with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", "err", err)
	}
}

// decodeJSON reads the request body into v, writing a 400 on failure.
// An empty body decodes as an empty object.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return false
	}
	return true
}

// writeStoreError maps a store or service error onto the response: validation
// failures are 422, missing rows 404, conflicts 409 and anything else a 500
// logged under op.
func writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case store.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, financial.ErrUnsupportedSchema):
		logFor(r.Context()).Error(op, "err", err)
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnsupportedModel, "financial tables are not available")
	default:
		logFor(r.Context()).Error(op, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to "+op)
	}
}
