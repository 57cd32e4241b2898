package httputil

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// ErrorResponse is the JSON error envelope for every failure path.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, code, message string, details ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   code,
		Message: message,
		Details: details,
	})
}

func WriteValidationError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "validation_error", message)
}

func WriteAuthError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusUnauthorized, "authentication_error", message)
}

func WritePolicyDeniedError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusForbidden, "policy_denied", message)
}

// WriteRateLimitError sets Retry-After (whole seconds, rounded up) alongside
// the envelope.
func WriteRateLimitError(w http.ResponseWriter, requestID string, retryAfter time.Duration, message string) {
	secs := int(retryAfter.Seconds())
	if retryAfter > 0 && retryAfter%time.Second != 0 {
		secs++
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	WriteError(w, requestID, http.StatusTooManyRequests, "rate_limit_exceeded", message)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string, details ...string) {
	WriteError(w, requestID, http.StatusInternalServerError, "internal_error", message, details...)
}
