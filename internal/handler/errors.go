package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"lorelink/internal/models"
)

// statusClientClosedRequest is reported when the caller went away before the handler finished.
const statusClientClosedRequest = 499

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WriteError writes a JSON error body with the given status.
func WriteError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, ErrorResponse{Error: message, Code: codeFor(statusCode)}, statusCode)
}

func writeSuccess(w http.ResponseWriter, data interface{}, statusCode int) {
	writeJSON(w, data, statusCode)
}

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("encode response", "error", err)
	}
}

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrAuthRequired), errors.Is(err, models.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrPermissionDenied), errors.Is(err, models.ErrEmailNotVerified):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case models.Retryable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION_ERROR"
	case http.StatusUnauthorized:
		return "AUTH_REQUIRED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	case http.StatusGatewayTimeout:
		return "TIMEOUT"
	case statusClientClosedRequest:
		return "CANCELLED"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	default:
		return "INTERNAL_ERROR"
	}
}

// writeServiceError renders a service failure. Internal details are logged, never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)

	message := err.Error()
	switch status {
	case http.StatusUnauthorized:
		if errors.Is(err, models.ErrInvalidCredentials) {
			message = "invalid email or password"
		} else {
			message = "authentication required"
		}
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
		message = "service temporarily unavailable, retry shortly"
	case http.StatusGatewayTimeout:
		message = "request timed out"
	case statusClientClosedRequest:
		message = "request cancelled"
	case http.StatusInternalServerError:
		message = "internal server error"
	}

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	WriteError(w, message, status)
}
