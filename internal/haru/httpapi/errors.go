package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/haru-ai/haru/internal/haru/fault"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a core error onto an HTTP status. Each taxonomy entry
// gets its own status so clients can react without parsing messages.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fault.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, fault.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, fault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fault.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, fault.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, fault.ErrGenerationTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, fault.ErrGenerationUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a JSON error response. Internal errors are
// logged but not leaked to the client.
func writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		msg = "internal error"
	}
	writeJSON(w, code, errorResponse{Error: msg})
}

// writeJSON serialises v as JSON and writes it to w with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", "err", err)
	}
}
