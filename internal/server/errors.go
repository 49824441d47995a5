package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	apperrors "github.com/jittakal/gatewaypipe/internal/errors"
)

// errorResponse is the body of every failed admin request.
type errorResponse struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// kindStatus maps error kinds to HTTP status codes.
var kindStatus = map[apperrors.Kind]int{
	apperrors.KindInvalidConfig:  http.StatusBadRequest,
	apperrors.KindValidation:     http.StatusBadRequest,
	apperrors.KindNotStarted:     http.StatusServiceUnavailable,
	apperrors.KindClosed:         http.StatusServiceUnavailable,
	apperrors.KindAlreadyStarted: http.StatusConflict,
	apperrors.KindAlreadyStopped: http.StatusConflict,
	apperrors.KindRejected:       http.StatusTooManyRequests,
	apperrors.KindStorage:        http.StatusBadGateway,
}

// StatusFor returns the HTTP status for err, 500 for unclassified errors.
func StatusFor(err error) int {
	if status, ok := kindStatus[apperrors.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := StatusFor(err)
	kind := apperrors.KindOf(err)
	if status >= http.StatusInternalServerError {
		logger.Error("admin request failed", "error", err, "kind", kind.String())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    status,
		Kind:    kind.String(),
		Message: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}
