package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/psantana5/smartworking/pkg/logging"
	"github.com/psantana5/smartworking/pkg/models"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// MessageResponse carries a human readable outcome
type MessageResponse struct {
	Message string `json:"message"`
}

const tokenActionFailed = "Invalid, expired or already processed link."

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: kind, Message: message})
}

// writeServiceError maps the shared error kinds onto HTTP statuses.
// Forbidden replies never say why.
func writeServiceError(w http.ResponseWriter, logger *logging.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", detail(err, models.ErrValidation))
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", detail(err, models.ErrNotFound))
	case errors.Is(err, models.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "You are not allowed to perform this action")
	case errors.Is(err, models.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", detail(err, models.ErrUnauthorized))
	default:
		logger.Error("Request failed", logging.Fields{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

// detail strips the kind prefix added by fmt.Errorf("%w: ...")
func detail(err, kind error) string {
	msg := strings.TrimPrefix(err.Error(), kind.Error()+": ")
	if msg == kind.Error() {
		return http.StatusText(statusOf(kind))
	}
	return msg
}

func statusOf(kind error) int {
	switch kind {
	case models.ErrNotFound:
		return http.StatusNotFound
	case models.ErrUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}
