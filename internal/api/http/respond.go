package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"autorenta-escrow-backend/internal/domain"
	"autorenta-escrow-backend/internal/logger"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto a coarse status and code. Clients get
// the class, never the cause: the full error goes to the log under the
// request's correlation ID. Validation messages are the one exception, since
// they describe the caller's own input.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	cid := CorrelationID(r.Context())
	switch {
	case domain.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_request"})
	case domain.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "resource not found", Code: "not_found"})
	case domain.IsConflict(err):
		logger.Info("Conflict rejected", "error", err, "correlation_id", cid)
		writeJSON(w, http.StatusConflict, errorResponse{Error: "conflicting request", Code: "conflict"})
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientLockedFunds),
		errors.Is(err, domain.ErrNoParticipants):
		logger.Info("Request not processable", "error", err, "correlation_id", cid)
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "request cannot be processed", Code: "unprocessable"})
	case domain.IsIntegrity(err):
		logger.Error("Integrity failure surfaced to API", "error", err, "correlation_id", cid)
		writeJSON(w, http.StatusConflict, errorResponse{Error: "integrity failure", Code: "integrity_failure"})
	default:
		logger.Error("Unhandled error in API", "error", err, "correlation_id", cid)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
}
