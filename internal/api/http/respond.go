package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"bookworm-backend/internal/domain"
	"bookworm-backend/internal/logger"
	"bookworm-backend/internal/security"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			logger.Error("Failed to encode response", "error", err)
		}
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": true, "message": message})
}

// writeError maps service failures onto HTTP statuses. Anything outside the
// business taxonomy is treated as storage trouble and reported as 503.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusServiceUnavailable
	message := "service temporarily unavailable"

	switch {
	case errors.Is(err, domain.ErrBookNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrLoanNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, domain.ErrBookOutOfStock),
		errors.Is(err, domain.ErrDuplicateLoan),
		errors.Is(err, domain.ErrLoanAlreadyReturned),
		errors.Is(err, domain.ErrExtensionLimit),
		errors.Is(err, domain.ErrLoanOverdue),
		errors.Is(err, domain.ErrLoanConflict),
		errors.Is(err, domain.ErrEmailTaken):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrAccountNotVerified):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, domain.ErrInvalidCredentials),
		errors.Is(err, security.ErrInvalidToken),
		errors.Is(err, security.ErrExpiredToken):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrVerificationExpired):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrInventoryInvariant):
		status, message = http.StatusInternalServerError, err.Error()
	default:
		logger.Error("Unhandled service error", "error", err)
	}

	writeJSON(w, status, map[string]any{"success": false, "message": message})
}
