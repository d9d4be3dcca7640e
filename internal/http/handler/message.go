package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"stakevault/internal/auth"
	"stakevault/internal/domain"
	"stakevault/internal/repository"
	"stakevault/internal/withdrawal"

	"go.uber.org/zap"
)

const oopsErr = "Oops! Something went wrong. Please try again later."

const timeFormat = "2006-01-02T15:04:05Z07:00"

// ErrorResponse is the uniform error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respond(w http.ResponseWriter, logs *zap.SugaredLogger, resp any, code int, requestId string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if resp == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, oopsErr, http.StatusInternalServerError)
		logs.Errorw("failed to encode response",
			"error", err,
			"request_id", requestId)
	}
}

// respondServiceError maps service-layer errors onto the §status table.
func respondServiceError(w http.ResponseWriter, logs *zap.SugaredLogger, err error, requestId string) {
	if domainErr, ok := domain.AsDomainError(err); ok {
		status := http.StatusBadRequest
		if domainErr.Code == domain.CodeStateForbidden {
			status = http.StatusForbidden
		}
		respond(w, logs, ErrorResponse{Error: domainErr.Message, Code: domainErr.Code}, status, requestId)
		return
	}

	var status int
	var message string

	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		status, message = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, auth.ErrAccountDisabled):
		status, message = http.StatusForbidden, "account disabled"
	case errors.Is(err, auth.ErrAdminNeedsTwoFactor):
		status, message = http.StatusForbidden, "admin login requires two-factor authentication"
	case errors.Is(err, withdrawal.ErrNotOwner):
		status, message = http.StatusForbidden, "forbidden"
	case errors.Is(err, repository.ErrEmailTaken):
		status, message = http.StatusConflict, "email already registered"
	case errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, repository.ErrPoolNotFound),
		errors.Is(err, repository.ErrPositionNotFound),
		errors.Is(err, repository.ErrWithdrawalNotFound),
		errors.Is(err, repository.ErrChainNotFound),
		errors.Is(err, repository.ErrAssetNotFound),
		errors.Is(err, repository.ErrTwoFactorNotConfigured):
		status, message = http.StatusNotFound, "not found"
	default:
		status, message = http.StatusInternalServerError, "unexpected error occurred"
	}

	resp := ErrorResponse{Error: message}
	respond(w, logs, resp, status, requestId)

	if status == http.StatusInternalServerError {
		logs.Errorw("request failed", "error", err, "request_id", requestId)
	}
}
