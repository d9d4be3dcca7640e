package handler

import (
	"fmt"
	"net/http"

	"stakevault/internal/auth"
	"stakevault/internal/http/handler/middleware"
	"stakevault/internal/http/payload"

	"go.uber.org/zap"
)

// Route patterns served by the auth handler.
var (
	Register         = "POST /v1/auth/register"
	Login            = "POST /v1/auth/login"
	Refresh          = "POST /v1/auth/refresh"
	Logout           = "POST /v1/auth/logout"
	ListSessions     = "GET /v1/auth/sessions"
	RevokeSession    = "DELETE /v1/auth/sessions/{id}"
	TwoFactorSetup   = "POST /v1/auth/2fa/setup"
	TwoFactorVerify  = "POST /v1/auth/2fa/verify"
	TwoFactorDisable = "POST /v1/auth/2fa/disable"
)

type AuthHandler struct {
	logs             *zap.SugaredLogger
	requestValidator RequestValidator
	auth             *auth.Service
	twoFactor        *auth.TwoFactor
}

func NewAuthHandler(logger *zap.SugaredLogger, requestValidator RequestValidator, authService *auth.Service, twoFactor *auth.TwoFactor) *AuthHandler {
	return &AuthHandler{
		logs:             logger,
		requestValidator: requestValidator,
		auth:             authService,
		twoFactor:        twoFactor,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func sessionContext(r *http.Request) auth.SessionContext {
	return auth.SessionContext{
		DeviceName: r.Header.Get("X-Device-Name"),
		IPAddress:  r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
}

func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	var body payload.RegisterRequest
	if err := h.requestValidator.DecodeAndValidateJSONPayload(r, &body); err != nil {
		respond(w, h.logs, ErrorResponse{
			Error: fmt.Errorf("invalid request payload: %w", err).Error(),
		}, http.StatusBadRequest, requestId)
		return
	}

	_, pair, err := h.auth.Register(r.Context(), body.Email, body.Password, sessionContext(r))
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, http.StatusCreated, requestId)
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	var body payload.LoginRequest
	if err := h.requestValidator.DecodeAndValidateJSONPayload(r, &body); err != nil {
		respond(w, h.logs, ErrorResponse{
			Error: fmt.Errorf("invalid request payload: %w", err).Error(),
		}, http.StatusBadRequest, requestId)
		return
	}

	pair, err := h.auth.Login(r.Context(), body.Email, body.Password, body.TotpCode, sessionContext(r))
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, http.StatusOK, requestId)
}

func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	var body payload.RefreshRequest
	if err := h.requestValidator.DecodeAndValidateJSONPayload(r, &body); err != nil {
		respond(w, h.logs, ErrorResponse{
			Error: fmt.Errorf("invalid request payload: %w", err).Error(),
		}, http.StatusBadRequest, requestId)
		return
	}

	pair, err := h.auth.Refresh(r.Context(), body.RefreshToken, sessionContext(r))
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, http.StatusOK, requestId)
}

func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, ok := middleware.AuthedUserFrom(r.Context())
	if !ok {
		respond(w, h.logs, ErrorResponse{Error: "unauthorized"}, http.StatusUnauthorized, requestId)
		return
	}

	if err := h.auth.Logout(r.Context(), authed.SessionID); err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, nil, http.StatusNoContent, requestId)
}

type sessionResponse struct {
	ID           string `json:"id"`
	DeviceName   string `json:"deviceName,omitempty"`
	IPAddress    string `json:"ipAddress,omitempty"`
	UserAgent    string `json:"userAgent,omitempty"`
	LastActiveAt string `json:"lastActiveAt"`
	ExpiresAt    string `json:"expiresAt"`
	Current      bool   `json:"current"`
}

func (h *AuthHandler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())

	sessions, err := h.auth.ListSessions(r.Context(), authed.User.ID)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			ID:           s.ID,
			DeviceName:   s.DeviceName,
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
			LastActiveAt: s.LastActiveAt.Format(timeFormat),
			ExpiresAt:    s.ExpiresAt.Format(timeFormat),
			Current:      s.ID == authed.SessionID,
		})
	}

	respond(w, h.logs, map[string]any{"sessions": out}, http.StatusOK, requestId)
}

func (h *AuthHandler) HandleRevokeSession(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())
	sessionID := r.PathValue("id")

	if err := h.auth.RevokeOwnSession(r.Context(), authed.User.ID, sessionID); err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, nil, http.StatusNoContent, requestId)
}

func (h *AuthHandler) HandleTwoFactorSetup(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())

	result, err := h.twoFactor.Setup(r.Context(), authed.User.ID, authed.User.Email)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, map[string]string{
		"secret":    result.Secret,
		"qrCodeUrl": result.QRCodeURL,
	}, http.StatusCreated, requestId)
}

func (h *AuthHandler) HandleTwoFactorVerify(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())

	var body payload.TwoFactorCodeRequest
	if err := h.requestValidator.DecodeAndValidateJSONPayload(r, &body); err != nil {
		respond(w, h.logs, ErrorResponse{
			Error: fmt.Errorf("invalid request payload: %w", err).Error(),
		}, http.StatusBadRequest, requestId)
		return
	}

	codes, err := h.twoFactor.Verify(r.Context(), authed.User.ID, body.TotpCode)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, map[string]any{"recoveryCodes": codes}, http.StatusOK, requestId)
}

func (h *AuthHandler) HandleTwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())

	var body payload.TwoFactorCodeRequest
	if err := h.requestValidator.DecodeAndValidateJSONPayload(r, &body); err != nil {
		respond(w, h.logs, ErrorResponse{
			Error: fmt.Errorf("invalid request payload: %w", err).Error(),
		}, http.StatusBadRequest, requestId)
		return
	}

	if err := h.twoFactor.Disable(r.Context(), authed.User.ID, body.TotpCode); err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, nil, http.StatusNoContent, requestId)
}
