package handler

import (
	"net/http"

	"stakevault/internal/http/handler/middleware"
	"stakevault/internal/notify"
	"stakevault/internal/repository"
	"stakevault/internal/staking"
	"stakevault/internal/withdrawal"

	"go.uber.org/zap"
)

var (
	GetProfile       = "GET /v1/user/profile"
	GetDashboard     = "GET /v1/user/dashboard"
	GetBalances      = "GET /v1/user/balances"
	GetNotifications = "GET /v1/notifications"
	MarkNotification = "POST /v1/notifications/{id}/read"
)

type UserHandler struct {
	logs        *zap.SugaredLogger
	store       *repository.Store
	staking     *staking.Engine
	withdrawals *withdrawal.Service
	notify      *notify.Service
}

func NewUserHandler(logger *zap.SugaredLogger, store *repository.Store, stakingEngine *staking.Engine, withdrawals *withdrawal.Service, notifier *notify.Service) *UserHandler {
	return &UserHandler{
		logs:        logger,
		store:       store,
		staking:     stakingEngine,
		withdrawals: withdrawals,
		notify:      notifier,
	}
}

type profileResponse struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	EmailVerified    bool   `json:"emailVerified"`
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
	KycStatus        string `json:"kycStatus"`
	CreatedAt        string `json:"createdAt"`
	LastLoginAt      string `json:"lastLoginAt,omitempty"`
}

func (h *UserHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())
	user := authed.User

	resp := profileResponse{
		ID:               user.ID,
		Email:            user.Email,
		Role:             user.Role,
		EmailVerified:    user.EmailVerified,
		TwoFactorEnabled: user.TwoFactorEnabled,
		KycStatus:        user.KycStatus,
		CreatedAt:        user.CreatedAt.Format(timeFormat),
	}
	if user.LastLoginAt != nil {
		resp.LastLoginAt = user.LastLoginAt.Format(timeFormat)
	}

	respond(w, h.logs, resp, http.StatusOK, requestId)
}

type balanceResponse struct {
	AssetID            string `json:"assetId"`
	ChainID            string `json:"chainId"`
	Available          string `json:"available"`
	Staked             string `json:"staked"`
	RewardsAccrued     string `json:"rewardsAccrued"`
	WithdrawalsPending string `json:"withdrawalsPending"`
}

func (h *UserHandler) HandleGetBalances(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())

	balances, err := h.store.ListUserBalances(r.Context(), authed.User.ID)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, map[string]any{"balances": balancesToResponse(balances)}, http.StatusOK, requestId)
}

func balancesToResponse(balances []repository.BalanceCache) []balanceResponse {
	out := make([]balanceResponse, 0, len(balances))
	for _, b := range balances {
		out = append(out, balanceResponse{
			AssetID:            b.AssetID,
			ChainID:            b.ChainID,
			Available:          b.Available.String(),
			Staked:             b.Staked.String(),
			RewardsAccrued:     b.RewardsAccrued.String(),
			WithdrawalsPending: b.WithdrawalsPending.String(),
		})
	}
	return out
}

func (h *UserHandler) HandleGetDashboard(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())
	userID := authed.User.ID

	balances, err := h.store.ListUserBalances(r.Context(), userID)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	positions, err := h.staking.ListUserPositions(r.Context(), userID)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	withdrawals, err := h.withdrawals.ListUserRequests(r.Context(), userID)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	activePositions := make([]repository.StakePosition, 0, len(positions))
	for _, p := range positions {
		if p.Status == repository.StakeActive || p.Status == repository.StakeUnstaking {
			activePositions = append(activePositions, p)
		}
	}

	pendingWithdrawals := make([]repository.WithdrawalRequest, 0, len(withdrawals))
	for _, wr := range withdrawals {
		switch wr.Status {
		case repository.WithdrawalRejected, repository.WithdrawalCompleted, repository.WithdrawalPaidManually:
		default:
			pendingWithdrawals = append(pendingWithdrawals, wr)
		}
	}

	respond(w, h.logs, map[string]any{
		"balances":           balancesToResponse(balances),
		"activePositions":    positionsToResponse(activePositions),
		"pendingWithdrawals": withdrawalsToResponse(pendingWithdrawals),
	}, http.StatusOK, requestId)
}

func (h *UserHandler) HandleGetNotifications(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())

	notifications, err := h.notify.List(r.Context(), authed.User.ID, 50)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, map[string]any{"notifications": notifications}, http.StatusOK, requestId)
}

func (h *UserHandler) HandleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())

	if err := h.notify.MarkRead(r.Context(), authed.User.ID, r.PathValue("id")); err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, nil, http.StatusNoContent, requestId)
}
