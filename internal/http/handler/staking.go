package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"stakevault/internal/http/handler/middleware"
	"stakevault/internal/http/payload"
	"stakevault/internal/repository"
	"stakevault/internal/staking"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ListPools      = "GET /v1/pools"
	PoolCalculator = "GET /v1/pools/{id}/calculator"
	CreateStake    = "POST /v1/stakes"
	ListStakes     = "GET /v1/stakes"
	Unstake        = "POST /v1/stakes/{id}/unstake"
	ClaimRewards   = "POST /v1/stakes/{id}/claim"
)

type StakingHandler struct {
	logs             *zap.SugaredLogger
	requestValidator RequestValidator
	engine           *staking.Engine
}

func NewStakingHandler(logger *zap.SugaredLogger, requestValidator RequestValidator, engine *staking.Engine) *StakingHandler {
	return &StakingHandler{
		logs:             logger,
		requestValidator: requestValidator,
		engine:           engine,
	}
}

type poolResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	AssetID       string  `json:"assetId"`
	Type          string  `json:"type"`
	LockDays      int     `json:"lockDays"`
	CurrentApr    string  `json:"currentApr"`
	MinStake      string  `json:"minStake"`
	MaxStake      *string `json:"maxStake,omitempty"`
	TotalCapacity *string `json:"totalCapacity,omitempty"`
	TotalStaked   string  `json:"totalStaked"`
	CooldownHours int     `json:"cooldownHours"`
}

func poolToResponse(pool repository.Pool) poolResponse {
	resp := poolResponse{
		ID:            pool.ID,
		Name:          pool.Name,
		Slug:          pool.Slug,
		AssetID:       pool.AssetID,
		Type:          pool.Type,
		LockDays:      pool.LockDays,
		CurrentApr:    pool.CurrentApr.String(),
		MinStake:      pool.MinStake.String(),
		TotalStaked:   pool.TotalStaked.String(),
		CooldownHours: pool.CooldownHours,
	}
	if pool.MaxStake != nil {
		s := pool.MaxStake.String()
		resp.MaxStake = &s
	}
	if pool.TotalCapacity != nil {
		s := pool.TotalCapacity.String()
		resp.TotalCapacity = &s
	}
	return resp
}

func (h *StakingHandler) HandleListPools(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	pools, err := h.engine.ListPools(r.Context(), r.URL.Query().Get("assetId"), r.URL.Query().Get("type"))
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	out := make([]poolResponse, 0, len(pools))
	for _, pool := range pools {
		out = append(out, poolToResponse(pool))
	}

	respond(w, h.logs, map[string]any{"pools": out}, http.StatusOK, requestId)
}

func (h *StakingHandler) HandlePoolCalculator(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	amountStr := r.URL.Query().Get("amount")
	daysStr := r.URL.Query().Get("days")

	amount, err := decimal.NewFromString(amountStr)
	if err != nil || !amount.IsPositive() {
		respond(w, h.logs, ErrorResponse{Error: "amount must be a positive decimal"}, http.StatusBadRequest, requestId)
		return
	}

	days, err := strconv.Atoi(daysStr)
	if err != nil || days <= 0 || days > 3650 {
		respond(w, h.logs, ErrorResponse{Error: "days must be between 1 and 3650"}, http.StatusBadRequest, requestId)
		return
	}

	rewards, apr, err := h.engine.Estimate(r.Context(), r.PathValue("id"), amount, days)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, map[string]string{
		"estimatedRewards": rewards.String(),
		"apr":              apr.String(),
		"amount":           amount.String(),
		"days":             strconv.Itoa(days),
	}, http.StatusOK, requestId)
}

type positionResponse struct {
	ID             string `json:"id"`
	PoolID         string `json:"poolId"`
	Amount         string `json:"amount"`
	RewardsAccrued string `json:"rewardsAccrued"`
	RewardsClaimed string `json:"rewardsClaimed"`
	Status         string `json:"status"`
	LockedUntil    string `json:"lockedUntil,omitempty"`
	CooldownEndsAt string `json:"cooldownEndsAt,omitempty"`
	CreatedAt      string `json:"createdAt"`
}

func positionsToResponse(positions []repository.StakePosition) []positionResponse {
	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionToResponse(p))
	}
	return out
}

func positionToResponse(p repository.StakePosition) positionResponse {
	resp := positionResponse{
		ID:             p.ID,
		PoolID:         p.PoolID,
		Amount:         p.Amount.String(),
		RewardsAccrued: p.RewardsAccrued.String(),
		RewardsClaimed: p.RewardsClaimed.String(),
		Status:         p.Status,
		CreatedAt:      p.CreatedAt.Format(timeFormat),
	}
	if p.LockedUntil != nil {
		resp.LockedUntil = p.LockedUntil.Format(timeFormat)
	}
	if p.CooldownEndsAt != nil {
		resp.CooldownEndsAt = p.CooldownEndsAt.Format(timeFormat)
	}
	return resp
}

func (h *StakingHandler) HandleCreateStake(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())

	var body payload.CreateStakeRequest
	if err := h.requestValidator.DecodeAndValidateJSONPayload(r, &body); err != nil {
		respond(w, h.logs, ErrorResponse{
			Error: fmt.Errorf("invalid request payload: %w", err).Error(),
		}, http.StatusBadRequest, requestId)
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		respond(w, h.logs, ErrorResponse{Error: "amount is not a valid decimal"}, http.StatusBadRequest, requestId)
		return
	}

	position, err := h.engine.CreateStake(r.Context(), authed.User.ID, body.PoolID, amount)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, positionToResponse(position), http.StatusCreated, requestId)
}

func (h *StakingHandler) HandleListStakes(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())

	positions, err := h.engine.ListUserPositions(r.Context(), authed.User.ID)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, map[string]any{"positions": positionsToResponse(positions)}, http.StatusOK, requestId)
}

func (h *StakingHandler) HandleUnstake(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())

	outcome, err := h.engine.Unstake(r.Context(), authed.User.ID, r.PathValue("id"))
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	resp := map[string]any{"status": outcome.Status}
	if outcome.CooldownEndsAt != nil {
		resp["cooldownEndsAt"] = outcome.CooldownEndsAt.Format(timeFormat)
	}
	if outcome.Status == repository.StakeCompleted {
		resp["principal"] = outcome.Principal.String()
		resp["rewards"] = outcome.Rewards.String()
		resp["totalReturned"] = outcome.TotalReturned.String()
	}

	respond(w, h.logs, resp, http.StatusOK, requestId)
}

func (h *StakingHandler) HandleClaimRewards(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())

	claimed, err := h.engine.ClaimRewards(r.Context(), authed.User.ID, r.PathValue("id"))
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, map[string]string{"claimedAmount": claimed.String()}, http.StatusOK, requestId)
}
