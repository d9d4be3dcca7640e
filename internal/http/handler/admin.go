package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"stakevault/internal/audit"
	"stakevault/internal/http/handler/middleware"
	"stakevault/internal/http/payload"
	"stakevault/internal/repository"
	"stakevault/internal/staking"
	"stakevault/internal/withdrawal"
	"stakevault/pkg/clock"
	"stakevault/pkg/hdwallet"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	AdminListWithdrawals = "GET /v1/admin/withdrawals"
	AdminApprove         = "POST /v1/admin/withdrawals/{id}/approve"
	AdminReject          = "POST /v1/admin/withdrawals/{id}/reject"
	AdminMarkPaid        = "POST /v1/admin/withdrawals/{id}/mark-paid"
	AdminRetryPayout     = "POST /v1/admin/withdrawals/{id}/retry"
	AdminCreatePool      = "POST /v1/admin/pools"
	AdminPoolApr         = "POST /v1/admin/pools/{id}/apr"
	AdminCancelStake     = "POST /v1/admin/stakes/{id}/cancel"
	AdminCreateTreasury  = "POST /v1/admin/treasury"
)

type SecretSealer interface {
	Seal(plaintext []byte) (string, error)
}

type AdminHandler struct {
	logs             *zap.SugaredLogger
	requestValidator RequestValidator
	store            *repository.Store
	withdrawals      *withdrawal.Service
	staking          *staking.Engine
	sealer           SecretSealer
	auditor          *audit.Writer
	clock            clock.Clock
}

func NewAdminHandler(logger *zap.SugaredLogger, requestValidator RequestValidator, store *repository.Store, withdrawals *withdrawal.Service, stakingEngine *staking.Engine, sealer SecretSealer, auditor *audit.Writer, clk clock.Clock) *AdminHandler {
	return &AdminHandler{
		logs:             logger,
		requestValidator: requestValidator,
		store:            store,
		withdrawals:      withdrawals,
		staking:          stakingEngine,
		sealer:           sealer,
		auditor:          auditor,
		clock:            clk,
	}
}

func (h *AdminHandler) actor(r *http.Request) audit.Actor {
	authed, _ := middleware.AuthedUserFrom(r.Context())
	return audit.Actor{
		ID:        authed.User.ID,
		Email:     authed.User.Email,
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}

func (h *AdminHandler) HandleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 20)
	if page < 1 {
		respond(w, h.logs, ErrorResponse{Error: "page must be >= 1"}, http.StatusBadRequest, requestId)
		return
	}
	if limit < 1 || limit > 100 {
		respond(w, h.logs, ErrorResponse{Error: "limit must be between 1 and 100"}, http.StatusBadRequest, requestId)
		return
	}

	items, total, err := h.withdrawals.ListForReview(r.Context(), r.URL.Query().Get("status"), page, limit)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	out := make([]withdrawalResponse, 0, len(items))
	for _, item := range items {
		out = append(out, withdrawalToResponse(item, true))
	}

	totalPages := (total + int64(limit) - 1) / int64(limit)
	respond(w, h.logs, map[string]any{
		"items":      out,
		"total":      total,
		"page":       page,
		"limit":      limit,
		"totalPages": totalPages,
	}, http.StatusOK, requestId)
}

func (h *AdminHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "withdrawal.approve", func(ctx context.Context, reviewerID, requestID, notes, proofURL string) (repository.WithdrawalRequest, error) {
		return h.withdrawals.Approve(ctx, reviewerID, requestID, notes)
	}, false)
}

func (h *AdminHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, "withdrawal.reject", func(ctx context.Context, reviewerID, requestID, notes, proofURL string) (repository.WithdrawalRequest, error) {
		return h.withdrawals.Reject(ctx, reviewerID, requestID, notes)
	}, true)
}

func (h *AdminHandler) HandleMarkPaid(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())
	authed, _ := middleware.AuthedUserFrom(r.Context())

	var body payload.MarkPaidRequest
	if err := h.requestValidator.DecodeAndValidateJSONPayload(r, &body); err != nil {
		respond(w, h.logs, ErrorResponse{
			Error: fmt.Errorf("invalid request payload: %w", err).Error(),
		}, http.StatusBadRequest, requestId)
		return
	}

	id := r.PathValue("id")
	before, err := h.withdrawals.GetRequest(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	request, err := h.withdrawals.MarkPaidManually(r.Context(), authed.User.ID, id, body.AdminNotes, body.ProofURL)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	h.auditor.Record(r.Context(), h.actor(r), "withdrawal.mark_paid", "WithdrawalRequest", id, before, request)
	respond(w, h.logs, withdrawalToResponse(request, true), http.StatusOK, requestId)
}

func (h *AdminHandler) HandleRetryPayout(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())
	authed, _ := middleware.AuthedUserFrom(r.Context())

	id := r.PathValue("id")
	request, err := h.withdrawals.Retry(r.Context(), authed.User.ID, id)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	h.auditor.Record(r.Context(), h.actor(r), "withdrawal.retry", "WithdrawalRequest", id, nil, request)
	respond(w, h.logs, withdrawalToResponse(request, true), http.StatusOK, requestId)
}

type reviewFn func(ctx context.Context, reviewerID, requestID, notes, proofURL string) (repository.WithdrawalRequest, error)

func (h *AdminHandler) review(w http.ResponseWriter, r *http.Request, action string, fn reviewFn, notesRequired bool) {
	requestId := middleware.RequestIDFrom(r.Context())
	authed, _ := middleware.AuthedUserFrom(r.Context())

	var notes string
	if notesRequired {
		var body payload.RejectWithdrawalRequest
		if err := h.requestValidator.DecodeAndValidateJSONPayload(r, &body); err != nil {
			respond(w, h.logs, ErrorResponse{
				Error: fmt.Errorf("invalid request payload: %w", err).Error(),
			}, http.StatusBadRequest, requestId)
			return
		}
		notes = body.AdminNotes
	} else {
		var body payload.ReviewWithdrawalRequest
		if err := h.requestValidator.DecodeAndValidateJSONPayload(r, &body); err != nil {
			respond(w, h.logs, ErrorResponse{
				Error: fmt.Errorf("invalid request payload: %w", err).Error(),
			}, http.StatusBadRequest, requestId)
			return
		}
		notes = body.AdminNotes
	}

	id := r.PathValue("id")
	before, err := h.withdrawals.GetRequest(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	request, err := fn(r.Context(), authed.User.ID, id, notes, "")
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	h.auditor.Record(r.Context(), h.actor(r), action, "WithdrawalRequest", id, before, request)
	respond(w, h.logs, withdrawalToResponse(request, true), http.StatusOK, requestId)
}

func (h *AdminHandler) HandleCreatePool(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	var body payload.CreatePoolRequest
	if err := h.requestValidator.DecodeAndValidateJSONPayload(r, &body); err != nil {
		respond(w, h.logs, ErrorResponse{
			Error: fmt.Errorf("invalid request payload: %w", err).Error(),
		}, http.StatusBadRequest, requestId)
		return
	}

	apr, err := decimal.NewFromString(body.Apr)
	if err != nil {
		respond(w, h.logs, ErrorResponse{Error: "apr is not a valid decimal"}, http.StatusBadRequest, requestId)
		return
	}
	minStake, err := decimal.NewFromString(body.MinStake)
	if err != nil {
		respond(w, h.logs, ErrorResponse{Error: "minStake is not a valid decimal"}, http.StatusBadRequest, requestId)
		return
	}

	now := h.clock.Now()
	pool := repository.Pool{
		ID:            uuid.NewString(),
		Name:          body.Name,
		Slug:          strings.ToLower(body.Slug),
		AssetID:       body.AssetID,
		Type:          body.Type,
		LockDays:      body.LockDays,
		CurrentApr:    apr,
		MinStake:      minStake,
		TotalStaked:   decimal.Zero,
		CooldownHours: body.CooldownHours,
		IsActive:      true,
		CreatedAt:     now,
	}
	if body.MaxStake != nil {
		maxStake, err := decimal.NewFromString(*body.MaxStake)
		if err != nil {
			respond(w, h.logs, ErrorResponse{Error: "maxStake is not a valid decimal"}, http.StatusBadRequest, requestId)
			return
		}
		pool.MaxStake = &maxStake
	}
	if body.TotalCapacity != nil {
		capacity, err := decimal.NewFromString(*body.TotalCapacity)
		if err != nil {
			respond(w, h.logs, ErrorResponse{Error: "totalCapacity is not a valid decimal"}, http.StatusBadRequest, requestId)
			return
		}
		pool.TotalCapacity = &capacity
	}

	err = h.store.RunInTx(r.Context(), func(txCtx context.Context) error {
		if _, err := h.store.GetAsset(txCtx, body.AssetID); err != nil {
			return err
		}
		if err := h.store.CreatePool(txCtx, &pool); err != nil {
			return err
		}
		return h.store.CreateAprSchedule(txCtx, &repository.AprSchedule{
			ID:            uuid.NewString(),
			PoolID:        pool.ID,
			Apr:           apr,
			EffectiveFrom: now,
			CreatedAt:     now,
		})
	})
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	h.auditor.Record(r.Context(), h.actor(r), "pool.create", "Pool", pool.ID, nil, pool)
	respond(w, h.logs, poolToResponse(pool), http.StatusCreated, requestId)
}

func (h *AdminHandler) HandlePoolApr(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	var body payload.AprScheduleRequest
	if err := h.requestValidator.DecodeAndValidateJSONPayload(r, &body); err != nil {
		respond(w, h.logs, ErrorResponse{
			Error: fmt.Errorf("invalid request payload: %w", err).Error(),
		}, http.StatusBadRequest, requestId)
		return
	}

	apr, err := decimal.NewFromString(body.NewApr)
	if err != nil {
		respond(w, h.logs, ErrorResponse{Error: "newApr is not a valid decimal"}, http.StatusBadRequest, requestId)
		return
	}
	effectiveFrom, err := time.Parse(time.RFC3339, body.EffectiveFrom)
	if err != nil {
		respond(w, h.logs, ErrorResponse{Error: "effectiveFrom is not a valid RFC 3339 timestamp"}, http.StatusBadRequest, requestId)
		return
	}

	poolID := r.PathValue("id")
	schedule := repository.AprSchedule{
		ID:            uuid.NewString(),
		PoolID:        poolID,
		Apr:           apr,
		EffectiveFrom: effectiveFrom,
		CreatedAt:     h.clock.Now(),
	}

	var before repository.Pool
	err = h.store.RunInTx(r.Context(), func(txCtx context.Context) error {
		var err error
		before, err = h.store.GetPool(txCtx, poolID)
		if err != nil {
			return err
		}
		if err := h.store.CloseOpenAprSchedules(txCtx, poolID, effectiveFrom); err != nil {
			return err
		}
		if err := h.store.CreateAprSchedule(txCtx, &schedule); err != nil {
			return err
		}
		// CurrentApr is a display cache; the schedule table is authoritative
		return h.store.SetPoolCurrentApr(txCtx, poolID, apr)
	})
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	h.auditor.Record(r.Context(), h.actor(r), "pool.apr_schedule", "Pool", poolID, before, schedule)
	respond(w, h.logs, map[string]string{
		"id":            schedule.ID,
		"poolId":        poolID,
		"apr":           apr.String(),
		"effectiveFrom": effectiveFrom.Format(timeFormat),
	}, http.StatusCreated, requestId)
}

func (h *AdminHandler) HandleCancelStake(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	id := r.PathValue("id")
	position, err := h.staking.AdminCancel(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	h.auditor.Record(r.Context(), h.actor(r), "stake.cancel", "StakePosition", id, position, nil)
	respond(w, h.logs, map[string]string{"status": repository.StakeCancelled}, http.StatusOK, requestId)
}

func (h *AdminHandler) HandleCreateTreasury(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	var body payload.CreateTreasuryRequest
	if err := h.requestValidator.DecodeAndValidateJSONPayload(r, &body); err != nil {
		respond(w, h.logs, ErrorResponse{
			Error: fmt.Errorf("invalid request payload: %w", err).Error(),
		}, http.StatusBadRequest, requestId)
		return
	}

	derived, err := hdwallet.AddressOf(body.PrivateKeyHex)
	if err != nil {
		respond(w, h.logs, ErrorResponse{Error: "privateKeyHex is not a valid secp256k1 key"}, http.StatusBadRequest, requestId)
		return
	}
	if derived != strings.ToLower(body.Address) {
		respond(w, h.logs, ErrorResponse{Error: "address does not match the provided key"}, http.StatusBadRequest, requestId)
		return
	}

	sealed, err := h.sealer.Seal([]byte(body.PrivateKeyHex))
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	wallet := repository.TreasuryWallet{
		ID:                  uuid.NewString(),
		ChainID:             body.ChainID,
		Address:             strings.ToLower(body.Address),
		Label:               body.Label,
		EncryptedPrivateKey: sealed,
		IsActive:            true,
		CreatedAt:           h.clock.Now(),
	}

	if err := h.store.CreateTreasuryWallet(r.Context(), &wallet); err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	h.auditor.Record(r.Context(), h.actor(r), "treasury.create", "TreasuryWallet", wallet.ID, nil, wallet)
	respond(w, h.logs, map[string]string{
		"id":      wallet.ID,
		"chainId": wallet.ChainID,
		"address": wallet.Address,
		"label":   wallet.Label,
	}, http.StatusCreated, requestId)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return value
}
