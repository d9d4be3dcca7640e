package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"stakevault/internal/http/handler/middleware"
	"stakevault/internal/http/payload"
	"stakevault/internal/repository"
	"stakevault/internal/withdrawal"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	SubmitWithdrawal = "POST /v1/withdrawals"
	ListWithdrawals  = "GET /v1/withdrawals"
	GetWithdrawal    = "GET /v1/withdrawals/{id}"
)

type WithdrawalHandler struct {
	logs             *zap.SugaredLogger
	requestValidator RequestValidator
	withdrawals      *withdrawal.Service
}

func NewWithdrawalHandler(logger *zap.SugaredLogger, requestValidator RequestValidator, withdrawals *withdrawal.Service) *WithdrawalHandler {
	return &WithdrawalHandler{
		logs:             logger,
		requestValidator: requestValidator,
		withdrawals:      withdrawals,
	}
}

type withdrawalResponse struct {
	ID                 string          `json:"id"`
	AssetID            string          `json:"assetId"`
	ChainID            string          `json:"chainId"`
	Amount             string          `json:"amount"`
	Fee                string          `json:"fee"`
	NetAmount          string          `json:"netAmount"`
	DestinationAddress string          `json:"destinationAddress"`
	Status             string          `json:"status"`
	UserNotes          string          `json:"userNotes,omitempty"`
	AdminNotes         string          `json:"adminNotes,omitempty"`
	FraudScore         int             `json:"fraudScore"`
	FraudIndicators    json.RawMessage `json:"fraudIndicators,omitempty"`
	CreatedAt          string          `json:"createdAt"`
}

func withdrawalToResponse(wr repository.WithdrawalRequest, includeFraud bool) withdrawalResponse {
	resp := withdrawalResponse{
		ID:                 wr.ID,
		AssetID:            wr.AssetID,
		ChainID:            wr.ChainID,
		Amount:             wr.Amount.String(),
		Fee:                wr.Fee.String(),
		NetAmount:          wr.NetAmount.String(),
		DestinationAddress: wr.DestinationAddress,
		Status:             wr.Status,
		UserNotes:          wr.UserNotes,
		CreatedAt:          wr.CreatedAt.Format(timeFormat),
	}
	if includeFraud {
		resp.AdminNotes = wr.AdminNotes
		resp.FraudScore = wr.FraudScore
		resp.FraudIndicators = json.RawMessage(wr.FraudIndicators)
	}
	return resp
}

func withdrawalsToResponse(items []repository.WithdrawalRequest) []withdrawalResponse {
	out := make([]withdrawalResponse, 0, len(items))
	for _, wr := range items {
		out = append(out, withdrawalToResponse(wr, false))
	}
	return out
}

func (h *WithdrawalHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())

	var body payload.CreateWithdrawalRequest
	if err := h.requestValidator.DecodeAndValidateJSONPayload(r, &body); err != nil {
		respond(w, h.logs, ErrorResponse{
			Error: fmt.Errorf("invalid request payload: %w", err).Error(),
		}, http.StatusBadRequest, requestId)
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		respond(w, h.logs, ErrorResponse{Error: "amount must be a positive decimal"}, http.StatusBadRequest, requestId)
		return
	}

	request, err := h.withdrawals.Submit(r.Context(), withdrawal.SubmitInput{
		UserID:             authed.User.ID,
		AssetID:            body.AssetID,
		ChainID:            body.ChainID,
		Amount:             amount,
		DestinationAddress: body.DestinationAddress,
		UserNotes:          body.UserNotes,
		IdempotencyKey:     body.IdempotencyKey,
	})
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, withdrawalToResponse(request, false), http.StatusCreated, requestId)
}

func (h *WithdrawalHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())

	items, err := h.withdrawals.ListUserRequests(r.Context(), authed.User.ID)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, map[string]any{"withdrawals": withdrawalsToResponse(items)}, http.StatusOK, requestId)
}

func (h *WithdrawalHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())

	request, err := h.withdrawals.GetUserRequest(r.Context(), authed.User.ID, r.PathValue("id"))
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, withdrawalToResponse(request, false), http.StatusOK, requestId)
}
