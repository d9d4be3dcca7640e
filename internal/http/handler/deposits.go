package handler

import (
	"fmt"
	"net/http"

	"stakevault/internal/deposit"
	"stakevault/internal/http/handler/middleware"
	"stakevault/internal/http/payload"
	"stakevault/internal/repository"

	"go.uber.org/zap"
)

var (
	GetDepositAddress = "POST /v1/deposits/address"
	ListDeposits      = "GET /v1/deposits"
)

type DepositHandler struct {
	logs             *zap.SugaredLogger
	requestValidator RequestValidator
	deposits         *deposit.Service
}

func NewDepositHandler(logger *zap.SugaredLogger, requestValidator RequestValidator, deposits *deposit.Service) *DepositHandler {
	return &DepositHandler{
		logs:             logger,
		requestValidator: requestValidator,
		deposits:         deposits,
	}
}

func (h *DepositHandler) HandleGetDepositAddress(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())

	var body payload.DepositAddressRequest
	if err := h.requestValidator.DecodeAndValidateJSONPayload(r, &body); err != nil {
		respond(w, h.logs, ErrorResponse{
			Error: fmt.Errorf("invalid request payload: %w", err).Error(),
		}, http.StatusBadRequest, requestId)
		return
	}

	addr, err := h.deposits.GetOrCreateAddress(r.Context(), authed.User.ID, body.ChainID)
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	respond(w, h.logs, map[string]string{
		"address":      addr.Address,
		"chainId":      addr.ChainID,
		"instructions": "Send only supported tokens to this address. Deposits are credited after the required confirmations.",
	}, http.StatusOK, requestId)
}

type depositResponse struct {
	ID            string `json:"id"`
	AssetID       string `json:"assetId"`
	ChainID       string `json:"chainId"`
	TxHash        string `json:"txHash"`
	FromAddress   string `json:"fromAddress"`
	Amount        string `json:"amount"`
	Confirmations int    `json:"confirmations"`
	Status        string `json:"status"`
	ConfirmedAt   string `json:"confirmedAt,omitempty"`
	CreatedAt     string `json:"createdAt"`
}

func (h *DepositHandler) HandleListDeposits(w http.ResponseWriter, r *http.Request) {
	requestId := middleware.RequestIDFrom(r.Context())

	authed, _ := middleware.AuthedUserFrom(r.Context())

	deposits, err := h.deposits.ListUserDeposits(r.Context(), authed.User.ID,
		r.URL.Query().Get("chainId"), r.URL.Query().Get("status"))
	if err != nil {
		respondServiceError(w, h.logs, err, requestId)
		return
	}

	out := make([]depositResponse, 0, len(deposits))
	for _, d := range deposits {
		out = append(out, depositToResponse(d))
	}

	respond(w, h.logs, map[string]any{"deposits": out}, http.StatusOK, requestId)
}

func depositToResponse(d repository.Deposit) depositResponse {
	resp := depositResponse{
		ID:            d.ID,
		AssetID:       d.AssetID,
		ChainID:       d.ChainID,
		TxHash:        d.TxHash,
		FromAddress:   d.FromAddress,
		Amount:        d.Amount.String(),
		Confirmations: d.Confirmations,
		Status:        d.Status,
		CreatedAt:     d.CreatedAt.Format(timeFormat),
	}
	if d.ConfirmedAt != nil {
		resp.ConfirmedAt = d.ConfirmedAt.Format(timeFormat)
	}
	return resp
}
