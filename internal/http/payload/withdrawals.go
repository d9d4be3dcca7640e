package payload

import (
	"github.com/jellydator/validation"
)

type CreateWithdrawalRequest struct {
	AssetID            string `json:"assetId"`
	ChainID            string `json:"chainId"`
	Amount             string `json:"amount"`
	DestinationAddress string `json:"destinationAddress"`
	UserNotes          string `json:"userNotes,omitempty"`
	IdempotencyKey     string `json:"idempotencyKey"`
}

func (c CreateWithdrawalRequest) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.AssetID, validation.Required, validation.Match(uuidRegex)),
		validation.Field(&c.ChainID, validation.Required, validation.Match(uuidRegex)),
		validation.Field(&c.Amount, validation.Required, validation.Match(amountRegex)),
		validation.Field(&c.DestinationAddress, validation.Required, validation.Match(addressRegex)),
		validation.Field(&c.UserNotes, validation.Length(0, 1000)),
		validation.Field(&c.IdempotencyKey, validation.Required, validation.Length(8, 128)),
	)
}

type ReviewWithdrawalRequest struct {
	AdminNotes string `json:"adminNotes,omitempty"`
}

func (r ReviewWithdrawalRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AdminNotes, validation.Length(0, 2000)),
	)
}

type RejectWithdrawalRequest struct {
	AdminNotes string `json:"adminNotes"`
}

func (r RejectWithdrawalRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AdminNotes, validation.Required, validation.Length(1, 2000)),
	)
}

type MarkPaidRequest struct {
	ProofURL   string `json:"proofUrl,omitempty"`
	AdminNotes string `json:"adminNotes"`
}

func (m MarkPaidRequest) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.AdminNotes, validation.Required, validation.Length(1, 2000)),
		validation.Field(&m.ProofURL, validation.Length(0, 512)),
	)
}
