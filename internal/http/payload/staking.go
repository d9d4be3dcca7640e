package payload

import (
	"github.com/jellydator/validation"
)

type CreateStakeRequest struct {
	PoolID string `json:"poolId"`
	Amount string `json:"amount"`
}

func (s CreateStakeRequest) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.PoolID, validation.Required, validation.Match(uuidRegex)),
		validation.Field(&s.Amount, validation.Required, validation.Match(amountRegex)),
	)
}

type DepositAddressRequest struct {
	ChainID string `json:"chainId"`
}

func (d DepositAddressRequest) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.ChainID, validation.Required, validation.Match(uuidRegex)),
	)
}
