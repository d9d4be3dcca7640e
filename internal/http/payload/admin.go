package payload

import (
	"github.com/jellydator/validation"
)

type CreatePoolRequest struct {
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	AssetID       string  `json:"assetId"`
	Type          string  `json:"type"`
	LockDays      int     `json:"lockDays"`
	Apr           string  `json:"apr"`
	MinStake      string  `json:"minStake"`
	MaxStake      *string `json:"maxStake,omitempty"`
	TotalCapacity *string `json:"totalCapacity,omitempty"`
	CooldownHours int     `json:"cooldownHours"`
}

func (c CreatePoolRequest) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required, validation.Length(1, 128)),
		validation.Field(&c.Slug, validation.Required, validation.Length(1, 64)),
		validation.Field(&c.AssetID, validation.Required, validation.Match(uuidRegex)),
		validation.Field(&c.Type, validation.Required, validation.In("FLEXIBLE", "FIXED")),
		validation.Field(&c.LockDays, validation.Min(0), validation.Max(3650)),
		validation.Field(&c.Apr, validation.Required, validation.Match(amountRegex)),
		validation.Field(&c.MinStake, validation.Required, validation.Match(amountRegex)),
		validation.Field(&c.CooldownHours, validation.Min(0), validation.Max(24*30)),
	)
}

type AprScheduleRequest struct {
	NewApr        string `json:"newApr"`
	EffectiveFrom string `json:"effectiveFrom"` // RFC 3339
}

func (a AprScheduleRequest) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.NewApr, validation.Required, validation.Match(amountRegex)),
		validation.Field(&a.EffectiveFrom, validation.Required, validation.Date("2006-01-02T15:04:05Z07:00")),
	)
}

type CreateTreasuryRequest struct {
	ChainID       string `json:"chainId"`
	Address       string `json:"address"`
	Label         string `json:"label"`
	PrivateKeyHex string `json:"privateKeyHex"`
}

func (t CreateTreasuryRequest) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.ChainID, validation.Required, validation.Match(uuidRegex)),
		validation.Field(&t.Address, validation.Required, validation.Match(addressRegex)),
		validation.Field(&t.Label, validation.Length(0, 128)),
		validation.Field(&t.PrivateKeyHex, validation.Required, validation.Length(64, 66)),
	)
}
