package payload

import (
	"github.com/jellydator/validation"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a RegisterRequest) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Email, validation.Required, validation.Match(emailRegex)),
		validation.Field(&a.Password, validation.Required, validation.Length(8, 128), validation.By(passwordComplexity)),
	)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TotpCode string `json:"totpCode,omitempty"`
}

func (a LoginRequest) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Email, validation.Required, validation.Match(emailRegex)),
		validation.Field(&a.Password, validation.Required),
		// 6-digit TOTP or 8-char recovery code
		validation.Field(&a.TotpCode, validation.Length(6, 8)),
	)
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a RefreshRequest) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.RefreshToken, validation.Required),
	)
}

type TwoFactorCodeRequest struct {
	TotpCode string `json:"totpCode"`
}

func (a TwoFactorCodeRequest) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.TotpCode, validation.Required, validation.Match(totpRegex)),
	)
}
