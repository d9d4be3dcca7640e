package domain

import "errors"

// Error is a domain rejection with a stable machine-readable code; handlers
// map it to HTTP 400 (403 for STATE_FORBIDDEN) without losing the code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// AsDomainError unwraps err into *Error when possible.
func AsDomainError(err error) (*Error, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// Codes used across services.
const (
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodePoolInactive        = "POOL_INACTIVE"
	CodePoolCapacity        = "POOL_CAPACITY_EXCEEDED"
	CodeStakeTooSmall       = "STAKE_BELOW_MINIMUM"
	CodeStakeTooLarge       = "STAKE_ABOVE_MAXIMUM"
	CodeStakeLocked         = "STAKE_LOCKED"
	CodeStakeNotActive      = "STAKE_NOT_ACTIVE"
	CodeAssetInactive       = "ASSET_INACTIVE"
	CodeAmountTooSmall      = "AMOUNT_BELOW_FEE"
	CodeTwoFactorRequired   = "2FA_REQUIRED"
	CodeTwoFactorInvalid    = "2FA_INVALID"
	CodeStateForbidden      = "STATE_FORBIDDEN"
	CodeNotesRequired       = "ADMIN_NOTES_REQUIRED"
	CodeSignerUnavailable   = "SIGNER_UNAVAILABLE"
)
