package payload

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/jellydator/validation"
)

// Shared field patterns, enforced server-side on every input.
var (
	emailRegex   = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)
	amountRegex  = regexp.MustCompile(`^\d+(\.\d+)?$`)
	addressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	totpRegex    = regexp.MustCompile(`^\d{6}$`)
	uuidRegex    = regexp.MustCompile(`^[a-fA-F0-9-]{32,36}$`)
)

type DecodeValidator struct{}

func (dv DecodeValidator) DecodeAndValidateJSONPayload(r *http.Request, object any) error {
	decoder := json.NewDecoder(r.Body)
	defer r.Body.Close()
	decoder.DisallowUnknownFields()
	err := decoder.Decode(object)
	if err != nil {
		return fmt.Errorf("decoding json payload: %w", err)
	}
	return dv.validatePayload(object)
}

func (dv *DecodeValidator) validatePayload(object any) error {
	t, ok := object.(validation.Validatable)
	if !ok {
		// nothing to validate
		return nil
	}

	if err := t.Validate(); err != nil {
		return fmt.Errorf("validating payload: %w", err)
	}

	return nil
}

// passwordComplexity requires at least one upper, lower, digit and special
// character.
func passwordComplexity(value interface{}) error {
	password, _ := value.(string)

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		default:
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return fmt.Errorf("must contain upper, lower, digit and special characters")
	}
	return nil
}
