package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"stakevault/internal/domain"
	"stakevault/internal/repository"
	"stakevault/pkg/clock"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

const recoveryCodeCount = 10
const recoveryCodeLen = 8
const recoveryAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// TwoFactor owns TOTP secrets and recovery codes. Secrets are sealed with
// AES-256-GCM before they touch the database.
type TwoFactor struct {
	logs   *zap.SugaredLogger
	repo   Repository
	sealer SecretSealer
	clock  clock.Clock
	issuer string
}

func NewTwoFactor(logger *zap.SugaredLogger, repo Repository, sealer SecretSealer, clk clock.Clock) *TwoFactor {
	return &TwoFactor{
		logs:   logger,
		repo:   repo,
		sealer: sealer,
		clock:  clk,
		issuer: "stakevault",
	}
}

type SetupResult struct {
	Secret    string
	QRCodeURL string
}

// Setup generates a fresh secret and stores it unverified. Re-running setup
// before verification replaces the pending secret.
func (t *TwoFactor) Setup(ctx context.Context, userID, email string) (SetupResult, error) {
	user, err := t.repo.GetUserByID(ctx, userID)
	if err != nil {
		return SetupResult{}, err
	}
	if user.TwoFactorEnabled {
		return SetupResult{}, domain.NewError(domain.CodeStateForbidden, "two-factor already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      t.issuer,
		AccountName: email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return SetupResult{}, fmt.Errorf("generate totp key: %w", err)
	}

	sealed, err := t.sealer.Seal([]byte(key.Secret()))
	if err != nil {
		return SetupResult{}, fmt.Errorf("seal totp secret: %w", err)
	}

	err = t.repo.UpsertTwoFactorSecret(ctx, &repository.TwoFactorSecret{
		UserID:          userID,
		EncryptedSecret: sealed,
		IsVerified:      false,
	})
	if err != nil {
		return SetupResult{}, err
	}

	return SetupResult{
		Secret:    key.Secret(),
		QRCodeURL: key.URL(),
	}, nil
}

// Verify confirms the first correct code, enables two-factor on the user and
// materializes the recovery codes. Returned codes are shown exactly once.
func (t *TwoFactor) Verify(ctx context.Context, userID, code string) ([]string, error) {
	secret, err := t.repo.GetTwoFactorSecret(ctx, userID)
	if err != nil {
		return nil, err
	}
	if secret.IsVerified {
		return nil, domain.NewError(domain.CodeStateForbidden, "two-factor already verified")
	}

	if err := t.checkTOTP(secret.EncryptedSecret, code); err != nil {
		return nil, err
	}

	codes := make([]string, 0, recoveryCodeCount)
	rows := make([]repository.RecoveryCode, 0, recoveryCodeCount)
	for i := 0; i < recoveryCodeCount; i++ {
		plain, err := randomRecoveryCode()
		if err != nil {
			return nil, fmt.Errorf("generate recovery code: %w", err)
		}
		codes = append(codes, plain)
		rows = append(rows, repository.RecoveryCode{
			ID:       uuid.NewString(),
			UserID:   userID,
			CodeHash: hashRecoveryCode(plain),
		})
	}

	err = t.repo.RunInTx(ctx, func(txCtx context.Context) error {
		secret.IsVerified = true
		if err := t.repo.UpsertTwoFactorSecret(txCtx, &secret); err != nil {
			return err
		}
		if err := t.repo.SetTwoFactorEnabled(txCtx, userID, true); err != nil {
			return err
		}
		return t.repo.ReplaceRecoveryCodes(txCtx, userID, rows)
	})
	if err != nil {
		return nil, err
	}

	t.logs.Infow("two-factor enabled", "user_id", userID)
	return codes, nil
}

// Disable requires a valid current code, then drops the secret and codes.
func (t *TwoFactor) Disable(ctx context.Context, userID, code string) error {
	secret, err := t.repo.GetTwoFactorSecret(ctx, userID)
	if err != nil {
		return err
	}

	if err := t.checkTOTP(secret.EncryptedSecret, code); err != nil {
		return err
	}

	err = t.repo.RunInTx(ctx, func(txCtx context.Context) error {
		if err := t.repo.DeleteTwoFactorSecret(txCtx, userID); err != nil {
			return err
		}
		if err := t.repo.ReplaceRecoveryCodes(txCtx, userID, nil); err != nil {
			return err
		}
		return t.repo.SetTwoFactorEnabled(txCtx, userID, false)
	})
	if err != nil {
		return err
	}

	t.logs.Infow("two-factor disabled", "user_id", userID)
	return nil
}

// VerifyLoginCode accepts either a 6-digit TOTP or an 8-char recovery code.
// A matched recovery code is burned.
func (t *TwoFactor) VerifyLoginCode(ctx context.Context, userID, code string) error {
	if len(code) == recoveryCodeLen {
		used, err := t.repo.ConsumeRecoveryCode(ctx, userID, hashRecoveryCode(code))
		if err != nil {
			return err
		}
		if used {
			return nil
		}
		return domain.NewError(domain.CodeTwoFactorInvalid, "invalid recovery code")
	}

	secret, err := t.repo.GetTwoFactorSecret(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrTwoFactorNotConfigured) {
			return domain.NewError(domain.CodeTwoFactorInvalid, "two-factor not configured")
		}
		return err
	}
	if !secret.IsVerified {
		return domain.NewError(domain.CodeTwoFactorInvalid, "two-factor not verified")
	}

	return t.checkTOTP(secret.EncryptedSecret, code)
}

func (t *TwoFactor) checkTOTP(sealedSecret, code string) error {
	plain, err := t.sealer.Open(sealedSecret)
	if err != nil {
		return fmt.Errorf("open totp secret: %w", err)
	}

	valid, err := totp.ValidateCustom(code, string(plain), t.clock.Now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return fmt.Errorf("validate totp: %w", err)
	}
	if !valid {
		return domain.NewError(domain.CodeTwoFactorInvalid, "invalid 2FA code")
	}
	return nil
}

func randomRecoveryCode() (string, error) {
	buf := make([]byte, recoveryCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, recoveryCodeLen)
	for i, b := range buf {
		out[i] = recoveryAlphabet[int(b)%len(recoveryAlphabet)]
	}
	return string(out), nil
}

func hashRecoveryCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
