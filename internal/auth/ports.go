package auth

import (
	"context"
	"time"

	"stakevault/internal/repository"
	tokenIssuer "stakevault/pkg/jwt"

	"github.com/golang-jwt/jwt"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

//counterfeiter:generate -o fake -fake-name Repository . Repository
type Repository interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error

	CreateUser(ctx context.Context, user *repository.User) error
	GetUserByEmail(ctx context.Context, email string) (repository.User, error)
	GetUserByID(ctx context.Context, id string) (repository.User, error)
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
	SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) error

	CreateSession(ctx context.Context, session *repository.Session) error
	GetSessionByRefreshHash(ctx context.Context, hash string) (repository.Session, error)
	GetSessionByID(ctx context.Context, id string) (repository.Session, error)
	ListSessions(ctx context.Context, userID string) ([]repository.Session, error)
	RevokeSession(ctx context.Context, id string) (bool, error)
	TouchSession(ctx context.Context, id string, at time.Time) error

	UpsertTwoFactorSecret(ctx context.Context, secret *repository.TwoFactorSecret) error
	GetTwoFactorSecret(ctx context.Context, userID string) (repository.TwoFactorSecret, error)
	DeleteTwoFactorSecret(ctx context.Context, userID string) error
	ReplaceRecoveryCodes(ctx context.Context, userID string, codes []repository.RecoveryCode) error
	ConsumeRecoveryCode(ctx context.Context, userID, codeHash string) (bool, error)
}

//counterfeiter:generate -o fake -fake-name TokenIssuer . TokenIssuer
type TokenIssuer interface {
	Generate(data tokenIssuer.TokenInfo) *jwt.Token
	Sign(token *jwt.Token) (string, error)
	Validate(token string) (tokenIssuer.Claims, error)
}

//counterfeiter:generate -o fake -fake-name SecretSealer . SecretSealer
type SecretSealer interface {
	Seal(plaintext []byte) (string, error)
	Open(encoded string) ([]byte, error)
}
