package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"stakevault/internal/domain"
	"stakevault/internal/repository"
	"stakevault/pkg/clock"
	tokenIssuer "stakevault/pkg/jwt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Invalid credentials and missing users collapse into one error so the API
// cannot be used to enumerate accounts.
var ErrUnauthorized error = errors.New("invalid credentials")
var ErrAccountDisabled error = errors.New("account disabled")
var ErrAdminNeedsTwoFactor error = errors.New("admin login requires two-factor")

// Service implements registration, login, token rotation and session
// management.
type Service struct {
	logs            *zap.SugaredLogger
	repo            Repository
	tokens          TokenIssuer
	twoFactor       *TwoFactor
	clock           clock.Clock
	accessTTL       time.Duration
	refreshTTL      time.Duration
	defaultDailyUsd decimal.Decimal
}

type Config struct {
	AccessTTL                      time.Duration
	RefreshTTL                     time.Duration
	DefaultDailyWithdrawalLimitUsd decimal.Decimal
}

func NewService(logger *zap.SugaredLogger, repo Repository, tokens TokenIssuer, twoFactor *TwoFactor, clk clock.Clock, cfg Config) *Service {
	return &Service{
		logs:            logger,
		repo:            repo,
		tokens:          tokens,
		twoFactor:       twoFactor,
		clock:           clk,
		accessTTL:       cfg.AccessTTL,
		refreshTTL:      cfg.RefreshTTL,
		defaultDailyUsd: cfg.DefaultDailyWithdrawalLimitUsd,
	}
}

// TokenPair is what login/register/refresh hand back.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
}

type SessionContext struct {
	DeviceName string
	IPAddress  string
	UserAgent  string
}

func (s *Service) Register(ctx context.Context, email, password string, sctx SessionContext) (repository.User, TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	passwordHash, err := HashPassword(password)
	if err != nil {
		return repository.User{}, TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	user := repository.User{
		ID:                      uuid.NewString(),
		Email:                   email,
		PasswordHash:            passwordHash,
		Role:                    repository.RoleUser,
		KycStatus:               "NONE",
		IsActive:                true,
		DailyWithdrawalLimitUsd: s.defaultDailyUsd,
		CreatedAt:               s.clock.Now(),
	}

	if err := s.repo.CreateUser(ctx, &user); err != nil {
		return repository.User{}, TokenPair{}, err
	}

	pair, err := s.issueTokens(ctx, user, sctx)
	if err != nil {
		return repository.User{}, TokenPair{}, err
	}

	s.logs.Infow("user registered", "user_id", user.ID)
	return user, pair, nil
}

func (s *Service) Login(ctx context.Context, email, password, totpCode string, sctx SessionContext) (TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			// burn a comparable amount of time so the miss is not observable
			_, _ = VerifyPassword("$argon2id$v=19$m=65536,t=3,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA", password)
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, fmt.Errorf("get user: %w", err)
	}

	ok, err := VerifyPassword(user.PasswordHash, password)
	if err != nil {
		return TokenPair{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return TokenPair{}, ErrUnauthorized
	}

	if !user.IsActive {
		return TokenPair{}, ErrAccountDisabled
	}

	if repository.RoleAtLeast(user.Role, repository.RoleAdmin) && !user.TwoFactorEnabled {
		return TokenPair{}, ErrAdminNeedsTwoFactor
	}

	if user.TwoFactorEnabled {
		if totpCode == "" {
			return TokenPair{}, domain.NewError(domain.CodeTwoFactorRequired, "2FA required")
		}
		if err := s.twoFactor.VerifyLoginCode(ctx, user.ID, totpCode); err != nil {
			return TokenPair{}, err
		}
	}

	if err := s.repo.TouchLastLogin(ctx, user.ID, s.clock.Now()); err != nil {
		s.logs.Errorw("failed to bump last login", "error", err, "user_id", user.ID)
	}

	pair, err := s.issueTokens(ctx, user, sctx)
	if err != nil {
		return TokenPair{}, err
	}

	s.logs.Infow("user logged in", "user_id", user.ID)
	return pair, nil
}

// Refresh rotates the session: the presented refresh token is revoked and a
// fresh (access, refresh) pair is bound to a new session row. Concurrent
// refreshers race on the revocation CAS; at most one wins.
func (s *Service) Refresh(ctx context.Context, refreshToken string, sctx SessionContext) (TokenPair, error) {
	hash := hashToken(refreshToken)

	var pair TokenPair
	err := s.repo.RunInTx(ctx, func(txCtx context.Context) error {
		session, err := s.repo.GetSessionByRefreshHash(txCtx, hash)
		if err != nil {
			if errors.Is(err, repository.ErrSessionNotFound) {
				return ErrUnauthorized
			}
			return fmt.Errorf("get session: %w", err)
		}

		if session.IsRevoked || session.ExpiresAt.Before(s.clock.Now()) {
			return ErrUnauthorized
		}

		won, err := s.repo.RevokeSession(txCtx, session.ID)
		if err != nil {
			return err
		}
		if !won {
			return ErrUnauthorized
		}

		user, err := s.repo.GetUserByID(txCtx, session.UserID)
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		if !user.IsActive {
			return ErrAccountDisabled
		}

		pair, err = s.issueTokens(txCtx, user, sctx)
		return err
	})
	if err != nil {
		return TokenPair{}, err
	}

	return pair, nil
}

func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if _, err := s.repo.RevokeSession(ctx, sessionID); err != nil {
		return err
	}
	return nil
}

// ValidateAccess verifies the signed token and confirms the backing session
// is still live.
func (s *Service) ValidateAccess(ctx context.Context, accessToken string) (repository.User, tokenIssuer.Claims, error) {
	claims, err := s.tokens.Validate(accessToken)
	if err != nil {
		return repository.User{}, tokenIssuer.Claims{}, ErrUnauthorized
	}

	session, err := s.repo.GetSessionByID(ctx, claims.SessionID)
	if err != nil {
		return repository.User{}, tokenIssuer.Claims{}, ErrUnauthorized
	}
	if session.IsRevoked || session.ExpiresAt.Before(s.clock.Now()) {
		return repository.User{}, tokenIssuer.Claims{}, ErrUnauthorized
	}

	user, err := s.repo.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return repository.User{}, tokenIssuer.Claims{}, ErrUnauthorized
	}
	if !user.IsActive {
		return repository.User{}, tokenIssuer.Claims{}, ErrAccountDisabled
	}

	if err := s.repo.TouchSession(ctx, session.ID, s.clock.Now()); err != nil {
		s.logs.Errorw("failed to touch session", "error", err, "session_id", session.ID)
	}

	return user, claims, nil
}

func (s *Service) ListSessions(ctx context.Context, userID string) ([]repository.Session, error) {
	return s.repo.ListSessions(ctx, userID)
}

// RevokeOwnSession revokes a session that belongs to the caller.
func (s *Service) RevokeOwnSession(ctx context.Context, userID, sessionID string) error {
	session, err := s.repo.GetSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return ErrUnauthorized
	}
	_, err = s.repo.RevokeSession(ctx, sessionID)
	return err
}

func (s *Service) issueTokens(ctx context.Context, user repository.User, sctx SessionContext) (TokenPair, error) {
	refreshToken, err := randomToken(32)
	if err != nil {
		return TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}

	now := s.clock.Now()
	session := repository.Session{
		ID:               uuid.NewString(),
		UserID:           user.ID,
		RefreshTokenHash: hashToken(refreshToken),
		DeviceName:       sctx.DeviceName,
		IPAddress:        sctx.IPAddress,
		UserAgent:        sctx.UserAgent,
		LastActiveAt:     now,
		ExpiresAt:        now.Add(s.refreshTTL),
		CreatedAt:        now,
	}

	if err := s.repo.CreateSession(ctx, &session); err != nil {
		return TokenPair{}, err
	}

	token := s.tokens.Generate(tokenIssuer.TokenInfo{
		Subject:    user.ID,
		Role:       user.Role,
		SessionID:  session.ID,
		Expiration: s.accessTTL,
	})
	signed, err := s.tokens.Sign(token)
	if err != nil {
		return TokenPair{}, fmt.Errorf("signing token: %w", err)
	}

	return TokenPair{
		AccessToken:  signed,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func randomToken(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// hashToken stores only a digest of the refresh token; the plaintext never
// touches the database.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
