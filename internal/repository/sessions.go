package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var ErrSessionNotFound error = errors.New("session not found")
var ErrTwoFactorNotConfigured error = errors.New("two factor secret not configured")

func (s *Store) CreateSession(ctx context.Context, session *Session) error {
	if err := s.conn(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) GetSessionByRefreshHash(ctx context.Context, hash string) (Session, error) {
	var session Session
	err := s.conn(ctx).Where("refresh_token_hash = ?", hash).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("get session by refresh hash: %w", err)
	}
	return session, nil
}

func (s *Store) GetSessionByID(ctx context.Context, id string) (Session, error) {
	var session Session
	err := s.conn(ctx).Where("id = ?", id).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("get session by id: %w", err)
	}
	return session, nil
}

func (s *Store) ListSessions(ctx context.Context, userID string) ([]Session, error) {
	var sessions []Session
	err := s.conn(ctx).
		Where("user_id = ? AND is_revoked = false AND expires_at > ?", userID, time.Now().UTC()).
		Order("last_active_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// RevokeSession flips is_revoked only if the session is still live; the
// row count tells concurrent refreshers who won.
func (s *Store) RevokeSession(ctx context.Context, id string) (bool, error) {
	tx := s.conn(ctx).Model(&Session{}).
		Where("id = ? AND is_revoked = false", id).
		Update("is_revoked", true)
	if tx.Error != nil {
		return false, fmt.Errorf("revoke session: %w", tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

func (s *Store) TouchSession(ctx context.Context, id string, at time.Time) error {
	err := s.conn(ctx).Model(&Session{}).Where("id = ?", id).
		Update("last_active_at", at).Error
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (s *Store) UpsertTwoFactorSecret(ctx context.Context, secret *TwoFactorSecret) error {
	err := s.conn(ctx).Save(secret).Error
	if err != nil {
		return fmt.Errorf("upsert two factor secret: %w", err)
	}
	return nil
}

func (s *Store) GetTwoFactorSecret(ctx context.Context, userID string) (TwoFactorSecret, error) {
	var secret TwoFactorSecret
	err := s.conn(ctx).Where("user_id = ?", userID).First(&secret).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TwoFactorSecret{}, ErrTwoFactorNotConfigured
		}
		return TwoFactorSecret{}, fmt.Errorf("get two factor secret: %w", err)
	}
	return secret, nil
}

func (s *Store) DeleteTwoFactorSecret(ctx context.Context, userID string) error {
	if err := s.conn(ctx).Where("user_id = ?", userID).Delete(&TwoFactorSecret{}).Error; err != nil {
		return fmt.Errorf("delete two factor secret: %w", err)
	}
	return nil
}

func (s *Store) ReplaceRecoveryCodes(ctx context.Context, userID string, codes []RecoveryCode) error {
	if err := s.conn(ctx).Where("user_id = ?", userID).Delete(&RecoveryCode{}).Error; err != nil {
		return fmt.Errorf("delete recovery codes: %w", err)
	}
	if len(codes) == 0 {
		return nil
	}
	if err := s.conn(ctx).Create(&codes).Error; err != nil {
		return fmt.Errorf("create recovery codes: %w", err)
	}
	return nil
}

// ConsumeRecoveryCode marks the matching unused code as used. Returns false
// when no code matches.
func (s *Store) ConsumeRecoveryCode(ctx context.Context, userID, codeHash string) (bool, error) {
	tx := s.conn(ctx).Model(&RecoveryCode{}).
		Where("user_id = ? AND code_hash = ? AND used = false", userID, codeHash).
		Update("used", true)
	if tx.Error != nil {
		return false, fmt.Errorf("consume recovery code: %w", tx.Error)
	}
	return tx.RowsAffected == 1, nil
}
