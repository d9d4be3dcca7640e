package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stakevault/internal/db"

	"gorm.io/gorm"
)

var ErrUserNotFound error = errors.New("user not found")
var ErrEmailTaken error = errors.New("email already registered")

func (s *Store) CreateUser(ctx context.Context, user *User) error {
	err := s.conn(ctx).Create(user).Error
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.conn(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (User, error) {
	var user User
	err := s.conn(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

func (s *Store) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	err := s.conn(ctx).Model(&User{}).Where("id = ?", userID).
		Update("last_login_at", at).Error
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	return nil
}

func (s *Store) SetTwoFactorEnabled(ctx context.Context, userID string, enabled bool) error {
	err := s.conn(ctx).Model(&User{}).Where("id = ?", userID).
		Update("two_factor_enabled", enabled).Error
	if err != nil {
		return fmt.Errorf("set two factor enabled: %w", err)
	}
	return nil
}
