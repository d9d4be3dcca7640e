package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrPositionNotFound error = errors.New("stake position not found")

func (s *Store) CreateStakePosition(ctx context.Context, position *StakePosition) error {
	if err := s.conn(ctx).Create(position).Error; err != nil {
		return fmt.Errorf("create stake position: %w", err)
	}
	return nil
}

func (s *Store) GetStakePosition(ctx context.Context, id string) (StakePosition, error) {
	var position StakePosition
	err := s.conn(ctx).Where("id = ?", id).First(&position).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StakePosition{}, ErrPositionNotFound
		}
		return StakePosition{}, fmt.Errorf("get stake position: %w", err)
	}
	return position, nil
}

func (s *Store) ListUserPositions(ctx context.Context, userID string, statuses []string) ([]StakePosition, error) {
	q := s.conn(ctx).Where("user_id = ?", userID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var positions []StakePosition
	if err := q.Order("created_at DESC").Find(&positions).Error; err != nil {
		return nil, fmt.Errorf("list user positions: %w", err)
	}
	return positions, nil
}

func (s *Store) ListPositionsByStatus(ctx context.Context, statuses []string, limit int) ([]StakePosition, error) {
	var positions []StakePosition
	err := s.conn(ctx).Where("status IN ?", statuses).
		Order("last_reward_calculation ASC").
		Limit(limit).
		Find(&positions).Error
	if err != nil {
		return nil, fmt.Errorf("list positions by status: %w", err)
	}
	return positions, nil
}

func (s *Store) ListSweepablePositions(ctx context.Context, now time.Time, limit int) ([]StakePosition, error) {
	var positions []StakePosition
	err := s.conn(ctx).
		Where("status = ? AND cooldown_ends_at IS NOT NULL AND cooldown_ends_at <= ?", StakeUnstaking, now).
		Limit(limit).
		Find(&positions).Error
	if err != nil {
		return nil, fmt.Errorf("list sweepable positions: %w", err)
	}
	return positions, nil
}

// AccrueRewards advances last_reward_calculation and rewards_accrued in one
// statement, guarded on the previous calculation instant so concurrent
// accruers cannot double-count the same interval.
func (s *Store) AccrueRewards(ctx context.Context, id string, prevCalc time.Time, delta decimal.Decimal, now time.Time) (bool, error) {
	tx := s.conn(ctx).Model(&StakePosition{}).
		Where("id = ? AND last_reward_calculation = ?", id, prevCalc).
		Updates(map[string]any{
			"rewards_accrued":         gorm.Expr("rewards_accrued + ?", delta),
			"last_reward_calculation": now,
		})
	if tx.Error != nil {
		return false, fmt.Errorf("accrue rewards: %w", tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

// ClaimRewards zeroes the accrued counter for an ACTIVE position, returning
// false if the position changed underneath the caller.
func (s *Store) ClaimRewards(ctx context.Context, id string, expectedAccrued decimal.Decimal) (bool, error) {
	tx := s.conn(ctx).Model(&StakePosition{}).
		Where("id = ? AND status = ? AND rewards_accrued = ?", id, StakeActive, expectedAccrued).
		Updates(map[string]any{
			"rewards_accrued": decimal.Zero,
			"rewards_claimed": gorm.Expr("rewards_claimed + ?", expectedAccrued),
		})
	if tx.Error != nil {
		return false, fmt.Errorf("claim rewards: %w", tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

// TransitionPosition performs a CAS on status.
func (s *Store) TransitionPosition(ctx context.Context, id, fromStatus string, updates map[string]any) (bool, error) {
	tx := s.conn(ctx).Model(&StakePosition{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if tx.Error != nil {
		return false, fmt.Errorf("transition position: %w", tx.Error)
	}
	return tx.RowsAffected == 1, nil
}
