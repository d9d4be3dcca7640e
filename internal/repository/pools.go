package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrPoolNotFound error = errors.New("pool not found")

func (s *Store) CreatePool(ctx context.Context, pool *Pool) error {
	if err := s.conn(ctx).Create(pool).Error; err != nil {
		return fmt.Errorf("create pool: %w", err)
	}
	return nil
}

func (s *Store) GetPool(ctx context.Context, id string) (Pool, error) {
	var pool Pool
	err := s.conn(ctx).Where("id = ?", id).First(&pool).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Pool{}, ErrPoolNotFound
		}
		return Pool{}, fmt.Errorf("get pool: %w", err)
	}
	return pool, nil
}

func (s *Store) ListPools(ctx context.Context, assetID, poolType string) ([]Pool, error) {
	q := s.conn(ctx).Where("is_active = true")
	if assetID != "" {
		q = q.Where("asset_id = ?", assetID)
	}
	if poolType != "" {
		q = q.Where("type = ?", poolType)
	}
	var pools []Pool
	if err := q.Order("created_at ASC").Find(&pools).Error; err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	return pools, nil
}

// AddToPoolStaked bumps total_staked atomically, refusing the delta when it
// would exceed total_capacity or drop below zero.
func (s *Store) AddToPoolStaked(ctx context.Context, poolID string, delta decimal.Decimal) (bool, error) {
	tx := s.conn(ctx).Model(&Pool{}).
		Where("id = ?", poolID).
		Where("total_staked + ? >= 0", delta).
		Where("total_capacity IS NULL OR total_staked + ? <= total_capacity", delta).
		Update("total_staked", gorm.Expr("total_staked + ?", delta))
	if tx.Error != nil {
		return false, fmt.Errorf("add to pool staked: %w", tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

func (s *Store) CreateAprSchedule(ctx context.Context, schedule *AprSchedule) error {
	if err := s.conn(ctx).Create(schedule).Error; err != nil {
		return fmt.Errorf("create apr schedule: %w", err)
	}
	return nil
}

// CloseOpenAprSchedules ends any schedule still open at the given instant so
// that at most one row is active per pool.
func (s *Store) CloseOpenAprSchedules(ctx context.Context, poolID string, at time.Time) error {
	err := s.conn(ctx).Model(&AprSchedule{}).
		Where("pool_id = ? AND effective_to IS NULL AND effective_from < ?", poolID, at).
		Update("effective_to", at).Error
	if err != nil {
		return fmt.Errorf("close open apr schedules: %w", err)
	}
	return nil
}

// EffectiveAprSchedule returns the schedule row covering the instant, if any.
func (s *Store) EffectiveAprSchedule(ctx context.Context, poolID string, at time.Time) (AprSchedule, bool, error) {
	var schedule AprSchedule
	err := s.conn(ctx).
		Where("pool_id = ? AND effective_from <= ? AND (effective_to IS NULL OR effective_to > ?)", poolID, at, at).
		Order("effective_from DESC").
		First(&schedule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AprSchedule{}, false, nil
		}
		return AprSchedule{}, false, fmt.Errorf("effective apr schedule: %w", err)
	}
	return schedule, true, nil
}

func (s *Store) SetPoolCurrentApr(ctx context.Context, poolID string, apr decimal.Decimal) error {
	err := s.conn(ctx).Model(&Pool{}).Where("id = ?", poolID).
		Update("current_apr", apr).Error
	if err != nil {
		return fmt.Errorf("set pool current apr: %w", err)
	}
	return nil
}
