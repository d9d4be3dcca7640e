package staking

import (
	"context"
	"fmt"
	"time"

	"stakevault/internal/domain"
	"stakevault/internal/ledger"
	"stakevault/internal/repository"
	"stakevault/pkg/clock"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// secondsPerYear under simple interest: apr/100/365/86400 per second.
var secondsPerYear = decimal.NewFromInt(365 * 86400)
var hundred = decimal.NewFromInt(100)

// Engine implements the pool catalog and position lifecycle.
type Engine struct {
	logs   *zap.SugaredLogger
	repo   Repository
	poster LedgerPoster
	notify Notifier
	clock  clock.Clock
}

func NewEngine(logger *zap.SugaredLogger, repo Repository, poster LedgerPoster, notifier Notifier, clk clock.Clock) *Engine {
	return &Engine{
		logs:   logger,
		repo:   repo,
		poster: poster,
		notify: notifier,
		clock:  clk,
	}
}

func (e *Engine) ListPools(ctx context.Context, assetID, poolType string) ([]repository.Pool, error) {
	return e.repo.ListPools(ctx, assetID, poolType)
}

func (e *Engine) GetPool(ctx context.Context, id string) (repository.Pool, error) {
	return e.repo.GetPool(ctx, id)
}

// EffectiveApr reads the active schedule row, falling back to the pool's
// display cache when no schedule covers the instant.
func (e *Engine) EffectiveApr(ctx context.Context, pool repository.Pool, at time.Time) (decimal.Decimal, error) {
	schedule, found, err := e.repo.EffectiveAprSchedule(ctx, pool.ID, at)
	if err != nil {
		return decimal.Zero, err
	}
	if found {
		return schedule.Apr, nil
	}
	return pool.CurrentApr, nil
}

// CreateStake opens a position. The pool capacity check and the balance
// reservation both happen inside one SERIALIZABLE transaction, so two
// concurrent stakes cannot jointly overshoot the capacity or the balance.
func (e *Engine) CreateStake(ctx context.Context, userID, poolID string, amount decimal.Decimal) (repository.StakePosition, error) {
	if !amount.IsPositive() {
		return repository.StakePosition{}, domain.NewError(domain.CodeStakeTooSmall, "amount must be positive")
	}

	var position repository.StakePosition
	err := e.repo.RunInTx(ctx, func(txCtx context.Context) error {
		pool, err := e.repo.GetPool(txCtx, poolID)
		if err != nil {
			return err
		}
		if !pool.IsActive {
			return domain.NewError(domain.CodePoolInactive, "pool is not active")
		}
		if amount.LessThan(pool.MinStake) {
			return domain.NewError(domain.CodeStakeTooSmall,
				fmt.Sprintf("minimum stake is %s", pool.MinStake.String()))
		}
		if pool.MaxStake != nil && amount.GreaterThan(*pool.MaxStake) {
			return domain.NewError(domain.CodeStakeTooLarge,
				fmt.Sprintf("maximum stake is %s", pool.MaxStake.String()))
		}

		asset, err := e.repo.GetAsset(txCtx, pool.AssetID)
		if err != nil {
			return err
		}
		if !asset.IsActive {
			return domain.NewError(domain.CodeAssetInactive, "asset is not active")
		}

		ok, err := e.repo.AddToPoolStaked(txCtx, pool.ID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NewError(domain.CodePoolCapacity, "pool capacity exceeded")
		}

		now := e.clock.Now()
		position = repository.StakePosition{
			ID:                    uuid.NewString(),
			UserID:                userID,
			PoolID:                pool.ID,
			Amount:                amount,
			RewardsAccrued:        decimal.Zero,
			RewardsClaimed:        decimal.Zero,
			LastRewardCalculation: now,
			Status:                repository.StakeActive,
			CreatedAt:             now,
		}
		if pool.Type == repository.PoolFixed && pool.LockDays > 0 {
			lockedUntil := now.Add(time.Duration(pool.LockDays) * 24 * time.Hour)
			position.LockedUntil = &lockedUntil
		}

		if err := e.repo.CreateStakePosition(txCtx, &position); err != nil {
			return err
		}

		// the posting debits available; it fails the transaction when the
		// user's available balance cannot cover the stake
		_, err = e.poster.Post(txCtx, ledger.Posting{
			UserID:        userID,
			AssetID:       asset.ID,
			ChainID:       asset.ChainID,
			EntryType:     ledger.EntryStakeCreated,
			Amount:        amount,
			ReferenceType: "StakePosition",
			ReferenceID:   position.ID,
			Metadata:      map[string]any{"poolId": pool.ID},
		})
		return err
	})
	if err != nil {
		return repository.StakePosition{}, err
	}

	e.logs.Infow("stake created",
		"position_id", position.ID,
		"user_id", userID,
		"pool_id", poolID,
		"amount", amount.String())

	return position, nil
}

// ClaimRewards settles accrued rewards into the available balance.
func (e *Engine) ClaimRewards(ctx context.Context, userID, positionID string) (decimal.Decimal, error) {
	var claimed decimal.Decimal

	err := e.repo.RunInTx(ctx, func(txCtx context.Context) error {
		position, err := e.repo.GetStakePosition(txCtx, positionID)
		if err != nil {
			return err
		}
		if position.UserID != userID {
			return repository.ErrPositionNotFound
		}
		if position.Status != repository.StakeActive {
			return domain.NewError(domain.CodeStakeNotActive, "position is not active")
		}

		// settle accrual up to now first so the claim includes the tail
		position, err = e.accrueOne(txCtx, position)
		if err != nil {
			return err
		}

		if !position.RewardsAccrued.IsPositive() {
			claimed = decimal.Zero
			return nil
		}

		pool, err := e.repo.GetPool(txCtx, position.PoolID)
		if err != nil {
			return err
		}
		asset, err := e.repo.GetAsset(txCtx, pool.AssetID)
		if err != nil {
			return err
		}

		amount := position.RewardsAccrued
		ok, err := e.repo.ClaimRewards(txCtx, position.ID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return domain.NewError(domain.CodeStateForbidden, "position changed, retry")
		}

		_, err = e.poster.Post(txCtx, ledger.Posting{
			UserID:        userID,
			AssetID:       asset.ID,
			ChainID:       asset.ChainID,
			EntryType:     ledger.EntryRewardClaimed,
			Amount:        amount,
			ReferenceType: "RewardClaim",
			ReferenceID:   uuid.NewString(),
			Metadata:      map[string]any{"positionId": position.ID},
		})
		if err != nil {
			return err
		}

		claimed = amount
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	e.logs.Infow("rewards claimed",
		"position_id", positionID,
		"user_id", userID,
		"amount", claimed.String())

	return claimed, nil
}

func (e *Engine) ListUserPositions(ctx context.Context, userID string) ([]repository.StakePosition, error) {
	return e.repo.ListUserPositions(ctx, userID, nil)
}

func (e *Engine) GetUserPosition(ctx context.Context, userID, positionID string) (repository.StakePosition, error) {
	position, err := e.repo.GetStakePosition(ctx, positionID)
	if err != nil {
		return repository.StakePosition{}, err
	}
	if position.UserID != userID {
		return repository.StakePosition{}, repository.ErrPositionNotFound
	}
	return position, nil
}

// Estimate computes simple-interest rewards for the calculator endpoint.
func (e *Engine) Estimate(ctx context.Context, poolID string, amount decimal.Decimal, days int) (decimal.Decimal, decimal.Decimal, error) {
	pool, err := e.repo.GetPool(ctx, poolID)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	apr, err := e.EffectiveApr(ctx, pool, e.clock.Now())
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	seconds := decimal.NewFromInt(int64(days) * 86400)
	rewards := amount.Mul(apr).Div(hundred).Mul(seconds).Div(secondsPerYear)
	return rewards, apr, nil
}
