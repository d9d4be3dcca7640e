package staking

import (
	"context"
	"fmt"
	"time"

	"stakevault/internal/domain"
	"stakevault/internal/ledger"
	"stakevault/internal/repository"

	"github.com/shopspring/decimal"
)

// UnstakeOutcome reports what the unstake call did.
type UnstakeOutcome struct {
	Status         string
	CooldownEndsAt *time.Time
	Principal      decimal.Decimal
	Rewards        decimal.Decimal
	TotalReturned  decimal.Decimal
}

// Unstake handles the three §state-machine cases: refuse while locked,
// enter cooldown, or finalize immediately.
func (e *Engine) Unstake(ctx context.Context, userID, positionID string) (UnstakeOutcome, error) {
	var outcome UnstakeOutcome

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

		now := e.clock.Now()
		if position.LockedUntil != nil && position.LockedUntil.After(now) {
			remaining := position.LockedUntil.Sub(now).Round(time.Second)
			return domain.NewError(domain.CodeStakeLocked,
				fmt.Sprintf("position is locked for another %s", remaining))
		}

		pool, err := e.repo.GetPool(txCtx, position.PoolID)
		if err != nil {
			return err
		}

		if pool.CooldownHours > 0 && position.CooldownEndsAt == nil {
			cooldownEnd := now.Add(time.Duration(pool.CooldownHours) * time.Hour)
			won, err := e.repo.TransitionPosition(txCtx, position.ID, repository.StakeActive, map[string]any{
				"status":           repository.StakeUnstaking,
				"cooldown_ends_at": cooldownEnd,
			})
			if err != nil {
				return err
			}
			if !won {
				return domain.NewError(domain.CodeStateForbidden, "position changed, retry")
			}

			outcome = UnstakeOutcome{
				Status:         repository.StakeUnstaking,
				CooldownEndsAt: &cooldownEnd,
			}
			return nil
		}

		return e.finalizeUnstake(txCtx, position, pool, repository.StakeActive, &outcome)
	})
	if err != nil {
		return UnstakeOutcome{}, err
	}

	e.logs.Infow("unstake requested",
		"position_id", positionID,
		"user_id", userID,
		"status", outcome.Status)

	return outcome, nil
}

// SweepCooldowns finalizes UNSTAKING positions whose cooldown has elapsed.
func (e *Engine) SweepCooldowns(ctx context.Context) {
	positions, err := e.repo.ListSweepablePositions(ctx, e.clock.Now(), accrualBatchSize)
	if err != nil {
		e.logs.Errorw("failed to list sweepable positions", "error", err)
		return
	}

	for _, position := range positions {
		err := e.repo.RunInTx(ctx, func(txCtx context.Context) error {
			fresh, err := e.repo.GetStakePosition(txCtx, position.ID)
			if err != nil {
				return err
			}
			if fresh.Status != repository.StakeUnstaking {
				return nil
			}

			pool, err := e.repo.GetPool(txCtx, fresh.PoolID)
			if err != nil {
				return err
			}

			var outcome UnstakeOutcome
			return e.finalizeUnstake(txCtx, fresh, pool, repository.StakeUnstaking, &outcome)
		})
		if err != nil {
			e.logs.Errorw("failed to sweep cooldown", "error", err, "position_id", position.ID)
			continue
		}

		e.notify.Notify(ctx, position.UserID, "UNSTAKE_COMPLETED",
			"Unstake completed",
			"Your unstaked funds are now available.",
			map[string]any{"positionId": position.ID})
	}
}

// finalizeUnstake settles the final reward window, returns principal plus
// rewards to the available balance and completes the position.
func (e *Engine) finalizeUnstake(ctx context.Context, position repository.StakePosition, pool repository.Pool, fromStatus string, outcome *UnstakeOutcome) error {
	position, err := e.accrueOne(ctx, position)
	if err != nil {
		return err
	}

	now := e.clock.Now()
	totalRewards := position.RewardsAccrued
	totalAmount := position.Amount.Add(totalRewards)

	won, err := e.repo.TransitionPosition(ctx, position.ID, fromStatus, map[string]any{
		"status":          repository.StakeCompleted,
		"unstaked_at":     now,
		"rewards_accrued": decimal.Zero,
		"rewards_claimed": position.RewardsClaimed.Add(totalRewards),
	})
	if err != nil {
		return err
	}
	if !won {
		return domain.NewError(domain.CodeStateForbidden, "position changed, retry")
	}

	ok, err := e.repo.AddToPoolStaked(ctx, pool.ID, position.Amount.Neg())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("pool %s total_staked underflow", pool.ID)
	}

	asset, err := e.repo.GetAsset(ctx, pool.AssetID)
	if err != nil {
		return err
	}

	_, err = e.poster.Post(ctx, ledger.Posting{
		UserID:        position.UserID,
		AssetID:       asset.ID,
		ChainID:       asset.ChainID,
		EntryType:     ledger.EntryUnstakeCompleted,
		Amount:        totalAmount,
		ReferenceType: "StakePosition",
		ReferenceID:   position.ID,
		Metadata: map[string]any{
			"principal": position.Amount.String(),
			"rewards":   totalRewards.String(),
		},
	})
	if err != nil {
		return err
	}

	*outcome = UnstakeOutcome{
		Status:        repository.StakeCompleted,
		Principal:     position.Amount,
		Rewards:       totalRewards,
		TotalReturned: totalAmount,
	}
	return nil
}

// AdminCancel cancels an ACTIVE position, returning the principal to the
// available balance and forfeiting unclaimed rewards. Audited by the caller.
func (e *Engine) AdminCancel(ctx context.Context, positionID string) (repository.StakePosition, error) {
	var position repository.StakePosition

	err := e.repo.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		position, err = e.repo.GetStakePosition(txCtx, positionID)
		if err != nil {
			return err
		}
		if position.Status != repository.StakeActive {
			return domain.NewError(domain.CodeStakeNotActive, "position is not active")
		}

		won, err := e.repo.TransitionPosition(txCtx, position.ID, repository.StakeActive, map[string]any{
			"status":          repository.StakeCancelled,
			"unstaked_at":     e.clock.Now(),
			"rewards_accrued": decimal.Zero,
		})
		if err != nil {
			return err
		}
		if !won {
			return domain.NewError(domain.CodeStateForbidden, "position changed, retry")
		}

		ok, err := e.repo.AddToPoolStaked(txCtx, position.PoolID, position.Amount.Neg())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("pool %s total_staked underflow", position.PoolID)
		}

		pool, err := e.repo.GetPool(txCtx, position.PoolID)
		if err != nil {
			return err
		}
		asset, err := e.repo.GetAsset(txCtx, pool.AssetID)
		if err != nil {
			return err
		}

		_, err = e.poster.Post(txCtx, ledger.Posting{
			UserID:        position.UserID,
			AssetID:       asset.ID,
			ChainID:       asset.ChainID,
			EntryType:     ledger.EntryStakeCancelled,
			Amount:        position.Amount,
			ReferenceType: "StakePosition",
			ReferenceID:   position.ID,
		})
		return err
	})
	if err != nil {
		return repository.StakePosition{}, err
	}

	return position, nil
}
