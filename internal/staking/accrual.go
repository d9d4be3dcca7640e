package staking

import (
	"context"
	"time"

	"stakevault/internal/ledger"
	"stakevault/internal/repository"

	"github.com/shopspring/decimal"
)

const accrualBatchSize = 500

// RewardDelta computes simple interest over the elapsed window:
// amount * (apr/100/365/86400) * seconds.
func RewardDelta(amount, apr decimal.Decimal, elapsed time.Duration) decimal.Decimal {
	seconds := decimal.NewFromInt(int64(elapsed / time.Second))
	if !seconds.IsPositive() {
		return decimal.Zero
	}
	return amount.Mul(apr).Div(hundred).Mul(seconds).Div(secondsPerYear)
}

// AccrueAll advances rewards for every ACTIVE and UNSTAKING position.
// Rewards keep accruing during cooldown.
func (e *Engine) AccrueAll(ctx context.Context) {
	positions, err := e.repo.ListPositionsByStatus(ctx, []string{repository.StakeActive, repository.StakeUnstaking}, accrualBatchSize)
	if err != nil {
		e.logs.Errorw("failed to list positions for accrual", "error", err)
		return
	}

	for _, position := range positions {
		err := e.repo.RunInTx(ctx, func(txCtx context.Context) error {
			fresh, err := e.repo.GetStakePosition(txCtx, position.ID)
			if err != nil {
				return err
			}
			_, err = e.accrueOne(txCtx, fresh)
			return err
		})
		if err != nil {
			e.logs.Errorw("failed to accrue rewards", "error", err, "position_id", position.ID)
		}
	}
}

// accrueOne settles the interval since lastRewardCalculation. Intervals
// under one second are skipped; the guarded update on the previous
// calculation instant keeps concurrent accruers from double-counting.
// Returns the position with the accrual applied.
func (e *Engine) accrueOne(ctx context.Context, position repository.StakePosition) (repository.StakePosition, error) {
	now := e.clock.Now()
	elapsed := now.Sub(position.LastRewardCalculation)
	if elapsed < time.Second {
		return position, nil
	}

	pool, err := e.repo.GetPool(ctx, position.PoolID)
	if err != nil {
		return position, err
	}
	apr, err := e.EffectiveApr(ctx, pool, now)
	if err != nil {
		return position, err
	}

	delta := RewardDelta(position.Amount, apr, elapsed)
	if !delta.IsPositive() {
		// still advance the calculation cursor so zero-APR pools don't
		// re-walk the same window forever
		_, err := e.repo.AccrueRewards(ctx, position.ID, position.LastRewardCalculation, decimal.Zero, now)
		if err != nil {
			return position, err
		}
		position.LastRewardCalculation = now
		return position, nil
	}

	won, err := e.repo.AccrueRewards(ctx, position.ID, position.LastRewardCalculation, delta, now)
	if err != nil {
		return position, err
	}
	if !won {
		// another accruer already covered this window
		return e.repo.GetStakePosition(ctx, position.ID)
	}

	asset, err := e.repo.GetAsset(ctx, pool.AssetID)
	if err != nil {
		return position, err
	}

	_, err = e.poster.Post(ctx, ledger.Posting{
		UserID:        position.UserID,
		AssetID:       asset.ID,
		ChainID:       asset.ChainID,
		EntryType:     ledger.EntryRewardAccrued,
		Amount:        delta,
		ReferenceType: "StakePosition",
		ReferenceID:   position.ID,
		Metadata: map[string]any{
			"apr":     apr.String(),
			"seconds": int64(elapsed / time.Second),
		},
	})
	if err != nil {
		return position, err
	}

	position.RewardsAccrued = position.RewardsAccrued.Add(delta)
	position.LastRewardCalculation = now
	return position, nil
}
