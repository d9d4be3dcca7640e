package ledger

import (
	"context"
	"fmt"
	"time"

	"stakevault/internal/repository"

	"go.uber.org/zap"
)

// ReconcilerRepository is the read/overwrite slice used by the reconciler.
type ReconcilerRepository interface {
	LedgerTuples(ctx context.Context) ([]repository.BalanceCache, error)
	LedgerTail(ctx context.Context, userID, assetID, chainID string) ([]repository.LedgerEntry, error)
	GetBalance(ctx context.Context, userID, assetID, chainID string) (repository.BalanceCache, bool, error)
	OverwriteBalance(ctx context.Context, balance *repository.BalanceCache) error
}

type Discrepancy struct {
	UserID   string
	AssetID  string
	ChainID  string
	Cached   repository.BalanceDelta
	Replayed repository.BalanceDelta
}

// Reconciler replays the journal per tuple and compares against the cache.
// Any discrepancy is a code bug; fix mode overwrites the cache with the
// replayed truth.
type Reconciler struct {
	logs *zap.SugaredLogger
	repo ReconcilerRepository
	now  func() time.Time
}

func NewReconciler(logger *zap.SugaredLogger, repo ReconcilerRepository, now func() time.Time) *Reconciler {
	return &Reconciler{
		logs: logger,
		repo: repo,
		now:  now,
	}
}

// Replay folds the tuple's ledger tail from zero.
func Replay(entries []repository.LedgerEntry) (repository.BalanceDelta, error) {
	snapshot := repository.BalanceDelta{}
	var err error
	for _, entry := range entries {
		snapshot, err = Apply(snapshot, entry)
		if err != nil {
			return snapshot, fmt.Errorf("replay entry %s: %w", entry.ID, err)
		}
	}
	return snapshot, nil
}

func (r *Reconciler) Run(ctx context.Context, fix bool) ([]Discrepancy, error) {
	tuples, err := r.repo.LedgerTuples(ctx)
	if err != nil {
		return nil, fmt.Errorf("list ledger tuples: %w", err)
	}

	var discrepancies []Discrepancy
	for _, tuple := range tuples {
		entries, err := r.repo.LedgerTail(ctx, tuple.UserID, tuple.AssetID, tuple.ChainID)
		if err != nil {
			return nil, fmt.Errorf("load ledger tail: %w", err)
		}

		replayed, err := Replay(entries)
		if err != nil {
			return nil, err
		}

		cached, _, err := r.repo.GetBalance(ctx, tuple.UserID, tuple.AssetID, tuple.ChainID)
		if err != nil {
			return nil, fmt.Errorf("load cached balance: %w", err)
		}

		cachedDelta := repository.BalanceDelta{
			Available:          cached.Available,
			Staked:             cached.Staked,
			RewardsAccrued:     cached.RewardsAccrued,
			WithdrawalsPending: cached.WithdrawalsPending,
		}

		if equalDelta(cachedDelta, replayed) {
			continue
		}

		discrepancies = append(discrepancies, Discrepancy{
			UserID:   tuple.UserID,
			AssetID:  tuple.AssetID,
			ChainID:  tuple.ChainID,
			Cached:   cachedDelta,
			Replayed: replayed,
		})

		r.logs.Errorw("balance cache discrepancy",
			"user_id", tuple.UserID,
			"asset_id", tuple.AssetID,
			"chain_id", tuple.ChainID,
			"cached_available", cachedDelta.Available.String(),
			"replayed_available", replayed.Available.String())

		if fix {
			err := r.repo.OverwriteBalance(ctx, &repository.BalanceCache{
				UserID:             tuple.UserID,
				AssetID:            tuple.AssetID,
				ChainID:            tuple.ChainID,
				Available:          replayed.Available,
				Staked:             replayed.Staked,
				RewardsAccrued:     replayed.RewardsAccrued,
				WithdrawalsPending: replayed.WithdrawalsPending,
				UpdatedAt:          r.now(),
			})
			if err != nil {
				return nil, fmt.Errorf("overwrite balance: %w", err)
			}
		}
	}

	return discrepancies, nil
}

func equalDelta(a, b repository.BalanceDelta) bool {
	return a.Available.Equal(b.Available) &&
		a.Staked.Equal(b.Staked) &&
		a.RewardsAccrued.Equal(b.RewardsAccrued) &&
		a.WithdrawalsPending.Equal(b.WithdrawalsPending)
}
