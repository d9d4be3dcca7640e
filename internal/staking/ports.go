package staking

import (
	"context"
	"time"

	"stakevault/internal/ledger"
	"stakevault/internal/repository"

	"github.com/shopspring/decimal"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

//counterfeiter:generate -o fake -fake-name Repository . Repository
type Repository interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error

	GetPool(ctx context.Context, id string) (repository.Pool, error)
	ListPools(ctx context.Context, assetID, poolType string) ([]repository.Pool, error)
	AddToPoolStaked(ctx context.Context, poolID string, delta decimal.Decimal) (bool, error)
	EffectiveAprSchedule(ctx context.Context, poolID string, at time.Time) (repository.AprSchedule, bool, error)
	GetAsset(ctx context.Context, id string) (repository.Asset, error)

	CreateStakePosition(ctx context.Context, position *repository.StakePosition) error
	GetStakePosition(ctx context.Context, id string) (repository.StakePosition, error)
	ListUserPositions(ctx context.Context, userID string, statuses []string) ([]repository.StakePosition, error)
	ListPositionsByStatus(ctx context.Context, statuses []string, limit int) ([]repository.StakePosition, error)
	ListSweepablePositions(ctx context.Context, now time.Time, limit int) ([]repository.StakePosition, error)
	AccrueRewards(ctx context.Context, id string, prevCalc time.Time, delta decimal.Decimal, now time.Time) (bool, error)
	ClaimRewards(ctx context.Context, id string, expectedAccrued decimal.Decimal) (bool, error)
	TransitionPosition(ctx context.Context, id, fromStatus string, updates map[string]any) (bool, error)
}

//counterfeiter:generate -o fake -fake-name LedgerPoster . LedgerPoster
type LedgerPoster interface {
	Post(ctx context.Context, posting ledger.Posting) (*repository.LedgerEntry, error)
}

//counterfeiter:generate -o fake -fake-name Notifier . Notifier
type Notifier interface {
	Notify(ctx context.Context, userID, notifType, title, message string, data map[string]any)
}
