package withdrawal

import (
	"context"
	"time"

	"stakevault/internal/ledger"
	"stakevault/internal/repository"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

//counterfeiter:generate -o fake -fake-name Repository . Repository
type Repository interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error

	GetUserByID(ctx context.Context, id string) (repository.User, error)
	GetAsset(ctx context.Context, id string) (repository.Asset, error)
	GetChain(ctx context.Context, id string) (repository.Chain, error)

	CreateWithdrawalRequest(ctx context.Context, request *repository.WithdrawalRequest) error
	GetWithdrawalRequest(ctx context.Context, id string) (repository.WithdrawalRequest, error)
	GetWithdrawalByIdempotencyKey(ctx context.Context, key string) (repository.WithdrawalRequest, bool, error)
	TransitionWithdrawal(ctx context.Context, id string, fromStatuses []string, updates map[string]any) (bool, error)
	ListWithdrawals(ctx context.Context, status string, page, limit int) ([]repository.WithdrawalRequest, int64, error)
	ListUserWithdrawals(ctx context.Context, userID string, limit int) ([]repository.WithdrawalRequest, error)
	RecentWithdrawals(ctx context.Context, userID string, since time.Time) ([]repository.WithdrawalRequest, error)

	GetWhitelistEntry(ctx context.Context, userID, chainID, address string) (repository.AddressWhitelist, bool, error)
	AddWhitelistEntry(ctx context.Context, entry *repository.AddressWhitelist) error
}

//counterfeiter:generate -o fake -fake-name LedgerPoster . LedgerPoster
type LedgerPoster interface {
	Post(ctx context.Context, posting ledger.Posting) (*repository.LedgerEntry, error)
}

//counterfeiter:generate -o fake -fake-name PayoutEnqueuer . PayoutEnqueuer
type PayoutEnqueuer interface {
	EnqueuePayout(ctx context.Context, withdrawalRequestID, chainID string) error
}

//counterfeiter:generate -o fake -fake-name Notifier . Notifier
type Notifier interface {
	Notify(ctx context.Context, userID, notifType, title, message string, data map[string]any)
}
