package payout

import (
	"context"
	"math/big"

	"stakevault/internal/ethereum"
	"stakevault/internal/ledger"
	"stakevault/internal/repository"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

//counterfeiter:generate -o fake -fake-name Repository . Repository
type Repository interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error

	GetWithdrawalRequest(ctx context.Context, id string) (repository.WithdrawalRequest, error)
	TransitionWithdrawal(ctx context.Context, id string, fromStatuses []string, updates map[string]any) (bool, error)

	GetChain(ctx context.Context, id string) (repository.Chain, error)
	GetAsset(ctx context.Context, id string) (repository.Asset, error)
	GetActiveTreasuryWallet(ctx context.Context, chainID string) (repository.TreasuryWallet, error)

	CreatePayoutTx(ctx context.Context, payout *repository.PayoutTx) error
	GetPayoutTxByRequest(ctx context.Context, withdrawalRequestID string) (repository.PayoutTx, bool, error)
	UpdatePayoutTx(ctx context.Context, id string, updates map[string]any) error
}

//counterfeiter:generate -o fake -fake-name ChainService . ChainService
type ChainService interface {
	CurrentBlock(ctx context.Context) (int64, error)
	Receipt(ctx context.Context, txHash string) (ethereum.Receipt, error)
	Send(ctx context.Context, signer ethereum.Signer, to string, value *big.Int, data []byte) (string, uint64, error)
}

//counterfeiter:generate -o fake -fake-name SecretSealer . SecretSealer
type SecretSealer interface {
	Open(encoded string) ([]byte, error)
}

//counterfeiter:generate -o fake -fake-name LedgerPoster . LedgerPoster
type LedgerPoster interface {
	Post(ctx context.Context, posting ledger.Posting) (*repository.LedgerEntry, error)
}

//counterfeiter:generate -o fake -fake-name StatusCheckEnqueuer . StatusCheckEnqueuer
type StatusCheckEnqueuer interface {
	EnqueueStatusCheck(ctx context.Context, withdrawalRequestID, chainID string) error
}

//counterfeiter:generate -o fake -fake-name Notifier . Notifier
type Notifier interface {
	Notify(ctx context.Context, userID, notifType, title, message string, data map[string]any)
}
