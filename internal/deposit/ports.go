package deposit

import (
	"context"
	"time"

	"stakevault/internal/ethereum"
	"stakevault/internal/ledger"
	"stakevault/internal/repository"
)

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

//counterfeiter:generate -o fake -fake-name Repository . Repository
type Repository interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error

	GetChain(ctx context.Context, id string) (repository.Chain, error)
	ListActiveChains(ctx context.Context) ([]repository.Chain, error)
	ListActiveAssetsOnChain(ctx context.Context, chainID string) ([]repository.Asset, error)

	GetDepositAddress(ctx context.Context, userID, chainID string) (repository.DepositAddress, bool, error)
	CreateDepositAddress(ctx context.Context, addr *repository.DepositAddress) error
	NextDerivationIndex(ctx context.Context, chainID string) (int64, error)
	ListDepositAddressesOnChain(ctx context.Context, chainID string) ([]repository.DepositAddress, error)

	UpsertDeposit(ctx context.Context, deposit *repository.Deposit) error
	ListConfirmingDeposits(ctx context.Context, chainID string) ([]repository.Deposit, error)
	UpdateDepositConfirmations(ctx context.Context, id string, confirmations int, status string) error
	ConfirmDeposit(ctx context.Context, id string, confirmations int, at time.Time) (bool, error)
	ListUserDeposits(ctx context.Context, userID, chainID, status string) ([]repository.Deposit, error)

	GetConfigValue(ctx context.Context, key string, out any) (bool, error)
	SetConfigValue(ctx context.Context, key string, value any) error
}

//counterfeiter:generate -o fake -fake-name ChainService . ChainService
type ChainService interface {
	CurrentBlock(ctx context.Context) (int64, error)
	FilterTransferLogs(ctx context.Context, contract string, watched []string, fromBlock, toBlock int64) ([]ethereum.TransferLog, error)
	Receipt(ctx context.Context, txHash string) (ethereum.Receipt, error)
}

//counterfeiter:generate -o fake -fake-name AddressDeriver . AddressDeriver
type AddressDeriver interface {
	DeriveAddress(index uint32) (address string, path string, err error)
}

//counterfeiter:generate -o fake -fake-name LedgerPoster . LedgerPoster
type LedgerPoster interface {
	Post(ctx context.Context, posting ledger.Posting) (*repository.LedgerEntry, error)
}

//counterfeiter:generate -o fake -fake-name Notifier . Notifier
type Notifier interface {
	Notify(ctx context.Context, userID, notifType, title, message string, data map[string]any)
}
