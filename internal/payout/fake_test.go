package payout_test

import (
	"context"
	"math/big"
	"time"

	"stakevault/internal/ethereum"
	"stakevault/internal/ledger"
	"stakevault/internal/repository"
)

type fakeRepo struct {
	requests  map[string]*repository.WithdrawalRequest
	chains    map[string]*repository.Chain
	assets    map[string]*repository.Asset
	treasury  map[string]*repository.TreasuryWallet
	payoutTxs map[string]*repository.PayoutTx
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		requests:  map[string]*repository.WithdrawalRequest{},
		chains:    map[string]*repository.Chain{},
		assets:    map[string]*repository.Asset{},
		treasury:  map[string]*repository.TreasuryWallet{},
		payoutTxs: map[string]*repository.PayoutTx{},
	}
}

func (f *fakeRepo) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeRepo) GetWithdrawalRequest(ctx context.Context, id string) (repository.WithdrawalRequest, error) {
	request, ok := f.requests[id]
	if !ok {
		return repository.WithdrawalRequest{}, repository.ErrWithdrawalNotFound
	}
	return *request, nil
}

func (f *fakeRepo) TransitionWithdrawal(ctx context.Context, id string, fromStatuses []string, updates map[string]any) (bool, error) {
	request, ok := f.requests[id]
	if !ok {
		return false, nil
	}
	allowed := false
	for _, status := range fromStatuses {
		if request.Status == status {
			allowed = true
		}
	}
	if !allowed {
		return false, nil
	}
	if status, ok := updates["status"].(string); ok {
		request.Status = status
	}
	return true, nil
}

func (f *fakeRepo) GetChain(ctx context.Context, id string) (repository.Chain, error) {
	chain, ok := f.chains[id]
	if !ok {
		return repository.Chain{}, repository.ErrChainNotFound
	}
	return *chain, nil
}

func (f *fakeRepo) GetAsset(ctx context.Context, id string) (repository.Asset, error) {
	asset, ok := f.assets[id]
	if !ok {
		return repository.Asset{}, repository.ErrAssetNotFound
	}
	return *asset, nil
}

func (f *fakeRepo) GetActiveTreasuryWallet(ctx context.Context, chainID string) (repository.TreasuryWallet, error) {
	wallet, ok := f.treasury[chainID]
	if !ok {
		return repository.TreasuryWallet{}, repository.ErrTreasuryNotFound
	}
	return *wallet, nil
}

func (f *fakeRepo) CreatePayoutTx(ctx context.Context, payout *repository.PayoutTx) error {
	copied := *payout
	f.payoutTxs[payout.WithdrawalRequestID] = &copied
	return nil
}

func (f *fakeRepo) GetPayoutTxByRequest(ctx context.Context, withdrawalRequestID string) (repository.PayoutTx, bool, error) {
	payout, ok := f.payoutTxs[withdrawalRequestID]
	if !ok {
		return repository.PayoutTx{}, false, nil
	}
	return *payout, true, nil
}

func (f *fakeRepo) UpdatePayoutTx(ctx context.Context, id string, updates map[string]any) error {
	for _, payout := range f.payoutTxs {
		if payout.ID != id {
			continue
		}
		for key, value := range updates {
			switch key {
			case "status":
				payout.Status = value.(string)
			case "confirmations":
				payout.Confirmations = value.(int)
			case "error_message":
				payout.ErrorMessage = value.(string)
			case "gas_used":
				gas := value.(uint64)
				payout.GasUsed = &gas
			case "confirmed_at":
				at := value.(time.Time)
				payout.ConfirmedAt = &at
			case "attempts":
				payout.Attempts = value.(int)
			}
		}
	}
	return nil
}

type fakeChain struct {
	head     int64
	receipts map[string]ethereum.Receipt
	sendErr  error
	sent     []string // destinations
	txHash   string
	nonce    uint64
}

func (f *fakeChain) CurrentBlock(ctx context.Context) (int64, error) {
	return f.head, nil
}

func (f *fakeChain) Receipt(ctx context.Context, txHash string) (ethereum.Receipt, error) {
	receipt, ok := f.receipts[txHash]
	if !ok {
		return ethereum.Receipt{}, ethereum.ErrReceiptNotFound
	}
	return receipt, nil
}

func (f *fakeChain) Send(ctx context.Context, signer ethereum.Signer, to string, value *big.Int, data []byte) (string, uint64, error) {
	if f.sendErr != nil {
		return "", 0, f.sendErr
	}
	f.sent = append(f.sent, to)
	return f.txHash, f.nonce, nil
}

type fakePoster struct {
	postings []ledger.Posting
	seen     map[string]bool
}

func newFakePoster() *fakePoster {
	return &fakePoster{seen: map[string]bool{}}
}

func (f *fakePoster) Post(ctx context.Context, posting ledger.Posting) (*repository.LedgerEntry, error) {
	if key := ledger.DedupKey(posting.EntryType, posting.ReferenceType, posting.ReferenceID); key != nil {
		if f.seen[*key] {
			return nil, ledger.ErrAlreadyPosted
		}
		f.seen[*key] = true
	}
	f.postings = append(f.postings, posting)
	return &repository.LedgerEntry{ID: "entry"}, nil
}

type fakeEnqueuer struct {
	checks []string
}

func (f *fakeEnqueuer) EnqueueStatusCheck(ctx context.Context, withdrawalRequestID, chainID string) error {
	f.checks = append(f.checks, withdrawalRequestID)
	return nil
}

type fakeNotifier struct {
	sent []string
}

func (f *fakeNotifier) Notify(ctx context.Context, userID, notifType, title, message string, data map[string]any) {
	f.sent = append(f.sent, notifType)
}
