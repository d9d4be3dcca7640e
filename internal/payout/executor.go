package payout

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"stakevault/internal/ethereum"
	"stakevault/internal/ledger"
	"stakevault/internal/repository"
	"stakevault/pkg/clock"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrRetryLater error = errors.New("payout not final yet")

// Executor drives approved withdrawals on-chain. The job queue runs it at
// concurrency 1 per payout queue so the hot wallet nonce is advanced
// sequentially.
type Executor struct {
	logs   *zap.SugaredLogger
	repo   Repository
	chains map[string]ChainService // keyed by chain id
	sealer SecretSealer
	poster LedgerPoster
	queue  StatusCheckEnqueuer
	notify Notifier
	clock  clock.Clock
}

func NewExecutor(logger *zap.SugaredLogger, repo Repository, chains map[string]ChainService, sealer SecretSealer, poster LedgerPoster, queue StatusCheckEnqueuer, notifier Notifier, clk clock.Clock) *Executor {
	return &Executor{
		logs:   logger,
		repo:   repo,
		chains: chains,
		sealer: sealer,
		poster: poster,
		queue:  queue,
		notify: notifier,
		clock:  clk,
	}
}

// treasurySigner holds a decrypted treasury key for the duration of one
// broadcast.
type treasurySigner struct {
	key *ecdsa.PrivateKey
}

func (t *treasurySigner) Address() common.Address {
	return crypto.PubkeyToAddress(t.key.PublicKey)
}

func (t *treasurySigner) Sign(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), t.key)
}

// ProcessPayout handles one approved request: APPROVED -> PROCESSING ->
// SENT (or FAILED). Broadcast happens outside any DB transaction; only the
// resulting state lands transactionally.
func (e *Executor) ProcessPayout(ctx context.Context, requestID string) error {
	request, err := e.repo.GetWithdrawalRequest(ctx, requestID)
	if err != nil {
		return err
	}

	// APPROVED is the normal path; FAILED covers explicit operator retries.
	won, err := e.repo.TransitionWithdrawal(ctx, requestID,
		[]string{repository.WithdrawalApproved, repository.WithdrawalFailed},
		map[string]any{"status": repository.WithdrawalProcessing})
	if err != nil {
		return err
	}
	if !won {
		// already picked up, or marked paid manually in the meantime
		e.logs.Infow("payout skipped, request no longer approved", "request_id", requestID)
		return nil
	}

	chainClient, ok := e.chains[request.ChainID]
	if !ok {
		return e.failPayout(ctx, request, nil, fmt.Sprintf("no chain client for %s", request.ChainID))
	}

	asset, err := e.repo.GetAsset(ctx, request.AssetID)
	if err != nil {
		return err
	}

	wallet, err := e.repo.GetActiveTreasuryWallet(ctx, request.ChainID)
	if err != nil {
		if errors.Is(err, repository.ErrTreasuryNotFound) {
			return e.failPayout(ctx, request, nil, "no active treasury wallet")
		}
		return err
	}

	keyBytes, err := e.sealer.Open(wallet.EncryptedPrivateKey)
	if err != nil {
		return e.failPayout(ctx, request, nil, fmt.Sprintf("unseal treasury key: %v", err))
	}
	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(string(keyBytes), "0x"))
	if err != nil {
		return e.failPayout(ctx, request, nil, fmt.Sprintf("parse treasury key: %v", err))
	}
	signer := &treasurySigner{key: privKey}

	value := toBaseUnits(request.NetAmount, asset.Decimals)
	var txHash string
	var nonce uint64
	if asset.IsNative {
		txHash, nonce, err = chainClient.Send(ctx, signer, request.DestinationAddress, value, nil)
	} else {
		data := ethereum.ERC20TransferData(request.DestinationAddress, value)
		txHash, nonce, err = chainClient.Send(ctx, signer, *asset.ContractAddress, big.NewInt(0), data)
	}
	if err != nil {
		return e.failPayout(ctx, request, nil, fmt.Sprintf("broadcast: %v", err))
	}

	now := e.clock.Now()
	payoutTx := repository.PayoutTx{
		ID:                  uuid.NewString(),
		WithdrawalRequestID: request.ID,
		TxHash:              &txHash,
		Nonce:               &nonce,
		Status:              repository.PayoutSent,
		Attempts:            1,
		SentAt:              &now,
		CreatedAt:           now,
	}

	err = e.repo.RunInTx(ctx, func(txCtx context.Context) error {
		if err := e.repo.CreatePayoutTx(txCtx, &payoutTx); err != nil {
			return err
		}
		_, err := e.repo.TransitionWithdrawal(txCtx, request.ID,
			[]string{repository.WithdrawalProcessing},
			map[string]any{"status": repository.WithdrawalSent})
		return err
	})
	if err != nil {
		return fmt.Errorf("persist sent payout: %w", err)
	}

	e.logs.Infow("payout broadcast",
		"request_id", request.ID,
		"tx_hash", txHash,
		"nonce", nonce)

	if err := e.queue.EnqueueStatusCheck(ctx, request.ID, request.ChainID); err != nil {
		e.logs.Errorw("failed to enqueue status check", "error", err, "request_id", request.ID)
	}

	return nil
}

// CheckPayoutStatus polls the receipt and finalizes the request. Returning
// ErrRetryLater asks the queue to redeliver with backoff.
func (e *Executor) CheckPayoutStatus(ctx context.Context, requestID string) error {
	request, err := e.repo.GetWithdrawalRequest(ctx, requestID)
	if err != nil {
		return err
	}

	switch request.Status {
	case repository.WithdrawalSent, repository.WithdrawalConfirming:
	default:
		// finalized by another path (manual mark-paid, operator retry)
		return nil
	}

	payoutTx, found, err := e.repo.GetPayoutTxByRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if !found || payoutTx.TxHash == nil {
		return fmt.Errorf("payout tx missing for request %s", requestID)
	}

	chainClient, ok := e.chains[request.ChainID]
	if !ok {
		return fmt.Errorf("no chain client for %s", request.ChainID)
	}

	receipt, err := chainClient.Receipt(ctx, *payoutTx.TxHash)
	if err != nil {
		if errors.Is(err, ethereum.ErrReceiptNotFound) {
			return ErrRetryLater
		}
		return err
	}

	if receipt.Status == 0 {
		if err := e.repo.UpdatePayoutTx(ctx, payoutTx.ID, map[string]any{
			"status":        repository.PayoutFailed,
			"error_message": "transaction reverted on-chain",
		}); err != nil {
			return err
		}
		_, err := e.repo.TransitionWithdrawal(ctx, request.ID,
			[]string{repository.WithdrawalSent, repository.WithdrawalConfirming},
			map[string]any{"status": repository.WithdrawalFailed})
		if err != nil {
			return err
		}

		e.notify.Notify(ctx, request.UserID, "WITHDRAWAL_FAILED",
			"Withdrawal failed",
			"Your withdrawal transaction failed on-chain; support has been notified.",
			map[string]any{"requestId": request.ID})
		return nil
	}

	chain, err := e.repo.GetChain(ctx, request.ChainID)
	if err != nil {
		return err
	}

	head, err := chainClient.CurrentBlock(ctx)
	if err != nil {
		return err
	}

	confirmations := int(head - receipt.BlockNumber + 1)
	if confirmations < chain.ConfirmationsRequired {
		if err := e.repo.UpdatePayoutTx(ctx, payoutTx.ID, map[string]any{
			"status":        repository.PayoutConfirming,
			"confirmations": confirmations,
		}); err != nil {
			return err
		}
		if _, err := e.repo.TransitionWithdrawal(ctx, request.ID,
			[]string{repository.WithdrawalSent},
			map[string]any{"status": repository.WithdrawalConfirming}); err != nil {
			return err
		}
		return ErrRetryLater
	}

	// Confirmed: finalize transactionally with the WITHDRAWAL_PAID debit.
	now := e.clock.Now()
	err = e.repo.RunInTx(ctx, func(txCtx context.Context) error {
		won, err := e.repo.TransitionWithdrawal(txCtx, request.ID,
			[]string{repository.WithdrawalSent, repository.WithdrawalConfirming},
			map[string]any{"status": repository.WithdrawalCompleted})
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		if err := e.repo.UpdatePayoutTx(txCtx, payoutTx.ID, map[string]any{
			"status":        repository.PayoutConfirmed,
			"confirmations": confirmations,
			"gas_used":      receipt.GasUsed,
			"confirmed_at":  now,
		}); err != nil {
			return err
		}

		_, err = e.poster.Post(txCtx, ledger.Posting{
			UserID:        request.UserID,
			AssetID:       request.AssetID,
			ChainID:       request.ChainID,
			EntryType:     ledger.EntryWithdrawalPaid,
			Amount:        request.Amount,
			ReferenceType: "WithdrawalRequest",
			ReferenceID:   request.ID,
			Metadata:      map[string]any{"txHash": *payoutTx.TxHash},
		})
		if errors.Is(err, ledger.ErrAlreadyPosted) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("finalize payout: %w", err)
	}

	e.logs.Infow("payout confirmed",
		"request_id", request.ID,
		"tx_hash", *payoutTx.TxHash,
		"confirmations", confirmations)

	e.notify.Notify(ctx, request.UserID, "WITHDRAWAL_COMPLETED",
		"Withdrawal completed",
		fmt.Sprintf("Your withdrawal of %s has been confirmed on-chain.", request.Amount.String()),
		map[string]any{"requestId": request.ID, "txHash": *payoutTx.TxHash})

	return nil
}

// failPayout records the error on the payout row (when there is one), moves
// the request PROCESSING -> FAILED and notifies the user.
func (e *Executor) failPayout(ctx context.Context, request repository.WithdrawalRequest, payoutTxID *string, message string) error {
	if payoutTxID != nil {
		if err := e.repo.UpdatePayoutTx(ctx, *payoutTxID, map[string]any{
			"status":        repository.PayoutFailed,
			"error_message": message,
		}); err != nil {
			e.logs.Errorw("failed to update payout tx", "error", err)
		}
	} else {
		// keep the failure reason even when the broadcast never happened
		existing, found, err := e.repo.GetPayoutTxByRequest(ctx, request.ID)
		if err == nil && found {
			if err := e.repo.UpdatePayoutTx(ctx, existing.ID, map[string]any{
				"status":        repository.PayoutFailed,
				"error_message": message,
				"attempts":      existing.Attempts + 1,
			}); err != nil {
				e.logs.Errorw("failed to update payout tx", "error", err)
			}
		} else if err == nil {
			row := repository.PayoutTx{
				ID:                  uuid.NewString(),
				WithdrawalRequestID: request.ID,
				Status:              repository.PayoutFailed,
				ErrorMessage:        message,
				Attempts:            1,
				CreatedAt:           e.clock.Now(),
			}
			if err := e.repo.CreatePayoutTx(ctx, &row); err != nil {
				e.logs.Errorw("failed to create payout tx", "error", err)
			}
		}
	}

	_, err := e.repo.TransitionWithdrawal(ctx, request.ID,
		[]string{repository.WithdrawalProcessing},
		map[string]any{"status": repository.WithdrawalFailed})
	if err != nil {
		return err
	}

	e.logs.Errorw("payout failed",
		"request_id", request.ID,
		"reason", message)

	e.notify.Notify(ctx, request.UserID, "WITHDRAWAL_FAILED",
		"Withdrawal payout failed",
		"Your withdrawal could not be broadcast; an operator will review it.",
		map[string]any{"requestId": request.ID})

	return nil
}

func toBaseUnits(amount decimal.Decimal, decimals int) *big.Int {
	return amount.Shift(int32(decimals)).BigInt()
}
