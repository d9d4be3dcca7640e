package deposit

import (
	"context"
	"errors"
	"fmt"

	"stakevault/internal/ethereum"
	"stakevault/internal/ledger"
	"stakevault/internal/repository"
)

// TrackConfirmations advances every CONFIRMING deposit on the chain and
// credits the ledger exactly once when the threshold is reached.
func (s *Service) TrackConfirmations(ctx context.Context, chain repository.Chain) error {
	client, ok := s.chains[chain.ID]
	if !ok {
		return fmt.Errorf("no chain client for %s", chain.Slug)
	}

	deposits, err := s.repo.ListConfirmingDeposits(ctx, chain.ID)
	if err != nil {
		return fmt.Errorf("list confirming deposits: %w", err)
	}
	if len(deposits) == 0 {
		return nil
	}

	head, err := client.CurrentBlock(ctx)
	if err != nil {
		return fmt.Errorf("get head: %w", err)
	}

	for _, dep := range deposits {
		if err := s.trackOne(ctx, client, chain, dep, head); err != nil {
			s.logs.Errorw("failed to track deposit",
				"error", err,
				"deposit_id", dep.ID,
				"tx_hash", dep.TxHash)
		}
	}

	return nil
}

func (s *Service) trackOne(ctx context.Context, client ChainService, chain repository.Chain, dep repository.Deposit, head int64) error {
	receipt, err := client.Receipt(ctx, dep.TxHash)
	if err != nil {
		if errors.Is(err, ethereum.ErrReceiptNotFound) {
			// not mined yet (or reorged out); keep waiting
			return nil
		}
		return err
	}

	if receipt.Status == 0 {
		return s.repo.UpdateDepositConfirmations(ctx, dep.ID, dep.Confirmations, repository.DepositFailed)
	}

	confirmations := int(head - receipt.BlockNumber + 1)
	if confirmations < 0 {
		confirmations = 0
	}

	if confirmations < chain.ConfirmationsRequired {
		return s.repo.UpdateDepositConfirmations(ctx, dep.ID, confirmations, repository.DepositConfirming)
	}

	// Threshold reached: flip status, credit the ledger and bump the
	// projection in one transaction. The one-shot dedup key on the
	// DEPOSIT_CONFIRMED entry makes the credit exactly-once even if two
	// trackers race past the status CAS.
	err = s.repo.RunInTx(ctx, func(txCtx context.Context) error {
		flipped, err := s.repo.ConfirmDeposit(txCtx, dep.ID, confirmations, s.clock.Now())
		if err != nil {
			return err
		}
		if !flipped {
			return nil
		}

		_, err = s.poster.Post(txCtx, ledger.Posting{
			UserID:        dep.UserID,
			AssetID:       dep.AssetID,
			ChainID:       dep.ChainID,
			EntryType:     ledger.EntryDepositConfirmed,
			Amount:        dep.Amount,
			ReferenceType: "Deposit",
			ReferenceID:   dep.ID,
			Metadata: map[string]any{
				"txHash":   dep.TxHash,
				"logIndex": dep.LogIndex,
			},
		})
		if errors.Is(err, ledger.ErrAlreadyPosted) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("confirm deposit: %w", err)
	}

	s.logs.Infow("deposit confirmed",
		"deposit_id", dep.ID,
		"user_id", dep.UserID,
		"amount", dep.Amount.String(),
		"confirmations", confirmations)

	s.notify.Notify(ctx, dep.UserID, "DEPOSIT_CONFIRMED",
		"Deposit confirmed",
		fmt.Sprintf("Your deposit of %s has been confirmed.", dep.Amount.String()),
		map[string]any{"depositId": dep.ID, "txHash": dep.TxHash})

	return nil
}

// RunScannerPass runs one scan + track cycle over every active chain.
func (s *Service) RunScannerPass(ctx context.Context) {
	chains, err := s.repo.ListActiveChains(ctx)
	if err != nil {
		s.logs.Errorw("failed to list chains for scan", "error", err)
		return
	}

	for _, chain := range chains {
		if err := s.ScanChain(ctx, chain); err != nil {
			s.logs.Errorw("scan pass failed", "error", err, "chain", chain.Slug)
		}
		if err := s.TrackConfirmations(ctx, chain); err != nil {
			s.logs.Errorw("confirmation pass failed", "error", err, "chain", chain.Slug)
		}
	}
}
