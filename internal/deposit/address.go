package deposit

import (
	"context"
	"errors"
	"fmt"

	"stakevault/internal/domain"
	"stakevault/internal/repository"
	"stakevault/pkg/clock"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrSignerUnavailable error = errors.New("hd wallet signer not configured")

// Service owns the deposit pipeline: address allocation, chain scanning and
// confirmation tracking.
type Service struct {
	logs    *zap.SugaredLogger
	repo    Repository
	chains  map[string]ChainService // keyed by chain id
	deriver AddressDeriver
	poster  LedgerPoster
	notify  Notifier
	clock   clock.Clock
}

func NewService(logger *zap.SugaredLogger, repo Repository, chains map[string]ChainService, deriver AddressDeriver, poster LedgerPoster, notifier Notifier, clk clock.Clock) *Service {
	return &Service{
		logs:    logger,
		repo:    repo,
		chains:  chains,
		deriver: deriver,
		poster:  poster,
		notify:  notifier,
		clock:   clk,
	}
}

// GetOrCreateAddress returns the user's deposit address on the chain,
// allocating the next derivation index inside the same transaction that
// inserts the row. Concurrent allocations collide on the unique
// (chain_id, derivation_index) constraint and one of them retries via the
// store's serialization retry.
func (s *Service) GetOrCreateAddress(ctx context.Context, userID, chainID string) (repository.DepositAddress, error) {
	chain, err := s.repo.GetChain(ctx, chainID)
	if err != nil {
		return repository.DepositAddress{}, err
	}
	if !chain.IsActive {
		return repository.DepositAddress{}, domain.NewError(domain.CodeAssetInactive, "chain is not active")
	}

	existing, found, err := s.repo.GetDepositAddress(ctx, userID, chainID)
	if err != nil {
		return repository.DepositAddress{}, err
	}
	if found {
		return existing, nil
	}

	if s.deriver == nil {
		return repository.DepositAddress{}, ErrSignerUnavailable
	}

	var allocated repository.DepositAddress
	err = s.repo.RunInTx(ctx, func(txCtx context.Context) error {
		// re-check inside the transaction: another request may have won
		row, found, err := s.repo.GetDepositAddress(txCtx, userID, chainID)
		if err != nil {
			return err
		}
		if found {
			allocated = row
			return nil
		}

		index, err := s.repo.NextDerivationIndex(txCtx, chainID)
		if err != nil {
			return err
		}

		address, path, err := s.deriver.DeriveAddress(uint32(index))
		if err != nil {
			return fmt.Errorf("derive address: %w", err)
		}

		allocated = repository.DepositAddress{
			ID:              uuid.NewString(),
			UserID:          userID,
			ChainID:         chainID,
			Address:         address,
			DerivationPath:  &path,
			DerivationIndex: &index,
			CreatedAt:       s.clock.Now(),
		}
		return s.repo.CreateDepositAddress(txCtx, &allocated)
	})
	if err != nil {
		return repository.DepositAddress{}, err
	}

	s.logs.Infow("deposit address allocated",
		"user_id", userID,
		"chain_id", chainID,
		"address", allocated.Address)

	return allocated, nil
}

func (s *Service) ListUserDeposits(ctx context.Context, userID, chainID, status string) ([]repository.Deposit, error) {
	return s.repo.ListUserDeposits(ctx, userID, chainID, status)
}
