package deposit

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"stakevault/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const scanLookbackBlocks = 10000

func lastScannedKey(chainID string) string {
	return fmt.Sprintf("lastScannedBlock_%s", chainID)
}

// ScanChain advances the per-chain cursor, observing ERC-20 transfers into
// user deposit addresses. Re-scans of overlapping ranges are harmless: the
// (txHash, logIndex, chainID) unique key swallows duplicates.
func (s *Service) ScanChain(ctx context.Context, chain repository.Chain) error {
	client, ok := s.chains[chain.ID]
	if !ok {
		return fmt.Errorf("no chain client for %s", chain.Slug)
	}

	head, err := client.CurrentBlock(ctx)
	if err != nil {
		return fmt.Errorf("get head: %w", err)
	}

	var lastScanned int64
	if _, err := s.repo.GetConfigValue(ctx, lastScannedKey(chain.ID), &lastScanned); err != nil {
		return fmt.Errorf("read scan cursor: %w", err)
	}

	fromBlock := lastScanned + 1
	if floor := head - scanLookbackBlocks; fromBlock < floor {
		fromBlock = floor
	}
	if fromBlock < 0 {
		fromBlock = 0
	}
	if fromBlock > head {
		return nil
	}

	addresses, err := s.repo.ListDepositAddressesOnChain(ctx, chain.ID)
	if err != nil {
		return fmt.Errorf("list deposit addresses: %w", err)
	}
	if len(addresses) == 0 {
		return s.repo.SetConfigValue(ctx, lastScannedKey(chain.ID), head)
	}

	watched := make([]string, 0, len(addresses))
	byAddress := make(map[string]repository.DepositAddress, len(addresses))
	for _, addr := range addresses {
		lower := strings.ToLower(addr.Address)
		watched = append(watched, lower)
		byAddress[lower] = addr
	}

	assets, err := s.repo.ListActiveAssetsOnChain(ctx, chain.ID)
	if err != nil {
		return fmt.Errorf("list assets: %w", err)
	}

	// RPC happens outside the transaction; only the resulting rows and the
	// cursor advance are transactional.
	type observed struct {
		asset    repository.Asset
		transfer struct {
			txHash   string
			logIndex int
			block    int64
			from     string
			to       string
			amount   decimal.Decimal
		}
	}
	var hits []observed

	for _, asset := range assets {
		if asset.ContractAddress == nil {
			// native observation is a separate strategy; schema is ready
			continue
		}

		transfers, err := client.FilterTransferLogs(ctx, *asset.ContractAddress, watched, fromBlock, head)
		if err != nil {
			return fmt.Errorf("filter transfers for %s: %w", asset.Symbol, err)
		}

		for _, transfer := range transfers {
			hit := observed{asset: asset}
			hit.transfer.txHash = transfer.TxHash
			hit.transfer.logIndex = transfer.LogIndex
			hit.transfer.block = transfer.BlockNumber
			hit.transfer.from = transfer.From
			hit.transfer.to = transfer.To
			hit.transfer.amount = fromBaseUnits(transfer.Value, asset.Decimals)
			hits = append(hits, hit)
		}
	}

	err = s.repo.RunInTx(ctx, func(txCtx context.Context) error {
		for _, hit := range hits {
			addr, ok := byAddress[hit.transfer.to]
			if !ok {
				continue
			}

			row := repository.Deposit{
				ID:               uuid.NewString(),
				UserID:           addr.UserID,
				AssetID:          hit.asset.ID,
				ChainID:          chain.ID,
				DepositAddressID: addr.ID,
				TxHash:           hit.transfer.txHash,
				LogIndex:         hit.transfer.logIndex,
				FromAddress:      hit.transfer.from,
				Amount:           hit.transfer.amount,
				BlockNumber:      hit.transfer.block,
				Status:           repository.DepositConfirming,
				CreatedAt:        s.clock.Now(),
			}
			if err := s.repo.UpsertDeposit(txCtx, &row); err != nil {
				return err
			}
		}

		return s.repo.SetConfigValue(txCtx, lastScannedKey(chain.ID), head)
	})
	if err != nil {
		return fmt.Errorf("persist scan window: %w", err)
	}

	if len(hits) > 0 {
		s.logs.Infow("deposits observed",
			"chain", chain.Slug,
			"count", len(hits),
			"from_block", fromBlock,
			"to_block", head)
	}

	return nil
}

// fromBaseUnits converts an on-chain integer amount into a decimal using
// the asset's precision.
func fromBaseUnits(value *big.Int, decimals int) decimal.Decimal {
	return decimal.NewFromBigInt(value, 0).Shift(int32(-decimals))
}
