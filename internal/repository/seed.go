package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedChainCatalog inserts a starter chain/asset/pool set when the catalog
// is empty, so a fresh deployment can serve without manual inserts.
func (s *Store) SeedChainCatalog(ctx context.Context, rpcEndpoint string) error {
	var count int64
	if err := s.conn(ctx).Model(&Chain{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count chains: %w", err)
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	chain := Chain{
		ID:                    uuid.NewString(),
		Slug:                  "ethereum",
		ChainID:               1,
		RPCEndpoint:           rpcEndpoint,
		ExplorerURL:           "https://etherscan.io",
		ConfirmationsRequired: 12,
		IsActive:              true,
		CreatedAt:             now,
	}
	if err := s.conn(ctx).Create(&chain).Error; err != nil {
		return fmt.Errorf("seed chain: %w", err)
	}

	usdcContract := "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	assets := []Asset{
		{
			ID:        uuid.NewString(),
			ChainID:   chain.ID,
			Symbol:    "ETH",
			Decimals:  18,
			IsNative:  true,
			IsActive:  true,
			PriceUsd:  decimal.NewFromInt(3000),
			CreatedAt: now,
		},
		{
			ID:              uuid.NewString(),
			ChainID:         chain.ID,
			Symbol:          "USDC",
			Decimals:        6,
			ContractAddress: &usdcContract,
			IsActive:        true,
			PriceUsd:        decimal.NewFromInt(1),
			CreatedAt:       now,
		},
	}
	if err := s.conn(ctx).Create(&assets).Error; err != nil {
		return fmt.Errorf("seed assets: %w", err)
	}

	pools := []Pool{
		{
			ID:            uuid.NewString(),
			Name:          "USDC Flexible",
			Slug:          "usdc-flexible",
			AssetID:       assets[1].ID,
			Type:          PoolFlexible,
			CurrentApr:    decimal.RequireFromString("4.5"),
			MinStake:      decimal.RequireFromString("10"),
			CooldownHours: 24,
			IsActive:      true,
			CreatedAt:     now,
		},
		{
			ID:         uuid.NewString(),
			Name:       "USDC 30-Day Fixed",
			Slug:       "usdc-fixed-30",
			AssetID:    assets[1].ID,
			Type:       PoolFixed,
			LockDays:   30,
			CurrentApr: decimal.RequireFromString("8"),
			MinStake:   decimal.RequireFromString("100"),
			IsActive:   true,
			CreatedAt:  now,
		},
	}
	if err := s.conn(ctx).Create(&pools).Error; err != nil {
		return fmt.Errorf("seed pools: %w", err)
	}

	return nil
}
