package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrChainNotFound error = errors.New("chain not found")
var ErrAssetNotFound error = errors.New("asset not found")
var ErrTreasuryNotFound error = errors.New("no active treasury wallet")

func (s *Store) ListActiveChains(ctx context.Context) ([]Chain, error) {
	var chains []Chain
	if err := s.conn(ctx).Where("is_active = true").Find(&chains).Error; err != nil {
		return nil, fmt.Errorf("list active chains: %w", err)
	}
	return chains, nil
}

func (s *Store) GetChain(ctx context.Context, id string) (Chain, error) {
	var chain Chain
	err := s.conn(ctx).Where("id = ?", id).First(&chain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Chain{}, ErrChainNotFound
		}
		return Chain{}, fmt.Errorf("get chain: %w", err)
	}
	return chain, nil
}

func (s *Store) GetAsset(ctx context.Context, id string) (Asset, error) {
	var asset Asset
	err := s.conn(ctx).Where("id = ?", id).First(&asset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Asset{}, ErrAssetNotFound
		}
		return Asset{}, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

func (s *Store) ListActiveAssetsOnChain(ctx context.Context, chainID string) ([]Asset, error) {
	var assets []Asset
	err := s.conn(ctx).Where("chain_id = ? AND is_active = true", chainID).Find(&assets).Error
	if err != nil {
		return nil, fmt.Errorf("list active assets: %w", err)
	}
	return assets, nil
}

func (s *Store) CreateTreasuryWallet(ctx context.Context, wallet *TreasuryWallet) error {
	if err := s.conn(ctx).Create(wallet).Error; err != nil {
		return fmt.Errorf("create treasury wallet: %w", err)
	}
	return nil
}

func (s *Store) GetActiveTreasuryWallet(ctx context.Context, chainID string) (TreasuryWallet, error) {
	var wallet TreasuryWallet
	err := s.conn(ctx).
		Where("chain_id = ? AND is_active = true", chainID).
		Order("created_at ASC").
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TreasuryWallet{}, ErrTreasuryNotFound
		}
		return TreasuryWallet{}, fmt.Errorf("get active treasury wallet: %w", err)
	}
	return wallet, nil
}

// GetConfigValue unmarshals the SystemConfig value for key into out.
// Missing keys leave out untouched and return false.
func (s *Store) GetConfigValue(ctx context.Context, key string, out any) (bool, error) {
	var row SystemConfig
	err := s.conn(ctx).Where("key = ?", key).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get config value: %w", err)
	}
	if err := json.Unmarshal(row.Value, out); err != nil {
		return false, fmt.Errorf("unmarshal config value %q: %w", key, err)
	}
	return true, nil
}

func (s *Store) SetConfigValue(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal config value %q: %w", key, err)
	}
	row := SystemConfig{Key: key, Value: raw}
	err = s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("set config value %q: %w", key, err)
	}
	return nil
}
