package repository

import (
	"context"
	"fmt"

	"stakevault/internal/db"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrDuplicateLedgerEntry signals a one-shot transition replay.
var ErrDuplicateLedgerEntry error = fmt.Errorf("ledger entry already recorded")

func (s *Store) InsertLedgerEntry(ctx context.Context, entry *LedgerEntry) error {
	err := s.conn(ctx).Create(entry).Error
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateLedgerEntry
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (s *Store) LedgerTail(ctx context.Context, userID, assetID, chainID string) ([]LedgerEntry, error) {
	var entries []LedgerEntry
	err := s.conn(ctx).
		Where("user_id = ? AND asset_id = ? AND chain_id = ?", userID, assetID, chainID).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("ledger tail: %w", err)
	}
	return entries, nil
}

// LedgerTuples lists every distinct (user, asset, chain) that has entries.
func (s *Store) LedgerTuples(ctx context.Context) ([]BalanceCache, error) {
	var tuples []BalanceCache
	err := s.conn(ctx).Model(&LedgerEntry{}).
		Select("user_id, asset_id, chain_id").
		Where("user_id IS NOT NULL").
		Distinct().
		Scan(&tuples).Error
	if err != nil {
		return nil, fmt.Errorf("ledger tuples: %w", err)
	}
	return tuples, nil
}

func (s *Store) GetBalance(ctx context.Context, userID, assetID, chainID string) (BalanceCache, bool, error) {
	var balance BalanceCache
	err := s.conn(ctx).
		Where("user_id = ? AND asset_id = ? AND chain_id = ?", userID, assetID, chainID).
		First(&balance).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return BalanceCache{}, false, nil
		}
		return BalanceCache{}, false, fmt.Errorf("get balance: %w", err)
	}
	return balance, true, nil
}

func (s *Store) ListUserBalances(ctx context.Context, userID string) ([]BalanceCache, error) {
	var balances []BalanceCache
	err := s.conn(ctx).Where("user_id = ?", userID).Find(&balances).Error
	if err != nil {
		return nil, fmt.Errorf("list user balances: %w", err)
	}
	return balances, nil
}

// BalanceDelta is applied with atomic column increments; the WHERE guards
// keep every bucket non-negative.
type BalanceDelta struct {
	Available          decimal.Decimal
	Staked             decimal.Decimal
	RewardsAccrued     decimal.Decimal
	WithdrawalsPending decimal.Decimal
}

func (d BalanceDelta) IsZero() bool {
	return d.Available.IsZero() && d.Staked.IsZero() &&
		d.RewardsAccrued.IsZero() && d.WithdrawalsPending.IsZero()
}

// ApplyBalanceDelta increments the projection row, creating it when absent.
// Returns false when a guard would drive a bucket negative.
func (s *Store) ApplyBalanceDelta(ctx context.Context, userID, assetID, chainID string, delta BalanceDelta) (bool, error) {
	conn := s.conn(ctx)

	var existing BalanceCache
	err := conn.Where("user_id = ? AND asset_id = ? AND chain_id = ?", userID, assetID, chainID).
		First(&existing).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return false, fmt.Errorf("load balance row: %w", err)
		}
		row := BalanceCache{UserID: userID, AssetID: assetID, ChainID: chainID}
		if err := conn.Create(&row).Error; err != nil && !db.IsUniqueViolation(err) {
			return false, fmt.Errorf("create balance row: %w", err)
		}
	}

	tx := conn.Model(&BalanceCache{}).
		Where("user_id = ? AND asset_id = ? AND chain_id = ?", userID, assetID, chainID).
		Where("available + ? >= 0", delta.Available).
		Where("staked + ? >= 0", delta.Staked).
		Where("rewards_accrued + ? >= 0", delta.RewardsAccrued).
		Where("withdrawals_pending + ? >= 0", delta.WithdrawalsPending).
		Updates(map[string]any{
			"available":           gorm.Expr("available + ?", delta.Available),
			"staked":              gorm.Expr("staked + ?", delta.Staked),
			"rewards_accrued":     gorm.Expr("rewards_accrued + ?", delta.RewardsAccrued),
			"withdrawals_pending": gorm.Expr("withdrawals_pending + ?", delta.WithdrawalsPending),
		})
	if tx.Error != nil {
		return false, fmt.Errorf("apply balance delta: %w", tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

// OverwriteBalance replaces the projection row; used by the reconciler in
// fix mode only.
func (s *Store) OverwriteBalance(ctx context.Context, balance *BalanceCache) error {
	err := s.conn(ctx).Save(balance).Error
	if err != nil {
		return fmt.Errorf("overwrite balance: %w", err)
	}
	return nil
}
