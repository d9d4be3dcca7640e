package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrDepositNotFound error = errors.New("deposit not found")

func (s *Store) GetDepositAddress(ctx context.Context, userID, chainID string) (DepositAddress, bool, error) {
	var addr DepositAddress
	err := s.conn(ctx).Where("user_id = ? AND chain_id = ?", userID, chainID).First(&addr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DepositAddress{}, false, nil
		}
		return DepositAddress{}, false, fmt.Errorf("get deposit address: %w", err)
	}
	return addr, true, nil
}

func (s *Store) CreateDepositAddress(ctx context.Context, addr *DepositAddress) error {
	if err := s.conn(ctx).Create(addr).Error; err != nil {
		return fmt.Errorf("create deposit address: %w", err)
	}
	return nil
}

// NextDerivationIndex returns max(existing)+1 for the chain; callers must
// hold the enclosing transaction so that concurrent allocations collide on
// the unique (chain_id, derivation_index) constraint rather than dup.
func (s *Store) NextDerivationIndex(ctx context.Context, chainID string) (int64, error) {
	var max *int64
	err := s.conn(ctx).Model(&DepositAddress{}).
		Where("chain_id = ?", chainID).
		Select("MAX(derivation_index)").
		Scan(&max).Error
	if err != nil {
		return 0, fmt.Errorf("next derivation index: %w", err)
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

func (s *Store) ListDepositAddressesOnChain(ctx context.Context, chainID string) ([]DepositAddress, error) {
	var addrs []DepositAddress
	if err := s.conn(ctx).Where("chain_id = ?", chainID).Find(&addrs).Error; err != nil {
		return nil, fmt.Errorf("list deposit addresses: %w", err)
	}
	return addrs, nil
}

// UpsertDeposit inserts the observed transfer, ignoring re-scans of the same
// (tx_hash, log_index, chain_id).
func (s *Store) UpsertDeposit(ctx context.Context, deposit *Deposit) error {
	err := s.conn(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(deposit).Error
	if err != nil {
		return fmt.Errorf("upsert deposit: %w", err)
	}
	return nil
}

func (s *Store) ListConfirmingDeposits(ctx context.Context, chainID string) ([]Deposit, error) {
	var deposits []Deposit
	err := s.conn(ctx).
		Where("chain_id = ? AND status IN ?", chainID, []string{DepositAwaiting, DepositConfirming}).
		Find(&deposits).Error
	if err != nil {
		return nil, fmt.Errorf("list confirming deposits: %w", err)
	}
	return deposits, nil
}

func (s *Store) UpdateDepositConfirmations(ctx context.Context, id string, confirmations int, status string) error {
	err := s.conn(ctx).Model(&Deposit{}).Where("id = ?", id).
		Updates(map[string]any{
			"confirmations": confirmations,
			"status":        status,
		}).Error
	if err != nil {
		return fmt.Errorf("update deposit confirmations: %w", err)
	}
	return nil
}

// ConfirmDeposit transitions CONFIRMING -> CONFIRMED once; the status guard
// keeps a second tracker pass from re-crediting.
func (s *Store) ConfirmDeposit(ctx context.Context, id string, confirmations int, at time.Time) (bool, error) {
	tx := s.conn(ctx).Model(&Deposit{}).
		Where("id = ? AND status IN ?", id, []string{DepositAwaiting, DepositConfirming}).
		Updates(map[string]any{
			"status":        DepositConfirmed,
			"confirmations": confirmations,
			"confirmed_at":  at,
		})
	if tx.Error != nil {
		return false, fmt.Errorf("confirm deposit: %w", tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

func (s *Store) ListUserDeposits(ctx context.Context, userID, chainID, status string) ([]Deposit, error) {
	q := s.conn(ctx).Where("user_id = ?", userID)
	if chainID != "" {
		q = q.Where("chain_id = ?", chainID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var deposits []Deposit
	if err := q.Order("created_at DESC").Limit(200).Find(&deposits).Error; err != nil {
		return nil, fmt.Errorf("list user deposits: %w", err)
	}
	return deposits, nil
}
