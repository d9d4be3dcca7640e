package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stakevault/internal/db"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrWithdrawalNotFound error = errors.New("withdrawal request not found")
var ErrDuplicateIdempotencyKey error = errors.New("idempotency key already used")

func (s *Store) CreateWithdrawalRequest(ctx context.Context, request *WithdrawalRequest) error {
	err := s.conn(ctx).Create(request).Error
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("create withdrawal request: %w", err)
	}
	return nil
}

func (s *Store) GetWithdrawalRequest(ctx context.Context, id string) (WithdrawalRequest, error) {
	var request WithdrawalRequest
	err := s.conn(ctx).Where("id = ?", id).First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return WithdrawalRequest{}, ErrWithdrawalNotFound
		}
		return WithdrawalRequest{}, fmt.Errorf("get withdrawal request: %w", err)
	}
	return request, nil
}

func (s *Store) GetWithdrawalByIdempotencyKey(ctx context.Context, key string) (WithdrawalRequest, bool, error) {
	var request WithdrawalRequest
	err := s.conn(ctx).Where("idempotency_key = ?", key).First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return WithdrawalRequest{}, false, nil
		}
		return WithdrawalRequest{}, false, fmt.Errorf("get withdrawal by idempotency key: %w", err)
	}
	return request, true, nil
}

// TransitionWithdrawal performs a CAS on status; only the listed §4.8 edges
// go through here.
func (s *Store) TransitionWithdrawal(ctx context.Context, id string, fromStatuses []string, updates map[string]any) (bool, error) {
	tx := s.conn(ctx).Model(&WithdrawalRequest{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(updates)
	if tx.Error != nil {
		return false, fmt.Errorf("transition withdrawal: %w", tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

func (s *Store) ListWithdrawals(ctx context.Context, status string, page, limit int) ([]WithdrawalRequest, int64, error) {
	q := s.conn(ctx).Model(&WithdrawalRequest{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count withdrawals: %w", err)
	}

	var items []WithdrawalRequest
	err := q.Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list withdrawals: %w", err)
	}
	return items, total, nil
}

func (s *Store) ListUserWithdrawals(ctx context.Context, userID string, limit int) ([]WithdrawalRequest, error) {
	var items []WithdrawalRequest
	err := s.conn(ctx).Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list user withdrawals: %w", err)
	}
	return items, nil
}

// RecentWithdrawals returns the user's non-rejected requests created after
// the cutoff, for velocity and daily-limit scoring.
func (s *Store) RecentWithdrawals(ctx context.Context, userID string, since time.Time) ([]WithdrawalRequest, error) {
	var items []WithdrawalRequest
	err := s.conn(ctx).
		Where("user_id = ? AND created_at >= ? AND status <> ?", userID, since, WithdrawalRejected).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("recent withdrawals: %w", err)
	}
	return items, nil
}

func (s *Store) GetWhitelistEntry(ctx context.Context, userID, chainID, address string) (AddressWhitelist, bool, error) {
	var entry AddressWhitelist
	err := s.conn(ctx).
		Where("user_id = ? AND chain_id = ? AND address = ?", userID, chainID, address).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AddressWhitelist{}, false, nil
		}
		return AddressWhitelist{}, false, fmt.Errorf("get whitelist entry: %w", err)
	}
	return entry, true, nil
}

// AddWhitelistEntry inserts the destination with its cooldown; an existing
// row is left untouched so the cooldown is never refreshed.
func (s *Store) AddWhitelistEntry(ctx context.Context, entry *AddressWhitelist) error {
	err := s.conn(ctx).Create(entry).Error
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("add whitelist entry: %w", err)
	}
	return nil
}

func (s *Store) CreatePayoutTx(ctx context.Context, payout *PayoutTx) error {
	if err := s.conn(ctx).Create(payout).Error; err != nil {
		return fmt.Errorf("create payout tx: %w", err)
	}
	return nil
}

func (s *Store) GetPayoutTxByRequest(ctx context.Context, withdrawalRequestID string) (PayoutTx, bool, error) {
	var payout PayoutTx
	err := s.conn(ctx).Where("withdrawal_request_id = ?", withdrawalRequestID).First(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PayoutTx{}, false, nil
		}
		return PayoutTx{}, false, fmt.Errorf("get payout tx: %w", err)
	}
	return payout, true, nil
}

func (s *Store) UpdatePayoutTx(ctx context.Context, id string, updates map[string]any) error {
	err := s.conn(ctx).Model(&PayoutTx{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("update payout tx: %w", err)
	}
	return nil
}

// SumWithdrawalsUsd folds amount*price over the given requests.
func SumWithdrawalsUsd(items []WithdrawalRequest, priceUsd decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount.Mul(priceUsd))
	}
	return total
}
