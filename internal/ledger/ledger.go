package ledger

import (
	"fmt"

	"stakevault/internal/repository"

	"github.com/shopspring/decimal"
)

// Entry types. The ledger records every monetary movement; these names are
// the contract between services and the reconciler.
const (
	EntryDepositConfirmed    = "DEPOSIT_CONFIRMED"
	EntryStakeCreated        = "STAKE_CREATED"
	EntryUnstakeCompleted    = "UNSTAKE_COMPLETED"
	EntryRewardAccrued       = "REWARD_ACCRUED"
	EntryRewardClaimed       = "REWARD_CLAIMED"
	EntryWithdrawalRequested = "WITHDRAWAL_REQUESTED"
	EntryWithdrawalRejected  = "WITHDRAWAL_REJECTED"
	EntryWithdrawalPaid      = "WITHDRAWAL_PAID"
	EntryAdjustment          = "ADJUSTMENT"
	EntryStakeCancelled      = "STAKE_CANCELLED"
)

// oneShot marks entry types that may appear at most once per
// (entryType, referenceType, referenceID).
var oneShot = map[string]bool{
	EntryDepositConfirmed:    true,
	EntryStakeCreated:        true,
	EntryUnstakeCompleted:    true,
	EntryRewardClaimed:       true,
	EntryWithdrawalRequested: true,
	EntryWithdrawalRejected:  true,
	EntryWithdrawalPaid:      true,
	EntryStakeCancelled:      true,
}

func IsOneShot(entryType string) bool {
	return oneShot[entryType]
}

func DedupKey(entryType, referenceType, referenceID string) *string {
	if !oneShot[entryType] {
		return nil
	}
	key := fmt.Sprintf("%s:%s:%s", entryType, referenceType, referenceID)
	return &key
}

func Direction(entryType string) string {
	switch entryType {
	case EntryStakeCreated, EntryWithdrawalRequested, EntryWithdrawalPaid:
		return repository.DirectionDebit
	default:
		return repository.DirectionCredit
	}
}

// Effect holds the projection delta an entry applies to the four buckets;
// Apply computes the delta.
type Effect struct {
	Delta repository.BalanceDelta
}

// Apply folds a single entry into a projection snapshot. Used both by the
// co-transactional projection update and by the reconciler replay.
func Apply(snapshot repository.BalanceDelta, entry repository.LedgerEntry) (repository.BalanceDelta, error) {
	amount := entry.Amount
	out := snapshot

	switch entry.EntryType {
	case EntryDepositConfirmed:
		out.Available = out.Available.Add(amount)
	case EntryStakeCreated:
		out.Available = out.Available.Sub(amount)
		out.Staked = out.Staked.Add(amount)
	case EntryUnstakeCompleted:
		principal, rewards, err := splitUnstake(entry)
		if err != nil {
			return out, err
		}
		out.Staked = out.Staked.Sub(principal)
		out.Available = out.Available.Add(amount)
		out.RewardsAccrued = out.RewardsAccrued.Sub(rewards)
	case EntryRewardAccrued:
		out.RewardsAccrued = out.RewardsAccrued.Add(amount)
	case EntryRewardClaimed:
		out.RewardsAccrued = out.RewardsAccrued.Sub(amount)
		out.Available = out.Available.Add(amount)
	case EntryWithdrawalRequested:
		out.Available = out.Available.Sub(amount)
		out.WithdrawalsPending = out.WithdrawalsPending.Add(amount)
	case EntryWithdrawalRejected:
		out.WithdrawalsPending = out.WithdrawalsPending.Sub(amount)
		out.Available = out.Available.Add(amount)
	case EntryWithdrawalPaid:
		out.WithdrawalsPending = out.WithdrawalsPending.Sub(amount)
	case EntryAdjustment:
		if entry.Direction == repository.DirectionDebit {
			out.Available = out.Available.Sub(amount)
		} else {
			out.Available = out.Available.Add(amount)
		}
	case EntryStakeCancelled:
		out.Staked = out.Staked.Sub(amount)
		out.Available = out.Available.Add(amount)
	default:
		return out, fmt.Errorf("unknown ledger entry type %q", entry.EntryType)
	}

	return out, nil
}

// splitUnstake recovers (principal, rewards) from the metadata of an
// UNSTAKE_COMPLETED entry; amount = principal + rewards.
func splitUnstake(entry repository.LedgerEntry) (decimal.Decimal, decimal.Decimal, error) {
	meta, err := decodeMetadata(entry.Metadata)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("unstake metadata: %w", err)
	}

	principalStr, ok := meta["principal"].(string)
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("unstake entry %s missing principal metadata", entry.ID)
	}
	principal, err := decimal.NewFromString(principalStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("parse principal: %w", err)
	}

	rewards := entry.Amount.Sub(principal)
	if rewards.IsNegative() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("unstake entry %s rewards negative", entry.ID)
	}
	return principal, rewards, nil
}
