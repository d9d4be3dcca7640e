package ledger_test

import (
	"encoding/json"

	"stakevault/internal/ledger"
	"stakevault/internal/repository"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func entry(entryType, amount string) repository.LedgerEntry {
	return repository.LedgerEntry{
		ID:        "entry-" + entryType,
		EntryType: entryType,
		Direction: ledger.Direction(entryType),
		Amount:    dec(amount),
	}
}

func unstakeEntry(amount, principal string) repository.LedgerEntry {
	meta, _ := json.Marshal(map[string]string{"principal": principal})
	e := entry(ledger.EntryUnstakeCompleted, amount)
	e.Metadata = meta
	return e
}

var _ = Describe("Apply", func() {
	var snapshot repository.BalanceDelta

	BeforeEach(func() {
		snapshot = repository.BalanceDelta{
			Available:          dec("10"),
			Staked:             dec("5"),
			RewardsAccrued:     dec("0.5"),
			WithdrawalsPending: dec("2"),
		}
	})

	It("credits available on DEPOSIT_CONFIRMED", func() {
		out, err := ledger.Apply(snapshot, entry(ledger.EntryDepositConfirmed, "1.5"))
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Available).To(eqDec("11.5"))
		Expect(out.Staked).To(Equal(snapshot.Staked))
	})

	It("moves available into staked on STAKE_CREATED", func() {
		out, err := ledger.Apply(snapshot, entry(ledger.EntryStakeCreated, "3"))
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Available).To(eqDec("7"))
		Expect(out.Staked).To(eqDec("8"))
	})

	It("returns principal plus rewards on UNSTAKE_COMPLETED", func() {
		out, err := ledger.Apply(snapshot, unstakeEntry("3.5", "3"))
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Staked).To(eqDec("2"))
		Expect(out.Available).To(eqDec("13.5"))
		Expect(out.RewardsAccrued).To(eqDec("0"))
	})

	It("fails UNSTAKE_COMPLETED without principal metadata", func() {
		_, err := ledger.Apply(snapshot, entry(ledger.EntryUnstakeCompleted, "3.5"))
		Expect(err).To(HaveOccurred())
	})

	It("accumulates REWARD_ACCRUED into the rewards bucket", func() {
		out, err := ledger.Apply(snapshot, entry(ledger.EntryRewardAccrued, "0.25"))
		Expect(err).NotTo(HaveOccurred())
		Expect(out.RewardsAccrued).To(eqDec("0.75"))
		Expect(out.Available).To(Equal(snapshot.Available))
	})

	It("settles rewards into available on REWARD_CLAIMED", func() {
		out, err := ledger.Apply(snapshot, entry(ledger.EntryRewardClaimed, "0.5"))
		Expect(err).NotTo(HaveOccurred())
		Expect(out.RewardsAccrued).To(eqDec("0"))
		Expect(out.Available).To(eqDec("10.5"))
	})

	It("reserves on WITHDRAWAL_REQUESTED", func() {
		out, err := ledger.Apply(snapshot, entry(ledger.EntryWithdrawalRequested, "4"))
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Available).To(eqDec("6"))
		Expect(out.WithdrawalsPending).To(eqDec("6"))
	})

	It("releases the reserve on WITHDRAWAL_REJECTED", func() {
		out, err := ledger.Apply(snapshot, entry(ledger.EntryWithdrawalRejected, "2"))
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Available).To(eqDec("12"))
		Expect(out.WithdrawalsPending).To(eqDec("0"))
	})

	It("clears the reserve on WITHDRAWAL_PAID", func() {
		out, err := ledger.Apply(snapshot, entry(ledger.EntryWithdrawalPaid, "2"))
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Available).To(Equal(snapshot.Available))
		Expect(out.WithdrawalsPending).To(eqDec("0"))
	})

	It("honors the direction of an ADJUSTMENT", func() {
		debit := entry(ledger.EntryAdjustment, "1")
		debit.Direction = repository.DirectionDebit
		out, err := ledger.Apply(snapshot, debit)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Available).To(eqDec("9"))

		credit := entry(ledger.EntryAdjustment, "1")
		credit.Direction = repository.DirectionCredit
		out, err = ledger.Apply(snapshot, credit)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Available).To(eqDec("11"))
	})

	It("rejects unknown entry types", func() {
		_, err := ledger.Apply(snapshot, entry("BOGUS", "1"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Replay", func() {
	It("folds a deposit-stake-claim history into the expected projection", func() {
		entries := []repository.LedgerEntry{
			entry(ledger.EntryDepositConfirmed, "1.5"),
			entry(ledger.EntryStakeCreated, "1.0"),
			entry(ledger.EntryRewardAccrued, "0.1"),
			entry(ledger.EntryRewardClaimed, "0.1"),
		}

		out, err := ledger.Replay(entries)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Available).To(eqDec("0.6"))
		Expect(out.Staked).To(eqDec("1.0"))
		Expect(out.RewardsAccrued).To(eqDec("0"))
		Expect(out.WithdrawalsPending).To(eqDec("0"))
	})

	It("balances a full withdrawal lifecycle", func() {
		entries := []repository.LedgerEntry{
			entry(ledger.EntryDepositConfirmed, "2"),
			entry(ledger.EntryWithdrawalRequested, "1"),
			entry(ledger.EntryWithdrawalPaid, "1"),
		}

		out, err := ledger.Replay(entries)
		Expect(err).NotTo(HaveOccurred())
		Expect(out.Available).To(eqDec("1"))
		Expect(out.WithdrawalsPending).To(eqDec("0"))
	})
})

var _ = Describe("DedupKey", func() {
	It("builds a key for one-shot transitions", func() {
		key := ledger.DedupKey(ledger.EntryDepositConfirmed, "Deposit", "d-1")
		Expect(key).NotTo(BeNil())
		Expect(*key).To(Equal("DEPOSIT_CONFIRMED:Deposit:d-1"))
	})

	It("returns nil for repeatable entries", func() {
		Expect(ledger.DedupKey(ledger.EntryRewardAccrued, "StakePosition", "p-1")).To(BeNil())
		Expect(ledger.DedupKey(ledger.EntryAdjustment, "AdminAction", "a-1")).To(BeNil())
	})
})
