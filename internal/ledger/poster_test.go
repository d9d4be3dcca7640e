package ledger_test

import (
	"context"
	"errors"
	"time"

	"stakevault/internal/domain"
	"stakevault/internal/ledger"
	"stakevault/internal/repository"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

type fakePosterRepo struct {
	insertErr  error
	applyOK    bool
	applyErr   error
	inserted   []*repository.LedgerEntry
	deltas     []repository.BalanceDelta
}

func (f *fakePosterRepo) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

func (f *fakePosterRepo) InsertLedgerEntry(ctx context.Context, entry *repository.LedgerEntry) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, entry)
	return nil
}

func (f *fakePosterRepo) ApplyBalanceDelta(ctx context.Context, userID, assetID, chainID string, delta repository.BalanceDelta) (bool, error) {
	f.deltas = append(f.deltas, delta)
	return f.applyOK, f.applyErr
}

var _ = Describe("Poster", func() {
	var (
		repo   *fakePosterRepo
		poster *ledger.Poster
		ctx    context.Context
		now    time.Time
	)

	BeforeEach(func() {
		repo = &fakePosterRepo{applyOK: true}
		now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		poster = ledger.NewPoster(zap.NewNop().Sugar(), repo, func() time.Time { return now })
		ctx = context.Background()
	})

	It("writes the entry and its projection delta together", func() {
		entry, err := poster.Post(ctx, ledger.Posting{
			UserID:        "u-1",
			AssetID:       "a-1",
			ChainID:       "c-1",
			EntryType:     ledger.EntryDepositConfirmed,
			Amount:        dec("1.5"),
			ReferenceType: "Deposit",
			ReferenceID:   "d-1",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(entry.Direction).To(Equal(repository.DirectionCredit))
		Expect(entry.CreatedAt).To(Equal(now))
		Expect(entry.DedupKey).NotTo(BeNil())

		Expect(repo.inserted).To(HaveLen(1))
		Expect(repo.deltas).To(HaveLen(1))
		Expect(repo.deltas[0].Available).To(eqDec("1.5"))
	})

	It("rejects non-positive amounts", func() {
		_, err := poster.Post(ctx, ledger.Posting{
			EntryType: ledger.EntryDepositConfirmed,
			Amount:    dec("0"),
		})
		Expect(err).To(MatchError(ledger.ErrNonPositiveAmount))
		Expect(repo.inserted).To(BeEmpty())
	})

	It("maps a duplicate one-shot insert to ErrAlreadyPosted", func() {
		repo.insertErr = repository.ErrDuplicateLedgerEntry

		_, err := poster.Post(ctx, ledger.Posting{
			UserID:        "u-1",
			AssetID:       "a-1",
			ChainID:       "c-1",
			EntryType:     ledger.EntryWithdrawalRequested,
			Amount:        dec("1"),
			ReferenceType: "WithdrawalRequest",
			ReferenceID:   "w-1",
		})
		Expect(err).To(MatchError(ledger.ErrAlreadyPosted))
		Expect(repo.deltas).To(BeEmpty())
	})

	It("surfaces a guard violation as a domain error", func() {
		repo.applyOK = false

		_, err := poster.Post(ctx, ledger.Posting{
			UserID:        "u-1",
			AssetID:       "a-1",
			ChainID:       "c-1",
			EntryType:     ledger.EntryWithdrawalRequested,
			Amount:        dec("100"),
			ReferenceType: "WithdrawalRequest",
			ReferenceID:   "w-2",
		})
		domainErr, ok := domain.AsDomainError(err)
		Expect(ok).To(BeTrue())
		Expect(domainErr.Code).To(Equal(domain.CodeInsufficientBalance))
	})

	It("propagates unexpected storage failures", func() {
		repo.insertErr = errors.New("fake error")

		_, err := poster.Post(ctx, ledger.Posting{
			UserID:        "u-1",
			AssetID:       "a-1",
			ChainID:       "c-1",
			EntryType:     ledger.EntryRewardAccrued,
			Amount:        dec("0.1"),
			ReferenceType: "StakePosition",
			ReferenceID:   "p-1",
		})
		Expect(err).To(HaveOccurred())
	})
})
