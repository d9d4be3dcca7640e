package withdrawal_test

import (
	"context"
	"time"

	"stakevault/internal/domain"
	"stakevault/internal/ledger"
	"stakevault/internal/repository"
	"stakevault/internal/withdrawal"
	"stakevault/pkg/clock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func insufficientBalanceErr() error {
	return domain.NewError(domain.CodeInsufficientBalance, "balance would go negative")
}

const destination = "0x1111111111111111111111111111111111111111"

var _ = Describe("Service", func() {
	var (
		repo     *fakeRepo
		poster   *fakePoster
		queue    *fakeEnqueuer
		notifier *fakeNotifier
		clk      *clock.Fixed
		service  *withdrawal.Service
		ctx      context.Context
	)

	BeforeEach(func() {
		repo = newFakeRepo()
		poster = &fakePoster{available: dec("2")}
		queue = &fakeEnqueuer{}
		notifier = &fakeNotifier{}
		clk = clock.NewFixed(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

		service = withdrawal.NewService(zap.NewNop().Sugar(), repo, poster, queue, notifier, clk,
			withdrawal.FeePolicy{FeeRate: dec("0.001"), MinFee: dec("0.001")},
			withdrawal.FraudPolicy{
				LargeWithdrawalThresholdUsd: dec("10000"),
				MaxDailyWithdrawalRequests:  10,
			})
		ctx = context.Background()

		repo.users["u-1"] = &repository.User{
			ID:                      "u-1",
			EmailVerified:           true,
			DailyWithdrawalLimitUsd: dec("50000"),
			CreatedAt:               clk.Now().Add(-30 * 24 * time.Hour),
		}
		repo.assets["a-1"] = &repository.Asset{
			ID: "a-1", ChainID: "c-1", IsActive: true, Decimals: 18, PriceUsd: dec("1"),
		}
		repo.chains["c-1"] = &repository.Chain{ID: "c-1", ConfirmationsRequired: 12}
	})

	submit := func(amount, key string) (repository.WithdrawalRequest, error) {
		return service.Submit(ctx, withdrawal.SubmitInput{
			UserID:             "u-1",
			AssetID:            "a-1",
			ChainID:            "c-1",
			Amount:             dec(amount),
			DestinationAddress: destination,
			IdempotencyKey:     key,
		})
	}

	Describe("Submit", func() {
		It("reserves the amount and parks the request in review", func() {
			request, err := submit("1", "key-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(request.Status).To(Equal(repository.WithdrawalPendingReview))
			Expect(request.Fee).To(eqDec("0.001"))
			Expect(request.NetAmount).To(eqDec("0.999"))
			Expect(request.Amount.Equal(request.Fee.Add(request.NetAmount))).To(BeTrue())

			Expect(poster.byType(ledger.EntryWithdrawalRequested)).To(HaveLen(1))
			Expect(poster.available).To(eqDec("1"))
			Expect(queue.enqueued).To(BeEmpty())
		})

		It("flags a brand-new destination address", func() {
			request, err := submit("1", "key-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(request.FraudScore).To(Equal(30))
			Expect(string(request.FraudIndicators)).To(ContainSubstring("NEW_ADDRESS"))
		})

		It("whitelists the destination with a cooldown that is not refreshed", func() {
			_, err := submit("0.5", "key-1")
			Expect(err).NotTo(HaveOccurred())

			entry, ok := repo.whitelist[whitelistKey("u-1", "c-1", destination)]
			Expect(ok).To(BeTrue())
			firstCooldown := entry.CooldownEndsAt

			clk.Advance(time.Hour)
			_, err = submit("0.5", "key-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.whitelist[whitelistKey("u-1", "c-1", destination)].CooldownEndsAt).To(Equal(firstCooldown))
		})

		It("returns the existing request on an idempotency key replay", func() {
			first, err := submit("1", "key-1")
			Expect(err).NotTo(HaveOccurred())

			second, err := submit("1", "key-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(second.ID).To(Equal(first.ID))

			Expect(poster.byType(ledger.EntryWithdrawalRequested)).To(HaveLen(1))
		})

		It("refuses amounts that do not cover the fee", func() {
			_, err := submit("0.0005", "key-1")
			domainErr, ok := domain.AsDomainError(err)
			Expect(ok).To(BeTrue())
			Expect(domainErr.Code).To(Equal(domain.CodeAmountTooSmall))
		})

		It("refuses withdrawals beyond the available balance", func() {
			_, err := submit("5", "key-1")
			domainErr, ok := domain.AsDomainError(err)
			Expect(ok).To(BeTrue())
			Expect(domainErr.Code).To(Equal(domain.CodeInsufficientBalance))
		})

		It("refuses inactive assets", func() {
			repo.assets["a-1"].IsActive = false

			_, err := submit("1", "key-1")
			domainErr, ok := domain.AsDomainError(err)
			Expect(ok).To(BeTrue())
			Expect(domainErr.Code).To(Equal(domain.CodeAssetInactive))
		})
	})

	Describe("Approve", func() {
		var request repository.WithdrawalRequest

		BeforeEach(func() {
			var err error
			request, err = submit("1", "key-1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("moves to APPROVED and enqueues the payout", func() {
			approved, err := service.Approve(ctx, "admin-1", request.ID, "looks fine")
			Expect(err).NotTo(HaveOccurred())
			Expect(approved.Status).To(Equal(repository.WithdrawalApproved))
			Expect(queue.enqueued).To(Equal([]string{request.ID}))
		})

		It("refuses a second approval", func() {
			_, err := service.Approve(ctx, "admin-1", request.ID, "")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Approve(ctx, "admin-1", request.ID, "")
			domainErr, ok := domain.AsDomainError(err)
			Expect(ok).To(BeTrue())
			Expect(domainErr.Code).To(Equal(domain.CodeStateForbidden))
		})
	})

	Describe("Reject", func() {
		var request repository.WithdrawalRequest

		BeforeEach(func() {
			var err error
			request, err = submit("0.5", "key-1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("requires admin notes", func() {
			_, err := service.Reject(ctx, "admin-1", request.ID, "  ")
			domainErr, ok := domain.AsDomainError(err)
			Expect(ok).To(BeTrue())
			Expect(domainErr.Code).To(Equal(domain.CodeNotesRequired))
		})

		It("releases the reserve exactly once", func() {
			rejected, err := service.Reject(ctx, "admin-1", request.ID, "suspicious")
			Expect(err).NotTo(HaveOccurred())
			Expect(rejected.Status).To(Equal(repository.WithdrawalRejected))
			Expect(rejected.AdminNotes).To(Equal("suspicious"))

			Expect(poster.byType(ledger.EntryWithdrawalRejected)).To(HaveLen(1))
			// available restored to its pre-submission value
			Expect(poster.available).To(eqDec("2"))

			_, err = service.Reject(ctx, "admin-1", request.ID, "again")
			Expect(err).To(HaveOccurred())
			Expect(poster.byType(ledger.EntryWithdrawalRejected)).To(HaveLen(1))
		})
	})

	Describe("MarkPaidManually", func() {
		It("finalizes from PENDING_REVIEW with a WITHDRAWAL_PAID debit", func() {
			request, err := submit("1", "key-1")
			Expect(err).NotTo(HaveOccurred())

			paid, err := service.MarkPaidManually(ctx, "admin-1", request.ID, "paid via cold wallet", "https://proof")
			Expect(err).NotTo(HaveOccurred())
			Expect(paid.Status).To(Equal(repository.WithdrawalPaidManually))
			Expect(paid.ManualProofURL).NotTo(BeNil())

			Expect(poster.byType(ledger.EntryWithdrawalPaid)).To(HaveLen(1))
			Expect(poster.byType(ledger.EntryWithdrawalPaid)[0].Amount).To(Equal(request.Amount))
		})

		It("refuses terminal requests", func() {
			request, err := submit("1", "key-1")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Reject(ctx, "admin-1", request.ID, "no")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.MarkPaidManually(ctx, "admin-1", request.ID, "notes", "")
			domainErr, ok := domain.AsDomainError(err)
			Expect(ok).To(BeTrue())
			Expect(domainErr.Code).To(Equal(domain.CodeStateForbidden))
		})
	})
})
