package withdrawal_test

import (
	"context"
	"time"

	"stakevault/internal/repository"
	"stakevault/internal/withdrawal"
	"stakevault/pkg/clock"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

var _ = Describe("ScoreWithdrawal", func() {
	var (
		repo    *fakeRepo
		service *withdrawal.Service
		clk     *clock.Fixed
		ctx     context.Context
		user    repository.User
		asset   repository.Asset
	)

	indicatorTypes := func(indicators []withdrawal.Indicator) []string {
		out := make([]string, 0, len(indicators))
		for _, indicator := range indicators {
			out = append(out, indicator.Type)
		}
		return out
	}

	BeforeEach(func() {
		repo = newFakeRepo()
		clk = clock.NewFixed(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
		service = withdrawal.NewService(zap.NewNop().Sugar(), repo, &fakePoster{}, &fakeEnqueuer{}, &fakeNotifier{}, clk,
			withdrawal.FeePolicy{FeeRate: dec("0.001"), MinFee: dec("0.001")},
			withdrawal.FraudPolicy{
				LargeWithdrawalThresholdUsd: dec("10000"),
				MaxDailyWithdrawalRequests:  10,
			})
		ctx = context.Background()

		user = repository.User{
			ID:                      "u-1",
			EmailVerified:           true,
			DailyWithdrawalLimitUsd: dec("50000"),
			CreatedAt:               clk.Now().Add(-30 * 24 * time.Hour),
		}
		asset = repository.Asset{ID: "a-1", ChainID: "c-1", PriceUsd: dec("1")}

		// destination already whitelisted with an elapsed cooldown
		repo.whitelist[whitelistKey("u-1", "c-1", destination)] = &repository.AddressWhitelist{
			UserID: "u-1", ChainID: "c-1", Address: destination,
			CooldownEndsAt: clk.Now().Add(-time.Hour),
		}
	})

	It("scores zero for a clean request", func() {
		indicators, total, err := service.ScoreWithdrawal(ctx, user, asset, "c-1", destination, dec("100"))
		Expect(err).NotTo(HaveOccurred())
		Expect(indicators).To(BeEmpty())
		Expect(total).To(BeZero())
	})

	It("scores 30 for an unknown destination", func() {
		other := "0x2222222222222222222222222222222222222222"
		indicators, total, err := service.ScoreWithdrawal(ctx, user, asset, "c-1", other, dec("100"))
		Expect(err).NotTo(HaveOccurred())
		Expect(indicatorTypes(indicators)).To(Equal([]string{"NEW_ADDRESS"}))
		Expect(total).To(Equal(30))
	})

	It("scores 50 for a destination still in cooldown", func() {
		repo.whitelist[whitelistKey("u-1", "c-1", destination)].CooldownEndsAt = clk.Now().Add(time.Hour)

		indicators, total, err := service.ScoreWithdrawal(ctx, user, asset, "c-1", destination, dec("100"))
		Expect(err).NotTo(HaveOccurred())
		Expect(total).To(Equal(50))
		Expect(indicators[0].Severity).To(Equal(withdrawal.SeverityHigh))
	})

	It("scores the large-withdrawal threshold at medium", func() {
		indicators, _, err := service.ScoreWithdrawal(ctx, user, asset, "c-1", destination, dec("20000"))
		Expect(err).NotTo(HaveOccurred())
		Expect(indicatorTypes(indicators)).To(ContainElement("HIGH_AMOUNT"))
		for _, indicator := range indicators {
			if indicator.Type == "HIGH_AMOUNT" {
				Expect(indicator.Score).To(Equal(20))
			}
		}
	})

	It("escalates amounts beyond the user's own daily limit", func() {
		indicators, _, err := service.ScoreWithdrawal(ctx, user, asset, "c-1", destination, dec("60000"))
		Expect(err).NotTo(HaveOccurred())

		var highAmount, dailyLimit bool
		for _, indicator := range indicators {
			if indicator.Type == "HIGH_AMOUNT" && indicator.Score == 40 {
				highAmount = true
			}
			if indicator.Type == "DAILY_LIMIT" {
				dailyLimit = true
			}
		}
		Expect(highAmount).To(BeTrue())
		Expect(dailyLimit).To(BeTrue())
	})

	It("fires DAILY_LIMIT on cumulative 24h volume", func() {
		for i := 0; i < 2; i++ {
			repo.requests[uuid.NewString()] = &repository.WithdrawalRequest{
				ID:        uuid.NewString(),
				UserID:    "u-1",
				Amount:    dec("25000"),
				Status:    repository.WithdrawalCompleted,
				CreatedAt: clk.Now().Add(-2 * time.Hour),
			}
		}

		indicators, _, err := service.ScoreWithdrawal(ctx, user, asset, "c-1", destination, dec("5000"))
		Expect(err).NotTo(HaveOccurred())
		Expect(indicatorTypes(indicators)).To(ContainElement("DAILY_LIMIT"))
	})

	It("ignores rejected requests in the velocity window", func() {
		repo.requests["r-1"] = &repository.WithdrawalRequest{
			ID: "r-1", UserID: "u-1", Amount: dec("40000"),
			Status:    repository.WithdrawalRejected,
			CreatedAt: clk.Now().Add(-time.Hour),
		}

		indicators, _, err := service.ScoreWithdrawal(ctx, user, asset, "c-1", destination, dec("15000"))
		Expect(err).NotTo(HaveOccurred())
		Expect(indicatorTypes(indicators)).NotTo(ContainElement("DAILY_LIMIT"))
	})

	It("fires VELOCITY near and at the daily request cap", func() {
		for i := 0; i < 6; i++ {
			id := uuid.NewString()
			repo.requests[id] = &repository.WithdrawalRequest{
				ID: id, UserID: "u-1", Amount: dec("1"),
				Status:    repository.WithdrawalCompleted,
				CreatedAt: clk.Now().Add(-time.Hour),
			}
		}

		indicators, _, err := service.ScoreWithdrawal(ctx, user, asset, "c-1", destination, dec("1"))
		Expect(err).NotTo(HaveOccurred())
		var velocityScore int
		for _, indicator := range indicators {
			if indicator.Type == "VELOCITY" {
				velocityScore = indicator.Score
			}
		}
		// 7 of 10 requests: the near-cap medium rule
		Expect(velocityScore).To(Equal(20))

		for i := 0; i < 3; i++ {
			id := uuid.NewString()
			repo.requests[id] = &repository.WithdrawalRequest{
				ID: id, UserID: "u-1", Amount: dec("1"),
				Status:    repository.WithdrawalCompleted,
				CreatedAt: clk.Now().Add(-time.Hour),
			}
		}

		indicators, _, err = service.ScoreWithdrawal(ctx, user, asset, "c-1", destination, dec("1"))
		Expect(err).NotTo(HaveOccurred())
		velocityScore = 0
		for _, indicator := range indicators {
			if indicator.Type == "VELOCITY" {
				velocityScore = indicator.Score
			}
		}
		Expect(velocityScore).To(Equal(40))
	})

	It("flags young accounts and unverified emails", func() {
		user.CreatedAt = clk.Now().Add(-2 * 24 * time.Hour)
		user.EmailVerified = false

		indicators, total, err := service.ScoreWithdrawal(ctx, user, asset, "c-1", destination, dec("100"))
		Expect(err).NotTo(HaveOccurred())
		Expect(indicatorTypes(indicators)).To(ConsistOf("NEW_ACCOUNT", "UNVERIFIED_EMAIL"))
		Expect(total).To(Equal(40))
	})
})
