package staking_test

import (
	"context"
	"time"

	"stakevault/internal/domain"
	"stakevault/internal/ledger"
	"stakevault/internal/repository"
	"stakevault/internal/staking"
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

var _ = Describe("RewardDelta", func() {
	It("accrues roughly apr percent over a year of simple interest", func() {
		delta := staking.RewardDelta(dec("1"), dec("10"), 365*24*time.Hour)

		diff := delta.Sub(dec("0.1")).Abs()
		Expect(diff.LessThan(dec("0.0000000001"))).To(BeTrue(),
			"expected ~0.1, got %s", delta.String())
	})

	It("is zero for sub-second windows", func() {
		Expect(staking.RewardDelta(dec("100"), dec("10"), 500*time.Millisecond).IsZero()).To(BeTrue())
	})
})

var _ = Describe("Engine", func() {
	var (
		repo     *fakeRepo
		poster   *fakePoster
		notifier *fakeNotifier
		clk      *clock.Fixed
		engine   *staking.Engine
		ctx      context.Context

		pool  *repository.Pool
		asset *repository.Asset
	)

	BeforeEach(func() {
		repo = newFakeRepo()
		poster = &fakePoster{available: dec("10")}
		notifier = &fakeNotifier{}
		clk = clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		engine = staking.NewEngine(zap.NewNop().Sugar(), repo, poster, notifier, clk)
		ctx = context.Background()

		asset = &repository.Asset{ID: "asset-1", ChainID: "chain-1", IsActive: true, Decimals: 18}
		repo.assets[asset.ID] = asset

		pool = &repository.Pool{
			ID:         "pool-1",
			AssetID:    asset.ID,
			Type:       repository.PoolFlexible,
			CurrentApr: dec("10"),
			MinStake:   dec("0.5"),
			IsActive:   true,
		}
		repo.pools[pool.ID] = pool
	})

	Describe("CreateStake", func() {
		It("opens an active position and posts STAKE_CREATED", func() {
			position, err := engine.CreateStake(ctx, "u-1", pool.ID, dec("1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(position.Status).To(Equal(repository.StakeActive))
			Expect(position.LockedUntil).To(BeNil())

			Expect(repo.pools[pool.ID].TotalStaked).To(eqDec("1"))
			Expect(poster.byType(ledger.EntryStakeCreated)).To(HaveLen(1))
		})

		It("locks fixed pools for lockDays", func() {
			pool.Type = repository.PoolFixed
			pool.LockDays = 30

			position, err := engine.CreateStake(ctx, "u-1", pool.ID, dec("1"))
			Expect(err).NotTo(HaveOccurred())
			Expect(position.LockedUntil).NotTo(BeNil())
			Expect(*position.LockedUntil).To(Equal(clk.Now().Add(30 * 24 * time.Hour)))
		})

		It("refuses inactive pools", func() {
			pool.IsActive = false

			_, err := engine.CreateStake(ctx, "u-1", pool.ID, dec("1"))
			domainErr, ok := domain.AsDomainError(err)
			Expect(ok).To(BeTrue())
			Expect(domainErr.Code).To(Equal(domain.CodePoolInactive))
		})

		It("refuses stakes below the pool minimum", func() {
			_, err := engine.CreateStake(ctx, "u-1", pool.ID, dec("0.1"))
			domainErr, ok := domain.AsDomainError(err)
			Expect(ok).To(BeTrue())
			Expect(domainErr.Code).To(Equal(domain.CodeStakeTooSmall))
		})

		It("refuses stakes that would exceed capacity", func() {
			capacity := dec("1.5")
			pool.TotalCapacity = &capacity
			pool.TotalStaked = dec("1")

			_, err := engine.CreateStake(ctx, "u-1", pool.ID, dec("1"))
			domainErr, ok := domain.AsDomainError(err)
			Expect(ok).To(BeTrue())
			Expect(domainErr.Code).To(Equal(domain.CodePoolCapacity))
		})

		It("refuses stakes beyond the available balance", func() {
			poster.available = dec("0.7")

			_, err := engine.CreateStake(ctx, "u-1", pool.ID, dec("1"))
			domainErr, ok := domain.AsDomainError(err)
			Expect(ok).To(BeTrue())
			Expect(domainErr.Code).To(Equal(domain.CodeInsufficientBalance))
		})
	})

	Describe("Unstake", func() {
		var position repository.StakePosition

		BeforeEach(func() {
			var err error
			position, err = engine.CreateStake(ctx, "u-1", pool.ID, dec("1"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("refuses while the lock is in force", func() {
			lockedUntil := clk.Now().Add(25 * 24 * time.Hour)
			repo.positions[position.ID].LockedUntil = &lockedUntil

			_, err := engine.Unstake(ctx, "u-1", position.ID)
			domainErr, ok := domain.AsDomainError(err)
			Expect(ok).To(BeTrue())
			Expect(domainErr.Code).To(Equal(domain.CodeStakeLocked))
			Expect(repo.positions[position.ID].Status).To(Equal(repository.StakeActive))
		})

		It("enters cooldown when the pool requires one", func() {
			pool.CooldownHours = 24

			outcome, err := engine.Unstake(ctx, "u-1", position.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Status).To(Equal(repository.StakeUnstaking))
			Expect(outcome.CooldownEndsAt).NotTo(BeNil())
			Expect(*outcome.CooldownEndsAt).To(Equal(clk.Now().Add(24 * time.Hour)))
		})

		It("finalizes immediately without cooldown, crediting principal plus rewards", func() {
			clk.Advance(365 * 24 * time.Hour)

			outcome, err := engine.Unstake(ctx, "u-1", position.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome.Status).To(Equal(repository.StakeCompleted))
			Expect(outcome.Principal).To(eqDec("1"))
			Expect(outcome.Rewards.GreaterThan(dec("0.099"))).To(BeTrue())
			Expect(outcome.TotalReturned).To(Equal(outcome.Principal.Add(outcome.Rewards)))

			Expect(repo.pools[pool.ID].TotalStaked).To(eqDec("0"))
			Expect(poster.byType(ledger.EntryUnstakeCompleted)).To(HaveLen(1))
		})

		It("keeps accruing during cooldown and completes on sweep", func() {
			pool.CooldownHours = 24

			_, err := engine.Unstake(ctx, "u-1", position.ID)
			Expect(err).NotTo(HaveOccurred())

			clk.Advance(25 * time.Hour)
			engine.SweepCooldowns(ctx)

			final := repo.positions[position.ID]
			Expect(final.Status).To(Equal(repository.StakeCompleted))

			unstakes := poster.byType(ledger.EntryUnstakeCompleted)
			Expect(unstakes).To(HaveLen(1))
			// 25 hours of accrual rode along with the principal
			Expect(unstakes[0].Amount.GreaterThan(dec("1"))).To(BeTrue())
			Expect(notifier.sent).To(ContainElement("UNSTAKE_COMPLETED"))
		})
	})

	Describe("ClaimRewards", func() {
		It("settles accrued rewards and zeroes the counter", func() {
			position, err := engine.CreateStake(ctx, "u-1", pool.ID, dec("1"))
			Expect(err).NotTo(HaveOccurred())

			clk.Advance(365 * 24 * time.Hour)

			claimed, err := engine.ClaimRewards(ctx, "u-1", position.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed.GreaterThan(dec("0.099"))).To(BeTrue())
			Expect(claimed.LessThan(dec("0.101"))).To(BeTrue())

			Expect(repo.positions[position.ID].RewardsAccrued.IsZero()).To(BeTrue())
			Expect(poster.byType(ledger.EntryRewardClaimed)).To(HaveLen(1))
		})

		It("claims nothing when nothing accrued", func() {
			position, err := engine.CreateStake(ctx, "u-1", pool.ID, dec("1"))
			Expect(err).NotTo(HaveOccurred())

			claimed, err := engine.ClaimRewards(ctx, "u-1", position.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(claimed.IsZero()).To(BeTrue())
		})

		It("hides other users' positions", func() {
			position, err := engine.CreateStake(ctx, "u-1", pool.ID, dec("1"))
			Expect(err).NotTo(HaveOccurred())

			_, err = engine.ClaimRewards(ctx, "u-2", position.ID)
			Expect(err).To(MatchError(repository.ErrPositionNotFound))
		})
	})

	Describe("EffectiveApr", func() {
		It("prefers the active schedule row over the display cache", func() {
			repo.schedules = append(repo.schedules, repository.AprSchedule{
				PoolID:        pool.ID,
				Apr:           dec("12"),
				EffectiveFrom: clk.Now().Add(-time.Hour),
			})

			apr, err := engine.EffectiveApr(ctx, *pool, clk.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(apr).To(eqDec("12"))
		})

		It("falls back to the pool cache when no schedule covers the instant", func() {
			apr, err := engine.EffectiveApr(ctx, *pool, clk.Now())
			Expect(err).NotTo(HaveOccurred())
			Expect(apr).To(eqDec("10"))
		})
	})
})
