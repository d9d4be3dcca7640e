package payout_test

import (
	"context"
	"errors"
	"time"

	"stakevault/internal/ethereum"
	"stakevault/internal/ledger"
	"stakevault/internal/payout"
	"stakevault/internal/repository"
	"stakevault/pkg/cipher"
	"stakevault/pkg/clock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// well-known throwaway development key, never funded
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var _ = Describe("Executor", func() {
	var (
		repo     *fakeRepo
		chain    *fakeChain
		poster   *fakePoster
		enqueuer *fakeEnqueuer
		notifier *fakeNotifier
		executor *payout.Executor
		ctx      context.Context

		request *repository.WithdrawalRequest
	)

	BeforeEach(func() {
		repo = newFakeRepo()
		chain = &fakeChain{head: 100, receipts: map[string]ethereum.Receipt{}, txHash: "0xpayout", nonce: 7}
		poster = newFakePoster()
		enqueuer = &fakeEnqueuer{}
		notifier = &fakeNotifier{}
		ctx = context.Background()

		sealer, err := cipher.NewSealer([]byte("test-master-key"))
		Expect(err).NotTo(HaveOccurred())
		sealedKey, err := sealer.Seal([]byte(testKeyHex))
		Expect(err).NotTo(HaveOccurred())

		repo.chains["c-1"] = &repository.Chain{ID: "c-1", Slug: "ethereum", ConfirmationsRequired: 12}
		usdc := "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
		repo.assets["a-1"] = &repository.Asset{
			ID: "a-1", ChainID: "c-1", Decimals: 18, ContractAddress: &usdc, IsActive: true,
		}
		repo.treasury["c-1"] = &repository.TreasuryWallet{
			ID: "t-1", ChainID: "c-1", EncryptedPrivateKey: sealedKey, IsActive: true,
		}

		request = &repository.WithdrawalRequest{
			ID:                 "w-1",
			UserID:             "u-1",
			AssetID:            "a-1",
			ChainID:            "c-1",
			Amount:             decimal.RequireFromString("1"),
			Fee:                decimal.RequireFromString("0.001"),
			NetAmount:          decimal.RequireFromString("0.999"),
			DestinationAddress: "0x1111111111111111111111111111111111111111",
			Status:             repository.WithdrawalApproved,
		}
		repo.requests[request.ID] = request

		clk := clock.NewFixed(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
		executor = payout.NewExecutor(zap.NewNop().Sugar(), repo,
			map[string]payout.ChainService{"c-1": chain},
			sealer, poster, enqueuer, notifier, clk)
	})

	Describe("ProcessPayout", func() {
		It("broadcasts an ERC-20 transfer and moves the request to SENT", func() {
			Expect(executor.ProcessPayout(ctx, "w-1")).To(Succeed())

			Expect(request.Status).To(Equal(repository.WithdrawalSent))
			// the on-chain call targets the token contract, not the user
			Expect(chain.sent).To(Equal([]string{"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"}))

			payoutTx := repo.payoutTxs["w-1"]
			Expect(payoutTx).NotTo(BeNil())
			Expect(payoutTx.Status).To(Equal(repository.PayoutSent))
			Expect(*payoutTx.TxHash).To(Equal("0xpayout"))
			Expect(*payoutTx.Nonce).To(Equal(uint64(7)))

			Expect(enqueuer.checks).To(Equal([]string{"w-1"}))
		})

		It("skips requests that are no longer approved", func() {
			request.Status = repository.WithdrawalCompleted

			Expect(executor.ProcessPayout(ctx, "w-1")).To(Succeed())
			Expect(chain.sent).To(BeEmpty())
			Expect(request.Status).To(Equal(repository.WithdrawalCompleted))
		})

		It("fails the request when no treasury wallet exists", func() {
			delete(repo.treasury, "c-1")

			Expect(executor.ProcessPayout(ctx, "w-1")).To(Succeed())
			Expect(request.Status).To(Equal(repository.WithdrawalFailed))
			Expect(notifier.sent).To(ContainElement("WITHDRAWAL_FAILED"))
		})

		It("fails the request when the broadcast errors", func() {
			chain.sendErr = errors.New("nonce too low")

			Expect(executor.ProcessPayout(ctx, "w-1")).To(Succeed())
			Expect(request.Status).To(Equal(repository.WithdrawalFailed))

			payoutTx := repo.payoutTxs["w-1"]
			Expect(payoutTx).NotTo(BeNil())
			Expect(payoutTx.Status).To(Equal(repository.PayoutFailed))
			Expect(payoutTx.ErrorMessage).To(ContainSubstring("nonce too low"))
		})
	})

	Describe("CheckPayoutStatus", func() {
		BeforeEach(func() {
			Expect(executor.ProcessPayout(ctx, "w-1")).To(Succeed())
		})

		It("asks for a retry while the receipt is missing", func() {
			err := executor.CheckPayoutStatus(ctx, "w-1")
			Expect(err).To(MatchError(payout.ErrRetryLater))
		})

		It("fails the request on a reverted transaction", func() {
			chain.receipts["0xpayout"] = ethereum.Receipt{Status: 0, BlockNumber: 90}

			Expect(executor.CheckPayoutStatus(ctx, "w-1")).To(Succeed())
			Expect(request.Status).To(Equal(repository.WithdrawalFailed))
			Expect(repo.payoutTxs["w-1"].Status).To(Equal(repository.PayoutFailed))
			Expect(poster.postings).To(BeEmpty())
		})

		It("tracks CONFIRMING below the threshold and retries", func() {
			chain.head = 95
			chain.receipts["0xpayout"] = ethereum.Receipt{Status: 1, BlockNumber: 90}

			err := executor.CheckPayoutStatus(ctx, "w-1")
			Expect(err).To(MatchError(payout.ErrRetryLater))
			Expect(request.Status).To(Equal(repository.WithdrawalConfirming))
			Expect(repo.payoutTxs["w-1"].Confirmations).To(Equal(6))
		})

		It("completes with a single WITHDRAWAL_PAID once confirmed", func() {
			chain.head = 101 // 101 - 90 + 1 = 12
			chain.receipts["0xpayout"] = ethereum.Receipt{Status: 1, BlockNumber: 90, GasUsed: 52000}

			Expect(executor.CheckPayoutStatus(ctx, "w-1")).To(Succeed())
			Expect(request.Status).To(Equal(repository.WithdrawalCompleted))
			Expect(repo.payoutTxs["w-1"].Status).To(Equal(repository.PayoutConfirmed))

			paid := poster.postings
			Expect(paid).To(HaveLen(1))
			Expect(paid[0].EntryType).To(Equal(ledger.EntryWithdrawalPaid))
			Expect(paid[0].Amount).To(Equal(request.Amount))
			Expect(notifier.sent).To(ContainElement("WITHDRAWAL_COMPLETED"))

			// a replayed check is a no-op on a terminal request
			Expect(executor.CheckPayoutStatus(ctx, "w-1")).To(Succeed())
			Expect(poster.postings).To(HaveLen(1))
		})
	})
})
