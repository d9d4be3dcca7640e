package ethereum_test

import (
	"context"
	"errors"
	"math/big"

	"stakevault/internal/ethereum"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

type fakeEthClient struct {
	head       uint64
	headErr    error
	queries    []goethereum.FilterQuery
	logs       []types.Log
	logsErr    error
	receipt    *types.Receipt
	receiptErr error
}

func (f *fakeEthClient) BlockNumber(ctx context.Context) (uint64, error) {
	return f.head, f.headErr
}

func (f *fakeEthClient) FilterLogs(ctx context.Context, q goethereum.FilterQuery) ([]types.Log, error) {
	f.queries = append(f.queries, q)
	return f.logs, f.logsErr
}

func (f *fakeEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return f.receipt, f.receiptErr
}

func (f *fakeEthClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (f *fakeEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeEthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeEthClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return nil
}

func (f *fakeEthClient) NetworkID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func transferLog(to string, value int64, logIndex uint) types.Log {
	return types.Log{
		Address:     common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"),
		Topics:      []common.Hash{transferTopic, common.HexToHash("0x01"), common.BytesToHash(common.HexToAddress(to).Bytes())},
		Data:        big.NewInt(value).FillBytes(make([]byte, 32)),
		BlockNumber: 120,
		TxHash:      common.HexToHash("0xabc"),
		Index:       logIndex,
	}
}

var _ = Describe("NodeService", func() {
	var (
		client  *fakeEthClient
		service *ethereum.NodeService
		ctx     context.Context
	)

	const watched = "0x2222222222222222222222222222222222222222"
	const contract = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"

	BeforeEach(func() {
		client = &fakeEthClient{head: 150}
		service = ethereum.NewNodeService(client)
		ctx = context.Background()
	})

	Describe("FilterTransferLogs", func() {
		It("chunks large ranges to respect provider limits", func() {
			_, err := service.FilterTransferLogs(ctx, contract, []string{watched}, 0, 4999)
			Expect(err).NotTo(HaveOccurred())
			Expect(client.queries).To(HaveLen(3))
			Expect(client.queries[0].FromBlock.Int64()).To(Equal(int64(0)))
			Expect(client.queries[0].ToBlock.Int64()).To(Equal(int64(1999)))
			Expect(client.queries[2].ToBlock.Int64()).To(Equal(int64(4999)))
		})

		It("decodes transfers into lowered addresses and big-int values", func() {
			client.logs = []types.Log{transferLog(watched, 1500, 3)}

			transfers, err := service.FilterTransferLogs(ctx, contract, []string{watched}, 100, 150)
			Expect(err).NotTo(HaveOccurred())
			Expect(transfers).To(HaveLen(1))
			Expect(transfers[0].To).To(Equal(watched))
			Expect(transfers[0].Value.Int64()).To(Equal(int64(1500)))
			Expect(transfers[0].LogIndex).To(Equal(3))
			Expect(transfers[0].BlockNumber).To(Equal(int64(120)))
		})

		It("skips logs that are not Transfer events", func() {
			bogus := transferLog(watched, 10, 0)
			bogus.Topics = bogus.Topics[:1]
			client.logs = []types.Log{bogus}

			transfers, err := service.FilterTransferLogs(ctx, contract, []string{watched}, 100, 150)
			Expect(err).NotTo(HaveOccurred())
			Expect(transfers).To(BeEmpty())
		})

		It("classifies provider failures as transient", func() {
			client.logsErr = errors.New("rate limited")

			_, err := service.FilterTransferLogs(ctx, contract, []string{watched}, 100, 150)
			Expect(errors.Is(err, ethereum.ErrTransient)).To(BeTrue())
		})

		It("returns nothing for an empty watch set", func() {
			transfers, err := service.FilterTransferLogs(ctx, contract, nil, 100, 150)
			Expect(err).NotTo(HaveOccurred())
			Expect(transfers).To(BeEmpty())
			Expect(client.queries).To(BeEmpty())
		})
	})

	Describe("Receipt", func() {
		It("maps a missing receipt to ErrReceiptNotFound", func() {
			client.receiptErr = goethereum.NotFound

			_, err := service.Receipt(ctx, "0xabc")
			Expect(err).To(MatchError(ethereum.ErrReceiptNotFound))
		})

		It("returns status, block and gas", func() {
			client.receipt = &types.Receipt{
				Status:      1,
				BlockNumber: big.NewInt(120),
				GasUsed:     21000,
			}

			receipt, err := service.Receipt(ctx, "0xabc")
			Expect(err).NotTo(HaveOccurred())
			Expect(receipt.Status).To(Equal(uint64(1)))
			Expect(receipt.BlockNumber).To(Equal(int64(120)))
			Expect(receipt.GasUsed).To(Equal(uint64(21000)))
		})
	})

	Describe("ERC20TransferData", func() {
		It("encodes the selector, recipient and value", func() {
			data := ethereum.ERC20TransferData(watched, big.NewInt(1500))
			Expect(data).To(HaveLen(4 + 32 + 32))

			selector := crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
			Expect(data[:4]).To(Equal(selector))
			Expect(common.BytesToAddress(data[4:36]).Hex()).To(Equal(common.HexToAddress(watched).Hex()))
			Expect(new(big.Int).SetBytes(data[36:]).Int64()).To(Equal(int64(1500)))
		})
	})
})
