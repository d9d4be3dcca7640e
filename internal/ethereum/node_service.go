package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	goethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrTransient wraps provider failures so callers back off instead of
// treating the deposit or payout as failed.
var ErrTransient error = errors.New("transient rpc failure")

var ErrReceiptNotFound error = errors.New("receipt not found")

// transferTopic is keccak256("Transfer(address,address,uint256)").
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

const logChunkSize = 2000

// TransferLog is one observed ERC-20 transfer into a watched address.
type TransferLog struct {
	TxHash      string
	LogIndex    int
	BlockNumber int64
	Contract    string
	From        string
	To          string
	Value       *big.Int
}

// Receipt is the chain-client view of a mined transaction.
type Receipt struct {
	Status      uint64
	BlockNumber int64
	GasUsed     uint64
}

type NodeService struct {
	client EthClient
}

func NewNodeService(client EthClient) *NodeService {
	return &NodeService{
		client: client,
	}
}

func (s *NodeService) CurrentBlock(ctx context.Context) (int64, error) {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("get block number: %w: %w", err, ErrTransient)
	}
	return int64(head), nil
}

// FilterTransferLogs queries ERC-20 Transfer logs for the contract where the
// recipient is one of the watched addresses. The range is chunked to respect
// provider limits.
func (s *NodeService) FilterTransferLogs(ctx context.Context, contract string, watched []string, fromBlock, toBlock int64) ([]TransferLog, error) {
	if len(watched) == 0 || fromBlock > toBlock {
		return nil, nil
	}

	toTopics := make([]common.Hash, 0, len(watched))
	for _, addr := range watched {
		toTopics = append(toTopics, common.BytesToHash(common.HexToAddress(addr).Bytes()))
	}

	var transfers []TransferLog
	for start := fromBlock; start <= toBlock; start += logChunkSize {
		end := start + logChunkSize - 1
		if end > toBlock {
			end = toBlock
		}

		query := goethereum.FilterQuery{
			FromBlock: big.NewInt(start),
			ToBlock:   big.NewInt(end),
			Addresses: []common.Address{common.HexToAddress(contract)},
			Topics: [][]common.Hash{
				{transferTopic},
				nil,
				toTopics,
			},
		}

		logs, err := s.client.FilterLogs(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("filter logs [%d,%d]: %w: %w", start, end, err, ErrTransient)
		}

		for _, entry := range logs {
			transfer, ok := decodeTransfer(entry)
			if !ok {
				continue
			}
			transfers = append(transfers, transfer)
		}
	}

	return transfers, nil
}

func (s *NodeService) Receipt(ctx context.Context, txHash string) (Receipt, error) {
	receipt, err := s.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		if errors.Is(err, goethereum.NotFound) {
			return Receipt{}, ErrReceiptNotFound
		}
		return Receipt{}, fmt.Errorf("get receipt: %w: %w", err, ErrTransient)
	}

	return Receipt{
		Status:      receipt.Status,
		BlockNumber: receipt.BlockNumber.Int64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

func (s *NodeService) Balance(ctx context.Context, address string) (*big.Int, error) {
	balance, err := s.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w: %w", err, ErrTransient)
	}
	return balance, nil
}

// Signer signs a prepared transaction; implemented by the treasury key
// holder so raw keys stay out of this package.
type Signer interface {
	Address() common.Address
	Sign(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Send builds, signs and broadcasts a transfer. For a native transfer pass
// empty data and value in wei; for ERC-20 pass the contract as to and the
// encoded transfer call as data.
func (s *NodeService) Send(ctx context.Context, signer Signer, to string, value *big.Int, data []byte) (string, uint64, error) {
	nonce, err := s.client.PendingNonceAt(ctx, signer.Address())
	if err != nil {
		return "", 0, fmt.Errorf("get pending nonce: %w: %w", err, ErrTransient)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("suggest gas price: %w: %w", err, ErrTransient)
	}

	chainID, err := s.client.NetworkID(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("get network id: %w: %w", err, ErrTransient)
	}

	gasLimit := uint64(21000)
	if len(data) > 0 {
		gasLimit = 100000
	}

	toAddr := common.HexToAddress(to)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &toAddr,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := signer.Sign(tx, chainID)
	if err != nil {
		return "", 0, fmt.Errorf("sign transaction: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return "", 0, fmt.Errorf("send transaction: %w: %w", err, ErrTransient)
	}

	return signed.Hash().Hex(), nonce, nil
}

// ERC20TransferData encodes transfer(to, value).
func ERC20TransferData(to string, value *big.Int) []byte {
	selector := crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	data := make([]byte, 0, 4+32+32)
	data = append(data, selector...)
	data = append(data, common.LeftPadBytes(common.HexToAddress(to).Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(value.Bytes(), 32)...)
	return data
}

func decodeTransfer(entry types.Log) (TransferLog, bool) {
	if len(entry.Topics) != 3 || entry.Topics[0] != transferTopic {
		return TransferLog{}, false
	}

	value := new(big.Int)
	if len(entry.Data) > 0 {
		value.SetBytes(entry.Data)
	}

	return TransferLog{
		TxHash:      entry.TxHash.Hex(),
		LogIndex:    int(entry.Index),
		BlockNumber: int64(entry.BlockNumber),
		Contract:    strings.ToLower(entry.Address.Hex()),
		From:        strings.ToLower(common.BytesToAddress(entry.Topics[1].Bytes()).Hex()),
		To:          strings.ToLower(common.BytesToAddress(entry.Topics[2].Bytes()).Hex()),
		Value:       value,
	}, true
}
