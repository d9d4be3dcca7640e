package hdwallet

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// HDWallet derives platform deposit addresses along the BIP44 path
// m/44'/60'/0'/0/index. The master seed never leaves this package.
type HDWallet struct {
	masterKey *hdkeychain.ExtendedKey
}

func New(mnemonic string) (*HDWallet, error) {
	if mnemonic == "" {
		return nil, errors.New("mnemonic cannot be empty")
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("mnemonic is not valid")
	}

	seed := bip39.NewSeed(mnemonic, "")
	extendKey, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("new master key: %w", err)
	}

	return &HDWallet{masterKey: extendKey}, nil
}

// DeriveAddress returns the lower-cased Ethereum address and the derivation
// path for the given index.
func (w *HDWallet) DeriveAddress(index uint32) (string, string, error) {
	key, err := w.deriveKey(index)
	if err != nil {
		return "", "", err
	}

	privKey, err := key.ECPrivKey()
	if err != nil {
		return "", "", fmt.Errorf("derive private key: %w", err)
	}

	address := crypto.PubkeyToAddress(privKey.ToECDSA().PublicKey)
	path := fmt.Sprintf("m/44'/60'/0'/0/%d", index)

	return strings.ToLower(address.Hex()), path, nil
}

// SignTx signs an Ethereum transaction with the key at the given index.
func (w *HDWallet) SignTx(index uint32, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	key, err := w.deriveKey(index)
	if err != nil {
		return nil, err
	}

	privKey, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("derive private key: %w", err)
	}

	signer := types.LatestSignerForChainID(chainID)
	signed, err := types.SignTx(tx, signer, privKey.ToECDSA())
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	return signed, nil
}

func (w *HDWallet) deriveKey(index uint32) (*hdkeychain.ExtendedKey, error) {
	// BIP44: m / 44' / 60' / 0' / 0 / index
	path := []uint32{
		44 + hdkeychain.HardenedKeyStart,
		60 + hdkeychain.HardenedKeyStart,
		0 + hdkeychain.HardenedKeyStart,
		0,
		index,
	}

	key := w.masterKey
	var err error
	for _, idx := range path {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("derive path step %d: %w", idx, err)
		}
	}

	return key, nil
}

// AddressOf is a helper for callers that hold raw private keys (treasury
// wallets) rather than derivation indexes.
func AddressOf(privKeyHex string) (string, error) {
	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(privKeyHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("parse private key: %w", err)
	}
	return strings.ToLower(crypto.PubkeyToAddress(privKey.PublicKey).Hex()), nil
}
