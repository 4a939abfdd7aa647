package utils

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

// Key helpers for the local development signers. Production deployments sign
// in the player's own wallet and never hand keys to this library.

// EVMPrivateKeyFromHex creates a private key from hex string
func EVMPrivateKeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid EVM private key: %w", err)
	}
	return key, nil
}

// EVMAddressFromKey derives the account address of an EVM private key.
func EVMAddressFromKey(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// SolanaPrivateKey accepts either a base58 secret key or the path of a
// solana-keygen JSON file.
func SolanaPrivateKey(keyOrPath string) (solana.PrivateKey, error) {
	if strings.HasSuffix(keyOrPath, ".json") {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(keyOrPath)
		if err != nil {
			return nil, fmt.Errorf("load keygen file: %w", err)
		}
		return key, nil
	}

	key, err := solana.PrivateKeyFromBase58(keyOrPath)
	if err != nil {
		return nil, fmt.Errorf("invalid Solana private key: %w", err)
	}
	return key, nil
}
