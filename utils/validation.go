package utils

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/cosmos/cosmos-sdk/types/bech32"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/vitwit/walletpay/types"
)

var hexPattern = regexp.MustCompile("^[0-9a-fA-F]+$")

// Bech32 account prefixes per Cosmos network.
var cosmosPrefixes = map[types.Network]string{
	types.NetworkCosmosHub:     "cosmos",
	types.NetworkCosmosTestnet: "cosmos",
}

// ValidateAddressForNetwork checks that address is a well-formed account
// address on network.
func ValidateAddressForNetwork(address string, network types.Network) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	switch {
	case network.IsSolana():
		if _, err := solana.PublicKeyFromBase58(address); err != nil {
			return fmt.Errorf("invalid Solana address: %w", err)
		}

	case network.IsEVM():
		if !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
			return fmt.Errorf("invalid EVM address %q", address)
		}

	case network.IsCosmos():
		hrp, _, err := bech32.DecodeAndConvert(address)
		if err != nil {
			return fmt.Errorf("invalid Cosmos address: %w", err)
		}
		if want := cosmosPrefixes[network]; hrp != want {
			return fmt.Errorf("Cosmos address prefix %q, expected %q", hrp, want)
		}

	default:
		return fmt.Errorf("unsupported network for address validation: %s", network)
	}

	return nil
}

// ValidateTransactionID validates the transaction identifier format of a network.
func ValidateTransactionID(id types.TransactionID, network types.Network) error {
	s := string(id)
	if s == "" {
		return fmt.Errorf("transaction id cannot be empty")
	}

	switch {
	case network.IsSolana():
		if _, err := solana.SignatureFromBase58(s); err != nil {
			return fmt.Errorf("invalid Solana signature: %w", err)
		}

	case network.IsEVM():
		// 0x + 64 hex
		if !strings.HasPrefix(s, "0x") || len(s) != 66 || !hexPattern.MatchString(s[2:]) {
			return fmt.Errorf("invalid EVM transaction hash %q", s)
		}

	case network.IsCosmos():
		if len(s) != 64 || !hexPattern.MatchString(s) {
			return fmt.Errorf("invalid Cosmos transaction hash %q", s)
		}

	default:
		return fmt.Errorf("unsupported network for transaction id validation: %s", network)
	}

	return nil
}

// FormatBaseUnits formats an amount of base units as whole tokens.
func FormatBaseUnits(amount uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals).String()
}

// ParseTokenAmount converts a whole-token decimal string ("0.05") to base units.
// Amounts with more precision than decimals, negative or zero amounts are rejected.
func ParseTokenAmount(amount string, decimals int32) (uint64, error) {
	if amount == "" {
		return 0, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid amount format: %w", err)
	}
	if !dec.IsPositive() {
		return 0, fmt.Errorf("amount must be positive")
	}

	scaled := dec.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimals", amount, decimals)
	}

	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount %s is too large", amount)
	}
	return bi.Uint64(), nil
}
