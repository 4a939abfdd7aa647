package utils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/walletpay/types"
)

func TestParseConfigDefaults(t *testing.T) {
	merchant := solana.NewWallet().PublicKey().String()
	cfg, err := ParseConfig([]byte(`
network: solana-devnet
rpcUrl: https://api.devnet.solana.com
merchantAddress: ` + merchant + `
prices:
  GREAT_BALL: 120000000
`))
	require.NoError(t, err)

	assert.Equal(t, types.NetworkSolanaDevnet, cfg.Network)
	assert.Equal(t, merchant, cfg.MerchantAddress)
	assert.Equal(t, types.DefaultCommitment, cfg.Commitment)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, uint64(types.DefaultExpiryBlocks), cfg.ExpiryBlocks)
	assert.Equal(t, types.DefaultMaxPollErrors, cfg.MaxPollErrors)
	assert.Equal(t, types.DefaultRequestTimeout, cfg.RequestTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, uint64(120_000_000), cfg.Prices["GREAT_BALL"])
}

func TestParseConfigExplicitValues(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
network: base-sepolia
rpcUrl: https://sepolia.base.org
merchantAddress: "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
pollInterval: 500ms
expiryBlocks: 20
logLevel: debug
enableMetrics: true
`))
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, uint64(20), cfg.ExpiryBlocks)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.EnableMetrics)
	assert.Empty(t, cfg.Commitment)
}

func TestParseConfigErrors(t *testing.T) {
	merchant := solana.NewWallet().PublicKey().String()
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"malformed", "network: [", types.ErrConfig},
		{"missing rpc", "network: solana-devnet\nmerchantAddress: " + merchant, types.ErrConfig},
		{"unknown network", "network: dogecoin\nrpcUrl: http://x\nmerchantAddress: " + merchant, types.ErrUnsupportedNetwork},
		{"bad commitment", "network: solana-devnet\nrpcUrl: http://x\ncommitment: soon\nmerchantAddress: " + merchant, types.ErrConfig},
		{"bad log level", "network: solana-devnet\nrpcUrl: http://x\nlogLevel: loud\nmerchantAddress: " + merchant, types.ErrConfig},
		{"merchant on wrong chain", "network: polygon\nrpcUrl: http://x\nmerchantAddress: " + merchant, types.ErrConfig},
		{"cosmos without grpc", "network: cosmoshub-4\nrpcUrl: http://x\nmerchantAddress: cosmos1abc", types.ErrConfig},
		{"zero price", "network: solana-devnet\nrpcUrl: http://x\nmerchantAddress: " + merchant + "\nprices:\n  POKE_BALL: 0", types.ErrConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shop.yaml")
	merchant := solana.NewWallet().PublicKey().String()
	require.NoError(t, os.WriteFile(path, []byte("network: solana-localnet\nrpcUrl: http://127.0.0.1:8899\nmerchantAddress: "+merchant+"\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, types.NetworkSolanaLocalnet, cfg.Network)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestSolanaPrivateKey(t *testing.T) {
	w := solana.NewWallet()

	key, err := SolanaPrivateKey(w.PrivateKey.String())
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), key.PublicKey())

	ints := make([]int, len(w.PrivateKey))
	for i, b := range w.PrivateKey {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	key, err = SolanaPrivateKey(path)
	require.NoError(t, err)
	assert.Equal(t, w.PublicKey(), key.PublicKey())

	_, err = SolanaPrivateKey("not a key")
	assert.Error(t, err)
}

func TestEVMKeyHelpers(t *testing.T) {
	// Well-known development key (hardhat account #0).
	key, err := EVMPrivateKeyFromHex("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", EVMAddressFromKey(key).Hex())

	_, err = EVMPrivateKeyFromHex("zz")
	assert.Error(t, err)
}
