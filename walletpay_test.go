package walletpay

import (
	"context"
	"errors"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/walletpay/catalog"
	"github.com/vitwit/walletpay/clients"
	"github.com/vitwit/walletpay/ledger"
	"github.com/vitwit/walletpay/logger"
	"github.com/vitwit/walletpay/signer"
	"github.com/vitwit/walletpay/types"
)

type testSigner struct {
	address string
	result  signer.BroadcastResult
	amounts []uint64
}

func (s *testSigner) IsAvailable() bool                { return true }
func (s *testSigner) Connect(context.Context) error    { return nil }
func (s *testSigner) Disconnect(context.Context) error { return nil }
func (s *testSigner) PublicAddress() string            { return s.address }

func (s *testSigner) SignAndBroadcast(_ context.Context, req types.TransferRequest) (signer.BroadcastResult, error) {
	s.amounts = append(s.amounts, req.Amount())
	return s.result, nil
}

type testClient struct {
	closed bool
}

func (c *testClient) Network() types.Network { return types.NetworkSolanaDevnet }

func (c *testClient) LatestCheckpoint(context.Context) (types.Checkpoint, error) {
	return types.Checkpoint{BlockHash: solana.HashFromBytes([]byte("h")).String(), ExpiryHeight: 300}, nil
}

func (c *testClient) GetBalance(context.Context, string) (uint64, error) { return 2_000_000_000, nil }

func (c *testClient) Confirm(context.Context, types.TransactionID, uint64) (types.ConfirmationResult, error) {
	return types.Confirmed(290), nil
}

func (c *testClient) Close() error {
	c.closed = true
	return nil
}

func testConfig() types.Config {
	return types.Config{
		Network:         types.NetworkSolanaDevnet,
		RPCUrl:          "http://127.0.0.1:8899",
		MerchantAddress: solana.NewWallet().PublicKey().String(),
		Prices:          map[string]uint64{"POKE_BALL": 40_000_000},
	}
}

func dialer(c *testClient) Option {
	return WithDialer(func(context.Context) (clients.NetworkClient, error) { return c, nil })
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.MerchantAddress = "0x209693Bc6afc0C5328bA36FaF03C514EF312287C"
	_, err := New(cfg, nil, ledger.NewMemoryLedger(), WithLogger(logger.NoopLogger{}))
	assert.ErrorIs(t, err, types.ErrConfig)

	cfg = testConfig()
	cfg.Prices = map[string]uint64{"SUPER_BALL": 1}
	_, err = New(cfg, nil, ledger.NewMemoryLedger(), WithLogger(logger.NoopLogger{}))
	assert.ErrorIs(t, err, types.ErrConfig)

	cfg = testConfig()
	cfg.Network = "dogecoin"
	_, err = New(cfg, nil, ledger.NewMemoryLedger(), WithLogger(logger.NoopLogger{}))
	assert.ErrorIs(t, err, types.ErrUnsupportedNetwork)
}

func TestShopWithoutWallet(t *testing.T) {
	shop, err := New(testConfig(), nil, ledger.NewMemoryLedger(), WithLogger(logger.NoopLogger{}))
	require.NoError(t, err)

	assert.ErrorIs(t, shop.Connect(context.Background()), types.ErrSignerUnavailable)
	_, err = shop.Orchestrator().PurchaseVoucher(context.Background(), catalog.VoucherRegular)
	assert.ErrorIs(t, err, types.ErrWalletNotConnected)
	assert.Zero(t, shop.Balance(context.Background()))
}

func TestShopPurchaseEndToEnd(t *testing.T) {
	s := &testSigner{
		address: solana.NewWallet().PublicKey().String(),
		result:  signer.Accepted("sig-1"),
	}
	client := &testClient{}
	l := ledger.NewMemoryLedger()
	reg := prometheus.NewRegistry()

	cfg := testConfig()
	cfg.EnableMetrics = true
	shop, err := New(cfg, s, l, dialer(client), WithRegisterer(reg), WithLogger(logger.NoopLogger{}))
	require.NoError(t, err)

	assert.Equal(t, types.DefaultCommitment, shop.Config().Commitment)
	assert.Equal(t, uint64(40_000_000), shop.Catalog().PriceOf(catalog.PokeBall))

	require.NoError(t, shop.Connect(context.Background()))
	assert.Equal(t, uint64(2_000_000_000), shop.Balance(context.Background()))

	out, err := shop.Orchestrator().PurchaseConsumable(context.Background(), catalog.PokeBall, 2)
	require.NoError(t, err)
	assert.Equal(t, types.TransactionID("sig-1"), out.TxID)
	assert.Equal(t, []uint64{80_000_000}, s.amounts)
	assert.Equal(t, 2, l.Holdings(catalog.PokeBall))

	n, err := testutil.GatherAndCount(reg, "walletpay_events_total")
	require.NoError(t, err)
	assert.Positive(t, n)

	require.NoError(t, shop.Close(context.Background()))
	assert.True(t, client.closed)
	assert.Equal(t, types.Disconnected, shop.Session().State())
}

func TestShopDeclinedPurchase(t *testing.T) {
	s := &testSigner{
		address: solana.NewWallet().PublicKey().String(),
		result:  signer.Declined(),
	}
	l := ledger.NewMemoryLedger()
	shop, err := New(testConfig(), s, l, dialer(&testClient{}), WithLogger(logger.NoopLogger{}))
	require.NoError(t, err)
	require.NoError(t, shop.Connect(context.Background()))

	_, err = shop.Orchestrator().PurchaseVoucher(context.Background(), catalog.VoucherRegular)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUserRejected))
	assert.Equal(t, types.CategoryUserDeclined, types.CategoryOf(err))
	assert.Empty(t, l.Credits())
}
