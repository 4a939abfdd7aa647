package clients

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/client/grpc/tmservice"
	"github.com/cosmos/cosmos-sdk/codec"
	codectypes "github.com/cosmos/cosmos-sdk/codec/types"
	"github.com/cosmos/cosmos-sdk/std"
	txn "github.com/cosmos/cosmos-sdk/types/tx"
	authtx "github.com/cosmos/cosmos-sdk/x/auth/tx"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/vitwit/walletpay/logger"
	"github.com/vitwit/walletpay/types"
)

type cosmosBlocks interface {
	GetLatestBlock(ctx context.Context, in *tmservice.GetLatestBlockRequest, opts ...grpc.CallOption) (*tmservice.GetLatestBlockResponse, error)
}

type cosmosBank interface {
	Balance(ctx context.Context, in *banktypes.QueryBalanceRequest, opts ...grpc.CallOption) (*banktypes.QueryBalanceResponse, error)
}

type cosmosTxs interface {
	GetTx(ctx context.Context, in *txn.GetTxRequest, opts ...grpc.CallOption) (*txn.GetTxResponse, error)
}

// CosmosClient queries a Cosmos SDK node over gRPC. Checkpoints expire
// expiryBlocks after the block they were taken at; transfers carry the
// expiry as their timeout height so the chain enforces it.
type CosmosClient struct {
	network      types.Network
	grpcURL      string
	denom        string
	expiryBlocks uint64

	conn   *grpc.ClientConn
	blocks cosmosBlocks
	bank   cosmosBank
	txs    cosmosTxs

	poll   poller
	closed atomic.Bool
}

var _ NetworkClient = (*CosmosClient)(nil)

// DialCosmos opens a gRPC connection to grpcURL. Balances are read in denom.
func DialCosmos(network types.Network, grpcURL, denom string, expiryBlocks uint64, poll PollConfig, log logger.Logger) (*CosmosClient, error) {
	conn, err := grpc.NewClient(grpcURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("gRPC connection failed: %v", err)
	}

	c := newCosmosClient(network, grpcURL, denom, expiryBlocks,
		tmservice.NewServiceClient(conn), banktypes.NewQueryClient(conn), txn.NewServiceClient(conn), poll, log)
	c.conn = conn
	return c, nil
}

func newCosmosClient(
	network types.Network,
	grpcURL, denom string,
	expiryBlocks uint64,
	blocks cosmosBlocks,
	bank cosmosBank,
	txs cosmosTxs,
	poll PollConfig,
	log logger.Logger,
) *CosmosClient {
	if expiryBlocks == 0 {
		expiryBlocks = types.DefaultExpiryBlocks
	}
	return &CosmosClient{
		network:      network,
		grpcURL:      grpcURL,
		denom:        denom,
		expiryBlocks: expiryBlocks,
		blocks:       blocks,
		bank:         bank,
		txs:          txs,
		poll: poller{
			network: network,
			cfg:     poll.withDefaults(network),
			log:     logger.OrNoop(log),
		},
	}
}

// Conn is the underlying gRPC connection, shared with broadcasting signers.
// It is nil for clients not created by DialCosmos.
func (c *CosmosClient) Conn() *grpc.ClientConn { return c.conn }

func (c *CosmosClient) Network() types.Network { return c.network }

func (c *CosmosClient) Denom() string { return c.denom }

func (c *CosmosClient) latestBlock(ctx context.Context) (height uint64, hash string, err error) {
	resp, err := c.blocks.GetLatestBlock(ctx, &tmservice.GetLatestBlockRequest{})
	if err != nil {
		return 0, "", errors.Wrap(err, "get latest block")
	}
	if resp.GetSdkBlock() == nil {
		return 0, "", errors.New("get latest block: empty response")
	}

	h := resp.GetSdkBlock().GetHeader().Height
	if h < 0 {
		return 0, "", errors.Errorf("get latest block: negative height %d", h)
	}
	return uint64(h), strings.ToUpper(hex.EncodeToString(resp.GetBlockId().GetHash())), nil
}

func (c *CosmosClient) LatestCheckpoint(ctx context.Context) (types.Checkpoint, error) {
	if c.closed.Load() {
		return types.Checkpoint{}, ErrClientClosed
	}

	height, hash, err := c.latestBlock(ctx)
	if err != nil {
		return types.Checkpoint{}, err
	}
	if hash == "" {
		return types.Checkpoint{}, errors.New("get latest block: missing block id")
	}

	return types.Checkpoint{BlockHash: hash, ExpiryHeight: height + c.expiryBlocks}, nil
}

// GetBalance returns the bank balance of address in the client's denom,
// saturated at math.MaxUint64.
func (c *CosmosClient) GetBalance(ctx context.Context, address string) (uint64, error) {
	if c.closed.Load() {
		return 0, ErrClientClosed
	}

	resp, err := c.bank.Balance(ctx, &banktypes.QueryBalanceRequest{Address: address, Denom: c.denom})
	if err != nil {
		return 0, errors.Wrap(err, "query balance")
	}
	if resp.GetBalance() == nil || resp.GetBalance().Amount.IsNil() {
		return 0, nil
	}

	amt := resp.GetBalance().Amount
	if amt.IsNegative() {
		return 0, errors.Errorf("query balance: negative amount %s", amt)
	}
	if !amt.IsUint64() {
		return math.MaxUint64, nil
	}
	return amt.Uint64(), nil
}

func (c *CosmosClient) Confirm(ctx context.Context, txID types.TransactionID, expiryHeight uint64) (types.ConfirmationResult, error) {
	if c.closed.Load() {
		return types.ConfirmationResult{}, ErrClientClosed
	}

	hash := strings.ToUpper(strings.TrimPrefix(txID.String(), "0x"))

	txStatus := func(ctx context.Context) (types.ConfirmationResult, bool, error) {
		resp, err := c.txs.GetTx(ctx, &txn.GetTxRequest{Hash: hash})
		if status.Code(err) == codes.NotFound {
			return types.ConfirmationResult{}, false, nil
		}
		if err != nil {
			return types.ConfirmationResult{}, false, errors.Wrap(err, "get tx")
		}

		txResp := resp.GetTxResponse()
		if txResp == nil {
			return types.ConfirmationResult{}, false, nil
		}

		height := uint64(0)
		if txResp.Height > 0 {
			height = uint64(txResp.Height)
		}
		if txResp.Code != 0 {
			return types.Failed(fmt.Sprintf("%s: code %d: %s", ReasonTransactionError, txResp.Code, txResp.RawLog), height), true, nil
		}
		return types.Confirmed(height), true, nil
	}

	height := func(ctx context.Context) (uint64, error) {
		h, _, err := c.latestBlock(ctx)
		return h, err
	}

	return c.poll.wait(ctx, txID, expiryHeight, txStatus, height)
}

func (c *CosmosClient) Close() error {
	if c.closed.Swap(true) || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// CosmosTxConfig returns a TxConfig able to decode standard bank transfers.
func CosmosTxConfig() client.TxConfig {
	interfaceRegistry := codectypes.NewInterfaceRegistry()
	std.RegisterInterfaces(interfaceRegistry)
	banktypes.RegisterInterfaces(interfaceRegistry)

	marshaler := codec.NewProtoCodec(interfaceRegistry)
	return authtx.NewTxConfig(marshaler, authtx.DefaultSignModes)
}
