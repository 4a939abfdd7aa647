package clients

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync/atomic"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/vitwit/walletpay/logger"
	"github.com/vitwit/walletpay/types"
)

// evmRPC is the subset of *ethclient.Client used by EVMClient.
type evmRPC interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// EVMClient reads native balances and receipts from an EVM JSON-RPC node.
// EVM transactions carry no blockhash expiry, so checkpoints expire
// expiryBlocks after the head they were taken at. A timeout on these networks
// does not prove the transaction can no longer land.
type EVMClient struct {
	network      types.Network
	rpcURL       string
	client       evmRPC
	expiryBlocks uint64
	poll         poller
	closed       atomic.Bool
}

var _ NetworkClient = (*EVMClient)(nil)

// DialEVM connects to the JSON-RPC endpoint at rpcURL.
func DialEVM(ctx context.Context, network types.Network, rpcURL string, expiryBlocks uint64, poll PollConfig, log logger.Logger) (*EVMClient, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}
	return newEVMClient(network, rpcURL, client, expiryBlocks, poll, log), nil
}

func newEVMClient(network types.Network, rpcURL string, client evmRPC, expiryBlocks uint64, poll PollConfig, log logger.Logger) *EVMClient {
	if expiryBlocks == 0 {
		expiryBlocks = types.DefaultExpiryBlocks
	}
	return &EVMClient{
		network:      network,
		rpcURL:       rpcURL,
		client:       client,
		expiryBlocks: expiryBlocks,
		poll: poller{
			network: network,
			cfg:     poll.withDefaults(network),
			log:     logger.OrNoop(log),
		},
	}
}

func (e *EVMClient) Network() types.Network { return e.network }

func (e *EVMClient) LatestCheckpoint(ctx context.Context) (types.Checkpoint, error) {
	if e.closed.Load() {
		return types.Checkpoint{}, ErrClientClosed
	}

	head, err := e.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return types.Checkpoint{}, errors.Wrap(err, "get latest header")
	}
	if head == nil || head.Number == nil {
		return types.Checkpoint{}, errors.New("get latest header: empty response")
	}

	return types.Checkpoint{
		BlockHash:    head.Hash().Hex(),
		ExpiryHeight: head.Number.Uint64() + e.expiryBlocks,
	}, nil
}

// GetBalance returns the wei balance of address, saturated at math.MaxUint64.
func (e *EVMClient) GetBalance(ctx context.Context, address string) (uint64, error) {
	if e.closed.Load() {
		return 0, ErrClientClosed
	}
	if !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
		return 0, errors.Errorf("invalid address %s", address)
	}

	bal, err := e.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return 0, errors.Wrap(err, "get balance")
	}
	if !bal.IsUint64() {
		return math.MaxUint64, nil
	}
	return bal.Uint64(), nil
}

func (e *EVMClient) Confirm(ctx context.Context, txID types.TransactionID, expiryHeight uint64) (types.ConfirmationResult, error) {
	if e.closed.Load() {
		return types.ConfirmationResult{}, ErrClientClosed
	}

	hash := common.HexToHash(txID.String())

	status := func(ctx context.Context) (types.ConfirmationResult, bool, error) {
		receipt, err := e.client.TransactionReceipt(ctx, hash)
		if errors.Is(err, ethereum.NotFound) {
			return types.ConfirmationResult{}, false, nil
		}
		if err != nil {
			return types.ConfirmationResult{}, false, errors.Wrap(err, "get transaction receipt")
		}

		var height uint64
		if receipt.BlockNumber != nil {
			height = receipt.BlockNumber.Uint64()
		}
		if receipt.Status != ethtypes.ReceiptStatusSuccessful {
			return types.Failed(ReasonTransactionReverted, height), true, nil
		}
		return types.Confirmed(height), true, nil
	}

	height := func(ctx context.Context) (uint64, error) {
		n, err := e.client.BlockNumber(ctx)
		return n, errors.Wrap(err, "get block number")
	}

	return e.poll.wait(ctx, txID, expiryHeight, status, height)
}

func (e *EVMClient) Close() error {
	if !e.closed.Swap(true) {
		e.client.Close()
	}
	return nil
}
