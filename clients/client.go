package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/vitwit/walletpay/logger"
	"github.com/vitwit/walletpay/types"
)

// NetworkClient is the read side of a ledger: checkpoints, balances and
// transaction confirmation. Signing and broadcasting live in the signer package.
type NetworkClient interface {
	Network() types.Network
	// LatestCheckpoint returns a recent checkpoint to build a transfer against.
	LatestCheckpoint(ctx context.Context) (types.Checkpoint, error)
	// GetBalance returns the native balance of address in base units.
	GetBalance(ctx context.Context, address string) (uint64, error)
	// Confirm polls until txID reaches the configured commitment, fails, or the
	// chain height passes expiryHeight.
	Confirm(ctx context.Context, txID types.TransactionID, expiryHeight uint64) (types.ConfirmationResult, error)
	Close() error
}

// ErrClientClosed is returned by every method of a closed client.
var ErrClientClosed = errors.New("network client closed")

// PollConfig controls confirmation polling.
type PollConfig struct {
	Interval time.Duration
	// MaxErrors consecutive RPC failures end a wait as timed out.
	MaxErrors int
	// RequestTimeout bounds each individual RPC call.
	RequestTimeout time.Duration
}

func (p PollConfig) withDefaults(network types.Network) PollConfig {
	if p.Interval <= 0 {
		p.Interval = types.DefaultPollInterval(network)
	}
	if p.MaxErrors <= 0 {
		p.MaxErrors = types.DefaultMaxPollErrors
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = types.DefaultRequestTimeout
	}
	return p
}

// PollConfigFrom extracts the polling settings of cfg.
func PollConfigFrom(cfg types.Config) PollConfig {
	return PollConfig{
		Interval:       cfg.PollInterval,
		MaxErrors:      cfg.MaxPollErrors,
		RequestTimeout: cfg.RequestTimeout,
	}
}

// Dial creates the network client for cfg.Network.
func Dial(ctx context.Context, cfg types.Config, log logger.Logger) (NetworkClient, error) {
	poll := PollConfigFrom(cfg)

	switch {
	case cfg.Network.IsSolana():
		return NewSolanaClient(cfg.Network, cfg.RPCUrl, cfg.Commitment, poll, log), nil

	case cfg.Network.IsEVM():
		c, err := DialEVM(ctx, cfg.Network, cfg.RPCUrl, cfg.ExpiryBlocks, poll, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create EVM client for %s: %w", cfg.Network, err)
		}
		return c, nil

	case cfg.Network.IsCosmos():
		c, err := DialCosmos(cfg.Network, cfg.GRPCUrl, cfg.Denom, cfg.ExpiryBlocks, poll, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create Cosmos client for %s: %w", cfg.Network, err)
		}
		return c, nil

	default:
		return nil, types.ErrUnsupportedNetwork.Withf("unsupported network: %s", cfg.Network)
	}
}
