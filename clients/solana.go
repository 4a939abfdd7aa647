package clients

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/pkg/errors"

	"github.com/vitwit/walletpay/logger"
	"github.com/vitwit/walletpay/types"
)

// solanaRPC is the subset of *rpc.Client used by SolanaClient.
type solanaRPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetBlockHeight(ctx context.Context, commitment rpc.CommitmentType) (uint64, error)
	Close() error
}

// SolanaClient reads checkpoints, balances and signature statuses from a
// Solana RPC node. Checkpoints are recent blockhashes; their expiry is the
// node-reported last valid block height.
type SolanaClient struct {
	network    types.Network
	rpcURL     string
	client     solanaRPC
	commitment rpc.CommitmentType
	poll       poller
	closed     atomic.Bool
}

var _ NetworkClient = (*SolanaClient)(nil)

// NewSolanaClient creates a Solana client. An empty commitment means "confirmed".
func NewSolanaClient(network types.Network, rpcURL, commitment string, poll PollConfig, log logger.Logger) *SolanaClient {
	return newSolanaClient(network, rpcURL, rpc.New(rpcURL), commitment, poll, log)
}

func newSolanaClient(network types.Network, rpcURL string, client solanaRPC, commitment string, poll PollConfig, log logger.Logger) *SolanaClient {
	if commitment == "" {
		commitment = types.DefaultCommitment
	}
	return &SolanaClient{
		network:    network,
		rpcURL:     rpcURL,
		client:     client,
		commitment: rpc.CommitmentType(commitment),
		poll: poller{
			network: network,
			cfg:     poll.withDefaults(network),
			log:     logger.OrNoop(log),
		},
	}
}

func (c *SolanaClient) Network() types.Network { return c.network }

func (c *SolanaClient) LatestCheckpoint(ctx context.Context) (types.Checkpoint, error) {
	if c.closed.Load() {
		return types.Checkpoint{}, ErrClientClosed
	}

	out, err := c.client.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return types.Checkpoint{}, errors.Wrap(err, "get latest blockhash")
	}
	if out == nil || out.Value == nil {
		return types.Checkpoint{}, errors.New("get latest blockhash: empty response")
	}

	return types.Checkpoint{
		BlockHash:    out.Value.Blockhash.String(),
		ExpiryHeight: out.Value.LastValidBlockHeight,
	}, nil
}

func (c *SolanaClient) GetBalance(ctx context.Context, address string) (uint64, error) {
	if c.closed.Load() {
		return 0, ErrClientClosed
	}

	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid address %s", address)
	}

	out, err := c.client.GetBalance(ctx, pub, c.commitment)
	if err != nil {
		return 0, errors.Wrap(err, "get balance")
	}
	if out == nil {
		return 0, errors.New("get balance: empty response")
	}
	return out.Value, nil
}

func (c *SolanaClient) Confirm(ctx context.Context, txID types.TransactionID, expiryHeight uint64) (types.ConfirmationResult, error) {
	if c.closed.Load() {
		return types.ConfirmationResult{}, ErrClientClosed
	}

	sig, err := solana.SignatureFromBase58(txID.String())
	if err != nil {
		return types.ConfirmationResult{}, errors.Wrapf(err, "invalid signature %s", txID)
	}

	status := func(ctx context.Context) (types.ConfirmationResult, bool, error) {
		out, err := c.client.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return types.ConfirmationResult{}, false, errors.Wrap(err, "get signature statuses")
		}
		if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
			// not seen yet
			return types.ConfirmationResult{}, false, nil
		}

		st := out.Value[0]
		if st.Err != nil {
			return types.Failed(fmt.Sprintf("%s: %v", ReasonTransactionError, st.Err), st.Slot), true, nil
		}
		if commitmentReached(st.ConfirmationStatus, c.commitment) {
			return types.Confirmed(st.Slot), true, nil
		}
		return types.ConfirmationResult{}, false, nil
	}

	height := func(ctx context.Context) (uint64, error) {
		h, err := c.client.GetBlockHeight(ctx, c.commitment)
		return h, errors.Wrap(err, "get block height")
	}

	res, err := c.poll.wait(ctx, txID, expiryHeight, status, height)
	if err != nil {
		return res, err
	}

	c.poll.log.Debug("solana confirmation finished", map[string]any{
		"network": c.network.String(),
		"tx_id":   txID.String(),
		"status":  string(res.Status),
		"slot":    res.Height,
	})
	return res, nil
}

func (c *SolanaClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.client.Close()
}

var commitmentRank = map[rpc.ConfirmationStatusType]int{
	rpc.ConfirmationStatusProcessed: 1,
	rpc.ConfirmationStatusConfirmed: 2,
	rpc.ConfirmationStatusFinalized: 3,
}

var wantedRank = map[rpc.CommitmentType]int{
	rpc.CommitmentProcessed: 1,
	rpc.CommitmentConfirmed: 2,
	rpc.CommitmentFinalized: 3,
}

func commitmentReached(got rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	w, ok := wantedRank[want]
	if !ok {
		w = wantedRank[rpc.CommitmentConfirmed]
	}
	return commitmentRank[got] >= w
}
