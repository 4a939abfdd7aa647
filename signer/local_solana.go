package signer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/vitwit/walletpay/types"
)

// LocalSolanaSigner signs with an in-process keypair. Intended for devnet,
// localnet and tests.
type LocalSolanaSigner struct {
	key    solana.PrivateKey
	sender SolanaSender
	cfg    localConfig

	mu        sync.RWMutex
	connected bool
}

var _ Signer = (*LocalSolanaSigner)(nil)

func NewLocalSolanaSigner(key solana.PrivateKey, sender SolanaSender, opts ...LocalOption) *LocalSolanaSigner {
	return &LocalSolanaSigner{
		key:    key,
		sender: sender,
		cfg:    newLocalConfig(opts),
	}
}

func (s *LocalSolanaSigner) IsAvailable() bool {
	return len(s.key) == 64 && s.sender != nil
}

func (s *LocalSolanaSigner) Connect(context.Context) error {
	if !s.IsAvailable() {
		return types.ErrSignerUnavailable
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *LocalSolanaSigner) Disconnect(context.Context) error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *LocalSolanaSigner) PublicAddress() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return ""
	}
	return s.key.PublicKey().String()
}

func (s *LocalSolanaSigner) SignAndBroadcast(ctx context.Context, req types.TransferRequest) (BroadcastResult, error) {
	if s.PublicAddress() == "" {
		return BroadcastResult{}, types.ErrNotConnected
	}
	if req.FeePayer() != s.key.PublicKey().String() {
		return BroadcastResult{}, fmt.Errorf("fee payer %s is not the signer %s", req.FeePayer(), s.key.PublicKey())
	}

	ok, err := s.cfg.approve(ctx, req)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("approval: %w", err)
	}
	if !ok {
		return Declined(), nil
	}

	tx, err := buildSolanaTransfer(req)
	if err != nil {
		return BroadcastResult{}, err
	}

	if _, err := tx.Sign(func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(s.key.PublicKey()) {
			return &s.key
		}
		return nil
	}); err != nil {
		return BroadcastResult{}, fmt.Errorf("sign transaction: %w", err)
	}

	return sendSolana(ctx, s.sender, tx)
}

// sendSolana submits a signed tx. Errors returned by the node itself, such as
// a failed preflight simulation, are network rejections. Any other send error
// leaves the outcome unknown; the fee payer signature identifies the transfer.
func sendSolana(ctx context.Context, sender SolanaSender, tx *solana.Transaction) (BroadcastResult, error) {
	if len(tx.Signatures) == 0 {
		return BroadcastResult{}, errors.New("transaction is not signed")
	}
	txID := types.TransactionID(tx.Signatures[0].String())

	sig, err := sender.SendTransaction(ctx, tx)
	if err != nil {
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			return Failed(rpcErr.Message), nil
		}
		return Unknown(txID, fmt.Sprintf("broadcast failed: %v", err)), nil
	}
	return Accepted(types.TransactionID(sig.String())), nil
}
