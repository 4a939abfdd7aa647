package signer

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/vitwit/walletpay/types"
)

// Gas of a plain value transfer.
const nativeTransferGas = 21000

// EVMBackend is the write side of an EVM node. *ethclient.Client satisfies it.
type EVMBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

// LocalEVMSigner signs native transfers with an in-process ECDSA key. EVM
// transactions carry no blockhash, so the checkpoint only bounds how long
// confirmation is awaited.
type LocalEVMSigner struct {
	key     *ecdsa.PrivateKey
	backend EVMBackend
	cfg     localConfig

	mu        sync.RWMutex
	connected bool
}

var _ Signer = (*LocalEVMSigner)(nil)

func NewLocalEVMSigner(key *ecdsa.PrivateKey, backend EVMBackend, opts ...LocalOption) *LocalEVMSigner {
	return &LocalEVMSigner{
		key:     key,
		backend: backend,
		cfg:     newLocalConfig(opts),
	}
}

func (s *LocalEVMSigner) IsAvailable() bool {
	return s.key != nil && s.backend != nil
}

func (s *LocalEVMSigner) Connect(context.Context) error {
	if !s.IsAvailable() {
		return types.ErrSignerUnavailable
	}
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

func (s *LocalEVMSigner) Disconnect(context.Context) error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	return nil
}

func (s *LocalEVMSigner) address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

func (s *LocalEVMSigner) PublicAddress() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return ""
	}
	return s.address().Hex()
}

func (s *LocalEVMSigner) SignAndBroadcast(ctx context.Context, req types.TransferRequest) (BroadcastResult, error) {
	if s.PublicAddress() == "" {
		return BroadcastResult{}, types.ErrNotConnected
	}

	from := s.address()
	if !strings.EqualFold(req.FeePayer(), from.Hex()) {
		return BroadcastResult{}, fmt.Errorf("fee payer %s is not the signer %s", req.FeePayer(), from.Hex())
	}
	if !common.IsHexAddress(req.Destination()) {
		return BroadcastResult{}, fmt.Errorf("invalid destination %s", req.Destination())
	}

	ok, err := s.cfg.approve(ctx, req)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("approval: %w", err)
	}
	if !ok {
		return Declined(), nil
	}

	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("failed to get gas price: %w", err)
	}
	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("failed to get chain id: %w", err)
	}

	to := common.HexToAddress(req.Destination())
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int).SetUint64(req.Amount()),
		Gas:      nativeTransferGas,
		GasPrice: gasPrice,
	})

	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		// JSON-RPC errors come from the node rejecting the transaction.
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return Failed(rpcErr.Error()), nil
		}
		return Unknown(types.TransactionID(signed.Hash().Hex()), fmt.Sprintf("broadcast failed: %v", err)), nil
	}

	return Accepted(types.TransactionID(signed.Hash().Hex())), nil
}
