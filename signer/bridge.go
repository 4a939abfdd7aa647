package signer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/walletpay/types"
)

// SolanaWallet is an external wallet, such as a browser extension reached
// through a bridge, that holds the key and shows its own approval prompt.
type SolanaWallet interface {
	// Connect asks the wallet for access and returns its base58 public key.
	Connect(ctx context.Context) (string, error)
	Disconnect(ctx context.Context) error
	// SignTransaction signs a wire-encoded transaction and returns it
	// wire-encoded. It returns ErrDeclined when the user refuses.
	SignTransaction(ctx context.Context, tx []byte) ([]byte, error)
}

// BridgeSolanaSigner builds transfers locally, has an external wallet sign
// them and broadcasts the signed transaction itself. The signed transaction is
// checked against the request before it is sent.
type BridgeSolanaSigner struct {
	wallet SolanaWallet
	sender SolanaSender

	mu      sync.RWMutex
	address string
}

var _ Signer = (*BridgeSolanaSigner)(nil)

func NewBridgeSolanaSigner(wallet SolanaWallet, sender SolanaSender) *BridgeSolanaSigner {
	return &BridgeSolanaSigner{wallet: wallet, sender: sender}
}

func (s *BridgeSolanaSigner) IsAvailable() bool {
	return s.wallet != nil && s.sender != nil
}

func (s *BridgeSolanaSigner) Connect(ctx context.Context) error {
	if !s.IsAvailable() {
		return types.ErrSignerUnavailable
	}

	addr, err := s.wallet.Connect(ctx)
	if err != nil {
		return fmt.Errorf("wallet connect: %w", err)
	}
	if _, err := solana.PublicKeyFromBase58(addr); err != nil {
		return fmt.Errorf("wallet returned invalid public key %q: %w", addr, err)
	}

	s.mu.Lock()
	s.address = addr
	s.mu.Unlock()
	return nil
}

func (s *BridgeSolanaSigner) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.address = ""
	s.mu.Unlock()

	if s.wallet == nil {
		return nil
	}
	return s.wallet.Disconnect(ctx)
}

func (s *BridgeSolanaSigner) PublicAddress() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

func (s *BridgeSolanaSigner) SignAndBroadcast(ctx context.Context, req types.TransferRequest) (BroadcastResult, error) {
	if s.PublicAddress() == "" {
		return BroadcastResult{}, types.ErrNotConnected
	}

	tx, err := buildSolanaTransfer(req)
	if err != nil {
		return BroadcastResult{}, err
	}
	// Wallets expect a slot per required signature.
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)

	unsigned, err := tx.MarshalBinary()
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("encode transaction: %w", err)
	}

	raw, err := s.wallet.SignTransaction(ctx, unsigned)
	if errors.Is(err, ErrDeclined) {
		return Declined(), nil
	}
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("wallet sign: %w", err)
	}

	signed, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("tx decode failed: %w", err)
	}
	if err := checkSolanaTransfer(signed, req); err != nil {
		return BroadcastResult{}, fmt.Errorf("wallet returned a different transaction: %w", err)
	}
	if err := signed.VerifySignatures(); err != nil {
		return BroadcastResult{}, fmt.Errorf("wallet signature invalid: %w", err)
	}

	return sendSolana(ctx, s.sender, signed)
}
