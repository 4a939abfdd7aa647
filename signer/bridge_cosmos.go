package signer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/cometbft/cometbft/crypto/tmhash"
	"github.com/cosmos/cosmos-sdk/client"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/cosmos/cosmos-sdk/types/bech32"
	txn "github.com/cosmos/cosmos-sdk/types/tx"
	banktypes "github.com/cosmos/cosmos-sdk/x/bank/types"
	"google.golang.org/grpc"

	"github.com/vitwit/walletpay/clients"
	"github.com/vitwit/walletpay/types"
)

// CosmosTransfer is what a Cosmos wallet is asked to sign: a single bank send
// that the chain drops once TimeoutHeight passes.
type CosmosTransfer struct {
	From          string
	To            string
	Denom         string
	Amount        uint64
	TimeoutHeight uint64
}

// CosmosWallet is an external Cosmos wallet. It builds, signs and encodes the
// transaction because it owns the account number and sequence.
type CosmosWallet interface {
	Connect(ctx context.Context) (string, error)
	Disconnect(ctx context.Context) error
	// SignTransfer returns the encoded signed tx, or ErrDeclined.
	SignTransfer(ctx context.Context, t CosmosTransfer) ([]byte, error)
}

// CosmosBroadcaster submits encoded transactions. txn.ServiceClient satisfies it.
type CosmosBroadcaster interface {
	BroadcastTx(ctx context.Context, in *txn.BroadcastTxRequest, opts ...grpc.CallOption) (*txn.BroadcastTxResponse, error)
}

// BridgeCosmosSigner asks an external wallet to sign a bank send, checks the
// returned transaction and broadcasts it in sync mode.
type BridgeCosmosSigner struct {
	wallet      CosmosWallet
	broadcaster CosmosBroadcaster
	denom       string
	txConfig    client.TxConfig

	mu      sync.RWMutex
	address string
}

var _ Signer = (*BridgeCosmosSigner)(nil)

func NewBridgeCosmosSigner(wallet CosmosWallet, broadcaster CosmosBroadcaster, denom string) *BridgeCosmosSigner {
	return &BridgeCosmosSigner{
		wallet:      wallet,
		broadcaster: broadcaster,
		denom:       denom,
		txConfig:    clients.CosmosTxConfig(),
	}
}

func (s *BridgeCosmosSigner) IsAvailable() bool {
	return s.wallet != nil && s.broadcaster != nil && s.denom != ""
}

func (s *BridgeCosmosSigner) Connect(ctx context.Context) error {
	if !s.IsAvailable() {
		return types.ErrSignerUnavailable
	}

	addr, err := s.wallet.Connect(ctx)
	if err != nil {
		return fmt.Errorf("wallet connect: %w", err)
	}
	if _, _, err := bech32.DecodeAndConvert(addr); err != nil {
		return fmt.Errorf("wallet returned invalid address %q: %w", addr, err)
	}

	s.mu.Lock()
	s.address = addr
	s.mu.Unlock()
	return nil
}

func (s *BridgeCosmosSigner) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.address = ""
	s.mu.Unlock()

	if s.wallet == nil {
		return nil
	}
	return s.wallet.Disconnect(ctx)
}

func (s *BridgeCosmosSigner) PublicAddress() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

func (s *BridgeCosmosSigner) SignAndBroadcast(ctx context.Context, req types.TransferRequest) (BroadcastResult, error) {
	if s.PublicAddress() == "" {
		return BroadcastResult{}, types.ErrNotConnected
	}

	transfer := CosmosTransfer{
		From:          req.FeePayer(),
		To:            req.Destination(),
		Denom:         s.denom,
		Amount:        req.Amount(),
		TimeoutHeight: req.Checkpoint().ExpiryHeight,
	}

	txBytes, err := s.wallet.SignTransfer(ctx, transfer)
	if errors.Is(err, ErrDeclined) {
		return Declined(), nil
	}
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("wallet sign: %w", err)
	}

	if err := s.checkTx(txBytes, transfer); err != nil {
		return BroadcastResult{}, fmt.Errorf("wallet returned a different transaction: %w", err)
	}

	// CometBFT tx hash: upper-case hex SHA-256 of the raw bytes.
	txID := types.TransactionID(fmt.Sprintf("%X", tmhash.Sum(txBytes)))

	resp, err := s.broadcaster.BroadcastTx(ctx, &txn.BroadcastTxRequest{
		TxBytes: txBytes,
		Mode:    txn.BroadcastMode_BROADCAST_MODE_SYNC,
	})
	if err != nil {
		return Unknown(txID, fmt.Sprintf("broadcast failed: %v", err)), nil
	}

	txResp := resp.GetTxResponse()
	if txResp == nil {
		return Unknown(txID, "broadcast failed: empty response"), nil
	}
	if txResp.Code != 0 {
		return Failed(fmt.Sprintf("code %d (%s): %s", txResp.Code, txResp.Codespace, txResp.RawLog)), nil
	}
	return Accepted(types.TransactionID(txResp.TxHash)), nil
}

func (s *BridgeCosmosSigner) checkTx(txBytes []byte, want CosmosTransfer) error {
	tx, err := s.txConfig.TxDecoder()(txBytes)
	if err != nil {
		return fmt.Errorf("tx decode failed: %w", err)
	}

	msgs := tx.GetMsgs()
	if len(msgs) != 1 {
		return fmt.Errorf("expected 1 message, got %d", len(msgs))
	}
	msgSend, ok := msgs[0].(*banktypes.MsgSend)
	if !ok {
		return errors.New("unexpected message type")
	}

	switch {
	case msgSend.FromAddress != want.From:
		return fmt.Errorf("sender %s, expected %s", msgSend.FromAddress, want.From)
	case msgSend.ToAddress != want.To:
		return errors.New("recipient mismatch")
	case len(msgSend.Amount) != 1 || !msgSend.Amount.AmountOf(want.Denom).Equal(sdkmath.NewIntFromUint64(want.Amount)):
		return fmt.Errorf("amount %s, expected %d%s", msgSend.Amount, want.Amount, want.Denom)
	}

	withTimeout, ok := tx.(sdk.TxWithTimeoutHeight)
	if !ok || withTimeout.GetTimeoutHeight() != want.TimeoutHeight {
		return fmt.Errorf("timeout height must be %d", want.TimeoutHeight)
	}
	return nil
}
