package clients

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/walletpay/types"
)

type fakeSolanaRPC struct {
	mu sync.Mutex

	blockhash solana.Hash
	lastValid uint64
	balance   uint64

	// statuses is consumed one per call, the last entry repeats.
	statuses   []*rpc.SignatureStatusesResult
	statusErr  error
	height     uint64
	heightStep uint64

	statusCalls int
	closed      bool
}

func (f *fakeSolanaRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: f.blockhash, LastValidBlockHeight: f.lastValid},
	}, nil
}

func (f *fakeSolanaRPC) GetBalance(context.Context, solana.PublicKey, rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	return &rpc.GetBalanceResult{Value: f.balance}, nil
}

func (f *fakeSolanaRPC) GetSignatureStatuses(context.Context, bool, ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if len(f.statuses) == 0 {
		return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{nil}}, nil
	}
	st := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{st}}, nil
}

func (f *fakeSolanaRPC) GetBlockHeight(context.Context, rpc.CommitmentType) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.height += f.heightStep
	return f.height, nil
}

func (f *fakeSolanaRPC) Close() error {
	f.closed = true
	return nil
}

var fastPoll = PollConfig{Interval: time.Millisecond, MaxErrors: 3, RequestTimeout: time.Second}

func testSignature(t *testing.T) types.TransactionID {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	sig, err := key.Sign([]byte("walletpay"))
	require.NoError(t, err)
	return types.TransactionID(sig.String())
}

func TestSolanaLatestCheckpoint(t *testing.T) {
	hash := solana.HashFromBytes([]byte("0123456789abcdef0123456789abcdef"))
	fake := &fakeSolanaRPC{blockhash: hash, lastValid: 150}
	c := newSolanaClient(types.NetworkSolanaDevnet, "", fake, "", fastPoll, nil)

	cp, err := c.LatestCheckpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hash.String(), cp.BlockHash)
	assert.Equal(t, uint64(150), cp.ExpiryHeight)
}

func TestSolanaGetBalance(t *testing.T) {
	fake := &fakeSolanaRPC{balance: 42}
	c := newSolanaClient(types.NetworkSolanaDevnet, "", fake, "", fastPoll, nil)

	bal, err := c.GetBalance(context.Background(), solana.SystemProgramID.String())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), bal)

	_, err = c.GetBalance(context.Background(), "not-an-address")
	assert.Error(t, err)
}

func TestSolanaConfirm(t *testing.T) {
	tests := []struct {
		name       string
		commitment string
		statuses   []*rpc.SignatureStatusesResult
		statusErr  error
		heightStep uint64
		want       types.ConfirmationStatus
		reason     string
	}{
		{
			name: "confirmed after a few polls",
			statuses: []*rpc.SignatureStatusesResult{
				nil,
				{Slot: 9, ConfirmationStatus: rpc.ConfirmationStatusProcessed},
				{Slot: 10, ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
			},
			want: types.StatusConfirmed,
		},
		{
			name:       "finalized commitment waits past confirmed",
			commitment: "finalized",
			statuses: []*rpc.SignatureStatusesResult{
				{Slot: 10, ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
				{Slot: 11, ConfirmationStatus: rpc.ConfirmationStatusFinalized},
			},
			want: types.StatusConfirmed,
		},
		{
			name: "transaction error",
			statuses: []*rpc.SignatureStatusesResult{
				{Slot: 10, ConfirmationStatus: rpc.ConfirmationStatusConfirmed, Err: map[string]any{"InsufficientFundsForRent": 0}},
			},
			want:   types.StatusFailed,
			reason: ReasonTransactionError,
		},
		{
			name:       "expiry passes",
			heightStep: 40,
			want:       types.StatusTimedOut,
			reason:     ReasonBlockHeightExceeded,
		},
		{
			name:      "rpc keeps failing",
			statusErr: errors.New("connection refused"),
			want:      types.StatusTimedOut,
			reason:    ReasonTooManyPollErrors,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSolanaRPC{
				statuses:   tt.statuses,
				statusErr:  tt.statusErr,
				height:     10,
				heightStep: tt.heightStep,
			}
			c := newSolanaClient(types.NetworkSolanaDevnet, "", fake, tt.commitment, fastPoll, nil)

			res, err := c.Confirm(context.Background(), testSignature(t), 100)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Contains(t, res.Reason, tt.reason)
		})
	}
}

func TestSolanaConfirmLateLanding(t *testing.T) {
	// The status lands in the same poll the expiry is noticed.
	fake := &fakeSolanaRPC{
		statuses: []*rpc.SignatureStatusesResult{
			nil,
			{Slot: 101, ConfirmationStatus: rpc.ConfirmationStatusConfirmed},
		},
		height:     200,
		heightStep: 1,
	}
	c := newSolanaClient(types.NetworkSolanaDevnet, "", fake, "", fastPoll, nil)

	res, err := c.Confirm(context.Background(), testSignature(t), 100)
	require.NoError(t, err)
	assert.Equal(t, types.StatusConfirmed, res.Status)
}

func TestSolanaConfirmCancelled(t *testing.T) {
	fake := &fakeSolanaRPC{height: 1}
	c := newSolanaClient(types.NetworkSolanaDevnet, "", fake, "", fastPoll, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Confirm(ctx, testSignature(t), 100)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSolanaClosed(t *testing.T) {
	fake := &fakeSolanaRPC{}
	c := newSolanaClient(types.NetworkSolanaDevnet, "", fake, "", fastPoll, nil)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, fake.closed)

	_, err := c.LatestCheckpoint(context.Background())
	assert.ErrorIs(t, err, ErrClientClosed)
	_, err = c.GetBalance(context.Background(), solana.SystemProgramID.String())
	assert.ErrorIs(t, err, ErrClientClosed)
	_, err = c.Confirm(context.Background(), testSignature(t), 1)
	assert.ErrorIs(t, err, ErrClientClosed)
}

func TestCommitmentReached(t *testing.T) {
	assert.True(t, commitmentReached(rpc.ConfirmationStatusConfirmed, rpc.CommitmentConfirmed))
	assert.True(t, commitmentReached(rpc.ConfirmationStatusFinalized, rpc.CommitmentConfirmed))
	assert.False(t, commitmentReached(rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed))
	assert.False(t, commitmentReached(rpc.ConfirmationStatusConfirmed, rpc.CommitmentFinalized))
	assert.True(t, commitmentReached(rpc.ConfirmationStatusProcessed, rpc.CommitmentProcessed))
}
