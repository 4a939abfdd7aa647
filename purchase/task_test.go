package purchase

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/walletpay/catalog"
	"github.com/vitwit/walletpay/types"
)

func TestStartRunsInBackground(t *testing.T) {
	w := connectedWallet()
	w.block = make(chan struct{})
	w.entered = make(chan struct{})
	c := newFakeCrediter(0)
	o := newOrchestrator(t, w, c)

	var calls atomic.Int32
	var busyInCallback atomic.Bool
	doneCh := make(chan struct{})
	task, err := o.Start(context.Background(), catalog.RogueBall, 2, func(out *Outcome, err error) {
		calls.Add(1)
		busyInCallback.Store(o.Busy())
		close(doneCh)
	})
	require.NoError(t, err)
	assert.Equal(t, catalog.RogueBall, task.Kind)
	assert.Equal(t, 2, task.Quantity)

	<-w.entered
	assert.True(t, o.Busy())
	_, err = task.Result()
	assert.ErrorIs(t, err, types.ErrTransferInProgress)

	_, err = o.Start(context.Background(), catalog.PokeBall, 1, nil)
	assert.ErrorIs(t, err, types.ErrTransferInProgress)

	close(w.block)
	out, err := task.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(600_000_000), out.Total)

	<-doneCh
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, busyInCallback.Load())
	assert.False(t, o.Busy())

	res, err := task.Result()
	require.NoError(t, err)
	assert.Equal(t, out, res)
	assert.Len(t, w.transferCalls(), 1)
}

func TestStartValidatesSynchronously(t *testing.T) {
	w := &fakeWallet{state: types.Disconnected}
	o := newOrchestrator(t, w, newFakeCrediter(0))

	_, err := o.Start(context.Background(), catalog.PokeBall, 1, nil)
	assert.ErrorIs(t, err, types.ErrWalletNotConnected)

	w.state = types.Connected
	_, err = o.Start(context.Background(), catalog.PokeBall, 0, nil)
	assert.ErrorIs(t, err, types.ErrInvalidQuantity)

	assert.False(t, o.Busy())
	assert.Empty(t, w.transferCalls())
}

func TestStartNotCancelledWithCaller(t *testing.T) {
	w := connectedWallet()
	w.block = make(chan struct{})
	w.entered = make(chan struct{})
	c := newFakeCrediter(0)
	o := newOrchestrator(t, w, c)

	ctx, cancel := context.WithCancel(context.Background())
	task, err := o.Start(ctx, catalog.VoucherGolden, 1, nil)
	require.NoError(t, err)

	<-w.entered
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer waitCancel()
	_, err = task.Wait(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(w.block)
	<-task.Done()
	out, err := task.Result()
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000), out.Total)
	assert.True(t, c.ledger.Credited("tx-1"))
}

func TestStartReportsFailure(t *testing.T) {
	w := connectedWallet()
	w.err = types.ErrUserRejected
	o := newOrchestrator(t, w, newFakeCrediter(0))

	errCh := make(chan error, 1)
	task, err := o.Start(context.Background(), catalog.PokeBall, 1, func(_ *Outcome, err error) {
		errCh <- err
	})
	require.NoError(t, err)

	assert.ErrorIs(t, <-errCh, types.ErrUserRejected)
	_, err = task.Result()
	assert.ErrorIs(t, err, types.ErrUserRejected)
	assert.False(t, o.Busy())
}
