package purchase

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vitwit/walletpay/catalog"
	"github.com/vitwit/walletpay/types"
)

// Task is a purchase running in the background, so a UI does not block
// during the confirmation wait.
type Task struct {
	ID       uuid.UUID
	Kind     catalog.EntitlementKind
	Quantity int

	done    chan struct{}
	once    sync.Once
	outcome *Outcome
	err     error
}

// Done is closed when the purchase has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the purchase finishes or ctx is done. Giving up on the
// wait does not stop the purchase.
func (t *Task) Wait(ctx context.Context) (*Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, t.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result returns the outcome of a finished purchase, or
// types.ErrTransferInProgress while it is still running.
func (t *Task) Result() (*Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, t.err
	default:
		return nil, types.ErrTransferInProgress
	}
}

func (t *Task) finish(out *Outcome, err error) {
	t.once.Do(func() {
		t.outcome, t.err = out, err
		close(t.done)
	})
}

// Busy reports whether a started purchase is still running. UIs use it as an
// input lock.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// Start runs a purchase in the background. Only one started purchase runs at
// a time; a second Start fails with types.ErrTransferInProgress. The purchase
// is not cancelled with ctx. onDone, if set, is called exactly once with the
// result, after Busy has been released and Done closed.
func (o *Orchestrator) Start(ctx context.Context, kind catalog.EntitlementKind, quantity int, onDone func(*Outcome, error)) (*Task, error) {
	if o.session.State() != types.Connected {
		return nil, types.ErrWalletNotConnected
	}
	if _, err := o.quote(kind, quantity); err != nil {
		return nil, err
	}
	if !o.busy.CompareAndSwap(false, true) {
		return nil, types.ErrTransferInProgress
	}

	task := &Task{
		ID:       uuid.New(),
		Kind:     kind,
		Quantity: quantity,
		done:     make(chan struct{}),
	}
	bg := context.WithoutCancel(ctx)

	go func() {
		out, err := o.Purchase(bg, kind, quantity)
		o.busy.Store(false)
		task.finish(out, err)
		if onDone != nil {
			onDone(out, err)
		}
	}()

	return task, nil
}
