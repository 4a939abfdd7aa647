// Package ledger is the boundary to the game's entitlement store.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vitwit/walletpay/catalog"
	"github.com/vitwit/walletpay/types"
)

// Crediter grants entitlements for confirmed payments. Implementations must be
// idempotent on txID: crediting the same transaction twice grants once.
type Crediter interface {
	CreditEntitlement(ctx context.Context, kind catalog.EntitlementKind, quantity int, txID types.TransactionID) error
}

// CrediterFunc adapts a plain function, such as a game save hook, to Crediter.
type CrediterFunc func(ctx context.Context, kind catalog.EntitlementKind, quantity int, txID types.TransactionID) error

func (f CrediterFunc) CreditEntitlement(ctx context.Context, kind catalog.EntitlementKind, quantity int, txID types.TransactionID) error {
	return f(ctx, kind, quantity, txID)
}

// Credit is a granted entitlement.
type Credit struct {
	Kind     catalog.EntitlementKind `json:"kind"`
	Quantity int                     `json:"quantity"`
	TxID     types.TransactionID     `json:"txId"`
	At       time.Time               `json:"at"`
}

// MemoryLedger is an in-process Crediter keyed by transaction.
type MemoryLedger struct {
	mu       sync.RWMutex
	credits  map[types.TransactionID]Credit
	holdings map[catalog.EntitlementKind]int
	now      func() time.Time
}

var _ Crediter = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		credits:  make(map[types.TransactionID]Credit),
		holdings: make(map[catalog.EntitlementKind]int),
		now:      time.Now,
	}
}

// CreditEntitlement records the credit once per txID. A repeated call with the
// same grant is a no-op; a different grant for a known txID is rejected.
func (l *MemoryLedger) CreditEntitlement(ctx context.Context, kind catalog.EntitlementKind, quantity int, txID types.TransactionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if txID == "" {
		return fmt.Errorf("credit without transaction id")
	}
	if !kind.Valid() || quantity < 1 {
		return fmt.Errorf("invalid credit %d x %s", quantity, kind)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if prev, ok := l.credits[txID]; ok {
		if prev.Kind != kind || prev.Quantity != quantity {
			return fmt.Errorf("transaction %s already credited %d x %s", txID, prev.Quantity, prev.Kind)
		}
		return nil
	}

	l.credits[txID] = Credit{Kind: kind, Quantity: quantity, TxID: txID, At: l.now()}
	l.holdings[kind] += quantity
	return nil
}

// Holdings returns the credited quantity of kind.
func (l *MemoryLedger) Holdings(kind catalog.EntitlementKind) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.holdings[kind]
}

// Credited reports whether txID has been credited.
func (l *MemoryLedger) Credited(txID types.TransactionID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.credits[txID]
	return ok
}

// Credits returns every credit, oldest first.
func (l *MemoryLedger) Credits() []Credit {
	l.mu.RLock()
	out := make([]Credit, 0, len(l.credits))
	for _, c := range l.credits {
		out = append(out, c)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].At.Equal(out[j].At) {
			return out[i].TxID < out[j].TxID
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}
