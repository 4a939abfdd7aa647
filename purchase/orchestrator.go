// Package purchase turns entitlement requests into confirmed payments and
// credits each confirmed payment exactly once.
package purchase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vitwit/walletpay/catalog"
	"github.com/vitwit/walletpay/ledger"
	"github.com/vitwit/walletpay/logger"
	"github.com/vitwit/walletpay/metrics"
	"github.com/vitwit/walletpay/types"
	"github.com/vitwit/walletpay/utils"
)

// Wallet is the session surface used by the orchestrator. *wallet.Session
// satisfies it.
type Wallet interface {
	Network() types.Network
	State() types.ConnectionState
	Transfer(ctx context.Context, destination string, amount uint64) (types.TransactionID, error)
	Reconfirm(ctx context.Context, txID types.TransactionID, expiryHeight uint64) (types.ConfirmationResult, error)
}

// Outcome is a completed purchase: paid, confirmed and credited.
type Outcome struct {
	RequestID  uuid.UUID               `json:"requestId"`
	Kind       catalog.EntitlementKind `json:"kind"`
	Quantity   int                     `json:"quantity"`
	UnitPrice  uint64                  `json:"unitPrice"`
	Total      uint64                  `json:"total"`
	TxID       types.TransactionID     `json:"txId"`
	CreditedAt time.Time               `json:"creditedAt"`
}

// PendingState is why a paid purchase has not completed.
type PendingState string

const (
	// AwaitingConfirmation: broadcast, but confirmation timed out.
	AwaitingConfirmation PendingState = "awaiting_confirmation"
	// AwaitingCredit: confirmed, but the credit call failed.
	AwaitingCredit PendingState = "awaiting_credit"
)

// PendingPurchase is a broadcast transfer whose entitlement has not been credited.
type PendingPurchase struct {
	RequestID    uuid.UUID           `json:"requestId"`
	Quote        catalog.Quote       `json:"quote"`
	TxID         types.TransactionID `json:"txId"`
	ExpiryHeight uint64              `json:"expiryHeight,omitempty"`
	State        PendingState        `json:"state"`
	Since        time.Time           `json:"since"`
	LastError    string              `json:"lastError,omitempty"`
}

// Orchestrator runs purchases against one wallet session.
type Orchestrator struct {
	session  Wallet
	crediter ledger.Crediter
	merchant string
	catalog  atomic.Pointer[catalog.Catalog]
	log      logger.Logger
	metrics  metrics.Recorder
	now      func() time.Time

	mu      sync.Mutex
	pending map[types.TransactionID]*PendingPurchase

	busy atomic.Bool
}

type Option func(*Orchestrator)

func WithCatalog(c *catalog.Catalog) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.catalog.Store(c)
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		o.log = logger.OrNoop(l)
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = metrics.OrNoop(r)
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an orchestrator paying merchant. The merchant address is
// validated for the session's network.
func New(session Wallet, crediter ledger.Crediter, merchant string, opts ...Option) (*Orchestrator, error) {
	if session == nil || crediter == nil {
		return nil, types.ErrConfig.Withf("purchase orchestrator needs a session and a crediter")
	}
	if err := utils.ValidateAddressForNetwork(merchant, session.Network()); err != nil {
		return nil, types.ErrConfig.Withf("invalid merchant address").Wrap(err)
	}

	o := &Orchestrator{
		session:  session,
		crediter: crediter,
		merchant: merchant,
		log:      logger.NoopLogger{},
		metrics:  metrics.NoopRecorder{},
		now:      time.Now,
		pending:  make(map[types.TransactionID]*PendingPurchase),
	}
	o.catalog.Store(catalog.Default())
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Catalog is the price table new purchases are quoted from.
func (o *Orchestrator) Catalog() *catalog.Catalog { return o.catalog.Load() }

// SetCatalog replaces the price table. Purchases already quoted keep their price.
func (o *Orchestrator) SetCatalog(c *catalog.Catalog) {
	if c != nil {
		o.catalog.Store(c)
	}
}

// PurchaseVoucher buys a single voucher.
func (o *Orchestrator) PurchaseVoucher(ctx context.Context, kind catalog.EntitlementKind) (*Outcome, error) {
	if kind.Family() != catalog.FamilyVoucher {
		return nil, types.ErrInvalidKind.Withf("%s is not a voucher", kind)
	}
	return o.Purchase(ctx, kind, 1)
}

// PurchaseConsumable buys quantity units of a consumable item.
func (o *Orchestrator) PurchaseConsumable(ctx context.Context, kind catalog.EntitlementKind, quantity int) (*Outcome, error) {
	if kind.Family() != catalog.FamilyConsumable {
		return nil, types.ErrInvalidKind.Withf("%s is not a consumable", kind)
	}
	return o.Purchase(ctx, kind, quantity)
}

// Purchase pays for quantity units of kind and credits them once the payment
// is confirmed. Transfer errors are returned unchanged. When the credit call
// fails the error is CREDIT_FAILED carrying the transaction id, and the
// purchase stays pending until RetryCredit succeeds.
func (o *Orchestrator) Purchase(ctx context.Context, kind catalog.EntitlementKind, quantity int) (out *Outcome, err error) {
	if o.session.State() != types.Connected {
		return nil, types.ErrWalletNotConnected
	}

	quote, err := o.quote(kind, quantity)
	if err != nil {
		return nil, err
	}

	requestID := uuid.New()
	start := o.now()
	defer func() {
		o.observe(metrics.EventPurchase, start, err)
	}()

	fields := map[string]any{
		"request_id": requestID.String(),
		"network":    o.session.Network().String(),
		"kind":       kind.String(),
		"quantity":   quantity,
		"amount":     quote.Total,
	}
	o.log.Info("purchase started", fields)

	txID, err := o.session.Transfer(ctx, o.merchant, quote.Total)
	if err != nil {
		o.trackTimeout(requestID, quote, err)
		o.log.Warn("purchase payment failed", withError(fields, err))
		return nil, err
	}

	p := &PendingPurchase{
		RequestID: requestID,
		Quote:     quote,
		TxID:      txID,
		State:     AwaitingCredit,
		Since:     o.now(),
	}
	// The payment is confirmed; crediting must not be abandoned with the caller.
	return o.credit(context.WithoutCancel(ctx), p)
}

func (o *Orchestrator) quote(kind catalog.EntitlementKind, quantity int) (catalog.Quote, error) {
	if quantity < 1 {
		return catalog.Quote{}, types.ErrInvalidQuantity
	}
	q, err := o.Catalog().Quote(kind, quantity)
	if err != nil {
		return catalog.Quote{}, types.ErrInvalidQuantity.Withf("invalid quantity %d", quantity).Wrap(err)
	}
	return q, nil
}

// trackTimeout keeps a timed out transfer so it can be rechecked later.
func (o *Orchestrator) trackTimeout(requestID uuid.UUID, quote catalog.Quote, err error) {
	var perr *types.Error
	if !errors.As(err, &perr) || perr.Code != types.ErrCodeConfirmationTimeout || perr.TxID == "" {
		return
	}

	o.mu.Lock()
	o.pending[perr.TxID] = &PendingPurchase{
		RequestID:    requestID,
		Quote:        quote,
		TxID:         perr.TxID,
		ExpiryHeight: perr.ExpiryHeight,
		State:        AwaitingConfirmation,
		Since:        o.now(),
		LastError:    err.Error(),
	}
	o.mu.Unlock()
}

// credit calls the crediter for a confirmed payment. On failure p is kept
// pending; on success it is forgotten.
func (o *Orchestrator) credit(ctx context.Context, p *PendingPurchase) (*Outcome, error) {
	q := p.Quote
	fields := map[string]any{
		"request_id": p.RequestID.String(),
		"network":    o.session.Network().String(),
		"tx_id":      p.TxID.String(),
		"kind":       q.Kind.String(),
		"quantity":   q.Quantity,
	}

	// The payment was made for the quoted price; a catalog change since then
	// is reported but does not block the credit.
	if current := o.Catalog().PriceOf(q.Kind); current != q.UnitPrice {
		o.log.Warn("price changed since quote", map[string]any{
			"tx_id":         p.TxID.String(),
			"kind":          q.Kind.String(),
			"quoted_price":  q.UnitPrice,
			"current_price": current,
		})
		o.metrics.IncCounter(metrics.EventPriceDrift, map[string]string{
			"network": o.session.Network().String(),
			"outcome": "credited_at_quote",
		})
	}

	start := o.now()
	err := o.crediter.CreditEntitlement(ctx, q.Kind, q.Quantity, p.TxID)
	o.observe(metrics.EventCredit, start, err)

	if err != nil {
		o.mu.Lock()
		p.State = AwaitingCredit
		p.ExpiryHeight = 0
		p.LastError = err.Error()
		o.pending[p.TxID] = p
		o.mu.Unlock()

		o.log.Error("entitlement credit failed", withError(fields, err))
		return nil, types.ErrCreditFailed.WithTx(p.TxID).Wrap(err)
	}

	o.mu.Lock()
	delete(o.pending, p.TxID)
	o.mu.Unlock()

	o.log.Info("entitlement credited", fields)
	return &Outcome{
		RequestID:  p.RequestID,
		Kind:       q.Kind,
		Quantity:   q.Quantity,
		UnitPrice:  q.UnitPrice,
		Total:      q.Total,
		TxID:       p.TxID,
		CreditedAt: o.now(),
	}, nil
}

func (o *Orchestrator) lookup(txID types.TransactionID) (PendingPurchase, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.pending[txID]
	if !ok {
		return PendingPurchase{}, false
	}
	return *p, true
}

// RetryCredit credits a confirmed purchase whose credit call failed, with the
// same transaction id. It never transfers funds.
func (o *Orchestrator) RetryCredit(ctx context.Context, txID types.TransactionID) (*Outcome, error) {
	p, ok := o.lookup(txID)
	if !ok || p.State != AwaitingCredit {
		return nil, types.ErrUnknownPurchase.WithTx(txID)
	}
	return o.credit(context.WithoutCancel(ctx), &p)
}

// Recheck resolves a purchase whose confirmation timed out. It credits the
// purchase if the transfer has since been confirmed, drops it if the transfer
// failed, and keeps it pending if the status is still unknown. A purchase
// awaiting credit is retried.
func (o *Orchestrator) Recheck(ctx context.Context, txID types.TransactionID) (*Outcome, error) {
	p, ok := o.lookup(txID)
	if !ok {
		return nil, types.ErrUnknownPurchase.WithTx(txID)
	}
	if p.State == AwaitingCredit {
		return o.credit(context.WithoutCancel(ctx), &p)
	}

	res, err := o.session.Reconfirm(ctx, txID, p.ExpiryHeight)
	if err != nil {
		return nil, err
	}

	switch res.Status {
	case types.StatusConfirmed:
		p.State = AwaitingCredit
		return o.credit(context.WithoutCancel(ctx), &p)

	case types.StatusFailed:
		o.mu.Lock()
		delete(o.pending, txID)
		o.mu.Unlock()
		o.log.Info("pending purchase failed on chain", map[string]any{
			"tx_id":  txID.String(),
			"reason": res.Reason,
		})
		return nil, types.ErrTransactionFailed.Withf("transaction failed: %s", res.Reason).WithTx(txID)

	default:
		e := types.ErrConfirmationTimeout.WithTx(txID)
		e.ExpiryHeight = p.ExpiryHeight
		return nil, e
	}
}

// Pending lists purchases awaiting confirmation or credit, oldest first.
func (o *Orchestrator) Pending() []PendingPurchase {
	o.mu.Lock()
	out := make([]PendingPurchase, 0, len(o.pending))
	for _, p := range o.pending {
		out = append(out, *p)
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Since.Equal(out[j].Since) {
			return out[i].TxID < out[j].TxID
		}
		return out[i].Since.Before(out[j].Since)
	})
	return out
}

func (o *Orchestrator) observe(event string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(types.CategoryOf(err))
	}
	labels := map[string]string{
		"network": o.session.Network().String(),
		"outcome": outcome,
	}
	o.metrics.IncCounter(event, labels)
	o.metrics.ObserveLatency(event, o.now().Sub(start), labels)
}

func withError(fields map[string]any, err error) map[string]any {
	out := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err
	out["category"] = string(types.CategoryOf(err))
	return out
}
