// Package wallet owns the connection between a signer and a network client
// and exposes the single transfer entry point of the payment pipeline.
package wallet

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vitwit/walletpay/clients"
	"github.com/vitwit/walletpay/logger"
	"github.com/vitwit/walletpay/metrics"
	"github.com/vitwit/walletpay/signer"
	"github.com/vitwit/walletpay/types"
	"github.com/vitwit/walletpay/utils"
)

// DialFunc opens a network client.
type DialFunc func(ctx context.Context) (clients.NetworkClient, error)

// Session is one wallet connection. A Session allows one transfer in flight
// at a time; a concurrent Transfer fails fast with types.ErrTransferInProgress.
type Session struct {
	network types.Network
	signer  signer.Signer
	dial    DialFunc
	log     logger.Logger
	metrics metrics.Recorder

	mu      sync.RWMutex
	state   types.ConnectionState
	address string
	client  clients.NetworkClient

	inFlight atomic.Bool
}

type Option func(*Session)

func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		s.log = logger.OrNoop(l)
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Session) {
		s.metrics = metrics.OrNoop(r)
	}
}

// New creates a disconnected session. s may be nil when no wallet is
// installed; Connect then fails with types.ErrSignerUnavailable.
func New(network types.Network, s signer.Signer, dial DialFunc, opts ...Option) *Session {
	sess := &Session{
		network: network,
		signer:  s,
		dial:    dial,
		log:     logger.NoopLogger{},
		metrics: metrics.NoopRecorder{},
	}
	for _, o := range opts {
		o(sess)
	}
	return sess
}

func (s *Session) Network() types.Network { return s.network }

func (s *Session) State() types.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Address is the signer's public address, empty while disconnected.
func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// InFlight reports whether a transfer is currently running.
func (s *Session) InFlight() bool {
	return s.inFlight.Load()
}

func (s *Session) connected() (clients.NetworkClient, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client, s.address, s.state == types.Connected && s.client != nil
}

// Connect connects the signer and dials the network. Calling it again while
// connected reuses the live network client.
func (s *Session) Connect(ctx context.Context) (bool, error) {
	if s.signer == nil || !s.signer.IsAvailable() {
		return false, types.ErrSignerUnavailable
	}

	if err := s.signer.Connect(ctx); err != nil {
		return false, types.ErrSignerUnavailable.Withf("wallet connection failed").Wrap(err)
	}
	address := s.signer.PublicAddress()
	if address == "" {
		return false, types.ErrSignerUnavailable.Withf("wallet did not expose a public address")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		client, err := s.dial(ctx)
		if err != nil {
			return false, types.ErrNetwork.Withf("failed to connect to %s", s.network).Wrap(err)
		}
		s.client = client
	}
	s.address = address
	s.state = types.Connected

	s.log.Info("wallet connected", map[string]any{
		"network": s.network.String(),
		"address": address,
	})
	return true, nil
}

// Disconnect always leaves the session disconnected. Signer and network
// errors are logged, never returned.
func (s *Session) Disconnect(ctx context.Context) {
	if s.signer != nil {
		if err := s.signer.Disconnect(ctx); err != nil {
			s.log.Warn("wallet disconnect failed", map[string]any{
				"network": s.network.String(),
				"error":   err,
			})
		}
	}

	s.mu.Lock()
	client := s.client
	s.reset()
	s.mu.Unlock()

	if client != nil {
		if err := client.Close(); err != nil {
			s.log.Warn("network client close failed", map[string]any{
				"network": s.network.String(),
				"error":   err,
			})
		}
	}
	s.log.Info("wallet disconnected", map[string]any{"network": s.network.String()})
}

// reset must be called with mu held.
func (s *Session) reset() {
	s.client = nil
	s.address = ""
	s.state = types.Disconnected
}

// dropClient resets the session when its network client has gone away.
func (s *Session) dropClient(client clients.NetworkClient, err error) {
	if !errors.Is(err, clients.ErrClientClosed) {
		return
	}
	s.mu.Lock()
	if s.client == client {
		s.reset()
	}
	s.mu.Unlock()

	s.log.Error("network client lost, session reset", map[string]any{
		"network": s.network.String(),
		"error":   err,
	})
}

// Balance returns the signer's balance in base units. It fails closed: any
// error, including not being connected, yields zero.
func (s *Session) Balance(ctx context.Context) uint64 {
	client, address, ok := s.connected()
	if !ok {
		return 0
	}

	bal, err := client.GetBalance(ctx, address)
	if err != nil {
		s.dropClient(client, err)
		s.log.Warn("balance query failed", map[string]any{
			"network": s.network.String(),
			"address": address,
			"error":   err,
		})
		return 0
	}
	return bal
}

// Transfer sends amount base units to destination and waits for the transfer
// to be confirmed. The confirmation wait is not cut short when ctx is
// cancelled after broadcast: funds may already be moving.
func (s *Session) Transfer(ctx context.Context, destination string, amount uint64) (types.TransactionID, error) {
	client, address, ok := s.connected()
	if !ok {
		return "", types.ErrNotConnected
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		return "", types.ErrTransferInProgress
	}
	defer s.inFlight.Store(false)

	start := time.Now()
	txID, err := s.transfer(ctx, client, address, destination, amount)

	outcome := "confirmed"
	if err != nil {
		outcome = string(types.CategoryOf(err))
	}
	labels := map[string]string{"network": s.network.String(), "outcome": outcome}
	s.metrics.IncCounter(metrics.EventTransfer, labels)
	s.metrics.ObserveLatency(metrics.EventTransfer, time.Since(start), labels)

	return txID, err
}

func (s *Session) transfer(ctx context.Context, client clients.NetworkClient, address, destination string, amount uint64) (types.TransactionID, error) {
	if err := utils.ValidateAddressForNetwork(destination, s.network); err != nil {
		return "", types.ErrInvalidDestination.Wrap(err)
	}
	if amount == 0 {
		return "", types.ErrInvalidAmount
	}

	// Never reuse a checkpoint across attempts; it may have expired.
	cp, err := client.LatestCheckpoint(ctx)
	if err != nil {
		s.dropClient(client, err)
		return "", types.ErrNetwork.Withf("failed to fetch checkpoint").Wrap(err)
	}

	req, err := types.NewTransferRequest(address, destination, amount, cp)
	if err != nil {
		return "", err
	}

	res, err := s.signer.SignAndBroadcast(ctx, req)
	if err != nil {
		return "", types.ErrNetwork.Withf("broadcast failed").Wrap(err)
	}

	switch res.Outcome() {
	case signer.OutcomeDeclined:
		s.log.Info("transfer declined by user", map[string]any{"network": s.network.String(), "amount": amount})
		return "", types.ErrUserRejected

	case signer.OutcomeFailed:
		s.log.Warn("transfer rejected by network", map[string]any{
			"network": s.network.String(),
			"amount":  amount,
			"reason":  res.Reason(),
		})
		return "", types.ErrTransactionFailed.Withf("transaction failed: %s", res.Reason())

	case signer.OutcomeUnknown:
		if res.TxID() == "" {
			return "", types.ErrNetwork.Withf("broadcast outcome unknown: %s", res.Reason())
		}
		// The transfer may be on its way; only confirmation can tell.
		s.log.Warn("broadcast outcome unknown, confirming", map[string]any{
			"network": s.network.String(),
			"tx_id":   res.TxID().String(),
			"amount":  amount,
			"reason":  res.Reason(),
		})

	case signer.OutcomeAccepted:
	default:
		return "", types.ErrNetwork.Withf("signer returned no result")
	}

	txID := res.TxID()
	s.log.Info("transfer broadcast", map[string]any{
		"network":       s.network.String(),
		"tx_id":         txID.String(),
		"amount":        amount,
		"expiry_height": cp.ExpiryHeight,
		"outcome":       res.Outcome().String(),
	})

	result, err := s.confirm(context.WithoutCancel(ctx), client, txID, cp.ExpiryHeight)
	if err != nil {
		// The transfer may still land.
		e := types.ErrConfirmationTimeout.WithTx(txID).Wrap(err)
		e.ExpiryHeight = cp.ExpiryHeight
		return "", e
	}

	switch result.Status {
	case types.StatusConfirmed:
		return txID, nil
	case types.StatusFailed:
		return "", types.ErrTransactionFailed.Withf("transaction failed: %s", result.Reason).WithTx(txID)
	default:
		e := types.ErrConfirmationTimeout.WithTx(txID)
		e.ExpiryHeight = cp.ExpiryHeight
		return "", e
	}
}

// Reconfirm runs one more confirmation wait for a transfer that timed out.
// It moves no funds and does not take the transfer slot.
func (s *Session) Reconfirm(ctx context.Context, txID types.TransactionID, expiryHeight uint64) (types.ConfirmationResult, error) {
	client, _, ok := s.connected()
	if !ok {
		return types.ConfirmationResult{}, types.ErrNotConnected
	}
	result, err := s.confirm(ctx, client, txID, expiryHeight)
	if err != nil {
		return types.ConfirmationResult{}, types.ErrNetwork.Withf("confirmation failed").WithTx(txID).Wrap(err)
	}
	return result, nil
}

func (s *Session) confirm(ctx context.Context, client clients.NetworkClient, txID types.TransactionID, expiryHeight uint64) (types.ConfirmationResult, error) {
	start := time.Now()
	result, err := client.Confirm(ctx, txID, expiryHeight)
	if err != nil {
		s.dropClient(client, err)
		return types.ConfirmationResult{}, err
	}

	labels := map[string]string{"network": s.network.String(), "outcome": string(result.Status)}
	s.metrics.IncCounter(metrics.EventConfirmation, labels)
	s.metrics.ObserveLatency(metrics.EventConfirmation, time.Since(start), labels)

	s.log.Info("transfer confirmation finished", map[string]any{
		"network": s.network.String(),
		"tx_id":   txID.String(),
		"status":  string(result.Status),
		"reason":  result.Reason,
		"height":  result.Height,
	})
	return result, nil
}
