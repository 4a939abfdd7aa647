// Package signer adapts wallets to a narrow sign-and-broadcast contract.
//
// A Signer never confirms transactions; it only reports whether the network
// accepted the signed transfer. Implementations cover local keypairs, used on
// devnets and in tests, and bridges to external wallets that hold the key.
package signer

import (
	"context"
	"errors"
	"fmt"

	"github.com/vitwit/walletpay/types"
)

// Signer holds the user's key material, or a handle to a wallet that does.
type Signer interface {
	// IsAvailable reports whether the wallet is installed or configured.
	IsAvailable() bool
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	// PublicAddress is empty until Connect succeeds.
	PublicAddress() string
	// SignAndBroadcast signs req and submits it. A user decline or a network
	// rejection is a result, not an error; errors are transport failures.
	SignAndBroadcast(ctx context.Context, req types.TransferRequest) (BroadcastResult, error)
}

// ErrDeclined is returned by wallet bridges when the user refuses to sign.
var ErrDeclined = errors.New("signer: user declined")

// Outcome of a sign-and-broadcast attempt.
type Outcome int

const (
	OutcomeAccepted Outcome = iota + 1
	OutcomeDeclined
	OutcomeFailed
	// OutcomeUnknown: the signed transfer was sent but the node's answer was
	// lost. It may still land.
	OutcomeUnknown
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDeclined:
		return "declined"
	case OutcomeFailed:
		return "failed"
	case OutcomeUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// BroadcastResult is Accepted(txID), Declined, Failed(reason) or
// Unknown(txID, reason).
type BroadcastResult struct {
	outcome Outcome
	txID    types.TransactionID
	reason  string
}

// Accepted means the network took the transfer; it is not confirmed yet.
func Accepted(txID types.TransactionID) BroadcastResult {
	return BroadcastResult{outcome: OutcomeAccepted, txID: txID}
}

// Declined means the user refused to sign. Nothing was submitted.
func Declined() BroadcastResult {
	return BroadcastResult{outcome: OutcomeDeclined}
}

// Failed means the network rejected the signed transfer.
func Failed(reason string) BroadcastResult {
	return BroadcastResult{outcome: OutcomeFailed, reason: reason}
}

// Unknown means the signed transfer left the process but the broadcast did
// not complete, e.g. the connection dropped before the node answered. txID is
// the locally computed id; the transfer must be confirmed, never re-sent.
func Unknown(txID types.TransactionID, reason string) BroadcastResult {
	return BroadcastResult{outcome: OutcomeUnknown, txID: txID, reason: reason}
}

func (r BroadcastResult) Outcome() Outcome          { return r.outcome }
func (r BroadcastResult) TxID() types.TransactionID { return r.txID }
func (r BroadcastResult) Reason() string            { return r.reason }

func (r BroadcastResult) String() string {
	switch r.outcome {
	case OutcomeAccepted:
		return "accepted " + r.txID.String()
	case OutcomeFailed:
		return "failed: " + r.reason
	case OutcomeUnknown:
		return "unknown " + r.txID.String() + ": " + r.reason
	default:
		return r.outcome.String()
	}
}

// Approver stands in for the wallet confirmation prompt of local signers.
// Returning false declines the transfer.
type Approver func(ctx context.Context, req types.TransferRequest) (bool, error)

// AutoApprove approves every transfer.
func AutoApprove(context.Context, types.TransferRequest) (bool, error) { return true, nil }

// LocalOption configures the local keypair signers.
type LocalOption func(*localConfig)

type localConfig struct {
	approve Approver
}

// WithApprover installs an approval prompt. The default approves everything.
func WithApprover(a Approver) LocalOption {
	return func(c *localConfig) {
		if a != nil {
			c.approve = a
		}
	}
}

func newLocalConfig(opts []LocalOption) localConfig {
	cfg := localConfig{approve: AutoApprove}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}
