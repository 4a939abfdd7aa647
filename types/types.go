package types

import (
	"fmt"
	"time"
)

// TransactionID identifies a broadcast transfer. It is a base58 signature on
// Solana, a 0x-prefixed hash on EVM networks and an upper-case hex hash on Cosmos.
type TransactionID string

func (id TransactionID) String() string {
	return string(id)
}

// Checkpoint is a recent, time-bounded reference point on the ledger that a
// transfer is built against. A transfer built against a checkpoint is rejected
// once the chain height passes ExpiryHeight.
type Checkpoint struct {
	BlockHash    string `json:"blockHash"`
	ExpiryHeight uint64 `json:"expiryHeight"`
}

// TransferRequest is an immutable native token transfer, ready to be signed.
// Build it with NewTransferRequest.
type TransferRequest struct {
	feePayer    string
	destination string
	amount      uint64
	checkpoint  Checkpoint
}

// NewTransferRequest builds a transfer of amount base units from feePayer to
// destination, anchored at checkpoint.
func NewTransferRequest(feePayer, destination string, amount uint64, checkpoint Checkpoint) (TransferRequest, error) {
	if amount == 0 {
		return TransferRequest{}, NewError(ErrCodeInvalidAmount, "transfer amount must be greater than 0")
	}
	if destination == "" {
		return TransferRequest{}, NewError(ErrCodeInvalidDestination, "destination address is required")
	}
	if feePayer == "" {
		return TransferRequest{}, NewError(ErrCodeNotConnected, "fee payer address is required")
	}
	if checkpoint.BlockHash == "" {
		return TransferRequest{}, NewError(ErrCodeNetworkError, "checkpoint block hash is required")
	}

	return TransferRequest{
		feePayer:    feePayer,
		destination: destination,
		amount:      amount,
		checkpoint:  checkpoint,
	}, nil
}

func (r TransferRequest) FeePayer() string       { return r.feePayer }
func (r TransferRequest) Destination() string    { return r.destination }
func (r TransferRequest) Amount() uint64         { return r.amount }
func (r TransferRequest) Checkpoint() Checkpoint { return r.checkpoint }

func (r TransferRequest) String() string {
	return fmt.Sprintf("transfer %d from %s to %s (expires at %d)",
		r.amount, r.feePayer, r.destination, r.checkpoint.ExpiryHeight)
}

// ConfirmationStatus is the terminal state of a confirmation wait.
type ConfirmationStatus string

const (
	StatusConfirmed ConfirmationStatus = "confirmed"
	StatusFailed    ConfirmationStatus = "failed"
	StatusTimedOut  ConfirmationStatus = "timed_out"
)

// ConfirmationResult contains the outcome of waiting for a transfer to land.
type ConfirmationResult struct {
	Status ConfirmationStatus `json:"status"`
	// Reason is set when Status is StatusFailed or StatusTimedOut.
	Reason string `json:"reason,omitempty"`
	// Height is the slot or block height the status was observed at.
	Height uint64 `json:"height,omitempty"`
}

func Confirmed(height uint64) ConfirmationResult {
	return ConfirmationResult{Status: StatusConfirmed, Height: height}
}

func Failed(reason string, height uint64) ConfirmationResult {
	return ConfirmationResult{Status: StatusFailed, Reason: reason, Height: height}
}

func TimedOut(reason string, height uint64) ConfirmationResult {
	return ConfirmationResult{Status: StatusTimedOut, Reason: reason, Height: height}
}

// ConnectionState of a wallet session.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connected
)

func (s ConnectionState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Config contains the deployment configuration of a shop.
type Config struct {
	Network Network `yaml:"network" validate:"required"`
	RPCUrl  string  `yaml:"rpcUrl" validate:"required"`
	// GRPCUrl is used by Cosmos networks for queries.
	GRPCUrl string `yaml:"grpcUrl,omitempty"`
	// Denom is the Cosmos bank denomination payments are made in.
	Denom string `yaml:"denom,omitempty"`

	// MerchantAddress receives every payment.
	MerchantAddress string `yaml:"merchantAddress" validate:"required"`

	// Commitment is the Solana commitment level used for reads and confirmation.
	Commitment string `yaml:"commitment,omitempty" validate:"omitempty,oneof=processed confirmed finalized"`

	PollInterval time.Duration `yaml:"pollInterval,omitempty" validate:"gte=0"`
	// ExpiryBlocks bounds confirmation on networks without a native blockhash expiry.
	ExpiryBlocks   uint64        `yaml:"expiryBlocks,omitempty"`
	MaxPollErrors  int           `yaml:"maxPollErrors,omitempty" validate:"gte=0"`
	RequestTimeout time.Duration `yaml:"requestTimeout,omitempty" validate:"gte=0"`

	LogLevel      string `yaml:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error"`
	EnableMetrics bool   `yaml:"enableMetrics,omitempty"`

	// Prices overrides catalog prices, keyed by entitlement kind name, in base units.
	Prices map[string]uint64 `yaml:"prices,omitempty" validate:"dive,gt=0"`
}

const (
	DefaultCommitment     = "confirmed"
	DefaultExpiryBlocks   = 50
	DefaultMaxPollErrors  = 5
	DefaultRequestTimeout = 30 * time.Second
)

// DefaultPollInterval returns the confirmation poll interval for a network,
// roughly a few of its block intervals.
func DefaultPollInterval(n Network) time.Duration {
	switch n.Family() {
	case ChainSolana:
		return 2 * time.Second
	case ChainEVM:
		return 4 * time.Second
	case ChainCosmos:
		return 6 * time.Second
	default:
		return 5 * time.Second
	}
}

// ApplyDefaults fills unset optional fields.
func (c *Config) ApplyDefaults() {
	if c.Commitment == "" && c.Network.IsSolana() {
		c.Commitment = DefaultCommitment
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval(c.Network)
	}
	if c.ExpiryBlocks == 0 {
		c.ExpiryBlocks = DefaultExpiryBlocks
	}
	if c.MaxPollErrors == 0 {
		c.MaxPollErrors = DefaultMaxPollErrors
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
