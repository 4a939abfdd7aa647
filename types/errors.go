package types

import (
	"errors"
	"fmt"
)

// Error is the error type returned across the payment pipeline.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// TxID is set once a transfer has been broadcast.
	TxID TransactionID `json:"txId,omitempty"`
	// ExpiryHeight is the checkpoint expiry of a timed out transfer.
	ExpiryHeight uint64 `json:"expiryHeight,omitempty"`
	Err          error  `json:"-"`
}

func (e *Error) Error() string {
	msg := e.Message
	if e.TxID != "" {
		msg = fmt.Sprintf("%s (tx %s)", msg, e.TxID)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error carrying the same code, so callers can compare
// against the sentinel values below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Category groups the error for user-facing reporting.
func (e *Error) Category() Category {
	return categoryOf(e.Code)
}

// Retryable reports whether a fresh transfer may be attempted. Timeouts and
// credit failures are never retryable by re-sending funds.
func (e *Error) Retryable() bool {
	return e.Code == ErrCodeTransactionFailed || e.Code == ErrCodeNetworkError
}

// Common error codes
const (
	ErrCodeSignerUnavailable   = "SIGNER_UNAVAILABLE"
	ErrCodeNotConnected        = "NOT_CONNECTED"
	ErrCodeWalletNotConnected  = "WALLET_NOT_CONNECTED"
	ErrCodeNetworkError        = "NETWORK_ERROR"
	ErrCodeUserRejected        = "USER_REJECTED"
	ErrCodeTransactionFailed   = "TRANSACTION_FAILED"
	ErrCodeConfirmationTimeout = "CONFIRMATION_TIMEOUT"
	ErrCodeCreditFailed        = "CREDIT_FAILED"
	ErrCodeInvalidDestination  = "INVALID_DESTINATION"
	ErrCodeInvalidAmount       = "INVALID_AMOUNT"
	ErrCodeInvalidQuantity     = "INVALID_QUANTITY"
	ErrCodeInvalidKind         = "INVALID_KIND"
	ErrCodeTransferInProgress  = "TRANSFER_IN_PROGRESS"
	ErrCodeUnknownPurchase     = "UNKNOWN_PURCHASE"
	ErrCodeConfigError         = "CONFIG_ERROR"
	ErrCodeUnsupportedNetwork  = "UNSUPPORTED_NETWORK"
)

// Sentinels for errors.Is.
var (
	ErrSignerUnavailable   = &Error{Code: ErrCodeSignerUnavailable, Message: "no wallet signer available"}
	ErrNotConnected        = &Error{Code: ErrCodeNotConnected, Message: "wallet session is not connected"}
	ErrWalletNotConnected  = &Error{Code: ErrCodeWalletNotConnected, Message: "please connect your wallet first"}
	ErrNetwork             = &Error{Code: ErrCodeNetworkError, Message: "network request failed"}
	ErrUserRejected        = &Error{Code: ErrCodeUserRejected, Message: "transaction was rejected by user"}
	ErrTransactionFailed   = &Error{Code: ErrCodeTransactionFailed, Message: "transaction failed"}
	ErrConfirmationTimeout = &Error{Code: ErrCodeConfirmationTimeout, Message: "transaction not confirmed before its checkpoint expired"}
	ErrCreditFailed        = &Error{Code: ErrCodeCreditFailed, Message: "payment confirmed but crediting the entitlement failed"}
	ErrInvalidDestination  = &Error{Code: ErrCodeInvalidDestination, Message: "invalid destination address"}
	ErrInvalidAmount       = &Error{Code: ErrCodeInvalidAmount, Message: "invalid transfer amount"}
	ErrInvalidQuantity     = &Error{Code: ErrCodeInvalidQuantity, Message: "quantity must be at least 1"}
	ErrInvalidKind         = &Error{Code: ErrCodeInvalidKind, Message: "entitlement kind cannot be bought this way"}
	ErrTransferInProgress  = &Error{Code: ErrCodeTransferInProgress, Message: "another transfer is already in progress"}
	ErrUnknownPurchase     = &Error{Code: ErrCodeUnknownPurchase, Message: "no pending purchase for transaction"}
	ErrConfig              = &Error{Code: ErrCodeConfigError, Message: "invalid configuration"}
	ErrUnsupportedNetwork  = &Error{Code: ErrCodeUnsupportedNetwork, Message: "unsupported network"}
)

// NewError creates an *Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates an *Error with the given code around err.
func WrapError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithTx returns a copy of e bound to a transaction.
func (e *Error) WithTx(id TransactionID) *Error {
	c := *e
	c.TxID = id
	return &c
}

// Wrap returns a copy of e with err as its cause.
func (e *Error) Wrap(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// Withf returns a copy of e with a formatted message.
func (e *Error) Withf(format string, args ...any) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

// Category is a user-facing class of failure.
type Category string

const (
	CategoryConnectivity        Category = "connectivity"
	CategoryUserDeclined        Category = "user_declined"
	CategoryNetworkRejection    Category = "network_rejection"
	CategoryConfirmationTimeout Category = "confirmation_timeout"
	CategoryCredit              Category = "credit"
	CategoryRequest             Category = "request"
	CategoryUnknown             Category = "unknown"
)

func categoryOf(code string) Category {
	switch code {
	case ErrCodeSignerUnavailable, ErrCodeNotConnected, ErrCodeWalletNotConnected, ErrCodeNetworkError:
		return CategoryConnectivity
	case ErrCodeUserRejected:
		return CategoryUserDeclined
	case ErrCodeTransactionFailed:
		return CategoryNetworkRejection
	case ErrCodeConfirmationTimeout:
		return CategoryConfirmationTimeout
	case ErrCodeCreditFailed:
		return CategoryCredit
	case ErrCodeInvalidDestination, ErrCodeInvalidAmount, ErrCodeInvalidQuantity, ErrCodeInvalidKind,
		ErrCodeTransferInProgress, ErrCodeUnknownPurchase, ErrCodeConfigError, ErrCodeUnsupportedNetwork:
		return CategoryRequest
	default:
		return CategoryUnknown
	}
}

// CategoryOf returns the category of err, or CategoryUnknown when err is not an *Error.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category()
	}
	return CategoryUnknown
}

var userMessages = map[Category]string{
	CategoryConnectivity:        "Your wallet or the network is not reachable. Connect your wallet and check your connection.",
	CategoryUserDeclined:        "You declined the transaction in your wallet. Nothing was charged.",
	CategoryNetworkRejection:    "The network rejected the transaction. Nothing was charged; you can try the purchase again.",
	CategoryConfirmationTimeout: "The payment was sent but not confirmed in time. Do not pay again; it will be checked later.",
	CategoryCredit:              "Your payment went through but the item could not be added yet. It will be added without charging you again.",
	CategoryRequest:             "This purchase request is not valid right now.",
	CategoryUnknown:             "Something went wrong with this purchase.",
}

// UserMessage returns a distinct, actionable message for each failure category.
func UserMessage(err error) string {
	return userMessages[CategoryOf(err)]
}
