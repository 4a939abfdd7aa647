package clients

// Reasons attached to failed and timed out confirmation results.
const (
	ReasonBlockHeightExceeded = "block_height_exceeded"
	ReasonTooManyPollErrors   = "confirmation_poll_errors"
	ReasonTransactionReverted = "transaction_reverted"
	ReasonTransactionError    = "transaction_error"
)
