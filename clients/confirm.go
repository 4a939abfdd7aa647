package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/vitwit/walletpay/logger"
	"github.com/vitwit/walletpay/types"
)

// statusFunc reports the current status of a transaction. done is false while
// the transaction is unknown or below the wanted commitment.
type statusFunc func(ctx context.Context) (res types.ConfirmationResult, done bool, err error)

// heightFunc returns the current chain height, in the same unit as checkpoint expiry heights.
type heightFunc func(ctx context.Context) (uint64, error)

type poller struct {
	network types.Network
	cfg     PollConfig
	log     logger.Logger
}

func (p poller) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()
	return fn(ctx)
}

// wait polls status until it is done or the chain height passes expiry. A
// transaction first seen after expiry is still reported, so the status is
// checked once more before giving up.
func (p poller) wait(
	ctx context.Context,
	txID types.TransactionID,
	expiry uint64,
	status statusFunc,
	height heightFunc,
) (types.ConfirmationResult, error) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	var (
		lastHeight uint64
		failures   int
	)

	for {
		var (
			res  types.ConfirmationResult
			done bool
		)
		err := p.call(ctx, func(ctx context.Context) (err error) {
			res, done, err = status(ctx)
			return err
		})
		if err == nil && done {
			return res, nil
		}

		if err == nil {
			var h uint64
			err = p.call(ctx, func(ctx context.Context) (err error) {
				h, err = height(ctx)
				return err
			})
			if err == nil {
				lastHeight = h
				failures = 0

				if h > expiry {
					var final types.ConfirmationResult
					ferr := p.call(ctx, func(ctx context.Context) (err error) {
						final, done, err = status(ctx)
						return err
					})
					if ferr == nil && done {
						return final, nil
					}
					return types.TimedOut(
						fmt.Sprintf("%s: height %d passed expiry %d", ReasonBlockHeightExceeded, h, expiry), h), nil
				}
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return types.ConfirmationResult{}, ctx.Err()
			}
			failures++
			p.log.Warn("confirmation poll failed", map[string]any{
				"network":  p.network.String(),
				"tx_id":    txID.String(),
				"attempt":  failures,
				"error":    err,
				"max_errs": p.cfg.MaxErrors,
			})
			if failures >= p.cfg.MaxErrors {
				return types.TimedOut(
					fmt.Sprintf("%s: %d consecutive failures, last: %v", ReasonTooManyPollErrors, failures, err), lastHeight), nil
			}
		}

		select {
		case <-ctx.Done():
			return types.ConfirmationResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
