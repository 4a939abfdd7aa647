package metrics

import "time"

// Event names recorded by the pipeline.
const (
	EventTransfer     = "transfer"
	EventConfirmation = "confirmation"
	EventPurchase     = "purchase"
	EventCredit       = "credit"
	EventPriceDrift   = "price_drift"
)

// Recorder receives pipeline counters and latencies. Labels carry at least
// "network" and "outcome".
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// OrNoop returns r, or a NoopRecorder when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return NoopRecorder{}
	}
	return r
}
