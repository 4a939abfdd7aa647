package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	labels := map[string]string{"network": "solana-devnet", "outcome": "confirmed"}
	rec.IncCounter(EventTransfer, labels)
	rec.IncCounter(EventTransfer, labels)
	rec.IncCounter(EventTransfer, map[string]string{"network": "solana-devnet", "outcome": "declined"})
	rec.ObserveLatency(EventConfirmation, 3*time.Second, labels)

	confirmed := rec.counters.WithLabelValues(EventTransfer, "solana-devnet", "confirmed")
	assert.Equal(t, 2.0, testutil.ToFloat64(confirmed))
	assert.Equal(t, 2, testutil.CollectAndCount(rec.counters))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.histogram))
}

func TestPrometheusRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewPrometheusRecorder(reg)
	require.NoError(t, err)

	_, err = NewPrometheusRecorder(reg)
	assert.Error(t, err)
}
