package walletpay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vitwit/walletpay/catalog"
	"github.com/vitwit/walletpay/logger"
	"github.com/vitwit/walletpay/metrics"
	"github.com/vitwit/walletpay/wallet"
)

type Option func(*Shop)

func WithLogger(l logger.Logger) Option {
	return func(s *Shop) {
		s.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Shop) {
		s.metrics = r
	}
}

// WithRegisterer sets where the prometheus collectors are registered when
// metrics are enabled. The default is prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Shop) {
		s.registerer = reg
	}
}

// WithCatalog replaces the price table built from the config.
func WithCatalog(c *catalog.Catalog) Option {
	return func(s *Shop) {
		s.catalog = c
	}
}

// WithDialer replaces the network client dialer, mostly for tests.
func WithDialer(dial wallet.DialFunc) Option {
	return func(s *Shop) {
		s.dial = dial
	}
}

func WithTimeout(t time.Duration) Option {
	return func(s *Shop) {
		s.config.RequestTimeout = t
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Shop) {
		s.config.PollInterval = d
	}
}
