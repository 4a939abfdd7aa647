// Package walletpay wires the payment-to-entitlement pipeline for one network:
// a wallet session over a signer and network client, the price catalog and the
// purchase orchestrator that credits confirmed payments.
package walletpay

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vitwit/walletpay/catalog"
	"github.com/vitwit/walletpay/clients"
	"github.com/vitwit/walletpay/ledger"
	"github.com/vitwit/walletpay/logger"
	"github.com/vitwit/walletpay/metrics"
	"github.com/vitwit/walletpay/purchase"
	"github.com/vitwit/walletpay/signer"
	"github.com/vitwit/walletpay/types"
	"github.com/vitwit/walletpay/utils"
	"github.com/vitwit/walletpay/wallet"
)

// Shop is the entry point of the library
type Shop struct {
	config     types.Config
	logger     logger.Logger
	metrics    metrics.Recorder
	registerer prometheus.Registerer
	catalog    *catalog.Catalog
	dial       wallet.DialFunc

	session      *wallet.Session
	orchestrator *purchase.Orchestrator
}

// New validates cfg and builds a disconnected shop. s may be nil when no
// wallet is installed; crediter receives every confirmed purchase.
func New(cfg types.Config, s signer.Signer, crediter ledger.Crediter, opts ...Option) (*Shop, error) {
	shop := &Shop{config: cfg}
	for _, opt := range opts {
		opt(shop)
	}

	if err := utils.ValidateConfig(&shop.config); err != nil {
		return nil, err
	}

	if shop.logger == nil {
		l, err := logger.NewZapLogger(shop.config.LogLevel)
		if err != nil {
			return nil, types.ErrConfig.Withf("failed to build logger").Wrap(err)
		}
		shop.logger = l
	}

	if shop.metrics == nil {
		shop.metrics = metrics.NoopRecorder{}
		if shop.config.EnableMetrics {
			rec, err := metrics.NewPrometheusRecorder(shop.registerer)
			if err != nil {
				return nil, types.ErrConfig.Withf("failed to register metrics").Wrap(err)
			}
			shop.metrics = rec
		}
	}

	if shop.catalog == nil {
		c, err := catalog.FromNames(shop.config.Prices)
		if err != nil {
			return nil, types.ErrConfig.Withf("invalid price table").Wrap(err)
		}
		shop.catalog = c
	}

	if shop.dial == nil {
		cfg := shop.config
		log := shop.logger
		shop.dial = func(ctx context.Context) (clients.NetworkClient, error) {
			return clients.Dial(ctx, cfg, log)
		}
	}

	shop.session = wallet.New(shop.config.Network, s, shop.dial,
		wallet.WithLogger(shop.logger),
		wallet.WithMetrics(shop.metrics),
	)

	orch, err := purchase.New(shop.session, crediter, shop.config.MerchantAddress,
		purchase.WithCatalog(shop.catalog),
		purchase.WithLogger(shop.logger),
		purchase.WithMetrics(shop.metrics),
	)
	if err != nil {
		return nil, err
	}
	shop.orchestrator = orch

	shop.logger.Info("shop ready", map[string]any{
		"network":  shop.config.Network.String(),
		"merchant": shop.config.MerchantAddress,
	})
	return shop, nil
}

// Config returns the validated configuration, defaults applied.
func (s *Shop) Config() types.Config { return s.config }

func (s *Shop) Session() *wallet.Session { return s.session }

func (s *Shop) Orchestrator() *purchase.Orchestrator { return s.orchestrator }

// Catalog is the price table purchases are currently quoted from.
func (s *Shop) Catalog() *catalog.Catalog { return s.orchestrator.Catalog() }

// Connect connects the wallet and the network.
func (s *Shop) Connect(ctx context.Context) error {
	_, err := s.session.Connect(ctx)
	return err
}

// Balance is the connected wallet's balance in base units, zero on any error.
func (s *Shop) Balance(ctx context.Context) uint64 {
	return s.session.Balance(ctx)
}

// Close disconnects the wallet and flushes the logger.
func (s *Shop) Close(ctx context.Context) error {
	s.session.Disconnect(ctx)
	if z, ok := s.logger.(interface{ Sync() error }); ok {
		// zap returns EINVAL syncing stderr on some platforms
		_ = z.Sync()
	}
	return nil
}
