package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/horockey/go-toolbox/options"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// DefaultSweepInterval is the period between two sweeper passes.
const DefaultSweepInterval = time.Second

// Sweeper periodically evicts expired keys from a Store.
type Sweeper struct {
	store    *Store
	interval time.Duration
	logger   zerolog.Logger
	metrics  *sweeperMetrics
}

type sweeperParams struct {
	interval time.Duration
}

// Sets custom sweep period.
// Default is 1s.
func WithSweepInterval(d time.Duration) options.Option[sweeperParams] {
	return func(target *sweeperParams) error {
		if d <= 0 {
			return fmt.Errorf("sweep interval must be positive, got: %s", d.String())
		}
		target.interval = d
		return nil
	}
}

// NewSweeper creates a sweeper for store.
func NewSweeper(store *Store, logger zerolog.Logger, opts ...options.Option[sweeperParams]) (*Sweeper, error) {
	if store == nil {
		return nil, errors.New("got nil store")
	}
	params := sweeperParams{interval: DefaultSweepInterval}
	if err := options.ApplyOptions(&params, opts...); err != nil {
		return nil, fmt.Errorf("applying opts: %w", err)
	}

	return &Sweeper{
		store:    store,
		interval: params.interval,
		logger:   logger,
		metrics:  newSweeperMetrics(),
	}, nil
}

// Run sweeps on every tick until ctx is cancelled.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	sw.logger.Debug().Dur("interval", sw.interval).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			sw.logger.Debug().Msg("sweeper stopped")
			return
		case <-ticker.C:
			sw.SweepOnce()
		}
	}
}

// SweepOnce runs a single eviction pass and returns the evicted keys.
func (sw *Sweeper) SweepOnce() []string {
	removed := sw.store.DeleteExpired(sw.store.Now())

	sw.metrics.passesCnt.Inc()
	if len(removed) > 0 {
		sw.metrics.evictedCnt.Add(float64(len(removed)))
		sw.logger.Debug().Int("count", len(removed)).Msg("evicted expired keys")
	}
	return removed
}

// Metrics returns the sweeper collectors.
func (sw *Sweeper) Metrics() []prometheus.Collector {
	return sw.metrics.list()
}
