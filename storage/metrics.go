package storage

import (
	"github.com/prometheus/client_golang/prometheus"
)

const subsystem = "storage"

type metrics struct {
	keysGauge      prometheus.GaugeFunc
	lazyExpiredCnt prometheus.Counter
}

func newMetrics(s *Store) *metrics {
	return &metrics{
		keysGauge: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:      "keys_gauge",
			Subsystem: subsystem,
			Help:      "Count of keys held, including expired keys not yet swept",
		}, func() float64 {
			return float64(s.Len())
		}),
		lazyExpiredCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "lazy_expired_cnt",
			Subsystem: subsystem,
			Help:      "Count of keys removed on read after their deadline",
		}),
	}
}

func (m *metrics) list() []prometheus.Collector {
	return []prometheus.Collector{
		m.keysGauge,
		m.lazyExpiredCnt,
	}
}

type sweeperMetrics struct {
	passesCnt  prometheus.Counter
	evictedCnt prometheus.Counter
}

func newSweeperMetrics() *sweeperMetrics {
	return &sweeperMetrics{
		passesCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "sweep_passes_cnt",
			Subsystem: subsystem,
			Help:      "Count of finished sweeper passes",
		}),
		evictedCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "sweep_evicted_cnt",
			Subsystem: subsystem,
			Help:      "Count of keys evicted by the sweeper",
		}),
	}
}

func (m *sweeperMetrics) list() []prometheus.Collector {
	return []prometheus.Collector{
		m.passesCnt,
		m.evictedCnt,
	}
}
