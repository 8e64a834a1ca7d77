package network

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	acceptedCnt prometheus.Counter
	rejectedCnt prometheus.Counter
}

func newMetrics() *metrics {
	const ss = "listener"

	return &metrics{
		acceptedCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "accepted_connections_cnt",
			Subsystem: ss,
			Help:      "Count of accepted client connections",
		}),
		rejectedCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "rejected_connections_cnt",
			Subsystem: ss,
			Help:      "Count of connections rejected by the connection limit",
		}),
	}
}

func (m *metrics) list() []prometheus.Collector {
	return []prometheus.Collector{
		m.acceptedCnt,
		m.rejectedCnt,
	}
}
