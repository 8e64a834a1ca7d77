package persistence

import (
	"github.com/horockey/go-toolbox/prometheus_helpers"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	saveTimeHist  prometheus.Histogram
	saveCnt       prometheus.Counter
	saveErrCnt    prometheus.Counter
	loadErrCnt    prometheus.Counter
	lastSaveGauge prometheus.Gauge
}

func newMetrics() *metrics {
	const ss = "persistence"

	return &metrics{
		saveTimeHist: prometheus.NewHistogram(*prometheus_helpers.NewHistOpts(
			"save_time_hist",
			prometheus_helpers.HistOptsWithSubsystem(ss),
			prometheus_helpers.HistOptsWithHelp("Snapshot save time distribution"),
		)),
		saveCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "saves_cnt",
			Subsystem: ss,
			Help:      "Count of successful snapshot saves",
		}),
		saveErrCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "save_errs_cnt",
			Subsystem: ss,
			Help:      "Count of failed snapshot saves",
		}),
		loadErrCnt: prometheus.NewCounter(prometheus.CounterOpts{
			Name:      "load_errs_cnt",
			Subsystem: ss,
			Help:      "Count of snapshots rejected on load",
		}),
		lastSaveGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:      "last_save_timestamp_seconds",
			Subsystem: ss,
			Help:      "Capture time of the last successful save",
		}),
	}
}

func (m *metrics) list() []prometheus.Collector {
	return []prometheus.Collector{
		m.saveTimeHist,
		m.saveCnt,
		m.saveErrCnt,
		m.loadErrCnt,
		m.lastSaveGauge,
	}
}
