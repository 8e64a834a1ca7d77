package server

import (
	"time"

	"github.com/horockey/go-toolbox/prometheus_helpers"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	handleTimeHist *prometheus.HistogramVec
	commandsCnt    *prometheus.CounterVec
}

func newMetrics() *metrics {
	const ss = "dispatcher"

	return &metrics{
		handleTimeHist: prometheus.NewHistogramVec(*prometheus_helpers.NewHistOpts(
			"handle_time_hist",
			prometheus_helpers.HistOptsWithSubsystem(ss),
			prometheus_helpers.HistOptsWithHelp("Command handle time distribution"),
		), []string{"command"}),
		commandsCnt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:      "commands_cnt",
			Subsystem: ss,
			Help:      "Count of dispatched commands by outcome",
		}, []string{"command", "outcome"}),
	}
}

func (m *metrics) observe(command string, reply Reply, took time.Duration) {
	outcome := "ok"
	if reply.Kind == KindError {
		outcome = "error"
	}
	m.commandsCnt.WithLabelValues(command, outcome).Inc()
	m.handleTimeHist.WithLabelValues(command).Observe(float64(took))
}

func (m *metrics) list() []prometheus.Collector {
	return []prometheus.Collector{
		m.handleTimeHist,
		m.commandsCnt,
	}
}
