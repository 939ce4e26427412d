package tracelogger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the optional SDK counters. All methods are nil-safe so the
// hot path never branches on whether a Registerer was supplied.
type metrics struct {
	capturesTotal  prometheus.Counter
	recordsTotal   *prometheus.CounterVec
	exportFailures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &metrics{
		capturesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "trace_logger_captures_total",
			Help: "Total number of capture scopes opened",
		}),
		recordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trace_logger_records_exported_total",
			Help: "Total number of trace records delivered to the observability API",
		}, []string{"direction"}),
		exportFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "trace_logger_export_failures_total",
			Help: "Total number of trace record exports that failed",
		}),
	}
}

func (m *metrics) captureStarted() {
	if m == nil {
		return
	}
	m.capturesTotal.Inc()
}

func (m *metrics) exported(direction Direction) {
	if m == nil {
		return
	}
	m.recordsTotal.WithLabelValues(string(direction)).Inc()
}

func (m *metrics) exportFailed() {
	if m == nil {
		return
	}
	m.exportFailures.Inc()
}
