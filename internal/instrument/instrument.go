// Package instrument records timings and counters for imports, exports and
// tree writes, and exposes them in Prometheus format.
package instrument

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Instrumenter starts spans around engine operations and counts node writes.
type Instrumenter interface {
	StartSpan(ctx context.Context, component, action string) (context.Context, Span)
	CountNodes(op string, n int)
}

// Span measures one operation. Status defaults to "ok".
type Span interface {
	End()
	SetStatus(status string)
}

// Metrics is the Prometheus-backed Instrumenter. Each instance owns its
// registry so several can coexist in tests.
type Metrics struct {
	Registry *prometheus.Registry

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	NodesTotal        *prometheus.CounterVec
	InFlight          *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "configtree_operations_total",
				Help: "Total number of engine operations",
			},
			[]string{"component", "action", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "configtree_operation_duration_seconds",
				Help:    "Duration of engine operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"component", "action"},
		),
		NodesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "configtree_nodes_total",
				Help: "Config nodes touched, by operation",
			},
			[]string{"op"},
		),
		InFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "configtree_operations_in_flight",
				Help: "Engine operations currently running",
			},
			[]string{"component"},
		),
	}
}

func (m *Metrics) StartSpan(ctx context.Context, component, action string) (context.Context, Span) {
	m.InFlight.WithLabelValues(component).Inc()
	return ctx, &metricSpan{m: m, component: component, action: action, status: "ok", start: time.Now()}
}

func (m *Metrics) CountNodes(op string, n int) {
	if n > 0 {
		m.NodesTotal.WithLabelValues(op).Add(float64(n))
	}
}

type metricSpan struct {
	m         *Metrics
	component string
	action    string
	status    string
	start     time.Time
	ended     bool
}

func (s *metricSpan) SetStatus(status string) { s.status = status }

func (s *metricSpan) End() {
	if s.ended {
		return
	}
	s.ended = true
	s.m.InFlight.WithLabelValues(s.component).Dec()
	s.m.OperationsTotal.WithLabelValues(s.component, s.action, s.status).Inc()
	s.m.OperationDuration.WithLabelValues(s.component, s.action).Observe(time.Since(s.start).Seconds())
}
