// Package metrics provides Prometheus metrics collection for the billing
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the engine.
type Collector struct {
	// Admin API metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Ledger metrics
	LedgerMutations *prometheus.CounterVec

	// Invoice metrics
	InvoicesComposed   *prometheus.CounterVec
	InvoiceTransitions *prometheus.CounterVec

	// Gateway metrics
	GatewayErrors   *prometheus.CounterVec
	GatewayDuration *prometheus.HistogramVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

// New creates a new metrics collector registered on the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tillstack",
				Name:      "requests_total",
				Help:      "Total number of admin API requests processed",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tillstack",
				Name:      "request_duration_seconds",
				Help:      "Admin API request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path", "status"},
		),
		LedgerMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tillstack",
				Name:      "ledger_mutations_total",
				Help:      "Total number of add-on ledger mutations",
			},
			[]string{"operation"},
		),
		InvoicesComposed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tillstack",
				Name:      "invoices_composed_total",
				Help:      "Total number of invoices composed",
			},
			[]string{"type"},
		),
		InvoiceTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tillstack",
				Name:      "invoice_transitions_total",
				Help:      "Total number of invoice lifecycle transitions",
			},
			[]string{"from", "to"},
		),
		GatewayErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tillstack",
				Name:      "gateway_errors_total",
				Help:      "Total number of upstream billing gateway failures",
			},
			[]string{"operation"},
		),
		GatewayDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tillstack",
				Name:      "gateway_duration_seconds",
				Help:      "Upstream billing gateway call duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tillstack",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "tillstack",
				Name:      "config_reload_errors_total",
				Help:      "Total number of failed config reloads",
			},
		),
	}
}
