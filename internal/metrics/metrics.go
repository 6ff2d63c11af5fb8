// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is the instrumentation interface the worker and engine use.
type Collector interface {
	RecordCycle()
	RecordFetchError()
	RecordEvent(eventType string)
	RecordNotificationSent()
	RecordNotificationSuppressed()
	SetProductsTracked(n int)
}

// Prometheus implements Collector with Prometheus metrics.
type Prometheus struct {
	cycles          prometheus.Counter
	fetchErrors     prometheus.Counter
	events          *prometheus.CounterVec
	notifSent       prometheus.Counter
	notifSuppressed prometheus.Counter
	productsTracked prometheus.Gauge
}

// NewPrometheus creates a collector and registers its metrics.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	c := &Prometheus{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bamwatch_cycles_total",
			Help: "Completed check cycles.",
		}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bamwatch_fetch_errors_total",
			Help: "Upstream fetches that failed after retries.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bamwatch_change_events_total",
			Help: "Classified change events by type.",
		}, []string{"type"}),
		notifSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bamwatch_notifications_sent_total",
			Help: "Notifications dispatched to outbound channels.",
		}),
		notifSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bamwatch_notifications_suppressed_total",
			Help: "Notifications suppressed by the dedup gate.",
		}),
		productsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bamwatch_products_tracked",
			Help: "Products currently in the product store.",
		}),
	}
	reg.MustRegister(c.cycles, c.fetchErrors, c.events, c.notifSent, c.notifSuppressed, c.productsTracked)
	return c
}

// RecordCycle counts one completed check cycle.
func (c *Prometheus) RecordCycle() { c.cycles.Inc() }

// RecordFetchError counts one failed upstream fetch.
func (c *Prometheus) RecordFetchError() { c.fetchErrors.Inc() }

// RecordEvent counts one classified change event.
func (c *Prometheus) RecordEvent(eventType string) {
	c.events.WithLabelValues(eventType).Inc()
}

// RecordNotificationSent counts one dispatched notification.
func (c *Prometheus) RecordNotificationSent() { c.notifSent.Inc() }

// RecordNotificationSuppressed counts one gated notification.
func (c *Prometheus) RecordNotificationSuppressed() { c.notifSuppressed.Inc() }

// SetProductsTracked records the product store size.
func (c *Prometheus) SetProductsTracked(n int) { c.productsTracked.Set(float64(n)) }

// Handler returns the HTTP handler exposing metrics from the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Nop is a Collector that discards everything (useful for testing).
type Nop struct{}

func (Nop) RecordCycle()                  {}
func (Nop) RecordFetchError()             {}
func (Nop) RecordEvent(string)            {}
func (Nop) RecordNotificationSent()       {}
func (Nop) RecordNotificationSuppressed() {}
func (Nop) SetProductsTracked(int)        {}
