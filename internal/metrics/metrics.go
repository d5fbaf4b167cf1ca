// Package metrics exposes Prometheus counters for the session core: refresh
// cycles, placeholder lifecycle and sends.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the instrument set. Created once per process against its own
// registry so tests can build isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	RefreshesTotal *prometheus.CounterVec

	PlaceholdersCreated    prometheus.Counter
	PlaceholdersReconciled prometheus.Counter
	PlaceholdersExpired    prometheus.Counter
	PlaceholdersPending    prometheus.Gauge

	SendsTotal *prometheus.CounterVec
	SendChunks prometheus.Counter

	BurstsScheduled prometheus.Counter
}

// New creates a Metrics instance backed by a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		RefreshesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailview_folder_refreshes_total",
				Help: "Folder refresh cycles by outcome",
			},
			[]string{"folder", "outcome"},
		),

		PlaceholdersCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailview_placeholders_created_total",
				Help: "Local placeholders created for outgoing messages",
			},
		),

		PlaceholdersReconciled: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailview_placeholders_reconciled_total",
				Help: "Placeholders matched to a server message and removed",
			},
		),

		PlaceholdersExpired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailview_placeholders_expired_total",
				Help: "Placeholders dropped after exceeding their TTL",
			},
		),

		PlaceholdersPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailview_placeholders_pending",
				Help: "Placeholders currently awaiting a server echo",
			},
		),

		SendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailview_sends_total",
				Help: "Send attempts by outcome",
			},
			[]string{"outcome"},
		),

		SendChunks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailview_send_chunks_total",
				Help: "Individual SMTP messages submitted, counting each chunk",
			},
		),

		BurstsScheduled: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailview_poll_bursts_total",
				Help: "Post-send supplementary refresh bursts scheduled",
			},
		),
	}
}

// ObserveRefresh records one refresh cycle.
func (m *Metrics) ObserveRefresh(folder string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.RefreshesTotal.WithLabelValues(folder, outcome).Inc()
}

// ObserveSend records one send attempt.
func (m *Metrics) ObserveSend(err error, chunks int) {
	if err != nil {
		m.SendsTotal.WithLabelValues("error").Inc()
		return
	}
	m.SendsTotal.WithLabelValues("ok").Inc()
	m.SendChunks.Add(float64(chunks))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
