// Package metrics records save and toggle measurements in Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// Ensure SaveMetrics implements driven.SaveMetrics
var _ driven.SaveMetrics = (*SaveMetrics)(nil)

// SaveMetrics holds the orchestration collectors.
type SaveMetrics struct {
	SavesTotal         *prometheus.CounterVec
	SaveDuration       *prometheus.HistogramVec
	ConfiguredServices prometheus.Gauge
	TogglesTotal       *prometheus.CounterVec
	ToggleDuration     *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewSaveMetrics registers the collectors on reg. A nil reg uses a fresh
// registry so tests and multiple instances never collide.
func NewSaveMetrics(reg *prometheus.Registry) *SaveMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &SaveMetrics{
		SavesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readlater_saves_total",
				Help: "Total number of save attempts",
			},
			[]string{"provider", "result"}, // result: success or an error kind
		),
		SaveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "readlater_save_duration_seconds",
				Help:    "Save call duration in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider"},
		),
		ConfiguredServices: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "readlater_configured_services",
				Help: "Number of configured read-later services",
			},
		),
		TogglesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "readlater_toggles_total",
				Help: "Total number of interaction toggles",
			},
			[]string{"kind", "success"},
		),
		ToggleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "readlater_toggle_duration_seconds",
				Help:    "Toggle call duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"kind"},
		),
		gatherer: reg,
	}
}

// RecordSave records one save attempt.
func (m *SaveMetrics) RecordSave(provider domain.ProviderType, kind domain.ErrorKind, duration time.Duration) {
	result := "success"
	if kind != domain.ErrorKindNone {
		result = string(kind)
	}
	m.SavesTotal.WithLabelValues(string(provider), result).Inc()
	m.SaveDuration.WithLabelValues(string(provider)).Observe(duration.Seconds())
}

// SetConfiguredServices records the registry size.
func (m *SaveMetrics) SetConfiguredServices(n int) {
	m.ConfiguredServices.Set(float64(n))
}

// RecordToggle records one interaction toggle.
func (m *SaveMetrics) RecordToggle(kind domain.InteractionKind, success bool, duration time.Duration) {
	m.TogglesTotal.WithLabelValues(string(kind), strconv.FormatBool(success)).Inc()
	m.ToggleDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *SaveMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
