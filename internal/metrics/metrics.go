// Package metrics holds the Prometheus instruments of the state store.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// Persist write results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds all Prometheus metrics for the store. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// Registry owns these metrics; exposed for exporters.
	Registry *prometheus.Registry

	actions           *prometheus.CounterVec
	persistWrites     *prometheus.CounterVec
	hydration         prometheus.Histogram
	hydrationFailures prometheus.Counter
}

// New creates a dedicated registry so repeated construction in tests never
// hits duplicate-collector panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		actions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletflow_actions_total",
				Help: "Actions applied to the state store.",
			},
			[]string{"action"},
		),
		persistWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walletflow_persist_writes_total",
				Help: "Persistence writes by key and result.",
			},
			[]string{"key", "result"},
		),
		hydration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "walletflow_hydration_seconds",
				Help:    "Duration of the initial load from the persistent store.",
				Buckets: prometheus.DefBuckets,
			},
		),
		hydrationFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "walletflow_hydration_failures_total",
				Help: "Initial loads that fell back to defaults.",
			},
		),
	}
}

func (m *Metrics) IncrAction(kind string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrPersistWrite(key, result string) {
	if m == nil {
		return
	}
	m.persistWrites.WithLabelValues(key, result).Inc()
}

// RecordHydration observes d and counts a failure when failed is set.
func (m *Metrics) RecordHydration(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.hydration.Observe(d.Seconds())
	if failed {
		m.hydrationFailures.Inc()
	}
}

// ActionCount returns the cumulative count for an action kind.
func (m *Metrics) ActionCount(kind string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.actions.WithLabelValues(kind))
}

// PersistWriteCount returns the cumulative count for a key and result.
func (m *Metrics) PersistWriteCount(key, result string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.persistWrites.WithLabelValues(key, result))
}

// WriteText dumps the registry in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	if m == nil {
		return nil
	}
	families, err := m.Registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func counterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
