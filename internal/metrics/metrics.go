// Package metrics exposes Prometheus metrics for the tally daemon
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for sampling, classification and
// registration.
type Metrics struct {
	SamplesTotal      *prometheus.CounterVec
	SampleErrorsTotal prometheus.Counter
	BufferedSamples   prometheus.Gauge

	CalendarSyncsTotal *prometheus.CounterVec

	ClassificationsTotal *prometheus.CounterVec
	FallbacksTotal       prometheus.Counter

	OutcomesTotal      *prometheus.CounterVec
	RegistrationsTotal *prometheus.CounterVec
	PendingSegments    prometheus.Gauge

	CycleDuration  prometheus.Histogram
	CyclesSkipped  prometheus.Counter
	LastCycleEnded prometheus.Gauge
}

// Get creates and registers the metrics on first use.
//
// Metrics:
//   - tally_samples_total{kind} - samples stored, by active or idle
//   - tally_sample_errors_total - failed sampler probes or writes
//   - tally_buffered_samples - samples waiting for the store to recover
//   - tally_calendar_syncs_total{result} - calendar sync attempts
//   - tally_classifications_total{source} - segments classified
//   - tally_classifier_fallbacks_total - online failures answered offline
//   - tally_outcomes_total{kind,reason} - terminal segment outcomes
//   - tally_registrations_total{result} - calls to the time tracker
//   - tally_pending_segments - segments awaiting confirmation
//   - tally_cycle_duration_seconds - analysis cycle run time
//   - tally_cycles_skipped_total - ticks skipped while a cycle was running
//   - tally_last_cycle_end_timestamp_seconds - end of the last analysed window
func Get() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			SamplesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tally_samples_total",
					Help: "Total number of window samples stored",
				},
				[]string{"kind"},
			),

			SampleErrorsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "tally_sample_errors_total",
					Help: "Total number of failed sampler probes or writes",
				},
			),

			BufferedSamples: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "tally_buffered_samples",
					Help: "Samples held in memory until the store recovers",
				},
			),

			CalendarSyncsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tally_calendar_syncs_total",
					Help: "Total number of calendar sync attempts",
				},
				[]string{"result"},
			),

			ClassificationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tally_classifications_total",
					Help: "Total number of segments classified",
				},
				[]string{"source"},
			),

			FallbacksTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "tally_classifier_fallbacks_total",
					Help: "Online classifications that fell back to offline",
				},
			),

			OutcomesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tally_outcomes_total",
					Help: "Total number of segment outcomes",
				},
				[]string{"kind", "reason"},
			),

			RegistrationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "tally_registrations_total",
					Help: "Total number of time tracker calls",
				},
				[]string{"result"},
			),

			PendingSegments: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "tally_pending_segments",
					Help: "Segments waiting for user confirmation",
				},
			),

			CycleDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "tally_cycle_duration_seconds",
					Help:    "Duration of analysis cycles in seconds",
					Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
				},
			),

			CyclesSkipped: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "tally_cycles_skipped_total",
					Help: "Analysis ticks skipped because a cycle was still running",
				},
			),

			LastCycleEnded: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "tally_last_cycle_end_timestamp_seconds",
					Help: "End of the most recently analysed window",
				},
			),
		}
	})

	return globalMetrics
}

// RecordSample records a stored sample.
func (m *Metrics) RecordSample(idle bool) {
	kind := "active"
	if idle {
		kind = "idle"
	}

	m.SamplesTotal.WithLabelValues(kind).Inc()
}

// RecordOutcome records the terminal outcome of a segment.
func (m *Metrics) RecordOutcome(kind, reason string) {
	m.OutcomesTotal.WithLabelValues(kind, reason).Inc()
}

// RecordCycle records a completed analysis cycle.
func (m *Metrics) RecordCycle(d time.Duration, windowEnd time.Time) {
	m.CycleDuration.Observe(d.Seconds())
	m.LastCycleEnded.Set(float64(windowEnd.Unix()))
}
