// Package metrics provides Prometheus metrics for pipeline runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dwatch/displacement-watch/app/feed"
)

const namespace = "dwatch"

type Recorder struct {
	registry *prometheus.Registry

	// RunsTotal counts pipeline runs by outcome.
	RunsTotal *prometheus.CounterVec
	// RunDuration measures whole-run duration.
	RunDuration prometheus.Histogram
	// SourceCandidates counts candidates per source and outcome.
	SourceCandidates *prometheus.CounterVec
	// SourceErrors counts failed source collections.
	SourceErrors *prometheus.CounterVec
	// ItemsStored counts rows written to the item store.
	ItemsStored prometheus.Counter
	// ItemsSelected is the size of the most recent daily selection.
	ItemsSelected prometheus.Gauge
}

func New() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of pipeline runs",
			},
			[]string{"status"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of pipeline runs in seconds",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
		),
		SourceCandidates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_candidates_total",
				Help:      "Candidates seen per source, by outcome",
			},
			[]string{"source", "outcome"},
		),
		SourceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_errors_total",
				Help:      "Total number of failed source collections",
			},
			[]string{"source"},
		),
		ItemsStored: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_stored_total",
				Help:      "Total number of item rows upserted",
			},
		),
		ItemsSelected: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "items_selected",
				Help:      "Number of items in the latest daily selection",
			},
		),
	}
}

// RecordSource records the outcome of one source collection.
func (r *Recorder) RecordSource(source string, stats feed.Stats, err error) {
	if err != nil {
		r.SourceErrors.WithLabelValues(source).Inc()
		return
	}

	r.SourceCandidates.WithLabelValues(source, "admitted").Add(float64(stats.Admitted))
	for reason, count := range stats.Rejected {
		r.SourceCandidates.WithLabelValues(source, string(reason)).Add(float64(count))
	}
}

// RecordRun records a finished run. Counts are ignored for failed runs.
func (r *Recorder) RecordRun(status string, stored, selected int, duration time.Duration) {
	r.RunsTotal.WithLabelValues(status).Inc()
	r.RunDuration.Observe(duration.Seconds())

	if status != "success" {
		return
	}
	r.ItemsStored.Add(float64(stored))
	r.ItemsSelected.Set(float64(selected))
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
