package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "dumpcycle"

// Metrics owns a private registry so one-shot runs can push or write exactly
// the series this process produced.
type Metrics struct {
	registry      *prometheus.Registry
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	artifactBytes *prometheus.GaugeVec
	lastRun       *prometheus.GaugeVec
	lastSuccess   *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}, []string{"mode", "stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline stages that ended in error.",
		}, []string{"mode", "stage"}),
		artifactBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Size of the most recent artifact of each kind.",
		}, []string{"mode", "kind"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished, by outcome.",
		}, []string{"mode", "status"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run succeeded, 0 otherwise.",
		}, []string{"mode"}),
	}

	m.registry.MustRegister(
		m.stageDuration,
		m.stageFailures,
		m.artifactBytes,
		m.lastRun,
		m.lastSuccess,
	)
	return m
}

// WithRuntimeCollectors adds process and Go runtime series, used by the
// long-running scheduler.
func (m *Metrics) WithRuntimeCollectors() *Metrics {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveStage(mode, stage string, d time.Duration, err error) {
	m.stageDuration.WithLabelValues(mode, stage).Observe(d.Seconds())
	if err != nil {
		m.stageFailures.WithLabelValues(mode, stage).Inc()
	}
}

func (m *Metrics) ObserveArtifact(mode, kind string, size int64) {
	m.artifactBytes.WithLabelValues(mode, kind).Set(float64(size))
}

func (m *Metrics) ObserveRun(mode, status string, finished time.Time) {
	m.lastRun.WithLabelValues(mode, status).Set(float64(finished.Unix()))
	success := 0.0
	if status == "succeeded" {
		success = 1
	}
	m.lastSuccess.WithLabelValues(mode).Set(success)
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Push replaces this job's series on a Pushgateway.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

// WriteTextfile writes the registry for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
