package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/mvne-doc-ingest/internal/core/domain"
	"github.com/kirillkom/mvne-doc-ingest/internal/infrastructure/resilience"
)

// PipelineMetrics covers the worker loop, the per-stage timings reported by
// the orchestrator and the outbound resilience hooks.
type PipelineMetrics struct {
	service  string
	registry *prometheus.Registry

	processTotal    *prometheus.CounterVec
	processDuration *prometheus.HistogramVec
	processInFlight prometheus.Gauge
	queueLag        *prometheus.HistogramVec
	stageDuration   *prometheus.HistogramVec
	stageErrors     *prometheus.CounterVec
	outcomeTotal    *prometheus.CounterVec
	outcomeDuration *prometheus.HistogramVec
	retriesTotal    *prometheus.CounterVec
	breakerChanges  *prometheus.CounterVec
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "file_process_total",
			Help:      "Total worker invocations by result.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "file_process_duration_seconds",
			Help:      "Worker invocation duration in seconds by result.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "file_process_in_flight",
			Help:      "Number of in-flight file processing tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "queue_lag_seconds",
			Help:      "Delay between upload event publish and delivery.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"service", "stage"},
	)
	stageErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_errors_total",
			Help:      "Pipeline stage failures, panics included.",
		},
		[]string{"service", "stage"},
	)
	outcomeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "files_total",
			Help:      "Files leaving the pipeline by final status.",
		},
		[]string{"service", "status"},
	)
	outcomeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "file_duration_seconds",
			Help:      "End to end pipeline duration by final status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbound",
			Name:      "retries_total",
			Help:      "Retried outbound calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerChanges := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbound",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions by operation and target state.",
		},
		[]string{"service", "operation", "to"},
	)

	registry.MustRegister(
		processTotal, processDuration, processInFlight, queueLag,
		stageDuration, stageErrors, outcomeTotal, outcomeDuration,
		retriesTotal, breakerChanges,
	)

	return &PipelineMetrics{
		service:         service,
		registry:        registry,
		processTotal:    processTotal,
		processDuration: processDuration,
		processInFlight: processInFlight,
		queueLag:        queueLag,
		stageDuration:   stageDuration,
		stageErrors:     stageErrors,
		outcomeTotal:    outcomeTotal,
		outcomeDuration: outcomeDuration,
		retriesTotal:    retriesTotal,
		breakerChanges:  breakerChanges,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartFile() {
	m.processInFlight.Inc()
}

func (m *PipelineMetrics) FinishFile(duration time.Duration, err error) {
	m.processInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.processTotal.WithLabelValues(m.service, status).Inc()
	m.processDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *PipelineMetrics) ObserveStage(stage string, elapsed time.Duration, err error) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(elapsed.Seconds())
	if err != nil {
		m.stageErrors.WithLabelValues(m.service, stage).Inc()
	}
}

func (m *PipelineMetrics) ObserveOutcome(status domain.FileStatus, elapsed time.Duration) {
	m.outcomeTotal.WithLabelValues(m.service, string(status)).Inc()
	m.outcomeDuration.WithLabelValues(m.service, string(status)).Observe(elapsed.Seconds())
}

// ResilienceHooks feeds executor retries and breaker transitions into the
// registry.
func (m *PipelineMetrics) ResilienceHooks() resilience.Hooks {
	return resilience.Hooks{
		OnRetry: func(operation string, _ int) {
			m.retriesTotal.WithLabelValues(m.service, operation).Inc()
		},
		OnStateChange: func(operation, _, to string) {
			m.breakerChanges.WithLabelValues(m.service, operation, to).Inc()
		},
	}
}
