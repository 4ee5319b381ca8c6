package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineMetrics instruments one pipeline stage: message throughput by
// outcome, handler latency, in-flight work and dead-letter traffic.
type PipelineMetrics struct {
	registry *prometheus.Registry

	handledTotal    *prometheus.CounterVec
	handleDuration  *prometheus.HistogramVec
	handleInFlight  prometheus.Gauge
	deadLetterTotal *prometheus.CounterVec
	duplicateTotal  *prometheus.CounterVec
	queueLag        *prometheus.HistogramVec
}

func NewPipelineMetrics(stage string) *PipelineMetrics {
	registry := prometheus.NewRegistry()

	handledTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "pipeline",
			Name:      "messages_handled_total",
			Help:      "Total handled messages by consumer group and outcome.",
		},
		[]string{"stage", "group", "outcome"},
	)
	handleDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docflow",
			Subsystem: "pipeline",
			Name:      "handle_duration_seconds",
			Help:      "Message handler duration in seconds by outcome.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage", "group", "outcome"},
	)
	handleInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docflow",
			Subsystem: "pipeline",
			Name:      "handle_in_flight",
			Help:      "Number of in-flight message handlers.",
			ConstLabels: prometheus.Labels{
				"stage": stage,
			},
		},
	)
	deadLetterTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "pipeline",
			Name:      "dead_lettered_total",
			Help:      "Messages routed to a dead-letter subject by consumer group.",
		},
		[]string{"group"},
	)
	duplicateTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docflow",
			Subsystem: "pipeline",
			Name:      "duplicates_dropped_total",
			Help:      "Deliveries short-circuited by the idempotency guard.",
		},
		[]string{"stage", "group"},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docflow",
			Subsystem: "pipeline",
			Name:      "queue_lag_seconds",
			Help:      "Delay between event publication and handling start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage", "group"},
	)

	registry.MustRegister(
		handledTotal, handleDuration, handleInFlight,
		deadLetterTotal, duplicateTotal, queueLag,
	)

	return &PipelineMetrics{
		registry:        registry,
		handledTotal:    handledTotal,
		handleDuration:  handleDuration,
		handleInFlight:  handleInFlight,
		deadLetterTotal: deadLetterTotal,
		duplicateTotal:  duplicateTotal,
		queueLag:        queueLag,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartHandle() {
	m.handleInFlight.Inc()
}

func (m *PipelineMetrics) FinishHandle(stage, group string, duration time.Duration, err error) {
	m.handleInFlight.Dec()

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.handledTotal.WithLabelValues(stage, group, outcome).Inc()
	m.handleDuration.WithLabelValues(stage, group, outcome).Observe(duration.Seconds())
}

func (m *PipelineMetrics) DeadLettered(group string) {
	m.deadLetterTotal.WithLabelValues(group).Inc()
}

func (m *PipelineMetrics) DuplicateDropped(stage, group string) {
	m.duplicateTotal.WithLabelValues(stage, group).Inc()
}

func (m *PipelineMetrics) ObserveQueueLag(stage, group string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(stage, group).Observe(lag.Seconds())
}
