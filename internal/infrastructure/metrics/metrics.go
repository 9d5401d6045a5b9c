package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Experiment-API metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chorus",
			Subsystem: "experiment_api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chorus",
			Subsystem: "experiment_api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint"},
	)

	// Generation counters per runnable strategy
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chorus",
			Subsystem: "experiment_api",
			Name:      "generations_total",
			Help:      "Total LLM generations by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	// Generation duration histogram
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chorus",
			Subsystem: "experiment_api",
			Name:      "generation_duration_seconds",
			Help:      "LLM generation duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"strategy"},
	)

	// Token usage counters
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chorus",
			Subsystem: "experiment_api",
			Name:      "tokens_total",
			Help:      "Token usage by direction (prompt/completion)",
		},
		[]string{"direction"},
	)

	// Inbound message counters per platform
	InboundMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chorus",
			Subsystem: "experiment_api",
			Name:      "inbound_messages_total",
			Help:      "Inbound transport events by platform and status",
		},
		[]string{"platform", "status"},
	)

	// Queue depth gauge
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chorus",
			Subsystem: "experiment_api",
			Name:      "queue_depth",
			Help:      "Background job queue depth",
		},
	)

	// Background jobs counter
	BackgroundJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chorus",
			Subsystem: "experiment_api",
			Name:      "background_jobs_total",
			Help:      "Total background jobs processed",
		},
		[]string{"job_type", "status"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordGeneration records one LLM generation
func RecordGeneration(strategy, outcome string, durationSec float64) {
	GenerationsTotal.WithLabelValues(strategy, outcome).Inc()
	GenerationDuration.WithLabelValues(strategy).Observe(durationSec)
}

// RecordTokens records token usage for one generation
func RecordTokens(promptTokens, completionTokens int) {
	TokensTotal.WithLabelValues("prompt").Add(float64(promptTokens))
	TokensTotal.WithLabelValues("completion").Add(float64(completionTokens))
}

// RecordInboundMessage records one inbound transport event
func RecordInboundMessage(platform, status string) {
	InboundMessagesTotal.WithLabelValues(platform, status).Inc()
}

// SetQueueDepth sets the current queue depth
func SetQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}

// RecordBackgroundJob records a background job execution
func RecordBackgroundJob(jobType, status string) {
	BackgroundJobsTotal.WithLabelValues(jobType, status).Inc()
}
