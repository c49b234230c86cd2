// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for the recording processing pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the processing pipeline.
type Metrics struct {
	// Job processing
	JobsProcessed *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec

	// Queues
	QueueDepth      *prometheus.GaugeVec
	DeadLetterItems *prometheus.CounterVec

	// ASR
	TranscriptionDuration *prometheus.HistogramVec

	// LLM
	LLMCalls    *prometheus.CounterVec
	LLMLatency  *prometheus.HistogramVec
	LLMFailures *prometheus.CounterVec

	// Webhook
	WebhookDeliveries *prometheus.CounterVec
}

// NewMetrics creates and registers all pipeline metrics with the given
// registerer. Pass prometheus.DefaultRegisterer for the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		JobsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meet_jobs_processed_total",
				Help: "Total number of jobs processed, by queue and outcome",
			},
			[]string{"queue", "worker_type", "status"},
		),
		JobsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meet_jobs_failed_total",
				Help: "Total number of job failures, by queue and error category",
			},
			[]string{"queue", "worker_type", "category"},
		),
		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meet_job_duration_seconds",
				Help:    "Duration of job processing in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
			},
			[]string{"queue", "worker_type"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "meet_queue_depth",
				Help: "Current number of messages waiting in a queue",
			},
			[]string{"queue"},
		),
		DeadLetterItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meet_dead_letter_items_total",
				Help: "Total number of messages moved to a dead letter queue",
			},
			[]string{"queue"},
		),
		TranscriptionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meet_transcription_duration_seconds",
				Help:    "Duration of speech-to-text requests in seconds",
				Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"model"},
		),
		LLMCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meet_llm_calls_total",
				Help: "Total number of LLM completions, by summarization stage",
			},
			[]string{"stage", "model"},
		),
		LLMLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meet_llm_call_duration_seconds",
				Help:    "Latency of LLM completions in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
			},
			[]string{"stage", "model"},
		),
		LLMFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meet_llm_failures_total",
				Help: "Total number of failed LLM completions, by stage",
			},
			[]string{"stage", "model"},
		),
		WebhookDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meet_webhook_deliveries_total",
				Help: "Total number of webhook delivery attempts, by outcome",
			},
			[]string{"status"},
		),
	}
}

// RecordJobSuccess records a successfully processed job.
func (m *Metrics) RecordJobSuccess(queue, workerType string, duration time.Duration) {
	m.JobsProcessed.WithLabelValues(queue, workerType, "success").Inc()
	m.JobDuration.WithLabelValues(queue, workerType).Observe(duration.Seconds())
}

// RecordJobFailure records a failed job with its error category.
func (m *Metrics) RecordJobFailure(queue, workerType, category string, duration time.Duration) {
	m.JobsProcessed.WithLabelValues(queue, workerType, "failure").Inc()
	m.JobsFailed.WithLabelValues(queue, workerType, category).Inc()
	m.JobDuration.WithLabelValues(queue, workerType).Observe(duration.Seconds())
}

// RecordQueueDepth sets the current depth gauge for a queue.
func (m *Metrics) RecordQueueDepth(queue string, depth int64) {
	m.QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordDeadLetter records a message moved to a dead letter queue.
func (m *Metrics) RecordDeadLetter(queue string) {
	m.DeadLetterItems.WithLabelValues(queue).Inc()
}

// RecordTranscription records the duration of a speech-to-text request.
func (m *Metrics) RecordTranscription(model string, duration time.Duration) {
	m.TranscriptionDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordLLMCall records a completed LLM call for a summarization stage.
func (m *Metrics) RecordLLMCall(stage, model string, duration time.Duration, err error) {
	m.LLMCalls.WithLabelValues(stage, model).Inc()
	m.LLMLatency.WithLabelValues(stage, model).Observe(duration.Seconds())
	if err != nil {
		m.LLMFailures.WithLabelValues(stage, model).Inc()
	}
}

// RecordWebhookDelivery records a webhook delivery outcome.
func (m *Metrics) RecordWebhookDelivery(status string) {
	m.WebhookDeliveries.WithLabelValues(status).Inc()
}

// MetricsRecorder is the interface job handlers use to report metrics.
// A nil-safe no-op implementation is available via NopRecorder.
type MetricsRecorder interface {
	RecordJobSuccess(queue, workerType string, duration time.Duration)
	RecordJobFailure(queue, workerType, category string, duration time.Duration)
	RecordQueueDepth(queue string, depth int64)
	RecordDeadLetter(queue string)
	RecordTranscription(model string, duration time.Duration)
	RecordLLMCall(stage, model string, duration time.Duration, err error)
	RecordWebhookDelivery(status string)
}

// NopRecorder discards all metrics. Useful in tests.
type NopRecorder struct{}

func (NopRecorder) RecordJobSuccess(string, string, time.Duration)         {}
func (NopRecorder) RecordJobFailure(string, string, string, time.Duration) {}
func (NopRecorder) RecordQueueDepth(string, int64)                         {}
func (NopRecorder) RecordDeadLetter(string)                                {}
func (NopRecorder) RecordTranscription(string, time.Duration)              {}
func (NopRecorder) RecordLLMCall(string, string, time.Duration, error)     {}
func (NopRecorder) RecordWebhookDelivery(string)                           {}
