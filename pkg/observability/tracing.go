package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the name of the tracer for recording pipeline operations.
const TracerName = "meet"

// Span attribute keys
const (
	AttrRecordingID = "recording_id"
	AttrRoom        = "room"
	AttrQueue       = "queue"
	AttrWorkerType  = "worker_type"
	AttrStage       = "stage"
	AttrModel       = "model"
	AttrLanguage    = "language"
	AttrObjectKey   = "object_key"
	AttrDurationMs  = "duration_ms"
	AttrErrorType   = "error_type"
	AttrRetryable   = "retryable"
)

// Span names
const (
	SpanProcessJob   = "meet.process_job"
	SpanTranscribe   = "meet.transcribe"
	SpanAlign        = "meet.align_speakers"
	SpanFormat       = "meet.format_transcript"
	SpanSummarize    = "meet.summarize"
	SpanLLMCall      = "meet.llm_call"
	SpanWebhookSend  = "meet.webhook_send"
	SpanDownload     = "meet.download_recording"
	SpanExtractAudio = "meet.extract_audio"
)

// Tracer provides distributed tracing for pipeline operations.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new pipeline tracer.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(TracerName),
	}
}

// StartJobSpan starts a root span for processing a queued job.
func (t *Tracer) StartJobSpan(ctx context.Context, queue, workerType, recordingID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, SpanProcessJob,
		trace.WithAttributes(
			attribute.String(AttrQueue, queue),
			attribute.String(AttrWorkerType, workerType),
		),
	)
	if recordingID != "" {
		span.SetAttributes(attribute.String(AttrRecordingID, recordingID))
	}
	return ctx, span
}

// StartStageSpan starts a span for a summarization stage.
func (t *Tracer) StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("meet.stage.%s", stage),
		trace.WithAttributes(
			attribute.String(AttrStage, stage),
		),
	)
}

// StartTranscribeSpan starts a span for a speech-to-text request.
func (t *Tracer) StartTranscribeSpan(ctx context.Context, model, language string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, SpanTranscribe,
		trace.WithAttributes(
			attribute.String(AttrModel, model),
		),
	)
	if language != "" {
		span.SetAttributes(attribute.String(AttrLanguage, language))
	}
	return ctx, span
}

// StartLLMSpan starts a span for an LLM call.
func (t *Tracer) StartLLMSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanLLMCall,
		trace.WithAttributes(
			attribute.String(AttrModel, model),
		),
	)
}

// StartWebhookSpan starts a span for a webhook delivery.
func (t *Tracer) StartWebhookSpan(ctx context.Context) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, SpanWebhookSend)
}

// SpanHelper provides convenient methods for working with the current span.
type SpanHelper struct {
	span trace.Span
}

// NewSpanHelper creates a new span helper for the given span.
func NewSpanHelper(span trace.Span) *SpanHelper {
	return &SpanHelper{span: span}
}

// SetRecording sets recording-related attributes on the span.
func (h *SpanHelper) SetRecording(recordingID, room, objectKey string) {
	h.span.SetAttributes(attribute.String(AttrRecordingID, recordingID))
	if room != "" {
		h.span.SetAttributes(attribute.String(AttrRoom, room))
	}
	if objectKey != "" {
		h.span.SetAttributes(attribute.String(AttrObjectKey, objectKey))
	}
}

// SetDuration sets the duration attribute.
func (h *SpanHelper) SetDuration(durationMs int64) {
	h.span.SetAttributes(attribute.Int64(AttrDurationMs, durationMs))
}

// SetStage sets the stage attribute.
func (h *SpanHelper) SetStage(stage string) {
	h.span.SetAttributes(attribute.String(AttrStage, stage))
}

// SetError records an error on the span.
func (h *SpanHelper) SetError(err error, errorType string, retryable bool) {
	h.span.SetStatus(codes.Error, err.Error())
	h.span.SetAttributes(
		attribute.String(AttrErrorType, errorType),
		attribute.Bool(AttrRetryable, retryable),
	)
	h.span.RecordError(err)
}

// SetSuccess marks the span as successful.
func (h *SpanHelper) SetSuccess() {
	h.span.SetStatus(codes.Ok, "")
}

// AddEvent adds an event to the span.
func (h *SpanHelper) AddEvent(name string, attrs ...attribute.KeyValue) {
	h.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// GetTraceID returns the trace ID from the context, or "" when no
// recording span is active, so log correlation can stay optional.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
