package jobs

import (
	"context"
	"errors"

	"github.com/suitenumerique/meet/pkg/llm"
	"github.com/suitenumerique/meet/pkg/logging"
	"github.com/suitenumerique/meet/pkg/observability"
	"github.com/suitenumerique/meet/pkg/queues"
	"github.com/suitenumerique/meet/pkg/webhook"
)

// SummarizeHandler processes summarization jobs: it runs the LLM
// pipeline over a delivered transcript and posts the resulting summary
// document.
type SummarizeHandler struct {
	pipeline Summarizer
	sender   DocumentSender
	metrics  observability.MetricsRecorder
	logger   logging.Logger
	tracer   *observability.Tracer
}

// NewSummarizeHandler wires a summarization handler.
func NewSummarizeHandler(
	pipeline Summarizer,
	sender DocumentSender,
	metrics observability.MetricsRecorder,
	logger logging.Logger,
) *SummarizeHandler {
	return &SummarizeHandler{
		pipeline: pipeline,
		sender:   sender,
		metrics:  metrics,
		logger:   logger.With(logging.F("component", "summarize_handler")),
		tracer:   observability.NewTracer(),
	}
}

// Handle processes one summarization message.
func (h *SummarizeHandler) Handle(ctx context.Context, msg queues.Message) error {
	sm, ok := msg.(*queues.SummarizeMessage)
	if !ok {
		return queues.NewPermanentError(queues.ErrorCodeInvalidInput,
			"unexpected message type", nil)
	}
	if sm.Transcript == "" {
		return queues.NewPermanentError(queues.ErrorCodeInvalidInput,
			"empty transcript", nil)
	}

	logger := h.logger.With(logging.RecordingID(sm.RecordingID))
	ctx, span := h.tracer.StartJobSpan(ctx, "meet:summarize", "summarize", sm.RecordingID)
	defer span.End()
	if traceID := observability.GetTraceID(ctx); traceID != "" {
		logger = logger.With(logging.F("trace_id", traceID))
	}

	doc, err := h.pipeline.Run(ctx, sm.Transcript, sm.Title)
	if err != nil {
		var callErr *llm.CallError
		if errors.As(err, &callErr) {
			return queues.NewDependencyError(queues.ErrorCodeLLMError,
				"summarization stage "+callErr.Stage+" failed", err)
		}
		return queues.NewDependencyError(queues.ErrorCodeLLMError,
			"summarization failed", err)
	}
	logger.Info("summary generated", logging.F("title", doc.Title))

	sendCtx, sendSpan := h.tracer.StartWebhookSpan(ctx)
	err = h.sender.Send(sendCtx, webhook.Payload{
		Title:   doc.Title,
		Content: doc.Content,
		Email:   sm.Email,
		Sub:     sm.Sub,
	})
	sendSpan.End()
	if err != nil {
		h.metrics.RecordWebhookDelivery("failure")
		return queues.NewDependencyError(queues.ErrorCodeWebhookError,
			"summary delivery failed", err)
	}
	h.metrics.RecordWebhookDelivery("success")
	logger.Info("summary delivered")
	return nil
}
