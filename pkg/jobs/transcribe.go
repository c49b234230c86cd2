package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/suitenumerique/meet/pkg/align"
	"github.com/suitenumerique/meet/pkg/asr"
	"github.com/suitenumerique/meet/pkg/featureflag"
	"github.com/suitenumerique/meet/pkg/logging"
	"github.com/suitenumerique/meet/pkg/observability"
	"github.com/suitenumerique/meet/pkg/queues"
	"github.com/suitenumerique/meet/pkg/storage"
	"github.com/suitenumerique/meet/pkg/tracker"
	"github.com/suitenumerique/meet/pkg/transcript"
	"github.com/suitenumerique/meet/pkg/webhook"
)

// TranscribeConfig tunes the transcription handler.
type TranscribeConfig struct {
	// MaxDuration rejects recordings longer than this. Zero disables
	// the check.
	MaxDuration time.Duration
	// VideoExtensions lists container extensions whose audio track is
	// extracted before transcription, lowercase with leading dot.
	VideoExtensions []string
	// SummaryEnabled is the instance-wide switch for the summarization
	// stage. The per-user feature flag is evaluated on top of it.
	SummaryEnabled bool
	// ASRModel is recorded on metrics only.
	ASRModel string
}

// TranscribeHandler processes transcription jobs: it downloads the
// recording, transcribes it, aligns diarization labels with the
// speaker log, formats the transcript and delivers it. When the
// summary feature applies it enqueues the follow-up summarization job.
type TranscribeHandler struct {
	store     ObjectStore
	asr       Transcriber
	aligner   *align.Aligner
	formatter *transcript.Formatter
	sender    DocumentSender
	flags     featureflag.Evaluator
	summarize queues.Queue
	cfg       TranscribeConfig
	metrics   observability.MetricsRecorder
	logger    logging.Logger
	tracer    *observability.Tracer

	// Shelled-out media probes, swappable in tests.
	validateDuration func(ctx context.Context, path string, max time.Duration) (time.Duration, error)
	extractAudio     func(ctx context.Context, videoPath string) (string, error)
	now              func() time.Time
}

// NewTranscribeHandler wires a transcription handler. summarizeQueue
// may be nil when the summary stage is disabled instance-wide.
func NewTranscribeHandler(
	store ObjectStore,
	transcriber Transcriber,
	aligner *align.Aligner,
	formatter *transcript.Formatter,
	sender DocumentSender,
	flags featureflag.Evaluator,
	summarizeQueue queues.Queue,
	cfg TranscribeConfig,
	metrics observability.MetricsRecorder,
	logger logging.Logger,
) *TranscribeHandler {
	return &TranscribeHandler{
		store:            store,
		asr:              transcriber,
		aligner:          aligner,
		formatter:        formatter,
		sender:           sender,
		flags:            flags,
		summarize:        summarizeQueue,
		cfg:              cfg,
		metrics:          metrics,
		logger:           logger.With(logging.F("component", "transcribe_handler")),
		tracer:           observability.NewTracer(),
		validateDuration: storage.ValidateDuration,
		extractAudio:     storage.ExtractAudio,
		now:              time.Now,
	}
}

// Handle processes one transcription message.
func (h *TranscribeHandler) Handle(ctx context.Context, msg queues.Message) error {
	tm, ok := msg.(*queues.TranscribeMessage)
	if !ok {
		return queues.NewPermanentError(queues.ErrorCodeInvalidInput,
			"unexpected message type", nil)
	}

	logger := h.logger.With(logging.RecordingID(tm.RecordingID))
	ctx, span := h.tracer.StartJobSpan(ctx, "meet:transcribe", "transcribe", tm.RecordingID)
	defer span.End()
	observability.NewSpanHelper(span).SetRecording(tm.RecordingID, tm.Room, tm.ObjectKey)
	if traceID := observability.GetTraceID(ctx); traceID != "" {
		logger = logger.With(logging.F("trace_id", traceID))
	}

	audioPath, cleanup, err := h.fetchAudio(ctx, tm.ObjectKey)
	if err != nil {
		return err
	}
	defer cleanup()

	started := h.now()
	asrCtx, asrSpan := h.tracer.StartTranscribeSpan(ctx, h.cfg.ASRModel, tm.Language)
	result, err := h.asr.Transcribe(asrCtx, audioPath, tm.Language)
	asrSpan.End()
	if err != nil {
		if errors.Is(err, asr.ErrLanguageNotAllowed) {
			return queues.NewPermanentError(queues.ErrorCodeInvalidInput,
				"language not allowed", err)
		}
		return queues.NewDependencyError(queues.ErrorCodeASRError,
			"transcription failed", err)
	}
	h.metrics.RecordTranscription(h.cfg.ASRModel, h.now().Sub(started))
	logger.Info("transcription complete",
		logging.F("segments", len(result.Segs)),
		logging.F("language", result.Language))

	h.resolveSpeakers(ctx, tm.RecordingID, result, logger)

	doc := h.formatter.Format(result, tm.Room, tm.RecordingDate, tm.RecordingTime, tm.DownloadLink)
	if doc.Empty {
		logger.Info("transcription is empty, delivering placeholder document")
	}

	sendCtx, sendSpan := h.tracer.StartWebhookSpan(ctx)
	err = h.sender.Send(sendCtx, webhook.Payload{
		Title:   doc.Title,
		Content: doc.Content,
		Email:   tm.Email,
		Sub:     tm.Sub,
	})
	sendSpan.End()
	if err != nil {
		h.metrics.RecordWebhookDelivery("failure")
		return queues.NewDependencyError(queues.ErrorCodeWebhookError,
			"transcript delivery failed", err)
	}
	h.metrics.RecordWebhookDelivery("success")
	logger.Info("transcript delivered", logging.F("title", doc.Title))

	if h.shouldSummarize(ctx, tm.Sub) && !doc.Empty {
		if err := h.enqueueSummarize(ctx, tm, doc.Title, doc.Content); err != nil {
			// The transcript is already delivered; retrying the whole
			// job would send it twice.
			return queues.NewPartialError(queues.ErrorCodeStorageError,
				"summarize enqueue failed after transcript delivery", err)
		}
		logger.Info("summarization enqueued")
	}
	return nil
}

// fetchAudio downloads the recording, enforces the duration limit and
// extracts the audio track from video containers. The returned cleanup
// removes every temporary file created.
func (h *TranscribeHandler) fetchAudio(ctx context.Context, objectKey string) (string, func(), error) {
	path, cleanup, err := h.store.DownloadRecording(ctx, objectKey)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidObjectKey) || errors.Is(err, storage.ErrExtensionNotAllowed) {
			return "", nil, queues.NewPermanentError(queues.ErrorCodeInvalidInput,
				"recording rejected", err)
		}
		return "", nil, queues.NewTransientError(queues.ErrorCodeStorageError,
			"recording download failed", err)
	}

	if _, err := h.validateDuration(ctx, path, h.cfg.MaxDuration); err != nil {
		cleanup()
		if errors.Is(err, storage.ErrDurationExceeded) {
			return "", nil, queues.NewPermanentError(queues.ErrorCodeInvalidInput,
				"recording rejected", err)
		}
		// ffprobe failing to read the container means a broken upload,
		// not a flaky dependency.
		return "", nil, queues.NewPermanentError(queues.ErrorCodeInvalidInput,
			"recording unreadable", err)
	}

	if !h.isVideo(path) {
		return path, cleanup, nil
	}

	audioPath, err := h.extractAudio(ctx, path)
	if err != nil {
		cleanup()
		return "", nil, queues.NewPermanentError(queues.ErrorCodeInvalidInput,
			"audio extraction failed", err)
	}
	return audioPath, func() {
		removeQuiet(audioPath)
		cleanup()
	}, nil
}

// resolveSpeakers replaces diarization labels with participant display
// names using the tracker's speaker log and the recording manifest.
// Both artifacts are optional: when either is missing the raw labels
// are kept, the transcript is still usable.
func (h *TranscribeHandler) resolveSpeakers(ctx context.Context, recordingID string, result *asr.Result, logger logging.Logger) {
	if len(result.Words) == 0 {
		return
	}
	ctx, span := h.tracer.StartStageSpan(ctx, "align_speakers")
	defer span.End()

	var art tracker.Artifact
	if err := h.store.GetJSON(ctx, SpeakerLogKey(recordingID), &art); err != nil {
		logger.Warn("speaker log unavailable, keeping diarization labels", logging.Err(err))
		return
	}
	var man Manifest
	if err := h.store.GetJSON(ctx, ManifestKey(recordingID), &man); err != nil {
		logger.Warn("recording manifest unavailable, keeping diarization labels", logging.Err(err))
		return
	}

	mapping := h.aligner.Align(result.Words, art.IntervalSet(), time.Unix(0, man.StartedAt))
	if len(mapping) == 0 {
		return
	}
	for i := range result.Segs {
		result.Segs[i].Speaker = h.aligner.ResolveName(result.Segs[i].Speaker, mapping, man.Participants)
	}
	logger.Info("speakers resolved", logging.F("mapped_labels", len(mapping)))
}

func (h *TranscribeHandler) shouldSummarize(ctx context.Context, sub string) bool {
	if !h.cfg.SummaryEnabled || h.summarize == nil {
		return false
	}
	return h.flags.Enabled(ctx, featureflag.FlagSummaryEnabled, sub)
}

func (h *TranscribeHandler) enqueueSummarize(ctx context.Context, tm *queues.TranscribeMessage, title, content string) error {
	return h.summarize.Enqueue(ctx, &queues.SummarizeMessage{
		RecordingID: tm.RecordingID,
		Transcript:  content,
		Title:       title,
		Email:       tm.Email,
		Sub:         tm.Sub,
		Priority:    tm.Priority,
		EnqueuedAt:  h.now(),
	})
}

func (h *TranscribeHandler) isVideo(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, v := range h.cfg.VideoExtensions {
		if v == ext {
			return true
		}
	}
	return false
}
