package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/suitenumerique/meet/config"
	"github.com/suitenumerique/meet/pkg/align"
	"github.com/suitenumerique/meet/pkg/asr"
	"github.com/suitenumerique/meet/pkg/buildinfo"
	"github.com/suitenumerique/meet/pkg/featureflag"
	"github.com/suitenumerique/meet/pkg/jobs"
	"github.com/suitenumerique/meet/pkg/llm"
	"github.com/suitenumerique/meet/pkg/logging"
	"github.com/suitenumerique/meet/pkg/observability"
	"github.com/suitenumerique/meet/pkg/queues"
	"github.com/suitenumerique/meet/pkg/storage"
	"github.com/suitenumerique/meet/pkg/summarize"
	"github.com/suitenumerique/meet/pkg/transcript"
	"github.com/suitenumerique/meet/pkg/webhook"
	"github.com/suitenumerique/meet/pkg/workers"
)

// NewWorkerCommand creates the worker command.
func NewWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the recording processing workers",
		Long: `Run the queue workers. Transcription workers download finished
recordings, transcribe them and deliver the transcript document;
summarization workers run the LLM pipeline over delivered transcripts.

The process drains gracefully on SIGINT/SIGTERM: in-flight jobs get
their full timeout, waiting messages stay queued.`,
		RunE: runWorker,
	}
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig("meet-worker")
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	store, err := storage.NewService(storage.Config{
		Endpoint:          cfg.Storage.Endpoint,
		AccessKeyID:       cfg.Storage.AccessKeyID,
		SecretAccessKey:   cfg.Storage.SecretAccessKey,
		Bucket:            cfg.Storage.Bucket,
		UseTLS:            cfg.Storage.UseTLS,
		AllowedExtensions: cfg.Recording.AllowedExtensions,
	}, logger)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Queue.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	defer rdb.Close()

	queueConfigs := queues.DefaultQueueConfigs()
	transcribeQueue := queues.NewRedisQueue(rdb, namedQueueConfig(queueConfigs, cfg.Queue.TranscribeQueue, cfg.Queue.MaxRetries))
	summarizeQueue := queues.NewRedisQueue(rdb, namedQueueConfig(queueConfigs, cfg.Queue.SummarizeQueue, cfg.Queue.MaxRetries))
	defer transcribeQueue.Close()
	defer summarizeQueue.Close()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	locale := transcript.GetLocale(cfg.Locale)

	transcribeHandler := jobs.NewTranscribeHandler(
		store,
		asr.NewClient(asr.Config{
			BaseURL:          cfg.ASR.BaseURL,
			APIKey:           cfg.ASR.APIKey,
			Model:            cfg.ASR.Model,
			AllowedLanguages: cfg.ASR.AllowedLanguages,
			Timeout:          cfg.ASR.Timeout,
		}),
		align.NewAligner(align.DefaultConfig()),
		transcript.NewFormatter(locale, cfg.HallucinationPatterns),
		newSender(cfg, logger),
		newFlagEvaluator(cfg),
		summarizeQueue,
		jobs.TranscribeConfig{
			MaxDuration:     cfg.Recording.MaxDuration,
			VideoExtensions: cfg.Recording.VideoExtensions,
			SummaryEnabled:  cfg.Summary.Enabled,
			ASRModel:        cfg.ASR.Model,
		},
		metrics,
		logger,
	)

	summarizeHandler := jobs.NewSummarizeHandler(
		summarize.NewPipeline(
			llm.NewClient(llm.Config{
				BaseURL: cfg.LLM.BaseURL,
				APIKey:  cfg.LLM.APIKey,
				Model:   cfg.LLM.Model,
				Timeout: cfg.LLM.Timeout,
			}),
			locale,
			cfg.Summary.PartTolerance,
			metrics,
			logger,
		),
		newSender(cfg, logger),
		metrics,
		logger,
	)

	workerConfigs := workers.DefaultWorkerConfigs()
	pools := []*workers.Pool{
		workers.NewPool(workerConfigs[workers.WorkerTypeTranscribe], transcribeQueue, transcribeHandler.Handle, metrics, logger),
		workers.NewPool(workerConfigs[workers.WorkerTypeSummarize], summarizeQueue, summarizeHandler.Handle, metrics, logger),
	}

	stopMetrics := startMetricsServer(cfg, metrics, []queues.Queue{transcribeQueue, summarizeQueue}, logger)
	defer stopMetrics()

	for _, p := range pools {
		p.Start()
	}
	logger.Info("workers started",
		logging.F("transcribe_queue", cfg.Queue.TranscribeQueue),
		logging.F("summarize_queue", cfg.Queue.SummarizeQueue),
		logging.F("version", buildinfo.String()))

	<-ctx.Done()
	logger.Info("shutdown requested, draining workers")
	for _, p := range pools {
		p.Stop()
	}
	logger.Info("workers stopped")
	return nil
}

func namedQueueConfig(defaults map[string]queues.QueueConfig, name string, maxRetries int) queues.QueueConfig {
	qc, ok := defaults[name]
	if !ok {
		qc = queues.QueueConfig{
			Name:              name,
			VisibilityTimeout: 10 * time.Minute,
			MaxRetries:        maxRetries,
			RetentionPeriod:   24 * time.Hour,
		}
	}
	qc.Name = name
	if maxRetries > 0 {
		qc.MaxRetries = maxRetries
	}
	return qc
}

func newSender(cfg *config.Config, logger logging.Logger) *webhook.Sender {
	return webhook.NewSender(webhook.Config{
		URL:           cfg.Webhook.URL,
		APIToken:      cfg.Webhook.APIToken,
		MaxRetries:    cfg.Webhook.MaxRetries,
		BackoffFactor: cfg.Webhook.BackoffFactor,
		RetryStatuses: cfg.Webhook.RetryStatuses,
	}, logger)
}

func newFlagEvaluator(cfg *config.Config) featureflag.Evaluator {
	if len(cfg.Flags) == 0 {
		return featureflag.Disabled{}
	}
	states := make(map[string]featureflag.FlagState, len(cfg.Flags))
	for name, fc := range cfg.Flags {
		states[name] = featureflag.FlagState{
			Enabled:     fc.Enabled,
			AllowedSubs: fc.AllowedSubs,
		}
	}
	return featureflag.NewStaticEvaluator(states)
}

// startMetricsServer exposes /metrics and /version, refreshing the
// queue depth gauges on a timer. The returned func stops both.
func startMetricsServer(cfg *config.Config, metrics *observability.Metrics, qs []queues.Queue, logger logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/version", buildinfo.Handler("meet-worker"))

	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", logging.Err(err))
		}
	}()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				for _, q := range qs {
					depth, err := q.Depth(context.Background())
					if err != nil {
						continue
					}
					metrics.RecordQueueDepth(q.Name(), depth)
				}
			}
		}
	}()

	return func() {
		close(done)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
