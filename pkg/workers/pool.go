// Package workers runs the queue consumers of the recording pipeline.
// Each worker executes one job at a time to completion; concurrency
// exists only across workers.
package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/suitenumerique/meet/pkg/logging"
	"github.com/suitenumerique/meet/pkg/observability"
	"github.com/suitenumerique/meet/pkg/queues"
)

// WorkerType identifies the type of worker.
type WorkerType string

const (
	WorkerTypeTranscribe WorkerType = "transcribe"
	WorkerTypeSummarize  WorkerType = "summarize"
)

// WorkerStatus represents the worker's current status.
type WorkerStatus string

const (
	WorkerStatusStarting WorkerStatus = "starting"
	WorkerStatusHealthy  WorkerStatus = "healthy"
	WorkerStatusDraining WorkerStatus = "draining"
	WorkerStatusStopped  WorkerStatus = "stopped"
)

// MessageHandler processes a queue message. A returned ProcessingError
// drives the retry decision; any other error counts as retryable.
type MessageHandler func(ctx context.Context, msg queues.Message) error

// WorkerConfig configures a worker pool.
type WorkerConfig struct {
	WorkerType      WorkerType    `yaml:"worker_type"`
	Count           int           `yaml:"count"`
	QueueName       string        `yaml:"queue_name"`
	JobTimeout      time.Duration `yaml:"job_timeout"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RecoverInterval time.Duration `yaml:"recover_interval"`
}

// DefaultWorkerConfigs returns default worker configurations.
func DefaultWorkerConfigs() map[WorkerType]WorkerConfig {
	return map[WorkerType]WorkerConfig{
		WorkerTypeTranscribe: {
			WorkerType:      WorkerTypeTranscribe,
			Count:           2,
			QueueName:       "meet:transcribe",
			JobTimeout:      25 * time.Minute,
			PollInterval:    1 * time.Second,
			ShutdownTimeout: 60 * time.Second,
			RecoverInterval: 1 * time.Minute,
		},
		WorkerTypeSummarize: {
			WorkerType:      WorkerTypeSummarize,
			Count:           2,
			QueueName:       "meet:summarize",
			JobTimeout:      8 * time.Minute,
			PollInterval:    1 * time.Second,
			ShutdownTimeout: 60 * time.Second,
			RecoverInterval: 1 * time.Minute,
		},
	}
}

// Worker consumes one queue, one message at a time.
type Worker struct {
	ID      string
	Type    WorkerType
	Config  WorkerConfig
	Status  WorkerStatus
	Queue   queues.Queue
	Handler MessageHandler

	ProcessedCount atomic.Int64
	FailedCount    atomic.Int64

	metrics    observability.MetricsRecorder
	logger     logging.Logger
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewWorker creates a new worker.
func NewWorker(config WorkerConfig, queue queues.Queue, handler MessageHandler, metrics observability.MetricsRecorder, logger logging.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New().String()
	return &Worker{
		ID:      id,
		Type:    config.WorkerType,
		Config:  config,
		Status:  WorkerStatusStarting,
		Queue:   queue,
		Handler: handler,
		metrics: metrics,
		logger: logger.With(
			logging.F("worker_id", id),
			logging.F("worker_type", string(config.WorkerType))),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start begins processing messages.
func (w *Worker) Start() {
	w.Status = WorkerStatusHealthy
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.processLoop()
	}()
}

// Stop drains the worker: the in-flight job finishes unless the
// shutdown timeout expires first.
func (w *Worker) Stop() {
	w.Status = WorkerStatusDraining
	w.cancelFunc()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(w.Config.ShutdownTimeout):
		w.logger.Warn("worker shutdown timeout expired")
	}
	w.Status = WorkerStatusStopped
}

func (w *Worker) processLoop() {
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		messages, err := w.Queue.Dequeue(w.ctx, 1, w.Config.PollInterval)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queues.ErrQueueClosed) {
				return
			}
			w.logger.Error("dequeue failed", logging.Err(err))
			time.Sleep(w.Config.PollInterval)
			continue
		}

		for _, qm := range messages {
			if w.ctx.Err() != nil {
				return
			}
			w.processMessage(qm)
		}
	}
}

func (w *Worker) processMessage(qm *queues.QueuedMessage) {
	msg, err := qm.ParseMessage()
	if err != nil {
		w.logger.Error("unparseable message, dead-lettering",
			logging.F("message_id", qm.ID), logging.Err(err))
		_ = w.Queue.MoveToDeadLetter(context.Background(), qm.ID, fmt.Sprintf("parse error: %v", err))
		w.metrics.RecordDeadLetter(w.Queue.Name())
		w.FailedCount.Add(1)
		return
	}

	logger := w.logger.With(
		logging.F("message_id", qm.ID),
		logging.F("recording_id", msg.GetRecordingID()),
		logging.F("retry_count", qm.RetryCount))
	logger.Info("processing job")

	ctx, cancel := context.WithTimeout(w.ctx, w.Config.JobTimeout)
	defer cancel()

	started := time.Now()
	if err := w.Handler(ctx, msg); err != nil {
		w.FailedCount.Add(1)

		category := "unclassified"
		var procErr *queues.ProcessingError
		terminal := errors.As(err, &procErr) && !procErr.IsRetryable()
		if procErr != nil {
			category = string(procErr.Category)
		}
		w.metrics.RecordJobFailure(w.Queue.Name(), string(w.Type), category, time.Since(started))

		// Ack/Nack outlives job cancellation so a drained worker never
		// leaves a message stuck in the processing set.
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cleanupCancel()

		if terminal {
			logger.Error("job failed terminally", logging.Err(err))
			_ = w.Queue.MoveToDeadLetter(cleanupCtx, qm.ID, procErr.Error())
			w.metrics.RecordDeadLetter(w.Queue.Name())
			return
		}
		logger.Warn("job failed, will retry", logging.Err(err))
		_ = w.Queue.Nack(cleanupCtx, qm.ID)
		return
	}
	w.metrics.RecordJobSuccess(w.Queue.Name(), string(w.Type), time.Since(started))

	if err := w.Queue.Ack(context.Background(), qm.ID); err != nil {
		logger.Error("ack failed", logging.Err(err))
	}
	w.ProcessedCount.Add(1)
	logger.Info("job completed")
}

// Pool manages a set of identical workers on one queue.
type Pool struct {
	Type    WorkerType
	Config  WorkerConfig
	Workers []*Worker
	Queue   queues.Queue
	Handler MessageHandler

	metrics observability.MetricsRecorder
	logger  logging.Logger
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewPool creates a new worker pool.
func NewPool(config WorkerConfig, queue queues.Queue, handler MessageHandler, metrics observability.MetricsRecorder, logger logging.Logger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		Type:    config.WorkerType,
		Config:  config,
		Queue:   queue,
		Handler: handler,
		Workers: make([]*Worker, 0, config.Count),
		metrics: metrics,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start starts all workers plus the stale-message recovery loop.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < p.Config.Count; i++ {
		worker := NewWorker(p.Config, p.Queue, p.Handler, p.metrics, p.logger)
		worker.Start()
		p.Workers = append(p.Workers, worker)
	}

	if rq, ok := p.Queue.(*queues.RedisQueue); ok && p.Config.RecoverInterval > 0 {
		go p.recoverLoop(rq)
	}
}

func (p *Pool) recoverLoop(rq *queues.RedisQueue) {
	ticker := time.NewTicker(p.Config.RecoverInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := rq.RecoverStaleMessages(p.ctx); err != nil {
				p.logger.Warn("stale message recovery failed", logging.Err(err))
			}
		}
	}
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	var wg sync.WaitGroup
	for _, worker := range p.Workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Stop()
		}(worker)
	}
	wg.Wait()
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Type        WorkerType
	WorkerCount int
	ActiveCount int
	Processed   int64
	Failed      int64
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	stats := PoolStats{Type: p.Type, WorkerCount: len(p.Workers)}
	for _, w := range p.Workers {
		if w.Status == WorkerStatusHealthy {
			stats.ActiveCount++
		}
		stats.Processed += w.ProcessedCount.Load()
		stats.Failed += w.FailedCount.Load()
	}
	return stats
}
