package workers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suitenumerique/meet/pkg/logging"
	"github.com/suitenumerique/meet/pkg/observability"
	"github.com/suitenumerique/meet/pkg/queues"
)

// captureRecorder counts metric calls, embedding the no-op recorder for
// the methods a test does not care about.
type captureRecorder struct {
	observability.NopRecorder

	mu          sync.Mutex
	successes   []string
	failures    []string
	deadLetters []string
}

func (c *captureRecorder) RecordJobSuccess(queue, workerType string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successes = append(c.successes, queue+"/"+workerType)
}

func (c *captureRecorder) RecordJobFailure(queue, workerType, category string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, queue+"/"+workerType+"/"+category)
}

func (c *captureRecorder) RecordDeadLetter(queue string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadLetters = append(c.deadLetters, queue)
}

// memQueue is an in-memory Queue for handler-dispatch tests.
type memQueue struct {
	mu      sync.Mutex
	pending []*queues.QueuedMessage
	acked   []string
	nacked  []string
	dead    map[string]string
}

func newMemQueue() *memQueue {
	return &memQueue{dead: make(map[string]string)}
}

func (m *memQueue) push(t *testing.T, id string, msg queues.Message) {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, &queues.QueuedMessage{
		ID:          id,
		Message:     raw,
		MessageType: msg.GetMessageType(),
	})
}

func (m *memQueue) Name() string { return "mem" }

func (m *memQueue) Enqueue(_ context.Context, msg queues.Message) error { return nil }

func (m *memQueue) Dequeue(ctx context.Context, maxMessages int, timeout time.Duration) ([]*queues.QueuedMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pending) == 0 {
		return nil, nil
	}
	qm := m.pending[0]
	m.pending = m.pending[1:]
	return []*queues.QueuedMessage{qm}, nil
}

func (m *memQueue) Ack(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, id)
	return nil
}

func (m *memQueue) Nack(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nacked = append(m.nacked, id)
	return nil
}

func (m *memQueue) MoveToDeadLetter(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dead[id] = reason
	return nil
}

func (m *memQueue) Depth(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pending)), nil
}

func (m *memQueue) Close() error { return nil }

func testWorkerConfig() WorkerConfig {
	return WorkerConfig{
		WorkerType:      WorkerTypeTranscribe,
		Count:           1,
		QueueName:       "mem",
		JobTimeout:      time.Second,
		PollInterval:    10 * time.Millisecond,
		ShutdownTimeout: time.Second,
	}
}

func TestWorkerAcksOnSuccess(t *testing.T) {
	q := newMemQueue()
	q.push(t, "m1", &queues.TranscribeMessage{RecordingID: "rec-1"})

	var handled []string
	var mu sync.Mutex
	w := NewWorker(testWorkerConfig(), q, func(_ context.Context, msg queues.Message) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, msg.GetRecordingID())
		return nil
	}, observability.NopRecorder{}, logging.NewNopLogger())

	w.Start()
	require.Eventually(t, func() bool { return w.ProcessedCount.Load() == 1 }, time.Second, 5*time.Millisecond)
	w.Stop()

	assert.Equal(t, []string{"rec-1"}, handled)
	assert.Equal(t, []string{"m1"}, q.acked)
	assert.Empty(t, q.nacked)
	assert.Equal(t, WorkerStatusStopped, w.Status)
}

func TestWorkerNacksRetryableFailure(t *testing.T) {
	q := newMemQueue()
	q.push(t, "m1", &queues.TranscribeMessage{RecordingID: "rec-1"})

	w := NewWorker(testWorkerConfig(), q, func(context.Context, queues.Message) error {
		return queues.NewTransientError(queues.ErrorCodeServiceUnavailable, "asr down", nil)
	}, observability.NopRecorder{}, logging.NewNopLogger())

	w.Start()
	require.Eventually(t, func() bool { return w.FailedCount.Load() == 1 }, time.Second, 5*time.Millisecond)
	w.Stop()

	assert.Equal(t, []string{"m1"}, q.nacked)
	assert.Empty(t, q.acked)
}

func TestWorkerDeadLettersTerminalFailure(t *testing.T) {
	q := newMemQueue()
	q.push(t, "m1", &queues.TranscribeMessage{RecordingID: "rec-1"})

	w := NewWorker(testWorkerConfig(), q, func(context.Context, queues.Message) error {
		return queues.NewPermanentError(queues.ErrorCodeInvalidInput, "bad extension", nil)
	}, observability.NopRecorder{}, logging.NewNopLogger())

	w.Start()
	require.Eventually(t, func() bool { return w.FailedCount.Load() == 1 }, time.Second, 5*time.Millisecond)
	w.Stop()

	assert.Empty(t, q.nacked)
	assert.Contains(t, q.dead["m1"], "bad extension")
}

func TestWorkerDeadLettersUnparseableMessage(t *testing.T) {
	q := newMemQueue()
	q.mu.Lock()
	q.pending = append(q.pending, &queues.QueuedMessage{
		ID: "m1", Message: []byte("{}"), MessageType: "mystery",
	})
	q.mu.Unlock()

	w := NewWorker(testWorkerConfig(), q, func(context.Context, queues.Message) error {
		t.Error("handler must not run for unparseable messages")
		return nil
	}, observability.NopRecorder{}, logging.NewNopLogger())

	w.Start()
	require.Eventually(t, func() bool { return w.FailedCount.Load() == 1 }, time.Second, 5*time.Millisecond)
	w.Stop()

	assert.Contains(t, q.dead["m1"], "parse error")
}

func TestWorkerPlainErrorIsRetried(t *testing.T) {
	q := newMemQueue()
	q.push(t, "m1", &queues.SummarizeMessage{RecordingID: "rec-1"})

	w := NewWorker(testWorkerConfig(), q, func(context.Context, queues.Message) error {
		return errors.New("unclassified failure")
	}, observability.NopRecorder{}, logging.NewNopLogger())

	w.Start()
	require.Eventually(t, func() bool { return w.FailedCount.Load() == 1 }, time.Second, 5*time.Millisecond)
	w.Stop()

	assert.Equal(t, []string{"m1"}, q.nacked)
}

func TestWorkerRecordsJobOutcomes(t *testing.T) {
	q := newMemQueue()
	q.push(t, "ok", &queues.TranscribeMessage{RecordingID: "rec-1"})
	q.push(t, "retryable", &queues.TranscribeMessage{RecordingID: "rec-2"})
	q.push(t, "terminal", &queues.TranscribeMessage{RecordingID: "rec-3"})

	rec := &captureRecorder{}
	w := NewWorker(testWorkerConfig(), q, func(_ context.Context, msg queues.Message) error {
		switch msg.GetRecordingID() {
		case "rec-2":
			return queues.NewTransientError(queues.ErrorCodeServiceUnavailable, "asr down", nil)
		case "rec-3":
			return queues.NewPermanentError(queues.ErrorCodeInvalidInput, "bad extension", nil)
		}
		return nil
	}, rec, logging.NewNopLogger())

	w.Start()
	require.Eventually(t, func() bool {
		return w.ProcessedCount.Load() == 1 && w.FailedCount.Load() == 2
	}, time.Second, 5*time.Millisecond)
	w.Stop()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"mem/transcribe"}, rec.successes)
	assert.Equal(t, []string{"mem/transcribe/transient", "mem/transcribe/permanent"}, rec.failures)
	// Only the terminal failure reaches the dead letter queue.
	assert.Equal(t, []string{"mem"}, rec.deadLetters)
}

func TestWorkerRecordsUnparseableDeadLetter(t *testing.T) {
	q := newMemQueue()
	q.mu.Lock()
	q.pending = append(q.pending, &queues.QueuedMessage{
		ID: "m1", Message: []byte("{}"), MessageType: "mystery",
	})
	q.mu.Unlock()

	rec := &captureRecorder{}
	w := NewWorker(testWorkerConfig(), q, func(context.Context, queues.Message) error {
		return nil
	}, rec, logging.NewNopLogger())

	w.Start()
	require.Eventually(t, func() bool { return w.FailedCount.Load() == 1 }, time.Second, 5*time.Millisecond)
	w.Stop()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []string{"mem"}, rec.deadLetters)
	assert.Empty(t, rec.failures)
}

func TestPoolStartsConfiguredWorkers(t *testing.T) {
	q := newMemQueue()
	cfg := testWorkerConfig()
	cfg.Count = 3

	p := NewPool(cfg, q, func(context.Context, queues.Message) error { return nil }, observability.NopRecorder{}, logging.NewNopLogger())
	p.Start()
	defer p.Stop()

	stats := p.Stats()
	assert.Equal(t, 3, stats.WorkerCount)
	assert.Equal(t, 3, stats.ActiveCount)
}
