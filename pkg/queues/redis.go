package queues

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue using Redis sorted sets: one set for
// pending messages ordered by priority then enqueue time, one for
// in-flight messages ordered by visibility deadline.
type RedisQueue struct {
	client *redis.Client
	name   string
	config QueueConfig
	closed chan struct{}
}

// NewRedisQueue creates a new Redis-backed queue.
func NewRedisQueue(client *redis.Client, config QueueConfig) *RedisQueue {
	return &RedisQueue{
		client: client,
		name:   config.Name,
		config: config,
		closed: make(chan struct{}),
	}
}

// Redis key prefixes.
const (
	keyPrefixQueue      = "queue:"      // Pending messages (sorted set)
	keyPrefixProcessing = "processing:" // In-flight messages
	keyPrefixMessage    = "msg:"        // Message payloads
	keyPrefixDLQ        = "dlq:"        // Dead letter queue
)

// Name returns the queue name.
func (q *RedisQueue) Name() string {
	return q.name
}

// score orders messages by priority first, enqueue time second.
func score(priority Priority, at time.Time) float64 {
	return float64(priority)*1e12 + float64(at.UnixNano())
}

// Enqueue adds a message to the queue.
func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	now := time.Now()
	qm := &QueuedMessage{
		ID:          uuid.New().String(),
		Message:     msgBytes,
		MessageType: msg.GetMessageType(),
		Priority:    msg.GetPriority(),
		EnqueuedAt:  now,
	}
	qmBytes, err := json.Marshal(qm)
	if err != nil {
		return fmt.Errorf("marshal queued message: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, keyPrefixMessage+q.name+":"+qm.ID, qmBytes, q.config.RetentionPeriod)
	pipe.ZAdd(ctx, keyPrefixQueue+q.name, redis.Z{
		Score:  score(qm.Priority, now),
		Member: qm.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue message: %w", err)
	}
	return nil
}

// Dequeue retrieves up to maxMessages, polling until the timeout. Each
// returned message is moved to the processing set with a visibility
// deadline; messages not acked before the deadline are recovered by
// RecoverStaleMessages.
func (q *RedisQueue) Dequeue(ctx context.Context, maxMessages int, timeout time.Duration) ([]*QueuedMessage, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}

	queueKey := keyPrefixQueue + q.name
	processingKey := keyPrefixProcessing + q.name
	deadline := time.Now().Add(timeout)

	var messages []*QueuedMessage

	for time.Now().Before(deadline) && len(messages) < maxMessages {
		result, err := q.client.ZPopMax(ctx, queueKey, 1).Result()
		if err != nil && err != redis.Nil {
			return messages, fmt.Errorf("pop from queue: %w", err)
		}
		if len(result) == 0 {
			select {
			case <-time.After(100 * time.Millisecond):
				continue
			case <-ctx.Done():
				return messages, ctx.Err()
			case <-q.closed:
				return messages, ErrQueueClosed
			}
		}

		messageID := result[0].Member.(string)
		msgKey := keyPrefixMessage + q.name + ":" + messageID

		data, err := q.client.Get(ctx, msgKey).Bytes()
		if err == redis.Nil {
			// Payload expired, drop the reference.
			continue
		}
		if err != nil {
			return messages, fmt.Errorf("get message data: %w", err)
		}

		var qm QueuedMessage
		if err := json.Unmarshal(data, &qm); err != nil {
			return messages, fmt.Errorf("unmarshal message: %w", err)
		}

		qm.VisibleAfter = time.Now().Add(q.config.VisibilityTimeout)
		updatedData, _ := json.Marshal(qm)

		pipe := q.client.TxPipeline()
		pipe.Set(ctx, msgKey, updatedData, q.config.RetentionPeriod)
		pipe.ZAdd(ctx, processingKey, redis.Z{
			Score:  float64(qm.VisibleAfter.UnixNano()),
			Member: messageID,
		})
		if _, err := pipe.Exec(ctx); err != nil {
			return messages, fmt.Errorf("move to processing: %w", err)
		}

		messages = append(messages, &qm)
	}

	return messages, nil
}

// Ack acknowledges successful processing of a message.
func (q *RedisQueue) Ack(ctx context.Context, messageID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, keyPrefixProcessing+q.name, messageID)
	pipe.Del(ctx, keyPrefixMessage+q.name+":"+messageID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ack message: %w", err)
	}
	return nil
}

// Nack indicates processing failure. The message is re-enqueued with
// exponential backoff, or dead-lettered once retries are exhausted.
func (q *RedisQueue) Nack(ctx context.Context, messageID string) error {
	msgKey := keyPrefixMessage + q.name + ":" + messageID

	data, err := q.client.Get(ctx, msgKey).Bytes()
	if err == redis.Nil {
		return ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}

	var qm QueuedMessage
	if err := json.Unmarshal(data, &qm); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}

	qm.RetryCount++
	if qm.RetryCount >= q.config.MaxRetries {
		return q.MoveToDeadLetter(ctx, messageID, "max retries exceeded")
	}

	qm.VisibleAfter = time.Now().Add(DefaultRetryPolicy().CalculateBackoff(qm.RetryCount))
	updatedData, _ := json.Marshal(qm)

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, keyPrefixProcessing+q.name, messageID)
	pipe.Set(ctx, msgKey, updatedData, q.config.RetentionPeriod)
	pipe.ZAdd(ctx, keyPrefixQueue+q.name, redis.Z{
		Score:  score(qm.Priority, qm.VisibleAfter),
		Member: messageID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("nack message: %w", err)
	}
	return nil
}

// MoveToDeadLetter moves a message to the dead letter queue.
func (q *RedisQueue) MoveToDeadLetter(ctx context.Context, messageID, reason string) error {
	msgKey := keyPrefixMessage + q.name + ":" + messageID

	data, err := q.client.Get(ctx, msgKey).Bytes()
	if err == redis.Nil {
		return ErrMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}

	dlqEntry := map[string]any{
		"message":    string(data),
		"reason":     reason,
		"moved_at":   time.Now().Format(time.RFC3339),
		"queue_name": q.name,
	}
	dlqData, _ := json.Marshal(dlqEntry)

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, keyPrefixProcessing+q.name, messageID)
	pipe.Del(ctx, msgKey)
	pipe.ZAdd(ctx, keyPrefixDLQ+q.name, redis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: string(dlqData),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("move to DLQ: %w", err)
	}
	return nil
}

// Depth returns the current queue depth.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, keyPrefixQueue+q.name).Result()
}

// Close closes the queue.
func (q *RedisQueue) Close() error {
	select {
	case <-q.closed:
	default:
		close(q.closed)
	}
	return nil
}

// RecoverStaleMessages re-enqueues messages whose visibility timeout
// expired, dead-lettering those that already exhausted their retries.
// Called periodically by the worker runner.
func (q *RedisQueue) RecoverStaleMessages(ctx context.Context) error {
	processingKey := keyPrefixProcessing + q.name
	queueKey := keyPrefixQueue + q.name

	stale, err := q.client.ZRangeByScore(ctx, processingKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%f", float64(time.Now().UnixNano())),
		Count: 100,
	}).Result()
	if err != nil {
		return fmt.Errorf("find stale messages: %w", err)
	}

	for _, messageID := range stale {
		msgKey := keyPrefixMessage + q.name + ":" + messageID

		data, err := q.client.Get(ctx, msgKey).Bytes()
		if err == redis.Nil {
			q.client.ZRem(ctx, processingKey, messageID)
			continue
		}
		if err != nil {
			continue
		}

		var qm QueuedMessage
		if err := json.Unmarshal(data, &qm); err != nil {
			continue
		}

		qm.RetryCount++
		if qm.RetryCount >= q.config.MaxRetries {
			_ = q.MoveToDeadLetter(ctx, messageID, "visibility timeout exceeded")
			continue
		}

		updatedData, _ := json.Marshal(qm)
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, processingKey, messageID)
		pipe.Set(ctx, msgKey, updatedData, q.config.RetentionPeriod)
		pipe.ZAdd(ctx, queueKey, redis.Z{
			Score:  score(qm.Priority, time.Now()),
			Member: messageID,
		})
		pipe.Exec(ctx)
	}

	return nil
}

// Verify interface compliance
var _ Queue = (*RedisQueue)(nil)
