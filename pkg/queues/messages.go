// Package queues provides the Redis-backed task queues connecting the
// recording pipeline stages.
package queues

import (
	"context"
	"encoding/json"
	"time"
)

// Priority levels for queue messages.
type Priority int

const (
	PriorityLow    Priority = 0 // Reprocessing of old recordings
	PriorityNormal Priority = 1 // Freshly finished recordings
	PriorityHigh   Priority = 2 // Operator-triggered reruns
)

// MessageType identifies the type of queue message.
type MessageType string

const (
	MessageTypeTranscribe MessageType = "transcribe"
	MessageTypeSummarize  MessageType = "summarize"
)

// Message is the base interface for all queue messages.
type Message interface {
	// GetRecordingID returns the recording this message concerns.
	GetRecordingID() string
	// GetPriority returns the message priority.
	GetPriority() Priority
	// GetMessageType returns the message type.
	GetMessageType() MessageType
}

// TranscribeMessage requests transcription of a finished recording.
type TranscribeMessage struct {
	RecordingID   string    `json:"recording_id"`
	ObjectKey     string    `json:"object_key"`
	Room          string    `json:"room"`
	Email         string    `json:"email"`
	Sub           string    `json:"sub"`
	RecordingDate string    `json:"recording_date"`
	RecordingTime string    `json:"recording_time"`
	Language      string    `json:"language,omitempty"`
	DownloadLink  string    `json:"download_link,omitempty"`
	Priority      Priority  `json:"priority"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
}

func (m *TranscribeMessage) GetRecordingID() string      { return m.RecordingID }
func (m *TranscribeMessage) GetPriority() Priority       { return m.Priority }
func (m *TranscribeMessage) GetMessageType() MessageType { return MessageTypeTranscribe }

// SummarizeMessage requests summarization of a formatted transcript.
// It is enqueued by the transcription job when the summary feature flag
// evaluates true for the recording's owner.
type SummarizeMessage struct {
	RecordingID string    `json:"recording_id"`
	Transcript  string    `json:"transcript"`
	Title       string    `json:"title"`
	Email       string    `json:"email"`
	Sub         string    `json:"sub"`
	Priority    Priority  `json:"priority"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

func (m *SummarizeMessage) GetRecordingID() string      { return m.RecordingID }
func (m *SummarizeMessage) GetPriority() Priority       { return m.Priority }
func (m *SummarizeMessage) GetMessageType() MessageType { return MessageTypeSummarize }

// QueuedMessage wraps a message with queue metadata.
type QueuedMessage struct {
	ID           string          `json:"id"`
	Message      json.RawMessage `json:"message"`
	MessageType  MessageType     `json:"message_type"`
	Priority     Priority        `json:"priority"`
	RetryCount   int             `json:"retry_count"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	VisibleAfter time.Time       `json:"visible_after,omitempty"`
}

// ParseMessage parses the raw message based on message type.
func (qm *QueuedMessage) ParseMessage() (Message, error) {
	switch qm.MessageType {
	case MessageTypeTranscribe:
		var msg TranscribeMessage
		if err := json.Unmarshal(qm.Message, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	case MessageTypeSummarize:
		var msg SummarizeMessage
		if err := json.Unmarshal(qm.Message, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	default:
		return nil, ErrUnknownMessageType
	}
}

// Queue defines the interface for a message queue.
type Queue interface {
	// Name returns the queue name.
	Name() string

	// Enqueue adds a message to the queue.
	Enqueue(ctx context.Context, msg Message) error

	// Dequeue retrieves up to maxMessages, blocking up to timeout.
	Dequeue(ctx context.Context, maxMessages int, timeout time.Duration) ([]*QueuedMessage, error)

	// Ack acknowledges successful processing of a message.
	Ack(ctx context.Context, messageID string) error

	// Nack indicates processing failure; the message will be retried
	// or dead-lettered once retries are exhausted.
	Nack(ctx context.Context, messageID string) error

	// MoveToDeadLetter moves a message to the dead letter queue.
	MoveToDeadLetter(ctx context.Context, messageID, reason string) error

	// Depth returns the current queue depth.
	Depth(ctx context.Context) (int64, error)

	// Close closes the queue.
	Close() error
}

// QueueConfig configures queue behavior.
type QueueConfig struct {
	Name              string        `yaml:"name"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetentionPeriod   time.Duration `yaml:"retention_period"`
}

// DefaultQueueConfigs returns default configurations for each queue.
// Transcription holds messages longer: ASR calls on long recordings can
// run for many minutes.
func DefaultQueueConfigs() map[string]QueueConfig {
	return map[string]QueueConfig{
		"meet:transcribe": {
			Name:              "meet:transcribe",
			VisibilityTimeout: 30 * time.Minute,
			MaxRetries:        3,
			RetentionPeriod:   24 * time.Hour,
		},
		"meet:summarize": {
			Name:              "meet:summarize",
			VisibilityTimeout: 10 * time.Minute,
			MaxRetries:        3,
			RetentionPeriod:   24 * time.Hour,
		},
	}
}
