package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/suitenumerique/meet/pkg/logging"
	"github.com/suitenumerique/meet/pkg/queues"
)

var (
	enqueueObjectKey string
	enqueueRoom      string
	enqueueEmail     string
	enqueueSub       string
	enqueueDate      string
	enqueueTime      string
	enqueueLanguage  string
	enqueueLink      string
	enqueuePriority  string
)

// NewEnqueueCommand creates the enqueue command.
func NewEnqueueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a transcription job by hand",
		Long: `Enqueue a transcription job for a recording already present in
object storage. Intended for reprocessing and debugging; in normal
operation the recorder enqueues jobs itself.

Examples:
  # Reprocess a recording at low priority
  meet-worker enqueue --object-key recordings/rec-42.mp4 \
    --room standup --email alice@example.com --sub user-1 \
    --date 21/11/2023 --time 10:00 --priority low`,
		RunE: runEnqueue,
	}

	cmd.Flags().StringVar(&enqueueObjectKey, "object-key", "", "Recording object key in the bucket")
	cmd.Flags().StringVar(&enqueueRoom, "room", "", "Room the recording was made in")
	cmd.Flags().StringVar(&enqueueEmail, "email", "", "Owner email, receives the documents")
	cmd.Flags().StringVar(&enqueueSub, "sub", "", "Owner subject identifier")
	cmd.Flags().StringVar(&enqueueDate, "date", "", "Recording date as shown in the document title")
	cmd.Flags().StringVar(&enqueueTime, "time", "", "Recording time as shown in the document title")
	cmd.Flags().StringVar(&enqueueLanguage, "language", "", "Optional transcription language hint")
	cmd.Flags().StringVar(&enqueueLink, "download-link", "", "Optional recording download link for the header")
	cmd.Flags().StringVar(&enqueuePriority, "priority", "normal", "Job priority (low, normal, high)")
	_ = cmd.MarkFlagRequired("object-key")
	_ = cmd.MarkFlagRequired("room")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("sub")

	return cmd
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig("meet-worker")
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	priority, err := parsePriority(enqueuePriority)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Queue.RedisAddr})
	defer rdb.Close()
	queue := queues.NewRedisQueue(rdb, namedQueueConfig(queues.DefaultQueueConfigs(), cfg.Queue.TranscribeQueue, cfg.Queue.MaxRetries))
	defer queue.Close()

	msg := &queues.TranscribeMessage{
		RecordingID:   uuid.NewString(),
		ObjectKey:     enqueueObjectKey,
		Room:          enqueueRoom,
		Email:         enqueueEmail,
		Sub:           enqueueSub,
		RecordingDate: enqueueDate,
		RecordingTime: enqueueTime,
		Language:      enqueueLanguage,
		DownloadLink:  enqueueLink,
		Priority:      priority,
		EnqueuedAt:    time.Now().UTC(),
	}
	if err := queue.Enqueue(ctx, msg); err != nil {
		return fmt.Errorf("enqueuing transcription job: %w", err)
	}

	logger.Info("transcription job enqueued",
		logging.RecordingID(msg.RecordingID),
		logging.F("object_key", msg.ObjectKey),
		logging.F("queue", cfg.Queue.TranscribeQueue))
	fmt.Fprintln(cmd.OutOrStdout(), msg.RecordingID)
	return nil
}

func parsePriority(v string) (queues.Priority, error) {
	switch v {
	case "low":
		return queues.PriorityLow, nil
	case "normal":
		return queues.PriorityNormal, nil
	case "high":
		return queues.PriorityHigh, nil
	default:
		return 0, errors.New(`priority must be one of "low", "normal", "high"`)
	}
}
