package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/suitenumerique/meet/pkg/jobs"
	"github.com/suitenumerique/meet/pkg/logging"
	"github.com/suitenumerique/meet/pkg/storage"
	"github.com/suitenumerique/meet/pkg/tracker"
)

var (
	trackerRoom        string
	trackerRecordingID string
	trackerFeedURL     string
)

// NewTrackerCommand creates the tracker command.
func NewTrackerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tracker",
		Short: "Track speaking intervals of a live room",
		Long: `Subscribe to a room's event feed and accumulate per-participant
speaking intervals. On shutdown (or when the feed announces the end of
the session) the speaking-time log is uploaded to object storage where
the transcription job picks it up for speaker resolution.`,
		RunE: runTracker,
	}

	cmd.Flags().StringVar(&trackerRoom, "room", "", "Room slug to track")
	cmd.Flags().StringVar(&trackerRecordingID, "recording-id", "", "Recording the speaking log belongs to")
	cmd.Flags().StringVar(&trackerFeedURL, "feed-url", "", "Websocket URL of the room event feed")
	_ = cmd.MarkFlagRequired("room")
	_ = cmd.MarkFlagRequired("recording-id")
	_ = cmd.MarkFlagRequired("feed-url")

	return cmd
}

func runTracker(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig("meet-tracker")
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

	tr := tracker.NewTracker(trackerRoom)
	dispatcher := tracker.NewDispatcher(tr, logger)
	feed := tracker.NewFeed(trackerFeedURL, dispatcher, logger)

	go feed.Run(ctx)
	logger.Info("tracking room",
		logging.F("room", trackerRoom),
		logging.RecordingID(trackerRecordingID))

	// Run blocks until the context is cancelled or the feed announces
	// session end; closed intervals are flushed before it returns.
	dispatcher.Run(ctx)

	artifact := tracker.BuildArtifact(tr)
	key := jobs.SpeakerLogKey(trackerRecordingID)

	// The session is over; cancellation of the run context must not
	// abort the upload.
	uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := store.PutJSON(uploadCtx, key, artifact); err != nil {
		return fmt.Errorf("uploading speaking log %q: %w", key, err)
	}
	logger.Info("speaking log uploaded",
		logging.F("object_key", key),
		logging.F("participants", len(artifact.ByParticipant)))
	return nil
}
