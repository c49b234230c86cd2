// Package jobs implements the queue message handlers: transcription of
// finished recordings and summarization of delivered transcripts.
package jobs

import (
	"context"
	"os"

	"github.com/suitenumerique/meet/pkg/asr"
	"github.com/suitenumerique/meet/pkg/summarize"
	"github.com/suitenumerique/meet/pkg/webhook"
)

// Object key layout inside the recordings bucket. The speaker log is
// uploaded by the room tracker on session teardown; the manifest is
// written by the recorder alongside the media object.
func SpeakerLogKey(recordingID string) string { return "speaker_logs/" + recordingID + ".json" }
func ManifestKey(recordingID string) string   { return "metadata/" + recordingID + ".json" }

// Manifest is the recording metadata written next to the media object.
type Manifest struct {
	// StartedAt is the wall-clock start of the recording in unix
	// nanoseconds. Diarization timestamps are relative to it.
	StartedAt int64 `json:"started_at"`
	// Participants maps participant identity to display name.
	Participants map[string]string `json:"participants"`
}

// ObjectStore is the slice of the storage service the handlers need.
type ObjectStore interface {
	DownloadRecording(ctx context.Context, objectKey string) (string, func(), error)
	GetJSON(ctx context.Context, objectKey string, v any) error
}

// Transcriber converts a local audio file into diarized segments.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (*asr.Result, error)
}

// DocumentSender delivers a finished document to the collaboration
// suite.
type DocumentSender interface {
	Send(ctx context.Context, payload webhook.Payload) error
}

// Summarizer runs the summarization pipeline over one transcript.
type Summarizer interface {
	Run(ctx context.Context, transcriptText, title string) (summarize.Document, error)
}

func removeQuiet(path string) {
	_ = os.Remove(path)
}
