package tracker

import (
	"encoding/json"
	"time"
)

// ArtifactInterval is the serialized form of one speaking interval.
type ArtifactInterval struct {
	StartISO    string  `json:"start_iso"`
	EndISO      string  `json:"end_iso"`
	DurationSec float64 `json:"duration_sec"`
}

// Artifact is the per-session speaking-time export attached to a
// finished recording.
type Artifact struct {
	Room          string                        `json:"room"`
	GeneratedAt   string                        `json:"generated_at"`
	ByParticipant map[string][]ArtifactInterval `json:"by_participant"`
}

// BuildArtifact snapshots the tracker into its export form. Timestamps
// are rendered in RFC 3339 with millisecond precision, UTC.
func BuildArtifact(t *Tracker) Artifact {
	set := t.Export()
	by := make(map[string][]ArtifactInterval, len(set))
	for key, intervals := range set {
		out := make([]ArtifactInterval, 0, len(intervals))
		for _, iv := range intervals {
			out = append(out, ArtifactInterval{
				StartISO:    iv.Start.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
				EndISO:      iv.End.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
				DurationSec: iv.DurationSec,
			})
		}
		by[key] = out
	}
	return Artifact{
		Room:          t.Room(),
		GeneratedAt:   time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		ByParticipant: by,
	}
}

// MarshalIndent renders the artifact as pretty-printed JSON, the form
// written next to the recording.
func (a Artifact) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// IntervalSet parses the artifact back into in-memory intervals, for
// consumers that align diarization output against it. Intervals whose
// timestamps do not parse are dropped.
func (a Artifact) IntervalSet() IntervalSet {
	set := make(IntervalSet, len(a.ByParticipant))
	for key, intervals := range a.ByParticipant {
		out := make([]Interval, 0, len(intervals))
		for _, iv := range intervals {
			start, err := time.Parse(time.RFC3339, iv.StartISO)
			if err != nil {
				continue
			}
			end, err := time.Parse(time.RFC3339, iv.EndISO)
			if err != nil {
				continue
			}
			out = append(out, Interval{Start: start, End: end, DurationSec: iv.DurationSec})
		}
		if len(out) > 0 {
			set[key] = out
		}
	}
	return set
}
