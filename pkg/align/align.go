// Package align maps opaque ASR diarization speaker labels onto real
// meeting participants by comparing talk segments against the speaking
// intervals recorded live by the tracker.
package align

import (
	"math"
	"sort"
	"time"

	"github.com/suitenumerique/meet/pkg/tracker"
)

// DiarizedWord is one word from the ASR engine, with timestamps in
// seconds relative to the start of the recording.
type DiarizedWord struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// Segment is a contiguous run of words for one raw speaker label.
type Segment struct {
	Speaker string
	Start   float64
	End     float64
}

// Match associates a raw speaker label with a real participant.
type Match struct {
	Participant string  `json:"participant"`
	Confidence  float64 `json:"confidence"`
}

// Mapping is the per-recording result of alignment. Labels with no
// acceptable match are absent.
type Mapping map[string]Match

// Config tunes the alignment heuristics.
type Config struct {
	// MergeGap is the largest silence, in seconds, bridged when merging
	// consecutive words of one label into a segment.
	MergeGap float64
	// OverlapThreshold is the minimum overlap ratio for a match.
	OverlapThreshold float64
}

// DefaultConfig returns the tuning used in production.
func DefaultConfig() Config {
	return Config{MergeGap: 1.0, OverlapThreshold: 0.3}
}

// Aligner computes speaker-label mappings.
type Aligner struct {
	cfg Config
}

// NewAligner creates an aligner with the given tuning.
func NewAligner(cfg Config) *Aligner {
	return &Aligner{cfg: cfg}
}

// MergeSegments groups words by raw label and merges consecutive words
// into segments whenever the inter-word gap stays below the merge gap.
// Each group is sorted by start time first; ASR engines usually emit
// words in order, but the merge must not depend on it.
func (a *Aligner) MergeSegments(words []DiarizedWord) []Segment {
	byLabel := make(map[string][]DiarizedWord)
	var labels []string
	for _, w := range words {
		if _, seen := byLabel[w.Speaker]; !seen {
			labels = append(labels, w.Speaker)
		}
		byLabel[w.Speaker] = append(byLabel[w.Speaker], w)
	}

	var segments []Segment
	for _, label := range labels {
		group := byLabel[label]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Start < group[j].Start })
		cur := Segment{Speaker: label, Start: group[0].Start, End: group[0].End}
		for _, w := range group[1:] {
			if w.Start-cur.End < a.cfg.MergeGap {
				if w.End > cur.End {
					cur.End = w.End
				}
				continue
			}
			segments = append(segments, cur)
			cur = Segment{Speaker: label, Start: w.Start, End: w.End}
		}
		segments = append(segments, cur)
	}
	return segments
}

// Align computes the best participant match for every raw speaker label.
// recordingStart anchors the diarization timeline: tracker intervals are
// wall-clock, diarization offsets are recording-relative.
//
// For each (label, participant) pair the total temporal overlap between
// the label's segments and the participant's intervals is summed, then
// divided by the label's total talk duration. The participant with the
// highest ratio wins if the ratio reaches the threshold; exact ties go
// to the lexicographically smallest participant key. Labels with zero
// talk duration or no acceptable match stay unmapped.
func (a *Aligner) Align(words []DiarizedWord, intervals tracker.IntervalSet, recordingStart time.Time) Mapping {
	mapping := make(Mapping)
	if len(words) == 0 || len(intervals) == 0 {
		return mapping
	}

	segments := a.MergeSegments(words)

	byLabel := make(map[string][]Segment)
	for _, s := range segments {
		byLabel[s.Speaker] = append(byLabel[s.Speaker], s)
	}

	participants := make([]string, 0, len(intervals))
	for p := range intervals {
		participants = append(participants, p)
	}
	sort.Strings(participants)

	for label, segs := range byLabel {
		var total float64
		for _, s := range segs {
			total += s.End - s.Start
		}
		if total <= 0 {
			continue
		}

		best := Match{}
		for _, p := range participants {
			var overlap float64
			for _, s := range segs {
				for _, iv := range intervals[p] {
					ivStart := iv.Start.Sub(recordingStart).Seconds()
					ivEnd := iv.End.Sub(recordingStart).Seconds()
					overlap += math.Max(0, math.Min(s.End, ivEnd)-math.Max(s.Start, ivStart))
				}
			}
			ratio := overlap / total
			if ratio > best.Confidence {
				best = Match{Participant: p, Confidence: ratio}
			}
		}

		if best.Participant != "" && best.Confidence >= a.cfg.OverlapThreshold {
			mapping[label] = best
		}
	}
	return mapping
}

// ResolveName turns a raw speaker label into a display name. Mapped
// labels resolve through the roster (identity → display name), falling
// back to the participant key itself; a "?" suffix flags matches whose
// confidence sits in the uncertain band just above the threshold.
// Unmapped labels pass through unchanged.
func (a *Aligner) ResolveName(label string, mapping Mapping, roster map[string]string) string {
	m, ok := mapping[label]
	if !ok {
		return label
	}
	name := m.Participant
	if display, ok := roster[m.Participant]; ok && display != "" {
		name = display
	}
	if m.Confidence < a.cfg.OverlapThreshold+0.2 {
		name += "?"
	}
	return name
}
