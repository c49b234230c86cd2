// Package transcript renders diarized ASR output into a readable,
// speaker-labeled markdown document.
package transcript

import (
	"strings"
)

// UnknownSpeaker labels segments the ASR engine could not attribute.
const UnknownSpeaker = "UNKNOWN_SPEAKER"

// Segment is one transcribed utterance with its resolved speaker.
type Segment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

// SegmentProvider is implemented by transcription results that expose
// their segments directly.
type SegmentProvider interface {
	Segments() []Segment
}

// ExtractSegments pulls the segment list out of a transcription result,
// whatever its concrete shape: a SegmentProvider, a bare segment slice,
// or a decoded JSON map with a "segments" key. Returns nil when the
// value carries no segments.
func ExtractSegments(transcription any) []Segment {
	switch v := transcription.(type) {
	case SegmentProvider:
		return v.Segments()
	case []Segment:
		return v
	case map[string]any:
		raw, ok := v["segments"].([]any)
		if !ok {
			if typed, ok := v["segments"].([]Segment); ok {
				return typed
			}
			return nil
		}
		out := make([]Segment, 0, len(raw))
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			seg := Segment{}
			if s, ok := m["speaker"].(string); ok {
				seg.Speaker = s
			}
			if t, ok := m["text"].(string); ok {
				seg.Text = t
			}
			if f, ok := m["start"].(float64); ok {
				seg.Start = f
			}
			if f, ok := m["end"].(float64); ok {
				seg.End = f
			}
			out = append(out, seg)
		}
		return out
	}
	return nil
}

// Result is the formatted transcript. Empty is set when no speech was
// detected, in which case Content holds the locale's explanation text
// rather than a transcript.
type Result struct {
	Title   string
	Content string
	Empty   bool
}

// Formatter renders transcription segments into the final document.
type Formatter struct {
	locale                LocaleStrings
	hallucinationPatterns []string
}

// NewFormatter creates a formatter for the given locale. The pattern
// list holds literal phrases the ASR engine is known to hallucinate on
// silence, replaced by the locale's placeholder.
func NewFormatter(locale LocaleStrings, hallucinationPatterns []string) *Formatter {
	return &Formatter{
		locale:                locale,
		hallucinationPatterns: hallucinationPatterns,
	}
}

// Format renders a transcription into markdown and produces the
// document title. Zero segments is a normal outcome: the result is the
// locale's empty-transcription message, flagged via Empty.
func (f *Formatter) Format(transcription any, room, recordingDate, recordingTime, downloadLink string) Result {
	segments := ExtractSegments(transcription)
	title := f.generateTitle(room, recordingDate, recordingTime)

	if len(segments) == 0 {
		return Result{Title: title, Content: f.locale.EmptyTranscription, Empty: true}
	}

	content := f.formatSpeakers(segments)
	content = f.removeHallucinations(content)
	content = f.addHeader(content, downloadLink)

	return Result{Title: title, Content: content}
}

// formatSpeakers walks segments in order, starting a new labeled
// paragraph whenever the speaker changes and concatenating consecutive
// same-speaker segments with a space.
func (f *Formatter) formatSpeakers(segments []Segment) string {
	var b strings.Builder
	previous := ""
	seen := false

	for _, seg := range segments {
		if seg.Text == "" {
			continue
		}
		speaker := seg.Speaker
		if speaker == "" {
			speaker = UnknownSpeaker
		}
		if !seen || speaker != previous {
			b.WriteString("\n\n **")
			b.WriteString(speaker)
			b.WriteString("**: ")
			b.WriteString(seg.Text)
		} else {
			b.WriteString(" ")
			b.WriteString(seg.Text)
		}
		previous = speaker
		seen = true
	}
	return b.String()
}

func (f *Formatter) removeHallucinations(content string) string {
	for _, pattern := range f.hallucinationPatterns {
		content = strings.ReplaceAll(content, pattern, f.locale.HallucinationReplacement)
	}
	return content
}

func (f *Formatter) addHeader(content, downloadLink string) string {
	if downloadLink == "" {
		return content
	}
	header := strings.ReplaceAll(f.locale.DownloadHeaderTemplate, "{download_link}", downloadLink)
	return header + content
}

// generateTitle fills the locale's title template when room, date and
// time are all present; any missing field falls back to the default
// title with no partial substitution.
func (f *Formatter) generateTitle(room, recordingDate, recordingTime string) string {
	if room == "" || recordingDate == "" || recordingTime == "" {
		return f.locale.DocumentDefaultTitle
	}
	title := f.locale.DocumentTitleTemplate
	title = strings.ReplaceAll(title, "{room}", room)
	title = strings.ReplaceAll(title, "{room_recording_date}", recordingDate)
	title = strings.ReplaceAll(title, "{room_recording_time}", recordingTime)
	return title
}
