// Package asr calls the speech-to-text service over its OpenAI-style
// transcription endpoint, requesting verbose output so per-word
// diarization speaker labels survive the round trip.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/suitenumerique/meet/pkg/align"
	"github.com/suitenumerique/meet/pkg/transcript"
)

// ErrLanguageNotAllowed rejects a language hint outside the configured
// allow-list, before any network call.
var ErrLanguageNotAllowed = fmt.Errorf("language not in allow-list")

// Result is the decoded transcription response: speaker-labeled
// segments for the formatter and word-level timings for the aligner.
type Result struct {
	Language string
	Segs     []transcript.Segment
	Words    []align.DiarizedWord
}

// Segments implements transcript.SegmentProvider.
func (r *Result) Segments() []transcript.Segment { return r.Segs }

// Config holds the transcription endpoint settings.
type Config struct {
	BaseURL          string
	APIKey           string
	Model            string
	AllowedLanguages []string
	Timeout          time.Duration
}

// Client posts audio files for transcription.
type Client struct {
	cfg Config
	hc  *http.Client
}

// NewClient creates an ASR client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Minute
	}
	return &Client{
		cfg: cfg,
		hc:  &http.Client{Timeout: timeout},
	}
}

// wire shapes of the verbose_json transcription response.
type wireResponse struct {
	Language string        `json:"language"`
	Segments []wireSegment `json:"segments"`
	Words    []wireWord    `json:"word_segments"`
}

type wireSegment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
}

type wireWord struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Word    string  `json:"word"`
}

// Transcribe uploads the audio file and decodes the diarized response.
// The optional language hint is validated against the allow-list before
// anything is sent; an empty hint lets the engine detect the language.
func (c *Client) Transcribe(ctx context.Context, audioPath, language string) (*Result, error) {
	if language != "" && !c.languageAllowed(language) {
		return nil, fmt.Errorf("%w: %q", ErrLanguageNotAllowed, language)
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", c.cfg.Model); err != nil {
		return nil, err
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, err
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return nil, err
		}
	}
	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	url := c.cfg.BaseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("transcription http %d: %s", resp.StatusCode, string(b))
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode transcription: %w", err)
	}
	return decodeResult(wire), nil
}

func decodeResult(wire wireResponse) *Result {
	res := &Result{Language: wire.Language}
	for _, s := range wire.Segments {
		res.Segs = append(res.Segs, transcript.Segment{
			Speaker: s.Speaker,
			Start:   s.Start,
			End:     s.End,
			Text:    s.Text,
		})
	}
	for _, w := range wire.Words {
		res.Words = append(res.Words, align.DiarizedWord{
			Speaker: w.Speaker,
			Start:   w.Start,
			End:     w.End,
			Text:    w.Word,
		})
	}
	return res
}

func (c *Client) languageAllowed(language string) bool {
	for _, l := range c.cfg.AllowedLanguages {
		if l == language {
			return true
		}
	}
	return false
}
