package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrDurationExceeded marks recordings longer than the configured
// maximum.
var ErrDurationExceeded = errors.New("recording duration exceeds limit")

// ProbeDuration reads a media file's duration with ffprobe.
func ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe output %q: %w", out.String(), err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// ValidateDuration rejects recordings longer than the configured
// maximum. A zero maximum disables the check.
func ValidateDuration(ctx context.Context, path string, max time.Duration) (time.Duration, error) {
	duration, err := ProbeDuration(ctx, path)
	if err != nil {
		return 0, err
	}
	if max > 0 && duration > max {
		return duration, fmt.Errorf("recording is %.2fs, limit is %.2fs: %w",
			duration.Seconds(), max.Seconds(), ErrDurationExceeded)
	}
	return duration, nil
}

// ExtractAudio pulls the audio track out of a video container without
// re-encoding, returning the path of the extracted file. The caller
// removes it when done.
func ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	out := filepath.Join(os.TempDir(), base+"_audio.m4a")

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", videoPath,
		"-vn",
		"-acodec", "copy",
		"-y",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
