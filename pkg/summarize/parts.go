package summarize

import (
	"fmt"
	"math"
	"strings"
)

// tokensPerPartBase is the transcript length, in approximate tokens,
// at which the part-count curve reaches its first inflection.
const tokensPerPartBase = 3800.0

// approxTokens estimates the token count of a transcript at four
// characters per token, which is close enough for sizing the plan.
func approxTokens(transcript string) float64 {
	return float64(len(transcript)) / 4.0
}

// PartCount derives the target number of plan topics from transcript
// length: round(0.5 + 2.3·log1p((tokens/3800)²)), clamped to at least
// one. Short transcripts stay at a single part and long ones grow
// sub-linearly.
func PartCount(transcript string) int {
	x := approxTokens(transcript) / tokensPerPartBase
	n := int(math.Round(0.5 + 2.3*math.Log1p(x*x)))
	if n < 1 {
		return 1
	}
	return n
}

// NumberLines prefixes every transcript line with its 1-based number so
// the plan stage can reference line ranges.
func NumberLines(transcript string) string {
	lines := strings.Split(transcript, "\n")
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%d: %s\n", i+1, line)
	}
	return b.String()
}

// ExtractLines returns the portion of a transcript covered by the given
// 1-based inclusive line ranges. Out-of-bounds ranges are clipped and
// inverted ranges skipped, so a sloppy plan never panics the pipeline.
func ExtractLines(transcript string, ranges [][]int) string {
	lines := strings.Split(transcript, "\n")
	var out []string
	for _, r := range ranges {
		if len(r) != 2 {
			continue
		}
		start, end := r[0], r[1]
		if start < 1 {
			start = 1
		}
		if end > len(lines) {
			end = len(lines)
		}
		if start > end {
			continue
		}
		out = append(out, lines[start-1:end]...)
	}
	return strings.Join(out, "\n")
}
