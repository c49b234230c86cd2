// Package featureflag gates optional pipeline stages per user. Absent
// or misconfigured flag infrastructure evaluates to disabled, never
// enabled.
package featureflag

import "context"

// Flags known to the pipeline.
const (
	// FlagSummaryEnabled gates the summarization stage after a
	// successful transcription.
	FlagSummaryEnabled = "summary-enabled"
	// FlagMetadataAgentEnabled gates the speaker interval tracker for
	// a room.
	FlagMetadataAgentEnabled = "metadata-agent-enabled"
)

// Evaluator answers whether a flag is active for a given subject
// identifier. Implementations must fail closed.
type Evaluator interface {
	Enabled(ctx context.Context, flag, sub string) bool
}

// StaticEvaluator evaluates flags from configuration: a global switch
// per flag plus an optional subject allow-list. A nil allow-list means
// the flag applies to everyone the switch covers.
type StaticEvaluator struct {
	flags map[string]FlagState
}

// FlagState is the configured state of one flag.
type FlagState struct {
	Enabled     bool
	AllowedSubs []string
}

// NewStaticEvaluator builds an evaluator from configured flag states.
func NewStaticEvaluator(flags map[string]FlagState) *StaticEvaluator {
	return &StaticEvaluator{flags: flags}
}

// Enabled reports whether the flag is active for sub. Unknown flags and
// empty subjects are disabled.
func (e *StaticEvaluator) Enabled(_ context.Context, flag, sub string) bool {
	if sub == "" {
		return false
	}
	state, ok := e.flags[flag]
	if !ok || !state.Enabled {
		return false
	}
	if len(state.AllowedSubs) == 0 {
		return true
	}
	for _, allowed := range state.AllowedSubs {
		if allowed == sub {
			return true
		}
	}
	return false
}

// Disabled is an Evaluator that answers false for everything, used when
// no flag backend is configured.
type Disabled struct{}

// Enabled always reports false.
func (Disabled) Enabled(context.Context, string, string) bool { return false }
