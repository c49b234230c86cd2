// Package tracker converts live voice-activity notifications into closed
// speaking intervals per participant. Each notification carries the full
// set of currently active speaker identities; the tracker computes the
// deltas itself.
package tracker

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Interval is one closed speaking interval for a participant.
type Interval struct {
	Start       time.Time
	End         time.Time
	DurationSec float64
}

// IntervalSet maps a participant key (display name when known, identity
// otherwise) to its intervals, ordered by start time.
type IntervalSet map[string][]Interval

// Tracker accumulates speaking intervals for one meeting session.
// It is safe for concurrent use, though the expected usage is a single
// event-dispatch goroutine applying notifications in arrival order.
type Tracker struct {
	mu          sync.Mutex
	room        string
	activeSince map[string]time.Time
	closed      map[string][]Interval
	names       map[string]string
	now         func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker for the given room.
func NewTracker(room string, opts ...Option) *Tracker {
	t := &Tracker{
		room:        room,
		activeSince: make(map[string]time.Time),
		closed:      make(map[string][]Interval),
		names:       make(map[string]string),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Room returns the room this tracker observes.
func (t *Tracker) Room() string {
	return t.room
}

// SetName records the display name for a participant identity. Later
// calls overwrite earlier ones, mirroring name-change notifications.
func (t *Tracker) SetName(identity, name string) {
	if name == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.names[identity] = name
}

// Update applies one active-speakers notification. Identities newly
// present open an interval at the current time; identities no longer
// present close theirs. Repeating an unchanged set is a no-op, and a
// duplicate "speaking" notification never resets the start time.
func (t *Tracker) Update(currentSpeaking []string) {
	now := t.now()

	current := make(map[string]struct{}, len(currentSpeaking))
	for _, id := range currentSpeaking {
		current[id] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for id := range current {
		if _, open := t.activeSince[id]; !open {
			t.activeSince[id] = now
		}
	}

	for id, start := range t.activeSince {
		if _, still := current[id]; !still {
			delete(t.activeSince, id)
			t.emit(id, start, now)
		}
	}
}

// ParticipantLeft force-closes the open interval of a participant who
// disconnected. No-op if the participant has no open interval.
func (t *Tracker) ParticipantLeft(identity string) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	start, open := t.activeSince[identity]
	if !open {
		return
	}
	delete(t.activeSince, identity)
	t.emit(identity, start, now)
}

// Flush force-closes every still-open interval at the current time.
// Calling it again is a no-op.
func (t *Tracker) Flush() {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, start := range t.activeSince {
		t.emit(id, start, now)
	}
	t.activeSince = make(map[string]time.Time)
}

// emit appends a closed interval, clamping duration at zero so clock
// skew can never produce a negative one. Caller holds the mutex.
func (t *Tracker) emit(identity string, start, end time.Time) {
	if end.Before(start) {
		end = start
	}
	dur := math.Round(end.Sub(start).Seconds()*1000) / 1000
	t.closed[identity] = append(t.closed[identity], Interval{
		Start:       start,
		End:         end,
		DurationSec: dur,
	})
}

// Export returns a snapshot of all closed intervals, keyed by display
// name when one was recorded and identity otherwise. It does not mutate
// tracker state and may be called repeatedly.
func (t *Tracker) Export() IntervalSet {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(IntervalSet, len(t.closed))
	for id, intervals := range t.closed {
		key := id
		if name, ok := t.names[id]; ok {
			key = name
		}
		out[key] = append(out[key], intervals...)
	}
	// Two identities can share a display name; sort after merging so
	// every exported slice stays ordered by start.
	for key := range out {
		slice := out[key]
		sort.Slice(slice, func(i, j int) bool { return slice[i].Start.Before(slice[j].Start) })
	}
	return out
}
