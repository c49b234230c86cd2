package tracker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suitenumerique/meet/pkg/logging"
)

// fakeClock steps time manually so interval durations are exact.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTrackerBasicInterval(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker("daily-standup", WithClock(clock.now))

	tr.Update([]string{"A"})
	clock.advance(5 * time.Second)
	tr.Update([]string{})

	set := tr.Export()
	require.Len(t, set["A"], 1)
	assert.Equal(t, 5.0, set["A"][0].DurationSec)
	assert.Equal(t, set["A"][0].Start.Add(5*time.Second), set["A"][0].End)
}

func TestTrackerDuplicateSpeakingKeepsStart(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker("room", WithClock(clock.now))

	tr.Update([]string{"A"})
	clock.advance(2 * time.Second)
	tr.Update([]string{"A"}) // duplicate, must not reset the start
	clock.advance(3 * time.Second)
	tr.Update(nil)

	set := tr.Export()
	require.Len(t, set["A"], 1)
	assert.Equal(t, 5.0, set["A"][0].DurationSec)
}

func TestTrackerSetDifference(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker("room", WithClock(clock.now))

	tr.Update([]string{"A", "B"})
	clock.advance(time.Second)
	tr.Update([]string{"B", "C"}) // A closes, C opens, B continues
	clock.advance(2 * time.Second)
	tr.Update(nil)

	set := tr.Export()
	require.Len(t, set["A"], 1)
	assert.Equal(t, 1.0, set["A"][0].DurationSec)
	require.Len(t, set["B"], 1)
	assert.Equal(t, 3.0, set["B"][0].DurationSec)
	require.Len(t, set["C"], 1)
	assert.Equal(t, 2.0, set["C"][0].DurationSec)
}

func TestTrackerParticipantLeft(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker("room", WithClock(clock.now))

	tr.Update([]string{"A"})
	clock.advance(4 * time.Second)
	tr.ParticipantLeft("A")
	tr.ParticipantLeft("A") // second call is a no-op
	tr.ParticipantLeft("B") // never spoke

	set := tr.Export()
	require.Len(t, set["A"], 1)
	assert.Equal(t, 4.0, set["A"][0].DurationSec)
	assert.NotContains(t, set, "B")
}

func TestTrackerFlushIdempotent(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker("room", WithClock(clock.now))

	tr.Update([]string{"A", "B"})
	clock.advance(2 * time.Second)
	tr.Flush()
	clock.advance(10 * time.Second)
	tr.Flush() // no open intervals remain, nothing to add

	set := tr.Export()
	assert.Len(t, set["A"], 1)
	assert.Len(t, set["B"], 1)
	assert.Equal(t, 2.0, set["A"][0].DurationSec)
}

func TestTrackerIntervalsOrderedAndNonOverlapping(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker("room", WithClock(clock.now))

	for i := 0; i < 3; i++ {
		tr.Update([]string{"A"})
		clock.advance(time.Second)
		tr.Update(nil)
		clock.advance(time.Second)
	}

	set := tr.Export()
	require.Len(t, set["A"], 3)
	for i := 0; i < len(set["A"]); i++ {
		iv := set["A"][i]
		assert.False(t, iv.End.Before(iv.Start))
		if i > 0 {
			assert.False(t, iv.Start.Before(set["A"][i-1].End))
		}
	}
}

func TestTrackerExportUsesDisplayName(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker("room", WithClock(clock.now))

	tr.Update([]string{"identity-1"})
	clock.advance(time.Second)
	tr.Update(nil)
	tr.SetName("identity-1", "Alice")

	set := tr.Export()
	assert.Contains(t, set, "Alice")
	assert.NotContains(t, set, "identity-1")
}

func TestTrackerExportMergesSharedDisplayName(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker("room", WithClock(clock.now))

	// Interleave two identities that both resolve to "Alice": the phone
	// speaks first, the laptop second, the phone again last.
	tr.Update([]string{"alice-phone"})
	clock.advance(time.Second)
	tr.Update([]string{"alice-laptop"})
	clock.advance(time.Second)
	tr.Update([]string{"alice-phone"})
	clock.advance(time.Second)
	tr.Update(nil)
	tr.SetName("alice-phone", "Alice")
	tr.SetName("alice-laptop", "Alice")

	set := tr.Export()
	require.Len(t, set["Alice"], 3)
	for i := 1; i < len(set["Alice"]); i++ {
		assert.False(t, set["Alice"][i].Start.Before(set["Alice"][i-1].Start))
	}
}

func TestBuildArtifactShape(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker("weekly", WithClock(clock.now))

	tr.Update([]string{"A"})
	clock.advance(1500 * time.Millisecond)
	tr.Flush()

	raw, err := BuildArtifact(tr).MarshalIndent()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "weekly", decoded["room"])
	assert.NotEmpty(t, decoded["generated_at"])

	by, ok := decoded["by_participant"].(map[string]any)
	require.True(t, ok)
	intervals, ok := by["A"].([]any)
	require.True(t, ok)
	require.Len(t, intervals, 1)

	first := intervals[0].(map[string]any)
	assert.Equal(t, 1.5, first["duration_sec"])
	assert.Contains(t, first["start_iso"], "2025-03-14T10:00:00")
}

func TestDispatcherAppliesEventsInOrder(t *testing.T) {
	clock := newFakeClock()
	tr := NewTracker("room", WithClock(clock.now))
	d := NewDispatcher(tr, logging.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	d.Send(Event{Kind: EventNameChanged, Identity: "id-1", Name: "Alice"})
	d.Send(Event{Kind: EventActiveSpeakers, Speaking: []string{"id-1"}})

	// Let the dispatcher drain before moving the clock.
	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return len(tr.activeSince) == 1
	}, time.Second, 5*time.Millisecond)

	clock.advance(3 * time.Second)
	d.Send(Event{Kind: EventSessionEnded})

	require.Eventually(t, func() bool {
		return len(tr.Export()["Alice"]) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	set := tr.Export()
	require.Len(t, set["Alice"], 1)
	assert.Equal(t, 3.0, set["Alice"][0].DurationSec)
}
