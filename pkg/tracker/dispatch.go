package tracker

import (
	"context"

	"github.com/suitenumerique/meet/pkg/logging"
)

// EventKind identifies a room notification type.
type EventKind string

const (
	// EventActiveSpeakers carries the full set of currently speaking
	// participant identities.
	EventActiveSpeakers EventKind = "active_speakers"
	// EventParticipantLeft signals a disconnect.
	EventParticipantLeft EventKind = "participant_left"
	// EventNameChanged carries a display-name update.
	EventNameChanged EventKind = "name_changed"
	// EventSessionEnded closes all open intervals.
	EventSessionEnded EventKind = "session_ended"
)

// Event is one room notification. Fields are populated per kind:
// Speaking for active-speaker updates, Identity (plus Name) for
// participant events.
type Event struct {
	Kind     EventKind
	Speaking []string
	Identity string
	Name     string
}

// Dispatcher serializes room events onto a single tracker so interval
// bookkeeping sees notifications in arrival order regardless of how
// many producers feed it.
type Dispatcher struct {
	tracker *Tracker
	events  chan Event
	done    chan struct{}
	logger  logging.Logger
}

// NewDispatcher creates a dispatcher for the given tracker. Events sent
// after Run returns are dropped.
func NewDispatcher(t *Tracker, logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		tracker: t,
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
		logger:  logger.With(logging.F("component", "tracker_dispatch"), logging.F("room", t.Room())),
	}
}

// Send queues an event for processing. It never blocks the caller once
// the dispatcher has stopped.
func (d *Dispatcher) Send(ev Event) {
	select {
	case d.events <- ev:
	case <-d.done:
	}
}

// Run consumes events until the context is cancelled or the session
// ends, then flushes the tracker so no open interval is lost.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	defer d.tracker.Flush()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping, flushing open intervals")
			return
		case ev := <-d.events:
			d.apply(ev)
			if ev.Kind == EventSessionEnded {
				d.logger.Info("session ended")
				return
			}
		}
	}
}

func (d *Dispatcher) apply(ev Event) {
	switch ev.Kind {
	case EventActiveSpeakers:
		d.tracker.Update(ev.Speaking)
	case EventParticipantLeft:
		d.tracker.ParticipantLeft(ev.Identity)
	case EventNameChanged:
		d.tracker.SetName(ev.Identity, ev.Name)
	case EventSessionEnded:
		d.tracker.Flush()
	default:
		d.logger.Warn("unknown room event", logging.F("kind", string(ev.Kind)))
	}
}
