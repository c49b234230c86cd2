package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/suitenumerique/meet/pkg/logging"
)

// wireEvent is the JSON shape of a room notification on the event feed.
type wireEvent struct {
	Type     string   `json:"type"`
	Speaking []string `json:"speaking,omitempty"`
	Identity string   `json:"identity,omitempty"`
	Name     string   `json:"name,omitempty"`
}

// Feed subscribes to a room's event websocket and forwards notifications
// to a dispatcher. It reconnects with exponential backoff until the
// context is cancelled.
type Feed struct {
	url        string
	dispatcher *Dispatcher
	logger     logging.Logger
}

// NewFeed creates a feed for the given websocket URL.
func NewFeed(url string, d *Dispatcher, logger logging.Logger) *Feed {
	return &Feed{
		url:        url,
		dispatcher: d,
		logger:     logger.With(logging.F("component", "tracker_feed")),
	}
}

// Run connects and consumes events until the context is cancelled.
func (f *Feed) Run(ctx context.Context) {
	backoff := 500 * time.Millisecond
	for {
		if ctx.Err() != nil {
			return
		}

		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		conn, _, err := dialer.DialContext(ctx, f.url, http.Header{})
		if err != nil {
			f.logger.Warn("event feed dial failed", logging.Err(err))
			if !sleepCtx(ctx, backoff) {
				return
			}
			if backoff < 10*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = 500 * time.Millisecond

		err = f.consume(ctx, conn)
		_ = conn.Close()
		if err != nil && ctx.Err() == nil {
			f.logger.Warn("event feed disconnected", logging.Err(err))
		}
		if !sleepCtx(ctx, backoff) {
			return
		}
	}
}

func (f *Feed) consume(ctx context.Context, conn *websocket.Conn) error {
	// Close the connection on cancel to unblock the read loop.
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"),
				time.Now().Add(2*time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev wireEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			f.logger.Warn("dropping malformed event frame", logging.Err(err))
			continue
		}
		f.dispatcher.Send(Event{
			Kind:     EventKind(ev.Type),
			Speaking: ev.Speaking,
			Identity: ev.Identity,
			Name:     ev.Name,
		})
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
