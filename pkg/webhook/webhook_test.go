package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suitenumerique/meet/pkg/logging"
)

func testConfig(url string) Config {
	return Config{
		URL:           url,
		APIToken:      "token",
		MaxRetries:    2,
		BackoffFactor: 0.1,
		RetryStatuses: []int{502, 503, 504},
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestSendDeliversPayload(t *testing.T) {
	var got Payload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(testConfig(srv.URL), logging.NewNopLogger())
	err := s.Send(context.Background(), Payload{
		Title: "Résumé de standup", Content: "body", Email: "a@b.c", Sub: "sub-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer token", auth)
	assert.Equal(t, "Résumé de standup", got.Title)
	assert.Equal(t, "sub-1", got.Sub)
}

func TestSendRetriesOnBadGateway(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSender(testConfig(srv.URL), logging.NewNopLogger())
	s.sleep = noSleep

	require.NoError(t, s.Send(context.Background(), Payload{Title: "t"}))
	assert.Equal(t, 3, attempts)
}

func TestSendExhaustsRetries(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewSender(testConfig(srv.URL), logging.NewNopLogger())
	s.sleep = noSleep

	err := s.Send(context.Background(), Payload{Title: "t"})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "503")
}

func TestSendDoesNotRetryClientError(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewSender(testConfig(srv.URL), logging.NewNopLogger())
	s.sleep = noSleep

	err := s.Send(context.Background(), Payload{Title: "t"})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestSendCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BackoffFactor = 10 // long enough that cancellation wins
	s := NewSender(cfg, logging.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Send(ctx, Payload{Title: "t"})
	require.ErrorIs(t, err, context.Canceled)
}
