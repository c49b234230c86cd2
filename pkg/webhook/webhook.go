// Package webhook delivers finished documents to the configured
// endpoint with bearer-token auth and bounded retry.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/suitenumerique/meet/pkg/logging"
)

// Payload is the delivered document envelope.
type Payload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Email   string `json:"email"`
	Sub     string `json:"sub"`
}

// Config tunes delivery. RetryStatuses lists the HTTP statuses worth a
// retry; everything else fails immediately.
type Config struct {
	URL           string
	APIToken      string
	MaxRetries    int
	BackoffFactor float64
	RetryStatuses []int
	Timeout       time.Duration
}

// Sender posts documents to the webhook.
type Sender struct {
	cfg    Config
	hc     *http.Client
	logger logging.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewSender creates a sender.
func NewSender(cfg Config, logger logging.Logger) *Sender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Sender{
		cfg:    cfg,
		hc:     &http.Client{Timeout: timeout},
		logger: logger.With(logging.F("component", "webhook")),
		sleep:  sleepCtx,
	}
}

// Send posts the payload, retrying on the configured status codes with
// exponential backoff (factor · 2^attempt). Only POST is ever used, so
// retrying cannot replay a different method. Success is any 2xx.
func (s *Sender) Send(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(s.cfg.BackoffFactor * math.Pow(2, float64(attempt-1)) * float64(time.Second))
			s.logger.Warn("retrying webhook delivery",
				logging.F("attempt", attempt),
				logging.F("backoff", backoff.String()))
			if err := s.sleep(ctx, backoff); err != nil {
				return err
			}
		}

		status, err := s.post(ctx, body)
		if err != nil {
			lastErr = err
			continue
		}
		if status >= 200 && status < 300 {
			s.logger.Info("webhook delivered", logging.F("status", status))
			return nil
		}
		lastErr = fmt.Errorf("webhook http %d", status)
		if !s.retryable(status) {
			return lastErr
		}
	}
	return fmt.Errorf("webhook delivery failed after %d attempts: %w", s.cfg.MaxRetries+1, lastErr)
}

func (s *Sender) post(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIToken)

	resp, err := s.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return resp.StatusCode, nil
}

func (s *Sender) retryable(status int) bool {
	for _, code := range s.cfg.RetryStatuses {
		if code == status {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
