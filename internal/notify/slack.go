// Package notify delivers alerts and daily reports to Slack via an incoming
// webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/hskang/krx-signals/internal/model"
)

// Slack posts messages to an incoming webhook.
type Slack struct {
	webhookURL string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration
}

// Option configures a Slack notifier.
type Option func(*Slack)

// NewSlack creates a notifier for the given webhook URL.
func NewSlack(webhookURL string, opts ...Option) *Slack {
	s := &Slack{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *Slack) {
		s.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) Option {
	return func(s *Slack) {
		s.maxRetries = max
		s.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Slack) {
		s.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Slack) {
		s.httpClient = hc
	}
}

// Send posts a text message, retrying transient failures with exponential
// backoff.
func (s *Slack) Send(ctx context.Context, text string) error {
	var lastErr error
	backoff := s.retryBackoff

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			jitter := backoff/2 + time.Duration(rand.Int63n(int64(backoff)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(jitter):
			}
			backoff *= 2
		}

		retryable, err := s.post(ctx, text)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		s.logger.Debug("retrying slack delivery", "attempt", attempt+1, "error", err)
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (s *Slack) post(ctx context.Context, text string) (retryable bool, err error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return true, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		retryable := resp.StatusCode >= 500 || resp.StatusCode == 429
		return retryable, fmt.Errorf("slack webhook %d: %s", resp.StatusCode, body)
	}
	return false, nil
}

// Deliver formats and sends one alert event, satisfying the dispatcher's
// sink interface.
func (s *Slack) Deliver(ctx context.Context, ev model.AlertEvent) error {
	return s.Send(ctx, FormatAlert(ev))
}
