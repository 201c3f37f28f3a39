// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	gobreaker "github.com/sony/gobreaker/v2"
)

// HTTP gateway defaults.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultRetries         = 2
	DefaultRetryBase       = 200 * time.Millisecond
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = 30 * time.Second
)

// HTTPConfig configures an HTTPSender.
type HTTPConfig struct {
	URL    string
	APIKey string

	Timeout time.Duration
	Client  *http.Client

	// Retries is the number of retries after the first attempt.
	Retries   uint64
	RetryBase time.Duration

	// BreakerFailures consecutive failed sends open the breaker for BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration

	Logger *slog.Logger
}

// HTTPSender posts messages as JSON to an SMS/email gateway.
type HTTPSender struct {
	url     string
	apiKey  string
	client  *http.Client
	retries uint64
	base    time.Duration
	cb      *gobreaker.CircuitBreaker[struct{}]
	logger  *slog.Logger
}

// errClient marks a gateway rejection that retrying cannot fix.
var errClient = errors.New("gateway rejected message")

// NewHTTPSender validates cfg and builds the sender with its breaker.
func NewHTTPSender(cfg HTTPConfig) (*HTTPSender, error) {
	if cfg.URL == "" {
		return nil, oops.Code("NOTIFY_CONFIG_INVALID").Errorf("gateway url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = DefaultRetryBase
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultBreakerFailures
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = DefaultBreakerTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &HTTPSender{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		client:  cfg.Client,
		retries: cfg.Retries,
		base:    cfg.RetryBase,
		logger:  cfg.Logger,
	}
	threshold := cfg.BreakerFailures
	s.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "notify-gateway",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errClient)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return s, nil
}

// State exposes the breaker state.
func (s *HTTPSender) State() gobreaker.State {
	return s.cb.State()
}

// Send posts msg, retrying network errors and 5xx responses with
// exponential backoff. An open breaker fails fast with NOTIFY_UNAVAILABLE.
func (s *HTTPSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return oops.Code("NOTIFY_ENCODE_FAILED").Wrap(err)
	}

	_, err = s.cb.Execute(func() (struct{}, error) {
		backoff := retry.WithMaxRetries(s.retries, retry.NewExponential(s.base))
		return struct{}{}, retry.Do(ctx, backoff, func(ctx context.Context) error {
			return s.post(ctx, payload)
		})
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return oops.Code("NOTIFY_UNAVAILABLE").With("channel", string(msg.Channel)).Wrap(err)
	default:
		return oops.Code("NOTIFY_SEND_FAILED").With("channel", string(msg.Channel)).Wrap(err)
	}
}

func (s *HTTPSender) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return retry.RetryableError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10)) //nolint:errcheck // drain for connection reuse

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return retry.RetryableError(fmt.Errorf("gateway returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: status %d", errClient, resp.StatusCode)
	}
	return nil
}
