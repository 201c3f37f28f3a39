// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

// Package webhook verifies and de-duplicates payment provider callbacks.
//
// Payment processing itself lives elsewhere; a verified, first-seen event is
// handed to a Dispatcher and this package is done with it.
package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/samber/oops"

	"github.com/manas360/authcore/pkg/errutil"
)

// ErrDuplicate is wrapped by EventRepository.Record when the event was
// already recorded.
var ErrDuplicate = errors.New("webhook event already processed")

// Verification outcomes reported to a Recorder.
const (
	OutcomeVerified  = "verified"
	OutcomeInvalid   = "invalid"
	OutcomeStale     = "stale"
	OutcomeDuplicate = "duplicate"
)

// EventRepository records processed events for replay protection.
type EventRepository interface {
	Record(ctx context.Context, provider, eventID, payloadHash string) error
	// Forget removes a recorded event so a provider retry is processed.
	Forget(ctx context.Context, provider, eventID string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Event is a verified callback ready for dispatch.
type Event struct {
	Provider    string
	ID          string
	PayloadHash string
	Payload     []byte
	ReceivedAt  time.Time
}

// Dispatcher consumes verified events.
type Dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

// Recorder receives verification outcomes for metrics.
type Recorder interface {
	WebhookVerification(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) WebhookVerification(string) {}

// LogDispatcher logs events and drops them.
type LogDispatcher struct {
	logger *slog.Logger
}

// NewLogDispatcher returns a LogDispatcher; a nil logger uses slog.Default().
func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

// Dispatch implements Dispatcher.
func (d *LogDispatcher) Dispatch(ctx context.Context, event Event) error {
	d.logger.InfoContext(ctx, "payment webhook received",
		"provider", event.Provider,
		"event_id", event.ID,
		"payload_bytes", len(event.Payload))
	return nil
}

// PayloadHash returns the hex SHA-256 of body.
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// EventID extracts the provider event identifier from a JSON body. It looks
// at "id" then "event_id" and falls back to the payload hash.
func EventID(body []byte) string {
	var envelope struct {
		ID      string `json:"id"`
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.ID != "" {
			return envelope.ID
		}
		if envelope.EventID != "" {
			return envelope.EventID
		}
	}
	return PayloadHash(body)
}

// Service verifies, de-duplicates and dispatches callbacks.
type Service struct {
	verifier   *Verifier
	events     EventRepository
	dispatcher Dispatcher
	metrics    Recorder
	logger     *slog.Logger
	now        func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires a Service.
func NewService(verifier *Verifier, events EventRepository, dispatcher Dispatcher, opts ...ServiceOption) (*Service, error) {
	if verifier == nil {
		return nil, oops.Code("WEBHOOK_INVALID_CONFIG").Errorf("verifier is required")
	}
	if events == nil {
		return nil, oops.Code("WEBHOOK_INVALID_CONFIG").Errorf("event repository is required")
	}
	if dispatcher == nil {
		return nil, oops.Code("WEBHOOK_INVALID_CONFIG").Errorf("dispatcher is required")
	}
	s := &Service{
		verifier:   verifier,
		events:     events,
		dispatcher: dispatcher,
		metrics:    nopRecorder{},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handle verifies signature against body and dispatches the event once.
// A replayed event returns WEBHOOK_DUPLICATE wrapping ErrDuplicate and is not
// dispatched again. If dispatch fails the record is dropped so the
// provider's retry goes through.
func (s *Service) Handle(ctx context.Context, provider, signature string, body []byte) (*Event, error) {
	now := s.now()
	if err := s.verifier.Verify(signature, body, now); err != nil {
		if errutil.CodeOf(err) == "WEBHOOK_TIMESTAMP_STALE" {
			s.metrics.WebhookVerification(OutcomeStale)
		} else {
			s.metrics.WebhookVerification(OutcomeInvalid)
		}
		errutil.LogWarn(ctx, s.logger.With("provider", provider), "webhook signature rejected", err)
		return nil, err
	}

	event := Event{
		Provider:    provider,
		ID:          EventID(body),
		PayloadHash: PayloadHash(body),
		Payload:     body,
		ReceivedAt:  now,
	}
	if err := s.events.Record(ctx, provider, event.ID, event.PayloadHash); err != nil {
		if errors.Is(err, ErrDuplicate) {
			s.metrics.WebhookVerification(OutcomeDuplicate)
			s.logger.InfoContext(ctx, "duplicate webhook ignored", "provider", provider, "event_id", event.ID)
			return &event, oops.Code("WEBHOOK_DUPLICATE").
				With("provider", provider).
				With("event_id", event.ID).
				Wrap(ErrDuplicate)
		}
		return nil, oops.Code("WEBHOOK_RECORD_FAILED").With("provider", provider).Wrap(err)
	}
	s.metrics.WebhookVerification(OutcomeVerified)

	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		if ferr := s.events.Forget(ctx, provider, event.ID); ferr != nil {
			errutil.LogError(s.logger.With("provider", provider, "event_id", event.ID),
				"forgetting undispatched webhook failed", ferr)
		}
		return nil, oops.Code("WEBHOOK_DISPATCH_FAILED").
			With("provider", provider).
			With("event_id", event.ID).
			Wrap(err)
	}
	return &event, nil
}
