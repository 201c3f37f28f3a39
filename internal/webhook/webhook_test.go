// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package webhook_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/manas360/authcore/internal/webhook"
	"github.com/manas360/authcore/pkg/errutil"
)

type mockEvents struct {
	mock.Mock
}

func (m *mockEvents) Record(ctx context.Context, provider, eventID, payloadHash string) error {
	return m.Called(ctx, provider, eventID, payloadHash).Error(0)
}

func (m *mockEvents) Forget(ctx context.Context, provider, eventID string) error {
	return m.Called(ctx, provider, eventID).Error(0)
}

func (m *mockEvents) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []webhook.Event
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, e webhook.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, e)
	return d.err
}

type outcomes map[string]int

func (o outcomes) WebhookVerification(outcome string) { o[outcome]++ }

const secret = "whsec_test"

func newService(t *testing.T, events webhook.EventRepository, d webhook.Dispatcher, rec outcomes) *webhook.Service {
	t.Helper()
	v, err := webhook.NewVerifier([]string{secret})
	require.NoError(t, err)
	svc, err := webhook.NewService(v, events, d,
		webhook.WithRecorder(rec),
		webhook.WithLogger(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	require.NoError(t, err)
	return svc
}

func TestService_Handle(t *testing.T) {
	ctx := context.Background()
	body := []byte(`{"id":"evt_42","status":"captured"}`)
	sig := webhook.Sign([]byte(secret), body)

	t.Run("first delivery is dispatched", func(t *testing.T) {
		events := &mockEvents{}
		events.On("Record", mock.Anything, "razorpay", "evt_42", webhook.PayloadHash(body)).Return(nil).Once()
		d := &recordingDispatcher{}
		rec := outcomes{}

		event, err := newService(t, events, d, rec).Handle(ctx, "razorpay", sig, body)
		require.NoError(t, err)
		assert.Equal(t, "evt_42", event.ID)
		require.Len(t, d.events, 1)
		assert.Equal(t, body, d.events[0].Payload)
		assert.Equal(t, 1, rec[webhook.OutcomeVerified])
		events.AssertExpectations(t)
	})

	t.Run("replay is not dispatched", func(t *testing.T) {
		events := &mockEvents{}
		events.On("Record", mock.Anything, "razorpay", "evt_42", mock.Anything).
			Return(oops.Code("WEBHOOK_DUPLICATE").Wrap(webhook.ErrDuplicate)).Once()
		d := &recordingDispatcher{}
		rec := outcomes{}

		event, err := newService(t, events, d, rec).Handle(ctx, "razorpay", sig, body)
		assert.ErrorIs(t, err, webhook.ErrDuplicate)
		errutil.AssertErrorCode(t, err, "WEBHOOK_DUPLICATE")
		require.NotNil(t, event)
		assert.Empty(t, d.events)
		assert.Equal(t, 1, rec[webhook.OutcomeDuplicate])
	})

	t.Run("bad signature never reaches the repository", func(t *testing.T) {
		events := &mockEvents{}
		rec := outcomes{}

		_, err := newService(t, events, &recordingDispatcher{}, rec).Handle(ctx, "razorpay", "sha256=00", body)
		errutil.AssertErrorCode(t, err, "WEBHOOK_SIGNATURE_INVALID")
		events.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		assert.Equal(t, 1, rec[webhook.OutcomeInvalid])
	})

	t.Run("stale timestamp is counted separately", func(t *testing.T) {
		rec := outcomes{}
		stale := webhook.SignTimestamped([]byte(secret), body, time.Now().Add(-time.Hour))

		_, err := newService(t, &mockEvents{}, &recordingDispatcher{}, rec).Handle(ctx, "razorpay", stale, body)
		errutil.AssertErrorCode(t, err, "WEBHOOK_TIMESTAMP_STALE")
		assert.Equal(t, 1, rec[webhook.OutcomeStale])
	})

	t.Run("repository failure", func(t *testing.T) {
		events := &mockEvents{}
		events.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("db down"))

		_, err := newService(t, events, &recordingDispatcher{}, outcomes{}).Handle(ctx, "razorpay", sig, body)
		errutil.AssertErrorCode(t, err, "WEBHOOK_RECORD_FAILED")
	})

	t.Run("dispatch failure forgets the event so a retry is dispatched", func(t *testing.T) {
		events := &mockEvents{}
		events.On("Record", mock.Anything, "razorpay", "evt_42", mock.Anything).Return(nil).Twice()
		events.On("Forget", mock.Anything, "razorpay", "evt_42").Return(nil).Once()
		d := &recordingDispatcher{err: errors.New("queue full")}
		svc := newService(t, events, d, outcomes{})

		_, err := svc.Handle(ctx, "razorpay", sig, body)
		errutil.AssertErrorCode(t, err, "WEBHOOK_DISPATCH_FAILED")

		d.err = nil
		event, err := svc.Handle(ctx, "razorpay", sig, body)
		require.NoError(t, err)
		assert.Equal(t, "evt_42", event.ID)
		assert.Len(t, d.events, 2)
		events.AssertExpectations(t)
	})

	t.Run("forget failure still reports the dispatch error", func(t *testing.T) {
		events := &mockEvents{}
		events.On("Record", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		events.On("Forget", mock.Anything, "razorpay", "evt_42").Return(errors.New("db down"))
		d := &recordingDispatcher{err: errors.New("queue full")}

		_, err := newService(t, events, d, outcomes{}).Handle(ctx, "razorpay", sig, body)
		errutil.AssertErrorCode(t, err, "WEBHOOK_DISPATCH_FAILED")
		assert.Contains(t, err.Error(), "queue full")
	})
}

func TestNewService_Validation(t *testing.T) {
	v, err := webhook.NewVerifier([]string{secret})
	require.NoError(t, err)

	_, err = webhook.NewService(nil, &mockEvents{}, &recordingDispatcher{})
	errutil.AssertErrorCode(t, err, "WEBHOOK_INVALID_CONFIG")
	_, err = webhook.NewService(v, nil, &recordingDispatcher{})
	errutil.AssertErrorCode(t, err, "WEBHOOK_INVALID_CONFIG")
	_, err = webhook.NewService(v, &mockEvents{}, nil)
	errutil.AssertErrorCode(t, err, "WEBHOOK_INVALID_CONFIG")
}

func TestLogDispatcher(t *testing.T) {
	var buf bytes.Buffer
	d := webhook.NewLogDispatcher(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, d.Dispatch(context.Background(), webhook.Event{Provider: "razorpay", ID: "evt_1", Payload: []byte("{}")}))
	assert.Contains(t, buf.String(), `"event_id":"evt_1"`)
}
