// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/manas360/authcore/internal/notify"
)

// MockSender is a testify mock of notify.Sender that also records sent
// messages so tests can read the delivered code or link.
type MockSender struct {
	mock.Mock

	mu   sync.Mutex
	sent []notify.Message
}

// NewMockSender returns a mock whose expectations are asserted on test cleanup.
func NewMockSender(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSender {
	m := &MockSender{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

var _ notify.Sender = (*MockSender)(nil)

func (m *MockSender) Send(ctx context.Context, msg notify.Message) error {
	args := m.Called(ctx, msg)
	if err := args.Error(0); err != nil {
		return err
	}
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

// Sent returns the successfully sent messages in order.
func (m *MockSender) Sent() []notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notify.Message, len(m.sent))
	copy(out, m.sent)
	return out
}

// Last returns the most recent sent message.
func (m *MockSender) Last() (notify.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return notify.Message{}, false
	}
	return m.sent[len(m.sent)-1], true
}
