// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

// Package notify delivers one-time passcodes and reset links over SMS or email.
package notify

import (
	"context"
	"log/slog"
	"strings"
)

// Channel is a delivery medium.
type Channel string

// Supported channels.
const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Message is a single outbound notification.
type Message struct {
	Channel Channel `json:"channel"`
	To      string  `json:"to"`
	Subject string  `json:"subject,omitempty"`
	Body    string  `json:"body"`
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of delivering them. Bodies
// are masked so passcodes do not reach log storage.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender returns a LogSender; a nil logger uses slog.Default().
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the destination and a masked body.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "notification queued",
		"channel", string(msg.Channel),
		"to", MaskDestination(msg.To),
		"subject", msg.Subject,
		"body", MaskDigits(msg.Body))
	return nil
}

// MaskDigits replaces every run of four or more digits with asterisks.
func MaskDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	run := 0
	flush := func(start int) {
		if run >= 4 {
			b.WriteString(strings.Repeat("*", run))
		} else {
			b.WriteString(s[start : start+run])
		}
		run = 0
	}
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			run++
			continue
		}
		flush(i - run)
		b.WriteByte(s[i])
	}
	flush(len(s) - run)
	return b.String()
}

// MaskDestination keeps the last four characters of a phone number or the
// first character and domain of an email address.
func MaskDestination(to string) string {
	if at := strings.LastIndex(to, "@"); at > 0 {
		return to[:1] + "***" + to[at:]
	}
	if len(to) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(to)-4) + to[len(to)-4:]
}
