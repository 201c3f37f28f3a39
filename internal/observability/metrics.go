// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/manas360/authcore/internal/auth"
	"github.com/manas360/authcore/internal/webhook"
)

// Metrics holds the service's Prometheus collectors. It implements
// auth.Recorder and webhook.Recorder.
type Metrics struct {
	LoginAttempts        *prometheus.CounterVec
	TokenRefreshes       *prometheus.CounterVec
	RefreshReuses        prometheus.Counter
	Lockouts             prometheus.Counter
	WebhookVerifications *prometheus.CounterVec
	OTPDeliveries        *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
	HTTPDuration         *prometheus.HistogramVec
	CleanupDeleted       *prometheus.CounterVec
}

var (
	_ auth.Recorder    = (*Metrics)(nil)
	_ webhook.Recorder = (*Metrics)(nil)
)

// NewMetrics creates and registers the MANAS360 metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manas360_auth_login_attempts_total",
				Help: "Login attempts by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		TokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manas360_auth_token_refresh_total",
				Help: "Refresh token rotations by outcome",
			},
			[]string{"outcome"},
		),
		RefreshReuses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "manas360_auth_refresh_reuse_total",
			Help: "Retired refresh tokens presented again",
		}),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "manas360_auth_lockouts_total",
			Help: "Accounts locked after repeated failures",
		}),
		WebhookVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manas360_webhook_verifications_total",
				Help: "Payment webhook verifications by outcome",
			},
			[]string{"outcome"},
		),
		OTPDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manas360_otp_deliveries_total",
				Help: "OTP deliveries by channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manas360_http_requests_total",
				Help: "HTTP API requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "manas360_http_request_duration_seconds",
				Help:    "HTTP API request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		CleanupDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "manas360_cleanup_deleted_total",
				Help: "Rows removed by the maintenance loop",
			},
			[]string{"table"},
		),
	}

	reg.MustRegister(
		m.LoginAttempts,
		m.TokenRefreshes,
		m.RefreshReuses,
		m.Lockouts,
		m.WebhookVerifications,
		m.OTPDeliveries,
		m.HTTPRequests,
		m.HTTPDuration,
		m.CleanupDeleted,
	)
	return m
}

func (m *Metrics) LoginAttempt(method, outcome string) {
	m.LoginAttempts.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) TokenRefresh(outcome string) {
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RefreshReuse() { m.RefreshReuses.Inc() }

func (m *Metrics) Lockout() { m.Lockouts.Inc() }

func (m *Metrics) OTPDelivery(channel, outcome string) {
	m.OTPDeliveries.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) WebhookVerification(outcome string) {
	m.WebhookVerifications.WithLabelValues(outcome).Inc()
}

// CleanupRemoved adds n to the per-table cleanup counter.
func (m *Metrics) CleanupRemoved(table string, n int64) {
	if n > 0 {
		m.CleanupDeleted.WithLabelValues(table).Add(float64(n))
	}
}

// ObserveRequest records one HTTP API request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
