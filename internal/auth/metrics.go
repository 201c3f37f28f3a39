// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth

// Login methods and outcomes reported to a Recorder.
const (
	MethodPassword = "password"
	MethodOTP      = "otp"
	MethodMFA      = "mfa"

	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid"
	OutcomeLocked      = "locked"
	OutcomeMFARequired = "mfa_required"
	OutcomeReuse       = "reuse_detected"
	OutcomeExpired     = "expired"
	OutcomeError       = "error"
)

// Recorder receives auth events for metrics. The observability package
// provides the Prometheus implementation.
type Recorder interface {
	LoginAttempt(method, outcome string)
	TokenRefresh(outcome string)
	RefreshReuse()
	Lockout()
	OTPDelivery(channel, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) LoginAttempt(string, string) {}
func (nopRecorder) TokenRefresh(string)         {}
func (nopRecorder) RefreshReuse()               {}
func (nopRecorder) Lockout()                    {}
func (nopRecorder) OTPDelivery(string, string)  {}
