// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package auth

import (
	"time"
)

// Lockout defaults.
const (
	// LockoutThreshold is the number of consecutive failures that locks an account.
	LockoutThreshold = 5

	// LockoutDuration is how long a locked account stays locked.
	LockoutDuration = 15 * time.Minute

	// MaxProgressiveDelay caps the per-attempt delay before lockout.
	MaxProgressiveDelay = 16 * time.Second
)

// LockoutPolicy decides progressive delays and lockouts from a failure count.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy returns the 5 failures / 15 minutes policy.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: LockoutThreshold, Duration: LockoutDuration}
}

// LockoutStatus is the result of evaluating a user's failure state.
type LockoutStatus struct {
	// Delay is how long a client should wait before the next attempt.
	Delay time.Duration

	Locked bool

	// Throttled means the last failure was less than Delay ago.
	Throttled bool

	// RetryAfter is the time until the lockout or throttle expires.
	RetryAfter time.Duration
}

// Delay returns 2^(failures-1) seconds for failures below the threshold,
// capped at MaxProgressiveDelay.
func (p LockoutPolicy) Delay(failures int) time.Duration {
	if failures <= 0 || failures >= p.Threshold {
		return 0
	}
	if failures > 5 {
		return MaxProgressiveDelay
	}
	return min(time.Duration(1<<(failures-1))*time.Second, MaxProgressiveDelay)
}

// LockoutUntil returns the lockout expiry for failures, or nil below the threshold.
func (p LockoutPolicy) LockoutUntil(failures int, now time.Time) *time.Time {
	if failures < p.Threshold {
		return nil
	}
	until := now.Add(p.Duration)
	return &until
}

// Check evaluates the failure state at now. Attempts inside Delay of the
// last failure are throttled.
func (p LockoutPolicy) Check(failures int, lockedUntil, lastFailedAt *time.Time, now time.Time) LockoutStatus {
	if lockedUntil != nil {
		if lockedUntil.After(now) {
			return LockoutStatus{Locked: true, RetryAfter: lockedUntil.Sub(now)}
		}
		// A lapsed lockout starts a new window.
		return LockoutStatus{}
	}
	st := LockoutStatus{Delay: p.Delay(failures)}
	if lastFailedAt != nil {
		if wait := lastFailedAt.Add(st.Delay).Sub(now); wait > 0 {
			st.Throttled = true
			st.RetryAfter = wait
		}
	}
	return st
}
