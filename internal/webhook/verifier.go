// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"
)

// DefaultTolerance bounds the age of timestamped signatures.
const DefaultTolerance = 5 * time.Minute

// Verifier checks HMAC-SHA256 signatures.
//
// Accepted header forms:
//
//	<hex>                  HMAC(body)
//	sha256=<hex>           HMAC(body)
//	t=<unix>,v1=<hex>      HMAC(t + "." + body), t within tolerance
//
// Every configured secret is tried so secrets can be rotated without
// downtime.
type Verifier struct {
	secrets          [][]byte
	tolerance        time.Duration
	requireTimestamp bool
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithTolerance sets the accepted clock difference for timestamped signatures.
func WithTolerance(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.tolerance = d
		}
	}
}

// RequireTimestamp rejects signatures without a t= component.
func RequireTimestamp() VerifierOption {
	return func(v *Verifier) { v.requireTimestamp = true }
}

// NewVerifier returns a Verifier for the given secrets.
func NewVerifier(secrets []string, opts ...VerifierOption) (*Verifier, error) {
	v := &Verifier{tolerance: DefaultTolerance}
	for _, s := range secrets {
		if s == "" {
			continue
		}
		v.secrets = append(v.secrets, []byte(s))
	}
	if len(v.secrets) == 0 {
		return nil, oops.Code("WEBHOOK_INVALID_CONFIG").Errorf("at least one webhook secret is required")
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Sign returns the hex signature of payload under secret.
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignTimestamped returns a t=,v1= header value for body at ts.
func SignTimestamped(secret, body []byte, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + t + ",v1=" + Sign(secret, timestampedPayload(t, body))
}

func timestampedPayload(t string, body []byte) []byte {
	payload := make([]byte, 0, len(t)+1+len(body))
	payload = append(payload, t...)
	payload = append(payload, '.')
	return append(payload, body...)
}

// Verify checks header against body at time now.
func (v *Verifier) Verify(header string, body []byte, now time.Time) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return invalidSignature("missing signature")
	}

	if strings.Contains(header, "t=") {
		return v.verifyTimestamped(header, body, now)
	}
	if v.requireTimestamp {
		return invalidSignature("timestamp required")
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(header, "sha256="))
	if err != nil {
		return invalidSignature("signature is not hex")
	}
	if !v.matches(sig, body) {
		return invalidSignature("signature mismatch")
	}
	return nil
}

func (v *Verifier) verifyTimestamped(header string, body []byte, now time.Time) error {
	var (
		ts         string
		candidates [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			if sig, err := hex.DecodeString(value); err == nil {
				candidates = append(candidates, sig)
			}
		}
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return invalidSignature("malformed timestamp")
	}
	if len(candidates) == 0 {
		return invalidSignature("missing v1 signature")
	}

	signedAt := time.Unix(unix, 0)
	if age := now.Sub(signedAt); age > v.tolerance || -age > v.tolerance {
		return oops.Code("WEBHOOK_TIMESTAMP_STALE").
			With("signed_at", signedAt.UTC().Format(time.RFC3339)).
			With("tolerance", v.tolerance.String()).
			Errorf("webhook timestamp outside tolerance")
	}

	payload := timestampedPayload(ts, body)
	for _, sig := range candidates {
		if v.matches(sig, payload) {
			return nil
		}
	}
	return invalidSignature("signature mismatch")
}

func (v *Verifier) matches(sig, payload []byte) bool {
	for _, secret := range v.secrets {
		mac := hmac.New(sha256.New, secret)
		mac.Write(payload)
		if hmac.Equal(sig, mac.Sum(nil)) {
			return true
		}
	}
	return false
}

func invalidSignature(reason string) error {
	return oops.Code("WEBHOOK_SIGNATURE_INVALID").With("reason", reason).Errorf("invalid webhook signature")
}
