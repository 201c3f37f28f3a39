// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package postgres

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/manas360/authcore/internal/webhook"
)

// WebhookEventRepository implements webhook.EventRepository using PostgreSQL.
type WebhookEventRepository struct {
	pool poolIface
}

// NewWebhookEventRepository creates a new WebhookEventRepository.
func NewWebhookEventRepository(pool poolIface) *WebhookEventRepository {
	return &WebhookEventRepository{pool: pool}
}

var _ webhook.EventRepository = (*WebhookEventRepository)(nil)

// Record inserts the event once. A second delivery of the same provider
// event returns WEBHOOK_DUPLICATE wrapping webhook.ErrDuplicate.
func (r *WebhookEventRepository) Record(ctx context.Context, provider, eventID, payloadHash string) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_events (provider, event_id, payload_hash, received_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (provider, event_id) DO NOTHING
	`, provider, eventID, payloadHash)
	if err != nil {
		return oops.Code("WEBHOOK_RECORD_FAILED").
			With("provider", provider).
			With("event_id", eventID).
			Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("WEBHOOK_DUPLICATE").
			With("provider", provider).
			With("event_id", eventID).
			Wrap(webhook.ErrDuplicate)
	}
	return nil
}

// Forget deletes one recorded event.
func (r *WebhookEventRepository) Forget(ctx context.Context, provider, eventID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM webhook_events WHERE provider = $1 AND event_id = $2`, provider, eventID)
	if err != nil {
		return oops.Code("WEBHOOK_FORGET_FAILED").
			With("provider", provider).
			With("event_id", eventID).
			Wrap(err)
	}
	return nil
}

// DeleteOlderThan removes events received before cutoff.
func (r *WebhookEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM webhook_events WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, oops.Code("WEBHOOK_DELETE_FAILED").Wrap(err)
	}
	return tag.RowsAffected(), nil
}
