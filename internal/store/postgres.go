// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

// Package store owns the PostgreSQL connection pool and the schema migrations
// for the auth service.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// pinger is the part of *pgxpool.Pool that Connect waits on.
type pinger interface {
	Ping(ctx context.Context) error
}

// ConnectOptions tunes the startup ping loop.
type ConnectOptions struct {
	// Attempts is the number of retries after the first ping.
	Attempts uint64
	// Backoff is the initial delay; it doubles up to maxBackoff.
	Backoff time.Duration
	Logger  *slog.Logger
}

const maxBackoff = 10 * time.Second

// Connect opens a pgx pool for databaseURL and pings it with exponential
// backoff until the database answers or the attempts run out.
func Connect(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	if err := waitForPing(ctx, pool, opts); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitForPing(ctx context.Context, p pinger, opts ConnectOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := opts.Backoff
	if base <= 0 {
		base = 500 * time.Millisecond
	}

	backoff := retry.WithMaxRetries(opts.Attempts, retry.WithCappedDuration(maxBackoff, retry.NewExponential(base)))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := p.Ping(ctx); err != nil {
			logger.Warn("database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}
	return nil
}
