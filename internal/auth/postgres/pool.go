// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

// Package postgres implements the auth and webhook repositories on pgx.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// poolIface is the subset of *pgxpool.Pool the repositories use. pgxmock
// pools satisfy it too.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// uniqueViolation returns the violated constraint name when err is a
// unique-key violation.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

func parseID(s, field string) (ulid.ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ulid.ULID{}, oops.Code("ROW_DECODE_FAILED").With("field", field).With("value", s).Wrap(err)
	}
	return id, nil
}

func parseOptionalID(s *string, field string) (*ulid.ULID, error) {
	if s == nil {
		return nil, nil
	}
	id, err := parseID(*s, field)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalString(id *ulid.ULID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// nullIfEmpty maps "" to SQL NULL.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
