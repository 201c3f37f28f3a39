// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package store

import (
	"embed"
	"errors"
	"io/fs"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	// Registers the pgx5:// database driver.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// Migration is one embedded schema step.
type Migration struct {
	Version uint
	Name    string // "000002_refresh_tokens"
}

// Status is the schema state reported by `manas360 migrate status`.
type Status struct {
	Version uint
	Name    string
	Dirty   bool
	Applied []uint
	Pending []uint
}

// engine is the part of *migrate.Migrate the Migrator uses.
type engine interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator runs the embedded auth schema migrations against one database.
type Migrator struct {
	eng engine
}

// NewMigrator opens databaseURL. postgres:// and postgresql:// are accepted
// and mapped to the pgx5:// scheme.
func NewMigrator(databaseURL string) (*Migrator, error) {
	src, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").Wrapf(err, "open embedded migrations")
	}
	eng, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		_ = src.Close() //nolint:errcheck // the init error is the one worth reporting
		return nil, oops.Code("MIGRATION_INIT_FAILED").Wrapf(err, "connect migrator")
	}
	return &Migrator{eng: eng}, nil
}

func migrateURL(databaseURL string) string {
	scheme, rest, ok := strings.Cut(databaseURL, "://")
	if ok && (scheme == "postgres" || scheme == "postgresql") {
		return "pgx5://" + rest
	}
	return databaseURL
}

// ignoreNoChange maps migrate.ErrNoChange to success and codes anything else.
func ignoreNoChange(code string, err error) error {
	if err == nil || errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return oops.Code(code).Wrap(err)
}

// Up applies every pending migration.
func (m *Migrator) Up() error {
	return ignoreNoChange("MIGRATION_UP_FAILED", m.eng.Up())
}

// Down reverts every migration, dropping all auth data.
func (m *Migrator) Down() error {
	return ignoreNoChange("MIGRATION_DOWN_FAILED", m.eng.Down())
}

// Steps moves n migrations forward, or back when n is negative.
func (m *Migrator) Steps(n int) error {
	err := ignoreNoChange("MIGRATION_STEPS_FAILED", m.eng.Steps(n))
	if err != nil {
		return oops.With("steps", n).Wrap(err)
	}
	return nil
}

// Version reports the applied version. A fresh database is version 0.
func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.eng.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, false, nil
	case err != nil:
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return v, dirty, nil
}

// Force stamps version as applied and clears the dirty flag without running
// any SQL. -1 marks the database as having no migrations.
func (m *Migrator) Force(version int) error {
	if version < -1 {
		return oops.Code("INVALID_VERSION").With("version", version).Errorf("version must be -1 or greater")
	}
	if err := m.eng.Force(version); err != nil {
		return oops.Code("MIGRATION_FORCE_FAILED").With("version", version).Wrap(err)
	}
	return nil
}

// Close releases both the source and the database connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.eng.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		return oops.Code("MIGRATION_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

// PendingMigrations lists the versions Up would apply, ascending.
func (m *Migrator) PendingMigrations() ([]uint, error) {
	st, err := m.Status()
	if err != nil {
		return nil, err
	}
	return st.Pending, nil
}

// Status splits the embedded catalog around the applied version.
func (m *Migrator) Status() (*Status, error) {
	version, dirty, err := m.Version()
	if err != nil {
		return nil, err
	}
	all, err := Catalog()
	if err != nil {
		return nil, err
	}
	st := &Status{Version: version, Dirty: dirty}
	for _, mig := range all {
		if mig.Version > version {
			st.Pending = append(st.Pending, mig.Version)
			continue
		}
		st.Applied = append(st.Applied, mig.Version)
		if mig.Version == version {
			st.Name = mig.Name
		}
	}
	return st, nil
}

var catalog = sync.OnceValues(func() ([]Migration, error) {
	return readCatalog(migrationsFS)
})

// Catalog returns the embedded migrations ordered by version.
func Catalog() ([]Migration, error) {
	all, err := catalog()
	if err != nil {
		return nil, err
	}
	return slices.Clone(all), nil
}

// readCatalog collects the *.up.sql files under migrations/. A file whose
// name does not start with a numeric version is an error.
func readCatalog(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, oops.Code("MIGRATION_LIST_FAILED").Wrap(err)
	}
	var out []Migration
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), ".up.sql")
		if !ok {
			continue
		}
		digits, _, _ := strings.Cut(base, "_")
		v, err := strconv.ParseUint(digits, 10, 64)
		if err != nil {
			return nil, oops.Code("MIGRATION_BAD_NAME").With("file", e.Name()).Wrap(err)
		}
		out = append(out, Migration{Version: uint(v), Name: base})
	}
	slices.SortFunc(out, func(a, b Migration) int {
		switch {
		case a.Version < b.Version:
			return -1
		case a.Version > b.Version:
			return 1
		}
		return 0
	})
	return out, nil
}
