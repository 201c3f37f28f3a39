// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/manas360/authcore/internal/config"
	"github.com/manas360/authcore/internal/store"
)

// migrator is the part of *store.Migrator the migrate command drives.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// newMigrator is swapped out by tests.
var newMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

// NewMigrateCmd creates the migrate command and its subcommands.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Long: `Apply, roll back or inspect the embedded PostgreSQL migrations.
The database URL comes from --config, MANAS360_DATABASE__URL or DATABASE_URL.`,
	}
	cmd.AddCommand(newMigrateUpCmd(), newMigrateDownCmd(), newMigrateStatusCmd(), newMigrateForceCmd())
	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				cmd.Println("Migrations applied")
				return printStatus(cmd, m)
			})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration (or all with --all)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m migrator) error {
				var err error
				if all {
					err = m.Down()
				} else {
					err = m.Steps(-1)
				}
				if err != nil {
					return err
				}
				cmd.Println("Rollback complete")
				return printStatus(cmd, m)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "roll back every migration")
	return cmd
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current schema version and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(func(m migrator) error {
				return printStatus(cmd, m)
			})
		},
	}
}

func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations (clears dirty state)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(func(m migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				cmd.Printf("Schema version forced to %d\n", v)
				return nil
			})
		},
	}
}

// parseForceVersion accepts a non-negative integer or -1 (no version).
func parseForceVersion(s string) (int, error) {
	s = strings.TrimSpace(s)
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil || fmt.Sprint(v) != s {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer")
	}
	if v < -1 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be -1 or greater")
	}
	return v, nil
}

func withMigrator(fn func(migrator) error) error {
	cfg, err := config.LoadUnvalidated(config.ResolvePath(configFile), nil)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required (or set %s)", config.DatabaseURLEnv)
	}
	m, err := newMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return fn(m)
}

func printStatus(cmd *cobra.Command, m migrator) error {
	st, err := m.Status()
	if err != nil {
		return err
	}
	if st.Version == 0 {
		cmd.Println("Schema version: none")
	} else {
		cmd.Printf("Schema version: %d (%s)\n", st.Version, st.Name)
	}
	if st.Dirty {
		cmd.Println("WARNING: schema is dirty; fix the failed migration and run 'migrate force VERSION'")
	}
	if len(st.Pending) == 0 {
		cmd.Println("Pending: none")
		return nil
	}
	pending := make([]string, 0, len(st.Pending))
	for _, v := range st.Pending {
		pending = append(pending, fmt.Sprint(v))
	}
	cmd.Printf("Pending: %s\n", strings.Join(pending, ", "))
	return nil
}
