// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/manas360/authcore/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the manas360 CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manas360",
		Short: "MANAS360 authentication service",
		Long: `manas360 runs the MANAS360 authentication API: password and OTP login,
admin TOTP/HOTP multi-factor, rotating refresh sessions and payment webhooks.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (YAML)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewAdminCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// loadConfig loads the validated configuration with fs as the flag layer.
func loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	return config.Load(config.ResolvePath(configFile), fs)
}
