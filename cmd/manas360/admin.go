// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/manas360/authcore/internal/auth"
	"github.com/manas360/authcore/internal/config"
	"github.com/manas360/authcore/internal/logging"
	"github.com/manas360/authcore/internal/observability"
	"github.com/manas360/authcore/internal/store"
)

// AdminPasswordEnv supplies the admin password without a prompt.
const AdminPasswordEnv = "MANAS360_ADMIN_PASSWORD"

// adminCreator is the part of *auth.Service the admin command uses.
type adminCreator interface {
	CreateAdmin(ctx context.Context, email, phone, name, password string, method auth.MFAMethod) (*auth.User, *auth.Enrollment, error)
}

// AdminDeps contains injectable dependencies for the admin command.
type AdminDeps struct {
	// Open builds the auth service; the returned func releases it.
	// Default: connects to the configured database.
	Open func(ctx context.Context, cfg *config.Config) (adminCreator, func(), error)

	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

type adminCreateOptions struct {
	email  string
	phone  string
	name   string
	method string
}

// NewAdminCmd creates the admin command.
func NewAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administer accounts",
	}
	cmd.AddCommand(newAdminCreateCmd(nil))
	return cmd
}

func newAdminCreateCmd(deps *AdminDeps) *cobra.Command {
	opts := &adminCreateOptions{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an admin account with MFA enrollment",
		Long: `Create an admin account. The password is read from ` + AdminPasswordEnv + `
or, when unset, from the first line of standard input. The command prints the
MFA provisioning URL; the first login completes the enrollment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAdminCreate(cmd, opts, deps)
		},
	}
	cmd.Flags().StringVar(&opts.email, "email", "", "admin email (required)")
	cmd.Flags().StringVar(&opts.phone, "phone", "", "admin phone number")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&opts.method, "method", string(auth.MFATOTP), "MFA method (totp or hotp)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func runAdminCreate(cmd *cobra.Command, opts *adminCreateOptions, deps *AdminDeps) error {
	if deps == nil {
		deps = &AdminDeps{}
	}
	if deps.Open == nil {
		deps.Open = openAuthService
	}
	if deps.Getenv == nil {
		deps.Getenv = os.Getenv
	}

	method := auth.MFAMethod(strings.ToLower(opts.method))
	if method != auth.MFATOTP && method != auth.MFAHOTP {
		return oops.Code("MFA_INVALID_METHOD").With("method", opts.method).Errorf("method must be totp or hotp")
	}
	password, err := readPassword(deps.Getenv, cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	svc, release, err := deps.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	user, enr, err := svc.CreateAdmin(ctx, opts.email, opts.phone, opts.name, password, method)
	if err != nil {
		return err
	}
	cmd.Printf("Created admin %s (%s)\n", user.ID, opts.email)
	cmd.Printf("MFA method: %s\n", enr.Method)
	cmd.Printf("Secret:     %s\n", enr.Secret)
	cmd.Printf("Enroll URL: %s\n", enr.URL)
	cmd.Println("Add the URL to an authenticator app; the first login confirms enrollment.")
	return nil
}

// readPassword prefers the environment, then the first line of in.
func readPassword(getenv func(string) string, in io.Reader) (string, error) {
	if pw := getenv(AdminPasswordEnv); pw != "" {
		return pw, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("ADMIN_PASSWORD_READ_FAILED").Wrap(err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", oops.Code("AUTH_EMPTY_PASSWORD").Errorf("set %s or pipe the password on stdin", AdminPasswordEnv)
	}
	return pw, nil
}

func openAuthService(ctx context.Context, cfg *config.Config) (adminCreator, func(), error) {
	logger := logging.Setup(logging.Options{Service: "manas360", Version: version, Format: "text", Level: "warn"}, nil)
	pool, err := store.Connect(ctx, cfg.Database.URL, store.ConnectOptions{
		Attempts: cfg.Database.ConnectAttempts,
		Backoff:  cfg.Database.ConnectBackoff,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, err
	}
	a, err := buildApp(cfg, pool, observability.NewMetrics(prometheus.NewRegistry()), logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return a.auth, pool.Close, nil
}
