// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

// Package authz gates routes by role with a casbin RBAC model.
package authz

import (
	_ "embed"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/samber/oops"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Enforcer answers role/path/method questions.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds an enforcer from the embedded model and policy.
func NewEnforcer() (*Enforcer, error) {
	return NewEnforcerFromPolicy(embeddedPolicy)
}

// NewEnforcerFromFile loads the policy CSV at path instead of the embedded one.
func NewEnforcerFromFile(path string) (*Enforcer, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, oops.Code("AUTHZ_POLICY_READ_FAILED").With("path", path).Wrap(err)
	}
	return NewEnforcerFromPolicy(string(data))
}

// NewEnforcerFromPolicy builds an enforcer from policy CSV text.
func NewEnforcerFromPolicy(policy string) (*Enforcer, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, oops.Code("AUTHZ_MODEL_INVALID").Wrap(err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, oops.Code("AUTHZ_INIT_FAILED").Wrap(err)
	}
	if err := loadPolicy(e, policy); err != nil {
		return nil, err
	}
	return &Enforcer{enforcer: e}, nil
}

func loadPolicy(e *casbin.SyncedEnforcer, policy string) error {
	for n, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		var err error
		switch {
		case parts[0] == "p" && len(parts) == 4:
			_, err = e.AddPolicy(parts[1], parts[2], parts[3])
		case parts[0] == "g" && len(parts) == 3:
			_, err = e.AddGroupingPolicy(parts[1], parts[2])
		default:
			return oops.Code("AUTHZ_POLICY_INVALID").
				With("line", n+1).
				Errorf("malformed policy line %q", line)
		}
		if err != nil {
			return oops.Code("AUTHZ_POLICY_INVALID").With("line", n+1).Wrap(err)
		}
	}
	return nil
}

// Authorize reports whether role may perform method on path.
func (e *Enforcer) Authorize(role, path, method string) (bool, error) {
	ok, err := e.enforcer.Enforce(role, path, method)
	if err != nil {
		return false, oops.Code("AUTHZ_ENFORCE_FAILED").
			With("role", role).
			With("path", path).
			Wrap(err)
	}
	return ok, nil
}
