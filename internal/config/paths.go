// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package config

import (
	"os"
	"path/filepath"
)

const appName = "manas360"

// DefaultFileName is looked up in Dir when no --config is given.
const DefaultFileName = "config.yaml"

// Dir returns the XDG config directory for manas360.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func Dir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ResolvePath returns explicit when set. Otherwise it returns the default
// file in Dir if one exists, or "" to load without a file layer.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	p := filepath.Join(Dir(), DefaultFileName)
	if st, err := os.Stat(p); err == nil && st.Mode().IsRegular() {
		return p
	}
	return ""
}
