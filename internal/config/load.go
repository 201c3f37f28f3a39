// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MANAS360 Contributors

package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore, e.g. MANAS360_AUTH__JWT__SECRET sets auth.jwt.secret.
const EnvPrefix = "MANAS360_"

// DatabaseURLEnv is honoured as a fallback for database.url.
const DatabaseURLEnv = "DATABASE_URL"

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"addr":         "server.addr",
	"metrics-addr": "metrics.addr",
	"database-url": "database.url",
	"auto-migrate": "database.auto_migrate",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// RegisterFlags adds the flags understood by Load to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("addr", d.Server.Addr, "HTTP API listen address")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health listen address (empty = disabled)")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.Bool("auto-migrate", d.Database.AutoMigrate, "apply pending migrations on startup")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
}

// envKey converts MANAS360_AUTH__JWT__SECRET into auth.jwt.secret.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// flagKey returns a posflag callback mapping flags to configuration keys;
// unknown flags are ignored.
func flagKey(fs *pflag.FlagSet) func(f *pflag.Flag) (string, interface{}) {
	return func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return "", nil
		}
		return key, posflag.FlagVal(fs, f)
	}
}

// Load builds the configuration. path may be empty to skip the file layer and
// fs may be nil to skip the flag layer. The result is validated.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	cfg, err := LoadUnvalidated(path, fs)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadUnvalidated is Load without Validate, for commands such as migrate that
// only need part of the configuration.
func LoadUnvalidated(path string, fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "defaults").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").
				With("layer", "file").
				With("path", path).
				Wrap(err)
		}
	}

	if url := os.Getenv(DatabaseURLEnv); url != "" {
		if err := k.Set("database.url", url); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "env").Wrap(err)
	}

	if fs != nil {
		if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, flagKey(fs)), nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "flags").Wrap(err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("layer", "unmarshal").Wrap(err)
	}
	return cfg, nil
}
