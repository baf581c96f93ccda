// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package config

import (
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Flag names bound by BindFlags, mapped to configuration keys.
var flagKeys = map[string]string{
	"database-url":     "database.url",
	"log-format":       "log.format",
	"log-level":        "log.level",
	"metrics-addr":     "metrics.addr",
	"hash-concurrency": "hash.concurrency",
	"testing":          "testing",
}

// BindFlags registers the configuration flags on fs. Their defaults are
// the zero values: only flags the user sets override the file.
func BindFlags(fs *pflag.FlagSet) {
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("log-format", "", "log format (json, text)")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.String("metrics-addr", "", "observability listen address, empty keeps the configured one")
	fs.Int64("hash-concurrency", 0, "bound on concurrent password hashes (0 = GOMAXPROCS)")
	fs.Bool("testing", false, "seed the test account")
}

// Load builds the configuration. path may be empty; a missing file at a
// non-empty path is an error. fs may be nil.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	def := Default()
	defaults := map[string]any{
		"database.url":             def.Database.URL,
		"database.max_conns":       def.Database.MaxConns,
		"database.connect_retries": def.Database.ConnectRetries,
		"log.format":               def.Log.Format,
		"log.level":                def.Log.Level,
		"metrics.addr":             def.Metrics.Addr,
		"hash.concurrency":         def.Hash.Concurrency,
		"session.reap_interval":    def.Session.ReapInterval.String(),
		"testing":                  def.Testing,
	}
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
		if err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateYAML(data); err != nil {
			return Config{}, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if fs != nil {
		provider := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(fs, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
