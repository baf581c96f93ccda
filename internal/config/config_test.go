// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Imperium Contributors

package config_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cnnetwork/imperium/internal/config"
	"github.com/cnnetwork/imperium/pkg/errutil"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "imperium.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: postgres://db.internal/imperium
  max_conns: 25
log:
  format: text
session:
  reap_interval: 30s
testing: true
`)
	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "postgres://db.internal/imperium", cfg.Database.URL)
	assert.Equal(t, int32(25), cfg.Database.MaxConns)
	assert.Equal(t, config.Default().Database.ConnectRetries, cfg.Database.ConnectRetries)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 30*time.Second, cfg.Session.ReapInterval)
	assert.True(t, cfg.Testing)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
metrics:
  addr: 0.0.0.0:9100
`)
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--log-level=warn", "--testing"}))

	cfg, err := config.Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Testing)
	// Unset flags keep the file value rather than their zero default.
	assert.Equal(t, "0.0.0.0:9100", cfg.Metrics.Addr)
	assert.Equal(t, config.Default().Database.URL, cfg.Database.URL)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "unknown key", body: "databse:\n  url: x\n", code: "CONFIG_INVALID"},
		{name: "wrong type", body: "database:\n  max_conns: many\n", code: "CONFIG_INVALID"},
		{name: "bad format", body: "log:\n  format: xml\n", code: "CONFIG_INVALID"},
		{name: "negative concurrency", body: "hash:\n  concurrency: -1\n", code: "CONFIG_INVALID"},
		{name: "zero reap interval", body: "session:\n  reap_interval: 0s\n", code: "CONFIG_INVALID"},
		{name: "malformed yaml", body: "database: [\n", code: "CONFIG_INVALID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body), nil)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
		errutil.AssertErrorCode(t, err, "CONFIG_LOAD_FAILED")
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{name: "empty url", mutate: func(c *config.Config) { c.Database.URL = " " }, field: "database.url"},
		{name: "negative max conns", mutate: func(c *config.Config) { c.Database.MaxConns = -1 }, field: "database.max_conns"},
		{name: "bad level", mutate: func(c *config.Config) { c.Log.Level = "loud" }, field: "log.level"},
		{name: "negative reap interval", mutate: func(c *config.Config) { c.Session.ReapInterval = -time.Second }, field: "session.reap_interval"},
	}

	require.NoError(t, config.Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
			errutil.AssertErrorContext(t, err, "field", tt.field)
		})
	}
}

func TestGenerateSchema(t *testing.T) {
	data, err := config.GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, config.SchemaID, schema["$id"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"database", "log", "metrics", "hash", "session", "testing"} {
		assert.Contains(t, props, key)
	}
}

func TestValidateYAML(t *testing.T) {
	assert.NoError(t, config.ValidateYAML(nil))
	assert.NoError(t, config.ValidateYAML([]byte("log:\n  level: debug\n")))
	errutil.AssertErrorCode(t, config.ValidateYAML([]byte("log:\n  level: loud\n")), "CONFIG_INVALID")
}
