// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanabi/sanabi/internal/runlevel"
	"github.com/sanabi/sanabi/pkg/errutil"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", "/data")

	cfg, err := Load("", newFlags(t))
	require.NoError(t, err)

	assert.False(t, cfg.PatchingEnabled)
	assert.False(t, cfg.PatchingLevel)
	assert.True(t, cfg.HwidPatchEnabled)
	assert.False(t, cfg.LoadInternalMods)
	assert.False(t, cfg.LoadExternalMods)
	assert.Equal(t, "/data/sanabi/mods", cfg.ModsDir)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.HostVersion)
	assert.Equal(t, Target{Type: DefaultModLoaderType, Method: DefaultModLoaderMethod}, cfg.Targets.ModLoader)
	assert.Equal(t, Target{Type: DefaultEnumerationType, Method: DefaultEnumerationMethod}, cfg.Targets.Enumeration)
	assert.Equal(t, DefaultPermissionTargets(), cfg.Targets.Permissions)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
patching-enabled: true
patching-level: true
load-external-mods: true
mods-dir: /srv/mods
host-version: 1.4.0
hide-patterns:
  - "Sanabi.*"
targets:
  mod-loader:
    type: Host.ModLoader
  permissions:
    - type: Host.Console
      method: "Can*"
`)

	cfg, err := Load(path, newFlags(t))
	require.NoError(t, err)

	assert.True(t, cfg.PatchingEnabled)
	assert.True(t, cfg.LoadExternalMods)
	assert.Equal(t, "/srv/mods", cfg.ModsDir)
	assert.Equal(t, []string{"Sanabi.*"}, cfg.HidePatterns)
	assert.Equal(t, Target{Type: "Host.ModLoader", Method: DefaultModLoaderMethod}, cfg.Targets.ModLoader)
	assert.Equal(t, []Target{{Type: "Host.Console", Method: "Can*"}}, cfg.Targets.Permissions)
	assert.Equal(t, runlevel.Full, cfg.RunLevel())

	v, err := cfg.HostSemver()
	require.NoError(t, err)
	assert.Equal(t, "1.4.0", v.String())
}

func TestLoad_ChangedFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, "patching-enabled: false\nmods-dir: /from/file\n")

	cfg, err := Load(path, newFlags(t, "--patching-enabled", "--mods-dir", "/from/flag"))
	require.NoError(t, err)

	assert.True(t, cfg.PatchingEnabled)
	assert.Equal(t, "/from/flag", cfg.ModsDir)
}

func TestLoad_UnchangedFlagsDoNotOverrideFile(t *testing.T) {
	path := writeConfig(t, "hwid-patch-enabled: false\nlog-format: text\n")

	cfg, err := Load(path, newFlags(t))
	require.NoError(t, err)

	assert.False(t, cfg.HwidPatchEnabled)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_UNREADABLE")
}

func TestLoad_MalformedFileFails(t *testing.T) {
	_, err := Load(writeConfig(t, "patching-enabled: [unclosed"), nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_PARSE_FAILED")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		key    string
	}{
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log-format"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log-level"},
		{"bad host version", func(c *Config) { c.HostVersion = "not-a-version" }, "host-version"},
		{"incomplete permission target", func(c *Config) { c.Targets.Permissions = []Target{{Type: "X"}} }, "targets.permissions"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, "INVALID_CONFIG")
			errutil.AssertErrorContext(t, err, "key", tt.key)
		})
	}

	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestRunLevel(t *testing.T) {
	tests := []struct {
		enabled, level bool
		want           runlevel.Level
	}{
		{false, false, runlevel.None},
		{false, true, runlevel.None},
		{true, false, runlevel.Engine},
		{true, true, runlevel.Full},
	}
	for _, tt := range tests {
		cfg := Config{PatchingEnabled: tt.enabled, PatchingLevel: tt.level}
		assert.Equal(t, tt.want, cfg.RunLevel(), "enabled=%v level=%v", tt.enabled, tt.level)
	}
}

func TestHostSemver_EmptyMeansNoChecks(t *testing.T) {
	cfg := Default()
	v, err := cfg.HostSemver()
	require.NoError(t, err)
	assert.Nil(t, v)
}
