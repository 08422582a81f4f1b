// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

// Package config loads sanabi configuration from a YAML file overlaid by
// command-line flags.
package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/sanabi/sanabi/internal/logging"
	"github.com/sanabi/sanabi/internal/runlevel"
	"github.com/sanabi/sanabi/internal/xdg"
)

// Default host targets.
const (
	DefaultModLoaderType     = "Robust.Shared.ContentPack.ModLoader"
	DefaultModLoaderMethod   = "TryLoadModules"
	DefaultEnumerationType   = "System.AppDomain"
	DefaultEnumerationMethod = "GetAssemblies"
	DefaultLogFormat         = "json"
	DefaultLogLevel          = "info"
)

// Target names a host type and a method (or method glob) on it.
type Target struct {
	Type   string `koanf:"type" yaml:"type" jsonschema:"description=qualified host type name"`
	Method string `koanf:"method" yaml:"method" jsonschema:"description=method name or gobwas/glob pattern"`
}

// Targets lists the host methods patched by the built-in entries.
type Targets struct {
	ModLoader   Target   `koanf:"mod-loader" yaml:"mod-loader"`
	Enumeration Target   `koanf:"enumeration" yaml:"enumeration"`
	Permissions []Target `koanf:"permissions" yaml:"permissions"`
}

// Config is the effective sanabi configuration.
type Config struct {
	PatchingEnabled  bool     `koanf:"patching-enabled" yaml:"patching-enabled"`
	PatchingLevel    bool     `koanf:"patching-level" yaml:"patching-level"`
	HwidPatchEnabled bool     `koanf:"hwid-patch-enabled" yaml:"hwid-patch-enabled"`
	LoadInternalMods bool     `koanf:"load-internal-mods" yaml:"load-internal-mods"`
	LoadExternalMods bool     `koanf:"load-external-mods" yaml:"load-external-mods"`
	ModsDir          string   `koanf:"mods-dir" yaml:"mods-dir"`
	HostVersion      string   `koanf:"host-version" yaml:"host-version"`
	LogFormat        string   `koanf:"log-format" yaml:"log-format" jsonschema:"enum=json,enum=text"`
	LogLevel         string   `koanf:"log-level" yaml:"log-level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	MetricsAddr      string   `koanf:"metrics-addr" yaml:"metrics-addr"`
	HidePatterns     []string `koanf:"hide-patterns" yaml:"hide-patterns"`
	Targets          Targets  `koanf:"targets" yaml:"targets"`
}

// DefaultPermissionTargets returns the permission checks forced to allow.
func DefaultPermissionTargets() []Target {
	return []Target{
		{Type: "Robust.Client.Console.ClientConsoleHost", Method: "CanExecute"},
		{Type: "Content.Shared.Administration.AdminData", Method: "HasFlag"},
		{Type: "Content.Client.Administration.Managers.ClientAdminManager", Method: "{IsActive,Can*}"},
		{Type: "Robust.Client.Console.ClientConGroupController", Method: "Can*"},
	}
}

// Default returns the configuration used when no file or flag sets a key.
func Default() Config {
	cfg := Config{
		HwidPatchEnabled: true,
		ModsDir:          xdg.ModsDir(),
		LogFormat:        DefaultLogFormat,
		LogLevel:         DefaultLogLevel,
	}
	cfg.applyTargetDefaults()
	return cfg
}

// RegisterFlags adds flags mirroring the top-level configuration keys.
// Flag defaults fill keys the file leaves unset.
func RegisterFlags(flags *pflag.FlagSet) {
	d := Default()
	flags.Bool("patching-enabled", d.PatchingEnabled, "enable run-level patching")
	flags.Bool("patching-level", d.PatchingLevel, "also run content-phase patches")
	flags.Bool("hwid-patch-enabled", d.HwidPatchEnabled, "enable the hardware id patch")
	flags.Bool("load-internal-mods", d.LoadInternalMods, "apply built-in content patches")
	flags.Bool("load-external-mods", d.LoadExternalMods, "load plugin modules from the mods directory")
	flags.String("mods-dir", d.ModsDir, "directory scanned for plugin modules")
	flags.String("host-version", d.HostVersion, "host version checked against plugin constraints (empty = no checks)")
	flags.String("log-format", d.LogFormat, "log format (json or text)")
	flags.String("log-level", d.LogLevel, "minimum log level (debug, info, warn, error)")
	flags.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	flags.StringSlice("hide-patterns", d.HidePatterns, "glob patterns of modules hidden at engine load")
}

// Load reads path (if it exists) and overlays flags.
// An empty path means the XDG config file. A missing file is not an error.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = xdg.ConfigFile()
	}

	k := koanf.New(".")
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateSchema(k.Raw()); err != nil {
			return Config{}, oops.With("path", path).Wrap(err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) || explicit {
		return Config{}, oops.Code("CONFIG_UNREADABLE").With("path", path).Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	// Targets merge per field below; a file list replaces the default list.
	cfg.Targets = Targets{}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_DECODE_FAILED").With("path", path).Wrap(err)
	}
	cfg.applyTargetDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyTargetDefaults() {
	if c.Targets.ModLoader.Type == "" {
		c.Targets.ModLoader.Type = DefaultModLoaderType
	}
	if c.Targets.ModLoader.Method == "" {
		c.Targets.ModLoader.Method = DefaultModLoaderMethod
	}
	if c.Targets.Enumeration.Type == "" {
		c.Targets.Enumeration.Type = DefaultEnumerationType
	}
	if c.Targets.Enumeration.Method == "" {
		c.Targets.Enumeration.Method = DefaultEnumerationMethod
	}
	if c.Targets.Permissions == nil {
		c.Targets.Permissions = DefaultPermissionTargets()
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("INVALID_CONFIG").
			With("key", "log-format").
			Errorf("log-format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return oops.Code("INVALID_CONFIG").
			With("key", "log-level").
			Errorf("log-level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if _, err := c.HostSemver(); err != nil {
		return err
	}
	for i, t := range c.Targets.Permissions {
		if t.Type == "" || t.Method == "" {
			return oops.Code("INVALID_CONFIG").
				With("key", "targets.permissions").
				With("index", i).
				Errorf("permission target needs both type and method")
		}
	}
	return nil
}

// HostSemver parses HostVersion. It returns nil when no version is set.
func (c *Config) HostSemver() (*semver.Version, error) {
	if c.HostVersion == "" {
		return nil, nil
	}
	v, err := semver.NewVersion(c.HostVersion)
	if err != nil {
		return nil, oops.Code("INVALID_CONFIG").
			With("key", "host-version").
			With("value", c.HostVersion).
			Wrap(err)
	}
	return v, nil
}

// RunLevel maps the patching switches to the phases allowed to run.
func (c *Config) RunLevel() runlevel.Level {
	switch {
	case !c.PatchingEnabled:
		return runlevel.None
	case !c.PatchingLevel:
		return runlevel.Engine
	default:
		return runlevel.Full
	}
}
