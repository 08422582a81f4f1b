// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/sanabi/sanabi/internal/config"
	"github.com/sanabi/sanabi/internal/logging"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the sanabi CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sanabi",
		Short: "sanabi - run-level patching and plugin loading",
		Long: `sanabi intercepts host methods, loads plugin modules from the mods
directory after startup and hides them from the host's own enumeration.

These commands inspect the configuration and the mods directory, and
dry-run the lifecycle against the built-in reference host.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/sanabi/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewModsCmd())
	cmd.AddCommand(NewDryRunCmd())

	return cmd
}

// loadConfig reads the effective configuration for cmd and installs the
// default logger it describes.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return config.Config{}, err
	}
	logging.SetDefault(logging.Options{
		Service: "sanabi",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   level,
		Writer:  cmd.ErrOrStderr(),
	})
	return cfg, nil
}
