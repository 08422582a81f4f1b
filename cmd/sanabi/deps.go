// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package main

import (
	"context"

	"github.com/sanabi/sanabi/internal/loader"
	"github.com/sanabi/sanabi/internal/observability"
)

// ObservabilityServer is the subset of observability.Server used by dryrun.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// DryRunDeps contains injectable dependencies for the dryrun command.
// All fields with nil values will use their default implementations.
type DryRunDeps struct {
	// Opener opens module files.
	// Default: loader.PluginOpener
	Opener loader.Opener

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, ready observability.ReadinessChecker, opts ...observability.Option) ObservabilityServer
}
