// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

// Package patches declares the built-in patch entries: the mod loader hook,
// the enumeration shim and the permission override.
package patches

import (
	"log/slog"

	"github.com/sanabi/sanabi/internal/config"
	"github.com/sanabi/sanabi/internal/host"
	"github.com/sanabi/sanabi/internal/intercept"
	"github.com/sanabi/sanabi/internal/loader"
	"github.com/sanabi/sanabi/internal/runlevel"
	"github.com/sanabi/sanabi/internal/visibility"
)

// Entry names.
const (
	ModLoaderEntry          = "mod-loader"
	EnumerationEntry        = "enumeration-shim"
	PermissionOverrideEntry = "permission-override"
)

// Lifecycle is told when the host starts and finishes draining queued
// modules.
type Lifecycle interface {
	BeginDrain() error
	EndDrain() error
}

// Deps are the process-wide components the built-in entries patch through.
type Deps struct {
	Config  *config.Config
	Runtime *host.Runtime
	Engine  *intercept.Engine
	Loader  *loader.Loader
	Hidden  *visibility.Filter
	// Lifecycle is optional.
	Lifecycle Lifecycle
	Logger    *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Declare adds the built-in entries to reg in the order they must run.
func Declare(reg *runlevel.Registry, d Deps) error {
	for _, e := range []runlevel.Entry{ModLoader(d), Enumeration(d), PermissionOverride(d)} {
		if err := reg.Declare(e); err != nil {
			return err
		}
	}
	return nil
}
