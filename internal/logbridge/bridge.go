// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

// Package logbridge routes a plugin module's own log output into the
// sanabi log.
package logbridge

import (
	"fmt"
	"log/slog"

	"github.com/sanabi/sanabi/internal/host"
	"github.com/sanabi/sanabi/pkg/pluginsdk"
)

// Bridge rewires module log sinks to a slog.Logger.
type Bridge struct {
	logger *slog.Logger
}

// New creates a bridge writing to logger. A nil logger means slog.Default().
func New(logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{logger: logger}
}

// Attach overwrites the module's LogForward variable with a sink that logs
// every message tagged with the module name. It reports whether the module
// exposed a sink of a recognized shape; otherwise nothing changes.
func (b *Bridge) Attach(m host.Module) bool {
	sym, err := m.Lookup(pluginsdk.LogForwardSymbol)
	if err != nil {
		return false
	}

	logger := b.logger.With("module", m.Name())
	sink := func(message string) {
		logger.Info(message, "source", "plugin")
	}

	switch v := sym.(type) {
	case *pluginsdk.LogFunc:
		if v == nil {
			return false
		}
		*v = sink
	case *func(string):
		if v == nil {
			return false
		}
		*v = sink
	default:
		b.logger.Debug("module log sink has unexpected shape",
			"module", m.Name(),
			"type", fmt.Sprintf("%T", sym))
		return false
	}

	b.logger.Debug("attached module log sink", "module", m.Name())
	return true
}
