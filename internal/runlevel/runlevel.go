// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

// Package runlevel declares patch entries and runs them at the host
// lifecycle phase they are tagged for.
package runlevel

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/samber/oops"
)

// Level is a set of host lifecycle phases.
type Level uint8

// Run levels.
const (
	None Level = 0
	// Engine runs once engine code is loaded, before the game entry point starts.
	Engine Level = 1 << 0
	// Content runs once game content is loaded and initialized.
	Content Level = 1 << 1
	// Full is both Engine and Content.
	Full = Engine | Content
)

// Has reports whether l shares any phase with other.
func (l Level) Has(other Level) bool {
	return l&other != 0
}

// String renders the level as "engine", "content", "engine|content" or "none".
func (l Level) String() string {
	var parts []string
	if l&Engine != 0 {
		parts = append(parts, "engine")
	}
	if l&Content != 0 {
		parts = append(parts, "content")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Entry is a declared patch routine.
type Entry struct {
	Name  string
	Level Level
	// Async entries run on the supervised task group and are not awaited.
	Async bool
	Run   func(ctx context.Context) error
}

// Sentinel errors.
var (
	ErrInvalidEntry = errors.New("invalid patch entry")
	ErrFrozen       = errors.New("patch entries are frozen")
)

// Registry collects declared entries. It is frozen the first time a
// Scheduler reads it; later declarations are rejected.
type Registry struct {
	mu      sync.Mutex
	entries []Entry
	frozen  bool
}

// Declare adds an entry.
func (r *Registry) Declare(e Entry) error {
	switch {
	case e.Name == "":
		return oops.Code("INVALID_PATCH_ENTRY").Wrapf(ErrInvalidEntry, "entry name is empty")
	case e.Run == nil:
		return oops.Code("INVALID_PATCH_ENTRY").With("entry", e.Name).Wrapf(ErrInvalidEntry, "entry has no routine")
	case e.Level == None:
		return oops.Code("INVALID_PATCH_ENTRY").With("entry", e.Name).Wrapf(ErrInvalidEntry, "entry has no run level")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return oops.Code("PATCH_ENTRIES_FROZEN").With("entry", e.Name).Wrap(ErrFrozen)
	}
	r.entries = append(r.entries, e)
	return nil
}

// MustDeclare is Declare for static declarations; it panics on error.
func (r *Registry) MustDeclare(entries ...Entry) {
	for _, e := range entries {
		if err := r.Declare(e); err != nil {
			panic(err)
		}
	}
}

// Entries returns the declared entries in declaration order.
func (r *Registry) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

func (r *Registry) freeze() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	return append([]Entry(nil), r.entries...)
}
