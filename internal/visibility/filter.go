// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

// Package visibility tracks modules that must not show up when the host
// enumerates everything loaded into the process.
package visibility

import (
	"reflect"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/sanabi/sanabi/internal/host"
)

// Filter is the append-only set of hidden modules. Modules are keyed by
// reference; a module whose dynamic type is not comparable cannot be
// hidden and is always visible.
//
// Filter is safe for concurrent use. The zero value is ready to use.
type Filter struct {
	mu     sync.RWMutex
	set    map[host.Module]struct{}
	hidden []host.Module
}

// New creates an empty filter.
func New() *Filter {
	return &Filter{set: make(map[host.Module]struct{})}
}

// Hide adds m to the hidden set and reports whether m is hidden afterwards.
// Hiding the same module twice is a no-op.
func (f *Filter) Hide(m host.Module) bool {
	if !keyable(m) {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set == nil {
		f.set = make(map[host.Module]struct{})
	}
	if _, ok := f.set[m]; ok {
		return true
	}
	f.set[m] = struct{}{}
	f.hidden = append(f.hidden, m)
	return true
}

// IsHidden reports whether m was hidden.
func (f *Filter) IsHidden(m host.Module) bool {
	if !keyable(m) {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.set[m]
	return ok
}

// Hidden returns the hidden modules in the order they were hidden.
func (f *Filter) Hidden() []host.Module {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]host.Module(nil), f.hidden...)
}

// Visible returns mods without the hidden ones, preserving order.
func (f *Filter) Visible(mods []host.Module) []host.Module {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]host.Module, 0, len(mods))
	for _, m := range mods {
		if keyable(m) {
			if _, ok := f.set[m]; ok {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

// HideMatching hides every module in mods whose name matches pattern.
// Pattern syntax is gobwas/glob with '.' as the separator.
func (f *Filter) HideMatching(mods []host.Module, pattern string) (int, error) {
	g, err := glob.Compile(pattern, '.')
	if err != nil {
		return 0, oops.Code("INVALID_PATTERN").With("pattern", pattern).Wrap(err)
	}
	n := 0
	for _, m := range mods {
		if g.Match(m.Name()) && f.Hide(m) {
			n++
		}
	}
	return n, nil
}

func keyable(m host.Module) bool {
	return m != nil && reflect.TypeOf(m).Comparable()
}

// Reset clears the hidden set. It is called once at process teardown.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set = make(map[host.Module]struct{})
	f.hidden = nil
}
