// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

// Package host models the late-bound surface an embedding host exposes to
// sanabi.
//
// The host registers its types by qualified name. Each type carries an
// ordered list of methods with declared parameter types. Host code calls
// those methods through Method.Invoke, which is the indirection point where
// interceptors run. Names are plain strings because they differ between
// host builds; nothing in sanabi depends on them at compile time.
package host

import (
	"reflect"
	"sync"
)

// Module is a loaded plugin module as seen by the host.
type Module interface {
	// Name is the module identity used in logs and visibility checks.
	Name() string
	// Path is the file the module was loaded from.
	Path() string
	// Lookup returns the exported symbol with the given name.
	Lookup(symbol string) (any, error)
}

// ModuleType is the reflected type of a module reference.
var ModuleType = reflect.TypeFor[Module]()

// Runtime is the registry of host types and loaded modules.
//
// Runtime is safe for concurrent use.
type Runtime struct {
	mu      sync.RWMutex
	types   map[string]*Type
	modules []Module
}

// NewRuntime creates an empty host runtime.
func NewRuntime() *Runtime {
	return &Runtime{
		types: make(map[string]*Type),
	}
}

// Define registers a type under its qualified name, replacing any previous
// definition with the same name.
func (r *Runtime) Define(t *Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.Name] = t
}

// Type looks up a type by qualified name.
func (r *Runtime) Type(name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// TypeNames returns the qualified names of all defined types.
func (r *Runtime) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	return names
}

// AddModule records a module as loaded into the process.
func (r *Runtime) AddModule(m Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = append(r.modules, m)
}

// Modules returns every module loaded into the process, hidden or not.
// Host-facing enumeration goes through an intercepted method instead.
func (r *Runtime) Modules() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Module, len(r.modules))
	copy(out, r.modules)
	return out
}

// Type is a host type with its callable members.
type Type struct {
	// Name is the qualified type name, e.g. "Robust.Shared.ContentPack.ModLoader".
	Name string
	// Instance is the Go type of receivers passed to instance methods.
	// It may be nil for types that only have static members.
	Instance reflect.Type

	methods []*Method
}

// NewType creates a type with the given methods in declaration order.
func NewType(name string, instance reflect.Type, methods ...*Method) *Type {
	return &Type{
		Name:     name,
		Instance: instance,
		methods:  methods,
	}
}

// Method returns the first method with the given name.
func (t *Type) Method(name string) (*Method, bool) {
	for _, m := range t.methods {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// Methods returns the type's methods in declaration order.
func (t *Type) Methods() []*Method {
	out := make([]*Method, len(t.methods))
	copy(out, t.methods)
	return out
}
