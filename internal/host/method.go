// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package host

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Body is the unhooked behavior of a host method.
// target is nil for static methods.
type Body func(target any, args []any) (any, error)

// Action is returned by a before-hook to decide whether the original body runs.
type Action int

// Before-hook results.
const (
	// Continue lets the remaining before-hooks and the original body run.
	Continue Action = iota
	// Skip uses Call.Result as the return value and does not run the body
	// or any later before-hook.
	Skip
)

// BeforeHook runs ahead of the method body.
type BeforeHook func(call *Call) Action

// AfterHook runs once the body or the skip path has completed.
type AfterHook func(call *Call)

// Call is the state of a single method invocation shared by its hooks.
type Call struct {
	Method *Method
	Target any
	Args   []any
	// Result is the mutable return slot.
	Result any
	// Err is the error returned by the body, if it ran.
	Err error
	// Skipped reports whether a before-hook skipped the body.
	Skipped bool
}

// Method is a callable host member. Invoke is the interception point.
type Method struct {
	Name   string
	Params []reflect.Type
	Static bool

	body Body

	mu     sync.RWMutex
	before []BeforeHook
	after  []AfterHook
}

// NewMethod creates an instance method.
func NewMethod(name string, body Body, params ...reflect.Type) *Method {
	return &Method{Name: name, Params: params, body: body}
}

// NewStaticMethod creates a static method.
func NewStaticMethod(name string, body Body, params ...reflect.Type) *Method {
	return &Method{Name: name, Params: params, Static: true, body: body}
}

// Signature renders the method as name(param, ...).
func (m *Method) Signature() string {
	parts := make([]string, len(m.Params))
	for i, p := range m.Params {
		parts[i] = p.String()
	}
	return fmt.Sprintf("%s(%s)", m.Name, strings.Join(parts, ", "))
}

// AddBefore appends a before-hook to the chain.
func (m *Method) AddBefore(h BeforeHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.before = append(m.before, h)
}

// AddAfter appends an after-hook to the chain.
func (m *Method) AddAfter(h AfterHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.after = append(m.after, h)
}

// HookCount returns the number of installed before- and after-hooks.
func (m *Method) HookCount() (before, after int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.before), len(m.after)
}

// Invoke calls the method through its hook chain.
//
// Before-hooks run in installation order until one returns Skip. The body
// runs only if none did. After-hooks always run in installation order.
func (m *Method) Invoke(target any, args ...any) (any, error) {
	m.mu.RLock()
	before := append([]BeforeHook(nil), m.before...)
	after := append([]AfterHook(nil), m.after...)
	m.mu.RUnlock()

	if m.Static {
		target = nil
	}

	call := &Call{Method: m, Target: target, Args: args}
	for _, h := range before {
		if h(call) == Skip {
			call.Skipped = true
			break
		}
	}

	if !call.Skipped && m.body != nil {
		call.Result, call.Err = m.body(target, args)
	}

	for _, h := range after {
		h(call)
	}

	return call.Result, call.Err
}
