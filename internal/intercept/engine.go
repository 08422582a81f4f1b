// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

// Package intercept installs before- and after-hooks on host methods that
// are resolved by name at runtime.
//
// Resolution is a capability probe: it returns a typed error when the host
// build lacks the type or method, and the caller decides whether that is
// fatal. Successful resolutions are cached for the life of the Engine.
package intercept

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/gobwas/glob"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/sanabi/sanabi/internal/host"
)

// Kind selects where a hook runs relative to the original body.
type Kind int

// Hook kinds.
const (
	Before Kind = iota
	After
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case Before:
		return "before"
	case After:
		return "after"
	default:
		return "unknown"
	}
}

// Sentinel errors for errors.Is checks.
var (
	ErrTypeNotFound   = errors.New("host type not found")
	ErrMethodNotFound = errors.New("host method not found")
	ErrInvalidHook    = errors.New("hook does not match kind")
)

// Hook wraps either a before- or an after-hook.
type Hook struct {
	before host.BeforeHook
	after  host.AfterHook
}

// BeforeFunc returns a hook that runs ahead of the body.
func BeforeFunc(fn host.BeforeHook) Hook { return Hook{before: fn} }

// AfterFunc returns a hook that runs after the body.
func AfterFunc(fn host.AfterHook) Hook { return Hook{after: fn} }

// HooksInstalled counts installed hooks by kind.
var HooksInstalled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sanabi_hooks_installed_total",
		Help: "Total number of hooks installed on host methods",
	},
	[]string{"kind"},
)

// ResolutionFailures counts failed type or method resolutions.
var ResolutionFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sanabi_resolution_failures_total",
		Help: "Total number of host type or method resolutions that failed",
	},
	[]string{"what"},
)

// RegisterMetrics registers intercept metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(HooksInstalled)
	reg.MustRegister(ResolutionFailures)
}

type methodKey struct {
	typeName string
	method   string
}

// Engine resolves host members and installs hooks on them.
type Engine struct {
	runtime *host.Runtime
	logger  *slog.Logger

	mu      sync.Mutex
	types   map[string]*host.Type
	methods map[methodKey]*host.Method
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an engine over the host runtime.
// Panics if rt is nil.
func NewEngine(rt *host.Runtime, opts ...Option) *Engine {
	if rt == nil {
		panic("intercept: runtime cannot be nil")
	}
	e := &Engine{
		runtime: rt,
		logger:  slog.Default(),
		types:   make(map[string]*host.Type),
		methods: make(map[methodKey]*host.Method),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolveType finds a host type by qualified name.
func (e *Engine) ResolveType(typeName string) (*host.Type, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveTypeLocked(typeName)
}

func (e *Engine) resolveTypeLocked(typeName string) (*host.Type, error) {
	if t, ok := e.types[typeName]; ok {
		return t, nil
	}
	t, ok := e.runtime.Type(typeName)
	if !ok {
		ResolutionFailures.WithLabelValues("type").Inc()
		return nil, oops.Code("TYPE_NOT_FOUND").
			With("type", typeName).
			Wrapf(ErrTypeNotFound, "resolve %s", typeName)
	}
	e.types[typeName] = t
	return t, nil
}

// ResolveMethod finds a method on a host type.
func (e *Engine) ResolveMethod(typeName, methodName string) (*host.Method, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveMethodLocked(typeName, methodName)
}

func (e *Engine) resolveMethodLocked(typeName, methodName string) (*host.Method, error) {
	key := methodKey{typeName: typeName, method: methodName}
	if m, ok := e.methods[key]; ok {
		return m, nil
	}
	t, err := e.resolveTypeLocked(typeName)
	if err != nil {
		return nil, err
	}
	m, ok := t.Method(methodName)
	if !ok {
		ResolutionFailures.WithLabelValues("method").Inc()
		return nil, oops.Code("METHOD_NOT_FOUND").
			With("type", typeName).
			With("method", methodName).
			Wrapf(ErrMethodNotFound, "resolve %s.%s", typeName, methodName)
	}
	e.methods[key] = m
	return m, nil
}

// InterceptMethod installs hook on typeName.methodName. Hooks stack on the
// method in installation order; installing the same hook twice runs it twice.
func (e *Engine) InterceptMethod(typeName, methodName string, hook Hook, kind Kind) error {
	if err := validate(hook, kind); err != nil {
		return oops.With("type", typeName).With("method", methodName).Wrap(err)
	}

	m, err := e.ResolveMethod(typeName, methodName)
	if err != nil {
		return err
	}

	install(m, hook, kind)
	e.logger.Debug("installed hook",
		"type", typeName,
		"method", methodName,
		"kind", kind.String())
	return nil
}

// InterceptMatching installs hook on every method of typeName whose name
// matches pattern (gobwas/glob syntax). It returns the names of hooked
// methods in declaration order. Matching nothing is not an error.
func (e *Engine) InterceptMatching(typeName, pattern string, hook Hook, kind Kind) ([]string, error) {
	if err := validate(hook, kind); err != nil {
		return nil, oops.With("type", typeName).With("pattern", pattern).Wrap(err)
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, oops.Code("INVALID_PATTERN").
			With("type", typeName).
			With("pattern", pattern).
			Wrap(err)
	}

	t, err := e.ResolveType(typeName)
	if err != nil {
		return nil, err
	}

	var hooked []string
	for _, m := range t.Methods() {
		if !g.Match(m.Name) {
			continue
		}
		install(m, hook, kind)
		hooked = append(hooked, m.Name)
	}

	e.logger.Debug("installed hooks by pattern",
		"type", typeName,
		"pattern", pattern,
		"kind", kind.String(),
		"methods", hooked)
	return hooked, nil
}

func validate(hook Hook, kind Kind) error {
	switch {
	case kind == Before && hook.before != nil:
		return nil
	case kind == After && hook.after != nil:
		return nil
	default:
		return oops.Code("INVALID_HOOK").
			With("kind", kind.String()).
			Wrap(ErrInvalidHook)
	}
}

func install(m *host.Method, hook Hook, kind Kind) {
	if kind == Before {
		m.AddBefore(hook.before)
	} else {
		m.AddAfter(hook.after)
	}
	HooksInstalled.WithLabelValues(kind.String()).Inc()
}
