// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

// Package loader discovers plugin modules on disk and hands them to the
// host's own module registration routine once the host is ready for them.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/sanabi/sanabi/internal/host"
	"github.com/sanabi/sanabi/internal/logbridge"
	"github.com/sanabi/sanabi/internal/supervise"
	"github.com/sanabi/sanabi/internal/visibility"
	"github.com/sanabi/sanabi/pkg/errutil"
	"github.com/sanabi/sanabi/pkg/pluginsdk"
)

// Status values for module metrics.
const (
	StatusQueued     = "queued"
	StatusOpenFailed = "open_failed"
	StatusSuccess    = "success"
	StatusError      = "error"
)

// ModulesDiscovered counts module files found during discovery.
var ModulesDiscovered = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sanabi_modules_discovered_total",
		Help: "Total number of module files found in the mods directory",
	},
	[]string{"status"},
)

// ModulesInitialized counts module initializations.
var ModulesInitialized = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sanabi_modules_initialized_total",
		Help: "Total number of module initializations by status",
	},
	[]string{"status"},
)

// RegisterMetrics registers loader metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(ModulesDiscovered)
	reg.MustRegister(ModulesInitialized)
}

// Loader owns the pending module queue and the cached init contract.
type Loader struct {
	hidden      *visibility.Filter
	bridge      *logbridge.Bridge
	tasks       *supervise.Group
	opener      Opener
	runtime     *host.Runtime
	hostVersion *semver.Version
	logger      *slog.Logger

	queue Queue

	contractMu  sync.Mutex
	resolved    bool
	contract    *Contract
	contractErr error
}

// Option configures a Loader.
type Option func(*Loader)

// WithOpener replaces the default shared-object opener.
func WithOpener(o Opener) Option {
	return func(l *Loader) {
		l.opener = o
	}
}

// WithRuntime records opened modules in the host runtime.
func WithRuntime(rt *host.Runtime) Option {
	return func(l *Loader) {
		l.runtime = rt
	}
}

// WithHostVersion enables RequiresHost checks against v.
func WithHostVersion(v *semver.Version) Option {
	return func(l *Loader) {
		l.hostVersion = v
	}
}

// WithLogger sets the loader logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithBridge sets the logging bridge used for module log sinks.
func WithBridge(b *logbridge.Bridge) Option {
	return func(l *Loader) {
		l.bridge = b
	}
}

// New creates a loader. hidden receives every module that is loaded;
// tasks runs module entry points.
// Panics if hidden or tasks is nil.
func New(hidden *visibility.Filter, tasks *supervise.Group, opts ...Option) *Loader {
	if hidden == nil {
		panic("loader: visibility filter cannot be nil")
	}
	if tasks == nil {
		panic("loader: task group cannot be nil")
	}
	l := &Loader{
		hidden: hidden,
		tasks:  tasks,
		opener: PluginOpener{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.bridge == nil {
		l.bridge = logbridge.New(l.logger)
	}
	return l
}

// Pending returns the number of queued modules.
func (l *Loader) Pending() int {
	return l.queue.Len()
}

// DiscoverModules opens every module file directly under dir and queues it.
// Files that fail to open are logged and skipped. A missing directory is
// not an error. It returns the number of modules queued.
func (l *Loader) DiscoverModules(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Info("mods directory does not exist", "dir", dir)
			return 0, nil
		}
		return 0, oops.Code("MODS_DIR_UNREADABLE").With("dir", dir).Wrap(err)
	}

	queued := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return queued, oops.Code("DISCOVERY_CANCELLED").With("dir", dir).Wrap(err)
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ModuleExt) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		mod, err := l.opener.Open(path)
		if err != nil {
			ModulesDiscovered.WithLabelValues(StatusOpenFailed).Inc()
			errutil.LogError(l.logger, "failed to open module", err, "path", path)
			continue
		}

		if err := l.queue.Push(mod); err != nil {
			errutil.LogError(l.logger, "module discovered after drain", err,
				"module", mod.Name(), "path", path)
			continue
		}
		if l.runtime != nil {
			l.runtime.AddModule(mod)
		}

		ModulesDiscovered.WithLabelValues(StatusQueued).Inc()
		l.logger.Info("queued module", "module", mod.Name(), "path", path)
		queued++
	}

	return queued, nil
}

// ResolveInitContract finds the routine on the host loader type that
// registers a module. The outcome, success or failure, is cached: later
// calls return the first result regardless of their argument.
func (l *Loader) ResolveInitContract(t *host.Type) (*Contract, error) {
	l.contractMu.Lock()
	defer l.contractMu.Unlock()

	if l.resolved {
		return l.contract, l.contractErr
	}
	l.resolved = true

	if t == nil {
		l.contractErr = oops.Code("INIT_CONTRACT_NOT_FOUND").
			Wrapf(ErrContractNotFound, "no module loader type")
		errutil.LogError(l.logger, "module init contract not found", l.contractErr)
		return nil, l.contractErr
	}

	c, err := resolveContract(t)
	if err != nil {
		l.contractErr = err
		errutil.LogError(l.logger, "module init contract not found", err)
		return nil, err
	}

	l.contract = c
	l.logger.Info("found module init contract", "type", t.Name, "contract", c.String())
	return c, nil
}

func (l *Loader) cachedContract() (*Contract, error) {
	l.contractMu.Lock()
	defer l.contractMu.Unlock()
	if !l.resolved {
		return nil, oops.Code("INIT_CONTRACT_UNRESOLVED").
			Wrapf(ErrContractNotFound, "init contract was never resolved")
	}
	return l.contract, l.contractErr
}

// Drain initializes every queued module through instance, last queued
// first. It runs at most once: the queue is sealed afterwards. When the
// init contract is unavailable nothing is drained and the modules stay
// queued. It returns the number of modules that initialized successfully.
func (l *Loader) Drain(ctx context.Context, instance any) int {
	if instance == nil {
		l.logger.Error("module loader instance is nil; cannot drain")
		return 0
	}
	if _, err := l.cachedContract(); err != nil {
		errutil.LogError(l.logger, "init contract unavailable; modules stay queued", err,
			"pending", l.queue.Len())
		return 0
	}

	loaded := 0
	l.queue.Drain(func(m host.Module) {
		if err := l.LoadModule(ctx, instance, m); err != nil {
			errutil.LogError(l.logger, "failed to load module", err, "module", m.Name())
			return
		}
		loaded++
	})
	return loaded
}

// LoadModule hides m, rewires its log sink, registers it with the host
// through the init contract and starts its entry point. Failures after
// hiding are returned with the module identity attached.
func (l *Loader) LoadModule(ctx context.Context, instance any, m host.Module) error {
	err := errutil.Safely(func() error {
		if !l.hidden.Hide(m) {
			l.logger.Warn("module cannot be hidden from enumeration", "module", m.Name(),
				"type", fmt.Sprintf("%T", m))
		}
		l.bridge.Attach(m)

		if err := l.checkHostVersion(m); err != nil {
			return err
		}

		c, err := l.cachedContract()
		if err != nil {
			return err
		}
		if err := c.invoke(ctx, instance, m); err != nil {
			return oops.Code("MODULE_INIT_FAILED").With("contract", c.String()).Wrap(err)
		}

		l.enter(m)
		return nil
	})
	if err != nil {
		ModulesInitialized.WithLabelValues(StatusError).Inc()
		return oops.With("module", m.Name()).With("path", m.Path()).Wrap(err)
	}

	ModulesInitialized.WithLabelValues(StatusSuccess).Inc()
	l.logger.Info("initialized module", "module", m.Name())
	return nil
}

func (l *Loader) checkHostVersion(m host.Module) error {
	if l.hostVersion == nil {
		return nil
	}
	sym, err := m.Lookup(pluginsdk.RequiresHostSymbol)
	if err != nil {
		return nil //nolint:nilerr // the constraint is optional
	}

	var raw string
	switch v := sym.(type) {
	case *string:
		raw = *v
	case string:
		raw = v
	default:
		return oops.Code("HOST_VERSION_MISMATCH").
			With("type", fmt.Sprintf("%T", sym)).
			Errorf("%s must be a string", pluginsdk.RequiresHostSymbol)
	}

	constraint, err := semver.NewConstraint(raw)
	if err != nil {
		return oops.Code("HOST_VERSION_MISMATCH").With("constraint", raw).Wrap(err)
	}
	if ok, errs := constraint.Validate(l.hostVersion); !ok {
		return oops.Code("HOST_VERSION_MISMATCH").
			With("constraint", raw).
			With("host_version", l.hostVersion.String()).
			Errorf("host version rejected: %v", errs)
	}
	return nil
}

// enter dispatches the module's entry point, if any, without waiting.
func (l *Loader) enter(m host.Module) {
	for _, name := range pluginsdk.EntrySymbols {
		sym, err := m.Lookup(name)
		if err != nil {
			continue
		}
		fn, ok := entryFunc(sym)
		if !ok {
			l.logger.Warn("module entry point has unexpected shape",
				"module", m.Name(),
				"symbol", name,
				"type", fmt.Sprintf("%T", sym))
			return
		}
		l.tasks.Go("entry", m.Name(), func(context.Context) error {
			fn()
			return nil
		})
		l.logger.Info("entered module", "module", m.Name(), "symbol", name)
		return
	}
}

func entryFunc(sym any) (func(), bool) {
	switch v := sym.(type) {
	case func():
		return v, true
	case *func():
		if v == nil || *v == nil {
			return nil, false
		}
		return *v, true
	case pluginsdk.Entrypoint:
		return v.Entry, true
	default:
		return nil, false
	}
}
