// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

// Package core owns the process-lifetime components and drives them through
// the host lifecycle.
package core

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel/trace"

	"github.com/sanabi/sanabi/internal/config"
	"github.com/sanabi/sanabi/internal/host"
	"github.com/sanabi/sanabi/internal/intercept"
	"github.com/sanabi/sanabi/internal/loader"
	"github.com/sanabi/sanabi/internal/logbridge"
	"github.com/sanabi/sanabi/internal/patches"
	"github.com/sanabi/sanabi/internal/runlevel"
	"github.com/sanabi/sanabi/internal/supervise"
	"github.com/sanabi/sanabi/internal/visibility"
)

// Process is the single context object holding every component that lives
// for the whole host process.
type Process struct {
	cfg       config.Config
	runtime   *host.Runtime
	hidden    *visibility.Filter
	tasks     *supervise.Group
	engine    *intercept.Engine
	loader    *loader.Loader
	registry  *runlevel.Registry
	scheduler *runlevel.Scheduler
	lifecycle *Lifecycle
	logger    *slog.Logger
}

type options struct {
	logger *slog.Logger
	opener loader.Opener
	tracer trace.Tracer
	extra  []runlevel.Entry
}

// Option configures a Process.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithOpener replaces the plugin opener used for module discovery.
func WithOpener(op loader.Opener) Option {
	return func(o *options) {
		o.opener = op
	}
}

// WithTracer sets the tracer used for patch entry spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// WithEntries declares extra patch entries after the built-in ones.
func WithEntries(entries ...runlevel.Entry) Option {
	return func(o *options) {
		o.extra = append(o.extra, entries...)
	}
}

// NewProcess wires the components for rt according to cfg.
func NewProcess(cfg config.Config, rt *host.Runtime, opts ...Option) (*Process, error) {
	if rt == nil {
		return nil, oops.Code("INVALID_PROCESS").Errorf("host runtime is required")
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	hostVersion, err := cfg.HostSemver()
	if err != nil {
		return nil, err
	}

	p := &Process{
		cfg:       cfg,
		runtime:   rt,
		hidden:    visibility.New(),
		tasks:     supervise.New(o.logger),
		engine:    intercept.NewEngine(rt, intercept.WithLogger(o.logger)),
		registry:  &runlevel.Registry{},
		lifecycle: NewLifecycle(o.logger),
		logger:    o.logger,
	}

	loaderOpts := []loader.Option{
		loader.WithRuntime(rt),
		loader.WithLogger(o.logger),
		loader.WithBridge(logbridge.New(o.logger)),
	}
	if hostVersion != nil {
		loaderOpts = append(loaderOpts, loader.WithHostVersion(hostVersion))
	}
	if o.opener != nil {
		loaderOpts = append(loaderOpts, loader.WithOpener(o.opener))
	}
	p.loader = loader.New(p.hidden, p.tasks, loaderOpts...)

	err = patches.Declare(p.registry, patches.Deps{
		Config:    &p.cfg,
		Runtime:   rt,
		Engine:    p.engine,
		Loader:    p.loader,
		Hidden:    p.hidden,
		Lifecycle: p.lifecycle,
		Logger:    o.logger,
	})
	if err != nil {
		return nil, err
	}
	for _, e := range o.extra {
		if err := p.registry.Declare(e); err != nil {
			return nil, err
		}
	}

	schedOpts := []runlevel.SchedulerOption{
		runlevel.WithAllowed(cfg.RunLevel()),
		runlevel.WithLogger(o.logger),
	}
	if o.tracer != nil {
		schedOpts = append(schedOpts, runlevel.WithTracer(o.tracer))
	}
	p.scheduler = runlevel.NewScheduler(p.registry, p.tasks, schedOpts...)
	return p, nil
}

// Start runs the engine pass. It must be called once, after host engine
// code is loaded and before the game entry point runs.
func (p *Process) Start(ctx context.Context) error {
	if s := p.lifecycle.State(); s != Unstarted {
		return oops.Code("INVALID_TRANSITION").
			With("from", s.String()).
			With("to", EngineLoaded.String()).
			Wrap(ErrInvalidTransition)
	}

	p.logger.Info("starting", "allowed", p.scheduler.Allowed().String())
	if err := p.scheduler.Initialize(ctx, runlevel.Engine); err != nil {
		p.lifecycle.fail()
		return err
	}
	return p.lifecycle.transition(EngineLoaded, Unstarted)
}

// ContentLoaded runs the content pass. It is allowed once engine setup
// finished, whether or not the host drained modules.
func (p *Process) ContentLoaded(ctx context.Context) error {
	if s := p.lifecycle.State(); s != EngineLoaded && s != ModulesLoaded {
		return oops.Code("INVALID_TRANSITION").
			With("from", s.String()).
			With("to", ContentLoaded.String()).
			Wrap(ErrInvalidTransition)
	}

	if err := p.scheduler.Initialize(ctx, runlevel.Content); err != nil {
		p.lifecycle.fail()
		return err
	}
	return p.lifecycle.transition(ContentLoaded, EngineLoaded, ModulesLoaded)
}

// Close waits for supervised tasks until ctx ends and clears the hidden set.
func (p *Process) Close(ctx context.Context) error {
	err := p.tasks.Wait(ctx)
	p.hidden.Reset()
	if err != nil {
		return err
	}
	p.logger.Info("closed", "failed_tasks", len(p.tasks.Failures()))
	return nil
}

// State returns the lifecycle state.
func (p *Process) State() State { return p.lifecycle.State() }

// Ready reports whether the engine pass completed and nothing failed.
func (p *Process) Ready() bool {
	s := p.lifecycle.State()
	return s >= EngineLoaded && s != Failed
}

// Lifecycle returns the process state machine.
func (p *Process) Lifecycle() *Lifecycle { return p.lifecycle }

// Hidden returns the hidden module set.
func (p *Process) Hidden() *visibility.Filter { return p.hidden }

// Tasks returns the supervised task group.
func (p *Process) Tasks() *supervise.Group { return p.tasks }

// Loader returns the module loader.
func (p *Process) Loader() *loader.Loader { return p.loader }

// Engine returns the interception engine.
func (p *Process) Engine() *intercept.Engine { return p.engine }

// Config returns the configuration the process was built with.
func (p *Process) Config() config.Config { return p.cfg }
