// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package runlevel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sanabi/sanabi/internal/supervise"
	"github.com/sanabi/sanabi/pkg/errutil"
)

// Status values for entry metrics.
const (
	StatusSuccess    = "success"
	StatusError      = "error"
	StatusDispatched = "dispatched"
)

// ErrPhaseAlreadyRun is returned when a phase is initialized twice.
var ErrPhaseAlreadyRun = errors.New("run level already initialized")

// EntryRuns counts patch entry runs.
var EntryRuns = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sanabi_patch_entries_total",
		Help: "Total number of patch entry runs by entry, phase and status",
	},
	[]string{"entry", "phase", "status"},
)

// EntryDuration observes synchronous entry duration.
var EntryDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "sanabi_patch_entry_duration_seconds",
		Help:    "Synchronous patch entry duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"entry", "phase"},
)

// RegisterMetrics registers runlevel metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(EntryRuns)
	reg.MustRegister(EntryDuration)
}

// Scheduler runs declared entries per phase.
type Scheduler struct {
	registry *Registry
	tasks    *supervise.Group
	allowed  Level
	logger   *slog.Logger
	tracer   trace.Tracer

	mu   sync.Mutex
	done Level
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithAllowed restricts the phases the scheduler will run. The default is Full.
func WithAllowed(l Level) SchedulerOption {
	return func(s *Scheduler) {
		s.allowed = l
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// WithTracer sets the tracer used for per-entry spans.
func WithTracer(t trace.Tracer) SchedulerOption {
	return func(s *Scheduler) {
		s.tracer = t
	}
}

// NewScheduler creates a scheduler over registry that dispatches async
// entries to tasks.
// Panics if registry or tasks is nil.
func NewScheduler(registry *Registry, tasks *supervise.Group, opts ...SchedulerOption) *Scheduler {
	if registry == nil {
		panic("runlevel: registry cannot be nil")
	}
	if tasks == nil {
		panic("runlevel: task group cannot be nil")
	}
	s := &Scheduler{
		registry: registry,
		tasks:    tasks,
		allowed:  Full,
		logger:   slog.Default(),
		tracer:   otel.Tracer("github.com/sanabi/sanabi/internal/runlevel"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allowed returns the phases this scheduler may run.
func (s *Scheduler) Allowed() Level {
	return s.allowed
}

// Initialize runs every entry whose level intersects phase, in declaration
// order. Phases outside the allowed set are ignored. Synchronous entries run
// on the calling goroutine; the first one that fails or panics aborts the
// pass and its error is returned. Async entries are dispatched and not
// awaited. A phase bit that already ran returns ErrPhaseAlreadyRun.
func (s *Scheduler) Initialize(ctx context.Context, phase Level) error {
	effective := phase & s.allowed

	s.mu.Lock()
	if s.done&effective != 0 {
		s.mu.Unlock()
		s.logger.Warn("run level already initialized", "phase", effective.String())
		return oops.Code("PHASE_ALREADY_RUN").
			With("phase", effective.String()).
			Wrap(ErrPhaseAlreadyRun)
	}
	s.done |= effective
	s.mu.Unlock()

	if effective == None {
		s.logger.Debug("run level not allowed, skipping", "phase", phase.String(), "allowed", s.allowed.String())
		return nil
	}

	entries := s.registry.freeze()
	s.logger.Info("initializing run level", "phase", effective.String(), "declared", len(entries))

	ran := 0
	for _, e := range entries {
		if !e.Level.Has(effective) {
			continue
		}
		if e.Async {
			s.dispatch(e, effective)
			ran++
			continue
		}
		if err := s.runSync(ctx, e, effective); err != nil {
			errutil.LogError(s.logger, "patch entry failed; aborting run level", err)
			return err
		}
		ran++
	}

	s.logger.Info("run level initialized", "phase", effective.String(), "entries", ran)
	return nil
}

func (s *Scheduler) runSync(ctx context.Context, e Entry, phase Level) error {
	ctx, span := s.tracer.Start(ctx, "patch."+e.Name, trace.WithAttributes(
		attribute.String("sanabi.entry", e.Name),
		attribute.String("sanabi.phase", phase.String()),
	))
	defer span.End()

	start := time.Now()
	err := errutil.Safely(func() error { return e.Run(ctx) })
	EntryDuration.WithLabelValues(e.Name, phase.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "patch entry failed")
		EntryRuns.WithLabelValues(e.Name, phase.String(), StatusError).Inc()
		return oops.Code("PATCH_ENTRY_FAILED").
			With("entry", e.Name).
			With("phase", phase.String()).
			Wrap(err)
	}

	EntryRuns.WithLabelValues(e.Name, phase.String(), StatusSuccess).Inc()
	s.logger.Info("entered patch", "entry", e.Name, "phase", phase.String())
	return nil
}

func (s *Scheduler) dispatch(e Entry, phase Level) {
	EntryRuns.WithLabelValues(e.Name, phase.String(), StatusDispatched).Inc()
	id := s.tasks.Go("patch", e.Name, e.Run)
	s.logger.Info("dispatched async patch", "entry", e.Name, "phase", phase.String(), "task_id", id.String())
}
