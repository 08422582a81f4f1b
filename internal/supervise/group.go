// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

// Package supervise runs fire-and-forget work while keeping its failures
// observable.
//
// Callers of Go never wait for the task. The group remembers every task so
// that failures can be inspected and shutdown can wait for stragglers.
// Tasks are never cancelled or timed out by the group.
package supervise

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/sanabi/sanabi/pkg/errutil"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

func newID() ulid.ULID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// TasksStarted counts dispatched tasks by kind.
var TasksStarted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sanabi_async_tasks_total",
		Help: "Total number of fire-and-forget tasks dispatched",
	},
	[]string{"kind"},
)

// TaskFailures counts tasks that returned an error or panicked.
var TaskFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sanabi_async_task_failures_total",
		Help: "Total number of fire-and-forget tasks that failed",
	},
	[]string{"kind"},
)

// RegisterMetrics registers supervise metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(TasksStarted)
	reg.MustRegister(TaskFailures)
}

// Failure describes a task that did not complete successfully.
type Failure struct {
	ID   ulid.ULID
	Kind string
	Name string
	Err  error
}

// Group is a supervised set of background tasks.
type Group struct {
	logger *slog.Logger
	wg     sync.WaitGroup

	mu       sync.Mutex
	running  map[ulid.ULID]string
	failures []Failure
}

// New creates a group that logs task failures to logger.
// A nil logger means slog.Default().
func New(logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{
		logger:  logger,
		running: make(map[ulid.ULID]string),
	}
}

// Go starts fn on its own goroutine and returns immediately.
// kind groups tasks for metrics ("patch", "entry"); name identifies the task
// in logs. A panic inside fn is recovered and recorded as a failure.
func (g *Group) Go(kind, name string, fn func(ctx context.Context) error) ulid.ULID {
	id := newID()

	g.mu.Lock()
	g.running[id] = name
	g.mu.Unlock()

	TasksStarted.WithLabelValues(kind).Inc()
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			g.mu.Lock()
			delete(g.running, id)
			g.mu.Unlock()
		}()

		ctx := context.Background()
		err := errutil.Safely(func() error { return fn(ctx) })
		if err == nil {
			return
		}

		err = oops.Code("ASYNC_TASK_FAILED").
			With("task_id", id.String()).
			With("kind", kind).
			With("task", name).
			Wrap(err)
		TaskFailures.WithLabelValues(kind).Inc()
		errutil.LogError(g.logger, "async task failed", err)

		g.mu.Lock()
		g.failures = append(g.failures, Failure{ID: id, Kind: kind, Name: name, Err: err})
		g.mu.Unlock()
	}()

	return id
}

// Running returns the names of tasks that have not finished.
func (g *Group) Running() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.running))
	for _, name := range g.running {
		names = append(names, name)
	}
	return names
}

// Failures returns the failures recorded so far.
func (g *Group) Failures() []Failure {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Failure(nil), g.failures...)
}

// Wait blocks until every task finished or ctx is done. It does not stop
// running tasks; on ctx expiry it returns an error naming the stragglers.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return oops.Code("TASKS_STILL_RUNNING").
			With("running", g.Running()).
			Wrap(ctx.Err())
	}
}
