// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package core

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
)

// State is a point in the host lifecycle as seen by sanabi.
type State int

// Lifecycle states.
const (
	Unstarted State = iota
	EngineLoaded
	ModulesDraining
	ModulesLoaded
	ContentLoaded
	// Failed is terminal. It is entered when a run-level pass fails.
	Failed
)

var stateNames = map[State]string{
	Unstarted:       "unstarted",
	EngineLoaded:    "engine_loaded",
	ModulesDraining: "modules_draining",
	ModulesLoaded:   "modules_loaded",
	ContentLoaded:   "content_loaded",
	Failed:          "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ErrInvalidTransition is returned when a transition is not allowed from
// the current state.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// lifecycleState exposes the current state as a number.
var lifecycleState = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "sanabi_lifecycle_state",
	Help: "Current lifecycle state (0=unstarted 1=engine_loaded 2=modules_draining 3=modules_loaded 4=content_loaded 5=failed)",
})

// RegisterMetrics registers lifecycle metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(lifecycleState)
}

// Transition is published to subscribers on every state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Lifecycle is the state machine of a process. It is safe for concurrent use.
type Lifecycle struct {
	logger *slog.Logger

	mu    sync.RWMutex
	state State
	subs  []chan Transition
}

// NewLifecycle creates a lifecycle in the Unstarted state.
func NewLifecycle(logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{logger: logger}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// BeginDrain moves EngineLoaded to ModulesDraining.
func (l *Lifecycle) BeginDrain() error {
	return l.transition(ModulesDraining, EngineLoaded)
}

// EndDrain moves ModulesDraining to ModulesLoaded.
func (l *Lifecycle) EndDrain() error {
	return l.transition(ModulesLoaded, ModulesDraining)
}

// Subscribe returns a channel receiving every later transition.
func (l *Lifecycle) Subscribe() chan Transition {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan Transition, 16)
	l.subs = append(l.subs, ch)
	return ch
}

// Unsubscribe removes and closes ch.
func (l *Lifecycle) Unsubscribe(ch chan Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, sub := range l.subs {
		if sub == ch {
			l.subs = slices.Delete(l.subs, i, i+1)
			close(ch)
			return
		}
	}
}

func (l *Lifecycle) transition(to State, from ...State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !slices.Contains(from, l.state) {
		return oops.Code("INVALID_TRANSITION").
			With("from", l.state.String()).
			With("to", to.String()).
			Wrap(ErrInvalidTransition)
	}
	l.setLocked(to)
	return nil
}

// fail moves any state to Failed.
func (l *Lifecycle) fail() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Failed {
		l.setLocked(Failed)
	}
}

func (l *Lifecycle) setLocked(to State) {
	t := Transition{From: l.state, To: to, At: time.Now()}
	l.state = to
	lifecycleState.Set(float64(to))
	l.logger.Info("lifecycle transition", "from", t.From.String(), "to", t.To.String())

	for _, ch := range l.subs {
		select {
		case ch <- t:
		default:
			l.logger.Warn("lifecycle transition dropped: subscriber buffer full",
				"from", t.From.String(), "to", t.To.String())
		}
	}
}
