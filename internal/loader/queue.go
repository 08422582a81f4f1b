// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package loader

import (
	"errors"
	"sync"

	"github.com/sanabi/sanabi/internal/host"
)

// ErrQueueSealed is returned when pushing to a queue that was already drained.
var ErrQueueSealed = errors.New("pending module queue already drained")

// Queue holds discovered modules that the host has not initialized yet.
// Modules come out last-in-first-out. The queue is drained once; after
// that it stays empty and rejects pushes.
type Queue struct {
	mu     sync.Mutex
	items  []host.Module
	sealed bool
}

// Push adds a module on top of the stack.
func (q *Queue) Push(m host.Module) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sealed {
		return ErrQueueSealed
	}
	q.items = append(q.items, m)
	return nil
}

// Len returns the number of pending modules.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Sealed reports whether the queue was drained.
func (q *Queue) Sealed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sealed
}

// Drain pops every module and passes it to fn. The queue is emptied and
// sealed before fn runs, so a drain started from inside fn, or concurrently,
// sees a sealed queue and returns 0. It returns the number of modules
// popped.
func (q *Queue) Drain(fn func(host.Module)) int {
	q.mu.Lock()
	if q.sealed {
		q.mu.Unlock()
		return 0
	}
	items := q.items
	q.items = nil
	q.sealed = true
	q.mu.Unlock()

	for i := len(items) - 1; i >= 0; i-- {
		fn(items[i])
	}
	return len(items)
}
