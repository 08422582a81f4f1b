// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package supervise_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sanabi/sanabi/internal/supervise"
	"github.com/sanabi/sanabi/pkg/errutil"
)

func TestGroup_GoDoesNotWait(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := supervise.New(nil)
	release := make(chan struct{})
	finished := make(chan struct{})

	g.Go("patch", "slow", func(context.Context) error {
		<-release
		close(finished)
		return nil
	})

	select {
	case <-finished:
		t.Fatal("task finished before release")
	default:
	}
	assert.Equal(t, []string{"slow"}, g.Running())

	close(release)
	require.NoError(t, g.Wait(context.Background()))
	assert.Empty(t, g.Running())
	assert.Empty(t, g.Failures())
}

func TestGroup_RecordsErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	var buf bytes.Buffer
	g := supervise.New(slog.New(slog.NewJSONHandler(&buf, nil)))
	before := testutil.ToFloat64(supervise.TaskFailures.WithLabelValues("entry"))

	boom := errors.New("boom")
	id := g.Go("entry", "mod-a", func(context.Context) error { return boom })
	require.NoError(t, g.Wait(context.Background()))

	failures := g.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, id, failures[0].ID)
	assert.Equal(t, "mod-a", failures[0].Name)
	assert.ErrorIs(t, failures[0].Err, boom)
	errutil.AssertErrorCode(t, failures[0].Err, "ASYNC_TASK_FAILED")
	errutil.AssertErrorContext(t, failures[0].Err, "task", "mod-a")

	assert.Contains(t, buf.String(), "async task failed")
	assert.InDelta(t, before+1, testutil.ToFloat64(supervise.TaskFailures.WithLabelValues("entry")), 0)
}

func TestGroup_RecoversPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := supervise.New(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	g.Go("entry", "panicky", func(context.Context) error { panic("kaboom") })
	require.NoError(t, g.Wait(context.Background()))

	failures := g.Failures()
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Err.Error(), "kaboom")
}

func TestGroup_WaitHonorsContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := supervise.New(nil)
	release := make(chan struct{})
	g.Go("patch", "stuck", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Wait(ctx)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "TASKS_STILL_RUNNING")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, g.Wait(context.Background()))
}

func TestGroup_TaskContextNotCancelledByCaller(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := supervise.New(nil)
	result := make(chan error, 1)
	g.Go("patch", "ctx", func(ctx context.Context) error {
		result <- ctx.Err()
		return nil
	})
	require.NoError(t, g.Wait(context.Background()))
	assert.NoError(t, <-result)
}
