// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanabi/sanabi/internal/observability"
)

type fakeServer struct {
	addr    string
	ready   observability.ReadinessChecker
	started bool
	stopped bool
}

func (f *fakeServer) Start() (<-chan error, error) {
	f.started = true
	return make(chan error), nil
}

func (f *fakeServer) Stop(context.Context) error {
	f.stopped = true
	return nil
}

func (f *fakeServer) Addr() string { return f.addr }

func TestDryRun_LoadsAndHidesModules(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, dir, "alpha.so", "ok")
	writeFile(t, dir, "beta.so", "ok")
	writeFile(t, dir, "broken.so", "garbage")

	srv := &fakeServer{}
	deps := &DryRunDeps{
		Opener: fakeOpener,
		ObservabilityServerFactory: func(addr string, ready observability.ReadinessChecker, _ ...observability.Option) ObservabilityServer {
			srv.addr = addr
			srv.ready = ready
			return srv
		},
	}

	out, _, err := execute(t, []string{
		"--patching-enabled", "--patching-level",
		"--load-external-mods", "--load-internal-mods",
		"--mods-dir", dir,
		"--metrics-addr", "127.0.0.1:0",
		"dryrun",
	}, newDryRunCmd(deps))
	require.NoError(t, err)

	assert.Contains(t, out, "state:    content_loaded")
	assert.Contains(t, out, "loaded:   beta, alpha")
	assert.Contains(t, out, "pending:  0")
	assert.Contains(t, out, "visible:  -")
	assert.NotContains(t, out, "failed:")

	assert.Equal(t, "127.0.0.1:0", srv.addr)
	assert.True(t, srv.started)
	assert.True(t, srv.stopped)
	assert.True(t, srv.ready())
}

func TestDryRun_PatchingDisabled(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, dir, "alpha.so", "ok")

	out, _, err := execute(t, []string{"--mods-dir", dir, "dryrun"}, newDryRunCmd(&DryRunDeps{Opener: fakeOpener}))
	require.NoError(t, err)

	assert.Contains(t, out, "state:    content_loaded")
	assert.Contains(t, out, "loaded:   -")
}
