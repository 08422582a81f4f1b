// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sanabi/sanabi/internal/core"
	"github.com/sanabi/sanabi/internal/host"
	"github.com/sanabi/sanabi/internal/host/hosttest"
	"github.com/sanabi/sanabi/internal/intercept"
	"github.com/sanabi/sanabi/internal/loader"
	"github.com/sanabi/sanabi/internal/observability"
	"github.com/sanabi/sanabi/internal/runlevel"
	"github.com/sanabi/sanabi/internal/supervise"
)

const defaultDryRunWait = 5 * time.Second

// NewDryRunCmd creates the dryrun subcommand.
func NewDryRunCmd() *cobra.Command {
	return newDryRunCmd(nil)
}

func newDryRunCmd(deps *DryRunDeps) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "dryrun",
		Short: "Run the patch lifecycle against the reference host",
		Long: `Run the engine pass, the module drain and the content pass against the
built-in reference host, loading real modules from the mods directory,
then report what was loaded and hidden.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDryRun(cmd.Context(), cmd, wait, deps)
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", defaultDryRunWait, "how long to wait for plugin entry points before exiting")
	return cmd
}

func runDryRun(ctx context.Context, cmd *cobra.Command, wait time.Duration, deps *DryRunDeps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if deps == nil {
		deps = &DryRunDeps{}
	}
	if deps.Opener == nil {
		deps.Opener = loader.PluginOpener{}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, ready observability.ReadinessChecker, opts ...observability.Option) ObservabilityServer {
			return observability.NewServer(addr, ready, opts...)
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	h := hosttest.New(hosttest.InitSlice)
	p, err := core.NewProcess(cfg, h.Runtime, core.WithOpener(deps.Opener), core.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := deps.ObservabilityServerFactory(cfg.MetricsAddr, p.Ready,
			observability.WithVersion(version),
			observability.WithListenRetries(3),
			observability.WithRegistrars(
				core.RegisterMetrics,
				runlevel.RegisterMetrics,
				intercept.RegisterMetrics,
				loader.RegisterMetrics,
				supervise.RegisterMetrics,
			),
		)
		if _, err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Stop(stopCtx); err != nil {
				slog.Warn("failed to stop observability server", "error", err)
			}
		}()
		slog.Info("serving metrics", "addr", srv.Addr())
	}

	if err := p.Start(ctx); err != nil {
		return err
	}
	if _, err := h.LoadModules(); err != nil {
		return err
	}
	if err := p.ContentLoaded(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "state:    %s\n", p.State())
	fmt.Fprintf(out, "loaded:   %s\n", joinNames(h.Loader.Initialized()))
	fmt.Fprintf(out, "pending:  %d\n", p.Loader().Pending())
	fmt.Fprintf(out, "visible:  %s\n", joinNames(h.Enumerate()))

	// Close unhides modules, so it runs after the report.
	closeCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	closeErr := p.Close(closeCtx)
	for _, f := range p.Tasks().Failures() {
		fmt.Fprintf(out, "failed:   %s %s: %v\n", f.Kind, f.Name, f.Err)
	}
	return closeErr
}

func joinNames(mods []host.Module) string {
	if len(mods) == 0 {
		return "-"
	}
	names := make([]string, 0, len(mods))
	for _, m := range mods {
		names = append(names, m.Name())
	}
	return strings.Join(names, ", ")
}
