// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package patches

import (
	"context"
	"sync/atomic"

	"github.com/sanabi/sanabi/internal/host"
	"github.com/sanabi/sanabi/internal/intercept"
	"github.com/sanabi/sanabi/internal/runlevel"
	"github.com/sanabi/sanabi/pkg/errutil"
)

// ModLoader returns the engine-phase entry that hooks the host's module
// loading routine and queues modules from the mods directory.
//
// A missing loader type or init contract is logged and leaves modules
// unloaded; it does not abort the engine pass.
func ModLoader(d Deps) runlevel.Entry {
	return runlevel.Entry{
		Name:  ModLoaderEntry,
		Level: runlevel.Engine,
		Run: func(ctx context.Context) error {
			return runModLoader(ctx, d)
		},
	}
}

func runModLoader(ctx context.Context, d Deps) error {
	log := d.logger().With("entry", ModLoaderEntry)
	if !d.Config.LoadExternalMods {
		log.Debug("external mods disabled")
		return nil
	}

	target := d.Config.Targets.ModLoader
	t, err := d.Engine.ResolveType(target.Type)
	if err != nil {
		errutil.LogError(log, "module loader type unavailable; external mods disabled", err)
		return nil
	}
	// Failure is cached by the loader and reported again at drain time.
	_, _ = d.Loader.ResolveInitContract(t)

	drainCtx := context.WithoutCancel(ctx)
	// The host may call the hooked method again while modules register,
	// directly or through the init contract; only the first call drains.
	var drained atomic.Bool
	hook := intercept.AfterFunc(func(call *host.Call) {
		if drained.CompareAndSwap(false, true) {
			drain(drainCtx, d, call.Target)
		}
	})
	if err := d.Engine.InterceptMethod(target.Type, target.Method, hook, intercept.After); err != nil {
		errutil.LogError(log, "cannot hook module loader; external mods disabled", err)
		return nil
	}

	n, err := d.Loader.DiscoverModules(ctx, d.Config.ModsDir)
	if err != nil {
		return err
	}
	log.Info("external mods queued", "count", n, "dir", d.Config.ModsDir)
	return nil
}

func drain(ctx context.Context, d Deps, instance any) {
	log := d.logger().With("entry", ModLoaderEntry)
	if d.Lifecycle != nil {
		if err := d.Lifecycle.BeginDrain(); err != nil {
			errutil.LogError(log, "lifecycle refused drain start", err)
		}
	}

	loaded := d.Loader.Drain(ctx, instance)
	log.Info("drained pending modules", "loaded", loaded, "pending", d.Loader.Pending())

	if d.Lifecycle != nil {
		if err := d.Lifecycle.EndDrain(); err != nil {
			errutil.LogError(log, "lifecycle refused drain end", err)
		}
	}
}
