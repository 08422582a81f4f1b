// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package patches

import (
	"context"

	"github.com/sanabi/sanabi/internal/host"
	"github.com/sanabi/sanabi/internal/intercept"
	"github.com/sanabi/sanabi/internal/runlevel"
)

// PermissionOverride returns the content-phase entry that makes every
// configured permission check report true without running its body.
// An unresolvable target type fails the entry.
func PermissionOverride(d Deps) runlevel.Entry {
	return runlevel.Entry{
		Name:  PermissionOverrideEntry,
		Level: runlevel.Content,
		Run: func(context.Context) error {
			return runPermissionOverride(d)
		},
	}
}

func allow(call *host.Call) host.Action {
	call.Result = true
	return host.Skip
}

func runPermissionOverride(d Deps) error {
	log := d.logger().With("entry", PermissionOverrideEntry)
	if !d.Config.LoadInternalMods {
		log.Debug("internal mods disabled")
		return nil
	}

	hook := intercept.BeforeFunc(allow)
	for _, target := range d.Config.Targets.Permissions {
		hooked, err := d.Engine.InterceptMatching(target.Type, target.Method, hook, intercept.Before)
		if err != nil {
			return err
		}
		if len(hooked) == 0 {
			log.Warn("permission target matched no methods", "type", target.Type, "method", target.Method)
			continue
		}
		log.Info("overrode permission checks", "type", target.Type, "methods", hooked)
	}
	return nil
}
