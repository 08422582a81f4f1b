// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package patches

import (
	"context"
	"fmt"
	"reflect"

	"github.com/sanabi/sanabi/internal/host"
	"github.com/sanabi/sanabi/internal/intercept"
	"github.com/sanabi/sanabi/internal/runlevel"
	"github.com/sanabi/sanabi/internal/visibility"
)

// Enumeration returns the engine-phase entry that filters hidden modules
// out of the host's module enumeration and hides modules matching the
// configured patterns.
func Enumeration(d Deps) runlevel.Entry {
	return runlevel.Entry{
		Name:  EnumerationEntry,
		Level: runlevel.Engine,
		Run: func(context.Context) error {
			return runEnumeration(d)
		},
	}
}

func runEnumeration(d Deps) error {
	log := d.logger().With("entry", EnumerationEntry)

	target := d.Config.Targets.Enumeration
	shim := intercept.AfterFunc(func(call *host.Call) {
		if call.Err != nil || call.Result == nil {
			return
		}
		out, ok := visibleResult(d.Hidden, call.Result)
		if !ok {
			log.Warn("enumeration result is not a module slice; hidden modules not filtered",
				"method", call.Method.Signature(), "result_type", fmt.Sprintf("%T", call.Result))
			return
		}
		call.Result = out
	})
	if err := d.Engine.InterceptMethod(target.Type, target.Method, shim, intercept.After); err != nil {
		return err
	}

	for _, pattern := range d.Config.HidePatterns {
		n, err := d.Hidden.HideMatching(d.Runtime.Modules(), pattern)
		if err != nil {
			return err
		}
		log.Info("hid modules by pattern", "pattern", pattern, "count", n)
	}
	return nil
}

// visibleResult filters hidden modules out of any slice whose element type
// is host.Module and returns a value of the original slice type.
func visibleResult(hidden *visibility.Filter, result any) (any, bool) {
	if mods, ok := result.([]host.Module); ok {
		return hidden.Visible(mods), true
	}
	v := reflect.ValueOf(result)
	if v.Kind() != reflect.Slice || v.Type().Elem() != host.ModuleType {
		return nil, false
	}
	mods := make([]host.Module, v.Len())
	for i := range mods {
		mods[i], _ = v.Index(i).Interface().(host.Module)
	}
	visible := hidden.Visible(mods)
	out := reflect.MakeSlice(v.Type(), len(visible), len(visible))
	for i := range visible {
		out.Index(i).Set(reflect.ValueOf(&visible[i]).Elem())
	}
	return out.Interface(), true
}
