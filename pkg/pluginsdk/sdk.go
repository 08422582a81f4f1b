// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

// Package pluginsdk describes what a sanabi plugin module may export.
//
// A plugin is a Go shared object built with -buildmode=plugin and dropped
// into the mods directory. Every export is optional:
//
//	package main
//
//	import "github.com/sanabi/sanabi/pkg/pluginsdk"
//
//	// LogForward is overwritten at load time; calls end up in the host log.
//	var LogForward pluginsdk.LogFunc = func(string) {}
//
//	// RequiresHost restricts the host versions the module accepts.
//	var RequiresHost = ">= 1.2.0"
//
//	type entry struct{}
//
//	func (entry) Entry() { LogForward("hello from the plugin") }
//
//	// PatchEntry runs once, asynchronously, after the host registered the module.
//	var PatchEntry entry
package pluginsdk

// Entry-point symbols, checked in this order.
const (
	PatchEntrySymbol  = "PatchEntry"
	EntryPointSymbol  = "EntryPoint"
	MarseyEntrySymbol = "MarseyEntry"
)

// EntrySymbols lists the entry-point symbols in lookup order.
var EntrySymbols = []string{PatchEntrySymbol, EntryPointSymbol, MarseyEntrySymbol}

// LogForwardSymbol names the log sink variable rewired at load time.
const LogForwardSymbol = "LogForward"

// RequiresHostSymbol names the semver constraint string a module may export.
const RequiresHostSymbol = "RequiresHost"

// LogFunc is the type of the LogForward variable.
type LogFunc func(message string)

// Entrypoint is implemented by values exported under an entry-point symbol.
type Entrypoint interface {
	Entry()
}
