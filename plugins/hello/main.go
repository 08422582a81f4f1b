// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

// Package main is an example sanabi plugin module.
//
// Build with:
//
//	go build -buildmode=plugin -o hello.so ./plugins/hello
package main

import (
	"github.com/sanabi/sanabi/pkg/pluginsdk"
)

// LogForward is replaced by the loader with a sink that writes to the host log.
var LogForward pluginsdk.LogFunc = func(string) {}

// RequiresHost is the host version range this module was written against.
var RequiresHost = ">= 0.1.0"

type entry struct{}

func (entry) Entry() {
	LogForward("hello module entered")
}

// PatchEntry is invoked once after the host registered this module.
var PatchEntry entry

func main() {}
