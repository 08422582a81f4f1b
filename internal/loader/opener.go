// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package loader

import (
	"path/filepath"
	"plugin"
	"strings"

	"github.com/samber/oops"

	"github.com/sanabi/sanabi/internal/host"
)

// ModuleExt is the file extension of loadable plugin modules.
const ModuleExt = ".so"

// Opener loads a module file into the process.
type Opener interface {
	Open(path string) (host.Module, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(path string) (host.Module, error)

// Open implements Opener.
func (f OpenerFunc) Open(path string) (host.Module, error) { return f(path) }

// PluginOpener opens Go shared objects with the standard plugin package.
type PluginOpener struct{}

// Open loads the shared object at path. A panic during load is returned as
// an error so a bad file never takes the host down.
func (PluginOpener) Open(path string) (host.Module, error) {
	var (
		p       *plugin.Plugin
		openErr error
	)
	if err := oops.Code("MODULE_OPEN_FAILED").With("path", path).Recover(func() {
		p, openErr = plugin.Open(path)
	}); err != nil {
		return nil, err
	}
	if openErr != nil {
		return nil, oops.Code("MODULE_OPEN_FAILED").With("path", path).Wrap(openErr)
	}
	return &sharedObject{name: moduleName(path), path: path, p: p}, nil
}

type sharedObject struct {
	name string
	path string
	p    *plugin.Plugin
}

func (s *sharedObject) Name() string { return s.name }
func (s *sharedObject) Path() string { return s.path }

func (s *sharedObject) Lookup(symbol string) (any, error) {
	sym, err := s.p.Lookup(symbol)
	if err != nil {
		return nil, oops.With("module", s.name).With("symbol", symbol).Wrap(err)
	}
	return sym, nil
}

// moduleName derives the module identity from its file name.
func moduleName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ModuleExt)
}
