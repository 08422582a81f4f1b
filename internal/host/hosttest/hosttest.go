// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

// Package hosttest provides an in-memory reference host for tests and dry
// runs.
package hosttest

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sanabi/sanabi/internal/host"
)

// Qualified names used by the fixture host.
const (
	ModLoaderType      = "Robust.Shared.ContentPack.ModLoader"
	AppDomainType      = "System.AppDomain"
	ConsoleHostType    = "Robust.Client.Console.ClientConsoleHost"
	AdminDataType      = "Content.Shared.Administration.AdminData"
	AdminManagerType   = "Content.Client.Administration.Managers.ClientAdminManager"
	ConGroupController = "Robust.Client.Console.ClientConGroupController"
)

// ErrSymbolNotFound is returned by Module.Lookup for unknown symbols.
var ErrSymbolNotFound = errors.New("symbol not found")

// Module is an in-memory plugin module.
type Module struct {
	ModName string
	ModPath string
	Symbols map[string]any
}

// NewModule creates a module with the given exported symbols.
func NewModule(name string, symbols map[string]any) *Module {
	if symbols == nil {
		symbols = map[string]any{}
	}
	return &Module{ModName: name, ModPath: "/mods/" + name + ".so", Symbols: symbols}
}

// Name implements host.Module.
func (m *Module) Name() string { return m.ModName }

// Path implements host.Module.
func (m *Module) Path() string { return m.ModPath }

// Lookup implements host.Module.
func (m *Module) Lookup(symbol string) (any, error) {
	v, ok := m.Symbols[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	return v, nil
}

// ModLoader is the fixture host's module loader instance. It records the
// modules passed to its init methods.
type ModLoader struct {
	mu          sync.Mutex
	initialized []host.Module
	loadCalls   int
}

// Initialized returns the modules initialized so far, in call order.
func (l *ModLoader) Initialized() []host.Module {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]host.Module(nil), l.initialized...)
}

// LoadCalls returns how many times TryLoadModules ran.
func (l *ModLoader) LoadCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadCalls
}

func (l *ModLoader) record(mods ...host.Module) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.initialized = append(l.initialized, mods...)
}

// Shape selects which init method the fixture ModLoader type exposes.
type Shape int

// Init method shapes.
const (
	InitSingle Shape = iota
	InitSlice
	InitSequence
	InitNone
)

var (
	stringType = reflect.TypeFor[string]()
	intType    = reflect.TypeFor[int]()
	sliceType  = reflect.TypeFor[[]host.Module]()
)

// Host is the fixture host: a runtime plus handles to its instances.
type Host struct {
	Runtime   *host.Runtime
	Loader    *ModLoader
	LoaderTyp *host.Type
	AppDomain *host.Type
}

// New creates a fixture host whose ModLoader exposes the given init shape.
func New(shape Shape) *Host {
	rt := host.NewRuntime()
	loader := &ModLoader{}

	methods := []*host.Method{
		host.NewMethod("LoadGameAssembly", func(any, []any) (any, error) { return nil, nil }, stringType),
		host.NewMethod("SetEnabled", func(any, []any) (any, error) { return nil, nil }, stringType, intType),
	}
	switch shape {
	case InitSingle:
		methods = append(methods, host.NewMethod("InitMod", func(target any, args []any) (any, error) {
			target.(*ModLoader).record(args[0].(host.Module))
			return nil, nil
		}, host.ModuleType))
	case InitSlice:
		methods = append(methods, host.NewMethod("InitMods", func(target any, args []any) (any, error) {
			target.(*ModLoader).record(args[0].([]host.Module)...)
			return nil, nil
		}, sliceType))
	case InitSequence:
		methods = append(methods, host.NewStaticMethod("InitModSequence", func(_ any, args []any) (any, error) {
			for m := range args[0].(ModuleSeq) {
				loader.record(m)
			}
			return nil, nil
		}, reflect.TypeFor[ModuleSeq]()))
	case InitNone:
	}
	methods = append(methods, host.NewMethod("TryLoadModules", func(target any, _ []any) (any, error) {
		l := target.(*ModLoader)
		l.mu.Lock()
		l.loadCalls++
		l.mu.Unlock()
		return true, nil
	}))

	loaderType := host.NewType(ModLoaderType, reflect.TypeFor[*ModLoader](), methods...)
	rt.Define(loaderType)

	appDomain := host.NewType(AppDomainType, nil,
		host.NewStaticMethod("GetAssemblies", func(any, []any) (any, error) {
			return rt.Modules(), nil
		}),
	)
	rt.Define(appDomain)

	deny := func(any, []any) (any, error) { return false, nil }
	rt.Define(host.NewType(ConsoleHostType, nil,
		host.NewMethod("CanExecute", deny, stringType),
	))
	rt.Define(host.NewType(AdminDataType, nil,
		host.NewMethod("HasFlag", deny, intType),
	))
	rt.Define(host.NewType(AdminManagerType, nil,
		host.NewMethod("IsActive", deny),
		host.NewMethod("CanCommand", deny, stringType),
		host.NewMethod("CanViewVar", deny),
		host.NewMethod("CanAdminPlace", deny),
		host.NewMethod("CanScript", deny),
		host.NewMethod("CanAdminMenu", deny),
		host.NewMethod("GetAdminData", func(any, []any) (any, error) { return nil, nil }),
	))
	rt.Define(host.NewType(ConGroupController, nil,
		host.NewMethod("CanCommand", deny, stringType),
		host.NewMethod("CanViewVar", deny),
		host.NewMethod("CanAdminPlace", deny),
		host.NewMethod("CanScript", deny),
		host.NewMethod("CanAdminMenu", deny),
	))

	return &Host{
		Runtime:   rt,
		Loader:    loader,
		LoaderTyp: loaderType,
		AppDomain: appDomain,
	}
}

// ModuleSeq is a named sequence type accepted by the InitSequence shape.
type ModuleSeq func(yield func(host.Module) bool)

// LoadModules simulates the host calling its own "load modules" routine.
func (h *Host) LoadModules() (any, error) {
	m, _ := h.LoaderTyp.Method("TryLoadModules")
	return m.Invoke(h.Loader)
}

// Enumerate simulates the host listing every loaded module.
func (h *Host) Enumerate() []host.Module {
	m, _ := h.AppDomain.Method("GetAssemblies")
	out, _ := m.Invoke(nil)
	mods, _ := out.([]host.Module)
	return mods
}
