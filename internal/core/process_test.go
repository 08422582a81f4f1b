// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package core_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/onsi/gomega/gbytes"

	"github.com/sanabi/sanabi/internal/config"
	"github.com/sanabi/sanabi/internal/core"
	"github.com/sanabi/sanabi/internal/host"
	"github.com/sanabi/sanabi/internal/host/hosttest"
	"github.com/sanabi/sanabi/internal/loader"
	"github.com/sanabi/sanabi/internal/runlevel"
	"github.com/sanabi/sanabi/pkg/pluginsdk"
)

// plugin is what the fake opener hands out for a file in the mods dir.
type plugin struct {
	entered atomic.Int32
	log     pluginsdk.LogFunc
}

func (p *plugin) module(name string) host.Module {
	return hosttest.NewModule(name, map[string]any{
		pluginsdk.LogForwardSymbol: &p.log,
		pluginsdk.PatchEntrySymbol: func() {
			p.entered.Add(1)
			p.log("hello from " + name)
		},
	})
}

func names(mods []host.Module) []string {
	out := make([]string, 0, len(mods))
	for _, m := range mods {
		out = append(out, m.Name())
	}
	return out
}

func permission(h *hosttest.Host, typeName, method string) any {
	typ, ok := h.Runtime.Type(typeName)
	Expect(ok).To(BeTrue())
	m, ok := typ.Method(method)
	Expect(ok).To(BeTrue())
	out, err := m.Invoke(struct{}{})
	Expect(err).NotTo(HaveOccurred())
	return out
}

var _ = Describe("Process", func() {
	var (
		ctx     context.Context
		h       *hosttest.Host
		cfg     config.Config
		logs    *gbytes.Buffer
		plugins map[string]*plugin
		opener  loader.Opener
	)

	BeforeEach(func() {
		ctx = context.Background()
		h = hosttest.New(hosttest.InitSlice)
		h.Runtime.AddModule(hosttest.NewModule("Content.Client", nil))
		logs = gbytes.NewBuffer()

		dir := GinkgoT().TempDir()
		plugins = map[string]*plugin{}
		for _, name := range []string{"alpha", "beta"} {
			plugins[name] = &plugin{}
			Expect(os.WriteFile(filepath.Join(dir, name+".so"), nil, 0o600)).To(Succeed())
		}
		opener = loader.OpenerFunc(func(path string) (host.Module, error) {
			name := strings.TrimSuffix(filepath.Base(path), ".so")
			p, ok := plugins[name]
			if !ok {
				return nil, errors.New("not a plugin")
			}
			return p.module(name), nil
		})

		cfg = config.Default()
		cfg.PatchingEnabled = true
		cfg.PatchingLevel = true
		cfg.LoadExternalMods = true
		cfg.LoadInternalMods = true
		cfg.ModsDir = dir
	})

	newProcess := func(opts ...core.Option) *core.Process {
		logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
		p, err := core.NewProcess(cfg, h.Runtime, append([]core.Option{
			core.WithOpener(opener),
			core.WithLogger(logger),
		}, opts...)...)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			cctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = p.Close(cctx)
		})
		return p
	}

	Describe("full lifecycle", func() {
		It("loads, hides and enters plugins, then overrides permissions", func() {
			p := newProcess()
			Expect(p.State()).To(Equal(core.Unstarted))
			Expect(p.Ready()).To(BeFalse())

			Expect(p.Start(ctx)).To(Succeed())
			Expect(p.State()).To(Equal(core.EngineLoaded))
			Expect(p.Ready()).To(BeTrue())
			Expect(p.Loader().Pending()).To(Equal(2))

			_, err := h.LoadModules()
			Expect(err).NotTo(HaveOccurred())
			Expect(p.State()).To(Equal(core.ModulesLoaded))
			Expect(names(h.Loader.Initialized())).To(Equal([]string{"beta", "alpha"}))
			Expect(names(h.Enumerate())).To(Equal([]string{"Content.Client"}))

			Eventually(func() int32 { return plugins["alpha"].entered.Load() }).Should(Equal(int32(1)))
			Eventually(func() int32 { return plugins["beta"].entered.Load() }).Should(Equal(int32(1)))
			Eventually(logs).Should(gbytes.Say(`hello from`))

			Expect(permission(h, hosttest.AdminManagerType, "CanScript")).To(Equal(false))
			Expect(p.ContentLoaded(ctx)).To(Succeed())
			Expect(p.State()).To(Equal(core.ContentLoaded))
			Expect(permission(h, hosttest.AdminManagerType, "CanScript")).To(Equal(true))
		})

		It("reaches content without a module drain", func() {
			p := newProcess()
			Expect(p.Start(ctx)).To(Succeed())
			Expect(p.ContentLoaded(ctx)).To(Succeed())
			Expect(p.State()).To(Equal(core.ContentLoaded))
		})

		It("publishes each transition", func() {
			p := newProcess()
			ch := p.Lifecycle().Subscribe()

			Expect(p.Start(ctx)).To(Succeed())
			_, err := h.LoadModules()
			Expect(err).NotTo(HaveOccurred())
			Expect(p.ContentLoaded(ctx)).To(Succeed())

			var seen []core.State
			for range 4 {
				seen = append(seen, (<-ch).To)
			}
			Expect(seen).To(Equal([]core.State{core.EngineLoaded, core.ModulesDraining, core.ModulesLoaded, core.ContentLoaded}))
		})

		It("unhides modules on close", func() {
			p := newProcess()
			Expect(p.Start(ctx)).To(Succeed())
			_, err := h.LoadModules()
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Hidden().Hidden()).To(HaveLen(2))

			Expect(p.Close(ctx)).To(Succeed())
			Expect(p.Hidden().Hidden()).To(BeEmpty())
			Expect(h.Enumerate()).To(HaveLen(3))
		})
	})

	Describe("ordering", func() {
		It("rejects a second start", func() {
			p := newProcess()
			Expect(p.Start(ctx)).To(Succeed())
			Expect(p.Start(ctx)).To(MatchError(core.ErrInvalidTransition))
		})

		It("rejects content before engine", func() {
			p := newProcess()
			Expect(p.ContentLoaded(ctx)).To(MatchError(core.ErrInvalidTransition))
			Expect(p.State()).To(Equal(core.Unstarted))
		})
	})

	Describe("failures", func() {
		It("moves to Failed when a content patch cannot resolve its type", func() {
			cfg.Targets.Permissions = []config.Target{{Type: "Content.Renamed.AdminManager", Method: "Can*"}}
			p := newProcess()

			Expect(p.Start(ctx)).To(Succeed())
			err := p.ContentLoaded(ctx)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("Content.Renamed.AdminManager"))
			Expect(p.State()).To(Equal(core.Failed))
			Expect(p.Ready()).To(BeFalse())

			Expect(p.ContentLoaded(ctx)).To(MatchError(core.ErrInvalidTransition))
		})

		It("moves to Failed when an engine entry fails", func() {
			p := newProcess(core.WithEntries(runlevel.Entry{
				Name:  "broken",
				Level: runlevel.Engine,
				Run:   func(context.Context) error { return errors.New("boom") },
			}))

			Expect(p.Start(ctx)).To(MatchError(ContainSubstring("boom")))
			Expect(p.State()).To(Equal(core.Failed))
		})

		It("keeps going when a plugin entry point panics", func() {
			plugins["alpha"] = &plugin{}
			opener = loader.OpenerFunc(func(path string) (host.Module, error) {
				name := strings.TrimSuffix(filepath.Base(path), ".so")
				if name == "alpha" {
					return hosttest.NewModule(name, map[string]any{
						pluginsdk.PatchEntrySymbol: func() { panic("plugin bug") },
					}), nil
				}
				return plugins[name].module(name), nil
			})
			p := newProcess()

			Expect(p.Start(ctx)).To(Succeed())
			_, err := h.LoadModules()
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Close(ctx)).To(Succeed())

			Expect(p.Tasks().Failures()).To(HaveLen(1))
			Expect(p.Tasks().Failures()[0].Name).To(Equal("alpha"))
			Expect(plugins["beta"].entered.Load()).To(Equal(int32(1)))
		})
	})

	Describe("configuration gates", func() {
		It("does nothing when patching is disabled", func() {
			cfg.PatchingEnabled = false
			p := newProcess()

			Expect(p.Start(ctx)).To(Succeed())
			Expect(p.State()).To(Equal(core.EngineLoaded))
			_, err := h.LoadModules()
			Expect(err).NotTo(HaveOccurred())

			Expect(h.Loader.Initialized()).To(BeEmpty())
			Expect(p.State()).To(Equal(core.EngineLoaded))
			Expect(p.ContentLoaded(ctx)).To(Succeed())
			Expect(permission(h, hosttest.ConsoleHostType, "CanExecute")).To(Equal(false))
		})

		It("skips content patches at engine-only level", func() {
			cfg.PatchingLevel = false
			p := newProcess()

			Expect(p.Start(ctx)).To(Succeed())
			Expect(p.ContentLoaded(ctx)).To(Succeed())
			Expect(permission(h, hosttest.ConsoleHostType, "CanExecute")).To(Equal(false))
		})

		It("rejects plugins whose host constraint does not match", func() {
			cfg.HostVersion = "1.0.0"
			plugins["alpha"] = &plugin{}
			opener = loader.OpenerFunc(func(path string) (host.Module, error) {
				name := strings.TrimSuffix(filepath.Base(path), ".so")
				syms := map[string]any{pluginsdk.RequiresHostSymbol: ">= 2.0.0"}
				if name == "beta" {
					syms[pluginsdk.RequiresHostSymbol] = "^1.0.0"
				}
				return hosttest.NewModule(name, syms), nil
			})
			p := newProcess()

			Expect(p.Start(ctx)).To(Succeed())
			_, err := h.LoadModules()
			Expect(err).NotTo(HaveOccurred())
			Expect(names(h.Loader.Initialized())).To(Equal([]string{"beta"}))
			Expect(logs).To(gbytes.Say("HOST_VERSION_MISMATCH"))
		})
	})

	It("requires a runtime", func() {
		_, err := core.NewProcess(config.Default(), nil)
		Expect(err).To(HaveOccurred())
	})
})
