// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sanabi Contributors

package visibility_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanabi/sanabi/internal/host"
	"github.com/sanabi/sanabi/internal/host/hosttest"
	"github.com/sanabi/sanabi/internal/visibility"
	"github.com/sanabi/sanabi/pkg/errutil"
)

func TestFilter_HideThenIsHidden(t *testing.T) {
	f := visibility.New()
	m := hosttest.NewModule("mod", nil)

	assert.False(t, f.IsHidden(m))
	f.Hide(m)
	assert.True(t, f.IsHidden(m))
}

func TestFilter_HideIsIdempotent(t *testing.T) {
	once := visibility.New()
	twice := visibility.New()
	m := hosttest.NewModule("mod", nil)

	once.Hide(m)
	twice.Hide(m)
	twice.Hide(m)

	assert.Equal(t, once.Hidden(), twice.Hidden())
	assert.Len(t, twice.Hidden(), 1)
}

func TestFilter_ZeroValueUsable(t *testing.T) {
	var f visibility.Filter
	m := hosttest.NewModule("mod", nil)
	f.Hide(m)
	assert.True(t, f.IsHidden(m))
}

func TestFilter_HideNilIgnored(t *testing.T) {
	f := visibility.New()
	f.Hide(nil)
	assert.Empty(t, f.Hidden())
}

type valueModule struct {
	name string
	tags []string
}

func (m valueModule) Name() string               { return m.name }
func (m valueModule) Path() string               { return "" }
func (m valueModule) Lookup(string) (any, error) { return nil, hosttest.ErrSymbolNotFound }

func TestFilter_NonComparableModuleStaysVisible(t *testing.T) {
	f := visibility.New()
	m := valueModule{name: "Sanabi.ByValue", tags: []string{"x"}}
	other := hosttest.NewModule("Content.Client", nil)

	require.NotPanics(t, func() {
		assert.False(t, f.Hide(m))
		assert.False(t, f.IsHidden(m))
	})
	assert.True(t, f.Hide(other))

	n, err := f.HideMatching([]host.Module{m}, "Sanabi.*")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, []host.Module{m}, f.Visible([]host.Module{m, other}))
	assert.Equal(t, []host.Module{other}, f.Hidden())
}

func TestFilter_VisiblePreservesOrder(t *testing.T) {
	f := visibility.New()
	a := hosttest.NewModule("a", nil)
	b := hosttest.NewModule("b", nil)
	c := hosttest.NewModule("c", nil)
	f.Hide(b)

	assert.Equal(t, []host.Module{a, c}, f.Visible([]host.Module{a, b, c}))
}

func TestFilter_HideMatching(t *testing.T) {
	f := visibility.New()
	mods := []host.Module{
		hosttest.NewModule("Sanabi.Framework", nil),
		hosttest.NewModule("Sanabi.Patches", nil),
		hosttest.NewModule("Content.Client", nil),
	}

	n, err := f.HideMatching(mods, "Sanabi.*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []host.Module{mods[2]}, f.Visible(mods))
}

func TestFilter_HideMatchingInvalidPattern(t *testing.T) {
	f := visibility.New()
	_, err := f.HideMatching(nil, "[unclosed")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_PATTERN")
	errutil.AssertErrorContext(t, err, "pattern", "[unclosed")
}

func TestFilter_Reset(t *testing.T) {
	f := visibility.New()
	m := hosttest.NewModule("mod", nil)
	f.Hide(m)
	f.Reset()
	assert.False(t, f.IsHidden(m))
	assert.Empty(t, f.Hidden())
}

func TestFilter_ConcurrentHide(t *testing.T) {
	f := visibility.New()
	m := hosttest.NewModule("mod", nil)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Hide(m)
			_ = f.IsHidden(m)
		}()
	}
	wg.Wait()

	assert.Len(t, f.Hidden(), 1)
}
