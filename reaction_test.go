package loom_test

import (
	"testing"

	"github.com/loomkit/loom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// should register a reaction on every value it reads but did not create in
// the current run
func TestTrackingRegistersForeignReads(t *testing.T) {
	rt := loom.NewRuntime()
	outer := loom.NewCell(rt, 1)

	runs := 0
	loom.NewEffect(rt, loom.KindPlain, func() error {
		outer.Value()
		runs++
		return nil
	})
	assert.Equal(t, 1, runs)

	outer.SetValue(2)
	assert.Equal(t, 2, runs)
}

// should register an effect even on cells its own body created
func TestEffectTracksOwnCell(t *testing.T) {
	rt := loom.NewRuntime()

	var inner *loom.Cell[int]
	runs := 0
	loom.NewEffect(rt, loom.KindPlain, func() error {
		if inner == nil {
			inner = loom.NewCell(rt, 0)
		}
		inner.Value()
		runs++
		return nil
	})
	require.NotNil(t, inner)
	assert.Equal(t, 1, runs)

	inner.SetValue(1)
	assert.Equal(t, 2, runs, "self-created state never exempts effects")
}

// should exempt a derivation from depending on nodes its own run allocated
func TestDerivedSkipsOwnFreshNodes(t *testing.T) {
	rt := loom.NewRuntime()
	trigger := loom.NewCell(rt, 0)

	var scratch *loom.Cell[int]
	computes := 0
	d := loom.NewDerived(rt, func() int {
		computes++
		trigger.Value()
		scratch = loom.NewCell(rt, computes)
		return scratch.Value() // own fresh node, must not register
	})

	assert.Equal(t, 1, d.Value())
	first := scratch

	// writing the scratch cell from outside must not dirty the derivation
	first.SetValue(99)
	assert.Equal(t, 1, d.Value())
	assert.Equal(t, 1, computes)

	trigger.SetValue(1)
	assert.Equal(t, 2, d.Value())
	assert.Equal(t, 2, computes)
}

// should keep the exemption scoped to the run that allocated the node
func TestExemptionDoesNotOutliveTheRun(t *testing.T) {
	rt := loom.NewRuntime()
	trigger := loom.NewCell(rt, 0)

	// kept holds a cell allocated by run 1 and read again by later runs; from
	// run 2 on it is pre-existing state and must register.
	var kept *loom.Cell[int]
	computes := 0
	d := loom.NewDerived(rt, func() int {
		computes++
		trigger.Value()
		if kept == nil {
			kept = loom.NewCell(rt, 10)
		}
		return kept.Value()
	})

	assert.Equal(t, 10, d.Value())
	assert.Equal(t, 1, computes)

	kept.SetValue(20)
	assert.Equal(t, 10, d.Value(), "run 1 created it, run 1 is exempt")
	assert.Equal(t, 1, computes)

	trigger.SetValue(1)
	assert.Equal(t, 20, d.Value())
	assert.Equal(t, 2, computes)

	// now kept predates the latest run, so it is a real dependency
	kept.SetValue(30)
	assert.Equal(t, 30, d.Value())
	assert.Equal(t, 3, computes)
}

// should not register reads made inside Untrack
func TestUntrack(t *testing.T) {
	rt := loom.NewRuntime()
	a := loom.NewCell(rt, 1)
	b := loom.NewCell(rt, 1)

	runs := 0
	got := 0
	loom.NewEffect(rt, loom.KindPlain, func() error {
		a.Value()
		rt.Untrack(func() {
			got = b.Value()
		})
		runs++
		return nil
	})
	assert.Equal(t, 1, runs)
	assert.Equal(t, 1, got)

	b.SetValue(5)
	assert.Equal(t, 1, runs)

	a.SetValue(2)
	assert.Equal(t, 2, runs)
	assert.Equal(t, 5, got, "untracked reads still see current values")
}

// should restore tracking after nested Untrack scopes
func TestUntrackNests(t *testing.T) {
	rt := loom.NewRuntime()
	a := loom.NewCell(rt, 1)
	b := loom.NewCell(rt, 1)
	c := loom.NewCell(rt, 1)

	runs := 0
	loom.NewEffect(rt, loom.KindPlain, func() error {
		runs++
		rt.Untrack(func() {
			b.Value()
			rt.Untrack(func() {
				c.Value()
			})
			b.Value()
		})
		a.Value() // tracked again after both scopes unwind
		return nil
	})
	assert.Equal(t, 1, runs)

	b.SetValue(2)
	c.SetValue(2)
	assert.Equal(t, 1, runs)

	a.SetValue(2)
	assert.Equal(t, 2, runs)
}

// should return the untracked value from UntrackValue
func TestUntrackValue(t *testing.T) {
	rt := loom.NewRuntime()
	a := loom.NewCell(rt, 42)

	runs := 0
	got := 0
	loom.NewEffect(rt, loom.KindPlain, func() error {
		runs++
		got = loom.UntrackValue(rt, func() int {
			return a.Value()
		})
		return nil
	})
	assert.Equal(t, 42, got)

	a.SetValue(7)
	assert.Equal(t, 1, runs)
}

// should drop dependencies a reaction stopped reading
func TestDependencyDiffUnsubscribes(t *testing.T) {
	rt := loom.NewRuntime()
	gate := loom.NewCell(rt, true)
	noisy := loom.NewCell(rt, 0)

	runs := 0
	loom.NewEffect(rt, loom.KindPlain, func() error {
		runs++
		if gate.Value() {
			noisy.Value()
		}
		return nil
	})
	assert.Equal(t, 1, runs)

	noisy.SetValue(1)
	assert.Equal(t, 2, runs)

	gate.SetValue(false)
	assert.Equal(t, 3, runs)

	// noisy was dropped by the last run
	noisy.SetValue(2)
	assert.Equal(t, 3, runs)
}
