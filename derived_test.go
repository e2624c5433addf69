package loom_test

import (
	"fmt"
	"testing"

	"github.com/loomkit/loom"
	"github.com/stretchr/testify/assert"
)

// should not compute until first read
func TestDerivedIsLazy(t *testing.T) {
	rt := loom.NewRuntime()
	a := loom.NewCell(rt, 1)

	computes := 0
	double := loom.NewDerived(rt, func() int {
		computes++
		return a.Value() * 2
	})
	assert.Equal(t, 0, computes)

	assert.Equal(t, 2, double.Value())
	assert.Equal(t, 1, computes)

	// cached while nothing changed
	assert.Equal(t, 2, double.Value())
	assert.Equal(t, 1, computes)

	a.SetValue(3)
	assert.Equal(t, 1, computes, "write alone must not recompute")
	assert.Equal(t, 6, double.Value())
	assert.Equal(t, 2, computes)
}

// should recompute at most once per distinct upstream change (diamond)
func TestDerivedDiamondComputesOnce(t *testing.T) {
	rt := loom.NewRuntime()

	//     A
	//   /   \
	//  B     C
	//   \   /
	//     D
	a := loom.NewCell(rt, 2)
	b := loom.NewDerived(rt, func() int { return a.Value() - 1 })
	c := loom.NewDerived(rt, func() int { return a.Value() + 1 })

	dComputes := 0
	d := loom.NewDerived(rt, func() string {
		dComputes++
		return fmt.Sprintf("d: %d", b.Value()+c.Value())
	})

	assert.Equal(t, "d: 4", d.Value())
	assert.Equal(t, 1, dComputes)

	a.SetValue(4)
	assert.Equal(t, "d: 8", d.Value())
	assert.Equal(t, 2, dComputes)
	d.Value()
	assert.Equal(t, 2, dComputes)
}

// should not recompute downstream when an intermediate converges to the same
// value
func TestDerivedEqualityCutsPropagation(t *testing.T) {
	rt := loom.NewRuntime()

	// num -> parity -> render
	num := loom.NewCell(rt, 1)
	parityComputes := 0
	parity := loom.NewDerived(rt, func() string {
		parityComputes++
		if num.Value()%2 == 0 {
			return "even"
		}
		return "odd"
	})

	renders := 0
	loom.NewEffect(rt, loom.KindPlain, func() error {
		parity.Value()
		renders++
		return nil
	})
	assert.Equal(t, 1, renders)
	assert.Equal(t, 1, parityComputes)

	// 1 -> 3: parity recomputes but stays "odd", render must not re-run
	num.SetValue(3)
	assert.Equal(t, 2, parityComputes)
	assert.Equal(t, 1, renders)

	// 3 -> 2: parity flips, render re-runs once
	num.SetValue(2)
	assert.Equal(t, 3, parityComputes)
	assert.Equal(t, 2, renders)
}

// should drop a-b-a update cycles that end where they started
func TestDerivedDropsAbaUpdates(t *testing.T) {
	rt := loom.NewRuntime()

	//     A
	//   / |
	//  B  |
	//   \ |
	//     C
	a := loom.NewCell(rt, 2)
	b := loom.NewDerived(rt, func() int { return a.Value() - 1 })

	cComputes := 0
	c := loom.NewDerived(rt, func() int {
		cComputes++
		return a.Value() + b.Value()
	})

	assert.Equal(t, 3, c.Value())
	assert.Equal(t, 1, cComputes)

	a.SetValue(4)
	assert.Equal(t, 7, c.Value())
	assert.Equal(t, 2, cComputes)
}

// should follow dynamic dependencies run to run
func TestDerivedDynamicDependencies(t *testing.T) {
	rt := loom.NewRuntime()

	useFirst := loom.NewCell(rt, true)
	first := loom.NewCell(rt, "f")
	second := loom.NewCell(rt, "s")

	computes := 0
	pick := loom.NewDerived(rt, func() string {
		computes++
		if useFirst.Value() {
			return first.Value()
		}
		return second.Value()
	})

	assert.Equal(t, "f", pick.Value())
	assert.Equal(t, 1, computes)

	// second is not a dependency yet
	second.SetValue("s2")
	assert.Equal(t, "f", pick.Value())
	assert.Equal(t, 1, computes)

	useFirst.SetValue(false)
	assert.Equal(t, "s2", pick.Value())
	assert.Equal(t, 2, computes)

	// first is no longer a dependency
	first.SetValue("f2")
	assert.Equal(t, "s2", pick.Value())
	assert.Equal(t, 2, computes)
}

// should return the cached value on a re-entrant self read instead of
// recursing
func TestDerivedSelfReadReturnsCache(t *testing.T) {
	rt := loom.NewRuntime()
	a := loom.NewCell(rt, 5)

	computes := 0
	var d *loom.Derived[int]
	d = loom.NewDerived(rt, func() int {
		computes++
		return d.Value() + a.Value()
	})

	assert.Equal(t, 5, d.Value(), "self read sees the cached zero value")
	assert.Equal(t, 1, computes)

	// the self read must not have created a self edge
	a.SetValue(6)
	assert.Equal(t, 11, d.Value())
	assert.Equal(t, 2, computes)
}

// should terminate mutually recursive derivations
func TestDerivedMutualReadsTerminate(t *testing.T) {
	rt := loom.NewRuntime()

	var d1, d2 *loom.Derived[int]
	d1 = loom.NewDerived(rt, func() int { return d2.Value() + 1 })
	d2 = loom.NewDerived(rt, func() int { return d1.Value() + 1 })

	// d1 -> d2 -> d1 bottoms out at d1's cached zero
	assert.Equal(t, 2, d1.Value())
	assert.Equal(t, 1, d2.Value())
}

// should stop reacting after Destroy
func TestDerivedDestroy(t *testing.T) {
	rt := loom.NewRuntime()
	a := loom.NewCell(rt, 1)

	computes := 0
	d := loom.NewDerived(rt, func() int {
		computes++
		return a.Value()
	})
	assert.Equal(t, 1, d.Value())

	d.Destroy()
	d.Destroy() // idempotent

	a.SetValue(2)
	assert.Equal(t, 1, computes)
}

// should refresh nested derivation chains on demand only
func TestDerivedChainLazyRefresh(t *testing.T) {
	rt := loom.NewRuntime()
	src := loom.NewCell(rt, 1)

	computes := [3]int{}
	d0 := loom.NewDerived(rt, func() int { computes[0]++; return src.Value() + 1 })
	d1 := loom.NewDerived(rt, func() int { computes[1]++; return d0.Value() + 1 })
	d2 := loom.NewDerived(rt, func() int { computes[2]++; return d1.Value() + 1 })

	assert.Equal(t, 4, d2.Value())
	assert.Equal(t, [3]int{1, 1, 1}, computes)

	src.SetValue(10)
	assert.Equal(t, [3]int{1, 1, 1}, computes, "writes must stay push-only")

	assert.Equal(t, 13, d2.Value())
	assert.Equal(t, [3]int{2, 2, 2}, computes)
}
