package loom

// condState is the tri-state last-seen condition of a branch site. unset
// means the controller has not evaluated yet, so the first evaluation always
// builds the taken side.
type condState uint8

const (
	condUnset condState = iota
	condTrue
	condFalse
)

// Branch is the controller of one conditional site. It owns a controlling
// effect that tracks the condition and two lazily built branch subtrees.
//
// Transitions pause the leaving subtree and resume (or build, on first entry)
// the entering one. Pausing instead of destroying keeps the dormant subtree's
// dependency edges and local state alive, so flipping back restores it
// without rebuilding and re-runs only the members whose dependencies changed
// while dormant. At most one side is unpaused at any time. Both subtrees are
// destroyed together with the controller.
type Branch struct {
	rt     *Runtime
	anchor *Anchor
	cond   func() bool

	// build holds the consequent and alternate builders; built the
	// corresponding subtree roots once constructed. alternate may be nil.
	build [2]Builder
	built [2]*Effect

	last condState
	ctrl *Effect
}

// RenderIf installs a conditional site under the innermost active effect.
// cond is evaluated under the controller's tracker, so only the values cond
// reads can re-run the controller; nothing the branch bodies read can.
// alternate may be nil for an if without an else.
func RenderIf(rt *Runtime, anchor *Anchor, cond func() bool, consequent, alternate Builder) *Branch {
	b := &Branch{
		rt:     rt,
		anchor: anchor,
		cond:   cond,
		build:  [2]Builder{consequent, alternate},
	}
	b.ctrl = NewEffect(rt, KindRender|KindBranch, b.sync)
	return b
}

// sync is the controlling effect body: re-evaluate the condition and reshape
// the site when its truthiness changed.
func (b *Branch) sync() error {
	next := condFalse
	if b.cond() {
		next = condTrue
	}
	if next == b.last {
		return nil
	}
	b.last = next

	enter, leave := 0, 1
	if next == condFalse {
		enter, leave = 1, 0
	}

	if fx := b.built[leave]; fx != nil {
		fx.Pause()
	}
	if fx := b.built[enter]; fx != nil {
		fx.Resume()
		return nil
	}
	if b.build[enter] != nil {
		b.built[enter] = b.buildBranch(b.build[enter])
	}
	return nil
}

// buildBranch constructs one side as a block effect. The block runs
// synchronously under its own tracker, which masks the controller's tracking:
// reads made by the branch body belong to the body's effects, never to the
// controller.
func (b *Branch) buildBranch(build Builder) *Effect {
	return NewEffect(b.rt, KindBlock, func() error {
		return build(b.anchor)
	})
}

// Controller returns the controlling effect of the site.
func (b *Branch) Controller() *Effect {
	return b.ctrl
}

// Consequent returns the true-side subtree root, nil while never taken.
func (b *Branch) Consequent() *Effect {
	return b.built[0]
}

// Alternate returns the false-side subtree root, nil while never taken.
func (b *Branch) Alternate() *Effect {
	return b.built[1]
}

// Destroy tears down the controller and both subtrees.
func (b *Branch) Destroy() {
	b.ctrl.Destroy()
	b.built[0], b.built[1] = nil, nil
}
