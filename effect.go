package loom

import "strings"

// EffectKind is a capability set describing what an effect is for. Kinds
// compose: a conditional block's controlling effect is render|branch.
type EffectKind uint8

const (
	// KindRender marks effects produced for render output; they run
	// synchronously at creation.
	KindRender EffectKind = 1 << iota
	// KindBranch marks the controlling effect of a conditional site.
	KindBranch
	// KindBlock marks the root effect of a built subtree (a branch body, a
	// list row).
	KindBlock
	// KindRoot marks ownership roots: their body runs once, untracked, and
	// they never re-run.
	KindRoot
)

// KindPlain is an ordinary deferred side effect with no render role.
const KindPlain EffectKind = 0

func (k EffectKind) String() string {
	if k == KindPlain {
		return "plain"
	}
	parts := make([]string, 0, 4)
	if k&KindRoot != 0 {
		parts = append(parts, "root")
	}
	if k&KindRender != 0 {
		parts = append(parts, "render")
	}
	if k&KindBranch != 0 {
		parts = append(parts, "branch")
	}
	if k&KindBlock != 0 {
		parts = append(parts, "block")
	}
	return strings.Join(parts, "|")
}

// Effect is a reaction with a side-effecting body and a position in the
// ownership tree. Ownership is strictly hierarchical: every effect has at
// most one parent and is reachable only through its parent's child list, so
// cycles are impossible by construction. Destroying an effect tears down its
// whole subtree; pausing one pauses its whole subtree while keeping every
// dependency edge alive.
type Effect struct {
	rt    *Runtime
	id    uint64
	kind  EffectKind
	fn    func() error
	track tracker

	status    status
	paused    bool
	// selfPaused marks a node paused in its own right (Pause was called on
	// it), as opposed to paused only because an ancestor is. Resuming an
	// ancestor must not wake such a node; only its own Resume does.
	selfPaused bool
	scheduled  bool

	// parent and children are arena ids; 0 means no parent (a root).
	parent   uint64
	children []uint64
	depth    int

	cleanups []func()

	// ctxVals holds context values provided at this effect, keyed by hashed
	// string symbols. Descendants resolve lookups by walking parents.
	ctxVals map[uint64]any
}

// EffectOption configures an Effect at construction.
type EffectOption func(*effectConfig)

type effectConfig struct {
	syncSet bool
	sync    bool
}

// Sync forces the effect body to run synchronously at creation.
func Sync() EffectOption {
	return func(c *effectConfig) { c.syncSet, c.sync = true, true }
}

// Deferred forces the effect to be scheduled instead of run at creation.
func Deferred() EffectOption {
	return func(c *effectConfig) { c.syncSet, c.sync = true, false }
}

// NewEffect creates an effect owned by the innermost effect active at the
// call site. Render, branch, block and root kinds run their body immediately;
// plain effects are scheduled for the next flush. Errors returned by fn go
// to the runtime's OnError handler.
func NewEffect(rt *Runtime, kind EffectKind, fn func() error, opts ...EffectOption) *Effect {
	cfg := effectConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	e := rt.newEffect(kind, fn)

	runNow := kind&(KindRender|KindBranch|KindBlock|KindRoot) != 0
	if cfg.syncSet {
		runNow = cfg.sync
	}
	rt.startEffect(e, runNow)
	return e
}

// newEffect allocates an arena node under the current ownership context
// without running it. The parent and component context are captured here, at
// creation time, and stay valid for the effect's whole life: context lookup
// follows the parent chain, so there is no teardown window during which a
// child could capture a stale context.
func (rt *Runtime) newEffect(kind EffectKind, fn func() error) *Effect {
	e := &Effect{
		rt:   rt,
		id:   rt.nextID(),
		kind: kind,
		fn:   fn,
	}
	if p := rt.activeFx; p != nil {
		e.parent = p.id
		e.depth = p.depth + 1
		e.paused = p.paused
		p.children = append(p.children, e.id)
	}
	rt.effects[e.id] = e
	return e
}

// startEffect performs the initial run-or-schedule step of a fresh effect.
func (rt *Runtime) startEffect(e *Effect, runNow bool) {
	if !runNow {
		e.status = statusDirty
		rt.scheduleEffect(e)
		rt.maybeFlush()
		return
	}
	if e.kind&KindRoot != 0 {
		// Roots execute once with tracking off; reads inside a root body are
		// free and the root is never re-run.
		rt.raise(e, rt.withOwner(e, e.fn))
		e.status = statusClean
		return
	}
	rt.raise(e, rt.runEffect(e))
}

// runEffect re-executes an effect body under the dependency tracker,
// re-diffing its dependency edges. Cleanups registered by the previous run
// fire first.
func (rt *Runtime) runEffect(e *Effect) error {
	if e.status == statusDestroyed || e.paused {
		return nil
	}
	e.runCleanups()
	e.status = statusClean
	return rt.updateReaction(e, &e.track, e.fn)
}

// ID returns the effect's stable arena identifier.
func (e *Effect) ID() uint64 {
	return e.id
}

// Kind returns the effect's capability set.
func (e *Effect) Kind() EffectKind {
	return e.kind
}

// Parent returns the owning effect's arena id, 0 for roots.
func (e *Effect) Parent() uint64 {
	return e.parent
}

// Children returns the child ids in creation order.
func (e *Effect) Children() []uint64 {
	return append([]uint64(nil), e.children...)
}

// Paused reports whether the effect is currently paused.
func (e *Effect) Paused() bool {
	return e.paused
}

// Destroyed reports whether the effect has been destroyed.
func (e *Effect) Destroyed() bool {
	return e.status == statusDestroyed
}

// stale implements reaction. Direct cell writes dirty the effect; changes
// arriving through derivations only mark it maybe-dirty, to be re-validated
// against dependency versions at flush time. Paused effects record their
// status but are not scheduled until resumed.
func (e *Effect) stale(direct bool) {
	if e.status == statusDestroyed {
		return
	}
	if direct {
		e.status = statusDirty
	} else if e.status == statusClean {
		e.status = statusMaybeDirty
	}
	if e.paused {
		return
	}
	e.rt.scheduleEffect(e)
}

// exemptOrigin implements reaction. Effects never exempt: every reactive
// value an effect reads registers it as a dependent, independent of where or
// when the value was allocated.
func (e *Effect) exemptOrigin(*node) bool {
	return false
}

// Pause excludes the effect and its whole subtree from flushing. Dependency
// edges stay live, and staleness accumulated while paused is kept, so Resume
// can re-run exactly what actually changed.
func (e *Effect) Pause() {
	if e.status == statusDestroyed || e.selfPaused {
		return
	}
	e.selfPaused = true
	e.pause()
}

func (e *Effect) pause() {
	e.paused = true
	for _, id := range e.children {
		if c, ok := e.rt.effects[id]; ok {
			c.pause()
		}
	}
}

// Resume clears paused status on the subtree and schedules every member
// whose dependencies changed while it was paused. Descendants that were
// paused in their own right (an inner branch's dormant side) stay paused
// until their own Resume.
func (e *Effect) Resume() {
	if e.status == statusDestroyed || !e.selfPaused {
		return
	}
	e.selfPaused = false
	e.resume()
	e.rt.maybeFlush()
}

func (e *Effect) resume() {
	e.paused = false
	if e.status == statusDirty || e.status == statusMaybeDirty {
		e.rt.scheduleEffect(e)
	}
	for _, id := range e.children {
		if c, ok := e.rt.effects[id]; ok && !c.selfPaused {
			c.resume()
		}
	}
}

// Destroy tears the effect down: children are destroyed in reverse creation
// order, cleanups run innermost-first, every dependency edge is unlinked and
// the effect leaves its parent's child list and the arena. Destroying twice
// is a no-op.
func (e *Effect) Destroy() {
	if e.status == statusDestroyed {
		return
	}
	e.status = statusDestroyed

	// detach the child list first; each child's own Destroy tries to unlink
	// itself from this list and must find nothing to do
	children := e.children
	e.children = nil
	for i := len(children) - 1; i >= 0; i-- {
		if c, ok := e.rt.effects[children[i]]; ok {
			c.Destroy()
		}
	}

	e.runCleanups()
	unlinkReaction(e, &e.track)

	if p, ok := e.rt.effects[e.parent]; ok {
		p.removeChild(e.id)
	}
	delete(e.rt.effects, e.id)
	e.scheduled = false
	e.ctxVals = nil
}

func (e *Effect) removeChild(id uint64) {
	for i, c := range e.children {
		if c == id {
			e.children = append(e.children[:i], e.children[i+1:]...)
			return
		}
	}
}

// runCleanups fires registered teardown callbacks in reverse registration
// order and clears them.
func (e *Effect) runCleanups() {
	for i := len(e.cleanups) - 1; i >= 0; i-- {
		e.cleanups[i]()
	}
	e.cleanups = e.cleanups[:0]
}

// OnCleanup registers a teardown callback on the innermost active effect. It
// runs before the effect's next re-execution and at destroy. Without an
// active effect the callback is dropped.
func OnCleanup(rt *Runtime, fn func()) {
	if e := rt.activeFx; e != nil && e.status != statusDestroyed {
		e.cleanups = append(e.cleanups, fn)
	}
}
