package loom

// Derived is a cached, lazily recomputed value: a pure function of other
// cells and derivations. It is both a dependency (other reactions read it)
// and a reaction (it reads its own dependencies).
//
// A write to a dependency only marks a Derived maybe-dirty; the function does
// not run again until the value is actually read. On read, a maybe-dirty
// Derived walks its recorded dependencies, refreshing nested derivations, and
// recomputes only when some dependency's write version is newer than its last
// computation.
type Derived[T any] struct {
	base  node
	track tracker

	fn     func() T
	value  T
	equals func(T, T) bool

	status status
	hasRun bool
	// computing breaks read cycles: while fn executes, a re-entrant read of
	// this derivation (direct or through a mutual chain) returns the cached
	// value instead of recursing, and registers nothing.
	computing bool

	// owner is the effect whose body created the derivation, nil when created
	// outside any effect. Context lookups during recomputation resolve against
	// it, however and whenever the recomputation is triggered.
	owner *Effect

	// unowned derivations were created outside any active reaction. They
	// cannot rely on push notifications alone, so they re-validate their
	// dependencies on every read.
	unowned bool

	alwaysNotify bool
}

// NewDerived allocates a derivation over fn. fn runs lazily on first read.
func NewDerived[T any](rt *Runtime, fn func() T, opts ...CellOption[T]) *Derived[T] {
	cfg := cellConfig[T]{}
	for _, opt := range opts {
		opt(&cfg)
	}
	d := &Derived[T]{
		base:         newNode(rt),
		fn:           fn,
		equals:       cfg.equals,
		alwaysNotify: cfg.alwaysNotify,
		status:       statusDirty,
		owner:        rt.activeFx,
		unowned:      rt.active == nil,
	}
	d.base.refresh = d.refreshValue
	return d
}

// Value returns the derived value, recomputing it first when stale, and
// registers the active reaction as a dependent.
func (d *Derived[T]) Value() T {
	if d.computing {
		return d.value
	}
	d.base.track()
	d.refreshValue()
	return d.value
}

// Peek returns the cached-or-recomputed value without registering a
// dependency.
func (d *Derived[T]) Peek() T {
	d.refreshValue()
	return d.value
}

// ID returns the node's stable identifier.
func (d *Derived[T]) ID() uint64 {
	return d.base.id
}

// refreshValue resolves dirtiness lazily: clean is trusted (except for
// unowned derivations), maybe-dirty triggers a dependency walk, dirty
// recomputes.
func (d *Derived[T]) refreshValue() {
	if d.status == statusDestroyed || d.computing {
		return
	}
	rt := d.base.rt

	st := d.status
	if st == statusClean && d.unowned && d.hasRun {
		st = statusMaybeDirty
	}
	if st == statusMaybeDirty {
		if rt.reactionStale(&d.track) {
			st = statusDirty
		} else {
			st = statusClean
			d.status = statusClean
		}
	}
	if st == statusDirty {
		d.recompute()
	}
}

// recompute re-executes fn with this derivation as the active reaction,
// capturing a fresh dependency list. The write version bumps only when the
// recomputed value differs under the equality predicate, so downstream
// reactions are not re-run by recomputations that converge to the same value.
func (d *Derived[T]) recompute() {
	rt := d.base.rt
	old := d.value
	var next T
	d.computing = true
	// Derivation bodies are pure; an error here can only come from a panic,
	// which updateReaction lets propagate after unwinding the stack.
	_ = rt.updateReaction(d, &d.track, func() error {
		defer func() { d.computing = false }()
		next = d.fn()
		return nil
	})
	d.status = statusClean

	if !d.hasRun {
		d.hasRun = true
		d.value = next
		return
	}
	if d.alwaysNotify || !d.eq(old, next) {
		d.value = next
		d.base.wv = rt.clock
	}
}

// stale implements reaction. Derivations only ever go maybe-dirty from push
// notifications; actual dirtiness is decided by version comparison on read.
// The clean→maybe-dirty transition propagates upward exactly once.
func (d *Derived[T]) stale(bool) {
	if d.status != statusClean {
		return
	}
	d.status = statusMaybeDirty
	for _, r := range d.base.subs.ToSlice() {
		r.stale(false)
	}
}

// exemptOrigin implements reaction: a derivation skips registering itself as
// a dependent of nodes its own body allocated during the current run. Nodes
// supplied from outer scopes always register, wherever and whenever they were
// allocated.
func (d *Derived[T]) exemptOrigin(n *node) bool {
	return n.origin == reaction(d) && n.originRun == d.track.runSeq
}

func (d *Derived[T]) depTracker() *tracker {
	return &d.track
}

func (d *Derived[T]) ownerEffect() *Effect {
	return d.owner
}

// Destroy detaches the derivation from the graph: it unregisters from its
// dependencies and unlinks every dependent. Idempotent.
func (d *Derived[T]) Destroy() {
	if d.status == statusDestroyed {
		return
	}
	d.status = statusDestroyed
	unlinkReaction(d, &d.track)
	d.base.subs.Clear()
	d.base.refresh = nil
}

func (d *Derived[T]) eq(a, b T) bool {
	if d.equals != nil {
		return d.equals(a, b)
	}
	return defaultEquals(a, b)
}
