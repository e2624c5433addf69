package loom

import (
	"reflect"

	mapset "github.com/deckarep/golang-set/v2"
)

// node is the type-erased graph vertex shared by cells and derivations: the
// write/read version bookkeeping and the dependent set live here, the typed
// value lives in the generic wrapper.
type node struct {
	rt *Runtime
	id uint64

	// wv is the runtime write clock at the last accepted mutation.
	wv uint64
	// rv is the tracking pass that last registered this node, a fast path to
	// skip duplicate bookkeeping within one reaction run.
	rv uint64

	// subs is the set of live reactions that read this node during their most
	// recent execution. It is snapshotted before each notification pass since
	// notification can synchronously remove members.
	subs mapset.Set[reaction]

	// origin attributes the node to the reaction whose body allocated it
	// (and that reaction's run), nil for nodes created outside any reaction
	// or under foreign-origin resolution.
	origin    reaction
	originRun uint64

	// refresh is set by derivations so dependency walks can recompute them.
	refresh func()
}

func newNode(rt *Runtime) node {
	return node{
		rt:        rt,
		id:        rt.nextID(),
		subs:      mapset.NewThreadUnsafeSet[reaction](),
		origin:    rt.origin,
		originRun: rt.originRun,
	}
}

// track registers the active reaction as a dependent of this node. Free
// reads (no active reaction) have no side effect. Registration is skipped
// when the node was already recorded in the current pass, or when the reader
// exempts the node as its own freshly originated state.
func (n *node) track() {
	rt := n.rt
	r := rt.active
	if r == nil {
		return
	}
	if n.rv == rt.pass {
		return
	}
	if r.exemptOrigin(n) {
		return
	}
	t := trackerOf(r)
	for _, d := range t.pending {
		if d == n {
			return
		}
	}
	n.rv = rt.pass
	t.pending = append(t.pending, n)
	n.subs.Add(r)
}

// notifyWrite marks every dependent stale after an accepted write: effects
// directly dirty, derivations maybe-dirty with transitive propagation.
func (n *node) notifyWrite() {
	if n.subs.Cardinality() == 0 {
		return
	}
	for _, r := range n.subs.ToSlice() {
		r.stale(true)
	}
}

// trackerOf returns the dependency tracker of a reaction. Both concrete
// reactions expose one; the indirection keeps node free of generics.
func trackerOf(r reaction) *tracker {
	switch v := r.(type) {
	case *Effect:
		return &v.track
	case derivedReaction:
		return v.depTracker()
	default:
		panic("loom: unknown reaction type")
	}
}

// derivedReaction is the non-generic face of Derived[T].
type derivedReaction interface {
	reaction
	depTracker() *tracker
	ownerEffect() *Effect
}

// Cell is a mutable, versioned reactive value holder. Reading it inside an
// active reaction registers that reaction as a dependent; writing it notifies
// dependents and triggers a synchronous flush when not batching.
type Cell[T any] struct {
	base   node
	value  T
	equals func(T, T) bool

	// alwaysNotify treats every write as a change. Used for container values
	// mutated in place, where identity-preserving writes must still notify.
	alwaysNotify bool
}

// CellOption configures a Cell or Derived at construction.
type CellOption[T any] func(*cellConfig[T])

type cellConfig[T any] struct {
	equals       func(T, T) bool
	alwaysNotify bool
}

// WithEquals overrides the equality predicate that gates notification.
func WithEquals[T any](fn func(a, b T) bool) CellOption[T] {
	return func(c *cellConfig[T]) { c.equals = fn }
}

// AlwaysNotify makes every write count as a change regardless of equality.
func AlwaysNotify[T any]() CellOption[T] {
	return func(c *cellConfig[T]) { c.alwaysNotify = true }
}

// NewCell allocates a cell holding initial.
func NewCell[T any](rt *Runtime, initial T, opts ...CellOption[T]) *Cell[T] {
	cfg := cellConfig[T]{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cell[T]{
		base:         newNode(rt),
		value:        initial,
		equals:       cfg.equals,
		alwaysNotify: cfg.alwaysNotify,
	}
}

// Value returns the current value, registering the active reaction as a
// dependent.
func (c *Cell[T]) Value() T {
	c.base.track()
	return c.value
}

// Peek returns the current value without registering a dependency.
func (c *Cell[T]) Peek() T {
	return c.value
}

// SetValue writes the cell. Writes equal to the current value under the
// cell's equality predicate are a no-op: no version bump, no notification.
func (c *Cell[T]) SetValue(value T) {
	if !c.alwaysNotify && c.eq(c.value, value) {
		return
	}
	rt := c.base.rt
	c.value = value
	rt.clock++
	c.base.wv = rt.clock
	c.base.notifyWrite()
	rt.maybeFlush()
}

// Update writes the result of fn applied to the current value.
func (c *Cell[T]) Update(fn func(T) T) {
	c.SetValue(fn(c.value))
}

// SetValueSilent replaces the value without a version bump or notification.
// Internal bookkeeping writes use this when a write must not count as a
// fresh external mutation.
func (c *Cell[T]) SetValueSilent(value T) {
	c.value = value
}

// ID returns the node's stable identifier.
func (c *Cell[T]) ID() uint64 {
	return c.base.id
}

func (c *Cell[T]) eq(a, b T) bool {
	if c.equals != nil {
		return c.equals(a, b)
	}
	return defaultEquals(a, b)
}

// defaultEquals uses == for common comparable types and falls back to
// reflect.DeepEqual for the rest.
func defaultEquals[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		return av == any(b).(int)
	case int64:
		return av == any(b).(int64)
	case uint64:
		return av == any(b).(uint64)
	case float64:
		return av == any(b).(float64)
	case string:
		return av == any(b).(string)
	case bool:
		return av == any(b).(bool)
	default:
		return reflect.DeepEqual(a, b)
	}
}
