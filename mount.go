package loom

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Anchor is the attachment point a component renders into. The runtime never
// interprets Target; hosts put whatever their output layer needs there (a DOM
// handle, a buffer, a test recorder).
type Anchor struct {
	Target any
}

// Builder constructs content under an anchor. It runs inside an effect, so
// anything reactive it allocates is owned by that effect.
type Builder func(a *Anchor) error

// ComponentFactory is a mountable component: it receives the anchor and the
// mount-time props and builds the component's effect subtree.
type ComponentFactory func(a *Anchor, props map[string]any) error

// MountOptions configures a Mount call.
type MountOptions struct {
	// Target becomes the root anchor's Target.
	Target any
	// Props are handed to the factory verbatim.
	Props map[string]any
	// Context values become visible to GetContext in the whole mounted
	// subtree. The map is installed on the root effect before the factory
	// runs and is immutable afterwards.
	Context map[string]any
}

// MountHandle refers to a mounted component instance.
type MountHandle struct {
	rt     *Runtime
	root   *Effect
	anchor *Anchor
}

// Mount instantiates a component: it creates a root effect, installs the
// provided context on it, and runs the factory once, untracked, with the root
// as owner. The factory never re-runs; dynamic parts are the effects it
// creates. A factory error aborts the mount and destroys everything it built.
func Mount(rt *Runtime, factory ComponentFactory, opts MountOptions) (*MountHandle, error) {
	anchor := &Anchor{Target: opts.Target}

	root := rt.newEffect(KindRoot|KindRender, nil)
	if len(opts.Context) > 0 {
		root.ctxVals = make(map[uint64]any, len(opts.Context))
		for key, val := range opts.Context {
			root.ctxVals[contextSymbol(key)] = val
		}
	}

	if err := rt.withOwner(root, func() error {
		return factory(anchor, opts.Props)
	}); err != nil {
		root.Destroy()
		return nil, err
	}
	root.status = statusClean

	return &MountHandle{rt: rt, root: root, anchor: anchor}, nil
}

// Root returns the mounted subtree's root effect.
func (h *MountHandle) Root() *Effect {
	return h.root
}

// Anchor returns the root anchor the component rendered into.
func (h *MountHandle) Anchor() *Anchor {
	return h.anchor
}

// Unmount destroys the mounted subtree. Idempotent.
func (h *MountHandle) Unmount() {
	h.root.Destroy()
}

// LazyContextValue defers a context value's construction to its first lookup.
// The resolved value replaces the thunk, so construction happens at most once
// per providing effect.
type LazyContextValue func() any

// contextSymbol hashes a string context key to the uint64 the runtime keys
// provider maps by.
func contextSymbol(key string) uint64 {
	return xxhash.Sum64String(key)
}

// SetContext provides a context value on the innermost active effect, making
// it visible to GetContext in that effect's subtree. Outside any effect it is
// a no-op.
func SetContext(rt *Runtime, key string, value any) {
	e := rt.activeFx
	if e == nil || e.status == statusDestroyed {
		return
	}
	if e.ctxVals == nil {
		e.ctxVals = make(map[uint64]any, 1)
	}
	e.ctxVals[contextSymbol(key)] = value
}

// GetContext resolves a context value by walking the effect parent chain from
// the innermost active effect outward, nearest provider wins. Because a
// child's parent link is fixed at creation and outlives any teardown of
// siblings, a lookup can never observe a half-dismantled chain.
//
// Lazy values are constructed on first lookup with tracking and origin
// attribution suspended: whatever reactive nodes the thunk allocates count as
// externally supplied for every reader, so readers always register on them.
func GetContext[T any](rt *Runtime, key string) (T, error) {
	var zero T
	sym := contextSymbol(key)

	for e := rt.activeFx; e != nil; e = rt.effects[e.parent] {
		val, ok := e.ctxVals[sym]
		if !ok {
			continue
		}
		if lazy, isLazy := val.(LazyContextValue); isLazy {
			rt.withForeignOrigin(func() {
				val = lazy()
			})
			e.ctxVals[sym] = val
		}
		typed, isT := val.(T)
		if !isT {
			return zero, fmt.Errorf("%w: key %q holds %T", ErrContextType, key, val)
		}
		return typed, nil
	}
	return zero, fmt.Errorf("%w: %q", ErrMissingContext, key)
}
