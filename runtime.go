package loom

import (
	"fmt"
	"sort"
)

const defaultMaxUpdateDepth = 100

// OnErrorFunc receives errors returned by effect bodies. The effect that
// produced the error is passed alongside it; from is nil when the error did
// not originate in a specific effect.
type OnErrorFunc func(from *Effect, err error)

// Runtime owns one reactive graph: every cell, derivation and effect belongs
// to exactly one Runtime. All operations on a Runtime are single-threaded and
// cooperative; "scheduling" an effect defers it to the current (or next)
// flush on the same logical thread, never to another goroutine.
type Runtime struct {
	// clock is the global write version, bumped on every accepted cell write.
	clock uint64
	// passSeq / pass identify the current tracking pass, used to avoid
	// redundant dependency bookkeeping while one reaction body executes.
	passSeq uint64
	pass    uint64

	// active is the reaction currently collecting dependencies, nil when
	// reads are free. activeFx is the innermost effect, used for ownership
	// and context lookup; it can differ from active while a derivation
	// recomputes inside an effect.
	active   reaction
	activeFx *Effect

	// origin/originRun attribute freshly allocated nodes to the reaction
	// whose body allocated them, for the self-origination read exemption.
	origin    reaction
	originRun uint64

	pauseStack []reaction

	// effects is the arena of live effect nodes addressed by stable ids.
	effects map[uint64]*Effect

	queue      []*Effect
	flushing   bool
	batchDepth int

	maxDepth int
	onError  OnErrorFunc
	idSeq    uint64
}

// RuntimeOption configures a Runtime at construction.
type RuntimeOption func(*Runtime)

// WithOnError installs the handler for errors returned by effect bodies.
// Without a handler such errors panic out of the write or flush that
// triggered them.
func WithOnError(fn OnErrorFunc) RuntimeOption {
	return func(rt *Runtime) { rt.onError = fn }
}

// WithMaxUpdateDepth bounds how many flush passes a single update may take
// before the runtime raises ErrUpdateDepthExceeded.
func WithMaxUpdateDepth(n int) RuntimeOption {
	return func(rt *Runtime) {
		if n > 0 {
			rt.maxDepth = n
		}
	}
}

// NewRuntime creates an empty reactive runtime.
func NewRuntime(opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		effects:  map[uint64]*Effect{},
		maxDepth: defaultMaxUpdateDepth,
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

func (rt *Runtime) nextID() uint64 {
	rt.idSeq++
	return rt.idSeq
}

// withReaction runs fn with r as the active reaction, restoring the previous
// active reaction, tracking pass and origin attribution on every exit path.
// This is the sole integration point between executing a reaction body and
// recording reads.
func (rt *Runtime) withReaction(r reaction, runSeq uint64, fn func() error) error {
	prevActive, prevFx, prevPass := rt.active, rt.activeFx, rt.pass
	prevOrigin, prevOriginRun := rt.origin, rt.originRun
	defer func() {
		rt.active, rt.activeFx, rt.pass = prevActive, prevFx, prevPass
		rt.origin, rt.originRun = prevOrigin, prevOriginRun
	}()

	rt.active = r
	switch v := r.(type) {
	case *Effect:
		rt.activeFx = v
	case derivedReaction:
		// Context resolves against the derivation's creating effect, not
		// against whichever effect happened to trigger the recomputation.
		rt.activeFx = v.ownerEffect()
	}
	rt.passSeq++
	rt.pass = rt.passSeq
	rt.origin, rt.originRun = r, runSeq

	return fn()
}

// withOwner runs fn with ownership (and context lookup) rooted at e but with
// dependency tracking off. Roots use this: their bodies are executed once and
// never re-run, so reads inside them must not register dependencies.
func (rt *Runtime) withOwner(e *Effect, fn func() error) error {
	prevActive, prevFx := rt.active, rt.activeFx
	prevOrigin, prevOriginRun := rt.origin, rt.originRun
	defer func() {
		rt.active, rt.activeFx = prevActive, prevFx
		rt.origin, rt.originRun = prevOrigin, prevOriginRun
	}()

	rt.active = nil
	rt.activeFx = e
	rt.origin, rt.originRun = nil, 0

	return fn()
}

// withForeignOrigin runs fn untracked and with origin attribution suspended.
// Nodes allocated inside fn belong to no reaction, so reads of them are never
// exempt from dependency registration. Context providers resolve under this,
// which keeps lazily instantiated context cells externally-supplied values.
func (rt *Runtime) withForeignOrigin(fn func()) {
	prevActive := rt.active
	prevOrigin, prevOriginRun := rt.origin, rt.originRun
	defer func() {
		rt.active = prevActive
		rt.origin, rt.originRun = prevOrigin, prevOriginRun
	}()

	rt.active = nil
	rt.origin, rt.originRun = nil, 0
	fn()
}

// Untrack runs fn with no active reaction, so reads inside it never register
// dependencies.
func (rt *Runtime) Untrack(fn func()) {
	rt.pauseStack = append(rt.pauseStack, rt.active)
	rt.active = nil
	defer func() {
		last := len(rt.pauseStack) - 1
		rt.active = rt.pauseStack[last]
		rt.pauseStack = rt.pauseStack[:last]
	}()
	fn()
}

// UntrackValue is Untrack for reads that produce a value.
func UntrackValue[T any](rt *Runtime, fn func() T) T {
	var t T
	rt.Untrack(func() { t = fn() })
	return t
}

// StartBatch suspends synchronous flushing until the matching EndBatch.
func (rt *Runtime) StartBatch() {
	rt.batchDepth++
}

// EndBatch closes one batch level and flushes when the outermost batch ends.
func (rt *Runtime) EndBatch() {
	rt.batchDepth--
	if rt.batchDepth == 0 {
		rt.Flush()
	}
}

// Batch runs fn with notifications deferred, then flushes once. Writing the
// same cells repeatedly inside fn re-runs their dependents once, not once per
// write.
func (rt *Runtime) Batch(fn func()) {
	rt.StartBatch()
	defer rt.EndBatch()
	fn()
}

// scheduleEffect enqueues e for the next flush pass. Idempotent.
func (rt *Runtime) scheduleEffect(e *Effect) {
	if e.scheduled || e.status == statusDestroyed {
		return
	}
	e.scheduled = true
	rt.queue = append(rt.queue, e)
}

// maybeFlush flushes unless a batch or a flush is already in progress; in
// either of those cases the pending queue is drained by the enclosing pass.
func (rt *Runtime) maybeFlush() {
	if rt.batchDepth > 0 || rt.flushing {
		return
	}
	rt.Flush()
}

// Flush runs pending dirty effects to quiescence. Within each pass effects
// execute ancestors-first so a parent's structural changes are visible before
// its descendants run. Effects scheduled during the flush (including by
// reentrant writes) are processed in the same call, bounded by the update
// depth guard.
func (rt *Runtime) Flush() {
	if rt.flushing || rt.batchDepth > 0 {
		return
	}
	rt.flushing = true
	defer func() { rt.flushing = false }()

	depth := 0
	for len(rt.queue) > 0 {
		depth++
		if depth > rt.maxDepth {
			rt.queue = nil
			panic(&DepthError{Bound: rt.maxDepth})
		}

		batch := rt.queue
		rt.queue = nil
		sort.SliceStable(batch, func(i, j int) bool {
			return batch[i].depth < batch[j].depth
		})

		for _, e := range batch {
			e.scheduled = false
			if e.status == statusDestroyed || e.paused {
				// Paused effects keep their dirty status; Resume reschedules
				// them. Destroyed effects were cancelled.
				continue
			}
			switch e.status {
			case statusDirty:
				rt.raise(e, rt.runEffect(e))
			case statusMaybeDirty:
				if rt.reactionStale(&e.track) {
					rt.raise(e, rt.runEffect(e))
				} else {
					e.status = statusClean
				}
			}
		}
	}
}

// raise reports an effect body error through the runtime's handler, or
// panics when no handler is installed. Errors are never swallowed.
func (rt *Runtime) raise(from *Effect, err error) {
	if err == nil {
		return
	}
	if rt.onError != nil {
		rt.onError(from, err)
		return
	}
	panic(fmt.Errorf("loom: unhandled effect error: %w", err))
}
