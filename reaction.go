package loom

// status is the recomputation-need state shared by effects and derivations:
// clean = cached work valid, maybe-dirty = dependencies must be checked
// before deciding, dirty = must re-run, destroyed = inert forever.
type status uint8

const (
	statusClean status = iota
	statusMaybeDirty
	statusDirty
	statusDestroyed
)

func (s status) String() string {
	switch s {
	case statusClean:
		return "clean"
	case statusMaybeDirty:
		return "maybe-dirty"
	case statusDirty:
		return "dirty"
	case statusDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// reaction is anything that reads reactive values and can be re-executed:
// effects and derivations. At most one reaction is active per Runtime at any
// instant; nested reactions save and restore the previous one (withReaction).
type reaction interface {
	// stale notifies the reaction that a dependency changed. direct is true
	// when the written cell is an immediate dependency; propagation through
	// derivations passes false, which only forces a lazy re-validation.
	stale(direct bool)

	// exemptOrigin reports whether reads of n must skip dependency
	// registration because n is the reaction's own freshly created state.
	// Only derivations ever exempt, and only nodes their own body allocated
	// during the current run.
	exemptOrigin(n *node) bool
}

// tracker records the dependencies a reaction reads while it executes. It is
// embedded in Effect and Derived.
type tracker struct {
	// deps is the ordered list of nodes read during the last completed run.
	deps []*node
	// pending collects the nodes read by the run in progress.
	pending []*node
	// lastSeen is the runtime write clock at the end of the last run; a
	// dependency with a newer write version makes the reaction stale.
	lastSeen uint64
	// runSeq counts executions, for origin attribution of allocated nodes.
	runSeq uint64
}

// updateReaction re-runs a reaction body under the tracker and diffs the
// recorded dependencies: the reaction is unregistered from nodes it no longer
// reads, stays registered on nodes it still reads, and was registered eagerly
// on new nodes as they were read.
func (rt *Runtime) updateReaction(r reaction, t *tracker, fn func() error) error {
	t.runSeq++
	t.pending = t.pending[:0]

	err := rt.withReaction(r, t.runSeq, fn)

	for _, old := range t.deps {
		stillRead := false
		for _, next := range t.pending {
			if next == old {
				stillRead = true
				break
			}
		}
		if !stillRead {
			old.subs.Remove(r)
		}
	}
	t.deps = append(t.deps[:0], t.pending...)
	t.lastSeen = rt.clock

	return err
}

// reactionStale lazily resolves whether any recorded dependency actually
// changed since the reaction last ran. Derivation dependencies are refreshed
// first so their write versions are current; a version newer than the
// reaction's last run means stale.
func (rt *Runtime) reactionStale(t *tracker) bool {
	for _, dep := range t.deps {
		if dep.refresh != nil {
			dep.refresh()
		}
		if dep.wv > t.lastSeen {
			return true
		}
	}
	return false
}

// unlinkReaction removes r from the dependent set of every node it reads.
func unlinkReaction(r reaction, t *tracker) {
	for _, dep := range t.deps {
		dep.subs.Remove(r)
	}
	t.deps = nil
	t.pending = nil
}
