// Package loom is a fine-grained reactive graph runtime: mutable cells,
// lazily cached derivations and side-effecting effects connected by
// automatically tracked dependencies.
//
// Writes push staleness through the graph; values pull recomputation on
// demand. Effects form an ownership tree that supports transitive pause,
// resume and destroy, which is what conditional rendering (RenderIf) is built
// from. A Runtime is single-threaded; all its operations must come from one
// goroutine.
package loom
