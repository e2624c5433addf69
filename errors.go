package loom

import (
	"errors"
	"fmt"
)

// ErrUpdateDepthExceeded identifies a reactivity loop: writes performed as a
// side effect of reacting to earlier writes kept re-dirtying effects past the
// runtime's configured bound instead of converging.
var ErrUpdateDepthExceeded = errors.New("loom: update depth exceeded")

// ErrMissingContext is returned by GetContext when no effect in the active
// ownership chain provides a value for the requested key.
var ErrMissingContext = errors.New("loom: missing context")

// ErrContextType is returned by GetContext when a provided value exists but
// does not have the requested type.
var ErrContextType = errors.New("loom: context value type mismatch")

// DepthError is the value raised (via panic) when a flush exceeds the update
// depth bound. It unwraps to ErrUpdateDepthExceeded.
type DepthError struct {
	Bound int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("loom: update depth exceeded after %d passes, likely a reactive write loop", e.Bound)
}

func (e *DepthError) Unwrap() error {
	return ErrUpdateDepthExceeded
}
