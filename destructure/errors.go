package destructure

import (
	"errors"
	"fmt"
)

var (
	// ErrMaxDepth is matched by every *DepthError.
	ErrMaxDepth = errors.New("max recursion depth exceeded")

	// ErrNotObject is returned when a document's top level is not an object.
	ErrNotObject = errors.New("destructure: document is not a JSON object")
)

// DepthError reports that a document nests deeper than the engine allows.
type DepthError struct {
	Limit int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("%s: %d", ErrMaxDepth, e.Limit)
}

func (e *DepthError) Unwrap() error { return ErrMaxDepth }
