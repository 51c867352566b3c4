package merge

import (
	"errors"
	"fmt"

	"github.com/rvckit/rvckit/internal/tensor"
)

// Common errors.
var (
	ErrNoInputs     = errors.New("no checkpoints to merge")
	ErrTooFewInputs = errors.New("merging requires at least two checkpoints")
)

// KeyMismatchError reports a checkpoint whose key set diverges from the
// first input's. Merging is all-or-nothing: a single divergent key aborts
// the merge with no output written.
type KeyMismatchError struct {
	Input   int    // Index of the divergent input (0 is the first)
	Key     string // A key illustrating the divergence
	Missing bool   // true: input lacks Key; false: input has Key the first input lacks
}

// Error implements the error interface.
func (e *KeyMismatchError) Error() string {
	if e.Missing {
		return fmt.Sprintf("key set mismatch: input %d is missing key %q", e.Input, e.Key)
	}
	return fmt.Sprintf("key set mismatch: input %d has extra key %q", e.Input, e.Key)
}

// ShapeMismatchError reports a parameter whose shape differs between
// inputs.
type ShapeMismatchError struct {
	Input int          // Index of the divergent input
	Key   string       // Parameter name
	Want  tensor.Shape // Shape in the first input
	Got   tensor.Shape // Shape in the divergent input
}

// Error implements the error interface.
func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch for %q: input %d has %s, expected %s",
		e.Key, e.Input, e.Got, e.Want)
}

// DTypeMismatchError reports a parameter whose data type differs between
// inputs.
type DTypeMismatchError struct {
	Input int             // Index of the divergent input
	Key   string          // Parameter name
	Want  tensor.DataType // Data type in the first input
	Got   tensor.DataType // Data type in the divergent input
}

// Error implements the error interface.
func (e *DTypeMismatchError) Error() string {
	return fmt.Sprintf("dtype mismatch for %q: input %d has %s, expected %s",
		e.Key, e.Input, e.Got, e.Want)
}
