package storage

import (
	"errors"
	"fmt"
)

// ErrInfeasiblePath signals that the current path condition is unsatisfiable. It is not a
// failure: the caller prunes the exploration branch and moves on.
var ErrInfeasiblePath = errors.New("path condition is infeasible")

// LayoutMismatchError indicates that a variable path accessor does not match the declared
// layout shape of the storage variable it is applied to. This is a modeling inconsistency and
// is fatal for the path; it is never recovered from with a guessed value.
type LayoutMismatchError struct {
	Variable string
	Detail   string
}

func (e *LayoutMismatchError) Error() string {
	return fmt.Sprintf("layout mismatch on storage variable %q: %s", e.Variable, e.Detail)
}

// PreimageWidthMismatchError indicates that a digest pre-image was constructed with a width
// that does not match the hashing schema for slot derivation. Like a layout mismatch, it
// indicates a bug in the model and is fatal for the path.
type PreimageWidthMismatchError struct {
	Width uint
}

func (e *PreimageWidthMismatchError) Error() string {
	return fmt.Sprintf("digest pre-image width %d is not a positive multiple of the %d-bit word width", e.Width, wordWidth)
}
