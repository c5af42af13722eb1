package recognition

import (
	"errors"
	"fmt"
)

// ErrEngineFailure matches every error raised by the recognition engine.
var ErrEngineFailure = errors.New("recognition engine failure")

// EngineError wraps a failure of the underlying engine.
type EngineError struct {
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("recognition engine: %v", e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrEngineFailure) true for any *EngineError.
func (e *EngineError) Is(target error) bool {
	return target == ErrEngineFailure
}

// MalformedItemError describes a raw engine item that could not be turned
// into a Detection. It is logged and the item dropped; it never reaches the
// caller of Adapter.Recognize.
type MalformedItemError struct {
	Index  int
	Reason string
}

func (e *MalformedItemError) Error() string {
	return fmt.Sprintf("malformed detection item %d: %s", e.Index, e.Reason)
}
