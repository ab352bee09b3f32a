package timer

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnknownTimerType is returned when a charge type is not one of the
	// recognized values. This is a caller/data bug, not a runtime condition,
	// so it is raised rather than swallowed.
	ErrUnknownTimerType = errors.New("unknown timer type")

	// ErrDuplicateTimerID is returned by stores when inserting a timer whose
	// id already exists.
	ErrDuplicateTimerID = errors.New("duplicate timer id")
)

// UnknownTypeError carries the offending type. Unwraps to ErrUnknownTimerType.
type UnknownTypeError struct {
	Type Type
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown timer type %q", string(e.Type))
}

func (e *UnknownTypeError) Unwrap() error { return ErrUnknownTimerType }
