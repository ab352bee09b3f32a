package payroll

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnknownPayStructure is returned when a profile's pay structure is
	// not a recognized value. Raised, never swallowed: a silent zero-pay
	// result would be a financial correctness defect.
	ErrUnknownPayStructure = errors.New("unknown pay structure")

	// ErrEmptySettlement is returned when assembling with no loads unless
	// the caller explicitly requested an empty settlement.
	ErrEmptySettlement = errors.New("settlement has no loads")

	// ErrSettlementNotFound is returned by stores for a missing settlement id.
	ErrSettlementNotFound = errors.New("settlement not found")

	// ErrIllegalStatusTransition is returned when the approval/payment
	// workflow requests a transition the status machine does not allow.
	ErrIllegalStatusTransition = errors.New("illegal settlement status transition")
)

// UnknownPayStructureError carries the offending structure.
// Unwraps to ErrUnknownPayStructure.
type UnknownPayStructureError struct {
	Structure PayStructure
}

func (e *UnknownPayStructureError) Error() string {
	return fmt.Sprintf("unknown pay structure %q", string(e.Structure))
}

func (e *UnknownPayStructureError) Unwrap() error { return ErrUnknownPayStructure }
