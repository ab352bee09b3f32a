package finance

import "github.com/google/uuid"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type LoadID string
type DriverID string
type TimerID string
type FacilityID string

// NewTimerID generates a random timer identifier.
func NewTimerID() TimerID {
	return TimerID(uuid.NewString())
}
