/*
Package timer implements the accessorial timer state machine.

PURPOSE:
  Tracks time-based accessorial charges against a load: detention at pickup,
  demurrage at delivery, and layover for rest stops. Each timer starts in a
  free-time grace window, is promoted to billing once the window elapses, and
  is finalized by stop (charge computed) or waive (charge zeroed).

KEY CONCEPTS IN THIS FILE (types.go):
  - Type: DETENTION / DEMURRAGE / LAYOVER
  - Status: the persisted state machine (FREE_TIME -> BILLING -> STOPPED, or
    FREE_TIME/BILLING -> WAIVED)
  - Config: per-type billing parameters with overridable defaults
  - FinancialTimer: one persisted timer instance
  - Snapshot: a side-effect-free live projection of a timer

STATE MACHINE:

            Start()              [free time elapses]            Stop()
  FREE_TIME ------> (persisted) ------ sweep ------> BILLING ---------> STOPPED
      |                                                 |
      +----------------------- Waive() ----------------+--------------> WAIVED

  STOPPED and WAIVED are terminal. Status never moves backward.

STATUS DUALITY:
  The persisted status lags reality between sweep ticks: a timer whose free
  time elapsed a minute ago is still stored as FREE_TIME until the next
  promotion sweep. Snapshot therefore carries both the PersistedStatus and a
  derived EffectiveStatus so live displays are correct without a write on
  every read.

SEE ALSO:
  - engine.go: Start/Stop/Waive/Snapshot/PromoteFreeTimeTimers
  - store.go: Persistence interface
  - store/memory.go: In-memory implementation for tests
*/
package timer

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/haulline/settlement-engine/finance"
)

// =============================================================================
// TIMER TYPE
// =============================================================================

type Type string

const (
	TypeDetention Type = "DETENTION"
	TypeDemurrage Type = "DEMURRAGE"
	TypeLayover   Type = "LAYOVER"
)

func (t Type) Valid() bool {
	switch t {
	case TypeDetention, TypeDemurrage, TypeLayover:
		return true
	}
	return false
}

// =============================================================================
// TIMER STATUS
// =============================================================================

type Status string

const (
	StatusFreeTime Status = "FREE_TIME"
	StatusBilling  Status = "BILLING"
	StatusStopped  Status = "STOPPED"
	StatusWaived   Status = "WAIVED"
)

// Terminal reports whether the status accepts no further transitions
// other than the waive override.
func (s Status) Terminal() bool {
	return s == StatusStopped || s == StatusWaived
}

// Active reports whether the timer is still accruing.
func (s Status) Active() bool {
	return s == StatusFreeTime || s == StatusBilling
}

// =============================================================================
// CONFIG - Billing parameters for a timer
// =============================================================================

// Config holds the billing parameters for one timer. For LAYOVER timers,
// HourlyRate is the flat per-day rate and free time is normally zero.
type Config struct {
	FreeTimeMinutes int
	HourlyRate      decimal.Decimal
	MaxChargeHours  *decimal.Decimal // nil = uncapped
	Currency        string
}

// DefaultConfig returns the standard billing parameters for a timer type.
func DefaultConfig(t Type) (Config, error) {
	switch t {
	case TypeDetention, TypeDemurrage:
		return Config{
			FreeTimeMinutes: 120,
			HourlyRate:      decimal.NewFromInt(75),
			Currency:        finance.CurrencyUSD,
		}, nil
	case TypeLayover:
		return Config{
			FreeTimeMinutes: 0,
			HourlyRate:      decimal.NewFromInt(150), // flat per calendar day
			Currency:        finance.CurrencyUSD,
		}, nil
	default:
		return Config{}, &UnknownTypeError{Type: t}
	}
}

// merged returns base with any non-zero override applied.
func (c Config) merged(override *Config) Config {
	if override == nil {
		return c
	}
	out := c
	if override.FreeTimeMinutes > 0 {
		out.FreeTimeMinutes = override.FreeTimeMinutes
	}
	if !override.HourlyRate.IsZero() {
		out.HourlyRate = override.HourlyRate
	}
	if override.MaxChargeHours != nil {
		out.MaxChargeHours = override.MaxChargeHours
	}
	if override.Currency != "" {
		out.Currency = override.Currency
	}
	return out
}

// =============================================================================
// FINANCIAL TIMER - One persisted timer instance
// =============================================================================

// FinancialTimer is one timer instance per (load, charge type, optional
// facility). Timers are never deleted; stopped and waived timers are
// retained for settlement and audit history.
//
// Invariants:
//   - FreeTimeEndsAt is fixed at creation and never mutated
//   - Status only moves forward through the state machine
//   - TotalCharge is written exactly once, at STOPPED or WAIVED (zero)
type FinancialTimer struct {
	ID         finance.TimerID
	LoadID     finance.LoadID
	FacilityID finance.FacilityID
	Type       Type
	Status     Status

	StartedAt       time.Time
	FreeTimeMinutes int
	FreeTimeEndsAt  time.Time

	HourlyRate     decimal.Decimal
	MaxChargeHours *decimal.Decimal
	Currency       string

	BillingStartedAt *time.Time
	StoppedAt        *time.Time

	TotalMinutes    int64
	BillableMinutes int64
	TotalCharge     decimal.Decimal

	WaivedBy    string
	WaiveReason string

	CreatedAt time.Time
}

// =============================================================================
// SNAPSHOT - Live, read-only projection
// =============================================================================

// Snapshot projects a timer's live state at a point in time without mutating
// anything. EffectiveStatus is derived from the clock and may run ahead of
// PersistedStatus until the next promotion sweep.
type Snapshot struct {
	TimerID    finance.TimerID
	LoadID     finance.LoadID
	FacilityID finance.FacilityID
	Type       Type

	PersistedStatus Status
	EffectiveStatus Status

	StartedAt      time.Time
	FreeTimeEndsAt time.Time

	ElapsedMinutes           int64
	FreeTimeRemainingMinutes int64
	BillableMinutes          int64

	CurrentCharge decimal.Decimal
	Currency      string

	AsOf time.Time
}
