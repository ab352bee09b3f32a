/*
store.go - Persistence interface for financial timers

PURPOSE:
  Defines the interface between the timer engine and the database.
  Different implementations can use SQLite or in-memory storage.

WRITE CONTRACT:
  Timers are inserted once and then updated in place, but every update is a
  compare-and-set on status: UpdateIf writes only when the stored status is
  one of the expected values. This is what makes a stop racing the promotion
  sweep safe without locks - whichever write lands first moves the status,
  and the loser's predicate matches no row.

  There is no Delete. Terminal timers are retained for settlement and audit.

IMPLEMENTATIONS:
  - store/sqlite: production store (status predicate in the UPDATE's WHERE)
  - timer/store:  in-memory store for tests and dev

SEE ALSO:
  - engine.go: the only writer
*/
package timer

import (
	"context"
	"time"

	"github.com/haulline/settlement-engine/finance"
)

// Store handles persistence of financial timers.
type Store interface {
	// Insert persists a new timer. Returns ErrDuplicateTimerID if the id
	// already exists.
	Insert(ctx context.Context, t FinancialTimer) error

	// Get returns the timer, or (nil, nil) if it does not exist. Callers
	// routinely poll for timers that may have completed, so a missing row
	// is not an error.
	Get(ctx context.Context, id finance.TimerID) (*FinancialTimer, error)

	// UpdateIf writes t only if the stored status is one of expect.
	// Returns false (and writes nothing) when the predicate matches no row.
	UpdateIf(ctx context.Context, t FinancialTimer, expect ...Status) (bool, error)

	// ActiveByLoad returns timers for the load in FREE_TIME or BILLING,
	// ordered by StartedAt.
	ActiveByLoad(ctx context.Context, loadID finance.LoadID) ([]FinancialTimer, error)

	// ByLoad returns all timers for the load regardless of status, ordered
	// by StartedAt. Used for settlement and audit history.
	ByLoad(ctx context.Context, loadID finance.LoadID) ([]FinancialTimer, error)

	// ExpiredFreeTime returns timers persisted as FREE_TIME whose
	// FreeTimeEndsAt is at or before asOf. Used by the promotion sweep.
	ExpiredFreeTime(ctx context.Context, asOf time.Time) ([]FinancialTimer, error)
}
