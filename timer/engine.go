/*
engine.go - The accessorial timer engine

PURPOSE:
  Owns the detention/demurrage/layover state machine: start, stop, waive,
  live snapshots, and the periodic free-time promotion sweep.

CHARGE FORMULAS (applied identically by Stop and Snapshot):
  DETENTION/DEMURRAGE:
    billableMinutes = max(0, now - freeTimeEndsAt)
    charge = billableMinutes / 60 * hourlyRate, clamped to
             maxChargeHours * hourlyRate when a cap is configured
  LAYOVER:
    charge = ceil(totalMinutes / 1440) * dailyRate
    A partial day of waiting still costs a full day.

  Rounding to cents happens once, at the end - never on intermediate
  minute/hour conversions.

CONCURRENCY:
  Every mutation is a compare-and-set on status (see store.go). Two racing
  Stop calls, or a Stop racing the promotion sweep, resolve without locks:
  exactly one write's status predicate matches.
*/
package timer

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/haulline/settlement-engine/finance"
)

const minutesPerDay = 24 * 60

var sixty = decimal.NewFromInt(60)

// Engine drives the timer state machine. All reads of the current time go
// through the injected clock.
type Engine struct {
	store Store
	clock finance.Clock
}

func NewEngine(store Store, clock finance.Clock) *Engine {
	if clock == nil {
		clock = finance.SystemClock{}
	}
	return &Engine{store: store, clock: clock}
}

// =============================================================================
// START
// =============================================================================

// Start creates a timer in FREE_TIME for the given load and charge type.
// override, when non-nil, replaces the type's default billing parameters
// field by field.
//
// Multiple concurrent timers of different types may exist for one load.
// Starting a second timer of the same type while one is active is permitted
// (sequential layovers); callers are expected to Stop the prior one first -
// the engine does not enforce exclusivity.
func (e *Engine) Start(ctx context.Context, loadID finance.LoadID, typ Type, override *Config, facilityID finance.FacilityID) (finance.TimerID, error) {
	defaults, err := DefaultConfig(typ)
	if err != nil {
		return "", err
	}
	cfg := defaults.merged(override)

	now := e.clock.Now().UTC()
	t := FinancialTimer{
		ID:              finance.NewTimerID(),
		LoadID:          loadID,
		FacilityID:      facilityID,
		Type:            typ,
		Status:          StatusFreeTime,
		StartedAt:       now,
		FreeTimeMinutes: cfg.FreeTimeMinutes,
		FreeTimeEndsAt:  now.Add(time.Duration(cfg.FreeTimeMinutes) * time.Minute),
		HourlyRate:      cfg.HourlyRate,
		MaxChargeHours:  cfg.MaxChargeHours,
		Currency:        cfg.Currency,
		TotalCharge:     decimal.Zero,
		CreatedAt:       now,
	}

	if err := e.store.Insert(ctx, t); err != nil {
		return "", fmt.Errorf("start %s timer for load %s: %w", typ, loadID, err)
	}
	return t.ID, nil
}

// =============================================================================
// STOP
// =============================================================================

// Stop finalizes an active timer: computes total and billable minutes,
// applies the charge formula, and transitions to STOPPED.
//
// Returns (nil, nil) when the timer does not exist, is already terminal, or
// lost a race to another finalizer. Calling Stop twice never re-charges.
func (e *Engine) Stop(ctx context.Context, id finance.TimerID) (*Snapshot, error) {
	t, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("stop timer %s: %w", id, err)
	}
	if t == nil || t.Status.Terminal() {
		return nil, nil
	}

	now := e.clock.Now().UTC()
	stopped := now
	t.Status = StatusStopped
	t.StoppedAt = &stopped
	t.TotalMinutes = clampMinutes(t.StartedAt, now)
	t.BillableMinutes = clampMinutes(t.FreeTimeEndsAt, now)
	t.TotalCharge = computeCharge(t.Type, t.HourlyRate, t.MaxChargeHours, t.TotalMinutes, t.BillableMinutes)

	ok, err := e.store.UpdateIf(ctx, *t, StatusFreeTime, StatusBilling)
	if err != nil {
		return nil, fmt.Errorf("stop timer %s: %w", id, err)
	}
	if !ok {
		// Another stop or waive landed first.
		return nil, nil
	}

	snap := terminalSnapshot(*t, now)
	return &snap, nil
}

// =============================================================================
// WAIVE
// =============================================================================

// Waive forces the timer to WAIVED with a zero charge, recording who waived
// it and why. This applies regardless of current status: waiving an
// already-STOPPED timer deliberately overrides its finalized charge
// (dispute resolution).
//
// Returns false when the timer does not exist.
func (e *Engine) Waive(ctx context.Context, id finance.TimerID, waivedBy, reason string) (bool, error) {
	t, err := e.store.Get(ctx, id)
	if err != nil {
		return false, fmt.Errorf("waive timer %s: %w", id, err)
	}
	if t == nil {
		return false, nil
	}

	now := e.clock.Now().UTC()
	if t.StoppedAt == nil {
		stopped := now
		t.StoppedAt = &stopped
		t.TotalMinutes = clampMinutes(t.StartedAt, now)
		t.BillableMinutes = 0
	}
	prior := t.Status
	t.Status = StatusWaived
	t.TotalCharge = decimal.Zero
	t.WaivedBy = waivedBy
	t.WaiveReason = reason

	ok, err := e.store.UpdateIf(ctx, *t, prior)
	if err != nil {
		return false, fmt.Errorf("waive timer %s: %w", id, err)
	}
	if !ok {
		// Status moved between read and write (e.g. the sweep promoted
		// FREE_TIME to BILLING). Waive is an override; take another pass.
		return e.Waive(ctx, id, waivedBy, reason)
	}
	return true, nil
}

// =============================================================================
// SNAPSHOTS - Pure reads
// =============================================================================

// Snapshot projects the timer's live state at the current clock reading
// without mutating stored status. Returns (nil, nil) for a missing timer.
func (e *Engine) Snapshot(ctx context.Context, id finance.TimerID) (*Snapshot, error) {
	t, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("snapshot timer %s: %w", id, err)
	}
	if t == nil {
		return nil, nil
	}
	snap := e.project(*t)
	return &snap, nil
}

// ActiveSnapshots projects every active timer for a load. Used by live
// billing displays while the load is in transit.
func (e *Engine) ActiveSnapshots(ctx context.Context, loadID finance.LoadID) ([]Snapshot, error) {
	timers, err := e.store.ActiveByLoad(ctx, loadID)
	if err != nil {
		return nil, fmt.Errorf("active snapshots for load %s: %w", loadID, err)
	}
	snaps := make([]Snapshot, 0, len(timers))
	for _, t := range timers {
		snaps = append(snaps, e.project(t))
	}
	return snaps, nil
}

func (e *Engine) project(t FinancialTimer) Snapshot {
	now := e.clock.Now().UTC()
	if t.Status.Terminal() {
		return terminalSnapshot(t, now)
	}

	elapsed := clampMinutes(t.StartedAt, now)
	remaining := clampMinutes(now, t.FreeTimeEndsAt)
	billable := clampMinutes(t.FreeTimeEndsAt, now)

	// Derived, not persisted: the sweep may not have ticked yet.
	effective := StatusFreeTime
	if remaining == 0 {
		effective = StatusBilling
	}

	return Snapshot{
		TimerID:                  t.ID,
		LoadID:                   t.LoadID,
		FacilityID:               t.FacilityID,
		Type:                     t.Type,
		PersistedStatus:          t.Status,
		EffectiveStatus:          effective,
		StartedAt:                t.StartedAt,
		FreeTimeEndsAt:           t.FreeTimeEndsAt,
		ElapsedMinutes:           elapsed,
		FreeTimeRemainingMinutes: remaining,
		BillableMinutes:          billable,
		CurrentCharge:            computeCharge(t.Type, t.HourlyRate, t.MaxChargeHours, elapsed, billable),
		Currency:                 t.Currency,
		AsOf:                     now,
	}
}

func terminalSnapshot(t FinancialTimer, asOf time.Time) Snapshot {
	return Snapshot{
		TimerID:         t.ID,
		LoadID:          t.LoadID,
		FacilityID:      t.FacilityID,
		Type:            t.Type,
		PersistedStatus: t.Status,
		EffectiveStatus: t.Status,
		StartedAt:       t.StartedAt,
		FreeTimeEndsAt:  t.FreeTimeEndsAt,
		ElapsedMinutes:  t.TotalMinutes,
		BillableMinutes: t.BillableMinutes,
		CurrentCharge:   t.TotalCharge,
		Currency:        t.Currency,
		AsOf:            asOf,
	}
}

// =============================================================================
// PROMOTION SWEEP
// =============================================================================

// PromoteFreeTimeTimers moves every persisted FREE_TIME timer whose free
// window has elapsed to BILLING. Returns the number promoted.
//
// Idempotent: a second immediate run finds nothing to promote. Safe to run
// concurrently with Stop/Waive - a timer finalized between the scan and the
// write is simply skipped, because the CAS predicate no longer matches.
func (e *Engine) PromoteFreeTimeTimers(ctx context.Context) (int, error) {
	now := e.clock.Now().UTC()
	expired, err := e.store.ExpiredFreeTime(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("promotion sweep: %w", err)
	}

	promoted := 0
	for _, t := range expired {
		started := now
		t.Status = StatusBilling
		t.BillingStartedAt = &started

		ok, err := e.store.UpdateIf(ctx, t, StatusFreeTime)
		if err != nil {
			return promoted, fmt.Errorf("promotion sweep: timer %s: %w", t.ID, err)
		}
		if ok {
			promoted++
		}
	}
	return promoted, nil
}

// =============================================================================
// CHARGE MATH
// =============================================================================

// clampMinutes returns whole minutes from a to b, never negative.
func clampMinutes(a, b time.Time) int64 {
	if !b.After(a) {
		return 0
	}
	return int64(b.Sub(a) / time.Minute)
}

func computeCharge(typ Type, rate decimal.Decimal, capHours *decimal.Decimal, totalMinutes, billableMinutes int64) decimal.Decimal {
	switch typ {
	case TypeLayover:
		// Flat per calendar day, partial days round up.
		days := (totalMinutes + minutesPerDay - 1) / minutesPerDay
		return finance.RoundCents(rate.Mul(decimal.NewFromInt(days)))
	default:
		charge := rate.Mul(decimal.NewFromInt(billableMinutes)).Div(sixty)
		if capHours != nil {
			max := rate.Mul(*capHours)
			if charge.GreaterThan(max) {
				charge = max
			}
		}
		return finance.RoundCents(charge)
	}
}
