/*
engine_test.go - Executable specification of the timer state machine

ORGANIZATION:
  1. Start - defaults, overrides, validation
  2. Charge math - free-time boundary, cap, layover day rounding
  3. Monotonic growth of live charges
  4. Stop/Waive - finalization, double-call safety, waive override
  5. Promotion sweep - idempotence, race with stop

Each test has GIVEN/WHEN/THEN comments stating the behavior it pins down.
*/
package timer_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulline/settlement-engine/finance"
	"github.com/haulline/settlement-engine/timer"
	"github.com/haulline/settlement-engine/timer/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func monday8am() time.Time {
	return time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
}

func newEngine() (*timer.Engine, *store.Memory, *finance.FixedClock) {
	mem := store.NewMemory()
	clock := finance.NewFixedClock(monday8am())
	return timer.NewEngine(mem, clock), mem, clock
}

func rate(s string) decimal.Decimal { return finance.MustParseDecimal(s) }

func detentionConfig(freeMinutes int, hourly string, capHours string) *timer.Config {
	cfg := &timer.Config{
		FreeTimeMinutes: freeMinutes,
		HourlyRate:      rate(hourly),
	}
	if capHours != "" {
		c := rate(capHours)
		cfg.MaxChargeHours = &c
	}
	return cfg
}

// =============================================================================
// START
// =============================================================================

func TestStart_AppliesTypeDefaults(t *testing.T) {
	// GIVEN: A detention timer started with no config override
	// THEN: The persisted timer carries the standard detention parameters

	engine, mem, _ := newEngine()
	ctx := context.Background()

	id, err := engine.Start(ctx, "load-1", timer.TypeDetention, nil, "facility-9")
	require.NoError(t, err)

	persisted, err := mem.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, persisted)

	assert.Equal(t, timer.StatusFreeTime, persisted.Status)
	assert.Equal(t, 120, persisted.FreeTimeMinutes)
	assert.Equal(t, "75", persisted.HourlyRate.String())
	assert.Equal(t, finance.CurrencyUSD, persisted.Currency)
	assert.Equal(t, monday8am().Add(2*time.Hour), persisted.FreeTimeEndsAt)
}

func TestStart_OverrideReplacesDefaultsFieldByField(t *testing.T) {
	// GIVEN: An override that changes only the rate
	// THEN: Free time keeps its default, the rate is replaced

	engine, mem, _ := newEngine()
	ctx := context.Background()

	id, err := engine.Start(ctx, "load-1", timer.TypeDemurrage, &timer.Config{HourlyRate: rate("95.50")}, "")
	require.NoError(t, err)

	persisted, _ := mem.Get(ctx, id)
	assert.Equal(t, 120, persisted.FreeTimeMinutes)
	assert.Equal(t, "95.5", persisted.HourlyRate.String())
}

func TestStart_UnknownTypeIsRejected(t *testing.T) {
	engine, _, _ := newEngine()

	_, err := engine.Start(context.Background(), "load-1", timer.Type("TARP_FEE"), nil, "")
	require.ErrorIs(t, err, timer.ErrUnknownTimerType)
}

func TestStart_SecondTimerOfSameTypeIsPermitted(t *testing.T) {
	// Sequential layovers: the engine does not enforce exclusivity,
	// that is the caller's contract.
	engine, _, _ := newEngine()
	ctx := context.Background()

	_, err := engine.Start(ctx, "load-1", timer.TypeLayover, nil, "")
	require.NoError(t, err)
	_, err = engine.Start(ctx, "load-1", timer.TypeLayover, nil, "")
	require.NoError(t, err)

	snaps, err := engine.ActiveSnapshots(ctx, "load-1")
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

// =============================================================================
// CHARGE MATH
// =============================================================================

func TestSnapshot_FreeTimeBoundary(t *testing.T) {
	// GIVEN: freeTimeMinutes = 120
	// WHEN:  snapshot at started+119m and at started+121m
	// THEN:  billable is 0, then >= 1

	engine, _, clock := newEngine()
	ctx := context.Background()

	id, err := engine.Start(ctx, "load-1", timer.TypeDetention, detentionConfig(120, "75", ""), "")
	require.NoError(t, err)

	clock.Advance(119 * time.Minute)
	snap, err := engine.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 0, snap.BillableMinutes)
	assert.EqualValues(t, 1, snap.FreeTimeRemainingMinutes)
	assert.Equal(t, timer.StatusFreeTime, snap.EffectiveStatus)
	assert.Equal(t, "0.00", snap.CurrentCharge.StringFixed(2))

	clock.Advance(2 * time.Minute)
	snap, err = engine.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, snap.BillableMinutes, int64(1))
	assert.Equal(t, timer.StatusBilling, snap.EffectiveStatus)
}

func TestSnapshot_EffectiveStatusRunsAheadOfPersisted(t *testing.T) {
	// GIVEN: Free time elapsed but no sweep has run
	// THEN:  Persisted status is FREE_TIME, effective status is BILLING

	engine, mem, clock := newEngine()
	ctx := context.Background()

	id, _ := engine.Start(ctx, "load-1", timer.TypeDetention, nil, "")
	clock.Advance(3 * time.Hour)

	snap, err := engine.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, timer.StatusFreeTime, snap.PersistedStatus)
	assert.Equal(t, timer.StatusBilling, snap.EffectiveStatus)

	// The read was side-effect-free.
	persisted, _ := mem.Get(ctx, id)
	assert.Equal(t, timer.StatusFreeTime, persisted.Status)
}

func TestStop_DetentionExample(t *testing.T) {
	// GIVEN: freeTimeMinutes=120, hourlyRate=$75, no cap
	// WHEN:  stopped at totalMinutes=195 (3h15m)
	// THEN:  billable = 75 minutes, charge = round(75/60*75, 2) = $93.75

	engine, _, clock := newEngine()
	ctx := context.Background()

	id, err := engine.Start(ctx, "load-1", timer.TypeDetention, detentionConfig(120, "75", ""), "")
	require.NoError(t, err)

	clock.Advance(195 * time.Minute)
	snap, err := engine.Stop(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.EqualValues(t, 195, snap.ElapsedMinutes)
	assert.EqualValues(t, 75, snap.BillableMinutes)
	assert.Equal(t, "93.75", snap.CurrentCharge.StringFixed(2))
	assert.Equal(t, timer.StatusStopped, snap.PersistedStatus)
}

func TestStop_CapEnforcement(t *testing.T) {
	// GIVEN: hourlyRate=$75, maxChargeHours=2
	// WHEN:  stopped with billable minutes far beyond the cap
	// THEN:  totalCharge = round(75*2, 2) = $150.00 exactly, never more

	engine, _, clock := newEngine()
	ctx := context.Background()

	id, err := engine.Start(ctx, "load-1", timer.TypeDemurrage, detentionConfig(60, "75", "2"), "")
	require.NoError(t, err)

	clock.Advance(10 * time.Hour)
	snap, err := engine.Stop(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "150.00", snap.CurrentCharge.StringFixed(2))
}

func TestStop_LayoverDayRounding(t *testing.T) {
	// A partial day of waiting still costs a full day.
	cases := []struct {
		name    string
		elapsed time.Duration
		want    string
	}{
		{"thirty minutes is one day", 30 * time.Minute, "150.00"},
		{"exactly 24 hours is one day", 24 * time.Hour, "150.00"},
		{"25 hours is two days", 25 * time.Hour, "300.00"},
		{"49 hours is three days", 49 * time.Hour, "450.00"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine, _, clock := newEngine()
			ctx := context.Background()

			id, err := engine.Start(ctx, "load-1", timer.TypeLayover, nil, "")
			require.NoError(t, err)

			clock.Advance(tc.elapsed)
			snap, err := engine.Stop(ctx, id)
			require.NoError(t, err)
			require.NotNil(t, snap)
			assert.Equal(t, tc.want, snap.CurrentCharge.StringFixed(2))
		})
	}
}

func TestSnapshot_MonotonicChargeGrowth(t *testing.T) {
	// GIVEN: An active detention timer with a 2 hour cap
	// THEN:  currentCharge never decreases as time advances, and is
	//        constant once the cap is reached

	engine, _, clock := newEngine()
	ctx := context.Background()

	id, err := engine.Start(ctx, "load-1", timer.TypeDetention, detentionConfig(30, "80", "2"), "")
	require.NoError(t, err)

	prev := decimal.Zero
	capped := ""
	for i := 0; i < 40; i++ {
		clock.Advance(7 * time.Minute)
		snap, err := engine.Snapshot(ctx, id)
		require.NoError(t, err)
		require.False(t, snap.CurrentCharge.LessThan(prev),
			"charge decreased from %s to %s", prev, snap.CurrentCharge)
		prev = snap.CurrentCharge

		if snap.BillableMinutes > 120 {
			if capped == "" {
				capped = snap.CurrentCharge.StringFixed(2)
			}
			assert.Equal(t, capped, snap.CurrentCharge.StringFixed(2))
		}
	}
	assert.Equal(t, "160.00", capped)
}

// =============================================================================
// STOP / WAIVE FINALIZATION
// =============================================================================

func TestStop_SecondCallIsNoOp(t *testing.T) {
	engine, _, clock := newEngine()
	ctx := context.Background()

	id, _ := engine.Start(ctx, "load-1", timer.TypeDetention, nil, "")
	clock.Advance(4 * time.Hour)

	first, err := engine.Stop(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := engine.Stop(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, second, "second stop must not re-charge")
}

func TestStop_MissingTimerReturnsNil(t *testing.T) {
	engine, _, _ := newEngine()

	snap, err := engine.Stop(context.Background(), "no-such-timer")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestWaive_ZeroesChargeOnActiveTimer(t *testing.T) {
	engine, mem, clock := newEngine()
	ctx := context.Background()

	id, _ := engine.Start(ctx, "load-1", timer.TypeDetention, nil, "")
	clock.Advance(5 * time.Hour)

	ok, err := engine.Waive(ctx, id, "ops-admin", "shipper fault")
	require.NoError(t, err)
	require.True(t, ok)

	persisted, _ := mem.Get(ctx, id)
	assert.Equal(t, timer.StatusWaived, persisted.Status)
	assert.True(t, persisted.TotalCharge.IsZero())
	assert.Equal(t, "ops-admin", persisted.WaivedBy)
	assert.Equal(t, "shipper fault", persisted.WaiveReason)
}

func TestWaive_OverridesStoppedTimer(t *testing.T) {
	// GIVEN: A timer already STOPPED with a nonzero charge
	// WHEN:  It is waived (dispute resolution)
	// THEN:  The finalized charge is zeroed and status becomes WAIVED

	engine, mem, clock := newEngine()
	ctx := context.Background()

	id, _ := engine.Start(ctx, "load-1", timer.TypeDetention, detentionConfig(60, "75", ""), "")
	clock.Advance(3 * time.Hour)

	snap, err := engine.Stop(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Equal(t, "150.00", snap.CurrentCharge.StringFixed(2))

	ok, err := engine.Waive(ctx, id, "broker-12", "customer credit")
	require.NoError(t, err)
	require.True(t, ok)

	persisted, _ := mem.Get(ctx, id)
	assert.Equal(t, timer.StatusWaived, persisted.Status)
	assert.True(t, persisted.TotalCharge.IsZero())
	// Stop's bookkeeping survives for audit, only the charge is zeroed.
	assert.EqualValues(t, 180, persisted.TotalMinutes)
}

func TestWaive_MissingTimerReturnsFalse(t *testing.T) {
	engine, _, _ := newEngine()

	ok, err := engine.Waive(context.Background(), "no-such-timer", "x", "y")
	require.NoError(t, err)
	assert.False(t, ok)
}

// =============================================================================
// PROMOTION SWEEP
// =============================================================================

func TestPromoteFreeTimeTimers_PromotesOnlyElapsed(t *testing.T) {
	// GIVEN: Two timers past free time and one still inside it
	// WHEN:  The sweep runs
	// THEN:  Exactly the elapsed two are promoted to BILLING

	engine, mem, clock := newEngine()
	ctx := context.Background()

	a, _ := engine.Start(ctx, "load-1", timer.TypeDetention, detentionConfig(30, "75", ""), "")
	b, _ := engine.Start(ctx, "load-2", timer.TypeDemurrage, detentionConfig(45, "75", ""), "")
	c, _ := engine.Start(ctx, "load-3", timer.TypeDetention, detentionConfig(240, "75", ""), "")

	clock.Advance(1 * time.Hour)

	count, err := engine.PromoteFreeTimeTimers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for id, want := range map[finance.TimerID]timer.Status{
		a: timer.StatusBilling,
		b: timer.StatusBilling,
		c: timer.StatusFreeTime,
	} {
		persisted, _ := mem.Get(ctx, id)
		assert.Equal(t, want, persisted.Status, "timer %s", id)
	}
}

func TestPromoteFreeTimeTimers_Idempotent(t *testing.T) {
	// Running the sweep twice in immediate succession promotes nothing new.
	engine, _, clock := newEngine()
	ctx := context.Background()

	_, err := engine.Start(ctx, "load-1", timer.TypeDetention, detentionConfig(30, "75", ""), "")
	require.NoError(t, err)
	clock.Advance(1 * time.Hour)

	first, err := engine.PromoteFreeTimeTimers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	second, err := engine.PromoteFreeTimeTimers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second)
}

func TestStop_AfterSweepStillCharges(t *testing.T) {
	// The sweep only changes status; stop computes the same charge whether
	// or not a sweep tick happened in between.
	engine, _, clock := newEngine()
	ctx := context.Background()

	id, _ := engine.Start(ctx, "load-1", timer.TypeDetention, detentionConfig(120, "75", ""), "")
	clock.Advance(130 * time.Minute)

	_, err := engine.PromoteFreeTimeTimers(ctx)
	require.NoError(t, err)

	clock.Advance(65 * time.Minute)
	snap, err := engine.Stop(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, snap)

	assert.EqualValues(t, 75, snap.BillableMinutes)
	assert.Equal(t, "93.75", snap.CurrentCharge.StringFixed(2))
}

func TestActiveSnapshots_ExcludesFinalizedTimers(t *testing.T) {
	engine, _, clock := newEngine()
	ctx := context.Background()

	kept, _ := engine.Start(ctx, "load-1", timer.TypeDetention, nil, "")
	stopped, _ := engine.Start(ctx, "load-1", timer.TypeLayover, nil, "")

	clock.Advance(30 * time.Minute)
	_, err := engine.Stop(ctx, stopped)
	require.NoError(t, err)

	snaps, err := engine.ActiveSnapshots(ctx, "load-1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, kept, snaps[0].TimerID)
}
