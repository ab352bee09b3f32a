package api_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulline/settlement-engine/api"
	"github.com/haulline/settlement-engine/finance"
	"github.com/haulline/settlement-engine/timer"
	tstore "github.com/haulline/settlement-engine/timer/store"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestPromotionScheduler_SweepsOnStart(t *testing.T) {
	// GIVEN: A timer whose free time has already elapsed
	// WHEN:  The scheduler starts
	// THEN:  The immediate sweep promotes it without waiting for a tick

	mem := tstore.NewMemory()
	clock := finance.NewFixedClock(time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC))
	engine := timer.NewEngine(mem, clock)
	ctx := context.Background()

	id, err := engine.Start(ctx, "load-1", timer.TypeDetention, &timer.Config{
		FreeTimeMinutes: 15,
		HourlyRate:      finance.MustParseDecimal("75"),
	}, "")
	require.NoError(t, err)
	clock.Advance(time.Hour)

	sched := api.NewPromotionScheduler(engine, quietLog())
	sched.CheckInterval = time.Hour // ticks play no part in this test
	sched.Start()
	defer sched.Stop()

	require.Eventually(t, func() bool {
		persisted, err := mem.Get(ctx, id)
		return err == nil && persisted.Status == timer.StatusBilling
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPromotionScheduler_RunNow(t *testing.T) {
	mem := tstore.NewMemory()
	clock := finance.NewFixedClock(time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC))
	engine := timer.NewEngine(mem, clock)
	ctx := context.Background()

	id, err := engine.Start(ctx, "load-1", timer.TypeDemurrage, &timer.Config{
		FreeTimeMinutes: 15,
		HourlyRate:      finance.MustParseDecimal("75"),
	}, "")
	require.NoError(t, err)
	clock.Advance(time.Hour)

	// RunNow works without Start; operators trigger it over the admin route.
	sched := api.NewPromotionScheduler(engine, quietLog())
	sched.RunNow()

	persisted, err := mem.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, timer.StatusBilling, persisted.Status)
}

func TestPromotionScheduler_StopWaitsCleanly(t *testing.T) {
	engine := timer.NewEngine(tstore.NewMemory(), finance.SystemClock{})

	sched := api.NewPromotionScheduler(engine, quietLog())
	sched.CheckInterval = 10 * time.Millisecond
	sched.Start()
	time.Sleep(30 * time.Millisecond)
	sched.Stop() // must not hang or panic
}
