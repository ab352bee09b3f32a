/*
scheduler.go - Free-time promotion scheduler

PURPOSE:
  Periodically promotes timers whose free-time window has elapsed from
  FREE_TIME to BILLING. Promotion is a recurring scan, not an event per
  timer: expiration volumes are low and a coarse interval is an explicit
  design trade-off. Live displays don't depend on the sweep - snapshots
  derive effective status from the clock.

DESIGN:
  - Ticker goroutine with a stop channel and WaitGroup
  - The sweep is idempotent, so the interval only affects how stale the
    persisted status can get, never correctness
  - Safe to run while stop/waive calls land on the same rows: the engine's
    compare-and-set writes resolve every race

USAGE:
  sched := NewPromotionScheduler(engine, log)
  sched.Start()
  defer sched.Stop()

SEE ALSO:
  - timer/engine.go: PromoteFreeTimeTimers
  - handlers.go: PromoteTimers (manual trigger)
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/haulline/settlement-engine/timer"
)

// PromotionScheduler runs the free-time promotion sweep on a fixed interval.
type PromotionScheduler struct {
	Engine        *timer.Engine
	CheckInterval time.Duration
	Log           *logrus.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewPromotionScheduler creates a scheduler with the default 1 minute interval.
func NewPromotionScheduler(engine *timer.Engine, log *logrus.Logger) *PromotionScheduler {
	if log == nil {
		log = logrus.New()
	}
	return &PromotionScheduler{
		Engine:        engine,
		CheckInterval: 1 * time.Minute,
		Log:           log,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (ps *PromotionScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.ticker = time.NewTicker(ps.CheckInterval)
	ps.wg.Add(1)
	go ps.run()

	ps.Log.WithField("interval", ps.CheckInterval).Info("promotion scheduler started")
}

// Stop stops the scheduler and waits for an in-flight sweep to finish.
func (ps *PromotionScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		ps.Log.Info("promotion scheduler stopped")
	}
}

// RunNow triggers an immediate sweep (for operators and tests).
func (ps *PromotionScheduler) RunNow() {
	ps.sweep()
}

func (ps *PromotionScheduler) run() {
	defer ps.wg.Done()

	// Run immediately on start; a restart should not delay promotions by
	// a full interval.
	ps.sweep()

	for {
		select {
		case <-ps.ticker.C:
			ps.sweep()
		case <-ps.stop:
			return
		}
	}
}

func (ps *PromotionScheduler) sweep() {
	count, err := ps.Engine.PromoteFreeTimeTimers(context.Background())
	if err != nil {
		ps.Log.WithError(err).Error("promotion sweep failed")
		return
	}
	if count > 0 {
		ps.Log.WithField("promoted", count).Info("promotion sweep completed")
	}
}
