// Package store provides timer.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/haulline/settlement-engine/finance"
	"github.com/haulline/settlement-engine/timer"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu     sync.RWMutex
	timers map[finance.TimerID]timer.FinancialTimer
}

func NewMemory() *Memory {
	return &Memory{timers: make(map[finance.TimerID]timer.FinancialTimer)}
}

func (m *Memory) Insert(_ context.Context, t timer.FinancialTimer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.timers[t.ID]; exists {
		return timer.ErrDuplicateTimerID
	}
	m.timers[t.ID] = t
	return nil
}

func (m *Memory) Get(_ context.Context, id finance.TimerID) (*timer.FinancialTimer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.timers[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// UpdateIf writes t only when the stored status is one of expect.
// The check and the write happen under one lock, mirroring the single-row
// CAS the SQLite store gets from its UPDATE predicate.
func (m *Memory) UpdateIf(_ context.Context, t timer.FinancialTimer, expect ...timer.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.timers[t.ID]
	if !ok {
		return false, nil
	}
	if !statusIn(current.Status, expect) {
		return false, nil
	}
	m.timers[t.ID] = t
	return true, nil
}

func (m *Memory) ActiveByLoad(_ context.Context, loadID finance.LoadID) ([]timer.FinancialTimer, error) {
	return m.scan(func(t timer.FinancialTimer) bool {
		return t.LoadID == loadID && t.Status.Active()
	}), nil
}

func (m *Memory) ByLoad(_ context.Context, loadID finance.LoadID) ([]timer.FinancialTimer, error) {
	return m.scan(func(t timer.FinancialTimer) bool {
		return t.LoadID == loadID
	}), nil
}

func (m *Memory) ExpiredFreeTime(_ context.Context, asOf time.Time) ([]timer.FinancialTimer, error) {
	return m.scan(func(t timer.FinancialTimer) bool {
		return t.Status == timer.StatusFreeTime && !t.FreeTimeEndsAt.After(asOf)
	}), nil
}

func (m *Memory) scan(match func(timer.FinancialTimer) bool) []timer.FinancialTimer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []timer.FinancialTimer
	for _, t := range m.timers {
		if match(t) {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result
}

func statusIn(s timer.Status, set []timer.Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
