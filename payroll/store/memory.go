// Package store provides payroll store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/haulline/settlement-engine/finance"
	"github.com/haulline/settlement-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	settlements map[string]payroll.SettlementDocument
}

func NewMemory() *Memory {
	return &Memory{settlements: make(map[string]payroll.SettlementDocument)}
}

func (m *Memory) Save(_ context.Context, doc payroll.SettlementDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settlements[doc.ID] = doc
	return nil
}

func (m *Memory) GetSettlement(_ context.Context, id string) (*payroll.SettlementDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.settlements[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (m *Memory) ListByDriver(_ context.Context, driverID finance.DriverID) ([]payroll.SettlementDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []payroll.SettlementDocument
	for _, doc := range m.settlements {
		if doc.DriverID == driverID {
			result = append(result, doc)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodEnd.After(result[j].PeriodEnd)
	})
	return result, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id string, from, to payroll.SettlementStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.settlements[id]
	if !ok || doc.Status != from {
		return false, nil
	}
	doc.Status = to
	m.settlements[id] = doc
	return true, nil
}

// =============================================================================
// MEMORY SEQUENCE - Settlement id generation for tests/dev
// =============================================================================

// MemorySequence is a process-local payroll.Sequence. Production uses the
// SQLite-backed sequence; this exists for tests and single-process dev runs.
type MemorySequence struct {
	mu   sync.Mutex
	next map[int]int64
}

func NewMemorySequence() *MemorySequence {
	return &MemorySequence{next: make(map[int]int64)}
}

func (s *MemorySequence) NextSettlementID(_ context.Context, periodEnd time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	year := periodEnd.Year()
	s.next[year]++
	return fmt.Sprintf("STL-%d-%06d", year, s.next[year]), nil
}
