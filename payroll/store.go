/*
store.go - Persistence interfaces for settlements

PURPOSE:
  Defines the persistence surface the assembler and the approval/payment
  workflow need. Documents are written whole; the only in-place mutation is
  the status field, and that mutation is a compare-and-set so two racing
  workflow actions cannot both win.

IMPLEMENTATIONS:
  - store/sqlite:  production store
  - payroll/store: in-memory store for tests and dev
*/
package payroll

import (
	"context"

	"github.com/haulline/settlement-engine/finance"
)

// SettlementStore handles persistence of settlement documents.
type SettlementStore interface {
	// Save persists a newly assembled document.
	Save(ctx context.Context, doc SettlementDocument) error

	// GetSettlement returns the settlement, or (nil, nil) if it does not
	// exist. Named to coexist with the timer Get on shared implementations.
	GetSettlement(ctx context.Context, id string) (*SettlementDocument, error)

	// ListByDriver returns all settlements for a driver, most recent
	// period first.
	ListByDriver(ctx context.Context, driverID finance.DriverID) ([]SettlementDocument, error)

	// UpdateStatus moves the settlement from one status to another.
	// Returns false when the stored status is not `from` (a racing workflow
	// action landed first) or the settlement does not exist.
	UpdateStatus(ctx context.Context, id string, from, to SettlementStatus) (bool, error)
}
