/*
Package payroll implements driver pay evaluation and settlement assembly.

PURPOSE:
  Turns a driver's completed loads, pay profile, bonuses, reimbursements,
  deductions, escrow, and (for W2 drivers) tax withholding into a single
  deterministic settlement document.

KEY CONCEPTS IN THIS FILE (types.go):
  - DriverPayProfile: how a driver is paid (per-mile, percentage, flat,
    hourly, hybrid), owned by account administration and read-only here
  - LoadFacts: the revenue/mileage facts for one load, supplied by the
    load-management subsystem
  - AccessorialCharge: a named extra charge, possibly derived from a
    stopped accessorial timer
  - SettlementDocument: one per driver per pay period, created in DRAFT

DETERMINISM:
  Assembly is a pure function of its inputs plus the clock (used only for
  CreatedAt). Re-running with the same inputs and a fixed clock produces an
  identical document except for the settlement identifier.

SEE ALSO:
  - evaluator.go: per-load pay computation
  - assembler.go: document assembly and the net-pay invariant
  - store.go: persistence and sequence interfaces
*/
package payroll

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/haulline/settlement-engine/finance"
)

// =============================================================================
// PAY STRUCTURE
// =============================================================================

type PayStructure string

const (
	PayPerMile    PayStructure = "PER_MILE"
	PayPercentage PayStructure = "PERCENTAGE"
	PayFlatRate   PayStructure = "FLAT_RATE"
	PayHourly     PayStructure = "HOURLY"
	PayHybrid     PayStructure = "HYBRID"
)

func (p PayStructure) Valid() bool {
	switch p {
	case PayPerMile, PayPercentage, PayFlatRate, PayHourly, PayHybrid:
		return true
	}
	return false
}

type EmployeeType string

const (
	EmployeeW2   EmployeeType = "W2"
	Employee1099 EmployeeType = "1099"
)

// =============================================================================
// DRIVER PAY PROFILE
// =============================================================================

// DriverPayProfile describes how one driver is paid. Owned and mutated by
// account administration; the settlement core only reads it.
type DriverPayProfile struct {
	DriverID     finance.DriverID
	PayStructure PayStructure

	// PER_MILE / HYBRID
	LoadedMileRate decimal.Decimal
	EmptyMileRate  decimal.Decimal

	// PERCENTAGE / HYBRID. FuelSurchargePercentage falls back to
	// LinehaulPercentage when zero.
	LinehaulPercentage      decimal.Decimal
	FuelSurchargePercentage decimal.Decimal

	// FLAT_RATE
	FlatRatePerLoad decimal.Decimal

	// HOURLY
	HourlyRate decimal.Decimal

	// MinimumPay, when positive, floors the computed pay for any structure.
	MinimumPay decimal.Decimal

	// Bonus rates. Zero disables the bonus.
	SafetyBonus decimal.Decimal
	OnTimeBonus decimal.Decimal

	// EscrowPercentage of gross pay withheld into reserve, 0-100.
	EscrowPercentage decimal.Decimal

	EmployeeType EmployeeType
	Currency     string
}

// =============================================================================
// LOAD FACTS - Revenue and mileage for one load
// =============================================================================

// AccessorialCharge is a named charge beyond base linehaul, with the portion
// owed to the driver. TimerID is set when the charge was derived from a
// stopped accessorial timer.
type AccessorialCharge struct {
	Code          string          `json:"code"`
	Description   string          `json:"description,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	DriverPortion decimal.Decimal `json:"driverPortion"`
	TimerID       finance.TimerID `json:"timerId,omitempty"`
}

// LoadFacts carries one load's revenue and mileage facts into pay
// evaluation. Supplied by the load-management subsystem.
type LoadFacts struct {
	LoadID     finance.LoadID
	LoadNumber string

	LoadedMiles decimal.Decimal
	EmptyMiles  decimal.Decimal

	Linehaul      decimal.Decimal
	FuelSurcharge decimal.Decimal
	Accessorials  []AccessorialCharge

	// HoursWorked feeds the HOURLY structure only.
	HoursWorked decimal.Decimal
}

// AccessorialTotal sums the full amounts of all accessorial charges.
func (l LoadFacts) AccessorialTotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range l.Accessorials {
		total = total.Add(a.Amount)
	}
	return total
}

// TotalRevenue is linehaul + fuel surcharge + accessorial totals.
func (l LoadFacts) TotalRevenue() decimal.Decimal {
	return l.Linehaul.Add(l.FuelSurcharge).Add(l.AccessorialTotal())
}

// PayResult is the outcome of evaluating one load against a profile.
// Method is a human-readable description of how the pay was computed,
// kept for auditability on the settlement line.
type PayResult struct {
	Pay    decimal.Decimal
	Method string
}

// =============================================================================
// SETTLEMENT DOCUMENT
// =============================================================================

// LoadSettlementItem is one load inside a settlement. Derived, never
// mutated after assembly.
type LoadSettlementItem struct {
	LoadID     finance.LoadID `json:"loadId"`
	LoadNumber string         `json:"loadNumber,omitempty"`

	LoadedMiles decimal.Decimal `json:"loadedMiles"`
	EmptyMiles  decimal.Decimal `json:"emptyMiles"`

	Linehaul         decimal.Decimal     `json:"linehaul"`
	FuelSurcharge    decimal.Decimal     `json:"fuelSurcharge"`
	AccessorialTotal decimal.Decimal     `json:"accessorialTotal"`
	TotalRevenue     decimal.Decimal     `json:"totalRevenue"`
	Accessorials     []AccessorialCharge `json:"accessorials,omitempty"`

	DriverPay decimal.Decimal `json:"driverPay"`
	PayMethod string          `json:"payMethod"`
}

// Bonus is a named bonus line.
type Bonus struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Adjustment is a named reimbursement or deduction line, summed verbatim.
type Adjustment struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Withholding is the W2 tax withholding breakdown. All components are flat
// percentages of (gross pay + bonuses); this is an approximation, not tax law.
type Withholding struct {
	Federal        decimal.Decimal `json:"federal"`
	State          decimal.Decimal `json:"state"`
	SocialSecurity decimal.Decimal `json:"socialSecurity"`
	Medicare       decimal.Decimal `json:"medicare"`
	Total          decimal.Decimal `json:"total"`
}

type SettlementStatus string

const (
	StatusDraft           SettlementStatus = "DRAFT"
	StatusPendingApproval SettlementStatus = "PENDING_APPROVAL"
	StatusApproved        SettlementStatus = "APPROVED"
	StatusPaid            SettlementStatus = "PAID"
	StatusDisputed        SettlementStatus = "DISPUTED"
)

// CanTransitionTo reports whether the approval/payment workflow may move a
// settlement from s to next. Any pre-PAID settlement may be disputed.
func (s SettlementStatus) CanTransitionTo(next SettlementStatus) bool {
	switch next {
	case StatusPendingApproval:
		return s == StatusDraft
	case StatusApproved:
		return s == StatusPendingApproval
	case StatusPaid:
		return s == StatusApproved
	case StatusDisputed:
		return s == StatusDraft || s == StatusPendingApproval || s == StatusApproved
	}
	return false
}

// SettlementDocument is one driver's settlement for one pay period.
// Immutable once APPROVED except for the status field.
type SettlementDocument struct {
	// ID comes from the durable sequence, e.g. "STL-2025-000042".
	ID       string           `json:"id"`
	DriverID finance.DriverID `json:"driverId"`

	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`

	Items []LoadSettlementItem `json:"items"`

	TotalLoadedMiles decimal.Decimal `json:"totalLoadedMiles"`
	TotalEmptyMiles  decimal.Decimal `json:"totalEmptyMiles"`
	GrossRevenue     decimal.Decimal `json:"grossRevenue"`
	GrossPay         decimal.Decimal `json:"grossPay"`

	Bonuses      []Bonus         `json:"bonuses,omitempty"`
	TotalBonuses decimal.Decimal `json:"totalBonuses"`

	Reimbursements      []Adjustment    `json:"reimbursements,omitempty"`
	TotalReimbursements decimal.Decimal `json:"totalReimbursements"`

	Deductions      []Adjustment    `json:"deductions,omitempty"`
	TotalDeductions decimal.Decimal `json:"totalDeductions"`

	EscrowContribution decimal.Decimal `json:"escrowContribution"`

	// Withholding is nil for 1099 drivers.
	Withholding       *Withholding    `json:"withholding,omitempty"`
	TotalWithholdings decimal.Decimal `json:"totalWithholdings"`

	NetPay   decimal.Decimal `json:"netPay"`
	Currency string          `json:"currency"`

	Status    SettlementStatus `json:"status"`
	CreatedBy string           `json:"createdBy,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	PayDate   time.Time        `json:"payDate"`
}
