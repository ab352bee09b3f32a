/*
assembler.go - Settlement document assembly

PURPOSE:
  Aggregates a driver's completed loads (with per-load pay), bonuses,
  reimbursements, deductions, escrow, and optional tax withholding into a
  single DRAFT settlement document.

NET PAY INVARIANT:
  netPay = round(grossPay + totalBonuses + totalReimbursements
                 - totalDeductions - escrowContribution - totalWithholdings, 2)

  This equality holds exactly for every produced document; it is the primary
  correctness property of this package.

FAILURE SEMANTICS:
  Assembly never rejects malformed monetary inputs (negative revenue computes
  through, to be caught by the approval workflow). It does fail for an
  unrecognized pay structure, and for an empty load list unless the caller
  explicitly asked for an empty settlement.

BONUSES:
  Both bonuses are declarative profile rules, not computed from operational
  data: the safety bonus is flat when configured, and the on-time bonus is
  granted when the period has at least onTimeBonusLoadThreshold loads.
  Future: replace the load-count gate with verified on-time performance once
  the load-event feed exposes delivery punctuality.
*/
package payroll

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/haulline/settlement-engine/finance"
)

// onTimeBonusLoadThreshold gates the on-time bonus on period load count.
const onTimeBonusLoadThreshold = 5

// payDateOffsetDays is how long after period end a settlement is payable.
const payDateOffsetDays = 7

// W2 withholding is approximated as flat percentages of (gross pay + bonuses).
var (
	federalWithholdingRate = finance.MustParseDecimal("0.12")
	stateWithholdingRate   = finance.MustParseDecimal("0.05")
	socialSecurityRate     = finance.MustParseDecimal("0.062")
	medicareRate           = finance.MustParseDecimal("0.0145")
)

// Sequence issues durable, collision-resistant settlement identifiers.
// Process-local counters are not acceptable: multiple service instances
// must not collide.
type Sequence interface {
	NextSettlementID(ctx context.Context, periodEnd time.Time) (string, error)
}

// AssembleInput carries everything Assemble needs. The caller decides which
// loads, charges, and adjustments belong to the period; the assembler never
// queries live timer state.
type AssembleInput struct {
	DriverID finance.DriverID
	Profile  DriverPayProfile

	Loads          []LoadFacts
	Deductions     []Adjustment
	Reimbursements []Adjustment

	PeriodStart time.Time
	PeriodEnd   time.Time
	CreatedBy   string

	// AllowEmpty permits a settlement with no loads (e.g. a period of only
	// reimbursements).
	AllowEmpty bool
}

// Assembler builds settlement documents. The clock is used only for
// CreatedAt; everything else is a pure function of the input.
type Assembler struct {
	seq   Sequence
	clock finance.Clock
}

func NewAssembler(seq Sequence, clock finance.Clock) *Assembler {
	if clock == nil {
		clock = finance.SystemClock{}
	}
	return &Assembler{seq: seq, clock: clock}
}

// Assemble produces a DRAFT settlement document for one driver and period.
func (a *Assembler) Assemble(ctx context.Context, in AssembleInput) (*SettlementDocument, error) {
	if !in.Profile.PayStructure.Valid() {
		return nil, &UnknownPayStructureError{Structure: in.Profile.PayStructure}
	}
	if len(in.Loads) == 0 && !in.AllowEmpty {
		return nil, ErrEmptySettlement
	}

	currency := in.Profile.Currency
	if currency == "" {
		currency = finance.CurrencyUSD
	}

	items := make([]LoadSettlementItem, 0, len(in.Loads))
	totalLoaded := decimal.Zero
	totalEmpty := decimal.Zero
	grossRevenue := decimal.Zero
	grossPay := decimal.Zero

	for _, load := range in.Loads {
		result, err := Evaluate(load, in.Profile)
		if err != nil {
			return nil, fmt.Errorf("evaluate load %s: %w", load.LoadID, err)
		}

		item := LoadSettlementItem{
			LoadID:           load.LoadID,
			LoadNumber:       load.LoadNumber,
			LoadedMiles:      load.LoadedMiles,
			EmptyMiles:       load.EmptyMiles,
			Linehaul:         load.Linehaul,
			FuelSurcharge:    load.FuelSurcharge,
			AccessorialTotal: load.AccessorialTotal(),
			TotalRevenue:     load.TotalRevenue(),
			Accessorials:     load.Accessorials,
			DriverPay:        result.Pay,
			PayMethod:        result.Method,
		}
		items = append(items, item)

		totalLoaded = totalLoaded.Add(load.LoadedMiles)
		totalEmpty = totalEmpty.Add(load.EmptyMiles)
		grossRevenue = grossRevenue.Add(item.TotalRevenue)
		grossPay = grossPay.Add(item.DriverPay)
	}

	bonuses, totalBonuses := a.bonuses(in.Profile, len(in.Loads))
	totalReimbursements := sumAdjustments(in.Reimbursements)
	totalDeductions := sumAdjustments(in.Deductions)

	escrow := decimal.Zero
	if in.Profile.EscrowPercentage.IsPositive() {
		escrow = finance.RoundCents(grossPay.Mul(in.Profile.EscrowPercentage).Div(oneHundred))
	}

	var withholding *Withholding
	totalWithholdings := decimal.Zero
	if in.Profile.EmployeeType == EmployeeW2 {
		withholding = computeWithholding(grossPay.Add(totalBonuses))
		totalWithholdings = withholding.Total
	}

	netPay := finance.RoundCents(grossPay.
		Add(totalBonuses).
		Add(totalReimbursements).
		Sub(totalDeductions).
		Sub(escrow).
		Sub(totalWithholdings))

	id, err := a.seq.NextSettlementID(ctx, in.PeriodEnd)
	if err != nil {
		return nil, fmt.Errorf("settlement id for driver %s: %w", in.DriverID, err)
	}

	return &SettlementDocument{
		ID:                  id,
		DriverID:            in.DriverID,
		PeriodStart:         in.PeriodStart,
		PeriodEnd:           in.PeriodEnd,
		Items:               items,
		TotalLoadedMiles:    totalLoaded,
		TotalEmptyMiles:     totalEmpty,
		GrossRevenue:        grossRevenue,
		GrossPay:            grossPay,
		Bonuses:             bonuses,
		TotalBonuses:        totalBonuses,
		Reimbursements:      in.Reimbursements,
		TotalReimbursements: totalReimbursements,
		Deductions:          in.Deductions,
		TotalDeductions:     totalDeductions,
		EscrowContribution:  escrow,
		Withholding:         withholding,
		TotalWithholdings:   totalWithholdings,
		NetPay:              netPay,
		Currency:            currency,
		Status:              StatusDraft,
		CreatedBy:           in.CreatedBy,
		CreatedAt:           a.clock.Now().UTC(),
		PayDate:             in.PeriodEnd.AddDate(0, 0, payDateOffsetDays),
	}, nil
}

func (a *Assembler) bonuses(profile DriverPayProfile, loadCount int) ([]Bonus, decimal.Decimal) {
	var lines []Bonus
	total := decimal.Zero

	if profile.SafetyBonus.IsPositive() {
		lines = append(lines, Bonus{Description: "Safety bonus", Amount: profile.SafetyBonus})
		total = total.Add(profile.SafetyBonus)
	}
	if profile.OnTimeBonus.IsPositive() && loadCount >= onTimeBonusLoadThreshold {
		lines = append(lines, Bonus{
			Description: fmt.Sprintf("On-time bonus (%d+ loads)", onTimeBonusLoadThreshold),
			Amount:      profile.OnTimeBonus,
		})
		total = total.Add(profile.OnTimeBonus)
	}
	return lines, total
}

func computeWithholding(base decimal.Decimal) *Withholding {
	w := &Withholding{
		Federal:        finance.RoundCents(base.Mul(federalWithholdingRate)),
		State:          finance.RoundCents(base.Mul(stateWithholdingRate)),
		SocialSecurity: finance.RoundCents(base.Mul(socialSecurityRate)),
		Medicare:       finance.RoundCents(base.Mul(medicareRate)),
	}
	w.Total = w.Federal.Add(w.State).Add(w.SocialSecurity).Add(w.Medicare)
	return w
}

func sumAdjustments(lines []Adjustment) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Amount)
	}
	return total
}

// ChargeFromTimerSnapshot is a convenience for callers turning stopped
// accessorial timers into settlement accessorial lines. The driver portion
// defaults to the full charge; brokered loads pass their own split.
func ChargeFromTimerSnapshot(timerID finance.TimerID, code string, amount, driverPortion decimal.Decimal) AccessorialCharge {
	if driverPortion.IsZero() {
		driverPortion = amount
	}
	return AccessorialCharge{
		Code:          code,
		Description:   code + " charge",
		Amount:        amount,
		DriverPortion: driverPortion,
		TimerID:       timerID,
	}
}
