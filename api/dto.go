/*
dto.go - Request/response shapes for the HTTP surface

Monetary fields travel as strings and are parsed with decimal.NewFromString;
float64 would reintroduce the precision problems the core avoids.
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/haulline/settlement-engine/finance"
	"github.com/haulline/settlement-engine/payroll"
	"github.com/haulline/settlement-engine/timer"
)

// =============================================================================
// TIMER DTOs
// =============================================================================

type startTimerRequest struct {
	LoadID     string `json:"loadId"`
	Type       string `json:"type"`
	FacilityID string `json:"facilityId,omitempty"`

	// Optional overrides of the type's default billing parameters.
	FreeTimeMinutes *int    `json:"freeTimeMinutes,omitempty"`
	HourlyRate      *string `json:"hourlyRate,omitempty"`
	MaxChargeHours  *string `json:"maxChargeHours,omitempty"`
	Currency        string  `json:"currency,omitempty"`
}

func (r startTimerRequest) override() (*timer.Config, error) {
	if r.FreeTimeMinutes == nil && r.HourlyRate == nil && r.MaxChargeHours == nil && r.Currency == "" {
		return nil, nil
	}
	cfg := &timer.Config{Currency: r.Currency}
	if r.FreeTimeMinutes != nil {
		cfg.FreeTimeMinutes = *r.FreeTimeMinutes
	}
	if r.HourlyRate != nil {
		rate, err := decimal.NewFromString(*r.HourlyRate)
		if err != nil {
			return nil, fmt.Errorf("invalid hourlyRate: %w", err)
		}
		cfg.HourlyRate = rate
	}
	if r.MaxChargeHours != nil {
		capHours, err := decimal.NewFromString(*r.MaxChargeHours)
		if err != nil {
			return nil, fmt.Errorf("invalid maxChargeHours: %w", err)
		}
		cfg.MaxChargeHours = &capHours
	}
	return cfg, nil
}

type waiveTimerRequest struct {
	WaivedBy string `json:"waivedBy"`
	Reason   string `json:"reason"`
}

type snapshotDTO struct {
	TimerID                  string    `json:"timerId"`
	LoadID                   string    `json:"loadId"`
	FacilityID               string    `json:"facilityId,omitempty"`
	Type                     string    `json:"type"`
	PersistedStatus          string    `json:"persistedStatus"`
	EffectiveStatus          string    `json:"effectiveStatus"`
	StartedAt                time.Time `json:"startedAt"`
	FreeTimeEndsAt           time.Time `json:"freeTimeEndsAt"`
	ElapsedMinutes           int64     `json:"elapsedMinutes"`
	FreeTimeRemainingMinutes int64     `json:"freeTimeRemainingMinutes"`
	BillableMinutes          int64     `json:"billableMinutes"`
	CurrentCharge            string    `json:"currentCharge"`
	Currency                 string    `json:"currency"`
	AsOf                     time.Time `json:"asOf"`
}

func toSnapshotDTO(s timer.Snapshot) snapshotDTO {
	return snapshotDTO{
		TimerID:                  string(s.TimerID),
		LoadID:                   string(s.LoadID),
		FacilityID:               string(s.FacilityID),
		Type:                     string(s.Type),
		PersistedStatus:          string(s.PersistedStatus),
		EffectiveStatus:          string(s.EffectiveStatus),
		StartedAt:                s.StartedAt,
		FreeTimeEndsAt:           s.FreeTimeEndsAt,
		ElapsedMinutes:           s.ElapsedMinutes,
		FreeTimeRemainingMinutes: s.FreeTimeRemainingMinutes,
		BillableMinutes:          s.BillableMinutes,
		CurrentCharge:            s.CurrentCharge.StringFixed(2),
		Currency:                 s.Currency,
		AsOf:                     s.AsOf,
	}
}

type timerDTO struct {
	ID               string     `json:"id"`
	LoadID           string     `json:"loadId"`
	FacilityID       string     `json:"facilityId,omitempty"`
	Type             string     `json:"type"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"startedAt"`
	FreeTimeMinutes  int        `json:"freeTimeMinutes"`
	FreeTimeEndsAt   time.Time  `json:"freeTimeEndsAt"`
	HourlyRate       string     `json:"hourlyRate"`
	MaxChargeHours   *string    `json:"maxChargeHours,omitempty"`
	BillingStartedAt *time.Time `json:"billingStartedAt,omitempty"`
	StoppedAt        *time.Time `json:"stoppedAt,omitempty"`
	TotalMinutes     int64      `json:"totalMinutes"`
	BillableMinutes  int64      `json:"billableMinutes"`
	TotalCharge      string     `json:"totalCharge"`
	WaivedBy         string     `json:"waivedBy,omitempty"`
	WaiveReason      string     `json:"waiveReason,omitempty"`
	Currency         string     `json:"currency"`
}

func toTimerDTO(t timer.FinancialTimer) timerDTO {
	dto := timerDTO{
		ID:               string(t.ID),
		LoadID:           string(t.LoadID),
		FacilityID:       string(t.FacilityID),
		Type:             string(t.Type),
		Status:           string(t.Status),
		StartedAt:        t.StartedAt,
		FreeTimeMinutes:  t.FreeTimeMinutes,
		FreeTimeEndsAt:   t.FreeTimeEndsAt,
		HourlyRate:       t.HourlyRate.StringFixed(2),
		BillingStartedAt: t.BillingStartedAt,
		StoppedAt:        t.StoppedAt,
		TotalMinutes:     t.TotalMinutes,
		BillableMinutes:  t.BillableMinutes,
		TotalCharge:      t.TotalCharge.StringFixed(2),
		WaivedBy:         t.WaivedBy,
		WaiveReason:      t.WaiveReason,
		Currency:         t.Currency,
	}
	if t.MaxChargeHours != nil {
		s := t.MaxChargeHours.String()
		dto.MaxChargeHours = &s
	}
	return dto
}

// =============================================================================
// SETTLEMENT DTOs
// =============================================================================

type accessorialDTO struct {
	Code          string `json:"code"`
	Description   string `json:"description,omitempty"`
	Amount        string `json:"amount"`
	DriverPortion string `json:"driverPortion"`
	TimerID       string `json:"timerId,omitempty"`
}

type loadFactsDTO struct {
	LoadID        string           `json:"loadId"`
	LoadNumber    string           `json:"loadNumber,omitempty"`
	LoadedMiles   string           `json:"loadedMiles"`
	EmptyMiles    string           `json:"emptyMiles"`
	Linehaul      string           `json:"linehaul"`
	FuelSurcharge string           `json:"fuelSurcharge"`
	HoursWorked   string           `json:"hoursWorked,omitempty"`
	Accessorials  []accessorialDTO `json:"accessorials,omitempty"`
}

type adjustmentDTO struct {
	Description string `json:"description"`
	Amount      string `json:"amount"`
}

type profileDTO struct {
	PayStructure            string `json:"payStructure"`
	LoadedMileRate          string `json:"loadedMileRate,omitempty"`
	EmptyMileRate           string `json:"emptyMileRate,omitempty"`
	LinehaulPercentage      string `json:"linehaulPercentage,omitempty"`
	FuelSurchargePercentage string `json:"fuelSurchargePercentage,omitempty"`
	FlatRatePerLoad         string `json:"flatRatePerLoad,omitempty"`
	HourlyRate              string `json:"hourlyRate,omitempty"`
	MinimumPay              string `json:"minimumPay,omitempty"`
	SafetyBonus             string `json:"safetyBonus,omitempty"`
	OnTimeBonus             string `json:"onTimeBonus,omitempty"`
	EscrowPercentage        string `json:"escrowPercentage,omitempty"`
	EmployeeType            string `json:"employeeType,omitempty"`
	Currency                string `json:"currency,omitempty"`
}

type createSettlementRequest struct {
	DriverID       string          `json:"driverId"`
	Profile        profileDTO      `json:"profile"`
	Loads          []loadFactsDTO  `json:"loads"`
	Deductions     []adjustmentDTO `json:"deductions,omitempty"`
	Reimbursements []adjustmentDTO `json:"reimbursements,omitempty"`
	PeriodStart    time.Time       `json:"periodStart"`
	PeriodEnd      time.Time       `json:"periodEnd"`
	CreatedBy      string          `json:"createdBy"`
	AllowEmpty     bool            `json:"allowEmpty,omitempty"`
}

func (r createSettlementRequest) toInput() (payroll.AssembleInput, error) {
	profile, err := r.Profile.toProfile(finance.DriverID(r.DriverID))
	if err != nil {
		return payroll.AssembleInput{}, err
	}

	loads := make([]payroll.LoadFacts, 0, len(r.Loads))
	for _, l := range r.Loads {
		facts, err := l.toFacts()
		if err != nil {
			return payroll.AssembleInput{}, err
		}
		loads = append(loads, facts)
	}

	deductions, err := toAdjustments(r.Deductions)
	if err != nil {
		return payroll.AssembleInput{}, fmt.Errorf("deductions: %w", err)
	}
	reimbursements, err := toAdjustments(r.Reimbursements)
	if err != nil {
		return payroll.AssembleInput{}, fmt.Errorf("reimbursements: %w", err)
	}

	return payroll.AssembleInput{
		DriverID:       finance.DriverID(r.DriverID),
		Profile:        profile,
		Loads:          loads,
		Deductions:     deductions,
		Reimbursements: reimbursements,
		PeriodStart:    r.PeriodStart,
		PeriodEnd:      r.PeriodEnd,
		CreatedBy:      r.CreatedBy,
		AllowEmpty:     r.AllowEmpty,
	}, nil
}

func (p profileDTO) toProfile(driverID finance.DriverID) (payroll.DriverPayProfile, error) {
	profile := payroll.DriverPayProfile{
		DriverID:     driverID,
		PayStructure: payroll.PayStructure(p.PayStructure),
		EmployeeType: payroll.EmployeeType(p.EmployeeType),
		Currency:     p.Currency,
	}

	fields := []struct {
		name string
		src  string
		dst  *decimal.Decimal
	}{
		{"loadedMileRate", p.LoadedMileRate, &profile.LoadedMileRate},
		{"emptyMileRate", p.EmptyMileRate, &profile.EmptyMileRate},
		{"linehaulPercentage", p.LinehaulPercentage, &profile.LinehaulPercentage},
		{"fuelSurchargePercentage", p.FuelSurchargePercentage, &profile.FuelSurchargePercentage},
		{"flatRatePerLoad", p.FlatRatePerLoad, &profile.FlatRatePerLoad},
		{"hourlyRate", p.HourlyRate, &profile.HourlyRate},
		{"minimumPay", p.MinimumPay, &profile.MinimumPay},
		{"safetyBonus", p.SafetyBonus, &profile.SafetyBonus},
		{"onTimeBonus", p.OnTimeBonus, &profile.OnTimeBonus},
		{"escrowPercentage", p.EscrowPercentage, &profile.EscrowPercentage},
	}
	for _, f := range fields {
		if f.src == "" {
			continue
		}
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return payroll.DriverPayProfile{}, fmt.Errorf("invalid %s: %w", f.name, err)
		}
		*f.dst = d
	}
	return profile, nil
}

func (l loadFactsDTO) toFacts() (payroll.LoadFacts, error) {
	facts := payroll.LoadFacts{
		LoadID:     finance.LoadID(l.LoadID),
		LoadNumber: l.LoadNumber,
	}

	fields := []struct {
		name string
		src  string
		dst  *decimal.Decimal
	}{
		{"loadedMiles", l.LoadedMiles, &facts.LoadedMiles},
		{"emptyMiles", l.EmptyMiles, &facts.EmptyMiles},
		{"linehaul", l.Linehaul, &facts.Linehaul},
		{"fuelSurcharge", l.FuelSurcharge, &facts.FuelSurcharge},
		{"hoursWorked", l.HoursWorked, &facts.HoursWorked},
	}
	for _, f := range fields {
		if f.src == "" {
			continue
		}
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return payroll.LoadFacts{}, fmt.Errorf("load %s: invalid %s: %w", l.LoadID, f.name, err)
		}
		*f.dst = d
	}

	for _, a := range l.Accessorials {
		amount, err := decimal.NewFromString(a.Amount)
		if err != nil {
			return payroll.LoadFacts{}, fmt.Errorf("load %s: invalid accessorial amount: %w", l.LoadID, err)
		}
		portion, err := decimal.NewFromString(a.DriverPortion)
		if err != nil {
			return payroll.LoadFacts{}, fmt.Errorf("load %s: invalid accessorial driverPortion: %w", l.LoadID, err)
		}
		facts.Accessorials = append(facts.Accessorials, payroll.AccessorialCharge{
			Code:          a.Code,
			Description:   a.Description,
			Amount:        amount,
			DriverPortion: portion,
			TimerID:       finance.TimerID(a.TimerID),
		})
	}
	return facts, nil
}

func toAdjustments(dtos []adjustmentDTO) ([]payroll.Adjustment, error) {
	var out []payroll.Adjustment
	for _, d := range dtos {
		amount, err := decimal.NewFromString(d.Amount)
		if err != nil {
			return nil, fmt.Errorf("%q: invalid amount: %w", d.Description, err)
		}
		out = append(out, payroll.Adjustment{Description: d.Description, Amount: amount})
	}
	return out, nil
}
