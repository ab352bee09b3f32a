/*
evaluator.go - Per-load pay rule evaluation

PURPOSE:
  Maps one load's revenue/mileage facts plus a driver's pay profile to a
  single pay amount and a human-readable method description. Pure function,
  no side effects, no clock.

STRUCTURES:
  PER_MILE:   loadedMiles * loadedRate + emptyMiles * emptyRate
  PERCENTAGE: linehaul * lh% + fuelSurcharge * (fuel% or lh%) + driver
              portions of accessorials
  FLAT_RATE:  flat amount per load
  HOURLY:     hoursWorked * hourlyRate
  HYBRID:     max(percentage amount, per-mile amount) - the driver gets
              whichever is larger

  Any structure: when MinimumPay is set and the computed pay is lower, the
  pay is raised to the minimum and the method string discloses the floor.

  The result is rounded to cents once, at the end. A load with zero revenue
  and a PERCENTAGE structure legitimately yields zero pay.
*/
package payroll

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/haulline/settlement-engine/finance"
)

var oneHundred = decimal.NewFromInt(100)

// Evaluate computes one load's driver pay under the given profile.
// Returns ErrUnknownPayStructure for an unrecognized structure.
func Evaluate(load LoadFacts, profile DriverPayProfile) (PayResult, error) {
	var (
		pay    decimal.Decimal
		method string
	)

	switch profile.PayStructure {
	case PayPerMile:
		pay = perMilePay(load, profile)
		method = perMileMethod(load, profile)

	case PayPercentage:
		pay = percentagePay(load, profile)
		method = percentageMethod(profile)

	case PayFlatRate:
		pay = profile.FlatRatePerLoad
		method = "flat rate per load"

	case PayHourly:
		pay = load.HoursWorked.Mul(profile.HourlyRate)
		method = fmt.Sprintf("hourly: %s h @ %s/h", load.HoursWorked.String(), profile.HourlyRate.String())

	case PayHybrid:
		pct := percentagePay(load, profile)
		mile := perMilePay(load, profile)
		// Floor protection: pay whichever is larger.
		if pct.GreaterThanOrEqual(mile) {
			pay = pct
			method = fmt.Sprintf("hybrid: percentage (%s) over per-mile (%s)",
				finance.RoundCents(pct).String(), finance.RoundCents(mile).String())
		} else {
			pay = mile
			method = fmt.Sprintf("hybrid: per-mile (%s) over percentage (%s)",
				finance.RoundCents(mile).String(), finance.RoundCents(pct).String())
		}

	default:
		return PayResult{}, &UnknownPayStructureError{Structure: profile.PayStructure}
	}

	if profile.MinimumPay.IsPositive() && pay.LessThan(profile.MinimumPay) {
		pay = profile.MinimumPay
		method += " (minimum pay floor applied)"
	}

	return PayResult{Pay: finance.RoundCents(pay), Method: method}, nil
}

func perMilePay(load LoadFacts, profile DriverPayProfile) decimal.Decimal {
	loaded := load.LoadedMiles.Mul(profile.LoadedMileRate)
	empty := load.EmptyMiles.Mul(profile.EmptyMileRate)
	return loaded.Add(empty)
}

func perMileMethod(load LoadFacts, profile DriverPayProfile) string {
	return fmt.Sprintf("per-mile: %s loaded @ %s + %s empty @ %s",
		load.LoadedMiles.String(), profile.LoadedMileRate.String(),
		load.EmptyMiles.String(), profile.EmptyMileRate.String())
}

func percentagePay(load LoadFacts, profile DriverPayProfile) decimal.Decimal {
	fuelPct := profile.FuelSurchargePercentage
	if fuelPct.IsZero() {
		fuelPct = profile.LinehaulPercentage
	}

	pay := load.Linehaul.Mul(profile.LinehaulPercentage).Div(oneHundred)
	pay = pay.Add(load.FuelSurcharge.Mul(fuelPct).Div(oneHundred))
	for _, a := range load.Accessorials {
		pay = pay.Add(a.DriverPortion)
	}
	return pay
}

func percentageMethod(profile DriverPayProfile) string {
	fuelPct := profile.FuelSurchargePercentage
	if fuelPct.IsZero() {
		fuelPct = profile.LinehaulPercentage
	}
	return fmt.Sprintf("percentage: %s%% linehaul + %s%% fuel surcharge + accessorial driver portions",
		profile.LinehaulPercentage.String(), fuelPct.String())
}
