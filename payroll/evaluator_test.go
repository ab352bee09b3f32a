/*
evaluator_test.go - Pay rule evaluation per structure

Each pay structure gets a worked example with hand-computed expected values,
plus the cross-cutting rules: the minimum pay floor, the fuel-percentage
fallback, and zero-revenue loads.
*/
package payroll_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulline/settlement-engine/finance"
	"github.com/haulline/settlement-engine/payroll"
)

func d(s string) decimal.Decimal { return finance.MustParseDecimal(s) }

func TestEvaluate_PerMile(t *testing.T) {
	// 500 loaded @ 0.65 + 120 empty @ 0.40 = 325 + 48 = 373.00
	load := payroll.LoadFacts{LoadedMiles: d("500"), EmptyMiles: d("120")}
	profile := payroll.DriverPayProfile{
		PayStructure:   payroll.PayPerMile,
		LoadedMileRate: d("0.65"),
		EmptyMileRate:  d("0.40"),
	}

	result, err := payroll.Evaluate(load, profile)
	require.NoError(t, err)
	assert.Equal(t, "373.00", result.Pay.StringFixed(2))
	assert.Contains(t, result.Method, "per-mile")
}

func TestEvaluate_Percentage(t *testing.T) {
	// 70% of 1000 linehaul + 70% of 100 fuel (fallback) + 50 driver portion
	// = 700 + 70 + 50 = 820.00
	load := payroll.LoadFacts{
		Linehaul:      d("1000"),
		FuelSurcharge: d("100"),
		Accessorials: []payroll.AccessorialCharge{
			{Code: "DETENTION", Amount: d("93.75"), DriverPortion: d("50")},
		},
	}
	profile := payroll.DriverPayProfile{
		PayStructure:       payroll.PayPercentage,
		LinehaulPercentage: d("70"),
	}

	result, err := payroll.Evaluate(load, profile)
	require.NoError(t, err)
	assert.Equal(t, "820.00", result.Pay.StringFixed(2))
}

func TestEvaluate_Percentage_FuelRateWhenSet(t *testing.T) {
	// 70% of 1000 + 100% of 100 fuel = 800.00
	load := payroll.LoadFacts{Linehaul: d("1000"), FuelSurcharge: d("100")}
	profile := payroll.DriverPayProfile{
		PayStructure:            payroll.PayPercentage,
		LinehaulPercentage:      d("70"),
		FuelSurchargePercentage: d("100"),
	}

	result, err := payroll.Evaluate(load, profile)
	require.NoError(t, err)
	assert.Equal(t, "800.00", result.Pay.StringFixed(2))
}

func TestEvaluate_Percentage_ZeroRevenueLoadPaysZero(t *testing.T) {
	// A deadhead repositioning load with no revenue legitimately pays zero.
	load := payroll.LoadFacts{EmptyMiles: d("200")}
	profile := payroll.DriverPayProfile{
		PayStructure:       payroll.PayPercentage,
		LinehaulPercentage: d("70"),
	}

	result, err := payroll.Evaluate(load, profile)
	require.NoError(t, err)
	assert.True(t, result.Pay.IsZero())
}

func TestEvaluate_FlatRate(t *testing.T) {
	load := payroll.LoadFacts{Linehaul: d("5000")}
	profile := payroll.DriverPayProfile{
		PayStructure:    payroll.PayFlatRate,
		FlatRatePerLoad: d("450"),
	}

	result, err := payroll.Evaluate(load, profile)
	require.NoError(t, err)
	assert.Equal(t, "450.00", result.Pay.StringFixed(2))
	assert.Equal(t, "flat rate per load", result.Method)
}

func TestEvaluate_Hourly(t *testing.T) {
	// 9.5 h @ 28.50 = 270.75
	load := payroll.LoadFacts{HoursWorked: d("9.5")}
	profile := payroll.DriverPayProfile{
		PayStructure: payroll.PayHourly,
		HourlyRate:   d("28.50"),
	}

	result, err := payroll.Evaluate(load, profile)
	require.NoError(t, err)
	assert.Equal(t, "270.75", result.Pay.StringFixed(2))
}

func TestEvaluate_Hybrid_TakesLargerLeg(t *testing.T) {
	profile := payroll.DriverPayProfile{
		PayStructure:       payroll.PayHybrid,
		LinehaulPercentage: d("70"),
		LoadedMileRate:     d("0.60"),
		EmptyMileRate:      d("0.40"),
	}

	t.Run("percentage wins on high-revenue load", func(t *testing.T) {
		// pct: 70% of 2000 = 1400; per-mile: 400*0.60 = 240
		load := payroll.LoadFacts{Linehaul: d("2000"), LoadedMiles: d("400")}
		result, err := payroll.Evaluate(load, profile)
		require.NoError(t, err)
		assert.Equal(t, "1400.00", result.Pay.StringFixed(2))
		assert.Contains(t, result.Method, "percentage (1400) over per-mile (240)")
	})

	t.Run("per-mile wins on cheap long haul", func(t *testing.T) {
		// pct: 70% of 300 = 210; per-mile: 800*0.60 = 480
		load := payroll.LoadFacts{Linehaul: d("300"), LoadedMiles: d("800")}
		result, err := payroll.Evaluate(load, profile)
		require.NoError(t, err)
		assert.Equal(t, "480.00", result.Pay.StringFixed(2))
		assert.Contains(t, result.Method, "per-mile (480) over percentage (210)")
	})
}

func TestEvaluate_MinimumPayFloor(t *testing.T) {
	// Computed 48.00 is below the 150 floor.
	load := payroll.LoadFacts{LoadedMiles: d("80")}
	profile := payroll.DriverPayProfile{
		PayStructure:   payroll.PayPerMile,
		LoadedMileRate: d("0.60"),
		MinimumPay:     d("150"),
	}

	result, err := payroll.Evaluate(load, profile)
	require.NoError(t, err)
	assert.Equal(t, "150.00", result.Pay.StringFixed(2))
	assert.Contains(t, result.Method, "(minimum pay floor applied)")
}

func TestEvaluate_UnknownStructure(t *testing.T) {
	_, err := payroll.Evaluate(payroll.LoadFacts{}, payroll.DriverPayProfile{
		PayStructure: payroll.PayStructure("BARTER"),
	})
	require.ErrorIs(t, err, payroll.ErrUnknownPayStructure)
	assert.Contains(t, err.Error(), "BARTER")
}
