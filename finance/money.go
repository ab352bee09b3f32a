/*
Package finance provides the shared leaf types of the settlement core.

PURPOSE:
  This package contains the primitives every other package depends on:
  decimal money helpers, the clock abstraction, and typed identifiers.
  It has no knowledge of timers or settlements.

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal everywhere, never float64
  2. Single rounding point: intermediate results stay unrounded; callers
     round exactly once, at the end of a charge or pay computation
  3. Type safety: strong typing for IDs prevents mixing load/driver/timer IDs

SEE ALSO:
  - clock.go: Time abstraction
  - id.go: Typed identifiers
*/
package finance

import "github.com/shopspring/decimal"

// CurrencyUSD is the default currency for all charges and settlements.
const CurrencyUSD = "USD"

// MustParseDecimal parses a decimal string, panicking on failure. For
// package-level rate constants and test fixtures; request parsing uses
// decimal.NewFromString and reports the error.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("finance: invalid decimal constant " + s)
	}
	return d
}

// RoundCents rounds to two decimal places, half away from zero. Charges and
// pay amounts are never negative, so this behaves as round-half-up.
//
// IMPORTANT: this is applied exactly once, at the final step of each
// charge/pay computation. Rounding intermediate minute/hour conversions
// would compound error across a settlement.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
