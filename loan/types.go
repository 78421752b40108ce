/*
Package loan provides the core loan servicing value types.

PURPOSE:
  This package contains the shared vocabulary of the servicing engine:
  monetary helpers built on decimal arithmetic, rounding and day-count
  conventions, payment frequency, and the immutable LoanTerms snapshot
  that every calculation starts from.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money helpers: parse/format/round decimal monetary values
  - RoundingMethod: HALF_UP, HALF_EVEN, DOWN, UP dispatch
  - PaymentFrequency: how often payments are due
  - AccrualTiming: in-arrears vs in-advance interest accrual

DESIGN PRINCIPLES:
  1. Precision: All money and rates are decimal.Decimal. Binary floating
     point never touches a monetary value.
  2. Immutability: LoanTerms and schedule entries are snapshots; engines
     return new values instead of mutating inputs.
  3. Explicit conventions: rounding and day-count are always carried on
     the terms, never assumed.

USAGE:
  p := loan.MustMoney("250000.00")
  r := loan.MustRate("5.5")
  terms, err := loan.NewTerms(p, r, 360, start)

SEE ALSO:
  - terms.go: LoanTerms and the Loan servicing record
  - amortizer.go: the amortization collaborator contract
  - errors.go: error taxonomy shared by all engine components
*/
package loan

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal monetary helpers
// =============================================================================

// Hundred is used for percentage math (rate/100, cap/100).
var Hundred = decimal.NewFromInt(100)

// ParseMoney parses a decimal monetary string ("1234.56").
func ParseMoney(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// MustMoney parses a monetary string and panics on failure.
// For literals in tests and config defaults only.
func MustMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic("loan: bad money literal: " + s)
	}
	return d
}

// MustRate parses an annual percentage rate literal ("5.5" = 5.5%).
func MustRate(s string) decimal.Decimal {
	return MustMoney(s)
}

// FormatMoney renders a monetary value with exactly two decimal places.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// =============================================================================
// ROUNDING - Monetary rounding dispatch
// =============================================================================

type RoundingMethod string

const (
	RoundHalfUp   RoundingMethod = "HALF_UP"   // ties away from zero (default)
	RoundHalfEven RoundingMethod = "HALF_EVEN" // banker's rounding
	RoundDown     RoundingMethod = "DOWN"      // truncate toward zero
	RoundUp       RoundingMethod = "UP"        // away from zero
)

// MoneyPlaces is the scale monetary values are rounded to.
const MoneyPlaces = 2

// Round rounds a monetary value to MoneyPlaces using the given method.
// Every method must be dispatched here; an unknown method falls back to
// HALF_UP so a bad config degrades to the industry default instead of
// silently truncating.
func Round(d decimal.Decimal, method RoundingMethod) decimal.Decimal {
	switch method {
	case RoundHalfEven:
		return d.RoundBank(MoneyPlaces)
	case RoundDown:
		return d.RoundDown(MoneyPlaces)
	case RoundUp:
		return d.RoundUp(MoneyPlaces)
	default:
		return d.Round(MoneyPlaces)
	}
}

// ValidRounding reports whether the method is one of the supported four.
func ValidRounding(m RoundingMethod) bool {
	switch m {
	case RoundHalfUp, RoundHalfEven, RoundDown, RoundUp:
		return true
	}
	return false
}

// =============================================================================
// RATES - Annual percentage to periodic decimal fraction
// =============================================================================

// PeriodicRate converts an annual percentage rate (5.5 = 5.5%) into the
// per-period decimal fraction for the given frequency.
func PeriodicRate(annualPct decimal.Decimal, freq PaymentFrequency) decimal.Decimal {
	return annualPct.Div(Hundred).Div(decimal.NewFromInt(int64(freq.PeriodsPerYear())))
}

// MonthlyRate is PeriodicRate for the monthly frequency.
func MonthlyRate(annualPct decimal.Decimal) decimal.Decimal {
	return PeriodicRate(annualPct, FrequencyMonthly)
}

// =============================================================================
// PAYMENT FREQUENCY
// =============================================================================

type PaymentFrequency string

const (
	FrequencyMonthly   PaymentFrequency = "MONTHLY"
	FrequencyBiweekly  PaymentFrequency = "BIWEEKLY"
	FrequencyWeekly    PaymentFrequency = "WEEKLY"
	FrequencyQuarterly PaymentFrequency = "QUARTERLY"
)

func (f PaymentFrequency) PeriodsPerYear() int {
	switch f {
	case FrequencyBiweekly:
		return 26
	case FrequencyWeekly:
		return 52
	case FrequencyQuarterly:
		return 4
	default:
		return 12
	}
}

func ValidFrequency(f PaymentFrequency) bool {
	switch f {
	case FrequencyMonthly, FrequencyBiweekly, FrequencyWeekly, FrequencyQuarterly:
		return true
	}
	return false
}

// =============================================================================
// ACCRUAL TIMING - Ordinary annuity vs annuity-due
// =============================================================================

type AccrualTiming string

const (
	// InArrears: interest accrues through the period, payment due at period
	// end (the ordinary annuity; standard for mortgages and consumer loans).
	InArrears AccrualTiming = "IN_ARREARS"

	// InAdvance: payment due at period start (annuity-due; some leases).
	// The level payment is the ordinary payment divided by (1 + r).
	InAdvance AccrualTiming = "IN_ADVANCE"
)

func ValidTiming(t AccrualTiming) bool {
	return t == InArrears || t == InAdvance
}
