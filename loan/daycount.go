package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAY COUNT - Interest accrual conventions for odd-day periods
// =============================================================================

type DayCount string

const (
	// DayCountActual365: actual elapsed days over a 365-day year.
	DayCountActual365 DayCount = "ACTUAL/365"

	// DayCount30360: 30-day months over a 360-day year (US bond basis).
	DayCount30360 DayCount = "30/360"
)

func ValidDayCount(dc DayCount) bool {
	return dc == DayCountActual365 || dc == DayCount30360
}

var (
	days360 = decimal.NewFromInt(360)
	days365 = decimal.NewFromInt(365)
)

// DayCountFraction returns the year fraction between two dates under the
// given convention. Returns zero when to is not after from.
func DayCountFraction(dc DayCount, from, to time.Time) decimal.Decimal {
	if !to.After(from) {
		return decimal.Zero
	}
	switch dc {
	case DayCount30360:
		return decimal.NewFromInt(int64(days30360(from, to))).Div(days360)
	default:
		days := int64(to.Sub(from).Hours() / 24)
		return decimal.NewFromInt(days).Div(days365)
	}
}

// days30360 counts days using the US 30/360 convention: every month is
// treated as 30 days, with day-31 clamped (and day-31 end clamped only
// when the start was also 30 or 31).
func days30360(from, to time.Time) int {
	d1, d2 := from.Day(), to.Day()
	if d1 == 31 {
		d1 = 30
	}
	if d2 == 31 && d1 == 30 {
		d2 = 30
	}
	y := to.Year() - from.Year()
	m := int(to.Month()) - int(from.Month())
	return y*360 + m*30 + (d2 - d1)
}

// AccruedInterest computes simple interest on a balance between two dates.
// The result is unrounded; callers round with the loan's method.
func AccruedInterest(balance, annualRatePct decimal.Decimal, dc DayCount, from, to time.Time) decimal.Decimal {
	return balance.Mul(annualRatePct.Div(Hundred)).Mul(DayCountFraction(dc, from, to))
}
