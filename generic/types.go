/*
Package generic provides the domain-agnostic building blocks of the pay engine.

PURPOSE:
  Time arithmetic, periods, the public-holiday calendar and decimal helpers
  shared by every computation package. Nothing here knows about workers,
  contracts or surcharges.

KEY CONCEPTS:
  - Period: the closed window a computation is scoped to
  - HolidayCalendar: public-holiday lookup (French statutory + stored extras)
  - Business day: Monday to Saturday, holidays included
  - Hours: decimal.Decimal quantities, never float64

DESIGN PRINCIPLES:
  1. Precision: uses decimal.Decimal so bucket sums stay exact
  2. Locality: days are taken in the location of the instant they come from

SEE ALSO:
  - calendar.go: holidays and business days
  - period.go: Period type
  - errors.go: sentinel errors
*/
package generic

import (
	"github.com/shopspring/decimal"
)

var (
	sixty = decimal.NewFromInt(60)

	// WeeksPerMonth converts weekly contract hours into monthly hours.
	WeeksPerMonth = decimal.NewFromInt(52).Div(decimal.NewFromInt(12))
)

// MinutesToHours converts a minute count into decimal hours.
func MinutesToHours(minutes decimal.Decimal) decimal.Decimal {
	return minutes.Div(sixty)
}

// Minutes wraps an integer minute count.
func Minutes(m int64) decimal.Decimal { return decimal.NewFromInt(m) }

// MustParseDecimal parses s or returns zero.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// NonNegative floors d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
