package surcharge

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/planning"
)

// =============================================================================
// DAY RULES - Evaluated in order, first match takes the whole block
// =============================================================================

type dayRule struct {
	rule    Rule
	applies func(cal generic.HolidayCalendar, companyID string, day time.Time) bool
}

var dayRules = []dayRule{
	{RuleTwentyFifthOfDecember, func(_ generic.HolidayCalendar, _ string, d time.Time) bool {
		return d.Month() == time.December && d.Day() == 25
	}},
	{RuleFirstOfMay, func(_ generic.HolidayCalendar, _ string, d time.Time) bool {
		return d.Month() == time.May && d.Day() == 1
	}},
	{RulePublicHoliday, func(cal generic.HolidayCalendar, companyID string, d time.Time) bool {
		return cal != nil && cal.IsHoliday(companyID, d)
	}},
	{RuleSaturday, func(_ generic.HolidayCalendar, _ string, d time.Time) bool {
		return generic.IsSaturday(d)
	}},
	{RuleSunday, func(_ generic.HolidayCalendar, _ string, d time.Time) bool {
		return generic.IsSunday(d)
	}},
}

// DayRules returns the day rules in priority order.
func DayRules() []Rule {
	rules := make([]Rule, len(dayRules))
	for i, r := range dayRules {
		rules[i] = r.rule
	}
	return rules
}

// =============================================================================
// ENGINE
// =============================================================================

// Split is the classification of one event's paid time, in hours.
type Split struct {
	Surcharged    decimal.Decimal
	NotSurcharged decimal.Decimal
	PaidKm        decimal.Decimal
}

// Engine splits events against surcharge plans. The calendar decides the
// public-holiday rule for CompanyID.
type Engine struct {
	Calendar  generic.HolidayCalendar
	CompanyID string
}

func NewEngine(cal generic.HolidayCalendar, companyID string) *Engine {
	return &Engine{Calendar: cal, CompanyID: companyID}
}

// MatchDayRule returns the first day rule of the plan applying to day.
func (e *Engine) MatchDayRule(plan Plan, day time.Time) (Rule, bool) {
	for _, dr := range dayRules {
		if plan.Rate(dr.rule).IsPositive() && dr.applies(e.Calendar, e.CompanyID, day) {
			return dr.rule, true
		}
	}
	return "", false
}

// Split classifies the paid time of event (its duration plus the paid
// transport before it). Surcharged hours are accumulated into details under
// the plan. A nil plan leaves everything not surcharged.
func (e *Engine) Split(event planning.Event, plan *Plan, details Details, paid planning.PaidTransport) Split {
	transportMinutes := paid.Duration
	paidMinutes := generic.Minutes(event.Duration()).Add(transportMinutes)
	paidHours := generic.MinutesToHours(paidMinutes)

	result := Split{Surcharged: decimal.Zero, NotSurcharged: paidHours, PaidKm: paid.Distance}
	if plan == nil {
		return result
	}

	if rule, ok := e.MatchDayRule(*plan, event.StartDate); ok {
		if details != nil {
			details.Add(*plan, rule, paidHours, plan.Rate(rule))
		}
		result.Surcharged = paidHours
		result.NotSurcharged = decimal.Zero
		return result
	}

	surcharged := decimal.Zero
	for _, w := range plan.Windows() {
		start, end := w.On(event.StartDate)
		hours := WindowHours(event.StartDate, event.EndDate, start, end, paidHours, transportMinutes)
		if !hours.IsPositive() {
			continue
		}
		if details != nil {
			details.Add(*plan, w.Rule, hours, w.Rate)
		}
		surcharged = surcharged.Add(hours)
	}
	result.Surcharged = surcharged
	result.NotSurcharged = paidHours.Sub(surcharged)
	return result
}

// On places the window on day's calendar date. When the window spans
// midnight its end falls on the next day.
func (w Window) On(day time.Time) (time.Time, time.Time) {
	start := w.Start.On(day)
	end := w.End.On(day)
	if w.SpansMidnight() {
		end = end.AddDate(0, 0, 1)
	}
	return start, end
}

// WindowHours returns the hours of an event falling inside a window.
//
//	window contains the event           -> paidHours
//	window covers the event's beginning -> window end - event start, plus transport
//	window covers the event's end       -> event end - window start
//	window strictly inside the event    -> window length
//	no overlap                          -> 0
//
// Transport is travel done before the event, so it only follows the
// beginning of the event.
func WindowHours(eventStart, eventEnd, windowStart, windowEnd time.Time, paidHours, transportMinutes decimal.Decimal) decimal.Decimal {
	if !windowStart.Before(eventEnd) || !windowEnd.After(eventStart) {
		return decimal.Zero
	}

	coversStart := !windowStart.After(eventStart)
	coversEnd := !windowEnd.Before(eventEnd)

	var minutes decimal.Decimal
	switch {
	case coversStart && coversEnd:
		return paidHours
	case coversStart:
		minutes = generic.Minutes(generic.MinutesBetween(eventStart, windowEnd)).Add(transportMinutes)
	case coversEnd:
		minutes = generic.Minutes(generic.MinutesBetween(windowStart, eventEnd))
	default:
		minutes = generic.Minutes(generic.MinutesBetween(windowStart, windowEnd))
	}
	return generic.MinutesToHours(minutes)
}
