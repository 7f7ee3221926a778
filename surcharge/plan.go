/*
Package surcharge classifies the paid time of an event into surcharged and
non-surcharged hours according to a surcharge plan.

PURPOSE:
  Customers' services may carry a surcharge plan: a set of percentage rates
  applied to hours worked on particular days (Sundays, public holidays, ...)
  or inside particular clock windows (evenings, a custom window). The pay
  engine reports how many hours fell under each rule so payroll can apply
  the rates.

KEY CONCEPTS:
  - Day rules: 25 December, 1 May, public holiday, Saturday, Sunday.
    Evaluated in that fixed order; the first one that applies takes the
    whole block.
  - Window rules: evening and custom, each a clock window on the event's
    calendar day. Evaluated only when no day rule applied; both may apply.
  - Details: cumulative hours per plan and rule, with the rate in force.

SEE ALSO:
  - split.go: Engine.Split
  - details.go: Details accumulation and JSON shape
*/
package surcharge

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/pay-engine/generic"
)

// Rule names a surcharge rule. The values are the keys used in details.
type Rule string

const (
	RuleTwentyFifthOfDecember Rule = "twentyFifthOfDecember"
	RuleFirstOfMay            Rule = "firstOfMay"
	RulePublicHoliday         Rule = "publicHoliday"
	RuleSaturday              Rule = "saturday"
	RuleSunday                Rule = "sunday"
	RuleEvening               Rule = "evening"
	RuleCustom                Rule = "custom"
)

// Plan is a surcharge plan. Rates are percentages; a zero rate disables the
// rule. Window bounds are "HH:MM" strings, empty when the window is unused.
type Plan struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	Saturday              decimal.Decimal `json:"saturday"`
	Sunday                decimal.Decimal `json:"sunday"`
	PublicHoliday         decimal.Decimal `json:"publicHoliday"`
	TwentyFifthOfDecember decimal.Decimal `json:"twentyFifthOfDecember"`
	FirstOfMay            decimal.Decimal `json:"firstOfMay"`
	Evening               decimal.Decimal `json:"evening"`
	EveningStartTime      string          `json:"eveningStartTime,omitempty"`
	EveningEndTime        string          `json:"eveningEndTime,omitempty"`
	Custom                decimal.Decimal `json:"custom"`
	CustomStartTime       string          `json:"customStartTime,omitempty"`
	CustomEndTime         string          `json:"customEndTime,omitempty"`
}

// Rate returns the plan's rate for a rule.
func (p Plan) Rate(r Rule) decimal.Decimal {
	switch r {
	case RuleTwentyFifthOfDecember:
		return p.TwentyFifthOfDecember
	case RuleFirstOfMay:
		return p.FirstOfMay
	case RulePublicHoliday:
		return p.PublicHoliday
	case RuleSaturday:
		return p.Saturday
	case RuleSunday:
		return p.Sunday
	case RuleEvening:
		return p.Evening
	case RuleCustom:
		return p.Custom
	default:
		return decimal.Zero
	}
}

// Window is an enabled clock window of a plan.
type Window struct {
	Rule  Rule
	Rate  decimal.Decimal
	Start generic.ClockTime
	End   generic.ClockTime
}

// SpansMidnight reports whether the window ends on the next day.
func (w Window) SpansMidnight() bool { return w.End.Before(w.Start) }

// Windows returns the enabled windows, evening first. A window is enabled
// when its rate is positive and both bounds parse; malformed bounds disable
// it (Validate reports them).
func (p Plan) Windows() []Window {
	var ws []Window
	for _, cfg := range p.windowConfigs() {
		if !cfg.rate.IsPositive() || cfg.start == "" || cfg.end == "" {
			continue
		}
		start, err := generic.ParseClock(cfg.start)
		if err != nil {
			continue
		}
		end, err := generic.ParseClock(cfg.end)
		if err != nil {
			continue
		}
		ws = append(ws, Window{Rule: cfg.rule, Rate: cfg.rate, Start: start, End: end})
	}
	return ws
}

type windowConfig struct {
	rule       Rule
	rate       decimal.Decimal
	start, end string
}

func (p Plan) windowConfigs() []windowConfig {
	return []windowConfig{
		{RuleEvening, p.Evening, p.EveningStartTime, p.EveningEndTime},
		{RuleCustom, p.Custom, p.CustomStartTime, p.CustomEndTime},
	}
}

// Validate checks rates are not negative and that windows with a rate have
// well-formed bounds.
func (p Plan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("surcharge plan %q: missing id", p.Name)
	}
	for _, r := range append(DayRules(), RuleEvening, RuleCustom) {
		if p.Rate(r).IsNegative() {
			return fmt.Errorf("surcharge plan %s: negative %s rate", p.ID, r)
		}
	}
	for _, cfg := range p.windowConfigs() {
		if !cfg.rate.IsPositive() {
			continue
		}
		if _, err := generic.ParseClock(cfg.start); err != nil {
			return fmt.Errorf("surcharge plan %s: %s start: %w", p.ID, cfg.rule, err)
		}
		if _, err := generic.ParseClock(cfg.end); err != nil {
			return fmt.Errorf("surcharge plan %s: %s end: %w", p.ID, cfg.rule, err)
		}
	}
	return nil
}

// Plans indexes plans by id.
type Plans map[string]Plan

func NewPlans(plans ...Plan) Plans {
	ps := make(Plans, len(plans))
	for _, p := range plans {
		ps[p.ID] = p
	}
	return ps
}

// Get returns the plan with the given id, nil when id is empty or unknown.
func (ps Plans) Get(id string) *Plan {
	if id == "" {
		return nil
	}
	p, ok := ps[id]
	if !ok {
		return nil
	}
	return &p
}
