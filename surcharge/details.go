package surcharge

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DETAILS - Cumulative hours per plan and rule
// =============================================================================

// RuleDetail is the hours accumulated under a rule and the rate last seen.
type RuleDetail struct {
	Hours      decimal.Decimal `json:"hours"`
	Percentage decimal.Decimal `json:"percentage"`
}

// PlanDetail groups the rule details of one plan.
// It encodes flat, rules next to the plan name:
//
//	{"planName": "Standard", "sunday": {"hours": "2.5", "percentage": "20"}}
type PlanDetail struct {
	PlanName string
	Rules    map[Rule]*RuleDetail
}

const planNameKey = "planName"

func (d PlanDetail) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(d.Rules)+1)
	out[planNameKey] = d.PlanName
	for r, rd := range d.Rules {
		out[string(r)] = rd
	}
	return json.Marshal(out)
}

func (d *PlanDetail) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Rules = make(map[Rule]*RuleDetail, len(raw))
	for k, v := range raw {
		if k == planNameKey {
			if err := json.Unmarshal(v, &d.PlanName); err != nil {
				return fmt.Errorf("plan name: %w", err)
			}
			continue
		}
		var rd RuleDetail
		if err := json.Unmarshal(v, &rd); err != nil {
			return fmt.Errorf("rule %s: %w", k, err)
		}
		d.Rules[Rule(k)] = &rd
	}
	return nil
}

// Details maps plan id to its plan detail. A nil Details is read-only.
type Details map[string]*PlanDetail

// Add accumulates hours under (plan, rule) and overwrites the rate.
// The plan name is recorded the first time the plan is seen.
func (d Details) Add(plan Plan, rule Rule, hours, rate decimal.Decimal) {
	pd, ok := d[plan.ID]
	if !ok {
		pd = &PlanDetail{PlanName: plan.Name, Rules: make(map[Rule]*RuleDetail)}
		d[plan.ID] = pd
	}
	rd, ok := pd.Rules[rule]
	if !ok {
		rd = &RuleDetail{Hours: decimal.Zero}
		pd.Rules[rule] = rd
	}
	rd.Hours = rd.Hours.Add(hours)
	rd.Percentage = rate
}

// Hours returns the hours recorded under (planID, rule).
func (d Details) Hours(planID string, rule Rule) decimal.Decimal {
	pd, ok := d[planID]
	if !ok {
		return decimal.Zero
	}
	rd, ok := pd.Rules[rule]
	if !ok {
		return decimal.Zero
	}
	return rd.Hours
}

// Total sums every rule of every plan.
func (d Details) Total() decimal.Decimal {
	total := decimal.Zero
	for _, pd := range d {
		for _, rd := range pd.Rules {
			total = total.Add(rd.Hours)
		}
	}
	return total
}

// PlanIDs returns the plan ids in sorted order.
func (d Details) PlanIDs() []string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy.
func (d Details) Clone() Details {
	out := make(Details, len(d))
	for id, pd := range d {
		rules := make(map[Rule]*RuleDetail, len(pd.Rules))
		for r, rd := range pd.Rules {
			c := *rd
			rules[r] = &c
		}
		out[id] = &PlanDetail{PlanName: pd.PlanName, Rules: rules}
	}
	return out
}
