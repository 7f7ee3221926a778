/*
Package hours turns a worker's calendar into hour totals.

PURPOSE:
  The aggregator walks a worker's day-grouped events, resolves the paid
  transport before each one, splits its paid time against the surcharge plan
  of its service and routes the result into one of four buckets. The absence
  and contract helpers compute the other two inputs of a pay record: hours
  of absence and contractual hours for the period.

BUCKETS:
  Every paid hour lands in exactly one of

                        not exempt                     exempt
    not surcharged      NotSurchargedAndNotExempt      NotSurchargedAndExempt
    surcharged          SurchargedAndNotExempt         SurchargedAndExempt

  so WorkedHours always equals their sum. Internal hours have no service and
  land in the not-exempt column.

SEE ALSO:
  - transport/resolver.go: paid transport
  - surcharge/split.go: surcharge split
  - pay/composer.go: caller
*/
package hours

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/planning"
	"github.com/warp/pay-engine/surcharge"
	"github.com/warp/pay-engine/transport"
)

// =============================================================================
// EVENT HOURS
// =============================================================================

// Hours are the worked-time totals of a worker over a period.
type Hours struct {
	WorkedHours                   decimal.Decimal   `json:"workedHours"`
	NotSurchargedAndNotExempt     decimal.Decimal   `json:"notSurchargedAndNotExempt"`
	SurchargedAndNotExempt        decimal.Decimal   `json:"surchargedAndNotExempt"`
	SurchargedAndNotExemptDetails surcharge.Details `json:"surchargedAndNotExemptDetails"`
	NotSurchargedAndExempt        decimal.Decimal   `json:"notSurchargedAndExempt"`
	SurchargedAndExempt           decimal.Decimal   `json:"surchargedAndExempt"`
	SurchargedAndExemptDetails    surcharge.Details `json:"surchargedAndExemptDetails"`
	PaidKm                        decimal.Decimal   `json:"paidKm"`
	PaidTransportHours            decimal.Decimal   `json:"paidTransportHours"`
	InternalHours                 decimal.Decimal   `json:"internalHours"`
}

// NewHours returns zeroed totals with empty detail maps.
func NewHours() Hours {
	return Hours{
		WorkedHours:                   decimal.Zero,
		NotSurchargedAndNotExempt:     decimal.Zero,
		SurchargedAndNotExempt:        decimal.Zero,
		SurchargedAndNotExemptDetails: surcharge.Details{},
		NotSurchargedAndExempt:        decimal.Zero,
		SurchargedAndExempt:           decimal.Zero,
		SurchargedAndExemptDetails:    surcharge.Details{},
		PaidKm:                        decimal.Zero,
		PaidTransportHours:            decimal.Zero,
		InternalHours:                 decimal.Zero,
	}
}

// BucketSum returns the sum of the four buckets.
func (h Hours) BucketSum() decimal.Decimal {
	return h.NotSurchargedAndNotExempt.
		Add(h.SurchargedAndNotExempt).
		Add(h.NotSurchargedAndExempt).
		Add(h.SurchargedAndExempt)
}

func (h *Hours) add(split surcharge.Split, exempt bool) {
	if exempt {
		h.NotSurchargedAndExempt = h.NotSurchargedAndExempt.Add(split.NotSurcharged)
		h.SurchargedAndExempt = h.SurchargedAndExempt.Add(split.Surcharged)
	} else {
		h.NotSurchargedAndNotExempt = h.NotSurchargedAndNotExempt.Add(split.NotSurcharged)
		h.SurchargedAndNotExempt = h.SurchargedAndNotExempt.Add(split.Surcharged)
	}
	h.WorkedHours = h.WorkedHours.Add(split.Surcharged).Add(split.NotSurcharged)
	h.PaidKm = h.PaidKm.Add(split.PaidKm)
}

// Aggregator computes Hours from events. Every dependency is optional:
// without a resolver no transport is paid, without services or plans nothing
// is surcharged.
type Aggregator struct {
	Transport  *transport.Resolver
	Surcharges *surcharge.Engine
	Services   planning.ServiceResolver
	Plans      surcharge.Plans
}

// FromEvents aggregates day-grouped events of one worker over period.
// Events are clipped to the period; those entirely outside contribute nothing.
func (a *Aggregator) FromEvents(ctx context.Context, days [][]planning.Event, worker planning.Worker, cache *transport.Cache, period generic.Period) Hours {
	h := NewHours()
	engine := a.Surcharges
	if engine == nil {
		engine = surcharge.NewEngine(nil, worker.CompanyID)
	}

	for _, day := range days {
		events := clipDay(day, period)
		for i, event := range events {
			if event.HasFixedService {
				continue
			}

			var prev *planning.Event
			if i > 0 {
				prev = &events[i-1]
			}
			paid := a.paidTransport(ctx, cache, prev, event, worker)

			plan, exempt := a.serviceSettings(event)
			details := h.SurchargedAndNotExemptDetails
			if exempt {
				details = h.SurchargedAndExemptDetails
			}

			split := engine.Split(event, plan, details, paid)
			h.add(split, exempt)
			h.PaidTransportHours = h.PaidTransportHours.Add(generic.MinutesToHours(paid.Duration))
			if event.Type == planning.EventInternalHour {
				h.InternalHours = h.InternalHours.Add(split.Surcharged).Add(split.NotSurcharged)
			}
		}
	}
	return h
}

func (a *Aggregator) paidTransport(ctx context.Context, cache *transport.Cache, prev *planning.Event, event planning.Event, worker planning.Worker) planning.PaidTransport {
	if a.Transport == nil {
		return planning.PaidTransport{Duration: decimal.Zero, Distance: decimal.Zero}
	}
	return a.Transport.PaidTransport(ctx, cache, prev, event, worker)
}

// serviceSettings returns the surcharge plan and exemption of an event.
// Only interventions have a service; an unresolvable one is neither
// surcharged nor exempt.
func (a *Aggregator) serviceSettings(event planning.Event) (*surcharge.Plan, bool) {
	if event.Type != planning.EventIntervention || a.Services == nil {
		return nil, false
	}
	version, ok := a.Services.ServiceVersion(event, event.StartDate)
	if !ok {
		return nil, false
	}
	return a.Plans.Get(version.SurchargeID), version.ExemptFromCharges
}

// clipDay clips a day's events to the period, drops those left empty and
// sorts the rest by start.
func clipDay(day []planning.Event, period generic.Period) []planning.Event {
	events := make([]planning.Event, 0, len(day))
	for _, e := range day {
		if !period.Overlaps(e.StartDate, e.EndDate) {
			continue
		}
		e.StartDate, e.EndDate = period.Clip(e.StartDate, e.EndDate)
		if e.EndDate.Equal(period.End) {
			// period ends on the last nanosecond of a day
			e.EndDate = period.End.Add(time.Nanosecond)
		}
		if !e.EndDate.After(e.StartDate) {
			continue
		}
		events = append(events, e)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartDate.Before(events[j].StartDate)
	})
	return events
}
