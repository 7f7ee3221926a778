package pay

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/hours"
	"github.com/warp/pay-engine/planning"
	"github.com/warp/pay-engine/transport"
)

var half = decimal.NewFromFloat(0.5)

// =============================================================================
// CONTRACT SELECTION
// =============================================================================

// SelectDraftContract returns the company contract active at the end of
// period.
func SelectDraftContract(contracts []planning.Contract, period generic.Period) (planning.Contract, bool) {
	for _, c := range contracts {
		if c.Status == planning.CompanyContract && c.ActiveAt(period.End) {
			return c, true
		}
	}
	return planning.Contract{}, false
}

// SelectFinalContract returns the company contract ending within period.
func SelectFinalContract(contracts []planning.Contract, period generic.Period) (planning.Contract, bool) {
	for _, c := range contracts {
		if c.Status == planning.CompanyContract && c.EndsWithin(period.Start, period.End) {
			return c, true
		}
	}
	return planning.Contract{}, false
}

// SelectStatsContract returns the company contract covering part of period,
// preferring the one still active at its end.
func SelectStatsContract(contracts []planning.Contract, period generic.Period) (planning.Contract, bool) {
	if c, ok := SelectDraftContract(contracts, period); ok {
		return c, true
	}
	for _, c := range contracts {
		if c.Status != planning.CompanyContract || c.StartDate.After(period.End) {
			continue
		}
		if c.EndDate == nil || !c.EndDate.Before(period.Start) {
			return c, true
		}
	}
	return planning.Contract{}, false
}

// =============================================================================
// FORMULAS
// =============================================================================

// HoursToWork is what the contract still asks for once absences are paid.
func HoursToWork(contractHours, absencesHours decimal.Decimal) decimal.Decimal {
	return generic.NonNegative(contractHours.Sub(absencesHours))
}

// HoursBalance is worked hours minus hours to work.
func HoursBalance(workedHours, contractHours, absencesHours decimal.Decimal) decimal.Decimal {
	return workedHours.Sub(HoursToWork(contractHours, absencesHours))
}

// HoursCounter carries the counter of prev into period. Counters restart
// each January.
func HoursCounter(prev *Record, diff Diff, balance decimal.Decimal, period generic.Period) decimal.Decimal {
	if prev == nil || period.StartsYear() {
		return balance
	}
	return prev.HoursCounter.Add(diff.HoursBalance).Add(balance)
}

// TransportRefund is the transport expense refunded to the worker.
//
// Public transport: half the department's pass price, prorated, when the
// worker handed in a receipt. Private car: paid km at the company rate.
func TransportRefund(worker planning.Worker, company planning.Company, workedDaysRatio, paidKm decimal.Decimal) decimal.Decimal {
	switch worker.TransportInvoice.Type {
	case planning.TransportPublic:
		if worker.TransportInvoice.Link == "" {
			return decimal.Zero
		}
		sub, ok := company.TransportSubsidyFor(worker.Department())
		if !ok || !sub.Price.IsPositive() {
			return decimal.Zero
		}
		return sub.Price.Mul(half).Mul(workedDaysRatio)
	case planning.TransportPrivate:
		return paidKm.Mul(company.AmountPerKm)
	default:
		return decimal.Zero
	}
}

// OtherFees is the flat fee prorated by the days worked.
func OtherFees(company planning.Company, workedDaysRatio decimal.Decimal) decimal.Decimal {
	return company.FeeAmount.Mul(workedDaysRatio)
}

// =============================================================================
// COMPOSER
// =============================================================================

// Input is everything known about one worker for one period.
type Input struct {
	Worker   planning.Worker
	Contract planning.Contract
	Events   planning.WorkerEvents
	// PrevPay is the stored record of the previous month, nil when none.
	PrevPay *Record
	// PrevEvents are the previous month's events, read only when PrevPay is set.
	PrevEvents planning.WorkerEvents
	Period     generic.Period
}

// Composer builds pay records for single workers.
type Composer struct {
	Hours   *hours.Aggregator
	Company planning.Company
}

func NewComposer(agg *hours.Aggregator, company planning.Company) *Composer {
	if agg == nil {
		agg = &hours.Aggregator{}
	}
	return &Composer{Hours: agg, Company: company}
}

// DraftPay composes the pay of in.Period.
func (c *Composer) DraftPay(ctx context.Context, cache *transport.Cache, in Input) Record {
	info := hours.ContractMonthInfo(in.Contract, in.Period)
	worked := c.Hours.FromEvents(ctx, in.Events.Events, in.Worker, cache, in.Period)
	absences := hours.AbsenceHours(in.Events.Absences, in.Contract, in.Period)
	diff := c.PrevPayDiff(ctx, cache, in)

	balance := HoursBalance(worked.WorkedHours, info.ContractHours, absences)
	previousCounter := decimal.Zero
	if in.PrevPay != nil {
		previousCounter = in.PrevPay.HoursCounter
	}

	return Record{
		WorkerID:                  in.Worker.ID,
		WorkerName:                in.Worker.Name(),
		CompanyID:                 in.Worker.CompanyID,
		Month:                     in.Period.MonthLabel(),
		StartDate:                 in.Period.Start,
		EndDate:                   in.Period.End,
		ContractHours:             info.ContractHours,
		AbsencesHours:             absences,
		HoursToWork:               HoursToWork(info.ContractHours, absences),
		Hours:                     worked,
		HoursBalance:              balance,
		HoursCounter:              HoursCounter(in.PrevPay, diff, balance, in.Period),
		PreviousMonthHoursCounter: previousCounter,
		Diff:                      diff,
		Transport:                 TransportRefund(in.Worker, c.Company, info.WorkedDaysRatio, worked.PaidKm),
		OtherFees:                 OtherFees(c.Company, info.WorkedDaysRatio),
		Mutual:                    in.Worker.HasMutualFund,
		Bonus:                     decimal.Zero,
	}
}

// DraftFinalPay composes the pay of the month in.Contract ends in. Hours are
// counted up to the end of the contract's last day.
func (c *Composer) DraftFinalPay(ctx context.Context, cache *transport.Cache, in Input) FinalRecord {
	if in.Contract.EndDate != nil {
		in.Period.End = generic.MinTime(in.Period.End, generic.EndOfDay(*in.Contract.EndDate))
	}
	record := c.DraftPay(ctx, cache, in)
	if in.Contract.EndDate != nil {
		record.EndDate = *in.Contract.EndDate
	}
	return FinalRecord{
		Record:              record,
		EndReason:           in.Contract.EndReason,
		EndNotificationDate: in.Contract.EndNotificationDate,
		Compensation:        decimal.Zero,
	}
}

// PrevPayDiff recomputes the month before in.Period with the current
// contract and subtracts the stored in.PrevPay. Zero without a stored pay.
func (c *Composer) PrevPayDiff(ctx context.Context, cache *transport.Cache, in Input) Diff {
	if in.PrevPay == nil {
		return ZeroDiff()
	}
	prevPeriod := in.Period.PreviousMonth()
	info := hours.ContractMonthInfo(in.Contract, prevPeriod)
	worked := c.Hours.FromEvents(ctx, in.PrevEvents.Events, in.Worker, cache, prevPeriod)
	absences := hours.AbsenceHours(in.PrevEvents.Absences, in.Contract, prevPeriod)
	balance := HoursBalance(worked.WorkedHours, info.ContractHours, absences)

	stored := in.PrevPay
	return Diff{
		WorkedHours:               worked.WorkedHours.Sub(stored.WorkedHours),
		NotSurchargedAndNotExempt: worked.NotSurchargedAndNotExempt.Sub(stored.NotSurchargedAndNotExempt),
		SurchargedAndNotExempt:    worked.SurchargedAndNotExempt.Sub(stored.SurchargedAndNotExempt),
		NotSurchargedAndExempt:    worked.NotSurchargedAndExempt.Sub(stored.NotSurchargedAndExempt),
		SurchargedAndExempt:       worked.SurchargedAndExempt.Sub(stored.SurchargedAndExempt),
		PaidKm:                    worked.PaidKm.Sub(stored.PaidKm),
		HoursBalance:              balance.Sub(stored.HoursBalance),
	}
}

// WorkingStats composes the interim stats of in.Period.
func (c *Composer) WorkingStats(ctx context.Context, cache *transport.Cache, in Input, mode StatsMode) WorkingStats {
	var info hours.ContractInfo
	if mode == StatsWeek {
		info = hours.ContractWeekInfo(in.Contract, in.Period)
	} else {
		info = hours.ContractMonthInfo(in.Contract, in.Period)
	}
	worked := c.Hours.FromEvents(ctx, in.Events.Events, in.Worker, cache, in.Period)
	absences := hours.AbsenceHours(in.Events.Absences, in.Contract, in.Period)

	return WorkingStats{
		WorkerID:      in.Worker.ID,
		WorkerName:    in.Worker.Name(),
		WorkedHours:   worked.WorkedHours,
		ContractHours: info.ContractHours,
		AbsencesHours: absences,
		HoursToWork:   HoursToWork(info.ContractHours, absences),
	}
}

// stamp fills the storage fields of a record about to be saved.
func stamp(r *Record, id string, now time.Time) {
	if r.ID == "" {
		r.ID = id
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
}
