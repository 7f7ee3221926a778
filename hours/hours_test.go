package hours_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/hours"
	"github.com/warp/pay-engine/planning"
	"github.com/warp/pay-engine/surcharge"
	"github.com/warp/pay-engine/transport"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func may(day, hour, minute int) time.Time {
	return time.Date(2019, time.May, day, hour, minute, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, d(want).Equal(got), "expected %s, got %s", want, got.String())
}

var mayPeriod = generic.MonthOf(may(1, 0, 0))

func worker() planning.Worker {
	return planning.Worker{
		ID:               "aux-1",
		Firstname:        "Jeanne",
		Lastname:         "Martin",
		TransportInvoice: planning.TransportInvoice{Type: planning.TransportPrivate},
	}
}

func intervention(id, serviceID, address string, start, end time.Time) planning.Event {
	return planning.Event{
		ID: id, Type: planning.EventIntervention, WorkerID: "aux-1", ServiceID: serviceID,
		StartDate: start, EndDate: end, Address: &planning.Address{FullAddress: address},
	}
}

func services() planning.Services {
	return planning.Services{
		"svc-hourly": {ID: "svc-hourly", Nature: planning.ServiceHourly, Versions: []planning.ServiceVersion{
			{StartDate: may(1, 0, 0).AddDate(-1, 0, 0), SurchargeID: "plan-1"},
		}},
		"svc-exempt": {ID: "svc-exempt", Nature: planning.ServiceHourly, Versions: []planning.ServiceVersion{
			{StartDate: may(1, 0, 0).AddDate(-1, 0, 0), ExemptFromCharges: true, SurchargeID: "plan-1"},
		}},
	}
}

func plans() surcharge.Plans {
	return surcharge.NewPlans(surcharge.Plan{
		ID: "plan-1", Name: "Standard", Sunday: d("20"),
		Evening: d("25"), EveningStartTime: "20:00", EveningEndTime: "22:00",
	})
}

func aggregator(provider transport.Provider) *hours.Aggregator {
	return &hours.Aggregator{
		Transport:  transport.NewResolver(provider, nil, zap.NewNop()),
		Surcharges: surcharge.NewEngine(generic.NewFrenchHolidays(), ""),
		Services:   services(),
		Plans:      plans(),
	}
}

func fixedRoute(meters, seconds int64) transport.Provider {
	return transport.ProviderFunc(func(context.Context, transport.RouteQuery) (transport.Entry, error) {
		return transport.Entry{Distance: meters, Duration: seconds}, nil
	})
}

// =============================================================================
// AGGREGATOR
// =============================================================================

func TestFromEvents_BucketsAndTransport(t *testing.T) {
	// GIVEN: a Monday with two interventions separated by a 70-minute break
	// AND: a Sunday exempt intervention
	// WHEN: aggregating May
	// THEN: each hour lands in its bucket and transport is paid between the Monday events

	days := [][]planning.Event{
		{
			intervention("ev-2", "svc-hourly", "2 rue B", may(6, 16, 10), may(6, 17, 10)),
			intervention("ev-1", "svc-hourly", "1 rue A", may(6, 14, 0), may(6, 15, 0)),
		},
		{
			intervention("ev-3", "svc-exempt", "3 rue C", may(12, 9, 0), may(12, 11, 0)),
		},
	}

	h := aggregator(fixedRoute(12000, 3600)).FromEvents(context.Background(), days, worker(), transport.NewCache(), mayPeriod)

	// Monday: 60 + (60 + 70 transport) minutes, nothing surcharged
	assertDecimal(t, "3.1666666666666667", h.NotSurchargedAndNotExempt)
	assert.True(t, h.SurchargedAndNotExempt.IsZero())
	// Sunday: whole block under the sunday rate, exempt column
	assertDecimal(t, "2", h.SurchargedAndExempt)
	assert.True(t, h.NotSurchargedAndExempt.IsZero())
	assertDecimal(t, "2", h.SurchargedAndExemptDetails.Hours("plan-1", surcharge.RuleSunday))
	assert.Empty(t, h.SurchargedAndNotExemptDetails)

	assertDecimal(t, "12", h.PaidKm)
	assert.True(t, h.PaidTransportHours.Equal(d("70").Div(d("60"))))
	assert.True(t, h.WorkedHours.Equal(h.BucketSum()))
}

func TestFromEvents_SumInvariant(t *testing.T) {
	days := [][]planning.Event{
		{
			intervention("a", "svc-hourly", "A", may(6, 8, 0), may(6, 9, 30)),
			intervention("b", "svc-exempt", "B", may(6, 9, 45), may(6, 11, 0)),
			{ID: "c", Type: planning.EventInternalHour, StartDate: may(6, 13, 0), EndDate: may(6, 14, 0), Address: &planning.Address{FullAddress: "Office"}},
			intervention("d", "svc-hourly", "D", may(6, 19, 0), may(6, 21, 30)),
		},
		{
			intervention("e", "svc-hourly", "E", may(5, 9, 0), may(5, 10, 0)),
			intervention("f", "svc-missing", "F", may(5, 10, 20), may(5, 11, 20)),
		},
	}

	h := aggregator(fixedRoute(3000, 900)).FromEvents(context.Background(), days, worker(), transport.NewCache(), mayPeriod)

	assert.True(t, h.WorkedHours.Equal(h.BucketSum()), "worked %s, buckets %s", h.WorkedHours, h.BucketSum())
	// one hour plus the 15 minutes travelled to the office
	assertDecimal(t, "1.25", h.InternalHours)
	assert.True(t, h.SurchargedAndNotExempt.IsPositive())
}

func TestFromEvents_Idempotent(t *testing.T) {
	days := [][]planning.Event{{
		intervention("a", "svc-hourly", "A", may(5, 9, 0), may(5, 10, 0)),
		intervention("b", "svc-hourly", "B", may(5, 10, 30), may(5, 12, 0)),
	}}
	agg := aggregator(fixedRoute(3000, 900))
	cache := transport.NewCache()

	first := agg.FromEvents(context.Background(), days, worker(), cache, mayPeriod)
	second := agg.FromEvents(context.Background(), days, worker(), cache, mayPeriod)

	assert.Equal(t, first, second)
}

func TestFromEvents_FixedServiceSkipped(t *testing.T) {
	fixed := intervention("a", "svc-hourly", "A", may(6, 9, 0), may(6, 10, 0))
	fixed.HasFixedService = true
	next := intervention("b", "svc-hourly", "B", may(6, 10, 30), may(6, 11, 0))

	h := aggregator(fixedRoute(3000, 900)).FromEvents(context.Background(), [][]planning.Event{{fixed, next}}, worker(), transport.NewCache(), mayPeriod)

	// only the second event, without transport from the fixed one
	assertDecimal(t, "0.5", h.WorkedHours)
	assert.True(t, h.PaidKm.IsZero())
}

func TestFromEvents_MissingServiceIsNotSurcharged(t *testing.T) {
	sunday := intervention("a", "svc-unknown", "A", may(5, 9, 0), may(5, 11, 0))

	h := aggregator(nil).FromEvents(context.Background(), [][]planning.Event{{sunday}}, worker(), nil, mayPeriod)

	assertDecimal(t, "2", h.NotSurchargedAndNotExempt)
	assert.True(t, h.SurchargedAndNotExempt.IsZero())
}

func TestFromEvents_PeriodBoundary(t *testing.T) {
	// GIVEN: one event in April, one straddling 30 April / 1 May
	// WHEN: aggregating May
	// THEN: only the May portion counts

	outside := intervention("a", "svc-missing", "A", time.Date(2019, time.April, 20, 9, 0, 0, 0, time.UTC), time.Date(2019, time.April, 20, 11, 0, 0, 0, time.UTC))
	straddling := intervention("b", "svc-missing", "B", time.Date(2019, time.April, 30, 23, 0, 0, 0, time.UTC), may(1, 1, 30))

	h := (&hours.Aggregator{}).FromEvents(context.Background(), [][]planning.Event{{outside}, {straddling}}, worker(), nil, mayPeriod)

	assertDecimal(t, "1.5", h.WorkedHours)
}

func TestFromEvents_PeriodEndClip(t *testing.T) {
	straddling := intervention("a", "svc-missing", "A", may(31, 23, 0), time.Date(2019, time.June, 1, 2, 0, 0, 0, time.UTC))

	h := (&hours.Aggregator{}).FromEvents(context.Background(), [][]planning.Event{{straddling}}, worker(), nil, mayPeriod)

	assertDecimal(t, "1", h.WorkedHours)
}

func TestFromEvents_Empty(t *testing.T) {
	h := (&hours.Aggregator{}).FromEvents(context.Background(), nil, worker(), nil, mayPeriod)

	assert.True(t, h.WorkedHours.IsZero())
	assert.NotNil(t, h.SurchargedAndExemptDetails)
	assert.NotNil(t, h.SurchargedAndNotExemptDetails)
}

// =============================================================================
// ABSENCES
// =============================================================================

func singleVersionContract(weekly string) planning.Contract {
	return planning.Contract{
		ID: "c-1", WorkerID: "aux-1", Status: planning.CompanyContract,
		StartDate: may(1, 0, 0).AddDate(0, -6, 0),
		Versions:  []planning.ContractVersion{{StartDate: may(1, 0, 0).AddDate(0, -6, 0), WeeklyHours: d(weekly)}},
	}
}

func absence(nature planning.AbsenceNature, start, end time.Time) planning.Event {
	return planning.Event{ID: "abs", Type: planning.EventAbsence, AbsenceNature: nature, StartDate: start, EndDate: end}
}

func TestAbsenceHours_DailyLiteral(t *testing.T) {
	abs := absence(planning.AbsenceDaily, may(18, 0, 0), may(18, 23, 59))

	got := hours.AbsenceHours([]planning.Event{abs}, singleVersionContract("12"), mayPeriod)

	assertDecimal(t, "2", got)
}

func TestAbsenceHours_Hourly(t *testing.T) {
	abs := absence(planning.AbsenceHourly, may(6, 9, 0), may(6, 11, 30))

	got := hours.AbsenceHours([]planning.Event{abs}, planning.Contract{}, mayPeriod)

	assertDecimal(t, "2.5", got)
}

func TestAbsenceHours_SkipsSundaysAndClipsToPeriod(t *testing.T) {
	// 2019-04-29 (Mon) to 2019-05-06 (Mon): in May, 1-4 and 6 are business days, 5 is a Sunday
	abs := absence(planning.AbsenceDaily, time.Date(2019, time.April, 29, 0, 0, 0, 0, time.UTC), may(6, 23, 0))

	got := hours.AbsenceHours([]planning.Event{abs}, singleVersionContract("12"), mayPeriod)

	assertDecimal(t, "10", got)
}

func TestAbsenceHours_StopsAtContractEnd(t *testing.T) {
	contract := singleVersionContract("12")
	contract.EndDate = ptr(may(3, 23, 59))
	abs := absence(planning.AbsenceHalfDaily, may(2, 0, 0), may(8, 23, 59))

	got := hours.AbsenceHours([]planning.Event{abs}, contract, mayPeriod)

	assertDecimal(t, "4", got)
}

func TestAbsenceHours_UsesVersionOfTheDay(t *testing.T) {
	contract := planning.Contract{
		ID: "c-1", StartDate: may(1, 0, 0).AddDate(0, -1, 0),
		Versions: []planning.ContractVersion{
			{StartDate: may(1, 0, 0).AddDate(0, -1, 0), EndDate: ptr(may(14, 23, 59)), WeeklyHours: d("12")},
			{StartDate: may(15, 0, 0), WeeklyHours: d("24")},
		},
	}
	// Tuesday 14 and Wednesday 15
	abs := absence(planning.AbsenceDaily, may(14, 0, 0), may(15, 23, 59))

	got := hours.AbsenceHours([]planning.Event{abs}, contract, mayPeriod)

	assertDecimal(t, "6", got)
}

func TestAbsenceHours_IgnoresOtherEvents(t *testing.T) {
	e := intervention("a", "svc", "A", may(6, 9, 0), may(6, 10, 0))

	got := hours.AbsenceHours([]planning.Event{e}, singleVersionContract("12"), mayPeriod)

	assert.True(t, got.IsZero())
}

// =============================================================================
// CONTRACT INFO
// =============================================================================

func TestContractMonthInfo_FullMonth(t *testing.T) {
	info := hours.ContractMonthInfo(singleVersionContract("35"), mayPeriod)

	assert.InDelta(t, 35*52.0/12.0, info.ContractHours.InexactFloat64(), 1e-9)
	assertDecimal(t, "1", info.WorkedDaysRatio)
}

func TestContractMonthInfo_TwoVersions(t *testing.T) {
	// GIVEN: May 2019 has 27 business days; version 1 covers 1-13 (11), version 2 covers 14-31 (16)
	// WHEN: computing the month info
	// THEN: each version contributes its prorated share and the ratio is 1

	contract := planning.Contract{
		ID: "c-1", StartDate: may(1, 0, 0),
		Versions: []planning.ContractVersion{
			{StartDate: may(1, 0, 0), EndDate: ptr(may(13, 23, 59)), WeeklyHours: d("10")},
			{StartDate: may(14, 0, 0), WeeklyHours: d("20")},
		},
	}

	info := hours.ContractMonthInfo(contract, mayPeriod)

	want := (10*11.0/27.0 + 20*16.0/27.0) * 52.0 / 12.0
	assert.InDelta(t, want, info.ContractHours.InexactFloat64(), 1e-9)
	assert.InDelta(t, 1.0, info.WorkedDaysRatio.InexactFloat64(), 1e-12)
}

func TestContractMonthInfo_ContractEndsMidMonth(t *testing.T) {
	contract := singleVersionContract("27")
	contract.EndDate = ptr(may(13, 23, 59))

	info := hours.ContractMonthInfo(contract, mayPeriod)

	assert.InDelta(t, 11.0/27.0, info.WorkedDaysRatio.InexactFloat64(), 1e-12)
	assert.InDelta(t, 27*11.0/27.0*52.0/12.0, info.ContractHours.InexactFloat64(), 1e-9)
}

func TestContractWeekInfo(t *testing.T) {
	// ISO week of Monday 2019-05-06: six business days, no monthly factor
	week := generic.WeekOf(may(8, 12, 0))
	contract := singleVersionContract("24")

	info := hours.ContractWeekInfo(contract, week)

	assertDecimal(t, "24", info.ContractHours)
	assertDecimal(t, "1", info.WorkedDaysRatio)

	contract.StartDate = may(9, 0, 0)
	contract.Versions[0].StartDate = may(9, 0, 0)
	info = hours.ContractWeekInfo(contract, week)

	// Thursday to Saturday
	assertDecimal(t, "12", info.ContractHours)
	assertDecimal(t, "0.5", info.WorkedDaysRatio)
}

func TestContractMonthInfo_NoVersionInPeriod(t *testing.T) {
	contract := singleVersionContract("35")
	contract.EndDate = ptr(may(1, 0, 0).AddDate(0, -1, 0))

	info := hours.ContractMonthInfo(contract, mayPeriod)

	require.True(t, info.ContractHours.IsZero())
	assert.True(t, info.WorkedDaysRatio.IsZero())
}
