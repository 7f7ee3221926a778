package hours

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/planning"
)

// =============================================================================
// ABSENCE HOURS
// =============================================================================

// BusinessDaysPerWeek turns weekly contract hours into the hours of one day.
const BusinessDaysPerWeek = 6

var businessDaysPerWeek = decimal.NewFromInt(BusinessDaysPerWeek)

// AbsenceHours sums the paid hours of absences over period.
//
// Hourly absences count their own length. Daily and half-daily absences
// count weeklyHours/6 for each business day shared by the absence, the
// contract and the period, using the contract version in force that day.
func AbsenceHours(absences []planning.Event, contract planning.Contract, period generic.Period) decimal.Decimal {
	total := decimal.Zero
	for _, absence := range absences {
		if absence.Type != planning.EventAbsence || !period.Overlaps(absence.StartDate, absence.EndDate) {
			continue
		}
		if absence.AbsenceNature == planning.AbsenceHourly {
			total = total.Add(generic.MinutesToHours(generic.Minutes(absence.Duration())))
			continue
		}
		total = total.Add(dailyAbsenceHours(absence, contract, period))
	}
	return total
}

func dailyAbsenceHours(absence planning.Event, contract planning.Contract, period generic.Period) decimal.Decimal {
	start := generic.MaxTime(generic.MaxTime(absence.StartDate, contract.StartDate), period.Start)
	end := generic.MinTime(absence.EndDate, period.End)
	if contract.EndDate != nil {
		end = generic.MinTime(end, *contract.EndDate)
	}
	if end.Before(start) {
		return decimal.Zero
	}

	total := decimal.Zero
	for _, day := range daysTouched(start, end) {
		if !generic.IsBusinessDay(day) {
			continue
		}
		version, ok := versionOn(contract, day)
		if !ok {
			continue
		}
		total = total.Add(version.WeeklyHours.Div(businessDaysPerWeek))
	}
	return total
}

// daysTouched returns the start of every day sharing time with [start, end].
// An end at midnight does not touch the day it opens. A zero-length range
// touches its own day.
func daysTouched(start, end time.Time) []time.Time {
	first := generic.StartOfDay(start)
	if !end.After(start) {
		return []time.Time{first}
	}
	var days []time.Time
	for d := first; d.Before(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func versionOn(contract planning.Contract, day time.Time) (planning.ContractVersion, bool) {
	if len(contract.Versions) == 1 {
		return contract.Versions[0], true
	}
	return contract.VersionAt(day)
}
