package hours

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/planning"
)

// =============================================================================
// CONTRACT INFO - Contractual hours of a period
// =============================================================================

// ContractInfo is what a contract owes over a period.
type ContractInfo struct {
	ContractHours decimal.Decimal `json:"contractHours"`
	// WorkedDaysRatio is the share of the reference period's business days
	// covered by the contract.
	WorkedDaysRatio decimal.Decimal `json:"workedDaysRatio"`
}

// ContractMonthInfo computes the contract hours of period, prorated against
// the business days of the month period starts in:
//
//	Σ weeklyHours × versionBusinessDays / monthBusinessDays × 52/12
func ContractMonthInfo(contract planning.Contract, period generic.Period) ContractInfo {
	month := generic.MonthOf(period.Start)
	return contractInfo(contract, period, month.BusinessDays(), generic.WeeksPerMonth)
}

// ContractWeekInfo computes the contract hours of period, prorated against
// the business days of the ISO week period starts in.
func ContractWeekInfo(contract planning.Contract, period generic.Period) ContractInfo {
	week := generic.WeekOf(period.Start)
	return contractInfo(contract, period, week.BusinessDays(), decimal.NewFromInt(1))
}

func contractInfo(contract planning.Contract, period generic.Period, referenceDays int, factor decimal.Decimal) ContractInfo {
	info := ContractInfo{ContractHours: decimal.Zero, WorkedDaysRatio: decimal.Zero}
	if referenceDays == 0 {
		return info
	}
	reference := decimal.NewFromInt(int64(referenceDays))

	for _, v := range contract.Versions {
		start, end, ok := versionRange(contract, v, period)
		if !ok {
			continue
		}
		days := decimal.NewFromInt(int64(generic.BusinessDaysBetween(start, end)))
		info.ContractHours = info.ContractHours.Add(v.WeeklyHours.Mul(days).Div(reference).Mul(factor))
		info.WorkedDaysRatio = info.WorkedDaysRatio.Add(days.Div(reference))
	}
	return info
}

// versionRange clips a version to its contract and the period.
func versionRange(contract planning.Contract, v planning.ContractVersion, period generic.Period) (time.Time, time.Time, bool) {
	start := generic.MaxTime(generic.MaxTime(v.StartDate, contract.StartDate), period.Start)
	end := period.End
	if v.EndDate != nil {
		end = generic.MinTime(end, *v.EndDate)
	}
	if contract.EndDate != nil {
		end = generic.MinTime(end, *contract.EndDate)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}
