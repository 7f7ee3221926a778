/*
Package pay composes monthly pay records from worked hours, absences and the
worker's contract, and carries the hours counter from one month to the next.

PURPOSE:
  A pay record is the payroll summary of one worker for one month: hours
  worked by bucket, hours owed by the contract, the resulting balance and the
  running counter, plus transport refund and flat fees. A final pay record is
  the same summary for the month a contract ends, with the termination data.

HOURS COUNTER:
  balance  = worked - max(contract - absences, 0)
  counter  = previous.counter + diff.balance + balance    (previous pay exists)
           = balance                                       (otherwise, or in January)

  diff is the correction of last month: last month recomputed now (late
  events, edits) minus what was stored.

SEE ALSO:
  - composer.go: DraftPay / DraftFinalPay
  - service.go: batch runs over every worker
  - hours/: the hour totals
*/
package pay

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/pay-engine/hours"
)

// =============================================================================
// RECORDS
// =============================================================================

// Diff is the correction of the previous month's stored record.
type Diff struct {
	WorkedHours               decimal.Decimal `json:"workedHours"`
	NotSurchargedAndNotExempt decimal.Decimal `json:"notSurchargedAndNotExempt"`
	SurchargedAndNotExempt    decimal.Decimal `json:"surchargedAndNotExempt"`
	NotSurchargedAndExempt    decimal.Decimal `json:"notSurchargedAndExempt"`
	SurchargedAndExempt       decimal.Decimal `json:"surchargedAndExempt"`
	PaidKm                    decimal.Decimal `json:"paidKm"`
	HoursBalance              decimal.Decimal `json:"hoursBalance"`
}

func ZeroDiff() Diff {
	return Diff{
		WorkedHours:               decimal.Zero,
		NotSurchargedAndNotExempt: decimal.Zero,
		SurchargedAndNotExempt:    decimal.Zero,
		NotSurchargedAndExempt:    decimal.Zero,
		SurchargedAndExempt:       decimal.Zero,
		PaidKm:                    decimal.Zero,
		HoursBalance:              decimal.Zero,
	}
}

// Record is a draft or stored monthly pay.
type Record struct {
	ID         string    `json:"id,omitempty"`
	WorkerID   string    `json:"workerId"`
	WorkerName string    `json:"workerName"`
	CompanyID  string    `json:"companyId,omitempty"`
	Month      string    `json:"month"` // MM-YYYY
	StartDate  time.Time `json:"startDate"`
	EndDate    time.Time `json:"endDate"`

	ContractHours decimal.Decimal `json:"contractHours"`
	AbsencesHours decimal.Decimal `json:"absencesHours"`
	HoursToWork   decimal.Decimal `json:"hoursToWork"`
	hours.Hours

	HoursBalance              decimal.Decimal `json:"hoursBalance"`
	HoursCounter              decimal.Decimal `json:"hoursCounter"`
	PreviousMonthHoursCounter decimal.Decimal `json:"previousMonthHoursCounter"`
	Diff                      Diff            `json:"diff"`

	Transport decimal.Decimal `json:"transport"`
	OtherFees decimal.Decimal `json:"otherFees"`
	Mutual    bool            `json:"mutual"`
	Bonus     decimal.Decimal `json:"bonus"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// FinalRecord is the pay of the month a contract ends. EndDate of the
// embedded record is the contract end date.
type FinalRecord struct {
	Record
	EndReason           string          `json:"endReason,omitempty"`
	EndNotificationDate *time.Time      `json:"endNotificationDate,omitempty"`
	Compensation        decimal.Decimal `json:"compensation"`
}

// =============================================================================
// WORKING STATS
// =============================================================================

// StatsMode selects the contract proration of working stats.
type StatsMode string

const (
	StatsWeek  StatsMode = "week"
	StatsMonth StatsMode = "month"
)

// WorkingStats is an interim view of a worker's hours within a period.
type WorkingStats struct {
	WorkerID      string          `json:"workerId"`
	WorkerName    string          `json:"workerName"`
	WorkedHours   decimal.Decimal `json:"workedHours"`
	ContractHours decimal.Decimal `json:"contractHours"`
	AbsencesHours decimal.Decimal `json:"absencesHours"`
	HoursToWork   decimal.Decimal `json:"hoursToWork"`
}
