package planning

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONTRACTS
// =============================================================================

type ContractStatus string

const (
	CompanyContract  ContractStatus = "contract_with_company"
	CustomerContract ContractStatus = "contract_with_customer"
)

// ContractVersion is one amendment of a contract: the weekly hours in force
// from StartDate until EndDate (open-ended when nil).
type ContractVersion struct {
	StartDate   time.Time       `json:"startDate"`
	EndDate     *time.Time      `json:"endDate,omitempty"`
	WeeklyHours decimal.Decimal `json:"weeklyHours"`
}

func (v ContractVersion) versionStart() time.Time { return v.StartDate }
func (v ContractVersion) versionEnd() *time.Time  { return v.EndDate }

type Contract struct {
	ID                  string            `json:"id"`
	WorkerID            string            `json:"workerId"`
	Status              ContractStatus    `json:"status"`
	StartDate           time.Time         `json:"startDate"`
	EndDate             *time.Time        `json:"endDate,omitempty"`
	EndReason           string            `json:"endReason,omitempty"`
	EndNotificationDate *time.Time        `json:"endNotificationDate,omitempty"`
	Versions            []ContractVersion `json:"versions"`
}

// ActiveAt reports whether the contract has started on or before t and has
// not ended at t.
func (c Contract) ActiveAt(t time.Time) bool {
	if c.StartDate.After(t) {
		return false
	}
	return c.EndDate == nil || c.EndDate.After(t)
}

// EndsWithin reports whether the contract end date falls in [start, end].
func (c Contract) EndsWithin(start, end time.Time) bool {
	return c.EndDate != nil && !c.EndDate.Before(start) && !c.EndDate.After(end)
}

// VersionAt returns the version in force on day.
func (c Contract) VersionAt(day time.Time) (ContractVersion, bool) {
	return matchingVersion(c.Versions, day)
}

// =============================================================================
// SERVICES
// =============================================================================

type ServiceNature string

const (
	ServiceHourly ServiceNature = "hourly"
	ServiceFixed  ServiceNature = "fixed"
)

// ServiceVersion is the configuration of a service over a date range.
type ServiceVersion struct {
	StartDate         time.Time  `json:"startDate"`
	EndDate           *time.Time `json:"endDate,omitempty"`
	Name              string     `json:"name,omitempty"`
	ExemptFromCharges bool       `json:"exemptFromCharges"`
	SurchargeID       string     `json:"surchargeId,omitempty"`
}

func (v ServiceVersion) versionStart() time.Time { return v.StartDate }
func (v ServiceVersion) versionEnd() *time.Time  { return v.EndDate }

type Service struct {
	ID       string           `json:"id"`
	Nature   ServiceNature    `json:"nature"`
	Versions []ServiceVersion `json:"versions"`
}

// VersionAt returns the version in force at t.
func (s Service) VersionAt(t time.Time) (ServiceVersion, bool) {
	return matchingVersion(s.Versions, t)
}

// ServiceResolver maps an intervention to the service version applicable on a
// date. ok is false when none can be resolved.
type ServiceResolver interface {
	ServiceVersion(event Event, at time.Time) (ServiceVersion, bool)
}

// Services is an in-memory ServiceResolver keyed by service id.
type Services map[string]Service

func (s Services) ServiceVersion(event Event, at time.Time) (ServiceVersion, bool) {
	svc, ok := s[event.ServiceID]
	if !ok {
		return ServiceVersion{}, false
	}
	return svc.VersionAt(at)
}

// =============================================================================
// VERSION MATCHING
// =============================================================================

type versioned interface {
	versionStart() time.Time
	versionEnd() *time.Time
}

// matchingVersion picks, among versions started on or before t's day and not
// ended before it, the one with the latest start date.
func matchingVersion[V versioned](versions []V, t time.Time) (V, bool) {
	var zero V
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	nextDay := day.AddDate(0, 0, 1)

	candidates := make([]V, 0, len(versions))
	for _, v := range versions {
		if !v.versionStart().Before(nextDay) {
			continue
		}
		if end := v.versionEnd(); end != nil && end.Before(day) {
			continue
		}
		candidates = append(candidates, v)
	}
	if len(candidates) == 0 {
		return zero, false
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].versionStart().After(candidates[j].versionStart())
	})
	return candidates[0], true
}
