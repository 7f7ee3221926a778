// Package planning holds the calendar data the pay engine reads: events,
// workers, contracts, services and company settings. These records are owned
// by the scheduling side of the platform; the engine never mutates them.
package planning

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// EVENTS
// =============================================================================

type EventType string

const (
	EventIntervention   EventType = "intervention"
	EventInternalHour   EventType = "internal_hour"
	EventAbsence        EventType = "absence"
	EventUnavailability EventType = "unavailability"
)

type AbsenceNature string

const (
	AbsenceDaily     AbsenceNature = "daily"
	AbsenceHalfDaily AbsenceNature = "half_daily"
	AbsenceHourly    AbsenceNature = "hourly"
)

// CancelCondition tells whether a cancelled intervention is still paid.
type CancelCondition string

const (
	CancelInvoicedAndPaid       CancelCondition = "invoiced_and_paid"
	CancelInvoicedAndNotPaid    CancelCondition = "invoiced_and_not_paid"
	CancelNotInvoicedAndNotPaid CancelCondition = "not_invoiced_and_not_paid"
)

type Cancellation struct {
	Condition CancelCondition `json:"condition"`
	Reason    string          `json:"reason,omitempty"`
}

// Address locates an event or a worker. Lat/Lng are optional and only used by
// the estimate distance provider.
type Address struct {
	FullAddress string  `json:"fullAddress"`
	ZipCode     string  `json:"zipCode,omitempty"`
	City        string  `json:"city,omitempty"`
	Lat         float64 `json:"lat,omitempty"`
	Lng         float64 `json:"lng,omitempty"`
}

func (a *Address) IsZero() bool { return a == nil || a.FullAddress == "" }

func (a *Address) HasCoordinates() bool { return a != nil && (a.Lat != 0 || a.Lng != 0) }

type Event struct {
	ID             string        `json:"id"`
	Type           EventType     `json:"type"`
	StartDate      time.Time     `json:"startDate"`
	EndDate        time.Time     `json:"endDate"`
	WorkerID       string        `json:"workerId"`
	CustomerID     string        `json:"customerId,omitempty"`
	SubscriptionID string        `json:"subscriptionId,omitempty"`
	ServiceID      string        `json:"serviceId,omitempty"`
	AbsenceNature  AbsenceNature `json:"absenceNature,omitempty"`
	Absence        string        `json:"absence,omitempty"`
	InternalHour   string        `json:"internalHour,omitempty"`
	IsCancelled    bool          `json:"isCancelled,omitempty"`
	Cancel         *Cancellation `json:"cancel,omitempty"`
	Address        *Address      `json:"address,omitempty"`
	// HasFixedService marks interventions billed as a flat service; the
	// engine leaves them out of hours and transport.
	HasFixedService bool `json:"hasFixedService,omitempty"`
}

// Duration returns the event length in whole minutes.
func (e Event) Duration() int64 {
	return int64(e.EndDate.Sub(e.StartDate) / time.Minute)
}

// IsPaid reports whether the event counts for pay. Cancelled interventions
// count only when the customer still pays for them.
func (e Event) IsPaid() bool {
	if e.Type == EventUnavailability {
		return false
	}
	if !e.IsCancelled {
		return true
	}
	return e.Cancel != nil && e.Cancel.Condition == CancelInvoicedAndPaid
}

// PaidTransport is the travel time and distance paid before an event.
type PaidTransport struct {
	Duration decimal.Decimal `json:"duration"` // minutes
	Distance decimal.Decimal `json:"distance"` // km
}

// =============================================================================
// WORKERS
// =============================================================================

// TransportType is the worker's declared way of travelling between events.
type TransportType string

const (
	TransportPublic  TransportType = "public"
	TransportPrivate TransportType = "private"
	// TransportCompany is a company vehicle: travel time is paid, mileage is not.
	TransportCompany TransportType = "company_transport"
)

type TransportInvoice struct {
	Type TransportType `json:"transportType"`
	// Link points to the transit pass receipt; public transport is refunded
	// only when one is on file.
	Link string `json:"link,omitempty"`
}

// Worker is an auxiliary whose pay is computed.
type Worker struct {
	ID               string           `json:"id"`
	CompanyID        string           `json:"companyId,omitempty"`
	Firstname        string           `json:"firstname"`
	Lastname         string           `json:"lastname"`
	Address          Address          `json:"address"`
	TransportInvoice TransportInvoice `json:"transportInvoice"`
	HasMutualFund    bool             `json:"hasMutualFund,omitempty"`
}

func (w Worker) Name() string {
	if w.Lastname == "" {
		return w.Firstname
	}
	if w.Firstname == "" {
		return w.Lastname
	}
	return w.Firstname + " " + w.Lastname
}

// Department returns the two-digit department code of the worker's zip code.
func (w Worker) Department() string {
	if len(w.Address.ZipCode) < 2 {
		return ""
	}
	return w.Address.ZipCode[:2]
}

// =============================================================================
// COMPANY
// =============================================================================

// TransportSubsidy is the monthly transit pass price for a department.
type TransportSubsidy struct {
	Department string          `json:"department"`
	Price      decimal.Decimal `json:"price"`
}

// Company carries the payroll settings read by the composers.
type Company struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	AmountPerKm    decimal.Decimal    `json:"amountPerKm"`
	FeeAmount      decimal.Decimal    `json:"feeAmount"`
	TransportSubs  []TransportSubsidy `json:"transportSubs"`
	DepartmentCode string             `json:"departmentCode,omitempty"`
}

// TransportSubsidyFor returns the subsidy for a department, if configured.
func (c Company) TransportSubsidyFor(department string) (TransportSubsidy, bool) {
	for _, ts := range c.TransportSubs {
		if ts.Department == department {
			return ts, true
		}
	}
	return TransportSubsidy{}, false
}
