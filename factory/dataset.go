/*
Package factory converts planning dataset files into domain records.

PURPOSE:
  Lets a company's planning (settings, surcharge plans, services, workers,
  contracts, events, holidays and known distances) be described in a YAML or
  JSON file and loaded into any store. The server uses it to seed a database
  at startup; tests use it to build fixtures.

FILE FORMAT (YAML; JSON is accepted as well):
  timezone: Europe/Paris
  company:
    id: company-1
    name: Aide à domicile
    amountPerKm: 0.35
    feeAmount: 27
    transportSubs:
      - {department: "75", price: 75.20}
  surchargePlans:
    - id: plan-1
      name: Standard
      sunday: 20
      evening: 25
      eveningStartTime: "20:00"
      eveningEndTime: "23:00"
  services:
    - id: svc-1
      nature: hourly
      versions:
        - {startDate: 2018-01-01, surchargeId: plan-1, exemptFromCharges: false}
  workers:
    - id: aux-1
      firstname: Jeanne
      lastname: Martin
      address: {fullAddress: "10 rue de Rivoli, 75001 Paris", zipCode: "75001"}
      transport: {type: public, link: https://files/pass.pdf}
  contracts:
    - id: contract-1
      workerId: aux-1
      startDate: 2018-01-01
      versions:
        - {startDate: 2018-01-01, weeklyHours: 24}
  events:
    - id: ev-1
      type: intervention
      workerId: aux-1
      serviceId: svc-1
      startDate: 2019-05-06T09:00:00
      endDate: 2019-05-06T11:00:00
      address: {fullAddress: "1 rue A, 75002 Paris"}

DATES:
  Dates are "2006-01-02", "2006-01-02T15:04:05" or RFC 3339. Values without
  an offset are read in the dataset timezone (UTC when unset).

NUMBERS:
  Rates, hours and amounts are decimals; they are read as floats and
  converted with decimal.NewFromFloat, which keeps their shortest
  representation (0.35 stays 0.35).

USAGE:
  ds, err := factory.LoadFile("./data/planning.yaml")
  if err != nil {
      return err
  }
  if err := factory.Seed(ctx, ds, store); err != nil {
      return err
  }

SEE ALSO:
  - store/sqlite, store/memory: Seeder implementations
  - cmd/server/main.go: SEED_FILE at startup
*/
package factory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/planning"
	"github.com/warp/pay-engine/surcharge"
	"github.com/warp/pay-engine/transport"
)

// =============================================================================
// FILE SCHEMA TYPES
// =============================================================================

// DatasetFile is the file representation of a dataset.
type DatasetFile struct {
	Timezone       string         `yaml:"timezone,omitempty"`
	Company        CompanyFile    `yaml:"company"`
	SurchargePlans []PlanFile     `yaml:"surchargePlans,omitempty"`
	Services       []ServiceFile  `yaml:"services,omitempty"`
	Workers        []WorkerFile   `yaml:"workers,omitempty"`
	Contracts      []ContractFile `yaml:"contracts,omitempty"`
	Events         []EventFile    `yaml:"events,omitempty"`
	Holidays       []HolidayFile  `yaml:"holidays,omitempty"`
	Distances      []DistanceFile `yaml:"distances,omitempty"`
}

type CompanyFile struct {
	ID             string        `yaml:"id"`
	Name           string        `yaml:"name"`
	AmountPerKm    float64       `yaml:"amountPerKm"`
	FeeAmount      float64       `yaml:"feeAmount"`
	DepartmentCode string        `yaml:"departmentCode,omitempty"`
	TransportSubs  []SubsidyFile `yaml:"transportSubs,omitempty"`
}

type SubsidyFile struct {
	Department string  `yaml:"department"`
	Price      float64 `yaml:"price"`
}

// PlanFile mirrors surcharge.Plan with float rates.
type PlanFile struct {
	ID                    string  `yaml:"id"`
	Name                  string  `yaml:"name"`
	Saturday              float64 `yaml:"saturday,omitempty"`
	Sunday                float64 `yaml:"sunday,omitempty"`
	PublicHoliday         float64 `yaml:"publicHoliday,omitempty"`
	TwentyFifthOfDecember float64 `yaml:"twentyFifthOfDecember,omitempty"`
	FirstOfMay            float64 `yaml:"firstOfMay,omitempty"`
	Evening               float64 `yaml:"evening,omitempty"`
	EveningStartTime      string  `yaml:"eveningStartTime,omitempty"`
	EveningEndTime        string  `yaml:"eveningEndTime,omitempty"`
	Custom                float64 `yaml:"custom,omitempty"`
	CustomStartTime       string  `yaml:"customStartTime,omitempty"`
	CustomEndTime         string  `yaml:"customEndTime,omitempty"`
}

type ServiceFile struct {
	ID       string               `yaml:"id"`
	Nature   string               `yaml:"nature"`
	Versions []ServiceVersionFile `yaml:"versions"`
}

type ServiceVersionFile struct {
	StartDate         string `yaml:"startDate"`
	EndDate           string `yaml:"endDate,omitempty"`
	Name              string `yaml:"name,omitempty"`
	ExemptFromCharges bool   `yaml:"exemptFromCharges,omitempty"`
	SurchargeID       string `yaml:"surchargeId,omitempty"`
}

type AddressFile struct {
	FullAddress string  `yaml:"fullAddress"`
	ZipCode     string  `yaml:"zipCode,omitempty"`
	City        string  `yaml:"city,omitempty"`
	Lat         float64 `yaml:"lat,omitempty"`
	Lng         float64 `yaml:"lng,omitempty"`
}

type WorkerFile struct {
	ID            string        `yaml:"id"`
	CompanyID     string        `yaml:"companyId,omitempty"`
	Firstname     string        `yaml:"firstname"`
	Lastname      string        `yaml:"lastname"`
	Address       AddressFile   `yaml:"address"`
	Transport     TransportFile `yaml:"transport"`
	HasMutualFund bool          `yaml:"hasMutualFund,omitempty"`
}

type TransportFile struct {
	Type string `yaml:"type"` // public, private, company_transport
	Link string `yaml:"link,omitempty"`
}

type ContractFile struct {
	ID                  string                `yaml:"id"`
	WorkerID            string                `yaml:"workerId"`
	Status              string                `yaml:"status,omitempty"` // defaults to a company contract
	StartDate           string                `yaml:"startDate"`
	EndDate             string                `yaml:"endDate,omitempty"`
	EndReason           string                `yaml:"endReason,omitempty"`
	EndNotificationDate string                `yaml:"endNotificationDate,omitempty"`
	Versions            []ContractVersionFile `yaml:"versions"`
}

type ContractVersionFile struct {
	StartDate   string  `yaml:"startDate"`
	EndDate     string  `yaml:"endDate,omitempty"`
	WeeklyHours float64 `yaml:"weeklyHours"`
}

type EventFile struct {
	ID              string       `yaml:"id"`
	Type            string       `yaml:"type"`
	WorkerID        string       `yaml:"workerId"`
	StartDate       string       `yaml:"startDate"`
	EndDate         string       `yaml:"endDate"`
	CustomerID      string       `yaml:"customerId,omitempty"`
	SubscriptionID  string       `yaml:"subscriptionId,omitempty"`
	ServiceID       string       `yaml:"serviceId,omitempty"`
	AbsenceNature   string       `yaml:"absenceNature,omitempty"`
	Absence         string       `yaml:"absence,omitempty"`
	InternalHour    string       `yaml:"internalHour,omitempty"`
	IsCancelled     bool         `yaml:"isCancelled,omitempty"`
	CancelCondition string       `yaml:"cancelCondition,omitempty"`
	CancelReason    string       `yaml:"cancelReason,omitempty"`
	HasFixedService bool         `yaml:"hasFixedService,omitempty"`
	Address         *AddressFile `yaml:"address,omitempty"`
}

type HolidayFile struct {
	CompanyID string `yaml:"companyId,omitempty"`
	Date      string `yaml:"date"`
	Name      string `yaml:"name"`
	Recurring bool   `yaml:"recurring,omitempty"`
}

type DistanceFile struct {
	Origins      string `yaml:"origins"`
	Destinations string `yaml:"destinations"`
	Mode         string `yaml:"mode"`
	Distance     int64  `yaml:"distance"` // meters
	Duration     int64  `yaml:"duration"` // seconds
}

// =============================================================================
// DATASET
// =============================================================================

// Dataset is a parsed dataset, ready to be seeded.
type Dataset struct {
	Company        planning.Company
	SurchargePlans []surcharge.Plan
	Services       []planning.Service
	Workers        []planning.Worker
	Contracts      []planning.Contract
	Events         []planning.Event
	Holidays       []generic.Holiday
	Distances      []transport.Entry
}

// LoadFile reads and parses a dataset file.
func LoadFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return Parse(data)
}

// Parse parses a YAML or JSON dataset.
func Parse(data []byte) (*Dataset, error) {
	var f DatasetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", generic.ErrInvalidDataset, err)
	}
	return FromFile(f)
}

// FromFile converts the file representation into domain records.
func FromFile(f DatasetFile) (*Dataset, error) {
	p, err := newParser(f.Timezone)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{Company: p.company(f.Company)}
	for _, pf := range f.SurchargePlans {
		plan := parsePlan(pf)
		if err := plan.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", generic.ErrInvalidDataset, err)
		}
		ds.SurchargePlans = append(ds.SurchargePlans, plan)
	}
	for _, sf := range f.Services {
		svc, err := p.service(sf)
		if err != nil {
			return nil, err
		}
		ds.Services = append(ds.Services, svc)
	}
	for _, wf := range f.Workers {
		w, err := p.worker(wf, ds.Company.ID)
		if err != nil {
			return nil, err
		}
		ds.Workers = append(ds.Workers, w)
	}
	for _, cf := range f.Contracts {
		c, err := p.contract(cf)
		if err != nil {
			return nil, err
		}
		ds.Contracts = append(ds.Contracts, c)
	}
	for _, ef := range f.Events {
		e, err := p.event(ef)
		if err != nil {
			return nil, err
		}
		ds.Events = append(ds.Events, e)
	}
	for _, hf := range f.Holidays {
		date, err := p.date(hf.Date)
		if err != nil {
			return nil, invalid("holiday %q: %v", hf.Name, err)
		}
		ds.Holidays = append(ds.Holidays, generic.Holiday{
			CompanyID: hf.CompanyID, Date: date, Name: hf.Name, Recurring: hf.Recurring,
		})
	}
	for _, df := range f.Distances {
		mode := transport.Mode(df.Mode)
		if mode != transport.ModeDriving && mode != transport.ModeTransit {
			return nil, invalid("distance %s -> %s: unknown mode %q", df.Origins, df.Destinations, df.Mode)
		}
		ds.Distances = append(ds.Distances, transport.Entry{
			Origins: df.Origins, Destinations: df.Destinations, Mode: mode,
			Distance: df.Distance, Duration: df.Duration,
		})
	}
	return ds, nil
}

// =============================================================================
// SEEDING
// =============================================================================

// Seeder is implemented by stores that accept planning data.
type Seeder interface {
	SaveCompany(ctx context.Context, c planning.Company) error
	SaveSurchargePlan(ctx context.Context, p surcharge.Plan) error
	SaveService(ctx context.Context, s planning.Service) error
	SaveWorker(ctx context.Context, w planning.Worker) error
	SaveContract(ctx context.Context, c planning.Contract) error
	SaveEvent(ctx context.Context, e planning.Event) error
	SaveHoliday(ctx context.Context, h generic.Holiday) error
	SaveDistance(ctx context.Context, e transport.Entry) error
}

// Seed writes every record of ds into s, stopping at the first error.
func Seed(ctx context.Context, ds *Dataset, s Seeder) error {
	if err := s.SaveCompany(ctx, ds.Company); err != nil {
		return fmt.Errorf("seed company: %w", err)
	}
	for _, p := range ds.SurchargePlans {
		if err := s.SaveSurchargePlan(ctx, p); err != nil {
			return fmt.Errorf("seed surcharge plan %s: %w", p.ID, err)
		}
	}
	for _, svc := range ds.Services {
		if err := s.SaveService(ctx, svc); err != nil {
			return fmt.Errorf("seed service %s: %w", svc.ID, err)
		}
	}
	for _, w := range ds.Workers {
		if err := s.SaveWorker(ctx, w); err != nil {
			return fmt.Errorf("seed worker %s: %w", w.ID, err)
		}
	}
	for _, c := range ds.Contracts {
		if err := s.SaveContract(ctx, c); err != nil {
			return fmt.Errorf("seed contract %s: %w", c.ID, err)
		}
	}
	for _, e := range ds.Events {
		if err := s.SaveEvent(ctx, e); err != nil {
			return fmt.Errorf("seed event %s: %w", e.ID, err)
		}
	}
	for _, h := range ds.Holidays {
		if err := s.SaveHoliday(ctx, h); err != nil {
			return fmt.Errorf("seed holiday %s: %w", h.Name, err)
		}
	}
	for _, e := range ds.Distances {
		if err := s.SaveDistance(ctx, e); err != nil {
			return fmt.Errorf("seed distance: %w", err)
		}
	}
	return nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

type parser struct {
	loc *time.Location
}

func newParser(timezone string) (*parser, error) {
	if timezone == "" {
		return &parser{loc: time.UTC}, nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, invalid("timezone %q: %v", timezone, err)
	}
	return &parser{loc: loc}, nil
}

var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

func (p *parser) date(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, p.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// endTime reads an optional end date. A bare date means the end of that day.
func (p *parser) endTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := p.date(s)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(s)) == len("2006-01-02") {
		t = generic.EndOfDay(t)
	}
	return &t, nil
}

func (p *parser) company(cf CompanyFile) planning.Company {
	c := planning.Company{
		ID:             cf.ID,
		Name:           cf.Name,
		AmountPerKm:    decimal.NewFromFloat(cf.AmountPerKm),
		FeeAmount:      decimal.NewFromFloat(cf.FeeAmount),
		DepartmentCode: cf.DepartmentCode,
	}
	for _, sub := range cf.TransportSubs {
		c.TransportSubs = append(c.TransportSubs, planning.TransportSubsidy{
			Department: sub.Department,
			Price:      decimal.NewFromFloat(sub.Price),
		})
	}
	return c
}

func parsePlan(pf PlanFile) surcharge.Plan {
	return surcharge.Plan{
		ID:                    pf.ID,
		Name:                  pf.Name,
		Saturday:              decimal.NewFromFloat(pf.Saturday),
		Sunday:                decimal.NewFromFloat(pf.Sunday),
		PublicHoliday:         decimal.NewFromFloat(pf.PublicHoliday),
		TwentyFifthOfDecember: decimal.NewFromFloat(pf.TwentyFifthOfDecember),
		FirstOfMay:            decimal.NewFromFloat(pf.FirstOfMay),
		Evening:               decimal.NewFromFloat(pf.Evening),
		EveningStartTime:      pf.EveningStartTime,
		EveningEndTime:        pf.EveningEndTime,
		Custom:                decimal.NewFromFloat(pf.Custom),
		CustomStartTime:       pf.CustomStartTime,
		CustomEndTime:         pf.CustomEndTime,
	}
}

func (p *parser) service(sf ServiceFile) (planning.Service, error) {
	svc := planning.Service{ID: sf.ID, Nature: planning.ServiceNature(sf.Nature)}
	switch svc.Nature {
	case planning.ServiceHourly, planning.ServiceFixed:
	case "":
		svc.Nature = planning.ServiceHourly
	default:
		return planning.Service{}, invalid("service %s: unknown nature %q", sf.ID, sf.Nature)
	}
	for _, vf := range sf.Versions {
		start, err := p.date(vf.StartDate)
		if err != nil {
			return planning.Service{}, invalid("service %s: %v", sf.ID, err)
		}
		end, err := p.endTime(vf.EndDate)
		if err != nil {
			return planning.Service{}, invalid("service %s: %v", sf.ID, err)
		}
		svc.Versions = append(svc.Versions, planning.ServiceVersion{
			StartDate: start, EndDate: end, Name: vf.Name,
			ExemptFromCharges: vf.ExemptFromCharges, SurchargeID: vf.SurchargeID,
		})
	}
	return svc, nil
}

func (p *parser) worker(wf WorkerFile, companyID string) (planning.Worker, error) {
	if wf.ID == "" {
		return planning.Worker{}, invalid("worker without id")
	}
	transportType := planning.TransportType(wf.Transport.Type)
	switch transportType {
	case "", planning.TransportPublic, planning.TransportPrivate, planning.TransportCompany:
	default:
		return planning.Worker{}, invalid("worker %s: unknown transport type %q", wf.ID, wf.Transport.Type)
	}
	if wf.CompanyID != "" {
		companyID = wf.CompanyID
	}
	return planning.Worker{
		ID:               wf.ID,
		CompanyID:        companyID,
		Firstname:        wf.Firstname,
		Lastname:         wf.Lastname,
		Address:          address(wf.Address),
		TransportInvoice: planning.TransportInvoice{Type: transportType, Link: wf.Transport.Link},
		HasMutualFund:    wf.HasMutualFund,
	}, nil
}

func (p *parser) contract(cf ContractFile) (planning.Contract, error) {
	c := planning.Contract{
		ID:        cf.ID,
		WorkerID:  cf.WorkerID,
		Status:    planning.ContractStatus(cf.Status),
		EndReason: cf.EndReason,
	}
	switch c.Status {
	case planning.CompanyContract, planning.CustomerContract:
	case "":
		c.Status = planning.CompanyContract
	default:
		return planning.Contract{}, invalid("contract %s: unknown status %q", cf.ID, cf.Status)
	}

	var err error
	if c.StartDate, err = p.date(cf.StartDate); err != nil {
		return planning.Contract{}, invalid("contract %s: %v", cf.ID, err)
	}
	if c.EndDate, err = p.endTime(cf.EndDate); err != nil {
		return planning.Contract{}, invalid("contract %s: %v", cf.ID, err)
	}
	if cf.EndNotificationDate != "" {
		t, err := p.date(cf.EndNotificationDate)
		if err != nil {
			return planning.Contract{}, invalid("contract %s: %v", cf.ID, err)
		}
		c.EndNotificationDate = &t
	}
	if len(cf.Versions) == 0 {
		return planning.Contract{}, invalid("contract %s has no version", cf.ID)
	}
	for _, vf := range cf.Versions {
		start, err := p.date(vf.StartDate)
		if err != nil {
			return planning.Contract{}, invalid("contract %s: %v", cf.ID, err)
		}
		end, err := p.endTime(vf.EndDate)
		if err != nil {
			return planning.Contract{}, invalid("contract %s: %v", cf.ID, err)
		}
		c.Versions = append(c.Versions, planning.ContractVersion{
			StartDate: start, EndDate: end, WeeklyHours: decimal.NewFromFloat(vf.WeeklyHours),
		})
	}
	return c, nil
}

func (p *parser) event(ef EventFile) (planning.Event, error) {
	e := planning.Event{
		ID:              ef.ID,
		Type:            planning.EventType(ef.Type),
		WorkerID:        ef.WorkerID,
		CustomerID:      ef.CustomerID,
		SubscriptionID:  ef.SubscriptionID,
		ServiceID:       ef.ServiceID,
		AbsenceNature:   planning.AbsenceNature(ef.AbsenceNature),
		Absence:         ef.Absence,
		InternalHour:    ef.InternalHour,
		IsCancelled:     ef.IsCancelled,
		HasFixedService: ef.HasFixedService,
	}
	switch e.Type {
	case planning.EventIntervention, planning.EventInternalHour, planning.EventUnavailability:
	case planning.EventAbsence:
		switch e.AbsenceNature {
		case planning.AbsenceDaily, planning.AbsenceHalfDaily, planning.AbsenceHourly:
		default:
			return planning.Event{}, invalid("event %s: unknown absence nature %q", ef.ID, ef.AbsenceNature)
		}
	default:
		return planning.Event{}, invalid("event %s: unknown type %q", ef.ID, ef.Type)
	}
	if ef.WorkerID == "" {
		return planning.Event{}, invalid("event %s has no worker", ef.ID)
	}

	var err error
	if e.StartDate, err = p.date(ef.StartDate); err != nil {
		return planning.Event{}, invalid("event %s: %v", ef.ID, err)
	}
	if e.EndDate, err = p.date(ef.EndDate); err != nil {
		return planning.Event{}, invalid("event %s: %v", ef.ID, err)
	}
	if e.EndDate.Before(e.StartDate) {
		return planning.Event{}, fmt.Errorf("%w: event %s: %w", generic.ErrInvalidDataset, ef.ID, generic.ErrInvalidPeriod)
	}

	if ef.IsCancelled {
		e.Cancel = &planning.Cancellation{
			Condition: planning.CancelCondition(ef.CancelCondition),
			Reason:    ef.CancelReason,
		}
	}
	if ef.Address != nil {
		a := address(*ef.Address)
		e.Address = &a
	}
	return e, nil
}

func address(af AddressFile) planning.Address {
	return planning.Address{
		FullAddress: af.FullAddress, ZipCode: af.ZipCode, City: af.City, Lat: af.Lat, Lng: af.Lng,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", generic.ErrInvalidDataset, fmt.Sprintf(format, args...))
}
