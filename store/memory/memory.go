// Package memory provides in-memory sources and pay storage (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/pay"
	"github.com/warp/pay-engine/planning"
	"github.com/warp/pay-engine/surcharge"
	"github.com/warp/pay-engine/transport"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory implements pay.Source, pay.Repository, transport.EntryStore and
// generic.HolidayCalendar.
type Memory struct {
	mu        sync.RWMutex
	company   planning.Company
	workers   []planning.Worker
	contracts map[string][]planning.Contract
	events    []planning.Event
	services  planning.Services
	plans     surcharge.Plans
	distances []transport.Entry
	holidays  []generic.Holiday
	pays      map[payKey]pay.Record
	finalPays map[payKey]pay.FinalRecord
}

type payKey struct {
	WorkerID string
	Month    string
}

func New() *Memory {
	return &Memory{
		contracts: make(map[string][]planning.Contract),
		services:  make(planning.Services),
		plans:     make(surcharge.Plans),
		pays:      make(map[payKey]pay.Record),
		finalPays: make(map[payKey]pay.FinalRecord),
	}
}

// -----------------------------------------------------------------------------
// Seeding
// -----------------------------------------------------------------------------

func (m *Memory) SaveCompany(_ context.Context, c planning.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.company = c
	return nil
}

func (m *Memory) SaveSurchargePlan(_ context.Context, p surcharge.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[p.ID] = p
	return nil
}

func (m *Memory) SaveService(_ context.Context, s planning.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[s.ID] = s
	return nil
}

// SaveWorker adds or replaces a worker.
func (m *Memory) SaveWorker(_ context.Context, w planning.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.workers {
		if m.workers[i].ID == w.ID {
			m.workers[i] = w
			return nil
		}
	}
	m.workers = append(m.workers, w)
	return nil
}

func (m *Memory) SaveContract(_ context.Context, c planning.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[c.WorkerID] = append(m.contracts[c.WorkerID], c)
	return nil
}

func (m *Memory) SaveEvent(_ context.Context, e planning.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *Memory) SaveHoliday(_ context.Context, h generic.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays = append(m.holidays, h)
	return nil
}

// SaveDistance records a resolved route; an existing triple is kept.
func (m *Memory) SaveDistance(_ context.Context, e transport.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.distances {
		if existing.Origins == e.Origins && existing.Destinations == e.Destinations && existing.Mode == e.Mode {
			return nil
		}
	}
	m.distances = append(m.distances, e)
	return nil
}

// -----------------------------------------------------------------------------
// pay.Source
// -----------------------------------------------------------------------------

func (m *Memory) ListWorkers(_ context.Context) ([]planning.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]planning.Worker, len(m.workers))
	copy(out, m.workers)
	return out, nil
}

func (m *Memory) ListContracts(_ context.Context, workerID string) ([]planning.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]planning.Contract, len(m.contracts[workerID]))
	copy(out, m.contracts[workerID])
	return out, nil
}

func (m *Memory) ListWorkerEvents(_ context.Context, workerID string, period generic.Period) (planning.WorkerEvents, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var matching []planning.Event
	for _, e := range m.events {
		if e.WorkerID == workerID && period.Overlaps(e.StartDate, e.EndDate) {
			matching = append(matching, e)
		}
	}
	return planning.SplitWorkerEvents(matching), nil
}

func (m *Memory) GetCompany(_ context.Context) (planning.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.company, nil
}

func (m *Memory) ListServices(_ context.Context) (planning.Services, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(planning.Services, len(m.services))
	for id, s := range m.services {
		out[id] = s
	}
	return out, nil
}

func (m *Memory) ListSurchargePlans(_ context.Context) (surcharge.Plans, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(surcharge.Plans, len(m.plans))
	for id, p := range m.plans {
		out[id] = p
	}
	return out, nil
}

func (m *Memory) ListDistances(_ context.Context) ([]transport.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]transport.Entry, len(m.distances))
	copy(out, m.distances)
	return out, nil
}

// -----------------------------------------------------------------------------
// generic.HolidayCalendar
// -----------------------------------------------------------------------------

func (m *Memory) IsHoliday(companyID string, date time.Time) bool {
	for _, h := range m.GetHolidays(companyID, date.Year()) {
		if generic.SameDay(h.Date, date) {
			return true
		}
	}
	return false
}

// GetHolidays returns global and company holidays of year. Recurring
// holidays are moved to year.
func (m *Memory) GetHolidays(companyID string, year int) []generic.Holiday {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []generic.Holiday
	for _, h := range m.holidays {
		if h.CompanyID != "" && h.CompanyID != companyID {
			continue
		}
		if h.Recurring {
			h.Date = time.Date(year, h.Date.Month(), h.Date.Day(), 0, 0, 0, 0, h.Date.Location())
		}
		if h.Date.Year() == year {
			out = append(out, h)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// pay.Repository
// -----------------------------------------------------------------------------

// SavePays stores all records or none.
func (m *Memory) SavePays(_ context.Context, records []pay.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[payKey]bool, len(records))
	for _, r := range records {
		k := payKey{r.WorkerID, r.Month}
		if _, exists := m.pays[k]; exists || seen[k] {
			return generic.ErrDuplicatePay
		}
		seen[k] = true
	}
	for _, r := range records {
		m.pays[payKey{r.WorkerID, r.Month}] = r
	}
	return nil
}

// SaveFinalPays stores all records or none.
func (m *Memory) SaveFinalPays(_ context.Context, records []pay.FinalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[payKey]bool, len(records))
	for _, r := range records {
		k := payKey{r.WorkerID, r.Month}
		if _, exists := m.finalPays[k]; exists || seen[k] {
			return generic.ErrDuplicatePay
		}
		seen[k] = true
	}
	for _, r := range records {
		m.finalPays[payKey{r.WorkerID, r.Month}] = r
	}
	return nil
}

func (m *Memory) FindPay(_ context.Context, workerID, month string) (*pay.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.pays[payKey{workerID, month}]
	if !ok {
		return nil, generic.ErrPayNotFound
	}
	return &r, nil
}

func (m *Memory) FindFinalPay(_ context.Context, workerID, month string) (*pay.FinalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.finalPays[payKey{workerID, month}]
	if !ok {
		return nil, generic.ErrPayNotFound
	}
	return &r, nil
}

// ListPays returns the pays of month, every month when empty, by worker id.
func (m *Memory) ListPays(_ context.Context, month string) ([]pay.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []pay.Record
	for k, r := range m.pays {
		if month == "" || k.Month == month {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkerID != out[j].WorkerID {
			return out[i].WorkerID < out[j].WorkerID
		}
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return out, nil
}

func (m *Memory) ListFinalPays(_ context.Context, month string) ([]pay.FinalRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []pay.FinalRecord
	for k, r := range m.finalPays {
		if month == "" || k.Month == month {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WorkerID != out[j].WorkerID {
			return out[i].WorkerID < out[j].WorkerID
		}
		return out[i].StartDate.Before(out[j].StartDate)
	})
	return out, nil
}
