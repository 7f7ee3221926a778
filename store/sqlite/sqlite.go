/*
Package sqlite provides a SQLite-backed implementation of the pay engine's
sources and pay storage.

PURPOSE:
  Holds the planning data a batch run reads (company, workers, contracts,
  events, services, surcharge plans), the distance matrix filled by the
  transport resolver, company holidays, and the saved pay records.

INTERFACES IMPLEMENTED:
  pay.Source:              Everything a batch run reads
  pay.Repository:          Pay and final pay records
  transport.EntryStore:    Resolved distances
  generic.HolidayCalendar: Stored holidays

STORAGE LAYOUT:
  Planning records are stored as JSON documents next to the columns used to
  query them. Instants are stored in UTC with a fixed-width layout so that
  string comparison orders them.

KEY TABLES:
  events:             Calendar events, queried by worker and time range
  contracts:          Contracts with their versions
  distance_matrices:  One row per (origins, destinations, mode)
  pays / final_pays:  One row per worker and month

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. The PostgreSQL pay repository relies
  on the database instead.

USAGE:
  store, err := sqlite.New("./data/pay.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - pay/source.go: Interface definitions
  - store/memory: In-memory implementation for testing
  - store/postgres: PostgreSQL pay repository
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/pay"
	"github.com/warp/pay-engine/planning"
	"github.com/warp/pay-engine/surcharge"
	"github.com/warp/pay-engine/transport"
)

// timeLayout is fixed-width so stored instants sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// each connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Company settings (single row per company)
	CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		data_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS surcharge_plans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		data_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS services (
		id TEXT PRIMARY KEY,
		nature TEXT NOT NULL,
		data_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS workers (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL DEFAULT '',
		lastname TEXT NOT NULL DEFAULT '',
		data_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		status TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT,
		data_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_worker
		ON contracts(worker_id, start_date);

	-- Events: range queries per worker are the hot path
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		data_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_worker_dates
		ON events(worker_id, start_date, end_date);

	-- Distance matrix, filled lazily by the transport resolver
	CREATE TABLE IF NOT EXISTS distance_matrices (
		origins TEXT NOT NULL,
		destinations TEXT NOT NULL,
		mode TEXT NOT NULL,
		distance INTEGER NOT NULL,
		duration INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (origins, destinations, mode)
	);

	-- Holidays (company-specific and global)
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_company_date
		ON holidays(company_id, date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(company_id, date, name);

	-- Saved pay records, one per worker and month
	CREATE TABLE IF NOT EXISTS pays (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		month TEXT NOT NULL,
		start_date TEXT NOT NULL,
		record_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(worker_id, month)
	);

	CREATE INDEX IF NOT EXISTS idx_pays_month ON pays(month);

	CREATE TABLE IF NOT EXISTS final_pays (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		month TEXT NOT NULL,
		start_date TEXT NOT NULL,
		record_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(worker_id, month)
	);

	CREATE INDEX IF NOT EXISTS idx_final_pays_month ON final_pays(month);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PLANNING DATA (seeding + pay.Source)
// =============================================================================

func (s *Store) SaveCompany(ctx context.Context, c planning.Company) error {
	return s.upsertJSON(ctx, `
		INSERT INTO companies (id, data_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data_json = excluded.data_json, updated_at = excluded.updated_at
	`, c, c.ID)
}

// GetCompany returns the first stored company, a zero company when none is.
func (s *Store) GetCompany(ctx context.Context) (planning.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRowContext(ctx, "SELECT data_json FROM companies ORDER BY id LIMIT 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return planning.Company{}, nil
	}
	if err != nil {
		return planning.Company{}, fmt.Errorf("failed to get company: %w", err)
	}
	var c planning.Company
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return planning.Company{}, fmt.Errorf("failed to decode company: %w", err)
	}
	return c, nil
}

func (s *Store) SaveSurchargePlan(ctx context.Context, p surcharge.Plan) error {
	return s.upsertJSON(ctx, `
		INSERT INTO surcharge_plans (id, name, data_json, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, data_json = excluded.data_json, updated_at = excluded.updated_at
	`, p, p.ID, p.Name)
}

func (s *Store) ListSurchargePlans(ctx context.Context) (surcharge.Plans, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plans, err := queryJSON[surcharge.Plan](ctx, s.db, "SELECT data_json FROM surcharge_plans ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list surcharge plans: %w", err)
	}
	return surcharge.NewPlans(plans...), nil
}

func (s *Store) SaveService(ctx context.Context, svc planning.Service) error {
	return s.upsertJSON(ctx, `
		INSERT INTO services (id, nature, data_json, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET nature = excluded.nature, data_json = excluded.data_json, updated_at = excluded.updated_at
	`, svc, svc.ID, string(svc.Nature))
}

func (s *Store) ListServices(ctx context.Context) (planning.Services, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, err := queryJSON[planning.Service](ctx, s.db, "SELECT data_json FROM services ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	services := make(planning.Services, len(list))
	for _, svc := range list {
		services[svc.ID] = svc
	}
	return services, nil
}

func (s *Store) SaveWorker(ctx context.Context, w planning.Worker) error {
	return s.upsertJSON(ctx, `
		INSERT INTO workers (id, company_id, lastname, data_json, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET company_id = excluded.company_id, lastname = excluded.lastname, data_json = excluded.data_json
	`, w, w.ID, w.CompanyID, w.Lastname)
}

// ListWorkers returns workers ordered by last name, then id.
func (s *Store) ListWorkers(ctx context.Context) ([]planning.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workers, err := queryJSON[planning.Worker](ctx, s.db, "SELECT data_json FROM workers ORDER BY lastname, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	return workers, nil
}

// GetWorker returns generic.ErrWorkerNotFound when id is unknown.
func (s *Store) GetWorker(ctx context.Context, id string) (*planning.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workers, err := queryJSON[planning.Worker](ctx, s.db, "SELECT data_json FROM workers WHERE id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}
	if len(workers) == 0 {
		return nil, generic.ErrWorkerNotFound
	}
	return &workers[0], nil
}

func (s *Store) SaveContract(ctx context.Context, c planning.Contract) error {
	return s.upsertJSON(ctx, `
		INSERT INTO contracts (id, worker_id, status, start_date, end_date, data_json, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET worker_id = excluded.worker_id, status = excluded.status,
			start_date = excluded.start_date, end_date = excluded.end_date,
			data_json = excluded.data_json, updated_at = excluded.updated_at
	`, c, c.ID, c.WorkerID, string(c.Status), formatTime(c.StartDate), nullTime(c.EndDate))
}

func (s *Store) ListContracts(ctx context.Context, workerID string) ([]planning.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contracts, err := queryJSON[planning.Contract](ctx, s.db,
		"SELECT data_json FROM contracts WHERE worker_id = ? ORDER BY start_date", workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	return contracts, nil
}

func (s *Store) SaveEvent(ctx context.Context, e planning.Event) error {
	return s.upsertJSON(ctx, `
		INSERT INTO events (id, worker_id, type, start_date, end_date, data_json, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET worker_id = excluded.worker_id, type = excluded.type,
			start_date = excluded.start_date, end_date = excluded.end_date,
			data_json = excluded.data_json, updated_at = excluded.updated_at
	`, e, e.ID, e.WorkerID, string(e.Type), formatTime(e.StartDate), formatTime(e.EndDate))
}

// ListWorkerEvents returns the paid events of a worker overlapping period.
func (s *Store) ListWorkerEvents(ctx context.Context, workerID string, period generic.Period) (planning.WorkerEvents, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events, err := queryJSON[planning.Event](ctx, s.db, `
		SELECT data_json FROM events
		WHERE worker_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date ASC
	`, workerID, formatTime(period.End), formatTime(period.Start))
	if err != nil {
		return planning.WorkerEvents{}, fmt.Errorf("failed to list events: %w", err)
	}
	return planning.SplitWorkerEvents(events), nil
}

// upsertJSON runs an insert whose arguments are args followed by the JSON
// encoding of doc and the current time.
func (s *Store) upsertJSON(ctx context.Context, query string, doc any, args ...any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %T: %w", doc, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	args = append(args, string(data), formatTime(time.Now()))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save %T: %w", doc, err)
	}
	return nil
}

// =============================================================================
// DISTANCE MATRIX (transport.EntryStore + pay.DistanceSource)
// =============================================================================

// SaveDistance stores a resolved route. An existing triple is kept.
func (s *Store) SaveDistance(ctx context.Context, e transport.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO distance_matrices (origins, destinations, mode, distance, duration, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(origins, destinations, mode) DO NOTHING
	`, e.Origins, e.Destinations, string(e.Mode), e.Distance, e.Duration, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to save distance: %w", err)
	}
	return nil
}

func (s *Store) ListDistances(ctx context.Context) ([]transport.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT origins, destinations, mode, distance, duration
		FROM distance_matrices
		ORDER BY origins, destinations, mode
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query distances: %w", err)
	}
	defer rows.Close()

	var entries []transport.Entry
	for rows.Next() {
		var e transport.Entry
		var mode string
		if err := rows.Scan(&e.Origins, &e.Destinations, &mode, &e.Distance, &e.Duration); err != nil {
			return nil, err
		}
		e.Mode = transport.Mode(mode)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// HOLIDAYS (generic.HolidayCalendar)
// =============================================================================

// SaveHoliday creates or updates a holiday.
func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.ID == "" {
		h.ID = fmt.Sprintf("%s:%s:%s", h.CompanyID, h.Date.Format("2006-01-02"), h.Name)
	}

	query := `
		INSERT INTO holidays (id, company_id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id, date, name) DO UPDATE SET
			recurring = excluded.recurring
	`

	_, err := s.db.ExecContext(ctx, query,
		h.ID,
		h.CompanyID,
		h.Date.Format("2006-01-02"),
		h.Name,
		h.Recurring,
		time.Now().Format(time.RFC3339),
	)
	return err
}

// GetHolidays returns all holidays for a company in a given year.
// Includes both company-specific and global holidays.
func (s *Store) GetHolidays(companyID string, year int) []generic.Holiday {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, company_id, date, name, recurring
		FROM holidays
		WHERE (company_id = ? OR company_id = '')
		  AND (recurring = TRUE OR strftime('%Y', date) = ?)
		ORDER BY date ASC
	`

	rows, err := s.db.Query(query, companyID, fmt.Sprintf("%04d", year))
	if err != nil {
		return nil
	}
	defer rows.Close()

	var holidays []generic.Holiday
	for rows.Next() {
		var h generic.Holiday
		var dateStr string
		if err := rows.Scan(&h.ID, &h.CompanyID, &dateStr, &h.Name, &h.Recurring); err != nil {
			continue
		}

		t, _ := time.Parse("2006-01-02", dateStr)
		// If recurring, adjust year
		if h.Recurring {
			t = time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
		h.Date = t

		holidays = append(holidays, h)
	}

	return holidays
}

// IsHoliday checks the calendar date of date, whatever its location.
func (s *Store) IsHoliday(companyID string, date time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dateStr := date.Format("2006-01-02")
	monthDay := date.Format("01-02")

	query := `
		SELECT COUNT(*) FROM holidays
		WHERE (company_id = ? OR company_id = '')
		  AND (
			(recurring = FALSE AND date = ?)
			OR (recurring = TRUE AND strftime('%m-%d', date) = ?)
		  )
	`

	var count int
	err := s.db.QueryRow(query, companyID, dateStr, monthDay).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// =============================================================================
// PAY RECORDS (pay.Repository)
// =============================================================================

// SavePays stores records atomically.
func (s *Store) SavePays(ctx context.Context, records []pay.Record) error {
	rows := make([]recordRow, len(records))
	for i, r := range records {
		rows[i] = recordRow{id: r.ID, workerID: r.WorkerID, month: r.Month, start: r.StartDate, doc: r}
	}
	return s.insertRecords(ctx, "pays", rows)
}

// SaveFinalPays stores records atomically.
func (s *Store) SaveFinalPays(ctx context.Context, records []pay.FinalRecord) error {
	rows := make([]recordRow, len(records))
	for i, r := range records {
		rows[i] = recordRow{id: r.ID, workerID: r.WorkerID, month: r.Month, start: r.StartDate, doc: r}
	}
	return s.insertRecords(ctx, "final_pays", rows)
}

type recordRow struct {
	id, workerID, month string
	start               time.Time
	doc                 any
}

func (s *Store) insertRecords(ctx context.Context, table string, rows []recordRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO ` + table + ` (id, worker_id, month, start_date, record_json, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	for _, r := range rows {
		data, err := json.Marshal(r.doc)
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
		_, err = tx.ExecContext(ctx, query, r.id, r.workerID, r.month, formatTime(r.start), string(data), formatTime(time.Now()))
		if err != nil {
			if isUniqueConstraintError(err) {
				return generic.ErrDuplicatePay
			}
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (s *Store) FindPay(ctx context.Context, workerID, month string) (*pay.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := queryJSON[pay.Record](ctx, s.db,
		"SELECT record_json FROM pays WHERE worker_id = ? AND month = ?", workerID, month)
	if err != nil {
		return nil, fmt.Errorf("failed to find pay: %w", err)
	}
	if len(records) == 0 {
		return nil, generic.ErrPayNotFound
	}
	return &records[0], nil
}

func (s *Store) FindFinalPay(ctx context.Context, workerID, month string) (*pay.FinalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := queryJSON[pay.FinalRecord](ctx, s.db,
		"SELECT record_json FROM final_pays WHERE worker_id = ? AND month = ?", workerID, month)
	if err != nil {
		return nil, fmt.Errorf("failed to find final pay: %w", err)
	}
	if len(records) == 0 {
		return nil, generic.ErrPayNotFound
	}
	return &records[0], nil
}

// ListPays returns the pays of month, or every pay when month is empty.
func (s *Store) ListPays(ctx context.Context, month string) ([]pay.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := listQuery("pays", month)
	records, err := queryJSON[pay.Record](ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pays: %w", err)
	}
	return records, nil
}

func (s *Store) ListFinalPays(ctx context.Context, month string) ([]pay.FinalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query, args := listQuery("final_pays", month)
	records, err := queryJSON[pay.FinalRecord](ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list final pays: %w", err)
	}
	return records, nil
}

func listQuery(table, month string) (string, []any) {
	if month == "" {
		return "SELECT record_json FROM " + table + " ORDER BY worker_id, start_date", nil
	}
	return "SELECT record_json FROM " + table + " WHERE month = ? ORDER BY worker_id", []any{month}
}

// =============================================================================
// ADMIN OPERATIONS
// =============================================================================

// Reset clears all data (for demo/testing).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"final_pays", "pays", "distance_matrices", "events", "contracts",
		"workers", "services", "surcharge_plans", "companies", "holidays",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func queryJSON[T any](ctx context.Context, db *sql.DB, query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("failed to decode %T: %w", v, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: UNIQUE"))
}
