/*
Package postgres keeps saved pay records in PostgreSQL.

PURPOSE:
  Implements pay.Repository on a pgx connection pool for deployments where
  payroll exports live in a shared database. Planning sources stay in
  SQLite; only the records produced by a batch run are stored here.

TABLES:
  pays        One row per (worker_id, month), record as JSONB
  final_pays  Same layout for final pays

SEE ALSO:
  - store/sqlite: Same repository on SQLite
  - pay/source.go: Repository interface
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/pay"
)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS pays (
	id TEXT PRIMARY KEY,
	worker_id TEXT NOT NULL,
	month TEXT NOT NULL,
	start_date TIMESTAMPTZ NOT NULL,
	record JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (worker_id, month)
);
CREATE INDEX IF NOT EXISTS idx_pays_month ON pays(month);

CREATE TABLE IF NOT EXISTS final_pays (
	id TEXT PRIMARY KEY,
	worker_id TEXT NOT NULL,
	month TEXT NOT NULL,
	start_date TIMESTAMPTZ NOT NULL,
	record JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (worker_id, month)
);
CREATE INDEX IF NOT EXISTS idx_final_pays_month ON final_pays(month);
`

// Querier is the subset of pgx used by the repository, satisfied by a pool
// and a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type Repository struct {
	pool *pgxpool.Pool
}

// Open connects to dsn, checks the connection and creates the tables.
func Open(ctx context.Context, dsn string) (*Repository, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	r := &Repository{pool: pool}
	if err := r.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return r, nil
}

func (r *Repository) Close() {
	r.pool.Close()
}

func (r *Repository) migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

// =============================================================================
// SAVE
// =============================================================================

func (r *Repository) SavePays(ctx context.Context, records []pay.Record) error {
	rows := make([]row, len(records))
	for i, rec := range records {
		rows[i] = row{id: rec.ID, workerID: rec.WorkerID, month: rec.Month, start: rec.StartDate, createdAt: rec.CreatedAt, doc: rec}
	}
	return r.insert(ctx, "pays", rows)
}

func (r *Repository) SaveFinalPays(ctx context.Context, records []pay.FinalRecord) error {
	rows := make([]row, len(records))
	for i, rec := range records {
		rows[i] = row{id: rec.ID, workerID: rec.WorkerID, month: rec.Month, start: rec.StartDate, createdAt: rec.CreatedAt, doc: rec}
	}
	return r.insert(ctx, "final_pays", rows)
}

type row struct {
	id, workerID, month string
	start, createdAt    time.Time
	doc                 any
}

// insert writes rows in one transaction; a duplicate aborts all of them.
func (r *Repository) insert(ctx context.Context, table string, rows []row) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO ` + table + ` (id, worker_id, month, start_date, record, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	for _, rw := range rows {
		doc, err := json.Marshal(rw.doc)
		if err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
		createdAt := rw.createdAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := tx.Exec(ctx, query, rw.id, rw.workerID, rw.month, rw.start, doc, createdAt); err != nil {
			return translate(err)
		}
	}
	return tx.Commit(ctx)
}

// =============================================================================
// READ
// =============================================================================

func (r *Repository) FindPay(ctx context.Context, workerID, month string) (*pay.Record, error) {
	return findOne[pay.Record](ctx, r.pool, "pays", workerID, month)
}

func (r *Repository) FindFinalPay(ctx context.Context, workerID, month string) (*pay.FinalRecord, error) {
	return findOne[pay.FinalRecord](ctx, r.pool, "final_pays", workerID, month)
}

// ListPays returns the pays of month, or every pay when month is empty.
func (r *Repository) ListPays(ctx context.Context, month string) ([]pay.Record, error) {
	return list[pay.Record](ctx, r.pool, "pays", month)
}

func (r *Repository) ListFinalPays(ctx context.Context, month string) ([]pay.FinalRecord, error) {
	return list[pay.FinalRecord](ctx, r.pool, "final_pays", month)
}

func findOne[T any](ctx context.Context, q Querier, table, workerID, month string) (*T, error) {
	var doc []byte
	err := q.QueryRow(ctx, `SELECT record FROM `+table+` WHERE worker_id = $1 AND month = $2`, workerID, month).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.ErrPayNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	var out T
	if err := json.Unmarshal(doc, &out); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &out, nil
}

func list[T any](ctx context.Context, q Querier, table, month string) ([]T, error) {
	query := `SELECT record FROM ` + table + ` ORDER BY worker_id, start_date`
	var args []any
	if month != "" {
		query = `SELECT record FROM ` + table + ` WHERE month = $1 ORDER BY worker_id`
		args = append(args, month)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	docs, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", table, err)
	}

	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return nil, fmt.Errorf("failed to decode record: %w", err)
		}
		out = append(out, v)
	}
	return out, nil
}

// translate maps unique violations to generic.ErrDuplicatePay.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", generic.ErrDuplicatePay, pgErr.ConstraintName)
	}
	return fmt.Errorf("failed to insert record: %w", err)
}
