package pay

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/hours"
	"github.com/warp/pay-engine/planning"
	"github.com/warp/pay-engine/surcharge"
	"github.com/warp/pay-engine/transport"
)

// DefaultConcurrency bounds how many workers a batch computes at once.
const DefaultConcurrency = 4

// Service runs pay computations over every worker of the company.
type Service struct {
	source      Source
	repo        Repository
	resolver    *transport.Resolver
	calendar    generic.HolidayCalendar
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
}

type Option func(*Service)

// WithConcurrency sets the number of workers computed in parallel.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithClock overrides the clock used to stamp saved records.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(source Source, repo Repository, resolver *transport.Resolver, calendar generic.HolidayCalendar, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = transport.NewResolver(nil, nil, logger)
	}
	s := &Service{
		source:      source,
		repo:        repo,
		resolver:    resolver,
		calendar:    calendar,
		logger:      logger.Named("pay"),
		concurrency: DefaultConcurrency,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// BATCH CONTEXT
// =============================================================================

// batch is what every worker of a run shares.
type batch struct {
	composer *Composer
	cache    *transport.Cache
	workers  []planning.Worker
}

func (s *Service) loadBatch(ctx context.Context) (*batch, error) {
	var (
		company   planning.Company
		services  planning.Services
		plans     surcharge.Plans
		distances []transport.Entry
		workers   []planning.Worker
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		company, err = s.source.GetCompany(gCtx)
		return wrap("load company", err)
	})
	g.Go(func() (err error) {
		services, err = s.source.ListServices(gCtx)
		return wrap("load services", err)
	})
	g.Go(func() (err error) {
		plans, err = s.source.ListSurchargePlans(gCtx)
		return wrap("load surcharge plans", err)
	})
	g.Go(func() (err error) {
		distances, err = s.source.ListDistances(gCtx)
		return wrap("load distances", err)
	})
	g.Go(func() (err error) {
		workers, err = s.source.ListWorkers(gCtx)
		return wrap("load workers", err)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	agg := &hours.Aggregator{
		Transport:  s.resolver,
		Surcharges: surcharge.NewEngine(s.calendar, company.ID),
		Services:   services,
		Plans:      plans,
	}
	return &batch{
		composer: NewComposer(agg, company),
		cache:    transport.NewCache(distances...),
		workers:  workers,
	}, nil
}

func wrap(msg string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// forEachWorker runs fn for every worker with bounded parallelism and keeps
// the non-nil results in worker order. A worker whose computation fails or
// panics is logged and left out; only context cancellation stops the run.
func forEachWorker[T any](ctx context.Context, s *Service, b *batch, op string, fn func(ctx context.Context, w planning.Worker) (*T, error)) ([]T, error) {
	results := make([]*T, len(b.workers))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, w := range b.workers {
		i, w := i, w
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			res, err := safeCall(gCtx, s.logger, op, w, fn)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				s.logger.Warn("skipping worker",
					zap.String("op", op),
					zap.String("worker_id", w.ID),
					zap.Error(err),
				)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]T, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func safeCall[T any](ctx context.Context, logger *zap.Logger, op string, w planning.Worker, fn func(context.Context, planning.Worker) (*T, error)) (res *T, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker computation panicked",
				zap.String("op", op),
				zap.String("worker_id", w.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = &generic.WorkerError{WorkerID: w.ID, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return fn(ctx, w)
}

// =============================================================================
// DRAFT PAY
// =============================================================================

// DraftPay computes the draft pay of the month period starts in, for every
// worker with a company contract active at its end and no stored pay yet.
func (s *Service) DraftPay(ctx context.Context, period generic.Period) ([]Record, error) {
	period = generic.MonthOf(period.Start)
	b, err := s.loadBatch(ctx)
	if err != nil {
		return nil, err
	}

	records, err := forEachWorker(ctx, s, b, "draft_pay", func(ctx context.Context, w planning.Worker) (*Record, error) {
		if _, err := s.repo.FindPay(ctx, w.ID, period.MonthLabel()); err == nil {
			return nil, nil
		} else if !errors.Is(err, generic.ErrPayNotFound) {
			return nil, err
		}

		in, ok, err := s.input(ctx, w, period, SelectDraftContract)
		if err != nil || !ok {
			return nil, err
		}
		r := b.composer.DraftPay(ctx, b.cache, in)
		return &r, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("draft pay computed",
		zap.String("month", period.MonthLabel()),
		zap.Int("workers", len(b.workers)),
		zap.Int("records", len(records)),
		zap.Int("distances", b.cache.Len()),
	)
	return records, nil
}

// DraftFinalPay computes the final pay of every worker whose company
// contract ends within period and who has no stored final pay yet.
func (s *Service) DraftFinalPay(ctx context.Context, period generic.Period) ([]FinalRecord, error) {
	b, err := s.loadBatch(ctx)
	if err != nil {
		return nil, err
	}

	records, err := forEachWorker(ctx, s, b, "draft_final_pay", func(ctx context.Context, w planning.Worker) (*FinalRecord, error) {
		if _, err := s.repo.FindFinalPay(ctx, w.ID, period.MonthLabel()); err == nil {
			return nil, nil
		} else if !errors.Is(err, generic.ErrPayNotFound) {
			return nil, err
		}

		in, ok, err := s.input(ctx, w, period, SelectFinalContract)
		if err != nil || !ok {
			return nil, err
		}
		r := b.composer.DraftFinalPay(ctx, b.cache, in)
		return &r, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("draft final pay computed",
		zap.String("period", period.String()),
		zap.Int("records", len(records)),
	)
	return records, nil
}

// WorkingStats computes interim stats for every worker with a contract
// covering period.
func (s *Service) WorkingStats(ctx context.Context, period generic.Period, mode StatsMode) ([]WorkingStats, error) {
	b, err := s.loadBatch(ctx)
	if err != nil {
		return nil, err
	}
	return forEachWorker(ctx, s, b, "working_stats", func(ctx context.Context, w planning.Worker) (*WorkingStats, error) {
		in, ok, err := s.input(ctx, w, period, SelectStatsContract)
		if err != nil || !ok {
			return nil, err
		}
		stats := b.composer.WorkingStats(ctx, b.cache, in, mode)
		return &stats, nil
	})
}

type contractSelector func([]planning.Contract, generic.Period) (planning.Contract, bool)

// input gathers one worker's data. ok is false when no contract applies.
func (s *Service) input(ctx context.Context, w planning.Worker, period generic.Period, selectContract contractSelector) (Input, bool, error) {
	contracts, err := s.source.ListContracts(ctx, w.ID)
	if err != nil {
		return Input{}, false, &generic.WorkerError{WorkerID: w.ID, Err: err}
	}
	contract, ok := selectContract(contracts, period)
	if !ok {
		s.logger.Debug("no applicable contract", zap.String("worker_id", w.ID), zap.String("period", period.String()))
		return Input{}, false, nil
	}

	events, err := s.source.ListWorkerEvents(ctx, w.ID, period)
	if err != nil {
		return Input{}, false, &generic.WorkerError{WorkerID: w.ID, Err: err}
	}
	in := Input{Worker: w, Contract: contract, Events: events, Period: period}

	prevPeriod := period.PreviousMonth()
	prev, err := s.repo.FindPay(ctx, w.ID, prevPeriod.MonthLabel())
	switch {
	case errors.Is(err, generic.ErrPayNotFound):
		return in, true, nil
	case err != nil:
		return Input{}, false, &generic.WorkerError{WorkerID: w.ID, Err: err}
	}

	prevEvents, err := s.source.ListWorkerEvents(ctx, w.ID, prevPeriod)
	if err != nil {
		return Input{}, false, &generic.WorkerError{WorkerID: w.ID, Err: err}
	}
	in.PrevPay = prev
	in.PrevEvents = prevEvents
	return in, true, nil
}

// =============================================================================
// STORED PAY
// =============================================================================

// SavePays stores draft pays, stamping ids and creation times.
func (s *Service) SavePays(ctx context.Context, records []Record) error {
	now := s.now()
	for i := range records {
		if err := validateRecord(records[i]); err != nil {
			return err
		}
		stamp(&records[i], uuid.NewString(), now)
	}
	if err := s.repo.SavePays(ctx, records); err != nil {
		return fmt.Errorf("save pays: %w", err)
	}
	s.logger.Info("pays saved", zap.Int("records", len(records)))
	return nil
}

// SaveFinalPays stores draft final pays.
func (s *Service) SaveFinalPays(ctx context.Context, records []FinalRecord) error {
	now := s.now()
	for i := range records {
		if err := validateRecord(records[i].Record); err != nil {
			return err
		}
		stamp(&records[i].Record, uuid.NewString(), now)
	}
	if err := s.repo.SaveFinalPays(ctx, records); err != nil {
		return fmt.Errorf("save final pays: %w", err)
	}
	s.logger.Info("final pays saved", zap.Int("records", len(records)))
	return nil
}

func (s *Service) ListPays(ctx context.Context, month string) ([]Record, error) {
	return s.repo.ListPays(ctx, month)
}

func (s *Service) ListFinalPays(ctx context.Context, month string) ([]FinalRecord, error) {
	return s.repo.ListFinalPays(ctx, month)
}

func validateRecord(r Record) error {
	if r.WorkerID == "" {
		return fmt.Errorf("%w: missing worker", generic.ErrInvalidRecord)
	}
	if _, err := time.Parse("01-2006", r.Month); err != nil {
		return fmt.Errorf("%w: month %q is not MM-YYYY", generic.ErrInvalidRecord, r.Month)
	}
	return nil
}
