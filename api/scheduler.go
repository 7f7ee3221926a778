/*
scheduler.go - Periodic draft pay scheduler

PURPOSE:
  Periodically computes the draft pay of the current month so payroll
  managers see problems (missing contracts, unknown routes) before the
  month closes. Routes resolved by the distance provider during a run are
  persisted by the transport resolver, so later runs and the draft
  requested through the API hit the store instead of the provider.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Never saves pay: drafts are only validated through POST /api/pay
  - A failed run is logged and retried on the next tick

CONFIGURATION:
  - Interval: How often to run (default: 6 hours)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewDraftScheduler(service, loc, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: DraftPay endpoint (on-demand draft)
  - pay/service.go: DraftPay
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/pay-engine/generic"
	"github.com/warp/pay-engine/pay"
)

// Drafter computes the draft pay of a month.
type Drafter interface {
	DraftPay(ctx context.Context, period generic.Period) ([]pay.Record, error)
}

// DraftScheduler runs the current month's draft pay on a ticker.
type DraftScheduler struct {
	Drafter  Drafter
	Interval time.Duration
	Enabled  bool
	Location *time.Location

	logger  *zap.Logger
	now     func() time.Time
	ticker  *time.Ticker
	stop    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun RunSummary
}

// RunSummary describes the last scheduled run.
type RunSummary struct {
	Month    string
	Workers  int
	Started  time.Time
	Duration time.Duration
	Err      error
}

// NewDraftScheduler creates a new scheduler.
func NewDraftScheduler(drafter Drafter, loc *time.Location, logger *zap.Logger) *DraftScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DraftScheduler{
		Drafter:  drafter,
		Interval: 6 * time.Hour,
		Enabled:  true,
		Location: loc,
		logger:   logger.Named("scheduler"),
		now:      time.Now,
	}
}

// Start begins the scheduler.
func (ds *DraftScheduler) Start() {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	if !ds.Enabled {
		ds.logger.Info("disabled, not starting")
		return
	}
	if ds.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	ds.cancel = cancel
	ds.stop = make(chan struct{})
	ds.ticker = time.NewTicker(ds.Interval)
	ds.wg.Add(1)

	go ds.run(ctx, ds.ticker, ds.stop)

	ds.logger.Info("started", zap.Duration("interval", ds.Interval))
}

// Stop stops the scheduler and waits for a running draft to return.
func (ds *DraftScheduler) Stop() {
	ds.mu.Lock()
	ticker, cancel, stop := ds.ticker, ds.cancel, ds.stop
	ds.ticker = nil
	ds.mu.Unlock()

	if ticker == nil {
		return
	}
	ticker.Stop()
	cancel()
	close(stop)
	ds.wg.Wait()
	ds.logger.Info("stopped")
}

func (ds *DraftScheduler) run(ctx context.Context, ticker *time.Ticker, stop <-chan struct{}) {
	defer ds.wg.Done()

	// Run immediately on start
	ds.RunNow(ctx)

	for {
		select {
		case <-ticker.C:
			ds.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow drafts the current month immediately.
func (ds *DraftScheduler) RunNow(ctx context.Context) RunSummary {
	started := ds.now()
	period := generic.MonthOf(started.In(ds.Location))

	records, err := ds.Drafter.DraftPay(ctx, period)
	summary := RunSummary{
		Month:    period.MonthLabel(),
		Workers:  len(records),
		Started:  started,
		Duration: ds.now().Sub(started),
		Err:      err,
	}

	if err != nil {
		ds.logger.Error("draft pay failed", zap.String("month", summary.Month), zap.Error(err))
	} else {
		ds.logger.Info("draft pay computed",
			zap.String("month", summary.Month),
			zap.Int("workers", summary.Workers),
			zap.Duration("duration", summary.Duration),
		)
	}

	ds.mu.Lock()
	ds.lastRun = summary
	ds.mu.Unlock()
	return summary
}

// LastRun returns the summary of the most recent run.
func (ds *DraftScheduler) LastRun() RunSummary {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.lastRun
}
