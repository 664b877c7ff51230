/*
scheduler.go - Automated balance reconciliation scheduler

PURPOSE:
  Periodically replays every channel's entry log and repairs cached
  balances that drifted from it (ledger.Engine.ReconcileAll).

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - A failing channel does not stop the sweep; failures are logged
  - Each run is recorded in SchedulerMetrics (duration, repairs, outcome)

CONFIGURATION:
  - CheckInterval: How often to check (TILL_SCHEDULER_INTERVAL, default 1h)
  - Enabled: Whether scheduler is active (TILL_SCHEDULER_ENABLED, default true)

USAGE:
  scheduler := NewReconciliationScheduler(engine, logg, schedMetrics)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ReconcileChannel endpoint (manual reconciliation)
  - ledger/reconcile.go: replay and repair
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/channel-ledger/ledger"
	"github.com/warp/channel-ledger/logger"
	"github.com/warp/channel-ledger/metrics"
)

const reconcileJob = "reconcile_balances"

// ReconciliationScheduler handles automated cache repair.
type ReconciliationScheduler struct {
	Engine        *ledger.Engine
	Logger        *logger.Logger
	Metrics       *metrics.SchedulerMetrics
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewReconciliationScheduler creates a new scheduler. m may be nil.
func NewReconciliationScheduler(engine *ledger.Engine, logg *logger.Logger, m *metrics.SchedulerMetrics) *ReconciliationScheduler {
	if logg == nil {
		logg = logger.Nop()
	}
	return &ReconciliationScheduler{
		Engine:        engine,
		Logger:        logg,
		Metrics:       m,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	ctx := rs.Logger.WithField(context.Background(), "job", reconcileJob)
	if !rs.Enabled {
		rs.Logger.Info(ctx, "scheduler.disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	if rs.CheckInterval <= 0 {
		rs.CheckInterval = time.Hour
	}
	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker, rs.stop)

	rs.Logger.Info(rs.Logger.WithField(ctx, "interval", rs.CheckInterval.String()), "scheduler.started")
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		rs.Logger.Info(rs.Logger.WithField(context.Background(), "job", reconcileJob), "scheduler.stopped")
	}
}

func (rs *ReconciliationScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	rs.checkAndProcess(ctx)

	for {
		select {
		case <-ticker.C:
			rs.checkAndProcess(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow triggers an immediate sweep and returns its reports.
func (rs *ReconciliationScheduler) RunNow(ctx context.Context) ([]ledger.ReconcileReport, error) {
	return rs.checkAndProcess(ctx)
}

func (rs *ReconciliationScheduler) checkAndProcess(ctx context.Context) ([]ledger.ReconcileReport, error) {
	ctx = rs.Logger.WithField(ctx, "job", reconcileJob)
	start := time.Now()

	results, err := rs.Engine.ReconcileAll(ctx)

	repaired, breaks := 0, 0
	for _, r := range results {
		if r.Repaired {
			repaired++
		}
		breaks += len(r.ChainBreaks)
	}
	rs.Metrics.ObserveRun(reconcileJob, time.Since(start), repaired, err)

	ctx = rs.Logger.WithFields(ctx, map[string]any{
		"channels":     len(results),
		"repaired":     repaired,
		"chain_breaks": breaks,
		"duration_ms":  time.Since(start).Milliseconds(),
	})
	switch {
	case err != nil:
		rs.Logger.Error(ctx, "scheduler.run_failed", err)
	case breaks > 0:
		rs.Logger.Warn(ctx, "scheduler.chain_breaks_found")
	default:
		rs.Logger.Info(ctx, "scheduler.run_complete")
	}
	return results, err
}
