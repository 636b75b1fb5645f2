package scheduler

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ArbMon-Fusion/dca-engine/config"
	"github.com/ArbMon-Fusion/dca-engine/internal/swap"
	"github.com/ArbMon-Fusion/dca-engine/internal/swaperr"
	"github.com/ArbMon-Fusion/dca-engine/internal/types"
	"github.com/ArbMon-Fusion/dca-engine/storage"
)

// SwapDriver executes one swap from a pre-signed bundle. A partial Result
// is returned alongside the error when the run died mid-way.
type SwapDriver interface {
	Execute(ctx context.Context, o *types.SignedOrder) (*swap.Result, error)
}

// Clock is replaceable in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Status is the scheduler's self-report for the API surface.
type Status struct {
	Running             bool  `json:"running"`
	PollIntervalSeconds int   `json:"poll_interval_seconds"`
	LastPassAt          int64 `json:"last_pass_at"` // unix ms, zero before the first pass
	LastPassDue         int   `json:"last_pass_due"`
	NextCheckAt         int64 `json:"next_check_at"` // unix ms, zero before the first pass
	TotalPasses         int64 `json:"total_passes"`
}

// Scheduler polls the store for due investments and executes them strictly
// one at a time. Every attempt writes a pending history record first, then
// resolves it to success or failed; NextExecution is re-armed on every
// attempt so a failing investment retries on the next pass.
type Scheduler struct {
	store  storage.Store
	driver SwapDriver
	logger *logrus.Logger
	statsd *statsd.Client
	clock  Clock

	pollInterval      time.Duration
	retryDelay        time.Duration
	rearmFromInterval bool
	rearmWindow       time.Duration

	// passMu serializes passes; an overlapping trigger is skipped, not queued
	passMu sync.Mutex

	mu          sync.Mutex
	running     bool
	done        chan struct{}
	wg          sync.WaitGroup
	lastPassAt  int64
	lastPassDue int
	totalPasses int64
}

func New(cfg config.Config, store storage.Store, driver SwapDriver, logger *logrus.Logger, sd *statsd.Client) *Scheduler {
	return &Scheduler{
		store:             store,
		driver:            driver,
		logger:            logger,
		statsd:            sd,
		clock:             realClock{},
		pollInterval:      time.Duration(cfg.Scheduler.PollIntervalSeconds) * time.Second,
		retryDelay:        time.Duration(cfg.Scheduler.RetryDelaySeconds) * time.Second,
		rearmFromInterval: cfg.Scheduler.RearmFromInterval,
		rearmWindow:       time.Duration(cfg.Scheduler.RearmWindowSeconds) * time.Second,
	}
}

// Start launches the poll loop. The first pass runs immediately rather than
// waiting out the first tick. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.WithField("poll_interval", s.pollInterval).Info("scheduler started")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runPass(ctx)

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runPass(ctx)
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the poll loop and waits for an in-flight pass to finish.
// Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// TriggerCheck runs one pass on demand. It returns an error when a pass is
// already in flight.
func (s *Scheduler) TriggerCheck(ctx context.Context) error {
	if !s.passMu.TryLock() {
		return swaperr.New(swaperr.KindConfig, "a scheduler pass is already running")
	}
	defer s.passMu.Unlock()
	s.pass(ctx)
	return nil
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	var nextCheck int64
	if s.lastPassAt > 0 {
		nextCheck = s.lastPassAt + s.pollInterval.Milliseconds()
	}
	return Status{
		Running:             s.running,
		PollIntervalSeconds: int(s.pollInterval / time.Second),
		LastPassAt:          s.lastPassAt,
		LastPassDue:         s.lastPassDue,
		NextCheckAt:         nextCheck,
		TotalPasses:         s.totalPasses,
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	if !s.passMu.TryLock() {
		s.logger.Warn("previous pass still running, skipping tick")
		return
	}
	defer s.passMu.Unlock()
	s.pass(ctx)
}

func (s *Scheduler) pass(ctx context.Context) {
	start := s.clock.Now()

	// the snapshot may have been rewritten by an external process since the
	// last pass; mutating a stale in-memory copy would persist over it
	if err := s.store.Reload(ctx); err != nil {
		s.logger.WithError(err).Error("failed to reload store, skipping pass")
		return
	}

	due, err := s.store.ListDueInvestments(ctx, start)
	if err != nil {
		s.logger.WithError(err).Error("failed to list due investments")
		return
	}

	if len(due) > 0 {
		s.logger.WithField("due", len(due)).Info("executing due investments")
	}
	for _, d := range due {
		s.executeInvestment(ctx, d)
	}

	s.mu.Lock()
	s.lastPassAt = start.UnixMilli()
	s.lastPassDue = len(due)
	s.totalPasses++
	s.mu.Unlock()

	s.measureTime("dca.scheduler.pass_duration", start)
	s.incCounter("dca.scheduler.passes")
}

func (s *Scheduler) executeInvestment(ctx context.Context, d storage.DueInvestment) {
	inv := d.Investment
	now := s.clock.Now()

	log := s.logger.WithFields(logrus.Fields{
		"user":       d.Address,
		"investment": inv.ID,
		"amount":     inv.Amount,
	})

	item := types.HistoryItem{
		ID:           uuid.NewString(),
		Timestamp:    now.UnixMilli(),
		SourceAmount: inv.Amount,
		DestAmount:   "0",
		Status:       types.StatusPending,
	}
	if err := s.store.AppendHistory(ctx, d.Address, item); err != nil {
		log.WithError(err).Error("failed to record pending execution, skipping")
		return
	}

	if inv.SignedOrder == nil {
		s.finishFailed(ctx, d, inv, item.ID,
			swaperr.New(swaperr.KindConfig, "investment has no signed order bundle"), nil, log)
		return
	}

	res, err := s.driver.Execute(ctx, inv.SignedOrder)
	if err != nil {
		s.finishFailed(ctx, d, inv, item.ID, err, res, log)
		return
	}
	s.finishSuccess(ctx, d, inv, item.ID, res, log)
}

func (s *Scheduler) finishSuccess(
	ctx context.Context,
	d storage.DueInvestment,
	inv types.Investment,
	historyID string,
	res *swap.Result,
	log *logrus.Entry,
) {
	destAmount, err := weiStringToUnits(inv.SignedOrder.TakingAmount)
	if err != nil {
		log.WithError(err).Error("bad taking amount on signed order")
		destAmount = "0"
	}

	status := types.StatusSuccess
	patch := types.HistoryPatch{
		Status:         &status,
		DestAmount:     &destAmount,
		SrcEscrowTx:    &res.SrcEscrowTx,
		DstEscrowTx:    &res.DstEscrowTx,
		WithdrawTx:     &res.DstWithdrawTx,
		WithdrawnSides: res.WithdrawnSides,
	}
	if err := s.store.UpdateHistory(ctx, d.Address, historyID, patch); err != nil {
		log.WithError(err).Error("failed to finalize history record")
	}

	totalInvested, err := types.AddDecimal(inv.TotalInvested, inv.Amount)
	if err != nil {
		log.WithError(err).Error("failed to accumulate invested total")
		totalInvested = inv.TotalInvested
	}
	totalReceived, err := types.AddDecimal(inv.TotalReceived, destAmount)
	if err != nil {
		log.WithError(err).Error("failed to accumulate received total")
		totalReceived = inv.TotalReceived
	}
	swapCount := inv.SwapCount + 1
	next := s.nextExecution(inv, false)

	err = s.store.UpdateInvestment(ctx, d.Address, inv.ID, types.InvestmentPatch{
		NextExecution: &next,
		TotalInvested: &totalInvested,
		TotalReceived: &totalReceived,
		SwapCount:     &swapCount,
	})
	if err != nil {
		log.WithError(err).Error("failed to re-arm investment")
	}

	s.incCounter("dca.swap.success")
	log.WithFields(logrus.Fields{
		"dest_amount":    destAmount,
		"next_execution": next,
	}).Info("swap executed")
}

func (s *Scheduler) finishFailed(
	ctx context.Context,
	d storage.DueInvestment,
	inv types.Investment,
	historyID string,
	execErr error,
	res *swap.Result,
	log *logrus.Entry,
) {
	status := types.StatusFailed
	msg := execErr.Error()
	patch := types.HistoryPatch{
		Status: &status,
		Error:  &msg,
	}
	if res != nil {
		patch.SrcEscrowTx = &res.SrcEscrowTx
		patch.DstEscrowTx = &res.DstEscrowTx
		patch.WithdrawTx = &res.DstWithdrawTx
		patch.WithdrawnSides = res.WithdrawnSides
	}
	if err := s.store.UpdateHistory(ctx, d.Address, historyID, patch); err != nil {
		log.WithError(err).Error("failed to finalize history record")
	}

	next := s.nextExecution(inv, true)
	err := s.store.UpdateInvestment(ctx, d.Address, inv.ID, types.InvestmentPatch{
		NextExecution: &next,
	})
	if err != nil {
		log.WithError(err).Error("failed to re-arm investment")
	}

	s.incCounter("dca.swap.failed")
	log.WithFields(logrus.Fields{
		"kind":           swaperr.KindOf(execErr),
		"next_execution": next,
	}).WithError(execErr).Error("swap execution failed")
}

// nextExecution re-arms the investment. Successful runs advance by the
// investment's own interval (or the fixed window when configured for
// testing); failed runs come back after the retry delay with no backoff.
func (s *Scheduler) nextExecution(inv types.Investment, failed bool) int64 {
	now := s.clock.Now()
	if failed {
		return now.Add(s.retryDelay).UnixMilli()
	}
	if s.rearmFromInterval {
		return now.Add(time.Duration(inv.IntervalMinutes) * time.Minute).UnixMilli()
	}
	return now.Add(s.rearmWindow).UnixMilli()
}

func weiStringToUnits(wei string) (string, error) {
	n, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return "", fmt.Errorf("invalid wei amount: %q", wei)
	}
	return types.FromWei(n), nil
}

func (s *Scheduler) incCounter(name string) {
	if s.statsd == nil {
		return
	}
	if err := s.statsd.Count(name, 1, nil, 1); err != nil {
		s.logger.WithError(err).Debug("failed to send metric")
	}
}

func (s *Scheduler) measureTime(name string, start time.Time) {
	if s.statsd == nil {
		return
	}
	if err := s.statsd.Timing(name, time.Since(start), nil, 1); err != nil {
		s.logger.WithError(err).Debug("failed to send metric")
	}
}
