package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ArbMon-Fusion/dca-engine/config"
	"github.com/ArbMon-Fusion/dca-engine/internal/swap"
	"github.com/ArbMon-Fusion/dca-engine/internal/swaperr"
	"github.com/ArbMon-Fusion/dca-engine/internal/types"
	"github.com/ArbMon-Fusion/dca-engine/storage"
	mockstore "github.com/ArbMon-Fusion/dca-engine/test/mocks/store"
	mockdriver "github.com/ArbMon-Fusion/dca-engine/test/mocks/swapdriver"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

const userAddr = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

func testConfig() config.Config {
	var cfg config.Config
	cfg.Scheduler.PollIntervalSeconds = 60
	cfg.Scheduler.RetryDelaySeconds = 60
	cfg.Scheduler.RearmFromInterval = true
	cfg.Scheduler.RearmWindowSeconds = 30
	return cfg
}

func newTestScheduler(cfg config.Config) (*Scheduler, *mockstore.MockStore, *mockdriver.MockSwapDriver, time.Time) {
	st := &mockstore.MockStore{}
	dr := &mockdriver.MockSwapDriver{}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	s := New(cfg, st, dr, logger, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.clock = fixedClock{t: now}
	return s, st, dr, now
}

func signedInvestment(id string) types.Investment {
	return types.Investment{
		ID:              id,
		Amount:          "0.01",
		IntervalMinutes: 60,
		IsActive:        true,
		TotalInvested:   "0.02",
		TotalReceived:   "0.018",
		SwapCount:       2,
		SignedOrder: &types.SignedOrder{
			MakingAmount: "10000000000000000",
			TakingAmount: "9000000000000000",
			OrderHash:    "0xabc",
		},
	}
}

func TestPassExecutesDueInvestmentSuccessfully(t *testing.T) {
	s, st, dr, now := newTestScheduler(testConfig())
	inv := signedInvestment("i1")

	st.On("Reload", mock.Anything).Return(nil)
	st.On("ListDueInvestments", mock.Anything, now).
		Return([]storage.DueInvestment{{Address: userAddr, Investment: inv}}, nil)

	var pendingID string
	st.On("AppendHistory", mock.Anything, userAddr, mock.MatchedBy(func(item types.HistoryItem) bool {
		pendingID = item.ID
		return item.Status == types.StatusPending &&
			item.SourceAmount == "0.01" &&
			item.DestAmount == "0"
	})).Return(nil)

	res := &swap.Result{
		SrcEscrowTx:    "0xsrc",
		DstEscrowTx:    "0xdst",
		DstWithdrawTx:  "0xwd",
		SrcWithdrawTx:  "0xws",
		WithdrawnSides: []types.WithdrawSide{types.WithdrawSideDst, types.WithdrawSideSrc},
	}
	dr.On("Execute", mock.Anything, inv.SignedOrder).Return(res, nil)

	st.On("UpdateHistory", mock.Anything, userAddr, mock.Anything, mock.MatchedBy(func(p types.HistoryPatch) bool {
		return p.Status != nil && *p.Status == types.StatusSuccess &&
			p.DestAmount != nil && *p.DestAmount == "0.009" &&
			len(p.WithdrawnSides) == 2
	})).Return(nil)

	expectedNext := now.Add(60 * time.Minute).UnixMilli()
	st.On("UpdateInvestment", mock.Anything, userAddr, "i1", mock.MatchedBy(func(p types.InvestmentPatch) bool {
		return p.NextExecution != nil && *p.NextExecution == expectedNext &&
			p.SwapCount != nil && *p.SwapCount == 3 &&
			p.TotalInvested != nil && *p.TotalInvested == "0.03" &&
			p.TotalReceived != nil && *p.TotalReceived == "0.027"
	})).Return(nil)

	require.NoError(t, s.TriggerCheck(context.Background()))
	st.AssertExpectations(t)
	dr.AssertExpectations(t)
	require.NotEmpty(t, pendingID)

	status := s.Status()
	require.Equal(t, 1, status.LastPassDue)
	require.Equal(t, int64(1), status.TotalPasses)
	require.Equal(t, now.UnixMilli(), status.LastPassAt)
	require.Equal(t, now.Add(60*time.Second).UnixMilli(), status.NextCheckAt)
}

func TestPassRecordsFailureAndRearms(t *testing.T) {
	s, st, dr, now := newTestScheduler(testConfig())
	inv := signedInvestment("i1")

	st.On("Reload", mock.Anything).Return(nil)
	st.On("ListDueInvestments", mock.Anything, now).
		Return([]storage.DueInvestment{{Address: userAddr, Investment: inv}}, nil)
	st.On("AppendHistory", mock.Anything, userAddr, mock.Anything).Return(nil)

	partial := &swap.Result{
		SrcEscrowTx:    "0xsrc",
		DstEscrowTx:    "0xdst",
		DstWithdrawTx:  "0xwd",
		WithdrawnSides: []types.WithdrawSide{types.WithdrawSideDst},
	}
	execErr := swaperr.New(swaperr.KindChain, "source withdrawal reverted")
	dr.On("Execute", mock.Anything, inv.SignedOrder).Return(partial, execErr)

	st.On("UpdateHistory", mock.Anything, userAddr, mock.Anything, mock.MatchedBy(func(p types.HistoryPatch) bool {
		return p.Status != nil && *p.Status == types.StatusFailed &&
			p.Error != nil && *p.Error != "" &&
			len(p.WithdrawnSides) == 1 && p.WithdrawnSides[0] == types.WithdrawSideDst
	})).Return(nil)

	expectedNext := now.Add(60 * time.Second).UnixMilli()
	st.On("UpdateInvestment", mock.Anything, userAddr, "i1", mock.MatchedBy(func(p types.InvestmentPatch) bool {
		// failures only re-arm; totals and counts stay put
		return p.NextExecution != nil && *p.NextExecution == expectedNext &&
			p.SwapCount == nil && p.TotalInvested == nil && p.TotalReceived == nil
	})).Return(nil)

	require.NoError(t, s.TriggerCheck(context.Background()))
	st.AssertExpectations(t)
	dr.AssertExpectations(t)
}

func TestPassFailsInvestmentWithoutSignedOrder(t *testing.T) {
	s, st, dr, now := newTestScheduler(testConfig())
	inv := signedInvestment("i1")
	inv.SignedOrder = nil

	st.On("Reload", mock.Anything).Return(nil)
	st.On("ListDueInvestments", mock.Anything, now).
		Return([]storage.DueInvestment{{Address: userAddr, Investment: inv}}, nil)
	st.On("AppendHistory", mock.Anything, userAddr, mock.Anything).Return(nil)
	st.On("UpdateHistory", mock.Anything, userAddr, mock.Anything, mock.MatchedBy(func(p types.HistoryPatch) bool {
		return p.Status != nil && *p.Status == types.StatusFailed && p.Error != nil
	})).Return(nil)
	st.On("UpdateInvestment", mock.Anything, userAddr, "i1", mock.Anything).Return(nil)

	require.NoError(t, s.TriggerCheck(context.Background()))
	dr.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	st.AssertExpectations(t)
}

func TestPendingWriteFailureSkipsExecution(t *testing.T) {
	s, st, dr, now := newTestScheduler(testConfig())
	inv := signedInvestment("i1")

	st.On("Reload", mock.Anything).Return(nil)
	st.On("ListDueInvestments", mock.Anything, now).
		Return([]storage.DueInvestment{{Address: userAddr, Investment: inv}}, nil)
	st.On("AppendHistory", mock.Anything, userAddr, mock.Anything).
		Return(swaperr.New(swaperr.KindStore, "backend write failed"))

	require.NoError(t, s.TriggerCheck(context.Background()))
	dr.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestPassReloadsStoreBeforeListing(t *testing.T) {
	s, st, _, now := newTestScheduler(testConfig())

	var calls []string
	st.On("Reload", mock.Anything).
		Run(func(mock.Arguments) { calls = append(calls, "reload") }).
		Return(nil)
	st.On("ListDueInvestments", mock.Anything, now).
		Run(func(mock.Arguments) { calls = append(calls, "list") }).
		Return(nil, nil)

	require.NoError(t, s.TriggerCheck(context.Background()))
	require.Equal(t, []string{"reload", "list"}, calls)
}

func TestReloadFailureSkipsPass(t *testing.T) {
	s, st, dr, _ := newTestScheduler(testConfig())

	st.On("Reload", mock.Anything).
		Return(swaperr.New(swaperr.KindStore, "backend read failed"))

	require.NoError(t, s.TriggerCheck(context.Background()))
	st.AssertNotCalled(t, "ListDueInvestments", mock.Anything, mock.Anything)
	dr.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestRearmFixedWindowWhenConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.Scheduler.RearmFromInterval = false
	s, st, dr, now := newTestScheduler(cfg)
	inv := signedInvestment("i1")

	st.On("Reload", mock.Anything).Return(nil)
	st.On("ListDueInvestments", mock.Anything, now).
		Return([]storage.DueInvestment{{Address: userAddr, Investment: inv}}, nil)
	st.On("AppendHistory", mock.Anything, userAddr, mock.Anything).Return(nil)
	dr.On("Execute", mock.Anything, inv.SignedOrder).Return(&swap.Result{}, nil)
	st.On("UpdateHistory", mock.Anything, userAddr, mock.Anything, mock.Anything).Return(nil)

	expectedNext := now.Add(30 * time.Second).UnixMilli()
	st.On("UpdateInvestment", mock.Anything, userAddr, "i1", mock.MatchedBy(func(p types.InvestmentPatch) bool {
		return p.NextExecution != nil && *p.NextExecution == expectedNext
	})).Return(nil)

	require.NoError(t, s.TriggerCheck(context.Background()))
	st.AssertExpectations(t)
}

func TestTriggerCheckRejectsOverlappingPass(t *testing.T) {
	s, st, _, now := newTestScheduler(testConfig())

	started := make(chan struct{})
	release := make(chan struct{})
	st.On("Reload", mock.Anything).Return(nil)
	st.On("ListDueInvestments", mock.Anything, now).
		Run(func(args mock.Arguments) {
			close(started)
			<-release
		}).
		Return(nil, nil)

	go func() {
		_ = s.TriggerCheck(context.Background())
	}()
	<-started

	err := s.TriggerCheck(context.Background())
	require.Error(t, err)
	close(release)
}

func TestExecutionOrderIsSequential(t *testing.T) {
	s, st, dr, now := newTestScheduler(testConfig())
	first := signedInvestment("i1")
	second := signedInvestment("i2")
	first.SignedOrder.OrderHash = "0xfirst"
	second.SignedOrder.OrderHash = "0xsecond"

	st.On("Reload", mock.Anything).Return(nil)
	st.On("ListDueInvestments", mock.Anything, now).Return([]storage.DueInvestment{
		{Address: userAddr, Investment: first},
		{Address: userAddr, Investment: second},
	}, nil)
	st.On("AppendHistory", mock.Anything, userAddr, mock.Anything).Return(nil)
	st.On("UpdateHistory", mock.Anything, userAddr, mock.Anything, mock.Anything).Return(nil)
	st.On("UpdateInvestment", mock.Anything, userAddr, mock.Anything, mock.Anything).Return(nil)

	var seen []string
	dr.On("Execute", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			o := args.Get(1).(*types.SignedOrder)
			seen = append(seen, o.OrderHash)
		}).
		Return(&swap.Result{}, nil)

	require.NoError(t, s.TriggerCheck(context.Background()))
	require.Equal(t, []string{"0xfirst", "0xsecond"}, seen)
}
