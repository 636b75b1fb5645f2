package store

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ArbMon-Fusion/dca-engine/internal/types"
	"github.com/ArbMon-Fusion/dca-engine/storage"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Reload(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) GetUserRecord(ctx context.Context, address string) (types.UserRecord, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(types.UserRecord), args.Error(1)
}

func (m *MockStore) UpsertUserRecord(ctx context.Context, address string, record types.UserRecord) error {
	args := m.Called(ctx, address, record)
	return args.Error(0)
}

func (m *MockStore) AddInvestment(ctx context.Context, address string, inv types.Investment) error {
	args := m.Called(ctx, address, inv)
	return args.Error(0)
}

func (m *MockStore) UpdateInvestment(ctx context.Context, address, investmentID string, patch types.InvestmentPatch) error {
	args := m.Called(ctx, address, investmentID, patch)
	return args.Error(0)
}

func (m *MockStore) DeactivateInvestment(ctx context.Context, address, investmentID string) error {
	args := m.Called(ctx, address, investmentID)
	return args.Error(0)
}

func (m *MockStore) RemoveInvestment(ctx context.Context, address, investmentID string) error {
	args := m.Called(ctx, address, investmentID)
	return args.Error(0)
}

func (m *MockStore) AppendHistory(ctx context.Context, address string, item types.HistoryItem) error {
	args := m.Called(ctx, address, item)
	return args.Error(0)
}

func (m *MockStore) UpdateHistory(ctx context.Context, address, historyID string, patch types.HistoryPatch) error {
	args := m.Called(ctx, address, historyID, patch)
	return args.Error(0)
}

func (m *MockStore) ListDueInvestments(ctx context.Context, now time.Time) ([]storage.DueInvestment, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.DueInvestment), args.Error(1)
}

func (m *MockStore) ComputeUserStats(ctx context.Context, address string) (types.UserStats, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(types.UserStats), args.Error(1)
}

func (m *MockStore) Export(ctx context.Context) (*types.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Snapshot), args.Error(1)
}

func (m *MockStore) Import(ctx context.Context, snapshot *types.Snapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
