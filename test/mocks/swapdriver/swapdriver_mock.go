package swapdriver

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ArbMon-Fusion/dca-engine/internal/swap"
	"github.com/ArbMon-Fusion/dca-engine/internal/types"
)

type MockSwapDriver struct {
	mock.Mock
}

func (m *MockSwapDriver) Execute(ctx context.Context, o *types.SignedOrder) (*swap.Result, error) {
	args := m.Called(ctx, o)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*swap.Result), args.Error(1)
}
