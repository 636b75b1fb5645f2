package chainclient

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"

	"github.com/ArbMon-Fusion/dca-engine/internal/chain"
)

type MockChainClient struct {
	mock.Mock
}

func (m *MockChainClient) SendAndWait(ctx context.Context, req chain.TxRequest) (*gtypes.Receipt, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gtypes.Receipt), args.Error(1)
}

func (m *MockChainClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]gtypes.Log, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]gtypes.Log), args.Error(1)
}

func (m *MockChainClient) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	args := m.Called(ctx, to, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockChainClient) BlockTimestamp(ctx context.Context, blockNumber *big.Int) (uint64, error) {
	args := m.Called(ctx, blockNumber)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockChainClient) Close() {
	m.Called()
}
