package approval

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ArbMon-Fusion/dca-engine/internal/swaperr"
	"github.com/ArbMon-Fusion/dca-engine/internal/types"
	mockchain "github.com/ArbMon-Fusion/dca-engine/test/mocks/chainclient"
)

var (
	token   = common.HexToAddress("0x1000000000000000000000000000000000000001")
	spender = common.HexToAddress("0x2000000000000000000000000000000000000002")
	owner   = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func newTestChecker() (*Checker, *mockchain.MockChainClient) {
	client := &mockchain.MockChainClient{}
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewChecker(client, token, spender, logger), client
}

func packUint(t *testing.T, method string, v *big.Int) []byte {
	t.Helper()
	out, err := erc20ABI.Methods[method].Outputs.Pack(v)
	require.NoError(t, err)
	return out
}

// wei values for 0.05 and 0.02 tokens
var (
	weiAllowance = new(big.Int).Mul(big.NewInt(5), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))
	weiBalance   = new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(16), nil))
)

func stubReads(t *testing.T, client *mockchain.MockChainClient, allowance, balance *big.Int) {
	t.Helper()
	client.On("CallContract", mock.Anything, token, mock.Anything).
		Return(packUint(t, "allowance", allowance), nil).Once()
	client.On("CallContract", mock.Anything, token, mock.Anything).
		Return(packUint(t, "balanceOf", balance), nil).Once()
}

func TestCheckApprovalComparesRequiredAmount(t *testing.T) {
	checker, client := newTestChecker()
	stubReads(t, client, weiAllowance, weiBalance)

	// allowance 0.05 covers 0.03, balance 0.02 does not
	st := checker.CheckApproval(context.Background(), owner, "0.03")
	require.False(t, st.Degraded)
	require.Equal(t, "0.05", st.Allowance)
	require.Equal(t, "0.02", st.Balance)
	require.Equal(t, "0.03", st.RequiredAmount)
	require.True(t, st.HasApproval)
	require.False(t, st.HasSufficientBalance)
	require.Equal(t, token.Hex(), st.Token)
	require.Equal(t, spender.Hex(), st.Spender)
}

func TestCheckApprovalSatisfiedForSmallerAmount(t *testing.T) {
	checker, client := newTestChecker()
	stubReads(t, client, weiAllowance, weiBalance)

	st := checker.CheckApproval(context.Background(), owner, "0.01")
	require.True(t, st.HasApproval)
	require.True(t, st.HasSufficientBalance)
}

func TestCheckApprovalDegradesToZeroOnReadError(t *testing.T) {
	checker, client := newTestChecker()

	client.On("CallContract", mock.Anything, token, mock.Anything).
		Return(nil, swaperr.New(swaperr.KindChain, "rpc unavailable"))

	st := checker.CheckApproval(context.Background(), owner, "0.01")
	require.True(t, st.Degraded)
	require.Equal(t, "0", st.Allowance)
	require.Equal(t, "0", st.Balance)
	require.False(t, st.HasApproval)
	require.False(t, st.HasSufficientBalance)
}

func TestCheckReadinessProjectsEstimatedExecutions(t *testing.T) {
	checker, client := newTestChecker()
	stubReads(t, client, weiAllowance, weiBalance)

	// 3 x 0.01 = 0.03: allowance 0.05 covers it, balance 0.02 falls short
	r, err := checker.CheckReadiness(context.Background(), owner, "0.01", 3)
	require.NoError(t, err)
	require.False(t, r.Ready)
	require.False(t, r.ApprovalNeeded)
	require.Equal(t, 3, r.EstimatedExecutions)
	require.Equal(t, "0.03", r.EstimatedRequiredApproval)
	require.Len(t, r.Issues, 1)
	require.NotEmpty(t, r.Recommendations)
}

func TestCheckReadinessDefaultsToTenExecutions(t *testing.T) {
	checker, client := newTestChecker()
	stubReads(t, client, weiAllowance, weiBalance)

	// 10 x 0.01 = 0.1: neither allowance nor balance covers it
	r, err := checker.CheckReadiness(context.Background(), owner, "0.01", 0)
	require.NoError(t, err)
	require.Equal(t, DefaultEstimatedExecutions, r.EstimatedExecutions)
	require.Equal(t, "0.1", r.EstimatedRequiredApproval)
	require.False(t, r.Ready)
	require.True(t, r.ApprovalNeeded)
	require.Len(t, r.Issues, 2)
}

func TestCheckReadinessReady(t *testing.T) {
	checker, client := newTestChecker()
	stubReads(t, client, weiAllowance, weiBalance)

	r, err := checker.CheckReadiness(context.Background(), owner, "0.01", 2)
	require.NoError(t, err)
	require.True(t, r.Ready)
	require.False(t, r.ApprovalNeeded)
	require.Equal(t, "0.02", r.EstimatedRequiredApproval)
	require.Empty(t, r.Issues)
}

func TestApprovalCallData(t *testing.T) {
	checker, _ := newTestChecker()

	to, data, err := checker.ApprovalCallData("0.03")
	require.NoError(t, err)
	require.Equal(t, token, to)
	// approve selector
	require.Equal(t, erc20ABI.Methods["approve"].ID, data[:4])

	wei, err := types.ToWei("0.03")
	require.NoError(t, err)
	args, err := erc20ABI.Methods["approve"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	require.Equal(t, spender, args[0].(common.Address))
	require.Equal(t, 0, wei.Cmp(args[1].(*big.Int)))
}
