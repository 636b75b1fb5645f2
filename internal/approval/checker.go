package approval

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/ArbMon-Fusion/dca-engine/internal/chain"
	"github.com/ArbMon-Fusion/dca-engine/internal/swaperr"
	"github.com/ArbMon-Fusion/dca-engine/internal/types"
)

const erc20ABIJSON = `[
	{"name": "allowance", "type": "function", "stateMutability": "view",
		"inputs": [{"name": "owner", "type": "address"}, {"name": "spender", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]},
	{"name": "balanceOf", "type": "function", "stateMutability": "view",
		"inputs": [{"name": "account", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]},
	{"name": "approve", "type": "function", "stateMutability": "nonpayable",
		"inputs": [{"name": "spender", "type": "address"}, {"name": "amount", "type": "uint256"}],
		"outputs": [{"name": "", "type": "bool"}]},
	{"name": "symbol", "type": "function", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "string"}]},
	{"name": "decimals", "type": "function", "stateMutability": "view",
		"inputs": [], "outputs": [{"name": "", "type": "uint8"}]}
]`

var erc20ABI = mustABI(erc20ABIJSON)

// Status compares the owner's on-chain allowance and balance against a
// required amount. When a read fails the amounts are reported as zero with
// Degraded set, so callers always get a conservative answer instead of an
// error.
type Status struct {
	Token                string `json:"token"`
	Owner                string `json:"owner"`
	Spender              string `json:"spender"`
	RequiredAmount       string `json:"required_amount"` // token units, decimal string
	Allowance            string `json:"allowance"`       // token units, decimal string
	Balance              string `json:"balance"`         // token units, decimal string
	HasApproval          bool   `json:"has_approval"`
	HasSufficientBalance bool   `json:"has_sufficient_balance"`
	Degraded             bool   `json:"degraded"`
}

// Readiness projects a per-execution amount over the expected number of
// executions and reports what the user has to top up before starting.
type Readiness struct {
	Status                    Status   `json:"status"`
	PerExecutionAmount        string   `json:"per_execution_amount"`
	EstimatedExecutions       int      `json:"estimated_executions"`
	EstimatedRequiredApproval string   `json:"estimated_required_approval"`
	ApprovalNeeded            bool     `json:"approval_needed"`
	Ready                     bool     `json:"ready"`
	Issues                    []string `json:"issues,omitempty"`
	Recommendations           []string `json:"recommendations,omitempty"`
}

// TokenInfo is the display metadata for the source token.
type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// DefaultEstimatedExecutions sizes the recommended approval when the caller
// does not say how many executions to plan for.
const DefaultEstimatedExecutions = 10

// Checker reads ERC-20 allowance and balance on the source chain. It never
// moves funds; ApprovalCallData only prepares calldata for the user's wallet.
type Checker struct {
	client  chain.Client
	token   common.Address
	spender common.Address
	logger  *logrus.Logger
}

func NewChecker(client chain.Client, token, spender common.Address, logger *logrus.Logger) *Checker {
	return &Checker{
		client:  client,
		token:   token,
		spender: spender,
		logger:  logger,
	}
}

// CheckApproval reads the owner's allowance toward the spender and their
// token balance, then compares both against requiredAmount. RPC failures
// degrade to zero amounts rather than failing the caller.
func (c *Checker) CheckApproval(ctx context.Context, owner common.Address, requiredAmount string) Status {
	st := Status{
		Token:          c.token.Hex(),
		Owner:          owner.Hex(),
		Spender:        c.spender.Hex(),
		RequiredAmount: requiredAmount,
		Allowance:      "0",
		Balance:        "0",
	}

	allowance, err := c.readUint(ctx, "allowance", owner, c.spender)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"token": c.token.Hex(),
			"owner": owner.Hex(),
			"error": err,
		}).Warn("allowance read failed, assuming zero")
		st.Degraded = true
	} else {
		st.Allowance = types.FromWei(allowance)
	}

	balance, err := c.readUint(ctx, "balanceOf", owner)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"token": c.token.Hex(),
			"owner": owner.Hex(),
			"error": err,
		}).Warn("balance read failed, assuming zero")
		st.Degraded = true
	} else {
		st.Balance = types.FromWei(balance)
	}

	st.HasApproval = !lessDecimal(st.Allowance, requiredAmount)
	st.HasSufficientBalance = !lessDecimal(st.Balance, requiredAmount)
	return st
}

// CheckReadiness checks whether the owner can sustain perExecutionAmount
// over estimatedExecutions swaps without re-approving. A non-positive
// estimate falls back to DefaultEstimatedExecutions.
func (c *Checker) CheckReadiness(ctx context.Context, owner common.Address, perExecutionAmount string, estimatedExecutions int) (Readiness, error) {
	if estimatedExecutions <= 0 {
		estimatedExecutions = DefaultEstimatedExecutions
	}
	estimated, err := types.MulDecimal(perExecutionAmount, strconv.Itoa(estimatedExecutions))
	if err != nil {
		return Readiness{}, swaperr.Wrap(swaperr.KindConfig, "approval.CheckReadiness", err)
	}

	st := c.CheckApproval(ctx, owner, estimated)
	r := Readiness{
		Status:                    st,
		PerExecutionAmount:        perExecutionAmount,
		EstimatedExecutions:       estimatedExecutions,
		EstimatedRequiredApproval: estimated,
		ApprovalNeeded:            !st.HasApproval,
		Ready:                     true,
	}

	if st.Degraded {
		r.Ready = false
		r.Issues = append(r.Issues, "on-chain reads are degraded, amounts assumed zero")
		r.Recommendations = append(r.Recommendations, "retry once the source chain RPC is reachable")
	}
	if !st.HasSufficientBalance {
		r.Ready = false
		r.Issues = append(r.Issues, fmt.Sprintf("balance %s does not cover %d executions of %s", st.Balance, estimatedExecutions, perExecutionAmount))
		r.Recommendations = append(r.Recommendations, "fund the wallet or reduce the investment amount")
	}
	if !st.HasApproval {
		r.Ready = false
		r.Issues = append(r.Issues, fmt.Sprintf("allowance %s does not cover %d executions of %s", st.Allowance, estimatedExecutions, perExecutionAmount))
		r.Recommendations = append(r.Recommendations, fmt.Sprintf("approve at least %s to %s", estimated, c.spender.Hex()))
	}
	return r, nil
}

// TokenInfo fetches the source token's symbol and decimals.
func (c *Checker) TokenInfo(ctx context.Context) (TokenInfo, error) {
	data, err := erc20ABI.Pack("symbol")
	if err != nil {
		return TokenInfo{}, swaperr.Wrap(swaperr.KindChain, "approval.TokenInfo", err)
	}
	out, err := c.client.CallContract(ctx, c.token, data)
	if err != nil {
		return TokenInfo{}, err
	}
	var symbol string
	if err := erc20ABI.UnpackIntoInterface(&symbol, "symbol", out); err != nil {
		return TokenInfo{}, swaperr.Wrap(swaperr.KindChain, "approval.TokenInfo", err)
	}

	data, err = erc20ABI.Pack("decimals")
	if err != nil {
		return TokenInfo{}, swaperr.Wrap(swaperr.KindChain, "approval.TokenInfo", err)
	}
	out, err = c.client.CallContract(ctx, c.token, data)
	if err != nil {
		return TokenInfo{}, err
	}
	var decimals uint8
	if err := erc20ABI.UnpackIntoInterface(&decimals, "decimals", out); err != nil {
		return TokenInfo{}, swaperr.Wrap(swaperr.KindChain, "approval.TokenInfo", err)
	}

	return TokenInfo{Symbol: symbol, Decimals: decimals}, nil
}

// ApprovalCallData builds approve(spender, amount) calldata for the user's
// wallet to sign. The amount is in token units.
func (c *Checker) ApprovalCallData(amount string) (common.Address, []byte, error) {
	wei, err := types.ToWei(amount)
	if err != nil {
		return common.Address{}, nil, swaperr.Wrap(swaperr.KindConfig, "approval.ApprovalCallData", err)
	}
	data, err := erc20ABI.Pack("approve", c.spender, wei)
	if err != nil {
		return common.Address{}, nil, swaperr.Wrap(swaperr.KindChain, "approval.ApprovalCallData", err)
	}
	return c.token, data, nil
}

func (c *Checker) readUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.KindChain, "approval.readUint", err)
	}
	out, err := c.client.CallContract(ctx, c.token, data)
	if err != nil {
		return nil, err
	}
	result := new(big.Int)
	if err := erc20ABI.UnpackIntoInterface(&result, method, out); err != nil {
		return nil, swaperr.Wrap(swaperr.KindChain, "approval.readUint", err)
	}
	return result, nil
}

func lessDecimal(a, b string) bool {
	ra, ok1 := new(big.Rat).SetString(a)
	rb, ok2 := new(big.Rat).SetString(b)
	if !ok1 || !ok2 {
		return false
	}
	return ra.Cmp(rb) < 0
}

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
