package service

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ArbMon-Fusion/dca-engine/internal/chain"
	"github.com/ArbMon-Fusion/dca-engine/internal/order"
	"github.com/ArbMon-Fusion/dca-engine/internal/scheduler"
	"github.com/ArbMon-Fusion/dca-engine/internal/sigutil"
	"github.com/ArbMon-Fusion/dca-engine/internal/swap"
	"github.com/ArbMon-Fusion/dca-engine/internal/swaperr"
	"github.com/ArbMon-Fusion/dca-engine/internal/types"
	"github.com/ArbMon-Fusion/dca-engine/storage"
)

// SwapService is the write-side of the API: it creates investments with
// their pre-signed order bundle and runs one-shot interactive swaps.
type SwapService struct {
	store   storage.Store
	builder *order.Builder
	driver  scheduler.SwapDriver
	signer  chain.Signer
	logger  *logrus.Logger
}

func NewSwapService(
	store storage.Store,
	builder *order.Builder,
	driver scheduler.SwapDriver,
	signer chain.Signer,
	logger *logrus.Logger,
) *SwapService {
	return &SwapService{
		store:   store,
		builder: builder,
		driver:  driver,
		signer:  signer,
		logger:  logger,
	}
}

// CreateInvestment registers a recurring swap. When the caller supplies no
// pre-signed bundle, one is built and signed with the local resolver key so
// the scheduler can execute unattended. NextExecution is armed for the
// current pass, so the first swap runs on the next tick.
func (s *SwapService) CreateInvestment(
	ctx context.Context,
	address string,
	amount string,
	intervalMinutes int,
	dir types.Direction,
	signed *types.SignedOrder,
) (*types.Investment, error) {
	if !common.IsHexAddress(address) {
		return nil, swaperr.New(swaperr.KindConfig, "invalid user address: %q", address)
	}

	if signed == nil {
		built, err := s.builder.Build(s.signer.Address(), amount, dir)
		if err != nil {
			return nil, err
		}
		if err := s.builder.Sign(built, s.signer); err != nil {
			return nil, err
		}
		signed = built
	} else {
		if signed.Signature == "" || signed.OrderHash == "" {
			return nil, swaperr.New(swaperr.KindConfig, "supplied order bundle is not signed")
		}
		err := sigutil.VerifySigner(
			common.HexToHash(signed.OrderHash), signed.Signature, common.HexToAddress(signed.Maker))
		if err != nil {
			return nil, swaperr.Wrap(swaperr.KindConfig, "service.CreateInvestment", err)
		}
	}

	now := time.Now()
	inv := types.Investment{
		ID:              uuid.NewString(),
		Amount:          amount,
		IntervalMinutes: intervalMinutes,
		NextExecution:   now.UnixMilli(),
		IsActive:        true,
		CreatedAt:       now.UnixMilli(),
		TotalInvested:   "0",
		TotalReceived:   "0",
		SignedOrder:     signed,
	}
	if err := s.store.AddInvestment(ctx, address, inv); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"user":       address,
		"investment": inv.ID,
		"amount":     amount,
		"interval_m": intervalMinutes,
		"direction":  dir,
	}).Info("investment created")
	return &inv, nil
}

// ExecuteSwapNow runs a complete interactive swap outside the scheduler:
// order construction, local signing, then the escrow and withdrawal phases.
// The attempt is recorded in the user's history either way.
func (s *SwapService) ExecuteSwapNow(
	ctx context.Context,
	address string,
	amount string,
	dir types.Direction,
) (*swap.Result, *types.SignedOrder, error) {
	if !common.IsHexAddress(address) {
		return nil, nil, swaperr.New(swaperr.KindConfig, "invalid user address: %q", address)
	}

	signed, err := s.builder.Build(s.signer.Address(), amount, dir)
	if err != nil {
		return nil, nil, err
	}
	if err := s.builder.Sign(signed, s.signer); err != nil {
		return nil, nil, err
	}

	item := types.HistoryItem{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UnixMilli(),
		SourceAmount: amount,
		DestAmount:   "0",
		Status:       types.StatusPending,
	}
	if err := s.store.AppendHistory(ctx, address, item); err != nil {
		return nil, nil, err
	}

	res, execErr := s.driver.Execute(ctx, signed)
	if execErr != nil {
		status := types.StatusFailed
		msg := execErr.Error()
		patch := types.HistoryPatch{Status: &status, Error: &msg}
		if res != nil {
			patch.SrcEscrowTx = &res.SrcEscrowTx
			patch.DstEscrowTx = &res.DstEscrowTx
			patch.WithdrawTx = &res.DstWithdrawTx
			patch.WithdrawnSides = res.WithdrawnSides
		}
		if err := s.store.UpdateHistory(ctx, address, item.ID, patch); err != nil {
			s.logger.WithError(err).Error("failed to finalize history record")
		}
		return res, signed, execErr
	}

	destAmount := "0"
	if taking, ok := takingUnits(signed); ok {
		destAmount = taking
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
	if err := s.store.UpdateHistory(ctx, address, item.ID, patch); err != nil {
		s.logger.WithError(err).Error("failed to finalize history record")
	}

	s.logger.WithFields(logrus.Fields{
		"user":        address,
		"order_hash":  signed.OrderHash,
		"withdraw_tx": res.SrcWithdrawTx,
	}).Info("one-shot swap complete")
	return res, signed, nil
}

func takingUnits(o *types.SignedOrder) (string, bool) {
	wei, ok := new(big.Int).SetString(o.TakingAmount, 10)
	if !ok {
		return "", false
	}
	return types.FromWei(wei), true
}
