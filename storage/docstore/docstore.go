package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ArbMon-Fusion/dca-engine/internal/swaperr"
	"github.com/ArbMon-Fusion/dca-engine/internal/types"
	"github.com/ArbMon-Fusion/dca-engine/storage"
)

// historyLimit bounds the per-user history window; the oldest entry is
// evicted on the insert that would exceed it.
const historyLimit = 100

// DocStore keeps the full snapshot in memory behind a mutex and writes it
// through to the backend on every mutation. Single-writer discipline: the
// scheduler and API share one DocStore per process.
type DocStore struct {
	mu      sync.Mutex
	data    *types.Snapshot
	backend storage.Backend
	logger  *logrus.Logger
	now     func() time.Time
}

func New(ctx context.Context, backend storage.Backend, logger *logrus.Logger) (*DocStore, error) {
	s := &DocStore{
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func defaultSnapshot(now time.Time) *types.Snapshot {
	return &types.Snapshot{
		Users:      make(map[string]types.UserRecord),
		LastBackup: now.UnixMilli(),
		Version:    types.SnapshotVersion,
	}
}

func (s *DocStore) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.backend.Load(ctx)
	if err != nil {
		return swaperr.Wrap(swaperr.KindStore, "docstore.Reload", err)
	}
	if snap == nil {
		snap = defaultSnapshot(s.now())
	}
	if snap.Users == nil {
		snap.Users = make(map[string]types.UserRecord)
	}
	s.data = snap
	s.logger.WithFields(logrus.Fields{
		"users":   len(snap.Users),
		"version": snap.Version,
	}).Debug("snapshot loaded")
	return nil
}

func (s *DocStore) persist(ctx context.Context) error {
	s.data.LastBackup = s.now().UnixMilli()
	if err := s.backend.Save(ctx, s.data); err != nil {
		return swaperr.Wrap(swaperr.KindStore, "docstore.persist", err)
	}
	return nil
}

func defaultRecord(now time.Time) types.UserRecord {
	return types.UserRecord{
		Investments:   []types.Investment{},
		History:       []types.HistoryItem{},
		TotalInvested: "0",
		TotalReceived: "0",
		LastUpdated:   now.UnixMilli(),
	}
}

// GetUserRecord returns the user's record, creating and persisting a default
// empty one on first access. A second call for the same address returns the
// stored record unchanged.
func (s *DocStore) GetUserRecord(ctx context.Context, address string) (types.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data.Users[address]
	if !ok {
		rec = defaultRecord(s.now())
		s.data.Users[address] = rec
		if err := s.persist(ctx); err != nil {
			return types.UserRecord{}, err
		}
	}
	return copyRecord(rec), nil
}

func (s *DocStore) UpsertUserRecord(ctx context.Context, address string, record types.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.LastUpdated = s.now().UnixMilli()
	s.data.Users[address] = copyRecord(record)
	return s.persist(ctx)
}

func (s *DocStore) AddInvestment(ctx context.Context, address string, inv types.Investment) error {
	if !types.IsPositiveDecimal(inv.Amount) {
		return swaperr.New(swaperr.KindConfig, "investment amount must be positive, got %q", inv.Amount)
	}
	if inv.IntervalMinutes <= 0 {
		return swaperr.New(swaperr.KindConfig, "investment interval must be positive, got %d", inv.IntervalMinutes)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(address)
	rec.Investments = append(rec.Investments, inv)
	return s.put(ctx, address, rec)
}

func (s *DocStore) UpdateInvestment(ctx context.Context, address, investmentID string, patch types.InvestmentPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(address)
	idx := findInvestment(rec.Investments, investmentID)
	if idx < 0 {
		return swaperr.New(swaperr.KindNotFound, "investment %s not found for %s", investmentID, address)
	}

	inv := &rec.Investments[idx]
	if patch.NextExecution != nil {
		inv.NextExecution = *patch.NextExecution
	}
	if patch.IsActive != nil {
		inv.IsActive = *patch.IsActive
	}
	if patch.TotalInvested != nil {
		inv.TotalInvested = *patch.TotalInvested
	}
	if patch.TotalReceived != nil {
		inv.TotalReceived = *patch.TotalReceived
	}
	if patch.SwapCount != nil {
		inv.SwapCount = *patch.SwapCount
	}
	return s.put(ctx, address, rec)
}

// DeactivateInvestment excludes the investment from due-polling but keeps it
// for history and audit.
func (s *DocStore) DeactivateInvestment(ctx context.Context, address, investmentID string) error {
	active := false
	return s.UpdateInvestment(ctx, address, investmentID, types.InvestmentPatch{IsActive: &active})
}

func (s *DocStore) RemoveInvestment(ctx context.Context, address, investmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(address)
	idx := findInvestment(rec.Investments, investmentID)
	if idx < 0 {
		return swaperr.New(swaperr.KindNotFound, "investment %s not found for %s", investmentID, address)
	}
	rec.Investments = append(rec.Investments[:idx], rec.Investments[idx+1:]...)
	return s.put(ctx, address, rec)
}

// AppendHistory inserts at the head, truncates to the retained window and,
// for successful items only, folds the amounts into the user's lifetime
// totals. The three steps are atomic with respect to one call.
func (s *DocStore) AppendHistory(ctx context.Context, address string, item types.HistoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(address)
	rec.History = append([]types.HistoryItem{item}, rec.History...)
	if len(rec.History) > historyLimit {
		rec.History = rec.History[:historyLimit]
	}

	if item.Status == types.StatusSuccess {
		invested, err := types.AddDecimal(rec.TotalInvested, item.SourceAmount)
		if err != nil {
			return swaperr.Wrap(swaperr.KindStore, "docstore.AppendHistory", err)
		}
		received, err := types.AddDecimal(rec.TotalReceived, item.DestAmount)
		if err != nil {
			return swaperr.Wrap(swaperr.KindStore, "docstore.AppendHistory", err)
		}
		rec.TotalInvested = invested
		rec.TotalReceived = received
	}
	return s.put(ctx, address, rec)
}

func (s *DocStore) UpdateHistory(ctx context.Context, address, historyID string, patch types.HistoryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(address)
	idx := -1
	for i := range rec.History {
		if rec.History[i].ID == historyID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return swaperr.New(swaperr.KindNotFound, "history item %s not found for %s", historyID, address)
	}

	h := &rec.History[idx]
	wasSuccess := h.Status == types.StatusSuccess
	if patch.Status != nil {
		h.Status = *patch.Status
	}
	if patch.DestAmount != nil {
		h.DestAmount = *patch.DestAmount
	}
	if patch.SrcEscrowTx != nil {
		h.SrcEscrowTx = *patch.SrcEscrowTx
	}
	if patch.DstEscrowTx != nil {
		h.DstEscrowTx = *patch.DstEscrowTx
	}
	if patch.WithdrawTx != nil {
		h.WithdrawTx = *patch.WithdrawTx
	}
	if patch.WithdrawnSides != nil {
		h.WithdrawnSides = patch.WithdrawnSides
	}
	if patch.Error != nil {
		h.Error = *patch.Error
	}

	// A pending item resolving to success carries its amounts into the
	// lifetime totals here, since AppendHistory saw it before completion.
	if !wasSuccess && h.Status == types.StatusSuccess {
		invested, err := types.AddDecimal(rec.TotalInvested, h.SourceAmount)
		if err != nil {
			return swaperr.Wrap(swaperr.KindStore, "docstore.UpdateHistory", err)
		}
		received, err := types.AddDecimal(rec.TotalReceived, h.DestAmount)
		if err != nil {
			return swaperr.Wrap(swaperr.KindStore, "docstore.UpdateHistory", err)
		}
		rec.TotalInvested = invested
		rec.TotalReceived = received
	}
	return s.put(ctx, address, rec)
}

// ListDueInvestments scans every user's active investments and returns those
// whose next-execution time has elapsed. Addresses are visited in sorted
// order and investments in insertion order, so callers get a stable
// execution sequence.
func (s *DocStore) ListDueInvestments(ctx context.Context, now time.Time) ([]storage.DueInvestment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addresses := make([]string, 0, len(s.data.Users))
	for addr := range s.data.Users {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)

	var due []storage.DueInvestment
	for _, addr := range addresses {
		rec := s.data.Users[addr]
		for i := range rec.Investments {
			inv := rec.Investments[i]
			if inv.DueAt(now) {
				due = append(due, storage.DueInvestment{Address: addr, Investment: *copyInvestment(&inv)})
			}
		}
	}
	return due, nil
}

func (s *DocStore) ComputeUserStats(ctx context.Context, address string) (types.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.data.Users[address]
	if !ok {
		rec = defaultRecord(s.now())
	}

	stats := types.UserStats{
		TotalInvestments: len(rec.Investments),
		TotalSwaps:       len(rec.History),
		TotalInvested:    rec.TotalInvested,
		TotalReceived:    rec.TotalReceived,
		AverageReturn:    "0%",
	}
	for _, inv := range rec.Investments {
		if inv.IsActive {
			stats.ActiveInvestments++
		}
	}
	for _, h := range rec.History {
		switch h.Status {
		case types.StatusSuccess:
			stats.SuccessfulSwaps++
		case types.StatusFailed:
			stats.FailedSwaps++
		case types.StatusPending:
			stats.PendingSwaps++
		}
	}

	if types.IsPositiveDecimal(rec.TotalInvested) {
		ratio, err := types.DivDecimal(rec.TotalReceived, rec.TotalInvested)
		if err != nil {
			return types.UserStats{}, swaperr.Wrap(swaperr.KindStore, "docstore.ComputeUserStats", err)
		}
		pct, err := types.MulDecimal(ratio, "100")
		if err != nil {
			return types.UserStats{}, swaperr.Wrap(swaperr.KindStore, "docstore.ComputeUserStats", err)
		}
		stats.AverageReturn = pct + "%"
	}
	return stats, nil
}

func (s *DocStore) Export(ctx context.Context) (*types.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copySnapshot(s.data), nil
}

func (s *DocStore) Import(ctx context.Context, snapshot *types.Snapshot) error {
	if snapshot == nil {
		return swaperr.New(swaperr.KindStore, "nil snapshot")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := copySnapshot(snapshot)
	if snap.Users == nil {
		snap.Users = make(map[string]types.UserRecord)
	}
	if snap.Version == "" {
		snap.Version = types.SnapshotVersion
	}
	s.data = snap
	return s.persist(ctx)
}

func (s *DocStore) Close() error {
	return s.backend.Close()
}

// record returns a mutable copy; callers under s.mu write it back via put.
func (s *DocStore) record(address string) types.UserRecord {
	rec, ok := s.data.Users[address]
	if !ok {
		rec = defaultRecord(s.now())
	}
	return copyRecord(rec)
}

func (s *DocStore) put(ctx context.Context, address string, rec types.UserRecord) error {
	rec.LastUpdated = s.now().UnixMilli()
	s.data.Users[address] = rec
	return s.persist(ctx)
}

func findInvestment(investments []types.Investment, id string) int {
	for i := range investments {
		if investments[i].ID == id {
			return i
		}
	}
	return -1
}

func copyInvestment(inv *types.Investment) *types.Investment {
	out := *inv
	if inv.SignedOrder != nil {
		signed := *inv.SignedOrder
		out.SignedOrder = &signed
	}
	return &out
}

func copyRecord(rec types.UserRecord) types.UserRecord {
	out := rec
	out.Investments = make([]types.Investment, len(rec.Investments))
	for i := range rec.Investments {
		out.Investments[i] = *copyInvestment(&rec.Investments[i])
	}
	out.History = make([]types.HistoryItem, len(rec.History))
	copy(out.History, rec.History)
	for i := range rec.History {
		if rec.History[i].WithdrawnSides != nil {
			sides := make([]types.WithdrawSide, len(rec.History[i].WithdrawnSides))
			copy(sides, rec.History[i].WithdrawnSides)
			out.History[i].WithdrawnSides = sides
		}
	}
	return out
}

func copySnapshot(snap *types.Snapshot) *types.Snapshot {
	out := &types.Snapshot{
		Users:      make(map[string]types.UserRecord, len(snap.Users)),
		LastBackup: snap.LastBackup,
		Version:    snap.Version,
	}
	for addr, rec := range snap.Users {
		out.Users[addr] = copyRecord(rec)
	}
	return out
}

var _ storage.Store = (*DocStore)(nil)
