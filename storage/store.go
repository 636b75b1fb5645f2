package storage

import (
	"context"
	"time"

	"github.com/ArbMon-Fusion/dca-engine/internal/types"
)

// DueInvestment pairs an investment with its owning user address.
type DueInvestment struct {
	Address    string
	Investment types.Investment
}

// Store is the durable mapping from user address to investment and history
// state. Implementations follow read-modify-persist on the full user record;
// a call returning nil means the write reached the backend.
type Store interface {
	// Reload re-reads the backend, picking up writes from external processes.
	Reload(ctx context.Context) error

	GetUserRecord(ctx context.Context, address string) (types.UserRecord, error)
	UpsertUserRecord(ctx context.Context, address string, record types.UserRecord) error

	AddInvestment(ctx context.Context, address string, inv types.Investment) error
	UpdateInvestment(ctx context.Context, address, investmentID string, patch types.InvestmentPatch) error
	DeactivateInvestment(ctx context.Context, address, investmentID string) error
	RemoveInvestment(ctx context.Context, address, investmentID string) error

	AppendHistory(ctx context.Context, address string, item types.HistoryItem) error
	UpdateHistory(ctx context.Context, address, historyID string, patch types.HistoryPatch) error

	ListDueInvestments(ctx context.Context, now time.Time) ([]DueInvestment, error)
	ComputeUserStats(ctx context.Context, address string) (types.UserStats, error)

	Export(ctx context.Context) (*types.Snapshot, error)
	Import(ctx context.Context, snapshot *types.Snapshot) error

	Close() error
}

// Backend persists the full snapshot document. Load returns (nil, nil) when
// no document exists yet.
type Backend interface {
	Load(ctx context.Context) (*types.Snapshot, error)
	Save(ctx context.Context, snapshot *types.Snapshot) error
	Close() error
}
