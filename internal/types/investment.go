package types

import "time"

const SnapshotVersion = "1.0.0"

// Direction selects which chain holds the user's input token.
type Direction string

const (
	DirectionSrcToDst Direction = "WETH_TO_WMON"
	DirectionDstToSrc Direction = "WMON_TO_WETH"
)

type HistoryStatus string

const (
	StatusPending HistoryStatus = "pending"
	StatusSuccess HistoryStatus = "success"
	StatusFailed  HistoryStatus = "failed"
)

// WithdrawSide names one half of the final withdrawal step.
type WithdrawSide string

const (
	WithdrawSideDst WithdrawSide = "dst"
	WithdrawSideSrc WithdrawSide = "src"
)

// TimeLocks holds the protocol-mandated withdrawal/cancellation window
// offsets, in seconds relative to escrow deployment.
type TimeLocks struct {
	SrcWithdrawal       uint32 `json:"src_withdrawal"`
	SrcPublicWithdrawal uint32 `json:"src_public_withdrawal"`
	SrcCancellation     uint32 `json:"src_cancellation"`
	SrcPublicCancel     uint32 `json:"src_public_cancellation"`
	DstWithdrawal       uint32 `json:"dst_withdrawal"`
	DstPublicWithdrawal uint32 `json:"dst_public_withdrawal"`
	DstCancellation     uint32 `json:"dst_cancellation"`
}

// SignedOrder is the pre-authorized cross-chain order bundle produced once at
// investment-creation time and reused verbatim for every execution. Every
// field the swap driver reads is explicit here; there is no opaque payload.
type SignedOrder struct {
	Maker            string    `json:"maker"`
	MakerAsset       string    `json:"maker_asset"`
	TakerAsset       string    `json:"taker_asset"`
	MakingAmount     string    `json:"making_amount"` // wei, decimal string
	TakingAmount     string    `json:"taking_amount"` // wei, decimal string
	Salt             string    `json:"salt"`
	Nonce            string    `json:"nonce"`
	HashLock         string    `json:"hash_lock"` // keccak256(secret), hex
	TimeLocks        TimeLocks `json:"time_locks"`
	SrcChainID       int64     `json:"src_chain_id"`
	DstChainID       int64     `json:"dst_chain_id"`
	SrcSafetyDeposit string    `json:"src_safety_deposit"` // wei
	DstSafetyDeposit string    `json:"dst_safety_deposit"` // wei
	AuctionDuration  int64     `json:"auction_duration"`   // seconds
	AuctionStartTime int64     `json:"auction_start_time"` // unix seconds
	ResolverAddress  string    `json:"resolver_address"`   // whitelisted filler
	ExtensionData    string    `json:"extension_data"`     // hex, passed through to deploySrc
	Direction        Direction `json:"direction"`

	Signature string `json:"signature"`  // EIP-712, hex
	Secret    string `json:"secret"`     // hash-lock preimage, hex
	OrderHash string `json:"order_hash"` // hex
	ChainID   int64  `json:"chain_id"`   // chain the order was signed for
}

// Investment is a recurring-swap intent. Totals and SwapCount only move on
// successful executions; NextExecution moves on every attempt.
type Investment struct {
	ID              string       `json:"id"`
	Amount          string       `json:"amount"` // source-token units per execution
	IntervalMinutes int          `json:"interval_minutes"`
	NextExecution   int64        `json:"next_execution"` // unix ms
	IsActive        bool         `json:"is_active"`
	CreatedAt       int64        `json:"created_at"` // unix ms
	TotalInvested   string       `json:"total_invested"`
	TotalReceived   string       `json:"total_received"`
	SwapCount       int          `json:"swap_count"`
	SignedOrder     *SignedOrder `json:"signed_order,omitempty"`
}

// DueAt reports whether the investment should execute at the given time.
func (i *Investment) DueAt(now time.Time) bool {
	return i.IsActive && i.NextExecution <= now.UnixMilli()
}

// HistoryItem is the append-only audit record of one execution attempt.
// It is written once as pending and updated in place exactly once.
type HistoryItem struct {
	ID             string         `json:"id"`
	Timestamp      int64          `json:"timestamp"` // unix ms
	SourceAmount   string         `json:"source_amount"`
	DestAmount     string         `json:"dest_amount"` // "0" until success
	Status         HistoryStatus  `json:"status"`
	SrcEscrowTx    string         `json:"src_escrow_tx,omitempty"`
	DstEscrowTx    string         `json:"dst_escrow_tx,omitempty"`
	WithdrawTx     string         `json:"withdraw_tx,omitempty"`
	WithdrawnSides []WithdrawSide `json:"withdrawn_sides,omitempty"`
	Error          string         `json:"error,omitempty"`
}

// UserRecord is the per-user aggregate owned exclusively by the store.
type UserRecord struct {
	Investments   []Investment  `json:"investments"`
	History       []HistoryItem `json:"history"` // newest first, capped
	TotalInvested string        `json:"total_invested"`
	TotalReceived string        `json:"total_received"`
	LastUpdated   int64         `json:"last_updated"` // unix ms
}

// Snapshot is the full serialized store document.
type Snapshot struct {
	Users      map[string]UserRecord `json:"users"`
	LastBackup int64                 `json:"last_backup"` // unix ms
	Version    string                `json:"version"`
}

// InvestmentPatch is a typed partial update applied by the scheduler after
// an execution attempt. Nil fields are left untouched.
type InvestmentPatch struct {
	NextExecution *int64
	IsActive      *bool
	TotalInvested *string
	TotalReceived *string
	SwapCount     *int
}

// HistoryPatch merges into an existing history item by id.
type HistoryPatch struct {
	Status         *HistoryStatus
	DestAmount     *string
	SrcEscrowTx    *string
	DstEscrowTx    *string
	WithdrawTx     *string
	WithdrawnSides []WithdrawSide
	Error          *string
}

type UserStats struct {
	TotalInvestments  int    `json:"total_investments"`
	ActiveInvestments int    `json:"active_investments"`
	TotalSwaps        int    `json:"total_swaps"`
	SuccessfulSwaps   int    `json:"successful_swaps"`
	FailedSwaps       int    `json:"failed_swaps"`
	PendingSwaps      int    `json:"pending_swaps"`
	TotalInvested     string `json:"total_invested"`
	TotalReceived     string `json:"total_received"`
	AverageReturn     string `json:"average_return"`
}
