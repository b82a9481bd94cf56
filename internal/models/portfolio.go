package models

import "time"

// Position is one contract bought by the paper portfolio. At most one may be
// open at any time. A position is created by a BUY, mutated exactly once by
// the matching SELL, and never deleted.
type Position struct {
	Kind          PositionKind   `json:"type"`
	Expiry        string         `json:"expiry"`
	Strike        float64        `json:"strike"`
	EntryPrice    float64        `json:"entry_price"`
	EntryCost     float64        `json:"entry_cost"`
	Quantity      int            `json:"quantity"`
	SnapshotID    int64          `json:"snapshot_id"`
	EntrySequence int            `json:"snapshot_seq"`
	EntryTime     time.Time      `json:"entry_time"`
	Status        PositionStatus `json:"status"`

	// Exit fields, filled on close.
	ExitPrice      float64   `json:"exit_price,omitempty"`
	ExitProceeds   float64   `json:"exit_proceeds,omitempty"`
	PnL            float64   `json:"pnl,omitempty"`
	PnLPct         float64   `json:"pnl_pct,omitempty"`
	ExitTime       time.Time `json:"exit_time,omitempty"`
	ExitSnapshotID int64     `json:"exit_snapshot_id,omitempty"`
	ExitSequence   int       `json:"exit_snapshot_seq,omitempty"`
}

// TradeRecord is one entry in the append-only trade history, written once per
// BUY or SELL action with before/after cash balances for audit.
type TradeRecord struct {
	Action        string     `json:"action"`
	SignalType    SignalKind `json:"signal_type"`
	Expiry        string     `json:"expiry"`
	Strike        float64    `json:"strike"`
	LTP           float64    `json:"ltp,omitempty"`
	Cost          float64    `json:"cost,omitempty"`
	EntryPrice    float64    `json:"entry_price,omitempty"`
	ExitPrice     float64    `json:"exit_price,omitempty"`
	Proceeds      float64    `json:"proceeds,omitempty"`
	PnL           float64    `json:"pnl,omitempty"`
	PnLPct        float64    `json:"pnl_pct,omitempty"`
	BalanceBefore float64    `json:"balance_before"`
	BalanceAfter  float64    `json:"balance_after"`
	SnapshotID    int64      `json:"snapshot_id"`
	Sequence      int        `json:"snapshot_seq"`
	Timestamp     time.Time  `json:"timestamp"`
}

// Portfolio is the durable record of cash, positions and trade history.
// It is the persisted form of the ledger; the persistence gateway
// serializes it verbatim and holds no decision logic.
type Portfolio struct {
	Cash            float64       `json:"balance"`
	InitialBalance  float64       `json:"initial_balance"`
	Positions       []Position    `json:"positions"`
	TradeHistory    []TradeRecord `json:"trade_history"`
	LastBuySequence int           `json:"last_buy_snapshot_seq"`
	CreatedAt       time.Time     `json:"created_at"`
	LastUpdated     time.Time     `json:"last_updated"`
}

// OpenPosition returns the currently open position, or nil.
func (p *Portfolio) OpenPosition() *Position {
	for i := range p.Positions {
		if p.Positions[i].Status == PositionOpen {
			return &p.Positions[i]
		}
	}
	return nil
}

// HasOpenPosition reports whether a position is currently open.
func (p *Portfolio) HasOpenPosition() bool {
	return p.OpenPosition() != nil
}

// ClosedPositions returns all closed positions in entry order.
func (p *Portfolio) ClosedPositions() []Position {
	var closed []Position
	for _, pos := range p.Positions {
		if pos.Status == PositionClosed {
			closed = append(closed, pos)
		}
	}
	return closed
}
