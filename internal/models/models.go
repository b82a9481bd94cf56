// Package models provides domain models for the option-chain trading application.
package models

import "time"

// SignalKind represents the action recommended by the signal engine.
type SignalKind string

const (
	SignalBuyCall  SignalKind = "BUY_CALL"
	SignalBuyPut   SignalKind = "BUY_PUT"
	SignalSellCall SignalKind = "SELL_CALL"
	SignalSellPut  SignalKind = "SELL_PUT"
	SignalNone     SignalKind = "NO_SIGNAL"
)

// OptionSide represents the side of an option contract.
type OptionSide string

const (
	SideCall OptionSide = "CALL"
	SidePut  OptionSide = "PUT"
)

// PositionKind represents the kind of an open position. It carries the
// same values as the entry signal that created it.
type PositionKind = SignalKind

// PositionStatus represents the lifecycle state of a position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// SnapshotRow is one strike/expiry observation within one option-chain snapshot.
// Timestamp is the authoritative ordering key; SnapshotID is retained for
// traceability only and is not assumed monotonic in wall-clock order.
type SnapshotRow struct {
	SnapshotID      int64
	Expiry          string
	Strike          float64
	UnderlyingValue float64
	CallOI          float64
	CallChgOI       float64
	CallLTP         float64
	CallVolume      float64
	PutOI           float64
	PutChgOI        float64
	PutLTP          float64
	PutVolume       float64
	Timestamp       time.Time
}

// OI returns the open interest for the given side.
func (r *SnapshotRow) OI(side OptionSide) float64 {
	if side == SidePut {
		return r.PutOI
	}
	return r.CallOI
}

// LTP returns the last traded price for the given side.
func (r *SnapshotRow) LTP(side OptionSide) float64 {
	if side == SidePut {
		return r.PutLTP
	}
	return r.CallLTP
}

// Signal is the result of one signal engine evaluation.
type Signal struct {
	Kind       SignalKind `json:"signal"`
	Sequence   int        `json:"snapshot_seq,omitempty"`
	SnapshotID int64      `json:"snapshot_id,omitempty"`
	Expiry     string     `json:"expiry,omitempty"`
	Strike     float64    `json:"strike,omitempty"`
	LTP        float64    `json:"ltp,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}
