// Package signal derives buy and sell decisions from a prepared snapshot table.
package signal

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"oi-trader/internal/config"
	"oi-trader/internal/models"
	"oi-trader/internal/snapshot"
)

// noEntry marks "no entry recorded yet" for the per-side cooldown trackers.
const noEntry = -9999

// PositionContext describes the open position the engine evaluates exits for.
type PositionContext struct {
	Kind          models.PositionKind
	Expiry        string
	Strike        float64
	EntryPrice    float64
	EntrySequence int
	Quantity      int
}

// Side returns the option side of the position.
func (p *PositionContext) Side() models.OptionSide {
	if p.Kind == models.SignalBuyPut {
		return models.SidePut
	}
	return models.SideCall
}

// entry is one recorded entry signal for a sequence.
type entry struct {
	expiry string
	strike float64
	row    *models.SnapshotRow
}

// Engine evaluates the snapshot table against the strategy thresholds.
// It is a pure function of its inputs; all mutable trading state lives in
// the ledger.
type Engine struct {
	cfg    config.StrategyConfig
	logger zerolog.Logger
}

// New creates a signal engine with the given thresholds.
func New(cfg config.StrategyConfig, logger zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger}
}

// Evaluate decides the action for the latest sequence in the table. When pos
// is non-nil only exit conditions are considered; otherwise entry conditions
// are scanned, gated by the ledger's last buy sequence.
func (e *Engine) Evaluate(t *snapshot.Table, pos *PositionContext, lastBuySequence int) models.Signal {
	if t.Len() < 3 {
		return models.Signal{Kind: models.SignalNone, Reason: "less than 3 snapshot sequences"}
	}

	if pos != nil {
		return e.evaluateExit(t, pos)
	}
	return e.evaluateEntry(t, lastBuySequence)
}

// evaluateEntry scans every consecutive sequence triple and reports an entry
// only when the triggering sequence is the latest one in the table.
func (e *Engine) evaluateEntry(t *snapshot.Table, lastBuySequence int) models.Signal {
	latest, _ := t.Latest()

	// Global cooldown: the ledger's last buy gates any entry regardless of
	// side, on top of the per-side trackers inside the scan.
	if latest-lastBuySequence <= e.cfg.Cooldown {
		return models.Signal{
			Kind:   models.SignalNone,
			Reason: fmt.Sprintf("cooldown active: %d of %d sequences since last buy", latest-lastBuySequence, e.cfg.Cooldown),
		}
	}

	callSignals, putSignals := e.scanEntries(t)

	if sig, ok := callSignals[latest]; ok {
		return models.Signal{
			Kind:       models.SignalBuyCall,
			Sequence:   latest,
			SnapshotID: sig.row.SnapshotID,
			Expiry:     sig.expiry,
			Strike:     sig.strike,
			LTP:        sig.row.CallLTP,
		}
	}
	if sig, ok := putSignals[latest]; ok {
		return models.Signal{
			Kind:       models.SignalBuyPut,
			Sequence:   latest,
			SnapshotID: sig.row.SnapshotID,
			Expiry:     sig.expiry,
			Strike:     sig.strike,
			LTP:        sig.row.PutLTP,
		}
	}
	return models.Signal{Kind: models.SignalNone, Reason: "no call/put trigger on latest snapshot"}
}

// scanEntries walks all (t0, t1, t2) triples of consecutive sequences and
// records at most one call and one put entry per t2. Candidates are every
// strike observed at t0 for every expiry present at t0; among candidates
// that qualify at the same t2 the strike closest to the spot wins, lower
// strike on equal distance.
func (e *Engine) scanEntries(t *snapshot.Table) (map[int]entry, map[int]entry) {
	callSignals := make(map[int]entry)
	putSignals := make(map[int]entry)
	seqs := t.Sequences()
	lastCallEntry := noEntry
	lastPutEntry := noEntry

	for idx := 0; idx+2 < len(seqs); idx++ {
		t0, t1, t2 := seqs[idx], seqs[idx+1], seqs[idx+2]

		u0, ok0 := t.Underlying(t0)
		u2, ok2 := t.Underlying(t2)
		if !ok0 || !ok2 {
			continue
		}
		underlyingRising := u2 > u0
		underlyingFalling := u2 < u0
		spot := u2

		var bestCall, bestPut *entry
		for _, exp := range t.Expiries(t0) {
			for _, strike := range t.Strikes(t0, exp) {
				r0, ok := t.Row(t0, exp, strike)
				if !ok {
					continue
				}
				r1, ok := t.Row(t1, exp, strike)
				if !ok {
					continue
				}
				r2, ok := t.Row(t2, exp, strike)
				if !ok {
					continue
				}

				if underlyingRising && t2-lastCallEntry > e.cfg.Cooldown &&
					e.sideQualifies(r0, r1, r2, models.SideCall) {
					cand := entry{expiry: exp, strike: strike, row: r2}
					if bestCall == nil || closerToSpot(strike, bestCall.strike, spot) {
						bestCall = &cand
					}
				}

				if underlyingFalling && t2-lastPutEntry > e.cfg.Cooldown &&
					e.sideQualifies(r0, r1, r2, models.SidePut) {
					cand := entry{expiry: exp, strike: strike, row: r2}
					if bestPut == nil || closerToSpot(strike, bestPut.strike, spot) {
						bestPut = &cand
					}
				}
			}
		}

		if bestCall != nil {
			callSignals[t2] = *bestCall
			lastCallEntry = t2
		}
		if bestPut != nil {
			putSignals[t2] = *bestPut
			lastPutEntry = t2
		}
	}
	return callSignals, putSignals
}

// sideQualifies checks price momentum, open-interest confirmation and the
// liquidity floor for one side across a sequence triple.
func (e *Engine) sideQualifies(r0, r1, r2 *models.SnapshotRow, side models.OptionSide) bool {
	p0, p1, p2 := r0.LTP(side), r1.LTP(side), r2.LTP(side)
	oi1, oi2 := r1.OI(side), r2.OI(side)

	if p0 <= e.cfg.MinLTP {
		return false
	}
	if !(p2 > p1 && p1 > p0) {
		return false
	}
	if p2 < p0*e.cfg.MomentumThreshold {
		return false
	}
	// A zero or negative OI base cannot confirm growth.
	if oi1 <= 0 {
		return false
	}
	return oi2 >= oi1*e.cfg.OIGrowthThreshold
}

// closerToSpot reports whether candidate beats current as the entry strike
// for the given spot; equal distance resolves to the lower strike.
func closerToSpot(candidate, current, spot float64) bool {
	dc := math.Abs(candidate - spot)
	dr := math.Abs(current - spot)
	if dc != dr {
		return dc < dr
	}
	return candidate < current
}

// evaluateExit decides whether the open position should be closed at the
// latest sequence. Stop loss overrides the minimum hold; the trend-reversal
// exit compares against the sequence immediately preceding the latest one in
// the table, which may not be latest-1 after re-bucketing.
func (e *Engine) evaluateExit(t *snapshot.Table, pos *PositionContext) models.Signal {
	latest, _ := t.Latest()
	side := pos.Side()
	sellKind := models.SignalSellCall
	if side == models.SidePut {
		sellKind = models.SignalSellPut
	}

	row, ok := t.Row(latest, pos.Expiry, pos.Strike)
	if !ok {
		return models.Signal{
			Kind:   models.SignalNone,
			Reason: fmt.Sprintf("position %s %.0f not found in latest snapshot", pos.Expiry, pos.Strike),
		}
	}
	ltp := row.LTP(side)

	if ltp <= pos.EntryPrice*(1-e.cfg.StopLossPct) {
		return models.Signal{
			Kind:       sellKind,
			Sequence:   latest,
			SnapshotID: row.SnapshotID,
			Expiry:     pos.Expiry,
			Strike:     pos.Strike,
			LTP:        ltp,
			Reason:     fmt.Sprintf("stop loss: ltp %.2f <= %.2f", ltp, pos.EntryPrice*(1-e.cfg.StopLossPct)),
		}
	}

	held := latest - pos.EntrySequence
	if held < e.cfg.MinHoldSequences {
		return models.Signal{
			Kind:   models.SignalNone,
			Reason: fmt.Sprintf("minimum hold not reached: %d of %d sequences", held, e.cfg.MinHoldSequences),
		}
	}

	if prev, ok := t.Prev(latest); ok {
		if prevRow, ok := t.Row(prev, pos.Expiry, pos.Strike); ok {
			if ltp < prevRow.LTP(side) && row.OI(side) < prevRow.OI(side) {
				return models.Signal{
					Kind:       sellKind,
					Sequence:   latest,
					SnapshotID: row.SnapshotID,
					Expiry:     pos.Expiry,
					Strike:     pos.Strike,
					LTP:        ltp,
					Reason:     "price and OI falling",
				}
			}
		}
	}

	unrealized := (ltp - pos.EntryPrice) * float64(pos.Quantity)
	return models.Signal{
		Kind:   models.SignalNone,
		Reason: fmt.Sprintf("holding: unrealized P&L %.2f after %d sequences", unrealized, held),
	}
}
