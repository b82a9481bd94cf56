// Package ledger implements the single-position paper-trading state machine.
package ledger

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"oi-trader/internal/errors"
	"oi-trader/internal/logging"
	"oi-trader/internal/models"
)

// Store is the persistence gateway the ledger writes through. It holds no
// decision logic; it only serializes the portfolio.
type Store interface {
	Load() (*models.Portfolio, error)
	Save(p *models.Portfolio) error
}

// Ledger owns the portfolio state: cash, the append-only position list and
// trade history, and the last-buy cooldown marker. At most one position is
// open at any time, and cash never goes negative. All mutation happens in
// Buy and Sell; Summary is a pure read.
type Ledger struct {
	state   *models.Portfolio
	store   Store
	lotSize int
	logger  zerolog.Logger
}

// Summary is a point-in-time read of the portfolio.
type Summary struct {
	Cash             float64          `json:"cash"`
	PositionValue    float64          `json:"position_value"`
	TotalValue       float64          `json:"total_value"`
	InitialBalance   float64          `json:"initial_balance"`
	RealizedPnL      float64          `json:"total_pnl"`
	UnrealizedPnL    float64          `json:"unrealized_pnl"`
	UnrealizedPnLPct float64          `json:"unrealized_pnl_pct"`
	TotalTrades      int              `json:"total_trades"`
	OpenPosition     *models.Position `json:"open_position,omitempty"`
	ClosedPositions  int              `json:"closed_positions_count"`
}

// Open loads the portfolio through the store and wraps it in a ledger.
func Open(store Store, lotSize int, logger zerolog.Logger) (*Ledger, error) {
	state, err := store.Load()
	if err != nil {
		return nil, errors.Wrap(err, "loading portfolio")
	}
	return &Ledger{
		state:   state,
		store:   store,
		lotSize: lotSize,
		logger:  logger,
	}, nil
}

// HasOpenPosition reports whether a position is currently open.
func (l *Ledger) HasOpenPosition() bool {
	return l.state.HasOpenPosition()
}

// OpenPosition returns the open position, or nil.
func (l *Ledger) OpenPosition() *models.Position {
	return l.state.OpenPosition()
}

// LastBuySequence returns the entry sequence of the most recent buy, used
// for the global entry cooldown.
func (l *Ledger) LastBuySequence() int {
	return l.state.LastBuySequence
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() float64 {
	return l.state.Cash
}

// State returns the underlying portfolio for read-only consumers.
func (l *Ledger) State() *models.Portfolio {
	return l.state
}

// Buy opens a position. It fails when a position is already open or when the
// lot cost exceeds cash; on success it debits cash, records the position and
// trade, updates the cooldown marker and persists.
func (l *Ledger) Buy(kind models.SignalKind, expiry string, strike, ltp float64, snapshotID int64, sequence int) (string, error) {
	if l.state.HasOpenPosition() {
		return "", errors.NewTradeError("BUY", expiry, strike, "position already open", errors.ErrPositionOpen)
	}

	cost := ltp * float64(l.lotSize)
	balance := l.state.Cash
	if cost > balance {
		return "", errors.NewTradeError("BUY", expiry, strike,
			fmt.Sprintf("need %.2f, have %.2f", cost, balance), errors.ErrInsufficientFunds)
	}

	now := time.Now()
	newBalance := balance - cost

	l.state.Cash = newBalance
	l.state.Positions = append(l.state.Positions, models.Position{
		Kind:          kind,
		Expiry:        expiry,
		Strike:        strike,
		EntryPrice:    ltp,
		EntryCost:     cost,
		Quantity:      l.lotSize,
		SnapshotID:    snapshotID,
		EntrySequence: sequence,
		EntryTime:     now,
		Status:        models.PositionOpen,
	})
	l.state.LastBuySequence = sequence

	trade := models.TradeRecord{
		Action:        "BUY",
		SignalType:    kind,
		Expiry:        expiry,
		Strike:        strike,
		LTP:           ltp,
		Cost:          cost,
		BalanceBefore: balance,
		BalanceAfter:  newBalance,
		SnapshotID:    snapshotID,
		Sequence:      sequence,
		Timestamp:     now,
	}
	l.state.TradeHistory = append(l.state.TradeHistory, trade)

	l.persist("BUY")
	logging.LogTrade(l.logger, trade)

	return fmt.Sprintf("Bought %s %s %.0f @ %.2f for %.2f. New balance: %.2f",
		kind, expiry, strike, ltp, cost, newBalance), nil
}

// Sell closes the open position. It fails when no position is open; on
// success it credits the proceeds, fills the exit fields, records the trade
// and persists.
func (l *Ledger) Sell(ltp float64, snapshotID int64, sequence int) (string, error) {
	pos := l.state.OpenPosition()
	if pos == nil {
		return "", errors.NewTradeError("SELL", "", 0, "no open position", errors.ErrNoOpenPosition)
	}

	now := time.Now()
	proceeds := ltp * float64(l.lotSize)
	balance := l.state.Cash
	newBalance := balance + proceeds

	pnl := proceeds - pos.EntryCost
	pnlPct := 0.0
	if pos.EntryCost > 0 {
		pnlPct = pnl / pos.EntryCost * 100
	}

	pos.ExitPrice = ltp
	pos.ExitProceeds = proceeds
	pos.PnL = pnl
	pos.PnLPct = pnlPct
	pos.ExitTime = now
	pos.ExitSnapshotID = snapshotID
	pos.ExitSequence = sequence
	pos.Status = models.PositionClosed

	l.state.Cash = newBalance

	trade := models.TradeRecord{
		Action:        "SELL",
		SignalType:    pos.Kind,
		Expiry:        pos.Expiry,
		Strike:        pos.Strike,
		EntryPrice:    pos.EntryPrice,
		ExitPrice:     ltp,
		Proceeds:      proceeds,
		PnL:           pnl,
		PnLPct:        pnlPct,
		BalanceBefore: balance,
		BalanceAfter:  newBalance,
		SnapshotID:    snapshotID,
		Sequence:      sequence,
		Timestamp:     now,
	}
	l.state.TradeHistory = append(l.state.TradeHistory, trade)

	l.persist("SELL")
	logging.LogTrade(l.logger, trade)

	return fmt.Sprintf("Sold %s %s %.0f @ %.2f for %.2f. P&L: %.2f (%.2f%%). New balance: %.2f",
		pos.Kind, pos.Expiry, pos.Strike, ltp, proceeds, pnl, pnlPct, newBalance), nil
}

// persist writes the portfolio through the store. A failed save never rolls
// the in-memory state back to the stale on-disk copy; the trade stands and
// the failure is surfaced loudly, since losing a trade record is the most
// serious failure mode.
func (l *Ledger) persist(action string) {
	if err := l.store.Save(l.state); err != nil {
		l.logger.Error().
			Err(err).
			Str("action", action).
			Float64("balance", l.state.Cash).
			Int("positions", len(l.state.Positions)).
			Msg("CRITICAL: portfolio save failed, trade is not on disk")
	}
}

// Summary returns a read-only snapshot of the portfolio. A currentLTP <= 0
// means no price is available: position value and unrealized P&L report as
// zero. Summary never mutates state and never persists.
func (l *Ledger) Summary(currentLTP float64) Summary {
	s := Summary{
		Cash:           l.state.Cash,
		InitialBalance: l.state.InitialBalance,
		TotalTrades:    len(l.state.TradeHistory),
	}

	for _, pos := range l.state.Positions {
		if pos.Status == models.PositionClosed {
			s.RealizedPnL += pos.PnL
			s.ClosedPositions++
		}
	}

	if pos := l.state.OpenPosition(); pos != nil {
		s.OpenPosition = pos
		if currentLTP > 0 {
			s.PositionValue = currentLTP * float64(pos.Quantity)
			s.UnrealizedPnL = (currentLTP - pos.EntryPrice) * float64(pos.Quantity)
			if pos.EntryCost > 0 {
				s.UnrealizedPnLPct = s.UnrealizedPnL / pos.EntryCost * 100
			}
		}
	}

	s.TotalValue = s.Cash + s.PositionValue
	return s
}
