package ledger

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"oi-trader/internal/errors"
	"oi-trader/internal/models"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	portfolio *models.Portfolio
	saves     int
	failSave  bool
}

func newMemStore(balance float64) *memStore {
	now := time.Now()
	return &memStore{
		portfolio: &models.Portfolio{
			Cash:            balance,
			InitialBalance:  balance,
			Positions:       []models.Position{},
			TradeHistory:    []models.TradeRecord{},
			LastBuySequence: -9999,
			CreatedAt:       now,
			LastUpdated:     now,
		},
	}
}

func (m *memStore) Load() (*models.Portfolio, error) {
	return m.portfolio, nil
}

func (m *memStore) Save(p *models.Portfolio) error {
	if m.failSave {
		return stderrors.New("disk full")
	}
	m.saves++
	return nil
}

func openTestLedger(t *testing.T, balance float64) (*Ledger, *memStore) {
	t.Helper()
	store := newMemStore(balance)
	l, err := Open(store, 150, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return l, store
}

func TestBuyOpensPosition(t *testing.T) {
	l, store := openTestLedger(t, 100000)

	msg, err := l.Buy(models.SignalBuyCall, "2025-09-02", 24000, 10.5, 42, 25)
	if err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if msg == "" {
		t.Error("expected confirmation message")
	}

	wantCash := 100000 - 10.5*150
	if l.Cash() != wantCash {
		t.Errorf("expected cash %.2f, got %.2f", wantCash, l.Cash())
	}
	if !l.HasOpenPosition() {
		t.Fatal("expected open position")
	}
	pos := l.OpenPosition()
	if pos.Kind != models.SignalBuyCall || pos.Strike != 24000 || pos.EntryPrice != 10.5 {
		t.Errorf("unexpected position: %+v", pos)
	}
	if pos.EntryCost != 10.5*150 {
		t.Errorf("expected entry cost %.2f, got %.2f", 10.5*150, pos.EntryCost)
	}
	if l.LastBuySequence() != 25 {
		t.Errorf("expected last buy sequence 25, got %d", l.LastBuySequence())
	}
	if len(l.State().TradeHistory) != 1 {
		t.Errorf("expected 1 trade record, got %d", len(l.State().TradeHistory))
	}
	if store.saves != 1 {
		t.Errorf("expected 1 save, got %d", store.saves)
	}
}

func TestBuyRejectedWhenPositionOpen(t *testing.T) {
	l, _ := openTestLedger(t, 100000)

	if _, err := l.Buy(models.SignalBuyCall, "2025-09-02", 24000, 10, 1, 25); err != nil {
		t.Fatalf("first Buy failed: %v", err)
	}

	_, err := l.Buy(models.SignalBuyPut, "2025-09-02", 23900, 12, 2, 50)
	if !errors.Is(err, errors.ErrPositionOpen) {
		t.Fatalf("expected ErrPositionOpen, got %v", err)
	}

	// State unchanged by the rejection.
	if len(l.State().Positions) != 1 || len(l.State().TradeHistory) != 1 {
		t.Error("rejected buy mutated state")
	}
}

func TestBuyRejectedOnInsufficientFunds(t *testing.T) {
	l, store := openTestLedger(t, 1000)

	_, err := l.Buy(models.SignalBuyCall, "2025-09-02", 24000, 10, 1, 25)
	if !errors.Is(err, errors.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if l.Cash() != 1000 {
		t.Errorf("cash changed on rejected buy: %.2f", l.Cash())
	}
	if l.HasOpenPosition() {
		t.Error("position opened despite rejection")
	}
	if l.LastBuySequence() != -9999 {
		t.Errorf("cooldown marker changed on rejected buy: %d", l.LastBuySequence())
	}
	if store.saves != 0 {
		t.Errorf("rejected buy persisted: %d saves", store.saves)
	}
}

func TestSellRejectedWithoutPosition(t *testing.T) {
	l, _ := openTestLedger(t, 100000)

	_, err := l.Sell(10, 1, 25)
	if !errors.Is(err, errors.ErrNoOpenPosition) {
		t.Fatalf("expected ErrNoOpenPosition, got %v", err)
	}
}

func TestBuySellRoundTrip(t *testing.T) {
	l, store := openTestLedger(t, 100000)

	if _, err := l.Buy(models.SignalBuyCall, "2025-09-02", 24000, 10, 1, 25); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if _, err := l.Sell(12, 9, 55); err != nil {
		t.Fatalf("Sell failed: %v", err)
	}

	wantCash := 100000.0 - 10*150 + 12*150
	if l.Cash() != wantCash {
		t.Errorf("expected cash %.2f, got %.2f", wantCash, l.Cash())
	}
	if l.HasOpenPosition() {
		t.Error("position still open after sell")
	}

	pos := l.State().Positions[0]
	if pos.Status != models.PositionClosed {
		t.Errorf("expected closed position, got %s", pos.Status)
	}
	if pos.PnL != 2*150 {
		t.Errorf("expected pnl %.2f, got %.2f", 2.0*150, pos.PnL)
	}
	if pos.PnLPct != 20 {
		t.Errorf("expected pnl pct 20, got %.2f", pos.PnLPct)
	}
	if pos.ExitSequence != 55 || pos.ExitSnapshotID != 9 {
		t.Errorf("exit provenance wrong: seq %d id %d", pos.ExitSequence, pos.ExitSnapshotID)
	}

	// Cooldown marker survives the sell.
	if l.LastBuySequence() != 25 {
		t.Errorf("last buy sequence changed on sell: %d", l.LastBuySequence())
	}
	if store.saves != 2 {
		t.Errorf("expected 2 saves, got %d", store.saves)
	}
}

func TestTradeStandsWhenSaveFails(t *testing.T) {
	l, store := openTestLedger(t, 100000)
	store.failSave = true

	if _, err := l.Buy(models.SignalBuyCall, "2025-09-02", 24000, 10, 1, 25); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}

	// The in-memory trade is authoritative even though persistence failed.
	if !l.HasOpenPosition() {
		t.Error("position rolled back after failed save")
	}
	if l.Cash() != 100000-10*150 {
		t.Errorf("cash rolled back after failed save: %.2f", l.Cash())
	}
}

func TestSummary(t *testing.T) {
	l, _ := openTestLedger(t, 100000)

	if _, err := l.Buy(models.SignalBuyCall, "2025-09-02", 24000, 10, 1, 25); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if _, err := l.Sell(12, 2, 55); err != nil {
		t.Fatalf("Sell failed: %v", err)
	}
	if _, err := l.Buy(models.SignalBuyPut, "2025-09-02", 23900, 20, 3, 80); err != nil {
		t.Fatalf("second Buy failed: %v", err)
	}

	s := l.Summary(22)

	if s.RealizedPnL != 2*150 {
		t.Errorf("expected realized pnl %.2f, got %.2f", 2.0*150, s.RealizedPnL)
	}
	if s.ClosedPositions != 1 {
		t.Errorf("expected 1 closed position, got %d", s.ClosedPositions)
	}
	if s.OpenPosition == nil {
		t.Fatal("expected open position in summary")
	}
	if s.PositionValue != 22*150 {
		t.Errorf("expected position value %.2f, got %.2f", 22.0*150, s.PositionValue)
	}
	if s.UnrealizedPnL != 2*150 {
		t.Errorf("expected unrealized pnl %.2f, got %.2f", 2.0*150, s.UnrealizedPnL)
	}
	if s.TotalValue != s.Cash+s.PositionValue {
		t.Errorf("total value %.2f != cash %.2f + position %.2f", s.TotalValue, s.Cash, s.PositionValue)
	}
	if s.TotalTrades != 3 {
		t.Errorf("expected 3 trades, got %d", s.TotalTrades)
	}

	// Without a quote, position value and unrealized P&L report as zero.
	noQuote := l.Summary(0)
	if noQuote.PositionValue != 0 || noQuote.UnrealizedPnL != 0 {
		t.Errorf("expected zero position value without quote, got %.2f / %.2f",
			noQuote.PositionValue, noQuote.UnrealizedPnL)
	}

	// Summary never mutates state.
	if l.Cash() != s.Cash {
		t.Error("Summary mutated cash")
	}
}
