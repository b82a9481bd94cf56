package signal

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"oi-trader/internal/config"
	"oi-trader/internal/models"
	"oi-trader/internal/snapshot"
)

var testBase = time.Date(2025, 8, 25, 9, 15, 0, 0, time.UTC)

const testExpiry = "2025-09-02"

func testStrategy() config.StrategyConfig {
	return config.StrategyConfig{
		StrikeStep:        50,
		MomentumThreshold: 1.03,
		OIGrowthThreshold: 1.05,
		MinLTP:            5,
		Cooldown:          20,
		StopLossPct:       0.5,
		MinHoldSequences:  7,
	}
}

func testEngine() *Engine {
	return New(testStrategy(), zerolog.Nop())
}

// contract holds one strike's per-sequence series for table construction.
type contract struct {
	strike  float64
	callLTP []float64
	callOI  []float64
	putLTP  []float64
	putOI   []float64
}

// buildTable constructs a prepared table with one row per (sequence, strike).
// Series shorter than underlying leave the contract absent from the trailing
// sequences.
func buildTable(t *testing.T, underlying []float64, contracts ...contract) *snapshot.Table {
	t.Helper()

	var rows []models.SnapshotRow
	for seq, u := range underlying {
		for _, c := range contracts {
			if seq >= len(c.callLTP) {
				continue
			}
			row := models.SnapshotRow{
				SnapshotID:      int64(seq + 1),
				Expiry:          testExpiry,
				Strike:          c.strike,
				UnderlyingValue: u,
				CallOI:          1000,
				CallLTP:         c.callLTP[seq],
				PutOI:           1000,
				PutLTP:          50,
				Timestamp:       testBase.Add(time.Duration(seq) * 3 * time.Minute),
			}
			if c.callOI != nil {
				row.CallOI = c.callOI[seq]
			}
			if c.putLTP != nil {
				row.PutLTP = c.putLTP[seq]
			}
			if c.putOI != nil {
				row.PutOI = c.putOI[seq]
			}
			rows = append(rows, row)
		}
	}

	table, err := snapshot.Prepare(rows)
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	return table
}

func TestEvaluateInsufficientHistory(t *testing.T) {
	table := buildTable(t, []float64{24000, 24010}, contract{
		strike:  24000,
		callLTP: []float64{10, 11},
	})

	sig := testEngine().Evaluate(table, nil, -9999)
	if sig.Kind != models.SignalNone {
		t.Fatalf("expected NO_SIGNAL, got %s", sig.Kind)
	}
	if !strings.Contains(sig.Reason, "less than 3") {
		t.Errorf("unexpected reason: %q", sig.Reason)
	}
}

func TestEvaluateBuyCall(t *testing.T) {
	// Rising underlying, strictly rising call price with 4% momentum and 9%
	// OI growth.
	table := buildTable(t, []float64{24000, 24010, 24030}, contract{
		strike:  24000,
		callLTP: []float64{10, 10.2, 10.4},
		callOI:  []float64{100, 110, 120},
	})

	sig := testEngine().Evaluate(table, nil, -9999)
	if sig.Kind != models.SignalBuyCall {
		t.Fatalf("expected BUY_CALL, got %s (%s)", sig.Kind, sig.Reason)
	}
	if sig.Strike != 24000 || sig.Expiry != testExpiry {
		t.Errorf("wrong contract: %s %.0f", sig.Expiry, sig.Strike)
	}
	if sig.LTP != 10.4 {
		t.Errorf("expected entry ltp 10.4, got %.2f", sig.LTP)
	}
	if sig.Sequence != 2 {
		t.Errorf("expected trigger at sequence 2, got %d", sig.Sequence)
	}
}

func TestEvaluateBuyPut(t *testing.T) {
	// Falling underlying with rising put price and put OI.
	table := buildTable(t, []float64{24030, 24010, 24000}, contract{
		strike:  24000,
		callLTP: []float64{10, 10, 10},
		putLTP:  []float64{10, 10.2, 10.4},
		putOI:   []float64{100, 110, 120},
	})

	sig := testEngine().Evaluate(table, nil, -9999)
	if sig.Kind != models.SignalBuyPut {
		t.Fatalf("expected BUY_PUT, got %s (%s)", sig.Kind, sig.Reason)
	}
	if sig.LTP != 10.4 {
		t.Errorf("expected entry ltp 10.4, got %.2f", sig.LTP)
	}
}

func TestEvaluateEntryRejections(t *testing.T) {
	tests := []struct {
		name       string
		underlying []float64
		c          contract
	}{
		{
			name:       "momentum not strictly increasing",
			underlying: []float64{24000, 24010, 24030},
			c: contract{
				strike:  24000,
				callLTP: []float64{10, 11, 10.5},
				callOI:  []float64{100, 110, 120},
			},
		},
		{
			name:       "momentum below threshold",
			underlying: []float64{24000, 24010, 24030},
			c: contract{
				strike:  24000,
				callLTP: []float64{10, 10.1, 10.2}, // 1.02 < 1.03
				callOI:  []float64{100, 110, 120},
			},
		},
		{
			name:       "oi growth below threshold",
			underlying: []float64{24000, 24010, 24030},
			c: contract{
				strike:  24000,
				callLTP: []float64{10, 10.2, 10.4},
				callOI:  []float64{100, 110, 114}, // 114 < 110*1.05
			},
		},
		{
			name:       "zero oi base",
			underlying: []float64{24000, 24010, 24030},
			c: contract{
				strike:  24000,
				callLTP: []float64{10, 10.2, 10.4},
				callOI:  []float64{100, 0, 120},
			},
		},
		{
			name:       "below liquidity floor",
			underlying: []float64{24000, 24010, 24030},
			c: contract{
				strike:  24000,
				callLTP: []float64{5, 5.2, 5.4}, // p0 not > 5
				callOI:  []float64{100, 110, 120},
			},
		},
		{
			name:       "underlying not rising for call",
			underlying: []float64{24030, 24010, 24000},
			c: contract{
				strike:  24000,
				callLTP: []float64{10, 10.2, 10.4},
				callOI:  []float64{100, 110, 120},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := buildTable(t, tt.underlying, tt.c)
			sig := testEngine().Evaluate(table, nil, -9999)
			if sig.Kind != models.SignalNone {
				t.Errorf("expected NO_SIGNAL, got %s", sig.Kind)
			}
		})
	}
}

func TestEvaluateEntryCooldownGate(t *testing.T) {
	table := buildTable(t, []float64{24000, 24010, 24030}, contract{
		strike:  24000,
		callLTP: []float64{10, 10.2, 10.4},
		callOI:  []float64{100, 110, 120},
	})

	// Latest sequence is 2; a buy 2 sequences ago is inside the 20-step
	// cooldown window.
	sig := testEngine().Evaluate(table, nil, 0)
	if sig.Kind != models.SignalNone {
		t.Fatalf("expected NO_SIGNAL during cooldown, got %s", sig.Kind)
	}
	if !strings.Contains(sig.Reason, "cooldown") {
		t.Errorf("unexpected reason: %q", sig.Reason)
	}
}

func TestEvaluateEntryOnlyAtLatest(t *testing.T) {
	// The triple (0,1,2) qualifies but sequence 3 breaks the momentum for
	// (1,2,3); a stale trigger must not surface.
	table := buildTable(t, []float64{24000, 24010, 24030, 24040}, contract{
		strike:  24000,
		callLTP: []float64{10, 10.2, 10.4, 9},
		callOI:  []float64{100, 110, 120, 130},
	})

	sig := testEngine().Evaluate(table, nil, -9999)
	if sig.Kind != models.SignalNone {
		t.Fatalf("expected NO_SIGNAL for stale trigger, got %s", sig.Kind)
	}
}

func TestEvaluateEntryTieBreak(t *testing.T) {
	qualifying := func(strike float64) contract {
		return contract{
			strike:  strike,
			callLTP: []float64{10, 10.2, 10.4},
			callOI:  []float64{100, 110, 120},
		}
	}

	t.Run("closest to spot wins", func(t *testing.T) {
		table := buildTable(t, []float64{24020, 24030, 24040},
			qualifying(24000), qualifying(24100))
		sig := testEngine().Evaluate(table, nil, -9999)
		if sig.Kind != models.SignalBuyCall {
			t.Fatalf("expected BUY_CALL, got %s (%s)", sig.Kind, sig.Reason)
		}
		if sig.Strike != 24000 {
			t.Errorf("expected strike 24000 (closest to 24040), got %.0f", sig.Strike)
		}
	})

	t.Run("equal distance resolves to lower strike", func(t *testing.T) {
		table := buildTable(t, []float64{23980, 23990, 24000},
			qualifying(23900), qualifying(24100))
		sig := testEngine().Evaluate(table, nil, -9999)
		if sig.Kind != models.SignalBuyCall {
			t.Fatalf("expected BUY_CALL, got %s (%s)", sig.Kind, sig.Reason)
		}
		if sig.Strike != 23900 {
			t.Errorf("expected lower strike 23900, got %.0f", sig.Strike)
		}
	})
}

func openCall(entryPrice float64, entrySeq int) *PositionContext {
	return &PositionContext{
		Kind:          models.SignalBuyCall,
		Expiry:        testExpiry,
		Strike:        24000,
		EntryPrice:    entryPrice,
		EntrySequence: entrySeq,
		Quantity:      150,
	}
}

func TestEvaluateExitStopLoss(t *testing.T) {
	// Entry at 100, stop loss bound 50. A drop to 49 fires immediately even
	// though the minimum hold is not reached.
	table := buildTable(t, []float64{24000, 24010, 24020}, contract{
		strike:  24000,
		callLTP: []float64{100, 80, 49},
	})

	sig := testEngine().Evaluate(table, openCall(100, 0), 0)
	if sig.Kind != models.SignalSellCall {
		t.Fatalf("expected SELL_CALL, got %s (%s)", sig.Kind, sig.Reason)
	}
	if !strings.Contains(sig.Reason, "stop loss") {
		t.Errorf("unexpected reason: %q", sig.Reason)
	}
	if sig.LTP != 49 {
		t.Errorf("expected exit ltp 49, got %.2f", sig.LTP)
	}
}

func TestEvaluateExitStopLossBoundary(t *testing.T) {
	// 51 is above the bound; with the hold not reached nothing fires.
	table := buildTable(t, []float64{24000, 24010, 24020}, contract{
		strike:  24000,
		callLTP: []float64{100, 80, 51},
	})

	sig := testEngine().Evaluate(table, openCall(100, 0), 0)
	if sig.Kind != models.SignalNone {
		t.Fatalf("expected NO_SIGNAL, got %s (%s)", sig.Kind, sig.Reason)
	}
	if !strings.Contains(sig.Reason, "minimum hold") {
		t.Errorf("unexpected reason: %q", sig.Reason)
	}
}

func TestEvaluateExitMinimumHold(t *testing.T) {
	falling := func(n int) contract {
		ltp := make([]float64, n)
		oi := make([]float64, n)
		for i := range ltp {
			ltp[i] = 100
			oi[i] = 1000
		}
		// Price and OI both fall on the last step, above the stop loss.
		ltp[n-1] = 90
		oi[n-1] = 900
		return contract{strike: 24000, callLTP: ltp, callOI: oi}
	}
	flatUnderlying := func(n int) []float64 {
		u := make([]float64, n)
		for i := range u {
			u[i] = 24000
		}
		return u
	}

	t.Run("suppressed at 6 sequences held", func(t *testing.T) {
		table := buildTable(t, flatUnderlying(7), falling(7))
		sig := testEngine().Evaluate(table, openCall(100, 0), 0)
		if sig.Kind != models.SignalNone {
			t.Fatalf("expected NO_SIGNAL at 6 held, got %s", sig.Kind)
		}
		if !strings.Contains(sig.Reason, "minimum hold") {
			t.Errorf("unexpected reason: %q", sig.Reason)
		}
	})

	t.Run("fires at 7 sequences held", func(t *testing.T) {
		table := buildTable(t, flatUnderlying(8), falling(8))
		sig := testEngine().Evaluate(table, openCall(100, 0), 0)
		if sig.Kind != models.SignalSellCall {
			t.Fatalf("expected SELL_CALL at 7 held, got %s (%s)", sig.Kind, sig.Reason)
		}
		if sig.Reason != "price and OI falling" {
			t.Errorf("unexpected reason: %q", sig.Reason)
		}
	})
}

func TestEvaluateExitRequiresBothFalling(t *testing.T) {
	n := 8
	ltp := make([]float64, n)
	oi := make([]float64, n)
	u := make([]float64, n)
	for i := range ltp {
		ltp[i] = 100
		oi[i] = 1000
		u[i] = 24000
	}
	// Price falls but OI rises: hold.
	ltp[n-1] = 90
	oi[n-1] = 1100

	table := buildTable(t, u, contract{strike: 24000, callLTP: ltp, callOI: oi})
	sig := testEngine().Evaluate(table, openCall(100, 0), 0)
	if sig.Kind != models.SignalNone {
		t.Fatalf("expected NO_SIGNAL, got %s (%s)", sig.Kind, sig.Reason)
	}
	if !strings.Contains(sig.Reason, "holding") {
		t.Errorf("unexpected reason: %q", sig.Reason)
	}
}

func TestEvaluateExitPositionNotFound(t *testing.T) {
	// The position's strike is absent from the latest sequence.
	table := buildTable(t, []float64{24000, 24010, 24020},
		contract{strike: 24000, callLTP: []float64{100, 100}},
		contract{strike: 24050, callLTP: []float64{10, 10, 10}},
	)

	sig := testEngine().Evaluate(table, openCall(100, 0), 0)
	if sig.Kind != models.SignalNone {
		t.Fatalf("expected NO_SIGNAL, got %s", sig.Kind)
	}
	if !strings.Contains(sig.Reason, "not found") {
		t.Errorf("unexpected reason: %q", sig.Reason)
	}
}

func TestEvaluateExitPutUsesPutSide(t *testing.T) {
	table := buildTable(t, []float64{24000, 24010, 24020}, contract{
		strike:  24000,
		callLTP: []float64{100, 100, 100},
		putLTP:  []float64{100, 80, 49},
	})

	pos := &PositionContext{
		Kind:          models.SignalBuyPut,
		Expiry:        testExpiry,
		Strike:        24000,
		EntryPrice:    100,
		EntrySequence: 0,
		Quantity:      150,
	}
	sig := testEngine().Evaluate(table, pos, 0)
	if sig.Kind != models.SignalSellPut {
		t.Fatalf("expected SELL_PUT, got %s (%s)", sig.Kind, sig.Reason)
	}
	if sig.LTP != 49 {
		t.Errorf("expected put ltp 49, got %.2f", sig.LTP)
	}
}

func TestEvaluateExitIgnoresEntryConditions(t *testing.T) {
	// With a position open, a qualifying entry setup elsewhere must not
	// produce a buy.
	table := buildTable(t, []float64{24000, 24010, 24030},
		contract{strike: 24000, callLTP: []float64{100, 100, 100}},
		contract{
			strike:  24050,
			callLTP: []float64{10, 10.2, 10.4},
			callOI:  []float64{100, 110, 120},
		},
	)

	sig := testEngine().Evaluate(table, openCall(100, 0), -9999)
	if sig.Kind == models.SignalBuyCall || sig.Kind == models.SignalBuyPut {
		t.Fatalf("entry signal produced while position open: %s", sig.Kind)
	}
}
