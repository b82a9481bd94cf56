// Package monitor runs the polling loop that ties the snapshot source, the
// signal engine and the position ledger together.
package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"oi-trader/internal/config"
	"oi-trader/internal/errors"
	"oi-trader/internal/ledger"
	"oi-trader/internal/logging"
	"oi-trader/internal/models"
	"oi-trader/internal/signal"
	"oi-trader/internal/snapshot"
	"oi-trader/pkg/utils"
)

// Monitor polls the snapshot source for new data, evaluates the strategy on
// every new snapshot and executes the resulting paper trades.
type Monitor struct {
	cfg    *config.Config
	source snapshot.Source
	engine *signal.Engine
	ledger *ledger.Ledger
	logger zerolog.Logger
	retry  utils.RetryConfig

	lastSeenID int64
}

// New creates a monitor over the given collaborators.
func New(cfg *config.Config, source snapshot.Source, engine *signal.Engine, l *ledger.Ledger, logger zerolog.Logger) *Monitor {
	return &Monitor{
		cfg:    cfg,
		source: source,
		engine: engine,
		ledger: l,
		logger: logger,
		retry:  utils.DefaultRetryConfig(),
	}
}

// Run polls at the configured interval until the context is cancelled. An
// evaluation runs immediately on start so a restart does not wait a full
// interval before catching up.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info().
		Str("ticker", m.cfg.Database.Ticker).
		Dur("poll_interval", m.cfg.Monitor.PollInterval).
		Bool("aggregate", m.cfg.Monitor.Aggregate).
		Msg("Monitor started")

	m.poll(ctx)

	ticker := time.NewTicker(m.cfg.Monitor.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("Monitor stopped")
			return nil
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// poll runs one monitoring cycle. All failures are logged and swallowed; the
// loop must survive transient database and filesystem problems.
func (m *Monitor) poll(ctx context.Context) {
	latest, err := utils.RetryWithResult(ctx, m.retry, func() (int64, error) {
		return m.source.LatestSnapshotID(ctx, m.cfg.Database.Ticker)
	})
	if err != nil {
		if errors.Is(err, errors.ErrSnapshotNotFound) {
			m.logger.Debug().Msg("No snapshots available yet")
		} else {
			m.logger.Warn().Err(err).Msg("Polling latest snapshot failed")
		}
		return
	}
	if latest == m.lastSeenID {
		m.logger.Debug().Int64("snapshot_id", latest).Msg("No new snapshot")
		return
	}

	sig, err := m.EvaluateOnce(ctx)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Signal evaluation failed")
		return
	}
	m.lastSeenID = latest

	if sig.Kind == models.SignalNone {
		return
	}

	msg, err := m.Execute(sig)
	if err != nil {
		m.logger.Warn().Err(err).Str("signal", string(sig.Kind)).Msg("Trade execution rejected")
		return
	}
	m.logger.Info().Str("signal", string(sig.Kind)).Msg(msg)
}

// EvaluateOnce loads the snapshot table and evaluates the strategy against
// the current ledger state, without executing anything.
func (m *Monitor) EvaluateOnce(ctx context.Context) (models.Signal, error) {
	table, err := m.loadTable(ctx)
	if err != nil {
		return models.Signal{Kind: models.SignalNone}, err
	}

	var pos *signal.PositionContext
	if p := m.ledger.OpenPosition(); p != nil {
		pos = &signal.PositionContext{
			Kind:          p.Kind,
			Expiry:        p.Expiry,
			Strike:        p.Strike,
			EntryPrice:    p.EntryPrice,
			EntrySequence: p.EntrySequence,
			Quantity:      p.Quantity,
		}
	}

	sig := m.engine.Evaluate(table, pos, m.ledger.LastBuySequence())
	logging.LogSignal(m.logger, sig)
	return sig, nil
}

// Execute applies an actionable signal to the ledger and returns the trade
// confirmation message. NO_SIGNAL is a no-op.
func (m *Monitor) Execute(sig models.Signal) (string, error) {
	switch sig.Kind {
	case models.SignalBuyCall, models.SignalBuyPut:
		return m.ledger.Buy(sig.Kind, sig.Expiry, sig.Strike, sig.LTP, sig.SnapshotID, sig.Sequence)
	case models.SignalSellCall, models.SignalSellPut:
		return m.ledger.Sell(sig.LTP, sig.SnapshotID, sig.Sequence)
	}
	return "", nil
}

// OpenPositionLTP returns the latest traded price of the open position, or 0
// when there is no position or no quote for it in the latest snapshot.
func (m *Monitor) OpenPositionLTP(ctx context.Context) (float64, error) {
	pos := m.ledger.OpenPosition()
	if pos == nil {
		return 0, nil
	}

	table, err := m.loadTable(ctx)
	if err != nil {
		return 0, err
	}
	latest, ok := table.Latest()
	if !ok {
		return 0, nil
	}
	row, ok := table.Row(latest, pos.Expiry, pos.Strike)
	if !ok {
		return 0, nil
	}

	side := models.SideCall
	if pos.Kind == models.SignalBuyPut {
		side = models.SidePut
	}
	return row.LTP(side), nil
}

// loadTable fetches the configured snapshot window and prepares it for
// evaluation, re-bucketing when aggregation is enabled.
func (m *Monitor) loadTable(ctx context.Context) (*snapshot.Table, error) {
	ticker := m.cfg.Database.Ticker

	ids, err := m.source.SnapshotIDs(ctx, ticker, m.cfg.Monitor.SnapshotWindow)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, errors.NewDataError("snapshot", ticker, "no snapshots found", errors.ErrSnapshotNotFound)
	}

	rows, err := utils.RetryWithResult(ctx, m.retry, func() ([]models.SnapshotRow, error) {
		return m.source.FetchRows(ctx, ticker, ids)
	})
	if err != nil {
		return nil, err
	}

	table, err := snapshot.Prepare(rows)
	if err != nil {
		return nil, err
	}
	if m.cfg.Monitor.Aggregate {
		table = table.Rebucket(m.cfg.Monitor.AggregationWindow)
	}
	return table, nil
}
