// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"oi-trader/internal/config"
	"oi-trader/internal/models"
)

// NewLogger creates a logger from the logging configuration.
func NewLogger(cfg config.LoggingConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	if cfg.File && cfg.FilePath != "" {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var writer io.Writer
	switch len(writers) {
	case 0:
		writer = os.Stdout
	case 1:
		writer = writers[0]
	default:
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithTicker adds a ticker to the logger context.
func WithTicker(logger zerolog.Logger, ticker string) zerolog.Logger {
	return logger.With().Str("ticker", ticker).Logger()
}

// LogSignal logs a signal evaluation result.
func LogSignal(logger zerolog.Logger, sig models.Signal) {
	event := logger.Info().
		Str("event", "signal").
		Str("signal", string(sig.Kind))
	if sig.Kind != models.SignalNone {
		event = event.
			Int("snapshot_seq", sig.Sequence).
			Str("expiry", sig.Expiry).
			Float64("strike", sig.Strike).
			Float64("ltp", sig.LTP)
	}
	if sig.Reason != "" {
		event = event.Str("reason", sig.Reason)
	}
	event.Msg("Signal evaluated")
}

// LogTrade logs an executed paper trade.
func LogTrade(logger zerolog.Logger, trade models.TradeRecord) {
	logger.Info().
		Str("event", "trade").
		Str("action", trade.Action).
		Str("signal_type", string(trade.SignalType)).
		Str("expiry", trade.Expiry).
		Float64("strike", trade.Strike).
		Float64("balance_before", trade.BalanceBefore).
		Float64("balance_after", trade.BalanceAfter).
		Int("snapshot_seq", trade.Sequence).
		Msg("Trade executed")
}
