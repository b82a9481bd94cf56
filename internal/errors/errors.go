// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrPositionOpen      = errors.New("position already open")
	ErrNoOpenPosition    = errors.New("no open position")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientData  = errors.New("insufficient snapshot history")
	ErrSnapshotNotFound  = errors.New("snapshot not found")
	ErrContractNotFound  = errors.New("contract not found")
	ErrPersistFailed     = errors.New("portfolio persistence failed")
	ErrCorruptState      = errors.New("corrupt portfolio state")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrDatabaseError     = errors.New("database error")
)

// BatchError represents a rejected snapshot batch.
type BatchError struct {
	Missing []string
	Rows    int
	Err     error
}

func (e *BatchError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("batch rejected (%d rows): missing fields %v", e.Rows, e.Missing)
	}
	if e.Err != nil {
		return fmt.Sprintf("batch rejected (%d rows): %v", e.Rows, e.Err)
	}
	return fmt.Sprintf("batch rejected (%d rows)", e.Rows)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// NewBatchError creates a new BatchError.
func NewBatchError(rows int, missing []string, err error) *BatchError {
	return &BatchError{
		Missing: missing,
		Rows:    rows,
		Err:     err,
	}
}

// TradeError represents a rejected ledger action.
type TradeError struct {
	Action string
	Expiry string
	Strike float64
	Reason string
	Err    error
}

func (e *TradeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("trade error [%s] %s %.0f: %s: %v", e.Action, e.Expiry, e.Strike, e.Reason, e.Err)
	}
	return fmt.Sprintf("trade error [%s] %s %.0f: %s", e.Action, e.Expiry, e.Strike, e.Reason)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// NewTradeError creates a new TradeError.
func NewTradeError(action, expiry string, strike float64, reason string, err error) *TradeError {
	return &TradeError{
		Action: action,
		Expiry: expiry,
		Strike: strike,
		Reason: reason,
		Err:    err,
	}
}

// PersistError represents a persistence failure. The in-memory state it
// refers to is still authoritative; callers must not roll back to the stale
// on-disk copy.
type PersistError struct {
	Path  string
	Stage string // "write", "verify", "rename"
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist error [%s] %s: %v", e.Stage, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// NewPersistError creates a new PersistError.
func NewPersistError(path, stage string, err error) *PersistError {
	return &PersistError{
		Path:  path,
		Stage: stage,
		Err:   err,
	}
}

// DataError represents a data-related error from the snapshot source.
type DataError struct {
	DataType string
	Ticker   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Ticker, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Ticker, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, ticker, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Ticker:   ticker,
		Message:  message,
		Err:      err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
