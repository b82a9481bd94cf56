// Package store provides durable persistence for the portfolio state.
package store

import (
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"oi-trader/internal/errors"
	"oi-trader/internal/models"
)

// balanceTolerance is the floating tolerance for the read-back verification.
const balanceTolerance = 0.01

// Replicator mirrors the saved portfolio file to an external system after a
// successful local commit. Replication is best-effort: failures are logged
// by the implementation and never affect the local save.
type Replicator interface {
	Replicate(path string)
}

// FileStore persists the portfolio as a single JSON file with crash-safe
// write semantics: write to a temporary file, verify the written copy
// round-trips, then atomically rename over the canonical file. A corrupted
// canonical file falls back to the .bak copy; failing that, a fresh
// portfolio is initialized at the configured starting balance.
type FileStore struct {
	path           string
	initialBalance float64
	replicator     Replicator
	logger         zerolog.Logger
}

// NewFileStore creates a file-backed portfolio store. replicator may be nil.
func NewFileStore(path string, initialBalance float64, replicator Replicator, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:           path,
		initialBalance: initialBalance,
		replicator:     replicator,
		logger:         logger,
	}
}

// Path returns the canonical portfolio file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the portfolio from disk. A missing file initializes (and
// persists) a fresh portfolio; a corrupt file falls back to the backup copy
// before giving up and starting fresh.
func (s *FileStore) Load() (*models.Portfolio, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s.initFresh()
	}
	if err != nil {
		return nil, errors.NewPersistError(s.path, "read", err)
	}

	p := &models.Portfolio{}
	if err := json.Unmarshal(data, p); err == nil {
		s.logger.Info().
			Float64("balance", p.Cash).
			Int("positions", len(p.Positions)).
			Int("trades", len(p.TradeHistory)).
			Msg("Loaded portfolio")
		return p, nil
	}

	s.logger.Error().Str("path", s.path).Msg("Portfolio file is corrupted, attempting backup recovery")
	if backup, err := os.ReadFile(s.backupPath()); err == nil {
		p = &models.Portfolio{}
		if err := json.Unmarshal(backup, p); err == nil {
			s.logger.Warn().Msg("Loaded portfolio from backup file")
			return p, nil
		}
	}

	s.logger.Warn().Msg("Creating new portfolio after corruption")
	return s.initFresh()
}

func (s *FileStore) initFresh() (*models.Portfolio, error) {
	now := time.Now()
	p := &models.Portfolio{
		Cash:            s.initialBalance,
		InitialBalance:  s.initialBalance,
		Positions:       []models.Position{},
		TradeHistory:    []models.TradeRecord{},
		LastBuySequence: -9999,
		CreatedAt:       now,
		LastUpdated:     now,
	}
	if err := s.Save(p); err != nil {
		return nil, err
	}
	s.logger.Info().Float64("balance", s.initialBalance).Msg("Created new portfolio")
	return p, nil
}

// Save durably writes the portfolio, retrying once on failure. After a
// successful local write the replication hook runs; its outcome never
// affects the result.
func (s *FileStore) Save(p *models.Portfolio) error {
	p.LastUpdated = time.Now()

	err := s.saveOnce(p)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Portfolio save failed, retrying once")
		err = s.saveOnce(p)
	}
	if err != nil {
		return errors.Wrap(err, "portfolio save failed after retry")
	}

	if s.replicator != nil {
		s.replicator.Replicate(s.path)
	}
	return nil
}

func (s *FileStore) saveOnce(p *models.Portfolio) error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.NewPersistError(s.path, "write", err)
		}
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errors.NewPersistError(s.path, "write", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.NewPersistError(tmp, "write", err)
	}

	// Read back and verify the balance round-trips before the rename.
	written, err := os.ReadFile(tmp)
	if err != nil {
		os.Remove(tmp)
		return errors.NewPersistError(tmp, "verify", err)
	}
	check := &models.Portfolio{}
	if err := json.Unmarshal(written, check); err != nil {
		os.Remove(tmp)
		return errors.NewPersistError(tmp, "verify", err)
	}
	if math.Abs(check.Cash-p.Cash) > balanceTolerance {
		os.Remove(tmp)
		return errors.NewPersistError(tmp, "verify", errors.ErrCorruptState)
	}

	// Keep the previous canonical file as the backup copy.
	if err := copyFile(s.path, s.backupPath()); err != nil && !os.IsNotExist(err) {
		s.logger.Debug().Err(err).Msg("Could not refresh portfolio backup")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return errors.NewPersistError(s.path, "rename", err)
	}
	return nil
}

func (s *FileStore) backupPath() string {
	return s.path + ".bak"
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
