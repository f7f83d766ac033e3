// Package settings persists user-tunable overrides in the settings table.
// Values are read once at startup; a changed setting applies on the next
// start.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// ErrInvalidValue means a proposed setting value failed validation.
var ErrInvalidValue = errors.New("settings: invalid value")

const (
	keyInstallRoot = "install_root"
	keyMinScore    = "search_min_score"
)

// View is the client-facing settings snapshot. DebridConfigured reports
// only key presence, never the key itself.
type View struct {
	InstallRoot      string  `json:"installRoot"`
	MinScore         float64 `json:"minScore"`
	DebridConfigured bool    `json:"debridConfigured"`
}

// Service layers persisted overrides over config-derived defaults.
type Service struct {
	db     *sql.DB
	logger zerolog.Logger

	mu   sync.RWMutex
	view View
}

// NewService creates the settings service seeded with defaults from config.
func NewService(db *sql.DB, defaults View, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "settings").Logger(),
		view:   defaults,
	}
}

// Load applies persisted overrides on top of the seeded defaults.
func (s *Service) Load(ctx context.Context) error {
	if value, ok, err := s.get(ctx, keyInstallRoot); err != nil {
		return err
	} else if ok {
		s.mu.Lock()
		s.view.InstallRoot = value
		s.mu.Unlock()
	}

	if value, ok, err := s.get(ctx, keyMinScore); err != nil {
		return err
	} else if ok {
		score, err := strconv.ParseFloat(value, 64)
		if err != nil {
			s.logger.Warn().Str("value", value).Msg("Ignoring unparseable stored min score")
		} else {
			s.mu.Lock()
			s.view.MinScore = score
			s.mu.Unlock()
		}
	}
	return nil
}

// Current returns the effective settings.
func (s *Service) Current() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// SetInstallRoot persists a new install root.
func (s *Service) SetInstallRoot(ctx context.Context, root string) error {
	if root == "" {
		return fmt.Errorf("%w: install root cannot be empty", ErrInvalidValue)
	}
	if err := s.set(ctx, keyInstallRoot, root); err != nil {
		return err
	}
	s.mu.Lock()
	s.view.InstallRoot = root
	s.mu.Unlock()
	s.logger.Info().Str("installRoot", root).Msg("Install root updated")
	return nil
}

// SetMinScore persists a new relevance floor for untrusted search results.
func (s *Service) SetMinScore(ctx context.Context, score float64) error {
	if score < 0 {
		return fmt.Errorf("%w: min score cannot be negative", ErrInvalidValue)
	}
	if err := s.set(ctx, keyMinScore, strconv.FormatFloat(score, 'f', -1, 64)); err != nil {
		return err
	}
	s.mu.Lock()
	s.view.MinScore = score
	s.mu.Unlock()
	s.logger.Info().Float64("minScore", score).Msg("Min score updated")
	return nil
}

func (s *Service) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return value, true, nil
}

func (s *Service) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}
	return nil
}
