package library

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Broadcaster pushes library events to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// EventLibraryUpdated is broadcast after a rescan changes the catalog.
const EventLibraryUpdated = "library:updated"

// Service keeps the persistent catalog in sync with the install root.
type Service struct {
	store       *Store
	scanner     Scanner
	installRoot string
	logger      zerolog.Logger

	broadcaster Broadcaster
}

// NewService creates the library service.
func NewService(store *Store, scanner Scanner, installRoot string, logger zerolog.Logger) *Service {
	return &Service{
		store:       store,
		scanner:     scanner,
		installRoot: installRoot,
		logger:      logger.With().Str("component", "library").Logger(),
	}
}

// SetBroadcaster wires the websocket broadcaster.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// InstallRoot returns the configured install root.
func (s *Service) InstallRoot() string {
	return s.installRoot
}

// Rescan walks the install root and syncs the store with what is actually
// on disk: new games appear, removed games vanish.
func (s *Service) Rescan(ctx context.Context) ([]InstalledGameRecord, error) {
	startTime := time.Now()

	scanned, err := s.scanner.ScanInstallRoot(ctx, s.installRoot)
	if err != nil {
		return nil, fmt.Errorf("rescan failed: %w", err)
	}

	keepPaths := make([]string, 0, len(scanned))
	for _, rec := range scanned {
		if err := s.store.Upsert(ctx, rec); err != nil {
			return nil, err
		}
		keepPaths = append(keepPaths, rec.InstallDir)
	}

	removed, err := s.store.RemoveMissing(ctx, keepPaths)
	if err != nil {
		return nil, err
	}

	games, err := s.store.ListInstalledGames(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int("games", len(games)).
		Int64("removed", removed).
		Dur("elapsed", time.Since(startTime)).
		Msg("Library rescan finished")

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(EventLibraryUpdated, map[string]int{"games": len(games)})
	}
	return games, nil
}

// ListInstalledGames returns the current catalog.
func (s *Service) ListInstalledGames(ctx context.Context) ([]InstalledGameRecord, error) {
	return s.store.ListInstalledGames(ctx)
}

// Search fuzzy-searches the catalog by name.
func (s *Service) Search(ctx context.Context, query string) ([]InstalledGameRecord, error) {
	return s.store.SearchByName(ctx, query)
}

// History returns recent acquisition history.
func (s *Service) History(ctx context.Context, limit int) ([]AcquisitionRecord, error) {
	return s.store.ListAcquisitionHistory(ctx, limit)
}

// RecordAcquisition appends to the acquisition history.
func (s *Service) RecordAcquisition(ctx context.Context, rec AcquisitionRecord) error {
	return s.store.RecordAcquisition(ctx, rec)
}
