package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog"
)

// ErrGameNotFound means no library record matches the lookup.
var ErrGameNotFound = errors.New("library: game not found")

// Store persists installed games and acquisition history.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates a store on an open database.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "library-store").Logger(),
	}
}

const gameColumns = `id, name, install_path, COALESCE(executable_path, ''), platform, size_bytes, repacker_tag, installed_at, last_seen_at`

func scanGame(row interface{ Scan(...interface{}) error }) (*InstalledGameRecord, error) {
	var rec InstalledGameRecord
	err := row.Scan(&rec.ID, &rec.Name, &rec.InstallDir, &rec.Executable,
		&rec.Platform, &rec.SizeBytes, &rec.RepackerTag, &rec.InstalledAt, &rec.LastSeenAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListInstalledGames returns every game in the library, sorted by name.
func (s *Store) ListInstalledGames(ctx context.Context) ([]InstalledGameRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+gameColumns+` FROM installed_games ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	var games []InstalledGameRecord
	for rows.Next() {
		rec, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game row: %w", err)
		}
		games = append(games, *rec)
	}
	return games, rows.Err()
}

// GetByName fetches a game by case-insensitive name.
func (s *Store) GetByName(ctx context.Context, name string) (*InstalledGameRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+gameColumns+` FROM installed_games WHERE name = ? COLLATE NOCASE`, name)
	rec, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return rec, nil
}

// Upsert inserts or refreshes a game record keyed by install path.
func (s *Store) Upsert(ctx context.Context, rec InstalledGameRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO installed_games (name, install_path, executable_path, platform, size_bytes, repacker_tag)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(install_path) DO UPDATE SET
			name = excluded.name,
			executable_path = excluded.executable_path,
			size_bytes = excluded.size_bytes,
			last_seen_at = CURRENT_TIMESTAMP`,
		rec.Name, rec.InstallDir, rec.Executable, orDefault(rec.Platform, "windows"),
		rec.SizeBytes, orDefault(rec.RepackerTag, "unknown"))
	if err != nil {
		return fmt.Errorf("failed to upsert game: %w", err)
	}
	return nil
}

// RemoveMissing deletes records whose install path is not in keepPaths.
// Used after a full rescan to drop uninstalled games.
func (s *Store) RemoveMissing(ctx context.Context, keepPaths []string) (int64, error) {
	if len(keepPaths) == 0 {
		res, err := s.db.ExecContext(ctx, `DELETE FROM installed_games`)
		if err != nil {
			return 0, fmt.Errorf("failed to clear games: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := strings.Repeat("?,", len(keepPaths))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(keepPaths))
	for i, p := range keepPaths {
		args[i] = p
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM installed_games WHERE install_path NOT IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to remove missing games: %w", err)
	}
	return res.RowsAffected()
}

// SearchByName returns games whose names fuzzy-match the query, best first.
func (s *Store) SearchByName(ctx context.Context, query string) ([]InstalledGameRecord, error) {
	games, err := s.ListInstalledGames(ctx)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(games))
	for i, g := range games {
		names[i] = g.Name
	}

	matches := fuzzy.RankFindNormalizedFold(query, names)
	sort.Sort(matches)

	out := make([]InstalledGameRecord, 0, len(matches))
	for _, m := range matches {
		out = append(out, games[m.OriginalIndex])
	}
	return out, nil
}

// RecordAcquisition appends one finished acquisition to the history.
func (s *Store) RecordAcquisition(ctx context.Context, rec AcquisitionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO acquisition_history
			(job_id, game_name, source_name, repacker_tag, final_status, error_kind, error_message, size_bytes, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID, rec.GameName, rec.SourceName, orDefault(rec.RepackerTag, "unknown"),
		rec.FinalStatus, rec.ErrorKind, rec.ErrorMessage, rec.SizeBytes, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to record acquisition: %w", err)
	}
	return nil
}

// ListAcquisitionHistory returns the most recent acquisitions.
func (s *Store) ListAcquisitionHistory(ctx context.Context, limit int) ([]AcquisitionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, game_name, source_name, repacker_tag, final_status,
		       error_kind, error_message, size_bytes, started_at, finished_at
		FROM acquisition_history ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var records []AcquisitionRecord
	for rows.Next() {
		var rec AcquisitionRecord
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.GameName, &rec.SourceName,
			&rec.RepackerTag, &rec.FinalStatus, &rec.ErrorKind, &rec.ErrorMessage,
			&rec.SizeBytes, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
