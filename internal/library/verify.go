package library

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamedock/gamedock/internal/poll"
)

// VerifyConfig tunes the post-install verification loop.
type VerifyConfig struct {
	Attempts int
	Interval time.Duration
}

// Verifier checks whether a game actually landed in the install root after
// an installer ran. Absence is reported as a nil record, not an error:
// an install that has not appeared yet is an expected, retryable outcome.
type Verifier struct {
	service *Service
	config  VerifyConfig
	logger  zerolog.Logger
}

// NewVerifier creates a verifier over the library service.
func NewVerifier(service *Service, config VerifyConfig, logger zerolog.Logger) *Verifier {
	if config.Attempts <= 0 {
		config.Attempts = 5
	}
	if config.Interval <= 0 {
		config.Interval = 2 * time.Second
	}
	return &Verifier{
		service: service,
		config:  config,
		logger:  logger.With().Str("component", "verifier").Logger(),
	}
}

// Verify rescans the install root up to the configured attempts, looking
// for a game whose name matches case-insensitively and whose install path
// sits under the install root.
func (v *Verifier) Verify(ctx context.Context, gameName string) (*InstalledGameRecord, error) {
	record, err := poll.UntilValue(ctx, poll.Config{
		Interval:    v.config.Interval,
		MaxAttempts: v.config.Attempts,
	}, func(ctx context.Context) (*InstalledGameRecord, bool, error) {
		games, err := v.service.Rescan(ctx)
		if err != nil {
			return nil, false, err
		}
		if rec := matchGame(games, gameName, v.service.InstallRoot()); rec != nil {
			return rec, true, nil
		}
		return nil, false, nil
	})
	if errors.Is(err, poll.ErrTimeout) {
		v.logger.Info().Str("game", gameName).Int("attempts", v.config.Attempts).Msg("Install not found after verification attempts")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	v.logger.Info().Str("game", gameName).Str("installDir", record.InstallDir).Msg("Install verified")
	return record, nil
}

// matchGame finds a record matching the name whose path is under root.
func matchGame(games []InstalledGameRecord, gameName, root string) *InstalledGameRecord {
	wantName := strings.ToLower(strings.TrimSpace(gameName))
	cleanRoot := filepath.Clean(root)

	for i := range games {
		rec := &games[i]
		if !namesMatch(strings.ToLower(rec.Name), wantName) {
			continue
		}
		if !isUnder(rec.InstallDir, cleanRoot) {
			continue
		}
		return rec
	}
	return nil
}

// namesMatch tolerates punctuation differences between the store name and
// the acquisition's game name ("Hollow Knight" vs "Hollow Knight™").
func namesMatch(got, want string) bool {
	if got == want {
		return true
	}
	return strings.Contains(got, want) || strings.Contains(want, got)
}

func isUnder(path, root string) bool {
	rel, err := filepath.Rel(root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
