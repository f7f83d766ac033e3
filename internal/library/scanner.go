package library

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Scanner discovers installed games under an install root.
type Scanner interface {
	ScanInstallRoot(ctx context.Context, root string) ([]InstalledGameRecord, error)
}

// FSScanner treats each first-level directory under the install root as one
// installed game and picks the most plausible executable inside it.
type FSScanner struct {
	logger zerolog.Logger
}

// NewFSScanner creates a filesystem scanner.
func NewFSScanner(logger zerolog.Logger) *FSScanner {
	return &FSScanner{
		logger: logger.With().Str("component", "library-scanner").Logger(),
	}
}

// ScanInstallRoot walks the install root and returns one record per game
// directory. A missing root is an empty library, not an error.
func (s *FSScanner) ScanInstallRoot(ctx context.Context, root string) ([]InstalledGameRecord, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read install root: %w", err)
	}

	var games []InstalledGameRecord
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		gameDir := filepath.Join(root, entry.Name())
		executable, size := inspectGameDir(gameDir)

		games = append(games, InstalledGameRecord{
			Name:       entry.Name(),
			InstallDir: gameDir,
			Executable: executable,
			Platform:   "windows",
			SizeBytes:  size,
		})
	}

	s.logger.Debug().Str("root", root).Int("games", len(games)).Msg("Install root scanned")
	return games, nil
}

// launcherNoise are executables that are never the game itself.
var launcherNoise = []string{"unins", "setup", "install", "redist", "vcredist", "dxsetup", "crashreport"}

// inspectGameDir finds the likeliest game executable and totals the
// directory size.
func inspectGameDir(dir string) (string, int64) {
	var best string
	var bestSize int64
	var total int64

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()

		base := strings.ToLower(d.Name())
		if !strings.HasSuffix(base, ".exe") {
			return nil
		}
		for _, noise := range launcherNoise {
			if strings.Contains(base, noise) {
				return nil
			}
		}
		// Biggest surviving executable wins; game binaries dwarf tools.
		if info.Size() > bestSize {
			best = path
			bestSize = info.Size()
		}
		return nil
	})

	return best, total
}
