// Package extract drives the external archive tool and classifies its
// failures.
package extract

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// ErrCorrupt means the archive failed CRC or header checks.
	ErrCorrupt = errors.New("extract: archive is corrupt")
	// ErrPasswordProtected means the archive needs a password.
	ErrPasswordProtected = errors.New("extract: archive is password protected")
	// ErrUnsupportedFormat means the tool does not recognize the archive.
	ErrUnsupportedFormat = errors.New("extract: unsupported archive format")
)

// archiveExtensions are formats handed to the external tool.
var archiveExtensions = map[string]bool{
	".rar": true,
	".zip": true,
	".7z":  true,
	".001": true,
}

// ProgressFunc receives extraction progress as a percentage.
type ProgressFunc func(percent int)

// Extractor shells out to 7-Zip style tools.
type Extractor struct {
	toolPath string
	logger   zerolog.Logger
}

// NewExtractor creates an extractor using the given tool binary.
func NewExtractor(toolPath string, logger zerolog.Logger) *Extractor {
	if toolPath == "" {
		toolPath = "7z"
	}
	return &Extractor{
		toolPath: toolPath,
		logger:   logger.With().Str("component", "extract").Logger(),
	}
}

var (
	percentRegex    = regexp.MustCompile(`(\d{1,3})%`)
	partVolumeRegex = regexp.MustCompile(`\.part\d+\.rar$`)
)

// Extract unpacks archivePath into outDir. Tool failures are classified into
// the corrupt / password / unsupported taxonomy where the output allows it.
func (e *Extractor) Extract(ctx context.Context, archivePath, outDir string, progress ProgressFunc) error {
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// -aoa overwrites without prompting; -bsp1 puts progress on stdout;
	// -p with an empty password stops the tool from blocking on stdin
	// when the archive is encrypted.
	cmd := exec.CommandContext(ctx, e.toolPath,
		"x", archivePath,
		"-o"+outDir,
		"-aoa", "-y", "-bsp1", "-p",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open tool stdout: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", e.toolPath, err)
	}

	var tail []string
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()
		tail = append(tail, line)
		if len(tail) > 20 {
			tail = tail[1:]
		}
		if progress != nil {
			if m := percentRegex.FindStringSubmatch(line); m != nil {
				if pct, err := strconv.Atoi(m[1]); err == nil && pct <= 100 {
					progress(pct)
				}
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		combined := strings.Join(tail, "\n") + "\n" + stderr.String()
		classified := classifyFailure(combined)
		e.logger.Error().Err(err).Str("archive", archivePath).Msg("Extraction failed")
		if classified != nil {
			return classified
		}
		return fmt.Errorf("extraction failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	if progress != nil {
		progress(100)
	}
	e.logger.Info().Str("archive", archivePath).Str("outDir", outDir).Msg("Extraction finished")
	return nil
}

// classifyFailure maps tool output onto the error taxonomy.
func classifyFailure(output string) error {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "wrong password") || strings.Contains(lower, "enter password"):
		return ErrPasswordProtected
	case strings.Contains(lower, "crc failed") ||
		strings.Contains(lower, "data error") ||
		strings.Contains(lower, "unexpected end of"):
		return ErrCorrupt
	case strings.Contains(lower, "cannot open the file as archive") ||
		strings.Contains(lower, "unsupported method"):
		return ErrUnsupportedFormat
	default:
		return nil
	}
}

// IsArchive reports whether a file looks like an archive the tool handles.
func IsArchive(path string) bool {
	return archiveExtensions[strings.ToLower(filepath.Ext(path))]
}

// FindNestedArchive looks for an archive inside an extraction output
// directory. Repacks sometimes ship the real payload one level down.
func FindNestedArchive(dir string) (string, error) {
	return findFirst(dir, func(path string) bool {
		lower := strings.ToLower(path)
		// Split volumes beyond the first are continuations, not entry points.
		if partVolumeRegex.MatchString(lower) {
			return strings.HasSuffix(lower, ".part1.rar")
		}
		return IsArchive(lower)
	})
}

// FindISO looks for a disc image inside an extraction output directory.
func FindISO(dir string) (string, error) {
	return findFirst(dir, func(path string) bool {
		return strings.EqualFold(filepath.Ext(path), ".iso")
	})
}

// FindInstaller looks for a setup executable inside a directory tree.
func FindInstaller(dir string) (string, error) {
	var fallback string
	found, err := findFirst(dir, func(path string) bool {
		base := strings.ToLower(filepath.Base(path))
		if !strings.HasSuffix(base, ".exe") {
			return false
		}
		if strings.Contains(base, "setup") || strings.Contains(base, "install") {
			return true
		}
		if fallback == "" {
			fallback = path
		}
		return false
	})
	if err != nil {
		return "", err
	}
	if found != "" {
		return found, nil
	}
	return fallback, nil
}

func findFirst(dir string, match func(path string) bool) (string, error) {
	var found string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if match(path) {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return found, nil
}
