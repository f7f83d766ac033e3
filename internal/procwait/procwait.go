// Package procwait launches external executables and waits for them to
// finish by watching the OS process list.
package procwait

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gamedock/gamedock/internal/poll"
)

// ErrWaitTimeout means the watched process was still running when the
// timeout elapsed. Soft failure: the process keeps running, only the wait
// gives up.
var ErrWaitTimeout = errors.New("procwait: process still running after timeout")

// Lister enumerates running process names.
type Lister interface {
	ListProcessNames(ctx context.Context) ([]string, error)
}

// Config tunes the coordinator.
type Config struct {
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

// Coordinator launches installers and tracks their lifetime. Launched
// processes are detached: installers routinely re-exec themselves with
// elevation, so the spawned PID is useless and presence in the process list
// is the only reliable signal.
type Coordinator struct {
	lister Lister
	config Config
	logger zerolog.Logger
}

// NewCoordinator creates a coordinator.
func NewCoordinator(lister Lister, config Config, logger zerolog.Logger) *Coordinator {
	if lister == nil {
		lister = ProcLister{}
	}
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = time.Hour
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	return &Coordinator{
		lister: lister,
		config: config,
		logger: logger.With().Str("component", "procwait").Logger(),
	}
}

// Launch starts the executable fire-and-forget.
func (c *Coordinator) Launch(executablePath string) error {
	cmd := exec.Command(executablePath)
	cmd.Dir = filepath.Dir(executablePath)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch %s: %w", executablePath, err)
	}

	// Reap the child when it exits; the coordinator itself tracks the
	// process by name, not by this handle.
	go func() { _ = cmd.Wait() }()

	c.logger.Info().Str("executable", executablePath).Msg("Launched executable")
	return nil
}

// WaitForExit blocks until no running process name contains the
// executable's basename, polling the process list. Matching is a
// case-insensitive substring check, so two processes sharing a name
// fragment can mask each other's exit; accepted limitation.
func (c *Coordinator) WaitForExit(ctx context.Context, executableName string) error {
	// Installer paths can be Windows style even on a POSIX host (extracted
	// payloads, mounted images), so strip at either separator by hand.
	base := executableName
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	needle := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
	maxAttempts := int(c.config.WaitTimeout/c.config.PollInterval) + 1

	c.logger.Info().Str("process", needle).Dur("timeout", c.config.WaitTimeout).Msg("Waiting for process exit")

	err := poll.Until(ctx, poll.Config{
		Interval:    c.config.PollInterval,
		MaxAttempts: maxAttempts,
	}, func(ctx context.Context) (bool, error) {
		names, err := c.lister.ListProcessNames(ctx)
		if err != nil {
			// A flaky listing is not proof the process exited.
			c.logger.Debug().Err(err).Msg("Process listing failed, retrying")
			return false, nil
		}
		for _, name := range names {
			if strings.Contains(strings.ToLower(name), needle) {
				return false, nil
			}
		}
		return true, nil
	})
	if errors.Is(err, poll.ErrTimeout) {
		return ErrWaitTimeout
	}
	if err != nil {
		return err
	}

	c.logger.Info().Str("process", needle).Msg("Process exited")
	return nil
}

// ProcLister reads process names from /proc.
type ProcLister struct{}

// ListProcessNames returns the comm value of every running process.
func (ProcLister) ListProcessNames(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, fmt.Errorf("failed to read /proc: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(entry.Name()); err != nil {
			continue
		}
		comm, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "comm"))
		if err != nil {
			// Process exited between ReadDir and ReadFile.
			continue
		}
		names = append(names, strings.TrimSpace(string(comm)))
	}
	return names, nil
}
