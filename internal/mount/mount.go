// Package mount attaches and detaches disc images through OS tooling.
package mount

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// ErrMountBusy means the image could not be detached because something still
// holds it open, typically a running installer.
var ErrMountBusy = errors.New("mount: image is busy")

// Mounter attaches ISO images and reports their mount point.
type Mounter interface {
	Mount(ctx context.Context, isoPath string) (string, error)
	Unmount(ctx context.Context, mountPoint string) error
}

// LoopMounter mounts images via the system mount command with a loop device.
type LoopMounter struct {
	mountRoot string
	logger    zerolog.Logger
}

// NewLoopMounter creates a mounter placing mount points under mountRoot.
func NewLoopMounter(mountRoot string, logger zerolog.Logger) *LoopMounter {
	if mountRoot == "" {
		mountRoot = filepath.Join(os.TempDir(), "gamedock-mounts")
	}
	return &LoopMounter{
		mountRoot: mountRoot,
		logger:    logger.With().Str("component", "mount").Logger(),
	}
}

// Mount attaches the image and returns its mount point.
func (m *LoopMounter) Mount(ctx context.Context, isoPath string) (string, error) {
	name := strings.TrimSuffix(filepath.Base(isoPath), filepath.Ext(isoPath))
	mountPoint := filepath.Join(m.mountRoot, name)
	if err := os.MkdirAll(mountPoint, 0o750); err != nil {
		return "", fmt.Errorf("failed to create mount point: %w", err)
	}

	cmd := exec.CommandContext(ctx, "mount", "-o", "loop,ro", isoPath, mountPoint)
	if out, err := cmd.CombinedOutput(); err != nil {
		os.Remove(mountPoint)
		return "", fmt.Errorf("failed to mount %s: %w: %s", isoPath, err, strings.TrimSpace(string(out)))
	}

	m.logger.Info().Str("iso", isoPath).Str("mountPoint", mountPoint).Msg("Image mounted")
	return mountPoint, nil
}

// Unmount detaches the image. A busy mount returns ErrMountBusy so callers
// can schedule a later retry instead of failing outright.
func (m *LoopMounter) Unmount(ctx context.Context, mountPoint string) error {
	cmd := exec.CommandContext(ctx, "umount", mountPoint)
	if out, err := cmd.CombinedOutput(); err != nil {
		if strings.Contains(strings.ToLower(string(out)), "busy") {
			return ErrMountBusy
		}
		return fmt.Errorf("failed to unmount %s: %w: %s", mountPoint, err, strings.TrimSpace(string(out)))
	}

	os.Remove(mountPoint)
	m.logger.Info().Str("mountPoint", mountPoint).Msg("Image unmounted")
	return nil
}
