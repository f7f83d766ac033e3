// Package download fetches large files to disk with progress reporting and
// cancellation.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrDownloadFailed wraps transport and disk errors from a download.
var ErrDownloadFailed = errors.New("download failed")

// ProgressFunc receives byte progress. totalBytes is -1 when the server did
// not send a Content-Length.
type ProgressFunc func(bytesDone, totalBytes int64)

// Downloader fetches files over HTTP.
type Downloader struct {
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewDownloader creates a downloader. No overall timeout is set on the
// client: multi-gigabyte fetches take as long as they take, and cancellation
// comes from the context.
func NewDownloader(logger zerolog.Logger) *Downloader {
	return &Downloader{
		httpClient: &http.Client{},
		logger:     logger.With().Str("component", "download").Logger(),
	}
}

// Download fetches fileURL into destDir and returns the final file path.
// The file is written to a .partial name and renamed on completion, so a
// crash or cancellation never leaves a complete-looking file behind.
func (d *Downloader) Download(ctx context.Context, fileURL, destDir string, progress ProgressFunc) (string, error) {
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return "", fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}

	filename := fileNameFor(resp, fileURL)
	finalPath := filepath.Join(destDir, filename)
	partialPath := finalPath + ".partial"

	out, err := os.Create(partialPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	d.logger.Info().Str("file", filename).Int64("size", resp.ContentLength).Msg("Download started")

	written, copyErr := copyWithProgress(ctx, out, resp.Body, resp.ContentLength, progress)
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		os.Remove(partialPath)
		if errors.Is(copyErr, context.Canceled) {
			return "", context.Canceled
		}
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, copyErr)
	}

	if err := os.Rename(partialPath, finalPath); err != nil {
		os.Remove(partialPath)
		return "", fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}

	d.logger.Info().Str("file", filename).Int64("bytes", written).Msg("Download finished")
	return finalPath, nil
}

// copyWithProgress copies body to out, invoking progress at most twice a
// second, and checks for cancellation between chunks.
func copyWithProgress(ctx context.Context, out io.Writer, body io.Reader, total int64, progress ProgressFunc) (int64, error) {
	buf := make([]byte, 256<<10)
	var written int64
	lastReport := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return written, writeErr
			}
			written += int64(n)
			if progress != nil && time.Since(lastReport) >= 500*time.Millisecond {
				progress(written, total)
				lastReport = time.Now()
			}
		}
		if readErr == io.EOF {
			if progress != nil {
				progress(written, total)
			}
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// fileNameFor derives a local filename from the Content-Disposition header
// or the URL path.
func fileNameFor(resp *http.Response, fileURL string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := filepath.Base(params["filename"]); name != "" && name != "." && name != "/" {
				return name
			}
		}
	}
	if u, err := url.Parse(fileURL); err == nil {
		if name := filepath.Base(u.Path); name != "" && name != "." && name != "/" {
			return name
		}
	}
	return "download-" + strings.ReplaceAll(time.Now().Format("20060102-150405"), ":", "")
}
