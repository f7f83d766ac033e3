// Package scraper abstracts rendered-page fetching behind a small interface.
// Ranking and disambiguation must not depend on how HTML was obtained, only
// on receiving a string; a headless-browser implementation can be swapped in
// by the desktop shell without touching the search core.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrTimeout means the page did not finish loading in time.
	ErrTimeout = errors.New("scraper: page load timed out")
	// ErrBlocked means the source served an anti-bot interstitial instead
	// of content.
	ErrBlocked = errors.New("scraper: request blocked by source")
)

// Fetcher fetches the rendered HTML of a page.
type Fetcher interface {
	FetchRenderedHTML(ctx context.Context, url string) (string, error)
}

// HTTPFetcher is the plain net/http implementation used when no headless
// browser is wired in. Sufficient for sources that serve static markup.
type HTTPFetcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPFetcher creates a fetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// FetchRenderedHTML fetches a page and returns its body as a string.
func (f *HTTPFetcher) FetchRenderedHTML(ctx context.Context, url string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) gamedock")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() == context.DeadlineExceeded {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return "", ErrBlocked
	case resp.StatusCode == http.StatusNotFound:
		return "", nil
	case resp.StatusCode >= 400:
		return "", fmt.Errorf("fetch failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}

	html := string(body)
	if looksBlocked(html) {
		return "", ErrBlocked
	}
	return html, nil
}

// looksBlocked sniffs common anti-bot interstitial markers.
func looksBlocked(html string) bool {
	lower := strings.ToLower(html)
	return strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-challenge") ||
		strings.Contains(lower, "just a moment...")
}
