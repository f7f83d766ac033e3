// Package metadata resolves raw user queries to canonical game titles via an
// external lookup API. Resolution is best-effort: every caller must tolerate
// an empty answer and fall back to the raw query.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
)

// ErrNotFound means the lookup API knows no game by that name.
var ErrNotFound = errors.New("metadata: title not found")

// Client queries the metadata lookup API with retries and caches answers
// for the lifetime of the process. Canonical titles never change, so the
// cache has no expiry.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger

	mu    sync.RWMutex
	cache map[string]string // lowercased raw title -> canonical title
}

// NewClient creates a metadata client. An empty apiKey disables lookups;
// Resolve then always returns ErrNotFound and callers use the raw title.
func NewClient(baseURL, apiKey string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger.With().Str("component", "metadata").Logger(),
		cache:  make(map[string]string),
	}
}

type lookupResponse struct {
	Results []struct {
		Name string `json:"name"`
	} `json:"results"`
}

// Resolve returns the canonical title for a raw query.
func (c *Client) Resolve(ctx context.Context, rawTitle string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(rawTitle))
	if key == "" {
		return "", ErrNotFound
	}
	if c.apiKey == "" {
		return "", ErrNotFound
	}

	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var canonical string
	err := retry.Do(
		func() error {
			name, err := c.lookup(ctx, rawTitle)
			if err != nil {
				return err
			}
			canonical = name
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrNotFound)
		}),
	)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache[key] = canonical
	c.mu.Unlock()

	c.logger.Debug().Str("raw", rawTitle).Str("canonical", canonical).Msg("Resolved canonical title")
	return canonical, nil
}

func (c *Client) lookup(ctx context.Context, rawTitle string) (string, error) {
	endpoint := fmt.Sprintf("%s/games?search=%s&key=%s&page_size=1",
		c.baseURL, url.QueryEscape(rawTitle), url.QueryEscape(c.apiKey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("metadata lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata lookup failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var parsed lookupResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Results) == 0 || parsed.Results[0].Name == "" {
		return "", ErrNotFound
	}
	return parsed.Results[0].Name, nil
}
