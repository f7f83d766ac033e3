// Package debrid resolves magnet links and hoster links to plain HTTPS
// download URLs through a debrid service account.
package debrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"

	"github.com/gamedock/gamedock/internal/poll"
)

var (
	// ErrNotConfigured means no API key is set.
	ErrNotConfigured = errors.New("debrid: API key not configured")
	// ErrResolveTimeout means the service did not finish caching the
	// torrent within the polling budget.
	ErrResolveTimeout = errors.New("debrid: magnet resolution timed out")
	// ErrNoLinks means the torrent resolved but produced no files.
	ErrNoLinks = errors.New("debrid: torrent produced no links")
)

// Config tunes the client.
type Config struct {
	APIKey       string
	BaseURL      string
	PollAttempts int
	PollInterval time.Duration
}

// Client talks to the debrid HTTP API.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a debrid client.
func NewClient(config Config, logger zerolog.Logger) *Client {
	if config.PollAttempts <= 0 {
		config.PollAttempts = 30
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With().Str("component", "debrid").Logger(),
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.config.APIKey != ""
}

type addMagnetResponse struct {
	ID string `json:"id"`
}

type torrentInfoResponse struct {
	Status   string   `json:"status"`
	Progress float64  `json:"progress"`
	Links    []string `json:"links"`
	Hash     string   `json:"hash"`
}

type unrestrictResponse struct {
	Download string `json:"download"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

// ResolvedTorrent is the outcome of magnet resolution.
type ResolvedTorrent struct {
	Links []string
	Hash  string
}

// UnrestrictedLink is a plain HTTPS download produced from a restricted link.
type UnrestrictedLink struct {
	URL      string
	Filename string
	Size     int64
}

// ResolveMagnet submits a magnet and polls until the service has it cached,
// returning the hoster links plus the torrent's info hash for reputation
// checks.
func (c *Client) ResolveMagnet(ctx context.Context, magnet string) (*ResolvedTorrent, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var added addMagnetResponse
	if err := c.postForm(ctx, "/torrents/addMagnet", url.Values{"magnet": {magnet}}, &added); err != nil {
		return nil, fmt.Errorf("failed to add magnet: %w", err)
	}
	if err := c.postForm(ctx, "/torrents/selectFiles/"+added.ID, url.Values{"files": {"all"}}, nil); err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}

	var info torrentInfoResponse
	err := poll.Until(ctx, poll.Config{
		Interval:    c.config.PollInterval,
		MaxAttempts: c.config.PollAttempts,
	}, func(ctx context.Context) (bool, error) {
		if err := c.get(ctx, "/torrents/info/"+added.ID, &info); err != nil {
			return false, err
		}
		switch info.Status {
		case "downloaded":
			return true, nil
		case "error", "magnet_error", "virus", "dead":
			return false, fmt.Errorf("debrid: torrent entered status %q", info.Status)
		default:
			c.logger.Debug().
				Str("torrentId", added.ID).
				Str("status", info.Status).
				Float64("progress", info.Progress).
				Msg("Waiting for torrent cache")
			return false, nil
		}
	})
	if err != nil {
		if errors.Is(err, poll.ErrTimeout) {
			return nil, ErrResolveTimeout
		}
		return nil, err
	}

	if len(info.Links) == 0 {
		return nil, ErrNoLinks
	}
	return &ResolvedTorrent{Links: info.Links, Hash: info.Hash}, nil
}

// UnrestrictLink converts a hoster link to a direct download URL.
func (c *Client) UnrestrictLink(ctx context.Context, link string) (*UnrestrictedLink, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var resp unrestrictResponse
	err := retry.Do(
		func() error {
			return c.postForm(ctx, "/unrestrict/link", url.Values{"link": {link}}, &resp)
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to unrestrict link: %w", err)
	}
	if resp.Download == "" {
		return nil, errors.New("debrid: unrestrict returned no download URL")
	}
	return &UnrestrictedLink{
		URL:      resp.Download,
		Filename: resp.Filename,
		Size:     resp.Filesize,
	}, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.config.BaseURL, "/")+path, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(c.config.BaseURL, "/")+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("debrid request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("debrid request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode debrid response: %w", err)
	}
	return nil
}
