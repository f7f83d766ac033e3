// Package reputation checks torrent info hashes against a malware
// intelligence API. The check is best-effort: no API key, a missing record,
// or an API outage all read as "unknown", which callers treat as clean.
package reputation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
)

var errUnknownHash = errors.New("reputation: hash not in database")

// Verdict is the outcome of a hash lookup.
type Verdict struct {
	Known      bool `json:"known"`
	Malicious  bool `json:"malicious"`
	Detections int  `json:"detections"`
}

// Client queries the reputation API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a reputation client. An empty apiKey disables lookups.
func NewClient(baseURL, apiKey string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger.With().Str("component", "reputation").Logger(),
	}
}

type fileReport struct {
	Data struct {
		Attributes struct {
			LastAnalysisStats struct {
				Malicious  int `json:"malicious"`
				Suspicious int `json:"suspicious"`
			} `json:"last_analysis_stats"`
		} `json:"attributes"`
	} `json:"data"`
}

// CheckHash looks up a torrent info hash. Errors are logged and swallowed;
// the zero Verdict means "unknown, proceed".
func (c *Client) CheckHash(ctx context.Context, hash string) Verdict {
	if c.apiKey == "" || hash == "" {
		return Verdict{}
	}

	var report fileReport
	err := retry.Do(
		func() error {
			return c.lookup(ctx, hash, &report)
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(time.Second),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, errUnknownHash)
		}),
	)
	if errors.Is(err, errUnknownHash) {
		return Verdict{}
	}
	if err != nil {
		c.logger.Debug().Err(err).Str("hash", hash).Msg("Reputation lookup failed, treating as unknown")
		return Verdict{}
	}

	detections := report.Data.Attributes.LastAnalysisStats.Malicious +
		report.Data.Attributes.LastAnalysisStats.Suspicious
	verdict := Verdict{
		Known:      true,
		Malicious:  report.Data.Attributes.LastAnalysisStats.Malicious > 0,
		Detections: detections,
	}
	if verdict.Malicious {
		c.logger.Warn().Str("hash", hash).Int("detections", detections).Msg("Hash flagged as malicious")
	}
	return verdict
}

func (c *Client) lookup(ctx context.Context, hash string, out *fileReport) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/"+hash, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("x-apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reputation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errUnknownHash
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("reputation request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode reputation response: %w", err)
	}
	return nil
}
