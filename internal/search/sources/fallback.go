package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/gamedock/gamedock/internal/scraper"
	"github.com/gamedock/gamedock/internal/search/types"
)

// FallbackSource is the last-resort generic torrent search. Its listings
// are the noisiest of the cascade, so it runs only when both the trusted
// sites and the aggregator produced nothing.
type FallbackSource struct {
	name    string
	baseURL string
	fetcher scraper.Fetcher
	logger  zerolog.Logger
}

// NewFallbackSource creates the adapter for a generic search site.
func NewFallbackSource(name, baseURL string, fetcher scraper.Fetcher, logger zerolog.Logger) *FallbackSource {
	return &FallbackSource{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: fetcher,
		logger:  logger.With().Str("source", name).Logger(),
	}
}

func (s *FallbackSource) Name() string  { return s.name }
func (s *FallbackSource) Trusted() bool { return false }

// Search queries the site and extracts whatever magnet-bearing entries it
// can find. The markup varies wildly across mirrors, so parsing is loose:
// any list item or row that pairs a text label with a magnet link counts.
func (s *FallbackSource) Search(ctx context.Context, query types.SearchQuery) ([]types.SearchCandidate, error) {
	searchURL := fmt.Sprintf("%s/search/%s/", s.baseURL, url.PathEscape(query.Title()))

	html, err := s.fetcher.FetchRenderedHTML(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("%s search failed: %w", s.name, err)
	}
	if html == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s results: %w", s.name, err)
	}

	var candidates []types.SearchCandidate
	doc.Find("li, tr").Each(func(_ int, entry *goquery.Selection) {
		magnet, ok := entry.Find("a[href^='magnet:']").First().Attr("href")
		if !ok {
			return
		}

		title := strings.TrimSpace(entry.Find("a[href]:not([href^='magnet:'])").First().Text())
		if title == "" {
			title = titleFromMagnet(magnet)
		}
		if title == "" {
			return
		}

		candidates = append(candidates, types.SearchCandidate{
			Title:      title,
			MagnetLink: magnet,
			Seeders:    parseCount(entry.Find(".seeders, td:nth-child(5)").First().Text()),
			SourceName: s.name,
			Repacker:   types.DetectRepacker(title),
		})
	})

	s.logger.Debug().Int("count", len(candidates)).Msg("Fallback search parsed")
	return candidates, nil
}

// titleFromMagnet recovers a display name from the magnet's dn parameter.
func titleFromMagnet(magnet string) string {
	u, err := url.Parse(magnet)
	if err != nil {
		return ""
	}
	dn := u.Query().Get("dn")
	return strings.TrimSpace(strings.ReplaceAll(dn, ".", " "))
}
