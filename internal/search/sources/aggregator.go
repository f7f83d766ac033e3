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

// AggregatorSource searches a torrent aggregator that lists releases from
// many groups in a tabular layout. Untrusted: its results go through full
// relevance filtering. Used only when the trusted sites come up empty.
type AggregatorSource struct {
	name    string
	baseURL string
	fetcher scraper.Fetcher
	logger  zerolog.Logger
}

// NewAggregatorSource creates the adapter for a tracker-style site.
func NewAggregatorSource(name, baseURL string, fetcher scraper.Fetcher, logger zerolog.Logger) *AggregatorSource {
	return &AggregatorSource{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: fetcher,
		logger:  logger.With().Str("source", name).Logger(),
	}
}

func (s *AggregatorSource) Name() string  { return s.name }
func (s *AggregatorSource) Trusted() bool { return false }

// Search runs the aggregator's search page and parses the result table.
// Detail pages are not fetched here; magnets found inline are used directly
// and rows without one keep the detail URL for later resolution.
func (s *AggregatorSource) Search(ctx context.Context, query types.SearchQuery) ([]types.SearchCandidate, error) {
	searchURL := fmt.Sprintf("%s/search?q=%s", s.baseURL, url.QueryEscape(query.Title()))

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
	doc.Find("table tbody tr").Each(func(_ int, row *goquery.Selection) {
		c := s.parseRow(row)
		if c == nil {
			return
		}
		candidates = append(candidates, *c)
	})

	s.logger.Debug().Int("count", len(candidates)).Msg("Aggregator search parsed")
	return candidates, nil
}

func (s *AggregatorSource) parseRow(row *goquery.Selection) *types.SearchCandidate {
	titleLink := row.Find("td a[href*='/torrent/'], td.name a").First()
	title := strings.TrimSpace(titleLink.Text())
	if title == "" {
		return nil
	}

	detailURL, _ := titleLink.Attr("href")
	if detailURL != "" && !strings.HasPrefix(detailURL, "http") {
		detailURL = s.baseURL + "/" + strings.TrimLeft(detailURL, "/")
	}

	magnet := ""
	if href, ok := row.Find("a[href^='magnet:']").First().Attr("href"); ok {
		magnet = href
	}
	if magnet == "" && detailURL == "" {
		return nil
	}

	candidate := &types.SearchCandidate{
		Title:      title,
		DetailURL:  detailURL,
		MagnetLink: magnet,
		Seeders:    parseCount(row.Find("td.seeds, td.coll-2").First().Text()),
		Leechers:   parseCount(row.Find("td.leeches, td.coll-3").First().Text()),
		SizeBytes:  parseSize(row.Find("td.size, td.coll-4").First().Text()),
		SourceName: s.name,
	}
	candidate.Repacker = types.DetectRepacker(title)
	return candidate
}
