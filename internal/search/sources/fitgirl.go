package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/gamedock/gamedock/internal/scraper"
	"github.com/gamedock/gamedock/internal/search/relevance"
	"github.com/gamedock/gamedock/internal/search/types"
)

// FitGirlSource searches the FitGirl repacks site. It tries the canonical
// release URL first: the site publishes one page per game at a predictable
// slug, so a page that exists and yields a magnet is a confirmed hit without
// any title heuristics. Site search is the fallback for titles whose slug
// deviates from the naming convention.
type FitGirlSource struct {
	baseURL string
	fetcher scraper.Fetcher
	weights relevance.Weights
	logger  zerolog.Logger
}

// NewFitGirlSource creates the adapter. baseURL has no trailing slash.
func NewFitGirlSource(baseURL string, fetcher scraper.Fetcher, logger zerolog.Logger) *FitGirlSource {
	if baseURL == "" {
		baseURL = "https://fitgirl-repacks.site"
	}
	return &FitGirlSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: fetcher,
		weights: relevance.DefaultWeights(),
		logger:  logger.With().Str("source", "fitgirl").Logger(),
	}
}

func (s *FitGirlSource) Name() string  { return "fitgirl" }
func (s *FitGirlSource) Trusted() bool { return true }

// Search probes the canonical URL, then falls back to site search.
func (s *FitGirlSource) Search(ctx context.Context, query types.SearchQuery) ([]types.SearchCandidate, error) {
	if direct := s.probeDirectURL(ctx, query.Title()); direct != nil {
		return []types.SearchCandidate{*direct}, nil
	}
	return s.siteSearch(ctx, query.Title())
}

// probeDirectURL fetches the slug-derived release page. A hit is scored at
// the direct-hit level so the ranker never second-guesses it.
func (s *FitGirlSource) probeDirectURL(ctx context.Context, title string) *types.SearchCandidate {
	slug := slugify(title)
	if slug == "" {
		return nil
	}
	pageURL := fmt.Sprintf("%s/%s/", s.baseURL, slug)

	html, err := s.fetcher.FetchRenderedHTML(ctx, pageURL)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", pageURL).Msg("Direct URL probe failed")
		return nil
	}
	if html == "" {
		return nil
	}

	magnet := firstMagnet(html)
	if magnet == "" {
		return nil
	}

	candidate := types.SearchCandidate{
		Title:          s.pageTitle(html, title),
		DetailURL:      pageURL,
		MagnetLink:     magnet,
		SourceName:     s.Name(),
		Repacker:       types.RepackerFitGirl,
		RelevanceScore: s.weights.ExactMatchScore,
	}
	if size := s.pageSize(html); size > 0 {
		candidate.SizeBytes = size
	}
	s.logger.Debug().Str("url", pageURL).Msg("Direct URL hit")
	return &candidate
}

// siteSearch runs the on-site search and parses the result list.
func (s *FitGirlSource) siteSearch(ctx context.Context, title string) ([]types.SearchCandidate, error) {
	searchURL := fmt.Sprintf("%s/?s=%s", s.baseURL, url.QueryEscape(title))

	html, err := s.fetcher.FetchRenderedHTML(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("fitgirl search failed: %w", err)
	}
	if html == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse fitgirl results: %w", err)
	}

	var candidates []types.SearchCandidate
	doc.Find("article").Each(func(_ int, article *goquery.Selection) {
		titleLink := article.Find("h1.entry-title a, h2.entry-title a").First()
		entryTitle := strings.TrimSpace(titleLink.Text())
		if entryTitle == "" {
			return
		}
		detailURL, _ := titleLink.Attr("href")

		magnet := ""
		article.Find("a[href^='magnet:']").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			magnet, _ = a.Attr("href")
			return false
		})
		if magnet == "" {
			return
		}

		candidates = append(candidates, types.SearchCandidate{
			Title:      entryTitle,
			DetailURL:  detailURL,
			MagnetLink: magnet,
			SourceName: s.Name(),
			Repacker:   types.RepackerFitGirl,
		})
	})

	s.logger.Debug().Int("count", len(candidates)).Msg("Site search parsed")
	return candidates, nil
}

// pageTitle extracts the release page heading, falling back to the query
// title when the markup is unexpected.
func (s *FitGirlSource) pageTitle(html, fallback string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fallback
	}
	heading := strings.TrimSpace(doc.Find("h1.entry-title").First().Text())
	if heading == "" {
		return fallback
	}
	return heading
}

// pageSize extracts the repack size line from a release page, if present.
func (s *FitGirlSource) pageSize(html string) int64 {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}
	var size int64
	doc.Find("li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		text := li.Text()
		if idx := strings.Index(strings.ToLower(text), "repack size"); idx >= 0 {
			size = parseSize(strings.TrimLeft(text[idx+len("repack size"):], ": "))
			return false
		}
		return true
	})
	return size
}
