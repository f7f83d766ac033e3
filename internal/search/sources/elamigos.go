package sources

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/gamedock/gamedock/internal/scraper"
	"github.com/gamedock/gamedock/internal/search/relevance"
	"github.com/gamedock/gamedock/internal/search/types"
)

// ElAmigosSource searches the ElAmigos release site. Like FitGirl the site
// keeps one page per game at a slug-derived URL, so the canonical probe
// applies; release pages carry hoster links rather than magnets.
type ElAmigosSource struct {
	baseURL string
	fetcher scraper.Fetcher
	weights relevance.Weights
	logger  zerolog.Logger
}

// NewElAmigosSource creates the adapter. baseURL has no trailing slash.
func NewElAmigosSource(baseURL string, fetcher scraper.Fetcher, logger zerolog.Logger) *ElAmigosSource {
	if baseURL == "" {
		baseURL = "https://elamigos.site"
	}
	return &ElAmigosSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		fetcher: fetcher,
		weights: relevance.DefaultWeights(),
		logger:  logger.With().Str("source", "elamigos").Logger(),
	}
}

func (s *ElAmigosSource) Name() string  { return "elamigos" }
func (s *ElAmigosSource) Trusted() bool { return true }

// Search probes the canonical release URL, then scans the site index.
func (s *ElAmigosSource) Search(ctx context.Context, query types.SearchQuery) ([]types.SearchCandidate, error) {
	if direct := s.probeDirectURL(ctx, query.Title()); direct != nil {
		return []types.SearchCandidate{*direct}, nil
	}
	return s.indexSearch(ctx, query.Title())
}

func (s *ElAmigosSource) probeDirectURL(ctx context.Context, title string) *types.SearchCandidate {
	slug := slugify(title)
	if slug == "" {
		return nil
	}
	pageURL := fmt.Sprintf("%s/%s.html", s.baseURL, slug)

	html, err := s.fetcher.FetchRenderedHTML(ctx, pageURL)
	if err != nil {
		s.logger.Debug().Err(err).Str("url", pageURL).Msg("Direct URL probe failed")
		return nil
	}
	if html == "" {
		return nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	link := s.firstDownloadLink(doc)
	if link == "" {
		return nil
	}

	heading := strings.TrimSpace(doc.Find("h1").First().Text())
	if heading == "" {
		heading = title
	}

	s.logger.Debug().Str("url", pageURL).Msg("Direct URL hit")
	return &types.SearchCandidate{
		Title:          heading,
		DetailURL:      pageURL,
		DirectLink:     link,
		SourceName:     s.Name(),
		Repacker:       types.RepackerElAmigos,
		RelevanceScore: s.weights.ExactMatchScore,
	}
}

// indexSearch scans the alphabetical release index for matching entries.
// The site has no search endpoint; the index is a flat list of links.
func (s *ElAmigosSource) indexSearch(ctx context.Context, title string) ([]types.SearchCandidate, error) {
	html, err := s.fetcher.FetchRenderedHTML(ctx, s.baseURL+"/")
	if err != nil {
		return nil, fmt.Errorf("elamigos index fetch failed: %w", err)
	}
	if html == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse elamigos index: %w", err)
	}

	needle := strings.ToLower(title)
	var candidates []types.SearchCandidate
	doc.Find("a[href$='.html']").Each(func(_ int, a *goquery.Selection) {
		text := strings.TrimSpace(a.Text())
		if text == "" || !strings.Contains(strings.ToLower(text), needle) {
			return
		}
		href, _ := a.Attr("href")
		if !strings.HasPrefix(href, "http") {
			href = s.baseURL + "/" + strings.TrimLeft(href, "/")
		}
		candidates = append(candidates, types.SearchCandidate{
			Title:      text,
			DetailURL:  href,
			DirectLink: href,
			SourceName: s.Name(),
			Repacker:   types.RepackerElAmigos,
		})
	})

	s.logger.Debug().Int("count", len(candidates)).Msg("Index search parsed")
	return candidates, nil
}

// firstDownloadLink picks the first hoster link from a release page,
// preferring the hosters that support debrid unrestriction.
func (s *ElAmigosSource) firstDownloadLink(doc *goquery.Document) string {
	preferred := []string{"1fichier", "rapidgator", "ddownload"}
	var first string
	var best string
	doc.Find("a[href^='http']").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		lower := strings.ToLower(href)
		isHoster := false
		for _, host := range preferred {
			if strings.Contains(lower, host) {
				isHoster = true
				break
			}
		}
		if !isHoster {
			return
		}
		if first == "" {
			first = href
		}
		if best == "" && strings.Contains(lower, preferred[0]) {
			best = href
		}
	})
	if best != "" {
		return best
	}
	return first
}
