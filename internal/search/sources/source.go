// Package sources implements the per-site search adapters. Each adapter
// turns rendered HTML from one source into raw candidate lists; relevance
// decisions belong to the ranker, not the adapters.
package sources

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/gamedock/gamedock/internal/search/types"
)

// Source is the uniform adapter contract. Adapters return raw candidates;
// they never filter by relevance.
type Source interface {
	// Name identifies the source in logs and results.
	Name() string
	// Trusted reports whether results from this source are structurally
	// pre-validated (direct-URL matched) and exempt from relevance
	// filtering.
	Trusted() bool
	// Search returns raw candidates for the query.
	Search(ctx context.Context, query types.SearchQuery) ([]types.SearchCandidate, error)
}

var (
	magnetRegex    = regexp.MustCompile(`magnet:\?xt=urn:btih:[A-Za-z0-9]+[^"'\s<>]*`)
	slugCleanRegex = regexp.MustCompile(`[^a-z0-9]+`)
)

// slugify converts a title to the URL slug convention used by the direct
// repack sites ("Hollow Knight" -> "hollow-knight").
func slugify(title string) string {
	slug := strings.ToLower(title)
	slug = strings.ReplaceAll(slug, "'", "")
	slug = slugCleanRegex.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// firstMagnet extracts the first magnet link from an HTML blob.
func firstMagnet(html string) string {
	return magnetRegex.FindString(html)
}

// parseSize parses human-readable sizes like "42.3 GB" into bytes.
// Returns 0 for anything unparseable.
func parseSize(text string) int64 {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) < 2 {
		return 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(fields[0], ",", ""), 64)
	if err != nil {
		return 0
	}

	var mult float64
	switch strings.ToUpper(strings.TrimSuffix(fields[1], "s")) {
	case "B":
		mult = 1
	case "KB", "KIB":
		mult = 1 << 10
	case "MB", "MIB":
		mult = 1 << 20
	case "GB", "GIB":
		mult = 1 << 30
	case "TB", "TIB":
		mult = 1 << 40
	default:
		return 0
	}
	return int64(value * mult)
}

// parseCount parses seeder/leecher counts, tolerating thousands separators.
func parseCount(text string) int {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0
	}
	return n
}
