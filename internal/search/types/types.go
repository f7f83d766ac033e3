// Package types defines the shared data model for repack search.
package types

import "strings"

// RepackerTag identifies the release group behind a candidate.
type RepackerTag string

const (
	RepackerFitGirl  RepackerTag = "fitgirl"
	RepackerElAmigos RepackerTag = "elamigos"
	RepackerDODI     RepackerTag = "dodi"
	RepackerEmpress  RepackerTag = "empress"
	RepackerTenoke   RepackerTag = "tenoke"
	RepackerRune     RepackerTag = "rune"
	RepackerUnknown  RepackerTag = "unknown"
)

// SearchQuery carries a user query plus the canonical metadata resolved once
// per search and reused by every source adapter.
type SearchQuery struct {
	RawTitle       string `json:"rawTitle"`
	CanonicalTitle string `json:"canonicalTitle,omitempty"`
	SequelNumber   int    `json:"sequelNumber,omitempty"`
	Subtitle       string `json:"subtitle,omitempty"`
}

// Title returns the canonical title when resolved, the raw query otherwise.
func (q SearchQuery) Title() string {
	if q.CanonicalTitle != "" {
		return q.CanonicalTitle
	}
	return q.RawTitle
}

// SearchCandidate is a single result produced by a source adapter.
// Adapters treat candidates as immutable; the ranker attaches a relevance
// score to its own copy.
type SearchCandidate struct {
	Title          string      `json:"title"`
	DetailURL      string      `json:"detailUrl"`
	MagnetLink     string      `json:"magnetLink,omitempty"`
	DirectLink     string      `json:"directLink,omitempty"`
	SizeBytes      int64       `json:"sizeBytes,omitempty"`
	Seeders        int         `json:"seeders"`
	Leechers       int         `json:"leechers"`
	SourceName     string      `json:"sourceName"`
	Repacker       RepackerTag `json:"repacker"`
	RelevanceScore float64     `json:"relevanceScore"`
}

// HasLink reports whether the candidate carries at least one usable link.
// Link-less candidates are structurally invalid and are dropped before
// ranking.
func (c SearchCandidate) HasLink() bool {
	return c.MagnetLink != "" || c.DirectLink != ""
}

// DedupKey returns the identity used for cross-source deduplication: the
// magnet link when present (more reliable), the lowercased title otherwise.
func (c SearchCandidate) DedupKey() string {
	if c.MagnetLink != "" {
		return "magnet:" + strings.ToLower(strings.TrimSpace(c.MagnetLink))
	}
	return "title:" + strings.ToLower(strings.TrimSpace(c.Title))
}

// DetectRepacker classifies a candidate's release group by name-sniffing its
// title. Used when an adapter did not set the tag itself.
func DetectRepacker(title string) RepackerTag {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "fitgirl"):
		return RepackerFitGirl
	case strings.Contains(lower, "elamigos"):
		return RepackerElAmigos
	case strings.Contains(lower, "dodi"):
		return RepackerDODI
	case strings.Contains(lower, "empress"):
		return RepackerEmpress
	case strings.Contains(lower, "tenoke"):
		return RepackerTenoke
	case strings.Contains(lower, "-rune") || strings.HasSuffix(lower, " rune"):
		return RepackerRune
	default:
		return RepackerUnknown
	}
}
