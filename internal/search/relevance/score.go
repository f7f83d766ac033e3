// Package relevance scores scraped release titles against a requested game
// title and decides whether a candidate is the same installment. Scraped
// titles are noisy (edition tags, repacker branding, DLC counts), so scoring
// rewards high lexical overlap while aggressively rejecting near-miss titles
// that share many words with the query.
package relevance

import (
	"regexp"
	"strings"
)

var (
	apostropheRegex    = regexp.MustCompile(`[''\x60\x{2018}\x{2019}\x{02BC}]`)
	specialCharsRegex  = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
	multipleSpaceRegex = regexp.MustCompile(`\s+`)

	// Version markers are matched after normalization, where dots have
	// already become spaces ("v1.5.78" arrives as "v1 5 78").
	versionMarkerRegex = regexp.MustCompile(`\b(?:v\d+(?:[ .]\d+)*|\d+(?:\.\d+)+|build \d+|update \d+|hotfix \d*)\b`)
	dlcCountRegex      = regexp.MustCompile(`\b(?:all )?\d* ?dlcs?\b|\bbonus (?:content|ost)\b`)
)

// noiseWords are tokens that appear in release titles but carry no
// information about which game the release is for. They are stripped from
// candidates before comparison so branding never counts as a mismatch.
var noiseWords = map[string]bool{
	"fitgirl":     true,
	"elamigos":    true,
	"dodi":        true,
	"empress":     true,
	"tenoke":      true,
	"rune":        true,
	"codex":       true,
	"skidrow":     true,
	"plaza":       true,
	"goldberg":    true,
	"repack":      true,
	"repacks":     true,
	"multi":       true,
	"selective":   true,
	"download":    true,
	"free":        true,
	"torrent":     true,
	"crack":       true,
	"cracked":     true,
	"preinstalled": true,
}

// stopWords are dropped from both sides of a word-level comparison when the
// query has more than two significant words.
var stopWords = map[string]bool{
	"the": true, "and": true, "or": true, "of": true, "a": true,
	"an": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "with": true, "game": true,
}

// Weights holds the tuned scoring constants. The values are empirical; treat
// any rebalancing as a config change covered by the package tests, not a
// re-derivation.
type Weights struct {
	ExactMatchScore    float64 // score for an exact substring match
	ExactLengthRatio   float64 // minimum length ratio for the reverse substring path
	WordExactPoints    float64 // per-word exact equality
	WordPrefixMax      float64 // per-word prefix match, scaled by length ratio
	WordContainsMax    float64 // per-word substring match, scaled by length ratio
	MinMatchRatio      float64 // below this fraction of matched query words the score is zero
	FullMatchBonus     float64 // all query words matched (multi-word queries)
	HighMatchBonus     float64 // at least HighMatchRatio of query words matched
	HighMatchRatio     float64
	ExtraWordsHard     int     // candidate words beyond the query triggering the hard penalty
	ExtraWordsHardMult float64
	ExtraWordsSoft     int // candidate words beyond the query triggering the soft penalty
	ExtraWordsSoftMult float64
	LengthRatioMin     float64 // cleaned-candidate/query length window
	LengthRatioMax     float64
	LengthRatioMult    float64
	MinScore           float64 // final scores below this are treated as zero

	DirectHitScore float64 // pre-computed score meaning "matched via canonical URL"
}

// DefaultWeights returns the tuned default scoring constants.
func DefaultWeights() Weights {
	return Weights{
		ExactMatchScore:    150,
		ExactLengthRatio:   0.7,
		WordExactPoints:    50,
		WordPrefixMax:      30,
		WordContainsMax:    15,
		MinMatchRatio:      0.6,
		FullMatchBonus:     80,
		HighMatchBonus:     40,
		HighMatchRatio:     0.8,
		ExtraWordsHard:     8,
		ExtraWordsHardMult: 0.5,
		ExtraWordsSoft:     5,
		ExtraWordsSoftMult: 0.7,
		LengthRatioMin:     0.4,
		LengthRatioMax:     2.5,
		LengthRatioMult:    0.6,
		MinScore:           30,
		DirectHitScore:     140,
	}
}

// Scorer scores candidate titles against a query.
type Scorer struct {
	weights Weights
}

// NewScorer creates a scorer with the given weights.
func NewScorer(w Weights) *Scorer {
	return &Scorer{weights: w}
}

// NewDefaultScorer creates a scorer with the default weights.
func NewDefaultScorer() *Scorer {
	return NewScorer(DefaultWeights())
}

// Weights returns the scorer's weight configuration.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Normalize converts a title to a normalized form for comparison.
// It lowercases, strips apostrophes (within-word punctuation), replaces
// remaining special characters with spaces, and collapses whitespace.
// Apostrophes are stripped rather than replaced so "Baldur's Gate" and
// "Baldurs Gate" normalize identically.
func Normalize(title string) string {
	normalized := strings.ToLower(title)
	normalized = apostropheRegex.ReplaceAllString(normalized, "")
	normalized = specialCharsRegex.ReplaceAllString(normalized, " ")
	normalized = multipleSpaceRegex.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// StripNoise removes repacker branding, version markers, and DLC-count
// phrases from a normalized title.
func StripNoise(normalized string) string {
	cleaned := versionMarkerRegex.ReplaceAllString(normalized, " ")
	cleaned = dlcCountRegex.ReplaceAllString(cleaned, " ")

	words := strings.Fields(cleaned)
	kept := words[:0]
	for _, w := range words {
		if noiseWords[w] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// Score computes the relevance of a candidate title for a query.
// The result is >= 0; zero means the candidate should be rejected.
func (s *Scorer) Score(query, candidateTitle string) float64 {
	w := s.weights

	nq := Normalize(query)
	nc := StripNoise(Normalize(candidateTitle))
	if nq == "" || nc == "" {
		return 0
	}

	// Exact substring matches are trusted outright and skip word-level
	// penalties. The reverse direction (query contains candidate) is guarded
	// by a length ratio so a one-word candidate cannot claim a long query.
	if strings.Contains(nc, nq) {
		return w.ExactMatchScore
	}
	if strings.Contains(nq, nc) && float64(len(nc))/float64(len(nq)) >= w.ExactLengthRatio {
		return w.ExactMatchScore
	}

	queryWords := significantWords(nq)
	candWords := significantWords(nc)
	if len(queryWords) > 2 {
		queryWords = dropStopWords(queryWords)
		candWords = dropStopWords(candWords)
	}
	if len(queryWords) == 0 || len(candWords) == 0 {
		return 0
	}

	var score float64
	matched := 0
	for _, qw := range queryWords {
		best := bestWordMatch(qw, candWords, w)
		if best > 0 {
			matched++
			score += best
		}
	}

	ratio := float64(matched) / float64(len(queryWords))
	if ratio < w.MinMatchRatio {
		return 0
	}
	if ratio == 1.0 && len(queryWords) > 1 {
		score += w.FullMatchBonus
	} else if ratio >= w.HighMatchRatio {
		score += w.HighMatchBonus
	}

	// Candidates carrying far more words than the query are usually bundles
	// or multi-game packs; scale them down.
	extra := len(candWords) - len(queryWords)
	if extra > w.ExtraWordsHard {
		score *= w.ExtraWordsHardMult
	} else if extra > w.ExtraWordsSoft {
		score *= w.ExtraWordsSoftMult
	}

	lengthRatio := float64(len(nc)) / float64(len(nq))
	if lengthRatio < w.LengthRatioMin || lengthRatio > w.LengthRatioMax {
		score *= w.LengthRatioMult
	}

	if score < w.MinScore {
		return 0
	}
	return score
}

// significantWords returns the words of a normalized string that are at
// least three characters long.
func significantWords(normalized string) []string {
	fields := strings.Fields(normalized)
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 3 {
			words = append(words, f)
		}
	}
	return words
}

func dropStopWords(words []string) []string {
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if stopWords[w] {
			continue
		}
		kept = append(kept, w)
	}
	return kept
}

// bestWordMatch returns the best match score for a single query word against
// the candidate words. Only the best match counts, so a query word can never
// earn points from multiple candidate words.
func bestWordMatch(qw string, candWords []string, w Weights) float64 {
	var best float64
	for _, cw := range candWords {
		var score float64
		switch {
		case qw == cw:
			score = w.WordExactPoints
		case strings.HasPrefix(cw, qw) || strings.HasPrefix(qw, cw):
			score = w.WordPrefixMax * lengthRatio(qw, cw)
		case strings.Contains(cw, qw) || strings.Contains(qw, cw):
			score = w.WordContainsMax * lengthRatio(qw, cw)
		}
		if score > best {
			best = score
		}
	}
	return best
}

// lengthRatio returns shorter/longer for two words.
func lengthRatio(a, b string) float64 {
	la, lb := len(a), len(b)
	if la == 0 || lb == 0 {
		return 0
	}
	if la > lb {
		la, lb = lb, la
	}
	return float64(la) / float64(lb)
}
