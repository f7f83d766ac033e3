// Package rank filters and orders search candidates by relevance.
package rank

import (
	"sort"

	"github.com/gamedock/gamedock/internal/search/relevance"
	"github.com/gamedock/gamedock/internal/search/types"
)

// Params configures a ranking pass.
type Params struct {
	Query        string
	MinScore     float64
	SequelNumber int    // 0 = unspecified
	Subtitle     string // empty = target has no subtitle
}

// Penalty multipliers applied after scoring. A candidate whose subtitle
// differs from the target's is almost certainly a different installment;
// a bare presence mismatch is suspicious but occasionally a formatting
// artifact, so it is penalized less severely.
const (
	wrongSubtitleMult    = 0.1
	presenceMismatchMult = 0.3
)

// Rank scores, filters, and sorts candidates for a query. Input candidates
// are not mutated; scored copies are returned. An empty result means "no
// relevant match", which is an expected outcome, not an error.
func Rank(candidates []types.SearchCandidate, scorer *relevance.Scorer, p Params) []types.SearchCandidate {
	directHit := scorer.Weights().DirectHitScore

	ranked := make([]types.SearchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.HasLink() {
			continue
		}

		// Candidates pre-scored at or above the direct-hit level were
		// matched via a canonical URL; a direct hit is trusted over
		// heuristics and skips rescoring and penalties entirely.
		if c.RelevanceScore >= directHit {
			ranked = append(ranked, c)
			continue
		}

		score := scorer.Score(p.Query, c.Title)
		if score > 0 {
			switch relevance.ClassifySubtitle(c.Title, p.Subtitle) {
			case relevance.SubtitleWrong:
				score *= wrongSubtitleMult
			case relevance.SubtitlePresenceMismatch:
				score *= presenceMismatchMult
			}
		}
		if score <= 0 || score < p.MinScore {
			continue
		}

		// Belt and suspenders: a score above the threshold can still be a
		// false positive for the wrong installment.
		if !relevance.MatchesTarget(c.Title, p.SequelNumber, p.Subtitle) {
			continue
		}

		c.RelevanceScore = score
		ranked = append(ranked, c)
	}

	Sort(ranked)
	return ranked
}

// Sort orders candidates by relevance score descending, tie-breaking on
// seeders descending.
func Sort(candidates []types.SearchCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].RelevanceScore != candidates[j].RelevanceScore {
			return candidates[i].RelevanceScore > candidates[j].RelevanceScore
		}
		return candidates[i].Seeders > candidates[j].Seeders
	})
}

// Deduplicate removes duplicate candidates, keyed by magnet link or title.
// When duplicates collide, the one with more seeders wins.
func Deduplicate(candidates []types.SearchCandidate) []types.SearchCandidate {
	if len(candidates) == 0 {
		return candidates
	}

	seen := make(map[string]int) // key -> index in result slice
	result := make([]types.SearchCandidate, 0, len(candidates))

	for _, c := range candidates {
		key := c.DedupKey()
		if existingIdx, exists := seen[key]; exists {
			if c.Seeders > result[existingIdx].Seeders {
				result[existingIdx] = c
			}
			continue
		}
		seen[key] = len(result)
		result = append(result, c)
	}

	return result
}
