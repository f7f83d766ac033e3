package rank

import (
	"testing"

	"github.com/gamedock/gamedock/internal/search/relevance"
	"github.com/gamedock/gamedock/internal/search/types"
)

func TestRankThresholdAndOrder(t *testing.T) {
	scorer := relevance.NewDefaultScorer()

	candidates := []types.SearchCandidate{
		{Title: "Hollow Knight [FitGirl Repack]", MagnetLink: "magnet:?xt=a", Seeders: 12},
		{Title: "Hollow Knight", MagnetLink: "magnet:?xt=b", Seeders: 80},
		{Title: "Completely Unrelated Farming Sim", MagnetLink: "magnet:?xt=c", Seeders: 999},
	}

	ranked := Rank(candidates, scorer, Params{Query: "Hollow Knight", MinScore: 40})

	if len(ranked) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(ranked), ranked)
	}
	for _, c := range ranked {
		if c.RelevanceScore < 40 {
			t.Errorf("candidate %q has score %v below minScore", c.Title, c.RelevanceScore)
		}
	}
	// Both exact-match; higher seeders wins the tie.
	if ranked[0].Seeders != 80 {
		t.Errorf("expected seeders tie-break, got %+v first", ranked[0])
	}
}

func TestRankDropsLinklessCandidates(t *testing.T) {
	scorer := relevance.NewDefaultScorer()

	candidates := []types.SearchCandidate{
		{Title: "Hollow Knight", Seeders: 50}, // no link at all
		{Title: "Hollow Knight", DirectLink: "https://host/dl", Seeders: 5},
	}

	ranked := Rank(candidates, scorer, Params{Query: "Hollow Knight", MinScore: 40})
	if len(ranked) != 1 {
		t.Fatalf("got %d results, want 1", len(ranked))
	}
	if ranked[0].DirectLink == "" {
		t.Error("link-less candidate survived ranking")
	}
}

func TestRankDirectHitBypassesScoring(t *testing.T) {
	scorer := relevance.NewDefaultScorer()

	// A canonical-URL hit keeps its pre-computed score even though its title
	// shares nothing with the query.
	candidates := []types.SearchCandidate{
		{Title: "HK Collectors Bundle", MagnetLink: "magnet:?xt=a", RelevanceScore: 145},
	}

	ranked := Rank(candidates, scorer, Params{Query: "Hollow Knight", MinScore: 40})
	if len(ranked) != 1 {
		t.Fatalf("direct hit was filtered out")
	}
	if ranked[0].RelevanceScore != 145 {
		t.Errorf("direct hit was rescored: %v", ranked[0].RelevanceScore)
	}
}

func TestRankFinalInstallmentFilter(t *testing.T) {
	scorer := relevance.NewDefaultScorer()

	candidates := []types.SearchCandidate{
		{Title: "Diablo", MagnetLink: "magnet:?xt=a", Seeders: 10},
		{Title: "Diablo II: Resurrected", MagnetLink: "magnet:?xt=b", Seeders: 60},
		{Title: "Diablo IV", MagnetLink: "magnet:?xt=c", Seeders: 400},
	}

	ranked := Rank(candidates, scorer, Params{Query: "Diablo", MinScore: 40})

	if len(ranked) != 1 {
		t.Fatalf("got %d results, want only the base game: %+v", len(ranked), ranked)
	}
	if ranked[0].Title != "Diablo" {
		t.Errorf("wrong survivor: %q", ranked[0].Title)
	}
}

func TestRankSubtitlePenalty(t *testing.T) {
	scorer := relevance.NewDefaultScorer()

	// The spinoff exact-matches on substring but carries a subtitle the
	// target lacks; the presence penalty must knock it under the threshold
	// before the hard filter even runs.
	spinoff := types.SearchCandidate{Title: "Dying Light: The Beast", MagnetLink: "magnet:?xt=a"}

	ranked := Rank([]types.SearchCandidate{spinoff}, scorer, Params{Query: "Dying Light", MinScore: 50})
	if len(ranked) != 0 {
		t.Fatalf("subtitled spinoff survived a base-game search: %+v", ranked)
	}
}

func TestDeduplicate(t *testing.T) {
	candidates := []types.SearchCandidate{
		{Title: "Hollow Knight", MagnetLink: "magnet:?xt=same", Seeders: 5, SourceName: "a"},
		{Title: "Hollow Knight repost", MagnetLink: "magnet:?xt=same", Seeders: 50, SourceName: "b"},
		{Title: "Hollow Knight", DirectLink: "https://x/dl", Seeders: 1, SourceName: "c"},
		{Title: "hollow knight", DirectLink: "https://y/dl", Seeders: 9, SourceName: "d"},
	}

	deduped := Deduplicate(candidates)
	if len(deduped) != 2 {
		t.Fatalf("got %d, want 2: %+v", len(deduped), deduped)
	}
	// Magnet duplicates keep the better-seeded copy.
	if deduped[0].Seeders != 50 {
		t.Errorf("expected the 50-seeder duplicate to win, got %+v", deduped[0])
	}
	// Title-keyed duplicates are case-insensitive.
	if deduped[1].Seeders != 9 {
		t.Errorf("expected the 9-seeder title duplicate to win, got %+v", deduped[1])
	}
}
