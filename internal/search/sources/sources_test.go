package sources

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/gamedock/gamedock/internal/search/relevance"
	"github.com/gamedock/gamedock/internal/search/types"
)

// fakeFetcher serves canned HTML by URL. Unknown URLs behave like a 404:
// empty body, no error.
type fakeFetcher struct {
	pages   map[string]string
	fetched []string
}

func (f *fakeFetcher) FetchRenderedHTML(_ context.Context, url string) (string, error) {
	f.fetched = append(f.fetched, url)
	return f.pages[url], nil
}

const fitgirlReleasePage = `<html><body>
<article>
<h1 class="entry-title">Hollow Knight</h1>
<ul>
<li>Original Size: 9.2 GB</li>
<li>Repack Size: 4 GB</li>
</ul>
<a href="magnet:?xt=urn:btih:ABCDEF0123456789&dn=hollow.knight">magnet</a>
</article>
</body></html>`

const fitgirlSearchPage = `<html><body>
<article>
<h2 class="entry-title"><a href="https://fitgirl.example/hollow-knight-voidheart/">Hollow Knight: Voidheart Edition</a></h2>
<a href="magnet:?xt=urn:btih:FEEDBEEF00000001">magnet</a>
</article>
<article>
<h2 class="entry-title"><a href="https://fitgirl.example/unrelated/">Unrelated Post</a></h2>
<p>no magnet here</p>
</article>
</body></html>`

func TestFitGirlDirectURLProbe(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://fitgirl.example/hollow-knight/": fitgirlReleasePage,
	}}
	source := NewFitGirlSource("https://fitgirl.example", fetcher, zerolog.Nop())

	candidates, err := source.Search(context.Background(), types.SearchQuery{RawTitle: "Hollow Knight"})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}

	c := candidates[0]
	if c.Title != "Hollow Knight" {
		t.Errorf("title = %q", c.Title)
	}
	if c.MagnetLink == "" {
		t.Error("no magnet extracted from release page")
	}
	if c.Repacker != types.RepackerFitGirl {
		t.Errorf("repacker = %q", c.Repacker)
	}
	if want := relevance.DefaultWeights().ExactMatchScore; c.RelevanceScore != want {
		t.Errorf("direct hit scored %v, want %v", c.RelevanceScore, want)
	}
	if want := int64(4 << 30); c.SizeBytes != want {
		t.Errorf("size = %d, want %d", c.SizeBytes, want)
	}
	if len(fetcher.fetched) != 1 {
		t.Errorf("probe hit should not fall through to site search, fetched %v", fetcher.fetched)
	}
}

func TestFitGirlFallsBackToSiteSearch(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://fitgirl.example/?s=Hollow+Knight": fitgirlSearchPage,
	}}
	source := NewFitGirlSource("https://fitgirl.example", fetcher, zerolog.Nop())

	candidates, err := source.Search(context.Background(), types.SearchQuery{RawTitle: "Hollow Knight"})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want only the article with a magnet", len(candidates))
	}
	c := candidates[0]
	if c.Title != "Hollow Knight: Voidheart Edition" {
		t.Errorf("title = %q", c.Title)
	}
	if c.RelevanceScore != 0 {
		t.Errorf("site search results must arrive unscored, got %v", c.RelevanceScore)
	}
}

const aggregatorSearchPage = `<html><body>
<table><tbody>
<tr>
<td class="name"><a href="/torrent/1/hollow-knight">Hollow Knight [FitGirl Repack]</a></td>
<td class="seeds">1,204</td>
<td class="leeches">37</td>
<td class="size">4.2 GB</td>
<td><a href="magnet:?xt=urn:btih:AA11BB22CC33">magnet</a></td>
</tr>
<tr>
<td class="name"><a href="/torrent/2/linkless">Linkless Row</a></td>
<td class="seeds">5</td>
</tr>
</tbody></table>
</body></html>`

func TestAggregatorParsesResultTable(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://tracker.example/search?q=Hollow+Knight": aggregatorSearchPage,
	}}
	source := NewAggregatorSource("tracker", "https://tracker.example", fetcher, zerolog.Nop())

	candidates, err := source.Search(context.Background(), types.SearchQuery{RawTitle: "Hollow Knight"})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}

	c := candidates[0]
	if c.Seeders != 1204 || c.Leechers != 37 {
		t.Errorf("counts = %d/%d, want 1204/37", c.Seeders, c.Leechers)
	}
	if c.Repacker != types.RepackerFitGirl {
		t.Errorf("repacker not sniffed from title: %q", c.Repacker)
	}
	if c.MagnetLink == "" {
		t.Error("inline magnet not extracted")
	}

	// Rows without an inline magnet keep the detail URL for later resolution.
	if candidates[1].DetailURL != "https://tracker.example/torrent/2/linkless" {
		t.Errorf("detail URL = %q", candidates[1].DetailURL)
	}
	if candidates[1].MagnetLink != "" {
		t.Errorf("unexpected magnet on linkless row: %q", candidates[1].MagnetLink)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Hollow Knight", "hollow-knight"},
		{"Baldur's Gate 3", "baldurs-gate-3"},
		{"NieR: Automata", "nier-automata"},
		{"  spaced  out  ", "spaced-out"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := slugify(tt.title); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestParseSize(t *testing.T) {
	gb := float64(1 << 30)
	tests := []struct {
		text string
		want int64
	}{
		{"4.2 GB", int64(4.2 * gb)},
		{"512 MB", 512 << 20},
		{"1,024 MB", 1024 << 20},
		{"2 TiB", 2 << 40},
		{"nonsense", 0},
		{"42 parsecs", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := parseSize(tt.text); got != tt.want {
			t.Errorf("parseSize(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
