package relevance

import (
	"regexp"
	"strconv"
	"strings"
)

// TitleParts is the result of splitting a title into base name and subtitle.
type TitleParts struct {
	BaseName    string
	Subtitle    string
	HasSubtitle bool
}

var (
	// Dash subtitles are guarded against version strings so
	// "Game - Build 123" or "Game - v1.2" never parse as subtitles.
	dashSplitRegex     = regexp.MustCompile(`\s+[-–—]\s+`)
	versionTailRegex   = regexp.MustCompile(`(?i)^(?:v\d|build\s+\d|update\s+\d|\d+(?:\.\d+)+)`)
	theSubtitleRegex   = regexp.MustCompile(`^(.{3,}?)\s+((?:The|the)\s+\S.*)$`)
	arabicSequelRegex  = regexp.MustCompile(`(?:^|[\s:–—-])(\d{1,2})(?:\s*$|\s*[:–—-])`)
	trailingDigitRegex = regexp.MustCompile(`(?:^|\s)(\d{1,2})$`)

	// Longest Roman numerals first so "I" never matches inside "VIII".
	romanSequelRegex = regexp.MustCompile(`(?i)(?:^|\s)(XV|XIV|XIII|XII|XI|IX|X|VIII|VII|VI|IV|V|III|II|I)(?:\s*$|\s*[:–—-])`)
)

var romanValues = map[string]int{
	"i": 1, "ii": 2, "iii": 3, "iv": 4, "v": 5, "vi": 6, "vii": 7,
	"viii": 8, "ix": 9, "x": 10, "xi": 11, "xii": 12, "xiii": 13,
	"xiv": 14, "xv": 15,
}

// editionWords are cosmetic words normalized away before comparing subtitles,
// so "Deluxe Edition" and plain releases of the same subtitle compare equal.
var editionWords = map[string]bool{
	"edition":    true,
	"deluxe":     true,
	"ultimate":   true,
	"definitive": true,
	"collector":  true,
	"collectors": true,
	"digital":    true,
}

// ExtractParts splits a title into base name and subtitle. It tries a colon
// split first, then a dash split (rejecting version-string tails), then a
// "<Base> The <Rest>" pattern.
func ExtractParts(title string) TitleParts {
	trimmed := strings.TrimSpace(title)

	if idx := strings.Index(trimmed, ":"); idx > 0 {
		base := strings.TrimSpace(trimmed[:idx])
		sub := strings.TrimSpace(trimmed[idx+1:])
		if base != "" && sub != "" {
			return TitleParts{BaseName: base, Subtitle: sub, HasSubtitle: true}
		}
	}

	if loc := dashSplitRegex.FindStringIndex(trimmed); loc != nil {
		base := strings.TrimSpace(trimmed[:loc[0]])
		sub := strings.TrimSpace(trimmed[loc[1]:])
		if base != "" && sub != "" && !versionTailRegex.MatchString(sub) {
			return TitleParts{BaseName: base, Subtitle: sub, HasSubtitle: true}
		}
	}

	// "<Base> The <Rest>" only counts when "The" is not the leading word.
	if m := theSubtitleRegex.FindStringSubmatch(trimmed); m != nil {
		base := strings.TrimSpace(m[1])
		sub := strings.TrimSpace(m[2])
		if base != "" && !strings.EqualFold(base, "the") {
			return TitleParts{BaseName: base, Subtitle: sub, HasSubtitle: true}
		}
	}

	return TitleParts{BaseName: trimmed}
}

// ExtractSequelNumber extracts a sequel number from a title. It recognizes
// Arabic numerals adjacent to punctuation or end-of-string, and Roman
// numerals I-XV. Returns false when the title carries no sequel number.
func ExtractSequelNumber(title string) (int, bool) {
	// Sequel markers live on the base name; a numbered subtitle like
	// "Game: Chapter 2" does not make the game a sequel of "Game".
	base := ExtractParts(title).BaseName
	cleaned := StripNoise(Normalize(base))

	if m := trailingDigitRegex.FindStringSubmatch(cleaned); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n, true
		}
	}
	if m := arabicSequelRegex.FindStringSubmatch(base); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n, true
		}
	}
	if m := romanSequelRegex.FindStringSubmatch(base); m != nil {
		if n, ok := romanValues[strings.ToLower(m[1])]; ok {
			return n, true
		}
	}
	return 0, false
}

// normalizeSubtitle normalizes a subtitle and removes cosmetic edition words.
func normalizeSubtitle(subtitle string) string {
	words := strings.Fields(StripNoise(Normalize(subtitle)))
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if editionWords[w] {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// SubtitleMatch classifies how a candidate's subtitle relates to the target's.
type SubtitleMatch int

const (
	// SubtitleOK means the subtitle situation is consistent with the target.
	SubtitleOK SubtitleMatch = iota
	// SubtitleWrong means both carry subtitles but they differ.
	SubtitleWrong
	// SubtitlePresenceMismatch means exactly one side carries a subtitle.
	SubtitlePresenceMismatch
)

// ClassifySubtitle compares a candidate title's subtitle against the target
// subtitle (empty string means the target has none).
//
// A target with a subtitle rejects subtitle-less candidates: those are
// presumed to be the base game. A target without a subtitle rejects
// subtitled candidates: otherwise a "Game" search returns
// "Game: Special Edition Sequel".
func ClassifySubtitle(candidateTitle, targetSubtitle string) SubtitleMatch {
	candParts := ExtractParts(candidateTitle)

	if targetSubtitle == "" {
		if candParts.HasSubtitle {
			// A purely cosmetic subtitle ("Deluxe Edition") is not a real one.
			if normalizeSubtitle(candParts.Subtitle) == "" {
				return SubtitleOK
			}
			return SubtitlePresenceMismatch
		}
		return SubtitleOK
	}

	if !candParts.HasSubtitle {
		return SubtitlePresenceMismatch
	}

	want := normalizeSubtitle(targetSubtitle)
	got := normalizeSubtitle(candParts.Subtitle)
	if want == got {
		return SubtitleOK
	}
	if want != "" && got != "" && (strings.Contains(got, want) || strings.Contains(want, got)) {
		return SubtitleOK
	}
	return SubtitleWrong
}

// MatchesTarget reports whether a candidate title is the same installment as
// the target, given the target's sequel number (0 = unspecified) and subtitle
// (empty = none). This is the primary guard against downloading the wrong
// game: naive substring search conflates "Dying Light" with "Dying Light 2".
func MatchesTarget(candidateTitle string, targetSequel int, targetSubtitle string) bool {
	if ClassifySubtitle(candidateTitle, targetSubtitle) != SubtitleOK {
		return false
	}

	candSequel, candHas := ExtractSequelNumber(candidateTitle)

	// A missing number reads as "part 1" only when the target is part 1 or
	// carries no number at all.
	wantSequel := targetSequel
	if wantSequel == 0 {
		wantSequel = 1
	}
	if !candHas {
		candSequel = 1
	}

	return candSequel == wantSequel
}
