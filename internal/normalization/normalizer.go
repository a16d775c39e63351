// Package normalization prepares raw feed text for embedding. It produces
// the clean_text stored on each event and the category tags used as search
// metadata. Normalization is deterministic: the same raw text always yields
// the same clean text, which keeps event ids stable across re-ingestion.
package normalization

import (
	"regexp"
	"sort"
	"strings"
)

var (
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// categoryKeywords maps a category tag to the lowercase keywords that
// trigger it. Matching is substring-based on word-normalized text.
var categoryKeywords = map[string][]string{
	"crypto":   {"bitcoin", "btc", "ethereum", "eth", "crypto", "token", "tokens", "defi", "stablecoin"},
	"macro":    {"fed", "inflation", "cpi", "rate hike", "rate cut", "fomc", "treasury"},
	"earnings": {"earnings", "revenue", "quarterly", "guidance", "eps"},
	"nba":      {"nba", "playoff", "playoffs", "finals", "buzzer"},
	"equity":   {"stock", "stocks", "shares", "ipo", "nasdaq", "nyse"},
}

// Normalize produces the clean text used for embedding: URLs stripped,
// control characters removed, and whitespace collapsed to single spaces.
// Case is preserved; embedding models handle casing better than we do.
func Normalize(raw string) string {
	s := urlPattern.ReplaceAllString(raw, " ")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}

	s = whitespacePattern.ReplaceAllString(b.String(), " ")
	return strings.TrimSpace(s)
}

// Categorize assigns category tags to clean text by keyword matching.
// Single-word keywords match whole words only, so "eth" does not fire on
// "method". Returns a sorted, de-duplicated slice; empty when nothing
// matches.
func Categorize(cleanText string) []string {
	lowered := strings.ToLower(cleanText)
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(lowered, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		words[w] = true
	}

	seen := make(map[string]bool)
	for category, keywords := range categoryKeywords {
		for _, kw := range keywords {
			matched := false
			if strings.ContainsRune(kw, ' ') {
				matched = strings.Contains(lowered, kw)
			} else {
				matched = words[kw]
			}
			if matched {
				seen[category] = true
				break
			}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories
}
