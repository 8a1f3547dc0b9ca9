package feed

import (
	"sort"
	"strings"
)

// Filterer applies the mission keyword lists. Matching is a case-insensitive
// substring search with no tokenization, so "camp" also matches "campaign".
type Filterer struct {
	keywords  []string
	negatives []string
}

func NewFilterer(keywords, negatives []string) *Filterer {
	return &Filterer{
		keywords:  nonBlank(keywords),
		negatives: nonBlank(negatives),
	}
}

// NegativeMatch reports the first negative keyword contained in text.
func (f *Filterer) NegativeMatch(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, negative := range f.negatives {
		if f.matchesFilter(lowered, negative) {
			return negative, true
		}
	}
	return "", false
}

func (f *Filterer) HasNegative(text string) bool {
	_, found := f.NegativeMatch(text)
	return found
}

// KeywordHits returns the sorted, de-duplicated configured keywords that
// appear in text.
func (f *Filterer) KeywordHits(text string) []string {
	lowered := strings.ToLower(text)
	seen := make(map[string]struct{})
	hits := []string{}
	for _, keyword := range f.keywords {
		if _, dup := seen[keyword]; dup {
			continue
		}
		if f.matchesFilter(lowered, keyword) {
			seen[keyword] = struct{}{}
			hits = append(hits, keyword)
		}
	}
	sort.Strings(hits)
	return hits
}

func (f *Filterer) matchesFilter(loweredValue, pattern string) bool {
	return strings.Contains(loweredValue, strings.ToLower(pattern))
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
