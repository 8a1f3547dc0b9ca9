package feed

import (
	"cmp"
	"strings"

	"github.com/dwatch/displacement-watch/app/item"
)

// Builder turns source candidates into admitted items: negative screening,
// keyword extraction, canonical URL, identity and trust tier.
type Builder struct {
	filterer   *Filterer
	tiers      map[item.Tier][]string
	sourceType item.SourceType
}

func NewBuilder(filterer *Filterer, tiers map[item.Tier][]string, sourceType item.SourceType) *Builder {
	return &Builder{
		filterer:   filterer,
		tiers:      tiers,
		sourceType: sourceType,
	}
}

// Build returns the admitted item, or the reason the candidate was dropped.
func (b *Builder) Build(c Candidate, run Run) (item.Item, Reason, bool) {
	link := strings.TrimSpace(c.Link)
	if link == "" {
		return item.Item{}, ReasonMissingLink, false
	}

	if b.filterer.HasNegative(c.FilterText) {
		return item.Item{}, ReasonNegativeKeyword, false
	}

	var hits []string
	for _, text := range c.KeywordTexts {
		if hits = b.filterer.KeywordHits(text); len(hits) > 0 {
			break
		}
	}
	if len(hits) == 0 {
		return item.Item{}, ReasonNoKeywordHit, false
	}

	canonicalURL := item.Canonicalize(link)
	domain := item.DomainFromURL(canonicalURL)

	it := item.Item{
		ID:              item.Identity(canonicalURL, c.Title),
		CanonicalURL:    canonicalURL,
		URL:             link,
		Title:           c.Title,
		Publisher:       cmp.Or(c.Publisher, domain),
		Domain:          domain,
		PublishedAt:     c.PublishedAt,
		RetrievedAt:     run.RetrievedAt.UTC(),
		Snippet:         Truncate(c.Snippet, MaxSnippetRunes),
		Tier:            item.TierForDomain(domain, b.tiers),
		SourceType:      b.sourceType,
		KeywordsHit:     hits,
		CollectionRunID: run.ID,
	}
	if c.Language != "" {
		language := c.Language
		it.Language = &language
	}

	return it, "", true
}

// BuildAll builds every candidate and tallies the outcome.
func (b *Builder) BuildAll(candidates []Candidate, run Run) ([]item.Item, Stats) {
	stats := Stats{Seen: len(candidates)}
	items := make([]item.Item, 0, len(candidates))

	for _, c := range candidates {
		it, reason, ok := b.Build(c, run)
		if !ok {
			stats.reject(reason)
			continue
		}
		items = append(items, it)
		stats.Admitted++
	}

	return items, stats
}
