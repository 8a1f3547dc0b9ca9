package item

import (
	"time"
)

// Tier is a trust level assigned to a publishing domain.
type Tier string

const (
	TierA       Tier = "A"
	TierB       Tier = "B"
	TierC       Tier = "C"
	TierUnknown Tier = "U" // lowest trust, used when no configured suffix matches
)

// Tiers lists every tier from most to least trusted.
var Tiers = []Tier{TierA, TierB, TierC, TierUnknown}

func ParseTier(s string) (Tier, bool) {
	for _, t := range Tiers {
		if string(t) == s {
			return t, true
		}
	}
	return TierUnknown, false
}

type SourceType string

const (
	SourceFeed  SourceType = "rss"
	SourceIndex SourceType = "gdelt"
)

type Item struct {
	ID              string // Identity(CanonicalURL, Title)
	CanonicalURL    string
	URL             string
	Title           string
	Publisher       string
	Domain          string
	PublishedAt     *time.Time
	RetrievedAt     time.Time
	Snippet         string
	FullText        *string // never set by ingestion
	Language        *string
	Tier            Tier
	SourceType      SourceType
	KeywordsHit     []string // sorted, non-empty once admitted
	CollectionRunID string
}

// EffectiveTime is PublishedAt when known, RetrievedAt otherwise.
func (it Item) EffectiveTime() time.Time {
	if it.PublishedAt != nil {
		return *it.PublishedAt
	}
	return it.RetrievedAt
}
