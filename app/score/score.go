package score

import (
	"math"
	"time"

	"github.com/dwatch/displacement-watch/app/item"
)

const (
	MaxKeywordHits = 4
	KeywordWeight  = 0.5

	// Recency decays linearly from RecencyMax at age zero by one unit per
	// RecencyDecayPeriod and never drops below RecencyFloor.
	RecencyMax         = 1.5
	RecencyFloor       = 0.1
	RecencyUndated     = 1.0
	RecencyDecayPeriod = 48 * time.Hour
	recencyMaxDrop     = 1.4
)

var tierWeights = map[item.Tier]float64{
	item.TierA:       3.0,
	item.TierB:       2.0,
	item.TierC:       1.0,
	item.TierUnknown: 0.7,
}

// TierWeight returns the weight of a tier. Unrecognized tiers weigh the same
// as TierUnknown.
func TierWeight(t item.Tier) float64 {
	if w, ok := tierWeights[t]; ok {
		return w
	}
	return tierWeights[item.TierUnknown]
}

// Recency returns the freshness bonus of an item published at publishedAt.
// Items from the future are treated as age zero.
func Recency(publishedAt *time.Time, now time.Time) float64 {
	if publishedAt == nil {
		return RecencyUndated
	}

	age := max(now.Sub(*publishedAt), 0)
	drop := min(age.Hours()/RecencyDecayPeriod.Hours(), recencyMaxDrop)

	return max(RecencyFloor, RecencyMax-drop)
}

// Score rates an item at the given reference time. The result is rounded to
// three decimals.
func Score(it item.Item, now time.Time) float64 {
	hits := min(len(it.KeywordsHit), MaxKeywordHits)
	total := TierWeight(it.Tier) + float64(hits)*KeywordWeight + Recency(it.PublishedAt, now)

	return math.Round(total*1000) / 1000
}
