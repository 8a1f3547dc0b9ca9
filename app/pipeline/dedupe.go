package pipeline

import (
	"time"

	"github.com/dwatch/displacement-watch/app/item"
	"github.com/dwatch/displacement-watch/app/score"
)

// Dedupe collapses items sharing an identity. The higher-scoring candidate
// wins; on equal scores the first one seen is kept. Output keeps the order in
// which identities were first seen.
func Dedupe(items []item.Item, now time.Time) []item.Item {
	type entry struct {
		index int
		score float64
	}

	seen := make(map[string]entry, len(items))
	out := make([]item.Item, 0, len(items))

	for _, it := range items {
		s := score.Score(it, now)

		existing, ok := seen[it.ID]
		if !ok {
			seen[it.ID] = entry{index: len(out), score: s}
			out = append(out, it)
			continue
		}

		if s > existing.score {
			out[existing.index] = it
			seen[it.ID] = entry{index: existing.index, score: s}
		}
	}

	return out
}
