package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dwatch/displacement-watch/app/database"
	"github.com/dwatch/displacement-watch/app/score"
)

const (
	DefaultSinceHours = 24
	MinSelection      = 5
)

type Selection struct {
	Date        string
	WindowStart time.Time
	WindowEnd   time.Time
	WindowItems int
	Entries     []database.SelectionEntry
}

// Selector ranks the items of a time window and stores the day's top set.
type Selector struct {
	items      database.ItemRepository
	selections database.SelectionRepository
}

func NewSelector(items database.ItemRepository, selections database.SelectionRepository) *Selector {
	return &Selector{items: items, selections: selections}
}

// Select scores every item of [now - sinceHours, now] at now and replaces the
// selection of now's UTC date with the best max(5, maxTop) of them. The date
// comes from now, not from the window start.
func (s *Selector) Select(ctx context.Context, now time.Time, sinceHours, maxTop int) (*Selection, error) {
	if sinceHours <= 0 {
		sinceHours = DefaultSinceHours
	}
	limit := max(MinSelection, maxTop)

	end := now.UTC()
	start := end.Add(-time.Duration(sinceHours) * time.Hour)

	items, err := s.items.GetItemsForWindow(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to read selection window: %w", err)
	}

	entries := make([]database.SelectionEntry, len(items))
	for i, it := range items {
		entries[i] = database.SelectionEntry{ItemID: it.ID, Score: score.Score(it, end)}
	}

	// Stable sort keeps the store's newest-first order among equal scores.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}

	date := end.Format(database.DateLayout)
	if err := s.selections.SaveDailySelection(ctx, date, entries); err != nil {
		return nil, fmt.Errorf("failed to save daily selection: %w", err)
	}

	slog.Info("Daily selection saved",
		"date", date,
		"window_items", len(items),
		"selected", len(entries),
		"limit", limit)

	return &Selection{
		Date:        date,
		WindowStart: start,
		WindowEnd:   end,
		WindowItems: len(items),
		Entries:     entries,
	}, nil
}
