package trends

import (
	"cmp"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dwatch/displacement-watch/app/database"
	"github.com/dwatch/displacement-watch/app/item"
)

const (
	TopKeywords   = 15
	TopPublishers = 10

	UnknownPublisher = "unknown"
)

// Windows are the rolling windows of a snapshot, in days.
var Windows = []int{7, 30}

type Theme struct {
	Name    string
	Phrases []string
}

// ThemeLexicon maps themes to the phrases that signal them. Matching is a
// substring search over the lowercased title and snippet.
var ThemeLexicon = []Theme{
	{Name: "asylum", Phrases: []string{"asylum", "asylum seeker", "asylum seekers", "asylum claim"}},
	{Name: "border", Phrases: []string{"border", "crossing", "deport", "returns"}},
	{Name: "resettlement", Phrases: []string{"resettlement", "third-country", "relocation"}},
	{Name: "funding", Phrases: []string{"funding", "aid", "appeal", "shortfall", "donor"}},
	{Name: "camp_conditions", Phrases: []string{"camp", "shelter", "winterization", "cholera", "food"}},
}

type Count struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type Window struct {
	Days       int     `json:"days"`
	Items      int     `json:"items"`
	Keywords   []Count `json:"keywords"`
	Publishers []Count `json:"publishers"`
	Tiers      []Count `json:"tiers"`
	Themes     []Count `json:"themes"`
}

type Snapshot struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Windows     map[string]Window `json:"windows"`
}

// WindowKey names a window the way snapshots index it, e.g. "7d".
func WindowKey(days int) string {
	return fmt.Sprintf("%dd", days)
}

type Aggregator struct {
	items database.ItemRepository
}

func NewAggregator(items database.ItemRepository) *Aggregator {
	return &Aggregator{items: items}
}

// Rolling computes a snapshot over every window in Windows ending at now.
func (a *Aggregator) Rolling(ctx context.Context, now time.Time) (*Snapshot, error) {
	snapshot := &Snapshot{
		GeneratedAt: now.UTC(),
		Windows:     make(map[string]Window, len(Windows)),
	}

	for _, days := range Windows {
		items, err := a.items.GetItemsSinceDays(ctx, days, now)
		if err != nil {
			return nil, fmt.Errorf("failed to read %d day window: %w", days, err)
		}
		snapshot.Windows[WindowKey(days)] = Scan(items, days)
	}

	return snapshot, nil
}

// Scan builds the histograms of a window from its items, in scan order.
func Scan(items []item.Item, days int) Window {
	keywords := NewCounter()
	publishers := NewCounter()
	tiers := NewCounter()
	themes := NewCounter()

	for _, it := range items {
		for _, keyword := range it.KeywordsHit {
			keywords.Add(keyword)
		}

		publishers.Add(cmp.Or(strings.TrimSpace(it.Publisher), it.Domain, UnknownPublisher))
		tiers.Add(string(cmp.Or(it.Tier, item.TierUnknown)))

		text := strings.ToLower(it.Title) + " " + strings.ToLower(it.Snippet)
		for _, theme := range ThemeLexicon {
			if matchesAny(text, theme.Phrases) {
				themes.Add(theme.Name)
			}
		}
	}

	return Window{
		Days:       days,
		Items:      len(items),
		Keywords:   keywords.Top(TopKeywords),
		Publishers: publishers.Top(TopPublishers),
		Tiers:      tiers.Top(0),
		Themes:     themes.Top(0),
	}
}

func matchesAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(text, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// Counter tallies names and remembers the order each was first seen in.
type Counter struct {
	counts map[string]int
	order  []string
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[string]int)}
}

func (c *Counter) Add(name string) {
	if _, ok := c.counts[name]; !ok {
		c.order = append(c.order, name)
	}
	c.counts[name]++
}

// Top returns the k most frequent names, or all of them when k <= 0. Equal
// counts keep first-seen order.
func (c *Counter) Top(k int) []Count {
	out := make([]Count, len(c.order))
	for i, name := range c.order {
		out[i] = Count{Name: name, Count: c.counts[name]}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})

	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
