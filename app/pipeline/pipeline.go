package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dwatch/displacement-watch/app/database"
	"github.com/dwatch/displacement-watch/app/feed"
	"github.com/dwatch/displacement-watch/app/item"
	"github.com/dwatch/displacement-watch/app/trends"
)

// ErrNoSelection reports that a date has no selected items. Report
// generation must treat it as "no data", distinct from store failures.
var ErrNoSelection = errors.New("no selection")

const (
	runIDLayout           = "20060102T150405Z"
	defaultMaxConcurrency = 4
)

type Options struct {
	SinceHours int
	MaxTop     int
}

type RunSummary struct {
	RunID         string
	Date          string
	StartedAt     time.Time
	Sources       []SourceResult
	Collected     int
	Unique        int
	Stored        int
	WindowItems   int
	Selected      int
	FailedSources int
}

type Pipeline struct {
	sources        []Source
	items          database.ItemRepository
	selections     database.SelectionRepository
	reports        database.ReportRepository
	selector       *Selector
	aggregator     *trends.Aggregator
	recorder       Recorder
	maxConcurrency int
}

func New(sources []Source, items database.ItemRepository, selections database.SelectionRepository,
	reports database.ReportRepository, recorder Recorder) *Pipeline {
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Pipeline{
		sources:        sources,
		items:          items,
		selections:     selections,
		reports:        reports,
		selector:       NewSelector(items, selections),
		aggregator:     trends.NewAggregator(items),
		recorder:       recorder,
		maxConcurrency: defaultMaxConcurrency,
	}
}

// RunID formats the collection batch marker for a run started at now.
func RunID(now time.Time) string {
	return now.UTC().Format(runIDLayout)
}

// RunDaily collects from every source, stores the deduplicated batch and
// replaces the selection of now's date. Source failures only shrink the
// batch; store failures abort the run.
func (p *Pipeline) RunDaily(ctx context.Context, now time.Time, opts Options) (*RunSummary, error) {
	started := time.Now()

	summary, err := p.runDaily(ctx, now.UTC(), opts)
	if err != nil {
		p.recorder.RecordRun("failure", 0, 0, time.Since(started))
		return nil, err
	}

	p.recorder.RecordRun("success", summary.Stored, summary.Selected, time.Since(started))
	return summary, nil
}

func (p *Pipeline) runDaily(ctx context.Context, now time.Time, opts Options) (*RunSummary, error) {
	run := feed.Run{ID: RunID(now), RetrievedAt: now}
	summary := &RunSummary{RunID: run.ID, StartedAt: now}

	summary.Sources = p.collect(ctx, run)

	var batch []item.Item
	for _, result := range summary.Sources {
		if result.Failed() {
			summary.FailedSources++
			continue
		}
		batch = append(batch, result.Items...)
	}
	summary.Collected = len(batch)

	unique := Dedupe(batch, now)
	summary.Unique = len(unique)

	stored, err := p.items.UpsertItems(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("failed to store items: %w", err)
	}
	summary.Stored = stored

	selection, err := p.selector.Select(ctx, now, opts.SinceHours, opts.MaxTop)
	if err != nil {
		return nil, err
	}
	summary.Date = selection.Date
	summary.WindowItems = selection.WindowItems
	summary.Selected = len(selection.Entries)

	slog.Info("Daily run completed",
		"run_id", summary.RunID,
		"date", summary.Date,
		"sources", len(summary.Sources),
		"failed_sources", summary.FailedSources,
		"collected", summary.Collected,
		"unique", summary.Unique,
		"stored", summary.Stored,
		"window_items", summary.WindowItems,
		"selected", summary.Selected)

	return summary, nil
}

// collect runs every source concurrently. Results are indexed like p.sources
// so the merge order is deterministic whatever the completion order.
func (p *Pipeline) collect(ctx context.Context, run feed.Run) []SourceResult {
	results := make([]SourceResult, len(p.sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrency)

	for i, source := range p.sources {
		g.Go(func() error {
			started := time.Now()
			items, stats, err := source.Collect(gctx, run)

			results[i] = SourceResult{
				Name:     source.Name(),
				Items:    items,
				Stats:    stats,
				Err:      err,
				Duration: time.Since(started),
			}
			p.recorder.RecordSource(source.Name(), stats, err)

			if err != nil {
				slog.Warn("Source collection failed",
					"source", source.Name(),
					"run_id", run.ID,
					"error", err)
				return nil // non-fatal
			}

			slog.Debug("Source collected",
				"source", source.Name(),
				"admitted", stats.Admitted,
				"seen", stats.Seen,
				"duration", results[i].Duration)
			return nil
		})
	}

	_ = g.Wait()

	return results
}

// SelectedItems returns the ranked selection of date. An empty selection is
// ErrNoSelection.
func (p *Pipeline) SelectedItems(ctx context.Context, date string) ([]database.SelectedItem, error) {
	selected, err := p.selections.GetSelectedItemsForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoSelection, date)
	}
	return selected, nil
}

// LatestSelection returns the most recent selected date and its items.
func (p *Pipeline) LatestSelection(ctx context.Context) (string, []database.SelectedItem, error) {
	date, err := p.selections.GetLatestSelectionDate(ctx)
	if err != nil {
		return "", nil, err
	}
	if date == "" {
		return "", nil, ErrNoSelection
	}

	selected, err := p.SelectedItems(ctx, date)
	if err != nil {
		return "", nil, err
	}
	return date, selected, nil
}

// Trends computes the rolling trend snapshot ending at now.
func (p *Pipeline) Trends(ctx context.Context, now time.Time) (*trends.Snapshot, error) {
	return p.aggregator.Rolling(ctx, now)
}

type sourceMeta struct {
	Name     string              `json:"name"`
	Seen     int                 `json:"seen"`
	Admitted int                 `json:"admitted"`
	Rejected map[feed.Reason]int `json:"rejected,omitempty"`
	Error    string              `json:"error,omitempty"`
}

type reportMeta struct {
	Date           string         `json:"date"`
	RunID          string         `json:"run_id"`
	ItemsCollected int            `json:"items_collected"`
	ItemsStored    int            `json:"items_stored"`
	WindowItems    int            `json:"window_items"`
	ItemsSelected  int            `json:"items_selected"`
	TierBreakdown  map[string]int `json:"tier_breakdown"`
	Publishers     []string       `json:"publishers"`
	Themes         []trends.Count `json:"themes"`
	Sources        []sourceMeta   `json:"sources"`
}

// SaveReportMeta records what a run produced for its date: collection
// counts, the tier mix and publishers of the selection, and the week's
// themes. Report file paths are left for the templating layer.
func (p *Pipeline) SaveReportMeta(ctx context.Context, summary *RunSummary, now time.Time) error {
	selected, err := p.selections.GetSelectedItemsForDate(ctx, summary.Date)
	if err != nil {
		return fmt.Errorf("failed to read selection for report meta: %w", err)
	}

	snapshot, err := p.aggregator.Rolling(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to compute trends for report meta: %w", err)
	}

	meta := reportMeta{
		Date:           summary.Date,
		RunID:          summary.RunID,
		ItemsCollected: summary.Collected,
		ItemsStored:    summary.Stored,
		WindowItems:    summary.WindowItems,
		ItemsSelected:  len(selected),
		TierBreakdown:  make(map[string]int),
		Publishers:     []string{},
		Themes:         snapshot.Windows[trends.WindowKey(trends.Windows[0])].Themes,
	}

	seenPublishers := make(map[string]struct{})
	for _, s := range selected {
		meta.TierBreakdown[string(s.Tier)]++
		if _, ok := seenPublishers[s.Publisher]; !ok && s.Publisher != "" {
			seenPublishers[s.Publisher] = struct{}{}
			meta.Publishers = append(meta.Publishers, s.Publisher)
		}
	}

	for _, r := range summary.Sources {
		sm := sourceMeta{Name: r.Name, Seen: r.Stats.Seen, Admitted: r.Stats.Admitted, Rejected: r.Stats.Rejected}
		if r.Err != nil {
			sm.Error = r.Err.Error()
		}
		meta.Sources = append(meta.Sources, sm)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode report meta: %w", err)
	}

	return p.reports.SaveReportMeta(ctx, database.ReportMeta{
		Date:      summary.Date,
		MetaJSON:  metaJSON,
		CreatedAt: now,
	})
}
