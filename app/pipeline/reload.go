package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dwatch/displacement-watch/app/database"
)

// SourceSet is what one run collects from and how many items it keeps.
type SourceSet struct {
	Sources []Source
	MaxTop  int
}

// SourceLoader builds the sources of a run from the current query pack.
type SourceLoader func() (*SourceSet, error)

// ReloadingRunner builds a fresh Pipeline for every run, so an edited or
// promoted query pack applies from the next run on.
type ReloadingRunner struct {
	load       SourceLoader
	items      database.ItemRepository
	selections database.SelectionRepository
	reports    database.ReportRepository
	recorder   Recorder
}

func NewReloadingRunner(load SourceLoader, items database.ItemRepository, selections database.SelectionRepository,
	reports database.ReportRepository, recorder Recorder) *ReloadingRunner {
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &ReloadingRunner{
		load:       load,
		items:      items,
		selections: selections,
		reports:    reports,
		recorder:   recorder,
	}
}

// RunDaily loads the sources and runs them. A zero opts.MaxTop takes the
// loaded pack's value.
func (r *ReloadingRunner) RunDaily(ctx context.Context, now time.Time, opts Options) (*RunSummary, error) {
	set, err := r.load()
	if err != nil {
		r.recorder.RecordRun("failure", 0, 0, 0)
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}

	if opts.MaxTop == 0 {
		opts.MaxTop = set.MaxTop
	}

	return New(set.Sources, r.items, r.selections, r.reports, r.recorder).RunDaily(ctx, now, opts)
}

func (r *ReloadingRunner) SaveReportMeta(ctx context.Context, summary *RunSummary, now time.Time) error {
	return New(nil, r.items, r.selections, r.reports, r.recorder).SaveReportMeta(ctx, summary, now)
}
