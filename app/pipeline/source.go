package pipeline

import (
	"context"
	"time"

	"github.com/dwatch/displacement-watch/app/feed"
	"github.com/dwatch/displacement-watch/app/item"
)

// Source is one independent collector of admitted items: a syndicated feed
// or the event index.
type Source interface {
	Name() string
	Collect(ctx context.Context, run feed.Run) ([]item.Item, feed.Stats, error)
}

// SourceResult is the typed outcome of one source in one run. A failed
// source has Err set and contributes no items.
type SourceResult struct {
	Name     string
	Items    []item.Item
	Stats    feed.Stats
	Err      error
	Duration time.Duration
}

func (r SourceResult) Failed() bool {
	return r.Err != nil
}

// Recorder observes run outcomes.
type Recorder interface {
	RecordSource(source string, stats feed.Stats, err error)
	RecordRun(status string, stored, selected int, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordSource(string, feed.Stats, error)    {}
func (nopRecorder) RecordRun(string, int, int, time.Duration) {}
