package tasks

import (
	"context"
	"time"

	"github.com/dwatch/displacement-watch/app/pipeline"
)

// TaskSchedulerInterface is what the serve command drives: start the
// interval loop, stop it, or queue an extra task.
//
//	scheduler := NewScheduler(runner, proposer, cfg)
//	scheduler.Start()
//	defer scheduler.Stop()
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
}

// DailyRunner executes one daily collection run and records its report
// metadata.
type DailyRunner interface {
	RunDaily(ctx context.Context, now time.Time, opts pipeline.Options) (*pipeline.RunSummary, error)
	SaveReportMeta(ctx context.Context, summary *pipeline.RunSummary, now time.Time) error
}

// Proposer produces and records a query pack proposal.
type Proposer interface {
	Propose(ctx context.Context, now time.Time) error
}
