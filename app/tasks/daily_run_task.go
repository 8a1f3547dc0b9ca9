package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dwatch/displacement-watch/app/pipeline"
)

type DailyRunTask struct {
	Task
	runner  DailyRunner
	options pipeline.Options
	now     func() time.Time
}

func NewDailyRunTask(runner DailyRunner, options pipeline.Options, now func() time.Time) *DailyRunTask {
	return &DailyRunTask{
		Task:    NewTask(TaskTypeDailyRun),
		runner:  runner,
		options: options,
		now:     now,
	}
}

// Execute runs collection and selection. A retry starts a fresh run at the
// current time; the date's selection is replaced, not appended to.
func (t *DailyRunTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	now := t.now().UTC()

	summary, err := t.runner.RunDaily(ctx, now, t.options)
	if err != nil {
		return fmt.Errorf("failed to run daily pipeline: %w", err)
	}

	if err := t.runner.SaveReportMeta(ctx, summary, now); err != nil {
		return fmt.Errorf("failed to save report meta: %w", err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"run_id", summary.RunID,
		"date", summary.Date,
		"duration", t.GetDuration(),
		"stored", summary.Stored,
		"selected", summary.Selected,
		"failed_sources", summary.FailedSources)

	return nil
}

type ProposeQueryPackTask struct {
	Task
	proposer Proposer
	now      func() time.Time
}

func NewProposeQueryPackTask(proposer Proposer, now func() time.Time) *ProposeQueryPackTask {
	return &ProposeQueryPackTask{
		Task:     NewTask(TaskTypeProposeQueryPack),
		proposer: proposer,
		now:      now,
	}
}

func (t *ProposeQueryPackTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := t.proposer.Propose(ctx, t.now().UTC()); err != nil {
		return fmt.Errorf("failed to propose query pack: %w", err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"duration", t.GetDuration())

	return nil
}
