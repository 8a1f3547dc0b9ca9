package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dwatch/displacement-watch/app/pipeline"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	DefaultInterval    = 24 * time.Hour
	DefaultTaskTimeout = 15 * time.Minute

	maxRetryDelay = 30 * time.Second
	taskQueueSize = 16
)

type Config struct {
	Interval    time.Duration
	RunOnStart  bool
	RunOptions  pipeline.Options
	Refine      bool
	TaskTimeout time.Duration
}

// Scheduler queues a daily run every interval and executes tasks on a single
// worker, so runs in one process never overlap.
type Scheduler struct {
	runner         DailyRunner
	proposer       Proposer
	cfg            Config
	now            func() time.Time
	retryBaseDelay time.Duration
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	taskQueue      chan TaskInterface
}

// NewScheduler returns a stopped scheduler. proposer may be nil when
// cfg.Refine is false.
func NewScheduler(runner DailyRunner, proposer Proposer, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}

	return &Scheduler{
		runner:         runner,
		proposer:       proposer,
		cfg:            cfg,
		now:            time.Now,
		retryBaseDelay: time.Second,
		ctx:            ctx,
		cancel:         cancel,
		taskQueue:      make(chan TaskInterface, taskQueueSize),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		if s.cfg.RunOnStart {
			s.enqueueTasks()
		}

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()

	slog.Debug("Scheduler started", "interval", s.cfg.Interval, "refine", s.cfg.Refine)
}

// Stop cancels the running task and waits for the worker and pending
// retries to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueTasks() {
	runTask := NewDailyRunTask(s.runner, s.cfg.RunOptions, s.now)
	if err := s.EnqueueTask(runTask); err != nil {
		slog.Warn("Failed to enqueue DailyRunTask", "error", err)
		return
	}

	if s.cfg.Refine && s.proposer != nil {
		proposeTask := NewProposeQueryPackTask(s.proposer, s.now)
		if err := s.EnqueueTask(proposeTask); err != nil {
			slog.Warn("Failed to enqueue ProposeQueryPackTask", "error", err)
		}
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, s.cfg.TaskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if s.ctx.Err() != nil {
		return
	}

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	delay := retryDelay(task.GetRetryCount(), s.retryBaseDelay)

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", delay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		case <-time.After(delay):
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}
