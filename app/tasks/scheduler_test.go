package tasks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwatch/displacement-watch/app/pipeline"
)

var refTime = time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

// MockRunner fails its first failures calls and tracks concurrent runs.
type MockRunner struct {
	mu        sync.Mutex
	calls     int
	saved     int
	failures  int
	active    int32
	maxActive int32
	delay     time.Duration
	opts      []pipeline.Options
}

func (m *MockRunner) RunDaily(ctx context.Context, now time.Time, opts pipeline.Options) (*pipeline.RunSummary, error) {
	active := atomic.AddInt32(&m.active, 1)
	defer atomic.AddInt32(&m.active, -1)
	for {
		current := atomic.LoadInt32(&m.maxActive)
		if active <= current || atomic.CompareAndSwapInt32(&m.maxActive, current, active) {
			break
		}
	}

	time.Sleep(m.delay)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.opts = append(m.opts, opts)
	if m.calls <= m.failures {
		return nil, errors.New("store unavailable")
	}
	return &pipeline.RunSummary{RunID: pipeline.RunID(now), Date: now.Format("2006-01-02")}, nil
}

func (m *MockRunner) SaveReportMeta(context.Context, *pipeline.RunSummary, time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved++
	return nil
}

func (m *MockRunner) counts() (int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls, m.saved
}

type MockProposer struct {
	calls atomic.Int32
}

func (m *MockProposer) Propose(context.Context, time.Time) error {
	m.calls.Add(1)
	return nil
}

func newTestScheduler(runner DailyRunner, proposer Proposer, cfg Config) *Scheduler {
	s := NewScheduler(runner, proposer, cfg)
	s.now = func() time.Time { return refTime }
	s.retryBaseDelay = time.Millisecond
	return s
}

func TestScheduler_RunOnStart(t *testing.T) {
	runner := &MockRunner{}
	proposer := &MockProposer{}
	s := newTestScheduler(runner, proposer, Config{
		Interval:   time.Hour,
		RunOnStart: true,
		Refine:     true,
		RunOptions: pipeline.Options{SinceHours: 12, MaxTop: 6},
	})

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		calls, saved := runner.counts()
		return calls == 1 && saved == 1 && proposer.calls.Load() == 1
	}, 2*time.Second, 5*time.Millisecond)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, pipeline.Options{SinceHours: 12, MaxTop: 6}, runner.opts[0])
}

func TestScheduler_RetriesFailedRun(t *testing.T) {
	runner := &MockRunner{failures: 2}
	s := newTestScheduler(runner, nil, Config{Interval: time.Hour, RunOnStart: true})

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		calls, saved := runner.counts()
		return calls == 3 && saved == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestScheduler_GivesUpAfterMaxRetries(t *testing.T) {
	runner := &MockRunner{failures: 100}
	s := newTestScheduler(runner, nil, Config{Interval: time.Hour, RunOnStart: true})

	s.Start()

	require.Eventually(t, func() bool {
		calls, _ := runner.counts()
		return calls == DefaultMaxRetries+1
	}, 2*time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	s.Stop()

	calls, saved := runner.counts()
	assert.Equal(t, DefaultMaxRetries+1, calls)
	assert.Equal(t, 0, saved)
}

func TestScheduler_RunsNeverOverlap(t *testing.T) {
	runner := &MockRunner{delay: 20 * time.Millisecond}
	s := newTestScheduler(runner, nil, Config{Interval: time.Hour})

	s.Start()
	defer s.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.EnqueueTask(NewDailyRunTask(runner, pipeline.Options{}, s.now)))
	}

	require.Eventually(t, func() bool {
		calls, _ := runner.counts()
		return calls == 3
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.maxActive))
}

func TestScheduler_EnqueueAfterStop(t *testing.T) {
	s := newTestScheduler(&MockRunner{}, nil, Config{Interval: time.Hour})
	s.Start()
	s.Stop()

	err := s.EnqueueTask(NewDailyRunTask(&MockRunner{}, pipeline.Options{}, s.now))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScheduler_QueueFull(t *testing.T) {
	s := newTestScheduler(&MockRunner{}, nil, Config{Interval: time.Hour})
	defer s.Stop()

	for i := 0; i < taskQueueSize; i++ {
		require.NoError(t, s.EnqueueTask(NewDailyRunTask(&MockRunner{}, pipeline.Options{}, s.now)))
	}

	err := s.EnqueueTask(NewDailyRunTask(&MockRunner{}, pipeline.Options{}, s.now))
	assert.EqualError(t, err, "task queue is full")
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, time.Second, retryDelay(1, time.Second))
	assert.Equal(t, 2*time.Second, retryDelay(2, time.Second))
	assert.Equal(t, 4*time.Second, retryDelay(3, time.Second))
	assert.Equal(t, maxRetryDelay, retryDelay(10, time.Second))
}

func TestTask_Retries(t *testing.T) {
	task := NewTask(TaskTypeDailyRun)

	assert.Equal(t, TaskTypeDailyRun, task.GetType())
	assert.NotEmpty(t, task.GetID())
	assert.Equal(t, time.Duration(0), task.GetDuration())

	for i := 0; i < DefaultMaxRetries; i++ {
		assert.True(t, task.CanRetry())
		task.IncrementRetryCount()
	}
	assert.False(t, task.CanRetry())

	task.Start()
	assert.NotNil(t, task.StartedAt)
}

func TestDailyRunTask_CancelledContext(t *testing.T) {
	runner := &MockRunner{}
	task := NewDailyRunTask(runner, pipeline.Options{}, func() time.Time { return refTime })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, task.Execute(ctx), context.Canceled)
	calls, _ := runner.counts()
	assert.Equal(t, 0, calls)
}
