package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testTask is a simple task for testing.
type testTask struct {
	BaseTask
	executeFunc func(ctx context.Context, enqueuer TaskEnqueuer) error
}

func newTestTask(name, key string, fn func(ctx context.Context, enqueuer TaskEnqueuer) error) *testTask {
	return &testTask{
		BaseTask:    NewBaseTask(name, key),
		executeFunc: fn,
	}
}

func (t *testTask) Execute(ctx context.Context, enqueuer TaskEnqueuer) error {
	if t.executeFunc != nil {
		return t.executeFunc(ctx, enqueuer)
	}
	return nil
}

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func waitFor(t *testing.T, q *Queue) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return q.Wait(ctx)
}

func TestQueue_EnqueueAndComplete(t *testing.T) {
	q := New(zap.NewNop())

	var executed atomic.Bool
	result := q.Enqueue(newTestTask("test-task", "", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		executed.Store(true)
		return nil
	}))

	assert.Equal(t, EnqueueAccepted, result)
	require.NoError(t, waitFor(t, q))
	assert.True(t, executed.Load())
	assert.Equal(t, 1, q.Progress().Completed)
}

func TestQueue_TaskFailure(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(fastRetry(3)))

	expectedErr := errors.New("task failed")
	var attempts atomic.Int32
	q.Enqueue(newTestTask("failing-task", "", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		attempts.Add(1)
		return expectedErr
	}))

	err := waitFor(t, q)
	require.ErrorIs(t, err, expectedErr)
	assert.Equal(t, int32(1), attempts.Load(), "permanent errors are not retried")
	assert.True(t, q.HasFailures())
}

func TestQueue_RetriesTransientDatabaseErrors(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(fastRetry(3)))

	var attempts atomic.Int32
	q.Enqueue(newTestTask("flaky", "", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		if attempts.Add(1) < 3 {
			return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
		}
		return nil
	}))

	require.NoError(t, waitFor(t, q))
	assert.Equal(t, int32(3), attempts.Load())

	tasks := q.GetTasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, 2, tasks[0].RetryCount)
}

func TestQueue_GivesUpAfterMaxRetries(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(fastRetry(2)))

	var attempts atomic.Int32
	q.Enqueue(newTestTask("always-deadlocked", "", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		attempts.Add(1)
		return &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	}))

	err := waitFor(t, q)
	require.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestQueue_DuplicatePendingKeyIsDropped(t *testing.T) {
	q := New(zap.NewNop())

	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32

	// Occupy the serialized slot so the keyed tasks stay pending.
	q.Enqueue(newTestTask("blocker", "", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	keyed := func(ctx context.Context, enqueuer TaskEnqueuer) error {
		runs.Add(1)
		return nil
	}
	assert.Equal(t, EnqueueAccepted, q.Enqueue(newTestTask("sync", "k", keyed)))
	assert.Equal(t, EnqueueDuplicate, q.Enqueue(newTestTask("sync", "k", keyed)))
	assert.Equal(t, EnqueueDuplicate, q.Enqueue(newTestTask("sync", "k", keyed)))

	close(release)
	require.NoError(t, waitFor(t, q))
	assert.Equal(t, int32(1), runs.Load())
}

func TestQueue_EnqueueDuringRunSchedulesOneFollowUp(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewThrottledStrategy(4)))

	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var runs, active, maxActive atomic.Int32

	fn := func(ctx context.Context, enqueuer TaskEnqueuer) error {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		if runs.Add(1) == 1 {
			started <- struct{}{}
			<-release
		}
		return nil
	}

	assert.Equal(t, EnqueueAccepted, q.Enqueue(newTestTask("sync", "k", fn)))
	<-started

	assert.Equal(t, EnqueueMerged, q.Enqueue(newTestTask("sync", "k", fn)))
	assert.Equal(t, EnqueueDuplicate, q.Enqueue(newTestTask("sync", "k", fn)))

	// The follow-up must not start while the first run is active, even with free slots.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())

	close(release)
	require.NoError(t, waitFor(t, q))
	assert.Equal(t, int32(2), runs.Load())
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestQueue_DistinctKeysRunInParallel(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewThrottledStrategy(2)))

	var wg sync.WaitGroup
	wg.Add(2)
	both := make(chan struct{})
	go func() {
		wg.Wait()
		close(both)
	}()

	fn := func(ctx context.Context, enqueuer TaskEnqueuer) error {
		wg.Done()
		select {
		case <-both:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("tasks did not overlap")
		}
	}
	q.Enqueue(newTestTask("sync", "a", fn))
	q.Enqueue(newTestTask("sync", "b", fn))

	require.NoError(t, waitFor(t, q))
}

func TestQueue_ThrottledStrategyRespectsLimit(t *testing.T) {
	q := New(zap.NewNop(), WithStrategy(NewThrottledStrategy(2)))

	var active, maxActive atomic.Int32
	for i := 0; i < 8; i++ {
		q.Enqueue(newTestTask("work", "", func(ctx context.Context, enqueuer TaskEnqueuer) error {
			n := active.Add(1)
			defer active.Add(-1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return nil
		}))
	}

	require.NoError(t, waitFor(t, q))
	assert.LessOrEqual(t, maxActive.Load(), int32(2))
	assert.Equal(t, 8, q.Progress().Completed)
}

func TestQueue_TaskEnqueuesMoreTasks(t *testing.T) {
	q := New(zap.NewNop())

	var child atomic.Bool
	q.Enqueue(newTestTask("parent", "", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		enqueuer.Enqueue(newTestTask("child", "", func(ctx context.Context, enqueuer TaskEnqueuer) error {
			child.Store(true)
			return nil
		}))
		return nil
	}))

	require.NoError(t, waitFor(t, q))
	assert.True(t, child.Load())
	assert.Equal(t, 2, q.Progress().Completed)
}

func TestQueue_CancelStopsRunningAndPending(t *testing.T) {
	q := New(zap.NewNop())

	started := make(chan struct{})
	q.Enqueue(newTestTask("long", "a", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	q.Enqueue(newTestTask("never", "b", nil))
	<-started

	q.Cancel()
	require.NoError(t, waitFor(t, q))

	p := q.Progress()
	assert.Equal(t, 2, p.Cancelled)
	assert.Equal(t, EnqueueRejected, q.Enqueue(newTestTask("late", "c", nil)))
}

func TestQueue_ShutdownWaitsForRunningTask(t *testing.T) {
	q := New(zap.NewNop())

	started := make(chan struct{})
	release := make(chan struct{})
	q.Enqueue(newTestTask("running", "a", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		close(started)
		<-release
		return nil
	}))
	q.Enqueue(newTestTask("pending", "b", nil))
	<-started

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Shutdown(ctx))

	p := q.Progress()
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 1, p.Cancelled)
	assert.Equal(t, EnqueueRejected, q.Enqueue(newTestTask("late", "c", nil)))
}

func TestQueue_ShutdownDeadlineCancelsRunningTask(t *testing.T) {
	q := New(zap.NewNop())

	started := make(chan struct{})
	q.Enqueue(newTestTask("stuck", "", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Shutdown(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, q.Progress().Cancelled)
}

func TestQueue_RetentionPrunesFinishedTasks(t *testing.T) {
	q := New(zap.NewNop(), WithRetention(2))

	for i := 0; i < 5; i++ {
		q.Enqueue(newTestTask("work", "", nil))
	}

	require.NoError(t, waitFor(t, q))
	assert.Len(t, q.GetTasks(), 2)
}

func TestQueue_FailureSurvivesRetentionPruning(t *testing.T) {
	q := New(zap.NewNop(), WithRetention(3), WithRetryConfig(fastRetry(0)))

	failure := errors.New("spelling sync failed")
	q.Enqueue(newTestTask("bad", "", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		return failure
	}))
	for i := 0; i < 5; i++ {
		q.Enqueue(newTestTask("ok", "", nil))
	}

	err := waitFor(t, q)

	require.ErrorIs(t, err, failure)
	assert.True(t, q.HasFailures())
	assert.Len(t, q.GetTasks(), 3)
	p := q.Progress()
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, 5, p.Completed)
	assert.Equal(t, 6, p.Total)
}

func TestQueue_MultipleBatchesWait(t *testing.T) {
	q := New(zap.NewNop())

	q.Enqueue(newTestTask("first", "", nil))
	require.NoError(t, waitFor(t, q))

	var second atomic.Bool
	q.Enqueue(newTestTask("second", "", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		time.Sleep(5 * time.Millisecond)
		second.Store(true)
		return nil
	}))
	require.NoError(t, waitFor(t, q))
	assert.True(t, second.Load())
}

func TestQueue_EmptyQueue(t *testing.T) {
	q := New(zap.NewNop())

	require.NoError(t, waitFor(t, q))
	assert.True(t, q.IsComplete())
	assert.Equal(t, 100, q.Progress().Percentage())
}

// fakeUniqueLock is an in-memory UniqueLock. Keys in foreign are held by another process.
type fakeUniqueLock struct {
	mu       sync.Mutex
	held     map[string]bool
	foreign  map[string]bool
	err      error
	released []string
}

func newFakeUniqueLock() *fakeUniqueLock {
	return &fakeUniqueLock{held: map[string]bool{}, foreign: map[string]bool{}}
}

func (f *fakeUniqueLock) Acquire(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.foreign[key] {
		return false, nil
	}
	f.held[key] = true
	return true, nil
}

func (f *fakeUniqueLock) Release(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
	f.released = append(f.released, key)
	return nil
}

func (f *fakeUniqueLock) isHeld(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.held[key]
}

func TestQueue_UniqueLockHeldElsewhere(t *testing.T) {
	lock := newFakeUniqueLock()
	lock.foreign["k"] = true
	q := New(zap.NewNop(), WithUniqueLock(lock))

	assert.Equal(t, EnqueueLocked, q.Enqueue(newTestTask("sync", "k", nil)))
	assert.Equal(t, EnqueueAccepted, q.Enqueue(newTestTask("sync", "other", nil)))
	require.NoError(t, waitFor(t, q))
}

func TestQueue_UniqueLockReleasedWhenTaskStarts(t *testing.T) {
	lock := newFakeUniqueLock()
	q := New(zap.NewNop(), WithUniqueLock(lock))

	var heldDuringRun atomic.Bool
	q.Enqueue(newTestTask("sync", "k", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		heldDuringRun.Store(lock.isHeld("k"))
		return nil
	}))

	require.NoError(t, waitFor(t, q))
	assert.False(t, heldDuringRun.Load())
	assert.False(t, lock.isHeld("k"))
}

func TestQueue_UniqueLockFailureFailsOpen(t *testing.T) {
	lock := newFakeUniqueLock()
	lock.err = errors.New("connection refused")
	q := New(zap.NewNop(), WithUniqueLock(lock))

	var ran atomic.Bool
	result := q.Enqueue(newTestTask("sync", "k", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		ran.Store(true)
		return nil
	}))

	assert.Equal(t, EnqueueAccepted, result)
	require.NoError(t, waitFor(t, q))
	assert.True(t, ran.Load())
}

func TestQueue_CancelReleasesPendingLocks(t *testing.T) {
	lock := newFakeUniqueLock()
	q := New(zap.NewNop(), WithUniqueLock(lock))

	started := make(chan struct{})
	q.Enqueue(newTestTask("blocker", "", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-started
	q.Enqueue(newTestTask("sync", "k", nil))
	require.True(t, lock.isHeld("k"))

	q.Cancel()
	require.NoError(t, waitFor(t, q))
	assert.False(t, lock.isHeld("k"))
}

// gatedUniqueLock blocks Acquire for "slow" until release is closed.
type gatedUniqueLock struct {
	*fakeUniqueLock
	entered chan struct{}
	release chan struct{}
}

func (g *gatedUniqueLock) Acquire(ctx context.Context, key string) (bool, error) {
	if key == "slow" {
		close(g.entered)
		<-g.release
	}
	return g.fakeUniqueLock.Acquire(ctx, key)
}

func TestQueue_SlowUniqueLockDoesNotBlockQueue(t *testing.T) {
	lock := &gatedUniqueLock{
		fakeUniqueLock: newFakeUniqueLock(),
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	q := New(zap.NewNop(), WithUniqueLock(lock))

	slow := make(chan EnqueueResult, 1)
	go func() {
		slow <- q.Enqueue(newTestTask("sync", "slow", nil))
	}()
	<-lock.entered

	// The queue stays usable while the lock backend is stuck.
	assert.Equal(t, 0, q.Progress().Failed)
	assert.Equal(t, EnqueueDuplicate, q.Enqueue(newTestTask("sync", "slow", nil)))
	assert.Equal(t, EnqueueAccepted, q.Enqueue(newTestTask("sync", "fast", nil)))
	require.NoError(t, waitFor(t, q))

	close(lock.release)
	assert.Equal(t, EnqueueAccepted, <-slow)
	require.NoError(t, waitFor(t, q))
	assert.Equal(t, 2, q.Progress().Completed)
}

func TestQueue_ShutdownDuringLockAcquireRejects(t *testing.T) {
	lock := &gatedUniqueLock{
		fakeUniqueLock: newFakeUniqueLock(),
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	q := New(zap.NewNop(), WithUniqueLock(lock))

	slow := make(chan EnqueueResult, 1)
	go func() {
		slow <- q.Enqueue(newTestTask("sync", "slow", nil))
	}()
	<-lock.entered

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Shutdown(ctx))

	close(lock.release)
	assert.Equal(t, EnqueueRejected, <-slow)
	assert.False(t, lock.isHeld("slow"))
}

type recordingObserver struct {
	mu       sync.Mutex
	enqueued []EnqueueResult
	finished []TaskStatus
}

func (o *recordingObserver) TaskEnqueued(name string, result EnqueueResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enqueued = append(o.enqueued, result)
}

func (o *recordingObserver) TaskFinished(name string, status TaskStatus, duration time.Duration, retries int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, status)
}

func TestQueue_ObserverSeesEvents(t *testing.T) {
	obs := &recordingObserver{}
	q := New(zap.NewNop(), WithObserver(obs), WithRetryConfig(fastRetry(0)))

	release := make(chan struct{})
	started := make(chan struct{})
	q.Enqueue(newTestTask("blocker", "", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	q.Enqueue(newTestTask("sync", "k", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		return errors.New("boom")
	}))
	q.Enqueue(newTestTask("sync", "k", nil))
	close(release)

	require.Error(t, waitFor(t, q))

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, []EnqueueResult{EnqueueAccepted, EnqueueAccepted, EnqueueDuplicate}, obs.enqueued)
	assert.ElementsMatch(t, []TaskStatus{TaskStatusCompleted, TaskStatusFailed}, obs.finished)
}

func TestQueue_Progress(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(fastRetry(0)))

	q.Enqueue(newTestTask("ok", "", nil))
	q.Enqueue(newTestTask("bad", "", func(ctx context.Context, enqueuer TaskEnqueuer) error {
		return errors.New("nope")
	}))
	_ = waitFor(t, q)

	p := q.Progress()
	assert.Equal(t, 2, p.Total)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 1, p.Failed)
	assert.Equal(t, 100, p.Percentage())
}

func TestTaskSnapshot(t *testing.T) {
	task := newTestTask("snap", "key-1", nil)
	ts := NewTaskState(task)
	ts.SetError(errors.New("bad"))
	ts.SetStatus(TaskStatusFailed)

	snap := ts.Snapshot()
	assert.Equal(t, task.ID(), snap.ID)
	assert.Equal(t, "snap", snap.Name)
	assert.Equal(t, "key-1", snap.Key)
	assert.Equal(t, TaskStatusFailed, snap.Status)
	assert.Equal(t, "bad", snap.Error)
	assert.NotNil(t, snap.CompletedAt)
	assert.Nil(t, snap.StartedAt)
}

func TestTaskStatus_Terminal(t *testing.T) {
	assert.False(t, TaskStatusPending.Terminal())
	assert.False(t, TaskStatusRunning.Terminal())
	assert.True(t, TaskStatusCompleted.Terminal())
	assert.True(t, TaskStatusFailed.Terminal())
	assert.True(t, TaskStatusCancelled.Terminal())
}

func TestProgress_Percentage(t *testing.T) {
	tests := []struct {
		p    Progress
		want int
	}{
		{Progress{}, 100},
		{Progress{Total: 4, Completed: 1}, 25},
		{Progress{Total: 4, Completed: 1, Failed: 1, Cancelled: 1}, 75},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.p.Percentage())
	}
}
