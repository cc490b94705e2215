package workqueue

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inventory-app/glossary-sync/pkg/retry"
)

// RetryConfig configures retry behavior for failed tasks.
type RetryConfig struct {
	MaxRetries     int           // Maximum number of retry attempts (0 = no retries)
	InitialBackoff time.Duration // Initial backoff duration
	MaxBackoff     time.Duration // Maximum backoff duration (cap)
	BackoffFactor  float64       // Multiplier for exponential backoff
}

// DefaultRetryConfig returns sensible defaults for retry behavior.
// Backoff schedule: 500ms, 1s, 2s, 4s, 8s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

// Observer receives queue events, typically to export metrics.
type Observer interface {
	TaskEnqueued(name string, result EnqueueResult)
	TaskFinished(name string, status TaskStatus, duration time.Duration, retries int)
}

// uniqueLockTimeout bounds each call to the cross-process lock.
const uniqueLockTimeout = 2 * time.Second

// Queue runs tasks with deduplication by key and configurable concurrency.
//
// For each non-empty key the queue holds at most one pending and at most one
// running task. Enqueuing a key that is already pending drops the new task.
// Enqueuing a key that is running but not pending adds one pending follow-up,
// which starts only after the running task ends. Two tasks with the same key
// never run at the same time.
type Queue struct {
	mu        sync.Mutex
	tasks     []*TaskState
	cancelled bool

	// pending and running index live tasks by key
	pending map[string]*TaskState
	running map[string]*TaskState
	// reserved holds keys whose cross-process lock is being acquired
	reserved map[string]struct{}

	// Terminal counts and the first failure survive pruning of q.tasks.
	completedCount int
	failedCount    int
	cancelledCount int
	firstErr       error

	// Concurrency control strategy
	strategy ConcurrencyStrategy

	// Retry configuration for transient errors
	retryConfig RetryConfig

	// retention is the number of terminal tasks kept for Progress and GetTasks
	retention int

	unique   UniqueLock
	observer Observer

	// done is closed when all tasks complete
	done chan struct{}
	// wg tracks running goroutines
	wg sync.WaitGroup

	// Cancellation context for running tasks
	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithStrategy sets the concurrency strategy.
func WithStrategy(strategy ConcurrencyStrategy) QueueOption {
	return func(q *Queue) {
		if strategy != nil {
			q.strategy = strategy
		}
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(config RetryConfig) QueueOption {
	return func(q *Queue) {
		q.retryConfig = config
	}
}

// WithUniqueLock enables cross-process deduplication of pending keys.
func WithUniqueLock(lock UniqueLock) QueueOption {
	return func(q *Queue) {
		q.unique = lock
	}
}

// WithObserver registers an observer for queue events.
func WithObserver(observer Observer) QueueOption {
	return func(q *Queue) {
		q.observer = observer
	}
}

// WithRetention sets how many finished tasks are kept. Zero keeps none.
func WithRetention(n int) QueueOption {
	return func(q *Queue) {
		if n >= 0 {
			q.retention = n
		}
	}
}

// New creates a new work queue with the given options.
// The default strategy runs one task at a time.
func New(logger *zap.Logger, opts ...QueueOption) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		tasks:       make([]*TaskState, 0),
		pending:     make(map[string]*TaskState),
		running:     make(map[string]*TaskState),
		reserved:    make(map[string]struct{}),
		strategy:    NewSerializedStrategy(),
		retryConfig: DefaultRetryConfig(),
		retention:   1000,
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.Named("workqueue"),
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Enqueue adds a task to the queue and attempts to start eligible tasks.
func (q *Queue) Enqueue(task Task) EnqueueResult {
	result := q.enqueue(task)
	if q.observer != nil {
		q.observer.TaskEnqueued(task.Name(), result)
	}
	return result
}

func (q *Queue) enqueue(task Task) EnqueueResult {
	key := task.Key()

	q.mu.Lock()
	if result, ok := q.admitLocked(task); !ok {
		q.mu.Unlock()
		return result
	}
	if key == "" || q.unique == nil {
		result := q.addLocked(task)
		q.mu.Unlock()
		return result
	}
	// Concurrent enqueues of key see it as pending while the lock backend is consulted.
	q.reserved[key] = struct{}{}
	q.mu.Unlock()

	acquired := q.acquireUnique(key)

	q.mu.Lock()
	delete(q.reserved, key)
	if !acquired {
		q.mu.Unlock()
		q.logger.Debug("task pending in another process, dropping",
			zap.String("task_name", task.Name()),
			zap.String("key", key))
		return EnqueueLocked
	}
	if q.cancelled {
		q.mu.Unlock()
		q.releaseUnique(key)
		return EnqueueRejected
	}
	result := q.addLocked(task)
	q.mu.Unlock()
	return result
}

// admitLocked rejects tasks the queue will not take. ok is false when the task is refused.
// Must be called with lock held.
func (q *Queue) admitLocked(task Task) (result EnqueueResult, ok bool) {
	if q.cancelled {
		q.logger.Warn("queue cancelled, ignoring enqueue",
			zap.String("task_id", task.ID()),
			zap.String("task_name", task.Name()))
		return EnqueueRejected, false
	}

	key := task.Key()
	if key == "" {
		return EnqueueAccepted, true
	}
	_, pending := q.pending[key]
	_, reserved := q.reserved[key]
	if pending || reserved {
		q.logger.Debug("task already pending, dropping duplicate",
			zap.String("task_name", task.Name()),
			zap.String("key", key))
		return EnqueueDuplicate, false
	}
	return EnqueueAccepted, true
}

// addLocked appends an admitted task and starts whatever is eligible.
// Must be called with lock held.
func (q *Queue) addLocked(task Task) EnqueueResult {
	key := task.Key()
	result := EnqueueAccepted
	if _, ok := q.running[key]; key != "" && ok {
		result = EnqueueMerged
	}

	// Reset done channel if it was closed from a previous batch
	q.resetDoneLocked()

	state := NewTaskState(task)
	q.tasks = append(q.tasks, state)
	if key != "" {
		q.pending[key] = state
	}

	q.logger.Debug("task enqueued",
		zap.String("task_id", task.ID()),
		zap.String("task_name", task.Name()),
		zap.String("key", key),
		zap.String("result", string(result)))

	q.tryStartTasksLocked()
	return result
}

// acquireUnique reserves key across processes. A lock backend failure
// is logged and treated as acquired: the database lock taken by each run still
// keeps same-key work serialized.
// Must be called without the queue lock held.
func (q *Queue) acquireUnique(key string) bool {
	ctx, cancel := context.WithTimeout(q.ctx, uniqueLockTimeout)
	defer cancel()

	ok, err := q.unique.Acquire(ctx, key)
	if err != nil {
		q.logger.Warn("unique lock unavailable, continuing without it",
			zap.String("key", key),
			zap.Error(err))
		return true
	}
	return ok
}

func (q *Queue) releaseUnique(key string) {
	if q.unique == nil || key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), uniqueLockTimeout)
	defer cancel()

	if err := q.unique.Release(ctx, key); err != nil {
		q.logger.Warn("failed to release unique lock",
			zap.String("key", key),
			zap.Error(err))
	}
}

// tryStartTasksLocked checks constraints and starts eligible tasks in enqueue order.
// Must be called with lock held.
func (q *Queue) tryStartTasksLocked() {
	if q.cancelled {
		return
	}

	for _, ts := range q.tasks {
		if ts.GetStatus() != TaskStatusPending {
			continue
		}
		if !q.strategy.CanStart() {
			return
		}

		key := ts.Task.Key()
		if key != "" {
			if _, busy := q.running[key]; busy {
				continue
			}
			delete(q.pending, key)
			q.running[key] = ts
		}

		q.strategy.OnStart()
		ts.SetStatus(TaskStatusRunning)

		q.logger.Debug("starting task",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()),
			zap.String("key", key))

		q.wg.Add(1)
		go q.runTask(ts)
	}
}

// runTask executes a task with retry logic for transient errors.
func (q *Queue) runTask(ts *TaskState) {
	defer q.wg.Done()

	// The key is no longer pending; let other processes queue new work for it.
	q.releaseUnique(ts.Task.Key())

	var lastErr error

	for attempt := 0; attempt <= q.retryConfig.MaxRetries; attempt++ {
		// Wait before retry (skip on first attempt)
		if attempt > 0 {
			backoff := q.calculateBackoff(attempt)
			q.logger.Info("retrying task after backoff",
				zap.String("task_id", ts.Task.ID()),
				zap.String("task_name", ts.Task.Name()),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", q.retryConfig.MaxRetries),
				zap.Duration("backoff", backoff))

			select {
			case <-q.ctx.Done():
				q.completeTask(ts, q.ctx.Err())
				return
			case <-time.After(backoff):
			}
		}

		err := ts.Task.Execute(q.ctx, q)
		if err == nil {
			q.completeTask(ts, nil)
			return
		}

		lastErr = err

		if errors.Is(err, context.Canceled) {
			break
		}

		if !retry.IsRetryable(err) {
			q.logger.Warn("non-retryable error, failing task immediately",
				zap.String("task_id", ts.Task.ID()),
				zap.String("task_name", ts.Task.Name()),
				zap.Error(err))
			break
		}

		retryCount := ts.IncrementRetryCount()

		if attempt >= q.retryConfig.MaxRetries {
			q.logger.Error("task failed after max retries",
				zap.String("task_id", ts.Task.ID()),
				zap.String("task_name", ts.Task.Name()),
				zap.Int("retry_count", retryCount),
				zap.Error(err))
			break
		}

		q.logger.Warn("retryable error encountered",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", q.retryConfig.MaxRetries),
			zap.Error(err))
	}

	q.completeTask(ts, lastErr)
}

// calculateBackoff computes the backoff duration for a retry attempt.
// Uses exponential backoff with jitter.
func (q *Queue) calculateBackoff(attempt int) time.Duration {
	backoff := float64(q.retryConfig.InitialBackoff) *
		math.Pow(q.retryConfig.BackoffFactor, float64(attempt-1))

	if backoff > float64(q.retryConfig.MaxBackoff) {
		backoff = float64(q.retryConfig.MaxBackoff)
	}

	// Add jitter (±10%) to prevent thundering herd
	jitter := backoff * 0.1 * (rand.Float64()*2 - 1)

	return time.Duration(backoff + jitter)
}

// completeTask moves a running task to its terminal state and starts whatever became eligible,
// including a pending follow-up for the same key.
func (q *Queue) completeTask(ts *TaskState, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.strategy.OnComplete()
	if key := ts.Task.Key(); key != "" {
		delete(q.running, key)
	}

	switch {
	case err == nil:
		ts.SetStatus(TaskStatusCompleted)
		q.completedCount++
		q.logger.Debug("task completed",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()),
			zap.Int("retry_count", ts.GetRetryCount()))
	case errors.Is(err, context.Canceled):
		ts.SetStatus(TaskStatusCancelled)
		q.cancelledCount++
		q.logger.Info("task cancelled",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()))
	default:
		ts.SetError(err)
		ts.SetStatus(TaskStatusFailed)
		q.failedCount++
		if q.firstErr == nil {
			q.firstErr = err
		}
		q.logger.Error("task failed",
			zap.String("task_id", ts.Task.ID()),
			zap.String("task_name", ts.Task.Name()),
			zap.String("key", ts.Task.Key()),
			zap.Int("retry_count", ts.GetRetryCount()),
			zap.Error(err))
	}

	if q.observer != nil {
		q.observer.TaskFinished(ts.Task.Name(), ts.GetStatus(), ts.runDuration(), ts.GetRetryCount())
	}

	q.pruneLocked()

	if q.allTasksDoneLocked() {
		q.closeDoneLocked()
		return
	}

	q.tryStartTasksLocked()
}

// pruneLocked drops the oldest terminal tasks beyond the retention limit.
// Must be called with lock held.
func (q *Queue) pruneLocked() {
	terminal := 0
	for _, ts := range q.tasks {
		if ts.GetStatus().Terminal() {
			terminal++
		}
	}
	excess := terminal - q.retention
	if excess <= 0 {
		return
	}

	kept := q.tasks[:0]
	for _, ts := range q.tasks {
		if excess > 0 && ts.GetStatus().Terminal() {
			excess--
			continue
		}
		kept = append(kept, ts)
	}
	for i := len(kept); i < len(q.tasks); i++ {
		q.tasks[i] = nil
	}
	q.tasks = kept
}

// allTasksDoneLocked returns true if all tasks are in a terminal state.
// Must be called with lock held.
func (q *Queue) allTasksDoneLocked() bool {
	for _, ts := range q.tasks {
		if !ts.GetStatus().Terminal() {
			return false
		}
	}
	return true
}

// closeDoneLocked safely closes the done channel.
// Must be called with lock held.
func (q *Queue) closeDoneLocked() {
	select {
	case <-q.done:
	default:
		close(q.done)
	}
}

// resetDoneLocked recreates the done channel if it was closed.
// This allows the queue to be reused for multiple batches of work.
// Must be called with lock held.
func (q *Queue) resetDoneLocked() {
	select {
	case <-q.done:
		q.done = make(chan struct{})
	default:
	}
}

// GetTasks returns a snapshot of all retained tasks.
func (q *Queue) GetTasks() []TaskSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshots := make([]TaskSnapshot, len(q.tasks))
	for i, ts := range q.tasks {
		snapshots[i] = ts.Snapshot()
	}
	return snapshots
}

// Wait blocks until all tasks complete or the context is cancelled.
// Returns nil if all tasks completed successfully or queue is empty.
// Returns the first task error if any task failed, even if that task was since pruned.
// Returns ctx.Err() if the context was cancelled; the queue keeps running in that case.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	if q.allTasksDoneLocked() {
		err := q.firstErrorLocked()
		q.mu.Unlock()
		return err
	}
	done := q.done
	q.mu.Unlock()

	select {
	case <-done:
		q.mu.Lock()
		defer q.mu.Unlock()
		return q.firstErrorLocked()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) firstErrorLocked() error {
	return q.firstErr
}

// Cancel marks the queue as cancelled, signals running tasks to stop,
// and stops accepting new tasks.
func (q *Queue) Cancel() {
	q.mu.Lock()

	if q.cancelled {
		q.mu.Unlock()
		return
	}

	q.cancelled = true
	q.logger.Info("queue cancelled, signaling running tasks to stop")

	q.cancel()

	var released []string
	for _, ts := range q.tasks {
		if ts.GetStatus() == TaskStatusPending {
			ts.SetStatus(TaskStatusCancelled)
			q.cancelledCount++
			if key := ts.Task.Key(); key != "" {
				delete(q.pending, key)
				released = append(released, key)
			}
		}
	}

	if q.allTasksDoneLocked() {
		q.closeDoneLocked()
	}
	q.mu.Unlock()

	for _, key := range released {
		q.releaseUnique(key)
	}
}

// Shutdown stops accepting tasks, cancels pending ones and waits for running
// tasks to finish. If ctx ends first, running tasks are cancelled as well.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.cancelled = true
	var released []string
	for _, ts := range q.tasks {
		if ts.GetStatus() == TaskStatusPending {
			ts.SetStatus(TaskStatusCancelled)
			q.cancelledCount++
			if key := ts.Task.Key(); key != "" {
				delete(q.pending, key)
				released = append(released, key)
			}
		}
	}
	if q.allTasksDoneLocked() {
		q.closeDoneLocked()
	}
	q.mu.Unlock()

	for _, key := range released {
		q.releaseUnique(key)
	}

	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.logger.Warn("shutdown deadline reached, cancelling running tasks")
		q.cancel()
		<-finished
		return ctx.Err()
	}
}

// IsComplete returns true if all tasks have completed (success or failure).
func (q *Queue) IsComplete() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.allTasksDoneLocked()
}

// HasFailures returns true if any task failed since the queue was created.
func (q *Queue) HasFailures() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.firstErrorLocked() != nil
}

// PendingCount returns the number of pending tasks.
func (q *Queue) PendingCount() int {
	return q.Progress().Pending
}

// Progress returns a progress summary. Finished counts include pruned tasks.
func (q *Queue) Progress() Progress {
	q.mu.Lock()
	defer q.mu.Unlock()

	p := Progress{
		Completed: q.completedCount,
		Failed:    q.failedCount,
		Cancelled: q.cancelledCount,
	}
	for _, ts := range q.tasks {
		switch ts.GetStatus() {
		case TaskStatusPending:
			p.Pending++
		case TaskStatusRunning:
			p.Running++
		}
	}
	p.Total = p.Pending + p.Running + p.Completed + p.Failed + p.Cancelled
	return p
}

// Progress holds queue progress statistics.
type Progress struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// Percentage returns the completion percentage (0-100).
func (p Progress) Percentage() int {
	if p.Total == 0 {
		return 100
	}
	done := p.Completed + p.Failed + p.Cancelled
	return (done * 100) / p.Total
}
