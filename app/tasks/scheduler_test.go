package tasks

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

type stubTask struct {
	Task
	executed atomic.Int32
	fail     int32
}

func (t *stubTask) Execute(ctx context.Context) error {
	n := t.executed.Add(1)
	if n <= t.fail {
		return fmt.Errorf("transient failure %d", n)
	}
	return nil
}

func newTestScheduler(workers int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		universeRepo: &MockUniverseRepository{},
		cacheTTL:     time.Hour,
		workerCount:  workers,
		ctx:          ctx,
		cancel:       cancel,
		taskQueue:    make(chan TaskInterface, 10),
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Condition not met before timeout")
}

func TestScheduler_ExecutesEnqueuedTask(t *testing.T) {
	scheduler := newTestScheduler(2)
	scheduler.Start()
	defer scheduler.Stop()

	task := &stubTask{Task: NewTask(TaskTypeAnalyzeRun, "run-1")}
	if err := scheduler.EnqueueTask(task); err != nil {
		t.Fatalf("Unexpected enqueue error: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return task.executed.Load() == 1 })
}

func TestScheduler_RetriesFailedTask(t *testing.T) {
	scheduler := newTestScheduler(1)
	scheduler.Start()
	defer scheduler.Stop()

	task := &stubTask{Task: NewTask(TaskTypeAnalyzeRun, "run-1"), fail: 1}
	if err := scheduler.EnqueueTask(task); err != nil {
		t.Fatalf("Unexpected enqueue error: %v", err)
	}

	// First attempt fails, the retry succeeds after backoff.
	waitFor(t, 5*time.Second, func() bool { return task.executed.Load() == 2 })

	if task.GetRetryCount() != 1 {
		t.Errorf("Expected 1 retry, got %d", task.GetRetryCount())
	}
}

func TestTask_RetryBookkeeping(t *testing.T) {
	task := NewTask(TaskTypeAnalyzeRun, "run-1")

	if task.ID == "" {
		t.Error("Expected a generated task ID")
	}
	if !task.CanRetry() {
		t.Error("Expected a fresh task to be retryable")
	}

	for task.CanRetry() {
		task.IncrementRetryCount()
	}
	if task.GetRetryCount() != DefaultMaxRetries {
		t.Errorf("Expected retry count to stop at %d, got %d", DefaultMaxRetries, task.GetRetryCount())
	}

	if task.GetDuration() != 0 {
		t.Error("Expected zero duration before Start")
	}
	task.Start()
	if task.GetDuration() < 0 {
		t.Error("Expected non-negative duration after Start")
	}
}
