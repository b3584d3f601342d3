package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var processed int32
	done := make(chan struct{}, 3)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&processed, 1)
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})

	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "job", Type: "export"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for jobs")
		}
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&processed))
}

func TestQueueRetriesThenReportsFailure(t *testing.T) {
	var attempts int32
	var mu sync.Mutex
	var failed Job
	failedCh := make(chan struct{})

	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	}, QueueConfig{
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
		OnFailure: func(ctx context.Context, job Job, err error) {
			mu.Lock()
			failed = job
			mu.Unlock()
			close(failedCh)
		},
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "j1"}))

	select {
	case <-failedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("failure handler not invoked")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
	mu.Lock()
	assert.Equal(t, "j1", failed.ID)
	assert.Equal(t, 3, failed.Attempt)
	mu.Unlock()
}

func TestEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	err := q.Enqueue(Job{ID: "x"})
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	q := NewQueue("backoff", nil, QueueConfig{RetryDelay: 100 * time.Millisecond, MaxRetryDelay: 350 * time.Millisecond})
	assert.Equal(t, 100*time.Millisecond, q.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, q.Backoff(2))
	assert.Equal(t, 350*time.Millisecond, q.Backoff(3))
}

func TestTryEnqueueReportsFullBuffer(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := NewQueue("full", func(ctx context.Context, job Job) error {
		started <- struct{}{}
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer q.Stop()
	defer close(release)

	require.NoError(t, q.TryEnqueue(Job{ID: "running"}))
	<-started
	require.NoError(t, q.TryEnqueue(Job{ID: "waiting"}))
	assert.Equal(t, 1, q.Depth())
	assert.ErrorIs(t, q.TryEnqueue(Job{ID: "overflow"}), ErrQueueFull)
}

func TestPanickingJobIsReportedAsFailure(t *testing.T) {
	failed := make(chan error, 1)
	var observed atomic.Int32
	q := NewQueue("panic", func(ctx context.Context, job Job) error {
		panic("bad row")
	}, QueueConfig{
		OnFailure: func(ctx context.Context, job Job, err error) { failed <- err },
		Observe:   func(job Job, err error, took time.Duration) { observed.Add(1) },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "p"}))
	select {
	case err := <-failed:
		assert.Contains(t, err.Error(), "bad row")
	case <-time.After(time.Second):
		t.Fatal("panic not reported")
	}
	assert.Equal(t, int32(1), observed.Load())
}

func TestJobTimeoutCancelsHandlerContext(t *testing.T) {
	failed := make(chan error, 1)
	q := NewQueue("slow", func(ctx context.Context, job Job) error {
		<-ctx.Done()
		return ctx.Err()
	}, QueueConfig{
		JobTimeout: 10 * time.Millisecond,
		OnFailure:  func(ctx context.Context, job Job, err error) { failed <- err },
	})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "s"}))
	select {
	case err := <-failed:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("timeout not applied")
	}
}
