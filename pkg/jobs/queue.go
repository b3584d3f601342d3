package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueStopped is returned when enqueueing on a queue that is not running.
	ErrQueueStopped = errors.New("queue not running")
	// ErrQueueFull is returned by TryEnqueue when the buffer has no room.
	ErrQueueFull = errors.New("queue full")
)

// Job is a unit of background work. Attempt counts failed runs so far.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// FailureHandler is invoked once a job has exhausted its retries.
type FailureHandler func(context.Context, Job, error)

// QueueConfig configures the worker pool. Zero values pick defaults.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay doubles per attempt up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// JobTimeout bounds a single run; zero means no bound.
	JobTimeout time.Duration
	OnFailure  FailureHandler
	// Observe sees every finished run, successful or not.
	Observe func(job Job, err error, took time.Duration)
	Logger  *zap.Logger
}

func (c QueueConfig) withDefaults() QueueConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BufferSize <= 0 {
		c.BufferSize = c.Workers * 4
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.MaxRetryDelay <= 0 {
		c.MaxRetryDelay = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Queue runs jobs on a fixed set of goroutines fed by a buffered channel.
// Failed jobs are re-enqueued after a backoff until MaxRetries is spent.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	log     *zap.Logger
	pending chan Job

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	stop    context.CancelFunc
	workers sync.WaitGroup
	timers  sync.WaitGroup
}

// NewQueue builds a stopped queue; call Start before enqueueing.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	cfg = cfg.withDefaults()
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		log:     cfg.Logger.With(zap.String("queue", name)),
		pending: make(chan Job, cfg.BufferSize),
	}
}

// Name is the label the queue logs under.
func (q *Queue) Name() string { return q.name }

// Depth reports jobs waiting for a worker.
func (q *Queue) Depth() int { return len(q.pending) }

// Start launches the workers. Calling it on a running queue does nothing.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.stop = context.WithCancel(ctx)
	q.running = true
	q.workers.Add(q.cfg.Workers)
	for i := 0; i < q.cfg.Workers; i++ {
		go q.loop(i)
	}
	q.log.Info("queue started", zap.Int("workers", q.cfg.Workers), zap.Int("buffer", q.cfg.BufferSize))
}

// Stop cancels the workers and waits for running jobs and pending retry
// timers to return. Buffered jobs that never started are dropped.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.stop()
	q.mu.Unlock()

	q.workers.Wait()
	q.timers.Wait()
	q.log.Info("queue stopped", zap.Int("dropped", len(q.pending)))
}

func (q *Queue) state() (context.Context, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.ctx, q.running
}

func (q *Queue) stamp(job Job) Job {
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	return job
}

// Enqueue adds a job, blocking while the buffer is full.
func (q *Queue) Enqueue(job Job) error {
	ctx, running := q.state()
	if !running {
		return fmt.Errorf("%s: %w", q.name, ErrQueueStopped)
	}
	select {
	case q.pending <- q.stamp(job):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", q.name, ErrQueueStopped)
	}
}

// TryEnqueue adds a job only if the buffer has room.
func (q *Queue) TryEnqueue(job Job) error {
	if _, running := q.state(); !running {
		return fmt.Errorf("%s: %w", q.name, ErrQueueStopped)
	}
	select {
	case q.pending <- q.stamp(job):
		return nil
	default:
		return fmt.Errorf("%s: %w", q.name, ErrQueueFull)
	}
}

// Backoff returns the delay before retry number attempt (1-based).
func (q *Queue) Backoff(attempt int) time.Duration {
	delay := q.cfg.RetryDelay
	for ; attempt > 1; attempt-- {
		delay *= 2
		if delay >= q.cfg.MaxRetryDelay {
			return q.cfg.MaxRetryDelay
		}
	}
	return delay
}

func (q *Queue) loop(worker int) {
	defer q.workers.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.pending:
			if err := q.run(job); err != nil {
				q.retry(job, err, worker)
			}
		}
	}
}

// run executes the handler once, turning a panic into an error.
func (q *Queue) run(job Job) (err error) {
	ctx := q.ctx
	if q.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.JobTimeout)
		defer cancel()
	}
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
		if q.cfg.Observe != nil {
			q.cfg.Observe(job, err, time.Since(started))
		}
	}()
	return q.handler(ctx, job)
}

func (q *Queue) retry(job Job, cause error, worker int) {
	job.Attempt++
	log := q.log.With(
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempt),
		zap.Int("worker", worker),
	)
	if job.Attempt > q.cfg.MaxRetries {
		log.Error("job gave up", zap.Error(cause))
		if q.cfg.OnFailure != nil {
			q.cfg.OnFailure(q.ctx, job, cause)
		}
		return
	}

	delay := q.Backoff(job.Attempt)
	log.Warn("job failed, will retry", zap.Duration("in", delay), zap.Error(cause))
	q.timers.Add(1)
	go func() {
		defer q.timers.Done()
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-q.ctx.Done():
		case <-t.C:
			if err := q.Enqueue(job); err != nil {
				log.Error("requeue failed", zap.Error(err))
			}
		}
	}()
}
