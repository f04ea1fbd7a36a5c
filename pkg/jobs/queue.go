// Package jobs runs named background jobs on a worker pool and keeps their
// status for later inspection.
//
// A job is enqueued with a name and arguments and gets an id back
// immediately. Its status moves queued -> started -> finished or failed.
// Every job runs under a wall-clock budget; handlers must honour ctx.
// Finished jobs are kept in memory for the retention period and are lost on
// restart.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/beacon/pkg/async"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// Status is the lifecycle state of a job
type Status string

const (
	StatusQueued   Status = "queued"
	StatusStarted  Status = "started"
	StatusFinished Status = "finished"
	StatusFailed   Status = "failed"
)

// Done reports whether the job has reached a terminal state
func (s Status) Done() bool {
	return s == StatusFinished || s == StatusFailed
}

var (
	// ErrUnknownJob is returned when enqueueing a name with no handler
	ErrUnknownJob = errors.New("unknown job")
	// ErrQueueFull is returned when the pending queue has no room
	ErrQueueFull = errors.New("job queue is full")
	// ErrQueueClosed is returned after Shutdown
	ErrQueueClosed = errors.New("job queue is shut down")
)

// Args are the job arguments
type Args map[string]interface{}

// Int returns an integer argument, accepting the numeric types JSON and Go
// callers produce.
func (a Args) Int(key string) (int, error) {
	switch v := a[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case nil:
		return 0, fmt.Errorf("missing argument %q", key)
	default:
		return 0, fmt.Errorf("argument %q has type %T, want integer", key, v)
	}
}

// Handler executes a job. The returned value is stored as the job result.
type Handler func(ctx context.Context, args Args) (interface{}, error)

// Job is a snapshot of a job's state
type Job struct {
	ID         string      `json:"job_id"`
	Name       string      `json:"name"`
	Args       Args        `json:"args,omitempty"`
	Status     Status      `json:"status"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
	StartedAt  *time.Time  `json:"started_at,omitempty"`
	EndedAt    *time.Time  `json:"ended_at,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Config sizes the queue
type Config struct {
	Workers   int
	QueueSize int
	// Timeout is the wall-clock budget of a single job.
	Timeout time.Duration
	// Retention is how long finished jobs stay queryable.
	Retention time.Duration
}

// DefaultConfig returns 2 workers, 100 pending jobs, a 10 minute budget and
// 24 hour retention.
func DefaultConfig() Config {
	return Config{
		Workers:   2,
		QueueSize: 100,
		Timeout:   10 * time.Minute,
		Retention: 24 * time.Hour,
	}
}

// Queue is an in-process job queue
type Queue struct {
	cfg     Config
	pool    *async.WorkerPool
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time

	mu       sync.RWMutex
	handlers map[string]Handler
	jobs     map[string]*Job
	closed   bool
}

// Option customizes a Queue
type Option func(*Queue)

// WithLogger sets the queue logger
func WithLogger(logger *observability.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// WithMetrics enables job metrics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(q *Queue) { q.metrics = metrics }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// NewQueue starts the queue's workers. They stop when ctx is cancelled or
// Shutdown is called.
func NewQueue(ctx context.Context, cfg Config, opts ...Option) *Queue {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}

	q := &Queue{
		cfg:      cfg,
		now:      time.Now,
		handlers: make(map[string]Handler),
		jobs:     make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = observability.NewNopLogger()
	}
	q.logger = q.logger.WithComponent("jobs")
	q.pool = async.NewWorkerPool(ctx, cfg.Workers, "background jobs", cfg.Timeout,
		async.WithLogger(q.logger),
		async.WithQueueSize(cfg.QueueSize),
	)
	return q
}

// Register installs the handler for name, replacing any previous one
func (q *Queue) Register(name string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[name] = handler
}

// Enqueue schedules a job and returns its initial snapshot
func (q *Queue) Enqueue(name string, args Args) (*Job, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}
	handler, ok := q.handlers[name]
	if !ok {
		q.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	q.pruneLocked()

	job := &Job{
		ID:         uuid.NewString(),
		Name:       name,
		Args:       args,
		Status:     StatusQueued,
		EnqueuedAt: q.now().UTC(),
	}
	q.jobs[job.ID] = job
	snapshot := *job
	q.mu.Unlock()

	accepted, err := q.pool.TrySubmit(func(ctx context.Context) error {
		// failures are recorded on the job itself
		_ = q.run(ctx, job.ID, name, args, handler)
		return nil
	})
	if err != nil || !accepted {
		q.mu.Lock()
		delete(q.jobs, job.ID)
		q.mu.Unlock()
		if err != nil {
			return nil, ErrQueueClosed
		}
		return nil, ErrQueueFull
	}

	q.logger.WithFields(map[string]interface{}{
		"job_id":   job.ID,
		"job_name": name,
	}).Info("Job enqueued")
	return &snapshot, nil
}

// Get returns a snapshot of the job with id
func (q *Queue) Get(id string) (*Job, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

// Shutdown stops accepting jobs and waits up to timeout for running jobs
func (q *Queue) Shutdown(timeout time.Duration) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return q.pool.Shutdown(timeout)
}

func (q *Queue) run(ctx context.Context, id, name string, args Args, handler Handler) (err error) {
	logger := q.update(id, func(job *Job) {
		started := q.now().UTC()
		job.Status = StatusStarted
		job.StartedAt = &started
	})
	start := time.Now()
	if q.metrics != nil {
		q.metrics.JobsInFlight.Inc()
		defer q.metrics.JobsInFlight.Dec()
	}

	var result interface{}
	defer func() {
		if r := recover(); r != nil {
			err = observability.MustRecover(r)
		}
		q.finish(id, name, start, result, err)
	}()

	logger.Info("Job started")
	result, err = handler(ctx, args)
	return err
}

func (q *Queue) finish(id, name string, start time.Time, result interface{}, err error) {
	status := StatusFinished
	if err != nil {
		status = StatusFailed
	}
	logger := q.update(id, func(job *Job) {
		ended := q.now().UTC()
		job.Status = status
		job.EndedAt = &ended
		job.Result = result
		if err != nil {
			job.Error = err.Error()
		}
	})

	if q.metrics != nil {
		q.metrics.JobsTotal.WithLabelValues(name, string(status)).Inc()
		q.metrics.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		logger.WithError(err).Error("Job failed")
		return
	}
	logger.WithField("duration_ms", time.Since(start).Milliseconds()).Info("Job finished")
}

// update mutates the stored job under the lock and returns a logger scoped to it
func (q *Queue) update(id string, fn func(*Job)) *observability.Logger {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return q.logger.WithField("job_id", id)
	}
	fn(job)
	return q.logger.WithFields(map[string]interface{}{
		"job_id":   job.ID,
		"job_name": job.Name,
	})
}

// pruneLocked drops terminal jobs older than the retention period
func (q *Queue) pruneLocked() int {
	cutoff := q.now().Add(-q.cfg.Retention)
	pruned := 0
	for id, job := range q.jobs {
		if job.Status.Done() && job.EndedAt != nil && job.EndedAt.Before(cutoff) {
			delete(q.jobs, id)
			pruned++
		}
	}
	return pruned
}
