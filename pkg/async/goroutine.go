package async

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	"github.com/platinummonkey/beacon/pkg/observability"
)

// ErrPoolShutdown is returned by Submit once the pool is shutting down
var ErrPoolShutdown = errors.New("worker pool shut down")

// SafeGo runs fn in a goroutine bounded by timeout, recovering panics and
// logging any returned error instead of dropping it.
//
// Example:
//
//	async.SafeGo(ctx, logger, time.Minute, "job janitor", func(ctx context.Context) error {
//	    return queue.prune(ctx)
//	})
func SafeGo(parentCtx context.Context, logger *observability.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("Background task failed")
		}
	}()
}

// WorkerPool runs submitted tasks on a fixed number of goroutines. Every task
// gets its own timeout derived from the pool context.
type WorkerPool struct {
	workers      int
	taskName     string
	timeout      time.Duration
	logger       *observability.Logger
	workCh       chan func(context.Context) error
	doneCh       chan struct{}
	errCh        chan error
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex
	closed       bool
	shutdownOnce sync.Once
}

// PoolOption customizes a WorkerPool
type PoolOption func(*WorkerPool)

// WithLogger sets the logger used for panics and dropped errors
func WithLogger(logger *observability.Logger) PoolOption {
	return func(p *WorkerPool) { p.logger = logger }
}

// WithQueueSize sets the number of tasks that may wait for a worker
func WithQueueSize(n int) PoolOption {
	return func(p *WorkerPool) {
		if n > 0 {
			p.workCh = make(chan func(context.Context) error, n)
		}
	}
}

// NewWorkerPool starts workers goroutines.
//
// Example:
//
//	pool := async.NewWorkerPool(ctx, 4, "background jobs", 10*time.Minute, async.WithLogger(logger))
//	defer pool.Shutdown(30 * time.Second)
//
//	pool.Submit(func(ctx context.Context) error {
//	    return generator.Run(ctx, 500)
//	})
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration, opts ...PoolOption) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		errCh:    make(chan error, workers*10),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(pool)
	}
	if pool.logger == nil {
		pool.logger = observability.NewNopLogger()
	}
	pool.logger = pool.logger.WithField("pool", taskName)

	go func() {
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				pool.worker(id)
			}(i)
		}
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues fn, blocking while the queue is full. It fails once Shutdown
// has been called or the pool context is done.
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolShutdown
	}

	select {
	case p.workCh <- fn:
		return nil
	case <-p.ctx.Done():
		return ErrPoolShutdown
	}
}

// TrySubmit is Submit without blocking; it reports false when the queue is full.
func (p *WorkerPool) TrySubmit(fn func(context.Context) error) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false, ErrPoolShutdown
	}

	select {
	case p.workCh <- fn:
		return true, nil
	default:
		return false, nil
	}
}

// Shutdown stops accepting work and waits up to timeout for queued and
// running tasks to finish. Tasks still running after timeout see their
// context cancelled.
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	var shutdownErr error

	p.shutdownOnce.Do(func() {
		p.close()

		select {
		case <-p.doneCh:
			p.cancel()
		case <-time.After(timeout):
			p.cancel()
			shutdownErr = errors.New("worker pool shutdown timed out after " + timeout.String())
		}
	})

	return shutdownErr
}

func (p *WorkerPool) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.workCh)
	}
}

// Errors returns a channel that receives task errors. Errors are dropped
// (and logged) when nobody drains it.
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

func (p *WorkerPool) worker(id int) {
	for {
		select {
		case <-p.ctx.Done():
			return

		case fn, ok := <-p.workCh:
			if !ok {
				return
			}
			p.run(id, fn)
		}
	}
}

func (p *WorkerPool) run(id int, fn func(context.Context) error) {
	ctx := p.ctx
	cancel := context.CancelFunc(func() {})
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(p.ctx, p.timeout)
	}
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("worker", id).
				WithField("panic", r).
				WithField("stack", string(debug.Stack())).
				Error("PANIC recovered in worker")
			p.report(observability.MustRecover(r))
		}
	}()

	if err := fn(ctx); err != nil {
		p.report(err)
	}
}

func (p *WorkerPool) report(err error) {
	select {
	case p.errCh <- err:
	default:
		p.logger.WithError(err).Warn("Error channel full, dropping error")
	}
}

// Batch runs fn over items on a temporary pool and returns every error.
//
// Example:
//
//	errs := async.Batch(ctx, keys, 4, "index prune", time.Minute, func(ctx context.Context, key string) error {
//	    return prune(ctx, key)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	var (
		mu   sync.Mutex
		errs []error
	)
	collect := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	pool := NewWorkerPool(ctx, workers, taskName, timeout)
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			collect(err)
			break
		}
		if err := pool.Submit(func(ctx context.Context) error {
			if err := fn(ctx, item); err != nil {
				collect(err)
			}
			return nil
		}); err != nil {
			collect(err)
			break
		}
	}

	// Wait for every queued item; Batch callers bound the work with timeout.
	pool.close()
	<-pool.doneCh
	pool.cancel()

	return errs
}
