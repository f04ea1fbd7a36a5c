// Package async provides safe concurrent execution primitives for background work.
//
// # Overview
//
// Every helper recovers panics, enforces a per-task timeout and reports errors
// through the structured logger instead of dropping them.
//
// SafeGo: fire-and-forget goroutine
//
//	async.SafeGo(ctx, logger, time.Minute, "job janitor", func(ctx context.Context) error {
//		return queue.prune(ctx)
//	})
//
// WorkerPool: fixed set of workers fed from a bounded queue
//
//	pool := async.NewWorkerPool(ctx, 4, "background jobs", 10*time.Minute, async.WithLogger(logger))
//	defer pool.Shutdown(30 * time.Second)
//
// Batch: run a function over a slice and collect the errors
//
//	errs := async.Batch(ctx, keys, 4, "index prune", time.Minute, prune)
//
// # Related Packages
//
//   - pkg/jobs: runs background jobs on a WorkerPool
//   - pkg/analytics: prunes indexes with Batch
package async
