// Package redisstore is the Redis adapter shared by every analytics component.
//
// # Overview
//
// The Store owns the connection pool and exposes thin pass-through wrappers for
// the hash, set and sorted-set commands the platform needs. It adds three things
// on top of go-redis:
//
//   - Error classification: every failure is a *ConnectivityError (unreachable,
//     timed out, connection reset) or a *BackendError (anything the server
//     replied with). A missing key or field is never an error.
//   - A cached health flag, re-probed at most once per 30s. While the flag is
//     unhealthy each call re-probes once and fails fast instead of waiting on a
//     dead server.
//   - Optional TTLs on mutations, applied with EXPIRE once the mutation succeeds.
//     Every touch resets the TTL.
//
// The adapter never retries. The go-redis client is configured with
// MaxRetries = -1 so that callers see failures as they happen.
//
// # Usage
//
//	store, err := redisstore.New(redisstore.Config{URL: "redis://localhost:6379/0"},
//		redisstore.WithLogger(logger),
//		redisstore.WithMetrics(metrics),
//	)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	if _, err := store.HIncrBy(ctx, "event_type_metrics", "page_view", 1, 90*24*time.Hour); err != nil {
//		if redisstore.IsConnectivity(err) {
//			// retryable
//		}
//	}
//
// The Store is constructed once in the composition root and injected into the
// repository, index and aggregator. There is no package-level instance.
package redisstore
