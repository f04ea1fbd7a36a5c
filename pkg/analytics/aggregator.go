package analytics

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/platinummonkey/beacon/pkg/async"
	"github.com/platinummonkey/beacon/pkg/events"
	"github.com/platinummonkey/beacon/pkg/index"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// AggregatorStore is the subset of the Redis adapter used by Aggregator
type AggregatorStore interface {
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HSet(ctx context.Context, key, field string, value interface{}, ttl time.Duration) (int64, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Scan(ctx context.Context, pattern string, count int64) ([]string, error)
}

const (
	pruneWorkers = 4
	pruneTimeout = time.Minute
)

// ExistenceChecker reports whether a canonical event record is present
type ExistenceChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Aggregator runs the periodic background passes: hourly snapshots and
// index cleanup. Neither runs on the request path.
type Aggregator struct {
	store     AggregatorStore
	index     *index.Index
	events    ExistenceChecker
	retention events.Retention
	logger    *observability.Logger
	now       func() time.Time
}

// NewAggregator creates a new aggregator
func NewAggregator(store AggregatorStore, idx *index.Index, checker ExistenceChecker, retention events.Retention, logger *observability.Logger) *Aggregator {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Aggregator{
		store:     store,
		index:     idx,
		events:    checker,
		retention: retention,
		logger:    logger.WithComponent("aggregator"),
		now:       time.Now,
	}
}

// HourlyResult is the outcome of one ProcessHourly run
type HourlyResult struct {
	Hour  string `json:"hour"`
	Count int64  `json:"count"`
}

// ProcessHourly copies today's running daily count into the hourly
// aggregation hash under the current hour, with the analytics-cache TTL.
func (a *Aggregator) ProcessHourly(ctx context.Context) (*HourlyResult, error) {
	return a.ProcessHourlyAt(ctx, a.now())
}

// ProcessHourlyAt is ProcessHourly for an explicit instant
func (a *Aggregator) ProcessHourlyAt(ctx context.Context, at time.Time) (*HourlyResult, error) {
	hour := HourKey(at)
	date := DateKey(at)

	raw, _, err := a.store.HGet(ctx, DailyEventCountsKey, date)
	if err != nil {
		a.logger.WithError(err).Error("Failed to read daily count during aggregation")
		return nil, events.Wrap("process_hourly", DailyEventCountsKey, err)
	}
	count, err := parseCount(DailyEventCountsKey, raw)
	if err != nil {
		return nil, err
	}

	if _, err := a.store.HSet(ctx, HourlyAggregationsKey, hour, count, a.retention.AnalyticsCache); err != nil {
		a.logger.WithError(err).Error("Failed to write hourly aggregation")
		return nil, events.Wrap("process_hourly", HourlyAggregationsKey, err)
	}

	a.logger.Infof("Processed analytics aggregations for hour %s: %d events", hour, count)
	return &HourlyResult{Hour: hour, Count: count}, nil
}

// HourlySnapshot returns the stored hourly aggregations, oldest first
func (a *Aggregator) HourlySnapshot(ctx context.Context) ([]HourlyResult, error) {
	all, err := a.store.HGetAll(ctx, HourlyAggregationsKey)
	if err != nil {
		return nil, events.Wrap("hourly_snapshot", HourlyAggregationsKey, err)
	}

	out := make([]HourlyResult, 0, len(all))
	for hour, raw := range all {
		count, err := parseCount(HourlyAggregationsKey, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, HourlyResult{Hour: hour, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })
	return out, nil
}

// CleanupOptions controls a Cleanup pass
type CleanupOptions struct {
	// Compact removes index entries whose event record has expired.
	// Without it the pass only reports; Redis expires keys on its own.
	Compact bool
	// ScanCount is the SCAN batch hint.
	ScanCount int64
}

// CleanupStats reports what a Cleanup pass did
type CleanupStats struct {
	ExpiredUserIndexes    int `json:"expired_user_indexes"`
	ExpiredSessionIndexes int `json:"expired_session_indexes"`
	TotalOperations       int `json:"total_operations"`
}

// Cleanup walks the user and session indexes. With Compact set it prunes
// dangling entries and counts them per index kind; TotalOperations is the
// number of index keys examined.
func (a *Aggregator) Cleanup(ctx context.Context, opts CleanupOptions) (*CleanupStats, error) {
	stats := &CleanupStats{}
	if !opts.Compact {
		a.logger.WithFields(map[string]interface{}{
			"expired_user_indexes":    stats.ExpiredUserIndexes,
			"expired_session_indexes": stats.ExpiredSessionIndexes,
			"total_operations":        stats.TotalOperations,
		}).Info("Cleanup completed")
		return stats, nil
	}
	if opts.ScanCount <= 0 {
		opts.ScanCount = 100
	}

	userRemoved, userKeys, err := a.pruneAll(ctx, index.UserPattern, opts.ScanCount)
	if err != nil {
		return nil, err
	}
	sessionRemoved, sessionKeys, err := a.pruneAll(ctx, index.SessionPattern, opts.ScanCount)
	if err != nil {
		return nil, err
	}

	stats.ExpiredUserIndexes = userRemoved
	stats.ExpiredSessionIndexes = sessionRemoved
	stats.TotalOperations = userKeys + sessionKeys

	a.logger.WithFields(map[string]interface{}{
		"expired_user_indexes":    stats.ExpiredUserIndexes,
		"expired_session_indexes": stats.ExpiredSessionIndexes,
		"total_operations":        stats.TotalOperations,
	}).Info("Cleanup completed")
	return stats, nil
}

func (a *Aggregator) pruneAll(ctx context.Context, pattern string, count int64) (removed, keys int, err error) {
	found, err := a.store.Scan(ctx, pattern, count)
	if err != nil {
		a.logger.WithError(err).Error("Failed to scan indexes during cleanup")
		return 0, 0, events.Wrap("cleanup", pattern, err)
	}

	var total atomic.Int64
	errs := async.Batch(ctx, found, pruneWorkers, "index prune", pruneTimeout, func(ctx context.Context, key string) error {
		n, err := a.index.Prune(ctx, key, a.events.Exists)
		if err != nil {
			a.logger.WithError(err).WithField("key", key).Error("Failed to prune index")
			return events.Wrap("cleanup", key, err)
		}
		total.Add(int64(n))
		return nil
	})
	if len(errs) > 0 {
		return int(total.Load()), len(found), errors.Join(errs...)
	}
	return int(total.Load()), len(found), nil
}
