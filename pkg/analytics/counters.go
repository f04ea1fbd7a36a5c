package analytics

import (
	"context"
	"time"

	"github.com/platinummonkey/beacon/pkg/events"
)

// CounterStore is the subset of the Redis adapter used by Counters
type CounterStore interface {
	HIncrBy(ctx context.Context, key, field string, amount int64, ttl time.Duration) (int64, error)
	SAdd(ctx context.Context, key string, ttl time.Duration, members ...string) (int64, error)
}

// Counters maintains the running aggregates touched by every stored event:
// per-type counts, unique users and sessions, and per-day counts.
type Counters struct {
	store     CounterStore
	retention events.Retention
}

// NewCounters creates Counters writing with the given retention
func NewCounters(store CounterStore, retention events.Retention) *Counters {
	return &Counters{store: store, retention: retention}
}

// Record applies event to the aggregates. Steps run in a fixed order and stop
// at the first failure; earlier increments are kept.
func (c *Counters) Record(ctx context.Context, event *events.Event) error {
	if _, err := c.store.HIncrBy(ctx, EventTypeMetricsKey, event.EventType, 1, c.retention.DailyCounts); err != nil {
		return err
	}
	if _, err := c.store.SAdd(ctx, UniqueUsersKey, c.retention.Sessions, event.UserID); err != nil {
		return err
	}
	if _, err := c.store.SAdd(ctx, UniqueSessionsKey, c.retention.Sessions, event.SessionID); err != nil {
		return err
	}
	if _, err := c.store.HIncrBy(ctx, DailyEventCountsKey, DateKey(event.Timestamp.Time), 1, c.retention.DailyCounts); err != nil {
		return err
	}
	return nil
}
