// Package index maintains the per-user and per-session recency indexes.
//
// Each index is a sorted set of event ids scored by the event's creation time
// in Unix seconds. Entries can outlive the canonical record they point to
// (the two have different TTLs); readers treat such ids as not found.
package index

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/beacon/pkg/storage/redisstore"
)

// DefaultLimit is used when TopRecent is called with a non-positive limit.
const DefaultLimit = 100

const (
	userPrefix    = "user_events:"
	sessionPrefix = "session_events:"
)

// UserKey returns the index key for a user
func UserKey(userID string) string {
	return userPrefix + userID
}

// SessionKey returns the index key for a session
func SessionKey(sessionID string) string {
	return sessionPrefix + sessionID
}

// UserPattern and SessionPattern match every index key of their kind.
const (
	UserPattern    = userPrefix + "*"
	SessionPattern = sessionPrefix + "*"
)

// Store is the subset of the Redis adapter the index needs
type Store interface {
	ZAdd(ctx context.Context, key, member string, score float64, ttl time.Duration) (int64, error)
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]redisstore.ScoredMember, error)
	ZRem(ctx context.Context, key string, members ...string) (int64, error)
}

// Index reads and writes recency indexes
type Index struct {
	store Store
}

// New creates an Index on top of store
func New(store Store) *Index {
	return &Index{store: store}
}

// Score converts an event time into its index score
func Score(at time.Time) float64 {
	return float64(at.UnixNano()) / float64(time.Second)
}

// Add records id under key scored by at, resetting the key's TTL
func (i *Index) Add(ctx context.Context, key, id string, at time.Time, ttl time.Duration) error {
	_, err := i.store.ZAdd(ctx, key, id, Score(at), ttl)
	return err
}

// TopRecent returns at most limit ids from key, most recent first. Unknown or
// expired keys yield an empty slice.
func (i *Index) TopRecent(ctx context.Context, key string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	ids, err := i.store.ZRevRange(ctx, key, 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Entry is an index member with the time it was scored at
type Entry struct {
	EventID string
	At      time.Time
}

// TopRecentWithScores is TopRecent including each entry's timestamp
func (i *Index) TopRecentWithScores(ctx context.Context, key string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	scored, err := i.store.ZRevRangeWithScores(ctx, key, 0, int64(limit-1))
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(scored))
	for _, m := range scored {
		entries = append(entries, Entry{EventID: m.Member, At: scoreTime(m.Score)})
	}
	return entries, nil
}

func scoreTime(score float64) time.Time {
	sec := int64(score)
	nsec := int64((score - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// Prune removes every member of key for which exists reports false and
// returns how many were removed.
func (i *Index) Prune(ctx context.Context, key string, exists func(ctx context.Context, id string) (bool, error)) (int, error) {
	ids, err := i.store.ZRevRange(ctx, key, 0, -1)
	if err != nil {
		return 0, err
	}

	var dangling []string
	for _, id := range ids {
		ok, err := exists(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("checking %s in %s: %w", id, key, err)
		}
		if !ok {
			dangling = append(dangling, id)
		}
	}
	if len(dangling) == 0 {
		return 0, nil
	}

	removed, err := i.store.ZRem(ctx, key, dangling...)
	return int(removed), err
}
