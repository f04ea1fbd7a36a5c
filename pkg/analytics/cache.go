package analytics

import (
	"context"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheSize bounds the number of cached per-user views
const DefaultCacheSize = 1024

const dashboardCacheKey = "dashboard"

// readCache holds recently computed dashboards and user views. Entries
// expire after the configured TTL; writes never invalidate them.
type readCache struct {
	dashboards *lru.LRU[string, *Dashboard]
	users      *lru.LRU[string, *UserAnalytics]
}

func newReadCache(size int, ttl time.Duration) *readCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &readCache{
		dashboards: lru.NewLRU[string, *Dashboard](1, nil, ttl),
		users:      lru.NewLRU[string, *UserAnalytics](size, nil, ttl),
	}
}

// WithReadCache serves repeated dashboard and user reads from memory for up
// to ttl, so results may lag new events by that much. ttl <= 0 disables it.
func WithReadCache(size int, ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache = newReadCache(size, ttl)
	}
}

func userCacheKey(userID string, limit int) string {
	return userID + "\x00" + strconv.Itoa(limit)
}

// Dashboard returns the platform dashboard, from the read cache when enabled
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	if s.cache == nil {
		return s.computeDashboard(ctx)
	}
	if d, ok := s.cache.dashboards.Get(dashboardCacheKey); ok {
		return d, nil
	}
	d, err := s.computeDashboard(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.dashboards.Add(dashboardCacheKey, d)
	return d, nil
}

// UserAnalytics returns the user's view, from the read cache when enabled
func (s *Service) UserAnalytics(ctx context.Context, userID string, limit int) (*UserAnalytics, error) {
	if s.cache == nil {
		return s.computeUserAnalytics(ctx, userID, limit)
	}
	key := userCacheKey(userID, limit)
	if u, ok := s.cache.users.Get(key); ok {
		return u, nil
	}
	u, err := s.computeUserAnalytics(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	s.cache.users.Add(key, u)
	return u, nil
}
