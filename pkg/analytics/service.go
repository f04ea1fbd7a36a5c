package analytics

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/beacon/pkg/events"
	"github.com/platinummonkey/beacon/pkg/index"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// RecentEventsLimit caps the events returned in UserAnalytics.RecentEvents
const RecentEventsLimit = 10

// TopEventTypesLimit caps Dashboard.TopEventTypes
const TopEventTypesLimit = 5

// resolveConcurrency bounds parallel record lookups per user query
const resolveConcurrency = 8

// ReadStore is the subset of the Redis adapter used by the read paths
type ReadStore interface {
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	SCard(ctx context.Context, key string) (int64, error)
}

// EventReader resolves event ids to records
type EventReader interface {
	GetEvent(ctx context.Context, id string) (*events.Event, bool, error)
}

// Service computes the platform dashboard and per-user analytics
type Service struct {
	store   ReadStore
	events  EventReader
	index   *index.Index
	logger  *observability.Logger
	metrics *observability.Metrics
	cache   *readCache
	now     func() time.Time
}

// ServiceOption customizes a Service
type ServiceOption func(*Service)

// WithServiceLogger sets the service logger
func WithServiceLogger(logger *observability.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithServiceMetrics enables dashboard counters
func WithServiceMetrics(metrics *observability.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = metrics }
}

// WithServiceClock replaces time.Now
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a new analytics service
func NewService(store ReadStore, reader EventReader, idx *index.Index, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		events: reader,
		index:  idx,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = observability.NewNopLogger()
	}
	s.logger = s.logger.WithComponent("analytics")
	return s
}

// Summary holds the headline dashboard numbers
type Summary struct {
	TotalEvents            int64   `json:"total_events"`
	UniqueUsers            int64   `json:"unique_users"`
	UniqueSessions         int64   `json:"unique_sessions"`
	ConversionRate         float64 `json:"conversion_rate"`
	PurchaseConversionRate float64 `json:"purchase_conversion_rate"`
}

// EventTypeCount is one row of the event breakdown
type EventTypeCount struct {
	EventType  string  `json:"event_type"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// DailyTrend is the event count of one UTC day
type DailyTrend struct {
	Date       string `json:"date"`
	EventCount int64  `json:"event_count"`
}

// Dashboard is the platform-wide analytics snapshot
type Dashboard struct {
	Summary        Summary          `json:"summary"`
	EventBreakdown []EventTypeCount `json:"event_breakdown"`
	DailyTrends    []DailyTrend     `json:"daily_trends"`
	TopEventTypes  []EventTypeCount `json:"top_event_types"`
	GeneratedAt    events.Timestamp `json:"generated_at"`
}

// computeDashboard builds the platform dashboard from the aggregate counters.
//
// The total and the breakdown come from the same read of the per-type
// counters, so percentages always sum to ~100 when any events exist.
func (s *Service) computeDashboard(ctx context.Context) (*Dashboard, error) {
	now := s.now().UTC()

	var (
		typeCounts     map[string]string
		uniqueUsers    int64
		uniqueSessions int64
		daily          = make([]string, TrendDays)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.store.HGetAll(gctx, EventTypeMetricsKey)
		typeCounts = v
		return events.Wrap("dashboard", EventTypeMetricsKey, err)
	})
	g.Go(func() error {
		v, err := s.store.SCard(gctx, UniqueUsersKey)
		uniqueUsers = v
		return events.Wrap("dashboard", UniqueUsersKey, err)
	})
	g.Go(func() error {
		v, err := s.store.SCard(gctx, UniqueSessionsKey)
		uniqueSessions = v
		return events.Wrap("dashboard", UniqueSessionsKey, err)
	})
	for i := 0; i < TrendDays; i++ {
		date := DateKey(now.AddDate(0, 0, -i))
		g.Go(func() error {
			v, _, err := s.store.HGet(gctx, DailyEventCountsKey, date)
			daily[i] = v
			return events.Wrap("dashboard", DailyEventCountsKey, err)
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.WithError(err).Error("Failed to generate analytics dashboard")
		return nil, err
	}

	breakdown := make([]EventTypeCount, 0, len(typeCounts))
	var total int64
	for eventType, raw := range typeCounts {
		count, err := parseCount(EventTypeMetricsKey, raw)
		if err != nil {
			return nil, err
		}
		total += count
		breakdown = append(breakdown, EventTypeCount{EventType: eventType, Count: count})
	}
	for i := range breakdown {
		breakdown[i].Percentage = percentage(breakdown[i].Count, total)
	}
	sort.SliceStable(breakdown, func(i, j int) bool {
		if breakdown[i].Count != breakdown[j].Count {
			return breakdown[i].Count > breakdown[j].Count
		}
		return breakdown[i].EventType < breakdown[j].EventType
	})

	trends := make([]DailyTrend, TrendDays)
	for i := range trends {
		count, err := parseCount(DailyEventCountsKey, daily[i])
		if err != nil {
			return nil, err
		}
		trends[i] = DailyTrend{Date: DateKey(now.AddDate(0, 0, -i)), EventCount: count}
	}

	pageViews := countOf(breakdown, PageViewEvent)
	registrations := countOf(breakdown, UserRegisteredEvent)
	purchases := countOf(breakdown, PurchaseCompletedEvent)

	top := breakdown
	if len(top) > TopEventTypesLimit {
		top = top[:TopEventTypesLimit]
	}

	dashboard := &Dashboard{
		Summary: Summary{
			TotalEvents:            total,
			UniqueUsers:            uniqueUsers,
			UniqueSessions:         uniqueSessions,
			ConversionRate:         percentage(registrations, pageViews),
			PurchaseConversionRate: percentage(purchases, registrations),
		},
		EventBreakdown: breakdown,
		DailyTrends:    trends,
		TopEventTypes:  append([]EventTypeCount(nil), top...),
		GeneratedAt:    events.NewTimestamp(now),
	}

	if s.metrics != nil {
		s.metrics.DashboardRenderTotal.Inc()
	}
	s.logger.Infof("Generated analytics dashboard with %d total events", total)
	return dashboard, nil
}

// UserAnalytics summarizes one user's recent activity
type UserAnalytics struct {
	UserID       string            `json:"user_id"`
	TotalEvents  int               `json:"total_events"`
	EventTypes   map[string]int    `json:"event_types"`
	RecentEvents []*events.Event   `json:"recent_events"`
	FirstSeen    *events.Timestamp `json:"first_seen"`
	LastSeen     *events.Timestamp `json:"last_seen"`
}

// computeUserAnalytics reads up to limit of the user's most recent event ids,
// resolves them and aggregates the result. Ids whose record has expired are
// skipped. limit <= 0 means index.DefaultLimit.
func (s *Service) computeUserAnalytics(ctx context.Context, userID string, limit int) (*UserAnalytics, error) {
	result := &UserAnalytics{
		UserID:       userID,
		EventTypes:   map[string]int{},
		RecentEvents: []*events.Event{},
	}

	key := index.UserKey(userID)
	ids, err := s.index.TopRecent(ctx, key, limit)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to read user index")
		return nil, events.Wrap("user_analytics", key, err)
	}
	if len(ids) == 0 {
		s.logger.WithField("user_id", userID).Info("No events found for user")
		return result, nil
	}

	resolved := make([]*events.Event, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			event, ok, err := s.events.GetEvent(gctx, id)
			if err != nil {
				return err
			}
			if ok {
				resolved[i] = event
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Error("Failed to resolve user events")
		return nil, err
	}

	userEvents := make([]*events.Event, 0, len(resolved))
	for _, event := range resolved {
		if event != nil {
			userEvents = append(userEvents, event)
		}
	}
	if dropped := len(ids) - len(userEvents); dropped > 0 {
		s.logger.WithField("user_id", userID).Debugf("Skipped %d expired index entries", dropped)
	}
	if len(userEvents) == 0 {
		return result, nil
	}

	sort.SliceStable(userEvents, func(i, j int) bool {
		return userEvents[i].Timestamp.After(userEvents[j].Timestamp.Time)
	})

	for _, event := range userEvents {
		result.EventTypes[event.EventType]++
	}
	result.TotalEvents = len(userEvents)
	recent := userEvents
	if len(recent) > RecentEventsLimit {
		recent = recent[:RecentEventsLimit]
	}
	result.RecentEvents = recent
	first := userEvents[len(userEvents)-1].Timestamp
	last := userEvents[0].Timestamp
	result.FirstSeen = &first
	result.LastSeen = &last

	s.logger.WithField("user_id", userID).Infof("Retrieved analytics for user: %d events", result.TotalEvents)
	return result, nil
}

func parseCount(key, raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &events.PlatformError{Op: "parse_counter", Key: key, Err: err}
	}
	return n, nil
}

func countOf(breakdown []EventTypeCount, eventType string) int64 {
	for _, row := range breakdown {
		if row.EventType == eventType {
			return row.Count
		}
	}
	return 0
}

// percentage returns part/whole*100 rounded to 2 decimals, or 0 when whole is 0
func percentage(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
