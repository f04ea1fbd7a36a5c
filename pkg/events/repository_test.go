package events_test

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/events"
	"github.com/platinummonkey/beacon/pkg/index"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/storage/redisstore"
)

var fixedNow = time.Date(2024, 6, 3, 14, 30, 15, 123456000, time.UTC)

type harness struct {
	mr      *miniredis.Miniredis
	store   *redisstore.Store
	repo    *events.Repository
	metrics *observability.Metrics
}

func setupRepository(t *testing.T, opts ...events.Option) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := redisstore.New(redisstore.Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	retention := events.DefaultRetention()
	opts = append([]events.Option{
		events.WithClock(func() time.Time { return fixedNow }),
		events.WithMetrics(metrics),
	}, opts...)
	repo := events.NewRepository(store, index.New(store), analytics.NewCounters(store, retention), opts...)

	return &harness{mr: mr, store: store, repo: repo, metrics: metrics}
}

func TestStoreEvent_RoundTrip(t *testing.T) {
	h := setupRepository(t)
	ctx := context.Background()

	id, err := h.repo.StoreEvent(ctx, events.StoreRequest{
		EventType:  "page_view",
		UserID:     "u1",
		SessionID:  "s1",
		Properties: map[string]interface{}{"page_url": "/pricing", "load_time": 1.25},
	})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^evt_[0-9a-f]{12}$`), id)

	event, ok, err := h.repo.GetEvent(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, event.EventID)
	assert.Equal(t, "page_view", event.EventType)
	assert.Equal(t, "u1", event.UserID)
	assert.Equal(t, "s1", event.SessionID)
	assert.Equal(t, "/pricing", event.Properties["page_url"])
	assert.Equal(t, 1.25, event.Properties["load_time"])
	assert.True(t, fixedNow.Equal(event.Timestamp.Time))
	assert.Nil(t, event.LastEnriched)

	// reads do not change the record
	again, ok, err := h.repo.GetEvent(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, event, again)

	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.EventsStoredTotal.WithLabelValues("page_view")))
}

func TestStoreEvent_FanOut(t *testing.T) {
	h := setupRepository(t)
	ctx := context.Background()
	retention := events.DefaultRetention()

	id, err := h.repo.StoreEvent(ctx, events.StoreRequest{EventType: "purchase_completed", UserID: "u1", SessionID: "s1"})
	require.NoError(t, err)

	raw := h.mr.HGet(events.EventsKey, id)
	assert.NotEmpty(t, raw)
	assert.Equal(t, retention.Events, h.mr.TTL(events.EventsKey))

	score, err := h.mr.ZScore(index.UserKey("u1"), id)
	require.NoError(t, err)
	assert.InDelta(t, index.Score(fixedNow), score, 1e-6)
	assert.Equal(t, retention.Sessions, h.mr.TTL(index.UserKey("u1")))

	_, err = h.mr.ZScore(index.SessionKey("s1"), id)
	require.NoError(t, err)
	assert.Equal(t, retention.Sessions, h.mr.TTL(index.SessionKey("s1")))

	assert.Equal(t, "1", h.mr.HGet(analytics.EventTypeMetricsKey, "purchase_completed"))
	assert.Equal(t, retention.DailyCounts, h.mr.TTL(analytics.EventTypeMetricsKey))
	assert.Equal(t, "1", h.mr.HGet(analytics.DailyEventCountsKey, "2024-06-03"))
	assert.Equal(t, retention.DailyCounts, h.mr.TTL(analytics.DailyEventCountsKey))

	isMember, err := h.mr.SIsMember(analytics.UniqueUsersKey, "u1")
	require.NoError(t, err)
	assert.True(t, isMember)
	isMember, err = h.mr.SIsMember(analytics.UniqueSessionsKey, "s1")
	require.NoError(t, err)
	assert.True(t, isMember)
	assert.Equal(t, retention.Sessions, h.mr.TTL(analytics.UniqueUsersKey))
}

func TestStoreEvent_DefaultSessionAndProperties(t *testing.T) {
	h := setupRepository(t)
	ctx := context.Background()

	id, err := h.repo.StoreEvent(ctx, events.StoreRequest{EventType: "page_view", UserID: "u1"})
	require.NoError(t, err)

	event, ok, err := h.repo.GetEvent(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sess_u1", event.SessionID)
	assert.NotNil(t, event.Properties)
	assert.Empty(t, event.Properties)

	isMember, err := h.mr.SIsMember(analytics.UniqueSessionsKey, "sess_u1")
	require.NoError(t, err)
	assert.True(t, isMember)

	// the stored JSON always carries an object for properties
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(h.mr.HGet(events.EventsKey, id)), &decoded))
	assert.Equal(t, map[string]interface{}{}, decoded["properties"])
	assert.Equal(t, "2024-06-03T14:30:15.123456", decoded["timestamp"])
	assert.NotContains(t, decoded, "last_enriched")
}

func TestStoreEvent_Validation(t *testing.T) {
	h := setupRepository(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		req   events.StoreRequest
		field string
	}{
		{"empty type", events.StoreRequest{UserID: "u1"}, "event_type"},
		{"blank type", events.StoreRequest{EventType: "   ", UserID: "u1"}, "event_type"},
		{"empty user", events.StoreRequest{EventType: "page_view"}, "user_id"},
		{"blank user", events.StoreRequest{EventType: "page_view", UserID: "\t"}, "user_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.repo.StoreEvent(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, events.IsValidation(err))
			var ve *events.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}

	assert.False(t, h.mr.Exists(events.EventsKey))
}

func TestStoreEvent_TrimsIdentifiers(t *testing.T) {
	h := setupRepository(t)
	ctx := context.Background()

	id, err := h.repo.StoreEvent(ctx, events.StoreRequest{EventType: " page_view ", UserID: " u1 "})
	require.NoError(t, err)

	event, _, err := h.repo.GetEvent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "page_view", event.EventType)
	assert.Equal(t, "u1", event.UserID)
	assert.Equal(t, "sess_u1", event.SessionID)
}

func TestStoreEvent_PartialFailureIsNotRolledBack(t *testing.T) {
	h := setupRepository(t, events.WithIDGenerator(func() string { return "evt_000000000001" }))
	ctx := context.Background()

	// a plain string under the user index key makes ZADD fail with WRONGTYPE
	require.NoError(t, h.mr.Set(index.UserKey("u1"), "not-a-zset"))

	_, err := h.repo.StoreEvent(ctx, events.StoreRequest{EventType: "page_view", UserID: "u1"})
	require.Error(t, err)
	assert.True(t, events.IsPlatform(err))
	assert.False(t, events.IsConnectivity(err))

	// step 1 landed, later steps did not
	assert.NotEmpty(t, h.mr.HGet(events.EventsKey, "evt_000000000001"))
	assert.False(t, h.mr.Exists(analytics.EventTypeMetricsKey))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.EventStoreFailures.WithLabelValues("user_index")))
}

func TestStoreEvent_Connectivity(t *testing.T) {
	h := setupRepository(t)
	ctx := context.Background()

	h.mr.Close()

	_, err := h.repo.StoreEvent(ctx, events.StoreRequest{EventType: "page_view", UserID: "u1"})
	require.Error(t, err)
	assert.True(t, events.IsConnectivity(err))
	assert.False(t, events.IsPlatform(err))

	_, _, err = h.repo.GetEvent(ctx, "evt_missing")
	assert.True(t, events.IsConnectivity(err))
}

func TestGetEvent_Missing(t *testing.T) {
	h := setupRepository(t)

	event, ok, err := h.repo.GetEvent(context.Background(), "evt_doesnotexist")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, event)
}

func TestGetEvent_Corrupt(t *testing.T) {
	h := setupRepository(t)
	h.mr.HSet(events.EventsKey, "evt_broken", "{not json")

	_, _, err := h.repo.GetEvent(context.Background(), "evt_broken")
	require.Error(t, err)
	assert.True(t, events.IsCorruption(err))
	assert.True(t, events.IsPlatform(err))
	assert.False(t, events.IsConnectivity(err))
	assert.Contains(t, err.Error(), "evt_broken")
}

func TestGetEvent_LegacyTimestamp(t *testing.T) {
	h := setupRepository(t)
	h.mr.HSet(events.EventsKey, "evt_legacy", `{"event_id":"evt_legacy","event_type":"logout","user_id":"u9","session_id":"sess_u9","timestamp":"2024-01-02T03:04:05","properties":null}`)

	event, ok, err := h.repo.GetEvent(context.Background(), "evt_legacy")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), event.Timestamp.Time)
	assert.NotNil(t, event.Properties)
}

func TestEnrichEvent(t *testing.T) {
	h := setupRepository(t)
	ctx := context.Background()

	id, err := h.repo.StoreEvent(ctx, events.StoreRequest{
		EventType:  "button_click",
		UserID:     "u1",
		Properties: map[string]interface{}{"a": float64(1), "b": float64(2)},
	})
	require.NoError(t, err)

	h.mr.FastForward(24 * time.Hour)

	ok, err := h.repo.EnrichEvent(ctx, id, map[string]interface{}{"b": float64(3), "c": "x"})
	require.NoError(t, err)
	assert.True(t, ok)

	event, found, err := h.repo.GetEvent(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]interface{}{"a": float64(1), "b": float64(3), "c": "x"}, event.Properties)
	require.NotNil(t, event.LastEnriched)
	assert.True(t, fixedNow.Equal(event.LastEnriched.Time))

	// rewriting the record restores the full event TTL
	assert.Equal(t, events.DefaultRetention().Events, h.mr.TTL(events.EventsKey))

	// identity fields are untouched
	assert.Equal(t, "button_click", event.EventType)
	assert.Equal(t, "sess_u1", event.SessionID)

	// enrichment does not touch counters
	assert.Equal(t, "1", h.mr.HGet(analytics.EventTypeMetricsKey, "button_click"))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.metrics.EventsEnrichedTotal))
}

func TestEnrichEvent_MergeLaw(t *testing.T) {
	now := fixedNow
	h := setupRepository(t, events.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	id, err := h.repo.StoreEvent(ctx, events.StoreRequest{EventType: "feature_used", UserID: "u1"})
	require.NoError(t, err)

	now = fixedNow.Add(time.Second)
	ok, err := h.repo.EnrichEvent(ctx, id, map[string]interface{}{"a": float64(1)})
	require.NoError(t, err)
	require.True(t, ok)

	second := fixedNow.Add(2 * time.Second)
	now = second
	ok, err = h.repo.EnrichEvent(ctx, id, map[string]interface{}{"b": float64(2)})
	require.NoError(t, err)
	require.True(t, ok)

	event, found, err := h.repo.GetEvent(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]interface{}{"a": float64(1), "b": float64(2)}, event.Properties)
	require.NotNil(t, event.LastEnriched)
	assert.True(t, second.Equal(event.LastEnriched.Time))
	assert.True(t, fixedNow.Equal(event.Timestamp.Time))
}

func TestEnrichEvent_Overwrite(t *testing.T) {
	now := fixedNow
	h := setupRepository(t, events.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	id, err := h.repo.StoreEvent(ctx, events.StoreRequest{EventType: "feature_used", UserID: "u1"})
	require.NoError(t, err)

	now = fixedNow.Add(time.Minute)
	_, err = h.repo.EnrichEvent(ctx, id, map[string]interface{}{"plan": "free"})
	require.NoError(t, err)

	last := fixedNow.Add(2 * time.Minute)
	now = last
	_, err = h.repo.EnrichEvent(ctx, id, map[string]interface{}{"plan": "pro"})
	require.NoError(t, err)

	event, found, err := h.repo.GetEvent(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[string]interface{}{"plan": "pro"}, event.Properties)
	require.NotNil(t, event.LastEnriched)
	assert.True(t, last.Equal(event.LastEnriched.Time))
}

func TestEnrichEvent_Missing(t *testing.T) {
	h := setupRepository(t)

	ok, err := h.repo.EnrichEvent(context.Background(), "evt_nope", map[string]interface{}{"k": "v"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, h.mr.Exists(events.EventsKey))
}

func TestExists(t *testing.T) {
	h := setupRepository(t)
	ctx := context.Background()

	id, err := h.repo.StoreEvent(ctx, events.StoreRequest{EventType: "logout", UserID: "u1"})
	require.NoError(t, err)

	ok, err := h.repo.Exists(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.repo.Exists(ctx, "evt_other")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewEventID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := events.NewEventID()
		assert.Regexp(t, `^evt_[0-9a-f]{12}$`, id)
		seen[id] = true
	}
	assert.Len(t, seen, 100)
}
