package platform

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/beacon/pkg/config"
	"github.com/platinummonkey/beacon/pkg/events"
	"github.com/platinummonkey/beacon/pkg/storage/redisstore"
)

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := &config.Config{
		Redis:     redisstore.Config{URL: "redis://" + mr.Addr()},
		Retention: events.DefaultRetention(),
	}
	p, err := Open(cfg, nil, nil)
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	id, err := p.Events.StoreEvent(ctx, events.StoreRequest{EventType: "page_view", UserID: "u1"})
	require.NoError(t, err)

	dash, err := p.Analytics.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), dash.Summary.TotalEvents)

	user, err := p.Analytics.UserAnalytics(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, user.RecentEvents, 1)
	assert.Equal(t, id, user.RecentEvents[0].EventID)

	hour, err := p.Aggregator.ProcessHourly(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hour.Count)

	res, err := p.Generator.Generate(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Generated)
}

func TestOpen_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := &config.Config{Redis: redisstore.Config{URL: "redis://" + addr}, Retention: events.DefaultRetention()}
	p, err := Open(cfg, nil, nil)
	require.NoError(t, err, "an unreachable Redis starts the store unhealthy rather than failing")
	defer p.Close()

	assert.False(t, p.Store.Healthy(context.Background()))
}

func TestWire_ReadCache(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := redisstore.New(redisstore.Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	defer store.Close()

	cfg := &config.Config{
		Retention: events.DefaultRetention(),
		ReadCache: config.ReadCacheConfig{TTL: time.Hour, Size: 8},
	}
	p := Wire(store, cfg, nil, nil)
	ctx := context.Background()

	before, err := p.Analytics.Dashboard(ctx)
	require.NoError(t, err)

	_, err = p.Events.StoreEvent(ctx, events.StoreRequest{EventType: "page_view", UserID: "u1"})
	require.NoError(t, err)

	after, err := p.Analytics.Dashboard(ctx)
	require.NoError(t, err)
	assert.Same(t, before, after)
}
