// Package platform assembles the Redis-backed analytics components shared by
// the beacon binaries.
package platform

import (
	"fmt"

	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/config"
	"github.com/platinummonkey/beacon/pkg/events"
	"github.com/platinummonkey/beacon/pkg/index"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/sample"
	"github.com/platinummonkey/beacon/pkg/storage/redisstore"
)

// Platform holds one store connection and everything built on top of it
type Platform struct {
	Store      *redisstore.Store
	Index      *index.Index
	Events     *events.Repository
	Analytics  *analytics.Service
	Aggregator *analytics.Aggregator
	Generator  *sample.Generator
}

// Open connects to Redis and wires the repository, analytics service,
// aggregator and sample generator. metrics may be nil.
func Open(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) (*Platform, error) {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	storeOpts := []redisstore.Option{redisstore.WithLogger(logger)}
	if metrics != nil {
		storeOpts = append(storeOpts, redisstore.WithMetrics(metrics))
	}
	store, err := redisstore.New(cfg.Redis, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("open redis store: %w", err)
	}
	return Wire(store, cfg, logger, metrics), nil
}

// Wire builds the components over an existing store, taking retention and
// read cache settings from cfg
func Wire(store *redisstore.Store, cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics) *Platform {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	retention := cfg.Retention

	idx := index.New(store)

	repoOpts := []events.Option{events.WithRetention(retention), events.WithLogger(logger)}
	serviceOpts := []analytics.ServiceOption{
		analytics.WithServiceLogger(logger),
		analytics.WithReadCache(cfg.ReadCache.Size, cfg.ReadCache.TTL),
	}
	genOpts := []sample.Option{sample.WithLogger(logger)}
	if metrics != nil {
		repoOpts = append(repoOpts, events.WithMetrics(metrics))
		serviceOpts = append(serviceOpts, analytics.WithServiceMetrics(metrics))
		genOpts = append(genOpts, sample.WithMetrics(metrics))
	}

	repo := events.NewRepository(store, idx, analytics.NewCounters(store, retention), repoOpts...)

	return &Platform{
		Store:      store,
		Index:      idx,
		Events:     repo,
		Analytics:  analytics.NewService(store, repo, idx, serviceOpts...),
		Aggregator: analytics.NewAggregator(store, idx, repo, retention, logger),
		Generator:  sample.NewGenerator(repo, genOpts...),
	}
}

// Close releases the Redis connection pool
func (p *Platform) Close() error {
	return p.Store.Close()
}
