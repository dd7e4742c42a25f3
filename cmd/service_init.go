package main

import (
	"context"
	"maps"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-stats/internal/batch"
	"github.com/sells-group/market-stats/internal/cache"
	"github.com/sells-group/market-stats/internal/census"
	"github.com/sells-group/market-stats/internal/config"
	"github.com/sells-group/market-stats/internal/db"
	"github.com/sells-group/market-stats/internal/fetcher"
	"github.com/sells-group/market-stats/internal/geospatial"
	"github.com/sells-group/market-stats/internal/market"
)

// serviceEnv holds the geo store pool and the market service built on it.
type serviceEnv struct {
	Pool    db.Pool
	Service *market.Service
}

// Close releases resources held by the service environment.
func (se *serviceEnv) Close() {
	if se.Pool != nil {
		se.Pool.Close()
	}
}

// initService connects to the geo store and builds the market service.
// Callers should defer env.Close().
func initService(ctx context.Context, mode string) (*serviceEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, cfg.Geo.DatabaseURL, db.PoolConfig{
		MaxConns: cfg.Geo.MaxConns,
		MinConns: cfg.Geo.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "connect geo store")
	}

	return &serviceEnv{
		Pool:    pool,
		Service: buildService(cfg, pool),
	}, nil
}

// buildService wires the fetcher, statistics client, cache, orchestrator and
// resolver from configuration.
func buildService(c *config.Config, pool db.Pool) *market.Service {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:         c.Census.UserAgent,
		Timeout:           time.Duration(c.Census.TimeoutSecs) * time.Second,
		MaxRetries:        c.Census.MaxRetries,
		InitialDelay:      time.Duration(c.Census.InitialDelayMs) * time.Millisecond,
		RequestsPerSecond: c.Census.RequestsPerSecond,
	})
	client := census.NewClient(f, census.Options{
		BaseURL: c.Census.BaseURL,
		Dataset: c.Census.Dataset,
		APIKey:  c.Census.APIKey,
	})

	store := cache.New(cache.Options{
		MaxEntries:   c.Cache.MaxEntries,
		DefaultTTL:   time.Duration(c.Cache.DefaultTTLSecs) * time.Second,
		EndpointTTLs: endpointTTLs(c.Cache),
	})

	orch := batch.NewOrchestrator(client, store, batch.Options{
		UnitChunkSize:     c.Batch.UnitChunkSize,
		CountyChunkSize:   c.Batch.CountyChunkSize,
		CountyConcurrency: c.Batch.CountyConcurrency,
		UnitDelay:         time.Duration(c.Batch.UnitDelayMs) * time.Millisecond,
		GroupDelay:        time.Duration(c.Batch.GroupDelayMs) * time.Millisecond,
	})

	refDelay := time.Duration(c.Batch.ReferenceDelayMs) * time.Millisecond
	if refDelay == 0 {
		refDelay = -1 // configured zero means no spacing
	}
	return market.New(geospatial.NewPostGISResolver(pool), orch, client, store, market.Options{
		ReferenceDelay: refDelay,
		EmptyTTL:       time.Duration(c.Cache.EmptyTTLSecs) * time.Second,
	})
}

// endpointTTLs overlays configured endpoint TTLs on the defaults.
func endpointTTLs(c config.CacheConfig) map[string]time.Duration {
	ttls := market.DefaultTTLs()
	maps.Copy(ttls, c.EndpointTTLs())
	return ttls
}
