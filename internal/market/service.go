package market

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-stats/internal/batch"
	"github.com/sells-group/market-stats/internal/cache"
	"github.com/sells-group/market-stats/internal/geospatial"
	"github.com/sells-group/market-stats/internal/model"
)

// Cache endpoints.
const (
	EndpointMarketStats = "market-stats"
	EndpointGeoUnits    = "geo-units"
	EndpointReference   = "reference"
)

// DefaultEmptyTTL is how long empty resolutions and empty markets stay cached.
const DefaultEmptyTTL = 5 * time.Minute

// DefaultTTLs returns the per-endpoint cache lifetimes.
func DefaultTTLs() map[string]time.Duration {
	return map[string]time.Duration{
		EndpointMarketStats:     time.Hour,
		batch.EndpointUnitStats: 24 * time.Hour,
		EndpointReference:       24 * time.Hour,
		EndpointGeoUnits:        6 * time.Hour,
	}
}

// UnitFetcher fetches per-unit statistics for resolved units.
type UnitFetcher interface {
	FetchAll(ctx context.Context, units []model.GeographicUnit, year string) (*batch.Result, error)
}

// Options configures the service.
type Options struct {
	// SkipReferences disables national/state/county overlays.
	SkipReferences bool
	// ReferenceDelay spaces consecutive reference lookups. Default: 100ms.
	ReferenceDelay time.Duration
	// EmptyTTL overrides the endpoint TTL for empty results. Default: 5m.
	EmptyTTL time.Duration
}

// Service resolves, fetches, aggregates and caches market statistics.
type Service struct {
	resolver   geospatial.Resolver
	units      UnitFetcher
	refs       ReferenceSource
	cache      *cache.Store
	opts       Options
	refLimiter *batch.Limiter
}

// New creates a Service. A nil store gets a private cache with the default
// TTL table.
func New(resolver geospatial.Resolver, units UnitFetcher, refs ReferenceSource, store *cache.Store, opts Options) *Service {
	if store == nil {
		store = cache.New(cache.Options{EndpointTTLs: DefaultTTLs()})
	}
	if opts.ReferenceDelay == 0 {
		opts.ReferenceDelay = 100 * time.Millisecond
	}
	if opts.ReferenceDelay < 0 {
		opts.ReferenceDelay = 0
	}
	if opts.EmptyTTL <= 0 {
		opts.EmptyTTL = DefaultEmptyTTL
	}
	return &Service{
		resolver:   resolver,
		units:      units,
		refs:       refs,
		cache:      store,
		opts:       opts,
		refLimiter: batch.NewLimiter(1, opts.ReferenceDelay),
	}
}

// Cache returns the store the service reads and writes.
func (s *Service) Cache() *cache.Store { return s.cache }

// Invalidate drops the cached market entry for q. Resolved units and unit
// statistics stay cached, so the next request only re-aggregates.
func (s *Service) Invalidate(q model.MarketQuery) error {
	if q.Geography == "" {
		q.Geography = model.GeographyZIP
	}
	if err := q.Validate(); err != nil {
		return err
	}
	s.cache.Delete(EndpointMarketStats, q.CacheParams())
	return nil
}

// GetMarketStats returns the statistics of the market around q.Center. The
// returned value may be shared with the cache and must not be modified.
//
// Invalid queries fail with model.ErrInvalidInput and resolver failures with
// model.ErrSourceUnavailable. Units without data are reported as missing and
// never fail the request. A cancelled ctx returns its error and caches
// nothing at the market level.
func (s *Service) GetMarketStats(ctx context.Context, q model.MarketQuery) (*model.MarketStats, error) {
	if q.Geography == "" {
		q.Geography = model.GeographyZIP
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	log := zap.L().With(
		zap.String("request_id", uuid.NewString()),
		zap.Float64("lat", q.Center.Lat),
		zap.Float64("lon", q.Center.Lon),
		zap.Float64("radius_miles", q.RadiusMiles),
		zap.String("year", q.Year),
		zap.String("geography", string(q.Geography)),
	)

	params := q.CacheParams()
	if ms, ok := cache.GetAs[*model.MarketStats](s.cache, EndpointMarketStats, params); ok {
		log.Debug("market stats cache hit")
		return ms, nil
	}

	start := time.Now()
	units, err := s.resolve(ctx, q)
	if err != nil {
		return nil, err
	}

	res, err := s.units.FetchAll(ctx, units, q.Year)
	if err != nil {
		return nil, eris.Wrap(err, "market: fetch unit statistics")
	}

	ms := Aggregate(res.Stats)
	ms.Query = q
	ms.SetUnits(res.Matched, res.Missing)

	if !s.opts.SkipReferences && len(units) > 0 {
		ref, err := s.references(ctx, log, q.Year, units)
		if err != nil {
			return nil, eris.Wrap(err, "market: reference overlays")
		}
		ms.Reference = ref
	}

	if len(units) == 0 {
		s.cache.Set(EndpointMarketStats, params, ms, s.opts.EmptyTTL)
	} else {
		s.cache.Set(EndpointMarketStats, params, ms)
	}

	log.Info("market stats computed",
		zap.Int("resolved", ms.TotalUnits),
		zap.Int("matched", ms.MatchedUnits),
		zap.Int("missing", len(ms.Missing)),
		zap.Int("fetched", res.Fetched),
		zap.Int64("population", ms.TotalPopulation),
		zap.Duration("elapsed", time.Since(start)),
	)
	return ms, nil
}

// resolve returns the units of q, cached per center, radius and geography.
func (s *Service) resolve(ctx context.Context, q model.MarketQuery) ([]model.GeographicUnit, error) {
	params := map[string]any{
		"lat":       q.Center.Lat,
		"lon":       q.Center.Lon,
		"radius":    q.RadiusMiles,
		"geography": string(q.Geography),
	}
	if units, ok := cache.GetAs[[]model.GeographicUnit](s.cache, EndpointGeoUnits, params); ok {
		return units, nil
	}

	units, err := s.resolver.Resolve(ctx, q.Center, q.RadiusMiles, q.Geography)
	if err != nil {
		return nil, eris.Wrap(err, "market: resolve units")
	}
	if len(units) == 0 {
		s.cache.Set(EndpointGeoUnits, params, units, s.opts.EmptyTTL)
	} else {
		s.cache.Set(EndpointGeoUnits, params, units)
	}
	return units, nil
}
