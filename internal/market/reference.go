package market

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/market-stats/internal/cache"
	"github.com/sells-group/market-stats/internal/model"
)

// NationalGeoID identifies the national reference profile.
const NationalGeoID = "us"

// ReferenceSource fetches the single-row profile of a larger geography.
type ReferenceSource interface {
	FetchReference(ctx context.Context, year string, level model.ReferenceLevel, geoid string) (*model.UnitStatistics, error)
}

type referenceTarget struct {
	level model.ReferenceLevel
	geoid string
}

// referenceTargets lists the national profile, then every distinct state and
// county the units fall in, each sorted by GEOID.
func referenceTargets(units []model.GeographicUnit) []referenceTarget {
	var states, counties []string
	for _, u := range units {
		if len(u.StateFIPS) == 2 && !slices.Contains(states, u.StateFIPS) {
			states = append(states, u.StateFIPS)
		}
		if len(u.StateFIPS) == 2 && len(u.CountyFIPS) == 3 && !slices.Contains(counties, u.CountyKey()) {
			counties = append(counties, u.CountyKey())
		}
	}
	slices.Sort(states)
	slices.Sort(counties)

	targets := []referenceTarget{{model.LevelNational, NationalGeoID}}
	for _, st := range states {
		targets = append(targets, referenceTarget{model.LevelState, st})
	}
	for _, c := range counties {
		targets = append(targets, referenceTarget{model.LevelCounty, c})
	}
	return targets
}

// references builds the overlay set. Lookups run one at a time through the
// reference limiter, cached or not. A failed lookup is logged and omitted.
func (s *Service) references(ctx context.Context, log *zap.Logger, year string, units []model.GeographicUnit) (*model.ReferenceSet, error) {
	set := &model.ReferenceSet{}
	for _, t := range referenceTargets(units) {
		if err := s.refLimiter.Acquire(ctx); err != nil {
			return nil, err
		}
		ra, err := s.reference(ctx, year, t)
		s.refLimiter.Release()
		if err != nil {
			log.Warn("reference overlay unavailable",
				zap.String("level", string(t.level)),
				zap.String("geoid", t.geoid),
				zap.Error(err),
			)
			continue
		}
		switch t.level {
		case model.LevelNational:
			set.National = ra
		case model.LevelState:
			set.States = append(set.States, *ra)
		case model.LevelCounty:
			set.Counties = append(set.Counties, *ra)
		}
	}
	return set, nil
}

func (s *Service) reference(ctx context.Context, year string, t referenceTarget) (*model.ReferenceAverages, error) {
	params := map[string]any{"level": string(t.level), "geoid": t.geoid, "year": year}
	if ra, ok := cache.GetAs[*model.ReferenceAverages](s.cache, EndpointReference, params); ok {
		return ra, nil
	}

	stats, err := s.refs.FetchReference(ctx, year, t.level, t.geoid)
	if err != nil {
		return nil, err
	}
	ra := &model.ReferenceAverages{
		Level: t.level,
		GeoID: t.geoid,
		Name:  stats.Name,
		Year:  year,
		Rates: ComputeRates([]model.UnitStatistics{*stats}),
	}
	s.cache.Set(EndpointReference, params, ra)
	return ra, nil
}
