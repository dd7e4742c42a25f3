// Package batch fetches per-unit statistics for a resolved market while
// respecting the statistics source's per-caller rate limits.
package batch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/market-stats/internal/cache"
	"github.com/sells-group/market-stats/internal/census"
	"github.com/sells-group/market-stats/internal/model"
)

// EndpointUnitStats is the cache endpoint for per-unit statistics.
const EndpointUnitStats = "unit-stats"

// Source is the statistics source the orchestrator draws from.
type Source interface {
	FetchUnit(ctx context.Context, year string, unit model.GeographicUnit) (*model.UnitStatistics, error)
	FetchCountyTracts(ctx context.Context, year, stateFIPS, countyFIPS string) (map[string]census.Row, error)
}

// Options configures chunking and pacing. Zero sizes take the defaults; zero
// delays disable spacing.
type Options struct {
	UnitChunkSize     int           // units per group for per-unit fetches
	CountyChunkSize   int           // counties per group for grouped fetches
	CountyConcurrency int           // simultaneous county fetches
	UnitDelay         time.Duration // spacing between sequential unit fetches
	GroupDelay        time.Duration // spacing between group boundaries
}

// DefaultOptions returns the default batching policy.
func DefaultOptions() Options {
	return Options{
		UnitChunkSize:     5,
		CountyChunkSize:   3,
		CountyConcurrency: 3,
		UnitDelay:         100 * time.Millisecond,
		GroupDelay:        200 * time.Millisecond,
	}
}

// UnitState tracks one unit through a batch.
type UnitState int

const (
	StatePending UnitState = iota
	StateFetching
	StateParsed
	StateMissing
)

func (s UnitState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateParsed:
		return "parsed"
	case StateMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// Result is the outcome of a batch. Matched and Missing preserve input order
// and together cover every input unit exactly once.
type Result struct {
	Stats   []model.UnitStatistics
	Matched []string
	Missing []string
	// Fetched counts outbound calls issued; cache hits are not counted.
	Fetched int
}

// Orchestrator drives chunked, paced fetches. Its limiters are shared by
// every call, so concurrent markets are paced together.
type Orchestrator struct {
	src   Source
	cache *cache.Store
	opts  Options

	groups   *Limiter
	units    *Limiter
	counties *Limiter
}

// NewOrchestrator creates an Orchestrator. store may be nil to disable the
// per-unit cache.
func NewOrchestrator(src Source, store *cache.Store, opts Options) *Orchestrator {
	def := DefaultOptions()
	if opts.UnitChunkSize <= 0 {
		opts.UnitChunkSize = def.UnitChunkSize
	}
	if opts.CountyChunkSize <= 0 {
		opts.CountyChunkSize = def.CountyChunkSize
	}
	if opts.CountyConcurrency <= 0 {
		opts.CountyConcurrency = def.CountyConcurrency
	}
	if opts.UnitDelay < 0 {
		opts.UnitDelay = 0
	}
	if opts.GroupDelay < 0 {
		opts.GroupDelay = 0
	}
	return &Orchestrator{
		src:      src,
		cache:    store,
		opts:     opts,
		groups:   NewLimiter(1, opts.GroupDelay),
		units:    NewLimiter(1, opts.UnitDelay),
		counties: NewLimiter(opts.CountyConcurrency, 0),
	}
}

// run holds the per-call state of FetchAll. Each index is written by at most
// one goroutine.
type run struct {
	year    string
	units   []model.GeographicUnit
	states  []UnitState
	stats   []*model.UnitStatistics
	fetched atomic.Int64
	log     *zap.Logger
}

func (r *run) parsed(i int, s *model.UnitStatistics) {
	s.Unit = r.units[i]
	r.stats[i] = s
	r.states[i] = StateParsed
	if pop, ok := s.TotalPop.Get(); ok && pop == 0 {
		r.log.Info("unit reports zero population", zap.String("unit", s.Unit.ID))
	}
}

func (r *run) missing(i int, err error) {
	r.states[i] = StateMissing
	r.log.Debug("unit missing", zap.String("unit", r.units[i].ID), zap.Error(err))
}

// FetchAll fetches statistics for every unit. One unit's failure never aborts
// the batch; it is recorded as missing. If ctx is cancelled, fetches already
// issued complete, no further groups start, unstarted units are missing, and
// the context error is returned alongside the partial result.
func (o *Orchestrator) FetchAll(ctx context.Context, units []model.GeographicUnit, year string) (*Result, error) {
	r := &run{
		year:   year,
		units:  units,
		states: make([]UnitState, len(units)),
		stats:  make([]*model.UnitStatistics, len(units)),
		log:    zap.L().With(zap.String("year", year)),
	}

	var perUnit []int
	counties := make(map[string][]int)
	var countyOrder []string
	for i, u := range units {
		if s, ok := o.cached(u, year); ok {
			r.parsed(i, s)
			continue
		}
		if u.Geography == model.GeographyTract {
			key := u.CountyKey()
			if _, seen := counties[key]; !seen {
				countyOrder = append(countyOrder, key)
			}
			counties[key] = append(counties[key], i)
			continue
		}
		perUnit = append(perUnit, i)
	}

	o.fetchUnits(ctx, r, perUnit)
	o.fetchCounties(ctx, r, countyOrder, counties)

	res := &Result{
		Stats:   []model.UnitStatistics{},
		Matched: []string{},
		Missing: []string{},
		Fetched: int(r.fetched.Load()),
	}
	for i, st := range r.states {
		if st == StateParsed {
			res.Stats = append(res.Stats, *r.stats[i])
			res.Matched = append(res.Matched, units[i].ID)
			continue
		}
		res.Missing = append(res.Missing, units[i].ID)
	}

	if err := ctx.Err(); err != nil {
		return res, eris.Wrap(err, "batch: cancelled")
	}
	return res, nil
}

// fetchUnits fetches units one at a time in groups of UnitChunkSize.
func (o *Orchestrator) fetchUnits(ctx context.Context, r *run, idx []int) {
	for _, group := range chunk(idx, o.opts.UnitChunkSize) {
		if o.groups.Acquire(ctx) != nil {
			return
		}
		for _, i := range group {
			if o.units.Acquire(ctx) != nil {
				break
			}
			o.fetchUnit(ctx, r, i)
			o.units.Release()
		}
		o.groups.Release()
	}
}

func (o *Orchestrator) fetchUnit(ctx context.Context, r *run, i int) {
	unit := r.units[i]
	r.states[i] = StateFetching
	r.fetched.Add(1)

	// An issued fetch runs to completion so its result reaches the cache.
	s, err := o.src.FetchUnit(context.WithoutCancel(ctx), r.year, unit)
	if err != nil {
		r.missing(i, err)
		return
	}
	o.store(unit, r.year, s)
	r.parsed(i, s)
}

// fetchCounties fetches whole counties of tracts, CountyChunkSize counties
// per group with up to CountyConcurrency in flight.
func (o *Orchestrator) fetchCounties(ctx context.Context, r *run, order []string, byCounty map[string][]int) {
	for _, group := range chunk(order, o.opts.CountyChunkSize) {
		if o.groups.Acquire(ctx) != nil {
			return
		}

		var g errgroup.Group
		g.SetLimit(o.opts.CountyConcurrency)
		for _, key := range group {
			idx := byCounty[key]
			if o.counties.Acquire(ctx) != nil {
				break
			}
			g.Go(func() error {
				defer o.counties.Release()
				o.fetchCounty(ctx, r, idx)
				return nil
			})
		}
		_ = g.Wait()
		o.groups.Release()
	}
}

func (o *Orchestrator) fetchCounty(ctx context.Context, r *run, idx []int) {
	for _, i := range idx {
		r.states[i] = StateFetching
	}
	r.fetched.Add(1)

	first := r.units[idx[0]]
	rows, err := o.src.FetchCountyTracts(context.WithoutCancel(ctx), r.year, first.StateFIPS, first.CountyFIPS)
	if err != nil {
		for _, i := range idx {
			r.missing(i, err)
		}
		return
	}

	for _, i := range idx {
		unit := r.units[i]
		row, ok := rows[unit.ID]
		if !ok {
			r.missing(i, eris.Wrapf(model.ErrNoData, "batch: tract %s not in county table", unit.ID))
			continue
		}
		s, err := census.ParseUnit(row, unit)
		if err != nil {
			r.missing(i, err)
			continue
		}
		o.store(unit, r.year, s)
		r.parsed(i, s)
	}
}

func unitParams(u model.GeographicUnit, year string) map[string]any {
	return map[string]any{"unit": u.ID, "year": year, "geography": string(u.Geography)}
}

// cached returns a copy of the cached statistics of u.
func (o *Orchestrator) cached(u model.GeographicUnit, year string) (*model.UnitStatistics, bool) {
	if o.cache == nil {
		return nil, false
	}
	s, ok := cache.GetAs[model.UnitStatistics](o.cache, EndpointUnitStats, unitParams(u, year))
	if !ok {
		return nil, false
	}
	return &s, true
}

func (o *Orchestrator) store(u model.GeographicUnit, year string, s *model.UnitStatistics) {
	if o.cache == nil {
		return
	}
	o.cache.Set(EndpointUnitStats, unitParams(u, year), *s)
}

func chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}
