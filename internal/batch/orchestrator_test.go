package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-stats/internal/cache"
	"github.com/sells-group/market-stats/internal/census"
	"github.com/sells-group/market-stats/internal/model"
)

type stubSource struct {
	mu          sync.Mutex
	unitCalls   []string
	countyCalls []string

	unitFn   func(ctx context.Context, unit model.GeographicUnit) (*model.UnitStatistics, error)
	countyFn func(state, county string) (map[string]census.Row, error)
}

func (s *stubSource) FetchUnit(ctx context.Context, _ string, unit model.GeographicUnit) (*model.UnitStatistics, error) {
	s.mu.Lock()
	s.unitCalls = append(s.unitCalls, unit.ID)
	s.mu.Unlock()
	if s.unitFn != nil {
		return s.unitFn(ctx, unit)
	}
	return statsFor(unit, 100), nil
}

func (s *stubSource) FetchCountyTracts(_ context.Context, _ string, state, county string) (map[string]census.Row, error) {
	s.mu.Lock()
	s.countyCalls = append(s.countyCalls, state+county)
	s.mu.Unlock()
	return s.countyFn(state, county)
}

func statsFor(unit model.GeographicUnit, pop int64) *model.UnitStatistics {
	return &model.UnitStatistics{Unit: unit, TotalPop: model.Some(pop)}
}

func zips(ids ...string) []model.GeographicUnit {
	out := make([]model.GeographicUnit, len(ids))
	for i, id := range ids {
		out[i] = model.GeographicUnit{ID: id, Geography: model.GeographyZIP, DistanceMeters: float64(i)}
	}
	return out
}

func tract(id string) model.GeographicUnit {
	return model.GeographicUnit{ID: id, Geography: model.GeographyTract, StateFIPS: id[:2], CountyFIPS: id[2:5]}
}

func tractRow(pop string) census.Row {
	row := census.Row{}
	for _, v := range census.Variables() {
		row[v] = "5"
	}
	row["B01003_001E"] = pop
	return row
}

func fastOptions() Options {
	return Options{UnitChunkSize: 2, CountyChunkSize: 2, CountyConcurrency: 2}
}

func TestFetchAll_PerUnit(t *testing.T) {
	src := &stubSource{}
	o := NewOrchestrator(src, nil, fastOptions())

	res, err := o.FetchAll(context.Background(), zips("63130", "63105", "63117"), "2023")
	require.NoError(t, err)

	assert.Equal(t, []string{"63130", "63105", "63117"}, res.Matched)
	assert.Empty(t, res.Missing)
	assert.Len(t, res.Stats, 3)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, []string{"63130", "63105", "63117"}, src.unitCalls)
}

func TestFetchAll_FailureIsMissing(t *testing.T) {
	src := &stubSource{unitFn: func(_ context.Context, unit model.GeographicUnit) (*model.UnitStatistics, error) {
		if unit.ID == "63105" {
			return nil, errors.New("boom")
		}
		return statsFor(unit, 10), nil
	}}
	o := NewOrchestrator(src, nil, fastOptions())

	res, err := o.FetchAll(context.Background(), zips("63130", "63105", "63117"), "2023")
	require.NoError(t, err)

	assert.Equal(t, []string{"63130", "63117"}, res.Matched)
	assert.Equal(t, []string{"63105"}, res.Missing)
	assert.Len(t, res.Stats, 2)
}

func TestFetchAll_ZeroPopulationIsMatched(t *testing.T) {
	src := &stubSource{unitFn: func(_ context.Context, unit model.GeographicUnit) (*model.UnitStatistics, error) {
		return statsFor(unit, 0), nil
	}}
	o := NewOrchestrator(src, nil, fastOptions())

	res, err := o.FetchAll(context.Background(), zips("00000"), "2023")
	require.NoError(t, err)
	assert.Equal(t, []string{"00000"}, res.Matched)
}

func TestFetchAll_Empty(t *testing.T) {
	o := NewOrchestrator(&stubSource{}, nil, fastOptions())

	res, err := o.FetchAll(context.Background(), nil, "2023")
	require.NoError(t, err)
	assert.NotNil(t, res.Matched)
	assert.NotNil(t, res.Missing)
	assert.Empty(t, res.Stats)
	assert.Zero(t, res.Fetched)
}

func TestFetchAll_TractsGroupedByCounty(t *testing.T) {
	src := &stubSource{countyFn: func(state, county string) (map[string]census.Row, error) {
		switch state + county {
		case "29189":
			return map[string]census.Row{
				"29189010100": tractRow("1200"),
				"29189010200": tractRow("800"),
			}, nil
		case "29510":
			return map[string]census.Row{"29510110100": tractRow("500")}, nil
		}
		return nil, fmt.Errorf("unexpected county %s%s", state, county)
	}}
	o := NewOrchestrator(src, nil, fastOptions())

	units := []model.GeographicUnit{
		tract("29189010100"),
		tract("29510110100"),
		tract("29189010200"),
		tract("29189099999"),
	}
	res, err := o.FetchAll(context.Background(), units, "2023")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"29189", "29510"}, src.countyCalls)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, []string{"29189010100", "29510110100", "29189010200"}, res.Matched)
	assert.Equal(t, []string{"29189099999"}, res.Missing)

	pop, ok := res.Stats[0].TotalPop.Get()
	require.True(t, ok)
	assert.Equal(t, int64(1200), pop)
	assert.Equal(t, units[0], res.Stats[0].Unit)
}

func TestFetchAll_CountyFailure(t *testing.T) {
	src := &stubSource{countyFn: func(state, county string) (map[string]census.Row, error) {
		if county == "510" {
			return nil, errors.New("unavailable")
		}
		return map[string]census.Row{"29189010100": tractRow("10")}, nil
	}}
	o := NewOrchestrator(src, nil, fastOptions())

	res, err := o.FetchAll(context.Background(), []model.GeographicUnit{
		tract("29189010100"), tract("29510110100"), tract("29510110200"),
	}, "2023")
	require.NoError(t, err)
	assert.Equal(t, []string{"29189010100"}, res.Matched)
	assert.Equal(t, []string{"29510110100", "29510110200"}, res.Missing)
}

func TestFetchAll_UnparsableTractIsMissing(t *testing.T) {
	src := &stubSource{countyFn: func(_, _ string) (map[string]census.Row, error) {
		return map[string]census.Row{"29189010100": tractRow("-666666666")}, nil
	}}
	o := NewOrchestrator(src, nil, fastOptions())

	res, err := o.FetchAll(context.Background(), []model.GeographicUnit{tract("29189010100")}, "2023")
	require.NoError(t, err)
	assert.Empty(t, res.Matched)
	assert.Equal(t, []string{"29189010100"}, res.Missing)
}

func TestFetchAll_UsesUnitCache(t *testing.T) {
	store := cache.New(cache.Options{})
	src := &stubSource{}
	o := NewOrchestrator(src, store, fastOptions())

	first := zips("63130", "63105")
	_, err := o.FetchAll(context.Background(), first, "2023")
	require.NoError(t, err)
	require.Len(t, src.unitCalls, 2)

	// Same units at a different distance are served from cache with the
	// caller's unit metadata.
	again := zips("63105", "63130", "63117")
	res, err := o.FetchAll(context.Background(), again, "2023")
	require.NoError(t, err)

	assert.Equal(t, []string{"63130", "63105", "63117"}, src.unitCalls)
	assert.Equal(t, 1, res.Fetched)
	assert.Equal(t, []string{"63105", "63130", "63117"}, res.Matched)
	assert.Equal(t, again[0], res.Stats[0].Unit)

	// A different year is a different cache entry.
	_, err = o.FetchAll(context.Background(), zips("63130"), "2022")
	require.NoError(t, err)
	assert.Len(t, src.unitCalls, 4)
}

func TestFetchAll_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var issuedCtxErr error
	src := &stubSource{}
	src.unitFn = func(fctx context.Context, unit model.GeographicUnit) (*model.UnitStatistics, error) {
		if unit.ID == "63105" {
			cancel()
			issuedCtxErr = fctx.Err()
		}
		return statsFor(unit, 10), nil
	}
	o := NewOrchestrator(src, nil, Options{UnitChunkSize: 5, UnitDelay: time.Millisecond})

	res, err := o.FetchAll(ctx, zips("63130", "63105", "63117", "63119"), "2023")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	assert.NoError(t, issuedCtxErr, "issued fetch must not observe cancellation")
	assert.Equal(t, []string{"63130", "63105"}, res.Matched)
	assert.Equal(t, []string{"63117", "63119"}, res.Missing)
	assert.Equal(t, []string{"63130", "63105"}, src.unitCalls)
}

func TestFetchAll_GroupPacing(t *testing.T) {
	src := &stubSource{}
	o := NewOrchestrator(src, nil, Options{UnitChunkSize: 1, GroupDelay: 20 * time.Millisecond})

	start := time.Now()
	_, err := o.FetchAll(context.Background(), zips("1", "2", "3"), "2023")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
}

func TestFetchAll_UnitPacing(t *testing.T) {
	var mu sync.Mutex
	var starts []time.Time
	src := &stubSource{unitFn: func(_ context.Context, unit model.GeographicUnit) (*model.UnitStatistics, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return statsFor(unit, 10), nil
	}}
	o := NewOrchestrator(src, nil, Options{UnitChunkSize: 5, UnitDelay: 20 * time.Millisecond})

	start := time.Now()
	res, err := o.FetchAll(context.Background(), zips("1", "2", "3"), "2023")
	require.NoError(t, err)
	assert.Len(t, res.Matched, 3)
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)

	require.Len(t, starts, 3)
	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), 15*time.Millisecond, "unit %d", i)
	}
}

func TestFetchAll_CountyConcurrencyCapped(t *testing.T) {
	var inFlight, peak atomic.Int32
	src := &stubSource{countyFn: func(state, county string) (map[string]census.Row, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		return map[string]census.Row{state + county + "010100": tractRow("100")}, nil
	}}
	o := NewOrchestrator(src, nil, Options{CountyChunkSize: 8, CountyConcurrency: 3})

	var units []model.GeographicUnit
	for _, c := range []string{"001", "003", "005", "007", "009", "011", "013", "015"} {
		units = append(units, tract("29"+c+"010100"))
	}
	res, err := o.FetchAll(context.Background(), units, "2023")
	require.NoError(t, err)

	assert.Len(t, src.countyCalls, 8)
	assert.Len(t, res.Matched, 8)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, int32(3), peak.Load(), "slots are used in parallel")
}

func TestNewOrchestrator_Defaults(t *testing.T) {
	o := NewOrchestrator(&stubSource{}, nil, Options{UnitDelay: -1})
	def := DefaultOptions()
	assert.Equal(t, def.UnitChunkSize, o.opts.UnitChunkSize)
	assert.Equal(t, def.CountyChunkSize, o.opts.CountyChunkSize)
	assert.Equal(t, def.CountyConcurrency, o.opts.CountyConcurrency)
	assert.Zero(t, o.opts.UnitDelay)
}

func TestUnitState_String(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "fetching", StateFetching.String())
	assert.Equal(t, "parsed", StateParsed.String())
	assert.Equal(t, "missing", StateMissing.String())
	assert.Equal(t, "unknown", UnitState(9).String())
}

func TestChunk(t *testing.T) {
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, chunk([]int{1, 2, 3, 4, 5}, 2))
	assert.Nil(t, chunk([]int{}, 3))
	assert.Equal(t, [][]int{{1}, {2}}, chunk([]int{1, 2}, 0))
}
