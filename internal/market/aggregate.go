// Package market turns a center point and radius into market-level
// demographic statistics with national, state and county overlays.
package market

import (
	"github.com/sells-group/market-stats/internal/model"
)

// SqMetersPerSqMile converts land area.
const SqMetersPerSqMile = 2589988.11

type countSum struct {
	from func(*model.UnitStatistics) model.Opt[int64]
	to   func(*model.Counts) *int64
}

var countSums = []countSum{
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.TotalPop }, func(c *model.Counts) *int64 { return &c.TotalPopulation }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.Male }, func(c *model.Counts) *int64 { return &c.Male }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.Female }, func(c *model.Counts) *int64 { return &c.Female }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.Under18 }, func(c *model.Counts) *int64 { return &c.Under18 }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.White }, func(c *model.Counts) *int64 { return &c.White }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.Black }, func(c *model.Counts) *int64 { return &c.Black }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.Asian }, func(c *model.Counts) *int64 { return &c.Asian }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.Hispanic }, func(c *model.Counts) *int64 { return &c.Hispanic }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.Households }, func(c *model.Counts) *int64 { return &c.Households }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.HousingUnits }, func(c *model.Counts) *int64 { return &c.HousingUnits }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.OwnerOccupied }, func(c *model.Counts) *int64 { return &c.OwnerOccupied }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.RenterOccupied }, func(c *model.Counts) *int64 { return &c.RenterOccupied }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.Vacant }, func(c *model.Counts) *int64 { return &c.Vacant }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.PovertyUniverse }, func(c *model.Counts) *int64 { return &c.PovertyUniverse }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.BelowPoverty }, func(c *model.Counts) *int64 { return &c.BelowPoverty }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.InsuranceUniverse }, func(c *model.Counts) *int64 { return &c.InsuranceUniverse }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.Uninsured }, func(c *model.Counts) *int64 { return &c.Uninsured }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.DisabilityUniverse }, func(c *model.Counts) *int64 { return &c.DisabilityUniverse }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.WithDisability }, func(c *model.Counts) *int64 { return &c.WithDisability }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.EducationUniverse }, func(c *model.Counts) *int64 { return &c.EducationUniverse }},
	{func(s *model.UnitStatistics) model.Opt[int64] { return s.BachelorsPlus }, func(c *model.Counts) *int64 { return &c.BachelorsPlus }},
}

// ratio is computed as sum(num)/sum(den) over units reporting both.
type ratio struct {
	num func(*model.UnitStatistics) model.Opt[int64]
	den func(*model.UnitStatistics) model.Opt[int64]
	to  func(*model.Rates) *model.Opt[float64]
}

var ratios = []ratio{
	{
		func(s *model.UnitStatistics) model.Opt[int64] { return s.BelowPoverty },
		func(s *model.UnitStatistics) model.Opt[int64] { return s.PovertyUniverse },
		func(r *model.Rates) *model.Opt[float64] { return &r.PovertyRate },
	},
	{
		func(s *model.UnitStatistics) model.Opt[int64] { return s.Uninsured },
		func(s *model.UnitStatistics) model.Opt[int64] { return s.InsuranceUniverse },
		func(r *model.Rates) *model.Opt[float64] { return &r.UninsuredRate },
	},
	{
		func(s *model.UnitStatistics) model.Opt[int64] { return s.WithDisability },
		func(s *model.UnitStatistics) model.Opt[int64] { return s.DisabilityUniverse },
		func(r *model.Rates) *model.Opt[float64] { return &r.DisabilityRate },
	},
	{
		func(s *model.UnitStatistics) model.Opt[int64] { return s.BachelorsPlus },
		func(s *model.UnitStatistics) model.Opt[int64] { return s.EducationUniverse },
		func(r *model.Rates) *model.Opt[float64] { return &r.BachelorsPlusRate },
	},
	{
		func(s *model.UnitStatistics) model.Opt[int64] { return s.OwnerOccupied },
		func(s *model.UnitStatistics) model.Opt[int64] { return addOpt(s.OwnerOccupied, s.RenterOccupied) },
		func(r *model.Rates) *model.Opt[float64] { return &r.HomeownershipRate },
	},
	{
		func(s *model.UnitStatistics) model.Opt[int64] { return s.Vacant },
		func(s *model.UnitStatistics) model.Opt[int64] { return s.HousingUnits },
		func(r *model.Rates) *model.Opt[float64] { return &r.VacancyRate },
	},
}

type average struct {
	from func(*model.UnitStatistics) model.Opt[float64]
	to   func(*model.Rates) *model.Opt[float64]
}

// averages are taken over units reporting a non-zero value.
var averages = []average{
	{func(s *model.UnitStatistics) model.Opt[float64] { return s.MedianIncome }, func(r *model.Rates) *model.Opt[float64] { return &r.MedianIncome }},
	{func(s *model.UnitStatistics) model.Opt[float64] { return s.PerCapitaIncome }, func(r *model.Rates) *model.Opt[float64] { return &r.PerCapitaIncome }},
	{func(s *model.UnitStatistics) model.Opt[float64] { return s.MedianRent }, func(r *model.Rates) *model.Opt[float64] { return &r.MedianRent }},
	{func(s *model.UnitStatistics) model.Opt[float64] { return s.MedianHomeValue }, func(r *model.Rates) *model.Opt[float64] { return &r.MedianHomeValue }},
	{func(s *model.UnitStatistics) model.Opt[float64] { return s.MedianAge }, func(r *model.Rates) *model.Opt[float64] { return &r.MedianAge }},
}

func addOpt(a, b model.Opt[int64]) model.Opt[int64] {
	x, okA := a.Get()
	y, okB := b.Get()
	if !okA || !okB {
		return model.None[int64]()
	}
	return model.Some(x + y)
}

// Aggregate folds parsed unit statistics into market totals. Every stats
// entry is treated as matched; callers record missing units with SetUnits.
func Aggregate(stats []model.UnitStatistics) *model.MarketStats {
	ms := &model.MarketStats{
		Counts: SumCounts(stats),
		Rates:  ComputeRates(stats),
	}
	matched := make([]string, 0, len(stats))
	for i := range stats {
		matched = append(matched, stats[i].Unit.ID)
	}
	ms.SetUnits(matched, []string{})
	if ms.LandAreaSqMiles > 0 {
		ms.PopulationDensity = model.Some(float64(ms.TotalPopulation) / ms.LandAreaSqMiles)
	}
	return ms
}

// SumCounts sums count fields and land area. Unreported fields add nothing.
func SumCounts(stats []model.UnitStatistics) model.Counts {
	var c model.Counts
	for i := range stats {
		s := &stats[i]
		for _, f := range countSums {
			*f.to(&c) += f.from(s).OrZero()
		}
		c.LandAreaSqMiles += s.Unit.LandAreaSqMeters / SqMetersPerSqMile
	}
	return c
}

// ComputeRates derives ratio-of-sums rates and non-zero averages. A rate
// with no reporting unit or a zero universe is None.
func ComputeRates(stats []model.UnitStatistics) model.Rates {
	var r model.Rates
	for _, f := range ratios {
		var num, den int64
		for i := range stats {
			n, okN := f.num(&stats[i]).Get()
			d, okD := f.den(&stats[i]).Get()
			if !okN || !okD {
				continue
			}
			num += n
			den += d
		}
		if den > 0 {
			*f.to(&r) = model.Some(float64(num) / float64(den))
		}
	}
	for _, f := range averages {
		var sum float64
		var n int
		for i := range stats {
			if v, ok := f.from(&stats[i]).Get(); ok && v != 0 {
				sum += v
				n++
			}
		}
		if n > 0 {
			*f.to(&r) = model.Some(sum / float64(n))
		}
	}
	return r
}
