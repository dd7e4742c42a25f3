package model

// UnitStatistics is the parsed statistics record for one geographic unit.
// It is either fully parsed or absent; fields the source did not report are None.
type UnitStatistics struct {
	Unit GeographicUnit `json:"unit" yaml:"unit"`
	Name string         `json:"name,omitempty" yaml:"name,omitempty"`

	TotalPop       Opt[int64] `json:"total_pop" yaml:"total_pop"`
	Male           Opt[int64] `json:"male" yaml:"male"`
	Female         Opt[int64] `json:"female" yaml:"female"`
	Under18        Opt[int64] `json:"under_18" yaml:"under_18"`
	White          Opt[int64] `json:"white" yaml:"white"`
	Black          Opt[int64] `json:"black" yaml:"black"`
	Asian          Opt[int64] `json:"asian" yaml:"asian"`
	Hispanic       Opt[int64] `json:"hispanic" yaml:"hispanic"`
	Households     Opt[int64] `json:"households" yaml:"households"`
	HousingUnits   Opt[int64] `json:"housing_units" yaml:"housing_units"`
	OwnerOccupied  Opt[int64] `json:"owner_occupied" yaml:"owner_occupied"`
	RenterOccupied Opt[int64] `json:"renter_occupied" yaml:"renter_occupied"`
	Vacant         Opt[int64] `json:"vacant" yaml:"vacant"`

	PovertyUniverse    Opt[int64] `json:"poverty_universe" yaml:"poverty_universe"`
	BelowPoverty       Opt[int64] `json:"below_poverty" yaml:"below_poverty"`
	InsuranceUniverse  Opt[int64] `json:"insurance_universe" yaml:"insurance_universe"`
	Uninsured          Opt[int64] `json:"uninsured" yaml:"uninsured"`
	DisabilityUniverse Opt[int64] `json:"disability_universe" yaml:"disability_universe"`
	WithDisability     Opt[int64] `json:"with_disability" yaml:"with_disability"`
	EducationUniverse  Opt[int64] `json:"education_universe" yaml:"education_universe"`
	BachelorsPlus      Opt[int64] `json:"bachelors_plus" yaml:"bachelors_plus"`

	MedianIncome    Opt[float64] `json:"median_income" yaml:"median_income"`
	PerCapitaIncome Opt[float64] `json:"per_capita_income" yaml:"per_capita_income"`
	MedianRent      Opt[float64] `json:"median_rent" yaml:"median_rent"`
	MedianHomeValue Opt[float64] `json:"median_home_value" yaml:"median_home_value"`
	MedianAge       Opt[float64] `json:"median_age" yaml:"median_age"`
}

// Counts holds summed count fields.
type Counts struct {
	TotalPopulation    int64   `json:"total_population" yaml:"total_population"`
	Male               int64   `json:"male" yaml:"male"`
	Female             int64   `json:"female" yaml:"female"`
	Under18            int64   `json:"under_18" yaml:"under_18"`
	White              int64   `json:"white" yaml:"white"`
	Black              int64   `json:"black" yaml:"black"`
	Asian              int64   `json:"asian" yaml:"asian"`
	Hispanic           int64   `json:"hispanic" yaml:"hispanic"`
	Households         int64   `json:"households" yaml:"households"`
	HousingUnits       int64   `json:"housing_units" yaml:"housing_units"`
	OwnerOccupied      int64   `json:"owner_occupied" yaml:"owner_occupied"`
	RenterOccupied     int64   `json:"renter_occupied" yaml:"renter_occupied"`
	Vacant             int64   `json:"vacant" yaml:"vacant"`
	PovertyUniverse    int64   `json:"poverty_universe" yaml:"poverty_universe"`
	BelowPoverty       int64   `json:"below_poverty" yaml:"below_poverty"`
	InsuranceUniverse  int64   `json:"insurance_universe" yaml:"insurance_universe"`
	Uninsured          int64   `json:"uninsured" yaml:"uninsured"`
	DisabilityUniverse int64   `json:"disability_universe" yaml:"disability_universe"`
	WithDisability     int64   `json:"with_disability" yaml:"with_disability"`
	EducationUniverse  int64   `json:"education_universe" yaml:"education_universe"`
	BachelorsPlus      int64   `json:"bachelors_plus" yaml:"bachelors_plus"`
	LandAreaSqMiles    float64 `json:"land_area_sq_miles" yaml:"land_area_sq_miles"`
}

// Rates holds derived ratios and non-zero averages. None means no unit reported data.
type Rates struct {
	PovertyRate       Opt[float64] `json:"poverty_rate" yaml:"poverty_rate"`
	UninsuredRate     Opt[float64] `json:"uninsured_rate" yaml:"uninsured_rate"`
	DisabilityRate    Opt[float64] `json:"disability_rate" yaml:"disability_rate"`
	BachelorsPlusRate Opt[float64] `json:"bachelors_plus_rate" yaml:"bachelors_plus_rate"`
	HomeownershipRate Opt[float64] `json:"homeownership_rate" yaml:"homeownership_rate"`
	VacancyRate       Opt[float64] `json:"vacancy_rate" yaml:"vacancy_rate"`

	MedianIncome    Opt[float64] `json:"median_income" yaml:"median_income"`
	PerCapitaIncome Opt[float64] `json:"per_capita_income" yaml:"per_capita_income"`
	MedianRent      Opt[float64] `json:"median_rent" yaml:"median_rent"`
	MedianHomeValue Opt[float64] `json:"median_home_value" yaml:"median_home_value"`
	MedianAge       Opt[float64] `json:"median_age" yaml:"median_age"`
}

// MarketStats is the aggregate of every parsed unit in a market.
type MarketStats struct {
	Query MarketQuery `json:"query" yaml:"query"`

	Counts `yaml:",inline"`
	Rates  `yaml:",inline"`

	PopulationDensity Opt[float64] `json:"population_density" yaml:"population_density"`

	// TotalUnits counts resolved units, including missing ones.
	TotalUnits   int      `json:"total_units" yaml:"total_units"`
	MatchedUnits int      `json:"matched_units_count" yaml:"matched_units_count"`
	Matched      []string `json:"matched_units" yaml:"matched_units"`
	Missing      []string `json:"missing_units" yaml:"missing_units"`
	// Completeness is matched / resolved, None for an empty market.
	Completeness Opt[float64] `json:"completeness" yaml:"completeness"`

	Reference *ReferenceSet `json:"reference,omitempty" yaml:"reference,omitempty"`
}

// SetUnits records the matched and missing unit lists and the counts and
// completeness derived from them.
func (m *MarketStats) SetUnits(matched, missing []string) {
	m.Matched = matched
	m.Missing = missing
	m.MatchedUnits = len(matched)
	m.TotalUnits = len(matched) + len(missing)
	m.Completeness = None[float64]()
	if m.TotalUnits > 0 {
		m.Completeness = Some(float64(m.MatchedUnits) / float64(m.TotalUnits))
	}
}

// ReferenceLevel names the geography of a reference overlay.
type ReferenceLevel string

const (
	LevelNational ReferenceLevel = "national"
	LevelState    ReferenceLevel = "state"
	LevelCounty   ReferenceLevel = "county"
)

// ReferenceAverages is the rate profile of a larger geography, for comparison.
type ReferenceAverages struct {
	Level ReferenceLevel `json:"level" yaml:"level"`
	GeoID string         `json:"geoid" yaml:"geoid"`
	Name  string         `json:"name,omitempty" yaml:"name,omitempty"`
	Year  string         `json:"year" yaml:"year"`
	Rates `yaml:",inline"`
}

// ReferenceSet groups the overlays attached to a market.
type ReferenceSet struct {
	National *ReferenceAverages  `json:"national,omitempty" yaml:"national,omitempty"`
	States   []ReferenceAverages `json:"states,omitempty" yaml:"states,omitempty"`
	Counties []ReferenceAverages `json:"counties,omitempty" yaml:"counties,omitempty"`
}
