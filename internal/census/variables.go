package census

import "github.com/sells-group/market-stats/internal/model"

// countField maps one or more ACS variables onto a summed count. When a field
// lists several variables every one must be reported or the field is None.
type countField struct {
	name  string
	codes []string
	ref   func(*model.UnitStatistics) *model.Opt[int64]
}

// medianField maps an ACS median/average variable onto a unit rate field.
type medianField struct {
	name string
	code string
	ref  func(*model.UnitStatistics) *model.Opt[float64]
}

var countFields = []countField{
	{"total_pop", []string{"B01003_001E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.TotalPop }},
	{"male", []string{"B01001_002E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.Male }},
	{"female", []string{"B01001_026E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.Female }},
	{"under_18", []string{"B09001_001E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.Under18 }},
	{"white", []string{"B02001_002E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.White }},
	{"black", []string{"B02001_003E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.Black }},
	{"asian", []string{"B02001_005E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.Asian }},
	{"hispanic", []string{"B03003_003E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.Hispanic }},
	{"households", []string{"B11001_001E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.Households }},
	{"housing_units", []string{"B25001_001E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.HousingUnits }},
	{"owner_occupied", []string{"B25003_002E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.OwnerOccupied }},
	{"renter_occupied", []string{"B25003_003E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.RenterOccupied }},
	{"vacant", []string{"B25002_003E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.Vacant }},
	{"poverty_universe", []string{"B17001_001E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.PovertyUniverse }},
	{"below_poverty", []string{"B17001_002E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.BelowPoverty }},
	{"insurance_universe", []string{"B27010_001E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.InsuranceUniverse }},
	// No health insurance coverage, by age bracket.
	{"uninsured", []string{"B27010_017E", "B27010_033E", "B27010_050E", "B27010_066E"},
		func(u *model.UnitStatistics) *model.Opt[int64] { return &u.Uninsured }},
	{"disability_universe", []string{"B18101_001E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.DisabilityUniverse }},
	// With a disability, by sex and age bracket.
	{"with_disability", []string{
		"B18101_004E", "B18101_007E", "B18101_010E", "B18101_013E", "B18101_016E", "B18101_019E",
		"B18101_023E", "B18101_026E", "B18101_029E", "B18101_032E", "B18101_035E", "B18101_038E",
	}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.WithDisability }},
	{"education_universe", []string{"B15003_001E"}, func(u *model.UnitStatistics) *model.Opt[int64] { return &u.EducationUniverse }},
	// Bachelor's, master's, professional and doctorate degrees.
	{"bachelors_plus", []string{"B15003_022E", "B15003_023E", "B15003_024E", "B15003_025E"},
		func(u *model.UnitStatistics) *model.Opt[int64] { return &u.BachelorsPlus }},
}

var medianFields = []medianField{
	{"median_income", "B19013_001E", func(u *model.UnitStatistics) *model.Opt[float64] { return &u.MedianIncome }},
	{"per_capita_income", "B19301_001E", func(u *model.UnitStatistics) *model.Opt[float64] { return &u.PerCapitaIncome }},
	{"median_rent", "B25064_001E", func(u *model.UnitStatistics) *model.Opt[float64] { return &u.MedianRent }},
	{"median_home_value", "B25077_001E", func(u *model.UnitStatistics) *model.Opt[float64] { return &u.MedianHomeValue }},
	{"median_age", "B01002_001E", func(u *model.UnitStatistics) *model.Opt[float64] { return &u.MedianAge }},
}

// maxVariables is the per-request variable limit of the statistics source.
const maxVariables = 50

// Variables returns the variable codes requested for every lookup, NAME first.
func Variables() []string {
	vars := []string{"NAME"}
	for _, f := range countFields {
		vars = append(vars, f.codes...)
	}
	for _, f := range medianFields {
		vars = append(vars, f.code)
	}
	return vars
}
