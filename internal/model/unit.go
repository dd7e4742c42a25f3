package model

import (
	"math"
	"strconv"

	"github.com/rotisserie/eris"
)

// Geography is the granularity of the units a market is resolved into.
type Geography string

const (
	GeographyZIP   Geography = "zip"
	GeographyTract Geography = "tract"
)

// MilesToMeters converts a radius in miles to the meters the geo store expects.
const MilesToMeters = 1609.34

// MaxRadiusMiles bounds a market radius.
const MaxRadiusMiles = 250.0

// ParseGeography validates a geography name.
func ParseGeography(s string) (Geography, error) {
	switch Geography(s) {
	case GeographyZIP, GeographyTract:
		return Geography(s), nil
	default:
		return "", eris.Wrapf(ErrInvalidInput, "unknown geography %q", s)
	}
}

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Validate checks that the point is finite and within range.
func (p Point) Validate() error {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lon) || math.IsInf(p.Lon, 0) {
		return eris.Wrap(ErrInvalidInput, "coordinates must be finite")
	}
	if p.Lat < -90 || p.Lat > 90 {
		return eris.Wrapf(ErrInvalidInput, "latitude %v out of range", p.Lat)
	}
	if p.Lon < -180 || p.Lon > 180 {
		return eris.Wrapf(ErrInvalidInput, "longitude %v out of range", p.Lon)
	}
	return nil
}

// ValidateRadius checks a market radius in miles.
func ValidateRadius(miles float64) error {
	if math.IsNaN(miles) || math.IsInf(miles, 0) || miles <= 0 {
		return eris.Wrapf(ErrInvalidInput, "radius must be positive, got %v", miles)
	}
	if miles > MaxRadiusMiles {
		return eris.Wrapf(ErrInvalidInput, "radius %v exceeds %v miles", miles, MaxRadiusMiles)
	}
	return nil
}

// GeographicUnit is a ZCTA or census tract intersecting a market.
type GeographicUnit struct {
	ID               string    `json:"id" yaml:"id"`
	Geography        Geography `json:"geography" yaml:"geography"`
	StateFIPS        string    `json:"state_fips" yaml:"state_fips"`
	CountyFIPS       string    `json:"county_fips,omitempty" yaml:"county_fips,omitempty"`
	Centroid         Point     `json:"centroid" yaml:"centroid"`
	LandAreaSqMeters float64   `json:"land_area_sq_meters" yaml:"land_area_sq_meters"`
	DistanceMeters   float64   `json:"distance_meters" yaml:"distance_meters"`
}

// CountyKey returns the 5-digit state+county FIPS of the unit.
func (u GeographicUnit) CountyKey() string {
	return u.StateFIPS + u.CountyFIPS
}

// TractCode returns the 6-digit tract code of an 11-digit tract GEOID.
func (u GeographicUnit) TractCode() string {
	if len(u.ID) != 11 {
		return u.ID
	}
	return u.ID[5:]
}

// MarketQuery describes a market statistics request.
type MarketQuery struct {
	Center      Point     `json:"center" yaml:"center"`
	RadiusMiles float64   `json:"radius_miles" yaml:"radius_miles"`
	Year        string    `json:"year" yaml:"year"`
	Geography   Geography `json:"geography" yaml:"geography"`
}

// Validate rejects queries that cannot be resolved.
func (q MarketQuery) Validate() error {
	if err := q.Center.Validate(); err != nil {
		return err
	}
	if err := ValidateRadius(q.RadiusMiles); err != nil {
		return err
	}
	if err := ValidateYear(q.Year); err != nil {
		return err
	}
	if _, err := ParseGeography(string(q.Geography)); err != nil {
		return err
	}
	return nil
}

// CacheParams returns the query as cache-key parameters.
func (q MarketQuery) CacheParams() map[string]any {
	return map[string]any{
		"lat":       q.Center.Lat,
		"lon":       q.Center.Lon,
		"radius":    q.RadiusMiles,
		"year":      q.Year,
		"geography": string(q.Geography),
	}
}

// ValidateYear checks a 4-digit survey year.
func ValidateYear(year string) error {
	if len(year) != 4 {
		return eris.Wrapf(ErrInvalidInput, "year %q must have 4 digits", year)
	}
	n, err := strconv.Atoi(year)
	if err != nil || n < 2009 || n > 2100 {
		return eris.Wrapf(ErrInvalidInput, "year %q out of range", year)
	}
	return nil
}
