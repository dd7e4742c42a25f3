// Package geospatial resolves a market circle into the ZCTAs or census tracts
// it intersects. The spatial math runs in the PostGIS geo store.
package geospatial

import (
	"context"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"

	"github.com/sells-group/market-stats/internal/db"
	"github.com/sells-group/market-stats/internal/model"
)

// Resolver returns the units intersecting a buffered circle, nearest first.
type Resolver interface {
	Resolve(ctx context.Context, center model.Point, radiusMiles float64, geography model.Geography) ([]model.GeographicUnit, error)
}

// layer describes how one geography is stored in the geo schema.
type layer struct {
	table    string
	idCol    string
	stateCol string
	// countyCol is empty for geographies without a county column.
	countyCol string
	// areaExpr yields land area in square meters.
	areaExpr string
	// countyJoin, when set, places the unit centroid in geo.counties as c.
	countyJoin bool
}

// countyLookup finds the county containing the unit centroid.
const countyLookup = `
		LEFT JOIN LATERAL (
			SELECT state_fips, county_fips
			FROM geo.counties
			WHERE ST_Contains(geom, ST_SetSRID(ST_MakePoint(u.longitude, u.latitude), 4326))
			LIMIT 1
		) c ON true`

// layers is the allowlist of geographies that may be resolved. Table and
// column names are never taken from input.
var layers = map[model.Geography]layer{
	model.GeographyZIP: {
		table:      "geo.zcta",
		idCol:      "zcta5",
		stateCol:   "COALESCE(u.state_fips, c.state_fips, '')",
		countyCol:  "COALESCE(c.county_fips, '')",
		areaExpr:   "u.aland::float8",
		countyJoin: true,
	},
	model.GeographyTract: {
		table:     "geo.census_tracts",
		idCol:     "geoid",
		stateCol:  "u.state_fips",
		countyCol: "u.county_fips",
		areaExpr:  "ST_Area(u.geom::geography)",
	},
}

// resolveSQL builds the intersect query for a layer. $1 is the center as
// EWKB, $2 the radius in meters.
func resolveSQL(l layer) string {
	county := "''"
	if l.countyCol != "" {
		county = l.countyCol
	}
	join := ""
	if l.countyJoin {
		join = countyLookup
	}
	return fmt.Sprintf(`
		WITH center AS (SELECT ST_GeomFromEWKB($1)::geography AS g)
		SELECT u.%s, %s, %s, u.latitude, u.longitude, %s AS land_area,
		       ST_Distance(ST_SetSRID(ST_MakePoint(u.longitude, u.latitude), 4326)::geography, center.g) AS distance_m
		FROM %s u
		CROSS JOIN center%s
		WHERE ST_DWithin(u.geom::geography, center.g, $2)
		ORDER BY distance_m, u.%s
	`, l.idCol, l.stateCol, county, l.areaExpr, l.table, join, l.idCol)
}

// EncodePoint converts a point to EWKB with SRID 4326 (x = lon, y = lat).
func EncodePoint(p model.Point) ([]byte, error) {
	pt := geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}).SetSRID(4326)
	data, err := ewkb.Marshal(pt, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode center")
	}
	return data, nil
}

// PostGISResolver implements Resolver against the geo.* schema.
type PostGISResolver struct {
	pool db.Pool
}

var _ Resolver = (*PostGISResolver)(nil)

// NewPostGISResolver creates a resolver on pool.
func NewPostGISResolver(pool db.Pool) *PostGISResolver {
	return &PostGISResolver{pool: pool}
}

// Resolve implements Resolver. Bad input is model.ErrInvalidInput; any geo
// store failure is model.ErrSourceUnavailable and is not retried here.
// No intersecting units is an empty result, not an error.
func (r *PostGISResolver) Resolve(ctx context.Context, center model.Point, radiusMiles float64, geography model.Geography) ([]model.GeographicUnit, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if err := model.ValidateRadius(radiusMiles); err != nil {
		return nil, err
	}
	l, ok := layers[geography]
	if !ok {
		return nil, eris.Wrapf(model.ErrInvalidInput, "geo: unknown geography %q", geography)
	}

	pt, err := EncodePoint(center)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, resolveSQL(l), pt, radiusMiles*model.MilesToMeters)
	if err != nil {
		return nil, eris.Wrapf(model.ErrSourceUnavailable, "geo: query %s: %v", l.table, err)
	}
	defer rows.Close()

	units := []model.GeographicUnit{}
	for rows.Next() {
		u := model.GeographicUnit{Geography: geography}
		if err := rows.Scan(
			&u.ID, &u.StateFIPS, &u.CountyFIPS,
			&u.Centroid.Lat, &u.Centroid.Lon,
			&u.LandAreaSqMeters, &u.DistanceMeters,
		); err != nil {
			return nil, eris.Wrapf(model.ErrSourceUnavailable, "geo: scan %s row: %v", l.table, err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(model.ErrSourceUnavailable, "geo: iterate %s rows: %v", l.table, err)
	}

	sort.SliceStable(units, func(i, j int) bool {
		return units[i].DistanceMeters < units[j].DistanceMeters
	})
	return units, nil
}
