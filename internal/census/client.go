// Package census reads demographic and economic tables from the Census
// statistics API for ZCTAs, tracts and their enclosing geographies.
package census

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-stats/internal/fetcher"
	"github.com/sells-group/market-stats/internal/model"
)

// Options configures the statistics client.
type Options struct {
	BaseURL string // e.g. https://api.census.gov/data
	Dataset string // e.g. acs/acs5
	APIKey  string
}

// Client builds statistics requests and parses their tables. All calls go
// through the injected Fetcher.
type Client struct {
	f    fetcher.Fetcher
	opts Options
	vars string
}

// NewClient creates a Client.
func NewClient(f fetcher.Fetcher, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.census.gov/data"
	}
	if opts.Dataset == "" {
		opts.Dataset = "acs/acs5"
	}
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &Client{f: f, opts: opts, vars: strings.Join(Variables(), ",")}
}

// buildURL returns <base>/<year>/<dataset>?get=...&for=...[&in=...][&key=...].
func (c *Client) buildURL(year, forClause, inClause string) string {
	q := url.Values{}
	q.Set("get", c.vars)
	q.Set("for", forClause)
	if inClause != "" {
		q.Set("in", inClause)
	}
	if c.opts.APIKey != "" {
		q.Set("key", c.opts.APIKey)
	}
	return c.opts.BaseURL + "/" + year + "/" + c.opts.Dataset + "?" + q.Encode()
}

// UnitURL returns the request URL for a single unit.
func (c *Client) UnitURL(year string, unit model.GeographicUnit) string {
	switch unit.Geography {
	case model.GeographyTract:
		return c.buildURL(year, "tract:"+unit.TractCode(), "state:"+unit.StateFIPS+" county:"+unit.CountyFIPS)
	default:
		// ZCTAs were nested in states before the 2020 vintage.
		in := ""
		if y, err := strconv.Atoi(year); err == nil && y < 2020 && unit.StateFIPS != "" {
			in = "state:" + unit.StateFIPS
		}
		return c.buildURL(year, "zip code tabulation area:"+unit.ID, in)
	}
}

// CountyTractsURL returns the request URL for every tract in one county.
func (c *Client) CountyTractsURL(year, stateFIPS, countyFIPS string) string {
	return c.buildURL(year, "tract:*", "state:"+stateFIPS+" county:"+countyFIPS)
}

// ReferenceURL returns the request URL for a national, state or county profile.
func (c *Client) ReferenceURL(year string, level model.ReferenceLevel, geoid string) (string, error) {
	switch level {
	case model.LevelNational:
		return c.buildURL(year, "us:1", ""), nil
	case model.LevelState:
		if len(geoid) != 2 {
			return "", eris.Wrapf(model.ErrInvalidInput, "census: state geoid %q", geoid)
		}
		return c.buildURL(year, "state:"+geoid, ""), nil
	case model.LevelCounty:
		if len(geoid) != 5 {
			return "", eris.Wrapf(model.ErrInvalidInput, "census: county geoid %q", geoid)
		}
		return c.buildURL(year, "county:"+geoid[2:], "state:"+geoid[:2]), nil
	default:
		return "", eris.Wrapf(model.ErrInvalidInput, "census: reference level %q", level)
	}
}

func (c *Client) fetchRows(ctx context.Context, rawURL string) ([]Row, error) {
	resp, err := c.f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	// The source answers 204 with an empty body for unknown geographies.
	if len(resp.Body) == 0 {
		return nil, nil
	}
	return ParseTable(resp.Body)
}

// FetchUnit fetches and parses the statistics of a single unit. An empty
// table or a row without population is ErrNoData.
func (c *Client) FetchUnit(ctx context.Context, year string, unit model.GeographicUnit) (*model.UnitStatistics, error) {
	rows, err := c.fetchRows(ctx, c.UnitURL(year, unit))
	if err != nil {
		return nil, eris.Wrapf(err, "census: fetch unit %s", unit.ID)
	}
	for _, row := range rows {
		if id := rowGEOID(row); id == unit.ID || id == "" {
			return ParseUnit(row, unit)
		}
	}
	return nil, eris.Wrapf(model.ErrNoData, "census: unit %s not in response", unit.ID)
}

// FetchCountyTracts fetches every tract row of a county, keyed by 11-digit GEOID.
func (c *Client) FetchCountyTracts(ctx context.Context, year, stateFIPS, countyFIPS string) (map[string]Row, error) {
	rows, err := c.fetchRows(ctx, c.CountyTractsURL(year, stateFIPS, countyFIPS))
	if err != nil {
		return nil, eris.Wrapf(err, "census: fetch tracts of county %s%s", stateFIPS, countyFIPS)
	}
	byID := make(map[string]Row, len(rows))
	for _, row := range rows {
		if id := rowGEOID(row); id != "" {
			byID[id] = row
		}
	}
	return byID, nil
}

// FetchReference fetches the single-row profile of a larger geography.
func (c *Client) FetchReference(ctx context.Context, year string, level model.ReferenceLevel, geoid string) (*model.UnitStatistics, error) {
	rawURL, err := c.ReferenceURL(year, level, geoid)
	if err != nil {
		return nil, err
	}
	rows, err := c.fetchRows(ctx, rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "census: fetch %s reference %s", level, geoid)
	}
	if len(rows) == 0 {
		return nil, eris.Wrapf(model.ErrNoData, "census: %s reference %s empty", level, geoid)
	}
	return ParseUnit(rows[0], model.GeographicUnit{ID: geoid})
}
