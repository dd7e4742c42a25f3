package census

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-stats/internal/model"
)

// Row is one data row of a statistics table, keyed by header name.
type Row map[string]string

// ParseTable decodes the source's 2D array: row 0 holds headers and the
// remaining rows hold values. Headers are zipped to values by name since the
// column order is not guaranteed.
func ParseTable(body []byte) ([]Row, error) {
	var raw [][]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "census: parse json")
	}
	if len(raw) == 0 {
		return nil, nil
	}

	headers := make([]string, len(raw[0]))
	for i, h := range raw[0] {
		headers[i] = cellString(h)
	}

	rows := make([]Row, 0, len(raw)-1)
	for _, values := range raw[1:] {
		if len(values) != len(headers) {
			return nil, eris.Errorf("census: row has %d values for %d headers", len(values), len(headers))
		}
		row := make(Row, len(headers))
		for i, h := range headers {
			row[h] = cellString(values[i])
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// parseValue reads a numeric cell. Empty cells and the source's negative
// annotation values (-666666666 and friends) are None.
func parseValue(s string) model.Opt[float64] {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return model.None[float64]()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return model.None[float64]()
	}
	return model.Some(f)
}

// ParseUnit converts a row into a UnitStatistics for unit. A row without a
// usable total population is ErrNoData.
func ParseUnit(row Row, unit model.GeographicUnit) (*model.UnitStatistics, error) {
	stats := &model.UnitStatistics{Unit: unit, Name: row["NAME"]}

	for _, f := range countFields {
		*f.ref(stats) = sumCodes(row, f.codes)
	}
	for _, f := range medianFields {
		*f.ref(stats) = parseValue(row[f.code])
	}

	if !stats.TotalPop.Valid() {
		return nil, eris.Wrapf(model.ErrNoData, "census: unit %s has no population", unit.ID)
	}
	return stats, nil
}

func sumCodes(row Row, codes []string) model.Opt[int64] {
	var total int64
	for _, code := range codes {
		v, ok := parseValue(row[code]).Get()
		if !ok {
			return model.None[int64]()
		}
		total += int64(math.Round(v))
	}
	return model.Some(total)
}

// rowGEOID builds the identifier of the geography a row describes.
func rowGEOID(row Row) string {
	if z, ok := row["zip code tabulation area"]; ok {
		return z
	}
	if t, ok := row["tract"]; ok {
		return row["state"] + row["county"] + t
	}
	if c, ok := row["county"]; ok {
		return row["state"] + c
	}
	if s, ok := row["state"]; ok {
		return s
	}
	if us, ok := row["us"]; ok {
		return us
	}
	return ""
}
