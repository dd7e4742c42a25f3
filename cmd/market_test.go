package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/market-stats/internal/model"
)

func sampleStats() *model.MarketStats {
	ms := &model.MarketStats{
		Query:        model.MarketQuery{Center: model.Point{Lat: 38.6592, Lon: -90.358}, RadiusMiles: 10, Year: "2023", Geography: model.GeographyZIP},
		TotalUnits:   2,
		MatchedUnits: 1,
		Matched:      []string{"63130"},
		Missing:      []string{"63105"},
	}
	ms.TotalPopulation = 1200
	ms.PovertyRate = model.Some(0.1)
	return ms
}

func TestWriteOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "json", sampleStats()))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, float64(1200), out["total_population"])
	assert.Equal(t, 0.1, out["poverty_rate"])
	assert.Nil(t, out["median_income"])
	assert.Equal(t, []any{"63105"}, out["missing_units"])
	assert.Contains(t, buf.String(), "\n  ")
}

func TestWriteOutput_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "yaml", sampleStats()))

	var out map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, 1200, out["total_population"])
	assert.Equal(t, 0.1, out["poverty_rate"])
	assert.Contains(t, out, "median_income")
	assert.Nil(t, out["median_income"])
	assert.Equal(t, []any{"63130"}, out["matched_units"])
}
