package main

import (
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-stats/internal/config"
	"github.com/sells-group/market-stats/internal/market"
)

func TestEndpointTTLs_OverlaysDefaults(t *testing.T) {
	ttls := endpointTTLs(config.CacheConfig{EndpointTTLSecs: map[string]int{
		market.EndpointMarketStats: 60,
		"custom":                   5,
	}})

	assert.Equal(t, time.Minute, ttls[market.EndpointMarketStats])
	assert.Equal(t, 5*time.Second, ttls["custom"])
	assert.Equal(t, 6*time.Hour, ttls[market.EndpointGeoUnits])
}

func TestBuildService(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := &config.Config{}
	c.Census.MaxRetries = 3
	c.Census.TimeoutSecs = 30
	c.Cache.MaxEntries = 50
	c.Cache.DefaultTTLSecs = 120
	c.Batch.UnitChunkSize = 5
	c.Batch.CountyChunkSize = 3
	c.Batch.CountyConcurrency = 3

	svc := buildService(c, mock)
	require.NotNil(t, svc)

	store := svc.Cache()
	assert.Equal(t, 50, store.Stats().MaxSize)
	assert.Equal(t, 2*time.Minute, store.TTLFor("unknown"))
	assert.Equal(t, time.Hour, store.TTLFor(market.EndpointMarketStats))
}
