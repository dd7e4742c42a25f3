package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Census CensusConfig `yaml:"census" mapstructure:"census"`
	Geo    GeoConfig    `yaml:"geo" mapstructure:"geo"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// CensusConfig configures the statistics source client.
type CensusConfig struct {
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Dataset           string  `yaml:"dataset" mapstructure:"dataset"`
	APIKey            string  `yaml:"api_key" mapstructure:"api_key"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	InitialDelayMs    int     `yaml:"initial_delay_ms" mapstructure:"initial_delay_ms"`
}

// GeoConfig configures the PostGIS geo store.
type GeoConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures the in-process cache.
type CacheConfig struct {
	MaxEntries      int            `yaml:"max_entries" mapstructure:"max_entries"`
	DefaultTTLSecs  int            `yaml:"default_ttl_secs" mapstructure:"default_ttl_secs"`
	EmptyTTLSecs    int            `yaml:"empty_ttl_secs" mapstructure:"empty_ttl_secs"`
	EndpointTTLSecs map[string]int `yaml:"endpoint_ttl_secs" mapstructure:"endpoint_ttl_secs"`
}

// EndpointTTLs converts the configured endpoint TTLs to durations.
func (c CacheConfig) EndpointTTLs() map[string]time.Duration {
	out := make(map[string]time.Duration, len(c.EndpointTTLSecs))
	for k, v := range c.EndpointTTLSecs {
		out[k] = time.Duration(v) * time.Second
	}
	return out
}

// BatchConfig configures chunking and pacing of outbound statistics calls.
type BatchConfig struct {
	UnitChunkSize     int `yaml:"unit_chunk_size" mapstructure:"unit_chunk_size"`
	CountyChunkSize   int `yaml:"county_chunk_size" mapstructure:"county_chunk_size"`
	CountyConcurrency int `yaml:"county_concurrency" mapstructure:"county_concurrency"`
	UnitDelayMs       int `yaml:"unit_delay_ms" mapstructure:"unit_delay_ms"`
	GroupDelayMs      int `yaml:"group_delay_ms" mapstructure:"group_delay_ms"`
	ReferenceDelayMs  int `yaml:"reference_delay_ms" mapstructure:"reference_delay_ms"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("census.base_url", "https://api.census.gov/data")
	v.SetDefault("census.dataset", "acs/acs5")
	v.SetDefault("census.api_key", "")
	v.SetDefault("census.user_agent", "market-stats/1.0")
	v.SetDefault("census.timeout_secs", 30)
	v.SetDefault("census.requests_per_second", 5.0)
	v.SetDefault("census.max_retries", 3)
	v.SetDefault("census.initial_delay_ms", 1000)
	v.SetDefault("geo.database_url", "")
	v.SetDefault("geo.max_conns", 10)
	v.SetDefault("geo.min_conns", 1)
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.default_ttl_secs", 300)
	v.SetDefault("cache.empty_ttl_secs", 300)
	v.SetDefault("cache.endpoint_ttl_secs", map[string]int{
		"market-stats": 3600,
		"unit-stats":   86400,
		"reference":    86400,
		"geo-units":    21600,
	})
	v.SetDefault("batch.unit_chunk_size", 5)
	v.SetDefault("batch.county_chunk_size", 3)
	v.SetDefault("batch.county_concurrency", 3)
	v.SetDefault("batch.unit_delay_ms", 100)
	v.SetDefault("batch.group_delay_ms", 200)
	v.SetDefault("batch.reference_delay_ms", 100)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields required by a command mode ("market" or "serve").
// All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "market":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Geo.DatabaseURL == "" {
		errs = append(errs, "geo.database_url is required")
	}
	if c.Census.MaxRetries < 1 {
		errs = append(errs, "census.max_retries must be >= 1")
	}
	if c.Census.TimeoutSecs <= 0 {
		errs = append(errs, "census.timeout_secs must be > 0")
	}
	if c.Cache.MaxEntries < 1 {
		errs = append(errs, "cache.max_entries must be >= 1")
	}
	if c.Batch.UnitChunkSize < 1 || c.Batch.CountyChunkSize < 1 {
		errs = append(errs, "batch chunk sizes must be >= 1")
	}
	if c.Batch.CountyConcurrency < 1 || c.Batch.CountyConcurrency > 10 {
		errs = append(errs, "batch.county_concurrency must be between 1 and 10")
	}
	if c.Batch.UnitDelayMs < 0 || c.Batch.GroupDelayMs < 0 || c.Batch.ReferenceDelayMs < 0 {
		errs = append(errs, "batch delays must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
