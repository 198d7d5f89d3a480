package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Census   CensusConfig   `yaml:"census" mapstructure:"census"`
	Geocoder GeocoderConfig `yaml:"geocoder" mapstructure:"geocoder"`
	TIGERweb TIGERwebConfig `yaml:"tigerweb" mapstructure:"tigerweb"`
	Catalog  CatalogConfig  `yaml:"catalog" mapstructure:"catalog"`
	Fetcher  FetcherConfig  `yaml:"fetcher" mapstructure:"fetcher"`
	Breaker  BreakerConfig  `yaml:"breaker" mapstructure:"breaker"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// CensusConfig holds Census data API settings.
type CensusConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
}

// GeocoderConfig holds Census Geocoder settings.
type GeocoderConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	Benchmark    string  `yaml:"benchmark" mapstructure:"benchmark"`
	GeoBenchmark string  `yaml:"geo_benchmark" mapstructure:"geo_benchmark"`
	Vintage      string  `yaml:"vintage" mapstructure:"vintage"`
	Layers       string  `yaml:"layers" mapstructure:"layers"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// TIGERwebConfig holds TIGERweb map service settings. Zero layer ids keep
// the built-in defaults.
type TIGERwebConfig struct {
	URLTemplate string       `yaml:"url_template" mapstructure:"url_template"`
	Layers      LayersConfig `yaml:"layers" mapstructure:"layers"`
}

// LayersConfig maps geography levels to map service layer ids.
type LayersConfig struct {
	State      int `yaml:"state" mapstructure:"state"`
	County     int `yaml:"county" mapstructure:"county"`
	Place      int `yaml:"place" mapstructure:"place"`
	Tract      int `yaml:"tract" mapstructure:"tract"`
	BlockGroup int `yaml:"block_group" mapstructure:"block_group"`
}

// Map returns the configured layer ids keyed by level, omitting unset ones.
func (l LayersConfig) Map() map[string]int {
	out := map[string]int{}
	for level, id := range map[string]int{
		"state":      l.State,
		"county":     l.County,
		"place":      l.Place,
		"tract":      l.Tract,
		"blockGroup": l.BlockGroup,
	} {
		if id > 0 {
			out[level] = id
		}
	}
	return out
}

// CatalogConfig configures the alias, dataset and lookup tables.
type CatalogConfig struct {
	// Dir overrides embedded catalog files with files of the same name.
	Dir         string `yaml:"dir" mapstructure:"dir"`
	ZipTableURL string `yaml:"zip_table_url" mapstructure:"zip_table_url"`
	// RemoteGeography reads geography requirements from the Census API
	// instead of the embedded dataset table.
	RemoteGeography bool `yaml:"remote_geography" mapstructure:"remote_geography"`
}

// HostRate is a requests-per-second limit for one upstream host.
type HostRate struct {
	Host string  `yaml:"host" mapstructure:"host"`
	RPS  float64 `yaml:"rps" mapstructure:"rps"`
}

// FetcherConfig configures the shared HTTP fetcher.
type FetcherConfig struct {
	UserAgent   string     `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int        `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DefaultRate float64    `yaml:"default_rate" mapstructure:"default_rate"`
	RateLimits  []HostRate `yaml:"rate_limits" mapstructure:"rate_limits"`
}

// BreakerConfig configures the per-host circuit breakers.
type BreakerConfig struct {
	Enabled          bool `yaml:"enabled" mapstructure:"enabled"`
	FailureThreshold int  `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int  `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
	HalfOpenProbes   int  `yaml:"half_open_probes" mapstructure:"half_open_probes"`
}

// PipelineConfig configures request processing.
type PipelineConfig struct {
	// SupplementalConcurrency bounds in-flight supplemental summary
	// requests per merge. Zero leaves them unbounded.
	SupplementalConcurrency int `yaml:"supplemental_concurrency" mapstructure:"supplemental_concurrency"`
	TimeoutSecs             int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
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
	v.SetEnvPrefix("CENSUSGEO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("census.base_url", "https://api.census.gov/data/")
	v.SetDefault("census.api_key", "")
	v.SetDefault("geocoder.base_url", "https://geocoding.geo.census.gov/geocoder/")
	v.SetDefault("geocoder.benchmark", "Public_AR_Current")
	v.SetDefault("geocoder.geo_benchmark", "4")
	v.SetDefault("geocoder.vintage", "4")
	v.SetDefault("geocoder.layers", "8,12,28,84,86")
	v.SetDefault("geocoder.rate_limit", 50)
	v.SetDefault("tigerweb.url_template", "https://tigerweb.geo.census.gov/arcgis/rest/services/TIGERweb/tigerWMS_Current/MapServer/{layer}/query")
	v.SetDefault("tigerweb.layers.state", 0)
	v.SetDefault("tigerweb.layers.county", 0)
	v.SetDefault("tigerweb.layers.place", 0)
	v.SetDefault("tigerweb.layers.tract", 0)
	v.SetDefault("tigerweb.layers.block_group", 0)
	v.SetDefault("catalog.dir", "")
	v.SetDefault("catalog.zip_table_url", "https://s3.amazonaws.com/citysdk/zipcode-to-coordinates.json")
	v.SetDefault("catalog.remote_geography", false)
	v.SetDefault("fetcher.user_agent", "census-geo/1.0")
	v.SetDefault("fetcher.timeout_secs", 30)
	v.SetDefault("fetcher.default_rate", 0)
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 30)
	v.SetDefault("breaker.half_open_probes", 1)
	v.SetDefault("pipeline.supplemental_concurrency", 8)
	v.SetDefault("pipeline.timeout_secs", 120)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
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

// Validate checks values that would otherwise fail at first use.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return eris.Errorf("config: server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Pipeline.SupplementalConcurrency < 0 {
		return eris.Errorf("config: pipeline.supplemental_concurrency must be >= 0, got %d", c.Pipeline.SupplementalConcurrency)
	}
	if c.Fetcher.TimeoutSecs < 0 || c.Pipeline.TimeoutSecs < 0 {
		return eris.New("config: timeouts must be >= 0")
	}
	if c.Breaker.Enabled && c.Breaker.FailureThreshold <= 0 {
		return eris.Errorf("config: breaker.failure_threshold must be > 0, got %d", c.Breaker.FailureThreshold)
	}
	for _, hr := range c.Fetcher.RateLimits {
		if hr.Host == "" {
			return eris.New("config: fetcher.rate_limits entries need a host")
		}
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return eris.Errorf("config: log.format must be json or console, got %q", c.Log.Format)
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
