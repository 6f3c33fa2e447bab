// Package config loads and validates the application configuration from
// config.yaml and RECONCILE_* environment variables.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tradecraft-foods/reconcile-cli/internal/policy"
)

// Config holds the full application configuration. It is built once at
// startup and passed into components; nothing reads viper after Load.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Graph    GraphConfig    `yaml:"graph" mapstructure:"graph"`
	Matching MatchingConfig `yaml:"matching" mapstructure:"matching"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the review queue database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds optional postgres connection pool tuning.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// GraphConfig configures the graph store gateway.
type GraphConfig struct {
	URL              string  `yaml:"url" mapstructure:"url"`
	APIToken         string  `yaml:"api_token" mapstructure:"api_token"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBaseDelayMs int     `yaml:"retry_base_delay_ms" mapstructure:"retry_base_delay_ms"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// Timeout returns the per-call gateway timeout.
func (g GraphConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSecs) * time.Second
}

// RetryBaseDelay returns the base delay for gateway retries.
func (g GraphConfig) RetryBaseDelay() time.Duration {
	return time.Duration(g.RetryBaseDelayMs) * time.Millisecond
}

// MatchingConfig configures the fuzzy matcher and the resolution policy.
type MatchingConfig struct {
	FuzzyThreshold       float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	AutoResolveThreshold float64 `yaml:"auto_resolve_threshold" mapstructure:"auto_resolve_threshold"`
	MinScoreFloor        float64 `yaml:"min_score_floor" mapstructure:"min_score_floor"`
	TopN                 int     `yaml:"top_n" mapstructure:"top_n"`
}

// Thresholds converts the matching settings to a policy.Thresholds.
func (m MatchingConfig) Thresholds() policy.Thresholds {
	return policy.Thresholds{Fuzzy: m.FuzzyThreshold, Auto: m.AutoResolveThreshold, TopN: m.TopN}
}

// ServerConfig configures the review HTTP server.
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

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RECONCILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "reconcile.db")
	v.SetDefault("graph.timeout_secs", 30)
	v.SetDefault("graph.max_retries", 3)
	v.SetDefault("graph.retry_base_delay_ms", 1000)
	v.SetDefault("graph.rate_limit", 10)
	v.SetDefault("matching.fuzzy_threshold", 80.0)
	v.SetDefault("matching.auto_resolve_threshold", 95.0)
	v.SetDefault("matching.min_score_floor", 5.0)
	v.SetDefault("matching.top_n", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the configuration at startup. Any violation is fatal: the
// process must not start row work with an inconsistent policy.
func (c *Config) Validate() error {
	if err := c.Matching.Thresholds().Validate(); err != nil {
		return err
	}
	if c.Matching.MinScoreFloor < 0 || c.Matching.MinScoreFloor > 100 {
		return eris.Errorf("config: min_score_floor must be within [0,100], got %.1f", c.Matching.MinScoreFloor)
	}
	if c.Graph.MaxRetries < 1 {
		return eris.Errorf("config: graph.max_retries must be at least 1, got %d", c.Graph.MaxRetries)
	}
	if c.Graph.TimeoutSecs <= 0 {
		return eris.Errorf("config: graph.timeout_secs must be positive, got %d", c.Graph.TimeoutSecs)
	}
	if c.Graph.RetryBaseDelayMs <= 0 {
		return eris.Errorf("config: graph.retry_base_delay_ms must be positive, got %d", c.Graph.RetryBaseDelayMs)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
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
