package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found.
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "reconcile.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 30*time.Second, cfg.Graph.Timeout())
	assert.Equal(t, 3, cfg.Graph.MaxRetries)
	assert.Equal(t, time.Second, cfg.Graph.RetryBaseDelay())
	assert.InDelta(t, 10, cfg.Graph.RateLimit, 0.001)
	assert.InDelta(t, 80, cfg.Matching.FuzzyThreshold, 0.001)
	assert.InDelta(t, 95, cfg.Matching.AutoResolveThreshold, 0.001)
	assert.InDelta(t, 5, cfg.Matching.MinScoreFloor, 0.001)
	assert.Equal(t, 5, cfg.Matching.TopN)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/reconcile
graph:
  url: http://graph.internal:8080/graphql
  api_token: secret
  max_retries: 5
matching:
  fuzzy_threshold: 75
  auto_resolve_threshold: 92
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/reconcile", cfg.Store.DatabaseURL)
	assert.Equal(t, "http://graph.internal:8080/graphql", cfg.Graph.URL)
	assert.Equal(t, "secret", cfg.Graph.APIToken)
	assert.Equal(t, 5, cfg.Graph.MaxRetries)
	assert.InDelta(t, 75, cfg.Matching.FuzzyThreshold, 0.001)
	assert.InDelta(t, 92, cfg.Matching.AutoResolveThreshold, 0.001)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFromEnv(t *testing.T) {
	chTempDir(t)
	t.Setenv("RECONCILE_STORE_DRIVER", "postgres")
	t.Setenv("RECONCILE_GRAPH_API_TOKEN", "env-token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "env-token", cfg.Graph.APIToken)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Store: StoreConfig{Driver: "sqlite"},
			Graph: GraphConfig{
				TimeoutSecs:      30,
				MaxRetries:       3,
				RetryBaseDelayMs: 1000,
			},
			Matching: MatchingConfig{
				FuzzyThreshold:       80,
				AutoResolveThreshold: 95,
				MinScoreFloor:        5,
				TopN:                 5,
			},
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("fuzzy above auto", func(t *testing.T) {
		c := valid()
		c.Matching.FuzzyThreshold = 96
		assert.Error(t, c.Validate())
	})

	t.Run("floor out of range", func(t *testing.T) {
		c := valid()
		c.Matching.MinScoreFloor = 101
		assert.Error(t, c.Validate())
	})

	t.Run("zero retries", func(t *testing.T) {
		c := valid()
		c.Graph.MaxRetries = 0
		assert.Error(t, c.Validate())
	})

	t.Run("zero timeout", func(t *testing.T) {
		c := valid()
		c.Graph.TimeoutSecs = 0
		assert.Error(t, c.Validate())
	})

	t.Run("unknown driver", func(t *testing.T) {
		c := valid()
		c.Store.Driver = "mysql"
		assert.Error(t, c.Validate())
	})
}
