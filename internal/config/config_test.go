package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdgate/internal/ratelimit"
)

const sampleYAML = `
app:
  name: mdgate
  env: production
server:
  host: 127.0.0.1
  port: 9090
redis:
  addr: localhost:6379
cache:
  max_size: 500
rate_limit:
  vendors:
    polygon:
      capacity: 5
      refill_per_second: 0.5
providers:
  polygon:
    api_key: pk-test
  finnhub:
    api_key: fh-test
  tradier:
    api_key: td-test
router:
  failure_threshold: 5
  cooldown: 10m
  policies:
    quotes:
      primary: finnhub
      fallback: polygon
    bars: polygon
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Env)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, 500, cfg.Cache.MaxSize)
	assert.Equal(t, ratelimit.VendorLimit{Capacity: 5, RefillPerSecond: 0.5},
		cfg.RateLimit.Vendors["polygon"])

	// file overrides replace the default routing table
	assert.Equal(t, "finnhub", string(cfg.Router.Policies.Quotes.Primary))
	assert.Equal(t, "polygon", string(cfg.Router.Policies.Quotes.Fallback))

	opts := cfg.Router.Options()
	assert.Equal(t, 5, opts.FailureThreshold)
	assert.Equal(t, 10*time.Minute, opts.Cooldown)
	// unset knobs keep their defaults
	assert.Equal(t, 60*time.Second, opts.HealthInterval)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MDGATE_SERVER_PORT", "7070")
	t.Setenv("MDGATE_POLYGON_API_KEY", "from-env")
	t.Setenv("MDGATE_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "from-env", cfg.Providers.Polygon.APIKey)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejectsUnkeyedVendorInPolicy(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	cfg.Providers.Finnhub.APIKey = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finnhub")
}

func TestValidateRequiresSomeProvider(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestDefaultInvalidPort(t *testing.T) {
	cfg := Default()
	cfg.Providers.Polygon.APIKey = "k"
	cfg.Server.Port = 0
	require.Error(t, cfg.Validate())
}
