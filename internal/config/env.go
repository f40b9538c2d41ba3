package config

import (
	"os"
	"strconv"
	"time"
)

// envPrefix namespaces every override.
const envPrefix = "MDGATE_"

// applyEnv overlays environment variables on the loaded config. Secrets
// (API keys, the redis password) are expected to arrive this way rather
// than through the YAML file.
func applyEnv(cfg *Config) {
	setString(&cfg.App.Env, "ENV")

	setString(&cfg.Server.Host, "SERVER_HOST")
	setInt(&cfg.Server.Port, "SERVER_PORT")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")

	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Logging.Output, "LOG_OUTPUT")

	setInt(&cfg.Cache.MaxSize, "CACHE_MAX_SIZE")

	setString(&cfg.Providers.Polygon.APIKey, "POLYGON_API_KEY")
	setString(&cfg.Providers.Polygon.BaseURL, "POLYGON_BASE_URL")
	setString(&cfg.Providers.Finnhub.APIKey, "FINNHUB_API_KEY")
	setString(&cfg.Providers.Finnhub.BaseURL, "FINNHUB_BASE_URL")
	setString(&cfg.Providers.Tradier.APIKey, "TRADIER_API_KEY")
	setString(&cfg.Providers.Tradier.BaseURL, "TRADIER_BASE_URL")

	setInt(&cfg.Router.FailureThreshold, "ROUTER_FAILURE_THRESHOLD")
	setDuration(&cfg.Router.Cooldown, "ROUTER_COOLDOWN")
	setDuration(&cfg.Router.HealthInterval, "ROUTER_HEALTH_INTERVAL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
