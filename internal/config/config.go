package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mdgate/internal/logging"
	"mdgate/internal/market"
	"mdgate/internal/provider/finnhub"
	"mdgate/internal/provider/polygon"
	"mdgate/internal/provider/tradier"
	"mdgate/internal/ratelimit"
	"mdgate/internal/router"
)

// Config is the full application configuration, loaded from YAML with
// environment overrides applied on top.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   logging.Config  `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Providers ProvidersConfig `yaml:"providers"`
	Router    RouterConfig    `yaml:"router"`
}

// AppConfig identifies the service.
type AppConfig struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisConfig configures the shared rate-limit state. Leaving Addr empty
// disables the distributed bucket; the local bucket still applies.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// CacheConfig configures the in-process response cache.
type CacheConfig struct {
	MaxSize int `yaml:"max_size"`
}

// RateLimitConfig holds per-vendor token bucket limits, shared by the
// local and distributed buckets.
type RateLimitConfig struct {
	Vendors map[market.VendorID]ratelimit.VendorLimit `yaml:"vendors"`
}

// ProvidersConfig holds the upstream vendor credentials. A vendor with an
// empty API key is not registered.
type ProvidersConfig struct {
	Polygon polygon.Config `yaml:"polygon"`
	Finnhub finnhub.Config `yaml:"finnhub"`
	Tradier tradier.Config `yaml:"tradier"`
}

// RouterConfig holds the routing table and breaker tuning.
type RouterConfig struct {
	Policies         router.Policies `yaml:"policies"`
	FailureThreshold int             `yaml:"failure_threshold"`
	Cooldown         time.Duration   `yaml:"cooldown"`
	HealthInterval   time.Duration   `yaml:"health_interval"`
	HealthTimeout    time.Duration   `yaml:"health_timeout"`
}

// Options converts the tuning knobs into router options, filling defaults
// for anything unset.
func (r RouterConfig) Options() router.Options {
	opts := router.DefaultOptions()
	if r.FailureThreshold > 0 {
		opts.FailureThreshold = r.FailureThreshold
	}
	if r.Cooldown > 0 {
		opts.Cooldown = r.Cooldown
	}
	if r.HealthInterval > 0 {
		opts.HealthInterval = r.HealthInterval
	}
	if r.HealthTimeout > 0 {
		opts.HealthTimeout = r.HealthTimeout
	}
	return opts
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name: "mdgate",
			Env:  "development",
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Cache: CacheConfig{
			MaxSize: 1000,
		},
		RateLimit: RateLimitConfig{
			Vendors: map[market.VendorID]ratelimit.VendorLimit{
				polygon.VendorID: {Capacity: 10, RefillPerSecond: 1.5},
				finnhub.VendorID: {Capacity: 30, RefillPerSecond: 1},
				tradier.VendorID: {Capacity: 60, RefillPerSecond: 2},
			},
		},
		Router: RouterConfig{
			Policies: router.Policies{
				Quotes:    router.Policy{Primary: polygon.VendorID, Fallback: finnhub.VendorID},
				Bars:      polygon.VendorID,
				News:      router.Policy{Primary: polygon.VendorID, Fallback: finnhub.VendorID},
				Options:   router.Policy{Primary: polygon.VendorID, Fallback: tradier.VendorID},
				Search:    router.Policy{Primary: tradier.VendorID},
				Liquidity: tradier.VendorID,
			},
		},
	}
}

// Load reads configuration from a YAML file on top of the defaults and
// then applies environment overrides. An empty filename skips the file.
func Load(filename string) (*Config, error) {
	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the router would misroute on.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	registered := c.registeredVendors()
	if len(registered) == 0 {
		return fmt.Errorf("no provider has an API key configured")
	}
	for op, policy := range map[string]router.Policy{
		"quotes":  c.Router.Policies.Quotes,
		"news":    c.Router.Policies.News,
		"options": c.Router.Policies.Options,
		"search":  c.Router.Policies.Search,
	} {
		if policy.Primary == "" {
			continue
		}
		if !registered[policy.Primary] {
			return fmt.Errorf("router.%s: primary vendor %q has no API key", op, policy.Primary)
		}
		if policy.Fallback != "" && !registered[policy.Fallback] {
			return fmt.Errorf("router.%s: fallback vendor %q has no API key", op, policy.Fallback)
		}
	}
	if v := c.Router.Policies.Bars; v != "" && !registered[v] {
		return fmt.Errorf("router.bars: vendor %q has no API key", v)
	}
	if v := c.Router.Policies.Liquidity; v != "" && !registered[v] {
		return fmt.Errorf("router.liquidity: vendor %q has no API key", v)
	}
	return nil
}

func (c *Config) registeredVendors() map[market.VendorID]bool {
	registered := make(map[market.VendorID]bool)
	if c.Providers.Polygon.APIKey != "" {
		registered[polygon.VendorID] = true
	}
	if c.Providers.Finnhub.APIKey != "" {
		registered[finnhub.VendorID] = true
	}
	if c.Providers.Tradier.APIKey != "" {
		registered[tradier.VendorID] = true
	}
	return registered
}
