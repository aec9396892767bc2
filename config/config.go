// Package config loads the service configuration from file and environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	General    GeneralConfig    `mapstructure:"general"`
	Server     ServerConfig     `mapstructure:"server"`
	Upstream   UpstreamConfig   `mapstructure:"upstream"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Signals    SignalsConfig    `mapstructure:"signals"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// UpstreamConfig points at the complaint search API.
type UpstreamConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// AuthConfig controls edge authentication for the REST surface. Both schemes
// are optional; with neither set the API is open.
type AuthConfig struct {
	APIKey    string `mapstructure:"api_key"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// Enabled reports whether any auth scheme is configured.
func (a AuthConfig) Enabled() bool {
	return strings.TrimSpace(a.APIKey) != "" || strings.TrimSpace(a.JWTSecret) != ""
}

// RateLimitConfig selects and tunes the request limiter. Backend is
// "memory" or "redis"; RPS<=0 disables limiting entirely.
type RateLimitConfig struct {
	Backend  string        `mapstructure:"backend"`
	RPS      float64       `mapstructure:"rps"`
	Burst    int           `mapstructure:"burst"`
	RedisURL string        `mapstructure:"redis_url"`
	Window   time.Duration `mapstructure:"window"`
}

func (r RateLimitConfig) Validate() error {
	if r.RPS <= 0 {
		return nil
	}
	switch r.Backend {
	case "", "memory":
		return nil
	case "redis":
		if strings.TrimSpace(r.RedisURL) == "" {
			return fmt.Errorf("rate_limit.redis_url required for the redis backend")
		}
		return nil
	default:
		return fmt.Errorf("rate_limit.backend must be memory or redis, got %q", r.Backend)
	}
}

// SignalsConfig tunes the spike detectors.
type SignalsConfig struct {
	BaselineWindow         int     `mapstructure:"baseline_window"`
	MinBaselineMean        float64 `mapstructure:"min_baseline_mean"`
	CompanyMinBaselineMean float64 `mapstructure:"company_min_baseline_mean"`
}

// ScreenshotConfig controls the headless chart capturer.
type ScreenshotConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads configuration from the given file (optional) and CFPBLENS_*
// environment variables. A missing config file is fine; everything has a
// default.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":8089")
	v.SetDefault("server.request_timeout", 60*time.Second)
	v.SetDefault("upstream.base_url", "https://www.consumerfinance.gov/data-research/consumer-complaints/search/api/v1")
	v.SetDefault("upstream.timeout", 30*time.Second)
	v.SetDefault("upstream.user_agent", "cfpblens/1.0")
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.rps", 0)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("signals.baseline_window", 8)
	v.SetDefault("signals.min_baseline_mean", 10)
	v.SetDefault("signals.company_min_baseline_mean", 25)
	v.SetDefault("screenshot.enabled", false)
	v.SetDefault("screenshot.timeout", 45*time.Second)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("CFPBLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.RateLimit.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
