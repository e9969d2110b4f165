package config

import (
	"time"
)

// Mode selects environment-dependent behavior (security stages, error detail,
// logger profile).
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
	ModeTest        Mode = "test"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeDevelopment, ModeProduction, ModeTest:
		return true
	default:
		return false
	}
}

// IsDevelopment reports whether m is local development mode.
func (m Mode) IsDevelopment() bool { return m == ModeDevelopment }

// IsProduction reports whether m is production mode.
func (m Mode) IsProduction() bool { return m == ModeProduction }

// Config represents the complete application configuration.
// Values come from defaults, an optional YAML file, and environment variables
// (in increasing order of precedence).
type Config struct {
	Mode      Mode            `mapstructure:"mode" yaml:"mode"`
	App       AppConfig       `mapstructure:"app" yaml:"app"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" yaml:"ratelimit"`
	CORS      CORSConfig      `mapstructure:"cors" yaml:"cors"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// AppConfig carries identity shown on the root endpoint and in logs.
type AppConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// TrustProxy resolves the client address from X-Forwarded-For / X-Real-IP
	// when the service sits behind a reverse proxy.
	TrustProxy bool `mapstructure:"trust_proxy" yaml:"trust_proxy"`

	// BodyLimit caps request bodies, in bytes.
	BodyLimit int64 `mapstructure:"body_limit" yaml:"body_limit"`

	// MaxRequestIDLength caps inbound X-Request-ID values, in bytes. Longer
	// values are replaced by a generated ID. Zero disables the cap.
	MaxRequestIDLength int `mapstructure:"max_request_id_length" yaml:"max_request_id_length"`
}

// RateLimitConfig configures the per-client admission limiter.
type RateLimitConfig struct {
	// Points is the number of requests admitted per window.
	Points int `mapstructure:"points" yaml:"points"`

	// Duration is the window length in seconds.
	Duration int `mapstructure:"duration" yaml:"duration"`

	// SweepSchedule is the cron spec for evicting expired entries.
	SweepSchedule string `mapstructure:"sweep_schedule" yaml:"sweep_schedule"`
}

// Window returns the limiter window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.Duration) * time.Second
}

// CORSConfig contains the production origin allow-list.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exported
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the dedicated Prometheus exporter port
	// Metrics are also proxied on the main HTTP port at /metrics
	Port int `mapstructure:"port" yaml:"port"`
}
