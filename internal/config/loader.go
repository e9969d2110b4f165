// Package config provides configuration loading for the API server.
// It layers three sources on a viper instance:
// Layer 1: built-in defaults (SetDefaults)
// Layer 2: an optional YAML config file
// Layer 3: environment variables (PORT, RATE_LIMIT_POINTS, ...)
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// AppName is used for config directory discovery and as the default service name.
const AppName = "apistarter"

// DefaultAllowedOrigins is the production CORS allow-list used when
// ALLOWED_ORIGINS is unset.
const DefaultAllowedOrigins = "http://localhost:3000,http://localhost:5173"

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"mode":                         "APP_ENV",
	"app.name":                     "APP_NAME",
	"server.host":                  "HOST",
	"server.port":                  "PORT",
	"server.shutdown_timeout":      "SHUTDOWN_TIMEOUT",
	"server.trust_proxy":           "TRUST_PROXY",
	"server.body_limit":            "BODY_LIMIT",
	"server.max_request_id_length": "MAX_REQUEST_ID_LENGTH",
	"ratelimit.points":             "RATE_LIMIT_POINTS",
	"ratelimit.duration":           "RATE_LIMIT_DURATION",
	"cors.allowed_origins":         "ALLOWED_ORIGINS",
	"logging.level":                "LOG_LEVEL",
	"metrics.enabled":              "METRICS_ENABLED",
	"metrics.port":                 "METRICS_PORT",
}

// SetDefaults sets default configuration values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", string(ModeDevelopment))
	v.SetDefault("app.name", AppName)

	// Server defaults
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.trust_proxy", true)
	v.SetDefault("server.body_limit", 10<<20)
	v.SetDefault("server.max_request_id_length", 8<<10)

	// Admission limiter defaults
	v.SetDefault("ratelimit.points", 100)
	v.SetDefault("ratelimit.duration", 60)
	v.SetDefault("ratelimit.sweep_schedule", "@every 1m")

	v.SetDefault("cors.allowed_origins", DefaultAllowedOrigins)

	// Logging level is resolved per mode in Load when left empty
	v.SetDefault("logging.level", "")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
}

// BindEnv binds every known key to its environment variable.
func BindEnv(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}
	return nil
}

// New returns a viper instance with defaults and environment bindings applied.
func New() (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	if err := BindEnv(v); err != nil {
		return nil, err
	}
	return v, nil
}

// ConfigSearchPaths returns the directories searched for config.yaml when no
// explicit file is given.
func ConfigSearchPaths() []string {
	paths := []string{}
	if dir := gfconfig.GetAppConfigDir(AppName); strings.TrimSpace(dir) != "" {
		paths = append(paths, dir)
	}
	return append(paths, filepath.Join(".", "config"))
}

// Load decodes the settings held by v into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("config: nil viper instance")
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.Mode = Mode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	if cfg.Mode == "" {
		cfg.Mode = ModeDevelopment
	}

	origins := make([]string, 0, len(cfg.CORS.AllowedOrigins))
	for _, origin := range cfg.CORS.AllowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	cfg.CORS.AllowedOrigins = origins

	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
		if cfg.Mode.IsDevelopment() {
			cfg.Logging.Level = "debug"
		}
	}

	if strings.TrimSpace(cfg.App.Name) == "" {
		cfg.App.Name = AppName
	}
}

// Validate checks the invariants the server relies on.
func Validate(cfg *Config) error {
	var errs []error
	if !cfg.Mode.Valid() {
		errs = append(errs, fmt.Errorf("mode %q must be one of development, production, test", cfg.Mode))
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if cfg.Server.BodyLimit <= 0 {
		errs = append(errs, errors.New("server.body_limit must be positive"))
	}
	if cfg.Server.MaxRequestIDLength < 0 {
		errs = append(errs, errors.New("server.max_request_id_length must not be negative"))
	}
	if cfg.RateLimit.Points < 1 {
		errs = append(errs, fmt.Errorf("ratelimit.points %d must be at least 1", cfg.RateLimit.Points))
	}
	if cfg.RateLimit.Duration < 1 {
		errs = append(errs, fmt.Errorf("ratelimit.duration %d must be at least 1 second", cfg.RateLimit.Duration))
	}
	if cfg.Metrics.Enabled && (cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535) {
		errs = append(errs, fmt.Errorf("metrics.port %d out of range", cfg.Metrics.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Default returns the configuration produced by defaults alone, ignoring the
// environment. Useful for tests and for documenting the baseline.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	if err != nil {
		panic(fmt.Sprintf("config: defaults do not validate: %v", err))
	}
	return cfg
}
