// Package config loads the jus-connect configuration from an optional YAML
// file and JUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DBConfig selects and reaches the database.
type DBConfig struct {
	Driver          string `mapstructure:"driver" yaml:"driver"` // "sqlite" (default) or "postgres"
	DSN             string `mapstructure:"dsn" yaml:"dsn"`       // file path for sqlite, URL for postgres
	ConnectAttempts uint   `mapstructure:"connect_attempts" yaml:"connect_attempts"`
}

// Config holds the server configuration.
type Config struct {
	ListenAddr  string   `mapstructure:"listen_addr" yaml:"listen_addr"`
	DB          DBConfig `mapstructure:"db" yaml:"db"`
	AllowSignup bool     `mapstructure:"allow_signup" yaml:"allow_signup"`
	BaseURL     string   `mapstructure:"base_url" yaml:"base_url"`
	OfficeName  string   `mapstructure:"office_name" yaml:"office_name"`
	LogFormat   string   `mapstructure:"log_format" yaml:"log_format"` // "json" (default) or "text"
	LogLevel    string   `mapstructure:"log_level" yaml:"log_level"`   // "debug", "info" (default), "warn", "error"

	RateLimitAuth  int `mapstructure:"rate_limit_auth" yaml:"rate_limit_auth"`   // /v1/auth/* per IP per minute
	RateLimitOther int `mapstructure:"rate_limit_other" yaml:"rate_limit_other"` // everything else per caller per minute

	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins" yaml:"cors_allowed_origins"` // empty = disabled

	WebhookURL    string `mapstructure:"webhook_url" yaml:"webhook_url"` // empty = disabled
	WebhookSecret string `mapstructure:"webhook_secret" yaml:"webhook_secret"`

	// Durations accept Go syntax ("30s") or whole days ("90d").
	ShutdownTimeout    time.Duration `mapstructure:"-" yaml:"-"`
	SessionTTL         time.Duration `mapstructure:"-" yaml:"-"`
	AuthEventRetention time.Duration `mapstructure:"-" yaml:"-"`
}

var defaults = map[string]any{
	"listen_addr":          ":8080",
	"db.driver":            "sqlite",
	"db.dsn":               "./data/jus.db",
	"db.connect_attempts":  5,
	"allow_signup":         false,
	"base_url":             "http://localhost:8080",
	"office_name":          "",
	"log_format":           "json",
	"log_level":            "info",
	"rate_limit_auth":      10,
	"rate_limit_other":     300,
	"cors_allowed_origins": []string{},
	"webhook_url":          "",
	"webhook_secret":       "",
	"shutdown_timeout":     "30s",
	"session_ttl":          "30d",
	"auth_event_retention": "90d",
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string][]string{
	"listen_addr":          {"JUS_LISTEN_ADDR"},
	"db.driver":            {"JUS_DB_DRIVER"},
	"db.dsn":               {"JUS_DB_DSN", "DATABASE_URL"},
	"db.connect_attempts":  {"JUS_DB_CONNECT_ATTEMPTS"},
	"allow_signup":         {"JUS_ALLOW_SIGNUP"},
	"base_url":             {"JUS_BASE_URL"},
	"office_name":          {"JUS_OFFICE_NAME"},
	"log_format":           {"JUS_LOG_FORMAT"},
	"log_level":            {"JUS_LOG_LEVEL"},
	"rate_limit_auth":      {"JUS_RATE_LIMIT_AUTH"},
	"rate_limit_other":     {"JUS_RATE_LIMIT_OTHER"},
	"cors_allowed_origins": {"JUS_CORS_ALLOWED_ORIGINS"},
	"webhook_url":          {"JUS_WEBHOOK_URL"},
	"webhook_secret":       {"JUS_WEBHOOK_SECRET"},
	"shutdown_timeout":     {"JUS_SHUTDOWN_TIMEOUT"},
	"session_ttl":          {"JUS_SESSION_TTL"},
	"auth_event_retention": {"JUS_AUTH_EVENT_RETENTION"},
}

// Load reads filePath when it is non-empty and exists, then applies
// environment overrides and defaults.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	if filePath != "" {
		if _, err := os.Stat(filePath); err == nil {
			v.SetConfigFile(filePath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", filePath, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", filePath, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	var err error
	if cfg.ShutdownTimeout, err = durationKey(v, "shutdown_timeout"); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = durationKey(v, "session_ttl"); err != nil {
		return nil, err
	}
	if cfg.AuthEventRetention, err = durationKey(v, "auth_event_retention"); err != nil {
		return nil, err
	}
	cfg.CORSAllowedOrigins = splitList(cfg.CORSAllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		if err := v.BindEnv(slices.Insert(envs, 0, key)...); err != nil {
			return err
		}
	}
	return nil
}

func durationKey(v *viper.Viper, key string) (time.Duration, error) {
	raw := v.GetString(key)
	d := ParseDaysDuration(raw)
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}

// splitList trims entries and splits any that still hold a comma list.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, s := range strings.Split(item, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch strings.ToLower(c.DB.Driver) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "pq":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db dsn is required")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q", c.LogFormat)
	}
	if c.RateLimitAuth <= 0 || c.RateLimitOther <= 0 {
		return fmt.Errorf("rate limits must be positive")
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger described by the config.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// ParseDaysDuration parses a string like "90d", "30d" into a time.Duration.
// Falls back to time.ParseDuration for standard Go durations.
func ParseDaysDuration(s string) time.Duration {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		numStr := strings.TrimSuffix(s, "d")
		if n, err := strconv.Atoi(numStr); err == nil && n > 0 {
			return time.Duration(n) * 24 * time.Hour
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return 0
}
