// Package config loads skupaj settings from a TOML file with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	toml "github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes every environment override, e.g. SKUPAJ_DATABASE_PATH.
const EnvPrefix = "skupaj"

// Notification drivers.
const (
	NotifyDriverLog  = "log"
	NotifyDriverAMQP = "amqp"
)

type Config struct {
	Database  DatabaseConfig  `toml:"database" split_words:"true"`
	Server    ServerConfig    `toml:"server" split_words:"true"`
	Auth      AuthConfig      `toml:"auth" split_words:"true"`
	Media     MediaConfig     `toml:"media" split_words:"true"`
	Geocoding GeocodingConfig `toml:"geocoding" split_words:"true"`
	Notify    NotifyConfig    `toml:"notify" split_words:"true"`
	Ledger    LedgerConfig    `toml:"ledger" split_words:"true"`
	Logging   LoggingConfig   `toml:"logging" split_words:"true"`
	Hauls     HaulsConfig     `toml:"hauls" split_words:"true"`
}

type DatabaseConfig struct {
	Path string `toml:"path" split_words:"true"`
}

type ServerConfig struct {
	Addr      string `toml:"addr" split_words:"true"`
	PublicURL string `toml:"public_url" split_words:"true"`
}

type AuthConfig struct {
	// JWTSecret is generated and kept in the database when empty.
	JWTSecret     string `toml:"jwt_secret" split_words:"true"`
	TokenTTLHours int    `toml:"token_ttl_hours" split_words:"true"`
}

type MediaConfig struct {
	Dir       string `toml:"dir" split_words:"true"`
	URLPrefix string `toml:"url_prefix" split_words:"true"`
}

type GeocodingConfig struct {
	Enabled   bool   `toml:"enabled" split_words:"true"`
	BaseURL   string `toml:"base_url" split_words:"true"`
	TimeoutMS int    `toml:"timeout_ms" split_words:"true"`
}

type NotifyConfig struct {
	Driver    string `toml:"driver" split_words:"true"` // log | amqp
	// AMQPURL is read from SKUPAJ_NOTIFY_AMQPURL.
	AMQPURL   string `toml:"amqp_url" split_words:"true"`
	Exchange  string `toml:"exchange" split_words:"true"`
	QueueSize int    `toml:"queue_size" split_words:"true"`
}

type LedgerConfig struct {
	MaxRetries    int `toml:"max_retries" split_words:"true"`
	LockTimeoutMS int `toml:"lock_timeout_ms" split_words:"true"`
}

type LoggingConfig struct {
	Level  string `toml:"level" split_words:"true"`  // debug | info | warn | error
	Format string `toml:"format" split_words:"true"` // text | json | logfmt
	File   string `toml:"file" split_words:"true"`
}

type HaulsConfig struct {
	DefaultRadiusM     int `toml:"default_radius_m" split_words:"true"`
	LeaveWindowMinutes int `toml:"leave_window_minutes" split_words:"true"`
}

func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: "skupaj.db"},
		Server:   ServerConfig{Addr: ":8080", PublicURL: "http://localhost:8080"},
		Auth:     AuthConfig{TokenTTLHours: 24 * 7},
		Media:    MediaConfig{Dir: "media", URLPrefix: "/media/"},
		Geocoding: GeocodingConfig{
			Enabled:   true,
			BaseURL:   "https://api.postcodes.io",
			TimeoutMS: 3000,
		},
		Notify: NotifyConfig{
			Driver:    NotifyDriverLog,
			Exchange:  "skupaj.notifications",
			QueueSize: 256,
		},
		Ledger:  LedgerConfig{MaxRetries: 3, LockTimeoutMS: 5000},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Hauls:   HaulsConfig{DefaultRadiusM: 5000, LeaveWindowMinutes: 30},
	}
}

// Load reads path on top of defaults, applies SKUPAJ_* environment
// overrides and validates the result. A missing file is not an error.
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults

	if strings.TrimSpace(path) != "" {
		content, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("read config: %w", err)
		case len(content) > 0:
			if err := toml.Unmarshal(content, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode toml: %w", err)
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path is required")
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if c.Auth.TokenTTLHours <= 0 {
		return fmt.Errorf("auth.token_ttl_hours must be > 0, got %d", c.Auth.TokenTTLHours)
	}
	if strings.TrimSpace(c.Media.Dir) == "" {
		return errors.New("media.dir is required")
	}
	if !strings.HasPrefix(c.Media.URLPrefix, "/") || !strings.HasSuffix(c.Media.URLPrefix, "/") {
		return fmt.Errorf("media.url_prefix must start and end with '/': %q", c.Media.URLPrefix)
	}
	if c.Geocoding.Enabled {
		if strings.TrimSpace(c.Geocoding.BaseURL) == "" {
			return errors.New("geocoding.base_url is required when geocoding is enabled")
		}
		if c.Geocoding.TimeoutMS <= 0 {
			return fmt.Errorf("geocoding.timeout_ms must be > 0, got %d", c.Geocoding.TimeoutMS)
		}
	}

	switch c.Notify.Driver {
	case NotifyDriverLog:
	case NotifyDriverAMQP:
		if strings.TrimSpace(c.Notify.AMQPURL) == "" {
			return errors.New("notify.amqp_url is required for the amqp driver")
		}
		if strings.TrimSpace(c.Notify.Exchange) == "" {
			return errors.New("notify.exchange is required for the amqp driver")
		}
	default:
		return fmt.Errorf("invalid notify.driver: %q", c.Notify.Driver)
	}
	if c.Notify.QueueSize <= 0 {
		return fmt.Errorf("notify.queue_size must be > 0, got %d", c.Notify.QueueSize)
	}

	if c.Ledger.MaxRetries <= 0 {
		return fmt.Errorf("ledger.max_retries must be > 0, got %d", c.Ledger.MaxRetries)
	}
	if c.Ledger.LockTimeoutMS <= 0 {
		return fmt.Errorf("ledger.lock_timeout_ms must be > 0, got %d", c.Ledger.LockTimeoutMS)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("invalid logging.format: %q", c.Logging.Format)
	}

	if c.Hauls.DefaultRadiusM <= 0 {
		return fmt.Errorf("hauls.default_radius_m must be > 0, got %d", c.Hauls.DefaultRadiusM)
	}
	if c.Hauls.LeaveWindowMinutes <= 0 {
		return fmt.Errorf("hauls.leave_window_minutes must be > 0, got %d", c.Hauls.LeaveWindowMinutes)
	}
	return nil
}

// TokenTTL returns the configured token lifetime.
func (c Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// GeocodingTimeout returns the geocoder request timeout.
func (c Config) GeocodingTimeout() time.Duration {
	return time.Duration(c.Geocoding.TimeoutMS) * time.Millisecond
}

// LockTimeout returns the ledger's item lock wait bound.
func (c Config) LockTimeout() time.Duration {
	return time.Duration(c.Ledger.LockTimeoutMS) * time.Millisecond
}

// LeaveWindow returns how long after joining a participant may leave.
func (c Config) LeaveWindow() time.Duration {
	return time.Duration(c.Hauls.LeaveWindowMinutes) * time.Minute
}
