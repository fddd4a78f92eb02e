package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Backend   BackendConfig   `mapstructure:"backend"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port" validate:"gt=0,lte=65535"`
	ReadTimeout  int `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout int `mapstructure:"write_timeout" validate:"gt=0"`
}

// BackendConfig describes the tracking backend the store fetches from.
type BackendConfig struct {
	BaseURL  string `mapstructure:"base_url" validate:"required,url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Token    string `mapstructure:"token"`
	// Timeout is per request, in seconds.
	Timeout               int     `mapstructure:"timeout" validate:"gt=0"`
	DuplicateSessionFetch bool    `mapstructure:"duplicate_session_fetch"`
	RouteTolerance        float64 `mapstructure:"route_tolerance" validate:"gte=0"`
	// WindowHours is how far the default report window reaches either side of now.
	WindowHours int `mapstructure:"window_hours" validate:"gt=0"`
}

// RequestTimeout returns Timeout as a duration.
func (b BackendConfig) RequestTimeout() time.Duration {
	return time.Duration(b.Timeout) * time.Second
}

type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

type ValkeyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Prefix  string `mapstructure:"prefix"`
	// RouteTTL caches route reports for this many seconds. 0 disables.
	RouteTTL int `mapstructure:"route_ttl" validate:"gte=0"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("backend.base_url", "http://localhost:8082/api/")
	v.SetDefault("backend.user", "")
	v.SetDefault("backend.password", "")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.timeout", 15)
	v.SetDefault("backend.duplicate_session_fetch", true)
	v.SetDefault("backend.route_tolerance", 1.0)
	v.SetDefault("backend.window_hours", 24)
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.enabled", false)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.prefix", "fleetview:")
	v.SetDefault("valkey.route_ttl", 30)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: FLEETVIEW_BACKEND_BASE_URL → backend.base_url
	v.SetEnvPrefix("FLEETVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required when nats is enabled")
	}
	if c.Valkey.Enabled && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required when valkey is enabled")
	}
	if c.Backend.Password != "" && c.Backend.User == "" {
		errs = append(errs, "backend.password is set without backend.user")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
