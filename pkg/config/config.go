// Package config carries the runtime settings for the signup engine and
// the dev server. Values come from the environment, with defaults matching
// the form's stock behavior.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrInvalid wraps configuration validation failures.
var ErrInvalid = errors.New("config: invalid")

// Config is the full runtime configuration.
type Config struct {
	// Addr is the dev server listen address.
	Addr string `env:"SIGNUP_ADDR" envDefault:":8080"`

	// BackendURL is the base URL of the remote validation backend.
	BackendURL string `env:"SIGNUP_BACKEND_URL" envDefault:"http://localhost:8080"`

	// QuietPeriod is the debounce interval before remote checks.
	QuietPeriod time.Duration `env:"SIGNUP_QUIET_PERIOD" envDefault:"500ms"`

	// NameMinLength is the minimum accepted length for name fields.
	NameMinLength int `env:"SIGNUP_NAME_MIN_LENGTH" envDefault:"1"`

	// VATRequired marks the VAT/CR input as required in company mode.
	VATRequired bool `env:"SIGNUP_VAT_REQUIRED" envDefault:"false"`

	// DynamicFields lists extra required field names injected into the
	// form. A non-empty list adds the third wizard step.
	DynamicFields []string `env:"SIGNUP_DYNAMIC_FIELDS" envSeparator:","`

	// PasswordMinLength is the strength policy's length floor.
	PasswordMinLength int `env:"SIGNUP_PASSWORD_MIN_LENGTH" envDefault:"8"`

	// PasswordRequireNumber toggles the digit requirement.
	PasswordRequireNumber bool `env:"SIGNUP_PASSWORD_REQUIRE_NUMBER" envDefault:"true"`

	// PasswordRequireUpper toggles the uppercase requirement.
	PasswordRequireUpper bool `env:"SIGNUP_PASSWORD_REQUIRE_UPPER" envDefault:"false"`

	// PasswordRequireSpecial toggles the special-character requirement.
	PasswordRequireSpecial bool `env:"SIGNUP_PASSWORD_REQUIRE_SPECIAL" envDefault:"false"`

	// Codec selects the live wire encoding, json or msgpack.
	Codec string `env:"SIGNUP_CODEC" envDefault:"json"`

	// LogJSON switches log output to JSON.
	LogJSON bool `env:"SIGNUP_LOG_JSON" envDefault:"false"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `env:"SIGNUP_LOG_LEVEL" envDefault:"info"`

	// SessionIdleTimeout closes live sessions with no client traffic.
	SessionIdleTimeout time.Duration `env:"SIGNUP_SESSION_IDLE_TIMEOUT" envDefault:"5m"`

	// HeartbeatInterval is the live session ping cadence.
	HeartbeatInterval time.Duration `env:"SIGNUP_HEARTBEAT_INTERVAL" envDefault:"30s"`
}

// Default returns the stock configuration without consulting the
// environment.
func Default() Config {
	return Config{
		Addr:                  ":8080",
		BackendURL:            "http://localhost:8080",
		QuietPeriod:           500 * time.Millisecond,
		NameMinLength:         1,
		PasswordMinLength:     8,
		PasswordRequireNumber: true,
		Codec:                 "json",
		LogLevel:              "info",
		SessionIdleTimeout:    5 * time.Minute,
		HeartbeatInterval:     30 * time.Second,
	}
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the tag defaults cannot express.
func (c Config) Validate() error {
	if c.QuietPeriod <= 0 {
		return fmt.Errorf("%w: quiet period must be positive", ErrInvalid)
	}
	if c.NameMinLength < 1 {
		return fmt.Errorf("%w: name minimum length must be at least 1", ErrInvalid)
	}
	if c.PasswordMinLength < 1 {
		return fmt.Errorf("%w: password minimum length must be at least 1", ErrInvalid)
	}
	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("%w: session idle timeout must be positive", ErrInvalid)
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.SessionIdleTimeout {
		return fmt.Errorf("%w: heartbeat interval must be positive and below the idle timeout", ErrInvalid)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.LogLevel)
	}
	switch c.Codec {
	case "json", "msgpack":
	default:
		return fmt.Errorf("%w: unknown codec %q", ErrInvalid, c.Codec)
	}
	for _, name := range c.DynamicFields {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: dynamic field names must be non-empty", ErrInvalid)
		}
	}
	return nil
}
