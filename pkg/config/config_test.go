package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 500*time.Millisecond, cfg.QuietPeriod)
	assert.Equal(t, 1, cfg.NameMinLength)
	assert.Equal(t, 8, cfg.PasswordMinLength)
	assert.True(t, cfg.PasswordRequireNumber)
	assert.False(t, cfg.VATRequired)
	assert.Equal(t, "json", cfg.Codec)
	assert.Empty(t, cfg.DynamicFields)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SIGNUP_QUIET_PERIOD", "250ms")
	t.Setenv("SIGNUP_NAME_MIN_LENGTH", "2")
	t.Setenv("SIGNUP_VAT_REQUIRED", "true")
	t.Setenv("SIGNUP_LOG_LEVEL", "debug")
	t.Setenv("SIGNUP_CODEC", "msgpack")
	t.Setenv("SIGNUP_DYNAMIC_FIELDS", "referral,promo_code")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.QuietPeriod)
	assert.Equal(t, 2, cfg.NameMinLength)
	assert.True(t, cfg.VATRequired)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "msgpack", cfg.Codec)
	assert.Equal(t, []string{"referral", "promo_code"}, cfg.DynamicFields)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero quiet period", func(c *Config) { c.QuietPeriod = 0 }},
		{"zero name minimum", func(c *Config) { c.NameMinLength = 0 }},
		{"zero password minimum", func(c *Config) { c.PasswordMinLength = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"bad codec", func(c *Config) { c.Codec = "protobuf" }},
		{"blank dynamic field", func(c *Config) { c.DynamicFields = []string{"referral", " "} }},
		{"heartbeat above idle timeout", func(c *Config) {
			c.HeartbeatInterval = 10 * time.Minute
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	assert.NoError(t, Default().Validate())
}
