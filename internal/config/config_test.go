/**
 * Configuration Tests
 */

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		RedisURL:            "redis://localhost:6379",
		DatabaseURL:         "postgres://localhost/formlens",
		VisionAPIURL:        "http://localhost:8000/api/vision",
		APITimeoutSeconds:   30,
		APIMaxRetries:       3,
		ConfidenceThreshold: 60,
		MinImageDimension:   100,
		MaxImageDimension:   3000,
		ChunkSize:           2000,
		WorkerConcurrency:   4,
	}
}

func TestValidateAcceptsDefaults(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRanges(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing redis", func(c *Config) { c.RedisURL = "" }},
		{"missing database", func(c *Config) { c.DatabaseURL = "" }},
		{"missing vision URL", func(c *Config) { c.VisionAPIURL = "" }},
		{"threshold too low", func(c *Config) { c.ConfidenceThreshold = 29 }},
		{"threshold too high", func(c *Config) { c.ConfidenceThreshold = 91 }},
		{"min dimension too small", func(c *Config) { c.MinImageDimension = 99 }},
		{"max dimension too small", func(c *Config) { c.MaxImageDimension = 999 }},
		{"timeout zero", func(c *Config) { c.APITimeoutSeconds = 0 }},
		{"timeout too large", func(c *Config) { c.APITimeoutSeconds = 121 }},
		{"retries zero", func(c *Config) { c.APIMaxRetries = 0 }},
		{"chunk size too small", func(c *Config) { c.ChunkSize = 199 }},
		{"concurrency zero", func(c *Config) { c.WorkerConcurrency = 0 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidateBoundaryValues(t *testing.T) {
	cfg := validConfig()
	cfg.ConfidenceThreshold = 30
	require.NoError(t, cfg.Validate())
	cfg.ConfidenceThreshold = 90
	require.NoError(t, cfg.Validate())
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("FORMLENS_TEST_STRING", "value")
	t.Setenv("FORMLENS_TEST_INT", "42")
	t.Setenv("FORMLENS_TEST_BAD_INT", "nope")
	t.Setenv("FORMLENS_TEST_BOOL", "false")

	assert.Equal(t, "value", getEnvOrDefault("FORMLENS_TEST_STRING", "fallback"))
	assert.Equal(t, "fallback", getEnvOrDefault("FORMLENS_TEST_UNSET", "fallback"))
	assert.Equal(t, 42, getEnvAsIntOrDefault("FORMLENS_TEST_INT", 7))
	assert.Equal(t, 7, getEnvAsIntOrDefault("FORMLENS_TEST_BAD_INT", 7))
	assert.Equal(t, false, getEnvAsBoolOrDefault("FORMLENS_TEST_BOOL", true))
	assert.Equal(t, true, getEnvAsBoolOrDefault("FORMLENS_TEST_UNSET", true))
}
