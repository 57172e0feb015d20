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

	assert.Equal(t, 70.0, cfg.RouterConfidenceThreshold)
	assert.Equal(t, 30*time.Second, cfg.ExtractionTimeout)
	assert.Equal(t, 15*time.Second, cfg.AIValidationTimeout)
	assert.Equal(t, "AE", cfg.GulfDefaultCountry)
	assert.True(t, cfg.AISoftFail)
	assert.Equal(t, 4, cfg.BatchWorkers)
	assert.Equal(t, "international", cfg.PhoneStyle)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ROUTER_CONFIDENCE_THRESHOLD", "80")
	t.Setenv("EXTRACTION_TIMEOUT", "45s")
	t.Setenv("GULF_DEFAULT_COUNTRY", "sa")
	t.Setenv("AI_VALIDATION_SOFT_FAIL", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 80.0, cfg.RouterConfidenceThreshold)
	assert.Equal(t, 45*time.Second, cfg.ExtractionTimeout)
	assert.Equal(t, "SA", cfg.GulfDefaultCountry)
	assert.False(t, cfg.AISoftFail)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "threshold above 100", key: "ROUTER_CONFIDENCE_THRESHOLD", val: "150"},
		{name: "zero workers", key: "BATCH_WORKERS", val: "0"},
		{name: "bad country", key: "GULF_DEFAULT_COUNTRY", val: "UAE"},
		{name: "match threshold zero", key: "MATCH_ACCEPTANCE_THRESHOLD", val: "0"},
		{name: "unknown phone style", key: "PHONE_STYLE", val: "dotted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestRequireGoogle(t *testing.T) {
	cfg := &Config{}
	assert.Error(t, cfg.RequireGoogle())

	cfg.GoogleCloudProject = "proj"
	cfg.DocumentAIProcessorID = "proc"
	assert.NoError(t, cfg.RequireGoogle())
}
