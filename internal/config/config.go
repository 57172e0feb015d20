package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"formintel/internal/logger"
)

// Config is the process-wide configuration. Values come from the environment
// (optionally seeded by a .env file loaded in main).
type Config struct {
	// OpenAI Configuration
	OpenAIAPIKey string
	OpenAIModel  string

	// Google Cloud Configuration
	GoogleCloudProject         string
	GoogleCloudLocation        string
	DocumentAIProcessorID      string
	DocumentAIProcessorVersion string

	// Google Sheets Configuration
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Pipeline thresholds
	RouterConfidenceThreshold float64 // fallback when the first backend scores below this (0-100)
	MatchAcceptanceThreshold  float64 // minimum label similarity (0-1)
	AIGateConfidence          float64 // extraction confidence below which Tier 3 runs (0-100)
	AIValidationOptIn         bool
	AISoftFail                bool

	// Timeouts
	ExtractionTimeout   time.Duration
	AIValidationTimeout time.Duration

	// Locale
	GulfDefaultCountry string
	PhoneStyle         string

	// Batch / history
	BatchWorkers int
	HistoryDB    string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	config := &Config{
		OpenAIAPIKey:               v.GetString("OPENAI_API_KEY"),
		OpenAIModel:                v.GetString("OPENAI_MODEL"),
		GoogleCloudProject:         v.GetString("GOOGLE_CLOUD_PROJECT"),
		GoogleCloudLocation:        v.GetString("GOOGLE_CLOUD_LOCATION"),
		DocumentAIProcessorID:      v.GetString("DOCUMENT_AI_PROCESSOR_ID"),
		DocumentAIProcessorVersion: v.GetString("DOCUMENT_AI_PROCESSOR_VERSION"),
		GoogleSheetURL:             v.GetString("GOOGLE_SHEET_URL"),
		GoogleSheetWorksheet:       v.GetString("GOOGLE_SHEET_WORKSHEET"),
		RouterConfidenceThreshold:  v.GetFloat64("ROUTER_CONFIDENCE_THRESHOLD"),
		MatchAcceptanceThreshold:   v.GetFloat64("MATCH_ACCEPTANCE_THRESHOLD"),
		AIGateConfidence:           v.GetFloat64("AI_GATE_CONFIDENCE"),
		AIValidationOptIn:          v.GetBool("AI_VALIDATION_OPT_IN"),
		AISoftFail:                 v.GetBool("AI_VALIDATION_SOFT_FAIL"),
		ExtractionTimeout:          v.GetDuration("EXTRACTION_TIMEOUT"),
		AIValidationTimeout:        v.GetDuration("AI_VALIDATION_TIMEOUT"),
		GulfDefaultCountry:         strings.ToUpper(v.GetString("GULF_DEFAULT_COUNTRY")),
		PhoneStyle:                 strings.ToLower(v.GetString("PHONE_STYLE")),
		BatchWorkers:               v.GetInt("BATCH_WORKERS"),
		HistoryDB:                  v.GetString("HISTORY_DB"),
		LogLevel:                   v.GetString("LOG_LEVEL"),
		LogFormat:                  v.GetString("LOG_FORMAT"),
		LogTimeFormat:              v.GetString("LOG_TIME_FORMAT"),
		LogOutput:                  v.GetString("LOG_OUTPUT"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("GOOGLE_CLOUD_LOCATION", "us")
	v.SetDefault("GOOGLE_SHEET_WORKSHEET", "Form Runs")
	v.SetDefault("ROUTER_CONFIDENCE_THRESHOLD", 70.0)
	v.SetDefault("MATCH_ACCEPTANCE_THRESHOLD", 0.72)
	v.SetDefault("AI_GATE_CONFIDENCE", 70.0)
	v.SetDefault("AI_VALIDATION_OPT_IN", false)
	v.SetDefault("AI_VALIDATION_SOFT_FAIL", true)
	v.SetDefault("EXTRACTION_TIMEOUT", 30*time.Second)
	v.SetDefault("AI_VALIDATION_TIMEOUT", 15*time.Second)
	v.SetDefault("GULF_DEFAULT_COUNTRY", "AE")
	v.SetDefault("PHONE_STYLE", "international")
	v.SetDefault("BATCH_WORKERS", 4)
	v.SetDefault("HISTORY_DB", "formintel-history.db")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("LOG_TIME_FORMAT", time.RFC3339)
	v.SetDefault("LOG_OUTPUT", "stderr")
}

func (c *Config) validate() error {
	if c.RouterConfidenceThreshold < 0 || c.RouterConfidenceThreshold > 100 {
		return fmt.Errorf("ROUTER_CONFIDENCE_THRESHOLD must be between 0 and 100")
	}
	if c.MatchAcceptanceThreshold <= 0 || c.MatchAcceptanceThreshold > 1 {
		return fmt.Errorf("MATCH_ACCEPTANCE_THRESHOLD must be in (0, 1]")
	}
	if c.ExtractionTimeout <= 0 {
		return fmt.Errorf("EXTRACTION_TIMEOUT must be positive")
	}
	if c.AIValidationTimeout <= 0 {
		return fmt.Errorf("AI_VALIDATION_TIMEOUT must be positive")
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("BATCH_WORKERS must be at least 1")
	}
	if len(c.GulfDefaultCountry) != 2 {
		return fmt.Errorf("GULF_DEFAULT_COUNTRY must be an ISO 3166 alpha-2 code")
	}
	switch c.PhoneStyle {
	case "local", "international", "spaced":
	default:
		return fmt.Errorf("PHONE_STYLE must be one of local, international, spaced")
	}
	return nil
}

// RequireGoogle checks the settings needed by the Google-backed extraction services.
func (c *Config) RequireGoogle() error {
	if c.GoogleCloudProject == "" {
		return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required")
	}
	if c.DocumentAIProcessorID == "" {
		return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required")
	}
	return nil
}

// RequireOpenAI checks the settings needed by the generative backend and semantic review.
func (c *Config) RequireOpenAI() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}
