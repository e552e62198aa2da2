package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	SlackBotToken  string `yaml:"slack_bot_token"`
	SlackAppToken  string `yaml:"slack_app_token"`
	AlertChannelID string `yaml:"alert_channel_id"`

	LLMProvider     string `yaml:"llm_provider"` // "rules", "anthropic", or "openai"
	LLMModel        string `yaml:"llm_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`

	ClassifyTimeoutSeconds int     `yaml:"classify_timeout_seconds"`
	LowConfidence          float64 `yaml:"low_confidence_threshold"`
	HighConfidence         float64 `yaml:"high_confidence_threshold"`

	DriftWindowDays    int     `yaml:"drift_window_days"`
	DriftMaxRequests   int     `yaml:"drift_max_requests"`
	DriftMediumRate    float64 `yaml:"drift_medium_rate"`
	DriftHighRate      float64 `yaml:"drift_high_rate"`
	DriftMinClassified int     `yaml:"drift_min_classified"`
	RecurringMinCount  int     `yaml:"recurring_min_count"`
	DriftScanSchedule  string  `yaml:"drift_scan_schedule"` // 5-field cron, empty disables

	IndicatorsPath string `yaml:"indicators_path"`
	DBPath         string `yaml:"db_path"`
	Timezone       string `yaml:"timezone"`

	Location *time.Location `yaml:"-"`
}

func (c Config) ClassifyTimeout() time.Duration {
	return time.Duration(c.ClassifyTimeoutSeconds) * time.Second
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackAppToken, "SLACK_APP_TOKEN")
	envOverride(&cfg.AlertChannelID, "ALERT_CHANNEL_ID")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverrideInt(&cfg.ClassifyTimeoutSeconds, "CLASSIFY_TIMEOUT_SECONDS")
	envOverrideFloat(&cfg.LowConfidence, "LOW_CONFIDENCE_THRESHOLD")
	envOverrideFloat(&cfg.HighConfidence, "HIGH_CONFIDENCE_THRESHOLD")
	envOverrideInt(&cfg.DriftWindowDays, "DRIFT_WINDOW_DAYS")
	envOverrideInt(&cfg.DriftMaxRequests, "DRIFT_MAX_REQUESTS")
	envOverrideFloat(&cfg.DriftMediumRate, "DRIFT_MEDIUM_RATE")
	envOverrideFloat(&cfg.DriftHighRate, "DRIFT_HIGH_RATE")
	envOverrideInt(&cfg.DriftMinClassified, "DRIFT_MIN_CLASSIFIED")
	envOverrideInt(&cfg.RecurringMinCount, "RECURRING_MIN_COUNT")
	envOverride(&cfg.DriftScanSchedule, "DRIFT_SCAN_SCHEDULE")
	envOverride(&cfg.IndicatorsPath, "INDICATORS_PATH")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.Timezone, "TIMEZONE")

	applyDefaults(&cfg)
	validate(&cfg)

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("Invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "rules"
	}
	if cfg.ClassifyTimeoutSeconds == 0 {
		cfg.ClassifyTimeoutSeconds = 30
	}
	if cfg.LowConfidence == 0 {
		cfg.LowConfidence = 0.40
	}
	if cfg.HighConfidence == 0 {
		cfg.HighConfidence = 0.75
	}
	if cfg.DriftWindowDays == 0 {
		cfg.DriftWindowDays = 90
	}
	if cfg.DriftMaxRequests == 0 {
		cfg.DriftMaxRequests = 50
	}
	if cfg.DriftMediumRate == 0 {
		cfg.DriftMediumRate = 0.2
	}
	if cfg.DriftHighRate == 0 {
		cfg.DriftHighRate = 0.4
	}
	if cfg.DriftMinClassified == 0 {
		cfg.DriftMinClassified = 5
	}
	if cfg.RecurringMinCount == 0 {
		cfg.RecurringMinCount = 3
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./scopebot.db"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
}

func validate(cfg *Config) {
	required := map[string]string{
		"slack_bot_token": cfg.SlackBotToken,
		"slack_app_token": cfg.SlackAppToken,
	}
	for name, val := range required {
		if val == "" {
			log.Fatalf("Required config '%s' is not set (via config.yaml or env var)", name)
		}
	}

	switch cfg.LLMProvider {
	case "rules":
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			log.Fatalf("openai_api_key is required when llm_provider=openai")
		}
	default:
		log.Fatalf("llm_provider must be 'rules', 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}

	if cfg.LowConfidence <= 0 || cfg.LowConfidence >= 1 {
		log.Fatalf("invalid low_confidence_threshold '%.2f': must be in (0,1)", cfg.LowConfidence)
	}
	if cfg.HighConfidence <= cfg.LowConfidence || cfg.HighConfidence >= 1 {
		log.Fatalf("invalid high_confidence_threshold '%.2f': must be in (low,1)", cfg.HighConfidence)
	}
	if cfg.DriftHighRate < cfg.DriftMediumRate {
		log.Fatalf("drift_high_rate %.2f must be >= drift_medium_rate %.2f", cfg.DriftHighRate, cfg.DriftMediumRate)
	}
	if cfg.IndicatorsPath != "" {
		if _, err := LoadIndicatorVocabulary(cfg.IndicatorsPath); err != nil {
			log.Fatalf("invalid indicators_path '%s': %v", cfg.IndicatorsPath, err)
		}
	}
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideFloat(field *float64, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

// ClassifierConfig is the engine-facing slice of Config so the classifier,
// drift detector and tests do not depend on bot-level settings.
type ClassifierConfig struct {
	LowConfidence  float64
	HighConfidence float64
	Timeout        time.Duration
}

func (c Config) Classifier() ClassifierConfig {
	return ClassifierConfig{
		LowConfidence:  c.LowConfidence,
		HighConfidence: c.HighConfidence,
		Timeout:        c.ClassifyTimeout(),
	}
}

// DriftConfig carries the drift detector thresholds.
type DriftConfig struct {
	WindowDays        int
	MaxRequests       int
	MediumRate        float64
	HighRate          float64
	MinClassified     int
	RecurringMinCount int
}

func (c Config) Drift() DriftConfig {
	return DriftConfig{
		WindowDays:        c.DriftWindowDays,
		MaxRequests:       c.DriftMaxRequests,
		MediumRate:        c.DriftMediumRate,
		HighRate:          c.DriftHighRate,
		MinClassified:     c.DriftMinClassified,
		RecurringMinCount: c.RecurringMinCount,
	}
}
