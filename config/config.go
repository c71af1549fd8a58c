package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the analysis backend
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Listen   string `mapstructure:"listen"`
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ProvidersConfig contains the hosted model provider configurations
type ProvidersConfig struct {
	Anthropic ProviderConfig `mapstructure:"anthropic"`
	Google    ProviderConfig `mapstructure:"google"`
}

// ProviderConfig represents a single hosted model provider
type ProviderConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// AnalysisConfig contains orchestration limits
type AnalysisConfig struct {
	MaxContentTokens   int `mapstructure:"max_content_tokens"`
	ConnectionWindow   int `mapstructure:"connection_window"`
	MaxConnections     int `mapstructure:"max_connections"`
	HistoryLimit       int `mapstructure:"history_limit"`
	ReadingWordsPerMin int `mapstructure:"reading_words_per_min"`
}

// StorageConfig selects the backing for cache and conversations.
// The default "memory" backend is process-local and volatile, matching the
// original service; "redis" swaps in persistent storage without changing the
// external contract.
type StorageConfig struct {
	Backend string      `mapstructure:"backend"` // memory or redis
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	PeriodicLogs bool `mapstructure:"periodic_logs"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(path string) (*Config, error) {
	viper.Reset()
	viper.SetConfigName("smartsummary")
	viper.SetConfigType("json")
	if path != "" {
		viper.AddConfigPath(path)
	}
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("SMARTSUMMARY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Config file is optional - defaults plus env cover the common setup
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("general.listen", ":3000")
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")

	viper.SetDefault("providers.anthropic.model", "claude-3-5-sonnet-20241022")
	viper.SetDefault("providers.anthropic.max_tokens", 1024)
	viper.SetDefault("providers.anthropic.timeout", "60s")
	viper.SetDefault("providers.google.model", "gemini-2.5-flash")
	viper.SetDefault("providers.google.max_tokens", 1024)
	viper.SetDefault("providers.google.timeout", "60s")

	// 8000 tokens at ~4 chars/token mirrors the original backend's cut
	viper.SetDefault("analysis.max_content_tokens", 8000)
	viper.SetDefault("analysis.connection_window", 20)
	viper.SetDefault("analysis.max_connections", 5)
	viper.SetDefault("analysis.history_limit", 50)
	viper.SetDefault("analysis.reading_words_per_min", 200)

	viper.SetDefault("storage.backend", "memory")
	viper.SetDefault("storage.redis.host", "localhost")
	viper.SetDefault("storage.redis.port", 6379)
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.timeout", "5s")

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.periodic_logs", false)
}

// overrideFromEnv overrides configuration with environment variables
func overrideFromEnv() {
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		viper.Set("providers.anthropic.api_key", apiKey)
	}
	if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" {
		viper.Set("providers.google.api_key", apiKey)
	}
	if port := os.Getenv("PORT"); port != "" {
		viper.Set("general.listen", ":"+strings.TrimPrefix(port, ":"))
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		viper.Set("storage.redis.host", host)
		viper.Set("storage.backend", "redis")
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.redis.port", p)
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		viper.Set("storage.redis.password", password)
	}
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.General.Listen == "" {
		return fmt.Errorf("general.listen must not be empty")
	}
	switch config.Storage.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported storage backend: %s", config.Storage.Backend)
	}
	if config.Analysis.MaxContentTokens <= 0 {
		return fmt.Errorf("analysis.max_content_tokens must be positive")
	}
	if config.Analysis.ConnectionWindow <= 0 {
		return fmt.Errorf("analysis.connection_window must be positive")
	}
	// Missing API keys are allowed: the affected capabilities degrade to
	// fixed fallback values instead of refusing to start.
	return nil
}
