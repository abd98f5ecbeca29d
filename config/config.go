package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	Gateway    GatewayConfig
	Normalizer NormalizerConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxUploadMB    int64    `mapstructure:"max_upload_mb"`
}

// GatewayConfig holds vision model API configuration
type GatewayConfig struct {
	Provider          string        `mapstructure:"provider"` // "openai" or "ollama"
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Model             string        `mapstructure:"model"`
	Mode              string        `mapstructure:"mode"` // "responses" or "chat"
	StrictJSON        bool          `mapstructure:"strict_json"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// NormalizerConfig holds model output handling configuration
type NormalizerConfig struct {
	StrictRecords bool `mapstructure:"strict_records"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP int `mapstructure:"per_ip"` // requests per minute
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load loads configuration from .env, environment variables and config files
func Load() (*Config, error) {
	return LoadWithFlags(nil)
}

// LoadWithFlags is Load with command line flags layered on top.
// Flags are bound by name, so a flag must be named after its key (e.g. "gateway.model").
func LoadWithFlags(flags *pflag.FlagSet) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/shelflens/")

	// Environment variable settings
	v.SetEnvPrefix("SHELFLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The API key keeps its conventional name as a fallback
	if err := v.BindEnv("gateway.api_key", "SHELFLENS_GATEWAY_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("unable to bind API key: %w", err)
	}

	// Set default values
	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("unable to bind flags: %w", err)
		}
	}

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	applyProviderDefaults(&config)

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile exports variables from ./.env without overriding ones already set.
// A missing file is not an error.
func loadEnvFile() error {
	err := gotenv.Load(".env")
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:*"})
	v.SetDefault("server.max_upload_mb", 32)

	// Gateway defaults
	v.SetDefault("gateway.provider", "openai")
	v.SetDefault("gateway.base_url", defaultOpenAIBaseURL)
	v.SetDefault("gateway.model", defaultOpenAIModel)
	v.SetDefault("gateway.mode", "responses")
	v.SetDefault("gateway.strict_json", false)
	v.SetDefault("gateway.max_tokens", 500)
	v.SetDefault("gateway.timeout", "60s")
	v.SetDefault("gateway.requests_per_minute", 60)

	// Normalizer defaults
	v.SetDefault("normalizer.strict_records", false)

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 30)

	// Log defaults
	v.SetDefault("log.level", "info")
}

// Defaults that only make sense for the openai provider
const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "llava"
)

// applyProviderDefaults swaps the openai defaults for ollama ones when they were left untouched
func applyProviderDefaults(config *Config) {
	if config.Gateway.Provider != "ollama" {
		return
	}
	if config.Gateway.BaseURL == defaultOpenAIBaseURL {
		config.Gateway.BaseURL = defaultOllamaBaseURL
	}
	if config.Gateway.Model == defaultOpenAIModel {
		config.Gateway.Model = defaultOllamaModel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	switch config.Gateway.Provider {
	case "openai":
		if config.Gateway.APIKey == "" {
			return fmt.Errorf("gateway API key is required (set OPENAI_API_KEY or SHELFLENS_GATEWAY_API_KEY)")
		}
		if config.Gateway.Mode != "responses" && config.Gateway.Mode != "chat" {
			return fmt.Errorf("gateway mode must be 'responses' or 'chat', got: %s", config.Gateway.Mode)
		}
	case "ollama":
	default:
		return fmt.Errorf("gateway provider must be 'openai' or 'ollama', got: %s", config.Gateway.Provider)
	}

	if config.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway base URL is required")
	}

	if config.Gateway.Model == "" {
		return fmt.Errorf("gateway model is required")
	}

	if config.RateLimit.PerIP < 0 {
		return fmt.Errorf("ratelimit.per_ip must not be negative, got: %d", config.RateLimit.PerIP)
	}

	return nil
}
