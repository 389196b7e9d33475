package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/pqminh/aibridge/internal/provider"
	"github.com/pqminh/aibridge/internal/provider/anthropic"
	"github.com/pqminh/aibridge/internal/provider/azure"
	"github.com/pqminh/aibridge/internal/provider/openai"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Database
	PostgresDSN string

	// Cache
	RedisAddr string

	// Provider credentials
	OpenAIAPIKey    string
	AnthropicAPIKey string
	AzureAPIKey     string
	AzureEndpoint   string
	CustomAPIKey    string
	CustomEndpoint  string
	CustomModels    []string

	// Shared generation defaults
	DefaultModel       string
	DefaultTemperature float64
	DefaultMaxTokens   int
	RequestTimeout     time.Duration
	MaxRetries         int
	RetryBaseDelay     time.Duration

	// Observability
	LogLevel             string
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Rate Limiting
	DefaultRateLimitTPM int64 // tokens per minute, default: 100000
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:      os.Getenv("ANTHROPIC_API_KEY"),
		AzureAPIKey:          os.Getenv("AZURE_OPENAI_API_KEY"),
		AzureEndpoint:        os.Getenv("AZURE_OPENAI_ENDPOINT"),
		CustomAPIKey:         os.Getenv("CUSTOM_LLM_API_KEY"),
		CustomEndpoint:       os.Getenv("CUSTOM_LLM_ENDPOINT"),
		CustomModels:         splitList(os.Getenv("CUSTOM_LLM_MODELS")),
		DefaultModel:         getEnv("DEFAULT_MODEL", "gpt-4o-mini"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}

	var err error
	if cfg.DefaultTemperature, err = getEnvFloat("DEFAULT_TEMPERATURE", 0.7); err != nil {
		return nil, err
	}
	if cfg.DefaultMaxTokens, err = getEnvInt("DEFAULT_MAX_TOKENS", 150); err != nil {
		return nil, err
	}
	timeoutSecs, err := getEnvInt("REQUEST_TIMEOUT", 30)
	if err != nil {
		return nil, err
	}
	cfg.RequestTimeout = time.Duration(timeoutSecs) * time.Second
	if cfg.MaxRetries, err = getEnvInt("MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.RetryBaseDelay, err = getEnvDuration("RETRY_BASE_DELAY", time.Second); err != nil {
		return nil, err
	}
	tpm, err := getEnvInt("DEFAULT_RATE_LIMIT_TPM", 100000)
	if err != nil {
		return nil, err
	}
	cfg.DefaultRateLimitTPM = int64(tpm)

	// Validation
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}
	if cfg.DefaultTemperature < 0 || cfg.DefaultTemperature > 2 {
		return nil, fmt.Errorf("DEFAULT_TEMPERATURE must be between 0 and 2")
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("MAX_RETRIES must be non-negative")
	}

	return cfg, nil
}

// ProviderConfigs builds the immutable per-kind provider configuration. The
// core never reads the environment itself; this is the single place raw
// strings become typed values.
func (c *Config) ProviderConfigs() map[string]provider.Config {
	shared := provider.Config{
		Timeout:    c.RequestTimeout,
		MaxRetries: c.MaxRetries,
		BaseDelay:  c.RetryBaseDelay,
	}

	openaiCfg := shared
	openaiCfg.APIKey = c.OpenAIAPIKey
	openaiCfg.Models = openai.DefaultModels()

	anthropicCfg := shared
	anthropicCfg.APIKey = c.AnthropicAPIKey
	anthropicCfg.Models = anthropic.DefaultModels()

	azureCfg := shared
	azureCfg.APIKey = c.AzureAPIKey
	azureCfg.Endpoint = c.AzureEndpoint
	azureCfg.Models = azure.DefaultModels()

	customCfg := shared
	customCfg.APIKey = c.CustomAPIKey
	customCfg.Endpoint = c.CustomEndpoint
	customCfg.Models = c.CustomModels

	return map[string]provider.Config{
		"openai":    openaiCfg,
		"anthropic": anthropicCfg,
		"azure":     azureCfg,
		"custom":    customCfg,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
