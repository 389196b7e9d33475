package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_DSN", "postgres://localhost/aibridge")
	t.Setenv("REDIS_ADDR", "localhost:6379")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 0.7, cfg.DefaultTemperature)
	assert.Equal(t, 150, cfg.DefaultMaxTokens)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBaseDelay)
	assert.Equal(t, int64(100000), cfg.DefaultRateLimitTPM)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DEFAULT_TEMPERATURE", "0.2")
	t.Setenv("REQUEST_TIMEOUT", "10")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("RETRY_BASE_DELAY", "500ms")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 0.2, cfg.DefaultTemperature)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBaseDelay)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{"missing postgres dsn", map[string]string{"REDIS_ADDR": "localhost:6379"}},
		{"missing redis addr", map[string]string{"POSTGRES_DSN": "postgres://x"}},
		{"temperature out of range", map[string]string{
			"POSTGRES_DSN": "postgres://x", "REDIS_ADDR": "localhost:6379",
			"DEFAULT_TEMPERATURE": "3.5",
		}},
		{"negative retries", map[string]string{
			"POSTGRES_DSN": "postgres://x", "REDIS_ADDR": "localhost:6379",
			"MAX_RETRIES": "-1",
		}},
		{"garbage timeout", map[string]string{
			"POSTGRES_DSN": "postgres://x", "REDIS_ADDR": "localhost:6379",
			"REQUEST_TIMEOUT": "soon",
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("POSTGRES_DSN", "")
			t.Setenv("REDIS_ADDR", "")
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestProviderConfigs(t *testing.T) {
	setRequired(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("AZURE_OPENAI_API_KEY", "az-key")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("CUSTOM_LLM_MODELS", "llama-3-70b, mistral-large")

	cfg, err := Load()
	require.NoError(t, err)

	pcfgs := cfg.ProviderConfigs()
	require.Len(t, pcfgs, 4)

	assert.Equal(t, "sk-openai", pcfgs["openai"].APIKey)
	assert.NotEmpty(t, pcfgs["openai"].Models)
	assert.Empty(t, pcfgs["anthropic"].APIKey)
	assert.Equal(t, "https://example.openai.azure.com", pcfgs["azure"].Endpoint)
	assert.Equal(t, []string{"llama-3-70b", "mistral-large"}, pcfgs["custom"].Models)

	for kind, pc := range pcfgs {
		assert.Equal(t, cfg.RequestTimeout, pc.Timeout, kind)
		assert.Equal(t, cfg.MaxRetries, pc.MaxRetries, kind)
		assert.Equal(t, cfg.RetryBaseDelay, pc.BaseDelay, kind)
	}
}
