package provider

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeDefinition(name string, validate error) Definition {
	return Definition{
		New: func(cfg Config) (Provider, error) {
			return &fakeProvider{name: name, validate: validate}, nil
		},
		Configured: func(cfg Config) bool { return cfg.APIKey != "" },
	}
}

func TestRegistryCreate(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Register("openai", fakeDefinition("openai", nil)))

	p, err := r.Create("openai", Config{APIKey: "sk-test", Models: []string{"m"}, Timeout: time.Second})

	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}

func TestRegistryCreateUnknownKind(t *testing.T) {
	r := NewRegistry(zerolog.Nop())

	_, err := r.Create("nope", Config{})

	require.Error(t, err)
	assert.Equal(t, KindInvalidConfig, KindOf(err))
}

func TestRegistryCreateFailsFastOnInvalidConfig(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Register("custom", fakeDefinition("custom", InvalidConfig("custom", "api key is required"))))

	p, err := r.Create("custom", Config{})

	require.Error(t, err)
	assert.Nil(t, p)
	assert.Equal(t, KindInvalidConfig, KindOf(err))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Register("openai", fakeDefinition("openai", nil)))

	err := r.Register("openai", fakeDefinition("openai", nil))

	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegistryAvailability(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	for _, kind := range []string{"openai", "anthropic", "azure", "custom"} {
		require.NoError(t, r.Register(kind, fakeDefinition(kind, nil)))
	}

	got := r.Availability(map[string]Config{
		"openai": {APIKey: "sk-test"},
	})

	assert.Equal(t, map[string]bool{
		"openai":    true,
		"anthropic": false,
		"azure":     false,
		"custom":    false,
	}, got)
}

func TestRegistryKindsSorted(t *testing.T) {
	r := NewRegistry(zerolog.Nop())
	require.NoError(t, r.Register("custom", fakeDefinition("custom", nil)))
	require.NoError(t, r.Register("anthropic", fakeDefinition("anthropic", nil)))

	assert.Equal(t, []string{"anthropic", "custom"}, r.Kinds())
}
