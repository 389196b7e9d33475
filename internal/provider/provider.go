package provider

import (
	"context"
	"time"
)

// GenerateOptions carries per-call generation parameters. A nil value means
// the provider's defaults apply.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
	Stop        []string
}

// Response is the normalized result of a generation call, identical in shape
// for every provider kind. CostUSD is always derived from the owning
// provider's price table and the token counts; callers never set it.
type Response struct {
	Content      string
	Model        string
	Provider     string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Latency      time.Duration
	Metadata     map[string]any
}

// Config is the immutable per-kind configuration built once at startup by
// the config loader. Which fields are required depends on the kind: openai
// and anthropic need APIKey, azure and custom need APIKey and Endpoint.
type Config struct {
	APIKey       string
	Endpoint     string
	Models       []string
	Timeout      time.Duration
	MaxRetries   int
	BaseDelay    time.Duration
	ExtraHeaders map[string]string
}

// HasModel reports whether model is in the configured model list.
func (c Config) HasModel(model string) bool {
	for _, m := range c.Models {
		if m == model {
			return true
		}
	}
	return false
}

// Provider is the uniform contract every vendor integration satisfies.
// Implementations are stateless apart from their immutable Config and price
// table, so a single instance is safe for concurrent use.
type Provider interface {
	// Name returns the provider kind ("openai", "anthropic", "azure", "custom").
	Name() string

	// Generate sends prompt to model and returns a normalized Response.
	// Every failure is a classified *Error; vendor-native errors never cross
	// this boundary. Each attempt is bounded by Config.Timeout.
	Generate(ctx context.Context, prompt, model string, opts *GenerateOptions) (*Response, error)

	// AvailableModels returns the configured model list. It performs no I/O.
	AvailableModels() []string

	// EstimateCost predicts the cost of a call from approximate token counts
	// and the provider's price table. Pure function, no I/O.
	EstimateCost(prompt, model string, opts *GenerateOptions) float64

	// ValidateConfig checks required credentials and that the model list is
	// non-empty. Called once at construction by the registry.
	ValidateConfig() error
}
