package custom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pqminh/aibridge/internal/provider"
)

func TestGenerateSendsExtraHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Gateway-Token"); got != "internal" {
			t.Errorf("extra header not forwarded, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer enterprise-key" {
			t.Errorf("unexpected Authorization header: %s", got)
		}
		resp := chatResponse{
			ID:      "resp-1",
			Choices: []chatChoice{{Message: chatMessage{Content: "internal model says hi"}, FinishReason: "stop"}},
			Usage:   chatUsage{PromptTokens: 4, CompletionTokens: 6},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p, _ := New(provider.Config{
		APIKey:       "enterprise-key",
		Endpoint:     server.URL,
		Models:       []string{"llama-3-70b"},
		Timeout:      5 * time.Second,
		ExtraHeaders: map[string]string{"X-Gateway-Token": "internal"},
	})

	resp, err := p.Generate(context.Background(), "hi", "llama-3-70b", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Content != "internal model says hi" {
		t.Errorf("unexpected content: %s", resp.Content)
	}
	// no list price for enterprise endpoints
	if resp.CostUSD != 0 {
		t.Errorf("expected zero cost, got %v", resp.CostUSD)
	}
}

func TestValidateConfigRequiresKeyAndEndpoint(t *testing.T) {
	cases := []struct {
		name string
		cfg  provider.Config
	}{
		{"missing key", provider.Config{Endpoint: "http://llm.internal", Models: []string{"m"}, Timeout: time.Second}},
		{"missing endpoint", provider.Config{APIKey: "k", Models: []string{"m"}, Timeout: time.Second}},
		{"no models", provider.Config{APIKey: "k", Endpoint: "http://llm.internal", Timeout: time.Second}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, _ := New(tc.cfg)
			if provider.KindOf(p.ValidateConfig()) != provider.KindInvalidConfig {
				t.Error("expected invalid config")
			}
		})
	}
}

func TestEstimateMatchesGenerateCost(t *testing.T) {
	p, _ := New(provider.Config{APIKey: "k", Endpoint: "http://llm.internal", Models: []string{"m"}, Timeout: time.Second})
	// both sides of the comparison use the empty table
	if got := p.EstimateCost("prompt", "m", nil); got != 0 {
		t.Errorf("expected zero estimate, got %v", got)
	}
}

func TestGenerateClassifies429(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer server.Close()

	p, _ := New(provider.Config{APIKey: "k", Endpoint: server.URL, Models: []string{"m"}, Timeout: time.Second})
	_, err := p.Generate(context.Background(), "hi", "m", nil)
	if provider.KindOf(err) != provider.KindRateLimited {
		t.Errorf("expected rate limited, got %v", err)
	}
	if provider.RetryAfterHint(err) != 5*time.Second {
		t.Errorf("expected 5s hint, got %v", provider.RetryAfterHint(err))
	}
}
