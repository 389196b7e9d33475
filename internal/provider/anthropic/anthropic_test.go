package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pqminh/aibridge/internal/provider"
)

const testModel = "claude-3-haiku-20240307"

func testProvider(t *testing.T, baseURL string) *Provider {
	t.Helper()
	p, err := New(provider.Config{
		APIKey:   "sk-ant-test",
		Endpoint: baseURL,
		Models:   []string{testModel},
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p.(*Provider)
}

func TestGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "sk-ant-test" {
			t.Errorf("unexpected x-api-key header: %s", got)
		}
		if got := r.Header.Get("anthropic-version"); got != apiVersion {
			t.Errorf("unexpected anthropic-version header: %s", got)
		}
		var req messagesRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.MaxTokens == 0 {
			t.Error("max_tokens must always be set")
		}

		resp := messagesResponse{
			ID:         "msg_123",
			Model:      testModel,
			Content:    []contentBlock{{Type: "text", Text: "Hi "}, {Type: "text", Text: "there"}},
			StopReason: "end_turn",
			Usage:      usage{InputTokens: 9, OutputTokens: 4},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := testProvider(t, server.URL)
	resp, err := p.Generate(context.Background(), "hello", testModel, nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if resp.Content != "Hi there" {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if resp.InputTokens != 9 || resp.OutputTokens != 4 {
		t.Errorf("unexpected token counts: %d/%d", resp.InputTokens, resp.OutputTokens)
	}
	want := Pricing.Cost(testModel, 9, 4)
	if resp.CostUSD != want {
		t.Errorf("cost %v does not match price table %v", resp.CostUSD, want)
	}
	if resp.Metadata["stop_reason"] != "end_turn" {
		t.Errorf("unexpected stop_reason: %v", resp.Metadata["stop_reason"])
	}
}

func TestGenerateClassifiesErrors(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		wantKind provider.Kind
	}{
		{"rate limit", 429, `{"type":"error","error":{"type":"rate_limit_error","message":"throttled"}}`, provider.KindRateLimited},
		{"bad key", 401, `{"type":"error","error":{"type":"authentication_error","message":"invalid key"}}`, provider.KindInvalidConfig},
		{"model 404", 404, `{"type":"error","error":{"type":"not_found_error","message":"model not found"}}`, provider.KindModelNotFound},
		{"overloaded", 529, `{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`, provider.KindTransient},
		{"unknown", 400, `{"type":"error","error":{"type":"invalid_request_error","message":"bad request"}}`, provider.KindFatal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			p := testProvider(t, server.URL)
			_, err := p.Generate(context.Background(), "hello", testModel, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := provider.KindOf(err); got != tc.wantKind {
				t.Errorf("expected kind %s, got %s", tc.wantKind, got)
			}
		})
	}
}

func TestGenerateRetryAfterHint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("retry-after", "12")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"throttled"}}`))
	}))
	defer server.Close()

	p := testProvider(t, server.URL)
	_, err := p.Generate(context.Background(), "hello", testModel, nil)
	if hint := provider.RetryAfterHint(err); hint != 12*time.Second {
		t.Errorf("expected 12s retry-after hint, got %v", hint)
	}
}

func TestValidateConfig(t *testing.T) {
	p, _ := New(provider.Config{Models: []string{testModel}, Timeout: time.Second})
	if provider.KindOf(p.ValidateConfig()) != provider.KindInvalidConfig {
		t.Error("expected invalid config for missing api key")
	}

	p, _ = New(provider.Config{APIKey: "sk-ant-x", Models: []string{testModel}, Timeout: time.Second})
	if err := p.ValidateConfig(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEstimateCostMatchesPriceTable(t *testing.T) {
	p, _ := New(provider.Config{APIKey: "sk-ant-x", Models: []string{testModel}, Timeout: time.Second})

	prompt := "summarize this text"
	got := p.EstimateCost(prompt, testModel, nil)
	want := Pricing.Cost(testModel, provider.EstimateTokens(prompt), provider.DefaultEstimatedOutputTokens)
	if got != want {
		t.Errorf("estimate %v does not match table %v", got, want)
	}
}
