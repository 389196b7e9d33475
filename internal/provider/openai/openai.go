package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pqminh/aibridge/internal/provider"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	name           = "openai"
)

// Pricing is the OpenAI price table, USD per 1K tokens.
var Pricing = provider.PriceTable{
	"gpt-4o":        {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4o-mini":   {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4-turbo":   {InputPer1K: 0.01, OutputPer1K: 0.03},
	"gpt-3.5-turbo": {InputPer1K: 0.0015, OutputPer1K: 0.002},
}

// DefaultModels returns the models the price table knows about.
func DefaultModels() []string {
	return Pricing.Models()
}

type Provider struct {
	cfg     provider.Config
	baseURL string
	client  *http.Client
}

func New(cfg provider.Config) (provider.Provider, error) {
	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Provider{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Definition registers the openai kind with the provider registry.
func Definition() provider.Definition {
	return provider.Definition{
		New:        New,
		Configured: func(cfg provider.Config) bool { return cfg.APIKey != "" },
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (p *Provider) Name() string { return name }

func (p *Provider) ValidateConfig() error {
	if p.cfg.APIKey == "" {
		return provider.InvalidConfig(name, "api key is required")
	}
	if len(p.cfg.Models) == 0 {
		return provider.InvalidConfig(name, "at least one model must be configured")
	}
	if p.cfg.Timeout <= 0 {
		return provider.InvalidConfig(name, "timeout must be positive")
	}
	return nil
}

func (p *Provider) AvailableModels() []string {
	return append([]string(nil), p.cfg.Models...)
}

func (p *Provider) EstimateCost(prompt, model string, opts *provider.GenerateOptions) float64 {
	out := provider.DefaultEstimatedOutputTokens
	if opts != nil && opts.MaxTokens > 0 {
		out = opts.MaxTokens
	}
	return Pricing.Cost(model, provider.EstimateTokens(prompt), out)
}

func (p *Provider) Generate(ctx context.Context, prompt, model string, opts *provider.GenerateOptions) (*provider.Response, error) {
	if !p.cfg.HasModel(model) {
		return nil, provider.ModelNotFound(name, model)
	}

	reqBody := chatRequest{
		Model:    model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	}
	if opts != nil {
		reqBody.Temperature = opts.Temperature
		reqBody.MaxTokens = opts.MaxTokens
		reqBody.TopP = opts.TopP
		reqBody.Stop = opts.Stop
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, provider.Fatal(name, "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, provider.Fatal(name, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	for k, v := range p.cfg.ExtraHeaders {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, provider.Transient(name, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classify(resp, raw, model)
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, provider.Fatal(name, "failed to decode response", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, provider.Fatal(name, "response contained no choices", nil)
	}

	content := chatResp.Choices[0].Message.Content
	meta := map[string]any{
		"finish_reason": chatResp.Choices[0].FinishReason,
		"response_id":   chatResp.ID,
	}

	inTokens := chatResp.Usage.PromptTokens
	outTokens := chatResp.Usage.CompletionTokens
	if inTokens == 0 && outTokens == 0 {
		inTokens = provider.EstimateTokens(prompt)
		outTokens = provider.EstimateTokens(content)
		meta["estimated_tokens"] = true
	}

	return &provider.Response{
		Content:      content,
		Model:        model,
		Provider:     name,
		InputTokens:  inTokens,
		OutputTokens: outTokens,
		CostUSD:      Pricing.Cost(model, inTokens, outTokens),
		Latency:      time.Since(start),
		Metadata:     meta,
	}, nil
}

func classify(resp *http.Response, raw []byte, model string) error {
	var payload apiError
	_ = json.Unmarshal(raw, &payload)
	msg := payload.Error.Message
	if msg == "" {
		msg = fmt.Sprintf("api error (status %d)", resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return provider.RateLimited(name, msg, parseRetryAfter(resp.Header.Get("Retry-After")), nil)
	case resp.StatusCode == http.StatusNotFound || payload.Error.Code == "model_not_found":
		return provider.ModelNotFound(name, model)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return provider.InvalidConfig(name, msg)
	case resp.StatusCode >= 500:
		return provider.Transient(name, msg, nil)
	default:
		return &provider.Error{
			Kind:       provider.KindFatal,
			Provider:   name,
			Model:      model,
			Message:    msg,
			StatusCode: resp.StatusCode,
		}
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
