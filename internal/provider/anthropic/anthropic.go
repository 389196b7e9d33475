package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pqminh/aibridge/internal/provider"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
	name           = "anthropic"

	// max_tokens is mandatory on the messages API
	defaultMaxTokens = 1024
)

// Pricing is the Anthropic price table, USD per 1K tokens.
var Pricing = provider.PriceTable{
	"claude-3-5-sonnet-20241022": {InputPer1K: 0.003, OutputPer1K: 0.015},
	"claude-3-opus-20240229":     {InputPer1K: 0.015, OutputPer1K: 0.075},
	"claude-3-haiku-20240307":    {InputPer1K: 0.00025, OutputPer1K: 0.00125},
}

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

func Definition() provider.Definition {
	return provider.Definition{
		New:        New,
		Configured: func(cfg provider.Config) bool { return cfg.APIKey != "" },
	}
}

type messagesRequest struct {
	Model         string    `json:"model"`
	MaxTokens     int       `json:"max_tokens"`
	Messages      []message `json:"messages"`
	Temperature   float64   `json:"temperature,omitempty"`
	TopP          float64   `json:"top_p,omitempty"`
	StopSequences []string  `json:"stop_sequences,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
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

	reqBody := messagesRequest{
		Model:     model,
		MaxTokens: defaultMaxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	}
	if opts != nil {
		if opts.MaxTokens > 0 {
			reqBody.MaxTokens = opts.MaxTokens
		}
		reqBody.Temperature = opts.Temperature
		reqBody.TopP = opts.TopP
		reqBody.StopSequences = opts.Stop
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, provider.Fatal(name, "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, provider.Fatal(name, "failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
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

	var msgResp messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return nil, provider.Fatal(name, "failed to decode response", err)
	}

	var sb strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	content := sb.String()
	if content == "" {
		return nil, provider.Fatal(name, "response contained no text content", nil)
	}

	meta := map[string]any{
		"stop_reason": msgResp.StopReason,
		"response_id": msgResp.ID,
	}

	inTokens := msgResp.Usage.InputTokens
	outTokens := msgResp.Usage.OutputTokens
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
	case resp.StatusCode == http.StatusTooManyRequests || payload.Error.Type == "rate_limit_error":
		return provider.RateLimited(name, msg, parseRetryAfter(resp.Header.Get("retry-after")), nil)
	case resp.StatusCode == http.StatusNotFound || payload.Error.Type == "not_found_error":
		return provider.ModelNotFound(name, model)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return provider.InvalidConfig(name, msg)
	// 529 is Anthropic's overloaded status
	case resp.StatusCode >= 500 || payload.Error.Type == "overloaded_error":
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
