package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pqminh/aibridge/internal/auth"
	"github.com/pqminh/aibridge/internal/provider"
	"github.com/pqminh/aibridge/internal/usage"
	"github.com/pqminh/aibridge/pkg/ratelimit"
)

// Defaults fills generation parameters the request omits.
type Defaults struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

type Handler struct {
	router   *Router
	registry *provider.Registry
	cfgs     map[string]provider.Config
	usage    usage.Store
	limiter  *ratelimit.Limiter
	tracer   trace.Tracer
	log      zerolog.Logger
	defaults Defaults
}

func NewHandler(
	router *Router,
	registry *provider.Registry,
	cfgs map[string]provider.Config,
	store usage.Store,
	limiter *ratelimit.Limiter,
	tracer trace.Tracer,
	log zerolog.Logger,
	defaults Defaults,
) *Handler {
	return &Handler{
		router:   router,
		registry: registry,
		cfgs:     cfgs,
		usage:    store,
		limiter:  limiter,
		tracer:   tracer,
		log:      log.With().Str("component", "server").Logger(),
		defaults: defaults,
	}
}

type generateRequest struct {
	Prompt      string   `json:"prompt"`
	Model       string   `json:"model"`
	Provider    string   `json:"provider"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	TopP        float64  `json:"top_p"`
	Stop        []string `json:"stop"`
}

func (req *generateRequest) options(d Defaults) *provider.GenerateOptions {
	opts := &provider.GenerateOptions{
		Temperature: d.Temperature,
		MaxTokens:   d.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.Stop,
	}
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		opts.MaxTokens = *req.MaxTokens
	}
	return opts
}

func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := auth.GetProjectID(ctx)
	if projectID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	requestID := auth.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "prompt is required"})
		return
	}
	if req.Model == "" {
		req.Model = h.defaults.Model
	}
	opts := req.options(h.defaults)

	ctx, span := h.tracer.Start(ctx, "server.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("project_id", projectID),
		attribute.String("request_id", requestID),
		attribute.String("model", req.Model),
	)

	allowed, err := h.limiter.Allow(ctx, projectID, opts.MaxTokens)
	if err != nil || !allowed {
		w.Header().Set("Retry-After", "60")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error":       "rate limit exceeded",
			"retry_after": "60s",
		})
		return
	}

	p, err := h.router.Route(req.Provider, req.Prompt, req.Model, opts)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	resp, err := h.router.Generate(ctx, p, req.Prompt, req.Model, opts)
	if err != nil {
		h.writeProviderError(w, err)
		return
	}

	go func() {
		rec := &usage.Record{
			ProjectID:    projectID,
			RequestID:    requestID,
			Provider:     resp.Provider,
			Model:        resp.Model,
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
			CostUSD:      resp.CostUSD,
			LatencyMs:    resp.Latency.Milliseconds(),
		}
		if err := h.usage.Log(context.Background(), rec); err != nil {
			h.log.Error().Err(err).Str("request_id", requestID).Msg("failed to log usage")
		}
	}()

	h.log.Info().
		Str("request_id", requestID).
		Str("provider", resp.Provider).
		Str("model", resp.Model).
		Int("input_tokens", resp.InputTokens).
		Int("output_tokens", resp.OutputTokens).
		Float64("cost_usd", resp.CostUSD).
		Dur("latency", resp.Latency).
		Msg("generation complete")

	writeJSON(w, http.StatusOK, map[string]any{
		"request_id":    requestID,
		"content":       resp.Content,
		"model":         resp.Model,
		"provider":      resp.Provider,
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
		"cost_usd":      resp.CostUSD,
		"latency_ms":    resp.Latency.Milliseconds(),
		"metadata":      resp.Metadata,
	})
}

// writeProviderError maps error classification to HTTP status. Unclassified
// errors (breaker open, context cancellation) fall through to 502.
func (h *Handler) writeProviderError(w http.ResponseWriter, err error) {
	var perr *provider.Error
	if !errors.As(err, &perr) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	body := map[string]string{
		"error":    perr.Message,
		"kind":     string(perr.Kind),
		"provider": perr.Provider,
	}

	switch perr.Kind {
	case provider.KindRateLimited:
		if perr.RetryAfter > 0 {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(perr.RetryAfter.Seconds())))
		}
		writeJSON(w, http.StatusTooManyRequests, body)
	case provider.KindModelNotFound:
		writeJSON(w, http.StatusBadRequest, body)
	case provider.KindInvalidConfig:
		writeJSON(w, http.StatusInternalServerError, body)
	default:
		writeJSON(w, http.StatusBadGateway, body)
	}
}

type estimateRequest struct {
	Prompt    string `json:"prompt"`
	Model     string `json:"model"`
	Provider  string `json:"provider"`
	MaxTokens *int   `json:"max_tokens"`
}

func (h *Handler) HandleEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Model == "" {
		req.Model = h.defaults.Model
	}

	outTokens := provider.DefaultEstimatedOutputTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		outTokens = *req.MaxTokens
	}
	opts := &provider.GenerateOptions{MaxTokens: outTokens}

	p, err := h.router.Route(req.Provider, req.Prompt, req.Model, opts)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"provider":                p.Name(),
		"model":                   req.Model,
		"estimated_input_tokens":  provider.EstimateTokens(req.Prompt),
		"estimated_output_tokens": outTokens,
		"estimated_cost_usd":      p.EstimateCost(req.Prompt, req.Model, opts),
	})
}

// HandleProviders reports, per registered kind, configuration presence and
// the model list. No provider is constructed and nothing goes on the wire.
func (h *Handler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	availability := h.registry.Availability(h.cfgs)

	type kindInfo struct {
		Available bool     `json:"available"`
		Models    []string `json:"models"`
	}
	out := make(map[string]kindInfo, len(availability))
	for _, name := range h.registry.Kinds() {
		out[name] = kindInfo{
			Available: availability[name],
			Models:    h.cfgs[name].Models,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projectID := auth.GetProjectID(ctx)
	if projectID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	now := time.Now()
	from := now.AddDate(0, 0, -30)
	to := now

	if raw := r.URL.Query().Get("from"); raw != "" {
		var err error
		from, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid 'from' date format (use RFC3339)"})
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		var err error
		to, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid 'to' date format (use RFC3339)"})
			return
		}
	}

	records, err := h.usage.ListByProject(ctx, projectID, from, to)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	totalCost, err := h.usage.TotalCostByProject(ctx, projectID, from, to)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"project_id":     projectID,
		"total_requests": len(records),
		"total_cost_usd": totalCost,
		"records":        records,
		"from":           from,
		"to":             to,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
