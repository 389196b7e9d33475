package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// DefaultBaseDelay is the first retry delay when Config.BaseDelay is unset.
const DefaultBaseDelay = time.Second

// retryAfterCap bounds vendor Retry-After hints. Vendors occasionally hint
// multi-minute waits; past this cap the remaining retry budget would be
// better spent failing over, so the hint is clamped.
const retryAfterCap = time.Minute

type retryProvider struct {
	Provider
	maxRetries int
	baseDelay  time.Duration
	log        zerolog.Logger
	wait       func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps p so that Generate retries RateLimited and Transient
// failures with exponential backoff: delay before retry n is
// BaseDelay * 2^(n-1), up to Config.MaxRetries retries. A vendor RetryAfter
// hint overrides the computed delay for that retry. InvalidConfig,
// ModelNotFound and Fatal failures propagate after a single attempt.
//
// Exhausting the retry budget surfaces the last classified error wrapped
// with the attempt count, so sustained throttling is distinguishable from a
// first-attempt rate limit while errors.As still sees the classification.
func WithRetry(p Provider, cfg Config, log zerolog.Logger) Provider {
	base := cfg.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	return &retryProvider{
		Provider:   p,
		maxRetries: cfg.MaxRetries,
		baseDelay:  base,
		log:        log.With().Str("component", "retry").Str("provider", p.Name()).Logger(),
		wait:       waitFor,
	}
}

func (r *retryProvider) Generate(ctx context.Context, prompt, model string, opts *GenerateOptions) (*Response, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.baseDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxInterval = retryAfterCap
	eb.MaxElapsedTime = 0
	eb.Reset()
	policy := backoff.WithMaxRetries(eb, uint64(r.maxRetries))

	attempt := 0
	for {
		attempt++
		resp, err := r.Provider.Generate(ctx, prompt, model, opts)
		if err == nil {
			r.log.Info().
				Str("model", resp.Model).
				Int("input_tokens", resp.InputTokens).
				Int("output_tokens", resp.OutputTokens).
				Float64("cost_usd", resp.CostUSD).
				Dur("latency", resp.Latency).
				Int("attempts", attempt).
				Msg("generation succeeded")
			return resp, nil
		}

		var perr *Error
		if !errors.As(err, &perr) || !perr.Retryable() {
			r.log.Error().
				Str("model", model).
				Str("kind", string(KindOf(err))).
				Int("attempts", attempt).
				Err(err).
				Msg("generation failed")
			return nil, err
		}

		delay := policy.NextBackOff()
		if delay == backoff.Stop {
			r.log.Error().
				Str("model", model).
				Str("kind", string(perr.Kind)).
				Int("attempts", attempt).
				Err(err).
				Msg("retries exhausted")
			return nil, fmt.Errorf("%s: still failing after %d attempts: %w", r.Name(), attempt, err)
		}
		if perr.Kind == KindRateLimited && perr.RetryAfter > 0 {
			delay = perr.RetryAfter
			if delay > retryAfterCap {
				delay = retryAfterCap
			}
		}

		r.log.Warn().
			Str("model", model).
			Str("kind", string(perr.Kind)).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("retrying after retryable failure")

		if werr := r.wait(ctx, delay); werr != nil {
			return nil, fmt.Errorf("%s: retry wait aborted: %w", r.Name(), werr)
		}
	}
}

// waitFor sleeps without blocking other goroutines and honors cancellation.
func waitFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
