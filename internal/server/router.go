package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sony/gobreaker"

	"github.com/pqminh/aibridge/internal/provider"
)

var ErrNoProvider = errors.New("no provider can serve this model")

// Router picks a provider for each request and shields every provider behind
// a circuit breaker. A tripped breaker removes its provider from routing
// until the breaker half-opens.
type Router struct {
	providers map[string]provider.Provider
	order     []string
	breakers  map[string]*gobreaker.CircuitBreaker
}

func NewRouter(providers map[string]provider.Provider) *Router {
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(providers))
	order := make([]string, 0, len(providers))
	for name := range providers {
		order = append(order, name)
		settings := gobreaker.Settings{
			Name:        name,
			MaxRequests: 3,
			Interval:    5 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}
		breakers[name] = gobreaker.NewCircuitBreaker(settings)
	}
	sort.Strings(order)
	return &Router{
		providers: providers,
		order:     order,
		breakers:  breakers,
	}
}

// Route returns the provider that should serve model. An explicit kind wins;
// otherwise every non-tripped provider that lists the model is a candidate
// and the cheapest estimate for this prompt is chosen.
func (r *Router) Route(kind, prompt, model string, opts *provider.GenerateOptions) (provider.Provider, error) {
	if kind != "" {
		p, ok := r.providers[kind]
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", kind)
		}
		if r.breakers[kind].State() == gobreaker.StateOpen {
			return nil, fmt.Errorf("provider %q is unavailable", kind)
		}
		return p, nil
	}

	var best provider.Provider
	var bestCost float64
	for _, name := range r.order {
		p := r.providers[name]
		if r.breakers[name].State() == gobreaker.StateOpen {
			continue
		}
		if !hasModel(p, model) {
			continue
		}
		cost := p.EstimateCost(prompt, model, opts)
		if best == nil || cost < bestCost {
			best = p
			bestCost = cost
		}
	}
	if best == nil {
		return nil, ErrNoProvider
	}
	return best, nil
}

// Generate runs the call through the provider's breaker so consecutive
// failures trip it.
func (r *Router) Generate(ctx context.Context, p provider.Provider, prompt, model string, opts *provider.GenerateOptions) (*provider.Response, error) {
	cb := r.breakers[p.Name()]
	result, err := cb.Execute(func() (interface{}, error) {
		return p.Generate(ctx, prompt, model, opts)
	})
	if err != nil {
		return nil, err
	}
	return result.(*provider.Response), nil
}

func hasModel(p provider.Provider, model string) bool {
	for _, m := range p.AvailableModels() {
		if m == model {
			return true
		}
	}
	return false
}
