package provider

import (
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

var ErrAlreadyRegistered = errors.New("provider kind already registered")

// Constructor builds a provider instance from its configuration. It must not
// perform I/O; credential checks belong in ValidateConfig.
type Constructor func(cfg Config) (Provider, error)

// Definition describes a registered provider kind. Configured reports
// whether cfg carries the kind's required credentials without constructing
// an instance.
type Definition struct {
	New        Constructor
	Configured func(cfg Config) bool
}

// Registry maps provider kind names to their definitions. It is populated
// once at startup and read concurrently afterwards.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Definition
	log   zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		kinds: make(map[string]Definition),
		log:   log.With().Str("component", "registry").Logger(),
	}
}

// Register associates a kind name with its definition. Registering the same
// name twice is a programming error and is rejected.
func (r *Registry) Register(name string, def Definition) error {
	if name == "" || def.New == nil {
		return errors.New("provider registration requires a name and a constructor")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[name]; exists {
		return ErrAlreadyRegistered
	}
	r.kinds[name] = def
	return nil
}

// Create builds and validates a provider instance. A failed validation means
// the instance is never handed to a caller.
func (r *Registry) Create(name string, cfg Config) (Provider, error) {
	r.mu.RLock()
	def, exists := r.kinds[name]
	r.mu.RUnlock()

	if !exists {
		return nil, InvalidConfig(name, "unknown provider kind")
	}

	p, err := def.New(cfg)
	if err != nil {
		return nil, err
	}

	if err := p.ValidateConfig(); err != nil {
		r.log.Warn().Str("provider", name).Err(err).Msg("provider config validation failed")
		return nil, err
	}

	r.log.Info().
		Str("provider", name).
		Int("models", len(cfg.Models)).
		Dur("timeout", cfg.Timeout).
		Int("max_retries", cfg.MaxRetries).
		Msg("provider constructed")
	return p, nil
}

// Availability reports, per registered kind, whether its required
// configuration is present in cfgs. No instances are constructed and no
// network calls are made.
func (r *Registry) Availability(cfgs map[string]Config) map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]bool, len(r.kinds))
	for name, def := range r.kinds {
		out[name] = def.Configured != nil && def.Configured(cfgs[name])
	}
	return out
}

// Kinds returns the registered kind names in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
