package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/moverwatch/moverwatch/pkg/types"
)

// Provider is a pluggable notification delivery endpoint. Implementations
// must make Send idempotent at the level of a single logical message: the
// dispatcher may retry a failed attempt.
type Provider interface {
	// Name identifies the provider in config and delivery results.
	Name() string
	// ValidateConfig checks the provider's settings; called once at
	// construction time.
	ValidateConfig() error
	// Send delivers one message. A nil error means delivered.
	Send(ctx context.Context, msg types.Message) error
}

// Factory builds a provider from its opaque config section.
type Factory func(settings map[string]any) (Provider, error)

// Registry maps provider names to factories. The process-global registry is
// populated in init functions below; tests use their own instances.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name, replacing any previous registration.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Create builds and validates a provider.
func (r *Registry) Create(name string, settings map[string]any) (Provider, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", name)
	}

	p, err := f(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to construct provider %q: %w", name, err)
	}
	if err := p.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("invalid config for provider %q: %w", name, err)
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// Register adds a factory to the process-global registry.
func Register(name string, f Factory) {
	defaultRegistry.Register(name, f)
}

// Create builds a provider from the process-global registry.
func Create(name string, settings map[string]any) (Provider, error) {
	return defaultRegistry.Create(name, settings)
}

// Names lists the process-global registry.
func Names() []string {
	return defaultRegistry.Names()
}

// stringSetting extracts a required string from an opaque settings map.
func stringSetting(settings map[string]any, key string) (string, error) {
	v, ok := settings[key]
	if !ok {
		return "", fmt.Errorf("missing required setting %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("setting %q must be a non-empty string", key)
	}
	return s, nil
}
