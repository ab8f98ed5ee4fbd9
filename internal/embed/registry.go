package embed

import (
	"fmt"
	"slices"
	"strings"
)

const DefaultProviderName = "http"

// Factory builds a provider on first use, so providers that are never selected never
// need their credentials.
type Factory func() (Provider, error)

// Registry maps provider names to factories and memoizes the built providers.
type Registry struct {
	factories       map[string]Factory
	built           map[string]Provider
	defaultProvider string
}

func NewRegistry(defaultProvider string) *Registry {
	name := normalizeProviderName(defaultProvider)
	if name == "" {
		name = DefaultProviderName
	}
	return &Registry{
		factories:       make(map[string]Factory),
		built:           make(map[string]Provider),
		defaultProvider: name,
	}
}

// Register adds a factory under name, replacing any earlier registration.
func (r *Registry) Register(name string, factory Factory) error {
	if r == nil {
		return fmt.Errorf("registry is nil")
	}
	name = normalizeProviderName(name)
	if name == "" {
		return fmt.Errorf("provider name is required")
	}
	if factory == nil {
		return fmt.Errorf("factory for %q is nil", name)
	}
	r.factories[name] = factory
	delete(r.built, name)
	return nil
}

// Provider resolves name, building the provider the first time. An empty name selects
// the default provider. Registry is not safe for concurrent use; resolve providers
// during wiring.
func (r *Registry) Provider(name string) (Provider, error) {
	if r == nil {
		return nil, fmt.Errorf("registry is nil")
	}
	resolved := normalizeProviderName(name)
	if resolved == "" {
		resolved = r.defaultProvider
	}
	if provider, ok := r.built[resolved]; ok {
		return provider, nil
	}

	factory, ok := r.factories[resolved]
	if !ok {
		if len(r.factories) == 0 {
			return nil, fmt.Errorf("no embedding providers are registered")
		}
		return nil, fmt.Errorf("embedding provider %q is not registered (available: %s)", resolved, strings.Join(r.ProviderNames(), ", "))
	}
	provider, err := factory()
	if err != nil {
		return nil, fmt.Errorf("build embedding provider %q: %w", resolved, err)
	}
	if provider == nil {
		return nil, fmt.Errorf("embedding provider %q factory returned nil", resolved)
	}
	r.built[resolved] = provider
	return provider, nil
}

func (r *Registry) ProviderNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func normalizeProviderName(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
