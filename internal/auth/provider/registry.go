package provider

import (
	"fmt"
	"slices"

	"github.com/commacm/comma-auth/internal/auth/domain"
)

// Registry looks configured providers up by name.
type Registry struct {
	providers map[domain.Provider]Provider
}

// NewRegistry registers list by Name. A later duplicate replaces an earlier one.
func NewRegistry(list ...Provider) *Registry {
	m := make(map[domain.Provider]Provider, len(list))
	for _, p := range list {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get resolves name case-insensitively. Supported-but-unconfigured and
// unsupported names both yield ErrUnknownProvider.
func (r *Registry) Get(name string) (Provider, error) {
	id, err := domain.ParseProvider(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q not configured", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists registered providers in a stable order.
func (r *Registry) Names() []domain.Provider {
	out := make([]domain.Provider, 0, len(r.providers))
	for name := range r.providers {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
