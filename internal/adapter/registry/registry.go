// Package registry implements ports.ProviderRegistry: the in-memory set
// of configured upstream providers, mutable at runtime via the
// /providers CRUD surface.
package registry

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/olla-run/olla/internal/core/domain"
)

type Registry struct {
	providers *xsync.Map[string, *domain.Provider]
}

func New() *Registry {
	return &Registry{providers: xsync.NewMap[string, *domain.Provider]()}
}

func (r *Registry) Get(id string) (*domain.Provider, bool) {
	return r.providers.Load(id)
}

func (r *Registry) All() []*domain.Provider {
	var out []*domain.Provider
	r.providers.Range(func(k string, p *domain.Provider) bool {
		out = append(out, p)
		return true
	})
	return out
}

func (r *Registry) ProvidersForModel(model string) []*domain.Provider {
	var out []*domain.Provider
	r.providers.Range(func(k string, p *domain.Provider) bool {
		if p.IsEnabled() && p.SupportsModel(model) {
			out = append(out, p)
		}
		return true
	})
	return out
}

func (r *Registry) Add(ctx context.Context, p *domain.Provider) error {
	if p.ID == "" {
		return fmt.Errorf("provider id must not be empty")
	}
	if _, loaded := r.providers.LoadOrStore(p.ID, p); loaded {
		return fmt.Errorf("provider %q already registered", p.ID)
	}
	return nil
}

func (r *Registry) Remove(ctx context.Context, id string) error {
	_, ok := r.providers.LoadAndDelete(id)
	if !ok {
		return fmt.Errorf("provider %q not found", id)
	}
	return nil
}

func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	p, ok := r.providers.Load(id)
	if !ok {
		return fmt.Errorf("provider %q not found", id)
	}
	p.SetEnabled(enabled)
	return nil
}
