package ports

import (
	"context"

	"github.com/olla-run/olla/internal/core/domain"
)

// ProviderRegistry holds configured providers and supports the
// /providers CRUD surface.
type ProviderRegistry interface {
	Get(id string) (*domain.Provider, bool)
	All() []*domain.Provider
	ProvidersForModel(model string) []*domain.Provider

	Add(ctx context.Context, p *domain.Provider) error
	Remove(ctx context.Context, id string) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
}
