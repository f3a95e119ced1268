// Package transform implements ports.TransformerChain: the ordered,
// capability-flagged pipeline that bridges an ingress dialect (what the
// client sent) to a provider's native dialect, and back again for the
// response.
package transform

import (
	"context"

	"github.com/olla-run/olla/internal/core/domain"
	"github.com/olla-run/olla/internal/core/ports"
)

type Chain struct {
	byFamily map[string]ports.Transformer
}

func New() *Chain {
	c := &Chain{byFamily: map[string]ports.Transformer{}}
	c.Register(NewOpenAI())
	c.Register(NewAnthropic())
	c.Register(NewIFlow())
	return c
}

func (c *Chain) Register(t ports.Transformer) {
	c.byFamily[t.Family()] = t
}

func (c *Chain) TransformerFor(family string) (ports.Transformer, bool) {
	t, ok := c.byFamily[family]
	return t, ok
}

// Resolve returns the bypass-optimized pipeline for a hop: empty when the
// ingress dialect already matches the provider's native family (nothing
// to translate), otherwise the ingress transformer followed by the
// provider-family transformer.
func (c *Chain) Resolve(ingressDialect, providerFamily string) []ports.Transformer {
	if ingressDialect == providerFamily {
		return nil
	}

	var chain []ports.Transformer
	if t, ok := c.byFamily[ingressDialect]; ok {
		chain = append(chain, t)
	}
	if t, ok := c.byFamily[providerFamily]; ok {
		chain = append(chain, t)
	}
	return chain
}

// RunRequestOut takes an ingress-dialect body to the provider's native
// body. The first transformer in chain is the ingress side: its
// RequestOut leg decodes the client's dialect into the unified shape.
// Every transformer after it is a hop further into the provider chain:
// each applies RequestIn, decoding the unified shape into its own
// native dialect, so the last transformer's output is what goes
// upstream.
func (c *Chain) RunRequestOut(ctx context.Context, rc *domain.RequestContext, chain []ports.Transformer, body []byte) ([]byte, error) {
	if len(chain) == 0 {
		return body, nil
	}

	out := body
	ingress := chain[0]
	if ingress.HasRequestOut() {
		var err error
		out, err = ingress.RequestOut(ctx, rc, out)
		if err != nil {
			return nil, err
		}
	}

	for _, t := range chain[1:] {
		if !t.HasRequestIn() {
			continue
		}
		var err error
		out, err = t.RequestIn(ctx, rc, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RunResponseOut takes a provider-native response chunk back to the
// unified shape, stopping short of the ingress dialect. It walks the
// provider side of the chain (everything after the ingress transformer)
// in reverse, so a model-chain hop closest to the provider unwinds
// first. The ingress transformer's leg is RunResponseIn, always the
// final hop, kept separate so a caller can inspect the unified shape
// (for metrics, logging) before it's rendered into the client dialect.
func (c *Chain) RunResponseOut(ctx context.Context, rc *domain.RequestContext, chain []ports.Transformer, chunk []byte) ([]byte, error) {
	out := chunk
	for i := len(chain) - 1; i >= 1; i-- {
		t := chain[i]
		if !t.HasResponseOut() {
			continue
		}
		var err error
		out, err = t.ResponseOut(ctx, rc, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RunResponseIn renders the unified response into the ingress dialect's
// shape via the chain's first (ingress) transformer.
func (c *Chain) RunResponseIn(ctx context.Context, rc *domain.RequestContext, chain []ports.Transformer, chunk []byte) ([]byte, error) {
	if len(chain) == 0 {
		return chunk, nil
	}
	ingress := chain[0]
	if !ingress.HasResponseIn() {
		return chunk, nil
	}
	return ingress.ResponseIn(ctx, rc, chunk)
}
