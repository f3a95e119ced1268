package domain

import (
	"fmt"
	"strings"
	"sync"

	"github.com/olla-run/olla/internal/util/pattern"
)

// Provider is a configured upstream LLM backend: a base URL speaking a
// particular wire dialect, with zero or more API keys rotated round-robin
// across outgoing requests.
type Provider struct {
	ID       string
	Name     string
	BaseURL  string
	Family   string // constants.FamilyOpenAI / FamilyAnthropic / FamilyIFlow / FamilyCustom
	Priority int
	Weight   float64
	Enabled  bool

	Models []string

	// CustomHeaders is ordered so later entries win on a case-insensitive
	// key collision, per the header builder's dedup rule.
	CustomHeaders []HeaderKV
	Signer        *SignerConfig

	mu        sync.Mutex
	apiKeys   []string
	keyCursor int
}

// HeaderKV is one configured header override, kept as an ordered pair
// rather than a map so dedup order is deterministic.
type HeaderKV struct {
	Key   string
	Value string
}

// SignerConfig describes a per-provider-family HMAC-SHA256 request
// signer: which already-built header fields feed the signature, and the
// header names the signature and timestamp land in.
type SignerConfig struct {
	Enabled         bool
	HeaderFields    []string
	SignatureHeader string
	TimestampHeader string
}

func NewProvider(id, name, baseURL, family string, priority int, weight float64, apiKeys []string, models []string) *Provider {
	return &Provider{
		ID:       id,
		Name:     name,
		BaseURL:  baseURL,
		Family:   family,
		Priority: priority,
		Weight:   weight,
		Enabled:  true,
		Models:   models,
		apiKeys:  apiKeys,
	}
}

// NextAPIKey returns the next API key in round-robin order. Returns an
// empty string if the provider carries no keys (e.g. unauthenticated
// local backends).
func (p *Provider) NextAPIKey() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.apiKeys) == 0 {
		return ""
	}
	key := p.apiKeys[p.keyCursor%len(p.apiKeys)]
	p.keyCursor++
	return key
}

// SupportsModel reports whether model matches one of the provider's
// configured Models entries, either exactly or against a "*" glob
// pattern (e.g. "gpt-4*", "*vision*").
func (p *Provider) SupportsModel(model string) bool {
	for _, m := range p.Models {
		if strings.Contains(m, "*") {
			if pattern.MatchesGlob(model, m) {
				return true
			}
			continue
		}
		if m == model {
			return true
		}
	}
	return false
}

func (p *Provider) IsEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Enabled
}

func (p *Provider) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Enabled = enabled
}

func (p *Provider) String() string {
	return fmt.Sprintf("%s(%s@%s)", p.Name, p.Family, p.BaseURL)
}
