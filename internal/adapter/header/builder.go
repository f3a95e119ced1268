// Package header builds the final header set for an upstream request:
// defaults, dialect-family overlays, session tracking, custom overrides
// and an optional HMAC signature, in that order so later steps win.
package header

import (
	"net/http"

	"github.com/olla-run/olla/internal/core/constants"
	"github.com/olla-run/olla/internal/core/domain"
)

type Builder struct {
	signer *Signer
}

func NewBuilder() *Builder {
	return &Builder{signer: NewSigner()}
}

// Build assembles the upstream header set. authApplied is true when a
// transformer's Auth hook has already set the authorization header for
// this request (the bypass-chain case); the builder then skips its own
// default bearer token and only applies overlays, session headers,
// custom headers and the signer.
func (b *Builder) Build(rc *domain.RequestContext, provider *domain.Provider, apiKey string, authApplied bool) (http.Header, error) {
	h := http.Header{}
	h.Set(constants.HeaderContentType, constants.ContentTypeJSON)
	h.Set(constants.HeaderXRequestID, rc.RequestID)

	if !authApplied && apiKey != "" {
		h.Set(constants.HeaderAuthorization, "Bearer "+apiKey)
	}

	applyFamilyOverlay(h, provider.Family)
	applySessionHeaders(h, rc, provider.Family)
	applyStreamAccept(h, rc.Stream, provider.Family)

	for _, kv := range provider.CustomHeaders {
		h.Set(kv.Key, kv.Value)
	}

	if provider.Signer != nil && provider.Signer.Enabled {
		if err := b.signer.Sign(h, provider.Signer, apiKey); err != nil {
			return nil, err
		}
	}

	return h, nil
}

// applyFamilyOverlay adds headers a dialect family requires on every
// request regardless of auth mode. iflow identifies itself as a client
// via a fixed trio of headers; other families carry no baseline overlay
// today. http.Header.Set canonicalizes the names, so they go out as
// User-Agent, X-Client-Type and X-Client-Version.
func applyFamilyOverlay(h http.Header, family string) {
	if family != constants.FamilyIFlow {
		return
	}
	h.Set("user-agent", "olla/1.0")
	h.Set("x-client-type", "olla-gateway")
	h.Set("x-client-version", "1.0")
}

// applySessionHeaders forwards a client-supplied session/conversation id
// upstream as Session-Id and Conversation-Id. The iflow branch passes
// lowercase names, but http.Header.Set canonicalizes them, so every
// family receives the same capitalized names; lowercase names are not
// emitted.
func applySessionHeaders(h http.Header, rc *domain.RequestContext, family string) {
	sessionID := firstNonEmpty(rc.Headers.Get("X-Session-Id"), rc.Headers.Get("Session-Id"))
	conversationID := firstNonEmpty(rc.Headers.Get("X-Conversation-Id"), rc.Headers.Get("Conversation-Id"))

	if family == constants.FamilyIFlow {
		if sessionID != "" {
			h.Set("session-id", sessionID)
		}
		if conversationID != "" {
			h.Set("conversation-id", conversationID)
		}
		return
	}

	if sessionID != "" {
		h.Set("Session-Id", sessionID)
	}
	if conversationID != "" {
		h.Set("Conversation-Id", conversationID)
	}
}

// applyStreamAccept sets the Accept header for a streamed request.
// iflow-family providers reject text/event-stream and expect
// application/json even when the response is ultimately chunked.
func applyStreamAccept(h http.Header, stream bool, family string) {
	if !stream {
		return
	}
	if family == constants.FamilyIFlow {
		h.Set(constants.HeaderAccept, constants.ContentTypeJSON)
		return
	}
	h.Set(constants.HeaderAccept, constants.ContentTypeSSE)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
