package transform

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/olla-run/olla/internal/core/constants"
	"github.com/olla-run/olla/internal/core/domain"
)

// iflowRequest is OpenAI-chat-shaped on the wire, plus the session/
// conversation identifiers the iflow dialect uses to pin a request to a
// provider-side conversation.
type iflowRequest struct {
	Model          string           `json:"model"`
	Messages       []openAIMessage  `json:"messages"`
	MaxTokens      int              `json:"max_tokens,omitempty"`
	Temperature    *float64         `json:"temperature,omitempty"`
	Stream         bool             `json:"stream,omitempty"`
	SessionID      string           `json:"session_id,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
}

type IFlow struct{}

func NewIFlow() *IFlow { return &IFlow{} }

func (t *IFlow) Name() string   { return "iflow" }
func (t *IFlow) Family() string { return constants.FamilyIFlow }

func (t *IFlow) HasRequestOut() bool  { return true }
func (t *IFlow) HasRequestIn() bool   { return true }
func (t *IFlow) HasResponseOut() bool { return true }
func (t *IFlow) HasResponseIn() bool  { return false }
func (t *IFlow) HasAuth() bool        { return true }

func (t *IFlow) RequestOut(ctx context.Context, rc *domain.RequestContext, body []byte) ([]byte, error) {
	var req iflowRequest
	if err := codec.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("iflow: decode request: %w", err)
	}

	out := unifiedRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
		SessionID:   req.SessionID,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, unifiedMessage{Role: m.Role, Content: m.Content})
	}

	return codec.Marshal(out)
}

// RequestIn encodes the unified body back into iflow's OpenAI-shaped
// wire format. When the dispatcher flags this as a race candidate it
// clears an inherited SessionID beforehand so a fresh one is minted here
// — racing two candidates against the same provider-side session would
// corrupt the slower response's continuation state.
func (t *IFlow) RequestIn(ctx context.Context, rc *domain.RequestContext, body []byte) ([]byte, error) {
	var in unifiedRequest
	if err := codec.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("iflow: decode unified request: %w", err)
	}

	sessionID := in.SessionID
	if sessionID == "" {
		id, err := randomSessionSuffix()
		if err != nil {
			return nil, fmt.Errorf("iflow: generate session id: %w", err)
		}
		sessionID = id
	}

	req := iflowRequest{
		Model:          in.Model,
		MaxTokens:      in.MaxTokens,
		Temperature:    in.Temperature,
		Stream:         in.Stream,
		SessionID:      sessionID,
		ConversationID: rc.RequestID,
	}
	if in.System != "" {
		req.Messages = append(req.Messages, openAIMessage{Role: "system", Content: in.System})
	}
	for _, m := range in.Messages {
		req.Messages = append(req.Messages, openAIMessage{Role: m.Role, Content: m.Content})
	}

	return codec.Marshal(req)
}

func (t *IFlow) ResponseOut(ctx context.Context, rc *domain.RequestContext, chunk []byte) ([]byte, error) {
	openai := NewOpenAI()
	return openai.ResponseOut(ctx, rc, chunk)
}

func (t *IFlow) ResponseIn(ctx context.Context, rc *domain.RequestContext, chunk []byte) ([]byte, error) {
	return chunk, nil
}

// Auth attaches the bearer token plus iflow's client-identity headers,
// required on every request regardless of streaming mode. header.Set
// canonicalizes the names (User-Agent, X-Client-Type, X-Client-Version).
func (t *IFlow) Auth(ctx context.Context, rc *domain.RequestContext, header http.Header, apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("iflow: missing api key for request %s", rc.RequestID)
	}
	header.Set(constants.HeaderAuthorization, "Bearer "+apiKey)
	header.Set("user-agent", "olla/1.0")
	header.Set("x-client-type", "olla-gateway")
	header.Set("x-client-version", "1.0")
	return nil
}

func randomSessionSuffix() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
