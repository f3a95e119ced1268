package transform

import (
	"context"
	"fmt"
	"net/http"

	"github.com/olla-run/olla/internal/core/constants"
	"github.com/olla-run/olla/internal/core/domain"
)

// openAIRequest mirrors the subset of the chat/completions body this
// gateway cares about. Fields outside this set are dropped when a body is
// decoded and re-encoded through the chain; only a bypassed (same-dialect)
// hop forwards the client's body unchanged.
type openAIRequest struct {
	Model       string            `json:"model"`
	Messages    []openAIMessage   `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	TopP        *float64          `json:"top_p,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
	Stop        []string          `json:"stop,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAI struct{}

func NewOpenAI() *OpenAI { return &OpenAI{} }

func (t *OpenAI) Name() string   { return "openai" }
func (t *OpenAI) Family() string { return constants.FamilyOpenAI }

func (t *OpenAI) HasRequestOut() bool  { return true }
func (t *OpenAI) HasRequestIn() bool   { return true }
func (t *OpenAI) HasResponseOut() bool { return true }
func (t *OpenAI) HasResponseIn() bool  { return true }
func (t *OpenAI) HasAuth() bool        { return true }

// RequestOut decodes an OpenAI chat/completions body (the client's
// dialect) into the unified pivot shape. The system prompt, if present,
// is the leading "system"-role message; OpenAI keeps it inline with the
// rest of the conversation rather than as a separate top-level field.
func (t *OpenAI) RequestOut(ctx context.Context, rc *domain.RequestContext, body []byte) ([]byte, error) {
	var req openAIRequest
	if err := codec.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("openai: decode request: %w", err)
	}

	out := unifiedRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
		Stop:        req.Stop,
	}
	for _, m := range req.Messages {
		if m.Role == "system" && out.System == "" {
			out.System = m.Content
			continue
		}
		out.Messages = append(out.Messages, unifiedMessage{Role: m.Role, Content: m.Content})
	}

	return codec.Marshal(out)
}

// RequestIn encodes the unified pivot shape back into an OpenAI
// chat/completions body, re-inlining the system prompt as the first
// message.
func (t *OpenAI) RequestIn(ctx context.Context, rc *domain.RequestContext, body []byte) ([]byte, error) {
	var in unifiedRequest
	if err := codec.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("openai: decode unified request: %w", err)
	}

	req := openAIRequest{
		Model:       in.Model,
		MaxTokens:   in.MaxTokens,
		Temperature: in.Temperature,
		TopP:        in.TopP,
		Stream:      in.Stream,
		Stop:        in.Stop,
	}
	if in.System != "" {
		req.Messages = append(req.Messages, openAIMessage{Role: "system", Content: in.System})
	}
	for _, m := range in.Messages {
		req.Messages = append(req.Messages, openAIMessage{Role: m.Role, Content: m.Content})
	}

	return codec.Marshal(req)
}

// ResponseOut is the inverse of RequestIn for the response leg: provider
// JSON (chat.completion or a streamed chunk) into the unified response
// shape. Only the fields the SSE manager and client-facing transformer
// need survive the hop.
func (t *OpenAI) ResponseOut(ctx context.Context, rc *domain.RequestContext, chunk []byte) ([]byte, error) {
	var resp struct {
		Model   string `json:"model"`
		Choices []struct {
			Message      openAIMessage `json:"message"`
			Delta        openAIMessage `json:"delta"`
			FinishReason *string       `json:"finish_reason"`
		} `json:"choices"`
		Usage *struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := codec.Unmarshal(chunk, &resp); err != nil {
		return nil, fmt.Errorf("openai: decode response: %w", err)
	}

	out := unifiedResponse{Model: resp.Model}
	if len(resp.Choices) > 0 {
		c := resp.Choices[0]
		out.Content = c.Message.Content
		out.Delta = c.Delta.Content
		out.Role = c.Message.Role
		if c.FinishReason != nil {
			out.FinishReason = *c.FinishReason
			out.Done = true
		}
	}
	if resp.Usage != nil {
		out.Usage = unifiedUsage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	}

	return codec.Marshal(out)
}

// ResponseIn renders the unified response back into an OpenAI
// chat/completions-shaped reply for a client that ingressed via the
// OpenAI dialect.
func (t *OpenAI) ResponseIn(ctx context.Context, rc *domain.RequestContext, chunk []byte) ([]byte, error) {
	var in unifiedResponse
	if err := codec.Unmarshal(chunk, &in); err != nil {
		return nil, fmt.Errorf("openai: decode unified response: %w", err)
	}

	content := in.Content
	if content == "" {
		content = in.Delta
	}

	resp := struct {
		Model   string `json:"model"`
		Choices []struct {
			Index        int           `json:"index"`
			Message      openAIMessage `json:"message,omitempty"`
			Delta        openAIMessage `json:"delta,omitempty"`
			FinishReason *string       `json:"finish_reason"`
		} `json:"choices"`
	}{Model: in.Model}

	var finish *string
	if in.Done {
		fr := in.FinishReason
		finish = &fr
	}

	choice := struct {
		Index        int           `json:"index"`
		Message      openAIMessage `json:"message,omitempty"`
		Delta        openAIMessage `json:"delta,omitempty"`
		FinishReason *string       `json:"finish_reason"`
	}{Index: 0, FinishReason: finish}

	if rc.Stream {
		choice.Delta = openAIMessage{Role: in.Role, Content: content}
	} else {
		choice.Message = openAIMessage{Role: in.Role, Content: content}
	}
	resp.Choices = append(resp.Choices, choice)

	return codec.Marshal(resp)
}

// Auth attaches a bearer token, the OpenAI dialect's sole authentication
// scheme.
func (t *OpenAI) Auth(ctx context.Context, rc *domain.RequestContext, header http.Header, apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("openai: missing api key for request %s", rc.RequestID)
	}
	header.Set(constants.HeaderAuthorization, "Bearer "+apiKey)
	return nil
}
