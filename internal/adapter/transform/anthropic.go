package transform

import (
	"context"
	"fmt"
	"net/http"

	"github.com/olla-run/olla/internal/core/constants"
	"github.com/olla-run/olla/internal/core/domain"
)

// anthropicRequest mirrors the Messages API body: system is a top-level
// field rather than an inline message, and max_tokens is required.
type anthropicRequest struct {
	Model       string              `json:"model"`
	System      string              `json:"system,omitempty"`
	MaxTokens   int                 `json:"max_tokens"`
	Messages    []anthropicMessage  `json:"messages"`
	Temperature *float64            `json:"temperature,omitempty"`
	TopP        *float64            `json:"top_p,omitempty"`
	Stream      bool                `json:"stream,omitempty"`
	StopSeqs    []string            `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Type         string             `json:"type"`
	Role         string             `json:"role"`
	Model        string             `json:"model"`
	Content      []anthropicContent `json:"content"`
	StopReason   string             `json:"stop_reason"`
	Usage        anthropicUsage     `json:"usage"`
	Delta        *anthropicDelta    `json:"delta,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicDelta struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

const defaultAnthropicMaxTokens = 4096

type Anthropic struct{}

func NewAnthropic() *Anthropic { return &Anthropic{} }

func (t *Anthropic) Name() string   { return "anthropic" }
func (t *Anthropic) Family() string { return constants.FamilyAnthropic }

func (t *Anthropic) HasRequestOut() bool  { return true }
func (t *Anthropic) HasRequestIn() bool   { return true }
func (t *Anthropic) HasResponseOut() bool { return true }
func (t *Anthropic) HasResponseIn() bool  { return true }
func (t *Anthropic) HasAuth() bool        { return true }

func (t *Anthropic) RequestOut(ctx context.Context, rc *domain.RequestContext, body []byte) ([]byte, error) {
	var req anthropicRequest
	if err := codec.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("anthropic: decode request: %w", err)
	}

	out := unifiedRequest{
		Model:       req.Model,
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      req.Stream,
		Stop:        req.StopSeqs,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, unifiedMessage{Role: m.Role, Content: m.Content})
	}

	return codec.Marshal(out)
}

func (t *Anthropic) RequestIn(ctx context.Context, rc *domain.RequestContext, body []byte) ([]byte, error) {
	var in unifiedRequest
	if err := codec.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("anthropic: decode unified request: %w", err)
	}

	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	req := anthropicRequest{
		Model:       in.Model,
		System:      in.System,
		MaxTokens:   maxTokens,
		Temperature: in.Temperature,
		TopP:        in.TopP,
		Stream:      in.Stream,
		StopSeqs:    in.Stop,
	}
	for _, m := range in.Messages {
		req.Messages = append(req.Messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	return codec.Marshal(req)
}

func (t *Anthropic) ResponseOut(ctx context.Context, rc *domain.RequestContext, chunk []byte) ([]byte, error) {
	var resp anthropicResponse
	if err := codec.Unmarshal(chunk, &resp); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}

	out := unifiedResponse{
		Model: resp.Model,
		Role:  resp.Role,
		Usage: unifiedUsage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	}
	if len(resp.Content) > 0 {
		out.Content = resp.Content[0].Text
	}
	if resp.Delta != nil {
		out.Delta = resp.Delta.Text
	}
	if resp.StopReason != "" {
		out.FinishReason = resp.StopReason
		out.Done = true
	}

	return codec.Marshal(out)
}

func (t *Anthropic) ResponseIn(ctx context.Context, rc *domain.RequestContext, chunk []byte) ([]byte, error) {
	var in unifiedResponse
	if err := codec.Unmarshal(chunk, &in); err != nil {
		return nil, fmt.Errorf("anthropic: decode unified response: %w", err)
	}

	resp := anthropicResponse{
		Type:  "message",
		Role:  "assistant",
		Model: in.Model,
		Usage: anthropicUsage{InputTokens: in.Usage.InputTokens, OutputTokens: in.Usage.OutputTokens},
	}
	if in.Done {
		resp.StopReason = in.FinishReason
	}

	if rc.Stream {
		text := in.Delta
		if text == "" {
			text = in.Content
		}
		resp.Delta = &anthropicDelta{Type: "text_delta", Text: text}
	} else {
		resp.Content = []anthropicContent{{Type: "text", Text: in.Content}}
	}

	return codec.Marshal(resp)
}

// Auth attaches the Anthropic dialect's x-api-key header and mandatory
// anthropic-version header rather than a bearer token.
func (t *Anthropic) Auth(ctx context.Context, rc *domain.RequestContext, header http.Header, apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("anthropic: missing api key for request %s", rc.RequestID)
	}
	header.Set("x-api-key", apiKey)
	header.Set("anthropic-version", "2023-06-01")
	return nil
}
