package transform

import (
	"encoding/json"

	jsoniter "github.com/json-iterator/go"
)

// codec is shared by every dialect transformer for the hot decode/encode
// path; jsoniter's reflection cache amortises across the high call volume
// a request/response leg sees per stream.
var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// unifiedRequest is the pivot shape every dialect transformer reads from
// and writes to on its way through the chain. It carries only the fields
// the ambient chain needs to stay coherent across a hop (model, messages,
// token/sampling limits, tool schema, and the streaming flag); a
// concrete dialect transformer may carry richer per-provider structure
// in its own request/response representation.
type unifiedRequest struct {
	Model       string           `json:"model"`
	System      string           `json:"system,omitempty"`
	Messages    []unifiedMessage `json:"messages"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
	Stream      bool             `json:"stream,omitempty"`
	Stop        []string         `json:"stop,omitempty"`
	Tools       []unifiedTool    `json:"tools,omitempty"`
	SessionID   string           `json:"session_id,omitempty"`
}

type unifiedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type unifiedTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// unifiedResponse is the pivot shape for the response-out leg: a single
// non-streaming reply or one decoded SSE delta, normalised to plain text.
type unifiedResponse struct {
	Model        string         `json:"model"`
	Role         string         `json:"role,omitempty"`
	Content      string         `json:"content,omitempty"`
	Delta        string         `json:"delta,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Usage        unifiedUsage   `json:"usage,omitempty"`
	Done         bool           `json:"done,omitempty"`
}

type unifiedUsage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}
