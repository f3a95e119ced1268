package transform

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIRequestOutExtractsSystemMessage(t *testing.T) {
	o := NewOpenAI()
	body := []byte(`{"model":"gpt-4","messages":[{"role":"system","content":"be terse"},{"role":"user","content":"hi"}]}`)

	out, err := o.RequestOut(context.Background(), testRC(false), body)
	require.NoError(t, err)

	var unified unifiedRequest
	require.NoError(t, codec.Unmarshal(out, &unified))
	assert.Equal(t, "be terse", unified.System)
	require.Len(t, unified.Messages, 1)
	assert.Equal(t, "user", unified.Messages[0].Role)
}

func TestOpenAIRequestInReinlinesSystemMessage(t *testing.T) {
	o := NewOpenAI()
	unified := unifiedRequest{Model: "gpt-4", System: "be terse", Messages: []unifiedMessage{{Role: "user", Content: "hi"}}}
	body, err := codec.Marshal(unified)
	require.NoError(t, err)

	out, err := o.RequestIn(context.Background(), testRC(false), body)
	require.NoError(t, err)

	var req openAIRequest
	require.NoError(t, codec.Unmarshal(out, &req))
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "user", req.Messages[1].Role)
}

func TestOpenAIAuthSetsBearerHeader(t *testing.T) {
	o := NewOpenAI()
	header := http.Header{}
	require.NoError(t, o.Auth(context.Background(), testRC(false), header, "sk-test"))
	assert.Equal(t, "Bearer sk-test", header.Get("Authorization"))
}

func TestOpenAIAuthRejectsEmptyKey(t *testing.T) {
	o := NewOpenAI()
	header := http.Header{}
	assert.Error(t, o.Auth(context.Background(), testRC(false), header, ""))
}
