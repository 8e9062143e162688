package llm

import (
	"context"
	"testing"

	"github.com/agenthands/lineage/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	ctx := context.Background()

	c, err := NewClient(ctx, config.LLMConfig{Provider: "openai", APIKey: "k", Model: "gpt-4o-mini"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	c, err = NewClient(ctx, config.LLMConfig{Provider: "Claude", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &ClaudeClient{}, c)

	c, err = NewClient(ctx, config.LLMConfig{Provider: "ollama", Model: "llama3", BaseURL: "http://localhost:11434/"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, c)

	_, err = NewClient(ctx, config.LLMConfig{Provider: "watson"}, nil)
	assert.Error(t, err)
}
