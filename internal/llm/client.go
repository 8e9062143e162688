package llm

import (
	"context"
)

// LLMClient sends a single prompt and returns the model's text reply.
type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

const systemPrompt = "You are a precise information extractor for obituaries. Reply with JSON only."
