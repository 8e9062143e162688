package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/lineage/internal/config"
	"github.com/agenthands/lineage/internal/logger"
)

// NewClient builds the client for cfg.Provider. Ollama is reached through
// its OpenAI-compatible endpoint.
func NewClient(ctx context.Context, cfg config.LLMConfig, log *logger.Logger) (LLMClient, error) {
	if log == nil {
		log = logger.Nop()
	}
	provider := strings.ToLower(cfg.Provider)
	temp := float32(cfg.Temperature)

	switch provider {
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL, temp), nil

	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model, temp)

	case "claude", "anthropic":
		return NewClaudeClient(cfg.APIKey, cfg.Model, cfg.BaseURL, temp), nil

	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = fmt.Sprintf("%s/v1", strings.TrimRight(baseURL, "/"))
		}
		log.Info("using ollama via OpenAI-compatible API", "base_url", baseURL, "model", cfg.Model)

		// Ollama ignores the key but the client requires one.
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		return NewOpenAIClient(apiKey, cfg.Model, baseURL, temp), nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}
