package extraction

import (
	"context"

	"github.com/agenthands/lineage/internal/core/model"
)

type MockLLMClient struct {
	Response   string
	Err        error
	LastPrompt string
}

func (m *MockLLMClient) Generate(ctx context.Context, prompt string) (string, error) {
	m.LastPrompt = prompt
	if m.Err != nil {
		return "", m.Err
	}
	return m.Response, nil
}

// MockExtractor returns a canned result.
type MockExtractor struct {
	TagName string
	K       model.ExtractorKind
	Result  model.ExtractionResult
	Err     error
	Delay   bool // block until ctx is done
}

func (m *MockExtractor) Tag() string               { return m.TagName }
func (m *MockExtractor) Kind() model.ExtractorKind { return m.K }

func (m *MockExtractor) Extract(ctx context.Context, text string) (model.ExtractionResult, error) {
	if m.Delay {
		<-ctx.Done()
		return model.ExtractionResult{}, ctx.Err()
	}
	if m.Err != nil {
		return model.ExtractionResult{}, m.Err
	}
	return m.Result, nil
}
