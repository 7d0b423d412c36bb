package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"selfevolve/pkg/core"
)

// MockLLM is a testify mock implementing core.LLM for loop and runner tests.
type MockLLM struct {
	mock.Mock
	provider string
	model    core.ModelID
}

var _ core.LLM = (*MockLLM)(nil)

func NewMockLLM(provider string, model core.ModelID) *MockLLM {
	return &MockLLM{provider: provider, model: model}
}

func (m *MockLLM) Generate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.LLMResponse, error) {
	args := m.Called(ctx, prompt)
	if resp := args.Get(0); resp != nil {
		return resp.(*core.LLMResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLLM) ProviderName() string { return m.provider }

func (m *MockLLM) ModelID() core.ModelID { return m.model }

func (m *MockLLM) Capabilities() []core.Capability {
	return []core.Capability{core.CapabilityChat, core.CapabilityCompletion}
}

// Response is a convenience constructor for a plain text completion.
func Response(content string) *core.LLMResponse {
	return &core.LLMResponse{
		Content: content,
		Usage:   &core.TokenInfo{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
}
