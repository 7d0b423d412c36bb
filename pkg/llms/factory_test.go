package llms

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selfevolve/pkg/core"
	"selfevolve/pkg/errors"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		name    string
		modelID core.ModelID
		backend Backend
		native  string
		wantErr bool
	}{
		{"azure", "azure-gpt-4-turbo", BackendAzure, "gpt-4-turbo", false},
		{"openai", "openai-gpt-4o", BackendOpenAI, "gpt-4o", false},
		{"vertex", "vertex-gemini-1.5-pro", BackendVertex, "gemini-1.5-pro", false},
		{"bedrock", "bedrock-anthropic.claude-3-sonnet-20240229-v1:0", BackendBedrock, "anthropic.claude-3-sonnet-20240229-v1:0", false},
		{"unknown prefix", "huggingface-falcon", "", "", true},
		{"no prefix", "gpt-4o", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, native, err := Route(tt.modelID)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.InvalidConfig, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.backend, backend)
			assert.Equal(t, tt.native, native)
		})
	}
}

func TestNewLLMUnknownModelFailsBeforeAnyCall(t *testing.T) {
	_, err := NewLLM(context.Background(), "FOO")
	require.Error(t, err)
	assert.Equal(t, errors.InvalidConfig, errors.CodeOf(err))
}

func TestNewLLMMissingCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewLLM(context.Background(), "openai-gpt-4o")
	require.Error(t, err)
	assert.Equal(t, errors.InvalidConfig, errors.CodeOf(err))

	t.Setenv("AZURE_API_BASE", "")
	t.Setenv("AZURE_API_KEY", "")
	_, err = NewLLM(context.Background(), "azure-gpt-4-turbo")
	require.Error(t, err)
	assert.Equal(t, errors.InvalidConfig, errors.CodeOf(err))

	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	_, err = NewLLM(context.Background(), "bedrock-anthropic.claude-v2:1")
	require.Error(t, err)
	assert.Equal(t, errors.InvalidConfig, errors.CodeOf(err))
}
