package llms

import (
	"context"
	"strings"

	"selfevolve/pkg/core"
	"selfevolve/pkg/errors"
)

// Backend identifies which provider serves a model.
type Backend string

const (
	BackendAzure   Backend = "azure"
	BackendOpenAI  Backend = "openai"
	BackendVertex  Backend = "vertex"
	BackendBedrock Backend = "bedrock"
)

// Route resolves a model ID to its backend and the provider-native model
// name. Routing is by prefix: "azure-gpt-4-turbo" is the Azure deployment
// "gpt-4-turbo", "bedrock-anthropic.claude-3-sonnet" is that model on
// Bedrock, and so on.
func Route(modelID core.ModelID) (Backend, string, error) {
	id := string(modelID)
	switch {
	case strings.HasPrefix(id, "azure-"):
		return BackendAzure, strings.TrimPrefix(id, "azure-"), nil
	case strings.HasPrefix(id, "openai-"):
		return BackendOpenAI, strings.TrimPrefix(id, "openai-"), nil
	case strings.HasPrefix(id, "vertex-"):
		return BackendVertex, strings.TrimPrefix(id, "vertex-"), nil
	case strings.HasPrefix(id, "bedrock-"):
		return BackendBedrock, strings.TrimPrefix(id, "bedrock-"), nil
	default:
		return "", "", errors.WithFields(
			errors.New(errors.InvalidConfig, "unknown model routing prefix"),
			errors.Fields{"model": id, "expected": "azure-|openai-|vertex-|bedrock-"})
	}
}

// NewLLM creates a new LLM instance based on the provided model ID.
// Credentials are resolved from the environment; a missing credential is a
// configuration error surfaced before any generation happens.
func NewLLM(ctx context.Context, modelID core.ModelID, opts ...OpenAIOption) (core.LLM, error) {
	backend, name, err := Route(modelID)
	if err != nil {
		return nil, err
	}

	switch backend {
	case BackendAzure:
		return NewAzureOpenAILLM(core.ModelID(name), opts...)
	case BackendOpenAI:
		return NewOpenAILLM(core.ModelID(name), opts...)
	case BackendVertex:
		return NewVertexLLM(ctx, core.ModelID(name))
	case BackendBedrock:
		return NewBedrockLLM(ctx, core.ModelID(name))
	default:
		return nil, errors.WithFields(
			errors.New(errors.InvalidConfig, "unsupported backend"),
			errors.Fields{"backend": string(backend)})
	}
}
