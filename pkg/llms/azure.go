package llms

import (
	"fmt"
	"os"

	"selfevolve/pkg/core"
	"selfevolve/pkg/errors"
)

// Azure OpenAI convenience constructor. Azure serves the same chat
// completions wire format; only the endpoint shape and the auth header
// differ. The deployment name is taken from the model ID.
func NewAzureOpenAILLM(modelID core.ModelID, opts ...OpenAIOption) (*OpenAILLM, error) {
	apiBase := os.Getenv("AZURE_API_BASE")
	apiKey := os.Getenv("AZURE_API_KEY")
	apiVersion := os.Getenv("AZURE_API_VERSION")

	if apiBase == "" || apiKey == "" {
		return nil, errors.WithFields(
			errors.New(errors.InvalidConfig, "Azure OpenAI credentials are required"),
			errors.Fields{"env_vars": "AZURE_API_BASE, AZURE_API_KEY"})
	}
	if apiVersion == "" {
		apiVersion = "2024-02-01"
	}

	defaultOpts := []OpenAIOption{
		WithAPIKey(apiKey),
		WithBaseURL(apiBase),
		WithPath(fmt.Sprintf("/openai/deployments/%s/chat/completions?api-version=%s", modelID, apiVersion)),
		// Azure authenticates with an api-key header, not a bearer token.
		WithHeader("api-key", apiKey),
	}

	allOpts := append(defaultOpts, opts...)

	llm, err := NewOpenAILLM(modelID, allOpts...)
	if err != nil {
		return nil, err
	}

	// Override provider name for clarity by rebuilding the BaseLLM.
	endpointCfg := llm.GetEndpointConfig()
	delete(endpointCfg.Headers, "Authorization")
	capabilities := llm.Capabilities()
	newBaseLLM := core.NewBaseLLM("azure", modelID, capabilities, endpointCfg)

	return &OpenAILLM{
		BaseLLM: newBaseLLM,
		apiKey:  llm.apiKey,
	}, nil
}
