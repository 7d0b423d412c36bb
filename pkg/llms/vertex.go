package llms

import (
	"context"
	"os"
	"strings"

	"google.golang.org/genai"

	"selfevolve/pkg/core"
	"selfevolve/pkg/errors"
	"selfevolve/pkg/logging"
)

// VertexLLM implements the core.LLM interface for Gemini models served
// through Vertex AI. Credentials come from the service-account file
// pointed at by GOOGLE_APPLICATION_CREDENTIALS.
type VertexLLM struct {
	*core.BaseLLM
	client *genai.Client
}

// NewVertexLLM creates a Vertex AI backed LLM. Project and location are
// read from GOOGLE_CLOUD_PROJECT and GOOGLE_CLOUD_LOCATION.
func NewVertexLLM(ctx context.Context, modelID core.ModelID) (*VertexLLM, error) {
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	location := os.Getenv("GOOGLE_CLOUD_LOCATION")
	if location == "" {
		location = "us-central1"
	}

	if projectID == "" {
		return nil, errors.WithFields(
			errors.New(errors.InvalidConfig, "Vertex AI project is required"),
			errors.Fields{"env_var": "GOOGLE_CLOUD_PROJECT"})
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidConfig, "failed to create Vertex AI client")
	}

	capabilities := []core.Capability{
		core.CapabilityCompletion,
		core.CapabilityChat,
	}

	return &VertexLLM{
		BaseLLM: core.NewBaseLLM("vertex", modelID, capabilities, nil),
		client:  client,
	}, nil
}

// Generate implements the core.LLM interface.
func (v *VertexLLM) Generate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.LLMResponse, error) {
	opts := core.NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	temperature := float32(opts.Temperature)
	topP := float32(opts.TopP)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		TopP:            &topP,
		MaxOutputTokens: int32(opts.MaxTokens),
	}
	if opts.System != "" {
		config.SystemInstruction = &genai.Content{
			Role: "system",
			Parts: []*genai.Part{
				{Text: opts.System},
			},
		}
	}
	if len(opts.Stop) > 0 {
		config.StopSequences = opts.Stop
	}

	resp, err := v.client.Models.GenerateContent(ctx, string(v.ModelID()), genai.Text(prompt), config)
	if err != nil {
		if ctxErr := errors.CheckContext(ctx, "generate"); ctxErr != nil {
			return nil, ctxErr
		}
		code := errors.ProviderFailed
		msg := err.Error()
		switch {
		case strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED"):
			code = errors.RateLimitExceeded
		case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "PERMISSION_DENIED"):
			code = errors.AuthFailed
		}
		return nil, errors.WithFields(
			errors.Wrap(err, code, "Vertex AI call failed"),
			errors.Fields{"model": string(v.ModelID())})
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New(errors.InvalidResponse, "no candidates returned from Vertex AI")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}

	var usage *core.TokenInfo
	if resp.UsageMetadata != nil {
		usage = &core.TokenInfo{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	logging.GetLogger().Debug(ctx, "Vertex AI response: %d chars, finish_reason=%s",
		b.Len(), resp.Candidates[0].FinishReason)

	return &core.LLMResponse{
		Content: b.String(),
		Usage:   usage,
		Metadata: map[string]interface{}{
			"finish_reason": string(resp.Candidates[0].FinishReason),
		},
	}, nil
}
