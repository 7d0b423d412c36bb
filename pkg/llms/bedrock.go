package llms

import (
	"context"
	"errors"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"

	"selfevolve/pkg/core"
	errs "selfevolve/pkg/errors"
	"selfevolve/pkg/logging"
)

// BedrockLLM implements the core.LLM interface for Anthropic models served
// through AWS Bedrock. The bedrock adapter signs requests with the AWS
// credential chain (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY,
// AWS_REGION_NAME / AWS_REGION).
type BedrockLLM struct {
	client *anthropic.Client
	*core.BaseLLM
}

// NewBedrockLLM creates a new Bedrock-backed LLM instance.
func NewBedrockLLM(ctx context.Context, modelID core.ModelID) (*BedrockLLM, error) {
	if os.Getenv("AWS_ACCESS_KEY_ID") == "" || os.Getenv("AWS_SECRET_ACCESS_KEY") == "" {
		return nil, errs.WithFields(
			errs.New(errs.InvalidConfig, "AWS credentials are required for Bedrock"),
			errs.Fields{"env_vars": "AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY"})
	}
	// Some deployments export AWS_REGION_NAME; the SDK wants AWS_REGION.
	if os.Getenv("AWS_REGION") == "" {
		if region := os.Getenv("AWS_REGION_NAME"); region != "" {
			os.Setenv("AWS_REGION", region)
		}
	}

	client := anthropic.NewClient(
		bedrock.WithLoadDefaultConfig(ctx),
	)

	capabilities := []core.Capability{
		core.CapabilityCompletion,
		core.CapabilityChat,
	}

	return &BedrockLLM{
		client:  &client,
		BaseLLM: core.NewBaseLLM("bedrock", modelID, capabilities, nil),
	}, nil
}

// Generate implements the core.LLM interface.
func (b *BedrockLLM) Generate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.LLMResponse, error) {
	logger := logging.GetLogger()
	opts := core.NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	params := anthropic.MessageNewParams{
		Model: anthropic.Model(b.ModelID()),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewTextBlock(prompt),
			),
		},
		MaxTokens:   int64(opts.MaxTokens),
		Temperature: anthropic.Float(opts.Temperature),
	}
	if opts.TopP > 0 {
		params.TopP = anthropic.Float(opts.TopP)
	}
	if opts.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: opts.System},
		}
	}

	message, err := b.client.Messages.New(ctx, params)
	if err != nil {
		if ctxErr := errs.CheckContext(ctx, "generate"); ctxErr != nil {
			return nil, ctxErr
		}
		code := errs.ProviderFailed
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			logger.Error(ctx, "Bedrock API error: status code %d", apiErr.StatusCode)
			code = classifyHTTPStatus(apiErr.StatusCode)
		}
		return nil, errs.WithFields(
			errs.Wrap(err, code, "Bedrock call failed"),
			errs.Fields{
				"model":      string(b.ModelID()),
				"max_tokens": opts.MaxTokens,
			})
	}

	if message == nil || len(message.Content) == 0 {
		return nil, errs.New(errs.InvalidResponse, "received empty content from Bedrock")
	}

	var responseText string
	if block := message.Content[0]; block.Type == "text" {
		responseText = block.Text
	}

	usage := &core.TokenInfo{
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
		TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
	}

	logger.Debug(ctx, "Bedrock response: %d prompt tokens, %d completion tokens",
		message.Usage.InputTokens, message.Usage.OutputTokens)

	return &core.LLMResponse{Content: responseText, Usage: usage}, nil
}
