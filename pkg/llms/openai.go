package llms

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"selfevolve/pkg/core"
	"selfevolve/pkg/errors"
	"selfevolve/pkg/llms/openai"
	"selfevolve/pkg/logging"
)

// OpenAILLM implements the core.LLM interface for OpenAI's models and for
// any OpenAI-compatible endpoint (Azure deployments reuse this client with
// a different endpoint configuration).
type OpenAILLM struct {
	*core.BaseLLM
	apiKey string
}

// OpenAIOption is a functional option for configuring the OpenAI provider.
type OpenAIOption func(*OpenAIConfig)

// OpenAIConfig holds configuration for the OpenAI provider.
type OpenAIConfig struct {
	baseURL  string
	path     string
	apiKey   string
	headers  map[string]string
	timeout  time.Duration
	provider string
}

// WithAPIKey sets the API key.
func WithAPIKey(apiKey string) OpenAIOption {
	return func(c *OpenAIConfig) {
		c.apiKey = apiKey
	}
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(baseURL string) OpenAIOption {
	return func(c *OpenAIConfig) {
		c.baseURL = baseURL
	}
}

// WithPath overrides the endpoint path.
func WithPath(path string) OpenAIOption {
	return func(c *OpenAIConfig) {
		c.path = path
	}
}

// WithHeader adds a custom header to every request.
func WithHeader(key, value string) OpenAIOption {
	return func(c *OpenAIConfig) {
		c.headers[key] = value
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) OpenAIOption {
	return func(c *OpenAIConfig) {
		c.timeout = timeout
	}
}

// NewOpenAILLM creates a new OpenAILLM instance with functional options.
func NewOpenAILLM(modelID core.ModelID, opts ...OpenAIOption) (*OpenAILLM, error) {
	config := &OpenAIConfig{
		baseURL:  "https://api.openai.com",
		path:     "/v1/chat/completions",
		timeout:  60 * time.Second,
		headers:  make(map[string]string),
		provider: "openai",
	}

	for _, opt := range opts {
		opt(config)
	}

	// Environment variable fallback for API key
	if config.apiKey == "" {
		config.apiKey = os.Getenv("OPENAI_API_KEY")
	}

	if config.apiKey == "" && config.baseURL == "https://api.openai.com" {
		return nil, errors.WithFields(
			errors.New(errors.InvalidConfig, "OpenAI API key is required"),
			errors.Fields{"env_var": "OPENAI_API_KEY"})
	}

	endpointCfg := &core.EndpointConfig{
		BaseURL:    config.baseURL,
		Path:       config.path,
		Headers:    config.headers,
		TimeoutSec: int(config.timeout.Seconds()),
	}

	if config.apiKey != "" {
		if _, ok := endpointCfg.Headers["api-key"]; !ok {
			endpointCfg.Headers["Authorization"] = "Bearer " + config.apiKey
		}
	}
	endpointCfg.Headers["Content-Type"] = "application/json"

	capabilities := []core.Capability{
		core.CapabilityCompletion,
		core.CapabilityChat,
		core.CapabilityJSON,
	}

	return &OpenAILLM{
		BaseLLM: core.NewBaseLLM(config.provider, modelID, capabilities, endpointCfg),
		apiKey:  config.apiKey,
	}, nil
}

// Generate implements the core.LLM interface.
func (o *OpenAILLM) Generate(ctx context.Context, prompt string, options ...core.GenerateOption) (*core.LLMResponse, error) {
	opts := core.NewGenerateOptions()
	for _, opt := range options {
		opt(opts)
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if opts.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: "system", Content: opts.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: "user", Content: prompt})

	request := &openai.ChatCompletionRequest{
		Model:       string(o.ModelID()),
		Messages:    messages,
		MaxTokens:   &opts.MaxTokens,
		Temperature: &opts.Temperature,
	}

	if opts.TopP > 0 {
		request.TopP = &opts.TopP
	}
	if len(opts.Stop) > 0 {
		request.Stop = opts.Stop
	}

	response, err := o.makeRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	if len(response.Choices) == 0 {
		return nil, errors.WithFields(
			errors.New(errors.InvalidResponse, "no choices returned from API"),
			errors.Fields{"provider": o.ProviderName()})
	}

	usage := &core.TokenInfo{
		PromptTokens:     response.Usage.PromptTokens,
		CompletionTokens: response.Usage.CompletionTokens,
		TotalTokens:      response.Usage.TotalTokens,
	}

	logging.GetLogger().PromptCompletion(ctx, prompt, response.Choices[0].Message.Content, &logging.TokenInfo{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	})

	return &core.LLMResponse{
		Content: response.Choices[0].Message.Content,
		Usage:   usage,
		Metadata: map[string]interface{}{
			"finish_reason": response.Choices[0].FinishReason,
			"id":            response.ID,
			"model":         response.Model,
		},
	}, nil
}

func (o *OpenAILLM) makeRequest(ctx context.Context, request *openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidConfig, "failed to marshal request")
	}

	endpoint := o.GetEndpointConfig()
	url := endpoint.BaseURL + endpoint.Path

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, errors.Wrap(err, errors.Unknown, "failed to create request")
	}

	for key, value := range endpoint.Headers {
		req.Header.Set(key, value)
	}

	resp, err := o.GetHTTPClient().Do(req)
	if err != nil {
		if ctxErr := errors.CheckContext(ctx, "generate"); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.WithFields(
			errors.Wrap(err, errors.ProviderFailed, "request failed"),
			errors.Fields{"provider": o.ProviderName()})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ProviderFailed, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		code := classifyHTTPStatus(resp.StatusCode)
		var errorResp openai.ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error.Message == "" {
			return nil, errors.WithFields(
				errors.New(code, "API request failed"),
				errors.Fields{"provider": o.ProviderName(), "status": resp.StatusCode, "body": string(body)})
		}
		return nil, errors.WithFields(
			errors.New(code, errorResp.Error.Message),
			errors.Fields{"provider": o.ProviderName(), "status": resp.StatusCode, "type": errorResp.Error.Type})
	}

	var response openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrap(err, errors.InvalidResponse, "failed to parse response")
	}

	return &response, nil
}

// classifyHTTPStatus maps provider HTTP status codes onto the error
// taxonomy so callers can distinguish throttling and auth failures from
// generic provider faults.
func classifyHTTPStatus(status int) errors.ErrorCode {
	switch {
	case status == http.StatusTooManyRequests:
		return errors.RateLimitExceeded
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.AuthFailed
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return errors.Timeout
	default:
		return errors.ProviderFailed
	}
}
