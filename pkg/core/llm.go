package core

import (
	"net/http"
	"time"

	"context"
)

// TokenInfo tracks token usage reported by a provider.
type TokenInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// LLMResponse is the result of a single generation call.
type LLMResponse struct {
	Content  string
	Usage    *TokenInfo
	Metadata map[string]interface{}
}

type Capability string

const (
	CapabilityCompletion Capability = "completion"
	CapabilityChat       Capability = "chat"
	CapabilityJSON       Capability = "json"
)

// LLM represents an interface for language models. Implementations wrap a
// single backend; they never retry internally so attempt accounting stays
// with the caller.
type LLM interface {
	// Generate produces a text completion for the given prompt.
	Generate(ctx context.Context, prompt string, options ...GenerateOption) (*LLMResponse, error)

	ProviderName() string
	ModelID() ModelID
	Capabilities() []Capability
}

// ModelID identifies a model within the experiment's routing scheme, e.g.
// "azure-gpt-4-turbo", "openai-gpt-4o", "vertex-gemini-1.5-pro",
// "bedrock-anthropic.claude-3-sonnet".
type ModelID string

func (m ModelID) String() string { return string(m) }

// GenerateOption represents an option for text generation.
type GenerateOption func(*GenerateOptions)

// GenerateOptions holds configuration for text generation.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stop        []string
	System      string
}

// NewGenerateOptions creates a new GenerateOptions with default values.
func NewGenerateOptions() *GenerateOptions {
	return &GenerateOptions{
		MaxTokens:   4096,
		Temperature: 0.9,
		TopP:        0.9,
	}
}

// WithMaxTokens sets the maximum number of tokens to generate.
func WithMaxTokens(n int) GenerateOption {
	return func(o *GenerateOptions) {
		o.MaxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.Temperature = t
	}
}

// WithTopP sets the nucleus sampling probability.
func WithTopP(p float64) GenerateOption {
	return func(o *GenerateOptions) {
		o.TopP = p
	}
}

// WithStopSequences sets the stop sequences.
func WithStopSequences(sequences ...string) GenerateOption {
	return func(o *GenerateOptions) {
		o.Stop = sequences
	}
}

// WithSystemPrompt sets the system message sent alongside the user prompt.
func WithSystemPrompt(system string) GenerateOption {
	return func(o *GenerateOptions) {
		o.System = system
	}
}

// EndpointConfig describes where and how a provider is reached.
type EndpointConfig struct {
	BaseURL    string            // Base API URL
	Path       string            // Specific endpoint path
	Headers    map[string]string // Common headers
	TimeoutSec int               // Request timeout in seconds
}

// BaseLLM provides a base implementation of the LLM interface.
type BaseLLM struct {
	providerName string
	modelID      ModelID
	capabilities []Capability

	endpoint *EndpointConfig // Optional endpoint configuration
	client   *http.Client    // Common HTTP client
}

// NewBaseLLM creates a BaseLLM with the shared HTTP client wiring.
func NewBaseLLM(providerName string, modelID ModelID, capabilities []Capability, endpoint *EndpointConfig) *BaseLLM {
	timeout := 60 * time.Second
	if endpoint != nil && endpoint.TimeoutSec > 0 {
		timeout = time.Duration(endpoint.TimeoutSec) * time.Second
	}

	return &BaseLLM{
		providerName: providerName,
		modelID:      modelID,
		capabilities: capabilities,
		endpoint:     endpoint,
		client:       &http.Client{Timeout: timeout},
	}
}

func (b *BaseLLM) ProviderName() string {
	return b.providerName
}

func (b *BaseLLM) ModelID() ModelID {
	return b.modelID
}

func (b *BaseLLM) Capabilities() []Capability {
	return b.capabilities
}

// GetEndpointConfig returns the current endpoint configuration.
func (b *BaseLLM) GetEndpointConfig() *EndpointConfig {
	return b.endpoint
}

// GetHTTPClient returns the HTTP client.
func (b *BaseLLM) GetHTTPClient() *http.Client {
	return b.client
}
