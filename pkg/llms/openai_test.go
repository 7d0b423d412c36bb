package llms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selfevolve/pkg/core"
	"selfevolve/pkg/errors"
	"selfevolve/pkg/llms/openai"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestOpenAIGenerate(t *testing.T) {
	var gotReq openai.ChatCompletionRequest
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		resp := openai.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4o",
			Choices: []openai.ChatChoice{
				{Message: openai.ChatCompletionMessage{Role: "assistant", Content: "df.groupby('a').sum()"}, FinishReason: "stop"},
			},
			Usage: openai.CompletionUsage{PromptTokens: 12, CompletionTokens: 8, TotalTokens: 20},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	})

	llm, err := NewOpenAILLM("gpt-4o",
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
	)
	require.NoError(t, err)

	resp, err := llm.Generate(context.Background(), "solve the problem",
		core.WithTemperature(0.2),
		core.WithTopP(0.95),
		core.WithSystemPrompt("you are a code debugging expert"),
	)
	require.NoError(t, err)

	assert.Equal(t, "df.groupby('a').sum()", resp.Content)
	assert.Equal(t, 20, resp.Usage.TotalTokens)

	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, "system", gotReq.Messages[0].Role)
	assert.Equal(t, "user", gotReq.Messages[1].Role)
	require.NotNil(t, gotReq.Temperature)
	assert.InDelta(t, 0.2, *gotReq.Temperature, 1e-9)
	require.NotNil(t, gotReq.TopP)
	assert.InDelta(t, 0.95, *gotReq.TopP, 1e-9)
}

func TestOpenAIGenerateRateLimited(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit reached","type":"tokens"}}`))
	})

	llm, err := NewOpenAILLM("gpt-4o", WithAPIKey("k"), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = llm.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.Equal(t, errors.RateLimitExceeded, errors.CodeOf(err))
	assert.Contains(t, err.Error(), "rate limit reached")
}

func TestOpenAIGenerateAuthFailure(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key","type":"auth"}}`))
	})

	llm, err := NewOpenAILLM("gpt-4o", WithAPIKey("bad"), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = llm.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.Equal(t, errors.AuthFailed, errors.CodeOf(err))
}

func TestOpenAIGenerateTimeout(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	})

	llm, err := NewOpenAILLM("gpt-4o", WithAPIKey("k"), WithBaseURL(server.URL))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = llm.Generate(ctx, "prompt")
	require.Error(t, err)
	assert.Equal(t, errors.Timeout, errors.CodeOf(err))
}

func TestOpenAIGenerateEmptyChoices(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	})

	llm, err := NewOpenAILLM("gpt-4o", WithAPIKey("k"), WithBaseURL(server.URL))
	require.NoError(t, err)

	_, err = llm.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.Equal(t, errors.InvalidResponse, errors.CodeOf(err))
}

func TestNewOpenAILLMRequiresKeyForOfficialEndpoint(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAILLM("gpt-4o")
	require.Error(t, err)
	assert.Equal(t, errors.InvalidConfig, errors.CodeOf(err))
}

func TestAzureEndpointShape(t *testing.T) {
	t.Setenv("AZURE_API_BASE", "https://example.openai.azure.com")
	t.Setenv("AZURE_API_KEY", "azure-key")
	t.Setenv("AZURE_API_VERSION", "2024-02-01")

	llm, err := NewAzureOpenAILLM("gpt-4-turbo")
	require.NoError(t, err)

	cfg := llm.GetEndpointConfig()
	assert.Equal(t, "https://example.openai.azure.com", cfg.BaseURL)
	assert.Equal(t, "/openai/deployments/gpt-4-turbo/chat/completions?api-version=2024-02-01", cfg.Path)
	assert.Equal(t, "azure-key", cfg.Headers["api-key"])
	_, hasBearer := cfg.Headers["Authorization"]
	assert.False(t, hasBearer)
	assert.Equal(t, "azure", llm.ProviderName())
}

func TestWithTimeoutOverridesDefaultClientTimeout(t *testing.T) {
	llm, err := NewOpenAILLM("gpt-4o", WithAPIKey("k"), WithTimeout(2*time.Minute))
	require.NoError(t, err)

	// A configured bound above the 60s default must not be capped by the
	// HTTP client.
	assert.Equal(t, 2*time.Minute, llm.GetHTTPClient().Timeout)
	assert.Equal(t, 120, llm.GetEndpointConfig().TimeoutSec)
}

func TestAzureHonorsConfiguredTimeout(t *testing.T) {
	t.Setenv("AZURE_API_BASE", "https://example.openai.azure.com")
	t.Setenv("AZURE_API_KEY", "azure-key")

	llm, err := NewAzureOpenAILLM("gpt-4-turbo", WithTimeout(3*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3*time.Minute, llm.GetHTTPClient().Timeout)
}

func TestClassifyHTTPStatus(t *testing.T) {
	assert.Equal(t, errors.RateLimitExceeded, classifyHTTPStatus(http.StatusTooManyRequests))
	assert.Equal(t, errors.AuthFailed, classifyHTTPStatus(http.StatusUnauthorized))
	assert.Equal(t, errors.AuthFailed, classifyHTTPStatus(http.StatusForbidden))
	assert.Equal(t, errors.Timeout, classifyHTTPStatus(http.StatusGatewayTimeout))
	assert.Equal(t, errors.ProviderFailed, classifyHTTPStatus(http.StatusInternalServerError))
}
