package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryOutput captures entries for assertions.
type memoryOutput struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (m *memoryOutput) Write(e LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryOutput) Sync() error  { return nil }
func (m *memoryOutput) Close() error { return nil }

func TestLoggerSeverityFiltering(t *testing.T) {
	out := &memoryOutput{}
	logger := NewLogger(Config{Severity: WARN, Outputs: []Output{out}})

	ctx := context.Background()
	logger.Debug(ctx, "dropped")
	logger.Info(ctx, "dropped")
	logger.Warn(ctx, "kept")
	logger.Error(ctx, "kept too")

	require.Len(t, out.entries, 2)
	assert.Equal(t, "kept", out.entries[0].Message)
	assert.Equal(t, ERROR, out.entries[1].Severity)
}

func TestLoggerContextAnnotations(t *testing.T) {
	out := &memoryOutput{}
	logger := NewLogger(Config{Severity: DEBUG, Outputs: []Output{out}})

	ctx := WithModelID(context.Background(), "openai-gpt-4o")
	ctx = WithTokenInfo(ctx, &TokenInfo{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	logger.Info(ctx, "attempt finished")

	require.Len(t, out.entries, 1)
	assert.Equal(t, "openai-gpt-4o", out.entries[0].ModelID)
	require.NotNil(t, out.entries[0].TokenInfo)
	assert.Equal(t, 15, out.entries[0].TokenInfo.TotalTokens)
}

func TestLoggerDefaultFields(t *testing.T) {
	out := &memoryOutput{}
	logger := NewLogger(Config{
		Severity:      INFO,
		Outputs:       []Output{out},
		DefaultFields: map[string]interface{}{"experiment": "smoke"},
	})

	logger.Info(context.Background(), "hello")
	require.Len(t, out.entries, 1)
	assert.Equal(t, "smoke", out.entries[0].Fields["experiment"])
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, DEBUG, ParseSeverity("DEBUG"))
	assert.Equal(t, ERROR, ParseSeverity("ERROR"))
	assert.Equal(t, INFO, ParseSeverity("garbage"))
}

func TestFileOutputWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	out, err := NewFileOutput(path)
	require.NoError(t, err)

	logger := NewLogger(Config{Severity: DEBUG, Outputs: []Output{out}})
	logger.Info(context.Background(), "item %s done", "numpy_001")
	require.NoError(t, out.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "item numpy_001 done", decoded["message"])
	assert.Equal(t, "INFO", decoded["severity"])
}

func TestGetLoggerReturnsSingleton(t *testing.T) {
	custom := NewLogger(Config{Severity: ERROR, Outputs: []Output{&memoryOutput{}}})
	SetLogger(custom)
	assert.Same(t, custom, GetLogger())
}
