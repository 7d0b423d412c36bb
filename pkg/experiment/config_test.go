package experiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"selfevolve/pkg/errors"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Name = "dev-bench"
	cfg.DatasetPath = "suite.jsonl"
	cfg.InitialModel = "azure-gpt-4-turbo"
	cfg.CorrectionModel = "bedrock-anthropic.claude-3-sonnet"
	return cfg
}

func TestConfigValidateAccepts(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing name", func(c *Config) { c.Name = "" }},
		{"missing dataset", func(c *Config) { c.DatasetPath = "" }},
		{"zero sampling fraction", func(c *Config) { c.SamplingFraction = 0 }},
		{"fraction above one", func(c *Config) { c.SamplingFraction = 1.5 }},
		{"unknown strategy", func(c *Config) { c.InitialStrategy = "FEWSHOT" }},
		{"unroutable model", func(c *Config) { c.InitialModel = "ollama-llama3" }},
		{"negative temperature", func(c *Config) { c.Temperature = -0.1 }},
		{"top_p above one", func(c *Config) { c.TopP = 1.1 }},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }},
		{"negative correction cap", func(c *Config) { c.MaxSelfCorrectionAttempts = -1 }},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.InvalidConfig, errors.CodeOf(err))
		})
	}
}
