package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "selfevolve",
	Short: "Run self-correction experiments against code benchmark suites",
	Long: `selfevolve drives LLM self-correction experiments: each benchmark item
gets an initial generation, a deterministic evaluation, and, on failure,
correction rounds that feed the failing answer and evaluator feedback back
into the prompt until the item passes or the attempt budget runs out.

Supported backends (selected by model prefix):
- azure-<deployment>      Azure OpenAI
- openai-<model>          OpenAI
- vertex-<model>          Google Vertex AI
- bedrock-<model>         Anthropic models on AWS Bedrock`,
	Version: "0.1.0",
}

func main() {
	rootCmd.AddCommand(newRunCommand())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
