// Package selfevolve drives self-correction experiments against code
// benchmark suites. Each benchmark item gets an initial generation from a
// configured model, a deterministic evaluation against the item's check
// spec, and, on failure, correction rounds that feed the failing answer and
// the evaluator's feedback back into the prompt.
//
// Key Components:
//
//   - core: The LLM interface, generation options and response types shared
//     by every backend.
//
//   - llms: Backend implementations selected by model prefix: Azure OpenAI,
//     OpenAI, Google Vertex AI and Anthropic models on AWS Bedrock.
//
//   - strategy: Prompt construction for the zero-shot and chain-of-thought
//     strategies across the initial and correction stages.
//
//   - evaluator: Deterministic pass/fail checks (exact, contains, regex,
//     numeric) with feedback suitable for correction prompts.
//
//   - datasets: Benchmark suite loading (JSONL, YAML, parquet) and
//     deterministic seeded sampling.
//
//   - experiment: The self-correction loop, the concurrent runner and the
//     run summary aggregation.
//
//   - store: SQLite persistence for results and resume, plus summary
//     artifacts.
//
// The selfevolve binary under cmd/selfevolve exposes all of this behind a
// single "run" command.
package selfevolve
