package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"selfevolve/pkg/core"
	"selfevolve/pkg/datasets"
	"selfevolve/pkg/evaluator"
	"selfevolve/pkg/experiment"
	"selfevolve/pkg/llms"
	"selfevolve/pkg/logging"
	"selfevolve/pkg/store"
	"selfevolve/pkg/strategy"
)

func newRunCommand() *cobra.Command {
	defaults := experiment.DefaultConfig()

	var (
		experimentName     string
		datasetPath        string
		samplingFraction   float64
		seed               int64
		initialStrategy    string
		correctionStrategy string
		initialModel       string
		correctionModel    string
		temperature        float64
		topP               float64
		maxTokens          int
		selfCorrection     bool
		maxCorrections     int
		demo               bool
		concurrency        int
		providerConc       int
		requestTimeout     time.Duration
		artifactDir        string
		resultsDB          string
		logLevel           string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one experiment over a benchmark suite",
		Example: `  # Zero-shot initial attempt, chain-of-thought corrections
  selfevolve run --experiment_name ds1000-gpt4 --dataset suites/ds1000.jsonl \
    --initial_model azure-gpt-4-turbo --correction_model azure-gpt-4-turbo

  # Quarter of the suite, no self-correction, quiet demo output
  selfevolve run --experiment_name baseline --dataset suites/ds1000.parquet \
    --sampling_fraction 0.25 --self_correction=false --demo \
    --initial_model bedrock-anthropic.claude-3-sonnet`,
		RunE: func(cmd *cobra.Command, args []string) error {
			initStrat, err := strategy.Parse(initialStrategy)
			if err != nil {
				return err
			}
			corrStrat, err := strategy.Parse(correctionStrategy)
			if err != nil {
				return err
			}

			cfg := experiment.Config{
				Name:                      experimentName,
				DatasetPath:               datasetPath,
				SamplingFraction:          samplingFraction,
				Seed:                      seed,
				InitialStrategy:           initStrat,
				CorrectionStrategy:        corrStrat,
				InitialModel:              core.ModelID(initialModel),
				CorrectionModel:           core.ModelID(correctionModel),
				Temperature:               temperature,
				TopP:                      topP,
				MaxTokens:                 maxTokens,
				SelfCorrection:            selfCorrection,
				MaxSelfCorrectionAttempts: maxCorrections,
				Demo:                      demo,
				Concurrency:               concurrency,
				ProviderConcurrency:       providerConc,
				RequestTimeout:            requestTimeout,
				ArtifactDir:               artifactDir,
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			setupLogging(logLevel, filepath.Join(artifactDir, experimentName, "run.log"))
			cmd.SilenceUsage = true

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runExperiment(ctx, cfg, resultsDB)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&experimentName, "experiment_name", "", "name of the experiment; results are keyed by it")
	flags.StringVar(&datasetPath, "dataset", "", "path to the benchmark suite (.jsonl, .yaml or .parquet)")
	flags.Float64Var(&samplingFraction, "sampling_fraction", defaults.SamplingFraction, "fraction of the suite to run, sampled deterministically")
	flags.Int64Var(&seed, "seed", defaults.Seed, "seed for the sampling RNG")
	flags.StringVar(&initialStrategy, "initial_strategy", string(defaults.InitialStrategy), "prompting strategy for the first attempt (COT or ZEROSHOT)")
	flags.StringVar(&correctionStrategy, "correction_strategy", string(defaults.CorrectionStrategy), "prompting strategy for correction rounds (COT or ZEROSHOT)")
	flags.StringVar(&initialModel, "initial_model", "", "model for the first attempt, e.g. azure-gpt-4-turbo")
	flags.StringVar(&correctionModel, "correction_model", "", "model for correction rounds; defaults to the initial model")
	flags.Float64Var(&temperature, "temperature", defaults.Temperature, "sampling temperature")
	flags.Float64Var(&topP, "top_p", defaults.TopP, "nucleus sampling probability")
	flags.IntVar(&maxTokens, "max_tokens", defaults.MaxTokens, "maximum tokens per generation")
	flags.BoolVar(&selfCorrection, "self_correction", true, "enable correction rounds after a failing attempt")
	flags.IntVar(&maxCorrections, "max_self_correction_attempts", defaults.MaxSelfCorrectionAttempts, "correction rounds allowed after the initial attempt")
	flags.BoolVar(&demo, "demo", false, "suppress per-item verbose logging; attempts are still recorded in full")
	flags.IntVar(&concurrency, "concurrency", defaults.Concurrency, "benchmark items processed in parallel")
	flags.IntVar(&providerConc, "provider_concurrency", defaults.ProviderConcurrency, "in-flight requests allowed per provider")
	flags.DurationVar(&requestTimeout, "request_timeout", defaults.RequestTimeout, "timeout for a single model call")
	flags.StringVar(&artifactDir, "artifact_dir", defaults.ArtifactDir, "directory for run artifacts")
	flags.StringVar(&resultsDB, "results_db", "", "sqlite results database; defaults to <artifact_dir>/results.db, empty string after explicit --results_db= disables persistence")
	flags.StringVar(&logLevel, "log_level", "info", "log severity: debug, info, warn or error")

	_ = cmd.MarkFlagRequired("experiment_name")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("initial_model")

	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		if correctionModel == "" {
			correctionModel = initialModel
		}
		if !cmd.Flags().Changed("results_db") {
			resultsDB = filepath.Join(artifactDir, "results.db")
		}
	}

	return cmd
}

// setupLogging pairs the console with a JSON-lines file under the artifact
// dir, so demo mode can keep the console quiet without losing the record.
func setupLogging(level, logPath string) {
	severity := logging.ParseSeverity(strings.ToUpper(level))
	outputs := []logging.Output{logging.NewConsoleOutput(true)}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err == nil {
		if fileOut, err := logging.NewFileOutput(logPath); err == nil {
			outputs = append(outputs, fileOut)
		}
	}
	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: severity,
		Outputs:  outputs,
	}))
}

// runExperiment wires the components and drives the run. Everything that can
// fail from configuration alone (dataset, credentials, store) fails here,
// before the first item is processed.
func runExperiment(ctx context.Context, cfg experiment.Config, resultsDB string) error {
	logger := logging.GetLogger()

	items, err := datasets.Load(cfg.DatasetPath)
	if err != nil {
		return err
	}
	logger.Info(ctx, "loaded %d benchmark items from %s", len(items), cfg.DatasetPath)

	runDir := filepath.Join(cfg.ArtifactDir, cfg.Name)
	if err := store.WriteConfigArtifact(filepath.Join(runDir, "config.json"), cfg); err != nil {
		return err
	}

	// The HTTP client timeout must track the configured bound, otherwise
	// its 60s default silently caps --request_timeout.
	initialLLM, err := llms.NewLLM(ctx, cfg.InitialModel, llms.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return err
	}
	correctionLLM, err := llms.NewLLM(ctx, cfg.CorrectionModel, llms.WithTimeout(cfg.RequestTimeout))
	if err != nil {
		return err
	}

	var sink experiment.ResultSink
	if resultsDB != "" {
		s, err := store.Open(resultsDB)
		if err != nil {
			return err
		}
		defer s.Close()
		sink = s
	}

	loop := experiment.NewLoop(cfg,
		strategy.NewFormatter(),
		evaluator.New(),
		initialLLM,
		correctionLLM,
		experiment.NewProviderLimiter(cfg.ProviderConcurrency))

	runner := experiment.NewRunner(cfg, loop, sink)
	summary, runErr := runner.Run(ctx, items)

	// An interrupted run still gets a summary of what finished.
	if summary != nil {
		summaryPath := filepath.Join(runDir, "summary.json")
		if err := store.WriteSummaryArtifact(summaryPath, summary); err != nil {
			return err
		}
		logger.Info(ctx, "wrote summary to %s", summaryPath)
	}
	return runErr
}
