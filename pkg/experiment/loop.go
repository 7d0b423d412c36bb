package experiment

import (
	"context"
	"time"

	"selfevolve/pkg/core"
	"selfevolve/pkg/datasets"
	"selfevolve/pkg/errors"
	"selfevolve/pkg/evaluator"
	"selfevolve/pkg/logging"
	"selfevolve/pkg/strategy"
)

// Loop drives the self-correction cycle for a single benchmark item: an
// initial attempt, then up to MaxSelfCorrectionAttempts correction rounds
// that feed the failing answer and evaluator feedback back into the prompt.
type Loop struct {
	cfg       Config
	formatter *strategy.Formatter
	eval      evaluator.Evaluator
	initial   core.LLM
	corrector core.LLM
	limiter   *ProviderLimiter
	logger    *logging.Logger
}

// NewLoop wires a loop from already constructed collaborators. The limiter
// may be nil when no per-provider cap applies.
func NewLoop(cfg Config, formatter *strategy.Formatter, eval evaluator.Evaluator, initial, corrector core.LLM, limiter *ProviderLimiter) *Loop {
	return &Loop{
		cfg:       cfg,
		formatter: formatter,
		eval:      eval,
		initial:   initial,
		corrector: corrector,
		limiter:   limiter,
		logger:    logging.GetLogger(),
	}
}

// maxAttempts is the hard ceiling on generate calls for one item.
func (l *Loop) maxAttempts() int {
	if !l.cfg.SelfCorrection {
		return 1
	}
	return 1 + l.cfg.MaxSelfCorrectionAttempts
}

// Run processes one item to a final verdict. A provider or evaluator error
// finalizes the item as errored; it never fails the whole run. Cancellation
// is observed between attempts so an in-flight attempt finishes cleanly.
func (l *Loop) Run(ctx context.Context, item datasets.BenchmarkItem) ExperimentResult {
	res := ExperimentResult{ItemID: item.ID}
	max := l.maxAttempts()

	var prior *strategy.PriorAttempt
	for attempt := 1; attempt <= max; attempt++ {
		if err := errors.CheckContext(ctx, "self-correction loop"); err != nil {
			return l.errored(res, err)
		}

		stage, strat, llm := l.attemptPlan(attempt)

		prompt, err := l.formatter.Format(stage, strat, item.Problem, item.CodeContext, prior)
		if err != nil {
			return l.errored(res, err)
		}

		answer, usage, latency, err := l.generate(ctx, llm, prompt)
		if err != nil {
			l.logger.Warn(ctx, "item %s attempt %d: generation failed: %v", item.ID, attempt, err)
			return l.errored(res, err)
		}

		verdict, err := l.eval.Check(answer, item.Check)
		if err != nil {
			return l.errored(res, err)
		}

		res.Attempts = append(res.Attempts, AttemptRecord{
			Index:    attempt,
			Stage:    stage,
			Strategy: strat,
			Model:    llm.ModelID(),
			Prompt:   prompt.User,
			Answer:   answer,
			Passed:   verdict.Passed,
			Feedback: verdict.Feedback,
			Usage:    usage,
			Latency:  latency,
		})

		l.logAttempt(ctx, item.ID, attempt, llm, prompt, answer, verdict)

		if verdict.Passed {
			res.Verdict = VerdictPassed
			return res
		}

		prior = &strategy.PriorAttempt{
			Answer:   evaluator.ExtractCode(answer),
			Feedback: verdict.Feedback,
		}
	}

	res.Verdict = VerdictExhausted
	return res
}

// attemptPlan selects stage, strategy, and model for the given attempt
// index. Attempt 1 is the initial stage; everything after is correction.
func (l *Loop) attemptPlan(attempt int) (strategy.Stage, strategy.Strategy, core.LLM) {
	if attempt == 1 {
		return strategy.StageInitial, l.cfg.InitialStrategy, l.initial
	}
	return strategy.StageCorrection, l.cfg.CorrectionStrategy, l.corrector
}

// generate performs one model call under the request timeout and the
// per-provider cap. The backend never retries; a failure surfaces here.
func (l *Loop) generate(ctx context.Context, llm core.LLM, prompt strategy.Prompt) (string, *core.TokenInfo, time.Duration, error) {
	if l.limiter != nil {
		if err := l.limiter.Acquire(ctx, llm.ProviderName()); err != nil {
			return "", nil, 0, err
		}
		defer l.limiter.Release(llm.ProviderName())
	}

	callCtx, cancel := context.WithTimeout(ctx, l.cfg.RequestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := llm.Generate(callCtx, prompt.User,
		core.WithSystemPrompt(prompt.System),
		core.WithTemperature(l.cfg.Temperature),
		core.WithTopP(l.cfg.TopP),
		core.WithMaxTokens(l.cfg.MaxTokens),
	)
	latency := time.Since(start)
	if err != nil {
		return "", nil, latency, err
	}
	return resp.Content, resp.Usage, latency, nil
}

func (l *Loop) errored(res ExperimentResult, err error) ExperimentResult {
	res.Verdict = VerdictErrored
	res.Err = err.Error()
	return res
}

// logAttempt emits per-attempt detail. Demo mode keeps the console quiet;
// the full records still land in the result sink either way.
func (l *Loop) logAttempt(ctx context.Context, itemID string, attempt int, llm core.LLM, prompt strategy.Prompt, answer string, verdict evaluator.Verdict) {
	ctx = logging.WithModelID(ctx, llm.ModelID().String())
	if l.cfg.Demo {
		l.logger.Debug(ctx, "item %s attempt %d passed=%v", itemID, attempt, verdict.Passed)
		return
	}
	l.logger.Info(ctx, "item %s attempt %d\n--- prompt ---\n%s\n--- answer ---\n%s\n--- passed: %v feedback: %s",
		itemID, attempt, prompt.User, answer, verdict.Passed, verdict.Feedback)
}
