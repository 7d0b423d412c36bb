package experiment

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"selfevolve/pkg/datasets"
	"selfevolve/pkg/logging"
)

// Runner executes the self-correction loop over a sampled benchmark suite
// with a bounded worker pool. Results flow through a single aggregation
// point after the pool drains.
type Runner struct {
	cfg    Config
	loop   *Loop
	sink   ResultSink
	logger *logging.Logger
	runID  string
}

// NewRunner builds a runner. The sink may be nil, in which case results are
// kept in memory only and resume is disabled.
func NewRunner(cfg Config, loop *Loop, sink ResultSink) *Runner {
	return &Runner{
		cfg:    cfg,
		loop:   loop,
		sink:   sink,
		logger: logging.GetLogger(),
		runID:  uuid.NewString(),
	}
}

func (r *Runner) RunID() string { return r.runID }

// Run samples the suite deterministically, processes every selected item,
// and aggregates a summary. Per-item failures never abort the run; only a
// fully canceled context cuts it short, and items not yet started are
// simply left out of the totals.
func (r *Runner) Run(ctx context.Context, items []datasets.BenchmarkItem) (*Summary, error) {
	sampled := datasets.Sample(items, r.cfg.SamplingFraction, r.cfg.Seed)

	summary := &Summary{
		Experiment:       r.cfg.Name,
		RunID:            r.runID,
		AttemptHistogram: make(map[int]int),
	}

	pending := make([]datasets.BenchmarkItem, 0, len(sampled))
	for _, item := range sampled {
		done, err := r.hasResult(item.ID)
		if err != nil {
			return nil, err
		}
		if done {
			summary.Skipped++
			continue
		}
		pending = append(pending, item)
	}
	if summary.Skipped > 0 {
		r.logger.Info(ctx, "experiment %s: resuming, %d of %d sampled items already finalized",
			r.cfg.Name, summary.Skipped, len(sampled))
	}

	results := make([]*ExperimentResult, len(pending))
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(r.cfg.Concurrency)
	for i, item := range pending {
		i, item := i, item
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			res := r.loop.Run(ctx, item)
			mu.Lock()
			results[i] = &res
			mu.Unlock()
		})
	}
	p.Wait()

	for _, res := range results {
		if res == nil {
			continue
		}
		r.record(ctx, summary, *res)
	}

	if summary.Total > 0 {
		summary.PassRate = float64(summary.Passed) / float64(summary.Total)
	}

	r.logger.Info(ctx, "experiment %s (run %s): %d items, %d passed, %d exhausted, %d errored, pass rate %.2f",
		r.cfg.Name, r.runID, summary.Total, summary.Passed, summary.Exhausted, summary.Errored, summary.PassRate)

	return summary, ctx.Err()
}

func (r *Runner) hasResult(itemID string) (bool, error) {
	if r.sink == nil {
		return false, nil
	}
	return r.sink.HasResult(r.cfg.Name, itemID)
}

// record folds one finalized result into the summary and persists it.
func (r *Runner) record(ctx context.Context, summary *Summary, res ExperimentResult) {
	summary.Total++
	summary.Results = append(summary.Results, res)

	switch res.Verdict {
	case VerdictPassed:
		summary.Passed++
		summary.AttemptHistogram[len(res.Attempts)]++
	case VerdictExhausted:
		summary.Exhausted++
	case VerdictErrored:
		summary.Errored++
	}

	if r.sink != nil {
		if err := r.sink.SaveResult(r.cfg.Name, res); err != nil {
			r.logger.Warn(ctx, "failed to persist result for item %s: %v", res.ItemID, err)
		}
	}
}
