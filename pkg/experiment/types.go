package experiment

import (
	"time"

	"selfevolve/pkg/core"
	"selfevolve/pkg/strategy"
)

// FinalVerdict classifies how an item's loop ended.
type FinalVerdict string

const (
	// VerdictPassed means an attempt satisfied the item's check.
	VerdictPassed FinalVerdict = "PASSED"
	// VerdictExhausted means every permitted attempt failed the check.
	VerdictExhausted FinalVerdict = "EXHAUSTED"
	// VerdictErrored means a provider or evaluator error stopped the loop.
	// It is distinct from a failing evaluation.
	VerdictErrored FinalVerdict = "ERRORED"
)

// AttemptRecord captures one completed generate-and-evaluate cycle. A record
// is only appended once both halves finished; an aborted call leaves no
// partial record behind.
type AttemptRecord struct {
	Index    int               `json:"index"`
	Stage    strategy.Stage    `json:"stage"`
	Strategy strategy.Strategy `json:"strategy"`
	Model    core.ModelID      `json:"model"`
	Prompt   string            `json:"prompt"`
	Answer   string            `json:"answer"`
	Passed   bool              `json:"passed"`
	Feedback string            `json:"feedback,omitempty"`
	Usage    *core.TokenInfo   `json:"usage,omitempty"`
	Latency  time.Duration     `json:"latency_ns"`
}

// ExperimentResult is the finalized outcome for one benchmark item.
type ExperimentResult struct {
	ItemID   string          `json:"item_id"`
	Attempts []AttemptRecord `json:"attempts"`
	Verdict  FinalVerdict    `json:"verdict"`
	Err      string          `json:"error,omitempty"`
}

// Summary aggregates a whole run.
type Summary struct {
	Experiment       string             `json:"experiment"`
	RunID            string             `json:"run_id"`
	Total            int                `json:"total"`
	Passed           int                `json:"passed"`
	Exhausted        int                `json:"exhausted"`
	Errored          int                `json:"errored"`
	Skipped          int                `json:"skipped"`
	PassRate         float64            `json:"pass_rate"`
	AttemptHistogram map[int]int        `json:"attempt_histogram"`
	Results          []ExperimentResult `json:"results"`
}

// ResultSink persists finalized results. Implementations must be safe for
// concurrent use.
type ResultSink interface {
	HasResult(experiment, itemID string) (bool, error)
	SaveResult(experiment string, result ExperimentResult) error
}
