package evaluator

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"selfevolve/pkg/datasets"
	"selfevolve/pkg/errors"
)

// Verdict is the outcome of checking one answer. A failing verdict is not
// an error; it drives the correction loop.
type Verdict struct {
	Passed   bool
	Feedback string
}

// Evaluator decides pass/fail for an answer against an item's check spec.
// Implementations must be deterministic for a given (answer, spec) pair.
type Evaluator interface {
	Check(answer string, spec datasets.CheckSpec) (Verdict, error)
}

// CheckEvaluator evaluates declarative check specs. It extracts fenced
// code from markdown answers before comparing.
type CheckEvaluator struct{}

var _ Evaluator = (*CheckEvaluator)(nil)

func New() *CheckEvaluator {
	return &CheckEvaluator{}
}

var (
	codeFenceRe = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9]*)\n(.*?)\n```")
	numberRe    = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
)

// ExtractCode pulls the first fenced code block out of a markdown answer,
// falling back to the raw text when no fence is present.
func ExtractCode(answer string) string {
	if m := codeFenceRe.FindStringSubmatch(answer); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(answer)
}

// normalize prepares text for comparison: Unicode NFC, case folding, and
// whitespace collapsing. Model output varies in all three without the
// answer being wrong.
func normalize(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Check implements the Evaluator interface.
func (e *CheckEvaluator) Check(answer string, spec datasets.CheckSpec) (Verdict, error) {
	code := ExtractCode(answer)

	switch spec.Type {
	case "exact":
		if normalize(code) == normalize(spec.Value) {
			return Verdict{Passed: true}, nil
		}
		return e.fail(spec, fmt.Sprintf("executed answer %q does not match expected %q", code, spec.Value)), nil

	case "contains":
		if strings.Contains(normalize(code), normalize(spec.Value)) {
			return Verdict{Passed: true}, nil
		}
		return e.fail(spec, fmt.Sprintf("answer does not contain required fragment %q", spec.Value)), nil

	case "regex":
		re, err := regexp.Compile(spec.Value)
		if err != nil {
			return Verdict{}, errors.WithFields(
				errors.Wrap(err, errors.ValidationFailed, "invalid check regex"),
				errors.Fields{"pattern": spec.Value})
		}
		if re.MatchString(code) {
			return Verdict{Passed: true}, nil
		}
		return e.fail(spec, fmt.Sprintf("answer does not match pattern %q", spec.Value)), nil

	case "numeric":
		expected, err := strconv.ParseFloat(strings.TrimSpace(spec.Value), 64)
		if err != nil {
			return Verdict{}, errors.WithFields(
				errors.Wrap(err, errors.ValidationFailed, "numeric check value is not a number"),
				errors.Fields{"value": spec.Value})
		}
		// The final number in the answer is taken as the result.
		matches := numberRe.FindAllString(code, -1)
		if len(matches) == 0 {
			return e.fail(spec, "answer contains no numeric result"), nil
		}
		got, err := strconv.ParseFloat(matches[len(matches)-1], 64)
		if err != nil {
			return e.fail(spec, "answer contains no parseable numeric result"), nil
		}
		if math.Abs(got-expected) < 1e-6 {
			return Verdict{Passed: true}, nil
		}
		return e.fail(spec, fmt.Sprintf("executed result %v differs from expected %v", got, expected)), nil

	default:
		return Verdict{}, errors.WithFields(
			errors.New(errors.ValidationFailed, "unknown check type"),
			errors.Fields{"type": spec.Type, "expected": "exact|contains|regex|numeric"})
	}
}

func (e *CheckEvaluator) fail(spec datasets.CheckSpec, generated string) Verdict {
	feedback := spec.Feedback
	if feedback == "" {
		feedback = generated
	}
	return Verdict{Passed: false, Feedback: feedback}
}
