package strategy

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"selfevolve/pkg/errors"
)

// Strategy selects the prompting style for a generation call.
type Strategy string

const (
	// COT elicits step-by-step reasoning before the final answer.
	COT Strategy = "COT"
	// ZeroShot requests the answer directly with no reasoning scaffold.
	ZeroShot Strategy = "ZEROSHOT"
)

// Parse converts a CLI strategy name into a Strategy.
func Parse(name string) (Strategy, error) {
	switch strings.ToUpper(name) {
	case string(COT):
		return COT, nil
	case string(ZeroShot):
		return ZeroShot, nil
	default:
		return "", errors.WithFields(
			errors.New(errors.InvalidConfig, "unknown strategy"),
			errors.Fields{"strategy": name, "expected": "COT|ZEROSHOT"})
	}
}

// Stage distinguishes the first generation from correction rounds.
type Stage string

const (
	StageInitial    Stage = "initial"
	StageCorrection Stage = "correction"
)

// Prompt is a fully formatted prompt pair ready for a model call.
type Prompt struct {
	System string
	User   string
}

// PriorAttempt carries the failing answer and evaluator feedback that a
// correction prompt embeds.
type PriorAttempt struct {
	Answer   string
	Feedback string
}

const (
	zeroShotSystem = "You are a helpful code debugging expert that can understand and solve " +
		"programming problems. You can analyze code, spot defects, and guide users toward " +
		"correct and efficient solutions."

	cotSystem = "You are a helpful Chain-of-Thought expert that understands the reasoning " +
		"behind programming problems. Work through problems step by step, making each " +
		"intermediate step explicit before committing to a final answer."

	taskTemplate = `Given the problem description with the code, you need to fulfill the task by writing the code that solves the problem.
The problem is: %s
You will replace the code inside the [insert] block within the following code context:
` + "```python\n%s\n```" + `
The context shows which libraries are used, the input/output format, and how your code will be tested. Do not import additional libraries.
Make sure your code is correct and complete to solve the problem.`

	cotSuffix = `
Reason about the problem step by step before writing the code: restate what the problem requires, work out the intermediate steps one at a time, and only then produce the final code.`

	tracebackSuffix = `
In the previous attempt, you generated the following code:
` + "```\n%s\n```" + `
However, the code has an error. The error message is:
` + "```\n%s\n```" + `
Please analyze the error message and fix the code accordingly.`

	mismatchSuffix = `
In the previous attempt, you generated the following code:
` + "```\n%s\n```" + `
The code executed successfully but failed the test case. Analyze the difference between the expected output and the generated output to understand the problem.
` + "```\n%s\n```"

	genericSuffix = `
In the previous attempt, you generated the following code:
` + "```\n%s\n```" + `
However, the system has given you the following instruction:
` + "```\n%s\n```" + `
Please comply with the instruction and generate the code accordingly.`
)

// Formatter builds prompts for the two stages and two strategies. It is a
// pure function of its inputs.
type Formatter struct {
	maxFeedbackBytes int
}

type Option func(*Formatter)

// WithMaxFeedbackBytes bounds the feedback text embedded in correction
// prompts. Long tracebacks otherwise dominate the context window.
func WithMaxFeedbackBytes(n int) Option {
	return func(f *Formatter) {
		f.maxFeedbackBytes = n
	}
}

func NewFormatter(opts ...Option) *Formatter {
	f := &Formatter{maxFeedbackBytes: 16384}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Format produces the prompt for one attempt. For the correction stage a
// prior attempt is required; for the initial stage it is ignored.
func (f *Formatter) Format(stage Stage, strat Strategy, problem, codeContext string, prior *PriorAttempt) (Prompt, error) {
	var system string
	switch strat {
	case ZeroShot:
		system = zeroShotSystem
	case COT:
		system = cotSystem
	default:
		return Prompt{}, errors.WithFields(
			errors.New(errors.InvalidConfig, "unknown strategy"),
			errors.Fields{"strategy": string(strat)})
	}

	user := fmt.Sprintf(taskTemplate, problem, codeContext)

	switch stage {
	case StageInitial:
		// Nothing to add beyond the task itself.
	case StageCorrection:
		if prior == nil {
			return Prompt{}, errors.New(errors.InvalidConfig, "correction stage requires a prior attempt")
		}
		feedback := f.truncateFeedback(prior.Feedback)
		user += f.correctionSuffix(prior.Answer, feedback)
	default:
		return Prompt{}, errors.WithFields(
			errors.New(errors.InvalidConfig, "unknown stage"),
			errors.Fields{"stage": string(stage)})
	}

	if strat == COT {
		user += cotSuffix
	}

	return Prompt{System: system, User: user}, nil
}

// correctionSuffix picks framing based on the shape of the feedback: a
// runtime traceback, an executed-vs-expected mismatch, or a generic
// instruction.
func (f *Formatter) correctionSuffix(answer, feedback string) string {
	lower := strings.ToLower(feedback)
	switch {
	case strings.Contains(lower, "traceback"):
		return fmt.Sprintf(tracebackSuffix, answer, feedback)
	case strings.Contains(lower, "executed") && strings.Contains(lower, "expected"):
		return fmt.Sprintf(mismatchSuffix, answer, feedback)
	default:
		return fmt.Sprintf(genericSuffix, answer, feedback)
	}
}

func (f *Formatter) truncateFeedback(feedback string) string {
	if len(feedback) <= f.maxFeedbackBytes {
		return feedback
	}
	// Back up to a rune boundary so the cut never produces invalid UTF-8.
	cut := f.maxFeedbackBytes
	for cut > 0 && !utf8.RuneStart(feedback[cut]) {
		cut--
	}
	return feedback[:cut]
}
