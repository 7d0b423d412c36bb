package experiment

import (
	"time"

	"github.com/go-playground/validator/v10"

	"selfevolve/pkg/core"
	"selfevolve/pkg/errors"
	"selfevolve/pkg/llms"
	"selfevolve/pkg/strategy"
)

// Config holds everything one experiment run needs. It is constructed once
// from CLI input and never mutated; components receive it by value.
type Config struct {
	Name             string  `json:"experiment_name" validate:"required"`
	DatasetPath      string  `json:"dataset" validate:"required"`
	SamplingFraction float64 `json:"sampling_fraction" validate:"gt=0,lte=1"`
	Seed             int64   `json:"seed"`

	InitialStrategy    strategy.Strategy `json:"initial_strategy" validate:"required,strategy"`
	CorrectionStrategy strategy.Strategy `json:"correction_strategy" validate:"required,strategy"`
	InitialModel       core.ModelID      `json:"initial_model" validate:"required,model_route"`
	CorrectionModel    core.ModelID      `json:"correction_model" validate:"required,model_route"`

	Temperature float64 `json:"temperature" validate:"gte=0,lte=2"`
	TopP        float64 `json:"top_p" validate:"gte=0,lte=1"`
	MaxTokens   int     `json:"max_tokens" validate:"gt=0"`

	SelfCorrection            bool `json:"self_correction"`
	MaxSelfCorrectionAttempts int  `json:"max_self_correction_attempts" validate:"gte=0"`

	Demo bool `json:"demo"`

	Concurrency         int           `json:"concurrency" validate:"gte=1"`
	ProviderConcurrency int           `json:"provider_concurrency" validate:"gte=1"`
	RequestTimeout      time.Duration `json:"request_timeout_ns" validate:"gt=0"`

	ArtifactDir string `json:"artifact_dir"`
}

// DefaultConfig returns a Config with the defaults the CLI advertises.
func DefaultConfig() Config {
	return Config{
		SamplingFraction:          1.0,
		Seed:                      42,
		InitialStrategy:           strategy.ZeroShot,
		CorrectionStrategy:        strategy.COT,
		Temperature:               0.9,
		TopP:                      0.9,
		MaxTokens:                 4096,
		MaxSelfCorrectionAttempts: 5,
		Concurrency:               1,
		ProviderConcurrency:       4,
		RequestTimeout:            2 * time.Minute,
		ArtifactDir:               "artifacts",
	}
}

var configValidator = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New()

	// Strategy names must parse.
	_ = v.RegisterValidation("strategy", func(fl validator.FieldLevel) bool {
		_, err := strategy.Parse(fl.Field().String())
		return err == nil
	})

	// Model IDs must route to a known backend.
	_ = v.RegisterValidation("model_route", func(fl validator.FieldLevel) bool {
		_, _, err := llms.Route(core.ModelID(fl.Field().String()))
		return err == nil
	})

	return v
}

// Validate checks the configuration before any item is processed.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			first := errs[0]
			return errors.WithFields(
				errors.New(errors.InvalidConfig, "invalid experiment configuration"),
				errors.Fields{"field": first.Field(), "constraint": first.Tag(), "value": first.Value()})
		}
		return errors.Wrap(err, errors.InvalidConfig, "invalid experiment configuration")
	}
	return nil
}
