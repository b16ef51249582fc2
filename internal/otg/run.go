package otg

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/verte-zerg/otgbench/internal/model"
)

type runConfig struct {
	maxSteps int
	logger   *slog.Logger
	observe  func(model.Sample)
}

// Option configures Run.
type Option func(*runConfig)

// WithMaxSteps stops the run with ErrStepLimit after n steps. Zero, the default,
// means no ceiling: a backend that never reports Finished or Error keeps the loop
// running, and bounding that is the caller's decision.
func WithMaxSteps(n int) Option {
	return func(c *runConfig) {
		c.maxSteps = n
	}
}

// WithLogger sets the logger for step diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = l
	}
}

// WithObserver registers a callback invoked with every recorded sample.
func WithObserver(fn func(model.Sample)) Option {
	return func(c *runConfig) {
		c.observe = fn
	}
}

// Run drives b from in until the backend reports Finished or Error.
//
// Each Working step feeds the produced state back into in through in.Advance; Run
// changes nothing else in the caller's state. Every successful step, the finishing one
// included, is recorded at elapsed time i*DeltaTime. An erroring step is not recorded:
// Run returns the samples collected so far together with a *StepError that wraps the
// backend error. Errors are never retried.
func Run(b Backend, in *model.Input, opts ...Option) (model.TimeSeries, error) {
	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if in == nil {
		return nil, fmt.Errorf("%w: nil input", model.ErrInvalidInput)
	}
	dt := b.DeltaTime()

	var series model.TimeSeries
	for step := 0; ; step++ {
		elapsed := float64(step) * dt
		if cfg.maxSteps > 0 && step >= cfg.maxSteps {
			logger.Warn("step limit reached", "steps", step, "elapsed", elapsed)
			return series, &StepError{Step: step, Time: elapsed, Err: ErrStepLimit}
		}

		var out model.Output
		status, err := b.Step(*in, &out)
		if err == nil && status == model.StatusError {
			err = fmt.Errorf("%w: backend reported an error without a reason", ErrNumerical)
		}
		if err != nil {
			logger.Warn("step failed", "step", step, "elapsed", elapsed, "err", err)
			return series, &StepError{Step: step, Time: elapsed, Err: err}
		}
		if out.NewCalculation {
			logger.Debug("profile planned", "step", step, "duration", out.Duration, "calculation", out.Calculation)
		}

		if status == model.StatusWorking {
			in.Advance(out)
		}
		sample := model.Sample{Time: elapsed, Output: out.Clone()}
		series = append(series, sample)
		if cfg.observe != nil {
			cfg.observe(sample)
		}

		if status == model.StatusFinished {
			logger.Debug("trajectory finished", "steps", len(series), "duration", out.Duration)
			return series, nil
		}
	}
}
