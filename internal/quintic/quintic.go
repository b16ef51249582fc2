package quintic

import (
	"fmt"
	"time"

	"github.com/verte-zerg/otgbench/internal/model"
	"github.com/verte-zerg/otgbench/internal/otg"
)

type settings struct {
	maxDuration float64
}

// Option configures the polynomial backends.
type Option func(*settings)

// WithMaxDuration sets the longest duration the search will consider.
func WithMaxDuration(d float64) Option {
	return func(s *settings) {
		if d > 0 {
			s.maxDuration = d
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{maxDuration: DefaultMaxDuration}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Quintic plans one synchronized polynomial profile and replays it while the input
// keeps following its own output. Any other input triggers a new plan.
//
// Invalid limits and a minimum duration beyond the search ceiling fail with
// otg.ErrInfeasible. When no single quintic up to the ceiling stays within the limits,
// Step fails with otg.ErrUnsupported: the motion may still be reachable by a
// multi-phase profile, just not by this backend.
type Quintic struct {
	dt       float64
	settings settings

	plan   *plan
	step   int
	expect model.Input
}

// New returns a polynomial backend with timestep dt seconds.
func New(dt float64, opts ...Option) *Quintic {
	return &Quintic{dt: dt, settings: newSettings(opts)}
}

// DeltaTime implements otg.Backend.
func (q *Quintic) DeltaTime() float64 {
	return q.dt
}

// Step implements otg.Backend.
func (q *Quintic) Step(in model.Input, out *model.Output) (model.Status, error) {
	start := time.Now()
	newCalc := false
	if q.plan == nil || !in.Equal(q.expect) {
		p, err := newPlan(in, q.settings.maxDuration)
		if err != nil {
			q.plan = nil
			return model.StatusError, err
		}
		q.plan = p
		q.step = 0
		newCalc = true
	}

	q.step++
	t := float64(q.step) * q.dt
	state, done := q.plan.at(t)
	if done {
		t = q.plan.duration
	}

	out.State = state
	out.Duration = q.plan.duration
	out.DeltaTime = q.dt
	out.Time = t
	out.NewCalculation = newCalc
	out.Calculation = time.Since(start)

	q.expect = in.Clone()
	q.expect.Current = state.Clone()
	if done {
		return model.StatusFinished, nil
	}
	return model.StatusWorking, nil
}

// AtTime implements otg.Sampler on the current profile.
func (q *Quintic) AtTime(t float64, out *model.Output) error {
	if q.plan == nil {
		return otg.ErrNoProfile
	}
	if t < 0 {
		return fmt.Errorf("negative sample time %g", t)
	}
	state, _ := q.plan.at(t)
	out.State = state
	out.Duration = q.plan.duration
	out.DeltaTime = q.dt
	out.Time = min(t, q.plan.duration)
	out.NewCalculation = false
	out.Calculation = 0
	return nil
}
