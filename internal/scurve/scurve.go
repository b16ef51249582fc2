package scurve

import (
	"fmt"
	"time"

	"github.com/verte-zerg/otgbench/internal/model"
	"github.com/verte-zerg/otgbench/internal/otg"
)

// SCurve plans a synchronized double-S profile and replays it. A new plan is made
// whenever the input stops following the backend's own output; since plans are
// rest-to-rest only, a change in the middle of a motion is reported as unsupported.
type SCurve struct {
	dt     float64
	plan   *plan
	step   int
	expect model.Input
}

// New returns a double-S backend with timestep dt seconds.
func New(dt float64) *SCurve {
	return &SCurve{dt: dt}
}

// DeltaTime implements otg.Backend.
func (c *SCurve) DeltaTime() float64 {
	return c.dt
}

// Step implements otg.Backend.
func (c *SCurve) Step(in model.Input, out *model.Output) (model.Status, error) {
	start := time.Now()
	newCalc := false
	if c.plan == nil || !in.Equal(c.expect) {
		p, err := newPlan(in)
		if err != nil {
			c.plan = nil
			return model.StatusError, err
		}
		c.plan = p
		c.step = 0
		newCalc = true
	}

	c.step++
	t := float64(c.step) * c.dt
	state, done := c.plan.at(t)
	if done {
		t = c.plan.duration
	}

	out.State = state
	out.Duration = c.plan.duration
	out.DeltaTime = c.dt
	out.Time = t
	out.NewCalculation = newCalc
	out.Calculation = time.Since(start)

	c.expect = in.Clone()
	c.expect.Current = state.Clone()
	if done {
		return model.StatusFinished, nil
	}
	return model.StatusWorking, nil
}

// AtTime implements otg.Sampler.
func (c *SCurve) AtTime(t float64, out *model.Output) error {
	if c.plan == nil {
		return otg.ErrNoProfile
	}
	if t < 0 {
		return fmt.Errorf("negative sample time %g", t)
	}
	state, _ := c.plan.at(t)
	out.State = state
	out.Duration = c.plan.duration
	out.DeltaTime = c.dt
	out.Time = min(t, c.plan.duration)
	out.NewCalculation = false
	out.Calculation = 0
	return nil
}
