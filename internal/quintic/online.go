package quintic

import (
	"fmt"
	"time"

	"github.com/verte-zerg/otgbench/internal/model"
	"github.com/verte-zerg/otgbench/internal/otg"
)

// Online plans a duration once per goal and then, every cycle, fits a new polynomial
// from the fed-back current state to the target over the remaining time. Changes to
// the current state between steps are absorbed without a new duration search; a new
// target, limits or minimum duration start over.
type Online struct {
	dt       float64
	settings settings

	goal     model.Input
	planned  bool
	duration float64
	step     int
}

// NewOnline returns an online polynomial backend with timestep dt seconds.
func NewOnline(dt float64, opts ...Option) *Online {
	return &Online{dt: dt, settings: newSettings(opts)}
}

// DeltaTime implements otg.Backend.
func (o *Online) DeltaTime() float64 {
	return o.dt
}

// Step implements otg.Backend.
func (o *Online) Step(in model.Input, out *model.Output) (model.Status, error) {
	start := time.Now()
	if len(in.Current) != in.DegreesOfFreedom || len(in.Target) != in.DegreesOfFreedom {
		o.planned = false
		return model.StatusError, otg.InfeasibleInput(fmt.Errorf("%w: current has %d axes, target %d, expected %d",
			model.ErrInvalidInput, len(in.Current), len(in.Target), in.DegreesOfFreedom))
	}
	newCalc := false
	if !o.planned || !in.SameGoal(o.goal) {
		p, err := newPlan(in, o.settings.maxDuration)
		if err != nil {
			o.planned = false
			return model.StatusError, err
		}
		o.goal = in.Clone()
		o.duration = p.duration
		o.planned = true
		o.step = 0
		newCalc = true
	}

	remaining := o.duration - float64(o.step)*o.dt
	o.step++

	out.Duration = o.duration
	out.DeltaTime = o.dt
	out.NewCalculation = newCalc
	if remaining <= o.dt+finishEpsilon {
		out.State = in.Target.Clone()
		out.Time = o.duration
		out.Calculation = time.Since(start)
		return model.StatusFinished, nil
	}

	axes, err := fitAll(in.Current, in.Target, remaining)
	if err != nil {
		o.planned = false
		return model.StatusError, err
	}
	state := make(model.KinematicState, len(axes))
	for i, c := range axes {
		state[i] = c.eval(o.dt)
	}
	out.State = state
	out.Time = float64(o.step) * o.dt
	out.Calculation = time.Since(start)
	return model.StatusWorking, nil
}
