// Package scurve implements a time-synchronized double-S backend for rest-to-rest
// motions. All axes move along a common straight-line path whose normalized progress
// follows a seven-segment jerk-limited profile, so every axis starts and stops together.
package scurve

import (
	"fmt"
	"math"

	"github.com/verte-zerg/otgbench/internal/model"
	"github.com/verte-zerg/otgbench/internal/otg"
)

const finishEpsilon = 1e-12

// pathProfile is a double-S profile of the path parameter s from 0 to 1.
type pathProfile struct {
	jerk  float64
	alim  float64
	vlim  float64
	tj    float64
	ta    float64
	tv    float64
	total float64
}

// newPathProfile solves the rest-to-rest double-S times for a unit displacement under
// path limits v, a and j.
func newPathProfile(v, a, j float64) (pathProfile, error) {
	var tj, ta float64
	if v*j >= a*a {
		tj = a / j
		ta = tj + v/a
	} else {
		tj = math.Sqrt(v / j)
		ta = 2 * tj
	}
	tv := 1/v - ta
	if tv < 0 {
		tv = 0
		if 1 >= 2*a*a*a/(j*j) {
			tj = a / j
			ta = tj/2 + math.Sqrt(tj*tj/4+1/a)
		} else {
			tj = math.Cbrt(1 / (2 * j))
			ta = 2 * tj
		}
	}
	alim := j * tj
	p := pathProfile{
		jerk:  j,
		alim:  alim,
		vlim:  (ta - tj) * alim,
		tj:    tj,
		ta:    ta,
		tv:    tv,
		total: 2*ta + tv,
	}
	for _, x := range []float64{p.alim, p.vlim, p.tj, p.ta, p.tv, p.total} {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return pathProfile{}, fmt.Errorf("%w: double-S times are not finite", otg.ErrNumerical)
		}
	}
	return p, nil
}

// accel evaluates the acceleration phase at u in [0, ta].
func (p pathProfile) accel(u float64) (s, v, a float64) {
	j := p.jerk
	switch {
	case u <= p.tj:
		return j * u * u * u / 6, j * u * u / 2, j * u
	case u <= p.ta-p.tj:
		return p.alim / 6 * (3*u*u - 3*p.tj*u + p.tj*p.tj), p.alim * (u - p.tj/2), p.alim
	default:
		r := p.ta - u
		return p.vlim*p.ta/2 - p.vlim*r + j*r*r*r/6, p.vlim - j*r*r/2, j * r
	}
}

// at evaluates s, ds/dt and d2s/dt2 at time u in [0, total].
func (p pathProfile) at(u float64) (s, v, a float64) {
	switch {
	case u <= 0:
		return 0, 0, 0
	case u >= p.total:
		return 1, 0, 0
	case u <= p.ta:
		return p.accel(u)
	case u <= p.ta+p.tv:
		return p.vlim*p.ta/2 + p.vlim*(u-p.ta), p.vlim, 0
	default:
		s, v, a = p.accel(p.total - u)
		return 1 - s, v, -a
	}
}

// plan maps the path profile onto the axes, stretched by scale when a minimum
// duration is longer than the time-optimal profile.
type plan struct {
	start    model.KinematicState
	target   model.KinematicState
	delta    []float64
	path     pathProfile
	moving   bool
	scale    float64
	duration float64
}

func restToRest(in model.Input) error {
	for i := range in.Current {
		c, g := in.Current[i], in.Target[i]
		if c.Velocity != 0 || c.Acceleration != 0 || g.Velocity != 0 || g.Acceleration != 0 {
			return fmt.Errorf("%w: axis %d must start and end at rest", otg.ErrUnsupported, i)
		}
	}
	return nil
}

func newPlan(in model.Input) (*plan, error) {
	if err := in.Validate(); err != nil {
		return nil, otg.InfeasibleInput(err)
	}
	if err := restToRest(in); err != nil {
		return nil, err
	}

	p := &plan{
		start:  in.Current.Clone(),
		target: in.Target.Clone(),
		delta:  make([]float64, in.DegreesOfFreedom),
		scale:  1,
	}
	vS, aS, jS := math.Inf(1), math.Inf(1), math.Inf(1)
	for i := range p.delta {
		d := in.Target[i].Position - in.Current[i].Position
		p.delta[i] = d
		if d == 0 {
			continue
		}
		p.moving = true
		l := in.Limits[i]
		vS = math.Min(vS, l.MaxVelocity/math.Abs(d))
		aS = math.Min(aS, l.MaxAcceleration/math.Abs(d))
		jS = math.Min(jS, l.MaxJerk/math.Abs(d))
	}

	minDuration := 0.0
	if in.MinimumDuration != nil {
		minDuration = *in.MinimumDuration
	}
	if !p.moving {
		p.duration = minDuration
		return p, nil
	}

	path, err := newPathProfile(vS, aS, jS)
	if err != nil {
		return nil, err
	}
	p.path = path
	p.duration = path.total
	if minDuration > path.total {
		p.scale = minDuration / path.total
		p.duration = minDuration
	}
	return p, nil
}

// at evaluates the plan; the second result reports whether t reached the end.
func (p *plan) at(t float64) (model.KinematicState, bool) {
	if t >= p.duration-finishEpsilon {
		return p.target.Clone(), true
	}
	if !p.moving {
		return p.start.Clone(), false
	}
	s, v, a := p.path.at(t / p.scale)
	v /= p.scale
	a /= p.scale * p.scale
	state := make(model.KinematicState, len(p.delta))
	for i, d := range p.delta {
		state[i] = model.AxisState{
			Position:     p.start[i].Position + d*s,
			Velocity:     d * v,
			Acceleration: d * a,
		}
	}
	return state, false
}
