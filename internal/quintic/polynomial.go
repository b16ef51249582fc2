// Package quintic implements polynomial trajectory backends. Every axis follows a
// fifth-order polynomial that matches position, velocity and acceleration at both ends;
// all axes share one duration.
package quintic

import (
	"fmt"
	"math"
	"sort"

	"github.com/verte-zerg/otgbench/internal/model"
	"github.com/verte-zerg/otgbench/internal/otg"
)

const (
	// DefaultMaxDuration bounds the duration search in seconds.
	DefaultMaxDuration = 1e4

	minSearchDuration = 1e-4
	searchGrowth      = 1.05
	bisectIterations  = 60
	rootIterations    = 200
	limitSlack        = 1e-12
	finishEpsilon     = 1e-12
)

// poly holds the coefficients c0..c5 of p(t) = sum c_k t^k.
type poly [6]float64

// fit returns the quintic that moves from start to goal in exactly T seconds.
func fit(start, goal model.AxisState, T float64) poly {
	p0, v0, a0 := start.Position, start.Velocity, start.Acceleration
	pf, vf, af := goal.Position, goal.Velocity, goal.Acceleration
	T2 := T * T
	T3 := T2 * T
	T4 := T3 * T
	T5 := T4 * T
	d := pf - p0
	return poly{
		p0,
		v0,
		a0 / 2,
		(20*d - (8*vf+12*v0)*T - (3*a0-af)*T2) / (2 * T3),
		(-30*d + (14*vf+16*v0)*T + (3*a0-2*af)*T2) / (2 * T4),
		(12*d - 6*(vf+v0)*T - (a0-af)*T2) / (2 * T5),
	}
}

func (c poly) finite() bool {
	for _, v := range c {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (c poly) eval(t float64) model.AxisState {
	return model.AxisState{
		Position:     c[0] + t*(c[1]+t*(c[2]+t*(c[3]+t*(c[4]+t*c[5])))),
		Velocity:     c.velocity(t),
		Acceleration: c.accel(t),
	}
}

func (c poly) velocity(t float64) float64 {
	return c[1] + t*(2*c[2]+t*(3*c[3]+t*(4*c[4]+t*5*c[5])))
}

func (c poly) accel(t float64) float64 {
	return 2*c[2] + t*(6*c[3]+t*(12*c[4]+t*20*c[5]))
}

func (c poly) jerk(t float64) float64 {
	return 6*c[3] + t*(24*c[4]+t*60*c[5])
}

// peakJerk is exact: jerk is a quadratic in t.
func (c poly) peakJerk(T float64) float64 {
	peak := math.Max(math.Abs(c.jerk(0)), math.Abs(c.jerk(T)))
	if c[5] != 0 {
		if tv := -24 * c[4] / (120 * c[5]); tv > 0 && tv < T {
			peak = math.Max(peak, math.Abs(c.jerk(tv)))
		}
	}
	return peak
}

// peakAccel is exact: acceleration extrema lie at the roots of the jerk quadratic.
func (c poly) peakAccel(T float64) float64 {
	peak := math.Max(math.Abs(c.accel(0)), math.Abs(c.accel(T)))
	for _, r := range quadraticRoots(60*c[5], 24*c[4], 6*c[3]) {
		if r > 0 && r < T {
			peak = math.Max(peak, math.Abs(c.accel(r)))
		}
	}
	return peak
}

// peakVelocity is exact up to root bracketing: velocity extrema lie at the roots of
// the acceleration cubic, which is monotonic between the roots of the jerk quadratic.
func (c poly) peakVelocity(T float64) float64 {
	peak := math.Max(math.Abs(c.velocity(0)), math.Abs(c.velocity(T)))
	for _, r := range c.accelRoots(T) {
		peak = math.Max(peak, math.Abs(c.velocity(r)))
	}
	return peak
}

// accelRoots returns the roots of the acceleration in (0, T).
func (c poly) accelRoots(T float64) []float64 {
	edges := []float64{0}
	for _, r := range quadraticRoots(60*c[5], 24*c[4], 6*c[3]) {
		if r > 0 && r < T {
			edges = append(edges, r)
		}
	}
	sort.Float64s(edges)
	edges = append(edges, T)

	var roots []float64
	for i := 0; i+1 < len(edges); i++ {
		lo, hi := edges[i], edges[i+1]
		alo, ahi := c.accel(lo), c.accel(hi)
		if alo == 0 {
			roots = append(roots, lo)
			continue
		}
		if math.Signbit(alo) == math.Signbit(ahi) {
			continue
		}
		for k := 0; k < rootIterations && hi-lo > 0; k++ {
			mid := (lo + hi) / 2
			if mid == lo || mid == hi {
				break
			}
			if math.Signbit(c.accel(mid)) == math.Signbit(alo) {
				lo = mid
			} else {
				hi = mid
			}
		}
		roots = append(roots, lo, hi)
	}
	return roots
}

func quadraticRoots(a, b, c float64) []float64 {
	if a == 0 {
		if b == 0 {
			return nil
		}
		return []float64{-c / b}
	}
	disc := b*b - 4*a*c
	if disc < 0 {
		return nil
	}
	sq := math.Sqrt(disc)
	// Avoids cancellation when b and sq are close.
	q := -0.5 * (b + math.Copysign(sq, b))
	roots := []float64{q / a}
	if q != 0 {
		roots = append(roots, c/q)
	}
	return roots
}

// axisBounds are the effective limits of one axis. Velocity and acceleration bounds
// are widened to the boundary values so a start outside the limits can still be
// brought back.
type axisBounds struct {
	velocity     float64
	acceleration float64
	jerk         float64
}

func boundsFor(in model.Input) []axisBounds {
	out := make([]axisBounds, in.DegreesOfFreedom)
	for i := range out {
		c, g, l := in.Current[i], in.Target[i], in.Limits[i]
		out[i] = axisBounds{
			velocity:     math.Max(l.MaxVelocity, math.Max(math.Abs(c.Velocity), math.Abs(g.Velocity))),
			acceleration: math.Max(l.MaxAcceleration, math.Max(math.Abs(c.Acceleration), math.Abs(g.Acceleration))),
			jerk:         l.MaxJerk,
		}
	}
	return out
}

func within(c poly, T float64, b axisBounds) bool {
	if c.peakJerk(T) > b.jerk*(1+limitSlack) {
		return false
	}
	if c.peakAccel(T) > b.acceleration*(1+limitSlack) {
		return false
	}
	return c.peakVelocity(T) <= b.velocity*(1+limitSlack)
}

// plan is a synchronized set of per-axis polynomials.
type plan struct {
	duration float64
	axes     []poly
	target   model.KinematicState
}

// at evaluates the plan; the second result reports whether t reached the end, in
// which case the exact target is returned.
func (p *plan) at(t float64) (model.KinematicState, bool) {
	if t >= p.duration-finishEpsilon {
		return p.target.Clone(), true
	}
	if t < 0 {
		t = 0
	}
	state := make(model.KinematicState, len(p.axes))
	for i, c := range p.axes {
		state[i] = c.eval(t)
	}
	return state, false
}

func fitAll(from, to model.KinematicState, T float64) ([]poly, error) {
	axes := make([]poly, len(from))
	for i := range from {
		c := fit(from[i], to[i], T)
		if !c.finite() {
			return nil, fmt.Errorf("%w: axis %d polynomial is not finite for duration %g", otg.ErrNumerical, i, T)
		}
		axes[i] = c
	}
	return axes, nil
}

// newPlan validates the input and finds the shortest synchronized duration, not below
// the minimum duration, for which every axis respects its bounds.
func newPlan(in model.Input, maxDuration float64) (*plan, error) {
	if err := in.Validate(); err != nil {
		return nil, otg.InfeasibleInput(err)
	}
	T, err := searchDuration(in, maxDuration)
	if err != nil {
		return nil, err
	}
	p := &plan{duration: T, target: in.Target.Clone()}
	if T == 0 {
		return p, nil
	}
	p.axes, err = fitAll(in.Current, in.Target, T)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func searchDuration(in model.Input, maxDuration float64) (float64, error) {
	minDuration := 0.0
	if in.MinimumDuration != nil {
		minDuration = *in.MinimumDuration
	}
	if in.Current.Equal(in.Target) {
		allRest := true
		for _, s := range in.Target {
			if s.Velocity != 0 || s.Acceleration != 0 {
				allRest = false
				break
			}
		}
		if allRest && minDuration == 0 {
			return 0, nil
		}
	}
	if minDuration > maxDuration {
		return 0, fmt.Errorf("%w: minimum duration %g exceeds search ceiling %g", otg.ErrInfeasible, minDuration, maxDuration)
	}

	bounds := boundsFor(in)
	feasible := func(T float64) bool {
		for i := range bounds {
			c := fit(in.Current[i], in.Target[i], T)
			if !c.finite() || !within(c, T, bounds[i]) {
				return false
			}
		}
		return true
	}

	T := math.Max(minDuration, minSearchDuration)
	prev := 0.0
	for !feasible(T) {
		prev = T
		T *= searchGrowth
		if T > maxDuration {
			return 0, fmt.Errorf("%w: no single quintic up to %gs fits within the limits", otg.ErrUnsupported, maxDuration)
		}
	}
	if prev == 0 {
		return T, nil
	}
	lo, hi := prev, T
	for i := 0; i < bisectIterations; i++ {
		mid := (lo + hi) / 2
		if feasible(mid) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}
