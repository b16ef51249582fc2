// Package diag analyzes a recorded run: it reconstructs jerk from the acceleration
// samples, decides which limit reference lines fall inside the plotted range and
// checks the samples against the limits.
package diag

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/verte-zerg/otgbench/internal/model"
)

// DefaultFactor is the display headroom used to decide whether a limit line is drawn.
const DefaultFactor = 1.4

// ErrEmptySeries is returned when there is nothing to analyze.
var ErrEmptySeries = errors.New("diag: empty time series")

// Signal identifies a derived kinematic signal with a configured limit.
type Signal int

// Limited signals.
const (
	Velocity Signal = iota
	Acceleration
	Jerk
)

// Signals lists the limited signals in display order.
var Signals = []Signal{Velocity, Acceleration, Jerk}

func (s Signal) String() string {
	switch s {
	case Velocity:
		return "velocity"
	case Acceleration:
		return "acceleration"
	case Jerk:
		return "jerk"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// Symbol is the short name used in plots and tables.
func (s Signal) Symbol() string {
	switch s {
	case Velocity:
		return "v"
	case Acceleration:
		return "a"
	case Jerk:
		return "j"
	default:
		return "?"
	}
}

// Limit returns the magnitude bound of s.
func (s Signal) Limit(l model.Limits) float64 {
	switch s {
	case Velocity:
		return l.MaxVelocity
	case Acceleration:
		return l.MaxAcceleration
	case Jerk:
		return l.MaxJerk
	default:
		return math.NaN()
	}
}

// Scope selects the range a limit is compared against.
type Scope int

const (
	// ScopeSignal compares each limit with the extremes of its own signal.
	ScopeSignal Scope = iota
	// ScopeAxis compares every limit with the extremes of all plotted signals of the
	// axis, position included, which is the value range of a shared-scale plot.
	ScopeAxis
)

func (s Scope) String() string {
	if s == ScopeAxis {
		return "axis"
	}
	return "signal"
}

// ParseScope accepts "signal" or "axis".
func ParseScope(v string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "signal":
		return ScopeSignal, nil
	case "axis":
		return ScopeAxis, nil
	default:
		return 0, fmt.Errorf("unknown near-limit scope %q (use signal or axis)", v)
	}
}

// Options tune the analysis.
type Options struct {
	// Factor is the headroom multiplier of the near-limit rule.
	Factor float64
	Scope  Scope
	// Tolerance is the slack allowed by the violation check.
	Tolerance float64
}

// DefaultOptions returns the factor 1.4, per-signal scope and a 1e-9 tolerance.
func DefaultOptions() Options {
	return Options{Factor: DefaultFactor, Scope: ScopeSignal, Tolerance: 1e-9}
}

// ReconstructJerk differentiates the acceleration samples. Interior samples use the
// backward difference (acc[i]-acc[i-1])/dt; the first and last samples are zero.
func ReconstructJerk(acc []float64, dt float64) []float64 {
	jerk := make([]float64, len(acc))
	for i := 1; i < len(acc)-1; i++ {
		jerk[i] = (acc[i] - acc[i-1]) / dt
	}
	return jerk
}

// NearLimit classifies the limit lines +limit and -limit against the value range
// [lo, hi]. The upper line is near when limit < factor*hi and the lower one when
// -limit > factor*lo. The lower rule is the upper rule applied to the negated range.
func NearLimit(limit, hi, lo, factor float64) (upper, lower bool) {
	return limit < factor*hi, -limit > factor*lo
}

// LimitFlag is the near-limit classification of one signal.
type LimitFlag struct {
	Signal Signal
	// Upper and Lower are the signed limit values the range was compared against.
	Upper     float64
	Lower     float64
	Max       float64
	Min       float64
	NearUpper bool
	NearLower bool
}

// AxisReport holds the columns of one axis and its limit classification.
type AxisReport struct {
	Axis         int
	Limits       model.Limits
	Position     []float64
	Velocity     []float64
	Acceleration []float64
	Jerk         []float64
	// Flags is indexed by Signal.
	Flags [3]LimitFlag
	// Min and Max span every column of the axis.
	Min float64
	Max float64
}

// Series returns the column of a limited signal.
func (a AxisReport) Series(s Signal) []float64 {
	switch s {
	case Velocity:
		return a.Velocity
	case Acceleration:
		return a.Acceleration
	case Jerk:
		return a.Jerk
	default:
		return nil
	}
}

// Report is the diagnostic result of one run.
type Report struct {
	Times     []float64
	DeltaTime float64
	Options   Options
	Axes      []AxisReport
}

// Analyze builds the report of series recorded with timestep dt.
func Analyze(series model.TimeSeries, limits []model.Limits, dt float64, opts Options) (Report, error) {
	if len(series) == 0 {
		return Report{}, ErrEmptySeries
	}
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt <= 0 {
		return Report{}, fmt.Errorf("delta time must be finite and > 0, got %g", dt)
	}
	if math.IsNaN(opts.Factor) || opts.Factor <= 0 {
		return Report{}, fmt.Errorf("near-limit factor must be > 0, got %g", opts.Factor)
	}
	dof := len(series[0].Output.State)
	if len(limits) != dof {
		return Report{}, fmt.Errorf("expected %d limit triples, got %d", dof, len(limits))
	}
	for i, s := range series {
		if len(s.Output.State) != dof {
			return Report{}, fmt.Errorf("sample %d has %d axes, expected %d", i, len(s.Output.State), dof)
		}
	}

	report := Report{
		Times:     series.Times(),
		DeltaTime: dt,
		Options:   opts,
		Axes:      make([]AxisReport, dof),
	}
	for axis := range report.Axes {
		pos, vel, acc := series.Axis(axis)
		ar := AxisReport{
			Axis:         axis,
			Limits:       limits[axis],
			Position:     pos,
			Velocity:     vel,
			Acceleration: acc,
			Jerk:         ReconstructJerk(acc, dt),
		}
		ar.Min, ar.Max = math.Inf(1), math.Inf(-1)
		for _, col := range [][]float64{ar.Position, ar.Velocity, ar.Acceleration, ar.Jerk} {
			lo, hi := extremes(col)
			ar.Min = math.Min(ar.Min, lo)
			ar.Max = math.Max(ar.Max, hi)
		}
		for _, sig := range Signals {
			limit := sig.Limit(ar.Limits)
			lo, hi := extremes(ar.Series(sig))
			rangeLo, rangeHi := lo, hi
			if opts.Scope == ScopeAxis {
				rangeLo, rangeHi = ar.Min, ar.Max
			}
			upper, lower := NearLimit(limit, rangeHi, rangeLo, opts.Factor)
			ar.Flags[sig] = LimitFlag{
				Signal:    sig,
				Upper:     limit,
				Lower:     -limit,
				Max:       hi,
				Min:       lo,
				NearUpper: upper,
				NearLower: lower,
			}
		}
		report.Axes[axis] = ar
	}
	return report, nil
}

func extremes(values []float64) (lo, hi float64) {
	if len(values) == 0 {
		return 0, 0
	}
	lo, hi = values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// Violation is one sample whose magnitude exceeds its limit.
type Violation struct {
	Axis   int
	Signal Signal
	Index  int
	Time   float64
	Value  float64
	Limit  float64
}

// Violations returns every sample with |value| > limit + tol, ordered by axis, signal
// and time. A negative tol uses the report's tolerance.
func (r Report) Violations(tol float64) []Violation {
	if tol < 0 {
		tol = r.Options.Tolerance
	}
	var out []Violation
	for _, ar := range r.Axes {
		for _, sig := range Signals {
			limit := sig.Limit(ar.Limits)
			for i, v := range ar.Series(sig) {
				if math.Abs(v) > limit+tol {
					out = append(out, Violation{
						Axis:   ar.Axis,
						Signal: sig,
						Index:  i,
						Time:   r.Times[i],
						Value:  v,
						Limit:  limit,
					})
				}
			}
		}
	}
	return out
}

// NearCount returns how many limit lines are classified as near.
func (r Report) NearCount() int {
	n := 0
	for _, ar := range r.Axes {
		for _, f := range ar.Flags {
			if f.NearUpper {
				n++
			}
			if f.NearLower {
				n++
			}
		}
	}
	return n
}
