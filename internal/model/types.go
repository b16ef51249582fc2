// Package model defines shared data structures.
package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrInvalidInput reports a malformed input descriptor.
var ErrInvalidInput = errors.New("invalid input")

// AxisState is the kinematic state of one degree of freedom.
type AxisState struct {
	Position     float64
	Velocity     float64
	Acceleration float64
}

// KinematicState holds one AxisState per degree of freedom.
type KinematicState []AxisState

// NewKinematicState returns a zeroed state with dof axes.
func NewKinematicState(dof int) KinematicState {
	return make(KinematicState, dof)
}

// DOF returns the number of axes.
func (s KinematicState) DOF() int {
	return len(s)
}

// Clone returns a copy that shares no memory with s.
func (s KinematicState) Clone() KinematicState {
	if s == nil {
		return nil
	}
	out := make(KinematicState, len(s))
	copy(out, s)
	return out
}

// Equal reports whether both states have the same axes with identical values.
func (s KinematicState) Equal(other KinematicState) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Positions returns the position column.
func (s KinematicState) Positions() []float64 {
	out := make([]float64, len(s))
	for i, a := range s {
		out[i] = a.Position
	}
	return out
}

// Velocities returns the velocity column.
func (s KinematicState) Velocities() []float64 {
	out := make([]float64, len(s))
	for i, a := range s {
		out[i] = a.Velocity
	}
	return out
}

// Accelerations returns the acceleration column.
func (s KinematicState) Accelerations() []float64 {
	out := make([]float64, len(s))
	for i, a := range s {
		out[i] = a.Acceleration
	}
	return out
}

// Limits are the kinematic bounds of one axis. All values must be strictly positive.
type Limits struct {
	MaxVelocity     float64
	MaxAcceleration float64
	MaxJerk         float64
}

// Input describes one trajectory request. Target, Limits and MinimumDuration are fixed
// for a run; Current is replaced after every step through Advance.
type Input struct {
	DegreesOfFreedom int
	Current          KinematicState
	Target           KinematicState
	Limits           []Limits
	// MinimumDuration is nil when the duration is unconstrained.
	MinimumDuration *float64
}

// Validate checks dimensions and limit values.
func (in Input) Validate() error {
	dof := in.DegreesOfFreedom
	if dof <= 0 {
		return fmt.Errorf("%w: degrees of freedom must be > 0, got %d", ErrInvalidInput, dof)
	}
	if len(in.Current) != dof || len(in.Target) != dof || len(in.Limits) != dof {
		return fmt.Errorf("%w: expected %d axes, got current=%d target=%d limits=%d",
			ErrInvalidInput, dof, len(in.Current), len(in.Target), len(in.Limits))
	}
	for i := 0; i < dof; i++ {
		if !finiteState(in.Current[i]) || !finiteState(in.Target[i]) {
			return fmt.Errorf("%w: axis %d has a non-finite state", ErrInvalidInput, i)
		}
		l := in.Limits[i]
		if !positive(l.MaxVelocity) || !positive(l.MaxAcceleration) || !positive(l.MaxJerk) {
			return fmt.Errorf("%w: axis %d limits must be finite and > 0 (v=%g a=%g j=%g)",
				ErrInvalidInput, i, l.MaxVelocity, l.MaxAcceleration, l.MaxJerk)
		}
	}
	if in.MinimumDuration != nil {
		d := *in.MinimumDuration
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: minimum duration must be finite and >= 0, got %g", ErrInvalidInput, d)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (in Input) Clone() Input {
	out := in
	out.Current = in.Current.Clone()
	out.Target = in.Target.Clone()
	if in.Limits != nil {
		out.Limits = append([]Limits(nil), in.Limits...)
	}
	if in.MinimumDuration != nil {
		d := *in.MinimumDuration
		out.MinimumDuration = &d
	}
	return out
}

// SameGoal reports whether both inputs request the same motion regardless of the
// current state: same target, limits and minimum duration.
func (in Input) SameGoal(other Input) bool {
	if in.DegreesOfFreedom != other.DegreesOfFreedom {
		return false
	}
	if !in.Target.Equal(other.Target) {
		return false
	}
	if len(in.Limits) != len(other.Limits) {
		return false
	}
	for i := range in.Limits {
		if in.Limits[i] != other.Limits[i] {
			return false
		}
	}
	switch {
	case in.MinimumDuration == nil && other.MinimumDuration == nil:
		return true
	case in.MinimumDuration == nil || other.MinimumDuration == nil:
		return false
	default:
		return *in.MinimumDuration == *other.MinimumDuration
	}
}

// Equal reports whether both inputs are identical.
func (in Input) Equal(other Input) bool {
	return in.SameGoal(other) && in.Current.Equal(other.Current)
}

// Advance is the feedback edge of the stepping loop: it replaces the current position,
// velocity and acceleration of every axis with the state produced by the last step.
// The output state is copied, so later changes to out do not alias into in.
func (in *Input) Advance(out Output) {
	if len(in.Current) != len(out.State) {
		in.Current = make(KinematicState, len(out.State))
	}
	for i, s := range out.State {
		in.Current[i].Position = s.Position
		in.Current[i].Velocity = s.Velocity
		in.Current[i].Acceleration = s.Acceleration
	}
}

// Output is the result of one step.
type Output struct {
	State KinematicState
	// Duration is the total trajectory duration in seconds.
	Duration float64
	// Calculation is the wall time spent inside the step; diagnostic only.
	Calculation time.Duration
	// DeltaTime is the fixed timestep of the backend that produced this output.
	DeltaTime float64
	// Time is the position of State on the backend's current profile.
	Time float64
	// NewCalculation is set when the step planned a new profile.
	NewCalculation bool
}

// Clone returns a deep copy.
func (o Output) Clone() Output {
	out := o
	out.State = o.State.Clone()
	return out
}

// Status is the outcome of one step.
type Status int

// Step outcomes.
const (
	StatusWorking Status = iota
	StatusFinished
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusWorking:
		return "working"
	case StatusFinished:
		return "finished"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "working":
		return StatusWorking, nil
	case "finished":
		return StatusFinished, nil
	case "error":
		return StatusError, nil
	default:
		return 0, fmt.Errorf("unknown status %q", v)
	}
}

// Sample pairs an elapsed run time with the output recorded at that time.
type Sample struct {
	Time   float64
	Output Output
}

// TimeSeries is the append-only record of one run.
type TimeSeries []Sample

// Times returns the elapsed time column.
func (ts TimeSeries) Times() []float64 {
	out := make([]float64, len(ts))
	for i, s := range ts {
		out[i] = s.Time
	}
	return out
}

// Axis returns the position, velocity and acceleration columns of one axis.
func (ts TimeSeries) Axis(axis int) (pos, vel, acc []float64) {
	pos = make([]float64, len(ts))
	vel = make([]float64, len(ts))
	acc = make([]float64, len(ts))
	for i, s := range ts {
		if axis < 0 || axis >= len(s.Output.State) {
			continue
		}
		st := s.Output.State[axis]
		pos[i] = st.Position
		vel[i] = st.Velocity
		acc[i] = st.Acceleration
	}
	return pos, vel, acc
}

// Last returns the final sample and false when the series is empty.
func (ts TimeSeries) Last() (Sample, bool) {
	if len(ts) == 0 {
		return Sample{}, false
	}
	return ts[len(ts)-1], true
}

// RunRecord summarizes a stored run.
type RunRecord struct {
	ID               int64
	CreatedAt        time.Time
	Backend          string
	DeltaTime        float64
	Status           Status
	Error            string
	Duration         float64
	FirstCalculation time.Duration
	Steps            int
	Input            Input
}

// RunFilter narrows stored runs for listing.
type RunFilter struct {
	Backend string
	Since   *time.Time
	Last    int
}

// FormatAxisRules renders one axis of the input as a rule list, e.g.
// "{ p0->0, v0->0, a0->0, pf->1, vf->0, af->0, vMax->1, aMax->1, jMax->1 }".
// A non-nil tf is appended as the profile duration.
func FormatAxisRules(in Input, axis int, tf *float64) (string, error) {
	if axis < 0 || axis >= len(in.Current) || axis >= len(in.Target) || axis >= len(in.Limits) {
		return "", fmt.Errorf("axis %d out of range", axis)
	}
	c, t, l := in.Current[axis], in.Target[axis], in.Limits[axis]
	parts := []string{
		"p0->" + formatFloat(c.Position),
		"v0->" + formatFloat(c.Velocity),
		"a0->" + formatFloat(c.Acceleration),
		"pf->" + formatFloat(t.Position),
		"vf->" + formatFloat(t.Velocity),
		"af->" + formatFloat(t.Acceleration),
		"vMax->" + formatFloat(l.MaxVelocity),
		"aMax->" + formatFloat(l.MaxAcceleration),
		"jMax->" + formatFloat(l.MaxJerk),
	}
	if tf != nil {
		parts = append(parts, "tf->"+formatFloat(*tf))
	}
	return "{ " + strings.Join(parts, ", ") + " }", nil
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}

func finiteState(s AxisState) bool {
	return finite(s.Position) && finite(s.Velocity) && finite(s.Acceleration)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func positive(v float64) bool {
	return finite(v) && v > 0
}
