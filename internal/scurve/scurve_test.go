package scurve

import (
	"errors"
	"math"
	"testing"

	"github.com/verte-zerg/otgbench/internal/model"
	"github.com/verte-zerg/otgbench/internal/otg"
)

func restInput(targets ...float64) model.Input {
	in := model.Input{
		DegreesOfFreedom: len(targets),
		Current:          model.NewKinematicState(len(targets)),
		Target:           model.NewKinematicState(len(targets)),
		Limits:           make([]model.Limits, len(targets)),
	}
	for i, p := range targets {
		in.Target[i].Position = p
		in.Limits[i] = model.Limits{MaxVelocity: 1, MaxAcceleration: 1, MaxJerk: 1}
	}
	return in
}

func TestPathProfileWithoutCruise(t *testing.T) {
	p, err := newPathProfile(1, 1, 1)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	want := 4 * math.Cbrt(0.5)
	if math.Abs(p.total-want) > 1e-12 {
		t.Fatalf("expected total %v, got %v", want, p.total)
	}
	if p.tv != 0 {
		t.Fatalf("expected no cruise phase, got %v", p.tv)
	}
}

func TestPathProfileWithCruise(t *testing.T) {
	// Ten units under unit limits: one second of jerk, one of constant acceleration.
	p, err := newPathProfile(0.1, 0.1, 0.1)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if math.Abs(p.total-12) > 1e-9 {
		t.Fatalf("expected total 12, got %v", p.total)
	}
	if math.Abs(p.vlim-0.1) > 1e-12 {
		t.Fatalf("expected cruise velocity 0.1, got %v", p.vlim)
	}
}

func TestPathProfileIsContinuous(t *testing.T) {
	p, err := newPathProfile(0.1, 0.1, 0.1)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	for _, u := range []float64{p.tj, p.ta - p.tj, p.ta, p.ta + p.tv, p.total - p.ta + p.tj, p.total - p.tj} {
		s0, v0, _ := p.at(u - 1e-9)
		s1, v1, _ := p.at(u + 1e-9)
		if math.Abs(s1-s0) > 1e-8 || math.Abs(v1-v0) > 1e-8 {
			t.Fatalf("discontinuity at %v: s %v->%v v %v->%v", u, s0, s1, v0, v1)
		}
	}
	if s, _, _ := p.at(p.total / 2); math.Abs(s-0.5) > 1e-12 {
		t.Fatalf("expected the midpoint at half time, got %v", s)
	}
}

func TestSCurveSingleAxis(t *testing.T) {
	in := restInput(1)
	series, err := otg.Run(New(0.01), &in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	last, _ := series.Last()
	if last.Output.State[0].Position != 1 {
		t.Fatalf("expected final position 1, got %v", last.Output.State[0].Position)
	}
	duration := series[0].Output.Duration
	if math.Abs(duration-4*math.Cbrt(0.5)) > 1e-9 {
		t.Fatalf("unexpected duration %v", duration)
	}
	if math.Abs(float64(len(series))-duration/0.01) > 1 {
		t.Fatalf("expected about %.1f samples, got %d", duration/0.01, len(series))
	}
	pos, vel, acc := series.Axis(0)
	for i := range pos {
		if math.Abs(vel[i]) > 1+1e-9 || math.Abs(acc[i]) > 1+1e-9 {
			t.Fatalf("limit exceeded at %d: v=%v a=%v", i, vel[i], acc[i])
		}
		if i > 0 && pos[i] < pos[i-1] {
			t.Fatalf("position moved backwards at %d", i)
		}
	}
}

func TestSCurveSynchronizesAxes(t *testing.T) {
	in := restInput(1, -2)
	series, err := otg.Run(New(0.01), &in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for i, s := range series {
		a, b := s.Output.State[0], s.Output.State[1]
		if math.Abs(b.Position+2*a.Position) > 1e-9 {
			t.Fatalf("sample %d: axes left the common path: %v %v", i, a.Position, b.Position)
		}
	}
	_, vel, _ := series.Axis(1)
	for i, v := range vel {
		if math.Abs(v) > 1+1e-9 {
			t.Fatalf("axis 1 velocity %v exceeds limit at %d", v, i)
		}
	}
}

func TestSCurveRejectsMotionInProgress(t *testing.T) {
	in := restInput(1)
	in.Current[0].Velocity = 0.5
	series, err := otg.Run(New(0.01), &in)
	if !errors.Is(err, otg.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
	if len(series) != 0 {
		t.Fatalf("expected empty series, got %d", len(series))
	}
}

func TestSCurveInvalidLimits(t *testing.T) {
	in := restInput(1)
	in.Limits[0].MaxJerk = -1
	series, err := otg.Run(New(0.01), &in)
	if !errors.Is(err, otg.ErrInfeasible) || !errors.Is(err, model.ErrInvalidInput) {
		t.Fatalf("expected infeasible input error, got %v", err)
	}
	if len(series) != 0 {
		t.Fatalf("expected empty series, got %d", len(series))
	}
}

func TestSCurveMinimumDuration(t *testing.T) {
	in := restInput(1)
	d := 10.0
	in.MinimumDuration = &d
	series, err := otg.Run(New(0.01), &in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := series[0].Output.Duration; got != d {
		t.Fatalf("expected duration %v, got %v", d, got)
	}
	last, _ := series.Last()
	if last.Output.State[0].Position != 1 {
		t.Fatalf("expected final position 1, got %v", last.Output.State[0].Position)
	}
}

func TestSCurveAtTime(t *testing.T) {
	b := New(0.01)
	var out model.Output
	if err := b.AtTime(1, &out); !errors.Is(err, otg.ErrNoProfile) {
		t.Fatalf("expected ErrNoProfile, got %v", err)
	}
	in := restInput(1)
	series, err := otg.Run(b, &in)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	half := series[0].Output.Duration / 2
	if err := b.AtTime(half, &out); err != nil {
		t.Fatalf("at time: %v", err)
	}
	if math.Abs(out.State[0].Position-0.5) > 1e-12 {
		t.Fatalf("expected midpoint 0.5, got %v", out.State[0].Position)
	}
}
