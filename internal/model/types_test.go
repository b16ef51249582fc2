package model

import (
	"errors"
	"strings"
	"testing"
)

func singleAxisInput() Input {
	return Input{
		DegreesOfFreedom: 1,
		Current:          KinematicState{{}},
		Target:           KinematicState{{Position: 1}},
		Limits:           []Limits{{MaxVelocity: 1, MaxAcceleration: 1, MaxJerk: 1}},
	}
}

func TestValidate(t *testing.T) {
	negative := -1.0
	tests := []struct {
		name   string
		mutate func(*Input)
		ok     bool
	}{
		{name: "valid", mutate: func(*Input) {}, ok: true},
		{name: "zero dof", mutate: func(in *Input) { in.DegreesOfFreedom = 0 }},
		{name: "dof mismatch", mutate: func(in *Input) { in.Target = KinematicState{{}, {}} }},
		{name: "zero jerk", mutate: func(in *Input) { in.Limits[0].MaxJerk = 0 }},
		{name: "negative velocity", mutate: func(in *Input) { in.Limits[0].MaxVelocity = -1 }},
		{name: "negative minimum duration", mutate: func(in *Input) { in.MinimumDuration = &negative }},
	}
	for _, tt := range tests {
		in := singleAxisInput()
		tt.mutate(&in)
		err := in.Validate()
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
		}
		if !tt.ok {
			if err == nil {
				t.Errorf("%s: expected error", tt.name)
			} else if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("%s: expected ErrInvalidInput, got %v", tt.name, err)
			}
		}
	}
}

func TestAdvanceCopiesState(t *testing.T) {
	in := singleAxisInput()
	out := Output{State: KinematicState{{Position: 0.5, Velocity: 0.25, Acceleration: -0.1}}}
	in.Advance(out)
	if in.Current[0] != out.State[0] {
		t.Fatalf("expected current %+v, got %+v", out.State[0], in.Current[0])
	}
	out.State[0].Position = 99
	if in.Current[0].Position != 0.5 {
		t.Fatalf("advance must not alias the output state")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	d := 2.0
	in := singleAxisInput()
	in.MinimumDuration = &d
	c := in.Clone()
	c.Current[0].Position = 3
	c.Limits[0].MaxJerk = 7
	*c.MinimumDuration = 5
	if in.Current[0].Position != 0 || in.Limits[0].MaxJerk != 1 || *in.MinimumDuration != 2 {
		t.Fatalf("clone shares memory with original: %+v", in)
	}
	if !in.Equal(in.Clone()) {
		t.Fatalf("expected clone to equal original")
	}
}

func TestSameGoalIgnoresCurrent(t *testing.T) {
	a := singleAxisInput()
	b := a.Clone()
	b.Current[0].Velocity = 1
	if !a.SameGoal(b) {
		t.Fatalf("expected same goal")
	}
	if a.Equal(b) {
		t.Fatalf("expected inputs to differ")
	}
	d := 0.0
	b.MinimumDuration = &d
	if a.SameGoal(b) {
		t.Fatalf("absent and zero minimum duration must differ")
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []Status{StatusWorking, StatusFinished, StatusError} {
		got, err := ParseStatus(s.String())
		if err != nil || got != s {
			t.Fatalf("round trip %v: got %v err=%v", s, got, err)
		}
	}
	if _, err := ParseStatus("bogus"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestFormatAxisRules(t *testing.T) {
	in := singleAxisInput()
	tf := 3.5
	out, err := FormatAxisRules(in, 0, &tf)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	for _, want := range []string{"p0->0", "pf->1", "jMax->1", "tf->3.5"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %s", want, out)
		}
	}
	if _, err := FormatAxisRules(in, 1, nil); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestTimeSeriesAxis(t *testing.T) {
	ts := TimeSeries{
		{Time: 0, Output: Output{State: KinematicState{{Position: 1, Velocity: 2, Acceleration: 3}}}},
		{Time: 0.1, Output: Output{State: KinematicState{{Position: 4, Velocity: 5, Acceleration: 6}}}},
	}
	pos, vel, acc := ts.Axis(0)
	if pos[1] != 4 || vel[0] != 2 || acc[1] != 6 {
		t.Fatalf("unexpected columns: %v %v %v", pos, vel, acc)
	}
	if times := ts.Times(); times[1] != 0.1 {
		t.Fatalf("unexpected times: %v", times)
	}
}
