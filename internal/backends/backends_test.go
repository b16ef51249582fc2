package backends

import (
	"math"
	"testing"

	"github.com/verte-zerg/otgbench/internal/otg"
)

func TestNewKnownBackends(t *testing.T) {
	for _, name := range Names() {
		b, err := New(name, 0.01)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if b.DeltaTime() != 0.01 {
			t.Fatalf("%s: expected delta time 0.01, got %v", name, b.DeltaTime())
		}
		if _, ok := b.(otg.Sampler); name != "online" && !ok {
			t.Fatalf("%s: expected a sampler", name)
		}
		if Describe(name) == "" {
			t.Fatalf("%s: missing description", name)
		}
	}
}

func TestNewNormalizesName(t *testing.T) {
	if _, err := New("  SCurve ", 0.01); err != nil {
		t.Fatalf("expected case-insensitive lookup: %v", err)
	}
}

func TestNewRejectsUnknown(t *testing.T) {
	if _, err := New("reflexxes", 0.01); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestNewRejectsBadDeltaTime(t *testing.T) {
	for _, dt := range []float64{0, -0.01, math.NaN(), math.Inf(1)} {
		if _, err := New(Default, dt); err == nil {
			t.Fatalf("expected error for delta time %v", dt)
		}
	}
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	want := []string{"online", "quintic", "scurve"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}
