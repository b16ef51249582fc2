// Package backends selects trajectory backends by name.
package backends

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/verte-zerg/otgbench/internal/otg"
	"github.com/verte-zerg/otgbench/internal/quintic"
	"github.com/verte-zerg/otgbench/internal/scurve"
)

// Default is the backend used when none is configured.
const Default = "quintic"

type entry struct {
	description string
	build       func(dt float64) otg.Backend
}

var registry = map[string]entry{
	"quintic": {
		description: "time-synchronized quintic polynomial, planned once per input",
		build:       func(dt float64) otg.Backend { return quintic.New(dt) },
	},
	"online": {
		description: "quintic polynomial re-fitted from the fed-back state every cycle",
		build:       func(dt float64) otg.Backend { return quintic.NewOnline(dt) },
	},
	"scurve": {
		description: "synchronized double-S profile, rest-to-rest only",
		build:       func(dt float64) otg.Backend { return scurve.New(dt) },
	},
}

// New returns a fresh backend instance with timestep dt seconds.
func New(name string, dt float64) (otg.Backend, error) {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || dt <= 0 {
		return nil, fmt.Errorf("delta time must be finite and > 0, got %g", dt)
	}
	e, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown backend %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return e.build(dt), nil
}

// Names lists the registered backends in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns a one-line description of a backend.
func Describe(name string) string {
	return registry[name].description
}
