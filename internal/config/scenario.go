package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/otgbench/internal/model"
)

// Scenario is the file form of a trajectory request. Every present array holds one
// value per axis; missing velocity and acceleration arrays are zero.
type Scenario struct {
	CurrentPosition     []float64 `toml:"current_position" yaml:"current_position"`
	CurrentVelocity     []float64 `toml:"current_velocity,omitempty" yaml:"current_velocity,omitempty"`
	CurrentAcceleration []float64 `toml:"current_acceleration,omitempty" yaml:"current_acceleration,omitempty"`
	TargetPosition      []float64 `toml:"target_position" yaml:"target_position"`
	TargetVelocity      []float64 `toml:"target_velocity,omitempty" yaml:"target_velocity,omitempty"`
	TargetAcceleration  []float64 `toml:"target_acceleration,omitempty" yaml:"target_acceleration,omitempty"`
	MaxVelocity         []float64 `toml:"max_velocity" yaml:"max_velocity"`
	MaxAcceleration     []float64 `toml:"max_acceleration" yaml:"max_acceleration"`
	MaxJerk             []float64 `toml:"max_jerk" yaml:"max_jerk"`
	MinimumDuration     *float64  `toml:"minimum_duration,omitempty" yaml:"minimum_duration,omitempty"`
}

// Scenario file formats.
const (
	FormatTOML = "toml"
	FormatYAML = "yaml"
)

// FormatFor picks the scenario format from a file extension.
func FormatFor(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported scenario extension %q (use .toml, .yaml or .yml)", filepath.Ext(path))
	}
}

// LoadScenario reads a scenario file and converts it to an input.
func LoadScenario(path string) (model.Input, error) {
	format, err := FormatFor(path)
	if err != nil {
		return model.Input{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Input{}, fmt.Errorf("failed to read scenario: %w", err)
	}
	in, err := ParseScenario(data, format)
	if err != nil {
		return model.Input{}, fmt.Errorf("%s: %w", path, err)
	}
	return in, nil
}

// ParseScenario decodes a scenario in the given format.
func ParseScenario(data []byte, format string) (model.Input, error) {
	var sc Scenario
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), &sc)
		if err != nil {
			return model.Input{}, fmt.Errorf("failed to decode scenario: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return model.Input{}, fmt.Errorf("unknown scenario key %q", undecoded[0].String())
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&sc); err != nil && !errors.Is(err, io.EOF) {
			return model.Input{}, fmt.Errorf("failed to decode scenario: %w", err)
		}
	default:
		return model.Input{}, fmt.Errorf("unknown scenario format %q", format)
	}
	return sc.Input()
}

// Input converts the scenario. Array lengths must agree; limit values are checked by
// the backends, not here.
func (s Scenario) Input() (model.Input, error) {
	dof := len(s.CurrentPosition)
	if dof == 0 {
		return model.Input{}, fmt.Errorf("%w: current_position is empty", model.ErrInvalidInput)
	}
	columns := []struct {
		name     string
		values   []float64
		required bool
	}{
		{"current_velocity", s.CurrentVelocity, false},
		{"current_acceleration", s.CurrentAcceleration, false},
		{"target_position", s.TargetPosition, true},
		{"target_velocity", s.TargetVelocity, false},
		{"target_acceleration", s.TargetAcceleration, false},
		{"max_velocity", s.MaxVelocity, true},
		{"max_acceleration", s.MaxAcceleration, true},
		{"max_jerk", s.MaxJerk, true},
	}
	for _, c := range columns {
		if len(c.values) == 0 && !c.required {
			continue
		}
		if len(c.values) != dof {
			return model.Input{}, fmt.Errorf("%w: %s has %d values, expected %d", model.ErrInvalidInput, c.name, len(c.values), dof)
		}
	}

	in := model.Input{
		DegreesOfFreedom: dof,
		Current:          model.NewKinematicState(dof),
		Target:           model.NewKinematicState(dof),
		Limits:           make([]model.Limits, dof),
	}
	for i := 0; i < dof; i++ {
		in.Current[i] = model.AxisState{
			Position:     s.CurrentPosition[i],
			Velocity:     at(s.CurrentVelocity, i),
			Acceleration: at(s.CurrentAcceleration, i),
		}
		in.Target[i] = model.AxisState{
			Position:     s.TargetPosition[i],
			Velocity:     at(s.TargetVelocity, i),
			Acceleration: at(s.TargetAcceleration, i),
		}
		in.Limits[i] = model.Limits{
			MaxVelocity:     s.MaxVelocity[i],
			MaxAcceleration: s.MaxAcceleration[i],
			MaxJerk:         s.MaxJerk[i],
		}
	}
	if s.MinimumDuration != nil {
		d := *s.MinimumDuration
		in.MinimumDuration = &d
	}
	return in, nil
}

func at(values []float64, i int) float64 {
	if i < len(values) {
		return values[i]
	}
	return 0
}

// ScenarioFromInput is the inverse of Scenario.Input.
func ScenarioFromInput(in model.Input) Scenario {
	s := Scenario{
		CurrentPosition:     in.Current.Positions(),
		CurrentVelocity:     in.Current.Velocities(),
		CurrentAcceleration: in.Current.Accelerations(),
		TargetPosition:      in.Target.Positions(),
		TargetVelocity:      in.Target.Velocities(),
		TargetAcceleration:  in.Target.Accelerations(),
	}
	for _, l := range in.Limits {
		s.MaxVelocity = append(s.MaxVelocity, l.MaxVelocity)
		s.MaxAcceleration = append(s.MaxAcceleration, l.MaxAcceleration)
		s.MaxJerk = append(s.MaxJerk, l.MaxJerk)
	}
	if in.MinimumDuration != nil {
		d := *in.MinimumDuration
		s.MinimumDuration = &d
	}
	return s
}

// EncodeScenario writes in as a scenario file in the given format.
func EncodeScenario(w io.Writer, in model.Input, format string) error {
	s := ScenarioFromInput(in)
	switch format {
	case FormatTOML:
		return toml.NewEncoder(w).Encode(s)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown scenario format %q", format)
	}
}

// DefaultScenario returns a 3-axis request that starts with non-zero accelerations;
// axis 1 starts beyond its acceleration limit.
func DefaultScenario() model.Input {
	return model.Input{
		DegreesOfFreedom: 3,
		Current: model.KinematicState{
			{Position: -0.408428692, Acceleration: -0.8621951751},
			{Position: -0.4610261654, Acceleration: -0.9143075179},
			{Position: -0.466761599, Acceleration: -0.7664531934},
		},
		Target: model.KinematicState{
			{Position: 0.2211786626},
			{Position: -0.6502176726},
			{Position: -0.2084241794},
		},
		Limits: []model.Limits{
			{MaxVelocity: 9.951839514, MaxAcceleration: 7.293391005, MaxJerk: 1.9034021545},
			{MaxVelocity: 0.8332818112, MaxAcceleration: 0.7773767298, MaxJerk: 1.5199889531},
			{MaxVelocity: 0.8674008811, MaxAcceleration: 4.770696936, MaxJerk: 4.145664488},
		},
	}
}
