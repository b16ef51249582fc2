// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Run        RunConfig        `toml:"run"`
	Diagnostic DiagnosticConfig `toml:"diagnostic"`
	Plot       PlotConfig       `toml:"plot"`
}

// RunConfig maps stepping settings.
type RunConfig struct {
	Backend   *string  `toml:"backend"`
	DeltaTime *float64 `toml:"delta-time"`
	MaxSteps  *int     `toml:"max-steps"`
	Scenario  *string  `toml:"scenario"`
	Save      *bool    `toml:"save"`
}

// DiagnosticConfig maps limit diagnostic settings.
type DiagnosticConfig struct {
	NearFactor *float64 `toml:"near-factor"`
	NearScope  *string  `toml:"near-scope"`
	Tolerance  *float64 `toml:"tolerance"`
}

// PlotConfig maps terminal plot settings.
type PlotConfig struct {
	Width  *int  `toml:"width"`
	Height *int  `toml:"height"`
	Color  *bool `toml:"color"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
