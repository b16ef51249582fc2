// Package config provides XDG path helpers.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

const appName = "otgbench"

// XDGConfigHome returns the XDG config home or a default fallback.
func XDGConfigHome() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".config")
}

// XDGDataHome returns the XDG data home or a default fallback.
func XDGDataHome() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

// DefaultScenarioDir returns the directory searched for named scenarios.
func DefaultScenarioDir() string {
	return filepath.Join(XDGConfigHome(), appName, "scenarios")
}

// ScenarioPath resolves a scenario argument. Anything that looks like a path is
// returned unchanged; a bare name maps to <scenario dir>/<name>.toml.
func ScenarioPath(arg string) string {
	if arg == "" || strings.ContainsRune(arg, os.PathSeparator) || filepath.Ext(arg) != "" {
		return arg
	}
	return filepath.Join(DefaultScenarioDir(), arg+".toml")
}

// DefaultDBPath returns the default path for the SQLite database.
func DefaultDBPath() string {
	return filepath.Join(XDGDataHome(), appName, appName+".db")
}

// DefaultConfigPath returns the default TOML config path.
func DefaultConfigPath() string {
	return filepath.Join(XDGConfigHome(), appName, "config.toml")
}
