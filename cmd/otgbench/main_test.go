package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/otgbench/internal/config"
	"github.com/verte-zerg/otgbench/internal/diag"
	"github.com/verte-zerg/otgbench/internal/model"
	"github.com/verte-zerg/otgbench/internal/otg"
	"github.com/verte-zerg/otgbench/internal/quintic"
	"github.com/verte-zerg/otgbench/internal/store"
)

// isolate points the config and data directories at a fresh temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	return dir
}

func execute(t *testing.T, cmd interface {
	SetArgs([]string)
	SetOut(io.Writer)
	SetErr(io.Writer)
	Execute() error
}, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	err := cmd.Execute()
	return out.String(), err
}

func TestDefaultConfigTemplateDecodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if cfg.Run.Backend != nil || cfg.Diagnostic.NearFactor != nil {
		t.Fatalf("expected every template value commented out, got %+v", cfg)
	}
	for _, key := range []string{"backend", "delta-time", "near-factor", "near-scope", "height"} {
		if !strings.Contains(defaultConfigTemplate(), "# "+key+" = ") {
			t.Fatalf("expected template to document %q", key)
		}
	}
}

func TestDiagOptions(t *testing.T) {
	runNearFactor, runNearScope, runTolerance = 1.2, "axis", 0
	opts, err := diagOptions()
	if err != nil {
		t.Fatalf("diag options: %v", err)
	}
	if opts.Factor != 1.2 || opts.Scope != diag.ScopeAxis || opts.Tolerance != 0 {
		t.Fatalf("unexpected options %+v", opts)
	}

	runNearFactor, runNearScope = 0, "signal"
	if _, err := diagOptions(); err == nil {
		t.Fatalf("expected error for zero factor")
	}
	runNearFactor, runNearScope = 1.4, "plot"
	if _, err := diagOptions(); err == nil {
		t.Fatalf("expected error for unknown scope")
	}
	runNearScope, runTolerance = "signal", -1
	if _, err := diagOptions(); err == nil {
		t.Fatalf("expected error for negative tolerance")
	}
	runTolerance = defaultTolerance
}

func TestExportScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "example.yaml")
	in := config.DefaultScenario()
	if err := exportScenario(path, in); err != nil {
		t.Fatalf("export: %v", err)
	}
	got, err := config.LoadScenario(path)
	if err != nil {
		t.Fatalf("load exported scenario: %v", err)
	}
	if !got.Equal(in) {
		t.Fatalf("exported scenario differs from input")
	}
	if err := exportScenario(filepath.Join(t.TempDir(), "example.json"), in); err == nil {
		t.Fatalf("expected error for unsupported extension")
	}
}

func TestReportEmptySeriesPrintsSummary(t *testing.T) {
	var buf bytes.Buffer
	runPrintAxis, runStrict = false, false
	if err := report(&buf, "empty", config.DefaultScenario(), nil, 0.01, diag.DefaultOptions(), nil, false); err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(buf.String(), "Trajectory duration: 0.000 [s]") {
		t.Fatalf("unexpected report:\n%s", buf.String())
	}
}

func TestBackendsCommandMarksDefault(t *testing.T) {
	cmd := newBackendsCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	if err := runBackendsCmd(cmd, nil); err != nil {
		t.Fatalf("backends: %v", err)
	}
	if !strings.Contains(buf.String(), "* quintic") || !strings.Contains(buf.String(), "scurve") {
		t.Fatalf("unexpected backends output:\n%s", buf.String())
	}
}

func TestRunReturnsBackendError(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.toml")
	scenario := "current_position = [0.0]\ntarget_position = [1.0]\nmax_velocity = [0.0]\nmax_acceleration = [1.0]\nmax_jerk = [1.0]\n"
	if err := os.WriteFile(path, []byte(scenario), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	runStrict, runPrintAxis = false, false
	out, err := execute(t, newRootCmd(), "--scenario", path, "--save=false")
	if !errors.Is(err, otg.ErrInfeasible) {
		t.Fatalf("expected ErrInfeasible, got %v", err)
	}
	if !strings.Contains(out, "Trajectory duration") {
		t.Fatalf("expected summary before the error, got:\n%s", out)
	}
}

func TestRunStrictFailsOnViolations(t *testing.T) {
	isolate(t)
	// Axis 1 of the built-in scenario starts beyond its acceleration limit.
	_, err := execute(t, newRootCmd(), "--strict", "--save=false", "--width", "40")
	runStrict = false
	if !errors.Is(err, errViolations) {
		t.Fatalf("expected errViolations, got %v", err)
	}
}

func TestCheckStrict(t *testing.T) {
	in := config.DefaultScenario()
	work := in.Clone()
	series, err := otg.Run(quintic.New(0.005), &work)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	r, err := diag.Analyze(series, in.Limits, 0.005, diag.DefaultOptions())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if err := checkStrict(r); !errors.Is(err, errViolations) {
		t.Fatalf("expected errViolations, got %v", err)
	}
	for i := range in.Limits {
		in.Limits[i].MaxAcceleration *= 2
	}
	r, err = diag.Analyze(series, in.Limits, 0.005, diag.DefaultOptions())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if err := checkStrict(r); err != nil {
		t.Fatalf("expected no violations with doubled limits, got %v", err)
	}
}

func TestShowAppliesConfigFile(t *testing.T) {
	isolate(t)
	cfgPath := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(cfgPath, []byte("[diagnostic]\nnear-factor = 1.1\nnear-scope = \"axis\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	in := config.DefaultScenario()
	work := in.Clone()
	series, err := otg.Run(quintic.New(0.01), &work)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	id, err := st.InsertRun(context.Background(), model.RunRecord{
		CreatedAt: time.Now(),
		Backend:   "quintic",
		DeltaTime: 0.01,
		Status:    model.StatusFinished,
		Duration:  series[0].Output.Duration,
		Steps:     len(series),
		Input:     in,
	}, series)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	runStrict, runPrintAxis = false, false
	out, err := execute(t, newShowCmd(), "--width", "40", strconv.FormatInt(id, 10))
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "Limits (factor 1.10, axis scope)") {
		t.Fatalf("expected config-file diagnostic settings, got:\n%s", out)
	}

	out, err = execute(t, newShowCmd(), "--width", "40", "--near-factor", "1.3", strconv.FormatInt(id, 10))
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "Limits (factor 1.30, axis scope)") {
		t.Fatalf("expected flag to override config, got:\n%s", out)
	}
}
