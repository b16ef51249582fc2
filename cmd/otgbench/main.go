// Package main provides the CLI entrypoint for otgbench.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/verte-zerg/otgbench/internal/backends"
	"github.com/verte-zerg/otgbench/internal/config"
	"github.com/verte-zerg/otgbench/internal/diag"
	"github.com/verte-zerg/otgbench/internal/model"
	"github.com/verte-zerg/otgbench/internal/otg"
	"github.com/verte-zerg/otgbench/internal/render"
	"github.com/verte-zerg/otgbench/internal/store"
	"github.com/verte-zerg/otgbench/internal/viewer"
)

const (
	defaultDeltaTime  = 0.001
	defaultMaxSteps   = 1_000_000
	defaultPlotHeight = 12
	defaultTolerance  = 1e-9
)

var (
	runBackend    string
	runDeltaTime  float64
	runScenario   string
	runMaxSteps   int
	runNearFactor float64
	runNearScope  string
	runTolerance  float64
	runSave       bool
	runStrict     bool
	runTUI        bool
	runPrintAxis  bool
	plotWidth     int
	plotHeight    int
	plotColor     bool
	verbose       bool

	historyBackend string
	historySince   string
	historyLast    int

	showTUI    bool
	showExport string
)

// errViolations is returned by --strict runs that exceed a limit.
var errViolations = errors.New("limit violations found")

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "otgbench",
		Short:         "Online trajectory generation test bench",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runRunCmd,
	}
	addRunFlags(rootCmd)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log step diagnostics to stderr")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Step a backend through a scenario and report limits",
		Args:  cobra.NoArgs,
		RunE:  runRunCmd,
	}
	addRunFlags(runCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(newBackendsCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newShowCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&runBackend, "backend", "b", backends.Default, "trajectory backend (see: otgbench backends)")
	cmd.Flags().Float64Var(&runDeltaTime, "delta-time", defaultDeltaTime, "control cycle in seconds")
	cmd.Flags().StringVarP(&runScenario, "scenario", "s", "", "scenario file or name (default: built-in 3-axis example)")
	cmd.Flags().IntVar(&runMaxSteps, "max-steps", defaultMaxSteps, "step ceiling, 0 for none")
	cmd.Flags().Float64Var(&runNearFactor, "near-factor", diag.DefaultFactor, "headroom factor of the near-limit rule")
	cmd.Flags().StringVar(&runNearScope, "near-scope", diag.ScopeSignal.String(), "near-limit range: signal or axis")
	cmd.Flags().Float64Var(&runTolerance, "tolerance", defaultTolerance, "slack allowed by the violation check")
	cmd.Flags().BoolVar(&runSave, "save", true, "store the run in the history database")
	cmd.Flags().BoolVar(&runStrict, "strict", false, "exit with an error when any limit is exceeded")
	cmd.Flags().BoolVar(&runTUI, "tui", false, "open the interactive report")
	cmd.Flags().BoolVar(&runPrintAxis, "print-axis", false, "print each axis as a rule list")
	cmd.Flags().IntVar(&plotWidth, "width", 0, "plot width (default: fit terminal)")
	cmd.Flags().IntVar(&plotHeight, "height", defaultPlotHeight, "plot height in rows")
	cmd.Flags().BoolVar(&plotColor, "color", false, "force ANSI colors")
}

func runRunCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "backend", &runBackend, fileCfg.Run.Backend)
	applyFloatConfig(cmd, "delta-time", &runDeltaTime, fileCfg.Run.DeltaTime)
	applyIntConfig(cmd, "max-steps", &runMaxSteps, fileCfg.Run.MaxSteps)
	applyStringConfig(cmd, "scenario", &runScenario, fileCfg.Run.Scenario)
	applyBoolConfig(cmd, "save", &runSave, fileCfg.Run.Save)
	applyReportConfig(cmd, fileCfg)

	opts, err := diagOptions()
	if err != nil {
		return err
	}
	if runMaxSteps < 0 {
		return fmt.Errorf("--max-steps must be >= 0")
	}
	if plotHeight <= 0 {
		return fmt.Errorf("--height must be > 0")
	}

	in, err := loadInput(runScenario)
	if err != nil {
		return err
	}
	backend, err := backends.New(runBackend, runDeltaTime)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr)
	logger.Debug("starting run", "backend", runBackend, "dt", runDeltaTime, "dof", in.DegreesOfFreedom)

	initial := in.Clone()
	series, runErr := otg.Run(backend, &in, otg.WithMaxSteps(runMaxSteps), otg.WithLogger(logger))

	if runSave {
		id, err := saveRun(cmd.Context(), runBackend, runDeltaTime, initial, series, runErr)
		if err != nil {
			logErrf("failed to save run: %v\n", err)
		} else {
			logger.Debug("run saved", "id", id)
		}
	}

	title := fmt.Sprintf("%s, %d axes", runBackend, initial.DegreesOfFreedom)
	if err := report(cmd.OutOrStdout(), title, initial, series, runDeltaTime, opts, runErr, runTUI); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	return nil
}

// report prints or shows one run. With --strict it fails when any limit is exceeded,
// in the TUI as well.
func report(w io.Writer, title string, in model.Input, series model.TimeSeries, dt float64, opts diag.Options, runErr error, tui bool) error {
	summary := diag.Summarize(series)
	r, err := diag.Analyze(series, in.Limits, dt, opts)
	empty := errors.Is(err, diag.ErrEmptySeries)
	if err != nil && !empty {
		return fmt.Errorf("failed to analyze run: %w", err)
	}
	var strictErr error
	if runStrict && !empty {
		strictErr = checkStrict(r)
	}

	if tui {
		m := viewer.NewModel(viewer.Run{
			Title:     title,
			Backend:   runBackend,
			Input:     in,
			Series:    series,
			DeltaTime: dt,
			Options:   opts,
			Err:       runErr,
		})
		program := tea.NewProgram(m, tea.WithAltScreen())
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("failed to run report TUI: %w", err)
		}
		return strictErr
	}

	if runPrintAxis {
		var tf *float64
		if len(series) > 0 {
			tf = &summary.Duration
		}
		if err := render.RenderAxisRules(w, in, tf); err != nil {
			return fmt.Errorf("failed to print axes: %w", err)
		}
	}
	if empty {
		return render.RenderSummary(w, summary)
	}
	plotOpts := render.PlotOptions{
		Width:  plotWidth,
		Height: plotHeight,
		Color:  render.ShouldUseColor(w, plotColor),
	}
	if err := render.RenderReport(w, r, summary, plotOpts); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return strictErr
}

func checkStrict(r diag.Report) error {
	if v := r.Violations(-1); len(v) > 0 {
		return fmt.Errorf("%w: %d samples", errViolations, len(v))
	}
	return nil
}

// applyReportConfig applies the [diagnostic] and [plot] sections shared by run and show.
func applyReportConfig(cmd *cobra.Command, fileCfg config.FileConfig) {
	applyFloatConfig(cmd, "near-factor", &runNearFactor, fileCfg.Diagnostic.NearFactor)
	applyStringConfig(cmd, "near-scope", &runNearScope, fileCfg.Diagnostic.NearScope)
	applyFloatConfig(cmd, "tolerance", &runTolerance, fileCfg.Diagnostic.Tolerance)
	applyIntConfig(cmd, "width", &plotWidth, fileCfg.Plot.Width)
	applyIntConfig(cmd, "height", &plotHeight, fileCfg.Plot.Height)
	applyBoolConfig(cmd, "color", &plotColor, fileCfg.Plot.Color)
}

func diagOptions() (diag.Options, error) {
	scope, err := diag.ParseScope(runNearScope)
	if err != nil {
		return diag.Options{}, err
	}
	if runNearFactor <= 0 {
		return diag.Options{}, fmt.Errorf("--near-factor must be > 0")
	}
	if runTolerance < 0 {
		return diag.Options{}, fmt.Errorf("--tolerance must be >= 0")
	}
	return diag.Options{Factor: runNearFactor, Scope: scope, Tolerance: runTolerance}, nil
}

func loadInput(scenario string) (model.Input, error) {
	if scenario == "" {
		return config.DefaultScenario(), nil
	}
	path := config.ScenarioPath(scenario)
	in, err := config.LoadScenario(path)
	if err != nil {
		return model.Input{}, fmt.Errorf("failed to load scenario: %w", err)
	}
	return in, nil
}

func saveRun(ctx context.Context, backend string, dt float64, in model.Input, series model.TimeSeries, runErr error) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	summary := diag.Summarize(series)
	rec := model.RunRecord{
		CreatedAt:        time.Now(),
		Backend:          strings.ToLower(strings.TrimSpace(backend)),
		DeltaTime:        dt,
		Status:           model.StatusFinished,
		Duration:         summary.Duration,
		FirstCalculation: summary.FirstCalculation,
		Steps:            summary.Steps,
		Input:            in,
	}
	if runErr != nil {
		rec.Status = model.StatusError
		rec.Error = runErr.Error()
	}

	st, err := openStore()
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()
	return st.InsertRun(ctx, rec, series)
}

func openStore() (*store.Store, error) {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	return st, nil
}

func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List trajectory backends",
		Args:  cobra.NoArgs,
		RunE:  runBackendsCmd,
	}
}

func runBackendsCmd(cmd *cobra.Command, _ []string) error {
	for _, name := range backends.Names() {
		marker := " "
		if name == backends.Default {
			marker = "*"
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %-8s %s\n", marker, name, backends.Describe(name)); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored runs",
		Args:  cobra.NoArgs,
		RunE:  runHistoryCmd,
	}
	cmd.Flags().StringVar(&historyBackend, "backend", "", "backend filter")
	cmd.Flags().StringVar(&historySince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&historyLast, "last", 0, "limit to last N runs")
	return cmd
}

func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	filter := model.RunFilter{
		Backend: strings.ToLower(strings.TrimSpace(historyBackend)),
		Last:    historyLast,
	}
	if historySince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", historySince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		filter.Since = &parsed
	}
	if filter.Last < 0 {
		return fmt.Errorf("--last must be >= 0")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	runs, err := st.ListRuns(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	return render.RenderRuns(cmd.OutOrStdout(), runs)
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Report a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  runShowCmd,
	}
	cmd.Flags().BoolVar(&showTUI, "tui", false, "open the interactive report")
	cmd.Flags().StringVar(&showExport, "export", "", "write the run's input as a scenario file (.toml, .yaml)")
	cmd.Flags().Float64Var(&runNearFactor, "near-factor", diag.DefaultFactor, "headroom factor of the near-limit rule")
	cmd.Flags().StringVar(&runNearScope, "near-scope", diag.ScopeSignal.String(), "near-limit range: signal or axis")
	cmd.Flags().Float64Var(&runTolerance, "tolerance", defaultTolerance, "slack allowed by the violation check")
	cmd.Flags().IntVar(&plotWidth, "width", 0, "plot width (default: fit terminal)")
	cmd.Flags().IntVar(&plotHeight, "height", defaultPlotHeight, "plot height in rows")
	cmd.Flags().BoolVar(&plotColor, "color", false, "force ANSI colors")
	return cmd
}

func runShowCmd(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid run id %q", args[0])
	}
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyReportConfig(cmd, fileCfg)
	if plotHeight <= 0 {
		return fmt.Errorf("--height must be > 0")
	}
	opts, err := diagOptions()
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	rec, series, err := st.LoadRun(cmd.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("run %d not found (list runs with: otgbench history)", id)
	}
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	if showExport != "" {
		if err := exportScenario(showExport, rec.Input); err != nil {
			return err
		}
		logErrf("Wrote %s\n", showExport)
		return nil
	}

	var runErr error
	if rec.Error != "" {
		runErr = errors.New(rec.Error)
	}
	runBackend = rec.Backend
	title := fmt.Sprintf("run %d, %s, %s", rec.ID, rec.Backend, rec.CreatedAt.Local().Format("2006-01-02 15:04"))
	return report(cmd.OutOrStdout(), title, rec.Input, series, rec.DeltaTime, opts, runErr, showTUI)
}

func exportScenario(path string, in model.Input) error {
	format, err := config.FormatFor(path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create scenario directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create scenario: %w", err)
	}
	if err := config.EncodeScenario(f, in, format); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write scenario: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write scenario: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# otgbench configuration
# Uncomment a value to enable it. CLI flags override config values.

[run]
# backend = %q        # Trajectory backend: %s
# delta-time = %g         # Control cycle in seconds
# max-steps = %d       # Step ceiling, 0 for none
# scenario = "arm"          # Scenario file or name under %s
# save = true               # Store runs in the history database

[diagnostic]
# near-factor = %.1f         # Headroom factor of the near-limit rule
# near-scope = %q      # Near-limit range: signal or axis
# tolerance = %g          # Slack allowed by the violation check

[plot]
# width = 100               # Plot width (default: fit terminal)
# height = %d               # Plot height in rows
# color = false             # Force ANSI colors
`,
		backends.Default,
		strings.Join(backends.Names(), ", "),
		defaultDeltaTime,
		defaultMaxSteps,
		config.DefaultScenarioDir(),
		diag.DefaultFactor,
		diag.ScopeSignal.String(),
		defaultTolerance,
		defaultPlotHeight,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
