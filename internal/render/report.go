package render

import (
	"fmt"
	"io"
	"time"

	"github.com/verte-zerg/otgbench/internal/diag"
	"github.com/verte-zerg/otgbench/internal/model"
)

const defaultViolationRows = 20

// RenderSummary prints the scalar results of a run.
func RenderSummary(w io.Writer, s diag.Summary) error {
	us := float64(s.FirstCalculation) / float64(time.Microsecond)
	if _, err := fmt.Fprintf(w, "Calculation duration: %0.1f [µs]\n", us); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Trajectory duration: %0.3f [s]\n", s.Duration); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Steps: %d (final time %0.3f [s], %d new calculations)\n",
		s.Steps, s.FinalTime, s.NewCalculations); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderLimitTable prints the extremes of every limited signal and the near-limit
// classification of its reference lines.
func RenderLimitTable(w io.Writer, r diag.Report) error {
	if len(r.Axes) == 0 {
		_, err := fmt.Fprintln(w, "No axes to report.")
		return err
	}
	if _, err := fmt.Fprintf(w, "Limits (factor %.2f, %s scope)\n", r.Options.Factor, r.Options.Scope); err != nil {
		return err
	}
	headers := []string{"Axis", "Signal", "Limit", "Min", "Max", "Near +", "Near -"}
	rows := make([][]string, 0, len(r.Axes)*len(diag.Signals))
	for _, ar := range r.Axes {
		for _, sig := range diag.Signals {
			f := ar.Flags[sig]
			rows = append(rows, []string{
				fmt.Sprintf("%d", ar.Axis),
				sig.String(),
				formatValue(f.Upper),
				formatValue(f.Min),
				formatValue(f.Max),
				yesNo(f.NearUpper),
				yesNo(f.NearLower),
			})
		}
	}
	rightAlign := map[int]bool{0: true, 2: true, 3: true, 4: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderViolations prints samples that exceed their limit, at most maxRows of them.
// A non-positive maxRows uses a default.
func RenderViolations(w io.Writer, violations []diag.Violation, maxRows int) error {
	if len(violations) == 0 {
		_, err := fmt.Fprintln(w, "No limit violations.")
		return err
	}
	if maxRows <= 0 {
		maxRows = defaultViolationRows
	}
	if _, err := fmt.Fprintf(w, "Limit violations (%d)\n", len(violations)); err != nil {
		return err
	}
	shown := violations
	if len(shown) > maxRows {
		shown = shown[:maxRows]
	}
	headers := []string{"Axis", "Signal", "Step", "Time", "Value", "Limit"}
	rows := make([][]string, 0, len(shown))
	for _, v := range shown {
		rows = append(rows, []string{
			fmt.Sprintf("%d", v.Axis),
			v.Signal.String(),
			fmt.Sprintf("%d", v.Index),
			formatValue(v.Time),
			formatValue(v.Value),
			formatValue(v.Limit),
		})
	}
	rightAlign := map[int]bool{0: true, 2: true, 3: true, 4: true, 5: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	if rest := len(violations) - len(shown); rest > 0 {
		if _, err := fmt.Fprintf(w, "... and %d more\n", rest); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderReport prints the summary, one plot per axis, the limit table and the
// violations of a run.
func RenderReport(w io.Writer, r diag.Report, s diag.Summary, opts PlotOptions) error {
	if err := RenderSummary(w, s); err != nil {
		return err
	}
	for _, ar := range r.Axes {
		if err := PlotAxis(w, ar, opts); err != nil {
			return err
		}
	}
	if err := RenderLimitTable(w, r); err != nil {
		return err
	}
	return RenderViolations(w, r.Violations(-1), 0)
}

// RenderAxisRules prints every axis of in as a rule list, with tf appended when set.
func RenderAxisRules(w io.Writer, in model.Input, tf *float64) error {
	for axis := 0; axis < in.DegreesOfFreedom; axis++ {
		line, err := model.FormatAxisRules(in, axis, tf)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderRuns prints stored runs, oldest first.
func RenderRuns(w io.Writer, runs []model.RunRecord) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs found.")
		return err
	}
	headers := []string{"ID", "Created", "Backend", "DOF", "dt", "Status", "Duration", "Steps", "Error"}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			fmt.Sprintf("%d", run.ID),
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			run.Backend,
			fmt.Sprintf("%d", run.Input.DegreesOfFreedom),
			fmt.Sprintf("%g", run.DeltaTime),
			run.Status.String(),
			fmt.Sprintf("%.3f", run.Duration),
			fmt.Sprintf("%d", run.Steps),
			run.Error,
		})
	}
	rightAlign := map[int]bool{0: true, 3: true, 4: true, 6: true, 7: true}
	for _, line := range formatTable(headers, rows, rightAlign) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
