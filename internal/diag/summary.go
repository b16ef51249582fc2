package diag

import (
	"time"

	"github.com/verte-zerg/otgbench/internal/model"
)

// Summary holds the scalar results of a run.
type Summary struct {
	Steps int
	// Duration is the trajectory duration reported with the first output.
	Duration float64
	// FirstCalculation is the compute time of the first step.
	FirstCalculation time.Duration
	FinalTime        float64
	NewCalculations  int
}

// Field is a named scalar of a summary.
type Field struct {
	Name  string
	Unit  string
	Value float64
}

// Summarize collects the scalar results of series.
func Summarize(series model.TimeSeries) Summary {
	var s Summary
	s.Steps = len(series)
	if len(series) == 0 {
		return s
	}
	s.Duration = series[0].Output.Duration
	s.FirstCalculation = series[0].Output.Calculation
	s.FinalTime = series[len(series)-1].Time
	for _, sample := range series {
		if sample.Output.NewCalculation {
			s.NewCalculations++
		}
	}
	return s
}

// Fields returns the summary as named values in a fixed order.
func (s Summary) Fields() []Field {
	return []Field{
		{Name: "Calculation duration", Unit: "µs", Value: float64(s.FirstCalculation) / float64(time.Microsecond)},
		{Name: "Trajectory duration", Unit: "s", Value: s.Duration},
		{Name: "Steps", Value: float64(s.Steps)},
		{Name: "Final time", Unit: "s", Value: s.FinalTime},
		{Name: "New calculations", Value: float64(s.NewCalculations)},
	}
}
