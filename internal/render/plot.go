// Package render draws diagnostic reports as terminal text.
package render

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/verte-zerg/otgbench/internal/diag"
)

type lineStyle struct {
	name   string
	period int
	on     int
}

type ansiColor struct {
	name string
	code string
}

// curve is one plotted sequence.
type curve struct {
	name   string
	values []float64
	color  ansiColor
	style  lineStyle
}

// refLine is a horizontal reference line at a fixed value.
type refLine struct {
	name  string
	value float64
	color ansiColor
}

const (
	defaultPlotHeight   = 12
	minPlotWidth        = 10
	axisSeparator       = " │ "
	colorReset          = "\x1b[0m"
	terminalWidthBackup = 80
	labelPrecision      = 3
)

var (
	solid  = lineStyle{name: "solid", period: 1, on: 1}
	dashed = lineStyle{name: "dashed", period: 6, on: 3}
)

var (
	colorBlue   = ansiColor{name: "blue", code: "\x1b[34m"}
	colorYellow = ansiColor{name: "yellow", code: "\x1b[33m"}
	colorGreen  = ansiColor{name: "green", code: "\x1b[32m"}
	colorRed    = ansiColor{name: "red", code: "\x1b[31m"}
)

var signalColors = map[diag.Signal]ansiColor{
	diag.Velocity:     colorYellow,
	diag.Acceleration: colorGreen,
	diag.Jerk:         colorRed,
}

// PlotOptions size and color a plot. Zero Width fits the terminal.
type PlotOptions struct {
	Width  int
	Height int
	Color  bool
}

// PlotAxis draws position, velocity, acceleration and jerk of one axis on a shared
// value scale, with a dashed reference line for every limit classified as near.
func PlotAxis(w io.Writer, ar diag.AxisReport, opts PlotOptions) error {
	curves := []curve{
		{name: "r", values: ar.Position, color: colorBlue, style: solid},
		{name: "v", values: ar.Velocity, color: signalColors[diag.Velocity], style: solid},
		{name: "a", values: ar.Acceleration, color: signalColors[diag.Acceleration], style: solid},
		{name: "j", values: ar.Jerk, color: signalColors[diag.Jerk], style: solid},
	}
	var refs []refLine
	for _, sig := range diag.Signals {
		f := ar.Flags[sig]
		if f.NearUpper {
			refs = append(refs, refLine{name: "+" + sig.Symbol() + "Max", value: f.Upper, color: signalColors[sig]})
		}
		if f.NearLower {
			refs = append(refs, refLine{name: "-" + sig.Symbol() + "Max", value: f.Lower, color: signalColors[sig]})
		}
	}
	title := fmt.Sprintf("Axis %d", ar.Axis)
	return plotCurves(w, title, curves, refs, opts)
}

func plotCurves(w io.Writer, title string, curves []curve, refs []refLine, opts PlotOptions) error {
	curves = filterCurves(curves)
	if len(curves) == 0 {
		return nil
	}

	height := opts.Height
	if height <= 0 {
		height = defaultPlotHeight
	}

	scaled := make([]curve, 0, len(curves))
	minVal, maxVal := math.Inf(1), math.Inf(-1)
	width := opts.Width
	for _, c := range curves {
		lo, hi := minMax(c.values)
		minVal = math.Min(minVal, lo)
		maxVal = math.Max(maxVal, hi)
	}
	for _, r := range refs {
		minVal = math.Min(minVal, r.value)
		maxVal = math.Max(maxVal, r.value)
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		minVal--
		maxVal++
	}
	labels := makeAxisLabels(height, minVal, maxVal)
	labelWidth := 0
	for _, l := range labels {
		labelWidth = max(labelWidth, runewidth.StringWidth(l))
	}
	if width <= 0 {
		width = PlotWidthFor(terminalWidth(), labelWidth)
	}
	width = max(width, minPlotWidth)
	for _, c := range curves {
		c.values = resampleSeries(c.values, width)
		scaled = append(scaled, c)
	}

	layers := make([][][]uint8, 0, len(scaled)+len(refs))
	colors := make([]ansiColor, 0, len(scaled)+len(refs))
	for _, r := range refs {
		cells := makeCells(height, width)
		row := valueToRow(r.value, minVal, maxVal, height*4)
		for px := 0; px < width*2; px++ {
			if dashed.shouldPlot(px) {
				setBrailleDot(cells, px, row)
			}
		}
		layers = append(layers, cells)
		colors = append(colors, r.color)
	}
	for _, c := range scaled {
		cells := makeCells(height, width)
		prevX, prevY := -1, -1
		for x, v := range c.values {
			px, py := x*2, valueToRow(v, minVal, maxVal, height*4)
			if prevX >= 0 {
				drawLine(prevX, prevY, px, py, func(dx, dy int) {
					if c.style.shouldPlot(dx) {
						setBrailleDot(cells, dx, dy)
					}
				})
			} else if c.style.shouldPlot(px) {
				setBrailleDot(cells, px, py)
			}
			prevX, prevY = px, py
		}
		layers = append(layers, cells)
		colors = append(colors, c.color)
	}

	useColor := opts.Color && os.Getenv("NO_COLOR") == ""
	if title != "" {
		if _, err := fmt.Fprintln(w, title); err != nil {
			return err
		}
	}
	for y := 0; y < height; y++ {
		var row strings.Builder
		row.WriteString(padCell(labels[y], labelWidth, true))
		row.WriteString(axisSeparator)
		for x := 0; x < width; x++ {
			mask, layer := composeCell(layers, x, y)
			ch := brailleFromMask(mask)
			if useColor && layer >= 0 {
				row.WriteString(colors[layer].code)
				row.WriteRune(ch)
				row.WriteString(colorReset)
			} else {
				row.WriteRune(ch)
			}
		}
		if _, err := fmt.Fprintln(w, row.String()); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w, renderLegend(scaled, refs, useColor)); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

func filterCurves(curves []curve) []curve {
	out := make([]curve, 0, len(curves))
	for _, c := range curves {
		if len(c.values) == 0 {
			continue
		}
		out = append(out, c)
	}
	return out
}

// PlotWidthFor computes a plot width that fits within the total available width next
// to value labels of labelWidth columns.
func PlotWidthFor(totalWidth, labelWidth int) int {
	if totalWidth <= 0 {
		return minPlotWidth
	}
	plotWidth := totalWidth - labelWidth - runewidth.StringWidth(axisSeparator)
	return max(plotWidth, minPlotWidth)
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return terminalWidthBackup
	}
	return width
}

// ShouldUseColor reports whether w is a terminal that accepts ANSI colors.
func ShouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

// makeAxisLabels labels the top, middle and bottom rows with their values.
func makeAxisLabels(height int, minVal, maxVal float64) []string {
	labels := make([]string, height)
	if height <= 0 {
		return labels
	}
	labels[0] = formatValue(maxVal)
	if height > 2 {
		labels[height/2] = formatValue(maxVal - (maxVal-minVal)*float64(height/2)/float64(height-1))
	}
	if height > 1 {
		labels[height-1] = formatValue(minVal)
	}
	return labels
}

func formatValue(v float64) string {
	return fmt.Sprintf("%.*f", labelPrecision, v)
}

func makeCells(height, width int) [][]uint8 {
	cells := make([][]uint8, height)
	for y := 0; y < height; y++ {
		cells[y] = make([]uint8, width)
	}
	return cells
}

// composeCell merges the dots of every layer; the color is taken from the last layer
// that has a dot in the cell, so curves draw over reference lines.
func composeCell(layers [][][]uint8, x, y int) (uint8, int) {
	var mask uint8
	layer := -1
	for i, cells := range layers {
		if y < 0 || y >= len(cells) {
			continue
		}
		if x < 0 || x >= len(cells[y]) {
			continue
		}
		cellMask := cells[y][x]
		if cellMask == 0 {
			continue
		}
		layer = i
		mask |= cellMask
	}
	return mask, layer
}

func (ls lineStyle) shouldPlot(x int) bool {
	if ls.period <= 1 {
		return true
	}
	if x < 0 {
		x = -x
	}
	return x%ls.period < ls.on
}

// resampleSeries maps values onto width columns. Downsampling keeps the sample with the
// largest magnitude of each bucket so short jerk spikes stay visible.
func resampleSeries(values []float64, width int) []float64 {
	if len(values) == 0 || width <= 0 {
		return nil
	}
	if len(values) == width {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, width)
	if len(values) > width {
		for i := 0; i < width; i++ {
			start := int(float64(i) * float64(len(values)) / float64(width))
			end := int(float64(i+1) * float64(len(values)) / float64(width))
			if end <= start {
				end = start + 1
			}
			if end > len(values) {
				end = len(values)
			}
			peak := values[start]
			for _, v := range values[start+1 : end] {
				if math.Abs(v) > math.Abs(peak) {
					peak = v
				}
			}
			out[i] = peak
		}
		return out
	}
	if width == 1 || len(values) == 1 {
		for i := range out {
			out[i] = values[0]
		}
		return out
	}
	for i := 0; i < width; i++ {
		pos := float64(i) * float64(len(values)-1) / float64(width-1)
		idx := int(math.Floor(pos))
		if idx >= len(values)-1 {
			out[i] = values[len(values)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = values[idx]*(1-frac) + values[idx+1]*frac
	}
	return out
}

func minMax(values []float64) (float64, float64) {
	minVal := math.Inf(1)
	maxVal := math.Inf(-1)
	for _, v := range values {
		minVal = math.Min(minVal, v)
		maxVal = math.Max(maxVal, v)
	}
	if math.IsInf(minVal, 1) {
		minVal = 0
	}
	if math.IsInf(maxVal, -1) {
		maxVal = 0
	}
	return minVal, maxVal
}

func valueToRow(v, minVal, maxVal float64, height int) int {
	if height <= 1 {
		return 0
	}
	pos := (v - minVal) / (maxVal - minVal)
	row := int(math.Round((1 - pos) * float64(height-1)))
	if row < 0 {
		row = 0
	}
	if row >= height {
		row = height - 1
	}
	return row
}

func renderLegend(curves []curve, refs []refLine, useColor bool) string {
	parts := make([]string, 0, len(curves)+len(refs))
	marker := brailleFromMask(0x01)
	for _, c := range curves {
		parts = append(parts, colorize(fmt.Sprintf("%c %s", marker, c.name), c.color, useColor))
	}
	for _, r := range refs {
		label := fmt.Sprintf("%c %s=%s (%s)", marker, r.name, formatValue(r.value), dashed.name)
		parts = append(parts, colorize(label, r.color, useColor))
	}
	return "Legend: " + strings.Join(parts, "  ")
}

func colorize(s string, c ansiColor, useColor bool) string {
	if !useColor {
		return s
	}
	return c.code + s + colorReset
}

func drawLine(x0, y0, x1, y1 int, plot func(x, y int)) {
	dx := int(math.Abs(float64(x1 - x0)))
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -int(math.Abs(float64(y1 - y0)))
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		plot(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			if x0 == x1 {
				break
			}
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			if y0 == y1 {
				break
			}
			err += dx
			y0 += sy
		}
	}
}

func setBrailleDot(cells [][]uint8, x, y int) {
	if y < 0 || x < 0 {
		return
	}
	cellY := y / 4
	cellX := x / 2
	if cellY >= len(cells) || cellX >= len(cells[cellY]) {
		return
	}
	cells[cellY][cellX] |= brailleDotMask(x%2, y%4)
}

func brailleDotMask(x, y int) uint8 {
	switch {
	case x == 0 && y == 0:
		return 0x01
	case x == 0 && y == 1:
		return 0x02
	case x == 0 && y == 2:
		return 0x04
	case x == 0 && y == 3:
		return 0x40
	case x == 1 && y == 0:
		return 0x08
	case x == 1 && y == 1:
		return 0x10
	case x == 1 && y == 2:
		return 0x20
	case x == 1 && y == 3:
		return 0x80
	default:
		return 0
	}
}

func brailleFromMask(mask uint8) rune {
	return rune(0x2800 + int(mask))
}
