// Package viewer provides the Bubble Tea report interface.
package viewer

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/verte-zerg/otgbench/internal/diag"
	"github.com/verte-zerg/otgbench/internal/model"
	"github.com/verte-zerg/otgbench/internal/render"
)

const (
	tabSummary = 0
	plotHeight = 14
	factorStep = 0.1
	minFactor  = 0.1
)

var (
	activeNavStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F0F0F0")).
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	inactiveNavStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#B0B0B0")).
				Padding(0, 1).
				Border(lipgloss.RoundedBorder(), true).
				BorderForeground(lipgloss.Color("#4A4A4A"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	cardStyle   = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#4A4A4A"))
	cardTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	cardValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0")).Bold(true)
	tableMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#B8B8B8"))
)

// Run is everything the viewer shows.
type Run struct {
	Title     string
	Backend   string
	Input     model.Input
	Series    model.TimeSeries
	DeltaTime float64
	Options   diag.Options
	// Err is the terminal error of the run, if any.
	Err error
}

// Model implements the Bubble Tea report UI.
type Model struct {
	run     Run
	opts    diag.Options
	report  diag.Report
	summary diag.Summary
	errMsg  string

	tabs       []string
	limitsTab  int
	activeTab  int
	viewports  []viewport.Model
	limitTable table.Model

	width  int
	height int
}

// NewModel constructs a report UI model.
func NewModel(run Run) *Model {
	m := &Model{
		run:  run,
		opts: run.Options,
	}
	if m.opts.Factor <= 0 {
		m.opts = diag.DefaultOptions()
	}
	m.tabs = []string{"Summary"}
	for i := 0; i < run.Input.DegreesOfFreedom; i++ {
		m.tabs = append(m.tabs, fmt.Sprintf("Axis %d", i))
	}
	m.limitsTab = len(m.tabs)
	m.tabs = append(m.tabs, "Limits")
	m.viewports = make([]viewport.Model, len(m.tabs))
	for i := range m.viewports {
		m.viewports[i] = viewport.New(0, 0)
	}
	m.limitTable = table.New(table.WithColumns(limitColumns()), table.WithHeight(1))
	m.limitTable.SetStyles(limitTableStyles())
	m.refreshReport()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
		m.renderTabContents()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.String() == "q" {
			return m, tea.Quit
		}
		switch msg.String() {
		case "left", "h":
			m.moveTab(-1)
			return m, tea.ClearScreen
		case "right", "l":
			m.moveTab(1)
			return m, tea.ClearScreen
		case "=", "+":
			m.opts.Factor = math.Round((m.opts.Factor+factorStep)*10) / 10
			m.refreshReport()
			return m, nil
		case "-":
			m.opts.Factor = math.Max(minFactor, math.Round((m.opts.Factor-factorStep)*10)/10)
			m.refreshReport()
			return m, nil
		case "s":
			if m.opts.Scope == diag.ScopeSignal {
				m.opts.Scope = diag.ScopeAxis
			} else {
				m.opts.Scope = diag.ScopeSignal
			}
			m.refreshReport()
			return m, nil
		case "g", "home":
			if m.activeTab == m.limitsTab {
				m.limitTable.GotoTop()
			} else {
				m.viewports[m.activeTab].GotoTop()
			}
			return m, nil
		case "G", "end":
			if m.activeTab == m.limitsTab {
				m.limitTable.GotoBottom()
			} else {
				m.viewports[m.activeTab].GotoBottom()
			}
			return m, nil
		default:
			if m.activeTab == m.limitsTab {
				var cmd tea.Cmd
				m.limitTable, cmd = m.limitTable.Update(msg)
				return m, cmd
			}
			vp := m.viewports[m.activeTab]
			var cmd tea.Cmd
			vp, cmd = vp.Update(msg)
			m.viewports[m.activeTab] = vp
			return m, cmd
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	headerHeight, bodyHeight, footerHeight := m.layoutHeights()
	header := fitLines(m.renderHeader(), m.width, headerHeight)
	body := fitLines(m.renderBody(), m.width, bodyHeight)
	footer := fitLines(m.renderFooter(), m.width, footerHeight)
	return strings.Join([]string{header, body, footer}, "\n")
}

func (m *Model) layoutHeights() (headerHeight, bodyHeight, footerHeight int) {
	tabsHeight := max(lipgloss.Height(activeNavStyle.Render("X")), 1)
	headerHeight = tabsHeight + 1
	footerHeight = 1
	if m.errMsg != "" {
		footerHeight++
	}
	bodyHeight = max(m.height-headerHeight-footerHeight, 1)
	return headerHeight, bodyHeight, footerHeight
}

func (m *Model) updateLayout() {
	if m.width <= 0 || m.height <= 0 {
		return
	}
	_, vpHeight, _ := m.layoutHeights()
	for i := range m.viewports {
		m.viewports[i].Width = m.width
		m.viewports[i].Height = vpHeight
	}
	m.limitTable.SetWidth(m.width)
	m.limitTable.SetHeight(max(vpHeight-1, 1))
}

func (m *Model) moveTab(delta int) {
	count := len(m.tabs)
	if count == 0 {
		return
	}
	next := m.activeTab + delta
	if next < 0 {
		next = count - 1
	}
	if next >= count {
		next = 0
	}
	m.activeTab = next
	if m.activeTab == m.limitsTab {
		m.limitTable.Focus()
	} else {
		m.limitTable.Blur()
	}
}

// refreshReport re-runs the diagnostic with the current options.
func (m *Model) refreshReport() {
	m.summary = diag.Summarize(m.run.Series)
	m.errMsg = ""
	if m.run.Err != nil {
		m.errMsg = m.run.Err.Error()
	}
	report, err := diag.Analyze(m.run.Series, m.run.Input.Limits, m.run.DeltaTime, m.opts)
	switch {
	case errors.Is(err, diag.ErrEmptySeries):
		m.report = diag.Report{Options: m.opts}
	case err != nil:
		m.report = diag.Report{Options: m.opts}
		if m.errMsg == "" {
			m.errMsg = err.Error()
		}
	default:
		m.report = report
	}
	m.limitTable.SetRows(limitRows(m.report))
	m.renderTabContents()
}

func (m *Model) renderTabContents() {
	width := m.width
	if width <= 0 {
		width = 80
	}
	m.viewports[tabSummary].SetContent(m.renderSummary(width))
	for axis := 0; axis < m.run.Input.DegreesOfFreedom; axis++ {
		m.viewports[axis+1].SetContent(m.renderAxis(axis, width))
	}
}

func (m *Model) renderSummary(width int) string {
	violations := m.report.Violations(-1)
	cards := []string{
		metricCard("Calculation", fmt.Sprintf("%.1f µs", float64(m.summary.FirstCalculation.Nanoseconds())/1e3)),
		metricCard("Duration", fmt.Sprintf("%.3f s", m.summary.Duration)),
		metricCard("Steps", fmt.Sprintf("%d", m.summary.Steps)),
		metricCard("Re-plans", fmt.Sprintf("%d", m.summary.NewCalculations)),
		metricCard("Near lines", fmt.Sprintf("%d", m.report.NearCount())),
		metricCard("Violations", fmt.Sprintf("%d", len(violations))),
	}
	var cardsView string
	if width < 80 {
		cardsView = strings.Join(cards, "\n")
	} else {
		row1 := lipgloss.JoinHorizontal(lipgloss.Top, cards[0], cards[1], cards[2])
		row2 := lipgloss.JoinHorizontal(lipgloss.Top, cards[3], cards[4], cards[5])
		cardsView = lipgloss.JoinVertical(lipgloss.Left, row1, row2)
	}

	var buf bytes.Buffer
	if err := render.RenderAxisRules(&buf, m.run.Input, nil); err != nil {
		fmt.Fprintf(&buf, "Failed to render input: %v\n", err)
	}
	if err := render.RenderViolations(&buf, violations, 0); err != nil {
		fmt.Fprintf(&buf, "Failed to render violations: %v\n", err)
	}
	return strings.TrimRight(cardsView+"\n\n"+buf.String(), "\n")
}

func (m *Model) renderAxis(axis, width int) string {
	if axis >= len(m.report.Axes) {
		return "No samples recorded."
	}
	var buf bytes.Buffer
	opts := render.PlotOptions{Width: render.PlotWidthFor(width, 8), Height: plotHeight, Color: true}
	if err := render.PlotAxis(&buf, m.report.Axes[axis], opts); err != nil {
		return fmt.Sprintf("Failed to render axis %d: %v", axis, err)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func (m *Model) renderTabs() string {
	parts := make([]string, 0, len(m.tabs))
	for i, tab := range m.tabs {
		if i == m.activeTab {
			parts = append(parts, activeNavStyle.Render(tab))
		} else {
			parts = append(parts, inactiveNavStyle.Render(tab))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m *Model) renderHeader() string {
	tabs := padLines(m.renderTabs(), m.width)
	title := m.run.Title
	if title == "" {
		title = m.run.Backend
	}
	settings := fmt.Sprintf("%s  dt=%g  factor=%.1f  scope=%s", title, m.run.DeltaTime, m.opts.Factor, m.opts.Scope)
	return tabs + "\n" + headerStyle.Render(truncateLine(settings, m.width))
}

func (m *Model) renderFooter() string {
	help := headerStyle.Render("Nav: left/right  Scroll: up/down/pgup/pgdn  Factor: -/=  Scope: s  Quit: q")
	if m.errMsg != "" {
		return help + "\n" + errorStyle.Render(truncateLine(m.errMsg, m.width))
	}
	return help
}

func (m *Model) renderBody() string {
	if m.activeTab == m.limitsTab {
		if len(m.report.Axes) == 0 {
			return "No samples recorded."
		}
		return tableMutedStyle.Render(m.limitTable.View())
	}
	return m.viewports[m.activeTab].View()
}

func metricCard(label, value string) string {
	content := fmt.Sprintf("%s\n%s", cardTitleStyle.Render(label), cardValueStyle.Render(value))
	return cardStyle.Render(content)
}

func limitColumns() []table.Column {
	return []table.Column{
		{Title: "Axis", Width: 4},
		{Title: "Signal", Width: 12},
		{Title: "Limit", Width: 10},
		{Title: "Min", Width: 10},
		{Title: "Max", Width: 10},
		{Title: "Near +", Width: 6},
		{Title: "Near -", Width: 6},
	}
}

func limitRows(r diag.Report) []table.Row {
	rows := make([]table.Row, 0, len(r.Axes)*len(diag.Signals))
	for _, ar := range r.Axes {
		for _, sig := range diag.Signals {
			f := ar.Flags[sig]
			rows = append(rows, table.Row{
				fmt.Sprintf("%d", ar.Axis),
				sig.String(),
				fmt.Sprintf("%.4f", f.Upper),
				fmt.Sprintf("%.4f", f.Min),
				fmt.Sprintf("%.4f", f.Max),
				mark(f.NearUpper),
				mark(f.NearLower),
			})
		}
	}
	return rows
}

func mark(v bool) string {
	if v {
		return "yes"
	}
	return "-"
}

func limitTableStyles() table.Styles {
	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(lipgloss.Color("#4A4A4A")).
		Foreground(lipgloss.Color("#C0C0C0")).
		Bold(true).
		Padding(0, 1).
		PaddingLeft(0)
	styles.Cell = styles.Cell.
		Padding(0, 1).
		PaddingLeft(0)
	styles.Selected = styles.Cell.
		Foreground(lipgloss.Color("#F0F0F0")).
		Bold(true)
	return styles
}

func padLines(s string, width int) string {
	if width <= 0 || s == "" {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	return strings.Join(lines, "\n")
}

func padLine(line string, width int) string {
	lineWidth := lipgloss.Width(line)
	if lineWidth < width {
		return line + strings.Repeat(" ", width-lineWidth)
	}
	return line
}

func fitLines(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = padLine(line, width)
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func truncateLine(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}
