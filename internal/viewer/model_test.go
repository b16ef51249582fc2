package viewer

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/verte-zerg/otgbench/internal/diag"
	"github.com/verte-zerg/otgbench/internal/model"
	"github.com/verte-zerg/otgbench/internal/otg"
	"github.com/verte-zerg/otgbench/internal/quintic"
)

func unitRun(t *testing.T) Run {
	t.Helper()
	in := model.Input{
		DegreesOfFreedom: 2,
		Current:          model.NewKinematicState(2),
		Target:           model.KinematicState{{Position: 1}, {Position: -0.5}},
		Limits: []model.Limits{
			{MaxVelocity: 1, MaxAcceleration: 1, MaxJerk: 1},
			{MaxVelocity: 1, MaxAcceleration: 1, MaxJerk: 1},
		},
	}
	const dt = 0.01
	work := in.Clone()
	series, err := otg.Run(quintic.New(dt), &work)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return Run{
		Title:     "unit",
		Backend:   "quintic",
		Input:     in,
		Series:    series,
		DeltaTime: dt,
		Options:   diag.DefaultOptions(),
	}
}

func sized(t *testing.T, m *Model) *Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(*Model)
}

func key(m *Model, s string) *Model {
	var msg tea.KeyMsg
	switch s {
	case "left":
		msg = tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		msg = tea.KeyMsg{Type: tea.KeyRight}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
	next, _ := m.Update(msg)
	return next.(*Model)
}

func TestNewModelTabs(t *testing.T) {
	m := NewModel(unitRun(t))
	want := []string{"Summary", "Axis 0", "Axis 1", "Limits"}
	if len(m.tabs) != len(want) {
		t.Fatalf("expected tabs %v, got %v", want, m.tabs)
	}
	for i := range want {
		if m.tabs[i] != want[i] {
			t.Fatalf("expected tabs %v, got %v", want, m.tabs)
		}
	}
	if m.limitsTab != 3 {
		t.Fatalf("expected limits tab 3, got %d", m.limitsTab)
	}
}

func TestViewEmptyBeforeSize(t *testing.T) {
	m := NewModel(unitRun(t))
	if got := m.View(); got != "" {
		t.Fatalf("expected empty view before a size message, got %q", got)
	}
}

func TestViewFitsWindow(t *testing.T) {
	m := sized(t, NewModel(unitRun(t)))
	view := m.View()
	lines := strings.Split(view, "\n")
	if len(lines) != 30 {
		t.Fatalf("expected 30 lines, got %d", len(lines))
	}
	if !strings.Contains(view, "Summary") || !strings.Contains(view, "factor=1.4") {
		t.Fatalf("expected header in view:\n%s", view)
	}
	if !strings.Contains(view, "Steps") {
		t.Fatalf("expected summary cards in view:\n%s", view)
	}
}

func TestTabNavigationWraps(t *testing.T) {
	m := sized(t, NewModel(unitRun(t)))
	m = key(m, "left")
	if m.activeTab != m.limitsTab {
		t.Fatalf("expected wrap to limits tab, got %d", m.activeTab)
	}
	if !m.limitTable.Focused() {
		t.Fatalf("expected limit table focused on limits tab")
	}
	m = key(m, "l")
	if m.activeTab != tabSummary {
		t.Fatalf("expected wrap to summary, got %d", m.activeTab)
	}
	m = key(m, "right")
	if m.activeTab != 1 {
		t.Fatalf("expected axis tab, got %d", m.activeTab)
	}
	if !strings.Contains(m.View(), "Axis 0") {
		t.Fatalf("expected axis plot title in view")
	}
}

func TestLimitRows(t *testing.T) {
	m := NewModel(unitRun(t))
	rows := m.limitTable.Rows()
	if len(rows) != 2*len(diag.Signals) {
		t.Fatalf("expected %d rows, got %d", 2*len(diag.Signals), len(rows))
	}
	if rows[0][0] != "0" || rows[0][1] != diag.Velocity.String() {
		t.Fatalf("unexpected first row %v", rows[0])
	}
}

func TestFactorAndScopeKeys(t *testing.T) {
	m := sized(t, NewModel(unitRun(t)))
	m = key(m, "=")
	if m.opts.Factor != 1.5 || m.report.Options.Factor != 1.5 {
		t.Fatalf("expected factor 1.5, got %v / %v", m.opts.Factor, m.report.Options.Factor)
	}
	for i := 0; i < 30; i++ {
		m = key(m, "-")
	}
	if m.opts.Factor != minFactor {
		t.Fatalf("expected factor clamped to %v, got %v", minFactor, m.opts.Factor)
	}
	m = key(m, "s")
	if m.report.Options.Scope != diag.ScopeAxis {
		t.Fatalf("expected axis scope, got %v", m.report.Options.Scope)
	}
	m = key(m, "s")
	if m.report.Options.Scope != diag.ScopeSignal {
		t.Fatalf("expected signal scope, got %v", m.report.Options.Scope)
	}
}

func TestQuitKeys(t *testing.T) {
	m := NewModel(unitRun(t))
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatalf("expected quit command for ctrl+c")
	}
}

func TestRunErrorShownInFooter(t *testing.T) {
	run := unitRun(t)
	run.Series = nil
	run.Err = errors.New("step 0: infeasible input")
	m := sized(t, NewModel(run))
	view := m.View()
	if !strings.Contains(view, "infeasible input") {
		t.Fatalf("expected error in footer:\n%s", view)
	}
	m = key(m, "left")
	if !strings.Contains(m.View(), "No samples recorded.") {
		t.Fatalf("expected empty limits message")
	}
}

func TestTruncateLine(t *testing.T) {
	if got := truncateLine("abcdefgh", 5); got != "ab..." {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := truncateLine("abc", 5); got != "abc" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := fitLines("a\nb\nc", 2, 2); got != "a \nb " {
		t.Fatalf("unexpected fit %q", got)
	}
}
