package viz

import (
	"math"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/ivpsolve/internal/config"
	"github.com/san-kum/ivpsolve/internal/dynamo"
	"github.com/san-kum/ivpsolve/internal/experiment"
	"github.com/san-kum/ivpsolve/internal/integrators"
	"github.com/san-kum/ivpsolve/internal/physics"
)

func key(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestCanvasPlot(t *testing.T) {
	c := NewCanvas(4, 2)
	c.Plot([]float64{0, 1}, []float64{0, 1})

	// bottom-left and top-right pixels of an 8x8 dot matrix
	if c.Grid[1][0]&pixelMap[3][0] == 0 {
		t.Error("start of the diagonal not drawn")
	}
	if c.Grid[0][3]&pixelMap[0][1] == 0 {
		t.Error("end of the diagonal not drawn")
	}

	c.Clear()
	if strings.Trim(c.String(), "⠀\n") != "" {
		t.Error("clear left pixels set")
	}

	c.Set(-1, 100)
	c.Plot(nil, nil)

	c.Scatter([]float64{0, 1, math.NaN()}, []float64{0, 1, 0})
	if c.Grid[1][0]&pixelMap[3][0] == 0 || c.Grid[0][3]&pixelMap[0][1] == 0 {
		t.Error("scatter endpoints not drawn")
	}
	if c.Grid[0][1] != brailleBlank || c.Grid[1][2] != brailleBlank {
		t.Error("scatter connected its points")
	}
}

func TestSparkline(t *testing.T) {
	if got := Sparkline([]float64{0, 1}, 10); got != "▁█" {
		t.Errorf("got %q", got)
	}
	if got := []rune(Sparkline(make([]float64, 50), 10)); len(got) != 10 {
		t.Errorf("expected 10 cells, got %d", len(got))
	}
}

func newSpringModel() Model {
	return NewModel(physics.NewSpringMass(), &integrators.RK4{Tau: 0.125}, nil,
		LiveConfig{Title: "spring", T1: 1, Frame: 0.5})
}

func TestModelAdvance(t *testing.T) {
	m := newSpringModel()
	m.Advance()
	if m.Time() != 0.5 || m.Done() {
		t.Fatalf("after one frame: t=%g done=%t", m.Time(), m.Done())
	}
	m.Advance()
	if m.Time() != 1 || !m.Done() {
		t.Fatalf("after two frames: t=%g done=%t", m.Time(), m.Done())
	}
	if len(m.times) != 9 || len(m.series[0]) != 9 {
		t.Errorf("expected 9 recorded points, got %d", len(m.times))
	}
	if !strings.Contains(m.View(), "DONE") {
		t.Error("view does not report completion")
	}

	m.Advance()
	if m.Time() != 1 {
		t.Error("finished model kept integrating")
	}
}

func TestModelKeys(t *testing.T) {
	var tm tea.Model = newSpringModel()

	tm, _ = tm.Update(key(" "))
	if tm.(Model).running {
		t.Fatal("space should pause")
	}
	tm, _ = tm.Update(TickMsg{})
	if tm.(Model).Time() != 0 {
		t.Error("paused model advanced on tick")
	}
	tm, _ = tm.Update(key("s"))
	if tm.(Model).Time() != 0.5 {
		t.Errorf("single step should advance one frame, t=%g", tm.(Model).Time())
	}

	// parameters are sorted: damping, mass, stiffness
	tm, _ = tm.Update(key("tab"))
	tm, _ = tm.Update(key("up"))
	factor := 1.05
	if got, want := tm.(Model).Params()["mass"], physics.DefaultMass*factor; got != want {
		t.Errorf("mass %g, want %g", got, want)
	}

	tm, _ = tm.Update(key("r"))
	m := tm.(Model)
	if m.Time() != 0 || m.Params()["mass"] != physics.DefaultMass || m.State()[0] != 1 {
		t.Errorf("reset did not restore: t=%g mass=%g y=%v", m.Time(), m.Params()["mass"], m.State())
	}

	if _, cmd := tm.Update(key("q")); cmd == nil {
		t.Error("q should quit")
	}
}

type runaway struct{}

func (runaway) Derive(_ float64, y dynamo.State) dynamo.State { return y.Scale(1e200) }
func (runaway) StateDim() int                                 { return 1 }
func (runaway) DefaultState() dynamo.State                    { return dynamo.State{1} }

func TestModelDivergence(t *testing.T) {
	m := NewModel(runaway{}, &integrators.Euler{Tau: 0.125}, nil, LiveConfig{T1: 1, Frame: 1})
	m.Advance()
	if m.Err() == nil || !m.Done() {
		t.Fatal("expected divergence to stop the model")
	}
	if !strings.Contains(m.View(), "FAILED") {
		t.Error("view does not report the failure")
	}
}

func TestAppFlow(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.T1, cfg.Tau = 1, 0.125

	var tm tea.Model = NewApp(experiment.NewRegistry(), cfg)
	if !strings.Contains(tm.View(), "spring-mass") {
		t.Fatal("problem list missing")
	}

	tm, _ = tm.Update(key("enter"))
	app := tm.(App)
	if app.stage != stageMethod || app.problem != "decay" {
		t.Fatalf("expected method stage for decay, got stage %d problem %s", app.stage, app.problem)
	}

	tm, cmd := tm.Update(key("enter"))
	app = tm.(App)
	if app.stage != stageLive || cmd == nil {
		t.Fatalf("expected live stage, got %d (err %v)", app.stage, app.err)
	}

	tm, _ = tm.Update(TickMsg{})
	if tm.(App).live.Time() == 0 {
		t.Error("live model did not advance")
	}

	tm, _ = tm.Update(key("esc"))
	if tm.(App).stage != stageMethod {
		t.Error("esc should return to the method list")
	}
}
