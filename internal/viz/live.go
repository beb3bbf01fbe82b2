package viz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/ivpsolve/internal/dynamo"
	"github.com/san-kum/ivpsolve/internal/sim"
)

const (
	canvasWidth     = 40
	canvasHeight    = 16
	historyCapacity = 600
	tickRate        = time.Second / 30
)

type TickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(tickRate, func(t time.Time) tea.Msg { return TickMsg(t) })
}

// LiveConfig sets the interval and the simulated time advanced per frame.
type LiveConfig struct {
	Title string
	T0    float64
	T1    float64
	// Frame is the simulated time per tick; zero spreads the interval over
	// about ten seconds of wall time.
	Frame float64
}

// Model streams an integration into the terminal: a phase portrait of the
// first two components, a time series and the stepper's running state.
type Model struct {
	title   string
	sys     dynamo.System
	stepper dynamo.Stepper
	y0      dynamo.State

	state  dynamo.State
	t      float64
	t0, t1 float64
	frame  float64
	snap   dynamo.Snapshot

	running  bool
	done     bool
	err      error
	showHelp bool

	times  []float64
	series [][]float64
	energy []float64

	params        map[string]float64
	initialParams map[string]float64
	paramKeys     []string
	selected      int

	canvas *Canvas
}

// NewModel prepares a live run of sys from y0 (the default state when nil).
func NewModel(sys dynamo.System, stepper dynamo.Stepper, y0 dynamo.State, cfg LiveConfig) Model {
	if y0 == nil {
		y0 = sys.DefaultState()
	}
	frame := cfg.Frame
	if frame <= 0 {
		frame = (cfg.T1 - cfg.T0) / (10 * float64(time.Second/tickRate))
	}

	params := make(map[string]float64)
	if c, ok := sys.(dynamo.Configurable); ok {
		for k, v := range c.GetParams() {
			params[k] = v
		}
	}
	keys := make([]string, 0, len(params))
	initialParams := make(map[string]float64, len(params))
	for k, v := range params {
		keys = append(keys, k)
		initialParams[k] = v
	}
	sort.Strings(keys)

	m := Model{
		title:         cfg.Title,
		sys:           sys,
		stepper:       stepper,
		y0:            y0.Clone(),
		t0:            cfg.T0,
		t1:            cfg.T1,
		frame:         frame,
		running:       true,
		params:        params,
		initialParams: initialParams,
		paramKeys:     keys,
		canvas:        NewCanvas(canvasWidth, canvasHeight),
	}
	m.reset()
	return m
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "r":
			m.reset()
		case "s":
			if !m.running {
				m.Advance()
			}
		case "tab":
			m.cycleParam()
		case "up", "k":
			m.adjustParam(1.05)
		case "down", "j":
			m.adjustParam(0.95)
		case "t":
			NextTheme()
		case "?":
			m.showHelp = !m.showHelp
		}
	case TickMsg:
		if m.running {
			m.Advance()
		}
		return m, tick()
	}
	return m, nil
}

// Advance integrates one frame and records every accepted step.
func (m *Model) Advance() {
	if m.done {
		return
	}
	end := min(m.t+m.frame, m.t1)
	if !(end > m.t) {
		m.done = true
		return
	}

	start := m.t
	opts := sim.Options{
		Frequency: 0,
		Verify:    true,
		Observer: func(t float64, y dynamo.State, snap dynamo.Snapshot) dynamo.Signal {
			m.snap = snap
			if t > start {
				m.record(t, y)
			}
			return dynamo.Continue
		},
	}

	t, y, err := sim.Solve(context.Background(), m.sys.Derive, m.state, m.t, end, m.stepper, opts)
	if y != nil {
		m.t, m.state = t, y
	}
	if err != nil {
		m.err, m.done = err, true
		return
	}
	if m.t >= m.t1 {
		m.done = true
	}
}

func (m *Model) record(t float64, y dynamo.State) {
	m.times = appendCapped(m.times, t)
	for i := range m.series {
		m.series[i] = appendCapped(m.series[i], y[i])
	}
	if h, ok := m.sys.(dynamo.Hamiltonian); ok {
		m.energy = appendCapped(m.energy, h.Energy(y))
	}
}

func appendCapped(s []float64, v float64) []float64 {
	s = append(s, v)
	if len(s) > historyCapacity {
		s = s[1:]
	}
	return s
}

// reset restores the initial state, parameters and stepper.
func (m *Model) reset() {
	m.state, m.t = m.y0.Clone(), m.t0
	m.done, m.err = false, nil
	m.times = []float64{m.t0}
	m.series = make([][]float64, len(m.y0))
	for i := range m.series {
		m.series[i] = []float64{m.y0[i]}
	}
	m.energy = m.energy[:0]
	if h, ok := m.sys.(dynamo.Hamiltonian); ok {
		m.energy = append(m.energy, h.Energy(m.y0))
	}

	if r, ok := m.stepper.(dynamo.Resetter); ok {
		r.Reset()
	}
	m.snap = m.stepper.Snapshot()

	if c, ok := m.sys.(dynamo.Configurable); ok {
		for k, v := range m.initialParams {
			m.params[k] = v
			_ = c.SetParam(k, v)
		}
	}
}

func (m *Model) cycleParam() {
	if len(m.paramKeys) == 0 {
		return
	}
	m.selected = (m.selected + 1) % len(m.paramKeys)
}

// adjustParam scales the selected parameter. Values the system rejects are
// left unchanged.
func (m *Model) adjustParam(factor float64) {
	if len(m.paramKeys) == 0 {
		return
	}
	c, ok := m.sys.(dynamo.Configurable)
	if !ok {
		return
	}
	key := m.paramKeys[m.selected]
	val := m.params[key] * factor
	if val == 0 {
		val = 1e-3 * factor
	}
	if err := c.SetParam(key, val); err == nil {
		m.params[key] = val
	}
}

// Time, State and Done expose the run for callers driving the model
// without a terminal.
func (m Model) Time() float64              { return m.t }
func (m Model) State() dynamo.State        { return m.state }
func (m Model) Done() bool                 { return m.done }
func (m Model) Err() error                 { return m.err }
func (m Model) Params() map[string]float64 { return m.params }

func (m Model) View() string {
	st := styles()

	m.canvas.Clear()
	if len(m.series) >= 2 {
		m.canvas.Plot(m.series[0], m.series[1])
	} else if len(m.series) == 1 {
		m.canvas.Plot(m.times, m.series[0])
	}

	var s strings.Builder
	s.WriteString(st.header.Render(strings.ToUpper(m.title)) + "\n")

	switch {
	case m.err != nil:
		s.WriteString(st.failed.Render("FAILED") + "\n" + st.muted.Render(m.err.Error()) + "\n\n")
	case m.done:
		s.WriteString(st.running.Render("DONE") + "\n\n")
	case m.running:
		s.WriteString(st.running.Render("RUNNING") + "\n\n")
	default:
		s.WriteString(st.paused.Render("PAUSED") + "\n\n")
	}

	progress := 0.0
	if m.t1 > m.t0 {
		progress = (m.t - m.t0) / (m.t1 - m.t0)
	}
	s.WriteString(ProgressBar(progress, 30) + "\n\n")

	if len(m.series) > 0 && len(m.series[0]) > 1 {
		chart := asciigraph.Plot(m.series[0], asciigraph.Height(5), asciigraph.Width(36), asciigraph.Caption("x0(t)"))
		s.WriteString(st.graph.Render(chart) + "\n")
	}

	row := func(label, value string) {
		s.WriteString(st.label.Render(label) + st.value.Render(value) + "\n")
	}
	row("Time", fmt.Sprintf("%.4f", m.t))
	row("Method", m.snap.Method)
	row("Step", fmt.Sprintf("%.3e", m.snap.TimeStep))
	if m.snap.Adaptive {
		row("Error", fmt.Sprintf("%.3e", m.snap.Error))
		row("Rejected", fmt.Sprintf("%d / %d", m.snap.Rejected, m.snap.Accepted+m.snap.Rejected))
	}
	if m.snap.Implicit {
		row("Newton", fmt.Sprintf("%d it, converged=%t", m.snap.Iterations, m.snap.Converged))
	}
	if len(m.energy) > 0 {
		row("Energy", fmt.Sprintf("%.6g", m.energy[len(m.energy)-1]))
		row("", Sparkline(m.energy, 30))
	}

	s.WriteString("\nPARAMETERS\n")
	if len(m.paramKeys) == 0 {
		s.WriteString(st.muted.Render("  (none)") + "\n")
	}
	for i, k := range m.paramKeys {
		line := fmt.Sprintf("%-10s %.4g", k, m.params[k])
		if i == m.selected {
			s.WriteString(st.active.Render("> "+line) + "\n")
		} else {
			s.WriteString("  " + st.muted.Render(line) + "\n")
		}
	}

	s.WriteString(st.muted.Render("\nSP:Pause S:Step R:Reset Q:Quit\nTab/↑↓:Tune T:Theme ?:Help"))

	main := lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Padding(1, 2).Render(m.canvas.String()),
		st.panel.Render(s.String()))
	if m.showHelp {
		return helpText + "\n" + main
	}
	return main
}

const helpText = `Space  pause or resume
S      single frame while paused
R      restart from the initial state
Tab    select parameter
Up/K   increase parameter by 5%
Down/J decrease parameter by 5%
T      cycle themes
Q      quit`
