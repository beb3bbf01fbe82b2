package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/ivpsolve/internal/config"
	"github.com/san-kum/ivpsolve/internal/experiment"
)

var problemInfo = map[string]string{
	"spring-mass": "harmonic oscillator",
	"exponent":    "accelerating oscillation",
	"decay":       "relaxation to cos t",
	"stiff-decay": "stiff relaxation",
	"vanderpol":   "limit cycle",
	"lorenz":      "butterfly attractor",
	"rossler":     "spiral chaos",
	"duffing":     "forced nonlinear oscillator",
	"pendulum":    "nonlinear pendulum",
	"double-well": "bistable potential",
	"three-body":  "orbital chaos",
}

const (
	stageProblem = iota
	stageMethod
	stageLive
)

// App lets the user pick a problem and a method, then runs the live view.
type App struct {
	reg  *experiment.Registry
	base *config.Config

	stage    int
	cursor   int
	problems []string
	methods  []string
	problem  string
	err      error

	live Model
}

func NewApp(reg *experiment.Registry, base *config.Config) App {
	return App{
		reg:      reg,
		base:     base,
		problems: reg.ListProblems(),
		methods:  reg.ListMethods(),
	}
}

func (a App) Init() tea.Cmd { return nil }

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if a.stage == stageLive {
		if k, ok := msg.(tea.KeyMsg); ok && k.String() == "esc" {
			a.stage, a.cursor = stageMethod, 0
			return a, nil
		}
		next, cmd := a.live.Update(msg)
		a.live = next.(Model)
		return a, cmd
	}

	k, ok := msg.(tea.KeyMsg)
	if !ok {
		return a, nil
	}

	items := a.items()
	switch k.String() {
	case "q", "ctrl+c":
		return a, tea.Quit
	case "up", "k":
		if a.cursor > 0 {
			a.cursor--
		}
	case "down", "j":
		if a.cursor < len(items)-1 {
			a.cursor++
		}
	case "esc", "backspace":
		if a.stage == stageMethod {
			a.stage, a.cursor = stageProblem, 0
		}
	case "enter":
		if a.stage == stageProblem {
			a.problem = items[a.cursor]
			a.stage, a.cursor, a.err = stageMethod, 0, nil
			return a, nil
		}
		return a.start(items[a.cursor])
	}
	return a, nil
}

func (a App) items() []string {
	if a.stage == stageProblem {
		return a.problems
	}
	return a.methods
}

func (a App) start(method string) (tea.Model, tea.Cmd) {
	cfg := a.base.Clone()
	cfg.Problem, cfg.Method = a.problem, method
	cfg.InitState, cfg.Params = nil, nil

	exp := experiment.New(cfg, a.reg)
	if err := exp.Setup(); err != nil {
		a.err = err
		return a, nil
	}

	a.live = NewModel(exp.System(), exp.Simulator().Stepper(), nil, LiveConfig{
		Title: cfg.Problem + " / " + cfg.Method,
		T0:    cfg.T0,
		T1:    cfg.T1,
	})
	a.stage = stageLive
	return a, a.live.Init()
}

func (a App) View() string {
	if a.stage == stageLive {
		return a.live.View() + "\n" + styles().muted.Render("Esc: back to methods")
	}

	st := styles()
	var s strings.Builder
	if a.stage == stageProblem {
		s.WriteString(st.header.Render("PROBLEM") + "\n")
	} else {
		s.WriteString(st.header.Render(strings.ToUpper(a.problem)+" / METHOD") + "\n")
	}

	for i, item := range a.items() {
		line := item
		if info, ok := problemInfo[item]; ok && a.stage == stageProblem {
			line = fmt.Sprintf("%-12s %s", item, st.muted.Render(info))
		}
		if i == a.cursor {
			s.WriteString(st.active.Render("> ") + line + "\n")
		} else {
			s.WriteString("  " + line + "\n")
		}
	}

	if a.err != nil {
		s.WriteString("\n" + st.failed.Render(a.err.Error()) + "\n")
	}
	s.WriteString("\n" + st.muted.Render("↑↓: move  Enter: select  Esc: back  Q: quit"))
	return s.String()
}
