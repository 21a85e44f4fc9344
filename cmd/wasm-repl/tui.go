package main

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/wasm-repl/eval"
	"github.com/wippyai/wasm-repl/session"
	"github.com/wippyai/wasm-repl/types"
)

// maxScrollback is the number of past lines the TUI keeps on screen
const maxScrollback = 20

type modelState int

const (
	stateConsole modelState = iota
	stateSelectFunc
	stateInputArgs
)

type tuiModel struct {
	ctx      context.Context
	session  *session.Session
	title    string
	st       styles
	history  []entry
	funcs    []eval.Target
	args     []textinput.Model
	input    textinput.Model
	selected int
	focusIdx int
	state    modelState
	busy     bool
}

// entry is one executed line and what it printed
type entry struct {
	err    error
	input  string
	output string
}

type execMsg struct {
	entry
}

func newTUIModel(ctx context.Context, s *session.Session, title string, st styles) *tuiModel {
	in := textinput.New()
	in.Prompt = promptText
	in.PromptStyle = st.prompt
	in.Placeholder = ".help"
	in.ShowSuggestions = true
	in.Width = 72
	in.Focus()
	return &tuiModel{ctx: ctx, session: s, title: title, st: st, input: in}
}

func (m *tuiModel) Init() tea.Cmd {
	return textinput.Blink
}

// exec runs a line off the update loop. Input is ignored while busy, so
// the session is never used by two lines at once.
func (m *tuiModel) exec(line string) tea.Cmd {
	m.busy = true
	return func() tea.Msg {
		var buf bytes.Buffer
		err := m.session.Exec(m.ctx, &buf, line)
		return execMsg{entry{input: line, output: buf.String(), err: err}}
	}
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case execMsg:
		m.busy = false
		m.history = append(m.history, msg.entry)
		if len(m.history) > maxScrollback {
			m.history = m.history[len(m.history)-maxScrollback:]
		}
		if m.session.Done() {
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			return m, tea.Quit
		}
		if m.busy {
			return m, nil
		}
		switch m.state {
		case stateConsole:
			return m.updateConsole(msg)
		case stateSelectFunc:
			return m.updateSelect(msg)
		case stateInputArgs:
			return m.updateArgs(msg)
		}
	}

	if m.state == stateConsole {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *tuiModel) updateConsole(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		line := m.input.Value()
		m.input.Reset()
		return m, m.exec(line)
	case "ctrl+f":
		m.funcs = exportedFuncs(m.session)
		if len(m.funcs) > 0 {
			m.selected = 0
			m.state = stateSelectFunc
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.input.SetSuggestions(m.session.Complete(m.input.Value()))
	return m, cmd
}

func (m *tuiModel) updateSelect(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.funcs)-1 {
			m.selected++
		}
	case "esc":
		m.state = stateConsole
	case "enter":
		m.prepareInputs()
		if len(m.args) == 0 {
			m.state = stateConsole
			return m, m.exec(m.callExpr())
		}
		m.state = stateInputArgs
	}
	return m, nil
}

func (m *tuiModel) updateArgs(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab":
		if len(m.args) > 1 {
			m.args[m.focusIdx].Blur()
			m.focusIdx = (m.focusIdx + 1) % len(m.args)
			m.args[m.focusIdx].Focus()
		}
		return m, nil
	case "esc":
		m.args = nil
		m.state = stateSelectFunc
		return m, nil
	case "enter":
		line := m.callExpr()
		m.args = nil
		m.state = stateConsole
		return m, m.exec(line)
	}

	cmds := make([]tea.Cmd, len(m.args))
	for i := range m.args {
		m.args[i], cmds[i] = m.args[i].Update(msg)
	}
	return m, tea.Batch(cmds...)
}

func (m *tuiModel) prepareInputs() {
	fn := m.funcs[m.selected].Func
	m.args = make([]textinput.Model, len(fn.Params))
	for i, p := range fn.Params {
		ti := textinput.New()
		ti.Placeholder = types.Render(p.Type)
		ti.Prompt = p.Name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.args[i] = ti
	}
	m.focusIdx = 0
}

// callExpr writes the selected function and argument fields as a call
func (m *tuiModel) callExpr() string {
	t := m.funcs[m.selected]
	vals := make([]string, len(m.args))
	for i, a := range m.args {
		vals[i] = strings.TrimSpace(a.Value())
	}
	return callName(t) + "(" + strings.Join(vals, ", ") + ")"
}

// callName qualifies a function by component and interface short name
func callName(t eval.Target) string {
	name := t.Component + "::"
	if t.Func.Name.Interface != "" {
		name += types.InterfaceShortName(t.Func.Name.Interface) + "#"
	}
	return name + t.Func.Name.Func
}

// exportedFuncs lists the exports of instantiated components, target first
func exportedFuncs(s *session.Session) []eval.Target {
	var out []eval.Target
	for _, c := range s.Registry().Instantiated() {
		fns := append([]*types.Function(nil), c.Store.Exports()...)
		sort.Slice(fns, func(i, j int) bool { return fns[i].Name.String() < fns[j].Name.String() })
		for _, fn := range fns {
			out = append(out, eval.Target{Func: fn, Component: c.Name, Instance: c.Instance.ID()})
		}
	}
	return out
}

func (m *tuiModel) View() string {
	var b strings.Builder

	b.WriteString(m.st.title.Render("wasm-repl"))
	b.WriteString(" ")
	b.WriteString(m.title)
	b.WriteString("\n\n")

	for _, e := range m.history {
		b.WriteString(m.st.help.Render(promptText + e.input))
		b.WriteString("\n")
		if text := renderLines(m.st.result, e.output); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
		if e.err != nil {
			b.WriteString(m.st.failure(e.err))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	switch m.state {
	case stateConsole:
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		help := "enter run • tab complete • ctrl+f functions • ctrl+c quit"
		if m.busy {
			help = "running..."
		}
		b.WriteString(m.st.help.Render(help))

	case stateSelectFunc:
		b.WriteString("Select a function to call:\n\n")
		for i, t := range m.funcs {
			if i == m.selected {
				b.WriteString(m.st.selected.Render("> " + t.String() + ": " + t.Func.Signature()))
			} else {
				b.WriteString("  " + m.formatFunc(t))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(m.st.help.Render("↑/↓ select • enter call • esc back"))

	case stateInputArgs:
		t := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", m.st.fn.Render(t.String())))
		for i, in := range m.args {
			b.WriteString(in.View())
			b.WriteString(" ")
			b.WriteString(m.st.typ.Render(types.Render(t.Func.Params[i].Type)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(m.st.help.Render("tab next field • enter call • esc back"))
	}

	return b.String()
}

func (m *tuiModel) formatFunc(t eval.Target) string {
	fn := t.Func
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = p.Name + ": " + m.st.typ.Render(types.Render(p.Type))
	}
	result := ""
	switch len(fn.Results) {
	case 0:
	case 1:
		result = " -> " + m.st.typ.Render(types.Render(fn.Results[0].Type))
	default:
		result = " -> " + m.st.typ.Render(types.Render(&types.Tuple{Elems: fn.ResultTypes()}))
	}
	return m.st.fn.Render(t.String()) + "(" + strings.Join(params, ", ") + ")" + result
}

func runTUI(ctx context.Context, s *session.Session, title string, st styles) error {
	p := tea.NewProgram(newTUIModel(ctx, s, title, st), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
