package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/wippyai/hostlayer/sockets"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	cmdStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateSelectCmd modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	err      error
	sess     *session
	result   string
	cmds     []command
	inputs   []textinput.Model
	selected int
	focusIdx int
	width    int
	socks    int
	regions  int
	state    modelState
	busy     bool
}

type callResultMsg struct {
	err     error
	result  string
	socks   int
	regions int
}

func newInteractiveModel(sess *session, width int) *interactiveModel {
	return &interactiveModel{
		sess:  sess,
		cmds:  sess.commands(),
		width: width,
		state: stateSelectCmd,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		if m.busy && msg.String() != "ctrl+c" {
			return m, nil
		}
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectCmd && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectCmd && m.selected < len(m.cmds)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectCmd:
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callCommand()
				}
				m.state = stateInputArgs
				return m, nil

			case stateInputArgs:
				return m, m.callCommand()

			case stateShowResult:
				m.reset()
				return m, nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
				return m, nil
			}

		case "esc":
			if m.state != stateSelectCmd {
				m.reset()
				return m, nil
			}
		}

	case callResultMsg:
		m.busy = false
		m.result = msg.result
		m.err = msg.err
		m.socks, m.regions = msg.socks, msg.regions
		m.state = stateShowResult
		return m, nil
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) reset() {
	m.state = stateSelectCmd
	m.inputs = nil
	m.result = ""
	m.err = nil
}

func (m *interactiveModel) prepareInputs() {
	c := m.cmds[m.selected]
	width := 40
	if m.width > 0 && m.width-30 < width {
		width = max(m.width-30, 10)
	}
	m.inputs = make([]textinput.Model, len(c.params))
	for i, p := range c.params {
		ti := textinput.New()
		ti.Placeholder = p.typeStr
		ti.Prompt = p.name + ": "
		ti.Width = width
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// callCommand captures the selected call and its arguments; the returned
// command runs it off the UI loop.
func (m *interactiveModel) callCommand() tea.Cmd {
	c := m.cmds[m.selected]
	args := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		args[i] = strings.TrimSpace(input.Value())
	}
	sess := m.sess
	m.busy = true
	return func() tea.Msg {
		out, err := c.run(context.Background(), args)
		return callResultMsg{
			result:  out,
			err:     err,
			socks:   len(sess.socks),
			regions: sess.regions.Len(),
		}
	}
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("fzhost console"))
	fmt.Fprintf(&b, " %d open sockets, %d regions\n\n", m.socks, m.regions)

	switch m.state {
	case stateSelectCmd:
		b.WriteString("Select a call:\n\n")
		for i, c := range m.cmds {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + m.formatCmd(c)))
			} else {
				b.WriteString("  " + m.formatCmd(c))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		c := m.cmds[m.selected]
		fmt.Fprintf(&b, "Calling %s: %s\n\n", cmdStyle.Render(c.name), c.help)
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(c.params[i].typeStr))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		c := m.cmds[m.selected]
		fmt.Fprintf(&b, "Result of %s:\n\n", cmdStyle.Render(c.name))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatCmd(c command) string {
	var params []string
	for _, p := range c.params {
		params = append(params, p.name+": "+typeStyle.Render(p.typeStr))
	}
	return cmdStyle.Render(c.name) + "(" + strings.Join(params, ", ") + ")"
}

// runInteractive starts the console. Without a terminal on stdin it reads
// one command per line instead.
func runInteractive(root string) error {
	sess := newSession(sockets.NewManager(), root)
	defer sess.close()

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return runLines(context.Background(), sess, os.Stdin, os.Stdout)
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		width = 0
	}

	p := tea.NewProgram(newInteractiveModel(sess, width), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func runLines(ctx context.Context, sess *session, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		res, err := sess.exec(ctx, sc.Text())
		switch {
		case err != nil:
			fmt.Fprintf(out, "error: %v\n", err)
		case res != "":
			fmt.Fprintln(out, res)
		}
	}
	return sc.Err()
}
