// Package tui is the interactive operator terminal: a scrolling log view with
// a command line underneath.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/vburojevic/opctl/internal/attach"
	"github.com/vburojevic/opctl/internal/protocol"
)

// DefaultMaxLines bounds the scrollback kept in memory.
const DefaultMaxLines = 5000

// Channel is the part of attach.Client the model drives.
type Channel interface {
	Command(command string) error
	Autocomplete(selector int) error
}

type eventMsg struct{ msg protocol.Message }

type closedMsg struct{}

type sendErrMsg struct{ err error }

// Model is the bubbletea model for an attached session.
type Model struct {
	channel  Channel
	events   <-chan protocol.Message
	server   string
	maxLines int

	viewport viewport.Model
	input    textinput.Model
	ready    bool

	lines     []string
	status    string
	completed string // input the pending autocomplete was requested for
	commands  int
	closed    bool
}

// New creates a model showing history and then everything received on events.
func New(channel Channel, events <-chan protocol.Message, server string, history []string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "command"
	ti.CharLimit = 1024
	ti.Focus()

	return Model{
		channel:  channel,
		events:   events,
		server:   server,
		maxLines: DefaultMaxLines,
		input:    ti,
		lines:    append([]string(nil), history...),
		status:   fmt.Sprintf("%d history lines", len(history)),
	}
}

// Commands reports how many commands were sent.
func (m Model) Commands() int { return m.commands }

// Lines returns the scrollback.
func (m Model) Lines() []string { return m.lines }

// Input returns the current command line.
func (m Model) Input() string { return m.input.Value() }

// Closed reports whether the server side of the channel has gone away.
func (m Model) Closed() bool { return m.closed }

// Status returns the status line text.
func (m Model) Status() string { return m.status }

func waitForEvent(events <-chan protocol.Message) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return closedMsg{}
		}
		return eventMsg{msg}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.events))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := max(msg.Height-3, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.input.Width = max(msg.Width-len(m.input.Prompt)-1, 1)
		m.refresh(true)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Send):
			return m.send()
		case key.Matches(msg, keys.Complete):
			return m.requestCompletion()
		case key.Matches(msg, keys.PageUp), key.Matches(msg, keys.PageDown):
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case eventMsg:
		m.handleEvent(msg.msg)
		return m, waitForEvent(m.events)

	case closedMsg:
		m.closed = true
		m.status = "channel closed"
		return m, tea.Quit

	case sendErrMsg:
		m.status = errorStyle.Render(msg.err.Error())
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleEvent(msg protocol.Message) {
	switch ev := msg.(type) {
	case protocol.Log:
		m.appendLine(ev.Line)
	case protocol.Init:
		// A repeated AUTH replays the snapshot; keep the scrollback as is.
		m.status = fmt.Sprintf("%d history lines", len(ev.Lines))
	case protocol.AutocompleteResponse:
		m.applyCompletion(ev.Candidates)
	case protocol.Error:
		m.status = errorStyle.Render(ev.Message)
	}
}

func (m Model) send() (tea.Model, tea.Cmd) {
	command := strings.TrimSpace(m.input.Value())
	if command == "" {
		return m, nil
	}
	m.input.Reset()
	m.commands++
	m.appendLine(echoStyle.Render("> " + command))

	channel := m.channel
	return m, func() tea.Msg {
		if err := channel.Command(command); err != nil {
			return sendErrMsg{err}
		}
		return nil
	}
}

func (m Model) requestCompletion() (tea.Model, tea.Cmd) {
	value := m.input.Value()
	m.completed = value
	selector := Selector(value)
	channel := m.channel
	return m, func() tea.Msg {
		if err := channel.Autocomplete(selector); err != nil {
			return sendErrMsg{err}
		}
		return nil
	}
}

func (m *Model) applyCompletion(candidates []string) {
	if m.input.Value() != m.completed {
		m.status = strings.Join(candidates, "  ")
		return
	}
	completed, matches := Complete(m.completed, candidates)
	switch len(matches) {
	case 0:
		m.status = "no matches"
	case 1:
		m.status = ""
	default:
		m.status = strings.Join(matches, "  ")
	}
	m.input.SetValue(completed)
	m.input.CursorEnd()
}

func (m *Model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if over := len(m.lines) - m.maxLines; over > 0 {
		m.lines = m.lines[over:]
	}
	m.refresh(false)
}

func (m *Model) refresh(force bool) {
	if !m.ready {
		return
	}
	follow := force || m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) View() string {
	if !m.ready {
		return "connecting..."
	}
	header := headerStyle.Render("opctl " + m.server)
	status := statusStyle.Render(m.status)
	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), status, m.input.View())
}

// Selector picks the candidate list for the current input: commands while the
// first word is being typed, player names after it.
func Selector(input string) int {
	if strings.Contains(strings.TrimLeft(input, " "), " ") {
		return attach.SelectPlayers
	}
	return attach.SelectCommands
}

// Complete replaces the last word of input with the candidates it prefixes.
// A unique match is completed and followed by a space; several matches are
// completed to their common prefix. Matching ignores case.
func Complete(input string, candidates []string) (string, []string) {
	cut := strings.LastIndex(input, " ") + 1
	head, word := input[:cut], input[cut:]

	matches := lo.Filter(lo.Uniq(candidates), func(c string, _ int) bool {
		return strings.HasPrefix(strings.ToLower(c), strings.ToLower(word))
	})
	switch len(matches) {
	case 0:
		return input, nil
	case 1:
		return head + matches[0] + " ", matches
	}

	prefix := matches[0]
	for _, c := range matches[1:] {
		prefix = commonPrefix(prefix, c)
	}
	if len(prefix) < len(word) {
		return input, matches
	}
	return head + prefix, matches
}

func commonPrefix(a, b string) string {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if !strings.EqualFold(a[i:i+1], b[i:i+1]) {
			return a[:i]
		}
	}
	return a[:n]
}
