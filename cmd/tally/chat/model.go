package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"tally/internal/client"
	"tally/internal/snapshot"
)

type stateMsg struct {
	state client.State
}

var (
	userStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	assistantStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	systemStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	thinkingStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Italic(true)
	dimStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	activeToolStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
	chipStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Border(lipgloss.RoundedBorder()).Padding(0, 1)
	unavailableStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

type model struct {
	cl      *client.Client
	updates chan tea.Msg
	opts    client.SendOptions

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model
	ready    bool

	state    client.State
	thinking *snapshot.Snapshot
	lastSent string
	quitting bool
}

func newModel(cl *client.Client, updates chan tea.Msg, leftover *snapshot.Snapshot, opts client.SendOptions) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.Placeholder = "Ask about your money…"
	input.CharLimit = 500
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = thinkingStyle

	return model{
		cl:       cl,
		updates:  updates,
		opts:     opts,
		input:    input,
		spinner:  sp,
		thinking: leftover,
	}
}

// waitState re-arms the pump: one update per command, then re-issue.
func waitState(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitState(m.updates))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case tea.KeyEsc:
			cl := m.cl
			return m, func() tea.Msg {
				cl.Cancel()
				return nil
			}

		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" && m.state.Unavailable && m.lastSent != "" {
				// Targeted retry affordance for the unavailable case.
				text = m.lastSent
			}
			if text == "" {
				return m, nil
			}
			m.lastSent = text
			m.input.Reset()
			m.thinking = nil
			cl, opts := m.cl, m.opts
			return m, func() tea.Msg {
				cl.SendMessage(text, opts)
				return nil
			}
		}

	case stateMsg:
		m.state = msg.state
		m.thinking = msg.state.Thinking
		if m.ready {
			m.viewport.SetContent(m.renderMessages())
			m.viewport.GotoBottom()
		}
		cmds = append(cmds, waitState(m.updates))

	case tea.WindowSizeMsg:
		m.viewport = viewport.New(msg.Width, msg.Height-8)
		m.viewport.SetContent(m.renderMessages())
		m.ready = true

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	if m.ready {
		b.WriteString(m.viewport.View())
		b.WriteString("\n")
	}
	b.WriteString(m.renderThinking())
	b.WriteString(m.renderChips())
	b.WriteString("\n" + m.input.View() + "\n")
	b.WriteString(dimStyle.Render("enter send · esc cancel · ctrl+c quit"))
	return b.String()
}

func (m model) renderMessages() string {
	var b strings.Builder
	for _, msg := range m.state.Messages {
		switch msg.Role {
		case client.RoleUser:
			b.WriteString(userStyle.Render("you ") + msg.Text + "\n\n")
		case client.RoleAssistant:
			b.WriteString(assistantStyle.Render("tally ") + msg.Text + "\n\n")
		default:
			b.WriteString(systemStyle.Render(msg.Text) + "\n\n")
		}
	}
	if m.state.IsStreaming && m.state.PartialText != "" {
		b.WriteString(assistantStyle.Render("tally ") + m.state.PartialText + "\n")
	}
	if m.state.Unavailable {
		b.WriteString(unavailableStyle.Render("The service is unavailable right now. Press enter to retry.") + "\n")
	}
	return b.String()
}

func (m model) renderThinking() string {
	th := m.thinking
	if th == nil {
		return ""
	}

	active := make(map[string]bool, len(th.ActiveToolNames))
	for _, name := range th.ActiveToolNames {
		active[name] = true
	}

	var b strings.Builder
	b.WriteString(m.spinner.View() + thinkingStyle.Render(th.Step))
	if len(th.ToolNames) > 0 {
		b.WriteString("  ")
		for i, name := range th.ToolNames {
			if i > 0 {
				b.WriteString(" ")
			}
			if active[name] {
				b.WriteString(activeToolStyle.Render("▸" + name))
			} else {
				b.WriteString(dimStyle.Render("·" + name))
			}
		}
	}
	b.WriteString("\n")
	return b.String()
}

func (m model) renderChips() string {
	if len(m.state.Chips) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m.state.Chips))
	for _, c := range m.state.Chips {
		parts = append(parts, chipStyle.Render(c.Label))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...) + "\n"
}
