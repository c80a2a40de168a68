// Package chat is the command prompt panel. Bot replies are markdown and are
// rendered with glamour.
package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/myspacecornelius/Dharma/internal/theme"
)

// Role identifies who wrote a message.
type Role int

const (
	RoleUser Role = iota
	RoleBot
	RoleError
)

// Message is one line of the conversation.
type Message struct {
	Role Role
	Text string
}

const maxHistory = 50

// Model is the prompt input plus its history.
type Model struct {
	Width   int
	Height  int
	History []Message
	Pending bool

	input textinput.Model
	md    *markdown
}

// markdown caches a renderer per wrap width. It is shared by copies of Model.
type markdown struct {
	renderer *glamour.TermRenderer
	wrap     int
}

func New() Model {
	in := textinput.New()
	in.Placeholder = "monitor DZ5485-612 · fire 3 · clear"
	in.Prompt = "› "
	in.CharLimit = 280
	return Model{input: in, md: &markdown{}}
}

func (m *Model) Focus() tea.Cmd { return m.input.Focus() }

func (m *Model) Blur() { m.input.Blur() }

func (m Model) Focused() bool { return m.input.Focused() }

// Submit takes the trimmed input, records it in the history and clears the
// field. It returns "" when there is nothing to send or a reply is pending.
func (m *Model) Submit() string {
	prompt := strings.TrimSpace(m.input.Value())
	if prompt == "" || m.Pending {
		return ""
	}
	m.input.Reset()
	m.push(Message{Role: RoleUser, Text: prompt})
	m.Pending = true
	return prompt
}

// Reply appends a bot message and clears the pending flag.
func (m *Model) Reply(text string) {
	m.Pending = false
	m.push(Message{Role: RoleBot, Text: text})
}

// Fail appends an error message and clears the pending flag.
func (m *Model) Fail(text string) {
	m.Pending = false
	m.push(Message{Role: RoleError, Text: text})
}

func (m *Model) push(msg Message) {
	m.History = append(m.History, msg)
	if len(m.History) > maxHistory {
		m.History = m.History[len(m.History)-maxHistory:]
	}
}

// Update forwards key input to the text field.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) Value() string { return m.input.Value() }

func (m *Model) SetValue(s string) { m.input.SetValue(s) }

// render formats markdown for the current width, falling back to plain text.
func (m Model) render(text string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = text
		}
	}()
	wrap := m.Width - 6
	if wrap < 20 {
		wrap = 20
	}
	if m.md.renderer == nil || m.md.wrap != wrap {
		r, err := glamour.NewTermRenderer(
			glamour.WithStylePath("dark"),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			return text
		}
		m.md.renderer, m.md.wrap = r, wrap
	}
	rendered, err := m.md.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(rendered, "\n")
}

// View renders the most recent messages that fit above the input line.
func (m Model) View() string {
	width := m.Width
	if width < 30 {
		width = 30
	}
	height := m.Height
	if height < 4 {
		height = 4
	}

	var blocks []string
	for _, msg := range m.History {
		switch msg.Role {
		case RoleUser:
			blocks = append(blocks, theme.StyleSelected.Render("you: ")+msg.Text)
		case RoleError:
			blocks = append(blocks, lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("! "+msg.Text))
		default:
			blocks = append(blocks, m.render(msg.Text))
		}
	}
	if m.Pending {
		blocks = append(blocks, theme.StyleDimmed.Render("thinking..."))
	}

	lines := strings.Split(strings.Join(blocks, "\n"), "\n")
	if room := height - 1; len(lines) > room {
		lines = lines[len(lines)-room:]
	}
	if len(blocks) == 0 {
		lines = []string{theme.StyleDimmed.Render("tab to type a command")}
	}
	body := lipgloss.JoinVertical(lipgloss.Left, strings.Join(lines, "\n"), m.input.View())
	return theme.Panel("Command", body, width)
}
