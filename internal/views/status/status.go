// Package status renders the top status bar: channel state, backend health
// and the signed-in user.
package status

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/myspacecornelius/Dharma/internal/channel"
	"github.com/myspacecornelius/Dharma/internal/client"
	"github.com/myspacecornelius/Dharma/internal/theme"
)

// Model holds the status bar state.
type Model struct {
	Channel   channel.Status
	Health    *client.Health
	HealthErr error
	UserID    string
	Offline   bool
	Width     int
}

// New creates a status bar model.
func New() Model {
	return Model{}
}

// ConnectionLabel describes the channel state in a few words.
func (m Model) ConnectionLabel() (string, lipgloss.Color) {
	st := m.Channel
	switch {
	case m.Offline:
		return "○ Offline", theme.ColorDanger
	case st.Exhausted:
		return "✗ Gave up reconnecting (r to retry)", theme.ColorDanger
	case st.State == channel.Connected:
		return "● Live", theme.ColorHealthy
	case st.State == channel.Connecting:
		if st.Attempt > 0 {
			return fmt.Sprintf("◌ Reconnecting (attempt %d)", st.Attempt), theme.ColorWarning
		}
		return "◌ Connecting...", theme.ColorWarning
	case st.State == channel.Disconnected && st.RetryIn > 0:
		return fmt.Sprintf("◌ Retry %d in %s", st.Attempt, st.RetryIn.Round(time.Second)), theme.ColorWarning
	default:
		return "○ Disconnected", theme.ColorDimmed
	}
}

func (m Model) healthLabel() string {
	switch {
	case m.HealthErr != nil:
		return lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("api: unreachable")
	case m.Health == nil:
		return theme.StyleDimmed.Render("api: ?")
	case m.Health.Healthy():
		return lipgloss.NewStyle().Foreground(theme.ColorHealthy).Render("api: healthy · " + m.Health.Environment)
	default:
		return lipgloss.NewStyle().Foreground(theme.ColorWarning).Render(
			fmt.Sprintf("api: %s (redis %s)", m.Health.Status, m.Health.Redis))
	}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	label, color := m.ConnectionLabel()
	conn := lipgloss.NewStyle().Foreground(color).Render(label)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := theme.StyleHeader.Render("DHARMA") + sep + conn + sep + m.healthLabel()
	if m.UserID != "" {
		content += sep + theme.StyleDimmed.Render(m.UserID)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
