// Package balance renders the LACES token widget. Balance changes animate
// toward the new value on a critically damped spring.
package balance

import (
	"fmt"
	"math"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/myspacecornelius/Dharma/internal/client"
	"github.com/myspacecornelius/Dharma/internal/events"
	"github.com/myspacecornelius/Dharma/internal/theme"
)

const fps = 60

// FrameMsg advances the animation by one frame.
type FrameMsg struct{}

// Model is the balance widget.
type Model struct {
	Width int

	balance   *client.LacesBalance
	spring    harmonica.Spring
	shown     float64
	velocity  float64
	animating bool
	last      *events.LacesCredit
}

func New() Model {
	return Model{spring: harmonica.NewSpring(harmonica.FPS(fps), 6.0, 1.0)}
}

// SetBalance records a fetched balance. The first value is shown at once,
// later ones animate.
func (m *Model) SetBalance(b *client.LacesBalance) tea.Cmd {
	if b == nil {
		return nil
	}
	first := m.balance == nil
	m.balance = b
	if first {
		m.shown = float64(b.Balance)
		return nil
	}
	if m.animating || math.Round(m.shown) == float64(b.Balance) {
		return nil
	}
	m.animating = true
	return frame()
}

// Credit records a laces_earned event for display. The caller refetches the
// balance.
func (m *Model) Credit(c events.LacesCredit) {
	m.last = &c
}

// Update handles animation frames.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if _, ok := msg.(FrameMsg); !ok || !m.animating || m.balance == nil {
		return m, nil
	}
	target := float64(m.balance.Balance)
	m.shown, m.velocity = m.spring.Update(m.shown, m.velocity, target)
	if math.Abs(target-m.shown) < 0.5 && math.Abs(m.velocity) < 0.5 {
		m.shown, m.velocity, m.animating = target, 0, false
		return m, nil
	}
	return m, frame()
}

// Shown is the currently displayed (possibly mid-animation) balance.
func (m Model) Shown() int { return int(math.Round(m.shown)) }

func (m Model) Animating() bool { return m.animating }

func frame() tea.Cmd {
	return tea.Tick(time.Second/fps, func(time.Time) tea.Msg { return FrameMsg{} })
}

func (m Model) View() string {
	width := m.Width
	if width < 24 {
		width = 24
	}
	if m.balance == nil {
		return theme.Panel("LACES", theme.StyleDimmed.Render("loading..."), width)
	}
	amount := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorLaces).
		Render(fmt.Sprintf("%d LACES", m.Shown()))
	lines := []string{amount}
	if m.balance.Rank > 0 {
		lines = append(lines, theme.StyleDimmed.Render(
			fmt.Sprintf("rank #%d · p%.0f", m.balance.Rank, m.balance.Percentile)))
	}
	if m.last != nil {
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorLacesGain).
			Render(fmt.Sprintf("+%d %s", m.last.Amount, events.LacesReasonText(m.last.Reason))))
	}
	return theme.Panel("LACES", lipgloss.JoinVertical(lipgloss.Left, lines...), width)
}
