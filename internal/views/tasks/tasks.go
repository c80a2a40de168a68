// Package tasks renders checkout task cards with progress bars.
package tasks

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/myspacecornelius/Dharma/internal/client"
	"github.com/myspacecornelius/Dharma/internal/events"
	"github.com/myspacecornelius/Dharma/internal/theme"
)

// Card is one checkout task.
type Card struct {
	ID       string
	Status   string
	Message  string
	Progress float64 // 0..100
	seq      int
}

// Model holds task cards keyed by task id, newest first.
type Model struct {
	Width int
	cards map[string]*Card
	seq   int
	bar   progress.Model
}

func New() Model {
	return Model{
		cards: make(map[string]*Card),
		bar:   progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
	}
}

// Set replaces the cards with the tasks returned by the API.
func (m *Model) Set(list []client.Task) {
	m.cards = make(map[string]*Card, len(list))
	for _, t := range list {
		c := m.card(t.TaskID)
		c.Status = t.Status
		if t.Status == "completed" {
			c.Progress = 100
		}
	}
}

// Add registers freshly created task ids as queued.
func (m *Model) Add(ids []string) {
	for _, id := range ids {
		c := m.card(id)
		if c.Status == "" {
			c.Status = "queued"
		}
	}
}

// Apply merges a task.update event. Progress never moves backwards.
func (m *Model) Apply(ev events.TaskProgress) {
	if ev.TaskID == "" {
		return
	}
	c := m.card(ev.TaskID)
	if ev.Message != "" {
		c.Message = ev.Message
	}
	if ev.Status != "" {
		c.Status = ev.Status
	} else if c.Status == "" || c.Status == "queued" {
		c.Status = "running"
	}
	p := ev.Progress
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	if p > c.Progress {
		c.Progress = p
	}
}

func (m *Model) card(id string) *Card {
	c, ok := m.cards[id]
	if !ok {
		m.seq++
		c = &Card{ID: id, seq: m.seq}
		m.cards[id] = c
	}
	return c
}

// Cards returns the cards, most recently seen first.
func (m Model) Cards() []Card {
	out := make([]Card, 0, len(m.cards))
	for _, c := range m.cards {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq > out[j].seq })
	return out
}

// Counts returns running (including queued), completed and failed totals.
func (m Model) Counts() (running, completed, failed int) {
	for _, c := range m.cards {
		switch c.Status {
		case "completed":
			completed++
		case "failed":
			failed++
		default:
			running++
		}
	}
	return
}

const maxVisible = 8

func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}
	cards := m.Cards()
	if len(cards) == 0 {
		return theme.Panel("Checkout", theme.StyleDimmed.Render("No tasks. Try: fire 3"), width)
	}

	bar := m.bar
	bar.Width = width / 3
	var lines []string
	for i, c := range cards {
		if i == maxVisible {
			lines = append(lines, theme.StyleDimmed.Render(fmt.Sprintf("+%d more", len(cards)-maxVisible)))
			break
		}
		status := lipgloss.NewStyle().Foreground(theme.StatusColor(c.Status)).
			Render(theme.StatusGlyph(c.Status))
		lines = append(lines, fmt.Sprintf("%s %-8s %s %3.0f%% %s",
			status,
			theme.Truncate(c.ID, 8),
			bar.ViewAs(c.Progress/100),
			c.Progress,
			theme.StyleDimmed.Render(theme.Truncate(c.Message, 24))))
	}
	running, completed, failed := m.Counts()
	title := fmt.Sprintf("Checkout  %d running · %d done · %d failed", running, completed, failed)
	return theme.Panel(title, strings.Join(lines, "\n"), width)
}
