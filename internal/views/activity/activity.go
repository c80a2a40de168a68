// Package activity renders the community sighting feed.
package activity

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/myspacecornelius/Dharma/internal/events"
	"github.com/myspacecornelius/Dharma/internal/theme"
)

// MaxEntries is how many new_event entries the feed keeps.
const MaxEntries = 20

// Model is the activity feed, newest first.
type Model struct {
	Width   int
	Entries []events.Activity
	now     func() time.Time
}

func New() Model {
	return Model{now: time.Now}
}

// Add prepends an entry, ignoring repeats of an event id already shown.
func (m *Model) Add(a events.Activity) {
	if a.EventID != "" {
		for _, e := range m.Entries {
			if e.EventID == a.EventID {
				return
			}
		}
	}
	m.Entries = append([]events.Activity{a}, m.Entries...)
	if len(m.Entries) > MaxEntries {
		m.Entries = m.Entries[:MaxEntries]
	}
}

func (m Model) View() string {
	width := m.Width
	if width < 30 {
		width = 30
	}
	if len(m.Entries) == 0 {
		return theme.Panel("Activity", theme.StyleDimmed.Render("Waiting for sightings..."), width)
	}
	now := time.Now()
	if m.now != nil {
		now = m.now()
	}
	var lines []string
	for _, e := range m.Entries {
		tag := lipgloss.NewStyle().Foreground(theme.EventColor(e.Type)).Width(8).Render(strings.ToUpper(e.Type))
		name := e.Name
		if name == "" {
			name = e.SKU
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			tag,
			theme.Truncate(name, width-22),
			theme.StyleDimmed.Render(ago(now.Sub(e.Timestamp)))))
	}
	return theme.Panel("Activity", strings.Join(lines, "\n"), width)
}

func ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}
