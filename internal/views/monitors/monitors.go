// Package monitors renders one card per running product monitor.
package monitors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/myspacecornelius/Dharma/internal/client"
	"github.com/myspacecornelius/Dharma/internal/events"
	"github.com/myspacecornelius/Dharma/internal/theme"
)

// Card is the dashboard's view of one monitor.
type Card struct {
	ID        string
	SKU       string
	Retailer  string
	Status    string
	InStock   bool
	PollCount int
	LatencyMS int
}

// Model holds monitor cards keyed by monitor id.
type Model struct {
	Width int
	cards map[string]*Card
}

func New() Model {
	return Model{cards: make(map[string]*Card)}
}

// Set replaces every card with the monitors returned by the API.
func (m *Model) Set(list []client.Monitor) {
	m.cards = make(map[string]*Card, len(list))
	for _, mon := range list {
		m.cards[mon.MonitorID] = &Card{
			ID:       mon.MonitorID,
			SKU:      mon.SKU,
			Retailer: mon.Retailer,
			Status:   mon.Status,
		}
	}
}

// Apply merges a monitor.update event. A "stopped" status removes the card.
func (m *Model) Apply(ev events.MonitorStatus) {
	if ev.MonitorID == "" {
		return
	}
	if ev.Status == "stopped" {
		delete(m.cards, ev.MonitorID)
		return
	}
	c, ok := m.cards[ev.MonitorID]
	if !ok {
		c = &Card{ID: ev.MonitorID}
		m.cards[ev.MonitorID] = c
	}
	if ev.SKU != "" {
		c.SKU = ev.SKU
	}
	if ev.Status != "" {
		c.Status = ev.Status
	}
	c.InStock = ev.InStock
	if ev.PollCount > c.PollCount {
		c.PollCount = ev.PollCount
	}
	if ev.LatencyMS > 0 {
		c.LatencyMS = ev.LatencyMS
	}
}

// Clear drops every card.
func (m *Model) Clear() {
	m.cards = make(map[string]*Card)
}

// Cards returns the cards sorted by SKU then id.
func (m Model) Cards() []Card {
	out := make([]Card, 0, len(m.cards))
	for _, c := range m.cards {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SKU != out[j].SKU {
			return out[i].SKU < out[j].SKU
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m Model) Len() int { return len(m.cards) }

func (m Model) View() string {
	width := m.Width
	if width < 30 {
		width = 30
	}
	cards := m.Cards()
	if len(cards) == 0 {
		return theme.Panel("Monitors", theme.StyleDimmed.Render("No monitors running. Try: monitor <sku>"), width)
	}

	var lines []string
	for _, c := range cards {
		status := c.Status
		if c.InStock {
			status = "in_stock"
		}
		badge := lipgloss.NewStyle().Foreground(theme.StatusColor(status)).
			Render(theme.StatusGlyph(status) + " " + strings.ToUpper(status))
		meta := theme.StyleDimmed.Render(fmt.Sprintf("%s · polls %d · %dms", orDash(c.Retailer), c.PollCount, c.LatencyMS))
		lines = append(lines, fmt.Sprintf("%-14s %s  %s", theme.Truncate(c.SKU, 14), badge, meta))
	}
	return theme.Panel(fmt.Sprintf("Monitors (%d)", len(cards)), strings.Join(lines, "\n"), width)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
