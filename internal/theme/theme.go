// Package theme provides the Lip Gloss palette and shared styles for the
// dashboard. It is a leaf package with no internal imports to avoid import
// cycles.
package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Status colors.
var (
	ColorActive    = lipgloss.Color("#2563eb")
	ColorInStock   = lipgloss.Color("#16a34a")
	ColorPending   = lipgloss.Color("#7c3aed")
	ColorRunning   = lipgloss.Color("#d97706")
	ColorCompleted = lipgloss.Color("#16a34a")
	ColorFailed    = lipgloss.Color("#dc2626")
	ColorStopped   = lipgloss.Color("#4b5563")
)

// Activity feed colors, keyed by sighting type.
var (
	ColorDrop    = lipgloss.Color("#f43f5e")
	ColorRestock = lipgloss.Color("#06b6d4")
	ColorFind    = lipgloss.Color("#a855f7")
)

// LACES token colors.
var (
	ColorLaces     = lipgloss.Color("#f59e0b")
	ColorLacesGain = lipgloss.Color("#22c55e")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
	ColorAccent  = lipgloss.Color("#3b82f6")
)

// StatusColor returns the color for a monitor or task status.
func StatusColor(status string) lipgloss.Color {
	switch strings.ToLower(status) {
	case "active", "monitoring":
		return ColorActive
	case "in_stock":
		return ColorInStock
	case "pending", "queued":
		return ColorPending
	case "running":
		return ColorRunning
	case "completed", "success":
		return ColorCompleted
	case "failed", "error":
		return ColorFailed
	case "stopped":
		return ColorStopped
	default:
		return ColorDimmed
	}
}

// EventColor returns the color for a community sighting type.
func EventColor(kind string) lipgloss.Color {
	switch kind {
	case "drop":
		return ColorDrop
	case "restock":
		return ColorRestock
	case "find":
		return ColorFind
	default:
		return ColorDimmed
	}
}

// StatusGlyph returns a Unicode glyph for a monitor or task status.
func StatusGlyph(status string) string {
	switch strings.ToLower(status) {
	case "active", "monitoring":
		return "●"
	case "in_stock":
		return "★"
	case "pending", "queued":
		return "◌"
	case "running":
		return "⚙"
	case "completed", "success":
		return "✓"
	case "failed", "error":
		return "✗"
	case "stopped":
		return "○"
	default:
		return "·"
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleBanner = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright).
			Background(ColorDanger).
			Padding(0, 1)
)

// Panel renders content inside a titled rounded border of the given width.
func Panel(title, content string, width int) string {
	if width < 20 {
		width = 20
	}
	body := lipgloss.JoinVertical(lipgloss.Left, StyleHeader.Render(title), content)
	return StyleBorder.Width(width-2).Padding(0, 1).Render(body)
}

// Truncate shortens s to max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}
