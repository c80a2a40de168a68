package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

var (
	titleColor   = color.New(color.FgHiCyan, color.Bold)
	successColor = color.New(color.FgHiGreen)
	errorColor   = color.New(color.FgHiRed)
	infoColor    = color.New(color.FgHiYellow)
	dimColor     = color.New(color.FgHiBlack)
	fieldColor   = color.New(color.FgHiMagenta)
)

// field prints an aligned "key: value" line.
func field(w io.Writer, key string, value any) {
	fmt.Fprintf(w, "  %s %v\n", fieldColor.Sprintf("%-16s", key+":"), value)
}

func statusColor(status string) *color.Color {
	switch status {
	case "active", "running", "healthy", "connected":
		return successColor
	case "in_stock", "completed", "success":
		return titleColor
	case "failed", "error", "unhealthy", "disconnected":
		return errorColor
	default:
		return infoColor
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("Jan 02 15:04:05")
}
