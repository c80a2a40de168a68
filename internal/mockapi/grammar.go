package mockapi

import (
	"fmt"
	"strconv"
	"strings"
)

type parsedCommand struct {
	Action     string         `json:"action"`
	Parameters map[string]any `json:"parameters"`
}

type parseResult struct {
	Type     string         `json:"type"`
	Command  *parsedCommand `json:"command,omitempty"`
	Response string         `json:"response,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// parsePrompt understands a handful of keyword commands:
//
//	monitor <sku> [retailer]
//	fire <n> [profile] [retailer]
//	clear
//
// Anything else is answered as chat.
func parsePrompt(prompt string) parseResult {
	fields := strings.Fields(strings.TrimSpace(prompt))
	if len(fields) == 0 {
		return parseResult{Type: "error", Message: "Empty prompt"}
	}

	switch strings.ToLower(fields[0]) {
	case "monitor", "watch":
		if len(fields) < 2 {
			return parseResult{Type: "error", Message: "Usage: monitor <sku> [retailer]"}
		}
		params := map[string]any{"sku": strings.ToUpper(fields[1])}
		if len(fields) > 2 {
			params["retailer"] = strings.ToLower(fields[2])
		}
		return command("start_monitor", params)

	case "fire", "checkout":
		if len(fields) < 2 {
			return parseResult{Type: "error", Message: "Usage: fire <count> [profile] [retailer]"}
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n <= 0 {
			return parseResult{Type: "error", Message: fmt.Sprintf("Invalid task count %q", fields[1])}
		}
		params := map[string]any{"task_count": n, "profile_id": "default"}
		if len(fields) > 2 {
			params["profile_id"] = fields[2]
		}
		if len(fields) > 3 {
			params["retailer"] = strings.ToLower(fields[3])
		}
		return command("fire_checkout", params)

	case "clear", "reset":
		return command("clear_dashboard", map[string]any{})
	}

	return parseResult{Type: "chat", Response: chatReply(prompt)}
}

func command(action string, params map[string]any) parseResult {
	return parseResult{Type: "command", Command: &parsedCommand{Action: action, Parameters: params}}
}

func chatReply(prompt string) string {
	return fmt.Sprintf("### Sniper assistant\n\nI can't act on **%q** yet. Try one of:\n\n"+
		"- `monitor <sku>` to start watching a product\n"+
		"- `fire <n> [profile]` to launch checkout tasks\n"+
		"- `clear` to stop every monitor\n", prompt)
}
