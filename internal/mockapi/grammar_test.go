package mockapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrompt(t *testing.T) {
	tests := []struct {
		prompt     string
		wantType   string
		wantAction string
		wantParams map[string]any
	}{
		{"monitor dz5485-612", "command", "start_monitor", map[string]any{"sku": "DZ5485-612"}},
		{"watch abc Footlocker", "command", "start_monitor", map[string]any{"sku": "ABC", "retailer": "footlocker"}},
		{"fire 5", "command", "fire_checkout", map[string]any{"task_count": 5, "profile_id": "default"}},
		{"checkout 2 vip snkrs", "command", "fire_checkout", map[string]any{"task_count": 2, "profile_id": "vip", "retailer": "snkrs"}},
		{"clear", "command", "clear_dashboard", map[string]any{}},
		{"monitor", "error", "", nil},
		{"fire lots", "error", "", nil},
		{"fire -1", "error", "", nil},
		{"   ", "error", "", nil},
		{"when is the next drop?", "chat", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.prompt, func(t *testing.T) {
			got := parsePrompt(tt.prompt)
			assert.Equal(t, tt.wantType, got.Type)
			switch tt.wantType {
			case "command":
				require.NotNil(t, got.Command)
				assert.Equal(t, tt.wantAction, got.Command.Action)
				assert.Equal(t, tt.wantParams, got.Command.Parameters)
			case "chat":
				assert.Contains(t, got.Response, "monitor <sku>")
			case "error":
				assert.NotEmpty(t, got.Message)
			}
		})
	}
}
