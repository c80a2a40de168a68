// Package events defines the event types pushed over the real-time channel and
// their payloads. Types mirror the backend wire protocol.
package events

import (
	"encoding/json"
	"time"
)

// Type identifies an envelope on the channel.
type Type = string

const (
	MonitorUpdate Type = "monitor.update"
	TaskUpdate    Type = "task.update"
	Alert         Type = "alert"
	StockAlert    Type = "stock_alert"
	NewEvent      Type = "new_event"
	LacesEarned   Type = "laces_earned"

	// ChannelExhausted is synthesized by the channel client once it stops
	// reconnecting.
	ChannelExhausted Type = "channel.exhausted"
)

// MonitorStatus is the payload of monitor.update.
type MonitorStatus struct {
	MonitorID string `json:"monitor_id"`
	SKU       string `json:"sku"`
	Status    string `json:"status"`
	InStock   bool   `json:"in_stock"`
	PollCount int    `json:"poll_count"`
	LatencyMS int    `json:"latency_ms"`
}

// TaskProgress is the payload of task.update.
type TaskProgress struct {
	TaskID   string  `json:"task_id"`
	Message  string  `json:"message"`
	Progress float64 `json:"progress"`
	Status   string  `json:"status,omitempty"`
}

// AlertMessage is the payload of alert.
type AlertMessage struct {
	Message string `json:"message"`
}

// StockAvailable is the payload of stock_alert.
type StockAvailable struct {
	SKU      string   `json:"sku"`
	Retailer string   `json:"retailer"`
	Sizes    []string `json:"sizes"`
}

// Activity is a single community activity entry (payload of new_event).
type Activity struct {
	EventID   string    `json:"event_id"`
	Type      string    `json:"type"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// LacesCredit is the payload of laces_earned.
type LacesCredit struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

// Exhausted is the payload of channel.exhausted.
type Exhausted struct {
	Attempts int `json:"attempts"`
}

// Decode unmarshals a raw payload into T.
func Decode[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}

var lacesReasons = map[string]string{
	"SPOT":       "Spotted a drop",
	"VERIFY":     "Verified an event",
	"KNOWLEDGE":  "Shared knowledge",
	"TRADE":      "Completed trade",
	"GOOD_VIBES": "Community contribution",
	"DROPZONE":   "DropZone activity",
}

// LacesReasonText returns a human label for a LACES reason code, or the code
// itself when unknown.
func LacesReasonText(reason string) string {
	if s, ok := lacesReasons[reason]; ok {
		return s
	}
	return reason
}
