package channel

import "encoding/json"

// Envelope is the unit delivered over the channel.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// parseEnvelope accepts a JSON object with a non-empty string "type". A
// missing payload is delivered as JSON null.
func parseEnvelope(data []byte) (Envelope, bool) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, false
	}
	if env.Type == "" {
		return Envelope{}, false
	}
	if env.Payload == nil {
		env.Payload = json.RawMessage("null")
	}
	return env, true
}
