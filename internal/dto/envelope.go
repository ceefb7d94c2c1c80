package dto

import (
	"encoding/json"
	"fmt"
)

// Envelope 是 WebSocket 上双向传输的消息外壳: {"event": "...", "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an event name and payload into a wire message.
func Encode(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// DecodeEnvelope splits a wire message into its event name and raw payload.
func DecodeEnvelope(message []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return env, fmt.Errorf("%w: invalid envelope: %v", ErrMalformedEvent, err)
	}
	if env.Event == "" {
		return env, fmt.Errorf("%w: missing event name", ErrMalformedEvent)
	}
	return env, nil
}
