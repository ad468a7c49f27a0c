package wire

import (
	"encoding/json"
	"fmt"
)

// Frame events.
const (
	EventConnectionEstablished = "connection_established"
	EventSubscribe             = "subscribe"
	EventUnsubscribe           = "unsubscribe"
	EventSubscriptionSucceeded = "subscription_succeeded"
	EventSubscriptionError     = "subscription_error"
	EventNotification          = "notification"
)

// Frame is a single websocket text message in either direction.
type Frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type ConnectionEstablished struct {
	SocketID string `json:"socket_id"`
}

// ChannelData is the member descriptor returned by a successful channel
// authorization.
type ChannelData struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type SubscriptionError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
}

// EncodeFrame marshals data and wraps it in a frame.
func EncodeFrame(event, channel string, data any) ([]byte, error) {
	var raw json.RawMessage
	switch v := data.(type) {
	case nil:
	case json.RawMessage:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s data: %w", event, err)
		}
		raw = b
	}
	return json.Marshal(Frame{Event: event, Channel: channel, Data: raw})
}

// DecodeFrame parses a frame. Data is left raw.
func DecodeFrame(b []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("decode frame: missing event")
	}
	return f, nil
}
