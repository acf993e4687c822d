package transport

import (
	"encoding/json"
	"fmt"

	"github.com/clipfeed/admin-dashboard/internal/snapshot"
)

// Wire message types exchanged with the backend push endpoint.
const (
	msgTypeDataUpdate = "admin_data_update"
	msgTypePing       = "ping"
	msgTypePong       = "pong"
	msgTypeSubscribe  = "subscribe"

	subscribeChannel = "admin_updates"
)

// Parsed inbound message types for internal routing
type (
	dataUpdate struct {
		snap snapshot.Snapshot
	}
	pingMessage struct{}
)

type envelope struct {
	Type string            `json:"type"`
	Data snapshot.Snapshot `json:"data,omitempty"`
}

// parseServerMessage parses a JSON-encoded downstream message.
func parseServerMessage(data []byte) (any, error) {
	var msg envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal server message: %w", err)
	}

	switch msg.Type {
	case msgTypeDataUpdate:
		return &dataUpdate{snap: msg.Data}, nil

	case msgTypePing:
		return &pingMessage{}, nil

	default:
		return nil, fmt.Errorf("unknown message type: %q", msg.Type)
	}
}

// buildSubscribeMessage creates the handshake sent once after connect.
func buildSubscribeMessage(clientID string) []byte {
	msg := map[string]interface{}{
		"type":      msgTypeSubscribe,
		"channel":   subscribeChannel,
		"client_id": clientID,
	}
	data, _ := json.Marshal(msg)
	return data
}

// buildPongMessage creates the reply to a server keep-alive ping.
func buildPongMessage() []byte {
	msg := map[string]interface{}{
		"type": msgTypePong,
	}
	data, _ := json.Marshal(msg)
	return data
}
