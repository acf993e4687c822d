package transport

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestParseDataUpdate(t *testing.T) {
	msg, err := parseServerMessage([]byte(`{"type":"admin_data_update","data":{"dashboard":{"jobs":5}}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	update, ok := msg.(*dataUpdate)
	if !ok {
		t.Fatalf("expected *dataUpdate, got %T", msg)
	}
	if !bytes.Equal(update.snap["dashboard"], []byte(`{"jobs":5}`)) {
		t.Errorf("unexpected dashboard payload: %s", update.snap["dashboard"])
	}
}

func TestParsePing(t *testing.T) {
	msg, err := parseServerMessage([]byte(`{"type":"ping"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := msg.(*pingMessage); !ok {
		t.Fatalf("expected *pingMessage, got %T", msg)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `{{{`},
		{"unknown type", `{"type":"shrug"}`},
		{"missing type", `{"data":{}}`},
	}

	for _, tc := range cases {
		if _, err := parseServerMessage([]byte(tc.data)); err == nil {
			t.Errorf("%s: expected parse error", tc.name)
		}
	}
}

func TestSubscribeHandshakeShape(t *testing.T) {
	var msg map[string]string
	if err := json.Unmarshal(buildSubscribeMessage("client-1"), &msg); err != nil {
		t.Fatalf("handshake is not valid JSON: %v", err)
	}

	if msg["type"] != "subscribe" {
		t.Errorf("type = %q, want subscribe", msg["type"])
	}
	if msg["channel"] != "admin_updates" {
		t.Errorf("channel = %q, want admin_updates", msg["channel"])
	}
	if msg["client_id"] != "client-1" {
		t.Errorf("client_id = %q, want client-1", msg["client_id"])
	}
}

func TestPongShape(t *testing.T) {
	var msg map[string]string
	if err := json.Unmarshal(buildPongMessage(), &msg); err != nil {
		t.Fatalf("pong is not valid JSON: %v", err)
	}
	if msg["type"] != "pong" {
		t.Errorf("type = %q, want pong", msg["type"])
	}
}
