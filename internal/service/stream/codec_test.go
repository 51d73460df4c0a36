package stream

import (
	"testing"

	"faceenroll/internal/dto"
)

func TestSocketURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://ebitsvisionai.in", "wss://ebitsvisionai.in/socket.io/?EIO=4&transport=websocket", false},
		{"http://localhost:8000/", "ws://localhost:8000/socket.io/?EIO=4&transport=websocket", false},
		{"ws://10.0.0.2:9000/custom/", "ws://10.0.0.2:9000/custom/?EIO=4&transport=websocket", false},
		{"ftp://example.com", "", true},
		{"https://", "", true},
		{"::bad", "", true},
	}

	for _, tt := range tests {
		got, err := socketURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("socketURL(%q) expected error, got %s", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("socketURL(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("socketURL(%q) = %s, expected %s", tt.in, got, tt.want)
		}
	}
}

func TestEncodeEvent(t *testing.T) {
	got, err := encodeEvent(dto.EventTrain, noAck, dto.TrainPayload{Name: "alice"})
	if err != nil {
		t.Fatalf("encodeEvent failed: %v", err)
	}
	if string(got) != `42["train",{"name":"alice"}]` {
		t.Errorf("Unexpected packet %s", got)
	}

	got, err = encodeEvent(dto.EventRegistered, 7, dto.RegisteredPayload{Image: "data:image/png;base64,AA==", Name: "bob"})
	if err != nil {
		t.Fatalf("encodeEvent failed: %v", err)
	}
	if string(got) != `427["registered",{"image":"data:image/png;base64,AA==","name":"bob"}]` {
		t.Errorf("Unexpected packet %s", got)
	}
}

func TestParsePacket(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		eio   byte
		sio   byte
		ackID int
		data  string
	}{
		{"open", `0{"sid":"abc"}`, eioOpen, 0, noAck, `{"sid":"abc"}`},
		{"ping", `2`, eioPing, 0, noAck, ``},
		{"connect", `40{"sid":"x"}`, eioMessage, sioConnect, noAck, `{"sid":"x"}`},
		{"event", `42["hello",1]`, eioMessage, sioEvent, noAck, `["hello",1]`},
		{"ack", `4312["ok"]`, eioMessage, sioAck, 12, `["ok"]`},
		{"namespaced ack", `43/admin,5[]`, eioMessage, sioAck, 5, `[]`},
		{"connect error", `44{"message":"nope"}`, eioMessage, sioConnectError, noAck, `{"message":"nope"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := parsePacket([]byte(tt.in))
			if err != nil {
				t.Fatalf("parsePacket failed: %v", err)
			}
			if p.eio != tt.eio || p.sio != tt.sio || p.ackID != tt.ackID || string(p.data) != tt.data {
				t.Errorf("Got eio=%c sio=%q ack=%d data=%s", p.eio, p.sio, p.ackID, p.data)
			}
		})
	}
}

func TestParsePacket_Errors(t *testing.T) {
	for _, in := range []string{"", "4"} {
		if _, err := parsePacket([]byte(in)); err == nil {
			t.Errorf("Expected error for %q", in)
		}
	}
}

func TestPacket_EventName(t *testing.T) {
	p, _ := parsePacket([]byte(`42["training-complete",{"name":"alice"}]`))
	name, args, err := p.eventName()
	if err != nil {
		t.Fatalf("eventName failed: %v", err)
	}
	if name != "training-complete" || len(args) != 1 {
		t.Errorf("Unexpected event %s with %d args", name, len(args))
	}

	bad, _ := parsePacket([]byte(`42[]`))
	if _, _, err := bad.eventName(); err == nil {
		t.Error("Expected error for nameless event")
	}
}

func TestPacket_ConnectError(t *testing.T) {
	p, _ := parsePacket([]byte(`44{"message":"unauthorized"}`))
	if msg := p.connectError(); msg != "unauthorized" {
		t.Errorf("Expected 'unauthorized', got %q", msg)
	}
}
