package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"faceenroll/internal/dto"
	"faceenroll/internal/logger"

	"github.com/gorilla/websocket"
)

// fakeCollector is a minimal Socket.IO server over gorilla/websocket.
type fakeCollector struct {
	refuse   bool
	ack      bool
	pingOnce bool
	dropNow  bool
	push     string

	received chan string
	conns    atomic.Int32
}

func newFakeCollector() *fakeCollector {
	return &fakeCollector{received: make(chan string, 64)}
}

func (f *fakeCollector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "bad transport", http.StatusBadRequest)
		return
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	f.conns.Add(1)

	conn.WriteMessage(websocket.TextMessage, []byte(`0{"sid":"s1","pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`))

	_, msg, err := conn.ReadMessage()
	if err != nil || string(msg) != "40" {
		return
	}
	if f.refuse {
		conn.WriteMessage(websocket.TextMessage, []byte(`44{"message":"unauthorized"}`))
		return
	}
	conn.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"n1"}`))

	if f.dropNow {
		return
	}
	if f.pingOnce {
		conn.WriteMessage(websocket.TextMessage, []byte("2"))
	}
	if f.push != "" {
		conn.WriteMessage(websocket.TextMessage, []byte(f.push))
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f.received <- string(msg)

		p, err := parsePacket(msg)
		if err != nil || p.eio != eioMessage {
			continue
		}
		if p.sio == sioEvent && p.ackID != noAck && f.ack {
			conn.WriteMessage(websocket.TextMessage, []byte("43"+strconv.Itoa(p.ackID)+`["queued"]`))
		}
	}
}

func startCollector(t *testing.T, f *fakeCollector) string {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv.URL
}

func nextMessage(t *testing.T, f *fakeCollector) string {
	t.Helper()
	select {
	case m := <-f.received:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for collector to receive a message")
	}
	return ""
}

func testPublisher() *Publisher {
	return NewPublisher(logger.New(io.Discard))
}

func TestPublisher_EmitsInOrder(t *testing.T) {
	f := newFakeCollector()
	url := startCollector(t, f)

	p := testPublisher()
	if err := p.Connect(context.Background(), url, Options{}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if p.State() != Connected {
		t.Fatalf("Expected connected, got %v", p.State())
	}

	frame := dto.Frame{Data: []byte{1, 2, 3}, Format: ".png"}
	for i := 0; i < 3; i++ {
		if err := p.EmitFrame("alice", frame); err != nil {
			t.Fatalf("EmitFrame failed: %v", err)
		}
	}
	if err := p.EmitCompletion(context.Background(), "alice"); err != nil {
		t.Fatalf("EmitCompletion failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		m := nextMessage(t, f)
		if m != `42["registered",{"image":"data:image/png;base64,AQID","name":"alice"}]` {
			t.Errorf("Frame %d: unexpected packet %s", i, m)
		}
	}
	if m := nextMessage(t, f); m != `42["train",{"name":"alice"}]` {
		t.Errorf("Expected train event, got %s", m)
	}

	p.Disconnect()
	if m := nextMessage(t, f); m != "41" {
		t.Errorf("Expected namespace disconnect, got %s", m)
	}
	if p.State() != Disconnected {
		t.Errorf("Expected disconnected, got %v", p.State())
	}
}

func TestPublisher_ConnectRefused(t *testing.T) {
	f := newFakeCollector()
	f.refuse = true
	url := startCollector(t, f)

	p := testPublisher()
	err := p.Connect(context.Background(), url, Options{ConnectTimeout: time.Second})
	if err == nil || !strings.Contains(err.Error(), "unauthorized") {
		t.Fatalf("Expected refusal error, got %v", err)
	}
	if p.State() != Disconnected {
		t.Errorf("Expected disconnected after refusal, got %v", p.State())
	}
}

func TestPublisher_ConnectUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := testPublisher()
	if err := p.Connect(context.Background(), url, Options{ConnectTimeout: 500 * time.Millisecond}); err == nil {
		t.Fatal("Expected dial error")
	}
	if err := p.EmitFrame("alice", dto.Frame{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestPublisher_ConnectTwice(t *testing.T) {
	f := newFakeCollector()
	url := startCollector(t, f)

	p := testPublisher()
	if err := p.Connect(context.Background(), url, Options{}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer p.Disconnect()

	if err := p.Connect(context.Background(), url, Options{}); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("Expected ErrAlreadyConnected, got %v", err)
	}
	if n := f.conns.Load(); n != 1 {
		t.Errorf("Expected one collector connection, got %d", n)
	}
}

func TestPublisher_AckMode(t *testing.T) {
	f := newFakeCollector()
	f.ack = true
	url := startCollector(t, f)

	p := testPublisher()
	if err := p.Connect(context.Background(), url, Options{RequireAck: true, AckTimeout: time.Second}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer p.Disconnect()

	if err := p.EmitCompletion(context.Background(), "bob"); err != nil {
		t.Fatalf("Expected acknowledged completion, got %v", err)
	}
	if m := nextMessage(t, f); m != `420["train",{"name":"bob"}]` {
		t.Errorf("Expected train event with ack id, got %s", m)
	}
}

func TestPublisher_AckTimeout(t *testing.T) {
	f := newFakeCollector()
	url := startCollector(t, f)

	p := testPublisher()
	if err := p.Connect(context.Background(), url, Options{RequireAck: true, AckTimeout: 50 * time.Millisecond}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer p.Disconnect()

	if err := p.EmitCompletion(context.Background(), "bob"); !errors.Is(err, ErrAckTimeout) {
		t.Errorf("Expected ErrAckTimeout, got %v", err)
	}
}

func TestPublisher_AnswersPing(t *testing.T) {
	f := newFakeCollector()
	f.pingOnce = true
	url := startCollector(t, f)

	p := testPublisher()
	if err := p.Connect(context.Background(), url, Options{}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer p.Disconnect()

	if m := nextMessage(t, f); m != "3" {
		t.Errorf("Expected pong, got %s", m)
	}
}

func TestPublisher_DropIsReported(t *testing.T) {
	f := newFakeCollector()
	f.dropNow = true
	url := startCollector(t, f)

	warned := make(chan error, 4)
	p := testPublisher()
	p.OnWarning(func(err error) {
		select {
		case warned <- err:
		default:
		}
	})
	if err := p.Connect(context.Background(), url, Options{}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case err := <-warned:
		if !strings.Contains(err.Error(), "connection lost") {
			t.Errorf("Unexpected warning %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Dropped connection was not reported")
	}

	deadline := time.Now().Add(time.Second)
	for p.State() != Disconnected && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.State() != Disconnected {
		t.Errorf("Expected disconnected after drop, got %v", p.State())
	}
	if err := p.EmitFrame("alice", dto.Frame{}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected after drop, got %v", err)
	}

	p.Disconnect()
	p.Disconnect()
}

func TestPublisher_DisconnectWithoutConnect(t *testing.T) {
	p := testPublisher()
	p.Disconnect()
	if p.State() != Disconnected {
		t.Errorf("Expected disconnected, got %v", p.State())
	}
}

func TestPublisher_DeliversServerEvents(t *testing.T) {
	f := newFakeCollector()
	f.push = `42["training-complete",{"name":"alice"}]`
	url := startCollector(t, f)

	got := make(chan string, 1)
	p := testPublisher()
	p.OnEvent(func(name string, args []json.RawMessage) {
		if len(args) == 1 {
			got <- name
		}
	})
	if err := p.Connect(context.Background(), url, Options{}); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer p.Disconnect()

	select {
	case name := <-got:
		if name != "training-complete" {
			t.Errorf("Unexpected event %s", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Server event was not delivered")
	}
}
