package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Engine.IO v4 packet types (first byte of every websocket message).
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
)

// Socket.IO v5 packet types (second byte of an Engine.IO message).
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
)

const noAck = -1

var errEmptyPacket = errors.New("empty packet")

// handshake is the Engine.IO open packet payload.
type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int    `json:"maxPayload"`
}

// packet is a decoded websocket message.
type packet struct {
	eio   byte
	sio   byte // zero unless eio == eioMessage
	ackID int  // noAck when absent
	data  []byte
}

// socketURL turns a collector endpoint into the Engine.IO websocket URL.
// http(s) maps to ws(s); an empty path becomes /socket.io/.
func socketURL(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid collector url %q: %w", endpoint, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported collector scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("collector url %q has no host", endpoint)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// encodeEvent builds `42[ackID]["event",payload]`.
func encodeEvent(event string, ackID int, payload interface{}) ([]byte, error) {
	body, err := json.Marshal([]interface{}{event, payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event: %w", event, err)
	}

	var b strings.Builder
	b.Grow(len(body) + 8)
	b.WriteByte(eioMessage)
	b.WriteByte(sioEvent)
	if ackID != noAck {
		b.WriteString(strconv.Itoa(ackID))
	}
	b.Write(body)
	return []byte(b.String()), nil
}

// parsePacket decodes one websocket message. Only the default namespace is
// used, so a namespace prefix is skipped.
func parsePacket(msg []byte) (packet, error) {
	if len(msg) == 0 {
		return packet{}, errEmptyPacket
	}

	p := packet{eio: msg[0], ackID: noAck}
	if p.eio != eioMessage {
		p.data = msg[1:]
		return p, nil
	}
	if len(msg) < 2 {
		return packet{}, fmt.Errorf("truncated socket.io packet %q", msg)
	}

	p.sio = msg[1]
	rest := msg[2:]

	if len(rest) > 0 && rest[0] == '/' {
		if i := strings.IndexByte(string(rest), ','); i >= 0 {
			rest = rest[i+1:]
		} else {
			rest = nil
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(string(rest[:digits]))
		if err != nil {
			return packet{}, fmt.Errorf("bad ack id in %q: %w", msg, err)
		}
		p.ackID = id
	}
	p.data = rest[digits:]
	return p, nil
}

// eventName returns the event name and raw arguments of an event packet.
func (p packet) eventName() (string, []json.RawMessage, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(p.data, &args); err != nil {
		return "", nil, fmt.Errorf("malformed event: %w", err)
	}
	if len(args) == 0 {
		return "", nil, errors.New("event without a name")
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", nil, fmt.Errorf("event name is not a string: %w", err)
	}
	return name, args[1:], nil
}

// connectError extracts the message of a CONNECT_ERROR packet.
func (p packet) connectError() string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(p.data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return string(p.data)
}
