// Package stream publishes accepted frames and the completion signal to the
// remote collector over a single Socket.IO websocket.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"faceenroll/internal/dto"
	"faceenroll/internal/logger"

	"github.com/gorilla/websocket"
)

var (
	// ErrNotConnected is returned when emitting without a live connection.
	ErrNotConnected = errors.New("collector channel not connected")
	// ErrAlreadyConnected is returned by Connect while a connection is live.
	ErrAlreadyConnected = errors.New("collector channel already connected")
	// ErrQueueFull is returned when the outbound queue cannot take another event.
	ErrQueueFull = errors.New("collector send queue full")
	// ErrAckTimeout is returned when the collector does not acknowledge in time.
	ErrAckTimeout = errors.New("collector did not acknowledge")
)

// State is the lifecycle of the collector connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

// Options configures a connection.
type Options struct {
	ConnectTimeout time.Duration
	DrainTimeout   time.Duration
	AckTimeout     time.Duration
	RequireAck     bool
	QueueSize      int
	Header         http.Header
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 5 * time.Second
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = 10 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	return o
}

// EventFunc receives events the collector pushes to the client.
type EventFunc func(name string, args []json.RawMessage)

type outgoing struct {
	data    []byte
	event   string
	written chan error // nil for fire-and-forget
}

// link is one live websocket with its reader and writer goroutines.
type link struct {
	conn      *websocket.Conn
	outbound  chan outgoing
	control   chan []byte
	closing   chan struct{}
	closeOnce sync.Once
	writerEnd chan struct{}
	readerEnd chan struct{}
	readLimit time.Duration
}

func (l *link) close() {
	l.closeOnce.Do(func() { close(l.closing) })
}

// Publisher owns the single connection to the collector.
type Publisher struct {
	logger *logger.Logger
	dialer *websocket.Dialer

	mu    sync.Mutex
	state State
	link  *link
	opts  Options

	ackMu   sync.Mutex
	nextAck int
	acks    map[int]chan []json.RawMessage

	onWarning func(error)
	onEvent   EventFunc
}

// NewPublisher creates a disconnected Publisher.
func NewPublisher(logger *logger.Logger) *Publisher {
	return &Publisher{
		logger: logger,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		acks: make(map[int]chan []json.RawMessage),
	}
}

// OnWarning registers the sink for transmission warnings. Set before Connect.
func (p *Publisher) OnWarning(fn func(error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onWarning = fn
}

// OnEvent registers a handler for server-pushed events. Set before Connect.
func (p *Publisher) OnEvent(fn EventFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEvent = fn
}

// State returns the connection state.
func (p *Publisher) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Connect dials the collector and completes the Engine.IO and Socket.IO handshakes.
func (p *Publisher) Connect(ctx context.Context, endpoint string, opts Options) error {
	opts = opts.withDefaults()

	target, err := socketURL(endpoint)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.state != Disconnected {
		p.mu.Unlock()
		return ErrAlreadyConnected
	}
	if p.link != nil {
		// A previous link dropped on its own; finish tearing it down first.
		old := p.link
		p.link = nil
		p.mu.Unlock()
		p.shutdown(old, 0)
		p.mu.Lock()
	}
	p.state = Connecting
	p.opts = opts
	p.mu.Unlock()

	l, err := p.dial(ctx, target, opts)
	if err != nil {
		p.mu.Lock()
		p.state = Disconnected
		p.mu.Unlock()
		return err
	}

	p.mu.Lock()
	p.link = l
	p.state = Connected
	p.mu.Unlock()

	go p.writer(l, opts.DrainTimeout)
	go p.reader(l)

	p.logger.Info("🔌 Connected to collector %s", endpoint)
	return nil
}

func (p *Publisher) dial(ctx context.Context, target string, opts Options) (*link, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	conn, resp, err := p.dialer.DialContext(ctx, target, opts.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", target, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	deadline, _ := ctx.Deadline()
	conn.SetReadDeadline(deadline)

	fail := func(err error) (*link, error) {
		conn.Close()
		return nil, err
	}

	var hs handshake
	pkt, err := readPacket(conn)
	if err != nil {
		return fail(fmt.Errorf("waiting for open packet: %w", err))
	}
	if pkt.eio != eioOpen {
		return fail(fmt.Errorf("expected open packet, got %q", pkt.eio))
	}
	if err := json.Unmarshal(pkt.data, &hs); err != nil {
		return fail(fmt.Errorf("malformed open packet: %w", err))
	}

	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, []byte{eioMessage, sioConnect}); err != nil {
		return fail(fmt.Errorf("sending namespace connect: %w", err))
	}
	conn.SetWriteDeadline(time.Time{})

	for {
		pkt, err := readPacket(conn)
		if err != nil {
			return fail(fmt.Errorf("waiting for namespace connect: %w", err))
		}
		switch {
		case pkt.eio == eioPing:
			if err := conn.WriteMessage(websocket.TextMessage, []byte{eioPong}); err != nil {
				return fail(fmt.Errorf("answering ping: %w", err))
			}
			continue
		case pkt.eio == eioMessage && pkt.sio == sioConnect:
		case pkt.eio == eioMessage && pkt.sio == sioConnectError:
			return fail(fmt.Errorf("collector refused connection: %s", pkt.connectError()))
		default:
			return fail(fmt.Errorf("unexpected packet during handshake: %q", pkt.data))
		}
		break
	}

	// Engine.IO closes the session if no packet arrives within pingInterval+pingTimeout.
	readLimit := time.Duration(hs.PingInterval+hs.PingTimeout) * time.Millisecond
	if readLimit <= 0 {
		readLimit = 60 * time.Second
	}
	conn.SetReadDeadline(time.Now().Add(readLimit))

	return &link{
		conn:      conn,
		outbound:  make(chan outgoing, opts.QueueSize),
		control:   make(chan []byte, 4),
		closing:   make(chan struct{}),
		writerEnd: make(chan struct{}),
		readerEnd: make(chan struct{}),
		readLimit: readLimit,
	}, nil
}

func readPacket(conn *websocket.Conn) (packet, error) {
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return packet{}, err
	}
	return parsePacket(msg)
}

// EmitFrame queues a "registered" event carrying frame. It never blocks.
func (p *Publisher) EmitFrame(label string, frame dto.Frame) error {
	data, err := encodeEvent(dto.EventRegistered, noAck, dto.RegisteredPayload{Image: frame.DataURL(), Name: label})
	if err != nil {
		return err
	}
	return p.enqueue(outgoing{data: data, event: dto.EventRegistered})
}

// EmitCompletion sends the "train" event. In acknowledgment mode it waits for
// the collector's ack; otherwise it returns once the packet has been written.
func (p *Publisher) EmitCompletion(ctx context.Context, label string) error {
	p.mu.Lock()
	opts := p.opts
	l := p.link
	p.mu.Unlock()

	ackID := noAck
	var ackCh chan []json.RawMessage
	if opts.RequireAck {
		ackID, ackCh = p.registerAck()
		defer p.dropAck(ackID)
	}

	data, err := encodeEvent(dto.EventTrain, ackID, dto.TrainPayload{Name: label})
	if err != nil {
		return err
	}

	written := make(chan error, 1)
	if err := p.enqueueWait(ctx, outgoing{data: data, event: dto.EventTrain, written: written}); err != nil {
		return err
	}

	select {
	case err := <-written:
		if err != nil {
			return fmt.Errorf("sending train event: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	if !opts.RequireAck {
		return nil
	}

	timer := time.NewTimer(opts.AckTimeout)
	defer timer.Stop()
	select {
	case args := <-ackCh:
		p.logger.Info("✅ Collector acknowledged training request for %s (%d args)", label, len(args))
		return nil
	case <-timer.C:
		return ErrAckTimeout
	case <-l.readerEnd:
		return fmt.Errorf("waiting for train ack: %w", ErrNotConnected)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueue hands msg to the writer without blocking.
func (p *Publisher) enqueue(msg outgoing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Connected {
		return ErrNotConnected
	}
	select {
	case p.link.outbound <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// enqueueWait hands msg to the writer, waiting for queue space.
func (p *Publisher) enqueueWait(ctx context.Context, msg outgoing) error {
	for {
		err := p.enqueue(msg)
		if !errors.Is(err, ErrQueueFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (p *Publisher) registerAck() (int, chan []json.RawMessage) {
	p.ackMu.Lock()
	defer p.ackMu.Unlock()
	id := p.nextAck
	p.nextAck++
	ch := make(chan []json.RawMessage, 1)
	p.acks[id] = ch
	return id, ch
}

func (p *Publisher) dropAck(id int) {
	p.ackMu.Lock()
	defer p.ackMu.Unlock()
	delete(p.acks, id)
}

func (p *Publisher) resolveAck(id int, args []json.RawMessage) {
	p.ackMu.Lock()
	ch, ok := p.acks[id]
	p.ackMu.Unlock()
	if !ok {
		p.logger.Warning("Ack %d from collector matches no pending request", id)
		return
	}
	select {
	case ch <- args:
	default:
	}
}

// Disconnect flushes queued events, leaves the namespace and closes the
// websocket. Idempotent.
func (p *Publisher) Disconnect() {
	p.mu.Lock()
	l := p.link
	drain := p.opts.DrainTimeout
	p.link = nil
	p.state = Disconnected
	p.mu.Unlock()

	if l == nil {
		return
	}
	p.shutdown(l, drain)
	p.logger.Info("🔌 Disconnected from collector")
}

func (p *Publisher) shutdown(l *link, drain time.Duration) {
	l.close()
	select {
	case <-l.writerEnd:
	case <-time.After(drain + time.Second):
		p.logger.Warning("Collector writer did not finish draining in %v", drain)
	}
	l.conn.Close()
	<-l.readerEnd
}

func (p *Publisher) warn(err error) {
	p.mu.Lock()
	fn := p.onWarning
	p.mu.Unlock()
	p.logger.Warning("Transmission: %v", err)
	if fn != nil {
		fn(err)
	}
}

// writer is the only goroutine that writes to the websocket.
func (p *Publisher) writer(l *link, drain time.Duration) {
	defer close(l.writerEnd)

	write := func(data []byte) error {
		l.conn.SetWriteDeadline(time.Now().Add(drain))
		return l.conn.WriteMessage(websocket.TextMessage, data)
	}
	send := func(msg outgoing) {
		err := write(msg.data)
		if msg.written != nil {
			msg.written <- err
		}
		if err != nil {
			p.warn(fmt.Errorf("%s event not sent: %w", msg.event, err))
		}
	}

	for {
		select {
		case ctrl := <-l.control:
			if err := write(ctrl); err != nil {
				p.warn(fmt.Errorf("control packet not sent: %w", err))
			}
		case msg := <-l.outbound:
			send(msg)
		case <-l.closing:
			p.drain(l, drain, send)
			write([]byte{eioMessage, sioDisconnect})
			l.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		}
	}
}

// drain writes what is still queued, giving up after the drain timeout.
func (p *Publisher) drain(l *link, timeout time.Duration, send func(outgoing)) {
	deadline := time.Now().Add(timeout)
	for {
		select {
		case msg := <-l.outbound:
			if time.Now().After(deadline) {
				dropped := 1
				for rest := true; rest; {
					if msg.written != nil {
						msg.written <- ErrNotConnected
					}
					select {
					case msg = <-l.outbound:
						dropped++
					default:
						rest = false
					}
				}
				p.warn(fmt.Errorf("%d queued events dropped at disconnect", dropped))
				return
			}
			send(msg)
		default:
			return
		}
	}
}

// reader answers pings, resolves acks and reports a dropped connection.
func (p *Publisher) reader(l *link) {
	defer close(l.readerEnd)

	p.mu.Lock()
	onEvent := p.onEvent
	p.mu.Unlock()

	for {
		_, msg, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.closing:
			default:
				p.mu.Lock()
				if p.link == l {
					p.state = Disconnected
				}
				p.mu.Unlock()
				l.close()
				p.warn(fmt.Errorf("collector connection lost: %w", err))
			}
			return
		}
		l.conn.SetReadDeadline(time.Now().Add(l.readLimit))

		pkt, err := parsePacket(msg)
		if err != nil {
			p.logger.Warning("Unreadable packet from collector: %v", err)
			continue
		}

		switch pkt.eio {
		case eioPing:
			select {
			case l.control <- []byte{eioPong}:
			default:
			}
		case eioClose:
			p.logger.Warning("Collector closed the engine session")
		case eioMessage:
			p.handleMessage(pkt, onEvent)
		}
	}
}

func (p *Publisher) handleMessage(pkt packet, onEvent EventFunc) {
	switch pkt.sio {
	case sioAck:
		var args []json.RawMessage
		if err := json.Unmarshal(pkt.data, &args); err != nil {
			p.logger.Warning("Malformed ack from collector: %v", err)
		}
		p.resolveAck(pkt.ackID, args)
	case sioEvent:
		name, args, err := pkt.eventName()
		if err != nil {
			p.logger.Warning("Malformed event from collector: %v", err)
			return
		}
		p.logger.Info("📨 Collector event: %s", name)
		if onEvent != nil {
			onEvent(name, args)
		}
	case sioDisconnect:
		p.logger.Warning("Collector disconnected the namespace")
	case sioConnectError:
		p.logger.Warning("Collector reported: %s", pkt.connectError())
	}
}
