package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Transport is one open bidirectional channel. *websocket.Conn satisfies it.
type Transport interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

const defaultWriteTimeout = 10 * time.Second

// Dialer opens a Transport to address
type Dialer func(ctx context.Context, address string) (Transport, error)

// WebsocketDialer dials SparkSDR's websocket endpoint (ws://host:4649/Spark)
func WebsocketDialer(handshakeTimeout time.Duration) Dialer {
	d := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	return func(ctx context.Context, address string) (Transport, error) {
		conn, _, err := d.DialContext(ctx, address, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s: %w", address, err)
		}
		return conn, nil
	}
}

// Connection is the part of ConnectionManager the model depends on
type Connection interface {
	Connect(ctx context.Context, address string) uuid.UUID
	Disconnect()
	IsConnected() bool
	Send(cmd Command) error
}

// ConnectionManager owns zero or one transport and turns its lifecycle and
// frames into events delivered to sink. Each Connect starts a new session;
// every event carries the session it came from.
type ConnectionManager struct {
	dial    Dialer
	sink    func(Event)
	log     *logrus.Entry
	metrics *PrometheusMetrics

	mu         sync.Mutex
	transport  Transport
	session    uuid.UUID
	cancelDial context.CancelFunc

	// writeMu serializes frame writes; mu is never held while writing
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

func NewConnectionManager(dial Dialer, sink func(Event), metrics *PrometheusMetrics) *ConnectionManager {
	return &ConnectionManager{
		dial:         dial,
		sink:         sink,
		log:          NewLogger("connection"),
		metrics:      metrics,
		writeTimeout: defaultWriteTimeout,
	}
}

// Connect tears down any existing connection, then dials address in the
// background. The returned session id tags every event of this connection.
func (c *ConnectionManager) Connect(ctx context.Context, address string) uuid.UUID {
	c.Disconnect()

	session := uuid.New()
	dialCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.session = session
	c.cancelDial = cancel
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"address": address, "session": session}).Info("Connecting")
	go c.run(dialCtx, session, address)
	return session
}

func (c *ConnectionManager) run(ctx context.Context, session uuid.UUID, address string) {
	transport, err := c.dial(ctx, address)
	if err != nil {
		c.log.WithError(err).WithField("address", address).Warn("Connection failed")
		c.sink(DisconnectedEvent{Session: session, Err: err})
		return
	}

	c.mu.Lock()
	if c.session != session {
		// Replaced or disconnected while dialing
		c.mu.Unlock()
		transport.Close()
		return
	}
	c.transport = transport
	c.mu.Unlock()

	c.metrics.RecordConnected()
	c.log.WithField("address", address).Info("Connected")
	c.sink(ConnectedEvent{Session: session})

	c.readLoop(session, transport)
}

func (c *ConnectionManager) readLoop(session uuid.UUID, transport Transport) {
	for {
		kind, data, err := transport.ReadMessage()
		if err != nil {
			c.release(session, transport)
			c.metrics.RecordDisconnected()
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Info("Connection closed")
			} else {
				c.log.WithError(err).Warn("Connection lost")
			}
			c.sink(DisconnectedEvent{Session: session, Err: err})
			return
		}

		switch kind {
		case websocket.TextMessage:
			c.metrics.RecordFrame("text")
			resp, err := DecodeResponse(data)
			if err != nil {
				c.metrics.RecordDecodeError()
			}
			c.sink(ResponseEvent{Session: session, Response: resp, Err: err})
		case websocket.BinaryMessage:
			c.metrics.RecordFrame("binary")
			c.sink(AudioEvent{Session: session, Data: data})
		default:
			c.metrics.RecordFrame("other")
			c.log.WithField("type", kind).Debug("Dropping frame with unsupported payload kind")
		}
	}
}

// release drops transport if it is still the current one
func (c *ConnectionManager) release(session uuid.UUID, transport Transport) {
	c.mu.Lock()
	current := c.session == session && c.transport == transport
	if current {
		c.transport = nil
	}
	c.mu.Unlock()
	if current {
		transport.Close()
	}
}

// Disconnect releases the transport. It is safe to call when not connected.
func (c *ConnectionManager) Disconnect() {
	c.mu.Lock()
	transport := c.transport
	cancel := c.cancelDial
	c.transport = nil
	c.cancelDial = nil
	c.session = uuid.Nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if transport != nil {
		if err := transport.Close(); err != nil {
			c.log.WithError(err).Debug("Error closing transport")
		}
		c.log.Info("Disconnected")
	}
}

func (c *ConnectionManager) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport != nil
}

// Send encodes cmd and writes it as a text frame. Without a transport it
// returns ErrNotConnected and nothing is written.
func (c *ConnectionManager) Send(cmd Command) error {
	frame, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}

	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()

	if transport == nil {
		c.metrics.RecordSendError("not_connected")
		c.log.WithField("frame", string(frame)).Warn("Attempted to send while not connected")
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := transport.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		c.metrics.RecordSendError("write")
		return fmt.Errorf("failed to send %s: %w", cmd.CommandName(), err)
	}
	if err := transport.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.metrics.RecordSendError("write")
		return fmt.Errorf("failed to send %s: %w", cmd.CommandName(), err)
	}
	c.metrics.RecordCommandSent(cmd.CommandName())
	c.log.WithField("frame", string(frame)).Debug("Sent")
	return nil
}
