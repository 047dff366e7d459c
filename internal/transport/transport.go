// Package transport owns a single WebSocket connection to the pokojowo
// realtime server: dialing with the caller's bearer token, reading frames
// into a channel, and keeping the link alive with pings.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Errors
var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("transport closed")
)

// Inbound wraps a raw frame with its receive timestamp.
type Inbound struct {
	Data       []byte
	ReceivedAt time.Time
}

// Config holds settings for one connection.
type Config struct {
	URL          string
	Token        string        // sent as Authorization: Bearer <token>
	DialTimeout  time.Duration // WebSocket handshake deadline
	WriteTimeout time.Duration
	PingInterval time.Duration
	PongTimeout  time.Duration // read deadline reset on each pong
	BufferSize   int           // inbound channel capacity
}

// Conn is a single bidirectional connection. Implementations deliver
// every inbound frame on Messages and exactly one error on Errors when
// the link drops for any reason other than Close.
type Conn interface {
	Connect(ctx context.Context) error
	Close() error
	Send(data []byte) error
	Messages() <-chan Inbound
	Errors() <-chan error
	IsConnected() bool
}

type conn struct {
	cfg    Config
	logger *slog.Logger

	ws *websocket.Conn

	messages chan Inbound
	errs     chan error
	done     chan struct{}

	writeMu sync.Mutex

	mu        sync.RWMutex
	connected bool
	closed    bool
}

// New creates an unconnected transport.
func New(cfg Config, logger *slog.Logger) Conn {
	if logger == nil {
		logger = slog.Default()
	}
	// A zero write timeout would put every write deadline in the past.
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}

	return &conn{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan Inbound, cfg.BufferSize),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect dials the server and starts the read and ping loops.
func (c *conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Accept", "application/json")
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.DialTimeout,
	}

	ws, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	if c.cfg.PongTimeout > 0 {
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
		})
		ws.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	}

	c.mu.Lock()
	c.ws = ws
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(ws)
	go c.pingLoop(ws)

	c.logger.Debug("websocket connected", "url", c.cfg.URL)

	return nil
}

// Close tears the connection down. It is idempotent and suppresses the
// read-loop error the teardown provokes.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	ws := c.ws
	c.mu.Unlock()

	close(c.done)

	if ws != nil {
		ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return ws.Close()
	}

	return nil
}

// Send writes one frame. Writes are serialized; gorilla connections do
// not allow concurrent writers.
func (c *conn) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	ws := c.ws
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return ws.WriteMessage(websocket.TextMessage, data)
}

func (c *conn) Messages() <-chan Inbound {
	return c.messages
}

func (c *conn) Errors() <-chan error {
	return c.errs
}

func (c *conn) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// readLoop delivers inbound frames until the connection drops.
func (c *conn) readLoop(ws *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		_, data, err := ws.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-c.done:
				// Error caused by Close(), not the network.
			default:
				select {
				case c.errs <- err:
				default:
				}
			}
			return
		}

		msg := Inbound{Data: data, ReceivedAt: receivedAt}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		default:
			c.logger.Warn("inbound buffer full, dropping frame")
		}
	}
}

// pingLoop keeps the connection alive; the server answers with pongs
// which push the read deadline forward.
func (c *conn) pingLoop(ws *websocket.Conn) {
	interval := c.cfg.PingInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			err := ws.WriteControl(websocket.PingMessage, nil, deadline)
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("ping failed", "error", err)
				return
			}
		}
	}
}
