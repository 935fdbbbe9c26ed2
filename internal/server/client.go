// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// pongWait is how long to wait for a pong before the connection is
	// considered dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often ping frames go out. Must be less than
	// pongWait.
	pingPeriod = 54 * time.Second

	// writeWait is the deadline for a single write to a client.
	writeWait = 10 * time.Second

	// sendBufSize is the per-client outgoing message buffer depth.
	sendBufSize = 256
)

// Client represents one WebSocket connection on the bridge. It carries the
// connection state, the outgoing message channel, and the session id the
// connection registered under (empty until the first join).
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	addr           string
	sessionID      string
	closed         bool
	maxMessageSize int64
	limiter        *tokenBucket
	rateLimit      RateLimitConfig
}

// NewClient creates a Client for the given connection. The hub launches the
// read/write pumps when the client is registered.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg Config) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, sendBufSize),
		hub:            hub,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newTokenBucket(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
	}
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("error setting initial read deadline", "addr", c.addr, "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			slog.Warn("error setting read deadline in pong handler", "addr", c.addr, "err", err)
		}
		return nil
	})
}

// handleReadError logs the read failure and reports whether the read loop
// should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		slog.Warn("message exceeded maximum size", "addr", c.addr, "max_bytes", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		slog.Info("client disconnected", "addr", c.addr, "err", err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		slog.Info("client connection closed", "addr", c.addr, "err", err)
	default:
		slog.Warn("websocket read error", "addr", c.addr, "err", err)
	}
	return true
}

// processFrame decodes one raw frame and queues it for the hub. Frames that
// fail to decode are answered with an error event without involving the hub.
func (c *Client) processFrame(raw []byte) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		slog.Warn("rejected frame", "addr", c.addr, "err", err)
		c.trySendError(err.Error())
		return
	}

	select {
	case c.hub.inbound <- inboundEvent{sender: c, env: env, raw: raw}:
	case <-c.hub.ctx.Done():
	}
}

// trySendError queues an error event for this connection. The send goes
// through the hub's guarded path, never directly on c.send: the hub may
// close that channel concurrently when it drops the client, and a bare send
// would panic the read pump. Best effort; dropped if the client is gone or
// its buffer is full.
func (c *Client) trySendError(reason string) {
	payload, err := encodeEvent(EventError, ErrorPayload{Reason: reason})
	if err != nil {
		return
	}
	c.hub.safeSend(c, payload)
}

func (c *Client) readPump() {
	defer func() {
		// The hub may already be shut down; never block on unregister.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Warn("error closing connection in readPump", "addr", c.addr, "err", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
			continue
		}

		if !c.limiter.allow() {
			slog.Warn("rate limit exceeded; discarding message",
				"addr", c.addr, "burst", c.rateLimit.Burst, "refill", c.rateLimit.RefillInterval)
			continue
		}

		c.processFrame(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Warn("error closing connection in writePump", "addr", c.addr, "err", err)
		}
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				slog.Warn("error setting write deadline", "addr", c.addr, "err", err)
				return
			}
			if !ok {
				// The hub closed the channel.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					slog.Warn("error writing close message", "addr", c.addr, "err", err)
				}
				return
			}
			if !c.writeFrame(payload) {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				slog.Warn("error setting ping write deadline", "addr", c.addr, "err", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !isExpectedCloseError(err) {
					slog.Warn("error writing ping message", "addr", c.addr, "err", err)
				}
				return
			}
		}
	}
}

// writeFrame sends one payload as its own text frame. Each envelope must be
// a standalone frame so browser clients can JSON.parse event.data directly,
// so queued payloads are not coalesced.
func (c *Client) writeFrame(payload []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			slog.Warn("error writing message", "addr", c.addr, "err", err)
		}
		return false
	}
	return true
}
