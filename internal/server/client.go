package server

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/livechat/internal/chat"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one WebSocket connection. It is the chat.Sink the hub delivers to:
// payloads are queued on a buffered channel drained by writePump.
type Client struct {
	id   string
	conn *websocket.Conn
	hub  *chat.Hub
	addr string

	mu     sync.Mutex
	send   chan []byte
	closed bool

	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
	log            zerolog.Logger
}

var _ chat.Sink = (*Client)(nil)

// NewClient creates a Client with a fresh connection id for conn. conn may be
// nil in tests that only exercise the send queue.
func NewClient(conn *websocket.Conn, hub *chat.Hub, addr string, cfg Config, log zerolog.Logger) *Client {
	cfg = cfg.Sanitize()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	return &Client{
		id:             id,
		conn:           conn,
		hub:            hub,
		addr:           addr,
		send:           make(chan []byte, cfg.SendBufferSize),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:      cfg.RateLimit,
		log:            log.With().Str("conn_id", id).Str("addr", addr).Logger(),
	}
}

// ID returns the connection identifier registered with the hub.
func (c *Client) ID() string {
	return c.id
}

// Deliver queues payload without blocking.
func (c *Client) Deliver(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("%w: connection closed", chat.ErrDelivery)
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return fmt.Errorf("%w: send buffer full", chat.ErrDelivery)
	}
}

// Close closes the outbound queue; writePump then sends a close frame. It is
// safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn().Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// logReadError logs why the read loop is ending at a level matching the cause.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn().Int64("limit", c.maxMessageSize).Msg("frame exceeded maximum size")
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Debug().Err(err).Msg("client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Debug().Err(err).Msg("connection closed")
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.log.Warn().Err(err).Msg("unexpected websocket close")
	default:
		c.log.Debug().Err(err).Msg("websocket read error")
	}
}

// checkRateLimit reports whether the next frame may be processed. Dropped
// frames are answered with an error event.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter == nil || c.rateLimiter.allow() {
		return true
	}

	c.log.Warn().
		Int("burst", c.rateLimit.Burst).
		Dur("interval", c.rateLimit.RefillInterval).
		Msg("rate limit exceeded, discarding frame")

	if payload, err := chat.ErrorEvent("Rate limit exceeded.").Encode(); err == nil {
		_ = c.Deliver(payload)
	}
	return false
}

func (c *Client) readPump() {
	defer func() {
		if err := c.hub.Disconnect(c.id); err != nil && !errors.Is(err, chat.ErrHubClosed) {
			c.log.Error().Err(err).Msg("failed to disconnect from hub")
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error closing connection in readPump")
		}
	}()

	c.setupReadConnection()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		if err := c.hub.Dispatch(c.id, frame); err != nil {
			c.log.Debug().Err(err).Msg("hub rejected frame")
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection closes the WebSocket connection, logging only unexpected errors.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn().Err(err).Msg("error closing connection in writePump")
	}
}

// handleMessage writes one queued payload, or a close frame once the queue is
// closed, and returns false if the pump should stop.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting write deadline")
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Debug().Err(err).Msg("error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing message")
		}
		return false
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing ping message")
		}
		return false
	}
	return true
}
