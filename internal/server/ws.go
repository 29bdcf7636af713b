package server

import (
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/queuetify/internal/hub"
	"github.com/desertthunder/queuetify/internal/models"
	"github.com/desertthunder/queuetify/internal/shared"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer     = 256
	writeWait      = 5 * time.Second
	maxMessageSize = 4096
)

// Client is one WebSocket connection registered with the hub.
//
// The read pump relays frames to the hub; the write pump drains the send channel and pings.
// Either pump exiting closes done, which stops the other.
type Client struct {
	id        string
	sessionID string
	conn      *websocket.Conn
	hub       Hub
	send      chan models.Envelope
	done      chan struct{}
	closeOnce sync.Once
	heartbeat time.Duration
	timeout   time.Duration
	logger    *log.Logger
}

func newClient(conn *websocket.Conn, sessionID string, h Hub, opts Options, logger *log.Logger) *Client {
	id := shared.GenerateID()
	return &Client{
		id:        id,
		sessionID: sessionID,
		conn:      conn,
		hub:       h,
		send:      make(chan models.Envelope, sendBuffer),
		done:      make(chan struct{}),
		heartbeat: opts.HeartbeatInterval,
		timeout:   opts.ClientTimeout,
		logger:    logger.With("session", sessionID, "connection", id),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Deliver queues env for the write pump without blocking. It reports false when the buffer is full or the client is gone.
func (c *Client) Deliver(env models.Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump relays inbound frames until the connection fails or goes silent for the client timeout.
func (c *Client) readPump() {
	defer func() {
		c.close()
		if err := c.hub.Disconnect(c.sessionID, c.id); err != nil && !errors.Is(err, hub.ErrStopped) {
			c.logger.Warn("failed to deregister connection", "error", err)
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.extendDeadline()
	c.conn.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info("connection lost", "error", err)
			} else {
				c.logger.Debug("connection closed", "error", err)
			}
			return
		}
		c.extendDeadline()

		if msgType != websocket.TextMessage {
			continue
		}

		req, err := DecodeRequest(data, c.sessionID, c.id)
		if err != nil {
			c.logger.Debug("ignoring frame", "error", err)
			continue
		}
		if err := c.hub.Relay(req); err != nil {
			c.logger.Warn("failed to relay request", "error", err)
			return
		}
	}
}

func (c *Client) extendDeadline() {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.timeout))
}

// writePump writes queued envelopes and pings every heartbeat. A Shutdown envelope ends the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.heartbeat)
	defer func() {
		ticker.Stop()
		c.close()
		c.conn.Close()
	}()

	for {
		select {
		case env := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.Debug("write failed", "error", err)
				return
			}
			if env.Type == models.ShutdownMsg {
				c.closeNormally()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed", "error", err)
				return
			}
		case <-c.done:
			c.closeNormally()
			return
		}
	}
}

func (c *Client) closeNormally() {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
}
