package ui

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/queuetify/internal/server"
	"github.com/desertthunder/queuetify/internal/shared"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Conn is the client end of a session connection.
type Conn interface {
	Send(frame server.Frame) error
	Read() ([]byte, error)
	Close() error
}

// Client is a [Conn] over a gorilla WebSocket.
//
// Reads must come from a single goroutine; they also answer the server's pings.
type Client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Dial connects to the session's WebSocket on the server at baseURL.
func Dial(ctx context.Context, baseURL, sessionID string) (*Client, error) {
	u, err := websocketURL(baseURL, sessionID)
	if err != nil {
		return nil, err
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s: %s: %w", u, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", u, err)
	}
	return &Client{conn: conn}, nil
}

// websocketURL maps an http(s) or ws(s) base URL to the session's socket endpoint.
func websocketURL(baseURL, sessionID string) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", fmt.Errorf("%w: session id", shared.ErrMissingArgument)
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: server url %q: %v", shared.ErrInvalidArgument, baseURL, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", shared.ErrInvalidArgument, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: server url %q has no host", shared.ErrInvalidArgument, baseURL)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/session/" + url.PathEscape(sessionID) + "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

// Send writes one frame.
func (c *Client) Send(frame server.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to send %s: %w", frame.Type, err)
	}
	return nil
}

// Read blocks for the next text frame.
func (c *Client) Read() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.TextMessage {
			return data, nil
		}
	}
}

// Close says goodbye and closes the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	c.mu.Unlock()
	return c.conn.Close()
}
